package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/spf13/viper"
)

// Config represents the complete horizon configuration
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails" yaml:"guardrails"`
	Phases     []PhaseConfig    `mapstructure:"phases" yaml:"phases"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Apply      ApplyConfig      `mapstructure:"apply" yaml:"apply"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// BackendConfig describes the generation servers and how roles map onto them
type BackendConfig struct {
	// Servers are tried in order when the preferred server for a role fails
	Servers []ServerConfig `mapstructure:"servers" yaml:"servers"`
	// Roles maps each engine role to the name of its preferred server
	Roles RolesConfig `mapstructure:"roles" yaml:"roles"`
	// RateLimit throttles calls across all servers
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	// RequestTimeoutSeconds bounds a single backend call (0 = bounded only by the run deadline)
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// ServerConfig is one named generation server
type ServerConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Kind selects the client implementation: "gemini" or "ollama"
	Kind  string `mapstructure:"kind" yaml:"kind"`
	Model string `mapstructure:"model" yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key (gemini only)
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	// BaseURL overrides the server address (ollama only; empty uses OLLAMA_HOST)
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// RolesConfig names the preferred server per engine role. Empty means the
// first configured server.
type RolesConfig struct {
	Generation string `mapstructure:"generation" yaml:"generation"`
	Critique   string `mapstructure:"critique" yaml:"critique"`
	Compaction string `mapstructure:"compaction" yaml:"compaction"`
}

// RateLimitConfig controls backend call throttling
type RateLimitConfig struct {
	// RequestsPerMinute of 0 disables rate limiting
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// GuardrailsConfig bounds a single run
type GuardrailsConfig struct {
	MaxRetriesPerPhase        int     `mapstructure:"max_retries_per_phase" yaml:"max_retries_per_phase"`
	MaxTotalIterations        int     `mapstructure:"max_total_iterations" yaml:"max_total_iterations"`
	MaxTokensPerGeneration    int     `mapstructure:"max_tokens_per_generation" yaml:"max_tokens_per_generation"`
	MinConfidenceToAdvance    float64 `mapstructure:"min_confidence_to_advance" yaml:"min_confidence_to_advance"`
	SummarizeEveryNIterations int     `mapstructure:"summarize_every_n_iterations" yaml:"summarize_every_n_iterations"`
	TimeoutMinutes            float64 `mapstructure:"timeout_minutes" yaml:"timeout_minutes"`
	RequireCritiquePass       bool    `mapstructure:"require_critique_pass" yaml:"require_critique_pass"`
	// BudgetPolicy is what happens once max_total_iterations is reached:
	// "degrade" records the remaining phases as exhausted, "abort" ends the run
	BudgetPolicy string `mapstructure:"budget_policy" yaml:"budget_policy"`
}

// Timeout returns the run's wall-clock limit as a duration.
func (g GuardrailsConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMinutes * float64(time.Minute))
}

// PhaseConfig is one entry of the ordered phase pipeline
type PhaseConfig struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Focus string `mapstructure:"focus" yaml:"focus"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logs are written to a file or only to stderr
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory (empty = <config dir>/logs)
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
	// MaxSizeMB is the size at which horizon.log is rotated
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// ApplyConfig controls committing generated files to the target repository
type ApplyConfig struct {
	// Enabled applies files after a successful run (the --apply flag overrides it)
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	BranchPrefix string `mapstructure:"branch_prefix" yaml:"branch_prefix"`
	AuthorName   string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail  string `mapstructure:"author_email" yaml:"author_email"`
	// ApplyOnFailure also commits the partial output of unsuccessful runs
	ApplyOnFailure bool `mapstructure:"apply_on_failure" yaml:"apply_on_failure"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// TextfilePath is where metrics are written after each invocation
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Servers: []ServerConfig{
				{Name: "gemini", Kind: "gemini", Model: "gemini-2.5-flash", APIKeyEnv: "GEMINI_API_KEY"},
				{Name: "ollama", Kind: "ollama", Model: "qwen2.5-coder:14b"},
			},
			Roles: RolesConfig{
				Generation: "gemini",
				Critique:   "gemini",
				Compaction: "ollama",
			},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 30,
				Burst:             2,
			},
			RequestTimeoutSeconds: 300,
		},
		Guardrails: GuardrailsConfig{
			MaxRetriesPerPhase:        5,
			MaxTotalIterations:        20,
			MaxTokensPerGeneration:    8192,
			MinConfidenceToAdvance:    0.7,
			SummarizeEveryNIterations: 3,
			TimeoutMinutes:            30,
			RequireCritiquePass:       true,
			BudgetPolicy:              BudgetPolicyDegrade,
		},
		Phases: DefaultPhases(),
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Apply: ApplyConfig{
			BranchPrefix: "horizon",
			AuthorName:   "horizon",
			AuthorEmail:  "horizon@localhost",
		},
		Metrics: MetricsConfig{
			TextfilePath: filepath.Join(ConfigDir(), "metrics", "horizon.prom"),
		},
	}
}

// DefaultPhases returns the standard four-phase pipeline.
func DefaultPhases() []PhaseConfig {
	phases := types.DefaultPhases()
	out := make([]PhaseConfig, len(phases))
	for i, p := range phases {
		out[i] = PhaseConfig{Name: p.Name, Focus: p.Focus}
	}
	return out
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Backend defaults
	viper.SetDefault("backend.servers", serverMaps(defaults.Backend.Servers))
	viper.SetDefault("backend.roles.generation", defaults.Backend.Roles.Generation)
	viper.SetDefault("backend.roles.critique", defaults.Backend.Roles.Critique)
	viper.SetDefault("backend.roles.compaction", defaults.Backend.Roles.Compaction)
	viper.SetDefault("backend.rate_limit.requests_per_minute", defaults.Backend.RateLimit.RequestsPerMinute)
	viper.SetDefault("backend.rate_limit.burst", defaults.Backend.RateLimit.Burst)
	viper.SetDefault("backend.request_timeout_seconds", defaults.Backend.RequestTimeoutSeconds)

	// Guardrail defaults
	viper.SetDefault("guardrails.max_retries_per_phase", defaults.Guardrails.MaxRetriesPerPhase)
	viper.SetDefault("guardrails.max_total_iterations", defaults.Guardrails.MaxTotalIterations)
	viper.SetDefault("guardrails.max_tokens_per_generation", defaults.Guardrails.MaxTokensPerGeneration)
	viper.SetDefault("guardrails.min_confidence_to_advance", defaults.Guardrails.MinConfidenceToAdvance)
	viper.SetDefault("guardrails.summarize_every_n_iterations", defaults.Guardrails.SummarizeEveryNIterations)
	viper.SetDefault("guardrails.timeout_minutes", defaults.Guardrails.TimeoutMinutes)
	viper.SetDefault("guardrails.require_critique_pass", defaults.Guardrails.RequireCritiquePass)
	viper.SetDefault("guardrails.budget_policy", defaults.Guardrails.BudgetPolicy)

	// Phase defaults
	phases := make([]map[string]any, 0, len(defaults.Phases))
	for _, p := range defaults.Phases {
		phases = append(phases, map[string]any{"name": p.Name, "focus": p.Focus})
	}
	viper.SetDefault("phases", phases)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Apply defaults
	viper.SetDefault("apply.enabled", defaults.Apply.Enabled)
	viper.SetDefault("apply.branch_prefix", defaults.Apply.BranchPrefix)
	viper.SetDefault("apply.author_name", defaults.Apply.AuthorName)
	viper.SetDefault("apply.author_email", defaults.Apply.AuthorEmail)
	viper.SetDefault("apply.apply_on_failure", defaults.Apply.ApplyOnFailure)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.textfile_path", defaults.Metrics.TextfilePath)
}

func serverMaps(servers []ServerConfig) []map[string]any {
	out := make([]map[string]any, 0, len(servers))
	for _, s := range servers {
		out = append(out, map[string]any{
			"name":        s.Name,
			"kind":        s.Kind,
			"model":       s.Model,
			"api_key_env": s.APIKeyEnv,
			"base_url":    s.BaseURL,
		})
	}
	return out
}

// Load reads the configuration from viper into a Config struct and validates it.
// Returns ValidationErrors if any values are invalid.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if it
// cannot be loaded
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the horizon configuration directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "horizon")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".horizon"
	}
	return filepath.Join(home, ".config", "horizon")
}

// ConfigFile returns the default config file path
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir resolves the directory the run log is written to.
func (c *LoggingConfig) LogDir() string {
	if strings.TrimSpace(c.Dir) != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// Server returns the named server and whether it exists.
func (b *BackendConfig) Server(name string) (ServerConfig, bool) {
	for _, s := range b.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// EngineGuardrails converts the guardrails section to the engine's form.
func (c *Config) EngineGuardrails() types.Guardrails {
	g := c.Guardrails
	policy := types.BudgetPolicy(g.BudgetPolicy)
	if policy == "" {
		policy = types.BudgetDegrade
	}
	return types.Guardrails{
		MaxRetriesPerPhase:        g.MaxRetriesPerPhase,
		MaxTotalIterations:        g.MaxTotalIterations,
		MaxTokensPerGeneration:    g.MaxTokensPerGeneration,
		MinConfidenceToAdvance:    g.MinConfidenceToAdvance,
		SummarizeEveryNIterations: g.SummarizeEveryNIterations,
		TimeoutMinutes:            g.TimeoutMinutes,
		RequireCritiquePass:       g.RequireCritiquePass,
		BudgetPolicy:              policy,
	}
}

// EnginePhases converts the phases section to the engine's form.
func (c *Config) EnginePhases() []types.Phase {
	out := make([]types.Phase, len(c.Phases))
	for i, p := range c.Phases {
		out[i] = types.Phase{Name: p.Name, Focus: p.Focus}
	}
	return out
}
