package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Budget policies for guardrails.budget_policy
const (
	BudgetPolicyDegrade = "degrade"
	BudgetPolicyAbort   = "abort"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "guardrails.max_total_iterations")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// phaseNameRegex keeps phase names usable as log and metric label values
var phaseNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidServerKinds returns the supported generation server kinds
func ValidServerKinds() []string {
	return []string{"gemini", "ollama"}
}

// ValidBudgetPolicies returns the supported budget policies
func ValidBudgetPolicies() []string {
	return []string{BudgetPolicyDegrade, BudgetPolicyAbort}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateGuardrails()...)
	errors = append(errors, c.validatePhases()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateApply()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	if len(c.Backend.Servers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.servers",
			Value:   0,
			Message: "at least one server is required",
		})
	}

	seen := make(map[string]bool)
	for i, s := range c.Backend.Servers {
		field := fmt.Sprintf("backend.servers[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			errors = append(errors, ValidationError{Field: field + ".name", Value: s.Name, Message: "is required"})
		} else if seen[s.Name] {
			errors = append(errors, ValidationError{Field: field + ".name", Value: s.Name, Message: "duplicate server name"})
		}
		seen[s.Name] = true

		if !slices.Contains(ValidServerKinds(), s.Kind) {
			errors = append(errors, ValidationError{
				Field:   field + ".kind",
				Value:   s.Kind,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidServerKinds(), ", ")),
			})
		}
		if strings.TrimSpace(s.Model) == "" {
			errors = append(errors, ValidationError{Field: field + ".model", Value: s.Model, Message: "is required"})
		}
	}

	roles := []struct {
		field string
		value string
	}{
		{"backend.roles.generation", c.Backend.Roles.Generation},
		{"backend.roles.critique", c.Backend.Roles.Critique},
		{"backend.roles.compaction", c.Backend.Roles.Compaction},
	}
	for _, r := range roles {
		if r.value != "" && !seen[r.value] {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must name a configured server",
			})
		}
	}

	if c.Backend.RateLimit.RequestsPerMinute < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.rate_limit.requests_per_minute",
			Value:   c.Backend.RateLimit.RequestsPerMinute,
			Message: "must be non-negative",
		})
	}
	if c.Backend.RateLimit.RequestsPerMinute > 0 && c.Backend.RateLimit.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "backend.rate_limit.burst",
			Value:   c.Backend.RateLimit.Burst,
			Message: "must be at least 1 when rate limiting is enabled",
		})
	}
	if c.Backend.RequestTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.request_timeout_seconds",
			Value:   c.Backend.RequestTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateGuardrails() []ValidationError {
	var errors []ValidationError
	g := c.Guardrails

	positive := []struct {
		field string
		value int
	}{
		{"guardrails.max_retries_per_phase", g.MaxRetriesPerPhase},
		{"guardrails.max_total_iterations", g.MaxTotalIterations},
		{"guardrails.max_tokens_per_generation", g.MaxTokensPerGeneration},
		{"guardrails.summarize_every_n_iterations", g.SummarizeEveryNIterations},
	}
	for _, p := range positive {
		if p.value < 1 {
			errors = append(errors, ValidationError{Field: p.field, Value: p.value, Message: "must be at least 1"})
		}
	}

	if g.MinConfidenceToAdvance < 0 || g.MinConfidenceToAdvance > 1 {
		errors = append(errors, ValidationError{
			Field:   "guardrails.min_confidence_to_advance",
			Value:   g.MinConfidenceToAdvance,
			Message: "must be between 0 and 1",
		})
	}

	// Zero is accepted: the run aborts on its first deadline check.
	if g.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "guardrails.timeout_minutes",
			Value:   g.TimeoutMinutes,
			Message: "must be non-negative",
		})
	}

	if g.BudgetPolicy != "" && !slices.Contains(ValidBudgetPolicies(), g.BudgetPolicy) {
		errors = append(errors, ValidationError{
			Field:   "guardrails.budget_policy",
			Value:   g.BudgetPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBudgetPolicies(), ", ")),
		})
	}

	return errors
}

func (c *Config) validatePhases() []ValidationError {
	var errors []ValidationError

	if len(c.Phases) == 0 {
		errors = append(errors, ValidationError{
			Field:   "phases",
			Value:   0,
			Message: "at least one phase is required",
		})
	}

	seen := make(map[string]bool)
	for i, p := range c.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		switch {
		case !phaseNameRegex.MatchString(p.Name):
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Value:   p.Name,
				Message: "must start with a lowercase letter and contain only lowercase letters, digits, hyphens, and underscores",
			})
		case seen[p.Name]:
			errors = append(errors, ValidationError{Field: field + ".name", Value: p.Name, Message: "duplicate phase name"})
		}
		seen[p.Name] = true

		if strings.TrimSpace(p.Focus) == "" {
			errors = append(errors, ValidationError{Field: field + ".focus", Value: p.Focus, Message: "is required"})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateApply() []ValidationError {
	var errors []ValidationError

	if !branchPrefixRegex.MatchString(c.Apply.BranchPrefix) {
		errors = append(errors, ValidationError{
			Field:   "apply.branch_prefix",
			Value:   c.Apply.BranchPrefix,
			Message: "must start with a letter and contain only letters, digits, hyphens, and underscores",
		})
	}
	if strings.TrimSpace(c.Apply.AuthorName) == "" {
		errors = append(errors, ValidationError{Field: "apply.author_name", Value: c.Apply.AuthorName, Message: "is required"})
	}
	if !strings.Contains(c.Apply.AuthorEmail, "@") {
		errors = append(errors, ValidationError{Field: "apply.author_email", Value: c.Apply.AuthorEmail, Message: "must be an email address"})
	}

	return errors
}

func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.TextfilePath) == "" {
		return []ValidationError{{
			Field:   "metrics.textfile_path",
			Value:   c.Metrics.TextfilePath,
			Message: "is required when metrics are enabled",
		}}
	}
	return nil
}
