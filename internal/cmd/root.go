package cmd

import (
	"os"
	"strings"

	"github.com/Iron-Ham/horizon/internal/config"
	"github.com/Iron-Ham/horizon/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "horizon",
	Short: "Long-horizon phased code generation",
	Long: `Horizon turns a work packet (title, description, tasks and acceptance
criteria) into source files by running it through an ordered pipeline of
phases. Each phase loops generate, critique and compact until the critique
is confident enough to advance or the iteration budget runs out.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/horizon/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HORIZON")
	// e.g. HORIZON_GUARDRAILS_TIMEOUT_MINUTES for guardrails.timeout_minutes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the logger described by the logging section. When file
// logging is disabled, entries go to stderr.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NewWriterLogger(os.Stderr, cfg.Level), nil
	}
	return logging.NewLoggerWithRotation(cfg.LogDir(), cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}
