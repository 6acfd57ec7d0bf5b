// Package cli wires the cobra command tree for the auditor.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ganauditor/ganauditor/internal/config"
	"github.com/ganauditor/ganauditor/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ganauditor",
	Short: "ganauditor - Iterative adversarial code audit loop",
	Long: `ganauditor runs candidate code through an adversarial reviewer until it
meets a quality threshold or a kill switch fires.

Each submitted thought may carry a fenced code block (the candidate) and an
optional fenced gan-config block adjusting the session. Verdicts, structured
feedback, and completion decisions are returned synchronously; session history
persists across restarts.

Example:
  ganauditor audit --session fix-parser notes.md`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .ganauditor.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ganauditor")
	}

	viper.SetEnvPrefix("GAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// buildLogger constructs the zap logger from the logging config. Verbose
// forces debug level regardless of the configured level.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	if viper.GetBool("verbose") {
		level = zapcore.DebugLevel
	}

	var zc zap.Config
	if cfg.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// stdout stays clean for command output
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
