package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lending-snapshots/internal/app"
	"lending-snapshots/internal/config"
	"lending-snapshots/internal/logging"
	"lending-snapshots/internal/snapshot"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// Exit codes distinguish where a session failed.
const (
	exitFailure   = 1
	exitTransport = 3
	exitData      = 4
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "lendingdash",
	Short:         "Fetch and summarise lending market snapshots from subgraphs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Annotations[skipConfig] == "true" {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}

		appHandle = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
		appHandle.Out = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var transportErr *snapshot.TransportError
	var schemaErr *snapshot.SchemaError
	var coercionErr *snapshot.CoercionError
	switch {
	case errors.As(err, &transportErr):
		return exitTransport
	case errors.As(err, &schemaErr), errors.As(err, &coercionErr):
		return exitData
	default:
		return exitFailure
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	flags.StringVar(&logFormat, "log-format", "", "Override log format (json|console)")

	rootCmd.AddCommand(networksCmd, fetchCmd, exportCmd, historyCmd, syncCmd, versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
