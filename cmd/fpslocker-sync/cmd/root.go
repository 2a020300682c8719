package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sean-China/auto-update/internal/config"
	"github.com/Sean-China/auto-update/internal/logger"
	"github.com/Sean-China/auto-update/internal/service/sync"
	"github.com/Sean-China/auto-update/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel is the minimum level for console output.
	logLevel string

	// skipUnchanged stops the run early when the archive digest did not change.
	skipUnchanged bool

	// rootCmd represents the base command that runs the whole pipeline.
	rootCmd = &cobra.Command{
		Use:   "fpslocker-sync",
		Short: "Fetch the FPSLocker configs archive and repackage the SaltySD directory",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			applyLogLevel(ctx)

			options := &sync.Options{
				ConfigPath:    configPath,
				SkipUnchanged: skipUnchanged,
			}

			return sync.Run(ctx, options)
		},
	}

	// initCmd writes a settings file prefilled with the stock defaults.
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default settings file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			path := configPath
			if path == "" {
				path = config.DefaultConfigFilename
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			logger.InfoKV(ctx, "Settings file written", "path", path)

			return nil
		},
	}
)

// applyLogLevel configures the global logger from the --log-level flag.
func applyLogLevel(ctx context.Context) {
	if logLevel == "" {
		return
	}

	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		logger.Warnf(ctx, "Unknown log level %q, keeping %s", logLevel, logger.Level())
		return
	}

	logger.SetLevel(level)
}

// Execute runs the fpslocker-sync CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&skipUnchanged, "skip-unchanged", false, "stop after the digest check when the archive did not change")

	rootCmd.AddCommand(initCmd)
}
