package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"igengage/pkg/config"
	errs "igengage/pkg/errors"
	"igengage/pkg/logger"
	"igengage/pkg/ui"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	configFile  string
	logLevel    string
	accountName string
	outputDir   string
	quiet       bool
	notify      bool
)

var rootCmd = &cobra.Command{
	Use:   "igengage",
	Short: "Collect the likes and comments of an Instagram post",
	Long: `igengage logs into Instagram, retrieves who liked and commented on a post
and exports the result as a spreadsheet, a username list or JSON.

Requests are paced like a person browsing: a few seconds between items,
longer breaks every few dozen, and backoff when the platform throttles.
Without a subcommand an interactive session is started.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInteractive,
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithRunID(ctx, logger.NewRunID())

	err := recoverUnexpected(func() error { return rootCmd.ExecuteContext(ctx) })
	if err != nil {
		logger.GetLogger().WithContext(ctx).WithError(err).Error("Command failed")
		ui.NewPrinter(os.Stderr, false).Error("Error", err)
		return err
	}
	return nil
}

// recoverUnexpected runs fn and turns a panic into an unexpected error
func recoverUnexpected(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.KindUnexpected, "internal error: %v", r)
			logger.GetLogger().WithError(err).WithField("stack", string(debug.Stack())).Error("Recovered from panic")
		}
	}()
	return fn()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.igengage.yaml or ~/.config/igengage/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "Instagram account to log in with")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "directory for exported files")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&notify, "notify", false, "send a desktop notification when a post finishes")

	rootCmd.SetVersionTemplate(`igengage {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the global flags with extra command flags and sets up
// the global logger
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := globalFlags()
	for k, v := range extra {
		flags[k] = v
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if quiet && cfg.Logging.File == "" && logLevel == "" {
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if accountName != "" {
		flags["account"] = accountName
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}
