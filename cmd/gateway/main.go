package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lens_gateway/internal/config"
	"lens_gateway/internal/logging"
)

var version = "dev"

// errFailed marks a command whose envelope reported success:false; the
// envelope itself has already been printed.
var errFailed = errors.New("operation failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lens-gateway",
		Short:         "Sprint Agent Lens LLM provider gateway",
		Long:          `Runs prompts, LLM-judged evaluations and connection tests against OpenAI, Azure OpenAI, Anthropic, Google, xAI and Mistral providers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(testConnectionCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(sealCmd())
	rootCmd.AddCommand(genKeyCmd())
	rootCmd.AddCommand(executionsCmd())
	rootCmd.AddCommand(spendCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd
}

// loadConfig reads configuration and sets up the global logger from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logging.Setup(logging.Options{
		Env:   cfg.Env,
		Level: cfg.LogLevel,
		Local: cfg.Local,
	})
	return cfg, nil
}
