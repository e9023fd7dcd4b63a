package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lens_gateway/internal/billing"
	"lens_gateway/internal/gateway"
	"lens_gateway/internal/httpapi"
	"lens_gateway/internal/storage"
	"lens_gateway/internal/utils"
)

// withDependencies runs fn against the same wiring the HTTP server uses
func withDependencies(ctx context.Context, fn func(*httpapi.Dependencies) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	deps, err := httpapi.NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(deps)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEnvelope prints v and turns success:false into errFailed
func printEnvelope(cmd *cobra.Command, v any, success bool) error {
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !success {
		return errFailed
	}
	return nil
}

func executeCmd() *cobra.Command {
	var (
		prompt      string
		model       string
		temperature float64
		maxTokens   int
	)

	cmd := &cobra.Command{
		Use:   "execute <provider-id>",
		Short: "Run a prompt against a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := gateway.ExecuteInput{Prompt: prompt, Model: model}
			if cmd.Flags().Changed("temperature") {
				in.Temperature = utils.FloatPtr(temperature)
			}
			if cmd.Flags().Changed("max-tokens") {
				in.MaxTokens = utils.IntPtr(maxTokens)
			}

			return withDependencies(cmd.Context(), func(deps *httpapi.Dependencies) error {
				env := deps.Runner.RunExecute(cmd.Context(), args[0], in)
				return printEnvelope(cmd, env, env.Success)
			})
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt text")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model (defaults to the provider's default)")
	cmd.Flags().Float64Var(&temperature, "temperature", gateway.DefaultExecuteTemperature, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", gateway.DefaultMaxTokens, "Maximum completion tokens")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

func evaluateCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "evaluate <provider-id>",
		Short: "Score an output with an evaluation metric",
		Long:  `Reads an evaluate request body (metricType, actualOutput, context, ...) as JSON from --input, or stdin when --input is "-".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if inputPath != "-" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			var in gateway.EvaluateInput
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("failed to parse evaluate input: %w", err)
			}

			return withDependencies(cmd.Context(), func(deps *httpapi.Dependencies) error {
				env := deps.Runner.RunEvaluate(cmd.Context(), args[0], &in)
				return printEnvelope(cmd, env, env.Success)
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "JSON file with the evaluate request")

	return cmd
}

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection <provider-id>",
		Short: "Check that a provider's credentials and endpoint work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd.Context(), func(deps *httpapi.Dependencies) error {
				env := deps.Runner.RunTestConnection(cmd.Context(), args[0])
				return printEnvelope(cmd, env, env.Success)
			})
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List the supported evaluation metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := gateway.Catalog()
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"success":      true,
				"metrics":      catalog,
				"totalMetrics": len(catalog),
			})
		},
	}
}

func sealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal <value>",
		Short: "Encrypt a credential value for storage in the provider registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			enc, err := storage.NewEncryptionFromSecret(cfg.Security.EncryptionKey)
			if err != nil {
				return err
			}
			if enc == nil {
				return errors.New("ENCRYPTION_KEY is not set")
			}

			sealed, err := enc.SealCredential(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func genKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a random ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := storage.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func executionsCmd() *cobra.Command {
	var (
		count    int
		size     bool
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Drain buffered execution records from Redis as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd.Context(), func(deps *httpapi.Dependencies) error {
				if deps.Executions == nil {
					return errors.New("REDIS_ADDRESS is not set")
				}

				switch {
				case size:
					n, err := deps.Executions.Size(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				case clearAll:
					return deps.Executions.Clear(cmd.Context())
				}

				records, err := deps.Executions.Dequeue(cmd.Context(), count)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, rec := range records {
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 100, "Maximum records to drain")
	cmd.Flags().BoolVar(&size, "size", false, "Print the number of buffered records instead of draining")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Discard every buffered record")
	cmd.MarkFlagsMutuallyExclusive("size", "clear")

	return cmd
}

func spendCmd() *cobra.Command {
	var (
		month string
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "spend <provider-id>",
		Short: "Show or reset a provider's accumulated spend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset && cmd.Flags().Changed("month") {
				return errors.New("--reset applies to the current month only")
			}

			return withDependencies(cmd.Context(), func(deps *httpapi.Dependencies) error {
				redisBilling, ok := deps.Billing.(*billing.RedisBillingService)
				if !ok {
					return errors.New("REDIS_ADDRESS is not set")
				}

				providerID := args[0]
				if _, err := deps.Runner.Store.GetByID(cmd.Context(), providerID); err != nil && !errors.Is(err, storage.ErrInvalidCredentials) {
					return err
				}

				if reset {
					if err := redisBilling.ResetMonthlySpend(cmd.Context(), providerID); err != nil {
						return err
					}
				}

				m, err := billing.ParseMonth(month, time.Now())
				if err != nil {
					return err
				}
				spend, err := redisBilling.MonthlySpend(cmd.Context(), providerID, m)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"success":    true,
					"providerId": providerID,
					"month":      m.Format("2006-01"),
					"costUsd":    spend,
				})
			})
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current month)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the current month's total first")

	return cmd
}

func importCmd() *cobra.Command {
	var (
		file  string
		prune bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy providers from a YAML file into the Postgres registry",
		Long:  `Upserts every provider in --file into the registry at DATABASE_URL. Credential values sealed with "seal" are stored sealed. --prune deletes registry providers the file does not list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is not set")
			}

			src, err := storage.LoadMemoryStore(file, nil)
			if err != nil {
				return err
			}

			enc, err := storage.NewEncryptionFromSecret(cfg.Security.EncryptionKey)
			if err != nil {
				return err
			}

			dbCfg := storage.DefaultDBConfig()
			dbCfg.DSN = cfg.Database.URL
			db, err := storage.NewDB(dbCfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if cfg.Database.AutoMigrate {
				if err := db.Migrate(cmd.Context()); err != nil {
					return err
				}
			}

			result, err := storage.ImportProviders(cmd.Context(), db.NewProviderRepository(enc), src.Snapshot(), prune)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML providers file")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete registry providers missing from the file")
	cmd.MarkFlagRequired("file")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the provider registry table in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is not set")
			}

			dbCfg := storage.DefaultDBConfig()
			dbCfg.DSN = cfg.Database.URL
			db, err := storage.NewDB(dbCfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "provider registry is up to date")
			return nil
		},
	}
}
