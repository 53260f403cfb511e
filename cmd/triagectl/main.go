// Command triagectl runs automation passes and diagnostics from a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/civic_complaints/backend/internal/app"
	"github.com/civic_complaints/backend/internal/config"
	"github.com/civic_complaints/backend/internal/db"
)

type options struct {
	memory  bool
	seed    string
	migrate bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "triagectl")

	var opts options
	rootCmd := &cobra.Command{
		Use:   "triagectl",
		Short: "Complaint triage operations tool",
		Long: `Complaint triage operations tool.

Runs sweeps and rebalances against the configured database, or against an
in-memory store seeded from a YAML fixture with --memory --seed.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "Use an in-memory store instead of DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&opts.seed, "seed", "", "YAML fixture loaded into the --memory store before the command")
	rootCmd.PersistentFlags().BoolVar(&opts.migrate, "migrate", false, "Apply the schema before running")

	rootCmd.AddCommand(processCmd(cfg, logger, &opts))
	rootCmd.AddCommand(rebalanceCmd(cfg, logger, &opts))
	rootCmd.AddCommand(classifyCmd(cfg, logger))
	rootCmd.AddCommand(seedCmd(cfg, logger, &opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// withApp opens the selected store, assembles the application and hands it to
// fn. Everything is released before it returns.
func withApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts *options, fn func(*app.App) error) error {
	var store app.Store
	if opts.memory {
		mem := db.NewMemoryStore()
		if opts.seed != "" {
			f, err := app.LoadFixture(opts.seed)
			if err != nil {
				return err
			}
			if _, _, err := f.Seed(ctx, mem, time.Now().UTC()); err != nil {
				return err
			}
		}
		store = mem
	} else {
		if opts.seed != "" {
			return fmt.Errorf("--seed requires --memory; use the seed command for the database")
		}
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer pg.Close()
		if opts.migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		store = pg
	}

	a, err := app.New(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
