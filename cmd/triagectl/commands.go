package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/civic_complaints/backend/internal/app"
	"github.com/civic_complaints/backend/internal/config"
	"github.com/civic_complaints/backend/internal/db"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/service"
)

func processCmd(cfg config.Config, logger zerolog.Logger, opts *options) *cobra.Command {
	var maxItems int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one sweep over pending complaints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, logger, opts, func(a *app.App) error {
				res := a.Scheduler.TriggerSweep(cmd.Context(), maxItems)
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				if res.Skipped {
					return fmt.Errorf("sweep skipped: %s", res.Reason)
				}
				if res.Error != "" {
					return fmt.Errorf("sweep failed: %s", res.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Batch size override (0 uses BATCH_SIZE)")
	return cmd
}

func rebalanceCmd(cfg config.Config, logger zerolog.Logger, opts *options) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Move not-yet-started work from heavy to light staff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var dept *models.Department
			if department != "" {
				d, ok := models.ParseDepartment(department)
				if !ok {
					return fmt.Errorf("unknown department %q", department)
				}
				dept = &d
			}
			return withApp(cmd.Context(), cfg, logger, opts, func(a *app.App) error {
				out := a.Scheduler.TriggerRebalance(cmd.Context(), dept)
				if err := printJSON(cmd, out); err != nil {
					return err
				}
				if out.Error != "" {
					return fmt.Errorf("rebalance failed: %s", out.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "Only rebalance this department")
	return cmd
}

// classifyCmd needs no store; it exercises the classifier, scorer and
// department mapping with the configured provider and budget.
func classifyCmd(cfg config.Config, logger zerolog.Logger) *cobra.Command {
	var title, description string
	var images []string
	var noAI bool
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify complaint text without persisting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" && description == "" {
				return fmt.Errorf("--title or --description is required")
			}
			a, err := app.New(cmd.Context(), cfg, db.NewMemoryStore(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Classifier.ClassifyWith(cmd.Context(), service.ClassifyInput{
				Title:       title,
				Description: description,
				Images:      images,
				AllowAI:     !noAI,
			})
			return printJSON(cmd, map[string]any{
				"classification": res,
				"priority":       a.Scorer.Breakdown(title+" "+description, res.Category),
				"department":     a.Selector.Department(res.Category),
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Complaint title")
	cmd.Flags().StringVar(&description, "description", "", "Complaint description")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Image URL (repeatable)")
	cmd.Flags().BoolVar(&noAI, "no-ai", false, "Force keyword classification")
	return cmd
}

func seedCmd(cfg config.Config, logger zerolog.Logger, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Insert staff and complaints from a YAML fixture into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.memory {
				return fmt.Errorf("seed writes to DATABASE_URL; use --memory --seed with another command instead")
			}
			f, err := app.LoadFixture(args[0])
			if err != nil {
				return err
			}
			store, err := db.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer store.Close()
			if opts.migrate {
				if err := store.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			staff, complaints, err := f.Seed(cmd.Context(), store, time.Now().UTC())
			if err != nil {
				return err
			}
			logger.Info().Int64("staff", staff).Int64("complaints", complaints).Msg("fixture seeded")
			return printJSON(cmd, map[string]int64{"staff": staff, "complaints": complaints})
		},
	}
}
