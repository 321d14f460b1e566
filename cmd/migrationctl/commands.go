package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	"github.com/mohammadpnp/archive-migration/internal/bootstrap"
	"github.com/mohammadpnp/archive-migration/internal/config"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db"
	"github.com/mohammadpnp/archive-migration/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down && status {
				return errors.New("--down and --status are mutually exclusive")
			}
			cfg, log, err := load()
			if err != nil {
				return err
			}
			direction := db.Up
			switch {
			case down:
				direction = db.Down
			case status:
				direction = db.Status
			}
			return db.Migrate(cmd.Context(), cfg.DatabaseURL, direction, log)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "Print migration status")
	return cmd
}

func newStuckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stuck",
		Short: "List sheets whose worker stopped sending heartbeats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				sheets, err := a.NewRecovery(nil).DetectStuck(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stuckRows(sheets))
			})
		},
	}
}

type recoverOptions struct {
	sheetID string
	jobID   string
	all     bool
}

func newRecoverCmd() *cobra.Command {
	var opts recoverOptions

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover stuck sheets and finish them in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			set := 0
			for _, chosen := range []bool{opts.sheetID != "", opts.jobID != "", opts.all} {
				if chosen {
					set++
				}
			}
			if set != 1 {
				return errors.New("exactly one of --sheet, --job or --all is required")
			}
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				return runRecover(cmd.Context(), cmd.OutOrStdout(), a, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.sheetID, "sheet", "", "Sheet id to recover")
	cmd.Flags().StringVar(&opts.jobID, "job", "", "Recover every stuck sheet of this job")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Recover every stuck sheet")
	return cmd
}

// runRecover re-queues stuck sheets and then runs them in this process, unless an API
// worker claims them first.
func runRecover(ctx context.Context, out io.Writer, a *bootstrap.App, opts recoverOptions) error {
	recovery := a.NewRecovery(nil)

	var (
		outcomes []app.RecoveryOutcome
		err      error
	)
	switch {
	case opts.sheetID != "":
		var outcome app.RecoveryOutcome
		outcome, err = recovery.RecoverSheet(ctx, opts.sheetID)
		if err == nil {
			outcomes = append(outcomes, outcome)
		}
	case opts.jobID != "":
		outcomes, err = recovery.RecoverJob(ctx, opts.jobID)
	default:
		outcomes, err = recovery.RecoverAll(ctx)
	}

	if outcomes == nil {
		outcomes = []app.RecoveryOutcome{}
	}
	if printErr := printJSON(out, outcomes); printErr != nil {
		return printErr
	}

	runErr := runQueued(ctx, a, outcomes)
	return errors.Join(err, runErr)
}

// runQueued claims the re-queued sheets and runs them one after another.
func runQueued(ctx context.Context, a *bootstrap.App, outcomes []app.RecoveryOutcome) error {
	var errs []error
	for _, outcome := range outcomes {
		if !requeued(outcome.Action) {
			continue
		}
		log := a.Log.WithField("sheet_id", outcome.SheetID)
		sheet, err := a.Sheets.Claim(ctx, outcome.SheetID, uuid.NewString(), time.Now().UTC())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sheet == nil {
			log.Info("sheet already claimed by a worker")
			continue
		}
		log.Info("running recovered sheet")
		if err := a.Engine.Run(ctx, *sheet); err != nil {
			errs = append(errs, fmt.Errorf("run sheet %s: %w", sheet.ID, err))
		}
	}
	return errors.Join(errs...)
}

func requeued(action app.RecoveryAction) bool {
	switch action {
	case app.RecoveryResumed, app.RecoveryRestaged, app.RecoveryReset:
		return true
	default:
		return false
	}
}

func load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(cfg.LogLevel)
	log.SetOutput(os.Stderr)
	return cfg, log, nil
}

func withApp(ctx context.Context, fn func(a *bootstrap.App) error) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	// Schema changes belong to the migrate command.
	cfg.AutoMigrate = false

	a, err := bootstrap.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

type stuckRow struct {
	SheetID          string `json:"sheet_id"`
	JobID            string `json:"job_id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	LastHeartbeat    string `json:"last_heartbeat,omitempty"`
	LastProcessedRow int    `json:"last_processed_row"`
	RecoveryAttempts int    `json:"recovery_attempts"`
}

func stuckRows(sheets []domain.Sheet) []stuckRow {
	rows := make([]stuckRow, 0, len(sheets))
	for _, sheet := range sheets {
		row := stuckRow{
			SheetID:          sheet.ID,
			JobID:            sheet.JobID,
			Name:             sheet.Name,
			Status:           string(domain.SheetStuck),
			LastProcessedRow: sheet.LastProcessedRow,
			RecoveryAttempts: sheet.RecoveryAttempts,
		}
		if sheet.LastHeartbeat != nil {
			row.LastHeartbeat = sheet.LastHeartbeat.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
