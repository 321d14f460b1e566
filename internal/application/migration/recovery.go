package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type recoverySheetRepo interface {
	sheetReader
	ListByJob(ctx context.Context, jobID string) ([]domain.Sheet, error)
	ListStuck(ctx context.Context, cutoff time.Time) ([]domain.Sheet, error)
	// Reclaim writes sheet only if it still holds observedLease and its heartbeat is
	// older than cutoff. It reports whether the write happened.
	Reclaim(ctx context.Context, sheet domain.Sheet, observedLease string, cutoff time.Time, plan domain.RepairPlan) (bool, error)
	// FailStalled is Reclaim for a sheet that recovery gives up on.
	FailStalled(ctx context.Context, sheet domain.Sheet, observedLease string, cutoff time.Time) (bool, error)
}

type stagingInspector interface {
	Stats(ctx context.Context, sheet domain.Sheet) (domain.StagingStats, error)
}

type RecoveryConfig struct {
	StaleThreshold time.Duration
	MaxAttempts    int
	Concurrency    int
	NewLease       func() string
	Clock          func() time.Time
}

type RecoveryAction string

const (
	RecoveryNoop     RecoveryAction = "noop"
	RecoveryResumed  RecoveryAction = "resumed"
	RecoveryRestaged RecoveryAction = "restaged"
	RecoveryReset    RecoveryAction = "reset"
	RecoveryFailed   RecoveryAction = "failed"
)

type RecoveryOutcome struct {
	SheetID string         `json:"sheet_id"`
	JobID   string         `json:"job_id"`
	Action  RecoveryAction `json:"action"`
	Reason  string         `json:"reason,omitempty"`
	// ResumeFromRow is the first row the resumed run will look at.
	ResumeFromRow int `json:"resume_from_row,omitempty"`
}

// RecoveryService finds sheets whose worker stopped sending heartbeats and either
// queues them for a worker through storage or fails them. Every entry point is idempotent.
type RecoveryService struct {
	jobs    jobStatusRepo
	sheets  recoverySheetRepo
	staging stagingInspector
	files   FileStore
	waker   Waker
	cfg     RecoveryConfig
	log     logrus.FieldLogger
}

func NewRecoveryService(
	jobs jobStatusRepo,
	sheets recoverySheetRepo,
	staging stagingInspector,
	files FileStore,
	waker Waker,
	log logrus.FieldLogger,
	cfg RecoveryConfig,
) *RecoveryService {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.NewLease == nil {
		cfg.NewLease = uuid.NewString
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	return &RecoveryService{
		jobs:    jobs,
		sheets:  sheets,
		staging: staging,
		files:   files,
		waker:   waker,
		cfg:     cfg,
		log:     log,
	}
}

// DetectStuck lists worker-owned sheets with a stale heartbeat.
func (s *RecoveryService) DetectStuck(ctx context.Context) ([]domain.Sheet, error) {
	cutoff := s.cfg.Clock().Add(-s.cfg.StaleThreshold)
	sheets, err := s.sheets.ListStuck(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryMigration, err)
	}
	return sheets, nil
}

// RecoverSheet repairs one sheet. A sheet that is not stuck, or that a concurrent
// recovery already took, yields a noop outcome.
func (s *RecoveryService) RecoverSheet(ctx context.Context, sheetID string) (RecoveryOutcome, error) {
	sheet, err := s.sheets.Get(ctx, sheetID)
	if err != nil {
		return RecoveryOutcome{}, err
	}
	outcome := RecoveryOutcome{SheetID: sheet.ID, JobID: sheet.JobID, Action: RecoveryNoop}
	log := s.log.WithFields(logrus.Fields{"job_id": sheet.JobID, "sheet_id": sheet.ID})

	now := s.cfg.Clock()
	if sheet.Diagnose(now, s.cfg.StaleThreshold) != domain.SheetStuck {
		outcome.Reason = fmt.Sprintf("sheet is %s, not stuck", sheet.Status)
		return outcome, nil
	}
	cutoff := now.Add(-s.cfg.StaleThreshold)
	observedLease := sheet.LeaseToken

	if sheet.RecoveryAttempts >= s.cfg.MaxAttempts {
		reason := fmt.Sprintf("stalled worker: no heartbeat since %s after %d recovery attempts",
			heartbeatText(sheet.LastHeartbeat), sheet.RecoveryAttempts)
		return s.giveUp(ctx, sheet, observedLease, cutoff, reason, log)
	}

	stats, err := s.staging.Stats(ctx, sheet)
	if err != nil {
		return RecoveryOutcome{}, fmt.Errorf("inspect staging of sheet %s: %w", sheet.ID, err)
	}
	plan := domain.PlanRepair(sheet, stats)
	if plan != domain.RepairNone {
		available, err := s.sourceAvailable(ctx, sheet.JobID)
		if err != nil {
			return RecoveryOutcome{}, err
		}
		if !available {
			reason := fmt.Sprintf("data corruption: staging holds %d of %d rows (%d of %d validated) and the source file is gone",
				stats.Staged, sheet.TotalRows, stats.Validated, sheet.ProcessedRows)
			return s.giveUp(ctx, sheet, observedLease, cutoff, reason, log)
		}
		switch plan {
		case domain.RepairRestage:
			sheet.RestageAfterCheckpoint()
		case domain.RepairReset:
			sheet.ResetProgress()
		}
	}

	if err := domain.CheckTransition(domain.SheetStuck, sheet.Status); err != nil {
		return RecoveryOutcome{}, err
	}
	// The fresh token fences the stalled worker. A worker claims the sheet from
	// storage with its own token.
	sheet.LeaseToken = s.cfg.NewLease()
	sheet.AwaitingWorker = true
	sheet.RecoveryAttempts++
	sheet.Touch(now)

	claimed, err := s.sheets.Reclaim(ctx, sheet, observedLease, cutoff, plan)
	if err != nil {
		return RecoveryOutcome{}, fmt.Errorf("reclaim sheet %s: %w", sheet.ID, err)
	}
	if !claimed {
		outcome.Reason = "sheet was recovered concurrently"
		return outcome, nil
	}

	outcome.Action = actionFor(plan)
	outcome.ResumeFromRow = resumeRow(sheet)
	log.WithFields(logrus.Fields{
		"plan":     plan.String(),
		"attempt":  sheet.RecoveryAttempts,
		"from_row": outcome.ResumeFromRow,
	}).Warn("stuck sheet re-queued for a worker")

	if s.waker != nil {
		s.waker.Wake()
	}
	return outcome, nil
}

// RecoverJob recovers every stuck sheet of a job concurrently. One sheet's failure
// does not stop its siblings.
func (s *RecoveryService) RecoverJob(ctx context.Context, jobID string) ([]RecoveryOutcome, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	sheets, err := s.sheets.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryMigration, err)
	}

	now := s.cfg.Clock()
	var stuck []domain.Sheet
	for _, sheet := range sheets {
		if sheet.Stale(now, s.cfg.StaleThreshold) {
			stuck = append(stuck, sheet)
		}
	}
	return s.recoverAll(ctx, stuck)
}

// RecoverAll is the scheduled sweep over every stuck sheet.
func (s *RecoveryService) RecoverAll(ctx context.Context) ([]RecoveryOutcome, error) {
	stuck, err := s.DetectStuck(ctx)
	if err != nil {
		return nil, err
	}
	return s.recoverAll(ctx, stuck)
}

func (s *RecoveryService) recoverAll(ctx context.Context, sheets []domain.Sheet) ([]RecoveryOutcome, error) {
	outcomes := make([]RecoveryOutcome, len(sheets))
	errs := make([]error, len(sheets))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, sheet := range sheets {
		i, sheet := i, sheet
		g.Go(func() error {
			outcome, err := s.RecoverSheet(ctx, sheet.ID)
			if err != nil {
				s.log.WithError(err).WithField("sheet_id", sheet.ID).Error("sheet recovery failed")
				outcome.SheetID = sheet.ID
				outcome.JobID = sheet.JobID
				errs[i] = err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(errs...)
}

func (s *RecoveryService) giveUp(
	ctx context.Context,
	sheet domain.Sheet,
	observedLease string,
	cutoff time.Time,
	reason string,
	log logrus.FieldLogger,
) (RecoveryOutcome, error) {
	outcome := RecoveryOutcome{SheetID: sheet.ID, JobID: sheet.JobID, Action: RecoveryNoop}
	if err := domain.CheckTransition(domain.SheetStuck, domain.SheetFailed); err != nil {
		return outcome, err
	}

	now := s.cfg.Clock()
	sheet.Status = domain.SheetFailed
	sheet.ErrorMessage = truncateReason(reason)
	sheet.CompletedAt = &now
	sheet.Touch(now)

	failed, err := s.sheets.FailStalled(ctx, sheet, observedLease, cutoff)
	if err != nil {
		return outcome, fmt.Errorf("fail stuck sheet %s: %w", sheet.ID, err)
	}
	if !failed {
		outcome.Reason = "sheet was recovered concurrently"
		return outcome, nil
	}

	if _, err := refreshJobStatus(ctx, s.jobs, sheet.JobID); err != nil {
		log.WithError(err).Warn("failed to refresh job status")
	}
	log.WithField("reason", reason).Error("stuck sheet failed by recovery")
	outcome.Action = RecoveryFailed
	outcome.Reason = reason
	return outcome, nil
}

func (s *RecoveryService) sourceAvailable(ctx context.Context, jobID string) (bool, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.FileKey == "" {
		return false, nil
	}
	ok, err := s.files.Exists(ctx, job.FileKey)
	if err != nil {
		return false, fmt.Errorf("check source file %s: %w", job.FileKey, err)
	}
	return ok, nil
}

func actionFor(plan domain.RepairPlan) RecoveryAction {
	switch plan {
	case domain.RepairRestage:
		return RecoveryRestaged
	case domain.RepairReset:
		return RecoveryReset
	default:
		return RecoveryResumed
	}
}

// resumeRow is the first row the next run validates, or promotes for a VALIDATED sheet.
func resumeRow(sheet domain.Sheet) int {
	if sheet.Status == domain.SheetValidated {
		return sheet.LastPromotedRow + 1
	}
	return sheet.LastProcessedRow + 1
}

func heartbeatText(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
