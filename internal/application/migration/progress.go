package migration

import (
	"context"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

type ProgressConfig struct {
	StaleThreshold time.Duration
	Clock          func() time.Time
}

// ProgressService projects job and sheet state for polling and streaming. Reads may
// trail the engine by one batch.
type ProgressService struct {
	jobs   jobReader
	sheets sheetReader
	cfg    ProgressConfig
}

func NewProgressService(jobs jobReader, sheets sheetReader, cfg ProgressConfig) *ProgressService {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	return &ProgressService{jobs: jobs, sheets: sheets, cfg: cfg}
}

func (s *ProgressService) JobProgress(ctx context.Context, jobID string) (domain.JobProgress, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.JobProgress{}, err
	}
	return domain.JobProgressOf(job, s.cfg.Clock(), s.cfg.StaleThreshold), nil
}

func (s *ProgressService) SheetProgress(ctx context.Context, sheetID string) (domain.SheetProgress, error) {
	sheet, err := s.sheets.Get(ctx, sheetID)
	if err != nil {
		return domain.SheetProgress{}, err
	}
	return domain.ProgressOf(sheet, s.cfg.Clock(), s.cfg.StaleThreshold), nil
}

// Watch calls emit with a fresh snapshot every interval until every sheet of the job is
// terminal. The final snapshot is always emitted.
func (s *ProgressService) Watch(ctx context.Context, jobID string, interval time.Duration, emit func(domain.JobProgress) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		progress, err := s.JobProgress(ctx, jobID)
		if err != nil {
			return err
		}
		if err := emit(progress); err != nil {
			return err
		}
		if progress.Done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
