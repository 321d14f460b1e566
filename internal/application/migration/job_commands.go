package migration

import (
	"context"
	"fmt"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/sirupsen/logrus"
)

type GetJob interface {
	Execute(ctx context.Context, jobID string) (domain.Job, error)
}

type getJob struct {
	jobs jobReader
}

func NewGetJob(jobs jobReader) GetJob {
	return &getJob{jobs: jobs}
}

func (uc *getJob) Execute(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	job.Rollup()
	return job, nil
}

type CancelJob interface {
	Execute(ctx context.Context, jobID string) (domain.Job, error)
}

type jobCanceller interface {
	// CancelJob moves every cancellable sheet of the job to CANCELLED.
	CancelJob(ctx context.Context, jobID string, now time.Time) (int64, error)
}

type cancelJob struct {
	jobs   jobStatusRepo
	sheets jobCanceller
	clock  func() time.Time
	log    logrus.FieldLogger
}

func NewCancelJob(jobs jobStatusRepo, sheets jobCanceller, log logrus.FieldLogger) CancelJob {
	return &cancelJob{jobs: jobs, sheets: sheets, clock: systemClock, log: log}
}

// Execute requests cooperative cancellation. Running engines stop at their next batch
// boundary; sheets already terminal are left alone.
func (uc *cancelJob) Execute(ctx context.Context, jobID string) (domain.Job, error) {
	if _, err := uc.jobs.Get(ctx, jobID); err != nil {
		return domain.Job{}, err
	}
	cancelled, err := uc.sheets.CancelJob(ctx, jobID, uc.clock())
	if err != nil {
		return domain.Job{}, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	job, err := refreshJobStatus(ctx, uc.jobs, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("refresh job %s: %w", jobID, err)
	}
	uc.log.WithFields(logrus.Fields{"job_id": jobID, "sheets": cancelled}).Info("migration job cancel requested")
	return job, nil
}
