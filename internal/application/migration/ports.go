package migration

import (
	"context"
	"io"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

// FileStore keeps uploaded workbooks so that sheets can be staged, and re-staged by
// recovery, after the upload request has returned.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Workbook is an opened spreadsheet. Rows streams a worksheet in row order with
// 1-based row numbers, header included.
type Workbook interface {
	SheetNames() []string
	Header(sheet string) ([]string, error)
	Rows(ctx context.Context, sheet string, fn func(rowNumber int, cells []string) error) error
	Close() error
}

type WorkbookParser interface {
	Parse(ctx context.Context, r io.Reader) (Workbook, error)
}

// MasterStore is the promoted record store. Its duplicate key is unique.
type MasterStore interface {
	// ExistingKeys returns the owning sheet id of every key already promoted.
	ExistingKeys(ctx context.Context, keys []string) (map[string]string, error)
	Promote(ctx context.Context, records []domain.MasterRecord) (domain.PromotionResult, error)
}

// Waker is told that a sheet became claimable, so idle workers need not wait for
// their next poll.
type Waker interface {
	Wake()
}

type jobReader interface {
	Get(ctx context.Context, jobID string) (domain.Job, error)
}

type jobStatusRepo interface {
	jobReader
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error
}

type sheetReader interface {
	Get(ctx context.Context, sheetID string) (domain.Sheet, error)
}

// refreshJobStatus persists the rollup of the job's current sheet statuses.
func refreshJobStatus(ctx context.Context, jobs jobStatusRepo, jobID string) (domain.Job, error) {
	job, err := jobs.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	previous := job.Status
	job.Rollup()
	if job.Status == previous {
		return job, nil
	}
	if err := jobs.UpdateStatus(ctx, jobID, job.Status); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

func systemClock() time.Time {
	return time.Now().UTC()
}
