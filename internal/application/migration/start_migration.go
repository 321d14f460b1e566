package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/sirupsen/logrus"
)

type StartMigrationInput struct {
	FileName string
	Size     int64
	Body     io.Reader
}

type StartMigration interface {
	Execute(ctx context.Context, in StartMigrationInput) (domain.Job, error)
}

type jobCreator interface {
	Create(ctx context.Context, job domain.Job) error
}

type StartMigrationConfig struct {
	NewID func() string
	Clock func() time.Time
}

type startMigration struct {
	files  FileStore
	parser WorkbookParser
	jobs   jobCreator
	cfg    StartMigrationConfig
	log    logrus.FieldLogger
}

func NewStartMigration(files FileStore, parser WorkbookParser, jobs jobCreator, log logrus.FieldLogger, cfg StartMigrationConfig) StartMigration {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	return &startMigration{files: files, parser: parser, jobs: jobs, cfg: cfg, log: log}
}

// Execute stores the workbook, checks its structure and creates the job with one
// PENDING sheet per worksheet. Structural problems are returned as *domain.StructureError
// and nothing is persisted. Rows are processed later by the worker pool.
func (uc *startMigration) Execute(ctx context.Context, in StartMigrationInput) (domain.Job, error) {
	name := filepath.Base(strings.TrimSpace(in.FileName))
	ext := strings.ToLower(filepath.Ext(name))
	if in.Body == nil || name == "." || name == "/" || (ext != ".xlsx" && ext != ".xlsm") {
		return domain.Job{}, fmt.Errorf("%w: expected an .xlsx workbook", ErrInvalidUpload)
	}

	jobID := uc.cfg.NewID()
	key := fmt.Sprintf("uploads/%s/%s", jobID, name)
	hasher := sha256.New()
	if err := uc.files.Put(ctx, key, io.TeeReader(in.Body, hasher), in.Size); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Job{}, fmt.Errorf("%w: %v", ErrUploadTimeout, ctxErr)
		}
		return domain.Job{}, fmt.Errorf("%w: %v", ErrStoreUpload, err)
	}
	stored := domain.StoredFile{Name: name, Key: key, Size: in.Size, SHA256: hex.EncodeToString(hasher.Sum(nil))}

	detected, err := uc.inspect(ctx, key)
	if err != nil {
		uc.discard(key)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Job{}, fmt.Errorf("%w: %v", ErrUploadTimeout, ctxErr)
		}
		return domain.Job{}, err
	}

	job := domain.NewJob(jobID, stored, detected, uc.cfg.NewID, uc.cfg.Clock())
	if err := uc.jobs.Create(ctx, job); err != nil {
		uc.discard(key)
		return domain.Job{}, fmt.Errorf("%w: %v", ErrCreateJob, err)
	}

	uc.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"file":   name,
		"sheets": len(job.Sheets),
		"sha256": stored.SHA256,
	}).Info("migration job created")
	return job, nil
}

func (uc *startMigration) inspect(ctx context.Context, key string) ([]domain.DetectedSheet, error) {
	src, err := uc.files.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUpload, err)
	}
	defer src.Close()

	workbook, err := uc.parser.Parse(ctx, src)
	if err != nil {
		return nil, &domain.StructureError{Err: fmt.Errorf("unreadable workbook: %w", err)}
	}
	defer workbook.Close()

	names := workbook.SheetNames()
	if len(names) == 0 {
		return nil, &domain.StructureError{Err: domain.ErrEmptyWorkbook}
	}

	detected := make([]domain.DetectedSheet, 0, len(names))
	for _, name := range names {
		sheetType, err := domain.SheetTypeForName(name)
		if err != nil {
			return nil, err
		}
		header, err := workbook.Header(name)
		if err != nil {
			return nil, &domain.StructureError{Sheet: name, Err: fmt.Errorf("read header: %w", err)}
		}
		if _, err := domain.MapHeader(sheetType, name, header); err != nil {
			return nil, err
		}
		detected = append(detected, domain.DetectedSheet{Name: name, Type: sheetType})
	}
	return detected, nil
}

// discard removes a stored upload that did not become a job. It must run even when
// the request context is already done.
func (uc *startMigration) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := uc.files.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		uc.log.WithError(err).WithField("key", key).Warn("failed to remove rejected upload")
	}
}
