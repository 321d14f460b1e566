package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/domain/migration/rules"
	"github.com/sirupsen/logrus"
)

type engineSheetRepo interface {
	sheetReader
	Heartbeat(ctx context.Context, sheet domain.Sheet) error
	// Transition writes the sheet, moving it out of from. It fails with
	// domain.ErrLeaseLost or domain.ErrSheetCancelled when the lease is gone.
	Transition(ctx context.Context, sheet domain.Sheet, from domain.SheetStatus) error
}

// stagingStore writes each batch together with the sheet checkpoint in one
// transaction, conditioned on the sheet lease.
type stagingStore interface {
	CommitStaged(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow) error
	NextForValidation(ctx context.Context, sheet domain.Sheet, limit int) ([]domain.StagingRow, error)
	KnownKeys(ctx context.Context, sheet domain.Sheet) ([]string, error)
	CommitValidated(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error
	NextForPromotion(ctx context.Context, sheet domain.Sheet, limit int) ([]domain.StagingRow, error)
	CommitPromoted(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error
}

type EngineConfig struct {
	BatchSize         int
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Validate          rules.ValidateFunc
}

// Engine drives one claimed sheet through stage, validate and promote. Every phase
// resumes from the checkpoint stored on the sheet.
type Engine struct {
	jobs    jobStatusRepo
	sheets  engineSheetRepo
	staging stagingStore
	master  MasterStore
	files   FileStore
	parser  WorkbookParser
	cfg     EngineConfig
	log     logrus.FieldLogger
}

func NewEngine(
	jobs jobStatusRepo,
	sheets engineSheetRepo,
	staging stagingStore,
	master MasterStore,
	files FileStore,
	parser WorkbookParser,
	log logrus.FieldLogger,
	cfg EngineConfig,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	if cfg.Validate == nil {
		cfg.Validate = rules.Validate
	}
	return &Engine{
		jobs:    jobs,
		sheets:  sheets,
		staging: staging,
		master:  master,
		files:   files,
		parser:  parser,
		cfg:     cfg,
		log:     log,
	}
}

// Run processes a sheet claimed by the caller. Losing the lease or a user cancel ends
// the run without error. A cancelled ctx leaves the sheet to recovery.
func (e *Engine) Run(ctx context.Context, sheet domain.Sheet) error {
	log := e.log.WithFields(logrus.Fields{
		"job_id":     sheet.JobID,
		"sheet_id":   sheet.ID,
		"sheet_type": sheet.Type,
	})

	e.refreshJob(ctx, sheet.JobID)
	err := e.run(ctx, &sheet, log)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSheetCancelled):
		log.Info("sheet cancelled, stopping at batch boundary")
		return nil
	case errors.Is(err, domain.ErrLeaseLost):
		log.Warn("sheet lease lost, another worker owns it")
		return nil
	case ctx.Err() != nil:
		log.WithError(err).Info("sheet interrupted, left for recovery")
		return ctx.Err()
	}

	log.WithError(err).Error("sheet failed")
	if failErr := e.fail(context.WithoutCancel(ctx), &sheet, err); failErr != nil {
		return fmt.Errorf("%v; mark failed: %w", err, failErr)
	}
	return err
}

func (e *Engine) run(ctx context.Context, sheet *domain.Sheet, log logrus.FieldLogger) error {
	if sheet.Status == domain.SheetProcessing {
		if !sheet.StagingComplete {
			if err := e.stage(ctx, sheet, log); err != nil {
				return fmt.Errorf("stage: %w", err)
			}
		}
		if err := e.validate(ctx, sheet, log); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		if err := e.transition(ctx, sheet, domain.SheetValidated); err != nil {
			return err
		}
		log.WithFields(counterFields(sheet.Counters)).Info("sheet validated")
	}

	if sheet.Status != domain.SheetValidated {
		return fmt.Errorf("%w: cannot run sheet in status %s", domain.ErrInvalidTransition, sheet.Status)
	}
	if err := e.promote(ctx, sheet, log); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if err := e.transition(ctx, sheet, domain.SheetCompleted); err != nil {
		return err
	}
	log.WithFields(counterFields(sheet.Counters)).Info("sheet completed")
	return nil
}

func (e *Engine) stage(ctx context.Context, sheet *domain.Sheet, log logrus.FieldLogger) error {
	job, err := e.jobs.Get(ctx, sheet.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	src, err := e.files.Open(ctx, job.FileKey)
	if err != nil {
		return fmt.Errorf("%w: open source %s: %v", domain.ErrCorruptStagingRow, job.FileKey, err)
	}
	defer src.Close()

	workbook, err := e.parser.Parse(ctx, src)
	if err != nil {
		return fmt.Errorf("%w: parse source: %v", domain.ErrCorruptStagingRow, err)
	}
	defer workbook.Close()

	header, err := workbook.Header(sheet.Name)
	if err != nil {
		return fmt.Errorf("%w: read header: %v", domain.ErrCorruptStagingRow, err)
	}
	mapping, err := domain.MapHeader(sheet.Type, sheet.Name, header)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptStagingRow, err)
	}

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	batch := make([]domain.StagingRow, 0, e.cfg.BatchSize)
	lastRead := sheet.LastStagedRow
	flush := func(final bool) error {
		if err := e.checkActive(ctx, *sheet); err != nil {
			return err
		}
		next := *sheet
		next.StagingComplete = final
		next.LastStagedRow = lastRead
		next.Staged(int64(len(batch)))
		next.Touch(e.cfg.Clock())
		if err := e.staging.CommitStaged(ctx, next, batch); err != nil {
			return fmt.Errorf("commit staged rows: %w", err)
		}
		*sheet = next
		log.WithFields(logrus.Fields{"row": sheet.LastStagedRow, "staged": sheet.TotalRows}).Debug("staging batch committed")
		batch = batch[:0]
		return nil
	}

	err = workbook.Rows(ctx, sheet.Name, func(rowNumber int, cells []string) error {
		if rowNumber <= 1 || rowNumber <= sheet.LastStagedRow {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sheet.Touch(e.cfg.Clock())
			if err := e.sheets.Heartbeat(ctx, *sheet); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		default:
		}

		lastRead = rowNumber
		if mapping.BlankRow(cells) {
			return nil
		}
		batch = append(batch, domain.StagingRow{
			JobID:     sheet.JobID,
			SheetID:   sheet.ID,
			RowNumber: rowNumber,
			Record:    domain.NewRecord(sheet.Type, mapping.Values(cells)),
			Status:    domain.RowPending,
			CreatedAt: e.cfg.Clock(),
		})
		if len(batch) >= e.cfg.BatchSize {
			return flush(false)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return flush(true)
}

func (e *Engine) validate(ctx context.Context, sheet *domain.Sheet, log logrus.FieldLogger) error {
	seen := make(map[string]struct{})
	if sheet.LastProcessedRow > 0 {
		keys, err := e.staging.KnownKeys(ctx, *sheet)
		if err != nil {
			return fmt.Errorf("load known keys: %w", err)
		}
		for _, key := range keys {
			seen[key] = struct{}{}
		}
	}

	for {
		if err := e.checkActive(ctx, *sheet); err != nil {
			return err
		}
		rows, err := e.staging.NextForValidation(ctx, *sheet, e.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load staging rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		next := *sheet
		next.BatchCount++
		now := e.cfg.Clock()
		var rowErrs []domain.RowError
		candidates := make([]int, 0, len(rows))
		for i := range rows {
			row := &rows[i]
			row.BatchNumber = next.BatchCount

			result := e.cfg.Validate(row.Record, row.RowNumber)
			if !result.Valid() {
				row.Status = domain.RowInvalid
				row.Errors = result.Errors
				next.RecordInvalid()
				rowErrs = append(rowErrs, domain.RowErrors(next, *row, result.Errors, now)...)
				log.WithFields(logrus.Fields{"row": row.RowNumber, "batch": row.BatchNumber, "errors": len(result.Errors)}).
					Warn("row failed validation")
				continue
			}

			row.Status = domain.RowValid
			row.Errors = nil
			row.DuplicateKey = row.Record.DuplicateKey()
			if _, dup := seen[row.DuplicateKey]; dup {
				row.IsDuplicate = true
				next.RecordDuplicate()
				continue
			}
			seen[row.DuplicateKey] = struct{}{}
			candidates = append(candidates, i)
		}

		if err := e.markExisting(ctx, &next, rows, candidates); err != nil {
			return err
		}

		next.LastProcessedRow = rows[len(rows)-1].RowNumber
		next.Touch(now)
		if err := e.staging.CommitValidated(ctx, next, rows, rowErrs); err != nil {
			return fmt.Errorf("commit validated rows: %w", err)
		}
		*sheet = next
		log.WithFields(logrus.Fields{"batch": sheet.BatchCount, "row": sheet.LastProcessedRow}).Debug("validation batch committed")
	}
}

// markExisting flags candidates whose key another sheet already promoted. Keys owned by
// this sheet come from an earlier run of the same sheet and stay promotable.
func (e *Engine) markExisting(ctx context.Context, sheet *domain.Sheet, rows []domain.StagingRow, candidates []int) error {
	if len(candidates) == 0 {
		return nil
	}
	keys := make([]string, 0, len(candidates))
	for _, i := range candidates {
		keys = append(keys, rows[i].DuplicateKey)
	}
	owners, err := e.master.ExistingKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("look up master keys: %w", err)
	}
	for _, i := range candidates {
		if owner, ok := owners[rows[i].DuplicateKey]; ok && owner != sheet.ID {
			rows[i].MasterDataExists = true
			sheet.RecordExisting()
			continue
		}
		sheet.RecordValid()
	}
	return nil
}

func (e *Engine) promote(ctx context.Context, sheet *domain.Sheet, log logrus.FieldLogger) error {
	for {
		if err := e.checkActive(ctx, *sheet); err != nil {
			return err
		}
		rows, err := e.staging.NextForPromotion(ctx, *sheet, e.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load promotable rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		// The batch is counted on a copy; sheet only advances once the commit lands.
		next := *sheet
		next.BatchCount++
		now := e.cfg.Clock()
		var rowErrs []domain.RowError
		demote := func(row *domain.StagingRow, reason string) {
			fieldErr := domain.FieldError{
				Code:    domain.CodePromotionFailed,
				Message: reason,
				Rule:    domain.RulePromotion,
			}
			row.Status = domain.RowInvalid
			row.Errors = append(row.Errors, fieldErr)
			next.DemoteToInvalid()
			rowErrs = append(rowErrs, domain.RowErrors(next, *row, []domain.FieldError{fieldErr}, now)...)
			log.WithFields(logrus.Fields{"row": row.RowNumber, "batch": row.BatchNumber, "reason": reason}).Warn("row failed promotion")
		}

		records := make([]domain.MasterRecord, 0, len(rows))
		for i := range rows {
			row := &rows[i]
			row.BatchNumber = next.BatchCount
			master, err := domain.Normalize(row.Record, domain.Origin{JobID: next.JobID, SheetID: next.ID, RowNumber: row.RowNumber})
			if err != nil {
				demote(row, err.Error())
				continue
			}
			row.Normalized = &master
			records = append(records, master)
		}

		result := domain.PromotionResult{}
		if len(records) > 0 {
			result, err = e.master.Promote(ctx, records)
			if err != nil {
				return fmt.Errorf("insert master records: %w", err)
			}
		}

		for i := range rows {
			row := &rows[i]
			if row.Status != domain.RowValid {
				continue
			}
			outcome, ok := result[row.DuplicateKey]
			switch {
			case !ok:
				demote(row, "master store returned no outcome")
			case outcome.Status == domain.PromotionInserted,
				outcome.Status == domain.PromotionConflict && outcome.OwnerSheetID == next.ID:
				row.InsertedToMaster = true
				row.InsertedAt = &now
				next.RecordPromoted()
			case outcome.Status == domain.PromotionConflict:
				row.MasterDataExists = true
				next.DemoteToExisting()
			default:
				demote(row, strings.TrimSpace("master store rejected row: "+outcome.Reason))
			}
		}

		next.LastPromotedRow = rows[len(rows)-1].RowNumber
		next.Touch(now)
		if err := e.staging.CommitPromoted(ctx, next, rows, rowErrs); err != nil {
			return fmt.Errorf("commit promoted rows: %w", err)
		}
		*sheet = next
		log.WithFields(logrus.Fields{"batch": sheet.BatchCount, "row": sheet.LastPromotedRow, "promoted": sheet.PromotedRows}).
			Debug("promotion batch committed")
	}
}

// checkActive is the cooperative cancellation point between batches.
func (e *Engine) checkActive(ctx context.Context, sheet domain.Sheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := e.sheets.Get(ctx, sheet.ID)
	if err != nil {
		return fmt.Errorf("reload sheet: %w", err)
	}
	if current.Status == domain.SheetCancelled {
		return domain.ErrSheetCancelled
	}
	if current.LeaseToken != sheet.LeaseToken || current.Status.Terminal() {
		return domain.ErrLeaseLost
	}
	return nil
}

func (e *Engine) transition(ctx context.Context, sheet *domain.Sheet, to domain.SheetStatus) error {
	from := sheet.Status
	if err := domain.CheckTransition(from, to); err != nil {
		return err
	}
	now := e.cfg.Clock()
	next := *sheet
	next.Status = to
	if to.Terminal() {
		next.CompletedAt = &now
	}
	next.Touch(now)
	if err := e.sheets.Transition(ctx, next, from); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	*sheet = next
	if to.Terminal() {
		e.refreshJob(ctx, sheet.JobID)
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, sheet *domain.Sheet, cause error) error {
	message := cause.Error()
	if errors.Is(cause, domain.ErrCorruptStagingRow) {
		message = "data corruption: " + message
	}
	sheet.ErrorMessage = truncateReason(message)
	return e.transition(ctx, sheet, domain.SheetFailed)
}

func (e *Engine) refreshJob(ctx context.Context, jobID string) {
	if _, err := refreshJobStatus(ctx, e.jobs, jobID); err != nil {
		e.log.WithError(err).WithField("job_id", jobID).Warn("failed to refresh job status")
	}
}

func counterFields(c domain.Counters) logrus.Fields {
	return logrus.Fields{
		"total":     c.TotalRows,
		"processed": c.ProcessedRows,
		"valid":     c.ValidRows,
		"invalid":   c.InvalidRows,
		"skipped":   c.SkippedRows,
		"duplicate": c.DuplicateRows,
		"existing":  c.ExistingRows,
		"promoted":  c.PromotedRows,
	}
}

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
