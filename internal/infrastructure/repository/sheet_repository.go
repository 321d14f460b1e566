package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/models"
	"gorm.io/gorm"
)

const claimCandidates = 8

var workerOwned = statusStrings(domain.SheetProcessing, domain.SheetValidated)

type SheetRepository struct {
	db *gorm.DB
}

func NewSheetRepository(db *gorm.DB) *SheetRepository {
	return &SheetRepository{db: db}
}

func (r *SheetRepository) Get(ctx context.Context, sheetID string) (domain.Sheet, error) {
	return getSheet(r.db.WithContext(ctx), sheetID)
}

func getSheet(tx *gorm.DB, sheetID string) (domain.Sheet, error) {
	var row models.MigrationSheet
	if err := tx.First(&row, "id = ?", sheetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Sheet{}, domain.ErrSheetNotFound
		}
		return domain.Sheet{}, fmt.Errorf("get sheet: %w", err)
	}
	return toSheet(row)
}

// ClaimNext takes the next claimable sheet: first those re-queued by recovery, then
// the oldest PENDING one. Concurrent claimers race on a conditional update, so a sheet
// is handed out once.
func (r *SheetRepository) ClaimNext(ctx context.Context, leaseToken string, now time.Time) (*domain.Sheet, error) {
	db := r.db.WithContext(ctx)

	var rows []models.MigrationSheet
	err := db.
		Where("status = ? OR (awaiting_worker = ? AND status IN ?)", string(domain.SheetPending), true, workerOwned).
		Order("awaiting_worker DESC, created_at, id").
		Limit(claimCandidates).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list claimable sheets: %w", err)
	}

	for _, row := range rows {
		sheet, err := toSheet(row)
		if err != nil {
			return nil, err
		}
		ok, err := claimUpdate(db, sheet, leaseToken, now)
		if err != nil {
			return nil, err
		}
		if ok {
			sheet.Claim(leaseToken, now)
			return &sheet, nil
		}
	}
	return nil, nil
}

// Claim takes one specific sheet if it is claimable. It returns nil when the sheet is
// running, finished or was claimed by someone else first.
func (r *SheetRepository) Claim(ctx context.Context, sheetID, leaseToken string, now time.Time) (*domain.Sheet, error) {
	db := r.db.WithContext(ctx)
	sheet, err := getSheet(db, sheetID)
	if err != nil {
		return nil, err
	}
	if !sheet.Claimable() {
		return nil, nil
	}
	ok, err := claimUpdate(db, sheet, leaseToken, now)
	if err != nil || !ok {
		return nil, err
	}
	sheet.Claim(leaseToken, now)
	return &sheet, nil
}

func (r *SheetRepository) Heartbeat(ctx context.Context, sheet domain.Sheet) error {
	return fencedUpdate(r.db.WithContext(ctx), sheet, workerOwned, map[string]any{
		"last_heartbeat":   sheet.LastHeartbeat,
		"progress_percent": sheet.ProgressPercent,
		"updated_at":       sheet.UpdatedAt,
	})
}

func (r *SheetRepository) Transition(ctx context.Context, sheet domain.Sheet, from domain.SheetStatus) error {
	return fencedUpdate(r.db.WithContext(ctx), sheet, statusStrings(from), sheetColumns(sheet))
}

func (r *SheetRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Sheet, error) {
	var rows []models.MigrationSheet
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sheets of job: %w", err)
	}
	return toSheets(rows)
}

// ListStuck returns worker-owned sheets whose last heartbeat is older than cutoff.
func (r *SheetRepository) ListStuck(ctx context.Context, cutoff time.Time) ([]domain.Sheet, error) {
	var rows []models.MigrationSheet
	err := stuckScope(r.db.WithContext(ctx), cutoff).
		Order("last_heartbeat, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stuck sheets: %w", err)
	}
	return toSheets(rows)
}

// Reclaim writes the repaired sheet only while it still carries observedLease and is
// still stale. Staging is cleaned up for the repair plan in the same transaction.
func (r *SheetRepository) Reclaim(ctx context.Context, sheet domain.Sheet, observedLease string, cutoff time.Time, plan domain.RepairPlan) (bool, error) {
	var claimed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := reclaimUpdate(tx, sheet, observedLease, cutoff)
		if err != nil || !ok {
			return err
		}
		claimed = true

		table, err := tableFor(sheet.Type)
		if err != nil {
			return err
		}
		switch plan {
		case domain.RepairReset:
			if err := table.deleteFrom(tx, sheet.ID, 0); err != nil {
				return err
			}
			if err := tx.Where("sheet_id = ?", sheet.ID).Delete(&models.MigrationRowError{}).Error; err != nil {
				return fmt.Errorf("delete row errors: %w", err)
			}
		case domain.RepairRestage:
			if err := table.deleteFrom(tx, sheet.ID, sheet.LastStagedRow); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reclaim sheet: %w", err)
	}
	return claimed, nil
}

func (r *SheetRepository) FailStalled(ctx context.Context, sheet domain.Sheet, observedLease string, cutoff time.Time) (bool, error) {
	ok, err := reclaimUpdate(r.db.WithContext(ctx), sheet, observedLease, cutoff)
	if err != nil {
		return false, fmt.Errorf("fail stalled sheet: %w", err)
	}
	return ok, nil
}

// CancelJob cancels every sheet of the job that has not reached a terminal status.
// Workers notice at their next fenced write.
func (r *SheetRepository) CancelJob(ctx context.Context, jobID string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.MigrationSheet{}).
		Where("job_id = ? AND status IN ?", jobID, statusStrings(domain.CancellableStatuses...)).
		Updates(map[string]any{
			"status":          string(domain.SheetCancelled),
			"awaiting_worker": false,
			"completed_at":    now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("cancel job sheets: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// stuckScope skips sheets awaiting a worker. Their heartbeat stops on purpose.
func stuckScope(tx *gorm.DB, cutoff time.Time) *gorm.DB {
	return tx.Model(&models.MigrationSheet{}).
		Where("status IN ? AND awaiting_worker = ?", workerOwned, false).
		Where("last_heartbeat IS NULL OR last_heartbeat < ?", cutoff)
}

// claimUpdate applies Sheet.Claim only if the row still looks as observed.
func claimUpdate(tx *gorm.DB, observed domain.Sheet, leaseToken string, now time.Time) (bool, error) {
	claimed := observed
	claimed.Claim(leaseToken, now)

	res := tx.Model(&models.MigrationSheet{}).
		Where("id = ? AND status = ? AND lease_token = ? AND awaiting_worker = ?",
			observed.ID, string(observed.Status), observed.LeaseToken, observed.AwaitingWorker).
		Updates(map[string]any{
			"status":          string(claimed.Status),
			"lease_token":     claimed.LeaseToken,
			"awaiting_worker": false,
			"started_at":      claimed.StartedAt,
			"last_heartbeat":  claimed.LastHeartbeat,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim sheet: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func reclaimUpdate(tx *gorm.DB, sheet domain.Sheet, observedLease string, cutoff time.Time) (bool, error) {
	res := stuckScope(tx, cutoff).
		Where("id = ? AND lease_token = ?", sheet.ID, observedLease).
		Updates(sheetColumns(sheet))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// fencedUpdate writes columns only while the sheet still holds the caller's lease in
// one of fromStatuses.
func fencedUpdate(tx *gorm.DB, sheet domain.Sheet, fromStatuses []string, columns map[string]any) error {
	res := tx.Model(&models.MigrationSheet{}).
		Where("id = ? AND lease_token = ? AND status IN ?", sheet.ID, sheet.LeaseToken, fromStatuses).
		Updates(columns)
	if res.Error != nil {
		return fmt.Errorf("update sheet: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := getSheet(tx, sheet.ID)
	if err != nil {
		return err
	}
	if current.Status == domain.SheetCancelled {
		return domain.ErrSheetCancelled
	}
	return domain.ErrLeaseLost
}

func toSheets(rows []models.MigrationSheet) ([]domain.Sheet, error) {
	sheets := make([]domain.Sheet, 0, len(rows))
	for _, row := range rows {
		sheet, err := toSheet(row)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}
