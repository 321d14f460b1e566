package repository

import (
	"context"
	"fmt"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/models"
	"gorm.io/gorm"
)

const insertBatchSize = 500

// StagingRepository persists staging rows in one table per sheet type. Every commit
// writes its rows and the sheet checkpoint in a single transaction fenced on the
// sheet lease.
type StagingRepository struct {
	db *gorm.DB
}

func NewStagingRepository(db *gorm.DB) *StagingRepository {
	return &StagingRepository{db: db}
}

func (r *StagingRepository) CommitStaged(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow) error {
	table, err := tableFor(sheet.Type)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fencedUpdate(tx, sheet, workerOwned, sheetColumns(sheet)); err != nil {
			return err
		}
		return table.upsert(tx, rows)
	})
}

func (r *StagingRepository) CommitValidated(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	return r.commitOutcome(ctx, sheet, rows, errs)
}

func (r *StagingRepository) CommitPromoted(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	return r.commitOutcome(ctx, sheet, rows, errs)
}

func (r *StagingRepository) commitOutcome(ctx context.Context, sheet domain.Sheet, rows []domain.StagingRow, errs []domain.RowError) error {
	table, err := tableFor(sheet.Type)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fencedUpdate(tx, sheet, workerOwned, sheetColumns(sheet)); err != nil {
			return err
		}
		for _, row := range rows {
			if err := table.updateMeta(tx, row); err != nil {
				return err
			}
		}
		return insertRowErrors(tx, errs)
	})
}

// NextForValidation returns staged rows after the validation checkpoint.
func (r *StagingRepository) NextForValidation(ctx context.Context, sheet domain.Sheet, limit int) ([]domain.StagingRow, error) {
	table, err := tableFor(sheet.Type)
	if err != nil {
		return nil, err
	}
	return table.find(r.db.WithContext(ctx).
		Where("sheet_id = ? AND row_number > ? AND row_number <= ?", sheet.ID, sheet.LastProcessedRow, sheet.LastStagedRow).
		Limit(limit))
}

// KnownKeys returns the duplicate keys of rows already validated, so dedup can resume
// mid-sheet.
func (r *StagingRepository) KnownKeys(ctx context.Context, sheet domain.Sheet) ([]string, error) {
	table, err := tableFor(sheet.Type)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = r.db.WithContext(ctx).Table(table.name()).
		Where("sheet_id = ? AND row_number <= ? AND duplicate_key <> ''", sheet.ID, sheet.LastProcessedRow).
		Order("row_number").
		Pluck("duplicate_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("load known keys: %w", err)
	}
	return keys, nil
}

func (r *StagingRepository) NextForPromotion(ctx context.Context, sheet domain.Sheet, limit int) ([]domain.StagingRow, error) {
	table, err := tableFor(sheet.Type)
	if err != nil {
		return nil, err
	}
	return table.find(promotable(r.db.WithContext(ctx), sheet.ID).
		Where("row_number > ?", sheet.LastPromotedRow).
		Limit(limit))
}

func (r *StagingRepository) Stats(ctx context.Context, sheet domain.Sheet) (domain.StagingStats, error) {
	table, err := tableFor(sheet.Type)
	if err != nil {
		return domain.StagingStats{}, err
	}
	db := r.db.WithContext(ctx)

	var stats domain.StagingStats
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&stats.Staged, db.Table(table.name()).Where("sheet_id = ? AND row_number <= ?", sheet.ID, sheet.LastStagedRow)},
		{&stats.Validated, db.Table(table.name()).Where("sheet_id = ? AND status <> ?", sheet.ID, string(domain.RowPending))},
		{&stats.Promotable, promotable(db.Table(table.name()), sheet.ID)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return domain.StagingStats{}, fmt.Errorf("count staging rows: %w", err)
		}
	}
	return stats, nil
}

func promotable(tx *gorm.DB, sheetID string) *gorm.DB {
	return tx.Where("sheet_id = ? AND status = ? AND is_duplicate = ? AND master_data_exists = ? AND inserted_to_master = ?",
		sheetID, string(domain.RowValid), false, false, false)
}

func tableFor(sheetType domain.SheetType) (stagingTable, error) {
	table, ok := stagingTables[sheetType]
	if !ok {
		return nil, fmt.Errorf("no staging table for sheet type %q", string(sheetType))
	}
	return table, nil
}

var stagingTables = map[domain.SheetType]stagingTable{
	domain.SheetTypeContract: typedTable[models.StagingContractRow]{
		table:    models.StagingContractRow{}.TableName(),
		toModel:  contractModel,
		toDomain: contractRow,
	},
	domain.SheetTypeCIF: typedTable[models.StagingCIFRow]{
		table:    models.StagingCIFRow{}.TableName(),
		toModel:  cifModel,
		toDomain: cifRow,
	},
	domain.SheetTypeVolume: typedTable[models.StagingVolumeRow]{
		table:    models.StagingVolumeRow{}.TableName(),
		toModel:  volumeModel,
		toDomain: volumeRow,
	},
}
