package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/models"
	"gorm.io/gorm"
)

type ErrorRepository struct {
	db *gorm.DB
}

func NewErrorRepository(db *gorm.DB) *ErrorRepository {
	return &ErrorRepository{db: db}
}

// ListByJob pages through the row errors of every sheet of the job, grouped by sheet.
func (r *ErrorRepository) ListByJob(ctx context.Context, jobID string, page domain.Page) (domain.ErrorPage, error) {
	query := r.db.WithContext(ctx).Model(&models.MigrationRowError{}).Where("job_id = ?", jobID)
	return listRowErrors(query, page, "sheet_name, row_number, created_at, id")
}

func (r *ErrorRepository) ListBySheet(ctx context.Context, sheetID string, page domain.Page) (domain.ErrorPage, error) {
	query := r.db.WithContext(ctx).Model(&models.MigrationRowError{}).Where("sheet_id = ?", sheetID)
	return listRowErrors(query, page, "row_number, created_at, id")
}

func listRowErrors(query *gorm.DB, page domain.Page, order string) (domain.ErrorPage, error) {
	result := domain.ErrorPage{Page: page.Number, PageSize: page.Size}
	if err := query.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		return domain.ErrorPage{}, fmt.Errorf("count row errors: %w", err)
	}

	var rows []models.MigrationRowError
	err := query.Order(order).Offset(page.Offset()).Limit(page.Size).Find(&rows).Error
	if err != nil {
		return domain.ErrorPage{}, fmt.Errorf("list row errors: %w", err)
	}

	result.Items = make([]domain.RowError, 0, len(rows))
	for _, row := range rows {
		rowErr, err := toRowError(row)
		if err != nil {
			return domain.ErrorPage{}, err
		}
		result.Items = append(result.Items, rowErr)
	}
	return result, nil
}

func insertRowErrors(tx *gorm.DB, errs []domain.RowError) error {
	if len(errs) == 0 {
		return nil
	}
	rows := make([]models.MigrationRowError, 0, len(errs))
	for _, rowErr := range errs {
		row, err := toRowErrorModel(rowErr)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert row errors: %w", err)
	}
	return nil
}

func toRowErrorModel(rowErr domain.RowError) (models.MigrationRowError, error) {
	raw, err := json.Marshal(rowErr.RawData)
	if err != nil {
		return models.MigrationRowError{}, fmt.Errorf("encode raw row data: %w", err)
	}
	id := rowErr.ID
	if id == "" {
		id = uuid.NewString()
	}
	return models.MigrationRowError{
		ID:          id,
		JobID:       rowErr.JobID,
		SheetID:     rowErr.SheetID,
		SheetName:   rowErr.SheetName,
		RowNumber:   rowErr.RowNumber,
		BatchNumber: rowErr.BatchNumber,
		Code:        string(rowErr.Code),
		Field:       string(rowErr.Field),
		Message:     rowErr.Message,
		Rule:        rowErr.Rule,
		RawData:     raw,
		CreatedAt:   rowErr.CreatedAt,
	}, nil
}

func toRowError(row models.MigrationRowError) (domain.RowError, error) {
	rowErr := domain.RowError{
		ID:          row.ID,
		JobID:       row.JobID,
		SheetID:     row.SheetID,
		SheetName:   row.SheetName,
		RowNumber:   row.RowNumber,
		BatchNumber: row.BatchNumber,
		Code:        domain.ErrorCode(row.Code),
		Field:       domain.Field(row.Field),
		Message:     row.Message,
		Rule:        row.Rule,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if len(row.RawData) > 0 {
		if err := json.Unmarshal(row.RawData, &rowErr.RawData); err != nil {
			return domain.RowError{}, fmt.Errorf("decode raw row data of error %s: %w", row.ID, err)
		}
	}
	return rowErr, nil
}
