package repository

import (
	"fmt"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/models"
)

func toJobModel(job domain.Job) models.MigrationJob {
	row := models.MigrationJob{
		ID:         job.ID,
		FileName:   job.FileName,
		FileKey:    job.FileKey,
		FileSize:   job.FileSize,
		FileSHA256: job.FileSHA256,
		Status:     string(job.Status),
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	for _, sheet := range job.Sheets {
		row.Sheets = append(row.Sheets, toSheetModel(sheet))
	}
	return row
}

func toJob(row models.MigrationJob) (domain.Job, error) {
	job := domain.Job{
		ID:         row.ID,
		FileName:   row.FileName,
		FileKey:    row.FileKey,
		FileSize:   row.FileSize,
		FileSHA256: row.FileSHA256,
		Status:     domain.JobStatus(row.Status),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	for _, sheetRow := range row.Sheets {
		sheet, err := toSheet(sheetRow)
		if err != nil {
			return domain.Job{}, err
		}
		job.Sheets = append(job.Sheets, sheet)
	}
	return job, nil
}

func toSheetModel(sheet domain.Sheet) models.MigrationSheet {
	return models.MigrationSheet{
		ID:               sheet.ID,
		JobID:            sheet.JobID,
		Name:             sheet.Name,
		SheetType:        string(sheet.Type),
		Status:           string(sheet.Status),
		TotalRows:        sheet.TotalRows,
		ProcessedRows:    sheet.ProcessedRows,
		ValidRows:        sheet.ValidRows,
		InvalidRows:      sheet.InvalidRows,
		SkippedRows:      sheet.SkippedRows,
		DuplicateRows:    sheet.DuplicateRows,
		ExistingRows:     sheet.ExistingRows,
		PromotedRows:     sheet.PromotedRows,
		ProgressPercent:  sheet.ProgressPercent,
		LastStagedRow:    sheet.LastStagedRow,
		StagingComplete:  sheet.StagingComplete,
		LastProcessedRow: sheet.LastProcessedRow,
		LastPromotedRow:  sheet.LastPromotedRow,
		BatchCount:       sheet.BatchCount,
		LeaseToken:       sheet.LeaseToken,
		AwaitingWorker:   sheet.AwaitingWorker,
		RecoveryAttempts: sheet.RecoveryAttempts,
		ErrorMessage:     nullableText(sheet.ErrorMessage),
		StartedAt:        sheet.StartedAt,
		CompletedAt:      sheet.CompletedAt,
		LastHeartbeat:    sheet.LastHeartbeat,
		CreatedAt:        sheet.CreatedAt,
		UpdatedAt:        sheet.UpdatedAt,
	}
}

func toSheet(row models.MigrationSheet) (domain.Sheet, error) {
	sheetType, err := domain.ParseSheetType(row.SheetType)
	if err != nil {
		return domain.Sheet{}, fmt.Errorf("sheet %s: %w", row.ID, err)
	}
	status, err := domain.ParseSheetStatus(row.Status)
	if err != nil {
		return domain.Sheet{}, fmt.Errorf("sheet %s: %w", row.ID, err)
	}

	sheet := domain.Sheet{
		ID:     row.ID,
		JobID:  row.JobID,
		Name:   row.Name,
		Type:   sheetType,
		Status: status,
		Counters: domain.Counters{
			TotalRows:     row.TotalRows,
			ProcessedRows: row.ProcessedRows,
			ValidRows:     row.ValidRows,
			InvalidRows:   row.InvalidRows,
			SkippedRows:   row.SkippedRows,
			DuplicateRows: row.DuplicateRows,
			ExistingRows:  row.ExistingRows,
			PromotedRows:  row.PromotedRows,
		},
		ProgressPercent:  row.ProgressPercent,
		LastStagedRow:    row.LastStagedRow,
		StagingComplete:  row.StagingComplete,
		LastProcessedRow: row.LastProcessedRow,
		LastPromotedRow:  row.LastPromotedRow,
		BatchCount:       row.BatchCount,
		LeaseToken:       row.LeaseToken,
		AwaitingWorker:   row.AwaitingWorker,
		RecoveryAttempts: row.RecoveryAttempts,
		StartedAt:        utcPtr(row.StartedAt),
		CompletedAt:      utcPtr(row.CompletedAt),
		LastHeartbeat:    utcPtr(row.LastHeartbeat),
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if row.ErrorMessage != nil {
		sheet.ErrorMessage = *row.ErrorMessage
	}
	return sheet, nil
}

// sheetColumns are the columns a sheet write replaces. Maps keep zero values that
// struct updates would skip.
func sheetColumns(sheet domain.Sheet) map[string]any {
	return map[string]any{
		"status":             string(sheet.Status),
		"total_rows":         sheet.TotalRows,
		"processed_rows":     sheet.ProcessedRows,
		"valid_rows":         sheet.ValidRows,
		"invalid_rows":       sheet.InvalidRows,
		"skipped_rows":       sheet.SkippedRows,
		"duplicate_rows":     sheet.DuplicateRows,
		"existing_rows":      sheet.ExistingRows,
		"promoted_rows":      sheet.PromotedRows,
		"progress_percent":   sheet.ProgressPercent,
		"last_staged_row":    sheet.LastStagedRow,
		"staging_complete":   sheet.StagingComplete,
		"last_processed_row": sheet.LastProcessedRow,
		"last_promoted_row":  sheet.LastPromotedRow,
		"batch_count":        sheet.BatchCount,
		"lease_token":        sheet.LeaseToken,
		"awaiting_worker":    sheet.AwaitingWorker,
		"recovery_attempts":  sheet.RecoveryAttempts,
		"error_message":      nullableText(sheet.ErrorMessage),
		"started_at":         sheet.StartedAt,
		"completed_at":       sheet.CompletedAt,
		"last_heartbeat":     sheet.LastHeartbeat,
		"updated_at":         sheet.UpdatedAt,
	}
}

func statusStrings(statuses ...domain.SheetStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
