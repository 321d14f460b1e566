package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/models"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// newTestDB returns an in-memory SQLite database with the gorm models migrated. A
// single connection keeps every statement on the same memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func sequentialIDs(prefix int) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-%04d-%012d", prefix, n)
	}
}

// seedJob stores a job with one PENDING sheet per name, in order.
func seedJob(t *testing.T, db *gorm.DB, prefix int, names ...string) domain.Job {
	t.Helper()

	newID := sequentialIDs(prefix)
	detected := make([]domain.DetectedSheet, 0, len(names))
	for _, name := range names {
		sheetType, err := domain.SheetTypeForName(name)
		require.NoError(t, err)
		detected = append(detected, domain.DetectedSheet{Name: name, Type: sheetType})
	}
	file := domain.StoredFile{Name: "archive.xlsx", Key: "uploads/archive.xlsx", Size: 2048, SHA256: "abc123"}
	job := domain.NewJob(newID(), file, detected, newID, baseTime)
	require.NoError(t, repository.NewJobRepository(db).Create(context.Background(), job))
	return job
}

// claimSheet moves the sheet to PROCESSING under lease.
func claimSheet(t *testing.T, db *gorm.DB, sheet domain.Sheet, lease string) domain.Sheet {
	t.Helper()

	started := baseTime
	sheet.Status = domain.SheetProcessing
	sheet.LeaseToken = lease
	sheet.StartedAt = &started
	sheet.LastHeartbeat = &started
	require.NoError(t, db.Model(&models.MigrationSheet{}).
		Where("id = ?", sheet.ID).
		Updates(map[string]any{
			"status":         string(sheet.Status),
			"lease_token":    lease,
			"started_at":     started,
			"last_heartbeat": started,
		}).Error)
	return sheet
}

func cifRecord(cif, disbursed string) *domain.CIFRecord {
	return &domain.CIFRecord{
		UnitCode:           "HN01",
		CIF:                cif,
		CustomerName:       "Nguyễn Văn A",
		DocumentFlow:       "Giải ngân",
		CreditTermCategory: "Ngắn hạn",
		DocumentType:       "Hồ sơ vay",
		DisbursementDate:   disbursed,
		BoxCode:            "BOX-001",
	}
}

func stagedRows(sheet domain.Sheet, from, to int) []domain.StagingRow {
	rows := make([]domain.StagingRow, 0, to-from+1)
	for n := from; n <= to; n++ {
		rows = append(rows, domain.StagingRow{
			JobID:       sheet.JobID,
			SheetID:     sheet.ID,
			RowNumber:   n,
			BatchNumber: 1,
			Record:      cifRecord(fmt.Sprintf("CIF%03d", n), "01/02/2024"),
			Status:      domain.RowPending,
			CreatedAt:   baseTime,
		})
	}
	return rows
}
