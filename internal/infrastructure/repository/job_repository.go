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

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts the job and its sheets together.
func (r *JobRepository) Create(ctx context.Context, job domain.Job) error {
	row := toJobModel(job)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create migration job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, jobID string) (domain.Job, error) {
	var row models.MigrationJob

	err := r.db.WithContext(ctx).
		Preload("Sheets", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at, id")
		}).
		First(&row, "id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Job{}, domain.ErrJobNotFound
		}
		return domain.Job{}, fmt.Errorf("get migration job: %w", err)
	}

	return toJob(row)
}

func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	res := r.db.WithContext(ctx).Model(&models.MigrationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update migration job status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
