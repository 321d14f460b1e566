package models

import (
	"time"

	"gorm.io/datatypes"
)

type MigrationJob struct {
	ID         string           `gorm:"type:uuid;primaryKey"`
	FileName   string           `gorm:"type:text;not null"`
	FileKey    string           `gorm:"type:text;not null"`
	FileSize   int64            `gorm:"not null;default:0"`
	FileSHA256 string           `gorm:"column:file_sha256;size:64;not null"`
	Status     string           `gorm:"type:text;not null"`
	Sheets     []MigrationSheet `gorm:"foreignKey:JobID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (MigrationJob) TableName() string {
	return "migration_jobs"
}

type MigrationSheet struct {
	ID               string  `gorm:"type:uuid;primaryKey"`
	JobID            string  `gorm:"type:uuid;index;not null"`
	Name             string  `gorm:"type:text;not null"`
	SheetType        string  `gorm:"type:text;not null"`
	Status           string  `gorm:"type:text;not null;index"`
	TotalRows        int64   `gorm:"not null;default:0"`
	ProcessedRows    int64   `gorm:"not null;default:0"`
	ValidRows        int64   `gorm:"not null;default:0"`
	InvalidRows      int64   `gorm:"not null;default:0"`
	SkippedRows      int64   `gorm:"not null;default:0"`
	DuplicateRows    int64   `gorm:"not null;default:0"`
	ExistingRows     int64   `gorm:"not null;default:0"`
	PromotedRows     int64   `gorm:"not null;default:0"`
	ProgressPercent  float64 `gorm:"type:numeric(5,2);not null;default:0"`
	LastStagedRow    int     `gorm:"not null;default:0"`
	StagingComplete  bool    `gorm:"not null;default:false"`
	LastProcessedRow int     `gorm:"not null;default:0"`
	LastPromotedRow  int     `gorm:"not null;default:0"`
	BatchCount       int     `gorm:"not null;default:0"`
	LeaseToken       string  `gorm:"type:text;not null;default:''"`
	AwaitingWorker   bool    `gorm:"not null;default:false"`
	RecoveryAttempts int     `gorm:"not null;default:0"`
	ErrorMessage     *string `gorm:"type:text"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
	LastHeartbeat    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (MigrationSheet) TableName() string {
	return "migration_sheets"
}

type MigrationRowError struct {
	ID          string         `gorm:"type:uuid;primaryKey"`
	JobID       string         `gorm:"type:uuid;index;not null"`
	SheetID     string         `gorm:"type:uuid;index;not null"`
	SheetName   string         `gorm:"type:text;not null"`
	RowNumber   int            `gorm:"not null"`
	BatchNumber int            `gorm:"not null;default:0"`
	Code        string         `gorm:"type:text;not null"`
	Field       string         `gorm:"type:text;not null;default:''"`
	Message     string         `gorm:"type:text;not null"`
	Rule        string         `gorm:"type:text;not null;default:''"`
	RawData     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
}

func (MigrationRowError) TableName() string {
	return "migration_row_errors"
}
