package models

import (
	"time"

	"gorm.io/datatypes"
)

// StagingMeta is the processing state shared by every staging table. The sheet id and
// row number live on the concrete models because SQLite index names are global.
type StagingMeta struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	JobID            string         `gorm:"type:uuid;index;not null"`
	BatchNumber      int            `gorm:"not null;default:0"`
	Status           string         `gorm:"type:text;not null"`
	Errors           datatypes.JSON `gorm:"column:validation_errors"`
	Normalized       datatypes.JSON `gorm:"column:normalized_data"`
	DuplicateKey     string         `gorm:"type:text;not null;default:''"`
	IsDuplicate      bool           `gorm:"not null;default:false"`
	MasterDataExists bool           `gorm:"not null;default:false"`
	InsertedToMaster bool           `gorm:"not null;default:false"`
	InsertedAt       *time.Time
	CreatedAt        time.Time
}

type StagingContractRow struct {
	StagingMeta        `gorm:"embedded"`
	SheetID            string `gorm:"type:uuid;not null;uniqueIndex:ux_staging_contract_sheet_row,priority:1"`
	RowNumber          int    `gorm:"not null;uniqueIndex:ux_staging_contract_sheet_row,priority:2"`
	UnitCode           string `gorm:"type:text"`
	ContractNumber     string `gorm:"type:text"`
	CIF                string `gorm:"column:cif;type:text"`
	CustomerName       string `gorm:"type:text"`
	DocumentFlow       string `gorm:"type:text"`
	CreditTermCategory string `gorm:"type:text"`
	DocumentType       string `gorm:"type:text"`
	DisbursementDate   string `gorm:"type:text"`
	DueDate            string `gorm:"type:text"`
	DestructionDate    string `gorm:"type:text"`
	BoxCode            string `gorm:"type:text"`
}

func (StagingContractRow) TableName() string {
	return "staging_contract_rows"
}

type StagingCIFRow struct {
	StagingMeta        `gorm:"embedded"`
	SheetID            string `gorm:"type:uuid;not null;uniqueIndex:ux_staging_cif_sheet_row,priority:1"`
	RowNumber          int    `gorm:"not null;uniqueIndex:ux_staging_cif_sheet_row,priority:2"`
	UnitCode           string `gorm:"type:text"`
	CIF                string `gorm:"column:cif;type:text"`
	CustomerName       string `gorm:"type:text"`
	DocumentFlow       string `gorm:"type:text"`
	CreditTermCategory string `gorm:"type:text"`
	DocumentType       string `gorm:"type:text"`
	DisbursementDate   string `gorm:"type:text"`
	DueDate            string `gorm:"type:text"`
	DestructionDate    string `gorm:"type:text"`
	BoxCode            string `gorm:"type:text"`
}

func (StagingCIFRow) TableName() string {
	return "staging_cif_rows"
}

type StagingVolumeRow struct {
	StagingMeta            `gorm:"embedded"`
	SheetID                string `gorm:"type:uuid;not null;uniqueIndex:ux_staging_volume_sheet_row,priority:1"`
	RowNumber              int    `gorm:"not null;uniqueIndex:ux_staging_volume_sheet_row,priority:2"`
	UnitCode               string `gorm:"type:text"`
	DeliveryResponsibility string `gorm:"type:text"`
	OccurrenceMonth        string `gorm:"type:text"`
	Product                string `gorm:"type:text"`
	BoxCode                string `gorm:"type:text"`
	VolumeCount            string `gorm:"type:text"`
	Notes                  string `gorm:"type:text"`
}

func (StagingVolumeRow) TableName() string {
	return "staging_volume_rows"
}

// All lists every gorm-managed model, for AutoMigrate in tests and local runs.
func All() []any {
	return []any{
		&MigrationJob{},
		&MigrationSheet{},
		&MigrationRowError{},
		&StagingContractRow{},
		&StagingCIFRow{},
		&StagingVolumeRow{},
	}
}
