package migration

import "time"

// StagingRow is the durable copy of one source row as it moves through validation and
// promotion.
type StagingRow struct {
	ID          string
	JobID       string
	SheetID     string
	RowNumber   int
	BatchNumber int
	Record      Record

	Status           RowStatus
	Errors           []FieldError
	Normalized       *MasterRecord
	DuplicateKey     string
	IsDuplicate      bool
	MasterDataExists bool
	InsertedToMaster bool
	InsertedAt       *time.Time
	CreatedAt        time.Time
}

// Promotable reports whether the row still has to be inserted into the master store.
func (r StagingRow) Promotable() bool {
	return r.Status == RowValid && !r.IsDuplicate && !r.MasterDataExists && !r.InsertedToMaster
}

// RowError is a persisted row-level error, queryable by job or sheet.
type RowError struct {
	ID          string
	JobID       string
	SheetID     string
	SheetName   string
	RowNumber   int
	BatchNumber int
	Code        ErrorCode
	Field       Field
	Message     string
	Rule        string
	RawData     map[string]string
	CreatedAt   time.Time
}

// RowErrors expands the field errors of a staging row.
func RowErrors(sheet Sheet, row StagingRow, errs []FieldError, now time.Time) []RowError {
	raw := RawData(row.Record)
	out := make([]RowError, 0, len(errs))
	for _, fieldErr := range errs {
		out = append(out, RowError{
			JobID:       sheet.JobID,
			SheetID:     sheet.ID,
			SheetName:   sheet.Name,
			RowNumber:   row.RowNumber,
			BatchNumber: row.BatchNumber,
			Code:        fieldErr.Code,
			Field:       fieldErr.Field,
			Message:     fieldErr.Message,
			Rule:        fieldErr.Rule,
			RawData:     raw,
			CreatedAt:   now,
		})
	}
	return out
}

// StagingStats summarizes the staging rows of a sheet for integrity checks.
type StagingStats struct {
	// Staged counts rows up to the sheet's LastStagedRow.
	Staged     int64
	Validated  int64
	Promotable int64
}

// RepairPlan is what recovery must do before a stalled sheet can resume.
type RepairPlan int

const (
	RepairNone RepairPlan = iota
	// RepairRestage re-reads source rows after the validation checkpoint.
	RepairRestage
	// RepairReset reprocesses the sheet from its first row.
	RepairReset
)

func (p RepairPlan) String() string {
	switch p {
	case RepairNone:
		return "resume"
	case RepairRestage:
		return "restage"
	case RepairReset:
		return "reset"
	default:
		return "unknown"
	}
}

// PlanRepair compares the sheet checkpoint with what staging actually holds.
func PlanRepair(s Sheet, stats StagingStats) RepairPlan {
	if stats.Validated != s.ProcessedRows {
		return RepairReset
	}
	switch s.Status {
	case SheetValidated:
		if stats.Staged != s.TotalRows || stats.Promotable != s.ValidRows-s.PromotedRows {
			return RepairReset
		}
	default:
		if stats.Staged != s.TotalRows {
			return RepairRestage
		}
	}
	return RepairNone
}

// Page selects one page of a listing. Number starts at 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

type ErrorPage struct {
	Items    []RowError
	Total    int64
	Page     int
	PageSize int
}

type PromotionStatus int

const (
	PromotionInserted PromotionStatus = iota
	// PromotionConflict means the key already exists; OwnerSheetID tells who promoted it.
	PromotionConflict
	// PromotionRejected means the store refused the row itself.
	PromotionRejected
)

type PromotionOutcome struct {
	Status       PromotionStatus
	OwnerSheetID string
	Reason       string
}

// PromotionResult is keyed by duplicate key.
type PromotionResult map[string]PromotionOutcome
