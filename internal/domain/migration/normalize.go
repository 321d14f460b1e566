package migration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const SourceSystemExcel = "EXCEL_MIGRATION"

// MasterRecord is the promoted, normalized form of a valid staging row.
type MasterRecord struct {
	SheetType    SheetType `json:"sheetType"`
	DuplicateKey string    `json:"duplicateKey"`

	UnitCode           string     `json:"unitCode,omitempty"`
	ContractNumber     string     `json:"contractNumber,omitempty"`
	CIF                string     `json:"cif,omitempty"`
	CustomerName       string     `json:"customerName,omitempty"`
	DocumentFlow       string     `json:"documentFlow,omitempty"`
	CreditTermCategory string     `json:"creditTermCategory,omitempty"`
	DocumentType       string     `json:"documentType,omitempty"`
	DisbursementDate   *time.Time `json:"disbursementDate,omitempty"`
	DueDate            *time.Time `json:"dueDate,omitempty"`
	DestructionDate    *time.Time `json:"destructionDate,omitempty"`
	CreditTermMonths   int        `json:"creditTermMonths,omitempty"`

	DeliveryResponsibility string `json:"deliveryResponsibility,omitempty"`
	OccurrenceMonth        string `json:"occurrenceMonth,omitempty"`
	Product                string `json:"product,omitempty"`
	VolumeCount            int    `json:"volumeCount,omitempty"`
	Notes                  string `json:"notes,omitempty"`

	BoxCode string `json:"boxCode,omitempty"`

	SourceSystem    string `json:"sourceSystem"`
	MigrationJobID  string `json:"migrationJobId"`
	SourceSheetID   string `json:"sourceSheetId"`
	SourceRowNumber int    `json:"sourceRowNumber"`
}

// Origin identifies where a promoted record came from.
type Origin struct {
	JobID     string
	SheetID   string
	RowNumber int
}

// Normalize derives the master form of a record that passed validation.
func Normalize(record Record, origin Origin) (MasterRecord, error) {
	master := MasterRecord{
		SheetType:       record.SheetType(),
		DuplicateKey:    record.DuplicateKey(),
		SourceSystem:    SourceSystemExcel,
		MigrationJobID:  origin.JobID,
		SourceSheetID:   origin.SheetID,
		SourceRowNumber: origin.RowNumber,
	}

	switch r := record.(type) {
	case *ContractRecord:
		master.ContractNumber = strings.ToUpper(r.ContractNumber)
		err := normalizeCredit(&master, creditFields{
			unitCode:     r.UnitCode,
			cif:          r.CIF,
			customerName: r.CustomerName,
			flow:         r.DocumentFlow,
			category:     r.CreditTermCategory,
			documentType: r.DocumentType,
			disbursement: r.DisbursementDate,
			due:          r.DueDate,
			destruction:  r.DestructionDate,
			boxCode:      r.BoxCode,
		})
		return master, err
	case *CIFRecord:
		err := normalizeCredit(&master, creditFields{
			unitCode:     r.UnitCode,
			cif:          r.CIF,
			customerName: r.CustomerName,
			flow:         r.DocumentFlow,
			category:     r.CreditTermCategory,
			documentType: r.DocumentType,
			disbursement: r.DisbursementDate,
			due:          r.DueDate,
			destruction:  r.DestructionDate,
			boxCode:      r.BoxCode,
		})
		return master, err
	case *VolumeRecord:
		month, err := ParseMonth(r.OccurrenceMonth)
		if err != nil {
			return MasterRecord{}, fmt.Errorf("occurrence month %q: %w", r.OccurrenceMonth, err)
		}
		count, err := ParseCount(r.VolumeCount)
		if err != nil {
			return MasterRecord{}, fmt.Errorf("volume count %q: %w", r.VolumeCount, err)
		}
		master.UnitCode = strings.ToUpper(r.UnitCode)
		master.DeliveryResponsibility = r.DeliveryResponsibility
		master.OccurrenceMonth = month.Format(isoMonth)
		master.Product = r.Product
		master.BoxCode = strings.ToUpper(r.BoxCode)
		master.VolumeCount = count
		master.Notes = r.Notes
		return master, nil
	default:
		return MasterRecord{}, fmt.Errorf("normalize: unsupported record %T", record)
	}
}

type creditFields struct {
	unitCode, cif, customerName    string
	flow, category, documentType   string
	disbursement, due, destruction string
	boxCode                        string
}

func normalizeCredit(master *MasterRecord, f creditFields) error {
	disbursed, err := ParseDate(f.disbursement)
	if err != nil {
		return fmt.Errorf("disbursement date %q: %w", f.disbursement, err)
	}
	due, err := optionalDate(f.due)
	if err != nil {
		return fmt.Errorf("due date %q: %w", f.due, err)
	}
	explicit, err := optionalDate(f.destruction)
	if err != nil {
		return fmt.Errorf("destruction date %q: %w", f.destruction, err)
	}
	destruction, err := DeriveDestructionDate(f.category, due, explicit)
	if err != nil {
		return err
	}

	master.UnitCode = strings.ToUpper(f.unitCode)
	master.CIF = strings.ToUpper(f.cif)
	master.CustomerName = f.customerName
	master.DocumentFlow = f.flow
	master.CreditTermCategory = f.category
	master.DocumentType = f.documentType
	master.DisbursementDate = &disbursed
	master.DueDate = due
	master.DestructionDate = &destruction
	master.CreditTermMonths = CreditTermMonths(disbursed, due)
	master.BoxCode = strings.ToUpper(f.boxCode)
	return nil
}

// DeriveDestructionDate prefers an explicit date. Permanent documents and documents
// without a due date get the sentinel; the rest are kept for the category's retention
// period after the due date.
func DeriveDestructionDate(category string, due, explicit *time.Time) (time.Time, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if IsPermanent(category) || due == nil {
		return SentinelDestructionDate, nil
	}
	years, ok := retentionYears[NormalizeText(category)]
	if !ok {
		return time.Time{}, fmt.Errorf("no retention period for credit term category %q", category)
	}
	return due.AddDate(years, 0, 0), nil
}

// CreditTermMonths counts whole months from disbursement to due date, at least 1.
// It is 0 when there is no due date.
func CreditTermMonths(disbursed time.Time, due *time.Time) int {
	if due == nil {
		return 0
	}
	months := (due.Year()-disbursed.Year())*12 + int(due.Month()) - int(disbursed.Month())
	if due.Day() < disbursed.Day() {
		months--
	}
	if months < 1 {
		return 1
	}
	return months
}

// ParseCount parses a positive whole number. Spreadsheet numbers such as "12.0" are
// accepted.
func ParseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("count must be positive, got %d", n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not a whole number: %q", raw)
	}
	if f <= 0 {
		return 0, fmt.Errorf("count must be positive, got %v", f)
	}
	return int(f), nil
}

func optionalDate(raw string) (*time.Time, error) {
	if isBlank(raw) {
		return nil, nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
