package migration

import (
	"fmt"
	"strings"
)

// Record is one parsed worksheet row of a known sheet type. Values are the raw cell
// text after trimming and NFC normalization.
type Record interface {
	SheetType() SheetType
	Value(field Field) string
	// DuplicateKey is the natural business key shared by rows describing the same
	// master record.
	DuplicateKey() string
}

type ContractRecord struct {
	UnitCode           string
	ContractNumber     string
	CIF                string
	CustomerName       string
	DocumentFlow       string
	CreditTermCategory string
	DocumentType       string
	DisbursementDate   string
	DueDate            string
	DestructionDate    string
	BoxCode            string
}

type CIFRecord struct {
	UnitCode           string
	CIF                string
	CustomerName       string
	DocumentFlow       string
	CreditTermCategory string
	DocumentType       string
	DisbursementDate   string
	DueDate            string
	DestructionDate    string
	BoxCode            string
}

type VolumeRecord struct {
	UnitCode               string
	DeliveryResponsibility string
	OccurrenceMonth        string
	Product                string
	BoxCode                string
	VolumeCount            string
	Notes                  string
}

// NewRecord builds the record shape of sheetType from mapped values.
func NewRecord(sheetType SheetType, values map[Field]string) Record {
	switch sheetType {
	case SheetTypeContract:
		return &ContractRecord{
			UnitCode:           values[FieldUnitCode],
			ContractNumber:     values[FieldContractNumber],
			CIF:                values[FieldCIF],
			CustomerName:       values[FieldCustomerName],
			DocumentFlow:       values[FieldDocumentFlow],
			CreditTermCategory: values[FieldCreditTermCategory],
			DocumentType:       values[FieldDocumentType],
			DisbursementDate:   values[FieldDisbursementDate],
			DueDate:            values[FieldDueDate],
			DestructionDate:    values[FieldDestructionDate],
			BoxCode:            values[FieldBoxCode],
		}
	case SheetTypeCIF:
		return &CIFRecord{
			UnitCode:           values[FieldUnitCode],
			CIF:                values[FieldCIF],
			CustomerName:       values[FieldCustomerName],
			DocumentFlow:       values[FieldDocumentFlow],
			CreditTermCategory: values[FieldCreditTermCategory],
			DocumentType:       values[FieldDocumentType],
			DisbursementDate:   values[FieldDisbursementDate],
			DueDate:            values[FieldDueDate],
			DestructionDate:    values[FieldDestructionDate],
			BoxCode:            values[FieldBoxCode],
		}
	case SheetTypeVolume:
		return &VolumeRecord{
			UnitCode:               values[FieldUnitCode],
			DeliveryResponsibility: values[FieldDeliveryResponsibility],
			OccurrenceMonth:        values[FieldOccurrenceMonth],
			Product:                values[FieldProduct],
			BoxCode:                values[FieldBoxCode],
			VolumeCount:            values[FieldVolumeCount],
			Notes:                  values[FieldNotes],
		}
	default:
		panic(fmt.Sprintf("unhandled sheet type %q", string(sheetType)))
	}
}

// RawData renders the record keyed by worksheet header, for operator diagnostics.
func RawData(record Record) map[string]string {
	columns := record.SheetType().Columns()
	raw := make(map[string]string, len(columns))
	for _, column := range columns {
		raw[column.Header] = record.Value(column.Field)
	}
	return raw
}

func (*ContractRecord) SheetType() SheetType { return SheetTypeContract }

func (r *ContractRecord) Value(field Field) string {
	switch field {
	case FieldUnitCode:
		return r.UnitCode
	case FieldContractNumber:
		return r.ContractNumber
	case FieldCIF:
		return r.CIF
	case FieldCustomerName:
		return r.CustomerName
	case FieldDocumentFlow:
		return r.DocumentFlow
	case FieldCreditTermCategory:
		return r.CreditTermCategory
	case FieldDocumentType:
		return r.DocumentType
	case FieldDisbursementDate:
		return r.DisbursementDate
	case FieldDueDate:
		return r.DueDate
	case FieldDestructionDate:
		return r.DestructionDate
	case FieldBoxCode:
		return r.BoxCode
	}
	return ""
}

func (r *ContractRecord) DuplicateKey() string {
	return composeKey(SheetTypeContract, r.ContractNumber, r.DocumentType)
}

func (*CIFRecord) SheetType() SheetType { return SheetTypeCIF }

func (r *CIFRecord) Value(field Field) string {
	switch field {
	case FieldUnitCode:
		return r.UnitCode
	case FieldCIF:
		return r.CIF
	case FieldCustomerName:
		return r.CustomerName
	case FieldDocumentFlow:
		return r.DocumentFlow
	case FieldCreditTermCategory:
		return r.CreditTermCategory
	case FieldDocumentType:
		return r.DocumentType
	case FieldDisbursementDate:
		return r.DisbursementDate
	case FieldDueDate:
		return r.DueDate
	case FieldDestructionDate:
		return r.DestructionDate
	case FieldBoxCode:
		return r.BoxCode
	}
	return ""
}

// DuplicateKey uses the ISO form of the disbursement date so that 01/02/2024 and
// 1/2/2024 produce the same key.
func (r *CIFRecord) DuplicateKey() string {
	disbursed := r.DisbursementDate
	if parsed, err := ParseDate(disbursed); err == nil {
		disbursed = parsed.Format(isoDate)
	}
	return composeKey(SheetTypeCIF, r.CIF, disbursed, r.DocumentType)
}

func (*VolumeRecord) SheetType() SheetType { return SheetTypeVolume }

func (r *VolumeRecord) Value(field Field) string {
	switch field {
	case FieldUnitCode:
		return r.UnitCode
	case FieldDeliveryResponsibility:
		return r.DeliveryResponsibility
	case FieldOccurrenceMonth:
		return r.OccurrenceMonth
	case FieldProduct:
		return r.Product
	case FieldBoxCode:
		return r.BoxCode
	case FieldVolumeCount:
		return r.VolumeCount
	case FieldNotes:
		return r.Notes
	}
	return ""
}

func (r *VolumeRecord) DuplicateKey() string {
	month := r.OccurrenceMonth
	if parsed, err := ParseMonth(month); err == nil {
		month = parsed.Format(isoMonth)
	}
	return composeKey(SheetTypeVolume, r.UnitCode, r.DeliveryResponsibility, month, r.Product)
}

func composeKey(sheetType SheetType, parts ...string) string {
	normalized := make([]string, 0, len(parts)+1)
	normalized = append(normalized, string(sheetType))
	for _, part := range parts {
		normalized = append(normalized, strings.ToUpper(NormalizeText(part)))
	}
	return strings.Join(normalized, "|")
}
