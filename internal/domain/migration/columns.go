package migration

// Field is the stable name of a mapped business column.
type Field string

const (
	FieldUnitCode               Field = "unitCode"
	FieldContractNumber         Field = "contractNumber"
	FieldCIF                    Field = "cif"
	FieldCustomerName           Field = "customerName"
	FieldDocumentFlow           Field = "documentFlow"
	FieldCreditTermCategory     Field = "creditTermCategory"
	FieldDocumentType           Field = "documentType"
	FieldDisbursementDate       Field = "disbursementDate"
	FieldDueDate                Field = "dueDate"
	FieldDestructionDate        Field = "destructionDate"
	FieldBoxCode                Field = "boxCode"
	FieldDeliveryResponsibility Field = "deliveryResponsibility"
	FieldOccurrenceMonth        Field = "occurrenceMonth"
	FieldProduct                Field = "product"
	FieldVolumeCount            Field = "volumeCount"
	FieldNotes                  Field = "notes"
)

// Column binds a worksheet header to a field.
type Column struct {
	Header   string
	Field    Field
	Required bool
}

var contractColumns = []Column{
	{Header: "Mã đơn vị", Field: FieldUnitCode},
	{Header: "Số hợp đồng", Field: FieldContractNumber, Required: true},
	{Header: "Số CIF", Field: FieldCIF, Required: true},
	{Header: "Tên khách hàng", Field: FieldCustomerName},
	{Header: "Luồng hồ sơ", Field: FieldDocumentFlow, Required: true},
	{Header: "Loại thời hạn tín dụng", Field: FieldCreditTermCategory, Required: true},
	{Header: "Loại hồ sơ", Field: FieldDocumentType, Required: true},
	{Header: "Ngày giải ngân", Field: FieldDisbursementDate, Required: true},
	{Header: "Ngày đến hạn", Field: FieldDueDate},
	{Header: "Ngày tiêu hủy", Field: FieldDestructionDate},
	{Header: "Mã thùng", Field: FieldBoxCode, Required: true},
}

var cifColumns = []Column{
	{Header: "Mã đơn vị", Field: FieldUnitCode},
	{Header: "Số CIF", Field: FieldCIF, Required: true},
	{Header: "Tên khách hàng", Field: FieldCustomerName},
	{Header: "Luồng hồ sơ", Field: FieldDocumentFlow, Required: true},
	{Header: "Loại thời hạn tín dụng", Field: FieldCreditTermCategory, Required: true},
	{Header: "Loại hồ sơ", Field: FieldDocumentType, Required: true},
	{Header: "Ngày giải ngân", Field: FieldDisbursementDate, Required: true},
	{Header: "Ngày đến hạn", Field: FieldDueDate},
	{Header: "Ngày tiêu hủy", Field: FieldDestructionDate},
	{Header: "Mã thùng", Field: FieldBoxCode},
}

var volumeColumns = []Column{
	{Header: "Mã đơn vị", Field: FieldUnitCode, Required: true},
	{Header: "Trách nhiệm bàn giao", Field: FieldDeliveryResponsibility, Required: true},
	{Header: "Tháng phát sinh", Field: FieldOccurrenceMonth, Required: true},
	{Header: "Sản phẩm", Field: FieldProduct, Required: true},
	{Header: "Mã thùng", Field: FieldBoxCode, Required: true},
	{Header: "Số lượng tập", Field: FieldVolumeCount, Required: true},
	{Header: "Ghi chú", Field: FieldNotes},
}

// RequiredFields lists the fields that must be non-blank for the sheet type.
func (t SheetType) RequiredFields() []Field {
	var fields []Field
	for _, column := range t.Columns() {
		if column.Required {
			fields = append(fields, column.Field)
		}
	}
	return fields
}

// HeaderFor returns the worksheet header text of field, or the field name if the
// sheet type has no such column.
func (t SheetType) HeaderFor(field Field) string {
	for _, column := range t.Columns() {
		if column.Field == field {
			return column.Header
		}
	}
	return string(field)
}

// ColumnMapping is the resolved position of every column of a sheet type in one
// worksheet header row.
type ColumnMapping struct {
	Type  SheetType
	index map[Field]int
}

// MapHeader resolves the header row of a worksheet. Extra columns are ignored; any
// missing expected column is a structural error wrapping ErrColumnMismatch.
func MapHeader(sheetType SheetType, sheetName string, header []string) (ColumnMapping, error) {
	positions := make(map[string]int, len(header))
	for i, cell := range header {
		key := headerKey(cell)
		if key == "" {
			continue
		}
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	mapping := ColumnMapping{Type: sheetType, index: make(map[Field]int)}
	var missing []string
	for _, column := range sheetType.Columns() {
		pos, ok := positions[headerKey(column.Header)]
		if !ok {
			missing = append(missing, column.Header)
			continue
		}
		mapping.index[column.Field] = pos
	}

	if len(missing) > 0 {
		return ColumnMapping{}, &StructureError{Sheet: sheetName, MissingColumns: missing, Err: ErrColumnMismatch}
	}
	return mapping, nil
}

// Values extracts the mapped cells of one row, normalized. Short rows yield blank values.
func (m ColumnMapping) Values(cells []string) map[Field]string {
	values := make(map[Field]string, len(m.index))
	for field, pos := range m.index {
		if pos < len(cells) {
			values[field] = NormalizeText(cells[pos])
		} else {
			values[field] = ""
		}
	}
	return values
}

// BlankRow reports whether every mapped cell of the row is empty.
func (m ColumnMapping) BlankRow(cells []string) bool {
	for _, pos := range m.index {
		if pos < len(cells) && !isBlank(cells[pos]) {
			return false
		}
	}
	return true
}
