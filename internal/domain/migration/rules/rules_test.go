package rules_test

import (
	"reflect"
	"testing"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"github.com/mohammadpnp/archive-migration/internal/domain/migration/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cifRow(overrides map[domain.Field]string) domain.Record {
	values := map[domain.Field]string{
		domain.FieldCIF:                "C001",
		domain.FieldDocumentFlow:       "HSTD thường",
		domain.FieldCreditTermCategory: "Vĩnh viễn",
		domain.FieldDocumentType:       "PASS TTN",
		domain.FieldDisbursementDate:   "15/01/2020",
	}
	for field, value := range overrides {
		values[field] = value
	}
	return domain.NewRecord(domain.SheetTypeCIF, values)
}

func TestCIFValidRowHasNoErrors(t *testing.T) {
	t.Parallel()

	result := rules.Validate(cifRow(nil), 2)

	assert.True(t, result.Valid(), "unexpected errors: %+v", result.Errors)
	assert.Equal(t, 2, result.RowNumber)
}

func TestCIFMissingDisbursementDate(t *testing.T) {
	t.Parallel()

	result := rules.Validate(cifRow(map[domain.Field]string{domain.FieldDisbursementDate: ""}), 3)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, domain.CodeMissingRequiredField, result.Errors[0].Code)
	assert.Equal(t, domain.FieldDisbursementDate, result.Errors[0].Field)
	assert.Equal(t, "CT1", result.Errors[0].Rule)
}

func TestCIFBareYearIsNotADate(t *testing.T) {
	t.Parallel()

	result := rules.Validate(cifRow(map[domain.Field]string{domain.FieldDisbursementDate: "2020"}), 4)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, domain.CodeInvalidDateFormat, result.Errors[0].Code)
	assert.Equal(t, domain.FieldDisbursementDate, result.Errors[0].Field)
}

func TestCIFBoxCodeOptionalButPatternChecked(t *testing.T) {
	t.Parallel()

	assert.True(t, rules.Validate(cifRow(map[domain.Field]string{domain.FieldBoxCode: ""}), 2).Valid())

	result := rules.Validate(cifRow(map[domain.Field]string{domain.FieldBoxCode: "box-1"}), 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, domain.CodeInvalidBoxCode, result.Errors[0].Code)
	assert.Equal(t, "CT7", result.Errors[0].Rule)
}

func TestContractRulesDoNotShortCircuit(t *testing.T) {
	t.Parallel()

	record := domain.NewRecord(domain.SheetTypeContract, map[domain.Field]string{
		domain.FieldContractNumber:     "HD-1",
		domain.FieldCIF:                "C001",
		domain.FieldDocumentFlow:       "HSTD khác",
		domain.FieldCreditTermCategory: "Mãi mãi",
		domain.FieldDocumentType:       "PASS TTN",
		domain.FieldDisbursementDate:   "2020-13-01",
		domain.FieldBoxCode:            "b 1",
	})

	result := rules.Validate(record, 7)

	codes := make([]domain.ErrorCode, 0, len(result.Errors))
	for _, fieldErr := range result.Errors {
		codes = append(codes, fieldErr.Code)
	}
	assert.Equal(t, []domain.ErrorCode{
		domain.CodeInvalidDocumentFlow,
		domain.CodeInvalidCreditTerm,
		domain.CodeInvalidDateFormat,
		domain.CodeInvalidBoxCode,
	}, codes)
}

func TestContractMissingFieldsReportOnlyMissing(t *testing.T) {
	t.Parallel()

	record := domain.NewRecord(domain.SheetTypeContract, map[domain.Field]string{})
	result := rules.Validate(record, 2)

	require.Len(t, result.Errors, len(domain.SheetTypeContract.RequiredFields()))
	for _, fieldErr := range result.Errors {
		assert.Equal(t, domain.CodeMissingRequiredField, fieldErr.Code)
	}
}

func TestContractDateRules(t *testing.T) {
	t.Parallel()

	base := map[domain.Field]string{
		domain.FieldContractNumber:     "HD-1",
		domain.FieldCIF:                "C001",
		domain.FieldDocumentFlow:       "HSTD thẻ",
		domain.FieldCreditTermCategory: "Trung hạn",
		domain.FieldDocumentType:       "KUNN",
		domain.FieldDisbursementDate:   "15/01/2020",
		domain.FieldBoxCode:            "B_01",
	}
	with := func(overrides map[domain.Field]string) domain.Record {
		values := map[domain.Field]string{}
		for k, v := range base {
			values[k] = v
		}
		for k, v := range overrides {
			values[k] = v
		}
		return domain.NewRecord(domain.SheetTypeContract, values)
	}

	cases := []struct {
		name      string
		overrides map[domain.Field]string
		want      []domain.ErrorCode
	}{
		{"due after disbursement", map[domain.Field]string{domain.FieldDueDate: "15/01/2025"}, nil},
		{"due before disbursement", map[domain.Field]string{domain.FieldDueDate: "14/01/2020"}, []domain.ErrorCode{domain.CodeInvalidDateRange}},
		{"no due date with sentinel", map[domain.Field]string{domain.FieldDestructionDate: "31/12/9999"}, nil},
		{"no due date with real destruction date", map[domain.Field]string{domain.FieldDestructionDate: "31/12/2030"}, []domain.ErrorCode{domain.CodeInvalidDestructionDate}},
		{"permanent with real destruction date", map[domain.Field]string{
			domain.FieldCreditTermCategory: "Vĩnh viễn",
			domain.FieldDueDate:            "15/01/2025",
			domain.FieldDestructionDate:    "2040-01-01",
		}, []domain.ErrorCode{domain.CodeInvalidDestructionDate}},
		{"explicit destruction date with due date", map[domain.Field]string{
			domain.FieldDueDate:         "15/01/2025",
			domain.FieldDestructionDate: "2040-01-01",
		}, nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := rules.Validate(with(tc.overrides), 2)
			var codes []domain.ErrorCode
			for _, fieldErr := range result.Errors {
				codes = append(codes, fieldErr.Code)
			}
			assert.Equal(t, tc.want, codes)
		})
	}
}

func TestVolumeRules(t *testing.T) {
	t.Parallel()

	valid := map[domain.Field]string{
		domain.FieldUnitCode:               "HN01",
		domain.FieldDeliveryResponsibility: "Phòng KH",
		domain.FieldOccurrenceMonth:        "03/2024",
		domain.FieldProduct:                "Thẻ tín dụng",
		domain.FieldBoxCode:                "T_01",
		domain.FieldVolumeCount:            "4",
	}
	assert.True(t, rules.Validate(domain.NewRecord(domain.SheetTypeVolume, valid), 2).Valid())

	invalid := map[domain.Field]string{}
	for k, v := range valid {
		invalid[k] = v
	}
	invalid[domain.FieldOccurrenceMonth] = "2024/03"
	invalid[domain.FieldVolumeCount] = "-2"
	invalid[domain.FieldProduct] = "Tiết kiệm"

	result := rules.Validate(domain.NewRecord(domain.SheetTypeVolume, invalid), 2)
	var codes []domain.ErrorCode
	for _, fieldErr := range result.Errors {
		codes = append(codes, fieldErr.Code)
	}
	assert.Equal(t, []domain.ErrorCode{
		domain.CodeInvalidProduct,
		domain.CodeInvalidMonthFormat,
		domain.CodeInvalidNumber,
	}, codes)
}

func TestValidatorsAreDeterministic(t *testing.T) {
	t.Parallel()

	record := cifRow(map[domain.Field]string{
		domain.FieldDocumentType: "unknown",
		domain.FieldBoxCode:      "x",
	})
	first := rules.Validate(record, 9)
	second := rules.Validate(record, 9)

	assert.True(t, reflect.DeepEqual(first, second))
	assert.Equal(t, cifRow(map[domain.Field]string{
		domain.FieldDocumentType: "unknown",
		domain.FieldBoxCode:      "x",
	}), record, "validation must not mutate the record")
}

func TestRegistryCoversEverySheetType(t *testing.T) {
	t.Parallel()

	for _, sheetType := range domain.AllSheetTypes {
		validate, err := rules.For(sheetType)
		require.NoError(t, err)
		require.NotNil(t, validate)
	}
	_, err := rules.For("PAYROLL")
	assert.Error(t, err)
}
