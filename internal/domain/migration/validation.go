package migration

import "fmt"

type ErrorCode string

const (
	CodeMissingRequiredField   ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeInvalidDocumentFlow    ErrorCode = "INVALID_DOCUMENT_FLOW"
	CodeInvalidCreditTerm      ErrorCode = "INVALID_CREDIT_TERM_CATEGORY"
	CodeInvalidDocumentType    ErrorCode = "INVALID_DOCUMENT_TYPE"
	CodeInvalidProduct         ErrorCode = "INVALID_PRODUCT"
	CodeInvalidBoxCode         ErrorCode = "INVALID_BOX_CODE"
	CodeInvalidDateFormat      ErrorCode = "INVALID_DATE_FORMAT"
	CodeInvalidDateRange       ErrorCode = "INVALID_DATE_RANGE"
	CodeInvalidDestructionDate ErrorCode = "INVALID_DESTRUCTION_DATE"
	CodeInvalidMonthFormat     ErrorCode = "INVALID_MONTH_FORMAT"
	CodeInvalidNumber          ErrorCode = "INVALID_NUMBER"
	CodePromotionFailed        ErrorCode = "PROMOTION_FAILED"
)

// RulePromotion names errors raised after validation, while promoting a row.
const RulePromotion = "PROMOTION"

// FieldError is one violated rule on one field of a row.
type FieldError struct {
	Code    ErrorCode `json:"code"`
	Field   Field     `json:"field"`
	Message string    `json:"message"`
	Rule    string    `json:"rule"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Rule, e.Field, e.Message)
}

// ValidationResult lists the errors of one row in rule order. It is empty for a
// passing row.
type ValidationResult struct {
	RowNumber int
	Errors    []FieldError
}

func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// RowStatus is the validation state of a staging row.
type RowStatus string

const (
	RowPending RowStatus = "PENDING"
	RowValid   RowStatus = "VALID"
	RowInvalid RowStatus = "INVALID"
)

func ParseRowStatus(raw string) (RowStatus, error) {
	switch RowStatus(raw) {
	case RowPending, RowValid, RowInvalid:
		return RowStatus(raw), nil
	}
	return "", fmt.Errorf("%w: row status %q", ErrCorruptStagingRow, raw)
}
