package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

var boxCodePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Checker accumulates the errors of one validator run.
type Checker struct {
	sheetType domain.SheetType
	rule      string
	result    domain.ValidationResult
}

func (c *Checker) fail(code domain.ErrorCode, field domain.Field, format string, args ...any) {
	c.result.Errors = append(c.result.Errors, domain.FieldError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Rule:    c.rule,
	})
}

func (c *Checker) header(field domain.Field) string {
	return c.sheetType.HeaderFor(field)
}

// Required reports every blank required field of the sheet type.
func (c *Checker) Required(record domain.Record) {
	for _, field := range c.sheetType.RequiredFields() {
		if strings.TrimSpace(record.Value(field)) == "" {
			c.fail(domain.CodeMissingRequiredField, field, "%s is required", c.header(field))
		}
	}
}

// OneOf checks allow-list membership of a non-blank value.
func (c *Checker) OneOf(record domain.Record, field domain.Field, allowed []string, code domain.ErrorCode) {
	value := record.Value(field)
	if value == "" || domain.InAllowList(value, allowed) {
		return
	}
	c.fail(code, field, "%s %q is not one of: %s", c.header(field), value, strings.Join(allowed, ", "))
}

// Date checks the format of a non-blank date field.
func (c *Checker) Date(record domain.Record, field domain.Field) {
	value := record.Value(field)
	if value == "" {
		return
	}
	if _, err := domain.ParseDate(value); err != nil {
		c.fail(domain.CodeInvalidDateFormat, field, "%s %q is not a valid date (dd/mm/yyyy)", c.header(field), value)
	}
}

// BoxCode checks the box code alphabet of a non-blank value.
func (c *Checker) BoxCode(record domain.Record) {
	value := record.Value(domain.FieldBoxCode)
	if value == "" || boxCodePattern.MatchString(value) {
		return
	}
	c.fail(domain.CodeInvalidBoxCode, domain.FieldBoxCode,
		"%s %q may only contain uppercase letters, digits and underscore", c.header(domain.FieldBoxCode), value)
}

// date returns the parsed value of a field, or nil when blank or malformed.
func date(record domain.Record, field domain.Field) *time.Time {
	value := record.Value(field)
	if value == "" {
		return nil
	}
	parsed, err := domain.ParseDate(value)
	if err != nil {
		return nil
	}
	return &parsed
}
