// Package rules holds the per-sheet-type row validators.
package rules

import (
	"fmt"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
)

// ValidateFunc checks one row. It must not mutate the record or perform I/O.
type ValidateFunc func(record domain.Record, rowNumber int) domain.ValidationResult

// Rule is one named business check. It appends at most one error per field it owns.
type Rule struct {
	Name  string
	Check func(c *Checker, record domain.Record)
}

var registry = map[domain.SheetType]ValidateFunc{
	domain.SheetTypeContract: newValidator(domain.SheetTypeContract, contractRules),
	domain.SheetTypeCIF:      newValidator(domain.SheetTypeCIF, cifRules),
	domain.SheetTypeVolume:   newValidator(domain.SheetTypeVolume, volumeRules),
}

// For returns the validator registered for sheetType.
func For(sheetType domain.SheetType) (ValidateFunc, error) {
	validate, ok := registry[sheetType]
	if !ok {
		return nil, fmt.Errorf("no validator for sheet type %q", sheetType)
	}
	return validate, nil
}

// Validate dispatches to the validator of the record's sheet type.
func Validate(record domain.Record, rowNumber int) domain.ValidationResult {
	validate, err := For(record.SheetType())
	if err != nil {
		panic(err)
	}
	return validate(record, rowNumber)
}

func newValidator(sheetType domain.SheetType, ruleSet []Rule) ValidateFunc {
	return func(record domain.Record, rowNumber int) domain.ValidationResult {
		checker := &Checker{sheetType: sheetType, result: domain.ValidationResult{RowNumber: rowNumber}}
		for _, rule := range ruleSet {
			checker.rule = rule.Name
			rule.Check(checker, record)
		}
		return checker.result
	}
}
