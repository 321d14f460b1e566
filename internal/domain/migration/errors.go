package migration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownSheet      = errors.New("unknown sheet name")
	ErrColumnMismatch    = errors.New("column mapping mismatch")
	ErrEmptyWorkbook     = errors.New("workbook has no sheets")
	ErrInvalidTransition = errors.New("invalid sheet status transition")
	ErrJobNotFound       = errors.New("migration job not found")
	ErrSheetNotFound     = errors.New("migration sheet not found")
	ErrLeaseLost         = errors.New("sheet lease lost")
	ErrSheetCancelled    = errors.New("sheet cancelled")
	ErrCorruptStagingRow = errors.New("corrupt staging row")
)

// StructureError describes a workbook that cannot be migrated at all.
type StructureError struct {
	Sheet          string
	MissingColumns []string
	Err            error
}

func (e *StructureError) Error() string {
	if len(e.MissingColumns) > 0 {
		return fmt.Sprintf("sheet %q: %v: missing columns %s", e.Sheet, e.Err, strings.Join(e.MissingColumns, ", "))
	}
	if e.Sheet != "" {
		return fmt.Sprintf("sheet %q: %v", e.Sheet, e.Err)
	}
	return e.Err.Error()
}

func (e *StructureError) Unwrap() error { return e.Err }
