package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"io"

	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	"github.com/xuri/excelize/v2"
)

var errHeaderRead = errors.New("header read")

// ExcelParser opens .xlsx workbooks with excelize. Cells are read as raw values, so
// date cells arrive as Excel serial numbers.
type ExcelParser struct{}

func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

func (p *ExcelParser) Parse(ctx context.Context, r io.Reader) (app.Workbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &excelWorkbook{file: file}, nil
}

type excelWorkbook struct {
	file *excelize.File
}

func (w *excelWorkbook) SheetNames() []string {
	return w.file.GetSheetList()
}

func (w *excelWorkbook) Header(sheet string) ([]string, error) {
	var header []string
	err := w.Rows(context.Background(), sheet, func(rowNumber int, cells []string) error {
		header = cells
		return errHeaderRead
	})
	if err != nil && !errors.Is(err, errHeaderRead) {
		return nil, err
	}
	return header, nil
}

// Rows streams the worksheet. Rows missing from the file are reported as empty so
// that row numbers match what the user sees in Excel.
func (w *excelWorkbook) Rows(ctx context.Context, sheet string, fn func(rowNumber int, cells []string) error) error {
	rows, err := w.file.Rows(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	rowNumber := 0
	for rows.Next() {
		rowNumber++
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("read sheet %q row %d: %w", sheet, rowNumber, err)
		}
		if err := fn(rowNumber, cells); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return nil
}

func (w *excelWorkbook) Close() error {
	return w.file.Close()
}
