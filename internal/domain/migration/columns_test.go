package migration_test

import (
	"errors"
	"testing"

	domain "github.com/mohammadpnp/archive-migration/internal/domain/migration"
	"golang.org/x/text/unicode/norm"
)

func TestSheetTypeForName(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.SheetType{
		"HDTD":   domain.SheetTypeContract,
		" hdtd ": domain.SheetTypeContract,
		"CIF":    domain.SheetTypeCIF,
		"Tap":    domain.SheetTypeVolume,
	}
	for name, want := range cases {
		got, err := domain.SheetTypeForName(name)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", name, err)
		}
		if got != want {
			t.Fatalf("%q: expected %s, got %s", name, want, got)
		}
	}

	_, err := domain.SheetTypeForName("Sheet1")
	if !errors.Is(err, domain.ErrUnknownSheet) {
		t.Fatalf("expected ErrUnknownSheet, got %v", err)
	}
}

func TestSheetNameResolvesBackToType(t *testing.T) {
	t.Parallel()

	for _, sheetType := range domain.AllSheetTypes {
		got, err := domain.SheetTypeForName(sheetType.SheetName())
		if err != nil {
			t.Fatalf("%s: unexpected error %v", sheetType, err)
		}
		if got != sheetType {
			t.Fatalf("%s: resolved to %s", sheetType, got)
		}
	}
}

func TestMapHeaderToleratesFormattingDifferences(t *testing.T) {
	t.Parallel()

	header := []string{
		"STT",
		norm.NFD.String("Số CIF"),
		"tên_khách_hàng",
		"Luồng hồ sơ",
		"LOẠI THỜI HẠN TÍN DỤNG",
		"Loại hồ sơ",
		"Ngày giải ngân",
		"Ngày đến hạn",
		"Ngày tiêu hủy",
		"Mã thùng",
		"Mã đơn vị",
	}

	mapping, err := domain.MapHeader(domain.SheetTypeCIF, "CIF", header)
	if err != nil {
		t.Fatalf("expected header to map, got %v", err)
	}

	values := mapping.Values([]string{"1", " cif001 ", "Nguyễn Văn A"})
	if values[domain.FieldCIF] != "cif001" {
		t.Fatalf("unexpected cif value %q", values[domain.FieldCIF])
	}
	if values[domain.FieldBoxCode] != "" {
		t.Fatalf("expected short row to yield blank box code, got %q", values[domain.FieldBoxCode])
	}
}

func TestMapHeaderReportsMissingColumns(t *testing.T) {
	t.Parallel()

	_, err := domain.MapHeader(domain.SheetTypeVolume, "TAP", []string{"Mã đơn vị", "Sản phẩm"})
	if !errors.Is(err, domain.ErrColumnMismatch) {
		t.Fatalf("expected ErrColumnMismatch, got %v", err)
	}

	var structureErr *domain.StructureError
	if !errors.As(err, &structureErr) {
		t.Fatalf("expected StructureError, got %T", err)
	}
	if len(structureErr.MissingColumns) != 5 {
		t.Fatalf("expected 5 missing columns, got %v", structureErr.MissingColumns)
	}
}

func TestBlankRow(t *testing.T) {
	t.Parallel()

	mapping, err := domain.MapHeader(domain.SheetTypeVolume, "TAP", []string{
		"Mã đơn vị", "Trách nhiệm bàn giao", "Tháng phát sinh", "Sản phẩm", "Mã thùng", "Số lượng tập", "Ghi chú",
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !mapping.BlankRow([]string{"", "  ", ""}) {
		t.Fatal("expected whitespace-only row to be blank")
	}
	if mapping.BlankRow([]string{"", "", "", "", "", "", "note"}) {
		t.Fatal("expected row with a note to be non-blank")
	}
}

func TestDuplicateKeys(t *testing.T) {
	t.Parallel()

	a := domain.NewRecord(domain.SheetTypeCIF, map[domain.Field]string{
		domain.FieldCIF:              "c001",
		domain.FieldDisbursementDate: "01/02/2024",
		domain.FieldDocumentType:     "PASS TTN",
	})
	b := domain.NewRecord(domain.SheetTypeCIF, map[domain.Field]string{
		domain.FieldCIF:              "C001",
		domain.FieldDisbursementDate: "2024-02-01",
		domain.FieldDocumentType:     "pass ttn",
	})
	if a.DuplicateKey() != b.DuplicateKey() {
		t.Fatalf("expected equal keys, got %q and %q", a.DuplicateKey(), b.DuplicateKey())
	}
	if a.DuplicateKey() != "CIF|C001|2024-02-01|PASS TTN" {
		t.Fatalf("unexpected key %q", a.DuplicateKey())
	}

	volume := domain.NewRecord(domain.SheetTypeVolume, map[domain.Field]string{
		domain.FieldUnitCode:               "hn01",
		domain.FieldDeliveryResponsibility: "Phòng KH",
		domain.FieldOccurrenceMonth:        "3/2024",
		domain.FieldProduct:                "Cho vay",
	})
	if volume.DuplicateKey() != "VOLUME|HN01|PHÒNG KH|2024-03|CHO VAY" {
		t.Fatalf("unexpected volume key %q", volume.DuplicateKey())
	}
}
