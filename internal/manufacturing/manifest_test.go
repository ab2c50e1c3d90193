package manufacturing

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestBuildOrderManifest(t *testing.T) {
	date := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	out := BuildOrderManifest([]ManifestRow{
		{UnitID: "QR000001", Slug: "amber-falcon-1", URL: "https://example.com/u/amber-falcon-1", Generated: true, Date: date},
		{UnitID: "QR000002", Slug: "bold-heron-2", URL: "https://example.com/u/bold-heron-2", Generated: false, Date: date},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("manifest has %d lines, want 3", len(lines))
	}
	if lines[0] != "QR Code ID,Slug,URL,QR Code Status,Generated Date" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Generated") || !strings.Contains(lines[1], "2026-08-01") {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "Failed") {
		t.Fatalf("row 2 = %q, want Failed status", lines[2])
	}
}

func TestParseFulfillmentManifestCSV(t *testing.T) {
	csvData := "QR Code ID,Slug,Batch Notes\nQR000001,amber-falcon-1,ok\n QR000002 ,bold-heron-2,\n,misty-tide-3,late\n"
	rows, err := ParseFulfillmentManifest([]byte(csvData), "return.csv")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("parsed %d rows, want 3", len(rows))
	}
	if rows[1].UnitID != "QR000002" {
		t.Fatalf("row 2 id = %q, whitespace should be trimmed", rows[1].UnitID)
	}
	if rows[2].UnitID != "" || rows[2].Slug != "misty-tide-3" {
		t.Fatalf("row 3 = %+v, want slug-only", rows[2])
	}
}

func TestParseFulfillmentManifestHeaderVariants(t *testing.T) {
	for _, header := range []string{"qr_code_id", "QRCodeID", "Unit ID", "QR ID"} {
		data := header + "\nQR000001\n"
		rows, err := ParseFulfillmentManifest([]byte(data), "return.csv")
		if err != nil {
			t.Fatalf("header %q: %v", header, err)
		}
		if len(rows) != 1 || rows[0].UnitID != "QR000001" {
			t.Fatalf("header %q: rows = %+v", header, rows)
		}
	}
}

func TestParseFulfillmentManifestErrors(t *testing.T) {
	if _, err := ParseFulfillmentManifest([]byte("Color,Weight\nred,12\n"), "return.csv"); !errors.Is(err, ErrManifestColumns) {
		t.Fatalf("missing columns: got %v, want ErrManifestColumns", err)
	}
	if _, err := ParseFulfillmentManifest([]byte("QR Code ID,Slug\n"), "return.csv"); !errors.Is(err, ErrManifestEmpty) {
		t.Fatalf("header only: got %v, want ErrManifestEmpty", err)
	}
	if _, err := ParseFulfillmentManifest([]byte("not a spreadsheet"), "return.xlsx"); !errors.Is(err, ErrManifestParse) {
		t.Fatalf("bad xlsx bytes: got %v, want ErrManifestParse", err)
	}
}

func TestParseFulfillmentManifestXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "QR Code ID")
	_ = f.SetCellValue(sheet, "B1", "Slug")
	_ = f.SetCellValue(sheet, "A2", "QR000001")
	_ = f.SetCellValue(sheet, "B2", "amber-falcon-1")
	_ = f.SetCellValue(sheet, "B3", "bold-heron-2")

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	rows, err := ParseFulfillmentManifest(buf.Bytes(), "Return Manifest.XLSX")
	if err != nil {
		t.Fatalf("parse xlsx: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("parsed %d rows, want 2", len(rows))
	}
	if rows[0].UnitID != "QR000001" || rows[1].Slug != "bold-heron-2" {
		t.Fatalf("rows = %+v", rows)
	}
}
