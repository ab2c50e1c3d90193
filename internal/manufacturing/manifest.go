package manufacturing

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Order manifest columns, fixed; manufacturers key their tooling on these
// exact headers.
var orderManifestHeader = []string{"QR Code ID", "Slug", "URL", "QR Code Status", "Generated Date"}

var (
	ErrManifestParse = errors.New("could not parse manifest")
	ErrManifestEmpty = errors.New("manifest has no data rows")
	// ErrManifestColumns: neither a QR Code ID nor a Slug column could be
	// located; nothing is mutated.
	ErrManifestColumns = errors.New("manifest is missing both the QR Code ID and Slug columns")
)

type ManifestRow struct {
	UnitID    string
	Slug      string
	URL       string
	Generated bool // visual-code generation success flag
	Date      time.Time
}

// BuildOrderManifest renders the export sent to the manufacturer. The text
// is stored verbatim on the order and never rebuilt.
func BuildOrderManifest(rows []ManifestRow) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(orderManifestHeader)
	for _, r := range rows {
		status := "Generated"
		if !r.Generated {
			status = "Failed"
		}
		_ = w.Write([]string{r.UnitID, r.Slug, r.URL, status, r.Date.Format("2006-01-02")})
	}
	w.Flush()
	return buf.String()
}

// FulfillmentRow: one produced unit reported back by the manufacturer.
// Matching prefers UnitID and falls back to Slug.
type FulfillmentRow struct {
	UnitID string
	Slug   string
}

// ParseFulfillmentManifest reads the externally produced file. CSV is the
// wire format; .xlsx uploads are accepted too since manufacturers tend to
// return spreadsheets. Extra columns are ignored, row order is irrelevant.
// Any parse failure is fatal to the whole call.
func ParseFulfillmentManifest(data []byte, filename string) ([]FulfillmentRow, error) {
	var records [][]string
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrManifestEmpty
		}
		records, err = f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
		}
	} else {
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1 // external files are ragged often enough
		var err error
		records, err = r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
		}
	}

	if len(records) < 2 {
		return nil, ErrManifestEmpty
	}

	idCol, slugCol := locateColumns(records[0])
	if idCol < 0 && slugCol < 0 {
		return nil, ErrManifestColumns
	}

	rows := make([]FulfillmentRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		var row FulfillmentRow
		if idCol >= 0 && idCol < len(rec) {
			row.UnitID = strings.TrimSpace(rec[idCol])
		}
		if slugCol >= 0 && slugCol < len(rec) {
			row.Slug = strings.TrimSpace(rec[slugCol])
		}
		if row.UnitID == "" && row.Slug == "" {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrManifestEmpty
	}
	return rows, nil
}

// locateColumns finds the id and slug columns by normalized header name, so
// "QR Code ID", "qr_code_id" and "QRCodeID" all match.
func locateColumns(header []string) (idCol, slugCol int) {
	idCol, slugCol = -1, -1
	for i, cell := range header {
		switch normalizeHeader(cell) {
		case "qrcodeid", "unitid", "qrid":
			if idCol < 0 {
				idCol = i
			}
		case "slug":
			if slugCol < 0 {
				slugCol = i
			}
		}
	}
	return idCol, slugCol
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
