package units

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"
)

var ErrInvalidRange = errors.New("invalid range")

// ParseRange turns two human-entered unit ids ("QR000010", "qr 10", "10")
// into an inclusive numeric interval by stripping every non-digit rune.
func ParseRange(from, to string) (int64, int64, error) {
	start, err := digitValue(from)
	if err != nil {
		return 0, 0, err
	}
	end, err := digitValue(to)
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, ErrInvalidRange
	}
	return start, end, nil
}

func digitValue(s string) (int64, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, ErrInvalidRange
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, ErrInvalidRange
	}
	return n, nil
}

// RangePreview: the matched units plus the available/assigned split shown to
// the operator before a bulk action is committed.
type RangePreview struct {
	Start     int64
	End       int64
	Units     []models.QRUnit
	Available int
	Assigned  int
}

// SelectRange resolves a parsed interval against the registry. The match is
// on the ID's digit value, not on string order, so padding differences in
// the operator's input don't matter and allocation gaps are skipped over.
func SelectRange(ctx context.Context, reg registry.Registry, from, to string) (*RangePreview, error) {
	start, end, err := ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	matched, err := reg.FindUnits(ctx, registry.Filter{SeqFrom: &start, SeqTo: &end})
	if err != nil {
		return nil, err
	}

	preview := &RangePreview{Start: start, End: end, Units: matched}
	for _, u := range matched {
		if u.Status == models.StatusAvailable {
			preview.Available++
		} else {
			preview.Assigned++
		}
	}
	return preview, nil
}
