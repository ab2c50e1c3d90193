package manufacturing

import (
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestNewSlugShape(t *testing.T) {
	slug := NewSlug(482)
	parts := strings.Split(slug, "-")
	if len(parts) != 3 {
		t.Fatalf("slug %q, want adjective-noun-seq", slug)
	}
	if parts[2] != "482" {
		t.Fatalf("slug %q must end in the sequence number", slug)
	}
}

func TestNewSlugConcurrent(t *testing.T) {
	// preparations run on concurrent request goroutines and share the
	// generator; the shared source must hold up under parallel use
	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				seq := int64(w*perWorker + i)
				slug := NewSlug(seq)
				if !strings.HasSuffix(slug, "-"+strconv.FormatInt(seq, 10)) {
					t.Errorf("slug %q does not carry seq %d", slug, seq)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestUnitIDPadding(t *testing.T) {
	if got := UnitID(7); got != "QR000007" {
		t.Fatalf("UnitID(7) = %q", got)
	}
	if got := UnitID(1234567); got != "QR1234567" {
		t.Fatalf("UnitID(1234567) = %q, wide ids must not truncate", got)
	}
}
