package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"
)

// stubGenerator renders nothing; it fails on demand so artifact-failure
// paths can be driven deterministically.
type stubGenerator struct {
	failing map[string]bool
	calls   int
}

func (g *stubGenerator) Generate(unitID, claimURL string) (string, error) {
	g.calls++
	if g.failing[unitID] {
		return "", errors.New("render service unreachable")
	}
	return "/artifacts/" + unitID + ".png", nil
}

func newTestService(failing ...string) (*Service, *registry.Memory, *stubGenerator) {
	reg := registry.NewMemory()
	gen := &stubGenerator{failing: map[string]bool{}}
	for _, id := range failing {
		gen.failing[id] = true
	}
	return NewService(reg, gen, "https://shop.example.com"), reg, gen
}

func TestPrepareCreatesBatch(t *testing.T) {
	svc, reg, gen := newTestService()
	ctx := context.Background()

	result, err := svc.Prepare(ctx, 5, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(result.Created) != 5 || len(result.Skipped) != 0 {
		t.Fatalf("created/skipped = %d/%d, want 5/0", len(result.Created), len(result.Skipped))
	}
	if result.Order.Status != models.MOPending {
		t.Fatalf("order status = %s, want pending", result.Order.Status)
	}
	if !strings.HasPrefix(result.Order.OrderNumber, "MO-") {
		t.Fatalf("order number = %q", result.Order.OrderNumber)
	}
	if gen.calls != 5 {
		t.Fatalf("generator called %d times, want 5", gen.calls)
	}

	for i, created := range result.Created {
		unit, err := reg.GetUnit(ctx, created.UnitID)
		if err != nil {
			t.Fatalf("GetUnit: %v", err)
		}
		if unit.Status != models.StatusGenerated {
			t.Fatalf("unit status = %s, want generated", unit.Status)
		}
		if unit.SeqNo != int64(i+1) {
			t.Fatalf("seq_no = %d, want %d", unit.SeqNo, i+1)
		}
		if unit.ManufacturerOrderID == nil || *unit.ManufacturerOrderID != result.Order.MOID {
			t.Fatal("unit not linked to its manufacturer order")
		}
		if unit.ArtifactRef == nil {
			t.Fatalf("unit %s has no artifact ref", unit.UnitID)
		}
	}

	// the frozen manifest lists every created unit
	for _, created := range result.Created {
		if !strings.Contains(result.Order.OrderManifest, created.UnitID) {
			t.Fatalf("manifest is missing %s", created.UnitID)
		}
		if !strings.Contains(result.Order.RequestedUnitIDs, created.UnitID) {
			t.Fatalf("requested set is missing %s", created.UnitID)
		}
	}
}

func TestPrepareContinuesPastArtifactFailure(t *testing.T) {
	svc, reg, _ := newTestService("QR000002")
	ctx := context.Background()

	result, err := svc.Prepare(ctx, 3, models.ProductPremium)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(result.Created) != 3 {
		t.Fatalf("created = %d, want 3; render failures must not abort the batch", len(result.Created))
	}
	if len(result.ArtifactFailures) != 1 || result.ArtifactFailures[0] != "QR000002" {
		t.Fatalf("artifact failures = %v, want [QR000002]", result.ArtifactFailures)
	}

	unit, _ := reg.GetUnit(ctx, "QR000002")
	if unit.ArtifactRef != nil {
		t.Fatal("failed render must leave artifact_ref nil for a retry")
	}
	if !strings.Contains(result.Order.OrderManifest, "Failed") {
		t.Fatal("manifest must mark the failed render")
	}
}

func TestPrepareBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Prepare(ctx, 0, models.ProductEssential); !errors.Is(err, ErrBadQuantity) {
		t.Fatalf("quantity 0: got %v, want ErrBadQuantity", err)
	}
	if _, err := svc.Prepare(ctx, maxBatchQuantity+1, models.ProductEssential); !errors.Is(err, ErrBadQuantity) {
		t.Fatalf("oversized batch: got %v, want ErrBadQuantity", err)
	}
	if _, err := svc.Prepare(ctx, 1, models.ProductType("luxury")); err == nil {
		t.Fatal("unknown product type must be rejected")
	}
}

func TestPrepareContinuesNumbering(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Prepare(ctx, 3, models.ProductEssential); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}
	second, err := svc.Prepare(ctx, 2, models.ProductEssential)
	if err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if second.Created[0].UnitID != "QR000004" || second.Created[1].UnitID != "QR000005" {
		t.Fatalf("second batch ids = %s, %s; numbering must continue past the first batch",
			second.Created[0].UnitID, second.Created[1].UnitID)
	}
}

func TestSendMovesUnitsToManufacturing(t *testing.T) {
	svc, reg, _ := newTestService()
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 3, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	sent, err := svc.Send(ctx, prepared.Order.MOID, "Acme Tags", "orders@acme.example")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.Moved != 3 {
		t.Fatalf("moved = %d, want 3", sent.Moved)
	}
	if len(sent.Skipped) != 0 {
		t.Fatalf("skipped = %v, want none", sent.Skipped)
	}
	if sent.Order.Status != models.MOSent || sent.Order.SentAt == nil {
		t.Fatalf("order = %+v, want sent with timestamp", sent.Order)
	}

	for _, created := range prepared.Created {
		unit, _ := reg.GetUnit(ctx, created.UnitID)
		if unit.Status != models.StatusManufacturing {
			t.Fatalf("unit %s status = %s, want manufacturing", unit.UnitID, unit.Status)
		}
	}

	mo, _ := reg.GetManufacturerOrder(ctx, prepared.Order.MOID)
	if mo.ManufacturerName != "Acme Tags" {
		t.Fatalf("manufacturer name = %q", mo.ManufacturerName)
	}

	if _, err := svc.Send(ctx, prepared.Order.MOID, "Acme Tags", "orders@acme.example"); !errors.Is(err, registry.ErrConflict) {
		t.Fatalf("second send: got %v, want ErrConflict", err)
	}
}

// flakyFieldsRegistry fails SetUnitFields for one unit to drive the
// ref-write failure path.
type flakyFieldsRegistry struct {
	*registry.Memory
	failFor string
}

func (r *flakyFieldsRegistry) SetUnitFields(ctx context.Context, unitID string, fields map[string]any) error {
	if unitID == r.failFor {
		return errors.New("write timed out")
	}
	return r.Memory.SetUnitFields(ctx, unitID, fields)
}

func TestPrepareRecordsRefWriteFailure(t *testing.T) {
	reg := &flakyFieldsRegistry{Memory: registry.NewMemory(), failFor: "QR000002"}
	svc := NewService(reg, &stubGenerator{failing: map[string]bool{}}, "https://shop.example.com")
	ctx := context.Background()

	result, err := svc.Prepare(ctx, 3, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(result.Created) != 3 {
		t.Fatalf("created = %d, want 3", len(result.Created))
	}
	// the render succeeded but the ref never landed; that unit must be
	// reported as a failure so the retry endpoint can pick it up
	if len(result.ArtifactFailures) != 1 || result.ArtifactFailures[0] != "QR000002" {
		t.Fatalf("artifact failures = %v, want [QR000002]", result.ArtifactFailures)
	}
	unit, _ := reg.GetUnit(ctx, "QR000002")
	if unit.ArtifactRef != nil {
		t.Fatal("artifact_ref must stay nil when the write failed")
	}
	if !strings.Contains(result.Order.OrderManifest, "Failed") {
		t.Fatal("manifest must mark the unit whose ref write failed")
	}
}

func TestSendReportsSkippedUnits(t *testing.T) {
	svc, reg, _ := newTestService()
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 3, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// one unit overridden out of generated, one deleted since preparation
	if _, err := reg.UpdateUnitCAS(ctx, "QR000002", models.StatusGenerated, models.StatusAvailable, nil); err != nil {
		t.Fatalf("override unit: %v", err)
	}
	if err := reg.DeleteUnit(ctx, "QR000003"); err != nil {
		t.Fatalf("delete unit: %v", err)
	}

	sent, err := svc.Send(ctx, prepared.Order.MOID, "Acme Tags", "orders@acme.example")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.Moved != 1 {
		t.Fatalf("moved = %d, want 1", sent.Moved)
	}
	if len(sent.Skipped) != 2 {
		t.Fatalf("skipped = %v, want 2 entries", sent.Skipped)
	}
	skippedIDs := map[string]string{}
	for _, s := range sent.Skipped {
		if s.Reason == "" {
			t.Fatalf("skip entry %s carries no reason", s.UnitID)
		}
		skippedIDs[s.UnitID] = s.Reason
	}
	if _, ok := skippedIDs["QR000002"]; !ok {
		t.Fatalf("overridden unit missing from skip list: %v", sent.Skipped)
	}
	if _, ok := skippedIDs["QR000003"]; !ok {
		t.Fatalf("deleted unit missing from skip list: %v", sent.Skipped)
	}

	unit, _ := reg.GetUnit(ctx, "QR000001")
	if unit.Status != models.StatusManufacturing {
		t.Fatalf("unit 1 status = %s, want manufacturing", unit.Status)
	}
	unit, _ = reg.GetUnit(ctx, "QR000002")
	if unit.Status != models.StatusAvailable {
		t.Fatalf("overridden unit mutated to %s", unit.Status)
	}
}

func TestFulfillReconcilesMatchedUnits(t *testing.T) {
	svc, reg, _ := newTestService()
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 3, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := svc.Send(ctx, prepared.Order.MOID, "Acme Tags", "orders@acme.example"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// unit 1 matched by id, unit 2 by slug only, one unknown row; unit 3
	// is not on the manifest and stays in production
	manifest := fmt.Sprintf("QR Code ID,Slug\nQR000001,\n,%s\nQR000099,stray-slug-99\n", prepared.Created[1].Slug)

	result, err := svc.Fulfill(ctx, prepared.Order.MOID, []byte(manifest), "return.csv")
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Fatalf("updated = %d, want 2", result.UpdatedCount)
	}
	if result.UnknownRows != 1 {
		t.Fatalf("unknown rows = %d, want 1", result.UnknownRows)
	}
	if len(result.UnmatchedRequested) != 1 || result.UnmatchedRequested[0] != "QR000003" {
		t.Fatalf("unmatched = %v, want [QR000003]", result.UnmatchedRequested)
	}

	for _, id := range []string{"QR000001", "QR000002"} {
		unit, _ := reg.GetUnit(ctx, id)
		if unit.Status != models.StatusAvailable {
			t.Fatalf("unit %s status = %s, want available", id, unit.Status)
		}
		if unit.ManufacturerOrderID != nil {
			t.Fatalf("unit %s still linked to the manufacturer order", id)
		}
	}
	unit, _ := reg.GetUnit(ctx, "QR000003")
	if unit.Status != models.StatusManufacturing {
		t.Fatalf("unmentioned unit status = %s, must stay manufacturing", unit.Status)
	}

	mo, _ := reg.GetManufacturerOrder(ctx, prepared.Order.MOID)
	if mo.Status != models.MOFulfilled || mo.FulfilledAt == nil {
		t.Fatalf("order = %+v, want fulfilled", mo)
	}
	if mo.FulfillmentManifest == nil || *mo.FulfillmentManifest != manifest {
		t.Fatal("fulfillment manifest must be stored verbatim")
	}
}

func TestFulfillRejectsUnsentOrder(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 1, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	_, err = svc.Fulfill(ctx, prepared.Order.MOID, []byte("QR Code ID\nQR000001\n"), "return.csv")
	if !errors.Is(err, ErrNotSent) {
		t.Fatalf("fulfill before send: got %v, want ErrNotSent", err)
	}
}

func TestFulfillDuplicateUploadRejected(t *testing.T) {
	svc, reg, _ := newTestService()
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 2, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := svc.Send(ctx, prepared.Order.MOID, "Acme Tags", "orders@acme.example"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first := "QR Code ID\nQR000001\n"
	if _, err := svc.Fulfill(ctx, prepared.Order.MOID, []byte(first), "return.csv"); err != nil {
		t.Fatalf("first fulfill: %v", err)
	}

	_, err = svc.Fulfill(ctx, prepared.Order.MOID, []byte("QR Code ID\nQR000002\n"), "return.csv")
	if !errors.Is(err, registry.ErrAlreadyFulfilled) {
		t.Fatalf("second fulfill: got %v, want ErrAlreadyFulfilled", err)
	}

	// the rejected upload mutated nothing
	unit, _ := reg.GetUnit(ctx, "QR000002")
	if unit.Status != models.StatusManufacturing {
		t.Fatalf("unit 2 status = %s after rejected upload, want manufacturing", unit.Status)
	}
	mo, _ := reg.GetManufacturerOrder(ctx, prepared.Order.MOID)
	if mo.FulfillmentManifest == nil || *mo.FulfillmentManifest != first {
		t.Fatal("stored manifest must stay the first upload")
	}
}

func TestFulfillBadManifestMutatesNothing(t *testing.T) {
	svc, reg, _ := newTestService()
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 1, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := svc.Send(ctx, prepared.Order.MOID, "Acme Tags", "orders@acme.example"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, err = svc.Fulfill(ctx, prepared.Order.MOID, []byte("Color,Weight\nred,12\n"), "return.csv")
	if !errors.Is(err, ErrManifestColumns) {
		t.Fatalf("bad manifest: got %v, want ErrManifestColumns", err)
	}

	unit, _ := reg.GetUnit(ctx, "QR000001")
	if unit.Status != models.StatusManufacturing {
		t.Fatalf("unit mutated by a rejected manifest: %s", unit.Status)
	}
	mo, _ := reg.GetManufacturerOrder(ctx, prepared.Order.MOID)
	if mo.FulfillmentManifest != nil {
		t.Fatal("rejected manifest must not be stored")
	}
}

func TestRegenerateArtifact(t *testing.T) {
	svc, reg, gen := newTestService("QR000001")
	ctx := context.Background()

	prepared, err := svc.Prepare(ctx, 1, models.ProductEssential)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(prepared.ArtifactFailures) != 1 {
		t.Fatalf("expected one failed render, got %v", prepared.ArtifactFailures)
	}

	// render service recovers
	gen.failing = map[string]bool{}
	ref, err := svc.RegenerateArtifact(ctx, "QR000001")
	if err != nil {
		t.Fatalf("RegenerateArtifact: %v", err)
	}
	unit, _ := reg.GetUnit(ctx, "QR000001")
	if unit.ArtifactRef == nil || *unit.ArtifactRef != ref {
		t.Fatalf("artifact_ref = %v, want %q", unit.ArtifactRef, ref)
	}
}
