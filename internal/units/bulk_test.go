package units

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"qrtrace-backend/internal/models"
)

func TestApplyBulkPartialFailure(t *testing.T) {
	reg := seedRegistry(t, 10, models.StatusOnline)
	ctx := context.Background()

	// one unit is already delivered; the override back to available must
	// succeed for the other nine and report this one as failed
	customer := "cust-1"
	for _, step := range []models.UnitStatus{models.StatusClaimed, models.StatusSold, models.StatusShipped, models.StatusDelivered} {
		res := ApplyBulk(ctx, reg, []string{"QR000010"}, BulkAction{Kind: ActionSetStatus, Target: step, CustomerRef: &customer})
		if len(res.Failed) != 0 {
			t.Fatalf("advancing to %s failed: %v", step, res.Failed)
		}
	}

	ids := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		ids = append(ids, fmt.Sprintf("QR%06d", i))
	}

	result := ApplyBulk(ctx, reg, ids, BulkAction{Kind: ActionSetStatus, Target: models.StatusAvailable})
	if len(result.Succeeded) != 9 {
		t.Fatalf("succeeded = %d, want 9", len(result.Succeeded))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(result.Failed))
	}
	if result.Failed[0].UnitID != "QR000010" {
		t.Fatalf("failed unit = %s, want QR000010", result.Failed[0].UnitID)
	}
	if !strings.Contains(result.Failed[0].Reason, "illegal transition") {
		t.Fatalf("failure reason %q should name the illegal transition", result.Failed[0].Reason)
	}

	// successes are kept even though one unit failed
	u, _ := reg.GetUnit(ctx, "QR000001")
	if u.Status != models.StatusAvailable {
		t.Fatalf("unit 1 status = %s, want available", u.Status)
	}
	u, _ = reg.GetUnit(ctx, "QR000010")
	if u.Status != models.StatusDelivered {
		t.Fatalf("delivered unit mutated to %s", u.Status)
	}
}

func TestApplyBulkAssignStore(t *testing.T) {
	reg := seedRegistry(t, 3, models.StatusAvailable)
	ctx := context.Background()
	storeID := uint(7)

	result := ApplyBulk(ctx, reg, []string{"QR000001", "QR000002"}, BulkAction{Kind: ActionAssignStore, StoreID: &storeID})
	if len(result.Failed) != 0 {
		t.Fatalf("assign_store failed: %v", result.Failed)
	}
	u, _ := reg.GetUnit(ctx, "QR000001")
	if u.StoreID == nil || *u.StoreID != storeID {
		t.Fatalf("store_id = %v, want %d", u.StoreID, storeID)
	}
	if u.Status != models.StatusAvailable {
		t.Fatalf("assign_store must not touch status, got %s", u.Status)
	}

	missing := ApplyBulk(ctx, reg, []string{"QR000001"}, BulkAction{Kind: ActionAssignStore})
	if len(missing.Failed) != 1 {
		t.Fatal("assign_store without store_id must fail")
	}
}

func TestApplyBulkIssueFlag(t *testing.T) {
	reg := seedRegistry(t, 2, models.StatusAvailable)
	ctx := context.Background()

	set := ApplyBulk(ctx, reg, []string{"QR000001"}, BulkAction{Kind: ActionSetIssueFlag, Flag: models.IssueDamaged, Notes: "torn label"})
	if len(set.Failed) != 0 {
		t.Fatalf("set flag failed: %v", set.Failed)
	}
	u, _ := reg.GetUnit(ctx, "QR000001")
	if u.IssueFlag == nil || *u.IssueFlag != models.IssueDamaged {
		t.Fatalf("issue_flag = %v, want damaged", u.IssueFlag)
	}
	if u.IssueNotes != "torn label" {
		t.Fatalf("issue_notes = %q", u.IssueNotes)
	}

	cleared := ApplyBulk(ctx, reg, []string{"QR000001"}, BulkAction{Kind: ActionSetIssueFlag})
	if len(cleared.Failed) != 0 {
		t.Fatalf("clear flag failed: %v", cleared.Failed)
	}
	u, _ = reg.GetUnit(ctx, "QR000001")
	if u.IssueFlag != nil || u.IssueNotes != "" {
		t.Fatal("empty flag must clear flag and notes")
	}
}

func TestApplyBulkUnknownUnitAndAction(t *testing.T) {
	reg := seedRegistry(t, 1, models.StatusAvailable)
	ctx := context.Background()

	result := ApplyBulk(ctx, reg, []string{"QR999999"}, BulkAction{Kind: ActionSetStatus, Target: models.StatusOnline})
	if len(result.Failed) != 1 || len(result.Succeeded) != 0 {
		t.Fatalf("unknown unit: %+v", result)
	}

	result = ApplyBulk(ctx, reg, []string{"QR000001"}, BulkAction{Kind: "explode"})
	if len(result.Failed) != 1 {
		t.Fatal("unknown action kind must fail per unit")
	}
}
