package lifecycle

import (
	"errors"
	"testing"
	"time"

	"qrtrace-backend/internal/models"
)

func unitIn(status models.UnitStatus) *models.QRUnit {
	return &models.QRUnit{UnitID: "QR000001", Slug: "amber-falcon-1", SeqNo: 1, Status: status}
}

func TestValidateForwardEdges(t *testing.T) {
	storeID := uint(3)
	orderID := "ord-1"
	customer := "cust-1"

	cases := []struct {
		name string
		from models.UnitStatus
		t    Transition
		ok   bool
	}{
		{"generated to manufacturing", models.StatusGenerated, Transition{Target: models.StatusManufacturing}, true},
		{"generated to online", models.StatusGenerated, Transition{Target: models.StatusOnline}, false},
		{"manufacturing to available", models.StatusManufacturing, Transition{Target: models.StatusAvailable}, true},
		{"available to online", models.StatusAvailable, Transition{Target: models.StatusOnline}, true},
		{"available to in_store", models.StatusAvailable, Transition{Target: models.StatusInStore, StoreID: &storeID}, true},
		{"available to packaged", models.StatusAvailable, Transition{Target: models.StatusPackaged, OrderID: &orderID}, true},
		{"available to sold", models.StatusAvailable, Transition{Target: models.StatusSold}, false},
		{"online to claimed", models.StatusOnline, Transition{Target: models.StatusClaimed, CustomerRef: &customer}, true},
		{"in_store to packaged", models.StatusInStore, Transition{Target: models.StatusPackaged, OrderID: &orderID}, true},
		{"packaged to sold", models.StatusPackaged, Transition{Target: models.StatusSold}, true},
		{"packaged to shipped", models.StatusPackaged, Transition{Target: models.StatusShipped}, true},
		{"claimed to sold", models.StatusClaimed, Transition{Target: models.StatusSold}, true},
		{"claimed to shipped", models.StatusClaimed, Transition{Target: models.StatusShipped}, false},
		{"sold to shipped", models.StatusSold, Transition{Target: models.StatusShipped}, true},
		{"shipped to delivered", models.StatusShipped, Transition{Target: models.StatusDelivered}, true},
		{"delivered to shipped", models.StatusDelivered, Transition{Target: models.StatusShipped}, false},
		{"skip ahead available to delivered", models.StatusAvailable, Transition{Target: models.StatusDelivered}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(unitIn(tc.from), tc.t)
			if tc.ok && err != nil {
				t.Fatalf("expected legal transition, got %v", err)
			}
			if !tc.ok {
				var illegal *IllegalTransitionError
				if !errors.As(err, &illegal) {
					t.Fatalf("expected IllegalTransitionError, got %v", err)
				}
			}
		})
	}
}

func TestValidateRequiredInputs(t *testing.T) {
	if _, err := Validate(unitIn(models.StatusAvailable), Transition{Target: models.StatusInStore}); err == nil {
		t.Fatal("in_store without store_id should fail")
	}
	if _, err := Validate(unitIn(models.StatusAvailable), Transition{Target: models.StatusPackaged}); err == nil {
		t.Fatal("packaged without order_id should fail")
	}
	if _, err := Validate(unitIn(models.StatusOnline), Transition{Target: models.StatusClaimed}); err == nil {
		t.Fatal("claimed without customer_ref should fail")
	}
}

func TestValidateOverrideClearsBindings(t *testing.T) {
	now := time.Now()
	storeID := uint(7)
	orderID := "ord-9"
	customer := "cust-9"
	unit := unitIn(models.StatusSold)
	unit.StoreID = &storeID
	unit.OrderID = &orderID
	unit.CustomerRef = &customer
	unit.ClaimedAt = &now
	unit.SoldAt = &now

	fx, err := Validate(unit, Transition{Target: models.StatusAvailable, Now: now})
	if err != nil {
		t.Fatalf("override to available failed: %v", err)
	}

	Apply(unit, models.StatusAvailable, fx)
	if unit.Status != models.StatusAvailable {
		t.Fatalf("status = %s, want available", unit.Status)
	}
	if unit.StoreID != nil || unit.OrderID != nil || unit.CustomerRef != nil {
		t.Fatal("override must clear store, order and customer bindings")
	}
	if unit.ClaimedAt != nil || unit.SoldAt != nil || unit.ShippedAt != nil || unit.DeliveredAt != nil {
		t.Fatal("override must clear lifecycle timestamps")
	}
}

func TestValidateDeliveredIsTerminal(t *testing.T) {
	_, err := Validate(unitIn(models.StatusDelivered), Transition{Target: models.StatusAvailable})
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError from delivered, got %v", err)
	}
}

func TestValidateSideEffectTimestamps(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	customer := "cust-2"

	unit := unitIn(models.StatusOnline)
	fx, err := Validate(unit, Transition{Target: models.StatusClaimed, CustomerRef: &customer, Now: now})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	Apply(unit, models.StatusClaimed, fx)
	if unit.ClaimedAt == nil || !unit.ClaimedAt.Equal(now) {
		t.Fatalf("claimed_at = %v, want %v", unit.ClaimedAt, now)
	}
	if unit.CustomerRef == nil || *unit.CustomerRef != customer {
		t.Fatalf("customer_ref = %v, want %q", unit.CustomerRef, customer)
	}
}

func TestValidatePackagedClearsStore(t *testing.T) {
	storeID := uint(4)
	orderID := "ord-3"
	unit := unitIn(models.StatusInStore)
	unit.StoreID = &storeID

	fx, err := Validate(unit, Transition{Target: models.StatusPackaged, OrderID: &orderID})
	if err != nil {
		t.Fatalf("pack from in_store failed: %v", err)
	}
	Apply(unit, models.StatusPackaged, fx)
	if unit.StoreID != nil {
		t.Fatal("packing must clear the store assignment")
	}
	if unit.OrderID == nil || *unit.OrderID != orderID {
		t.Fatalf("order_id = %v, want %q", unit.OrderID, orderID)
	}
}
