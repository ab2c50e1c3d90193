// Package lifecycle holds the unit status state machine. Validate is pure:
// it decides whether a transition is legal and declares the field writes the
// caller must apply atomically with the status change. All persistence goes
// through the registry, which applies the returned side effects under CAS.
package lifecycle

import (
	"fmt"
	"time"

	"qrtrace-backend/internal/models"
)

// Transition: requested target state plus the inputs some targets require.
type Transition struct {
	Target      models.UnitStatus
	StoreID     *uint   // required for in_store
	OrderID     *string // required for packaged
	CustomerRef *string // required for claimed
	Now         time.Time
}

// SideEffects: column -> value map applied together with the status write.
// A nil value clears the column.
type SideEffects map[string]any

// IllegalTransitionError: the requested edge does not exist in the status
// graph, or a required input for the target is missing.
type IllegalTransitionError struct {
	UnitID string
	From   models.UnitStatus
	To     models.UnitStatus
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("illegal transition %s -> %s for unit %s: %s", e.From, e.To, e.UnitID, e.Reason)
	}
	return fmt.Sprintf("illegal transition %s -> %s for unit %s", e.From, e.To, e.UnitID)
}

// forward edges of the status graph; available is additionally reachable
// from any status via the administrative override in Validate.
var forwardEdges = map[models.UnitStatus][]models.UnitStatus{
	models.StatusGenerated:     {models.StatusManufacturing, models.StatusAvailable},
	models.StatusManufacturing: {models.StatusAvailable},
	models.StatusAvailable:     {models.StatusOnline, models.StatusInStore, models.StatusPackaged},
	models.StatusOnline:        {models.StatusClaimed, models.StatusPackaged},
	models.StatusInStore:       {models.StatusClaimed, models.StatusPackaged},
	models.StatusPackaged:      {models.StatusSold, models.StatusShipped},
	models.StatusClaimed:       {models.StatusSold},
	models.StatusSold:          {models.StatusShipped},
	models.StatusShipped:       {models.StatusDelivered},
	models.StatusDelivered:     {},
}

// Validate checks the edge current -> t.Target and returns the side-effect
// field set. target=available from any state is the administrative override
// and the only backward edge: it clears every binding field and every
// claim/sale/ship timestamp.
func Validate(unit *models.QRUnit, t Transition) (SideEffects, error) {
	if t.Now.IsZero() {
		t.Now = time.Now()
	}

	if t.Target == models.StatusAvailable {
		// generated/manufacturing reach available through the manufacturing
		// fulfillment edge; everything else is an operator override, the
		// only backward edge. delivered is terminal and stays out of it.
		// Both paths reset the unit to a clean inventory state.
		if unit.Status == models.StatusDelivered {
			return nil, &IllegalTransitionError{UnitID: unit.UnitID, From: unit.Status, To: t.Target, Reason: "delivered is terminal"}
		}
		return SideEffects{
			"store_id":     nil,
			"order_id":     nil,
			"customer_ref": nil,
			"assigned_at":  nil,
			"claimed_at":   nil,
			"sold_at":      nil,
			"shipped_at":   nil,
			"delivered_at": nil,
		}, nil
	}

	if !edgeExists(unit.Status, t.Target) {
		return nil, &IllegalTransitionError{UnitID: unit.UnitID, From: unit.Status, To: t.Target}
	}

	fx := SideEffects{}
	switch t.Target {
	case models.StatusManufacturing:
		// linkage to the manufacturer order is written by the caller, which
		// owns the MO id; no extra fields here.
	case models.StatusOnline:
		fx["store_id"] = nil
		fx["assigned_at"] = t.Now
	case models.StatusInStore:
		if t.StoreID == nil {
			return nil, &IllegalTransitionError{UnitID: unit.UnitID, From: unit.Status, To: t.Target, Reason: "store_id required"}
		}
		fx["store_id"] = *t.StoreID
		fx["assigned_at"] = t.Now
	case models.StatusPackaged:
		if t.OrderID == nil {
			return nil, &IllegalTransitionError{UnitID: unit.UnitID, From: unit.Status, To: t.Target, Reason: "order_id required"}
		}
		fx["order_id"] = *t.OrderID
		fx["store_id"] = nil
	case models.StatusClaimed:
		if t.CustomerRef == nil {
			return nil, &IllegalTransitionError{UnitID: unit.UnitID, From: unit.Status, To: t.Target, Reason: "customer_ref required"}
		}
		fx["customer_ref"] = *t.CustomerRef
		fx["claimed_at"] = t.Now
	case models.StatusSold:
		fx["sold_at"] = t.Now
	case models.StatusShipped:
		fx["shipped_at"] = t.Now
	case models.StatusDelivered:
		fx["delivered_at"] = t.Now
	default:
		return nil, &IllegalTransitionError{UnitID: unit.UnitID, From: unit.Status, To: t.Target, Reason: "unknown target status"}
	}

	return fx, nil
}

func edgeExists(from, to models.UnitStatus) bool {
	for _, next := range forwardEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply writes a side-effect set onto an in-memory unit. The GORM backend
// feeds the map straight to Updates; the memory backend and tests use this.
func Apply(u *models.QRUnit, status models.UnitStatus, fx SideEffects) {
	u.Status = status
	for col, v := range fx {
		switch col {
		case "store_id":
			u.StoreID = asUintPtr(v)
		case "order_id":
			u.OrderID = asStringPtr(v)
		case "customer_ref":
			u.CustomerRef = asStringPtr(v)
		case "manufacturer_order_id":
			u.ManufacturerOrderID = asStringPtr(v)
		case "assigned_at":
			u.AssignedAt = asTimePtr(v)
		case "claimed_at":
			u.ClaimedAt = asTimePtr(v)
		case "sold_at":
			u.SoldAt = asTimePtr(v)
		case "shipped_at":
			u.ShippedAt = asTimePtr(v)
		case "delivered_at":
			u.DeliveredAt = asTimePtr(v)
		}
	}
}

func asUintPtr(v any) *uint {
	switch x := v.(type) {
	case nil:
		return nil
	case uint:
		return &x
	case *uint:
		return x
	}
	return nil
}

func asStringPtr(v any) *string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return &x
	case *string:
		return x
	}
	return nil
}

func asTimePtr(v any) *time.Time {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &x
	case *time.Time:
		return x
	}
	return nil
}
