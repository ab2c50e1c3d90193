package units

import (
	"context"
	"errors"

	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"
)

type ActionKind string

const (
	ActionSetStatus    ActionKind = "set_status"
	ActionAssignStore  ActionKind = "assign_store"
	ActionSetIssueFlag ActionKind = "set_issue_flag"
)

type BulkAction struct {
	Kind ActionKind

	// set_status
	Target      models.UnitStatus
	StoreID     *uint // also assign_store
	OrderID     *string
	CustomerRef *string

	// set_issue_flag
	Flag  models.IssueFlag
	Notes string
}

type BulkFailure struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// ApplyBulk applies one action to every unit independently. It is
// deliberately not all-or-nothing: every per-unit success is kept and every
// failure is reported with its reason, so the operator knows exactly which
// units were left untouched. Only packing completion gets transactional
// semantics.
func ApplyBulk(ctx context.Context, reg registry.Registry, unitIDs []string, action BulkAction) BulkResult {
	result := BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}

	for _, unitID := range unitIDs {
		if err := applyOne(ctx, reg, unitID, action); err != nil {
			result.Failed = append(result.Failed, BulkFailure{UnitID: unitID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, unitID)
	}
	return result
}

func applyOne(ctx context.Context, reg registry.Registry, unitID string, action BulkAction) error {
	switch action.Kind {
	case ActionSetStatus:
		unit, err := reg.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		fx, err := lifecycle.Validate(unit, lifecycle.Transition{
			Target:      action.Target,
			StoreID:     action.StoreID,
			OrderID:     action.OrderID,
			CustomerRef: action.CustomerRef,
		})
		if err != nil {
			return err
		}
		_, err = reg.UpdateUnitCAS(ctx, unitID, unit.Status, action.Target, fx)
		return err

	case ActionAssignStore:
		// store placement without a lifecycle change; the status edge to
		// in_store goes through set_status
		if action.StoreID == nil {
			return errors.New("store_id required")
		}
		return reg.SetUnitFields(ctx, unitID, map[string]any{"store_id": *action.StoreID})

	case ActionSetIssueFlag:
		fields := map[string]any{
			"issue_flag":  action.Flag,
			"issue_notes": action.Notes,
		}
		if action.Flag == "" {
			fields["issue_flag"] = nil
			fields["issue_notes"] = ""
		}
		return reg.SetUnitFields(ctx, unitID, fields)

	default:
		return errors.New("unknown bulk action")
	}
}
