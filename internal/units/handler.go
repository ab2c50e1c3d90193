package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"qrtrace-backend/internal/audit"
	"qrtrace-backend/internal/auth"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"

	"github.com/gofiber/fiber/v2"
)

type UnitResponse struct {
	UnitID        string  `json:"unit_id"`
	Slug          string  `json:"slug"`
	ProductType   string  `json:"product_type"`
	Status        string  `json:"status"`
	StoreID       *uint   `json:"store_id,omitempty"`
	OrderID       *string `json:"order_id,omitempty"`
	CustomerRef   *string `json:"customer_ref,omitempty"`
	IssueFlag     *string `json:"issue_flag,omitempty"`
	IssueNotes    string  `json:"issue_notes,omitempty"`
	ArtifactRef   *string `json:"artifact_ref,omitempty"`
	ScanCount     int64   `json:"scan_count"`
	LastScannedAt *string `json:"last_scanned_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toUnitResponse(u *models.QRUnit) UnitResponse {
	resp := UnitResponse{
		UnitID:      u.UnitID,
		Slug:        u.Slug,
		ProductType: string(u.ProductType),
		Status:      string(u.Status),
		StoreID:     u.StoreID,
		OrderID:     u.OrderID,
		CustomerRef: u.CustomerRef,
		IssueNotes:  u.IssueNotes,
		ArtifactRef: u.ArtifactRef,
		ScanCount:   u.ScanCount,
		CreatedAt:   u.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if u.IssueFlag != nil {
		s := string(*u.IssueFlag)
		resp.IssueFlag = &s
	}
	if u.LastScannedAt != nil {
		s := u.LastScannedAt.Format("2006-01-02 15:04:05")
		resp.LastScannedAt = &s
	}
	return resp
}

// GET /api/units?status=available,in_store&product_type=premium&store_id=3
func ListUnitsHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var f registry.Filter

		if s := c.Query("status"); s != "" {
			for _, part := range strings.Split(s, ",") {
				f.Statuses = append(f.Statuses, models.UnitStatus(strings.TrimSpace(part)))
			}
		}
		if pt := c.Query("product_type"); pt != "" {
			v := models.ProductType(pt)
			f.ProductType = &v
		}
		if sid := c.Query("store_id"); sid != "" {
			n, err := strconv.ParseUint(sid, 10, 32)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid store_id")
			}
			v := uint(n)
			f.StoreID = &v
		}
		if flag := c.Query("issue_flag"); flag != "" {
			v := models.IssueFlag(flag)
			f.IssueFlag = &v
		}
		if from := c.Query("created_after"); from != "" {
			t, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "created_after must be 'YYYY-MM-DD'")
			}
			f.CreatedAfter = &t
		}
		if to := c.Query("created_before"); to != "" {
			t, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "created_before must be 'YYYY-MM-DD'")
			}
			end := t.Add(24*time.Hour - time.Nanosecond)
			f.CreatedBefore = &end
		}

		found, err := reg.FindUnits(c.Context(), f)
		if err != nil {
			return err
		}

		resp := make([]UnitResponse, 0, len(found))
		for i := range found {
			resp = append(resp, toUnitResponse(&found[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/units/:unit_id
func GetUnitHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		unit, err := reg.GetUnit(c.Context(), c.Params("unit_id"))
		if err != nil {
			return err
		}
		return c.JSON(toUnitResponse(unit))
	}
}

// DELETE /api/units/:unit_id
// Refused while the unit is bound to an open order or a sent manufacturer
// order; the registry enforces that and returns a conflict.
func DeleteUnitHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		unitID := c.Params("unit_id")

		unit, err := reg.GetUnit(c.Context(), unitID)
		if err != nil {
			return err
		}
		if err := reg.DeleteUnit(c.Context(), unitID); err != nil {
			return err
		}

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "unit",
			EntityID:    unitID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Unit deleted (was %s)", unit.Status),
			Before:      unit,
		})

		return c.JSON(fiber.Map{"message": "Unit deleted", "unit_id": unitID})
	}
}

// POST /api/units/:unit_id/scan
// Scan telemetry: bumps scan_count / last_scanned_at, no status change.
func ScanUnitHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		unit, err := reg.RecordScan(c.Context(), c.Params("unit_id"))
		if err != nil {
			return err
		}
		return c.JSON(toUnitResponse(unit))
	}
}

type RangePreviewRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type RangePreviewResponse struct {
	Start     int64          `json:"start"`
	End       int64          `json:"end"`
	Total     int            `json:"total"`
	Available int            `json:"available"`
	Assigned  int            `json:"assigned"`
	Units     []UnitResponse `json:"units"`
}

// POST /api/units/range-preview
func RangePreviewHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RangePreviewRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		preview, err := SelectRange(c.Context(), reg, body.From, body.To)
		if err != nil {
			return err
		}

		resp := RangePreviewResponse{
			Start:     preview.Start,
			End:       preview.End,
			Total:     len(preview.Units),
			Available: preview.Available,
			Assigned:  preview.Assigned,
			Units:     make([]UnitResponse, 0, len(preview.Units)),
		}
		for i := range preview.Units {
			resp.Units = append(resp.Units, toUnitResponse(&preview.Units[i]))
		}
		return c.JSON(resp)
	}
}

type BulkMutateRequest struct {
	UnitIDs []string `json:"unit_ids"`
	// alternative selection by range; used when unit_ids is empty
	From string `json:"from"`
	To   string `json:"to"`

	Action      string  `json:"action"` // set_status | assign_store | set_issue_flag
	Target      string  `json:"target"`
	StoreID     *uint   `json:"store_id"`
	CustomerRef *string `json:"customer_ref"`
	Flag        string  `json:"flag"`
	Notes       string  `json:"notes"`
}

// POST /api/units/bulk
// Partial failure is the contract here: the response always carries the
// per-unit succeeded/failed split and the call itself returns 200.
func BulkMutateHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkMutateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		unitIDs := body.UnitIDs
		if len(unitIDs) == 0 {
			if body.From == "" || body.To == "" {
				return fiber.NewError(fiber.StatusBadRequest, "unit_ids or a from/to range is required")
			}
			preview, err := SelectRange(c.Context(), reg, body.From, body.To)
			if err != nil {
				return err
			}
			for _, u := range preview.Units {
				unitIDs = append(unitIDs, u.UnitID)
			}
		}

		action := BulkAction{
			Kind:        ActionKind(body.Action),
			Target:      models.UnitStatus(body.Target),
			StoreID:     body.StoreID,
			CustomerRef: body.CustomerRef,
			Flag:        models.IssueFlag(body.Flag),
			Notes:       body.Notes,
		}
		switch action.Kind {
		case ActionSetStatus:
			if body.Target == "" {
				return fiber.NewError(fiber.StatusBadRequest, "target status is required for set_status")
			}
		case ActionAssignStore, ActionSetIssueFlag:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "action must be set_status, assign_store or set_issue_flag")
		}

		result := ApplyBulk(c.Context(), reg, unitIDs, action)

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "bulk_mutation",
			EntityID:    string(action.Kind),
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Bulk %s: %d ok, %d failed", action.Kind, len(result.Succeeded), len(result.Failed)),
			After:       result,
		})

		return c.JSON(result)
	}
}
