package manufacturing

import (
	"fmt"
	"io"

	"qrtrace-backend/internal/audit"
	"qrtrace-backend/internal/auth"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"

	"github.com/gofiber/fiber/v2"
)

type PrepareRequest struct {
	Quantity    int    `json:"quantity"`
	ProductType string `json:"product_type"`
}

type ManufacturerOrderResponse struct {
	MOID              string `json:"mo_id"`
	OrderNumber       string `json:"order_number"`
	ProductType       string `json:"product_type"`
	Quantity          int    `json:"quantity"`
	Status            string `json:"status"`
	ManufacturerName  string `json:"manufacturer_name,omitempty"`
	ManufacturerEmail string `json:"manufacturer_email,omitempty"`
	RequestedCount    int    `json:"requested_count"`
	Fulfilled         bool   `json:"fulfilled"`
	SentAt            string `json:"sent_at,omitempty"`
	FulfilledAt       string `json:"fulfilled_at,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func toMOResponse(mo *models.ManufacturerOrder) ManufacturerOrderResponse {
	resp := ManufacturerOrderResponse{
		MOID:              mo.MOID,
		OrderNumber:       mo.OrderNumber,
		ProductType:       string(mo.ProductType),
		Quantity:          mo.Quantity,
		Status:            string(mo.Status),
		ManufacturerName:  mo.ManufacturerName,
		ManufacturerEmail: mo.ManufacturerEmail,
		RequestedCount:    len(unmarshalUnitIDs(mo.RequestedUnitIDs)),
		Fulfilled:         mo.FulfillmentManifest != nil,
		CreatedAt:         mo.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if mo.SentAt != nil {
		resp.SentAt = mo.SentAt.Format("2006-01-02 15:04:05")
	}
	if mo.FulfilledAt != nil {
		resp.FulfilledAt = mo.FulfilledAt.Format("2006-01-02 15:04:05")
	}
	return resp
}

// POST /api/manufacturer-orders
func PrepareHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PrepareRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		result, err := svc.Prepare(c.Context(), body.Quantity, models.ProductType(body.ProductType))
		if err != nil {
			return err
		}

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "manufacturer_order",
			EntityID:    result.Order.MOID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Prepared %s: %d created, %d collisions skipped", result.Order.OrderNumber, len(result.Created), len(result.Skipped)),
			After:       result.Order,
		})

		createdIDs := make([]string, 0, len(result.Created))
		for _, u := range result.Created {
			createdIDs = append(createdIDs, u.UnitID)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"order":               toMOResponse(result.Order),
			"created":             createdIDs,
			"created_count":       len(result.Created),
			"skipped_collisions":  result.Skipped,
			"collision_shortfall": len(result.Skipped),
			"artifact_failures":   result.ArtifactFailures,
		})
	}
}

type SendRequest struct {
	ManufacturerName  string `json:"manufacturer_name"`
	ManufacturerEmail string `json:"manufacturer_email"`
}

// POST /api/manufacturer-orders/:id/send
func SendHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body SendRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.ManufacturerName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "manufacturer_name is required")
		}

		result, err := svc.Send(c.Context(), c.Params("id"), body.ManufacturerName, body.ManufacturerEmail)
		if err != nil {
			return err
		}

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "manufacturer_order",
			EntityID:    result.Order.MOID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Sent to %s: %d units into manufacturing, %d skipped", body.ManufacturerName, result.Moved, len(result.Skipped)),
			After:       result.Order,
		})

		return c.JSON(fiber.Map{
			"order":         toMOResponse(result.Order),
			"moved_units":   result.Moved,
			"skipped_units": result.Skipped,
		})
	}
}

// POST /api/manufacturer-orders/:id/fulfill
// Accepts a multipart "file" (CSV or XLSX) or a raw CSV body.
func FulfillHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		moID := c.Params("id")

		var data []byte
		filename := "manifest.csv"
		if fileHeader, err := c.FormFile("file"); err == nil {
			filename = fileHeader.Filename
			file, err := fileHeader.Open()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Could not open uploaded file")
			}
			defer file.Close()
			data, err = io.ReadAll(file)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Could not read uploaded file")
			}
		} else {
			data = c.Body()
		}
		if len(data) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Fulfillment manifest is empty")
		}

		result, err := svc.Fulfill(c.Context(), moID, data, filename)
		if err != nil {
			return err
		}

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "manufacturer_order",
			EntityID:    moID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Fulfillment applied: %d units available, %d still in production", result.UpdatedCount, len(result.UnmatchedRequested)),
			After:       result,
		})

		return c.JSON(fiber.Map{
			"updated_count":       result.UpdatedCount,
			"unmatched_requested": result.UnmatchedRequested,
			"unknown_rows":        result.UnknownRows,
		})
	}
}

// GET /api/manufacturer-orders
func ListHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mos, err := reg.ListManufacturerOrders(c.Context())
		if err != nil {
			return err
		}
		resp := make([]ManufacturerOrderResponse, 0, len(mos))
		for i := range mos {
			resp = append(resp, toMOResponse(&mos[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/manufacturer-orders/:id
func GetHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mo, err := reg.GetManufacturerOrder(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(toMOResponse(mo))
	}
}

// GET /api/manufacturer-orders/:id/manifest
// Downloads the frozen order manifest as CSV.
func ManifestDownloadHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mo, err := reg.GetManufacturerOrder(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.csv"`, mo.OrderNumber))
		return c.SendString(mo.OrderManifest)
	}
}

// POST /api/units/:unit_id/artifact
// Retries a failed visual-code generation for one unit.
func RegenerateArtifactHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref, err := svc.RegenerateArtifact(c.Context(), c.Params("unit_id"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"artifact_ref": ref})
	}
}
