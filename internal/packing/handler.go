package packing

import (
	"fmt"

	"qrtrace-backend/internal/audit"
	"qrtrace-backend/internal/auth"
	"qrtrace-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type OpenSessionRequest struct {
	OrderID string `json:"order_id"`
}

type ScanRequest struct {
	UnitID string `json:"unit_id"`
}

// POST /api/packing/sessions
func OpenSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body OpenSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.OrderID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "order_id is required")
		}

		session, err := svc.Open(c.Context(), body.OrderID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// GET /api/packing/sessions/:id
func GetSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := svc.Get(c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(session)
	}
}

// POST /api/packing/sessions/:id/scan
func ScanHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ScanRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.UnitID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "unit_id is required")
		}

		session, err := svc.Scan(c.Context(), c.Params("id"), body.UnitID)
		if err != nil {
			return err
		}
		return c.JSON(session)
	}
}

// POST /api/packing/sessions/:id/complete
func CompleteHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Params("id")
		session, err := svc.Get(sessionID)
		if err != nil {
			return err
		}

		order, err := svc.Complete(c.Context(), sessionID)
		if err != nil {
			return err
		}

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "order",
			EntityID:    order.OrderID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Order packed: %d units bound", len(session.Scanned)),
			After:       session.Scanned,
		})

		return c.JSON(fiber.Map{
			"message":  "Order packed",
			"order_id": order.OrderID,
			"status":   order.Status,
			"units":    session.Scanned,
		})
	}
}

// DELETE /api/packing/sessions/:id
func CancelHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Cancel(c.Params("id")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Session cancelled"})
	}
}
