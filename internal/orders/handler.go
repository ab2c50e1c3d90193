// Package orders is the console surface for customer orders. Orders are
// created by checkout; the import endpoint exists for the storefront webhook
// and manual entry. Packing consumes them through internal/packing.
package orders

import (
	"fmt"
	"strings"
	"time"

	"qrtrace-backend/internal/audit"
	"qrtrace-backend/internal/auth"
	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateOrderRequest struct {
	OrderNumber      string `json:"order_number"`
	CustomerRef      string `json:"customer_ref"`
	RequiredQuantity int    `json:"required_quantity"`
}

type OrderResponse struct {
	OrderID          string   `json:"order_id"`
	OrderNumber      string   `json:"order_number"`
	CustomerRef      string   `json:"customer_ref,omitempty"`
	RequiredQuantity int      `json:"required_quantity"`
	Status           string   `json:"status"`
	TrackingNumber   string   `json:"tracking_number,omitempty"`
	AssignedUnits    []string `json:"assigned_units,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

func toOrderResponse(o *models.Order, assigned []string) OrderResponse {
	return OrderResponse{
		OrderID:          o.OrderID,
		OrderNumber:      o.OrderNumber,
		CustomerRef:      o.CustomerRef,
		RequiredQuantity: o.RequiredQuantity,
		Status:           string(o.Status),
		TrackingNumber:   o.TrackingNumber,
		AssignedUnits:    assigned,
		CreatedAt:        o.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// POST /api/orders
func CreateOrderHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.OrderNumber = strings.TrimSpace(body.OrderNumber)
		if body.OrderNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "order_number is required")
		}
		if body.RequiredQuantity < 1 {
			return fiber.NewError(fiber.StatusBadRequest, "required_quantity must be at least 1")
		}

		order := &models.Order{
			OrderID:          uuid.NewString(),
			OrderNumber:      body.OrderNumber,
			CustomerRef:      body.CustomerRef,
			RequiredQuantity: body.RequiredQuantity,
			Status:           models.OrderNew,
		}
		if err := reg.CreateOrder(c.Context(), order); err != nil {
			return err
		}

		userID, userName := auth.UserInfo(c)
		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "order",
			EntityID:    order.OrderID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Order %s imported: %d units required", order.OrderNumber, order.RequiredQuantity),
			After:       order,
		})

		return c.Status(fiber.StatusCreated).JSON(toOrderResponse(order, nil))
	}
}

// GET /api/orders
func ListOrdersHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		found, err := reg.ListOrders(c.Context())
		if err != nil {
			return err
		}
		resp := make([]OrderResponse, 0, len(found))
		for i := range found {
			resp = append(resp, toOrderResponse(&found[i], nil))
		}
		return c.JSON(resp)
	}
}

// GET /api/orders/:id
func GetOrderHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orderID := c.Params("id")
		order, err := reg.GetOrder(c.Context(), orderID)
		if err != nil {
			return err
		}

		assignedUnits, err := reg.FindUnits(c.Context(), registry.Filter{OrderID: &orderID})
		if err != nil {
			return err
		}
		assigned := make([]string, 0, len(assignedUnits))
		for _, u := range assignedUnits {
			assigned = append(assigned, u.UnitID)
		}

		return c.JSON(toOrderResponse(order, assigned))
	}
}

type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"` // opaque carrier reference
}

// POST /api/orders/:id/ship
// Marks a packed order shipped and moves its units along with it.
func ShipOrderHandler(reg registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ShipOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		orderID := c.Params("id")
		order, err := reg.GetOrder(c.Context(), orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPackaged && order.Status != models.OrderReadyToShip {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Order is not ready to ship")
		}

		now := time.Now()
		err = reg.Transact(c.Context(), func(tx registry.Registry) error {
			assigned, err := tx.FindUnits(c.Context(), registry.Filter{OrderID: &orderID})
			if err != nil {
				return err
			}
			for i := range assigned {
				unit := &assigned[i]
				fx, err := lifecycle.Validate(unit, lifecycle.Transition{Target: models.StatusShipped, Now: now})
				if err != nil {
					return err
				}
				if _, err := tx.UpdateUnitCAS(c.Context(), unit.UnitID, unit.Status, models.StatusShipped, fx); err != nil {
					return err
				}
			}

			order.Status = models.OrderShipped
			order.TrackingNumber = body.TrackingNumber
			order.ShippedAt = &now
			return tx.SaveOrder(c.Context(), order)
		})
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
			Description: fmt.Sprintf("Order %s shipped", order.OrderNumber),
			After:       order,
		})

		return c.JSON(toOrderResponse(order, nil))
	}
}
