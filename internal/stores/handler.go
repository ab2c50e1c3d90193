// Package stores is the retail store directory consumed by the assign-store
// bulk action and the range/bulk previews.
package stores

import (
	"strings"

	"qrtrace-backend/internal/database"
	"qrtrace-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type StoreResponse struct {
	ID               uint   `json:"store_id"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	Capacity         int    `json:"capacity"`
	CurrentInventory int64  `json:"current_inventory"`
	CreatedAt        string `json:"created_at"`
}

type CreateStoreRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity"`
}

type UpdateStoreRequest struct {
	Name     *string `json:"name"`
	Address  *string `json:"address"`
	Capacity *int    `json:"capacity"`
}

func toStoreResponse(s *models.Store, inventory int64) StoreResponse {
	return StoreResponse{
		ID:               s.ID,
		Name:             s.Name,
		Address:          s.Address,
		Capacity:         s.Capacity,
		CurrentInventory: inventory,
		CreatedAt:        s.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func inStoreCount(storeID uint) int64 {
	var count int64
	database.DB.Model(&models.QRUnit{}).
		Where("store_id = ? AND status = ?", storeID, models.StatusInStore).
		Count(&count)
	return count
}

// POST /api/stores
func CreateStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateStoreRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Store name is required")
		}

		store := models.Store{
			Name:     body.Name,
			Address:  body.Address,
			Capacity: body.Capacity,
		}
		if err := database.DB.Create(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create store")
		}

		return c.Status(fiber.StatusCreated).JSON(toStoreResponse(&store, 0))
	}
}

// GET /api/stores
func ListStoresHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var found []models.Store
		if err := database.DB.Order("name ASC").Find(&found).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list stores")
		}

		resp := make([]StoreResponse, 0, len(found))
		for i := range found {
			resp = append(resp, toStoreResponse(&found[i], inStoreCount(found[i].ID)))
		}
		return c.JSON(resp)
	}
}

// GET /api/stores/:id
func GetStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var store models.Store
		if err := database.DB.First(&store, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}
		return c.JSON(toStoreResponse(&store, inStoreCount(store.ID)))
	}
}

// PUT /api/stores/:id
func UpdateStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var store models.Store
		if err := database.DB.First(&store, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}

		var body UpdateStoreRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Store name cannot be empty")
			}
			store.Name = name
		}
		if body.Address != nil {
			store.Address = *body.Address
		}
		if body.Capacity != nil {
			store.Capacity = *body.Capacity
		}

		if err := database.DB.Save(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update store")
		}
		return c.JSON(toStoreResponse(&store, inStoreCount(store.ID)))
	}
}

// DELETE /api/stores/:id
func DeleteStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var store models.Store
		if err := database.DB.First(&store, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}

		if count := inStoreCount(store.ID); count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Store still holds placed units")
		}

		if err := database.DB.Delete(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete store")
		}
		return c.JSON(fiber.Map{"message": "Store deleted"})
	}
}
