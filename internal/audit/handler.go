package audit

import (
	"strconv"

	"qrtrace-backend/internal/database"
	"qrtrace-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GET /api/audit-logs?entity_type=unit&entity_id=QR000123&limit=100
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Model(&models.AuditLog{}).Order("created_at DESC")

		if et := c.Query("entity_type"); et != "" {
			q = q.Where("entity_type = ?", et)
		}
		if eid := c.Query("entity_id"); eid != "" {
			q = q.Where("entity_id = ?", eid)
		}

		limit := 100
		if ls := c.Query("limit"); ls != "" {
			if n, err := strconv.Atoi(ls); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		var logs []models.AuditLog
		if err := q.Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list audit logs")
		}

		return c.JSON(logs)
	}
}
