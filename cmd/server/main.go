package main

import (
	"errors"
	"log"
	"strings"

	"qrtrace-backend/internal/audit"
	"qrtrace-backend/internal/auth"
	"qrtrace-backend/internal/config"
	"qrtrace-backend/internal/database"
	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/manufacturing"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/orders"
	"qrtrace-backend/internal/packing"
	"qrtrace-backend/internal/qrartifact"
	"qrtrace-backend/internal/registry"
	"qrtrace-backend/internal/stores"
	"qrtrace-backend/internal/units"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	reg := registry.NewGorm(database.DB)
	artifactGen := qrartifact.NewHTTPGenerator(cfg.RenderServiceURL, cfg.ArtifactPath)
	mfgService := manufacturing.NewService(reg, artifactGen, cfg.PublicBaseURL)
	packingService := packing.NewService(reg)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Public
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))
	// customer-facing scan telemetry, no auth
	api.Post("/units/:unit_id/scan", units.ScanUnitHandler(reg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Store directory
	protected.Get("/stores", stores.ListStoresHandler())
	protected.Get("/stores/:id", stores.GetStoreHandler())
	adminOnly := protected.Group("")
	adminOnly.Use(auth.RequireRole(models.RoleAdmin))
	adminOnly.Post("/stores", stores.CreateStoreHandler())
	adminOnly.Put("/stores/:id", stores.UpdateStoreHandler())
	adminOnly.Delete("/stores/:id", stores.DeleteStoreHandler())

	// Unit registry
	protected.Get("/units", units.ListUnitsHandler(reg))
	protected.Get("/units/:unit_id", units.GetUnitHandler(reg))
	adminOnly.Delete("/units/:unit_id", units.DeleteUnitHandler(reg))
	protected.Post("/units/:unit_id/artifact", manufacturing.RegenerateArtifactHandler(mfgService))

	// Range selection & bulk mutation
	protected.Post("/units/range-preview", units.RangePreviewHandler(reg))
	protected.Post("/units/bulk", units.BulkMutateHandler(reg))

	// Customer orders & packing
	protected.Post("/orders", orders.CreateOrderHandler(reg))
	protected.Get("/orders", orders.ListOrdersHandler(reg))
	protected.Get("/orders/:id", orders.GetOrderHandler(reg))
	protected.Post("/orders/:id/ship", orders.ShipOrderHandler(reg))

	protected.Post("/packing/sessions", packing.OpenSessionHandler(packingService))
	protected.Get("/packing/sessions/:id", packing.GetSessionHandler(packingService))
	protected.Post("/packing/sessions/:id/scan", packing.ScanHandler(packingService))
	protected.Post("/packing/sessions/:id/complete", packing.CompleteHandler(packingService))
	protected.Delete("/packing/sessions/:id", packing.CancelHandler(packingService))

	// Manufacturer orders
	protected.Post("/manufacturer-orders", manufacturing.PrepareHandler(mfgService))
	protected.Get("/manufacturer-orders", manufacturing.ListHandler(reg))
	protected.Get("/manufacturer-orders/:id", manufacturing.GetHandler(reg))
	protected.Get("/manufacturer-orders/:id/manifest", manufacturing.ManifestDownloadHandler(reg))
	protected.Post("/manufacturer-orders/:id/send", manufacturing.SendHandler(mfgService))
	protected.Post("/manufacturer-orders/:id/fulfill", manufacturing.FulfillHandler(mfgService))

	// Audit trail
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}

// errorHandler maps domain errors onto HTTP codes so handlers can return
// them untranslated.
func errorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
	}

	var illegal *lifecycle.IllegalTransitionError
	if errors.As(err, &illegal) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": illegal.Error()})
	}
	var mismatch *packing.QuantityMismatchError
	if errors.As(err, &mismatch) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":    mismatch.Error(),
			"required": mismatch.Required,
			"actual":   mismatch.Actual,
		})
	}

	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, packing.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, registry.ErrConflict),
		errors.Is(err, registry.ErrAlreadyFulfilled),
		errors.Is(err, packing.ErrAlreadyScanned),
		errors.Is(err, packing.ErrOrderNotPackable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, packing.ErrNotAvailable),
		errors.Is(err, manufacturing.ErrNotSent):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, units.ErrInvalidRange),
		errors.Is(err, manufacturing.ErrBadQuantity),
		errors.Is(err, manufacturing.ErrManifestParse),
		errors.Is(err, manufacturing.ErrManifestEmpty),
		errors.Is(err, manufacturing.ErrManifestColumns),
		errors.Is(err, qrartifact.ErrDisabled):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	log.Println("Unexpected error:", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Unexpected server error",
	})
}
