package database

import (
	"log"

	"qrtrace-backend/internal/config"
	"qrtrace-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Store{},
		&models.QRUnit{},
		&models.Order{},
		&models.ManufacturerOrder{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	// range selection and admin filters hit these hard; AutoMigrate covers
	// the tagged single-column indexes, the composite ones are manual
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_qr_units_status_product_type ON qr_units(status, product_type)",
		"CREATE INDEX IF NOT EXISTS idx_qr_units_status_seq_no ON qr_units(status, seq_no)",
	}
	for _, stmt := range indexes {
		if err := DB.Exec(stmt).Error; err != nil {
			log.Printf("index creation failed (may already exist): %v", err)
		}
	}

	log.Println("Database connected. Migration complete.")
}
