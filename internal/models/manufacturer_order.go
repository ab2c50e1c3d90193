package models

import "time"

type ManufacturerOrderStatus string

const (
	MOPending   ManufacturerOrderStatus = "pending"
	MOSent      ManufacturerOrderStatus = "sent"
	MOFulfilled ManufacturerOrderStatus = "fulfilled"
)

// ManufacturerOrder: a batch request for new units. RequestedUnitIDs and
// OrderManifest are frozen once the order is sent; FulfillmentManifest is
// written exactly once when the producer's file is accepted.
type ManufacturerOrder struct {
	ID          uint                    `gorm:"primaryKey"`
	MOID        string                  `gorm:"size:40;uniqueIndex;not null"`
	OrderNumber string                  `gorm:"size:40;uniqueIndex;not null"`
	ProductType ProductType             `gorm:"size:20;not null"`
	Quantity    int                     `gorm:"not null"` // requested; created count may be lower on collisions
	Status      ManufacturerOrderStatus `gorm:"size:20;index;not null"`

	ManufacturerName  string `gorm:"size:100"`
	ManufacturerEmail string `gorm:"size:100"`

	RequestedUnitIDs    string  `gorm:"type:jsonb;not null;default:'[]'"` // JSON array of unit IDs
	OrderManifest       string  `gorm:"type:text"`
	FulfillmentManifest *string `gorm:"type:text"`

	SentAt      *time.Time
	FulfilledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
