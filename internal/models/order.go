package models

import "time"

type OrderStatus string

const (
	OrderNew         OrderStatus = "new"
	OrderProcessing  OrderStatus = "processing"
	OrderPackaged    OrderStatus = "packaged"
	OrderReadyToShip OrderStatus = "ready_to_ship"
	OrderShipped     OrderStatus = "shipped"
	OrderCompleted   OrderStatus = "completed"
)

// Order: customer order created by checkout, consumed by the packing flow.
// RequiredQuantity is the sum of line-item quantities; assigned units are the
// QRUnit rows carrying this order's OrderID.
type Order struct {
	ID               uint        `gorm:"primaryKey"`
	OrderID          string      `gorm:"size:40;uniqueIndex;not null"`
	OrderNumber      string      `gorm:"size:40;uniqueIndex;not null"`
	CustomerRef      string      `gorm:"size:100"`
	RequiredQuantity int         `gorm:"not null"`
	Status           OrderStatus `gorm:"size:20;index;not null"`
	TrackingNumber   string      `gorm:"size:100"` // opaque carrier reference
	PackedAt         *time.Time
	ShippedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
