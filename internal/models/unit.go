package models

import "time"

type ProductType string

const (
	ProductEssential ProductType = "essential"
	ProductPremium   ProductType = "premium"
)

type UnitStatus string

const (
	StatusGenerated     UnitStatus = "generated"     // allocated, not yet sent to a manufacturer
	StatusManufacturing UnitStatus = "manufacturing" // bound to a sent manufacturer order
	StatusAvailable     UnitStatus = "available"     // in inventory, free to place or pack
	StatusOnline        UnitStatus = "online"        // listed in the online shop
	StatusInStore       UnitStatus = "in_store"      // placed at a retail store
	StatusPackaged      UnitStatus = "packaged"      // bound to a customer order by packing
	StatusClaimed       UnitStatus = "claimed"       // claimed by a customer scan
	StatusSold          UnitStatus = "sold"
	StatusShipped       UnitStatus = "shipped"
	StatusDelivered     UnitStatus = "delivered"
)

type IssueFlag string

const (
	IssueDamaged        IssueFlag = "damaged"
	IssueLost           IssueFlag = "lost"
	IssueDefective      IssueFlag = "defective"
	IssueCustomerReturn IssueFlag = "customer_return"
)

// QRUnit: one physical QR-tagged product instance. UnitID is the printed
// code ("QR000123"), SeqNo its numeric suffix used for range selection.
type QRUnit struct {
	ID          uint        `gorm:"primaryKey"`
	UnitID      string      `gorm:"size:50;uniqueIndex;not null"`
	Slug        string      `gorm:"size:100;uniqueIndex;not null"`
	SeqNo       int64       `gorm:"index;not null"`
	ProductType ProductType `gorm:"size:20;index;not null"`
	Status      UnitStatus  `gorm:"size:20;index;not null"`

	StoreID *uint `gorm:"index"`
	Store   *Store

	OrderID     *string `gorm:"size:40;index"` // customer order, set once packed/claimed
	CustomerRef *string `gorm:"size:100"`

	ManufacturerOrderID *string `gorm:"size:40;index"`

	IssueFlag  *IssueFlag `gorm:"size:20;index"`
	IssueNotes string     `gorm:"size:255"`

	ArtifactRef *string `gorm:"size:255"` // rendered visual code, nil while generation pending/failed

	ScanCount     int64 `gorm:"not null;default:0"`
	LastScannedAt *time.Time

	AssignedAt  *time.Time
	ClaimedAt   *time.Time
	SoldAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}
