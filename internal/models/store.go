package models

import "time"

// Store: retail location units can be placed at. CurrentInventory is derived
// from in_store unit counts, never written directly.
type Store struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Address   string `gorm:"size:255"`
	Capacity  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
