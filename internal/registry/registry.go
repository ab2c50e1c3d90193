// Package registry is the canonical store for units, customer orders and
// manufacturer orders. Two backends implement it: the GORM/Postgres one used
// by the server and an in-memory one used by tests. Every status write is a
// compare-and-swap on (unit_id, expected_status); Transact is the one
// multi-record atomic scope (packing commit, delete-with-detach).
package registry

import (
	"context"
	"errors"
	"time"

	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/models"
)

var (
	// ErrNotFound: unknown unit/order/manufacturer-order id.
	ErrNotFound = errors.New("not found")
	// ErrConflict: CAS lost against a concurrent writer, or a delete was
	// attempted on a unit still bound to an open order. Callers re-fetch and
	// retry or surface 409.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyFulfilled: a fulfillment manifest was already accepted for
	// the manufacturer order; the stored manifest is immutable.
	ErrAlreadyFulfilled = errors.New("fulfillment manifest already accepted")
)

// Filter: composable AND predicate for unit queries. Zero fields match all.
type Filter struct {
	Statuses            []models.UnitStatus
	ProductType         *models.ProductType
	StoreID             *uint
	IssueFlag           *models.IssueFlag
	OrderID             *string
	ManufacturerOrderID *string
	CreatedAfter        *time.Time
	CreatedBefore       *time.Time
	// inclusive bounds on the ID's digit value (range selection); a value
	// filter, not a key scan, because the keyspace is not contiguous.
	SeqFrom *int64
	SeqTo   *int64
}

type Registry interface {
	// Transact runs fn against a transactional view; any error rolls every
	// write back.
	Transact(ctx context.Context, fn func(Registry) error) error

	GetUnit(ctx context.Context, unitID string) (*models.QRUnit, error)
	FindUnits(ctx context.Context, f Filter) ([]models.QRUnit, error)
	// MaxSeqNo returns the highest allocated numeric unit id, 0 when empty.
	MaxSeqNo(ctx context.Context) (int64, error)
	// CreateBatch inserts the non-colliding subset of candidates and reports
	// the colliding unit ids. It never tops the batch up; the shortfall is
	// the operator's call. Check and insert happen in one transaction.
	CreateBatch(ctx context.Context, candidates []models.QRUnit) (created []models.QRUnit, skipped []string, err error)
	// UpdateUnitCAS sets the status and side-effect fields iff the unit is
	// still in the expected status, returning the updated unit. ErrConflict
	// when another writer got there first.
	UpdateUnitCAS(ctx context.Context, unitID string, expected, target models.UnitStatus, fx lifecycle.SideEffects) (*models.QRUnit, error)
	// SetUnitFields writes non-lifecycle fields (issue flag, store
	// assignment, artifact ref) without touching status.
	SetUnitFields(ctx context.Context, unitID string, fields map[string]any) error
	// RecordScan bumps scan_count and last_scanned_at.
	RecordScan(ctx context.Context, unitID string) (*models.QRUnit, error)
	// DeleteUnit removes a unit unless it is bound to a non-terminal order
	// or a sent-but-unfulfilled manufacturer order (ErrConflict).
	DeleteUnit(ctx context.Context, unitID string) error

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	SaveOrder(ctx context.Context, o *models.Order) error

	CreateManufacturerOrder(ctx context.Context, mo *models.ManufacturerOrder) error
	GetManufacturerOrder(ctx context.Context, moID string) (*models.ManufacturerOrder, error)
	ListManufacturerOrders(ctx context.Context) ([]models.ManufacturerOrder, error)
	// MarkManufacturerOrderSent freezes requested_unit_ids and moves
	// pending -> sent; ErrConflict if no longer pending.
	MarkManufacturerOrderSent(ctx context.Context, mo *models.ManufacturerOrder) error
	// AcceptFulfillment stores the manifest verbatim and moves the order to
	// fulfilled, only if no manifest was stored before (ErrAlreadyFulfilled).
	AcceptFulfillment(ctx context.Context, moID string, manifest string, now time.Time) error
}
