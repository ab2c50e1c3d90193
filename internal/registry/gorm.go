package registry

import (
	"context"
	"errors"
	"time"

	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/metrics"
	"qrtrace-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgErrUniqueViolation = "23505"

// Gorm: Postgres-backed registry. All writes go through the *gorm.DB handle;
// Transact swaps the handle for a transaction-scoped one.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Transact(ctx context.Context, fn func(Registry) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

func (g *Gorm) GetUnit(ctx context.Context, unitID string) (*models.QRUnit, error) {
	var unit models.QRUnit
	if err := g.db.WithContext(ctx).First(&unit, "unit_id = ?", unitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

func (g *Gorm) FindUnits(ctx context.Context, f Filter) ([]models.QRUnit, error) {
	q := g.db.WithContext(ctx).Model(&models.QRUnit{})
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.ProductType != nil {
		q = q.Where("product_type = ?", *f.ProductType)
	}
	if f.StoreID != nil {
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.IssueFlag != nil {
		q = q.Where("issue_flag = ?", *f.IssueFlag)
	}
	if f.OrderID != nil {
		q = q.Where("order_id = ?", *f.OrderID)
	}
	if f.ManufacturerOrderID != nil {
		q = q.Where("manufacturer_order_id = ?", *f.ManufacturerOrderID)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *f.CreatedBefore)
	}
	if f.SeqFrom != nil {
		q = q.Where("seq_no >= ?", *f.SeqFrom)
	}
	if f.SeqTo != nil {
		q = q.Where("seq_no <= ?", *f.SeqTo)
	}

	var units []models.QRUnit
	if err := q.Order("seq_no ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (g *Gorm) MaxSeqNo(ctx context.Context) (int64, error) {
	var max int64
	err := g.db.WithContext(ctx).Model(&models.QRUnit{}).
		Select("COALESCE(MAX(seq_no), 0)").Scan(&max).Error
	return max, err
}

func (g *Gorm) CreateBatch(ctx context.Context, candidates []models.QRUnit) ([]models.QRUnit, []string, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	var created []models.QRUnit
	var skipped []string

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unitIDs := make([]string, 0, len(candidates))
		slugs := make([]string, 0, len(candidates))
		for _, c := range candidates {
			unitIDs = append(unitIDs, c.UnitID)
			slugs = append(slugs, c.Slug)
		}

		var existing []models.QRUnit
		if err := tx.Select("unit_id", "slug").
			Where("unit_id IN ? OR slug IN ?", unitIDs, slugs).
			Find(&existing).Error; err != nil {
			return err
		}

		taken := make(map[string]bool, len(existing)*2)
		for _, e := range existing {
			taken[e.UnitID] = true
			taken[e.Slug] = true
		}

		for _, c := range candidates {
			if taken[c.UnitID] || taken[c.Slug] {
				skipped = append(skipped, c.UnitID)
				continue
			}
			created = append(created, c)
		}

		if len(created) == 0 {
			return nil
		}
		if err := tx.Create(&created).Error; err != nil {
			// two preparations racing past the check collide on the unique
			// index; the loser retries against fresh state
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.UnitsCreatedTotal.Add(float64(len(created)))
	return created, skipped, nil
}

func (g *Gorm) UpdateUnitCAS(ctx context.Context, unitID string, expected, target models.UnitStatus, fx lifecycle.SideEffects) (*models.QRUnit, error) {
	updates := map[string]any{"status": target}
	for col, v := range fx {
		updates[col] = v
	}

	res := g.db.WithContext(ctx).Model(&models.QRUnit{}).
		Where("unit_id = ? AND status = ?", unitID, expected).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// distinguish a missing unit from a lost race
		var count int64
		if err := g.db.WithContext(ctx).Model(&models.QRUnit{}).
			Where("unit_id = ?", unitID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		metrics.CASConflictsTotal.Inc()
		return nil, ErrConflict
	}

	metrics.TransitionsTotal.WithLabelValues(string(target)).Inc()
	return g.GetUnit(ctx, unitID)
}

func (g *Gorm) SetUnitFields(ctx context.Context, unitID string, fields map[string]any) error {
	res := g.db.WithContext(ctx).Model(&models.QRUnit{}).
		Where("unit_id = ?", unitID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) RecordScan(ctx context.Context, unitID string) (*models.QRUnit, error) {
	res := g.db.WithContext(ctx).Model(&models.QRUnit{}).
		Where("unit_id = ?", unitID).
		Updates(map[string]any{
			"scan_count":      gorm.Expr("scan_count + 1"),
			"last_scanned_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return g.GetUnit(ctx, unitID)
}

func (g *Gorm) DeleteUnit(ctx context.Context, unitID string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := &Gorm{db: tx}
		unit, err := inner.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if err := deleteGuard(ctx, inner, unit); err != nil {
			return err
		}
		return tx.Delete(&models.QRUnit{}, "unit_id = ?", unitID).Error
	})
}

// deleteGuard enforces the detach rules shared by both backends: a unit
// bound to an open customer order or to a sent-but-unfulfilled manufacturer
// order must not disappear from under it.
func deleteGuard(ctx context.Context, r Registry, unit *models.QRUnit) error {
	if unit.OrderID != nil {
		order, err := r.GetOrder(ctx, *unit.OrderID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err == nil && order.Status != models.OrderCompleted {
			return ErrConflict
		}
	}
	if unit.ManufacturerOrderID != nil {
		mo, err := r.GetManufacturerOrder(ctx, *unit.ManufacturerOrderID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err == nil && mo.Status == models.MOSent {
			return ErrConflict
		}
	}
	return nil
}

func (g *Gorm) CreateOrder(ctx context.Context, o *models.Order) error {
	return g.db.WithContext(ctx).Create(o).Error
}

func (g *Gorm) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := g.db.WithContext(ctx).First(&order, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (g *Gorm) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := g.db.WithContext(ctx).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (g *Gorm) SaveOrder(ctx context.Context, o *models.Order) error {
	return g.db.WithContext(ctx).Save(o).Error
}

func (g *Gorm) CreateManufacturerOrder(ctx context.Context, mo *models.ManufacturerOrder) error {
	return g.db.WithContext(ctx).Create(mo).Error
}

func (g *Gorm) GetManufacturerOrder(ctx context.Context, moID string) (*models.ManufacturerOrder, error) {
	var mo models.ManufacturerOrder
	if err := g.db.WithContext(ctx).First(&mo, "mo_id = ?", moID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mo, nil
}

func (g *Gorm) ListManufacturerOrders(ctx context.Context) ([]models.ManufacturerOrder, error) {
	var mos []models.ManufacturerOrder
	if err := g.db.WithContext(ctx).Order("created_at DESC").Find(&mos).Error; err != nil {
		return nil, err
	}
	return mos, nil
}

func (g *Gorm) MarkManufacturerOrderSent(ctx context.Context, mo *models.ManufacturerOrder) error {
	res := g.db.WithContext(ctx).Model(&models.ManufacturerOrder{}).
		Where("mo_id = ? AND status = ?", mo.MOID, models.MOPending).
		Updates(map[string]any{
			"status":             models.MOSent,
			"manufacturer_name":  mo.ManufacturerName,
			"manufacturer_email": mo.ManufacturerEmail,
			"requested_unit_ids": mo.RequestedUnitIDs,
			"sent_at":            mo.SentAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := g.db.WithContext(ctx).Model(&models.ManufacturerOrder{}).
			Where("mo_id = ?", mo.MOID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (g *Gorm) AcceptFulfillment(ctx context.Context, moID string, manifest string, now time.Time) error {
	res := g.db.WithContext(ctx).Model(&models.ManufacturerOrder{}).
		Where("mo_id = ? AND fulfillment_manifest IS NULL", moID).
		Updates(map[string]any{
			"fulfillment_manifest": manifest,
			"status":               models.MOFulfilled,
			"fulfilled_at":         now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := g.db.WithContext(ctx).Model(&models.ManufacturerOrder{}).
			Where("mo_id = ?", moID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrAlreadyFulfilled
	}
	return nil
}
