package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/models"
)

// Memory: in-memory registry with the same CAS and transaction semantics as
// the Postgres backend. Used by the test suite and for local demos.
type Memory struct {
	mu    sync.Mutex
	state *memState
	inTx  bool
}

type memState struct {
	units  map[string]*models.QRUnit            // by unit_id
	orders map[string]*models.Order             // by order_id
	mos    map[string]*models.ManufacturerOrder // by mo_id
	nextID uint
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		units:  map[string]*models.QRUnit{},
		orders: map[string]*models.Order{},
		mos:    map[string]*models.ManufacturerOrder{},
		nextID: 1,
	}}
}

// begin locks the store unless this view already runs inside a transaction,
// in which case the outer Transact holds the lock.
func (m *Memory) begin() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) Transact(ctx context.Context, fn func(Registry) error) error {
	if m.inTx {
		// nested scopes join the outer transaction
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Memory{state: m.state.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *Memory) GetUnit(ctx context.Context, unitID string) (*models.QRUnit, error) {
	defer m.begin()()
	u, ok := m.state.units[unitID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUnit(u), nil
}

func (m *Memory) FindUnits(ctx context.Context, f Filter) ([]models.QRUnit, error) {
	defer m.begin()()
	var out []models.QRUnit
	for _, u := range m.state.units {
		if matches(u, f) {
			out = append(out, *copyUnit(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNo < out[j].SeqNo })
	return out, nil
}

func matches(u *models.QRUnit, f Filter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if u.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ProductType != nil && u.ProductType != *f.ProductType {
		return false
	}
	if f.StoreID != nil && (u.StoreID == nil || *u.StoreID != *f.StoreID) {
		return false
	}
	if f.IssueFlag != nil && (u.IssueFlag == nil || *u.IssueFlag != *f.IssueFlag) {
		return false
	}
	if f.OrderID != nil && (u.OrderID == nil || *u.OrderID != *f.OrderID) {
		return false
	}
	if f.ManufacturerOrderID != nil && (u.ManufacturerOrderID == nil || *u.ManufacturerOrderID != *f.ManufacturerOrderID) {
		return false
	}
	if f.CreatedAfter != nil && u.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && u.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.SeqFrom != nil && u.SeqNo < *f.SeqFrom {
		return false
	}
	if f.SeqTo != nil && u.SeqNo > *f.SeqTo {
		return false
	}
	return true
}

func (m *Memory) MaxSeqNo(ctx context.Context) (int64, error) {
	defer m.begin()()
	var max int64
	for _, u := range m.state.units {
		if u.SeqNo > max {
			max = u.SeqNo
		}
	}
	return max, nil
}

func (m *Memory) CreateBatch(ctx context.Context, candidates []models.QRUnit) ([]models.QRUnit, []string, error) {
	defer m.begin()()

	slugs := make(map[string]bool, len(m.state.units))
	for _, u := range m.state.units {
		slugs[u.Slug] = true
	}

	var created []models.QRUnit
	var skipped []string
	now := time.Now()
	for _, c := range candidates {
		if _, exists := m.state.units[c.UnitID]; exists || slugs[c.Slug] {
			skipped = append(skipped, c.UnitID)
			continue
		}
		u := c
		u.ID = m.state.nextID
		m.state.nextID++
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
		m.state.units[u.UnitID] = copyUnit(&u)
		slugs[u.Slug] = true
		created = append(created, u)
	}
	return created, skipped, nil
}

func (m *Memory) UpdateUnitCAS(ctx context.Context, unitID string, expected, target models.UnitStatus, fx lifecycle.SideEffects) (*models.QRUnit, error) {
	defer m.begin()()
	u, ok := m.state.units[unitID]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Status != expected {
		return nil, ErrConflict
	}
	lifecycle.Apply(u, target, fx)
	u.UpdatedAt = time.Now()
	return copyUnit(u), nil
}

func (m *Memory) SetUnitFields(ctx context.Context, unitID string, fields map[string]any) error {
	defer m.begin()()
	u, ok := m.state.units[unitID]
	if !ok {
		return ErrNotFound
	}
	for col, v := range fields {
		switch col {
		case "issue_flag":
			switch x := v.(type) {
			case nil:
				u.IssueFlag = nil
			case models.IssueFlag:
				u.IssueFlag = &x
			case *models.IssueFlag:
				u.IssueFlag = x
			}
		case "issue_notes":
			if s, ok := v.(string); ok {
				u.IssueNotes = s
			}
		case "artifact_ref":
			switch x := v.(type) {
			case nil:
				u.ArtifactRef = nil
			case string:
				u.ArtifactRef = &x
			case *string:
				u.ArtifactRef = x
			}
		default:
			lifecycle.Apply(u, u.Status, lifecycle.SideEffects{col: v})
		}
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) RecordScan(ctx context.Context, unitID string) (*models.QRUnit, error) {
	defer m.begin()()
	u, ok := m.state.units[unitID]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	u.ScanCount++
	u.LastScannedAt = &now
	return copyUnit(u), nil
}

func (m *Memory) DeleteUnit(ctx context.Context, unitID string) error {
	defer m.begin()()
	u, ok := m.state.units[unitID]
	if !ok {
		return ErrNotFound
	}
	if err := deleteGuard(ctx, &Memory{state: m.state, inTx: true}, u); err != nil {
		return err
	}
	delete(m.state.units, unitID)
	return nil
}

func (m *Memory) CreateOrder(ctx context.Context, o *models.Order) error {
	defer m.begin()()
	if _, exists := m.state.orders[o.OrderID]; exists {
		return ErrConflict
	}
	o.ID = m.state.nextID
	m.state.nextID++
	m.state.orders[o.OrderID] = copyOrder(o)
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	defer m.begin()()
	o, ok := m.state.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (m *Memory) ListOrders(ctx context.Context) ([]models.Order, error) {
	defer m.begin()()
	var out []models.Order
	for _, o := range m.state.orders {
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveOrder(ctx context.Context, o *models.Order) error {
	defer m.begin()()
	if _, ok := m.state.orders[o.OrderID]; !ok {
		return ErrNotFound
	}
	m.state.orders[o.OrderID] = copyOrder(o)
	return nil
}

func (m *Memory) CreateManufacturerOrder(ctx context.Context, mo *models.ManufacturerOrder) error {
	defer m.begin()()
	if _, exists := m.state.mos[mo.MOID]; exists {
		return ErrConflict
	}
	mo.ID = m.state.nextID
	m.state.nextID++
	m.state.mos[mo.MOID] = copyMO(mo)
	return nil
}

func (m *Memory) GetManufacturerOrder(ctx context.Context, moID string) (*models.ManufacturerOrder, error) {
	defer m.begin()()
	mo, ok := m.state.mos[moID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMO(mo), nil
}

func (m *Memory) ListManufacturerOrders(ctx context.Context) ([]models.ManufacturerOrder, error) {
	defer m.begin()()
	var out []models.ManufacturerOrder
	for _, mo := range m.state.mos {
		out = append(out, *copyMO(mo))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) MarkManufacturerOrderSent(ctx context.Context, mo *models.ManufacturerOrder) error {
	defer m.begin()()
	cur, ok := m.state.mos[mo.MOID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != models.MOPending {
		return ErrConflict
	}
	cur.Status = models.MOSent
	cur.ManufacturerName = mo.ManufacturerName
	cur.ManufacturerEmail = mo.ManufacturerEmail
	cur.RequestedUnitIDs = mo.RequestedUnitIDs
	cur.SentAt = mo.SentAt
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AcceptFulfillment(ctx context.Context, moID string, manifest string, now time.Time) error {
	defer m.begin()()
	cur, ok := m.state.mos[moID]
	if !ok {
		return ErrNotFound
	}
	if cur.FulfillmentManifest != nil {
		return ErrAlreadyFulfilled
	}
	cur.FulfillmentManifest = &manifest
	cur.Status = models.MOFulfilled
	cur.FulfilledAt = &now
	cur.UpdatedAt = time.Now()
	return nil
}

// --- deep copies: no aliasing between callers and store state ---

func (s *memState) clone() *memState {
	c := &memState{
		units:  make(map[string]*models.QRUnit, len(s.units)),
		orders: make(map[string]*models.Order, len(s.orders)),
		mos:    make(map[string]*models.ManufacturerOrder, len(s.mos)),
		nextID: s.nextID,
	}
	for k, v := range s.units {
		c.units[k] = copyUnit(v)
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range s.mos {
		c.mos[k] = copyMO(v)
	}
	return c
}

func copyUnit(u *models.QRUnit) *models.QRUnit {
	c := *u
	c.Store = nil
	c.StoreID = copyPtr(u.StoreID)
	c.OrderID = copyPtr(u.OrderID)
	c.CustomerRef = copyPtr(u.CustomerRef)
	c.ManufacturerOrderID = copyPtr(u.ManufacturerOrderID)
	c.IssueFlag = copyPtr(u.IssueFlag)
	c.ArtifactRef = copyPtr(u.ArtifactRef)
	c.LastScannedAt = copyPtr(u.LastScannedAt)
	c.AssignedAt = copyPtr(u.AssignedAt)
	c.ClaimedAt = copyPtr(u.ClaimedAt)
	c.SoldAt = copyPtr(u.SoldAt)
	c.ShippedAt = copyPtr(u.ShippedAt)
	c.DeliveredAt = copyPtr(u.DeliveredAt)
	return &c
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.PackedAt = copyPtr(o.PackedAt)
	c.ShippedAt = copyPtr(o.ShippedAt)
	return &c
}

func copyMO(mo *models.ManufacturerOrder) *models.ManufacturerOrder {
	c := *mo
	c.FulfillmentManifest = copyPtr(mo.FulfillmentManifest)
	c.SentAt = copyPtr(mo.SentAt)
	c.FulfilledAt = copyPtr(mo.FulfilledAt)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
