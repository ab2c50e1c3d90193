// Package packing implements the scan-and-bind workflow that matches
// physical units to one customer order. Sessions live in memory only; the
// registry is touched once, at completion, inside a single transaction.
package packing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/metrics"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/registry"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("packing session not found")
	// ErrAlreadyScanned: the unit is already on this session's scan list;
	// the rejected scan mutates nothing.
	ErrAlreadyScanned = errors.New("unit already scanned in this session")
	// ErrNotAvailable: the unit exists but is not in a packable state.
	ErrNotAvailable = errors.New("unit is not available for packing")
	// ErrOrderNotPackable: the order is already packed or further along.
	ErrOrderNotPackable = errors.New("order is not open for packing")
)

// QuantityMismatchError reports the exact counts so the operator knows how
// many more (or fewer) units to scan. The session survives this error.
type QuantityMismatchError struct {
	Required int
	Actual   int
}

func (e *QuantityMismatchError) Error() string {
	return fmt.Sprintf("scanned %d units, order requires exactly %d", e.Actual, e.Required)
}

// Session: one packing run for one order. Scanned keeps insertion order for
// the audit trail; duplicates are rejected at scan time.
type Session struct {
	ID        string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	Required  int       `json:"required_quantity"`
	Scanned   []string  `json:"scanned"`
	CreatedAt time.Time `json:"created_at"`

	scannedSet map[string]bool
}

type Service struct {
	reg registry.Registry

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(reg registry.Registry) *Service {
	return &Service{reg: reg, sessions: map[string]*Session{}}
}

// Open starts a session for an order that is still open for packing.
func (s *Service) Open(ctx context.Context, orderID string) (*Session, error) {
	order, err := s.reg.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderNew && order.Status != models.OrderProcessing {
		return nil, ErrOrderNotPackable
	}

	session := &Session{
		ID:         uuid.NewString(),
		OrderID:    order.OrderID,
		Required:   order.RequiredQuantity,
		Scanned:    []string{},
		CreatedAt:  time.Now(),
		scannedSet: map[string]bool{},
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

func (s *Service) Get(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.snapshot(), nil
}

// Scan adds one unit to the session. The unit must exist and be in a
// pre-pack state; a duplicate scan is rejected without mutating the session.
func (s *Service) Scan(ctx context.Context, sessionID, unitID string) (*Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	unit, err := s.reg.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !packable(unit.Status) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAvailable, unitID, unit.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session.scannedSet[unitID] {
		return nil, ErrAlreadyScanned
	}
	session.scannedSet[unitID] = true
	session.Scanned = append(session.Scanned, unitID)
	return session.snapshot(), nil
}

func packable(status models.UnitStatus) bool {
	switch status {
	case models.StatusAvailable, models.StatusOnline, models.StatusInStore:
		return true
	}
	return false
}

// Complete binds every scanned unit to the order and marks the order
// packaged. The whole commit is one registry transaction: a half-packed
// order is a shipping error, so any per-unit conflict rolls everything back
// and keeps the session for a retry.
func (s *Service) Complete(ctx context.Context, sessionID string) (*models.Order, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	scanned := append([]string(nil), session.Scanned...)
	required := session.Required
	orderID := session.OrderID
	s.mu.Unlock()

	if len(scanned) != required {
		metrics.PackingCompletionsTotal.WithLabelValues("mismatch").Inc()
		return nil, &QuantityMismatchError{Required: required, Actual: len(scanned)}
	}

	var packed *models.Order
	err := s.reg.Transact(ctx, func(tx registry.Registry) error {
		now := time.Now()
		for _, unitID := range scanned {
			unit, err := tx.GetUnit(ctx, unitID)
			if err != nil {
				return err
			}
			fx, err := lifecycle.Validate(unit, lifecycle.Transition{
				Target:  models.StatusPackaged,
				OrderID: &orderID,
				Now:     now,
			})
			if err != nil {
				return err
			}
			if _, err := tx.UpdateUnitCAS(ctx, unitID, unit.Status, models.StatusPackaged, fx); err != nil {
				return err
			}
		}

		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderNew && order.Status != models.OrderProcessing {
			return ErrOrderNotPackable
		}
		order.Status = models.OrderPackaged
		order.PackedAt = &now
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		packed = order
		return nil
	})
	if err != nil {
		if errors.Is(err, registry.ErrConflict) {
			metrics.PackingCompletionsTotal.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	metrics.PackingCompletionsTotal.WithLabelValues("ok").Inc()
	return packed, nil
}

// Cancel discards the scan list; the registry is never touched.
func (s *Service) Cancel(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (sess *Session) snapshot() *Session {
	return &Session{
		ID:        sess.ID,
		OrderID:   sess.OrderID,
		Required:  sess.Required,
		Scanned:   append([]string(nil), sess.Scanned...),
		CreatedAt: sess.CreatedAt,
	}
}
