// Package manufacturing drives the manufacturer order round trip: allocate
// a batch of new unit ids, export the order manifest for production, and
// reconcile the returned fulfillment manifest back into inventory.
package manufacturing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrtrace-backend/internal/lifecycle"
	"qrtrace-backend/internal/metrics"
	"qrtrace-backend/internal/models"
	"qrtrace-backend/internal/qrartifact"
	"qrtrace-backend/internal/registry"

	"github.com/google/uuid"
)

// bound for one preparation; bulk operations beyond this need no support
const maxBatchQuantity = 5000

var (
	ErrBadQuantity = fmt.Errorf("quantity must be between 1 and %d", maxBatchQuantity)
	// ErrNotSent: a fulfillment manifest arrived for an order that was never
	// sent to a manufacturer.
	ErrNotSent = errors.New("manufacturer order has not been sent")
)

type Service struct {
	reg     registry.Registry
	gen     qrartifact.Generator
	baseURL string
}

func NewService(reg registry.Registry, gen qrartifact.Generator, baseURL string) *Service {
	return &Service{
		reg:     reg,
		gen:     gen,
		baseURL: baseURL,
	}
}

type PrepareResult struct {
	Order *models.ManufacturerOrder
	// Created may be fewer than requested when candidate ids collided; the
	// shortfall is reported, never silently topped up.
	Created          []models.QRUnit
	Skipped          []string
	ArtifactFailures []string
}

// Prepare allocates candidate ids, inserts the non-colliding subset as
// generated units, renders their visual codes and freezes the order
// manifest on a pending manufacturer order draft. Artifact failures leave
// the unit with a nil ref, retryable later; they never abort the batch.
func (s *Service) Prepare(ctx context.Context, quantity int, productType models.ProductType) (*PrepareResult, error) {
	if quantity < 1 || quantity > maxBatchQuantity {
		return nil, ErrBadQuantity
	}
	if productType != models.ProductEssential && productType != models.ProductPremium {
		return nil, fmt.Errorf("unknown product type %q", productType)
	}

	moID := uuid.NewString()
	now := time.Now()

	maxSeq, err := s.reg.MaxSeqNo(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.QRUnit, 0, quantity)
	for i := 1; i <= quantity; i++ {
		seq := maxSeq + int64(i)
		candidates = append(candidates, models.QRUnit{
			UnitID:              UnitID(seq),
			Slug:                NewSlug(seq),
			SeqNo:               seq,
			ProductType:         productType,
			Status:              models.StatusGenerated,
			ManufacturerOrderID: &moID,
		})
	}

	created, skipped, err := s.reg.CreateBatch(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var artifactFailures []string
	manifestRows := make([]ManifestRow, 0, len(created))
	for i := range created {
		unit := &created[i]
		claimURL := qrartifact.ClaimURL(s.baseURL, unit.Slug)

		ref, genErr := s.gen.Generate(unit.UnitID, claimURL)
		if genErr == nil {
			// losing the ref write is a failure too: the rendered file would
			// exist on disk with nothing pointing at it
			if err := s.reg.SetUnitFields(ctx, unit.UnitID, map[string]any{"artifact_ref": ref}); err != nil {
				genErr = err
			} else {
				unit.ArtifactRef = &ref
			}
		}
		if genErr != nil {
			artifactFailures = append(artifactFailures, unit.UnitID)
			metrics.ArtifactFailuresTotal.Inc()
		}

		manifestRows = append(manifestRows, ManifestRow{
			UnitID:    unit.UnitID,
			Slug:      unit.Slug,
			URL:       claimURL,
			Generated: genErr == nil,
			Date:      now,
		})
	}

	mo := &models.ManufacturerOrder{
		MOID:             moID,
		OrderNumber:      fmt.Sprintf("MO-%s-%s", now.Format("20060102"), strings.ToUpper(moID[:8])),
		ProductType:      productType,
		Quantity:         quantity,
		Status:           models.MOPending,
		RequestedUnitIDs: marshalUnitIDs(created),
		OrderManifest:    BuildOrderManifest(manifestRows),
		CreatedAt:        now,
	}
	if err := s.reg.CreateManufacturerOrder(ctx, mo); err != nil {
		return nil, err
	}

	return &PrepareResult{
		Order:            mo,
		Created:          created,
		Skipped:          skipped,
		ArtifactFailures: artifactFailures,
	}, nil
}

// SendSkip: one requested unit that could not enter manufacturing, with the
// reason it was left behind.
type SendSkip struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

type SendResult struct {
	Order   *models.ManufacturerOrder
	Moved   int
	Skipped []SendSkip
}

// Send freezes the requested unit set, moves the order pending -> sent and
// every created unit generated -> manufacturing via the validator. Units that
// cannot move (deleted since preparation, already transitioned elsewhere) are
// reported per unit, never silently dropped.
func (s *Service) Send(ctx context.Context, moID, manufacturerName, manufacturerEmail string) (*SendResult, error) {
	mo, err := s.reg.GetManufacturerOrder(ctx, moID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	mo.ManufacturerName = manufacturerName
	mo.ManufacturerEmail = manufacturerEmail
	mo.SentAt = &now

	// CAS pending -> sent; a concurrent send loses here before any unit moves
	if err := s.reg.MarkManufacturerOrderSent(ctx, mo); err != nil {
		return nil, err
	}
	mo.Status = models.MOSent

	result := &SendResult{Order: mo, Skipped: []SendSkip{}}
	for _, unitID := range unmarshalUnitIDs(mo.RequestedUnitIDs) {
		unit, err := s.reg.GetUnit(ctx, unitID)
		if err != nil {
			result.Skipped = append(result.Skipped, SendSkip{UnitID: unitID, Reason: err.Error()})
			continue
		}
		fx, err := lifecycle.Validate(unit, lifecycle.Transition{Target: models.StatusManufacturing, Now: now})
		if err != nil {
			result.Skipped = append(result.Skipped, SendSkip{UnitID: unitID, Reason: err.Error()})
			continue
		}
		if _, err := s.reg.UpdateUnitCAS(ctx, unitID, unit.Status, models.StatusManufacturing, fx); err != nil {
			result.Skipped = append(result.Skipped, SendSkip{UnitID: unitID, Reason: err.Error()})
			continue
		}
		result.Moved++
	}

	return result, nil
}

type FulfillResult struct {
	UpdatedCount int
	// requested units the manifest did not mention; still in production,
	// left in manufacturing
	UnmatchedRequested []string
	UnknownRows        int
}

// Fulfill parses the returned manifest and reconciles matched units back to
// available. The manifest is stored verbatim exactly once; the store and
// every unit transition commit in one transaction, so a duplicate upload is
// rejected with nothing mutated.
func (s *Service) Fulfill(ctx context.Context, moID string, data []byte, filename string) (*FulfillResult, error) {
	mo, err := s.reg.GetManufacturerOrder(ctx, moID)
	if err != nil {
		return nil, err
	}
	if mo.Status == models.MOPending {
		return nil, ErrNotSent
	}
	if mo.FulfillmentManifest != nil {
		return nil, registry.ErrAlreadyFulfilled
	}

	rows, err := ParseFulfillmentManifest(data, filename)
	if err != nil {
		return nil, err
	}

	requested := unmarshalUnitIDs(mo.RequestedUnitIDs)
	requestedSet := make(map[string]bool, len(requested))
	for _, id := range requested {
		requestedSet[id] = true
	}

	// slug fallback for rows without a usable id column
	bySlug := map[string]string{}
	batchUnits, err := s.reg.FindUnits(ctx, registry.Filter{ManufacturerOrderID: &moID})
	if err != nil {
		return nil, err
	}
	for _, u := range batchUnits {
		bySlug[u.Slug] = u.UnitID
	}

	matched := make([]string, 0, len(rows))
	seen := map[string]bool{}
	unknown := 0
	for _, row := range rows {
		unitID := row.UnitID
		if unitID == "" || !requestedSet[unitID] {
			if id, ok := bySlug[row.Slug]; ok && requestedSet[id] {
				unitID = id
			} else {
				unknown++
				continue
			}
		}
		if seen[unitID] {
			continue
		}
		seen[unitID] = true
		matched = append(matched, unitID)
	}

	now := time.Now()
	result := &FulfillResult{UnknownRows: unknown}

	err = s.reg.Transact(ctx, func(tx registry.Registry) error {
		if err := tx.AcceptFulfillment(ctx, moID, string(data), now); err != nil {
			return err
		}
		for _, unitID := range matched {
			unit, err := tx.GetUnit(ctx, unitID)
			if err != nil {
				return err
			}
			if unit.Status != models.StatusManufacturing {
				// already reconciled or overridden by an operator
				continue
			}
			fx, err := lifecycle.Validate(unit, lifecycle.Transition{Target: models.StatusAvailable, Now: now})
			if err != nil {
				return err
			}
			// fulfillment also severs the manufacturing linkage
			fx["manufacturer_order_id"] = nil
			if _, err := tx.UpdateUnitCAS(ctx, unitID, unit.Status, models.StatusAvailable, fx); err != nil {
				return err
			}
			result.UpdatedCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	matchedSet := make(map[string]bool, len(matched))
	for _, id := range matched {
		matchedSet[id] = true
	}
	for _, id := range requested {
		if !matchedSet[id] {
			result.UnmatchedRequested = append(result.UnmatchedRequested, id)
		}
	}

	metrics.ManifestRowsTotal.WithLabelValues("matched").Add(float64(result.UpdatedCount))
	metrics.ManifestRowsTotal.WithLabelValues("unmatched").Add(float64(len(result.UnmatchedRequested)))

	return result, nil
}

// RegenerateArtifact retries a failed visual-code render for one unit.
func (s *Service) RegenerateArtifact(ctx context.Context, unitID string) (string, error) {
	unit, err := s.reg.GetUnit(ctx, unitID)
	if err != nil {
		return "", err
	}
	ref, err := s.gen.Generate(unit.UnitID, qrartifact.ClaimURL(s.baseURL, unit.Slug))
	if err != nil {
		metrics.ArtifactFailuresTotal.Inc()
		return "", err
	}
	if err := s.reg.SetUnitFields(ctx, unitID, map[string]any{"artifact_ref": ref}); err != nil {
		return "", err
	}
	return ref, nil
}

func marshalUnitIDs(units []models.QRUnit) string {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.UnitID)
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func unmarshalUnitIDs(raw string) []string {
	var ids []string
	_ = json.Unmarshal([]byte(raw), &ids)
	return ids
}
