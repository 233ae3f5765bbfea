package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/query"
)

const orderReferenceType = "order"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Reference ties a movement to the record that caused it.
type Reference struct {
	Type string
	ID   uuid.UUID
}

// OrderReference is the reference used by checkout, cancellation and settlement.
func OrderReference(orderID uuid.UUID) *Reference {
	return &Reference{Type: orderReferenceType, ID: orderID}
}

// MovementInput drives reserve, release and sale movements.
type MovementInput struct {
	VariantID uuid.UUID
	Quantity  int
	Reference *Reference
	ActorID   *uuid.UUID
	Notes     string
}

// AdjustInput drives a manual stock correction.
type AdjustInput struct {
	VariantID uuid.UUID                   `json:"variantId"`
	Delta     int                         `json:"delta"`
	Type      enums.InventoryMovementType `json:"type"`
	Reason    string                      `json:"reason"`
	ActorID   *uuid.UUID                  `json:"-"`
}

// Result is the item after a movement plus the movement row written for it.
type Result struct {
	Item     models.InventoryItem
	Movement models.InventoryMovement
}

// MovementPage is a cursor page of movements.
type MovementPage struct {
	Movements  []models.InventoryMovement `json:"movements"`
	NextCursor string                     `json:"nextCursor,omitempty"`
}

// Service is the inventory ledger. Mutating calls accept an optional tx so
// they can join a caller's transaction; with a nil tx they open their own.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, input MovementInput) (*Result, error)
	Release(ctx context.Context, tx *gorm.DB, input MovementInput) (*Result, error)
	SettleSale(ctx context.Context, tx *gorm.DB, input MovementInput) (*Result, error)
	Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*Result, error)
	ReserveOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]Result, error)
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]Result, error)
	SettleOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]Result, error)
	EnsureItem(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, lowStockThreshold int) (*models.InventoryItem, error)
	Get(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error)
	ListMovements(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) (*MovementPage, error)
	LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	events outbox.Emitter
	logg   *logger.Logger
}

// NewService wires the ledger. events may be nil, in which case low-stock
// crossings are only logged.
func NewService(repo Repository, tx txRunner, events outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, events: events, logg: logg}, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, input MovementInput) (*Result, error) {
	return s.applyMovement(ctx, tx, input, enums.MovementReserved, func(item *models.InventoryItem) error {
		if input.Quantity > item.Available() {
			return InsufficientStock(item.VariantID, input.Quantity, item.Available())
		}
		item.ReservedQuantity += input.Quantity
		return nil
	})
}

// Release floors the reserved counter at zero; over-release is clamped.
func (s *service) Release(ctx context.Context, tx *gorm.DB, input MovementInput) (*Result, error) {
	return s.applyMovement(ctx, tx, input, enums.MovementReleased, func(item *models.InventoryItem) error {
		item.ReservedQuantity -= min(input.Quantity, item.ReservedQuantity)
		return nil
	})
}

// SettleSale consumes a reservation: on-hand drops by the sold quantity and the
// reserved counter by as much of it as was held.
func (s *service) SettleSale(ctx context.Context, tx *gorm.DB, input MovementInput) (*Result, error) {
	return s.applyMovement(ctx, tx, input, enums.MovementSale, func(item *models.InventoryItem) error {
		if input.Quantity > item.Quantity {
			return InsufficientStock(item.VariantID, input.Quantity, item.Quantity)
		}
		item.Quantity -= input.Quantity
		item.ReservedQuantity -= min(input.Quantity, item.ReservedQuantity)
		if item.ReservedQuantity > item.Quantity {
			return InsufficientStock(item.VariantID, input.Quantity, item.Available())
		}
		return nil
	})
}

func (s *service) Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*Result, error) {
	if input.Type == "" {
		input.Type = enums.MovementAdjustment
	}
	if !input.Type.IsManual() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "movement type %q cannot be recorded manually", input.Type)
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	mv := MovementInput{VariantID: input.VariantID, Quantity: input.Delta, ActorID: input.ActorID, Notes: reason}
	return s.apply(ctx, tx, mv, input.Type, func(item *models.InventoryItem) error {
		next := item.Quantity + input.Delta
		if next < 0 || next < item.ReservedQuantity {
			return InvalidAdjustment(item.VariantID, item.Quantity, item.ReservedQuantity, input.Delta)
		}
		item.Quantity = next
		return nil
	})
}

func (s *service) applyMovement(ctx context.Context, tx *gorm.DB, input MovementInput, kind enums.InventoryMovementType, mutate func(*models.InventoryItem) error) (*Result, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	return s.apply(ctx, tx, input, kind, mutate)
}

// apply locks the item, runs mutate on a copy, then writes the counters with a
// compare-and-set and appends the movement.
func (s *service) apply(ctx context.Context, tx *gorm.DB, input MovementInput, kind enums.InventoryMovementType, mutate func(*models.InventoryItem) error) (*Result, error) {
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}

	var result Result
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.LockByVariant(ctx, input.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
					WithDetails(map[string]any{"variantId": input.VariantID.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock inventory item")
		}

		before := *item
		if err := mutate(item); err != nil {
			return err
		}

		if err := repo.UpdateCounts(ctx, item, before.Quantity, before.ReservedQuantity); err != nil {
			if errors.Is(err, ErrCountsChanged) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "inventory changed, retry the request")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory counts")
		}

		movement := buildMovement(before, *item, kind, input)
		if err := repo.InsertMovement(ctx, &movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
		}

		if !before.IsLowStock() && item.IsLowStock() {
			if err := s.emitLowStock(ctx, tx, *item); err != nil {
				return err
			}
		}

		result = Result{Item: *item, Movement: movement}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// buildMovement records the counter the movement type tracks so that
// NewQuantity is always PreviousQuantity + Quantity.
func buildMovement(before, after models.InventoryItem, kind enums.InventoryMovementType, input MovementInput) models.InventoryMovement {
	prev, next := before.Quantity, after.Quantity
	if kind.TracksReserved() {
		prev, next = before.ReservedQuantity, after.ReservedQuantity
	}
	movement := models.InventoryMovement{
		InventoryItemID:  after.ID,
		VariantID:        after.VariantID,
		Type:             kind,
		Quantity:         next - prev,
		PreviousQuantity: prev,
		NewQuantity:      next,
		ActorID:          input.ActorID,
	}
	if input.Reference != nil {
		refType := input.Reference.Type
		refID := input.Reference.ID
		movement.ReferenceType = &refType
		movement.ReferenceID = &refID
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		movement.Notes = &notes
	}
	return movement
}

func (s *service) emitLowStock(ctx context.Context, tx *gorm.DB, item models.InventoryItem) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"variant_id": item.VariantID.String(),
		"available":  item.Available(),
		"threshold":  item.LowStockThreshold,
	})
	s.logg.Warn(logCtx, "inventory item reached low stock")
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLowStock,
		AggregateType: enums.AggregateInventory,
		AggregateID:   item.ID,
		Data: payloads.LowStockEvent{
			VariantID: item.VariantID,
			ItemID:    item.ID,
			Available: item.Available(),
			Threshold: item.LowStockThreshold,
		},
	})
}

// ReserveOrder tops up the order's holding to its line quantities. It is used
// at checkout and again when a failed payment is retried.
func (s *service) ReserveOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]Result, error) {
	return s.eachOrderLine(ctx, tx, orderID, func(tx *gorm.DB, line Line, held int) (*Result, error) {
		need := line.Quantity - held
		if need <= 0 {
			return nil, nil
		}
		return s.Reserve(ctx, tx, MovementInput{
			VariantID: line.VariantID,
			Quantity:  need,
			Reference: OrderReference(orderID),
			ActorID:   actorID,
		})
	})
}

// ReleaseOrder gives back whatever the order still holds. Orders whose holding
// was already released or sold release nothing.
func (s *service) ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]Result, error) {
	return s.eachOrderLine(ctx, tx, orderID, func(tx *gorm.DB, line Line, held int) (*Result, error) {
		if held <= 0 {
			return nil, nil
		}
		return s.Release(ctx, tx, MovementInput{
			VariantID: line.VariantID,
			Quantity:  held,
			Reference: OrderReference(orderID),
			ActorID:   actorID,
		})
	})
}

// SettleOrder sells every line. A line whose holding fell short is reserved up
// first so the sale never consumes units held for other orders.
func (s *service) SettleOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actorID *uuid.UUID) ([]Result, error) {
	return s.eachOrderLine(ctx, tx, orderID, func(tx *gorm.DB, line Line, held int) (*Result, error) {
		ref := OrderReference(orderID)
		if short := line.Quantity - held; short > 0 {
			if _, err := s.Reserve(ctx, tx, MovementInput{VariantID: line.VariantID, Quantity: short, Reference: ref, ActorID: actorID}); err != nil {
				return nil, err
			}
		}
		return s.SettleSale(ctx, tx, MovementInput{
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			Reference: ref,
			ActorID:   actorID,
		})
	})
}

// eachOrderLine aggregates the order's lines per variant and visits them in
// variant id order so concurrent callers lock rows in the same sequence.
// Lines whose variant was deleted are skipped.
func (s *service) eachOrderLine(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, fn func(tx *gorm.DB, line Line, held int) (*Result, error)) ([]Result, error) {
	var results []Result
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lines, err := repo.OrderLines(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order lines")
		}
		held, err := repo.HeldByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order holdings")
		}
		for _, line := range AggregateLines(lines) {
			res, err := fn(tx, line, held[line.VariantID])
			if err != nil {
				return err
			}
			if res != nil {
				results = append(results, *res)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Line is a per-variant quantity.
type Line struct {
	VariantID uuid.UUID
	Quantity  int
}

// AggregateLines sums order items by variant and sorts by variant id.
func AggregateLines(items []models.OrderItem) []Line {
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.VariantID == nil || item.Quantity <= 0 {
			continue
		}
		totals[*item.VariantID] += item.Quantity
	}
	lines := make([]Line, 0, len(totals))
	for id, qty := range totals {
		lines = append(lines, Line{VariantID: id, Quantity: qty})
	}
	SortLines(lines)
	return lines
}

// SortLines orders lines by variant id.
func SortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].VariantID.String() < lines[j].VariantID.String()
	})
}

func (s *service) EnsureItem(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, lowStockThreshold int) (*models.InventoryItem, error) {
	if lowStockThreshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "low stock threshold must be non-negative")
	}
	var item *models.InventoryItem
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByVariant(ctx, variantID)
		if err == nil {
			item = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
		}
		created := &models.InventoryItem{VariantID: variantID, LowStockThreshold: lowStockThreshold}
		if err := repo.Create(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory item")
		}
		item = created
		return nil
	})
	return item, err
}

func (s *service) Get(ctx context.Context, variantID uuid.UUID) (*models.InventoryItem, error) {
	item, err := s.repo.FindByVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return item, nil
}

func (s *service) ListMovements(ctx context.Context, variantID uuid.UUID, spec query.Spec, params pagination.Params) (*MovementPage, error) {
	rows, err := s.repo.ListMovements(ctx, variantID, spec, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory movements")
	}
	page := &MovementPage{}
	page.Movements, page.NextCursor = pagination.Trim(rows, params.Limit, func(m models.InventoryMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, nil
}

func (s *service) LowStock(ctx context.Context, limit int) ([]models.InventoryItem, error) {
	rows, err := s.repo.ListLowStock(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock items")
	}
	return rows, nil
}
