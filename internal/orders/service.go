package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Service owns the order status graph and the customer and staff views of orders.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus, notes string, actor authz.Subject) (*models.Order, error)
	AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor authz.Subject) error
	CancelByCustomer(ctx context.Context, orderID uuid.UUID, customer authz.Subject, reason string) (*models.Order, error)
	UpdateNotes(ctx context.Context, orderID uuid.UUID, actor authz.Subject, input NotesInput) (*OrderDetail, error)
	Get(ctx context.Context, orderID uuid.UUID, actor authz.Subject) (*OrderDetail, error)
	List(ctx context.Context, actor authz.Subject, params ListParams) (*OrderList, error)
	History(ctx context.Context, orderID uuid.UUID, actor authz.Subject) ([]HistoryEntry, error)
}

// Deps groups the collaborators of the order service.
type Deps struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outbox.Emitter
	Inventory OrderStock
	Payments  OfflinePayments
	Authz     authz.Authorizer
	Images    catalog.ImageLookup
	Notifier  Notifier
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	inventory OrderStock
	payments  OfflinePayments
	authz     authz.Authorizer
	images    catalog.ImageLookup
	notifier  Notifier
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order service. Notifier defaults to a no-op.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("order stock required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("offline payments required")
	}
	if deps.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if deps.Images == nil {
		return nil, fmt.Errorf("image lookup required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &service{
		repo:      deps.Repo,
		tx:        deps.Tx,
		outbox:    deps.Outbox,
		inventory: deps.Inventory,
		payments:  deps.Payments,
		authz:     deps.Authz,
		images:    deps.Images,
		notifier:  notifier,
		logg:      deps.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": input.To})
	}
	if !input.Actor.IsSystem() && !s.authz.Allowed(input.Actor.Roles, authz.ResourceOrders, authz.ActionTransition) {
		return nil, forbidden()
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.TransitionTx(ctx, tx, input.OrderID, input.To, input.Notes, input.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, *order)
	return order, nil
}

// TransitionTx validates and applies a status change inside the caller's
// transaction. The order row is locked first so the check runs against the
// current status. Paying sells the order's stock and cancelling gives back
// whatever it still holds.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus, notes string, actor authz.Subject) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	from := order.Status
	if !from.CanTransitionTo(to) {
		return nil, InvalidStatusTransition(from, to)
	}

	now := s.now().UTC()
	extra := map[string]any{}
	switch to {
	case enums.OrderStatusPaid:
		extra["paid_at"] = now
		order.PaidAt = &now
	case enums.OrderStatusCancelled:
		extra["cancelled_at"] = now
		order.CancelledAt = &now
	}
	if err := repo.UpdateStatus(ctx, order.ID, from, to, extra); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order was modified concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	order.Status = to

	if err := repo.AppendHistory(ctx, historyEntry(order.ID, &from, to, notes, actor)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append status history")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(actor.UserID, actor.Roles),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			FromStatus:  &from,
			ToStatus:    to,
			Note:        notes,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status change")
	}

	switch to {
	case enums.OrderStatusPaid:
		if err := s.paid(ctx, tx, order, now, actor); err != nil {
			return nil, err
		}
	case enums.OrderStatusCancelled:
		if err := s.cancelled(ctx, tx, order, from, notes, actor); err != nil {
			return nil, err
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"from":     from,
		"to":       to,
	}), "order status changed")
	return order, nil
}

// paid converts the order's reservation into a sale. Payments staff confirmed
// by hand are completed alongside; gateway attempts are left to their webhook.
func (s *service) paid(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time, actor authz.Subject) error {
	if _, err := s.inventory.SettleOrder(ctx, tx, order.ID, actor.ActorID()); err != nil {
		return err
	}
	completed, err := s.payments.CompleteOffline(ctx, tx, order.ID, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete offline payments")
	}
	if completed > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"payments": completed,
		}), "offline payments completed")
	}
	return nil
}

func (s *service) cancelled(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, reason string, actor authz.Subject) error {
	released, err := s.inventory.ReleaseOrder(ctx, tx, order.ID, actor.ActorID())
	if err != nil {
		return err
	}
	variants := make([]uuid.UUID, 0, len(released))
	for _, r := range released {
		variants = append(variants, r.Item.VariantID)
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCanceled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(actor.UserID, actor.Roles),
		Data: payloads.OrderCanceledEvent{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			Reason:           reason,
			ReleasedVariants: variants,
			RequiresRefund:   !from.HoldsReservation(),
		},
	})
}

// AppendNote records a history row that keeps the current status, used when
// something worth auditing happens without a transition.
func (s *service) AppendNote(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string, actor authz.Subject) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orderNotFound()
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	status := order.Status
	if err := repo.AppendHistory(ctx, historyEntry(order.ID, &status, status, note, actor)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append status history")
	}
	return nil
}

func (s *service) CancelByCustomer(ctx context.Context, orderID uuid.UUID, customer authz.Subject, reason string) (*models.Order, error) {
	if customer.IsSystem() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !s.authz.Allowed(customer.Roles, authz.ResourceOrders, authz.ActionCancelOwn) {
		return nil, forbidden()
	}

	note := "Cancelled by customer"
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		note += ": " + trimmed
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orderNotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if !current.OwnedBy(customer.UserID) {
			return forbidden()
		}
		if !current.Status.CustomerCancellable() {
			return notCancellable(current.Status)
		}
		order, err = s.TransitionTx(ctx, tx, orderID, enums.OrderStatusCancelled, note, customer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) UpdateNotes(ctx context.Context, orderID uuid.UUID, actor authz.Subject, input NotesInput) (*OrderDetail, error) {
	if !s.authz.Allowed(actor.Roles, authz.ResourceOrders, authz.ActionUpdateNotes) {
		return nil, forbidden()
	}
	if input.AdminNotes != nil && !s.authz.Allowed(actor.Roles, authz.ResourceOrders, authz.ActionAdminNotes) {
		return nil, forbidden()
	}

	staff := authz.IsStaff(s.authz, actor.Roles)
	var detail OrderDetail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orderNotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if !staff && !order.OwnedBy(actor.UserID) {
			return forbidden()
		}

		updates := map[string]any{}
		if input.Notes != nil {
			updates["notes"] = nullableText(*input.Notes)
		}
		if input.AdminNotes != nil {
			updates["admin_notes"] = nullableText(*input.AdminNotes)
		}
		if err := repo.Update(ctx, orderID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order notes")
		}

		updated, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order")
		}
		detail = toDetail(*updated, staff)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor authz.Subject) (*OrderDetail, error) {
	order, staff, err := s.loadVisible(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	detail := toDetail(*order, staff)
	return &detail, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID, actor authz.Subject) ([]HistoryEntry, error) {
	if _, _, err := s.loadVisible(ctx, orderID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order history")
	}
	return toHistory(rows), nil
}

func (s *service) loadVisible(ctx context.Context, orderID uuid.UUID, actor authz.Subject) (*models.Order, bool, error) {
	if !s.authz.Allowed(actor.Roles, authz.ResourceOrders, authz.ActionRead) {
		return nil, false, forbidden()
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, orderNotFound()
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	staff := authz.IsStaff(s.authz, actor.Roles)
	if !staff && !order.OwnedBy(actor.UserID) {
		return nil, false, forbidden()
	}
	return order, staff, nil
}

func (s *service) List(ctx context.Context, actor authz.Subject, params ListParams) (*OrderList, error) {
	if !s.authz.Allowed(actor.Roles, authz.ResourceOrders, authz.ActionRead) {
		return nil, forbidden()
	}
	filter := ListFilter{Spec: params.Spec, Pagination: params.Pagination}
	if !authz.IsStaff(s.authz, actor.Roles) {
		if actor.IsSystem() {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
		}
		customerID := actor.UserID
		filter.CustomerID = &customerID
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	rows, next := pagination.Trim(rows, params.Pagination.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	lines, err := s.repo.LineSummaries(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summarize order lines")
	}

	productIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.FirstProductID)
	}
	images, err := s.images.PrimaryImages(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product images")
	}

	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		line := lines[row.ID]
		summary := OrderSummary{
			ID:            row.ID,
			OrderNumber:   row.OrderNumber,
			Status:        row.Status,
			PaymentMethod: row.PaymentMethod,
			CustomerName:  row.CustomerName,
			CustomerEmail: row.CustomerEmail,
			Total:         row.Total,
			Currency:      row.Currency,
			ItemCount:     line.ItemCount,
			CreatedAt:     row.CreatedAt,
		}
		if url, ok := images[line.FirstProductID]; ok {
			summary.ImageURL = &url
		}
		out.Orders = append(out.Orders, summary)
	}
	return out, nil
}

func (s *service) notify(ctx context.Context, order models.Order) {
	var err error
	switch order.Status {
	case enums.OrderStatusShipped:
		err = s.notifier.OrderShipped(ctx, order)
	case enums.OrderStatusDelivered:
		err = s.notifier.OrderDelivered(ctx, order)
	default:
		return
	}
	if err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "order notification failed", err)
	}
}

func historyEntry(orderID uuid.UUID, from *enums.OrderStatus, to enums.OrderStatus, notes string, actor authz.Subject) *models.OrderStatusHistory {
	entry := &models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  actor.ActorID(),
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		entry.Notes = &trimmed
	}
	return entry
}

// InitialHistory is the first history row of a new order.
func InitialHistory(orderID uuid.UUID, status enums.OrderStatus, actor authz.Subject) *models.OrderStatusHistory {
	return historyEntry(orderID, nil, status, "Order created", actor)
}

func nullableText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func forbidden() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "Insufficient permissions")
}
