package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/authz"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/query"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Fields whitelists the order columns a listing may filter on.
var Fields = query.Fields{
	"status":          "orders.status",
	"order_number":    "orders.order_number",
	"customer_email":  "orders.customer_email",
	"customer_name":   "orders.customer_name",
	"payment_method":  "orders.payment_method",
	"shipping_method": "orders.shipping_method",
	"total":           "orders.total",
	"created_at":      "orders.created_at",
}

// TransitionInput requests a status change.
type TransitionInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	Notes   string
	Actor   authz.Subject
}

// NotesInput updates customer-visible and staff-only notes. Nil fields are left alone.
type NotesInput struct {
	Notes      *string `json:"notes" validate:"omitempty,max=2000"`
	AdminNotes *string `json:"adminNotes" validate:"omitempty,max=4000"`
}

// ListParams scopes an order listing.
type ListParams struct {
	Spec       query.Spec
	Pagination pagination.Params
}

// ListFilter is what the repository needs to run a listing.
type ListFilter struct {
	CustomerID *uuid.UUID
	Spec       query.Spec
	Pagination pagination.Params
}

// LineSummary aggregates an order's lines for list views.
type LineSummary struct {
	ItemCount      int
	FirstProductID uuid.UUID
}

// OrderSummary is one row of an order listing.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	CustomerName  string              `json:"customerName"`
	CustomerEmail string              `json:"customerEmail"`
	Total         decimal.Decimal     `json:"total"`
	Currency      string              `json:"currency"`
	ItemCount     int                 `json:"itemCount"`
	ImageURL      *string             `json:"imageUrl,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// OrderList wraps a page of summaries plus the next cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// OrderItemDTO is a line as shown to customers and staff.
type OrderItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"productId"`
	VariantID   *uuid.UUID      `json:"variantId,omitempty"`
	ProductName string          `json:"productName"`
	VariantName string          `json:"variantName"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderDetail is the full order view. AdminNotes is only filled for staff.
type OrderDetail struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	Status          enums.OrderStatus    `json:"status"`
	NextStatuses    []enums.OrderStatus  `json:"nextStatuses,omitempty"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	TaxAmount       decimal.Decimal      `json:"taxAmount"`
	ShippingCost    decimal.Decimal      `json:"shippingCost"`
	DiscountAmount  decimal.Decimal      `json:"discountAmount"`
	Total           decimal.Decimal      `json:"total"`
	Currency        string               `json:"currency"`
	ShippingMethod  enums.ShippingMethod `json:"shippingMethod"`
	PaymentMethod   enums.PaymentMethod  `json:"paymentMethod"`
	CustomerName    string               `json:"customerName"`
	CustomerEmail   string               `json:"customerEmail"`
	CustomerPhone   *string              `json:"customerPhone,omitempty"`
	ShippingAddress types.Address        `json:"shippingAddress"`
	BillingAddress  *types.Address       `json:"billingAddress,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
	AdminNotes      *string              `json:"adminNotes,omitempty"`
	PaidAt          *time.Time           `json:"paidAt,omitempty"`
	CancelledAt     *time.Time           `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	Items           []OrderItemDTO       `json:"items"`
}

// HistoryEntry is one status history row.
type HistoryEntry struct {
	FromStatus *enums.OrderStatus `json:"fromStatus,omitempty"`
	ToStatus   enums.OrderStatus  `json:"toStatus"`
	Notes      *string            `json:"notes,omitempty"`
	ChangedBy  *uuid.UUID         `json:"changedBy,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

func toDetail(order models.Order, staff bool) OrderDetail {
	detail := OrderDetail{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		Subtotal:        order.Subtotal,
		TaxAmount:       order.TaxAmount,
		ShippingCost:    order.ShippingCost,
		DiscountAmount:  order.DiscountAmount,
		Total:           order.Total,
		Currency:        order.Currency,
		ShippingMethod:  order.ShippingMethod,
		PaymentMethod:   order.PaymentMethod,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		CustomerPhone:   order.CustomerPhone,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		Notes:           order.Notes,
		PaidAt:          order.PaidAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
	}
	if staff {
		detail.AdminNotes = order.AdminNotes
		detail.NextStatuses = order.Status.NextStatuses()
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return detail
}

func toHistory(rows []models.OrderStatusHistory) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, HistoryEntry{
			FromStatus: row.FromStatus,
			ToStatus:   row.ToStatus,
			Notes:      row.Notes,
			ChangedBy:  row.ChangedBy,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out
}
