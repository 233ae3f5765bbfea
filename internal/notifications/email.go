package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

var emailTemplate = template.Must(template.New("order").Parse(`<p>Hi {{.Name}},</p>
<p>{{.Lead}}</p>
<p>Order <strong>{{.OrderNumber}}</strong>, total {{.Total}} {{.Currency}}.</p>
{{if .Link}}<p><a href="{{.Link}}">View your order</a></p>{{end}}`))

type emailView struct {
	Name        string
	Lead        string
	OrderNumber string
	Total       string
	Currency    string
	Link        string
}

// Emails renders and sends the customer-facing order messages. It also
// satisfies the order service's shipped/delivered notifier.
type Emails struct {
	sender    Sender
	publicURL string
}

// NewEmails builds the order mailer. publicURL prefixes order links; empty
// omits them.
func NewEmails(sender Sender, publicURL string) (*Emails, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	return &Emails{sender: sender, publicURL: publicURL}, nil
}

func (e *Emails) OrderShipped(ctx context.Context, order models.Order) error {
	return e.send(ctx, order, "Your order has shipped", "Good news, your order is on its way.")
}

func (e *Emails) OrderDelivered(ctx context.Context, order models.Order) error {
	return e.send(ctx, order, "Your order was delivered", "Your order has been delivered. Enjoy!")
}

func (e *Emails) OrderPaid(ctx context.Context, order models.Order) error {
	return e.send(ctx, order, "Payment received", "We received your payment and are preparing your order.")
}

func (e *Emails) PaymentFailed(ctx context.Context, order models.Order, reason string) error {
	lead := "Your payment did not go through. You can retry it from your order page."
	if reason != "" {
		lead = fmt.Sprintf("Your payment did not go through (%s). You can retry it from your order page.", reason)
	}
	return e.send(ctx, order, "Payment unsuccessful", lead)
}

func (e *Emails) OrderCancelled(ctx context.Context, order models.Order, refund bool) error {
	lead := "Your order has been cancelled."
	if refund {
		lead = "Your order has been cancelled. Your payment will be refunded."
	}
	return e.send(ctx, order, "Your order was cancelled", lead)
}

func (e *Emails) send(ctx context.Context, order models.Order, subject, lead string) error {
	if order.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", order.OrderNumber)
	}
	view := emailView{
		Name:        order.CustomerName,
		Lead:        lead,
		OrderNumber: order.OrderNumber,
		Total:       order.Total.StringFixed(2),
		Currency:    order.Currency,
	}
	if e.publicURL != "" {
		view.Link = e.publicURL + "/orders/" + order.ID.String()
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	return e.sender.Send(ctx, Message{
		To:      order.CustomerEmail,
		Subject: subject + " (" + order.OrderNumber + ")",
		HTML:    buf.String(),
	})
}
