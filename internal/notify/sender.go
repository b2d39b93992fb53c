package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"text/template"

	"github.com/dshills/gocommerce/pkg/types"
)

// Sender delivers an order confirmation to a customer
type Sender interface {
	SendOrderConfirmation(ctx context.Context, order *types.OrderView, email string) error
}

// Confirmation is the rendered message for one order
type Confirmation struct {
	To      string
	Subject string
	Body    string
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(
	`Thank you for your order!

Your order #{{.ID}} ({{.Reference}}) has been confirmed.

Order details:
{{range .Items}}  {{.ProductName}}  x{{.Quantity}}  ${{.UnitPrice.StringFixed 2}}
{{end}}
Total amount: ${{.TotalAmount.StringFixed 2}}

We will notify you when your order ships.
`))

// RenderConfirmation builds the confirmation message for an order
func RenderConfirmation(order *types.OrderView, email string) (*Confirmation, error) {
	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, order); err != nil {
		return nil, fmt.Errorf("failed to render confirmation: %w", err)
	}
	return &Confirmation{
		To:      email,
		Subject: fmt.Sprintf("Order Confirmation - Order #%d", order.ID),
		Body:    body.String(),
	}, nil
}

// LogSender writes confirmations to the log instead of delivering them
type LogSender struct {
	logger *log.Logger
}

// NewLogSender creates a LogSender. A nil logger uses the standard logger.
func NewLogSender(logger *log.Logger) *LogSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSender{logger: logger}
}

// SendOrderConfirmation implements Sender
func (s *LogSender) SendOrderConfirmation(ctx context.Context, order *types.OrderView, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := RenderConfirmation(order, email)
	if err != nil {
		return err
	}
	s.logger.Printf("confirmation to %s: %s\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}
