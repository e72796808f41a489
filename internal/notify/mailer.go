// Package notify sends order notifications by email.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/user"
	"github.com/wneessen/go-mail"
)

const sendTimeout = 30 * time.Second

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Order confirmation</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Thank you for your order, {{.Name}}</h2>
		<p>Order <strong>{{.OrderID}}</strong> has been placed and will be shipped to {{.Address}}.</p>
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Product</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Size</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Quantity</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Price</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Items}}
				<tr>
					<td style="padding: 10px; border: 1px solid #ddd;">{{.Name}}</td>
					<td style="padding: 10px; border: 1px solid #ddd;">{{.Size}}</td>
					<td style="padding: 10px; border: 1px solid #ddd;">{{.Quantity}}</td>
					<td style="padding: 10px; border: 1px solid #ddd;">{{.Price.StringFixed 2}}</td>
				</tr>
			{{- end}}
			</tbody>
			<tfoot>
				<tr>
					<td colspan="3" style="padding: 10px; text-align: right; font-weight: bold;">Total:</td>
					<td style="padding: 10px; font-weight: bold;">{{.Total}}</td>
				</tr>
			</tfoot>
		</table>
		<p style="color: #555;">Payment: {{.PaymentMethod}}</p>
	</div>
</body>
</html>`))

type confirmationData struct {
	Name          string
	OrderID       string
	Address       string
	Items         []order.Item
	Total         string
	PaymentMethod string
}

// RenderConfirmation builds the HTML body of the order confirmation email.
func RenderConfirmation(buyer *user.User, o *order.Order) (string, error) {
	address := o.Address
	if o.City != "" {
		address += ", " + o.City
	}
	if o.PostalCode != "" {
		address += " " + o.PostalCode
	}

	data := confirmationData{
		Name:          buyer.Name,
		OrderID:       o.ID.String(),
		Address:       address,
		Items:         o.Items,
		Total:         o.TotalAmount.StringFixed(2),
		PaymentMethod: string(o.PaymentMethod),
	}

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: failed to render confirmation: %w", err)
	}
	return buf.String(), nil
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer emails order confirmations over SMTP. Sending happens in the background;
// call Wait before exiting so queued confirmations are not dropped.
type Mailer struct {
	client sender
	from   string
	wg     sync.WaitGroup
}

func NewMailer(cfg config.MailConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: smtp host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From}, nil
}

// OrderPlaced sends the confirmation without blocking the caller. Failures are logged.
func (m *Mailer) OrderPlaced(ctx context.Context, buyer *user.User, o *order.Order) {
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.send(ctx, buyer, o); err != nil {
			log.Warn().Err(err).Stringer("order_id", o.ID).Str("email", buyer.Email).Msg("notify: failed to send order confirmation")
			return
		}
		log.Info().Stringer("order_id", o.ID).Str("email", buyer.Email).Msg("notify: order confirmation sent")
	}()
}

// Wait blocks until every background send has finished or ctx is done.
func (m *Mailer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: pending confirmations not sent: %w", ctx.Err())
	}
}

func (m *Mailer) send(ctx context.Context, buyer *user.User, o *order.Order) error {
	body, err := RenderConfirmation(buyer, o)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("notify: invalid sender: %w", err)
	}
	if err := msg.To(buyer.Email); err != nil {
		return fmt.Errorf("notify: invalid recipient: %w", err)
	}
	msg.Subject("Your order " + o.ID.String())
	msg.SetBodyString(mail.TypeTextHTML, body)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return m.client.DialAndSendWithContext(ctx, msg)
}
