package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
)

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// StripeGateway runs checkouts through Stripe Checkout Sessions. The session id
// is the gateway order id.
type StripeGateway struct {
	sessions   sessionAPI
	successURL string
	cancelURL  string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("stripe: api key is required")
	}
	return newStripeGateway(&session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}, cfg), nil
}

func newStripeGateway(sessions sessionAPI, cfg StripeConfig) *StripeGateway {
	return &StripeGateway{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

func (g *StripeGateway) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	const op = "payment.InitiateCheckout"

	amount, err := minorUnits(req.Amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, op, "invalid checkout amount", err)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withOrderID(g.successURL, req.OrderID)),
		CancelURL:         stripe.String(withOrderID(g.cancelURL, req.OrderID)),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + req.OrderID),
					},
				},
			},
		},
		Metadata: map[string]string{
			"order_id":    req.OrderID,
			"client_ip":   req.ClientIP,
			"phone":       req.Customer.Phone,
			"city":        req.Customer.City,
			"postal_code": req.Customer.PostalCode,
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		log.Error().Err(err).Str("order_id", req.OrderID).Msg("payment: failed to create checkout session")
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, op, "payment gateway is unavailable", err)
	}

	log.Info().Str("order_id", req.OrderID).Str("session_id", s.ID).Int64("amount", amount).Msg("payment: checkout session created")
	return &Checkout{
		GatewayOrderID: s.ID,
		URL:            s.URL,
		Status:         string(s.Status),
	}, nil
}

func (g *StripeGateway) Verify(ctx context.Context, gatewayOrderID string) ([]Verification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sessions.Get(gatewayOrderID, params)
	if err != nil {
		log.Error().Err(err).Str("session_id", gatewayOrderID).Msg("payment: failed to fetch checkout session")
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, "payment.Verify", "payment gateway is unavailable", err)
	}

	return verificationFromSession(s), nil
}

// verificationFromSession maps a session onto the bank statuses used by orders.
// Open sessions are undecided and yield nothing.
func verificationFromSession(s *stripe.CheckoutSession) []Verification {
	if s == nil {
		return []Verification{}
	}

	var bankStatus string
	switch s.Status {
	case stripe.CheckoutSessionStatusComplete:
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			bankStatus = BankStatusSuccess
		} else {
			bankStatus = BankStatusPending
		}
	case stripe.CheckoutSessionStatusExpired:
		bankStatus = BankStatusCancel
	default:
		return []Verification{}
	}

	v := Verification{
		GatewayOrderID:    s.ID,
		TransactionStatus: string(s.Status),
		BankStatus:        bankStatus,
		GatewayCode:       string(s.PaymentStatus),
		GatewayMessage:    bankStatus,
	}
	if s.PaymentIntent != nil {
		v.Method = string(s.PaymentIntent.Status)
		if s.PaymentIntent.ID != "" {
			v.GatewayMessage = s.PaymentIntent.ID
		}
	}
	if len(s.PaymentMethodTypes) > 0 {
		v.Method = s.PaymentMethodTypes[0]
	}
	if s.Created != 0 {
		v.DateTime = time.Unix(s.Created, 0).UTC().Format(time.RFC3339)
	}

	return []Verification{v}
}

// minorUnits converts an amount to cents, rejecting fractions of a cent.
func minorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, errors.New("amount cannot be negative")
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, errors.New("amount has more than two decimal places")
	}
	return cents.IntPart(), nil
}

// withOrderID fills the {ORDER_ID} placeholder of a redirect URL.
func withOrderID(url, orderID string) string {
	return strings.ReplaceAll(url, "{ORDER_ID}", orderID)
}
