// Package payment talks to the external checkout provider.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Bank statuses reported by Verify.
const (
	BankStatusSuccess = "Success"
	BankStatusPending = "Pending"
	BankStatusFailed  = "Failed"
	BankStatusCancel  = "Cancel"
)

type Customer struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

type CheckoutRequest struct {
	Amount   decimal.Decimal
	OrderID  string
	Currency string
	Customer Customer
	ClientIP string
}

// Checkout is the provider's answer to a checkout request. GatewayOrderID is the
// identifier later passed to Verify.
type Checkout struct {
	GatewayOrderID string
	URL            string
	Status         string
}

type Verification struct {
	GatewayOrderID    string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	BankStatus        string `json:"bank_status"`
	GatewayCode       string `json:"gateway_code"`
	GatewayMessage    string `json:"gateway_message"`
	Method            string `json:"method"`
	DateTime          string `json:"date_time"`
}

// Gateway initiates hosted checkouts and reports their outcome. Errors are
// *apperr.Error values of kind upstream_failure.
type Gateway interface {
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	// Verify returns no verifications while the payment is still undecided.
	Verify(ctx context.Context, gatewayOrderID string) ([]Verification, error)
}
