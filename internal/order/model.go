package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "cod"
	PaymentGateway PaymentMethod = "gateway"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Item is an order line. Price, name and image are copied from the cart at placement.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Status    Status          `json:"status"`
}

// Transaction mirrors the last result reported by the payment gateway.
type Transaction struct {
	ID                string `json:"id"`
	TransactionStatus string `json:"transactionStatus"`
	BankStatus        string `json:"bankStatus"`
	GatewayCode       string `json:"gatewayCode"`
	GatewayMessage    string `json:"gatewayMessage"`
	Method            string `json:"method"`
	DateTime          string `json:"dateTime"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"userId"`
	Items         []Item          `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Address       string          `json:"address"`
	City          string          `json:"city"`
	PostalCode    string          `json:"postalCode"`
	Phone         string          `json:"phone"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Payment       bool            `json:"payment"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Transaction   Transaction     `json:"transaction"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (o *Order) itemIndex(productID uuid.UUID, size string) (int, bool) {
	for i := range o.Items {
		if o.Items[i].ProductID == productID && o.Items[i].Size == size {
			return i, true
		}
	}
	return -1, false
}

// productIDs lists each referenced product once, in line order.
func (o *Order) productIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(o.Items))
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, it := range o.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	return ids
}

// promoteStatus lifts a status shared by every line to the order itself.
func (o *Order) promoteStatus() {
	if len(o.Items) == 0 {
		return
	}
	shared := o.Items[0].Status
	for _, it := range o.Items[1:] {
		if it.Status != shared {
			return
		}
	}
	o.Status = shared
	if shared == StatusCancelled {
		o.PaymentStatus = PaymentCancelled
	}
}

type PlaceOrderInput struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

type GatewayPlacement struct {
	Order       *Order `json:"order"`
	CheckoutURL string `json:"checkoutUrl"`
}

type VerifyResult struct {
	// Order is nil when the gateway has not decided yet.
	Order         *Order                 `json:"order"`
	Verifications []payment.Verification `json:"verifications"`
}

type LineStatusInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Size      string    `json:"size" validate:"required"`
	Status    Status    `json:"status" validate:"required"`
}
