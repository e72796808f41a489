package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

// ProductStore is the part of the catalog the order pipeline writes through.
type ProductStore interface {
	LockForOrder(ctx context.Context, q db.DBTX, ids []uuid.UUID) ([]product.StockRecord, error)
	AdjustStock(ctx context.Context, q db.DBTX, id uuid.UUID, delta int) (int, error)
}

type ProductCache interface {
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

type UserStore interface {
	GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*user.User, error)
	SaveCart(ctx context.Context, q db.DBTX, id uuid.UUID, c cart.Cart) error
}

// Notifier is told about committed orders. Implementations must not block.
type Notifier interface {
	OrderPlaced(ctx context.Context, buyer *user.User, o *Order)
}

type Service interface {
	PlaceOrderCOD(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*Order, error)
	PlaceOrderGateway(ctx context.Context, userID uuid.UUID, in PlaceOrderInput, clientIP string) (*GatewayPlacement, error)
	VerifyPayment(ctx context.Context, gatewayOrderID string) (*VerifyResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	UpdateLineStatus(ctx context.Context, orderID uuid.UUID, in LineStatusInput) (*Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status) (*Order, error)
}

type Option func(*service)

// WithGateway enables gateway checkout. Without it gateway operations fail.
func WithGateway(g payment.Gateway) Option {
	return func(s *service) { s.gateway = g }
}

func WithNotifier(n Notifier) Option {
	return func(s *service) { s.notifier = n }
}

func WithProductCache(c ProductCache) Option {
	return func(s *service) { s.cache = c }
}

// WithCurrency sets the ISO currency used for gateway checkouts. Defaults to usd.
func WithCurrency(currency string) Option {
	return func(s *service) { s.currency = strings.ToLower(currency) }
}

type service struct {
	repo     Repository
	products ProductStore
	users    UserStore
	tx       db.Transactor
	db       db.DBTX
	gateway  payment.Gateway
	notifier Notifier
	cache    ProductCache
	currency string
	validate *validator.Validate
}

func NewService(repo Repository, products ProductStore, users UserStore, tx db.Transactor, pool db.DBTX, opts ...Option) Service {
	s := &service{
		repo:     repo,
		products: products,
		users:    users,
		tx:       tx,
		db:       pool,
		currency: "usd",
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) PlaceOrderCOD(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*Order, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "order.PlaceOrderCOD", "address is required", err)
	}

	o, buyer, err := s.place(ctx, userID, in, PaymentCOD)
	if err != nil {
		return nil, err
	}

	s.afterPlacement(ctx, buyer, o)
	return o, nil
}

func (s *service) PlaceOrderGateway(ctx context.Context, userID uuid.UUID, in PlaceOrderInput, clientIP string) (*GatewayPlacement, error) {
	const op = "order.PlaceOrderGateway"

	if missing := missingGatewayFields(in); len(missing) > 0 {
		return nil, apperr.InvalidArgument(op, "%s required", strings.Join(missing, ", "))
	}
	if s.gateway == nil {
		return nil, apperr.New(apperr.KindUpstreamFailure, op, "payment gateway is not configured")
	}

	o, buyer, err := s.place(ctx, userID, in, PaymentGateway)
	if err != nil {
		return nil, err
	}
	s.afterPlacement(ctx, buyer, o)

	checkout, err := s.gateway.InitiateCheckout(ctx, payment.CheckoutRequest{
		Amount:   o.TotalAmount,
		OrderID:  o.ID.String(),
		Currency: s.currency,
		Customer: payment.Customer{
			Name:       buyer.Name,
			Email:      buyer.Email,
			Phone:      o.Phone,
			Address:    o.Address,
			City:       o.City,
			PostalCode: o.PostalCode,
		},
		ClientIP: clientIP,
	})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Msg("service: gateway checkout failed, order kept without checkout url")
		return &GatewayPlacement{Order: o}, nil
	}

	o.Transaction.ID = checkout.GatewayOrderID
	o.Transaction.TransactionStatus = checkout.Status
	if err := s.repo.UpdateTransaction(ctx, s.db, o.ID, o.Transaction); err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Str("transaction_id", checkout.GatewayOrderID).Msg("service: failed to record gateway transaction")
	}

	log.Info().Stringer("order_id", o.ID).Str("transaction_id", checkout.GatewayOrderID).Msg("service: gateway checkout initiated")
	return &GatewayPlacement{Order: o, CheckoutURL: checkout.URL}, nil
}

func missingGatewayFields(in PlaceOrderInput) []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"address", in.Address},
		{"city", in.City},
		{"postalCode", in.PostalCode},
		{"phone", in.Phone},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// place converts the user's cart into an order in one transaction: it locks the
// user and every referenced product, checks stock, writes the order, takes the
// stock and empties the cart.
func (s *service) place(ctx context.Context, userID uuid.UUID, in PlaceOrderInput, method PaymentMethod) (*Order, *user.User, error) {
	const op = "order.place"

	var (
		placed *Order
		buyer  *user.User
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		u, err := s.users.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if u.Cart.IsEmpty() {
			return apperr.InvalidState(op, "cart is empty")
		}

		ids := u.Cart.ProductIDs()
		wanted := u.Cart.QuantityByProduct()

		records, err := s.products.LockForOrder(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]product.StockRecord, len(records))
		for _, rec := range records {
			byID[rec.ID] = rec
		}

		for _, id := range ids {
			rec, ok := byID[id]
			if !ok || rec.IsDeleted {
				return product.ErrNotFound
			}
			if wanted[id] > rec.Stock {
				return apperr.OutOfStock(op, rec.Name, rec.Stock)
			}
		}

		o := newOrder(userID, u.Cart, in, method)
		if err := s.repo.Create(ctx, tx, o); err != nil {
			return err
		}

		for _, id := range ids {
			if _, err := s.products.AdjustStock(ctx, tx, id, -wanted[id]); err != nil {
				return err
			}
		}

		if err := s.users.SaveCart(ctx, tx, userID, cart.New()); err != nil {
			return err
		}

		placed, buyer = o, u
		return nil
	})
	if err != nil {
		return nil, nil, s.wrap(err, "place order", userID)
	}

	log.Info().
		Stringer("order_id", placed.ID).
		Stringer("user_id", userID).
		Str("payment_method", string(method)).
		Str("total", placed.TotalAmount.StringFixed(2)).
		Msg("service: order placed")
	return placed, buyer, nil
}

func newOrder(userID uuid.UUID, c cart.Cart, in PlaceOrderInput, method PaymentMethod) *Order {
	lines := c.Lines()
	items := make([]Item, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		items = append(items, Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Price:     line.Price,
			Name:      line.Name,
			Image:     line.Image,
			Status:    StatusPending,
		})
		total = total.Add(line.Subtotal())
	}

	return &Order{
		UserID:        userID,
		Items:         items,
		TotalAmount:   total,
		Address:       strings.TrimSpace(in.Address),
		City:          strings.TrimSpace(in.City),
		PostalCode:    strings.TrimSpace(in.PostalCode),
		Phone:         strings.TrimSpace(in.Phone),
		Status:        StatusPending,
		PaymentMethod: method,
		PaymentStatus: PaymentPending,
	}
}

func (s *service) afterPlacement(ctx context.Context, buyer *user.User, o *Order) {
	s.invalidate(ctx, o.productIDs()...)
	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, buyer, o)
	}
}

func (s *service) VerifyPayment(ctx context.Context, gatewayOrderID string) (*VerifyResult, error) {
	const op = "order.VerifyPayment"

	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, apperr.InvalidArgument(op, "order id is required")
	}
	if s.gateway == nil {
		return nil, apperr.New(apperr.KindUpstreamFailure, op, "payment gateway is not configured")
	}

	verifications, err := s.gateway.Verify(ctx, gatewayOrderID)
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", gatewayOrderID).Msg("service: payment verification failed")
		if apperr.KindOf(err) == apperr.KindUpstreamFailure {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, op, "payment verification failed", err)
	}
	if len(verifications) == 0 {
		return &VerifyResult{Verifications: []payment.Verification{}}, nil
	}

	v := verifications[0]
	var verified *Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		o, err := s.repo.GetByTransactionIDForUpdate(ctx, tx, gatewayOrderID)
		if err != nil {
			return err
		}
		applyVerification(o, v)
		if err := s.repo.Save(ctx, tx, o); err != nil {
			return err
		}
		verified = o
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Str("transaction_id", gatewayOrderID).Msg("service: no order for verified transaction")
			return nil, err
		}
		log.Error().Err(err).Str("transaction_id", gatewayOrderID).Msg("service: failed to record payment verification")
		return nil, fmt.Errorf("service: failed to record payment verification: %w", err)
	}

	log.Info().
		Stringer("order_id", verified.ID).
		Str("bank_status", v.BankStatus).
		Str("payment_status", string(verified.PaymentStatus)).
		Msg("service: payment verified")
	return &VerifyResult{Order: verified, Verifications: verifications}, nil
}

// applyVerification overwrites the transaction record and derives the payment status.
func applyVerification(o *Order, v payment.Verification) {
	o.Transaction = Transaction{
		ID:                o.Transaction.ID,
		TransactionStatus: v.TransactionStatus,
		BankStatus:        v.BankStatus,
		GatewayCode:       v.GatewayCode,
		GatewayMessage:    v.GatewayMessage,
		Method:            v.Method,
		DateTime:          v.DateTime,
	}
	o.PaymentStatus = paymentStatusFromBank(v.BankStatus)
	o.Payment = o.PaymentStatus == PaymentPaid
}

func paymentStatusFromBank(bankStatus string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(bankStatus)) {
	case "success":
		return PaymentPaid
	case "cancel":
		return PaymentCancelled
	default:
		// "failed" stays pending so the buyer can retry.
		return PaymentPending
	}
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch orders in repository")
		return nil, fmt.Errorf("service: failed to fetch orders: %w", err)
	}
	return orders, nil
}

func (s *service) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, ids...); err != nil {
		log.Warn().Err(err).Msg("service: failed to invalidate product cache")
	}
}

// wrap passes domain errors through untouched and wraps everything else.
func (s *service) wrap(err error, action string, userID uuid.UUID) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		log.Warn().Err(err).Stringer("user_id", userID).Msgf("service: failed to %s", action)
		return err
	}
	log.Error().Err(err).Stringer("user_id", userID).Msgf("service: failed to %s", action)
	return fmt.Errorf("service: failed to %s: %w", action, err)
}
