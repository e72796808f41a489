package order_test

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/product"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

// memProducts keeps stock in memory with the same guard as the SQL adjustment.
type memProducts struct {
	mu      sync.Mutex
	records map[uuid.UUID]product.StockRecord
}

func newMemProducts(records ...product.StockRecord) *memProducts {
	m := &memProducts{records: make(map[uuid.UUID]product.StockRecord)}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *memProducts) LockForOrder(ctx context.Context, q db.DBTX, ids []uuid.UUID) ([]product.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]product.StockRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memProducts) AdjustStock(ctx context.Context, q db.DBTX, id uuid.UUID, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return 0, product.ErrNotFound
	}
	if rec.Stock+delta < 0 {
		return rec.Stock, apperr.OutOfStock("memProducts.AdjustStock", rec.Name, rec.Stock)
	}
	rec.Stock += delta
	m.records[id] = rec
	return rec.Stock, nil
}

func (m *memProducts) stock(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Stock
}

type memUsers struct {
	users map[uuid.UUID]*user.User
}

func newMemUsers(users ...*user.User) *memUsers {
	m := &memUsers{users: make(map[uuid.UUID]*user.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	cp.Cart = cart.New()
	for k, line := range u.Cart {
		cp.Cart[k] = line
	}
	return &cp, nil
}

func (m *memUsers) SaveCart(ctx context.Context, q db.DBTX, id uuid.UUID, c cart.Cart) error {
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Cart = c
	return nil
}

type memOrders struct {
	orders map[uuid.UUID]order.Order
	saves  int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[uuid.UUID]order.Order)}
}

func cloneOrder(o order.Order) *order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return &o
}

func (m *memOrders) Create(ctx context.Context, q db.DBTX, o *order.Order) error {
	o.ID = uuid.Must(uuid.NewV4())
	for i := range o.Items {
		o.Items[i].ID = uuid.Must(uuid.NewV4())
	}
	m.orders[o.ID] = *cloneOrder(*o)
	return nil
}

func (m *memOrders) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*order.Order, error) {
	return m.GetByID(ctx, q, id)
}

func (m *memOrders) GetByTransactionIDForUpdate(ctx context.Context, q db.DBTX, transactionID string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.Transaction.ID == transactionID {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) ListByUser(ctx context.Context, q db.DBTX, userID uuid.UUID) ([]order.Order, error) {
	out := make([]order.Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrders) ListAll(ctx context.Context, q db.DBTX) ([]order.Order, error) {
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

func (m *memOrders) UpdateTransaction(ctx context.Context, q db.DBTX, id uuid.UUID, t order.Transaction) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Transaction.ID = t.ID
	o.Transaction.TransactionStatus = t.TransactionStatus
	m.orders[id] = o
	return nil
}

func (m *memOrders) Save(ctx context.Context, q db.DBTX, o *order.Order) error {
	if _, ok := m.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	m.saves++
	m.orders[o.ID] = *cloneOrder(*o)
	return nil
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Checkout), args.Error(1)
}

func (m *MockGateway) Verify(ctx context.Context, gatewayOrderID string) ([]payment.Verification, error) {
	args := m.Called(ctx, gatewayOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Verification), args.Error(1)
}

type recordingNotifier struct {
	placed []uuid.UUID
}

func (n *recordingNotifier) OrderPlaced(ctx context.Context, buyer *user.User, o *order.Order) {
	n.placed = append(n.placed, o.ID)
}

type recordingCache struct {
	deleted []uuid.UUID
}

func (c *recordingCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	c.deleted = append(c.deleted, ids...)
	return nil
}
