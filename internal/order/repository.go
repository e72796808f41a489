package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var (
	ErrNotFound     = apperr.New(apperr.KindNotFound, "", "order not found")
	ErrItemNotFound = apperr.New(apperr.KindNotFound, "", "order item not found")
)

type Repository interface {
	Create(ctx context.Context, q db.DBTX, o *Order) error
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*Order, error)
	// GetForUpdate loads the order and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Order, error)
	GetByTransactionIDForUpdate(ctx context.Context, q db.DBTX, transactionID string) (*Order, error)
	ListByUser(ctx context.Context, q db.DBTX, userID uuid.UUID) ([]Order, error)
	ListAll(ctx context.Context, q db.DBTX) ([]Order, error)
	UpdateTransaction(ctx context.Context, q db.DBTX, id uuid.UUID, t Transaction) error
	// Save writes the mutable part of an order: statuses, payment fields and the transaction record.
	Save(ctx context.Context, q db.DBTX, o *Order) error
}

type postgresRepository struct{}

func NewRepository() Repository {
	return &postgresRepository{}
}

const orderColumns = `id, user_id, total_amount, address, city, postal_code, phone, status,
		payment_method, payment, payment_status, transaction_id, transaction_status,
		transaction_bank_status, transaction_gateway_code, transaction_gateway_message,
		transaction_method, transaction_date_time, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, q db.DBTX, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			log.Error().Err(err).Msg("repository: failed to generate order ID")
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	now := time.Now().UTC()

	queryOrder := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
	`
	_, err := q.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.TotalAmount,
		o.Address,
		o.City,
		o.PostalCode,
		o.Phone,
		string(o.Status),
		string(o.PaymentMethod),
		o.Payment,
		string(o.PaymentStatus),
		o.Transaction.ID,
		o.Transaction.TransactionStatus,
		o.Transaction.BankStatus,
		o.Transaction.GatewayCode,
		o.Transaction.GatewayMessage,
		o.Transaction.Method,
		o.Transaction.DateTime,
		now,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, quantity, size, price, name, image, status, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", err)
		}
		item.ID = itemID

		_, err = q.Exec(ctx, queryItem,
			item.ID,
			o.ID,
			item.ProductID,
			item.Quantity,
			item.Size,
			item.Price,
			item.Name,
			item.Image,
			string(item.Status),
			i,
			now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, q, `WHERE id = $1`, id)
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, q, `WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresRepository) GetByTransactionIDForUpdate(ctx context.Context, q db.DBTX, transactionID string) (*Order, error) {
	return r.getOne(ctx, q, `WHERE transaction_id = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, transactionID)
}

func (r *postgresRepository) getOne(ctx context.Context, q db.DBTX, where string, arg any) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ` + where

	o, err := scanOrder(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order: %w", err)
	}

	orders := []Order{*o}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, q db.DBTX, userID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, q, query, userID)
}

func (r *postgresRepository) ListAll(ctx context.Context, q db.DBTX) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	return r.list(ctx, q, query)
}

func (r *postgresRepository) list(ctx context.Context, q db.DBTX, query string, args ...any) ([]Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the lines of every order in one query, keeping their placement order.
func (r *postgresRepository) attachItems(ctx context.Context, q db.DBTX, orders []Order) error {
	index := make(map[uuid.UUID]int, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for i := range orders {
		orders[i].Items = make([]Item, 0)
		index[orders[i].ID] = i
		ids = append(ids, orders[i].ID)
	}

	query := `
		SELECT id, order_id, product_id, quantity, size, price, name, image, status
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    Item
			orderID uuid.UUID
			status  string
		)
		err := rows.Scan(
			&item.ID,
			&orderID,
			&item.ProductID,
			&item.Quantity,
			&item.Size,
			&item.Price,
			&item.Name,
			&item.Image,
			&status,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		item.Status = Status(status)

		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: failed iterating order items: %w", err)
	}

	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                             Order
		status, method, paymentStatus string
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.TotalAmount,
		&o.Address,
		&o.City,
		&o.PostalCode,
		&o.Phone,
		&status,
		&method,
		&o.Payment,
		&paymentStatus,
		&o.Transaction.ID,
		&o.Transaction.TransactionStatus,
		&o.Transaction.BankStatus,
		&o.Transaction.GatewayCode,
		&o.Transaction.GatewayMessage,
		&o.Transaction.Method,
		&o.Transaction.DateTime,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	return &o, nil
}

func (r *postgresRepository) UpdateTransaction(ctx context.Context, q db.DBTX, id uuid.UUID, t Transaction) error {
	query := `
		UPDATE orders
		SET transaction_id = $2, transaction_status = $3, updated_at = $4
		WHERE id = $1
	`
	cmdTag, err := q.Exec(ctx, query, id, t.ID, t.TransactionStatus, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("repository: failed to update order transaction")
		return fmt.Errorf("repository: failed to update transaction of order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Save(ctx context.Context, q db.DBTX, o *Order) error {
	now := time.Now().UTC()

	query := `
		UPDATE orders
		SET status = $2, payment = $3, payment_status = $4,
			transaction_id = $5, transaction_status = $6, transaction_bank_status = $7,
			transaction_gateway_code = $8, transaction_gateway_message = $9,
			transaction_method = $10, transaction_date_time = $11, updated_at = $12
		WHERE id = $1
	`
	cmdTag, err := q.Exec(ctx, query,
		o.ID,
		string(o.Status),
		o.Payment,
		string(o.PaymentStatus),
		o.Transaction.ID,
		o.Transaction.TransactionStatus,
		o.Transaction.BankStatus,
		o.Transaction.GatewayCode,
		o.Transaction.GatewayMessage,
		o.Transaction.Method,
		o.Transaction.DateTime,
		now,
	)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("repository: failed to save order")
		return fmt.Errorf("repository: failed to save order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, item := range o.Items {
		_, err := q.Exec(ctx, `UPDATE order_items SET status = $1, updated_at = $2 WHERE id = $3 AND status <> $1`,
			string(item.Status), now, item.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to save status of order item %s: %w", item.ID, err)
		}
	}

	o.UpdatedAt = now
	return nil
}
