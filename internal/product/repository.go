package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var ErrNotFound = apperr.New(apperr.KindNotFound, "", "product not found")

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	ListAvailable(ctx context.Context) ([]Product, error)
	// Update locks the row, lets apply mutate it and writes it back in one transaction.
	Update(ctx context.Context, id uuid.UUID, apply func(p *Product) error) (*Product, error)
	ToggleAvailability(ctx context.Context, id uuid.UUID) (*Product, error)

	// ReadCurrent reads the product through q, never through a cache.
	ReadCurrent(ctx context.Context, q db.DBTX, id uuid.UUID) (*Product, error)
	// LockForOrder fetches and row-locks every listed product in id order.
	LockForOrder(ctx context.Context, q db.DBTX, ids []uuid.UUID) ([]StockRecord, error)
	// AdjustStock applies a signed delta and recomputes in_stock, refusing to go below zero.
	AdjustStock(ctx context.Context, q db.DBTX, id uuid.UUID, delta int) (int, error)
}

// productRow adapts the text[] columns for database/sql scanning.
type productRow struct {
	Product
	Images pq.StringArray `db:"images"`
	Sizes  pq.StringArray `db:"sizes"`
}

// toRow never hands a nil array to the driver, which would be written as NULL.
func toRow(p *Product) productRow {
	images := append(pq.StringArray{}, p.Images...)
	sizes := append(pq.StringArray{}, p.Sizes...)
	return productRow{Product: *p, Images: images, Sizes: sizes}
}

func (r productRow) toProduct() Product {
	p := r.Product
	p.Images = append([]string{}, r.Images...)
	p.Sizes = append([]string{}, r.Sizes...)
	return p
}

const productColumns = `id, name, description, price, category, sub_category, stock, images, sizes,
		best_seller, is_deleted, in_stock, backorderable, created_at, updated_at`

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate product ID: %w", err)
		}
		p.ID = id
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.InStock = p.Stock > 0

	query := `
		INSERT INTO products (id, name, description, price, category, sub_category, stock, images, sizes,
			best_seller, is_deleted, in_stock, backorderable, created_at, updated_at)
		VALUES (:id, :name, :description, :price, :category, :sub_category, :stock, :images, :sizes,
			:best_seller, :is_deleted, :in_stock, :backorderable, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, toRow(p)); err != nil {
		log.Error().Err(err).Stringer("product_id", p.ID).Msg("repository: failed to insert product")
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	var row productRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}

	p := row.toProduct()
	return &p, nil
}

func (r *postgresRepository) ListAvailable(ctx context.Context) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_deleted = FALSE ORDER BY created_at DESC`

	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("repository: failed to list products: %w", err)
	}

	products := make([]Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toProduct())
	}

	return products, nil
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, apply func(p *Product) error) (updated *Product, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Stringer("product_id", id).Msg("repository: failed to rollback product update")
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit product update: %w", commitErr)
			updated = nil
		}
	}()

	var row productRow
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock product %s: %w", id, err)
	}

	p := row.toProduct()
	if err = apply(&p); err != nil {
		return nil, err
	}
	p.InStock = p.Stock > 0
	p.UpdatedAt = time.Now().UTC()

	updateQuery := `
		UPDATE products
		SET name = :name, description = :description, price = :price, category = :category,
			sub_category = :sub_category, stock = :stock, images = :images, sizes = :sizes,
			best_seller = :best_seller, in_stock = :in_stock, backorderable = :backorderable,
			updated_at = :updated_at
		WHERE id = :id
	`
	if _, err = tx.NamedExecContext(ctx, updateQuery, toRow(&p)); err != nil {
		return nil, fmt.Errorf("repository: failed to update product %s: %w", id, err)
	}

	return &p, nil
}

func (r *postgresRepository) ToggleAvailability(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		UPDATE products
		SET is_deleted = NOT is_deleted, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	var row productRow
	if err := r.db.QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to toggle product %s: %w", id, err)
	}

	p := row.toProduct()
	return &p, nil
}

func (r *postgresRepository) ReadCurrent(ctx context.Context, q db.DBTX, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	var (
		p           Product
		category    string
		subCategory string
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&category,
		&subCategory,
		&p.Stock,
		&p.Images,
		&p.Sizes,
		&p.BestSeller,
		&p.IsDeleted,
		&p.InStock,
		&p.Backorderable,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to read product %s: %w", id, err)
	}
	p.Category = Category(category)
	p.SubCategory = SubCategory(subCategory)

	return &p, nil
}

func (r *postgresRepository) LockForOrder(ctx context.Context, q db.DBTX, ids []uuid.UUID) ([]StockRecord, error) {
	query := `
		SELECT id, name, stock, is_deleted, backorderable
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to lock products: %w", err)
	}
	defer rows.Close()

	records := make([]StockRecord, 0, len(ids))
	for rows.Next() {
		var rec StockRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Stock, &rec.IsDeleted, &rec.Backorderable); err != nil {
			return nil, fmt.Errorf("repository: failed to scan locked product: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating locked products: %w", err)
	}

	return records, nil
}

func (r *postgresRepository) AdjustStock(ctx context.Context, q db.DBTX, id uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE products
		SET stock = stock + $2, in_stock = (stock + $2) > 0, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock
	`

	var stock int
	err := q.QueryRow(ctx, query, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Error().Err(err).Stringer("product_id", id).Int("delta", delta).Msg("repository: failed to adjust stock")
		return 0, fmt.Errorf("repository: failed to adjust stock for product %s: %w", id, err)
	}

	// No row updated: either the product is gone or the guard refused the delta.
	var name string
	err = q.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, id).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("repository: failed to read stock for product %s: %w", id, err)
	}

	return stock, apperr.OutOfStock("product.AdjustStock", name, stock)
}
