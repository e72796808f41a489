package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/product"
)

var ErrLineNotFound = apperr.New(apperr.KindNotFound, "", "cart item not found")

// MaxQuantity caps the units of one product a cart may hold across all sizes.
// It matches the range of the integer stock column.
const MaxQuantity = math.MaxInt32

// Store persists carts inside the owning user record.
type Store interface {
	LoadCart(ctx context.Context, q db.DBTX, userID uuid.UUID) (Cart, error)
	LoadCartForUpdate(ctx context.Context, q db.DBTX, userID uuid.UUID) (Cart, error)
	SaveCart(ctx context.Context, q db.DBTX, userID uuid.UUID, c Cart) error
}

// ProductReader reads catalog rows inside the cart transaction.
type ProductReader interface {
	ReadCurrent(ctx context.Context, q db.DBTX, id uuid.UUID) (*product.Product, error)
}

type AddItemInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Size      string    `json:"size"`
	// Quantity defaults to 1 when zero.
	Quantity int `json:"quantity" validate:"min=0,max=2147483647"`
}

type UpdateQuantityInput struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity" validate:"min=1,max=2147483647"`
}

type Service interface {
	AddItem(ctx context.Context, userID uuid.UUID, in AddItemInput) (Cart, error)
	UpdateQuantity(ctx context.Context, userID uuid.UUID, in UpdateQuantityInput) (Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID, size string) (Cart, error)
	GetCart(ctx context.Context, userID uuid.UUID) (Cart, error)
}

type service struct {
	store    Store
	products ProductReader
	tx       db.Transactor
	db       db.DBTX
}

func NewService(store Store, products ProductReader, tx db.Transactor, pool db.DBTX) Service {
	return &service{
		store:    store,
		products: products,
		tx:       tx,
		db:       pool,
	}
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, in AddItemInput) (Cart, error) {
	const op = "cart.AddItem"

	size := product.NormalizeSize(in.Size)
	if size == "" {
		return nil, apperr.InvalidArgument(op, "size is required")
	}
	if in.ProductID == uuid.Nil {
		return nil, apperr.InvalidArgument(op, "product id is required")
	}
	if in.Quantity < 0 {
		return nil, apperr.InvalidArgument(op, "quantity must be positive")
	}
	if in.Quantity > MaxQuantity {
		return nil, apperr.InvalidArgument(op, "quantity cannot exceed %d", MaxQuantity)
	}
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}

	var result Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		c, err := s.store.LoadCartForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		p, err := s.availableProduct(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.HasSize(size) {
			return apperr.InvalidArgument(op, "size %s is not available, available sizes: %s", size, strings.Join(p.Sizes, ", "))
		}

		line, exists := c[Key(p.ID, size)]
		if !exists {
			line = Line{
				ProductID: p.ID,
				Size:      size,
				Price:     p.Price,
				Name:      p.Name,
				Image:     p.FirstImage(),
			}
		}
		if quantity > MaxQuantity-c.QuantityByProduct()[p.ID] {
			if !p.Backorderable {
				return apperr.OutOfStock(op, p.Name, p.Stock)
			}
			return apperr.InvalidArgument(op, "cart cannot hold more than %d of %q", MaxQuantity, p.Name)
		}
		line.Quantity += quantity

		if !p.Backorderable && line.Quantity > p.Stock {
			return apperr.OutOfStock(op, p.Name, p.Stock)
		}

		c.put(line)
		if err := s.store.SaveCart(ctx, tx, userID, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, "add item to cart", userID)
	}

	log.Info().Stringer("user_id", userID).Stringer("product_id", in.ProductID).Str("size", size).Int("quantity", quantity).Msg("service: cart item added")
	return result, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID uuid.UUID, in UpdateQuantityInput) (Cart, error) {
	const op = "cart.UpdateQuantity"

	size := product.NormalizeSize(in.Size)
	if size == "" {
		return nil, apperr.InvalidArgument(op, "size is required")
	}
	if in.Quantity < 1 {
		return nil, apperr.InvalidArgument(op, "quantity must be at least 1")
	}
	if in.Quantity > MaxQuantity {
		return nil, apperr.InvalidArgument(op, "quantity cannot exceed %d", MaxQuantity)
	}

	var result Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		c, err := s.store.LoadCartForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		p, err := s.availableProduct(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}

		line, ok := c[Key(in.ProductID, size)]
		if !ok {
			return ErrLineNotFound
		}
		if in.Quantity > p.Stock {
			return apperr.OutOfStock(op, p.Name, p.Stock)
		}
		if in.Quantity > MaxQuantity-(c.QuantityByProduct()[p.ID]-line.Quantity) {
			return apperr.InvalidArgument(op, "cart cannot hold more than %d of %q", MaxQuantity, p.Name)
		}

		line.Quantity = in.Quantity
		c.put(line)
		if err := s.store.SaveCart(ctx, tx, userID, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, "update cart quantity", userID)
	}

	return result, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID, size string) (Cart, error) {
	size = product.NormalizeSize(size)
	if size == "" {
		return nil, apperr.InvalidArgument("cart.RemoveItem", "size is required")
	}

	var result Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		c, err := s.store.LoadCartForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		key := Key(productID, size)
		if _, ok := c[key]; !ok {
			return ErrLineNotFound
		}
		delete(c, key)

		if err := s.store.SaveCart(ctx, tx, userID, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, "remove cart item", userID)
	}

	return result, nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (Cart, error) {
	c, err := s.store.LoadCart(ctx, s.db, userID)
	if err != nil {
		return nil, s.wrap(err, "get cart", userID)
	}
	return c, nil
}

// availableProduct treats soft-deleted products as missing.
func (s *service) availableProduct(ctx context.Context, tx db.DBTX, id uuid.UUID) (*product.Product, error) {
	p, err := s.products.ReadCurrent(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, product.ErrNotFound
	}
	return p, nil
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
