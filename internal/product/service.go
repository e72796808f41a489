package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

type Service interface {
	CreateProduct(ctx context.Context, in CreateInput) (*Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ListAvailable(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in UpdateInput) (*Product, error)
	ToggleAvailability(ctx context.Context, id uuid.UUID) (*Product, error)
	Restock(ctx context.Context, id uuid.UUID, delta int) (*Product, error)
}

type service struct {
	repo     Repository
	cache    Cache
	tx       db.Transactor
	validate *validator.Validate
}

func NewService(repo Repository, cache Cache, tx db.Transactor) Service {
	if cache == nil {
		cache = NewNopCache()
	}
	return &service{
		repo:     repo,
		cache:    cache,
		tx:       tx,
		validate: validator.New(),
	}
}

func (s *service) CreateProduct(ctx context.Context, in CreateInput) (*Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "product.CreateProduct", "invalid product", err)
	}
	if in.Price.IsNegative() {
		return nil, apperr.InvalidArgument("product.CreateProduct", "price cannot be negative")
	}

	sizes, err := normalizeSizes(in.Sizes)
	if err != nil {
		return nil, err
	}

	p := &Product{
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		Category:      in.Category,
		SubCategory:   in.SubCategory,
		Stock:         in.Stock,
		Images:        append([]string{}, in.Images...),
		Sizes:         sizes,
		BestSeller:    in.BestSeller,
		Backorderable: in.Backorderable,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		log.Error().Err(err).Str("name", p.Name).Msg("service: failed to create product in repository")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", p.ID).Str("name", p.Name).Msg("service: product created")
	return p, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Stringer("product_id", id).Msg("service: product cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to fetch product by id")
		return nil, fmt.Errorf("service: failed to fetch product by id: %w", err)
	}

	if err := s.cache.Set(ctx, p); err != nil {
		log.Warn().Err(err).Stringer("product_id", id).Msg("service: product cache write failed")
	}

	return p, nil
}

func (s *service) ListAvailable(ctx context.Context) ([]Product, error) {
	products, err := s.repo.ListAvailable(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, in UpdateInput) (*Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "product.UpdateProduct", "invalid product update", err)
	}
	if in.Price != nil && in.Price.IsNegative() {
		return nil, apperr.InvalidArgument("product.UpdateProduct", "price cannot be negative")
	}

	var sizes []string
	if in.Sizes != nil {
		var err error
		if sizes, err = normalizeSizes(in.Sizes); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Update(ctx, id, func(p *Product) error {
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.Category != nil {
			p.Category = *in.Category
		}
		if in.SubCategory != nil {
			p.SubCategory = *in.SubCategory
		}
		if in.Stock != nil {
			p.Stock = *in.Stock
		}
		if in.Images != nil {
			p.Images = append([]string{}, in.Images...)
		}
		if sizes != nil {
			p.Sizes = sizes
		}
		if in.BestSeller != nil {
			p.BestSeller = *in.BestSeller
		}
		if in.Backorderable != nil {
			p.Backorderable = *in.Backorderable
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Stringer("product_id", id).Msg("service: product not found, cannot update")
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to update product")
		return nil, fmt.Errorf("service: failed to update product: %w", err)
	}

	s.invalidate(ctx, id)
	return updated, nil
}

func (s *service) ToggleAvailability(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.ToggleAvailability(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to toggle product availability")
		return nil, fmt.Errorf("service: failed to toggle product availability: %w", err)
	}

	s.invalidate(ctx, id)
	log.Info().Stringer("product_id", id).Bool("is_deleted", p.IsDeleted).Msg("service: product availability toggled")
	return p, nil
}

func (s *service) Restock(ctx context.Context, id uuid.UUID, delta int) (*Product, error) {
	if delta == 0 {
		return nil, apperr.InvalidArgument("product.Restock", "delta must not be zero")
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		_, err := s.repo.AdjustStock(ctx, tx, id, delta)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrOutOfStock) {
			log.Warn().Err(err).Stringer("product_id", id).Int("delta", delta).Msg("service: restock rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to restock product")
		return nil, fmt.Errorf("service: failed to restock product: %w", err)
	}

	s.invalidate(ctx, id)

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: failed to reload product after restock: %w", err)
	}
	return p, nil
}

func (s *service) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if err := s.cache.Delete(ctx, ids...); err != nil {
		log.Warn().Err(err).Msg("service: failed to invalidate product cache")
	}
}

func normalizeSizes(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		size := NormalizeSize(raw)
		if !isAllowedSize(size) {
			return nil, apperr.InvalidArgument("product.normalizeSizes", "size %q is not one of %s", raw, strings.Join(AllowedSizes, ", "))
		}
		if seen[size] {
			continue
		}
		seen[size] = true
		out = append(out, size)
	}
	return out, nil
}

func isAllowedSize(size string) bool {
	for _, s := range AllowedSizes {
		if s == size {
			return true
		}
	}
	return false
}
