package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/product"
)

// UpdateLineStatus changes the status of one order line. Cancelling a line
// returns its quantity to stock; leaving cancelled takes it again.
func (s *service) UpdateLineStatus(ctx context.Context, orderID uuid.UUID, in LineStatusInput) (*Order, error) {
	const op = "order.UpdateLineStatus"

	if !in.Status.Valid() {
		return nil, apperr.InvalidArgument(op, "invalid status %q", in.Status)
	}
	size := product.NormalizeSize(in.Size)

	var updated *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		o, err := s.repo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		i, ok := o.itemIndex(in.ProductID, size)
		if !ok {
			return ErrItemNotFound
		}
		item := &o.Items[i]

		if err := s.moveStock(ctx, tx, item, in.Status); err != nil {
			return err
		}
		item.Status = in.Status
		o.promoteStatus()

		if err := s.repo.Save(ctx, tx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.wrapStatus(err, orderID, in.Status)
	}

	s.invalidate(ctx, in.ProductID)
	log.Info().
		Stringer("order_id", orderID).
		Stringer("product_id", in.ProductID).
		Str("size", size).
		Stringer("status", in.Status).
		Msg("service: order line status updated")
	return updated, nil
}

// UpdateStatus sets the order and every line to status.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status) (*Order, error) {
	const op = "order.UpdateStatus"

	if !status.Valid() {
		return nil, apperr.InvalidArgument(op, "invalid status %q", status)
	}

	var updated *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		o, err := s.repo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if status == StatusCancelled && o.Status == StatusCancelled {
			return apperr.InvalidState(op, "order is already cancelled")
		}

		for i := range o.Items {
			item := &o.Items[i]
			if err := s.moveStock(ctx, tx, item, status); err != nil {
				return err
			}
			item.Status = status
		}
		o.Status = status
		if status == StatusCancelled {
			o.PaymentStatus = PaymentCancelled
		}

		if err := s.repo.Save(ctx, tx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.wrapStatus(err, orderID, status)
	}

	s.invalidate(ctx, updated.productIDs()...)
	log.Info().Stringer("order_id", orderID).Stringer("status", status).Msg("service: order status updated")
	return updated, nil
}

// moveStock returns or re-takes a line's quantity when it crosses the cancelled boundary.
func (s *service) moveStock(ctx context.Context, tx db.DBTX, item *Item, next Status) error {
	var delta int
	switch {
	case next == StatusCancelled && item.Status != StatusCancelled:
		delta = item.Quantity
	case next != StatusCancelled && item.Status == StatusCancelled:
		delta = -item.Quantity
	default:
		return nil
	}

	_, err := s.products.AdjustStock(ctx, tx, item.ProductID, delta)
	return err
}

func (s *service) wrapStatus(err error, orderID uuid.UUID, status Status) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		log.Warn().Err(err).Stringer("order_id", orderID).Stringer("status", status).Msg("service: status update rejected")
		return err
	}
	log.Error().Err(err).Stringer("order_id", orderID).Stringer("status", status).Msg("service: failed to update order status")
	return fmt.Errorf("service: failed to update order status: %w", err)
}
