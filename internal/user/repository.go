package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/apperr"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var (
	ErrNotFound    = apperr.New(apperr.KindNotFound, "", "user not found")
	ErrEmailExists = apperr.New(apperr.KindConflict, "", "email already exists")
)

// Repository stores users. Every method takes the handle to run on, so callers
// choose between the pool and an open transaction.
type Repository interface {
	Create(ctx context.Context, q db.DBTX, u *User) error
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*User, error)
	// GetForUpdate loads the user and locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*User, error)
	// List returns every user, soft-deleted ones included, newest first.
	List(ctx context.Context, q db.DBTX) ([]User, error)
	// ToggleAvailability flips is_deleted and returns the updated user.
	ToggleAvailability(ctx context.Context, q db.DBTX, id uuid.UUID) (*User, error)
	ExistsWithRole(ctx context.Context, q db.DBTX, role Role) (bool, error)
	LoadCart(ctx context.Context, q db.DBTX, id uuid.UUID) (cart.Cart, error)
	// LoadCartForUpdate reads the cart and locks the owning user row.
	LoadCartForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (cart.Cart, error)
	SaveCart(ctx context.Context, q db.DBTX, id uuid.UUID, c cart.Cart) error
}

const userColumns = `id, name, email, password_hash, role, is_deleted, cart, created_at, updated_at`

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, q db.DBTX, u *User) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate user ID: %w", err)
		}
		u.ID = id
	}
	if u.Cart == nil {
		u.Cart = cart.New()
	}

	cartJSON, err := cart.Encode(u.Cart)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	query := `
		INSERT INTO users (id, name, email, password_hash, role, is_deleted, cart, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err = q.Exec(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.IsDeleted, cartJSON, now)
	if err != nil {
		if db.IsUniqueViolation(err) {
			log.Warn().Str("email", u.Email).Msg("repository: email already exists")
			return ErrEmailExists
		}
		return fmt.Errorf("repository: failed to insert user: %w", err)
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (r *repository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*User, error) {
	return r.get(ctx, q, id, false)
}

func (r *repository) GetForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*User, error) {
	return r.get(ctx, q, id, true)
}

func (r *repository) get(ctx context.Context, q db.DBTX, id uuid.UUID, lock bool) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_deleted = FALSE`
	if lock {
		query += ` FOR UPDATE`
	}

	u, err := scanUser(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by id %s: %w", id, err)
	}

	return u, nil
}

func (r *repository) List(ctx context.Context, q db.DBTX) ([]User, error) {
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating users: %w", err)
	}

	return users, nil
}

func (r *repository) ToggleAvailability(ctx context.Context, q db.DBTX, id uuid.UUID) (*User, error) {
	query := `
		UPDATE users
		SET is_deleted = NOT is_deleted, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to toggle user %s: %w", id, err)
	}

	return u, nil
}

// scanUser reads one row selected with userColumns.
func scanUser(row pgx.Row) (*User, error) {
	var (
		u        User
		role     string
		cartJSON []byte
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.IsDeleted,
		&cartJSON,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)

	c, err := cart.Decode(cartJSON)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("repository: stored cart is unreadable, treating as empty")
		c = cart.New()
	}
	u.Cart = c

	return &u, nil
}

func (r *repository) ExistsWithRole(ctx context.Context, q db.DBTX, role Role) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, string(role)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check role %s: %w", role, err)
	}
	return exists, nil
}

func (r *repository) LoadCart(ctx context.Context, q db.DBTX, id uuid.UUID) (cart.Cart, error) {
	u, err := r.get(ctx, q, id, false)
	if err != nil {
		return nil, err
	}
	return u.Cart, nil
}

func (r *repository) LoadCartForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (cart.Cart, error) {
	u, err := r.get(ctx, q, id, true)
	if err != nil {
		return nil, err
	}
	return u.Cart, nil
}

func (r *repository) SaveCart(ctx context.Context, q db.DBTX, id uuid.UUID, c cart.Cart) error {
	cartJSON, err := cart.Encode(c)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	cmdTag, err := q.Exec(ctx, `UPDATE users SET cart = $1, updated_at = NOW() WHERE id = $2`, cartJSON, id)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", id).Msg("repository: failed to save cart")
		return fmt.Errorf("repository: failed to save cart for user %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
