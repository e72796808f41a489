package user

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/storefront/internal/cart"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleSuperAdmin Role = "superAdmin"
)

func (r Role) String() string {
	return string(r)
}

// User представляет пользователя магазина вместе с его корзиной.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // never serialised
	Role         Role      `json:"role" db:"role"`
	IsDeleted    bool      `json:"is_deleted" db:"is_deleted"`
	Cart         cart.Cart `json:"cart" db:"-"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type CreateInput struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"omitempty,oneof=user superAdmin"`
}
