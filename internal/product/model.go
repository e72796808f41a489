package product

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryMen   Category = "Men"
	CategoryWomen Category = "Women"
	CategoryKids  Category = "Kids"
)

type SubCategory string

const (
	SubCategoryTopwear    SubCategory = "Topwear"
	SubCategoryBottomwear SubCategory = "Bottomwear"
	SubCategoryWinterwear SubCategory = "Winterwear"
)

// AllowedSizes lists the sizes a product may be offered in.
var AllowedSizes = []string{"S", "M", "L", "XL", "XXL"}

type Product struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Category      Category        `json:"category" db:"category"`
	SubCategory   SubCategory     `json:"sub_category" db:"sub_category"`
	Stock         int             `json:"stock" db:"stock"`
	Images        []string        `json:"images" db:"-"`
	Sizes         []string        `json:"sizes" db:"-"`
	BestSeller    bool            `json:"best_seller" db:"best_seller"`
	IsDeleted     bool            `json:"is_deleted" db:"is_deleted"`
	InStock       bool            `json:"in_stock" db:"in_stock"`
	Backorderable bool            `json:"backorderable" db:"backorderable"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// HasSize reports whether size (already normalised) is offered.
func (p *Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if NormalizeSize(s) == size {
			return true
		}
	}
	return false
}

// FirstImage returns the first image reference or an empty string.
func (p *Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// NormalizeSize trims and upper-cases a size so " m " and "M" compare equal.
func NormalizeSize(size string) string {
	return strings.ToUpper(strings.TrimSpace(size))
}

// StockRecord is the locked view of a product used while placing orders.
type StockRecord struct {
	ID            uuid.UUID
	Name          string
	Stock         int
	IsDeleted     bool
	Backorderable bool
}

type CreateInput struct {
	Name          string          `json:"name" validate:"required,min=2,max=255"`
	Description   string          `json:"description" validate:"max=5000"`
	Price         decimal.Decimal `json:"price"`
	Category      Category        `json:"category" validate:"required,oneof=Men Women Kids"`
	SubCategory   SubCategory     `json:"sub_category" validate:"required,oneof=Topwear Bottomwear Winterwear"`
	Stock         int             `json:"stock" validate:"min=0"`
	Images        []string        `json:"images" validate:"dive,required"`
	Sizes         []string        `json:"sizes" validate:"required,min=1,dive,required"`
	BestSeller    bool            `json:"best_seller"`
	Backorderable bool            `json:"backorderable"`
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	Description   *string          `json:"description,omitempty" validate:"omitempty,max=5000"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Category      *Category        `json:"category,omitempty" validate:"omitempty,oneof=Men Women Kids"`
	SubCategory   *SubCategory     `json:"sub_category,omitempty" validate:"omitempty,oneof=Topwear Bottomwear Winterwear"`
	Stock         *int             `json:"stock,omitempty" validate:"omitempty,min=0"`
	Images        []string         `json:"images,omitempty" validate:"omitempty,dive,required"`
	Sizes         []string         `json:"sizes,omitempty" validate:"omitempty,min=1,dive,required"`
	BestSeller    *bool            `json:"best_seller,omitempty"`
	Backorderable *bool            `json:"backorderable,omitempty"`
}
