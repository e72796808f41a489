package cart

import (
	"sort"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/product"
)

// Line is one (product, size) entry. Price, Name and Image are snapshots taken when
// the line was first added.
type Line struct {
	ProductID uuid.UUID       `json:"productId"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

func (l Line) Key() string {
	return Key(l.ProductID, l.Size)
}

// Subtotal is Price × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart maps "<productId>:<SIZE>" to its line.
type Cart map[string]Line

func Key(productID uuid.UUID, size string) string {
	return productID.String() + ":" + product.NormalizeSize(size)
}

func New() Cart {
	return make(Cart)
}

func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// Lines returns the lines ordered by key.
func (c Cart) Lines() []Line {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]Line, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, c[k])
	}
	return lines
}

// ProductIDs returns the distinct product ids referenced by the cart.
func (c Cart) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(c))
	ids := make([]uuid.UUID, 0, len(c))
	for _, line := range c.Lines() {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		ids = append(ids, line.ProductID)
	}
	return ids
}

// QuantityByProduct sums quantities across sizes.
func (c Cart) QuantityByProduct() map[uuid.UUID]int {
	totals := make(map[uuid.UUID]int, len(c))
	for _, line := range c {
		totals[line.ProductID] += line.Quantity
	}
	return totals
}

// Total is the sum of every line subtotal.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c {
		total = total.Add(line.Subtotal())
	}
	return total
}

// put stores line under its key, dropping it when the quantity is not positive.
func (c Cart) put(line Line) {
	line.Size = product.NormalizeSize(line.Size)
	if line.Quantity <= 0 {
		delete(c, line.Key())
		return
	}
	c[line.Key()] = line
}
