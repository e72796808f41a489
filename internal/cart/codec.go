package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/product"
)

// nestedLine is the per-size value of the older productId -> size -> line layout.
type nestedLine struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Name     string          `json:"name"`
	Image    json.RawMessage `json:"image"`
}

// Decode reads a stored cart. Besides the composite-key layout it accepts the nested
// productId -> size -> line layout. A top-level array (the old list-of-ids layout)
// carries no sizes or quantities and decodes to an empty cart.
func Decode(raw []byte) (Cart, error) {
	c := New()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return c, nil
	}

	if trimmed[0] == '[' {
		log.Warn().Int("bytes", len(trimmed)).Msg("cart: discarding list-shaped cart")
		return c, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("cart: failed to decode cart: %w", err)
	}

	for key, value := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(value, &fields); err != nil {
			log.Warn().Str("key", key).Msg("cart: skipping non-object cart entry")
			continue
		}

		if _, ok := fields["quantity"]; ok {
			if err := decodeLine(c, key, value); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("cart: skipping malformed cart line")
			}
			continue
		}

		if err := decodeNested(c, key, fields); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cart: skipping malformed nested cart entry")
		}
	}

	return c, nil
}

func decodeLine(c Cart, key string, value json.RawMessage) error {
	var line Line
	if err := json.Unmarshal(value, &line); err != nil {
		return err
	}

	idPart, sizePart, _ := strings.Cut(key, ":")
	if line.ProductID == uuid.Nil {
		id, err := uuid.FromString(idPart)
		if err != nil {
			return fmt.Errorf("invalid product id %q: %w", idPart, err)
		}
		line.ProductID = id
	}
	if strings.TrimSpace(line.Size) == "" {
		line.Size = sizePart
	}
	if product.NormalizeSize(line.Size) == "" {
		return fmt.Errorf("line has no size")
	}

	merge(c, line)
	return nil
}

func decodeNested(c Cart, key string, sizes map[string]json.RawMessage) error {
	productID, err := uuid.FromString(key)
	if err != nil {
		return fmt.Errorf("invalid product id %q: %w", key, err)
	}

	for size, value := range sizes {
		var nested nestedLine
		if err := json.Unmarshal(value, &nested); err != nil {
			return fmt.Errorf("size %q: %w", size, err)
		}
		if product.NormalizeSize(size) == "" {
			continue
		}

		merge(c, Line{
			ProductID: productID,
			Size:      size,
			Quantity:  nested.Quantity,
			Price:     nested.Price,
			Name:      nested.Name,
			Image:     firstImage(nested.Image),
		})
	}

	return nil
}

// merge adds line to c, summing quantities when two stored entries normalise to the same key.
func merge(c Cart, line Line) {
	if line.Quantity <= 0 {
		return
	}
	line.Size = product.NormalizeSize(line.Size)
	if existing, ok := c[line.Key()]; ok {
		existing.Quantity += line.Quantity
		c.put(existing)
		return
	}
	c.put(line)
}

// firstImage accepts either a single reference or a list of references.
func firstImage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// Encode writes the composite-key layout.
func Encode(c Cart) ([]byte, error) {
	if c == nil {
		c = New()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("cart: failed to encode cart: %w", err)
	}
	return data, nil
}
