package models

import (
	"encoding/json"
	"fmt"
)

// CartItem is one line of the server cart.
type CartItem struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	UnitPrice  Money  `json:"price"`
	Quantity   int    `json:"quantity"`
	TotalPrice Money  `json:"total_price"`
}

// Consistent reports whether TotalPrice == UnitPrice * Quantity.
func (c CartItem) Consistent() bool {
	return c.Quantity >= 1 && c.TotalPrice == c.UnitPrice.Mul(c.Quantity)
}

// UnmarshalJSON accepts "product" as either a bare id or a nested object.
func (c *CartItem) UnmarshalJSON(data []byte) error {
	type alias CartItem
	var raw struct {
		alias
		Product json.RawMessage `json:"product"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CartItem(raw.alias)
	if len(raw.Product) == 0 || string(raw.Product) == "null" {
		return nil
	}

	var id int64
	if err := json.Unmarshal(raw.Product, &id); err == nil {
		c.ProductID = id
		return nil
	}
	var nested struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if err := json.Unmarshal(raw.Product, &nested); err != nil {
		return fmt.Errorf("decode cart item product: %w", err)
	}
	c.ProductID = nested.ID
	if c.Name == "" {
		c.Name = nested.Name
	}
	if c.Image == "" {
		c.Image = nested.Image
	}
	return nil
}

// Cart is the locally mirrored server cart. It is always replaced
// wholesale, never patched.
type Cart struct {
	Items []CartItem `json:"cart_items"`
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.Items) == 0 }

// Item returns the line with the given id.
func (c Cart) Item(id int64) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return CartItem{}, false
}

// Clone returns a deep copy.
func (c Cart) Clone() Cart {
	out := Cart{Items: make([]CartItem, len(c.Items))}
	copy(out.Items, c.Items)
	return out
}

// Totals is the pure fold over a cart's lines.
type Totals struct {
	Subtotal  Money `json:"subtotal"`
	ItemCount int   `json:"item_count"`
}

// ComputeTotals folds the cart lines into a subtotal and item count.
func (c Cart) ComputeTotals() Totals {
	var t Totals
	for _, it := range c.Items {
		t.Subtotal += it.TotalPrice
		t.ItemCount += it.Quantity
	}
	return t
}
