package api

import (
	"context"
	"fmt"
	"net/http"

	models "storefront/model"
)

// Cart fetches the authoritative cart.
func (c *Client) Cart(ctx context.Context) (models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, "cart.view", http.MethodGet, "orders/view-cart/", nil, &cart); err != nil {
		return models.Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

// AddToCart adds one unit of a product. The server merges repeated adds
// of the same product into a single line.
func (c *Client) AddToCart(ctx context.Context, productID int64) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	path := fmt.Sprintf("orders/add-to-cart/%d/", productID)
	if err := c.do(ctx, "cart.add", http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// UpdateCartItem sets a line's quantity.
func (c *Client) UpdateCartItem(ctx context.Context, itemID int64, quantity int) error {
	path := fmt.Sprintf("orders/update-cart-item/%d/", itemID)
	return c.do(ctx, "cart.update", http.MethodPost, path, map[string]int{"quantity": quantity}, nil)
}

// RemoveFromCart deletes a line.
func (c *Client) RemoveFromCart(ctx context.Context, itemID int64) error {
	path := fmt.Sprintf("orders/remove-from-cart/%d/", itemID)
	return c.do(ctx, "cart.remove", http.MethodDelete, path, nil, nil)
}
