package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderItem is one purchased line of an Order.
type OrderItem struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     Money  `json:"price"`
}

func (o *OrderItem) UnmarshalJSON(data []byte) error {
	type alias OrderItem
	var raw struct {
		alias
		Product json.RawMessage `json:"product"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = OrderItem(raw.alias)
	if len(raw.Product) == 0 || string(raw.Product) == "null" {
		return nil
	}
	var id int64
	if err := json.Unmarshal(raw.Product, &id); err == nil {
		o.ProductID = id
		return nil
	}
	var nested struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if err := json.Unmarshal(raw.Product, &nested); err != nil {
		return fmt.Errorf("decode order item product: %w", err)
	}
	o.ProductID, o.Name, o.Image = nested.ID, nested.Name, nested.Image
	return nil
}

// ShippingAddress is the address snapshot stored on an Order.
type ShippingAddress struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

// PaymentStatus is the server-side payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Order is an immutable snapshot returned by the backend.
type Order struct {
	ID              int64           `json:"id"`
	UUID            string          `json:"uuid"`
	Items           []OrderItem     `json:"items"`
	Subtotal        Money           `json:"total_price"`
	Discount        Money           `json:"discount"`
	ShippingCost    Money           `json:"shipping_cost"`
	FinalPrice      Money           `json:"final_price"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}
