package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	models "storefront/model"
)

// CheckoutRequest is the checkout-commit payload.
type CheckoutRequest struct {
	PaymentMethod string              `json:"payment_method"`
	ShippingInfo  models.ShippingInfo `json:"shipping_info"`
}

// Checkout commits the current server cart into an order. For wallet
// payments the response carries the gateway handoff form.
func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (models.CheckoutResult, error) {
	raw, err := c.doRaw(ctx, "checkout.commit", http.MethodPost, "orders/checkout/", req)
	if err != nil {
		return models.CheckoutResult{}, err
	}
	payload := gjson.ParseBytes(raw)

	var res models.CheckoutResult
	orderJSON := payload.Get("order")
	if !orderJSON.Exists() {
		return models.CheckoutResult{}, &Error{Kind: KindNetwork, Message: "checkout response carried no order"}
	}
	if err := json.Unmarshal([]byte(orderJSON.Raw), &res.Order); err != nil {
		return models.CheckoutResult{}, decodeErr("order", err)
	}

	form := payload.Get("payment_form")
	switch {
	case !form.Exists() || form.Type == gjson.Null:
	case form.IsObject():
		var rf models.RedirectForm
		if err := json.Unmarshal([]byte(form.Raw), &rf); err != nil {
			return models.CheckoutResult{}, decodeErr("payment form", err)
		}
		if err := validateAction(rf.Action); err != nil {
			return models.CheckoutResult{}, &Error{Kind: KindDomain, Message: "payment form rejected", Cause: err}
		}
		if rf.Method == "" {
			rf.Method = http.MethodPost
		}
		res.PaymentForm = &rf
	case form.Type == gjson.String:
		rf, err := ParsePaymentForm(form.String(), c.gatewayURL)
		if err != nil {
			return models.CheckoutResult{}, &Error{Kind: KindDomain, Message: "payment form rejected", Cause: err}
		}
		res.PaymentForm = rf
	}
	return res, nil
}

// CheckoutSuccess reports a gateway success for orderID.
func (c *Client) CheckoutSuccess(ctx context.Context, orderID int64) (models.Order, error) {
	return c.orderCall(ctx, "checkout.success", fmt.Sprintf("orders/checkout/success/%d/", orderID))
}

// CheckoutFailure reports a gateway failure for orderID.
func (c *Client) CheckoutFailure(ctx context.Context, orderID int64) (models.Order, error) {
	return c.orderCall(ctx, "checkout.failure", fmt.Sprintf("orders/checkout/failure/%d/", orderID))
}

// Orders lists the bearer's orders.
func (c *Client) Orders(ctx context.Context) ([]models.Order, error) {
	raw, err := c.doRaw(ctx, "orders.list", http.MethodGet, "orders/view-orders/", nil)
	if err != nil {
		return nil, err
	}
	payload := gjson.ParseBytes(raw)
	if !payload.IsArray() {
		for _, key := range []string{"orders", "results"} {
			if v := payload.Get(key); v.IsArray() {
				payload = v
				break
			}
		}
	}
	out := []models.Order{}
	if !payload.IsArray() {
		return out, nil
	}
	if err := json.Unmarshal([]byte(payload.Raw), &out); err != nil {
		return nil, decodeErr("orders", err)
	}
	return out, nil
}

// Order fetches one order.
func (c *Client) Order(ctx context.Context, orderID int64) (models.Order, error) {
	return c.orderCall(ctx, "orders.get", fmt.Sprintf("orders/order/%d/", orderID))
}

// orderCall decodes either a bare order or {"order": {...}}. Responses
// that carry only a message yield a zero Order.
func (c *Client) orderCall(ctx context.Context, endpoint, path string) (models.Order, error) {
	raw, err := c.doRaw(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return models.Order{}, err
	}
	payload := gjson.ParseBytes(raw)
	if o := payload.Get("order"); o.Exists() && o.IsObject() {
		payload = o
	}
	var order models.Order
	if !payload.Get("id").Exists() {
		return order, nil
	}
	if err := json.Unmarshal([]byte(payload.Raw), &order); err != nil {
		return models.Order{}, decodeErr("order", err)
	}
	return order, nil
}

func decodeErr(what string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: "unexpected response from the store", Cause: fmt.Errorf("decode %s: %w", what, err)}
}
