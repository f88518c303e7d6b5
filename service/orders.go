package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"storefront/api"
	models "storefront/model"
)

// OrderHistory reads the signed-in user's orders.
type OrderHistory struct {
	api     OrderAPI
	cart    *CartSynchronizer
	session *SessionManager
	log     logrus.FieldLogger
}

func NewOrderHistory(orderAPI OrderAPI, cart *CartSynchronizer, session *SessionManager, log logrus.FieldLogger) *OrderHistory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OrderHistory{api: orderAPI, cart: cart, session: session, log: log.WithField("component", "orders")}
}

// List returns every order of the signed-in user.
func (h *OrderHistory) List(ctx context.Context) ([]models.Order, error) {
	actx, s, err := h.session.authorized(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := h.api.Orders(actx)
	if err != nil {
		h.session.HandleError(s.AccessToken, err)
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Get returns one order. The cart is refreshed afterwards since an order
// confirmation usually follows a checkout that emptied it.
func (h *OrderHistory) Get(ctx context.Context, orderID int64) (models.Order, error) {
	if orderID <= 0 {
		return models.Order{}, api.NewDomainError("invalid order id")
	}
	actx, s, err := h.session.authorized(ctx)
	if err != nil {
		return models.Order{}, err
	}
	order, err := h.api.Order(actx, orderID)
	if err != nil {
		h.session.HandleError(s.AccessToken, err)
		return models.Order{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	if order.ID == 0 {
		return models.Order{}, api.NewDomainError("order not found")
	}
	if err := h.cart.Fetch(ctx); err != nil {
		h.log.WithError(err).WithField("order_id", orderID).Warn("refresh cart after order lookup")
	}
	return order, nil
}
