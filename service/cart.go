package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"storefront/api"
	"storefront/metrics"
	models "storefront/model"
)

// CartSnapshot is a read-only view of the cart.
type CartSnapshot struct {
	Cart     models.Cart   `json:"cart"`
	Totals   models.Totals `json:"totals"`
	Mutating bool          `json:"mutating"`
}

// CartSynchronizer mirrors the server cart for the current session. The
// server copy is authoritative: every successful write is followed by a
// full refetch and the local cart is never patched.
type CartSynchronizer struct {
	api     CartAPI
	session *SessionManager
	log     logrus.FieldLogger

	// mutations serializes write+refetch pairs
	mutations sync.Mutex

	mu       sync.Mutex
	cart     models.Cart
	mutating bool
	// fetchSeq numbers fetches in the order they start; applied is the
	// newest one whose result (or a clear) has been stored. A result older
	// than applied is dropped.
	fetchSeq uint64
	applied  uint64
}

// NewCartSynchronizer returns an empty cart bound to session. It follows
// session changes: leaving Authenticated clears the cart and becoming
// Authenticated fetches it.
func NewCartSynchronizer(cartAPI CartAPI, session *SessionManager, log logrus.FieldLogger) *CartSynchronizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &CartSynchronizer{
		api:     cartAPI,
		session: session,
		log:     log.WithField("component", "cart"),
		cart:    models.Cart{Items: []models.CartItem{}},
	}
	var last models.Status
	session.Subscribe(func(s models.Session) {
		prev := last
		last = s.Status
		switch {
		case s.Authenticated() && prev != models.StatusAuthenticated:
			if err := c.Fetch(context.Background()); err != nil {
				c.log.WithError(err).Warn("fetch cart after sign-in")
			}
		case !s.Authenticated():
			c.clear()
		}
	})
	return c
}

// Snapshot returns a copy of the cart with its totals.
func (c *CartSynchronizer) Snapshot() CartSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart := c.cart.Clone()
	return CartSnapshot{Cart: cart, Totals: cart.ComputeTotals(), Mutating: c.mutating}
}

// Totals folds the current lines into a subtotal and item count.
func (c *CartSynchronizer) Totals() models.Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.ComputeTotals()
}

func (c *CartSynchronizer) clear() {
	c.mu.Lock()
	c.cart = models.Cart{Items: []models.CartItem{}}
	c.applied = c.fetchSeq
	c.mu.Unlock()
}

// Fetch replaces the local cart with the server's. An anonymous session
// yields an empty cart without a request. A fetch that finishes after a
// newer one (or after a clear) is discarded.
func (c *CartSynchronizer) Fetch(ctx context.Context) error {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	actx, s, err := c.session.authorized(ctx)
	if err != nil {
		c.clear()
		return nil
	}

	cart, err := c.api.Cart(actx)
	if err != nil {
		c.session.HandleError(s.AccessToken, err)
		return fmt.Errorf("fetch cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.applied {
		c.log.WithField("seq", seq).Debug("discarding stale cart fetch")
		return nil
	}
	c.cart = cart
	c.applied = seq
	return nil
}

// AddItem adds one unit of productID.
func (c *CartSynchronizer) AddItem(ctx context.Context, productID int64) (string, error) {
	var msg string
	err := c.mutate(ctx, "add", logrus.Fields{"product_id": productID}, func(ctx context.Context) error {
		var err error
		msg, err = c.api.AddToCart(ctx, productID)
		return err
	})
	return msg, err
}

// UpdateQuantity sets the quantity of a line. Quantities below one are
// rejected without a request.
func (c *CartSynchronizer) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 1 {
		return api.NewDomainError("quantity must be at least 1")
	}
	return c.mutate(ctx, "update", logrus.Fields{"item_id": itemID, "quantity": quantity}, func(ctx context.Context) error {
		return c.api.UpdateCartItem(ctx, itemID, quantity)
	})
}

// RemoveItem deletes a line.
func (c *CartSynchronizer) RemoveItem(ctx context.Context, itemID int64) error {
	return c.mutate(ctx, "remove", logrus.Fields{"item_id": itemID}, func(ctx context.Context) error {
		return c.api.RemoveFromCart(ctx, itemID)
	})
}

// mutate runs one write and, only if it succeeds, a refetch. Mutations
// queue behind each other so their write/refetch pairs never interleave.
func (c *CartSynchronizer) mutate(ctx context.Context, op string, fields logrus.Fields, write func(context.Context) error) (err error) {
	defer func() { metrics.RecordCartMutation(op, err) }()

	actx, s, err := c.session.authorized(ctx)
	if err != nil {
		return loginRequired()
	}

	c.mutations.Lock()
	defer c.mutations.Unlock()
	c.setMutating(true)
	defer c.setMutating(false)

	log := c.log.WithFields(fields).WithField("op", op)
	if err := write(actx); err != nil {
		c.session.HandleError(s.AccessToken, err)
		log.WithError(err).Warn("cart mutation failed")
		return fmt.Errorf("cart %s: %w", op, err)
	}
	log.Debug("cart mutation applied")
	return c.Fetch(ctx)
}

func (c *CartSynchronizer) setMutating(v bool) {
	c.mu.Lock()
	c.mutating = v
	c.mu.Unlock()
}
