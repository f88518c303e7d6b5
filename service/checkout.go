package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"storefront/api"
	"storefront/metrics"
	models "storefront/model"
)

var validTransitions = map[models.Step][]models.Step{
	models.StepInformation: {models.StepPayment},
	models.StepPayment:     {models.StepInformation, models.StepProcessing},
	models.StepProcessing:  {models.StepPayment, models.StepCompleted, models.StepFailed},
}

func canTransition(from, to models.Step) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Checkout drives one checkout at a time from shipping information to a
// placed order and, for wallet payments, the gateway handoff.
type Checkout struct {
	api     CheckoutAPI
	cart    *CartSynchronizer
	session *SessionManager
	log     logrus.FieldLogger

	mu    sync.Mutex
	state *models.CheckoutState
	// committing is set while a commit request is in flight
	committing bool
}

// NewCheckout returns a checkout with no checkout in progress. A checkout
// is discarded when the session leaves Authenticated.
func NewCheckout(checkoutAPI CheckoutAPI, cart *CartSynchronizer, session *SessionManager, log logrus.FieldLogger) *Checkout {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Checkout{
		api:     checkoutAPI,
		cart:    cart,
		session: session,
		log:     log.WithField("component", "checkout"),
	}
	session.Subscribe(func(s models.Session) {
		if !s.Authenticated() {
			c.mu.Lock()
			c.state = nil
			c.mu.Unlock()
		}
	})
	return c
}

// Begin enters checkout. An empty cart or a session that is not
// authenticated yields ErrRedirectToCart. Shipping information is
// prefilled from the profile.
func (c *Checkout) Begin(ctx context.Context) (models.CheckoutState, error) {
	s := c.session.Snapshot()
	if !s.Authenticated() {
		return models.CheckoutState{}, ErrRedirectToCart
	}
	if c.cart.Snapshot().Cart.Empty() {
		return models.CheckoutState{}, ErrRedirectToCart
	}

	st := &models.CheckoutState{
		Step: models.StepInformation,
		ShippingInfo: models.ShippingInfo{
			FirstName:  s.User.FirstName,
			LastName:   s.User.LastName,
			Email:      s.User.Email,
			Phone:      s.User.Phone,
			Address:    s.User.Address,
			City:       s.User.City,
			PostalCode: s.User.PostalCode,
		},
		PaymentMethod: models.Wallet{},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committing {
		return models.CheckoutState{}, fmt.Errorf("%w: commit in progress", ErrInvalidTransition)
	}
	c.state = st
	c.log.Debug("checkout started")
	return st.Clone(), nil
}

// State returns the current checkout.
func (c *Checkout) State() (models.CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return models.CheckoutState{}, ErrNotInitialized
	}
	return c.state.Clone(), nil
}

// transitionLocked moves to step when allowed. c.mu must be held.
func (c *Checkout) transitionLocked(to models.Step) error {
	if c.state == nil {
		return ErrNotInitialized
	}
	from := c.state.Step
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.state.Step = to
	c.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("checkout step")
	return nil
}

// SubmitInformation records shipping information and moves to Payment.
func (c *Checkout) SubmitInformation(info models.ShippingInfo) (models.CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return models.CheckoutState{}, ErrNotInitialized
	}
	if c.state.Step != models.StepInformation {
		return models.CheckoutState{}, fmt.Errorf("%w: information submitted in %s", ErrInvalidTransition, c.state.Step)
	}
	if err := validateStruct(info); err != nil {
		return c.state.Clone(), err
	}
	c.state.ShippingInfo = info
	c.state.Error = ""
	if err := c.transitionLocked(models.StepPayment); err != nil {
		return c.state.Clone(), err
	}
	return c.state.Clone(), nil
}

// SelectPaymentMethod changes the payment method. It does not move the
// checkout.
func (c *Checkout) SelectPaymentMethod(m models.PaymentMethod) (models.CheckoutState, error) {
	if m == nil {
		return models.CheckoutState{}, api.NewDomainError("payment method is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return models.CheckoutState{}, ErrNotInitialized
	}
	if c.state.Step != models.StepPayment {
		return c.state.Clone(), fmt.Errorf("%w: payment method selected in %s", ErrInvalidTransition, c.state.Step)
	}
	c.state.PaymentMethod = m
	return c.state.Clone(), nil
}

// Back returns from Payment to Information.
func (c *Checkout) Back() (models.CheckoutState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return models.CheckoutState{}, ErrNotInitialized
	}
	if c.state.Step != models.StepPayment {
		return c.state.Clone(), fmt.Errorf("%w: back from %s", ErrInvalidTransition, c.state.Step)
	}
	if err := c.transitionLocked(models.StepInformation); err != nil {
		return c.state.Clone(), err
	}
	return c.state.Clone(), nil
}

// Commit places the order. Cash on delivery and card complete
// immediately; a wallet payment stays in Processing with the gateway
// handoff form attached. On failure the checkout returns to Payment with
// the error recorded and nothing is retried.
func (c *Checkout) Commit(ctx context.Context) (models.CheckoutState, error) {
	actx, s, err := c.session.authorized(ctx)
	if err != nil {
		return models.CheckoutState{}, ErrRedirectToCart
	}

	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return models.CheckoutState{}, ErrNotInitialized
	}
	if c.committing {
		st := c.state.Clone()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: commit already in progress", ErrInvalidTransition)
	}
	if c.state.Step != models.StepPayment {
		st := c.state.Clone()
		c.mu.Unlock()
		return st, fmt.Errorf("%w: commit from %s", ErrInvalidTransition, st.Step)
	}
	if c.cart.Snapshot().Cart.Empty() {
		c.state = nil
		c.mu.Unlock()
		return models.CheckoutState{}, ErrRedirectToCart
	}
	if err := c.transitionLocked(models.StepProcessing); err != nil {
		st := c.state.Clone()
		c.mu.Unlock()
		return st, err
	}
	c.state.Error = ""
	st := c.state
	method := st.PaymentMethod
	req := api.CheckoutRequest{PaymentMethod: method.Code(), ShippingInfo: st.ShippingInfo}
	c.committing = true
	c.mu.Unlock()

	log := c.log.WithField("payment_method", method.Code())
	res, err := c.api.Checkout(actx, req)

	c.mu.Lock()
	c.committing = false
	if c.state != st {
		// abandoned or superseded while the request was in flight
		c.mu.Unlock()
		if err != nil {
			return models.CheckoutState{}, fmt.Errorf("checkout: %w", err)
		}
		log.WithField("order_id", res.Order.ID).Warn("order placed after checkout was abandoned")
		return models.CheckoutState{}, ErrNotInitialized
	}
	if err == nil {
		err = c.applyResultLocked(method, res)
	}
	if err != nil {
		st.Error = errorMessage(err)
		st.Order = nil
		st.PaymentArtifact = nil
		_ = c.transitionLocked(models.StepPayment)
		out := st.Clone()
		c.mu.Unlock()
		metrics.RecordCheckout(method.Code(), "failed")
		log.WithError(err).Warn("checkout commit failed")
		c.session.HandleError(s.AccessToken, err)
		return out, fmt.Errorf("checkout: %w", err)
	}
	out := st.Clone()
	c.mu.Unlock()

	log.WithFields(logrus.Fields{"order_id": out.Order.ID, "step": out.Step}).Info("order placed")
	metrics.RecordCheckout(method.Code(), out.Step.String())
	if err := c.cart.Fetch(ctx); err != nil {
		log.WithError(err).Warn("refresh cart after checkout")
	}
	return out, nil
}

// applyResultLocked records a successful commit. c.mu must be held.
func (c *Checkout) applyResultLocked(method models.PaymentMethod, res models.CheckoutResult) error {
	order := res.Order.Clone()
	switch method.(type) {
	case models.Wallet:
		if res.PaymentForm == nil {
			return api.NewDomainError("payment gateway did not return a payment form")
		}
		c.state.Order = &order
		c.state.PaymentArtifact = res.PaymentForm.Clone()
		return nil
	case models.Card, models.CashOnDelivery:
		c.state.Order = &order
		c.state.PaymentArtifact = nil
		return c.transitionLocked(models.StepCompleted)
	default:
		return fmt.Errorf("unsupported payment method %T", method)
	}
}

// ConfirmPayment reports a gateway success for orderID. When it is the
// order of the current checkout the checkout completes.
func (c *Checkout) ConfirmPayment(ctx context.Context, orderID int64) (models.Order, error) {
	return c.settle(ctx, orderID, true)
}

// FailPayment reports a gateway failure for orderID. When it is the
// order of the current checkout the checkout fails.
func (c *Checkout) FailPayment(ctx context.Context, orderID int64) (models.Order, error) {
	return c.settle(ctx, orderID, false)
}

func (c *Checkout) settle(ctx context.Context, orderID int64, ok bool) (models.Order, error) {
	actx, s, err := c.session.authorized(ctx)
	if err != nil {
		return models.Order{}, err
	}

	call, to, outcome := c.api.CheckoutSuccess, models.StepCompleted, "paid"
	if !ok {
		call, to, outcome = c.api.CheckoutFailure, models.StepFailed, "payment_failed"
	}
	order, err := call(actx, orderID)
	if err != nil {
		c.session.HandleError(s.AccessToken, err)
		return models.Order{}, fmt.Errorf("settle order %d: %w", orderID, err)
	}

	c.mu.Lock()
	st := c.state
	if st != nil && st.Step == models.StepProcessing && st.Order != nil && st.Order.ID == orderID {
		if order.ID != 0 {
			kept := order.Clone()
			st.Order = &kept
		} else {
			order = st.Order.Clone()
		}
		st.PaymentArtifact = nil
		if !ok {
			st.Error = "payment was not completed"
		}
		_ = c.transitionLocked(to)
		method := "unknown"
		if st.PaymentMethod != nil {
			method = st.PaymentMethod.Code()
		}
		metrics.RecordCheckout(method, outcome)
	}
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"order_id": orderID, "outcome": outcome}).Info("payment settled")
	if err := c.cart.Fetch(ctx); err != nil {
		c.log.WithError(err).Warn("refresh cart after payment")
	}
	return order, nil
}

// Abandon discards the current checkout. An order already placed on the
// server is left as is.
func (c *Checkout) Abandon() {
	c.mu.Lock()
	st := c.state
	c.state = nil
	c.mu.Unlock()
	if st == nil {
		return
	}
	log := c.log.WithField("step", st.Step)
	if st.Order != nil && !st.Step.Terminal() {
		log = log.WithField("order_id", st.Order.ID)
		log.Warn("checkout abandoned with a placed order")
		if st.PaymentMethod != nil {
			metrics.RecordCheckout(st.PaymentMethod.Code(), "abandoned")
		}
		return
	}
	log.Debug("checkout abandoned")
}

func errorMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "An unexpected error occurred. Please try again."
}
