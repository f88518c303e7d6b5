package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api"
	models "storefront/model"
	"storefront/store"
)

type checkoutFixture struct {
	session  *SessionManager
	server   *serverCart
	cart     *CartSynchronizer
	api      *fakeCheckoutAPI
	checkout *Checkout
}

// newCheckoutFixture logs in and puts one line in the server cart.
func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	session, _ := loggedIn(t, okAuth())
	server := newServerCart(map[int64]models.Money{7: 15050})
	cart := NewCartSynchronizer(server.api(), session, logger)
	_, err := cart.AddItem(context.Background(), 7)
	require.NoError(t, err)

	fake := &fakeCheckoutAPI{}
	return &checkoutFixture{
		session:  session,
		server:   server,
		cart:     cart,
		api:      fake,
		checkout: NewCheckout(fake, cart, session, logger),
	}
}

// toPayment begins checkout and submits the prefilled information.
func (f *checkoutFixture) toPayment(t *testing.T) models.CheckoutState {
	t.Helper()
	st, err := f.checkout.Begin(context.Background())
	require.NoError(t, err)
	st, err = f.checkout.SubmitInformation(st.ShippingInfo)
	require.NoError(t, err)
	require.Equal(t, models.StepPayment, st.Step)
	return st
}

func TestBeginWithEmptyCartRedirects(t *testing.T) {
	f := newCheckoutFixture(t)
	f.server.empty()
	require.NoError(t, f.cart.Fetch(context.Background()))

	_, err := f.checkout.Begin(context.Background())
	assert.ErrorIs(t, err, ErrRedirectToCart)
	_, err = f.checkout.State()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBeginAnonymousRedirects(t *testing.T) {
	f := newCheckoutFixture(t)
	f.session.Logout()

	_, err := f.checkout.Begin(context.Background())
	assert.ErrorIs(t, err, ErrRedirectToCart)
}

func TestBeginPrefillsShippingFromProfile(t *testing.T) {
	f := newCheckoutFixture(t)
	st, err := f.checkout.Begin(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StepInformation, st.Step)
	assert.Equal(t, "Sita", st.ShippingInfo.FirstName)
	assert.Equal(t, "sita@example.com", st.ShippingInfo.Email)
	assert.Equal(t, "Pokhara", st.ShippingInfo.City)
	assert.Equal(t, models.Wallet{}, st.PaymentMethod)
}

func TestSubmitInformationRequiresEveryField(t *testing.T) {
	f := newCheckoutFixture(t)
	_, err := f.checkout.Begin(context.Background())
	require.NoError(t, err)

	st, err := f.checkout.SubmitInformation(models.ShippingInfo{FirstName: "Sita"})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindValidation, apiErr.Kind)
	for _, field := range []string{"last_name", "email", "phone", "address", "city", "postal_code"} {
		assert.Contains(t, apiErr.Fields, field)
	}
	assert.Equal(t, models.StepInformation, st.Step)
}

func TestStepGuards(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.checkout.Commit(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = f.checkout.Begin(context.Background())
	require.NoError(t, err)
	_, err = f.checkout.SelectPaymentMethod(models.CashOnDelivery{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.checkout.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.checkout.Back()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBackReturnsToInformation(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)

	st, err := f.checkout.Back()
	require.NoError(t, err)
	assert.Equal(t, models.StepInformation, st.Step)
	assert.Equal(t, "Sita", st.ShippingInfo.FirstName)
}

func TestCommitCashOnDeliveryCompletesWithoutArtifact(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	_, err := f.checkout.SelectPaymentMethod(models.CashOnDelivery{})
	require.NoError(t, err)

	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		assert.Equal(t, "cod", req.PaymentMethod)
		assert.Equal(t, "Pokhara", req.ShippingInfo.City)
		f.server.empty()
		return models.CheckoutResult{Order: models.Order{ID: 41, FinalPrice: 15050, PaymentMethod: "cod"}}, nil
	}

	st, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, st.Step)
	require.NotNil(t, st.Order)
	assert.Equal(t, int64(41), st.Order.ID)
	assert.Nil(t, st.PaymentArtifact)
	assert.True(t, f.cart.Snapshot().Cart.Empty())
}

func TestCommitCardCompletesWithoutTransmittingCard(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	_, err := f.checkout.SelectPaymentMethod(models.Card{Name: "Sita", Number: "4111 1111 1111 1111", Expiry: "12/30", CVV: "123"})
	require.NoError(t, err)

	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		assert.Equal(t, "card", req.PaymentMethod)
		return models.CheckoutResult{Order: models.Order{ID: 42}}, nil
	}

	st, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, st.Step)
	assert.Nil(t, st.PaymentArtifact)
}

func TestCommitWalletYieldsOrderAndArtifact(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)

	form := &models.RedirectForm{Action: "https://gateway.example/pay", Method: "POST", Fields: map[string]string{"amount": "150.50"}}
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		assert.Equal(t, "esewa", req.PaymentMethod)
		return models.CheckoutResult{Order: models.Order{ID: 43}, PaymentForm: form}, nil
	}

	st, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepProcessing, st.Step)
	require.NotNil(t, st.Order)
	require.NotNil(t, st.PaymentArtifact)
	assert.Equal(t, form, st.PaymentArtifact)
}

func TestCheckoutStateIsASnapshot(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		return models.CheckoutResult{
			Order:       models.Order{ID: 45, Items: []models.OrderItem{{ProductID: 7, Quantity: 1, Price: 15050}}},
			PaymentForm: &models.RedirectForm{Action: "https://gateway.example/pay", Method: "POST", Fields: map[string]string{"amount": "150.50"}},
		}, nil
	}

	st, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)
	st.Order.ID = 0
	st.Order.Items[0].Quantity = 99
	st.PaymentArtifact.Fields["amount"] = "0.01"
	st.PaymentArtifact.Action = "https://evil.example/"

	again, err := f.checkout.State()
	require.NoError(t, err)
	assert.Equal(t, int64(45), again.Order.ID)
	assert.Equal(t, 1, again.Order.Items[0].Quantity)
	assert.Equal(t, "150.50", again.PaymentArtifact.Fields["amount"])
	assert.Equal(t, "https://gateway.example/pay", again.PaymentArtifact.Action)

	again.PaymentArtifact.Fields["amount"] = "1.00"
	third, err := f.checkout.State()
	require.NoError(t, err)
	assert.Equal(t, "150.50", third.PaymentArtifact.Fields["amount"])
}

func TestCommitWalletWithoutFormFails(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		return models.CheckoutResult{Order: models.Order{ID: 44}}, nil
	}

	st, err := f.checkout.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.StepPayment, st.Step)
	assert.Nil(t, st.Order)
	assert.NotEmpty(t, st.Error)
}

func TestCommitFailureRevertsToPaymentWithoutRetry(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)

	var calls int
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		calls++
		return models.CheckoutResult{}, &api.Error{Kind: api.KindDomain, Status: 400, Message: "Product out of stock"}
	}

	st, err := f.checkout.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.StepPayment, st.Step)
	assert.Equal(t, "Product out of stock", st.Error)

	// the cart is untouched by a failed commit
	assert.Len(t, f.cart.Snapshot().Cart.Items, 1)
}

func TestCommit401ExpiresSessionAndDiscardsCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		return models.CheckoutResult{}, unauthorized()
	}

	_, err := f.checkout.Commit(context.Background())
	assert.True(t, api.IsAuthentication(err))
	assert.Equal(t, models.StatusAnonymous, f.session.Snapshot().Status)
	_, err = f.checkout.State()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCommitInFlightIsRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		close(entered)
		<-release
		return models.CheckoutResult{Order: models.Order{ID: 45}}, nil
	}
	_, err := f.checkout.SelectPaymentMethod(models.CashOnDelivery{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.checkout.Commit(context.Background())
		done <- err
	}()
	<-entered
	_, err = f.checkout.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("commit did not return")
	}
}

func TestConfirmPaymentCompletesWalletCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		return models.CheckoutResult{
			Order:       models.Order{ID: 46, PaymentStatus: models.PaymentPending},
			PaymentForm: &models.RedirectForm{Action: "https://gateway.example/pay", Fields: map[string]string{"a": "b"}},
		}, nil
	}
	f.api.SuccessFn = func(ctx context.Context, orderID int64) (models.Order, error) {
		assert.Equal(t, int64(46), orderID)
		f.server.empty()
		return models.Order{ID: 46, PaymentStatus: models.PaymentCompleted}, nil
	}
	_, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)

	order, err := f.checkout.ConfirmPayment(context.Background(), 46)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, order.PaymentStatus)

	st, err := f.checkout.State()
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, st.Step)
	assert.Nil(t, st.PaymentArtifact)
	assert.True(t, f.cart.Snapshot().Cart.Empty())
}

func TestFailPaymentFailsWalletCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		return models.CheckoutResult{
			Order:       models.Order{ID: 47},
			PaymentForm: &models.RedirectForm{Action: "https://gateway.example/pay", Fields: map[string]string{"a": "b"}},
		}, nil
	}
	f.api.FailureFn = func(ctx context.Context, orderID int64) (models.Order, error) {
		return models.Order{}, nil
	}
	_, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)

	order, err := f.checkout.FailPayment(context.Background(), 47)
	require.NoError(t, err)
	assert.Equal(t, int64(47), order.ID)

	st, err := f.checkout.State()
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, st.Step)
	assert.NotEmpty(t, st.Error)
}

func TestAbandonDiscardsCheckoutButNotOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.toPayment(t)
	f.api.CheckoutFn = func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
		return models.CheckoutResult{
			Order:       models.Order{ID: 48},
			PaymentForm: &models.RedirectForm{Action: "https://gateway.example/pay", Fields: map[string]string{"a": "b"}},
		}, nil
	}
	_, err := f.checkout.Commit(context.Background())
	require.NoError(t, err)

	f.checkout.Abandon()
	_, err = f.checkout.State()
	assert.ErrorIs(t, err, ErrNotInitialized)
	// the gateway callbacks still work for an abandoned order
	f.api.FailureFn = func(ctx context.Context, orderID int64) (models.Order, error) {
		return models.Order{ID: orderID}, nil
	}
	order, err := f.checkout.FailPayment(context.Background(), 48)
	require.NoError(t, err)
	assert.Equal(t, int64(48), order.ID)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(models.StepInformation, models.StepPayment))
	assert.True(t, canTransition(models.StepProcessing, models.StepPayment))
	assert.False(t, canTransition(models.StepInformation, models.StepProcessing))
	assert.False(t, canTransition(models.StepCompleted, models.StepPayment))
	assert.False(t, canTransition(models.StepFailed, models.StepInformation))
}

func TestOrderHistory(t *testing.T) {
	f := newCheckoutFixture(t)
	logger, _ := test.NewNullLogger()
	h := NewOrderHistory(f.api, f.cart, f.session, logger)

	f.api.OrdersFn = func(ctx context.Context) ([]models.Order, error) {
		return []models.Order{{ID: 1}, {ID: 2}}, nil
	}
	f.api.OrderFn = func(ctx context.Context, orderID int64) (models.Order, error) {
		if orderID == 404 {
			return models.Order{}, &api.Error{Kind: api.KindDomain, Status: 404, Message: "Not Found"}
		}
		return models.Order{ID: orderID}, nil
	}

	orders, err := h.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	order, err := h.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.ID)

	_, err = h.Get(context.Background(), 404)
	k, _ := api.KindOf(err)
	assert.Equal(t, api.KindDomain, k)

	_, err = h.Get(context.Background(), 0)
	assert.Error(t, err)

	f.session.Logout()
	_, err = h.List(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}

func TestCatalogReviewRequiresLogin(t *testing.T) {
	session := newTestSession(t, &fakeAuth{}, store.NewMemoryStore())
	require.NoError(t, session.Initialize(context.Background()))
	c := NewCatalog(nil, session)

	err := c.AddReview(context.Background(), 7, models.Review{Rating: 5})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.RequiresAuth)
}
