package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"storefront/api"
	models "storefront/model"
	"storefront/store"
)

var errUnexpectedCall = errors.New("unexpected call")

// ---- fakeAuth implementing AuthAPI ----
type fakeAuth struct {
	RegisterFn       func(ctx context.Context, req models.RegisterRequest) error
	LoginFn          func(ctx context.Context, req models.LoginRequest) (models.Credentials, error)
	RefreshFn        func(ctx context.Context, refresh string) (models.Credentials, error)
	ProfileFn        func(ctx context.Context) (models.Profile, error)
	UpdateProfileFn  func(ctx context.Context, req models.ProfileUpdate) (models.Profile, error)
	ChangePasswordFn func(ctx context.Context, req models.PasswordChange) error
}

func (f *fakeAuth) Register(ctx context.Context, req models.RegisterRequest) error {
	if f.RegisterFn == nil {
		return errUnexpectedCall
	}
	return f.RegisterFn(ctx, req)
}
func (f *fakeAuth) Login(ctx context.Context, req models.LoginRequest) (models.Credentials, error) {
	if f.LoginFn == nil {
		return models.Credentials{}, errUnexpectedCall
	}
	return f.LoginFn(ctx, req)
}
func (f *fakeAuth) RefreshToken(ctx context.Context, refresh string) (models.Credentials, error) {
	if f.RefreshFn == nil {
		return models.Credentials{}, errUnexpectedCall
	}
	return f.RefreshFn(ctx, refresh)
}
func (f *fakeAuth) Profile(ctx context.Context) (models.Profile, error) {
	if f.ProfileFn == nil {
		return models.Profile{}, errUnexpectedCall
	}
	return f.ProfileFn(ctx)
}
func (f *fakeAuth) UpdateProfile(ctx context.Context, req models.ProfileUpdate) (models.Profile, error) {
	if f.UpdateProfileFn == nil {
		return models.Profile{}, errUnexpectedCall
	}
	return f.UpdateProfileFn(ctx, req)
}
func (f *fakeAuth) ChangePassword(ctx context.Context, req models.PasswordChange) error {
	if f.ChangePasswordFn == nil {
		return errUnexpectedCall
	}
	return f.ChangePasswordFn(ctx, req)
}

// ---- fakeCartAPI implementing CartAPI ----
type fakeCartAPI struct {
	CartFn    func(ctx context.Context) (models.Cart, error)
	AddFn     func(ctx context.Context, productID int64) (string, error)
	UpdateFn  func(ctx context.Context, itemID int64, quantity int) error
	RemoveFn  func(ctx context.Context, itemID int64) error
	mu        sync.Mutex
	cartCalls int
}

func (f *fakeCartAPI) Cart(ctx context.Context) (models.Cart, error) {
	f.mu.Lock()
	f.cartCalls++
	f.mu.Unlock()
	if f.CartFn == nil {
		return models.Cart{}, errUnexpectedCall
	}
	return f.CartFn(ctx)
}
func (f *fakeCartAPI) AddToCart(ctx context.Context, productID int64) (string, error) {
	if f.AddFn == nil {
		return "", errUnexpectedCall
	}
	return f.AddFn(ctx, productID)
}
func (f *fakeCartAPI) UpdateCartItem(ctx context.Context, itemID int64, quantity int) error {
	if f.UpdateFn == nil {
		return errUnexpectedCall
	}
	return f.UpdateFn(ctx, itemID, quantity)
}
func (f *fakeCartAPI) RemoveFromCart(ctx context.Context, itemID int64) error {
	if f.RemoveFn == nil {
		return errUnexpectedCall
	}
	return f.RemoveFn(ctx, itemID)
}

func (f *fakeCartAPI) CartCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cartCalls
}

// serverCart is an in-memory backend cart that merges repeated adds of a
// product into one line.
type serverCart struct {
	mu     sync.Mutex
	items  []models.CartItem
	prices map[int64]models.Money
	nextID int64
}

func newServerCart(prices map[int64]models.Money) *serverCart {
	return &serverCart{prices: prices, nextID: 1}
}

func (s *serverCart) api() *fakeCartAPI {
	return &fakeCartAPI{
		CartFn: func(ctx context.Context) (models.Cart, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			out := models.Cart{Items: make([]models.CartItem, len(s.items))}
			copy(out.Items, s.items)
			return out, nil
		},
		AddFn: func(ctx context.Context, productID int64) (string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			price, ok := s.prices[productID]
			if !ok {
				return "", &api.Error{Kind: api.KindDomain, Status: 404, Message: "Product not found"}
			}
			for i := range s.items {
				if s.items[i].ProductID == productID {
					s.items[i].Quantity++
					s.items[i].TotalPrice = price.Mul(s.items[i].Quantity)
					return "Cart updated", nil
				}
			}
			s.items = append(s.items, models.CartItem{ID: s.nextID, ProductID: productID, UnitPrice: price, Quantity: 1, TotalPrice: price})
			s.nextID++
			return "Item added to cart", nil
		},
		UpdateFn: func(ctx context.Context, itemID int64, quantity int) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i := range s.items {
				if s.items[i].ID == itemID {
					s.items[i].Quantity = quantity
					s.items[i].TotalPrice = s.items[i].UnitPrice.Mul(quantity)
					return nil
				}
			}
			return &api.Error{Kind: api.KindDomain, Status: 404, Message: "Cart item not found"}
		},
		RemoveFn: func(ctx context.Context, itemID int64) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i := range s.items {
				if s.items[i].ID == itemID {
					s.items = append(s.items[:i], s.items[i+1:]...)
					return nil
				}
			}
			return &api.Error{Kind: api.KindDomain, Status: 404, Message: "Cart item not found"}
		},
	}
}

func (s *serverCart) empty() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// ---- fakeCheckoutAPI implementing CheckoutAPI and OrderAPI ----
type fakeCheckoutAPI struct {
	CheckoutFn func(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error)
	SuccessFn  func(ctx context.Context, orderID int64) (models.Order, error)
	FailureFn  func(ctx context.Context, orderID int64) (models.Order, error)
	OrdersFn   func(ctx context.Context) ([]models.Order, error)
	OrderFn    func(ctx context.Context, orderID int64) (models.Order, error)
}

func (f *fakeCheckoutAPI) Checkout(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error) {
	if f.CheckoutFn == nil {
		return models.CheckoutResult{}, errUnexpectedCall
	}
	return f.CheckoutFn(ctx, req)
}
func (f *fakeCheckoutAPI) CheckoutSuccess(ctx context.Context, orderID int64) (models.Order, error) {
	if f.SuccessFn == nil {
		return models.Order{}, errUnexpectedCall
	}
	return f.SuccessFn(ctx, orderID)
}
func (f *fakeCheckoutAPI) CheckoutFailure(ctx context.Context, orderID int64) (models.Order, error) {
	if f.FailureFn == nil {
		return models.Order{}, errUnexpectedCall
	}
	return f.FailureFn(ctx, orderID)
}
func (f *fakeCheckoutAPI) Orders(ctx context.Context) ([]models.Order, error) {
	if f.OrdersFn == nil {
		return nil, errUnexpectedCall
	}
	return f.OrdersFn(ctx)
}
func (f *fakeCheckoutAPI) Order(ctx context.Context, orderID int64) (models.Order, error) {
	if f.OrderFn == nil {
		return models.Order{}, errUnexpectedCall
	}
	return f.OrderFn(ctx, orderID)
}

// ---- helpers ----

var testProfile = models.Profile{
	ID: 1, Username: "sita", Email: "sita@example.com",
	FirstName: "Sita", LastName: "Sharma", Phone: "9800000000",
	Address: "Lakeside", City: "Pokhara", PostalCode: "33700",
}

func unauthorized() error {
	return &api.Error{Kind: api.KindAuthentication, Status: 401, Message: "Given token not valid", RequiresAuth: true}
}

func okAuth() *fakeAuth {
	return &fakeAuth{
		LoginFn: func(ctx context.Context, req models.LoginRequest) (models.Credentials, error) {
			return models.Credentials{Access: "access-1", Refresh: "refresh-1"}, nil
		},
		ProfileFn: func(ctx context.Context) (models.Profile, error) {
			return testProfile, nil
		},
	}
}

func newTestSession(t *testing.T, auth *fakeAuth, st store.CredentialStore) *SessionManager {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewSessionManager(auth, st, logger)
}

// loggedIn returns a session that completed Login against auth.
func loggedIn(t *testing.T, auth *fakeAuth) (*SessionManager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	m := newTestSession(t, auth, st)
	if _, err := m.Login(context.Background(), models.LoginRequest{Username: "sita", Password: "Secret123"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	return m, st
}
