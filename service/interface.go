package service

import (
	"context"
	"time"

	"storefront/api"
	models "storefront/model"
)

// AuthAPI is the remote account and token collaborator.
type AuthAPI interface {
	Register(ctx context.Context, req models.RegisterRequest) error
	Login(ctx context.Context, req models.LoginRequest) (models.Credentials, error)
	RefreshToken(ctx context.Context, refresh string) (models.Credentials, error)
	Profile(ctx context.Context) (models.Profile, error)
	UpdateProfile(ctx context.Context, req models.ProfileUpdate) (models.Profile, error)
	ChangePassword(ctx context.Context, req models.PasswordChange) error
}

// CartAPI is the remote cart collaborator.
type CartAPI interface {
	Cart(ctx context.Context) (models.Cart, error)
	AddToCart(ctx context.Context, productID int64) (string, error)
	UpdateCartItem(ctx context.Context, itemID int64, quantity int) error
	RemoveFromCart(ctx context.Context, itemID int64) error
}

// CheckoutAPI is the remote checkout collaborator.
type CheckoutAPI interface {
	Checkout(ctx context.Context, req api.CheckoutRequest) (models.CheckoutResult, error)
	CheckoutSuccess(ctx context.Context, orderID int64) (models.Order, error)
	CheckoutFailure(ctx context.Context, orderID int64) (models.Order, error)
}

// OrderAPI is the remote order history collaborator.
type OrderAPI interface {
	Orders(ctx context.Context) ([]models.Order, error)
	Order(ctx context.Context, orderID int64) (models.Order, error)
}

// ProductAPI is the read-mostly catalog collaborator.
type ProductAPI interface {
	Products(ctx context.Context, query string, page int) (models.ProductPage, error)
	Product(ctx context.Context, productID int64) (models.Product, error)
	AddReview(ctx context.Context, productID int64, review models.Review) error
}

var (
	_ AuthAPI     = (*api.Client)(nil)
	_ CartAPI     = (*api.Client)(nil)
	_ CheckoutAPI = (*api.Client)(nil)
	_ OrderAPI    = (*api.Client)(nil)
	_ ProductAPI  = (*api.Client)(nil)
)

// SessionService is the session surface consumed by the HTTP layer.
type SessionService interface {
	Snapshot() models.Session
	Login(ctx context.Context, req models.LoginRequest) (models.Session, error)
	Register(ctx context.Context, req models.RegisterRequest) error
	Logout()
	Refresh(ctx context.Context) (models.Session, error)
	UpdateProfile(ctx context.Context, req models.ProfileUpdate) (models.Profile, error)
	ChangePassword(ctx context.Context, req models.PasswordChange) error
	NeedsRefresh(window time.Duration) bool
}

// CartService is the cart surface consumed by the HTTP layer.
type CartService interface {
	Snapshot() CartSnapshot
	Fetch(ctx context.Context) error
	AddItem(ctx context.Context, productID int64) (string, error)
	UpdateQuantity(ctx context.Context, itemID int64, quantity int) error
	RemoveItem(ctx context.Context, itemID int64) error
}

// CheckoutService is the checkout surface consumed by the HTTP layer.
type CheckoutService interface {
	Begin(ctx context.Context) (models.CheckoutState, error)
	State() (models.CheckoutState, error)
	SubmitInformation(info models.ShippingInfo) (models.CheckoutState, error)
	SelectPaymentMethod(m models.PaymentMethod) (models.CheckoutState, error)
	Back() (models.CheckoutState, error)
	Commit(ctx context.Context) (models.CheckoutState, error)
	ConfirmPayment(ctx context.Context, orderID int64) (models.Order, error)
	FailPayment(ctx context.Context, orderID int64) (models.Order, error)
	Abandon()
}

// OrderService is the order history surface consumed by the HTTP layer.
type OrderService interface {
	List(ctx context.Context) ([]models.Order, error)
	Get(ctx context.Context, orderID int64) (models.Order, error)
}

// CatalogService is the product surface consumed by the HTTP layer.
type CatalogService interface {
	Products(ctx context.Context, query string, page int) (models.ProductPage, error)
	Product(ctx context.Context, productID int64) (models.Product, error)
	AddReview(ctx context.Context, productID int64, review models.Review) error
}

var (
	_ SessionService  = (*SessionManager)(nil)
	_ CartService     = (*CartSynchronizer)(nil)
	_ CheckoutService = (*Checkout)(nil)
	_ OrderService    = (*OrderHistory)(nil)
	_ CatalogService  = (*Catalog)(nil)
)
