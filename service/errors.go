package service

import (
	"errors"

	"storefront/api"
)

var (
	// ErrUnauthenticated is returned by operations that need an
	// authenticated session.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrRedirectToCart means checkout cannot be entered; the caller
	// should show the cart instead.
	ErrRedirectToCart = errors.New("checkout unavailable: return to cart")
	// ErrInvalidTransition is returned for an operation not allowed in
	// the current checkout step.
	ErrInvalidTransition = errors.New("invalid checkout transition")
	// ErrNotInitialized is returned by checkout operations before
	// BeginCheckout.
	ErrNotInitialized = errors.New("checkout not started")
	// ErrSessionChanged is returned when a logout or expiry lands while a
	// login or refresh is in flight; the late result is discarded.
	ErrSessionChanged = errors.New("session changed while request was in flight")
)

func loginRequired() *api.Error {
	return &api.Error{
		Kind:         api.KindAuthentication,
		Message:      "Please log in to add items to cart",
		RequiresAuth: true,
		Cause:        ErrUnauthenticated,
	}
}
