package models

import (
	"fmt"
	"strings"
)

// Status is the authentication state of a Session.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Credentials is the access/refresh token pair. The two are always
// persisted and cleared together.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty reports whether no access token is held.
func (c Credentials) Empty() bool { return strings.TrimSpace(c.Access) == "" }

// Profile holds the identity attributes returned by my/account.
type Profile struct {
	ID               int64  `json:"id,omitempty"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	City             string `json:"city"`
	PostalCode       string `json:"postal_code"`
	Points           int    `json:"points"`
	LoginStreak      int    `json:"login_streak"`
	InkBottleReturns int    `json:"ink_bottle_returns"`
}

// Session is a read-only snapshot of the authentication state.
// User is non-nil iff Status == StatusAuthenticated.
type Session struct {
	AccessToken  string   `json:"-"`
	RefreshToken string   `json:"-"`
	User         *Profile `json:"user"`
	Status       Status   `json:"status"`
}

// Authenticated reports whether the session carries a verified identity.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// LoginRequest is the token endpoint payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the account registration form. PasswordConfirm is
// checked locally and never sent.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=3"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

// ProfileUpdate is the my/account PUT payload.
type ProfileUpdate struct {
	Username   string `json:"username" validate:"required,min=3"`
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Phone      string `json:"phone" validate:"omitempty,len=10,numeric"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// PasswordChange is the change_password form. ConfirmPassword is checked
// locally and never sent.
type PasswordChange struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,password_policy"`
	ConfirmPassword string `json:"confirm_password,omitempty" validate:"required,eqfield=NewPassword"`
}
