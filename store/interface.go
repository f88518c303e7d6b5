package store

import (
	"context"
	"errors"

	models "storefront/model"
)

// Fixed keys the token pair is persisted under.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
)

// ErrNotConfigured is returned by a store whose backing handle is nil.
var ErrNotConfigured = errors.New("credential store is not configured")

// CredentialStore durably persists the access/refresh token pair.
// Save and Clear always write both keys in one transaction.
type CredentialStore interface {
	// Load returns the persisted pair. A missing pair is not an error;
	// it comes back empty.
	Load(ctx context.Context) (models.Credentials, error)
	Save(ctx context.Context, c models.Credentials) error
	Clear(ctx context.Context) error

	Close() error
}
