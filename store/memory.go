package store

import (
	"context"
	"sync"

	models "storefront/model"
)

// MemoryStore keeps the pair in process memory. It does not survive a
// restart and is meant for tests and throwaway runs.
type MemoryStore struct {
	mu    sync.Mutex
	creds models.Credentials
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (models.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return models.Credentials{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, nil
}

func (m *MemoryStore) Save(ctx context.Context, c models.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = c
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = models.Credentials{}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
