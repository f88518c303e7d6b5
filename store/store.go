package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	models "storefront/model"
)

//go:embed migrations.sql
var migrationSQL string

// SQLStore is a CredentialStore backed by a credentials table. The same
// statements run on Postgres (lib/pq) and SQLite (modernc.org/sqlite).
type SQLStore struct {
	DB *sql.DB

	// single writer in this process
	mu sync.Mutex
}

// NewSQLStore opens driver ("postgres" or "sqlite") at dsn, pings it and
// runs the embedded migration.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	DB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s credential db: %w", driver, err)
	}
	if err := DB.Ping(); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("ping %s credential db: %w", driver, err)
	}
	s := &SQLStore{DB: DB}
	if err := s.Migrate(context.Background()); err != nil {
		_ = DB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the credentials table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("run credential migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Load reads both token keys.
func (s *SQLStore) Load(ctx context.Context) (models.Credentials, error) {
	if s == nil || s.DB == nil {
		return models.Credentials{}, ErrNotConfigured
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT key, value FROM credentials WHERE key IN ($1, $2)`,
		KeyAccessToken, KeyRefreshToken,
	)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	var c models.Credentials
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Credentials{}, fmt.Errorf("scan credential: %w", err)
		}
		switch key {
		case KeyAccessToken:
			c.Access = value
		case KeyRefreshToken:
			c.Refresh = value
		}
	}
	if err := rows.Err(); err != nil {
		return models.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return c, nil
}

// Save upserts both keys in one transaction.
func (s *SQLStore) Save(ctx context.Context, c models.Credentials) error {
	if s == nil || s.DB == nil {
		return ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credential tx: %w", err)
	}
	// ensure rollback on early return
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, kv := range [][2]string{{KeyAccessToken, c.Access}, {KeyRefreshToken, c.Refresh}} {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (key, value) VALUES ($1, $2)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save credential %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	committed = true
	return nil
}

// Clear removes both keys.
func (s *SQLStore) Clear(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM credentials WHERE key IN ($1, $2)`,
		KeyAccessToken, KeyRefreshToken,
	); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
