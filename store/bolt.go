package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	models "storefront/model"
)

const credentialBucket = "credentials"

// BoltStore is a CredentialStore kept in a local BoltDB file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the BoltDB file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("credential store path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}

	s := &BoltStore{db: db}
	if err := s.ensureBucket(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Load(ctx context.Context) (models.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return models.Credentials{}, err
	}
	if s == nil || s.db == nil {
		return models.Credentials{}, ErrNotConfigured
	}

	var c models.Credentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(credentialBucket))
		if bucket == nil {
			return fmt.Errorf("credential bucket is missing")
		}
		c.Access = string(bucket.Get([]byte(KeyAccessToken)))
		c.Refresh = string(bucket.Get([]byte(KeyRefreshToken)))
		return nil
	})
	if err != nil {
		return models.Credentials{}, err
	}
	return c, nil
}

func (s *BoltStore) Save(ctx context.Context, c models.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(credentialBucket))
		if bucket == nil {
			return fmt.Errorf("credential bucket is missing")
		}
		if err := bucket.Put([]byte(KeyAccessToken), []byte(c.Access)); err != nil {
			return fmt.Errorf("put access token: %w", err)
		}
		if err := bucket.Put([]byte(KeyRefreshToken), []byte(c.Refresh)); err != nil {
			return fmt.Errorf("put refresh token: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(credentialBucket))
		if bucket == nil {
			return nil
		}
		if err := bucket.Delete([]byte(KeyAccessToken)); err != nil {
			return err
		}
		return bucket.Delete([]byte(KeyRefreshToken))
	})
}

func (s *BoltStore) ensureBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(credentialBucket)); err != nil {
			return fmt.Errorf("create credential bucket: %w", err)
		}
		return nil
	})
}
