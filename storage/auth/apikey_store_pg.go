package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGKeyStore persists hashed API keys in Postgres.
type PGKeyStore struct {
	pool *pgxpool.Pool
}

// NewPGKeyStore initializes the key table on an existing pool.
func NewPGKeyStore(ctx context.Context, pool *pgxpool.Pool) (*PGKeyStore, error) {
	s := &PGKeyStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGKeyStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS hp_api_keys (
  key_id TEXT PRIMARY KEY,
  key_hash TEXT NOT NULL,
  kind TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_hp_api_keys_owner ON hp_api_keys(kind, owner_id);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init api key schema: %w", err)
	}
	return nil
}

// Issue implements KeyStore.
func (s *PGKeyStore) Issue(ctx context.Context, p Principal) (string, error) {
	key, rec, err := newKey(p, time.Now().UTC())
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO hp_api_keys (key_id, key_hash, kind, owner_id, created_at) VALUES ($1,$2,$3,$4,$5)",
		rec.KeyID, rec.KeyHash, string(rec.Kind), rec.OwnerID, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return key, nil
}

// Resolve implements KeyStore.
func (s *PGKeyStore) Resolve(ctx context.Context, key string) (Principal, error) {
	id, secret, err := splitKey(key)
	if err != nil {
		return Principal{}, err
	}
	var rec keyRecord
	var kind string
	err = s.pool.QueryRow(ctx,
		"SELECT key_id, key_hash, kind, owner_id, created_at FROM hp_api_keys WHERE key_id=$1", id,
	).Scan(&rec.KeyID, &rec.KeyHash, &kind, &rec.OwnerID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrInvalidKey
	}
	if err != nil {
		return Principal{}, fmt.Errorf("lookup api key: %w", err)
	}
	rec.Kind = Kind(kind)
	if !rec.matches(secret) {
		return Principal{}, ErrInvalidKey
	}
	return Principal{Kind: rec.Kind, ID: rec.OwnerID}, nil
}
