package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrInvalidKey = Err("invalid api key")
	ErrNoCode     = Err("no live activation code")
)

// Kind says which side of the marketplace a credential belongs to.
type Kind string

const (
	KindAgent Kind = "agent"
	KindHuman Kind = "human"
)

// Principal is the identity an API key resolves to.
type Principal struct {
	Kind Kind
	ID   string
}

// KeyStore issues opaque API keys and resolves them back to their owner.
// Keys are shown once; only a salted hash is kept.
type KeyStore interface {
	Issue(ctx context.Context, p Principal) (string, error)
	Resolve(ctx context.Context, key string) (Principal, error)
}

const keyPrefix = "hp"

// keyRecord is the stored, hashed form of a key.
type keyRecord struct {
	KeyID     string
	KeyHash   string
	Kind      Kind
	OwnerID   string
	CreatedAt time.Time
}

// newKey returns the plaintext key and its hashed record.
func newKey(p Principal, now time.Time) (string, keyRecord, error) {
	id, err := randomHex(6)
	if err != nil {
		return "", keyRecord{}, err
	}
	secret, err := randomHex(32)
	if err != nil {
		return "", keyRecord{}, err
	}
	salt, err := generateSalt()
	if err != nil {
		return "", keyRecord{}, err
	}
	rec := keyRecord{
		KeyID:     id,
		KeyHash:   encodeKeyHash(salt, hashKey(secret, salt)),
		Kind:      p.Kind,
		OwnerID:   p.ID,
		CreatedAt: now,
	}
	return fmt.Sprintf("%s_%s_%s", keyPrefix, id, secret), rec, nil
}

// splitKey parses hp_<id>_<secret>.
func splitKey(key string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(key), "_")
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrInvalidKey
	}
	return parts[1], parts[2], nil
}

// matches compares secret against the stored salted hash in constant time.
func (r keyRecord) matches(secret string) bool {
	salt, hash, err := decodeKeyHash(r.KeyHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashKey(secret, salt)), []byte(hash)) == 1
}

func generateSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func hashKey(key, salt string) string {
	h := sha256.New()
	h.Write([]byte(salt + key))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeKeyHash(salt, hash string) string {
	return base64.URLEncoding.EncodeToString([]byte(salt + ":" + hash))
}

func decodeKeyHash(encoded string) (salt, hash string, err error) {
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("decode key hash: %w", err)
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid key hash format")
	}
	return parts[0], parts[1], nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MemoryKeyStore keeps hashed keys in process memory.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]keyRecord // keyed by key id
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]keyRecord)}
}

// Issue creates and stores a new key for p.
func (s *MemoryKeyStore) Issue(_ context.Context, p Principal) (string, error) {
	key, rec, err := newKey(p, time.Now().UTC())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.keys[rec.KeyID] = rec
	s.mu.Unlock()
	return key, nil
}

// Resolve returns the owner of key or ErrInvalidKey.
func (s *MemoryKeyStore) Resolve(_ context.Context, key string) (Principal, error) {
	id, secret, err := splitKey(key)
	if err != nil {
		return Principal{}, err
	}
	s.mu.RLock()
	rec, ok := s.keys[id]
	s.mu.RUnlock()
	if !ok || !rec.matches(secret) {
		return Principal{}, ErrInvalidKey
	}
	return Principal{Kind: rec.Kind, ID: rec.OwnerID}, nil
}
