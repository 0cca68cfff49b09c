package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// RedisCodeStore keeps activation codes in Redis so several backend replicas
// share them. Expiry is enforced by the key TTL.
type RedisCodeStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCodeStore(client *redis.Client, ttl time.Duration) *RedisCodeStore {
	if ttl <= 0 {
		ttl = hiring.ActivationCodeTTL
	}
	return &RedisCodeStore{client: client, ttl: ttl, prefix: "hp:activation:"}
}

func (s *RedisCodeStore) key(agentID string) string { return s.prefix + agentID }

// value layout: <code>|<created unix ms>|<expires unix ms>
func encodeCode(ac ActivationCode) string {
	return fmt.Sprintf("%s|%d|%d", ac.Code, ac.CreatedAt.UnixMilli(), ac.ExpiresAt.UnixMilli())
}

func decodeCode(agentID, raw string) (ActivationCode, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 {
		return ActivationCode{}, fmt.Errorf("malformed activation code record")
	}
	created, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ActivationCode{}, fmt.Errorf("parse created: %w", err)
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ActivationCode{}, fmt.Errorf("parse expires: %w", err)
	}
	return ActivationCode{
		Code:      parts[0],
		AgentID:   agentID,
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}, nil
}

func (s *RedisCodeStore) Issue(ctx context.Context, agentID string) (ActivationCode, error) {
	code, err := generateCode()
	if err != nil {
		return ActivationCode{}, err
	}
	now := time.Now().UTC()
	ac := ActivationCode{Code: code, AgentID: agentID, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if err := s.client.Set(ctx, s.key(agentID), encodeCode(ac), s.ttl).Err(); err != nil {
		return ActivationCode{}, fmt.Errorf("store activation code: %w", err)
	}
	return ac, nil
}

func (s *RedisCodeStore) Current(ctx context.Context, agentID string) (ActivationCode, error) {
	raw, err := s.client.Get(ctx, s.key(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return ActivationCode{}, ErrNoCode
	}
	if err != nil {
		return ActivationCode{}, fmt.Errorf("load activation code: %w", err)
	}
	return decodeCode(agentID, raw)
}

func (s *RedisCodeStore) Consume(ctx context.Context, agentID, code string) error {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(agentID)}, code+"|").Int()
	if err != nil {
		return fmt.Errorf("consume activation code: %w", err)
	}
	if n == 0 {
		return ErrNoCode
	}
	return nil
}

var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if string.sub(v, 1, string.len(ARGV[1])) ~= ARGV[1] then return 0 end
redis.call('DEL', KEYS[1])
return 1
`)
