package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/core/hiring"
)

// codeAlphabet drops characters that are easy to misread in a social post.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// ActivationCode is a single-use code an agent publishes to prove control of a
// public social account.
type ActivationCode struct {
	Code      string    `json:"code"`
	AgentID   string    `json:"agent_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// CodeStore holds at most one live activation code per agent. Issuing a new
// code replaces the previous one.
type CodeStore interface {
	Issue(ctx context.Context, agentID string) (ActivationCode, error)
	// Current returns ErrNoCode when nothing live is bound to the agent.
	Current(ctx context.Context, agentID string) (ActivationCode, error)
	// Consume deletes the code only if it still matches; otherwise ErrNoCode.
	Consume(ctx context.Context, agentID, code string) error
}

func generateCode() (string, error) {
	out := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return hiring.ActivationCodeFormat(string(out)), nil
}

// MemoryCodeStore keeps codes in process memory.
type MemoryCodeStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	codes map[string]ActivationCode // keyed by agent id
}

// NewMemoryCodeStore builds an in-memory store. A zero ttl uses the default
// activation code lifetime.
func NewMemoryCodeStore(ttl time.Duration, c clock.Clock) *MemoryCodeStore {
	if ttl <= 0 {
		ttl = hiring.ActivationCodeTTL
	}
	if c == nil {
		c = clock.Real()
	}
	return &MemoryCodeStore{ttl: ttl, clock: c, codes: make(map[string]ActivationCode)}
}

func (s *MemoryCodeStore) Issue(_ context.Context, agentID string) (ActivationCode, error) {
	code, err := generateCode()
	if err != nil {
		return ActivationCode{}, err
	}
	now := s.clock.Now()
	ac := ActivationCode{Code: code, AgentID: agentID, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	s.mu.Lock()
	s.codes[agentID] = ac
	s.mu.Unlock()
	return ac, nil
}

func (s *MemoryCodeStore) Current(_ context.Context, agentID string) (ActivationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[agentID]
	if !ok {
		return ActivationCode{}, ErrNoCode
	}
	if !s.clock.Now().Before(ac.ExpiresAt) {
		delete(s.codes, agentID)
		return ActivationCode{}, ErrNoCode
	}
	return ac, nil
}

func (s *MemoryCodeStore) Consume(_ context.Context, agentID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[agentID]
	if !ok || ac.Code != code || !s.clock.Now().Before(ac.ExpiresAt) {
		return ErrNoCode
	}
	delete(s.codes, agentID)
	return nil
}
