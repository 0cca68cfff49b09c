// Package ratelimit meters per-agent operation classes over rolling windows.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/core/hiring"
)

// Decision is the outcome of a quota check. Token identifies the consumed
// slot so it can be refunded.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Token     string    `json:"-"`
}

// Limiter is a sliding-window counter keyed by caller-chosen strings.
type Limiter interface {
	// Allow consumes one slot if the window has room.
	Allow(ctx context.Context, key string, q hiring.Quota) (Decision, error)
	// Refund releases the slot recorded in d. Refunding a denied decision is a no-op.
	Refund(ctx context.Context, key string, d Decision) error
	// Peek reports the window without consuming.
	Peek(ctx context.Context, key string, q hiring.Quota) (Decision, error)
}

type hit struct {
	at    time.Time
	token string
}

// Memory is an in-process sliding window limiter.
type Memory struct {
	mu    sync.Mutex
	clock clock.Clock
	hits  map[string][]hit
}

func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	return &Memory{clock: c, hits: make(map[string][]hit)}
}

// prune drops hits older than the window and returns what is left.
func (m *Memory) prune(key string, window time.Duration, now time.Time) []hit {
	cutoff := now.Add(-window)
	times := m.hits[key]
	valid := make([]hit, 0, len(times))
	for _, h := range times {
		if h.at.After(cutoff) {
			valid = append(valid, h)
		}
	}
	if len(valid) == 0 {
		delete(m.hits, key)
	} else {
		m.hits[key] = valid
	}
	return valid
}

func decide(q hiring.Quota, valid []hit, now time.Time) Decision {
	d := Decision{Limit: q.Limit, Remaining: q.Limit - len(valid), ResetAt: now.Add(q.Window)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if len(valid) > 0 {
		d.ResetAt = valid[0].at.Add(q.Window)
	}
	return d
}

func (m *Memory) Allow(_ context.Context, key string, q hiring.Quota) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	valid := m.prune(key, q.Window, now)
	if len(valid) >= q.Limit {
		return decide(q, valid, now), nil
	}
	h := hit{at: now, token: uuid.NewString()}
	valid = append(valid, h)
	m.hits[key] = valid
	d := decide(q, valid, now)
	d.Allowed = true
	d.Token = h.token
	return d, nil
}

func (m *Memory) Refund(_ context.Context, key string, d Decision) error {
	if !d.Allowed || d.Token == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	times := m.hits[key]
	for i, h := range times {
		if h.token == d.Token {
			m.hits[key] = append(times[:i:i], times[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Peek(_ context.Context, key string, q hiring.Quota) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	d := decide(q, m.prune(key, q.Window, now), now)
	d.Allowed = d.Remaining > 0
	return d, nil
}
