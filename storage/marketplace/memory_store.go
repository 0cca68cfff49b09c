package marketplace

import (
	"context"
	"sync"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// memData is one full copy of the store's tables.
type memData struct {
	agents       map[string]hiring.Agent
	humans       map[string]hiring.Human
	jobs         map[string]hiring.Job
	listings     map[string]hiring.Listing
	applications map[string]hiring.Application
	messages     map[string][]hiring.Message
	counters     map[string]int
	proofs       map[string]bool
	intents      map[string]hiring.PaymentIntent
}

func newMemData() *memData {
	return &memData{
		agents:       make(map[string]hiring.Agent),
		humans:       make(map[string]hiring.Human),
		jobs:         make(map[string]hiring.Job),
		listings:     make(map[string]hiring.Listing),
		applications: make(map[string]hiring.Application),
		messages:     make(map[string][]hiring.Message),
		counters:     make(map[string]int),
		proofs:       make(map[string]bool),
		intents:      make(map[string]hiring.PaymentIntent),
	}
}

// MemoryStore holds marketplace state in process memory.
// A single mutex is held for the lifetime of each transaction, so
// transactions are fully serialized. Writes are staged and applied on commit.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

// NewMemoryStore returns an empty store; seed with SeedHumans if wanted.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{base: s.data, staged: newMemData(), released: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	base     *memData
	staged   *memData
	released map[string]bool
}

func (t *memTx) commit() {
	for k, v := range t.staged.agents {
		t.base.agents[k] = v
	}
	for k, v := range t.staged.humans {
		t.base.humans[k] = v
	}
	for k, v := range t.staged.jobs {
		t.base.jobs[k] = v
	}
	for k, v := range t.staged.listings {
		t.base.listings[k] = v
	}
	for k, v := range t.staged.applications {
		t.base.applications[k] = v
	}
	for k, v := range t.staged.messages {
		t.base.messages[k] = append(t.base.messages[k], v...)
	}
	for k, v := range t.staged.counters {
		t.base.counters[k] = v
	}
	for k := range t.released {
		delete(t.base.proofs, k)
	}
	for k := range t.staged.proofs {
		t.base.proofs[k] = true
	}
	for k, v := range t.staged.intents {
		t.base.intents[k] = v
	}
}

// lookup reads through the staged writes to the committed table.
func lookup[T any](staged, base map[string]T, id string) (T, bool) {
	if v, ok := staged[id]; ok {
		return v, true
	}
	v, ok := base[id]
	return v, ok
}

// merged returns every row with staged writes taking precedence.
func merged[T any](staged, base map[string]T) []T {
	out := make([]T, 0, len(base)+len(staged))
	for k, v := range base {
		if _, ok := staged[k]; ok {
			continue
		}
		out = append(out, v)
	}
	for _, v := range staged {
		out = append(out, v)
	}
	return out
}

func (t *memTx) GetAgent(_ context.Context, id string) (hiring.Agent, error) {
	a, ok := lookup(t.staged.agents, t.base.agents, id)
	if !ok {
		return hiring.Agent{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) PutAgent(_ context.Context, a hiring.Agent) error {
	t.staged.agents[a.ID] = a
	return nil
}

func (t *memTx) GetHuman(_ context.Context, id string) (hiring.Human, error) {
	h, ok := lookup(t.staged.humans, t.base.humans, id)
	if !ok {
		return hiring.Human{}, ErrNotFound
	}
	return h, nil
}

func (t *memTx) PutHuman(_ context.Context, h hiring.Human) error {
	t.staged.humans[h.ID] = h
	return nil
}

func (t *memTx) ListHumans(_ context.Context) ([]hiring.Human, error) {
	out := merged(t.staged.humans, t.base.humans)
	sortHumans(out)
	return out, nil
}

func (t *memTx) GetJob(_ context.Context, id string) (hiring.Job, error) {
	j, ok := lookup(t.staged.jobs, t.base.jobs, id)
	if !ok {
		return hiring.Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

func (t *memTx) PutJob(_ context.Context, j hiring.Job) error {
	t.staged.jobs[j.ID] = j.Clone()
	return nil
}

func (t *memTx) ListJobs(_ context.Context, f JobFilter) ([]hiring.Job, error) {
	var out []hiring.Job
	for _, j := range merged(t.staged.jobs, t.base.jobs) {
		if f.matches(j) {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

func (t *memTx) GetListing(_ context.Context, id string) (hiring.Listing, error) {
	l, ok := lookup(t.staged.listings, t.base.listings, id)
	if !ok {
		return hiring.Listing{}, ErrNotFound
	}
	return l, nil
}

func (t *memTx) PutListing(_ context.Context, l hiring.Listing) error {
	t.staged.listings[l.ID] = l
	return nil
}

func (t *memTx) ListListings(_ context.Context, agentID string) ([]hiring.Listing, error) {
	var out []hiring.Listing
	for _, l := range merged(t.staged.listings, t.base.listings) {
		if agentID == "" || l.AgentID == agentID {
			out = append(out, l)
		}
	}
	sortListings(out)
	return out, nil
}

func (t *memTx) GetApplication(_ context.Context, id string) (hiring.Application, error) {
	a, ok := lookup(t.staged.applications, t.base.applications, id)
	if !ok {
		return hiring.Application{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) PutApplication(_ context.Context, a hiring.Application) error {
	t.staged.applications[a.ID] = a
	return nil
}

func (t *memTx) ListApplications(_ context.Context, listingID string) ([]hiring.Application, error) {
	var out []hiring.Application
	for _, a := range merged(t.staged.applications, t.base.applications) {
		if a.ListingID == listingID {
			out = append(out, a)
		}
	}
	sortApplications(out)
	return out, nil
}

func (t *memTx) AppendMessage(_ context.Context, m hiring.Message) error {
	t.staged.messages[m.JobID] = append(t.staged.messages[m.JobID], m)
	return nil
}

func (t *memTx) ListMessages(_ context.Context, jobID string) ([]hiring.Message, error) {
	out := make([]hiring.Message, 0, len(t.base.messages[jobID])+len(t.staged.messages[jobID]))
	out = append(out, t.base.messages[jobID]...)
	out = append(out, t.staged.messages[jobID]...)
	sortMessages(out)
	return out, nil
}

func (t *memTx) Counter(_ context.Context, name string) (int, error) {
	v, _ := lookup(t.staged.counters, t.base.counters, name)
	return v, nil
}

func (t *memTx) IncrementCounter(ctx context.Context, name string, limit int) (int, bool, error) {
	v, _ := t.Counter(ctx, name)
	if v >= limit {
		return v, false, nil
	}
	v++
	t.staged.counters[name] = v
	return v, true, nil
}

func (t *memTx) MarkProofUsed(_ context.Context, network, txHash string) (bool, error) {
	k := proofKey(network, txHash)
	if t.staged.proofs[k] || (t.base.proofs[k] && !t.released[k]) {
		return false, nil
	}
	t.staged.proofs[k] = true
	return true, nil
}

func (t *memTx) ReleaseProof(_ context.Context, network, txHash string) error {
	k := proofKey(network, txHash)
	delete(t.staged.proofs, k)
	t.released[k] = true
	return nil
}

func (t *memTx) PutPaymentIntent(_ context.Context, p hiring.PaymentIntent) error {
	t.staged.intents[p.AgentID] = p
	return nil
}

func (t *memTx) GetPaymentIntent(_ context.Context, agentID string) (hiring.PaymentIntent, error) {
	p, ok := lookup(t.staged.intents, t.base.intents, agentID)
	if !ok {
		return hiring.PaymentIntent{}, ErrNotFound
	}
	return p, nil
}
