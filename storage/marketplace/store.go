// Package marketplace persists agents, humans, jobs, listings and their
// satellites behind a transactional Store.
package marketplace

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrNotFound = Err("record not found")
)

// Store runs fn inside a transaction. fn's writes become visible only if it
// returns nil; concurrent transactions touching the same rows serialize.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	AgentID string
	HumanID string
	Status  hiring.JobStatus
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	GetAgent(ctx context.Context, id string) (hiring.Agent, error)
	PutAgent(ctx context.Context, a hiring.Agent) error

	GetHuman(ctx context.Context, id string) (hiring.Human, error)
	PutHuman(ctx context.Context, h hiring.Human) error
	ListHumans(ctx context.Context) ([]hiring.Human, error)

	GetJob(ctx context.Context, id string) (hiring.Job, error)
	PutJob(ctx context.Context, j hiring.Job) error
	ListJobs(ctx context.Context, f JobFilter) ([]hiring.Job, error)

	GetListing(ctx context.Context, id string) (hiring.Listing, error)
	PutListing(ctx context.Context, l hiring.Listing) error
	// ListListings returns every listing, or only agentID's when set.
	ListListings(ctx context.Context, agentID string) ([]hiring.Listing, error)

	GetApplication(ctx context.Context, id string) (hiring.Application, error)
	PutApplication(ctx context.Context, a hiring.Application) error
	ListApplications(ctx context.Context, listingID string) ([]hiring.Application, error)

	AppendMessage(ctx context.Context, m hiring.Message) error
	ListMessages(ctx context.Context, jobID string) ([]hiring.Message, error)

	// IncrementCounter bumps name by one unless it already reached limit.
	// It returns the value after the call and whether it moved.
	IncrementCounter(ctx context.Context, name string, limit int) (int, bool, error)
	Counter(ctx context.Context, name string) (int, error)

	// MarkProofUsed records a payment proof. It returns false when the proof
	// was already recorded.
	MarkProofUsed(ctx context.Context, network, txHash string) (bool, error)
	ReleaseProof(ctx context.Context, network, txHash string) error

	PutPaymentIntent(ctx context.Context, p hiring.PaymentIntent) error
	GetPaymentIntent(ctx context.Context, agentID string) (hiring.PaymentIntent, error)
}

// newestFirst orders records by creation time descending, breaking ties by id.
func newestFirst[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) < id(items[j])
	})
}

func sortJobs(jobs []hiring.Job) {
	newestFirst(jobs, func(j hiring.Job) time.Time { return j.Timeline.CreatedAt }, func(j hiring.Job) string { return j.ID })
}

func sortListings(ls []hiring.Listing) {
	newestFirst(ls, func(l hiring.Listing) time.Time { return l.CreatedAt }, func(l hiring.Listing) string { return l.ID })
}

func sortApplications(as []hiring.Application) {
	newestFirst(as, func(a hiring.Application) time.Time { return a.CreatedAt }, func(a hiring.Application) string { return a.ID })
}

func sortHumans(hs []hiring.Human) {
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].Rating != hs[j].Rating {
			return hs[i].Rating > hs[j].Rating
		}
		return hs[i].ID < hs[j].ID
	})
}

func sortMessages(ms []hiring.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

func (f JobFilter) matches(j hiring.Job) bool {
	if f.AgentID != "" && j.AgentID != f.AgentID {
		return false
	}
	if f.HumanID != "" && j.HumanID != f.HumanID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// proofKey normalizes a payment proof; hex hashes are case-insensitive.
func proofKey(network, txHash string) string {
	return strings.ToLower(strings.TrimSpace(network)) + ":" + strings.ToLower(strings.TrimSpace(txHash))
}
