// Package services implements the marketplace operations on top of the
// store, key store, rate limiter, chain verifier and webhook notifier.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/auth"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/storage/ratelimit"
	"github.com/human-pages-ai/humanpages/telemetry"
	"github.com/human-pages-ai/humanpages/webhook"
)

// PostFetcher retrieves the public text of a social post.
type PostFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// TXTResolver looks up DNS TXT records. *net.Resolver satisfies it.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Options carries the tunables the container reads from config.
type Options struct {
	TreasuryAddress string
	TreasuryNetwork string
	TreasuryChainID int64
	TreasuryToken   string
	PromoCapacity   int
}

// Deps are the collaborators a Service needs. Nil optional fields get
// in-process defaults from New.
type Deps struct {
	Store    marketplace.Store
	Keys     auth.KeyStore
	Codes    auth.CodeStore
	Limiter  ratelimit.Limiter
	Verifier chain.Verifier
	Notifier webhook.Notifier
	Posts    PostFetcher
	TXT      TXTResolver
	QR       *QRCodeService
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Service is the authoritative implementation of every protocol operation.
type Service struct {
	store    marketplace.Store
	keys     auth.KeyStore
	codes    auth.CodeStore
	limiter  ratelimit.Limiter
	verifier chain.Verifier
	notifier webhook.Notifier
	posts    PostFetcher
	txt      TXTResolver
	qr       *QRCodeService
	clock    clock.Clock
	log      *slog.Logger
	opts     Options
}

// New wires a Service. Store, Keys and Verifier are required.
func New(d Deps, opts Options) (*Service, error) {
	if d.Store == nil || d.Keys == nil || d.Verifier == nil {
		return nil, errors.New("services: store, key store and verifier are required")
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Codes == nil {
		d.Codes = auth.NewMemoryCodeStore(hiring.ActivationCodeTTL, d.Clock)
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewMemory(d.Clock)
	}
	if d.Notifier == nil {
		d.Notifier = webhook.NopNotifier{}
	}
	if d.Posts == nil {
		d.Posts = NewHTTPPostFetcher(nil, 0)
	}
	if d.TXT == nil {
		d.TXT = net.DefaultResolver
	}
	if d.QR == nil {
		d.QR = NewQRCodeService()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PromoCapacity <= 0 {
		opts.PromoCapacity = hiring.DefaultPromoCapacity
	}
	opts.TreasuryNetwork = chain.NormalizeNetwork(opts.TreasuryNetwork)
	return &Service{
		store:    d.Store,
		keys:     d.Keys,
		codes:    d.Codes,
		limiter:  d.Limiter,
		verifier: d.Verifier,
		notifier: d.Notifier,
		posts:    d.Posts,
		txt:      d.TXT,
		qr:       d.QR,
		clock:    d.Clock,
		log:      d.Logger.With("component", "services"),
		opts:     opts,
	}, nil
}

// Caller identifies an authenticated agent and the optional per-call
// payment proof it attached.
type Caller struct {
	AgentID      string
	PaymentProof string
}

// Authenticate resolves an API key of the given kind.
func (s *Service) Authenticate(ctx context.Context, key string, kind auth.Kind) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", hiring.ErrUnauthorized
	}
	p, err := s.keys.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidKey) {
			return "", hiring.ErrUnauthorized
		}
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	if p.Kind != kind {
		return "", hiring.ErrUnauthorized
	}
	return p.ID, nil
}

func (s *Service) now() time.Time { return s.clock.Now() }

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newID(prefix string) string {
	return prefix + "_" + newToken()
}

// notFound maps a store miss to the entity's protocol code.
func notFound(err error, code hiring.Code, what, id string) error {
	if errors.Is(err, marketplace.ErrNotFound) {
		return hiring.Errorf(code, "%s %s not found", what, id)
	}
	return err
}

// loadAgent reads the caller's agent. A key whose agent vanished is unauthorized.
func (s *Service) loadAgent(ctx context.Context, tx marketplace.Tx, id string) (hiring.Agent, error) {
	if id == "" {
		return hiring.Agent{}, hiring.ErrUnauthorized
	}
	a, err := tx.GetAgent(ctx, id)
	if errors.Is(err, marketplace.ErrNotFound) {
		return hiring.Agent{}, hiring.ErrUnauthorized
	}
	return a, err
}

func (s *Service) ownedJob(ctx context.Context, tx marketplace.Tx, agentID, jobID string) (hiring.Job, error) {
	j, err := tx.GetJob(ctx, jobID)
	if err != nil {
		return hiring.Job{}, notFound(err, hiring.CodeJobNotFound, "job", jobID)
	}
	if j.AgentID != agentID {
		return hiring.Job{}, hiring.Errorf(hiring.CodeNotJobOwner, "job %s belongs to another agent", jobID)
	}
	return j, nil
}

func (s *Service) ownedListing(ctx context.Context, tx marketplace.Tx, agentID, listingID string) (hiring.Listing, error) {
	l, err := tx.GetListing(ctx, listingID)
	if err != nil {
		return hiring.Listing{}, notFound(err, hiring.CodeListingNotFound, "listing", listingID)
	}
	if l.AgentID != agentID {
		return hiring.Listing{}, hiring.Errorf(hiring.CodeNotListingOwner, "listing %s belongs to another agent", listingID)
	}
	return l, nil
}

// verifyErr maps chain failures onto protocol codes. missing is used when
// the transaction or transfer does not exist.
func verifyErr(err error, missing hiring.Code, txHash string) error {
	switch {
	case errors.Is(err, chain.ErrTransferNotFound):
		return hiring.Errorf(missing, "no qualifying USDC transfer found in %s", txHash)
	case errors.Is(err, chain.ErrNetworkUnsupported):
		return hiring.Invalid("network", "network is not supported")
	default:
		return hiring.Errorf(hiring.CodeVerificationDown, "on-chain verification failed: %v", err)
	}
}

// observe counts one finished operation by result code.
func observe(op string, err error) {
	code := "OK"
	if err != nil {
		code = string(hiring.CodeOf(err))
	}
	telemetry.Operations.WithLabelValues(op, code).Inc()
}

// HTTPPostFetcher reads social posts over plain HTTP GET.
type HTTPPostFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPPostFetcher bounds every fetch by the client's timeout and maxBytes.
func NewHTTPPostFetcher(client *http.Client, maxBytes int64) *HTTPPostFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &HTTPPostFetcher{client: client, maxBytes: maxBytes}
}

func (f *HTTPPostFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "humanpages-activation/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch post: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read post: %w", err)
	}
	return string(body), nil
}
