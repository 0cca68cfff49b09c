package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/human-pages-ai/humanpages/core/hiring"
	auth "github.com/human-pages-ai/humanpages/storage/auth"
)

// Credential headers.
const (
	HeaderAgentKey = "X-API-Key"
	HeaderPayment  = "X-Payment"
	HeaderHumanKey = "X-Human-Key"
	HeaderAdminKey = "X-Admin-Key"
)

// Authenticator resolves an API key to its owner's id.
type Authenticator interface {
	Authenticate(ctx context.Context, key string, kind auth.Kind) (string, error)
}

type ctxKey int

const (
	agentIDKey ctxKey = iota
	humanIDKey
	paymentKey
)

// AgentID returns the authenticated agent, if any.
func AgentID(ctx context.Context) string {
	v, _ := ctx.Value(agentIDKey).(string)
	return v
}

// HumanID returns the authenticated human, if any.
func HumanID(ctx context.Context) string {
	v, _ := ctx.Value(humanIDKey).(string)
	return v
}

// PaymentProof returns the X-Payment header captured by RequireAgent.
func PaymentProof(ctx context.Context) string {
	v, _ := ctx.Value(paymentKey).(string)
	return v
}

func agentKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderAgentKey)); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// RequireAgent resolves the agent key and stores the agent id and any
// per-call payment proof on the request context.
func RequireAgent(a Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return requireKey(a, log, auth.KindAgent, agentKey, func(ctx context.Context, id string, r *http.Request) context.Context {
		ctx = context.WithValue(ctx, agentIDKey, id)
		if proof := strings.TrimSpace(r.Header.Get(HeaderPayment)); proof != "" {
			ctx = context.WithValue(ctx, paymentKey, proof)
		}
		return ctx
	})
}

// RequireHuman resolves the X-Human-Key header.
func RequireHuman(a Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return requireKey(a, log, auth.KindHuman, func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(HeaderHumanKey))
	}, func(ctx context.Context, id string, _ *http.Request) context.Context {
		return context.WithValue(ctx, humanIDKey, id)
	})
}

func requireKey(a Authenticator, log *slog.Logger, kind auth.Kind, extract func(*http.Request) string, bind func(context.Context, string, *http.Request) context.Context) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extract(r)
			if key == "" {
				log.Warn("auth denied", "audit", true, "kind", kind, "reason", "missing key", "path", r.URL.Path)
				WriteError(w, hiring.Errorf(hiring.CodeUnauthorized, "%s API key is required", kind))
				return
			}
			id, err := a.Authenticate(r.Context(), key, kind)
			if err != nil {
				log.Warn("auth denied", "audit", true, "kind", kind, "reason", "invalid key", "path", r.URL.Path)
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(bind(r.Context(), id, r)))
		})
	}
}

// RequireAdmin compares X-Admin-Key with the configured secret. An empty
// secret disables the admin surface.
func RequireAdmin(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAdminKey)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.Warn("auth denied", "audit", true, "kind", "admin", "path", r.URL.Path)
				WriteError(w, hiring.ErrUnauthorized)
				return
			}
			log.Info("admin access", "audit", true, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
