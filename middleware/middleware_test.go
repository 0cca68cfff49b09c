package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/auth"
	"github.com/human-pages-ai/humanpages/storage/ratelimit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAuth map[string]auth.Principal

func (f fakeAuth) Authenticate(_ context.Context, key string, kind auth.Kind) (string, error) {
	p, ok := f[key]
	if !ok || p.Kind != kind {
		return "", hiring.ErrUnauthorized
	}
	return p.ID, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *hiring.Error {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == nil {
		t.Fatalf("response has no error: %s", rec.Body.String())
	}
	return body.Error
}

func TestRequireAgent(t *testing.T) {
	keys := fakeAuth{
		"agent-key": {Kind: auth.KindAgent, ID: "agt_1"},
		"human-key": {Kind: auth.KindHuman, ID: "hum_1"},
	}
	var gotAgent, gotProof string
	h := RequireAgent(keys, quiet)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = AgentID(r.Context())
		gotProof = PaymentProof(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name      string
		header    map[string]string
		wantCode  int
		wantAgent string
		wantProof string
	}{
		{"api key header", map[string]string{HeaderAgentKey: "agent-key", HeaderPayment: "base:0xabc"}, http.StatusNoContent, "agt_1", "base:0xabc"},
		{"bearer token", map[string]string{"Authorization": "Bearer agent-key"}, http.StatusNoContent, "agt_1", ""},
		{"missing", nil, http.StatusUnauthorized, "", ""},
		{"wrong kind", map[string]string{HeaderAgentKey: "human-key"}, http.StatusUnauthorized, "", ""},
		{"unknown", map[string]string{HeaderAgentKey: "nope"}, http.StatusUnauthorized, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAgent, gotProof = "", ""
			req := httptest.NewRequest(http.MethodGet, "/v1/agents/me", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if gotAgent != tt.wantAgent || gotProof != tt.wantProof {
				t.Fatalf("context carried agent=%q proof=%q", gotAgent, gotProof)
			}
			if rec.Code == http.StatusUnauthorized {
				if e := decodeError(t, rec); e.Code != hiring.CodeUnauthorized {
					t.Fatalf("expected UNAUTHORIZED, got %s", e.Code)
				}
			}
		})
	}
}

func TestRequireHuman(t *testing.T) {
	keys := fakeAuth{"human-key": {Kind: auth.KindHuman, ID: "hum_1"}}
	var got string
	h := RequireHuman(keys, quiet)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = HumanID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/human/jobs/j/accept", nil)
	req.Header.Set(HeaderHumanKey, "human-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got != "hum_1" {
		t.Fatalf("status %d human %q", rec.Code, got)
	}
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		secret string
		sent   string
		want   int
	}{
		{"match", "s3cret", "s3cret", http.StatusNoContent},
		{"mismatch", "s3cret", "guess", http.StatusUnauthorized},
		{"disabled", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/humans", nil)
			req.Header.Set(HeaderAdminKey, tt.sent)
			rec := httptest.NewRecorder()
			RequireAdmin(tt.secret, quiet)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("protocol error keeps its code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, hiring.Errorf(hiring.CodeListingFull, "listing is full"))
		if rec.Code != hiring.CodeListingFull.HTTPStatus() {
			t.Fatalf("status %d", rec.Code)
		}
		if e := decodeError(t, rec); e.Code != hiring.CodeListingFull || e.Message != "listing is full" {
			t.Fatalf("unexpected body %+v", e)
		}
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, io.ErrUnexpectedEOF)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status %d", rec.Code)
		}
		e := decodeError(t, rec)
		if e.Code != hiring.CodeInternal || strings.Contains(e.Message, "EOF") {
			t.Fatalf("internal detail leaked: %+v", e)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, context.DeadlineExceeded)
		if e := decodeError(t, rec); e.Code != hiring.CodeUpstreamTimeout {
			t.Fatalf("expected UPSTREAM_TIMEOUT, got %s", e.Code)
		}
	})

	t.Run("rate limited sets headers", func(t *testing.T) {
		reset := time.Now().Add(30 * time.Second)
		err := (&hiring.Error{Code: hiring.CodeRateLimited, Message: "quota exhausted"}).
			WithDetail("limit", 5).
			WithDetail("remaining", 0).
			WithDetail("reset_at", reset)
		rec := httptest.NewRecorder()
		WriteError(rec, err)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status %d", rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "5" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Fatalf("rate limit headers missing: %v", rec.Header())
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Fatal("Retry-After missing")
		}
	})
}

func TestSetRateLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	SetRateLimit(rec, ratelimit.Decision{})
	if len(rec.Header()) != 0 {
		t.Fatalf("zero decision wrote headers: %v", rec.Header())
	}

	reset := time.Unix(1_800_000_000, 0)
	SetRateLimit(rec, ratelimit.Decision{Allowed: true, Limit: 20, Remaining: 19, ResetAt: reset})
	if rec.Header().Get("X-RateLimit-Reset") != "1800000000" || rec.Header().Get("X-RateLimit-Remaining") != "19" {
		t.Fatalf("unexpected headers: %v", rec.Header())
	}
}

func TestContentTypeAndBodyLimit(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := ContentType(BodyLimit(16)(echo))

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"json", "application/json; charset=utf-8", `{"a":1}`, http.StatusNoContent},
		{"form rejected", "application/x-www-form-urlencoded", "a=1", http.StatusBadRequest},
		{"too large", "application/json", `{"padding":"` + strings.Repeat("x", 32) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(quiet)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != hiring.CodeInternal {
		t.Fatalf("unexpected code %s", e.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil))

	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("preflight reached handler or wrong status %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), HeaderPayment) {
		t.Fatalf("payment header not allowed: %s", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	var ok bool
	h := Timeout(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok {
		t.Fatal("request context has no deadline")
	}
}
