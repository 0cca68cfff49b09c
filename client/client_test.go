package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithHTTPClient(srv.Client()), WithRetry(3, time.Millisecond)}, opts...)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func writeError(w http.ResponseWriter, status int, code hiring.Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg, "details": map[string]any{"status": "PAID"}},
	})
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New("localhost:8080"); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}

func TestAPIErrorPassedThrough(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, hiring.CodeInvalidState, "cannot mark paid a job in status PAID")
	})

	_, err := c.MarkPaid(context.Background(), Credentials{AgentKey: "k"}, "job_1", hiring.MarkPaidRequest{TxHash: "0xabc", Network: "base", Amount: 100})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != hiring.CodeInvalidState {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if apiErr.Details["status"] != "PAID" {
		t.Fatalf("details not preserved: %v", apiErr.Details)
	}
	if got := hiring.CodeOf(err); got != hiring.CodeInvalidState {
		t.Fatalf("CodeOf = %s", got)
	}
}

func TestReadsRetryOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			writeError(w, http.StatusServiceUnavailable, hiring.CodeVerificationDown, "busy")
			return
		}
		_ = json.NewEncoder(w).Encode(hiring.PublicProfile{ID: "h1", Name: "Priya"})
	})

	p, err := c.GetHuman(context.Background(), "h1")
	if err != nil {
		t.Fatalf("get human: %v", err)
	}
	if p.Name != "Priya" || hits.Load() != 3 {
		t.Fatalf("got %+v after %d hits", p, hits.Load())
	}
}

func TestReadsGiveUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeError(w, http.StatusInternalServerError, hiring.CodeInternal, "boom")
	})

	_, err := c.GetListing(context.Background(), "lst_1")
	if hiring.CodeOf(err) != hiring.CodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeError(w, http.StatusBadGateway, hiring.CodeUpstreamUnavailable, "down")
	})

	_, err := c.ClaimPromo(context.Background(), Credentials{AgentKey: "k"})
	if err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("write retried: %d hits", hits.Load())
	}
}

func TestTransportFailures(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, err := New(url, WithRetry(2, time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		_, err = c.GetHuman(context.Background(), "h1")
		if got := hiring.CodeOf(err); got != hiring.CodeUpstreamUnavailable {
			t.Fatalf("expected UPSTREAM_UNAVAILABLE, got %s (%v)", got, err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}, WithTimeout(50*time.Millisecond))
		defer close(release)

		_, err := c.AgentStatus(context.Background(), Credentials{AgentKey: "k"})
		if got := hiring.CodeOf(err); got != hiring.CodeUpstreamTimeout {
			t.Fatalf("expected UPSTREAM_TIMEOUT, got %s (%v)", got, err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>oops</html>"))
		})
		_, err := c.GetListing(context.Background(), "lst_1")
		if got := hiring.CodeOf(err); got != hiring.CodeBadUpstreamResponse {
			t.Fatalf("expected BAD_UPSTREAM_RESPONSE, got %s", got)
		}
	})

	t.Run("non-protocol error body", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}, WithRetry(1, time.Millisecond))
		_, err := c.GetListing(context.Background(), "lst_1")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != hiring.CodeBadUpstreamResponse || apiErr.StatusCode != http.StatusBadGateway {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestLocalValidationSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want hiring.Code
	}{
		{"missing agent key", func() error { _, err := c.AgentStatus(ctx, Credentials{}); return err }, hiring.CodeMissingCredential},
		{"missing job id", func() error { _, err := c.GetJob(ctx, Credentials{AgentKey: "k"}, " "); return err }, hiring.CodeInvalidInput},
		{"bad rating", func() error {
			_, err := c.LeaveReview(ctx, Credentials{AgentKey: "k"}, "job_1", hiring.ReviewRequest{Rating: 6})
			return err
		}, hiring.CodeInvalidInput},
		{"offer without price", func() error {
			_, err := c.CreateOffer(ctx, Credentials{AgentKey: "k"}, hiring.OfferRequest{HumanID: "h", Title: "t"})
			return err
		}, hiring.CodeInvalidInput},
		{"empty message", func() error {
			_, err := c.SendMessage(ctx, Credentials{AgentKey: "k"}, "job_1", hiring.MessageRequest{})
			return err
		}, hiring.CodeInvalidInput},
		{"missing human key", func() error { _, err := c.AcceptJob(ctx, Credentials{AgentKey: "k"}, "job_1"); return err }, hiring.CodeMissingCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hiring.CodeOf(tt.call()); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
	if hits.Load() != 0 {
		t.Fatalf("local validation reached the server %d times", hits.Load())
	}
}

func TestRequestShape(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/humans":
			q := r.URL.Query()
			if q.Get("skills") != "photography,drone" || q.Get("near") != "40.7,-74" || q.Get("limit") != "5" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(hiring.HumanPage{Total: 0, Limit: 5})
		default:
			if r.Header.Get("X-API-Key") != "agent-key" || r.Header.Get("X-Payment") != "base:0xabc" {
				t.Errorf("credentials not forwarded: %v", r.Header)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("missing content type")
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(hiring.Message{ID: "msg_1", Body: "hi"})
		}
	})
	ctx := context.Background()

	page, err := c.SearchHumans(ctx, hiring.HumanFilter{
		Skills: []string{"photography", "drone"},
		Near:   &hiring.Coordinates{Lat: 40.7, Lng: -74},
		Limit:  5,
	})
	if err != nil || page.Limit != 5 {
		t.Fatalf("search: %+v %v", page, err)
	}

	msg, err := c.SendMessage(ctx, Credentials{AgentKey: "agent-key", PaymentProof: "base:0xabc"}, "job_1", hiring.MessageRequest{Body: "hi"})
	if err != nil || msg.ID != "msg_1" {
		t.Fatalf("send message: %+v %v", msg, err)
	}
}
