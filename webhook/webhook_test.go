package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"type":"job.accepted"}`)
	sig := Sign("s3cret", body)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature %q lacks prefix", sig)
	}
	cases := []struct {
		name   string
		secret string
		body   []byte
		sig    string
		want   bool
	}{
		{"valid", "s3cret", body, sig, true},
		{"without prefix", "s3cret", body, strings.TrimPrefix(sig, "sha256="), true},
		{"wrong secret", "other", body, sig, false},
		{"tampered body", "s3cret", []byte(`{"type":"job.paid"}`), sig, false},
		{"garbage", "s3cret", body, "sha256=zz", false},
		{"empty secret", "", body, Sign("", body), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Verify(tc.secret, tc.body, tc.sig); got != tc.want {
				t.Fatalf("Verify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDispatcherDeliversSignedEvent(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := VerifyRequest(r, "hook-secret")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil || ev.Type != JobAccepted {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get(EventHeader) != JobAccepted || r.Header.Get(DeliveryHeader) != ev.ID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received.Add(1)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{Workers: 2, Backoff: time.Millisecond}, srv.Client(), nil)
	d.Start()
	ev := NewEvent(JobAccepted, ResourceJob, "job-1", "ACCEPTED", "PENDING", nil, time.Now())
	if err := d.Notify(context.Background(), Delivery{URL: srv.URL, Secret: "hook-secret", Event: ev}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	d.Stop()
	if received.Load() != 1 {
		t.Fatalf("received %d deliveries", received.Load())
	}
}

func TestDispatcherRetriesThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{Attempts: 3, Backoff: time.Millisecond}, srv.Client(), nil)
	del := Delivery{URL: srv.URL, Secret: "x", Event: NewEvent(JobPaid, ResourceJob, "j", "PAID", "ACCEPTED", nil, time.Now())}
	if err := d.Deliver(context.Background(), del); err != nil {
		t.Fatalf("expected success on second attempt: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	del.URL = down.URL
	if err := d.Deliver(context.Background(), del); err == nil {
		t.Fatalf("expected failure after exhausting attempts")
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []amqp.Publishing
	keys []string
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	p.keys = append(p.keys, exchange+"/"+key)
	return nil
}

type fakeAck struct{ acked, nacked int }

func (a *fakeAck) Ack(uint64, bool) error        { a.acked++; return nil }
func (a *fakeAck) Nack(uint64, bool, bool) error { a.nacked++; return nil }
func (a *fakeAck) Reject(uint64, bool) error     { a.nacked++; return nil }

type fakeDeliverer struct {
	got []Delivery
	err error
}

func (f *fakeDeliverer) Deliver(_ context.Context, d Delivery) error {
	f.got = append(f.got, d)
	return f.err
}

func TestQueueRoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	n := NewQueueNotifier(pub, QueueConfig{}, nil)
	ev := NewEvent(ListingCreated, ResourceListing, "l-1", "OPEN", "", nil, time.Now())
	if err := n.Notify(context.Background(), Delivery{URL: "https://agent.example/hook", Secret: "k", Event: ev}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pub.msgs) != 1 || pub.keys[0] != "humanpages.webhooks/webhook.delivery" {
		t.Fatalf("published %v", pub.keys)
	}
	if pub.msgs[0].DeliveryMode != amqp.Persistent || pub.msgs[0].MessageId != ev.ID {
		t.Fatalf("publishing not persistent or missing id: %+v", pub.msgs[0])
	}

	dl := &fakeDeliverer{}
	c := &QueueConsumer{dispatcher: dl, logger: discardLogger()}
	ack := &fakeAck{}
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: pub.msgs[0].Body})
	if ack.acked != 1 || len(dl.got) != 1 || dl.got[0].Event.ID != ev.ID {
		t.Fatalf("consumer did not deliver: acked=%d got=%d", ack.acked, len(dl.got))
	}

	dl.err = errors.New("endpoint down")
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: pub.msgs[0].Body})
	if ack.nacked != 1 {
		t.Fatalf("failed delivery not nacked")
	}

	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("not json")})
	if ack.acked != 2 {
		t.Fatalf("malformed message should be acked and dropped")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
