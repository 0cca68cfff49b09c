package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/human-pages-ai/humanpages/telemetry"
)

// Delivery is one notification bound for one endpoint.
type Delivery struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
	Event  Event  `json:"event"`
}

// Notifier hands deliveries off for asynchronous, best-effort sending.
type Notifier interface {
	Notify(ctx context.Context, d Delivery) error
}

// NopNotifier drops every delivery.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Delivery) error { return nil }

// DispatcherConfig tunes HTTPDispatcher. Zero values pick defaults.
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	Attempts       int
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

var ErrQueueFull = errors.New("webhook queue full")

// HTTPDispatcher POSTs signed events from a pool of workers. Each delivery
// is retried a bounded number of times; ordering is not preserved.
type HTTPDispatcher struct {
	cfg    DispatcherConfig
	client *http.Client
	logger *slog.Logger
	queue  chan Delivery
	wg     sync.WaitGroup
	once   sync.Once
	stop   chan struct{}
}

func NewHTTPDispatcher(cfg DispatcherConfig, client *http.Client, logger *slog.Logger) *HTTPDispatcher {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDispatcher{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "webhook"),
		queue:  make(chan Delivery, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (d *HTTPDispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop drains queued deliveries and waits for workers to exit.
func (d *HTTPDispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *HTTPDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case del := <-d.queue:
			_ = d.Deliver(context.Background(), del)
		case <-d.stop:
			for {
				select {
				case del := <-d.queue:
					_ = d.Deliver(context.Background(), del)
				default:
					return
				}
			}
		}
	}
}

// Notify enqueues without blocking. A full queue drops the delivery.
func (d *HTTPDispatcher) Notify(_ context.Context, del Delivery) error {
	select {
	case d.queue <- del:
		return nil
	default:
		telemetry.WebhookDeliveries.WithLabelValues("dropped").Inc()
		d.logger.Warn("webhook queue full, dropping delivery", "event", del.Event.Type, "delivery", del.Event.ID)
		return ErrQueueFull
	}
}

// Deliver sends del synchronously with retries.
func (d *HTTPDispatcher) Deliver(ctx context.Context, del Delivery) error {
	body, err := json.Marshal(del.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		lastErr = d.post(ctx, del, body)
		if lastErr == nil {
			telemetry.WebhookDeliveries.WithLabelValues("delivered").Inc()
			d.logger.Debug("webhook delivered", "event", del.Event.Type, "delivery", del.Event.ID, "attempt", attempt)
			return nil
		}
		telemetry.WebhookDeliveries.WithLabelValues("retry").Inc()
		d.logger.Warn("webhook attempt failed", "event", del.Event.Type, "delivery", del.Event.ID, "attempt", attempt, "error", lastErr)
		if attempt == d.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.Backoff * time.Duration(1<<(attempt-1))):
		}
	}
	telemetry.WebhookDeliveries.WithLabelValues("failed").Inc()
	return fmt.Errorf("deliver %s after %d attempts: %w", del.Event.ID, d.cfg.Attempts, lastErr)
}

func (d *HTTPDispatcher) post(ctx context.Context, del Delivery, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, del.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "HumanPages-Webhook/1")
	req.Header.Set(SignatureHeader, Sign(del.Secret, body))
	req.Header.Set(EventHeader, del.Event.Type)
	req.Header.Set(DeliveryHeader, del.Event.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
