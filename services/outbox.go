package services

import (
	"context"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/webhook"
)

// outbox collects webhook deliveries inside a transaction. They are handed
// to the notifier only after the transaction commits.
type outbox []webhook.Delivery

// target picks the resource callback, falling back to the agent default.
func target(cb *hiring.Callback, a hiring.Agent) (url, secret string, ok bool) {
	if cb != nil && cb.URL != "" {
		return cb.URL, cb.Secret, true
	}
	if a.WebhookURL != "" {
		return a.WebhookURL, a.WebhookSecret, true
	}
	return "", "", false
}

func (o *outbox) job(a hiring.Agent, j hiring.Job, typ string, prev hiring.JobStatus, data any) {
	url, secret, ok := target(j.Callback, a)
	if !ok {
		return
	}
	if data == nil {
		data = j.Redacted()
	}
	ev := webhook.NewEvent(typ, webhook.ResourceJob, j.ID, string(j.Status), string(prev), data, j.Timeline.UpdatedAt)
	*o = append(*o, webhook.Delivery{URL: url, Secret: secret, Event: ev})
}

func (o *outbox) listing(a hiring.Agent, l hiring.Listing, typ string, prev hiring.ListingStatus, data any, at time.Time) {
	url, secret, ok := target(l.Callback, a)
	if !ok {
		return
	}
	if data == nil {
		data = l.Redacted()
	}
	ev := webhook.NewEvent(typ, webhook.ResourceListing, l.ID, string(l.Status), string(prev), data, at)
	*o = append(*o, webhook.Delivery{URL: url, Secret: secret, Event: ev})
}

// flush hands every delivery to the notifier. Failures are logged only.
func (s *Service) flush(ctx context.Context, o outbox) {
	for _, d := range o {
		if err := s.notifier.Notify(context.WithoutCancel(ctx), d); err != nil {
			s.log.Warn("webhook enqueue failed", "event", d.Event.Type, "resource_id", d.Event.ResourceID, "error", err)
		}
	}
}
