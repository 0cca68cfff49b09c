package services

import (
	"context"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/telemetry"
	"github.com/human-pages-ai/humanpages/webhook"
)

// StartListingSweeper periodically persists the EXPIRED transition for
// listings past their expiry. Reads already report EXPIRED lazily; the
// sweeper makes it durable and fires listing.expired.
func (s *Service) StartListingSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n, err := s.ExpireListings(ctx); err != nil {
					s.log.Error("listing sweep failed", "error", err)
				} else if n > 0 {
					s.log.Info("listings expired", "count", n)
				}
			}
		}
	}()
}

// ExpireListings runs one sweep and reports how many listings expired.
func (s *Service) ExpireListings(ctx context.Context) (int, error) {
	now := s.now()
	var box outbox
	expired := 0
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		ls, err := tx.ListListings(ctx, "")
		if err != nil {
			return err
		}
		agents := map[string]hiring.Agent{}
		for _, l := range ls {
			if !l.Expire(now) {
				continue
			}
			if err := tx.PutListing(ctx, l); err != nil {
				return err
			}
			a, ok := agents[l.AgentID]
			if !ok {
				if a, err = tx.GetAgent(ctx, l.AgentID); err != nil {
					return err
				}
				agents[l.AgentID] = a
			}
			box.listing(a, l, webhook.ListingExpired, hiring.ListingOpen, nil, now)
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	telemetry.ListingsExpired.Add(float64(expired))
	s.flush(ctx, box)
	return expired, nil
}
