package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/webhook"
)

// CreateListing posts an OPEN listing.
func (s *Service) CreateListing(ctx context.Context, c Caller, req hiring.ListingRequest) (view hiring.ListingView, err error) {
	defer func() { observe("create_listing", err) }()
	g, err := s.Gate(ctx, c, hiring.OpListing)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)

	now := s.now()
	if err := req.Validate(); err != nil {
		return view, err
	}
	if err := hiring.ValidateListing(req.Budget, req.ExpiresAt, now, req.MaxApplicants); err != nil {
		return view, err
	}

	l := hiring.Listing{
		ID:            newID("lst"),
		AgentID:       c.AgentID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      req.Category,
		Budget:        req.Budget,
		Requirements:  req.Requirements,
		ExpiresAt:     req.ExpiresAt.UTC(),
		MaxApplicants: req.MaxApplicants,
		Status:        hiring.ListingOpen,
		Callback:      req.Callback,
		CreatedAt:     now,
	}
	var box outbox
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, c.AgentID)
		if err != nil {
			return err
		}
		if err := tx.PutListing(ctx, l); err != nil {
			return err
		}
		box.listing(agent, l, webhook.ListingCreated, "", nil, now)
		return nil
	})
	if err != nil {
		return view, err
	}
	s.flush(ctx, box)
	s.log.Info("listing created", "listing_id", l.ID, "agent_id", c.AgentID, "budget", l.Budget.String())
	return hiring.ListingView{Listing: l.Redacted(), NextSteps: hiring.ListingNextSteps(l, now)}, nil
}

// asRead reports the lazily expired status without persisting it.
func asRead(l hiring.Listing, now time.Time) hiring.Listing {
	l.Status = l.EffectiveStatus(now)
	return l.Redacted()
}

// BrowseListings pages through listings matching f. Only OPEN listings are
// returned unless f.Status says otherwise.
func (s *Service) BrowseListings(ctx context.Context, f hiring.ListingFilter) (hiring.ListingPage, error) {
	if f.Near != nil && !f.Near.Valid() {
		return hiring.ListingPage{}, hiring.Invalid("near", "coordinates are out of range")
	}
	var all []hiring.Listing
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		ls, err := tx.ListListings(ctx, "")
		all = ls
		return err
	})
	if err != nil {
		return hiring.ListingPage{}, err
	}
	now := s.now()
	page := hiring.ListingPage{Limit: hiring.ClampPage(f.Limit), Offset: max(f.Offset, 0), Listings: []hiring.Listing{}}
	for _, l := range all {
		if !f.Matches(l, now) {
			continue
		}
		if page.Total >= page.Offset && len(page.Listings) < page.Limit {
			page.Listings = append(page.Listings, asRead(l, now))
		}
		page.Total++
	}
	return page, nil
}

// GetListing is the unauthenticated single read.
func (s *Service) GetListing(ctx context.Context, id string) (hiring.ListingView, error) {
	var l hiring.Listing
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		got, err := tx.GetListing(ctx, id)
		l = got
		return notFound(err, hiring.CodeListingNotFound, "listing", id)
	})
	if err != nil {
		return hiring.ListingView{}, err
	}
	now := s.now()
	return hiring.ListingView{Listing: asRead(l, now)}, nil
}

// MyListings returns the caller's listings newest first.
func (s *Service) MyListings(ctx context.Context, agentID string) ([]hiring.ListingView, error) {
	var ls []hiring.Listing
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		if _, err := s.loadAgent(ctx, tx, agentID); err != nil {
			return err
		}
		got, err := tx.ListListings(ctx, agentID)
		ls = got
		return err
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]hiring.ListingView, 0, len(ls))
	for _, l := range ls {
		out = append(out, hiring.ListingView{Listing: asRead(l, now), NextSteps: hiring.ListingNextSteps(l, now)})
	}
	return out, nil
}

// ListApplications returns a listing's applications oldest first with each
// applicant's public profile.
func (s *Service) ListApplications(ctx context.Context, agentID, listingID string) ([]hiring.ApplicationView, error) {
	var out []hiring.ApplicationView
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		if _, err := s.ownedListing(ctx, tx, agentID, listingID); err != nil {
			return err
		}
		apps, err := tx.ListApplications(ctx, listingID)
		if err != nil {
			return err
		}
		sort.SliceStable(apps, func(i, j int) bool {
			if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
				return apps[i].CreatedAt.Before(apps[j].CreatedAt)
			}
			return apps[i].ID < apps[j].ID
		})
		out = make([]hiring.ApplicationView, 0, len(apps))
		for _, a := range apps {
			h, err := tx.GetHuman(ctx, a.HumanID)
			if err != nil {
				return notFound(err, hiring.CodeHumanNotFound, "human", a.HumanID)
			}
			out = append(out, hiring.ApplicationView{Application: a, Applicant: h.Public()})
		}
		return nil
	})
	return out, err
}

// Apply records a human's application to an OPEN listing.
func (s *Service) Apply(ctx context.Context, humanID, listingID string, req hiring.ApplyRequest) (app hiring.Application, err error) {
	defer func() { observe("apply_to_listing", err) }()
	pitch := strings.TrimSpace(req.Pitch)
	if len([]rune(pitch)) > hiring.MaxMessageLength {
		return app, hiring.Invalid("pitch", "pitch must be at most %d characters", hiring.MaxMessageLength)
	}
	now := s.now()
	var box outbox
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		h, err := tx.GetHuman(ctx, humanID)
		if err != nil {
			return notFound(err, hiring.CodeHumanNotFound, "human", humanID)
		}
		l, err := tx.GetListing(ctx, listingID)
		if err != nil {
			return notFound(err, hiring.CodeListingNotFound, "listing", listingID)
		}
		if err := l.CheckApply(now); err != nil {
			return err
		}
		apps, err := tx.ListApplications(ctx, listingID)
		if err != nil {
			return err
		}
		for _, a := range apps {
			if a.HumanID == h.ID {
				return hiring.Errorf(hiring.CodeAlreadyApplied, "human %s already applied to listing %s", h.ID, listingID)
			}
		}
		app = hiring.Application{
			ID:        newID("app"),
			ListingID: listingID,
			HumanID:   h.ID,
			Pitch:     pitch,
			Status:    hiring.ApplicationPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.PutApplication(ctx, app); err != nil {
			return err
		}
		l.ApplicationCount++
		if err := tx.PutListing(ctx, l); err != nil {
			return err
		}
		agent, err := tx.GetAgent(ctx, l.AgentID)
		if err != nil {
			return err
		}
		box.listing(agent, l, webhook.ListingApplication, l.Status, hiring.ApplicationView{Application: app, Applicant: h.Public()}, now)
		return nil
	})
	if err != nil {
		return hiring.Application{}, err
	}
	s.flush(ctx, box)
	return app, nil
}

// MakeListingOffer converts an application into a job through the same
// creation path as direct offers. The listing closes; sibling applications
// stay PENDING and may still receive offers.
func (s *Service) MakeListingOffer(ctx context.Context, c Caller, listingID, appID string, req hiring.ListingOfferRequest) (resp hiring.ListingOfferResponse, err error) {
	defer func() { observe("make_listing_offer", err) }()
	g, err := s.Gate(ctx, c, hiring.OpJobOffer)
	if err != nil {
		return resp, err
	}
	defer g.Settle(ctx, &err)
	if req.Location != nil && !req.Location.Valid() {
		return resp, hiring.Invalid("location", "coordinates are out of range")
	}
	terms := hiring.OneTime()
	if req.Terms != nil {
		terms = *req.Terms
	}

	now := s.now()
	var (
		box   outbox
		job   hiring.Job
		human hiring.Human
	)
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, c.AgentID)
		if err != nil {
			return err
		}
		l, err := s.ownedListing(ctx, tx, c.AgentID, listingID)
		if err != nil {
			return err
		}
		app, err := tx.GetApplication(ctx, appID)
		if err != nil {
			return notFound(err, hiring.CodeApplicationNotFound, "application", appID)
		}
		if app.ListingID != listingID {
			return hiring.Errorf(hiring.CodeApplicationNotFound, "application %s not found on listing %s", appID, listingID)
		}
		if app.Status != hiring.ApplicationPending {
			return hiring.ErrApplicationNotPending.WithDetail("status", string(app.Status))
		}
		if err := l.CheckOffer(now); err != nil {
			return err
		}

		loc := req.Location
		if loc == nil {
			loc = l.Requirements.Coordinates
		}
		cb := req.Callback
		if cb == nil {
			cb = l.Callback
		}
		job, human, err = s.createJob(ctx, tx, agent, jobDraft{
			HumanID:       app.HumanID,
			ListingID:     l.ID,
			ApplicationID: app.ID,
			Title:         l.Title,
			Description:   l.Description,
			Category:      l.Category,
			Price:         l.Budget,
			Terms:         terms,
			Location:      loc,
			Callback:      cb,
		}, &box, now)
		if err != nil {
			return err
		}
		if err := app.Offer(job.ID, now); err != nil {
			return err
		}
		if err := tx.PutApplication(ctx, app); err != nil {
			return err
		}
		prev := l.Status
		l.Close(now)
		if err := tx.PutListing(ctx, l); err != nil {
			return err
		}
		if prev != l.Status {
			box.listing(agent, l, webhook.ListingClosed, prev, nil, now)
		}
		resp.Application = app
		resp.Listing = l.Redacted()
		return nil
	})
	if err != nil {
		return hiring.ListingOfferResponse{}, err
	}
	s.flush(ctx, box)
	s.log.Info("listing offer made", "listing_id", listingID, "application_id", appID, "job_id", job.ID)
	resp.Job = s.jobView(job, &human, now)
	return resp, nil
}

// CancelListing withdraws an OPEN listing and rejects its pending applications.
func (s *Service) CancelListing(ctx context.Context, c Caller, listingID string) (view hiring.ListingView, err error) {
	defer func() { observe("cancel_listing", err) }()
	g, err := s.Gate(ctx, c, hiring.OpJobControl)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)
	agentID := c.AgentID
	now := s.now()
	var (
		box outbox
		l   hiring.Listing
	)
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		l, err = s.ownedListing(ctx, tx, agentID, listingID)
		if err != nil {
			return err
		}
		prev := l.Status
		if err := l.Cancel(now); err != nil {
			return err
		}
		if err := tx.PutListing(ctx, l); err != nil {
			return err
		}
		apps, err := tx.ListApplications(ctx, listingID)
		if err != nil {
			return err
		}
		rejected := 0
		for _, a := range apps {
			if !a.Reject(now) {
				continue
			}
			if err := tx.PutApplication(ctx, a); err != nil {
				return err
			}
			rejected++
		}
		box.listing(agent, l, webhook.ListingCancelled, prev, map[string]any{
			"listing":               l.Redacted(),
			"rejected_applications": rejected,
		}, now)
		return nil
	})
	if err != nil {
		return view, err
	}
	s.flush(ctx, box)
	return hiring.ListingView{Listing: l.Redacted(), NextSteps: hiring.ListingNextSteps(l, now)}, nil
}
