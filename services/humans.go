package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/auth"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/webhook"
)

// SearchHumans pages through public profiles matching f, best rated first.
func (s *Service) SearchHumans(ctx context.Context, f hiring.HumanFilter) (hiring.HumanPage, error) {
	if f.Near != nil && !f.Near.Valid() {
		return hiring.HumanPage{}, hiring.Invalid("near", "coordinates are out of range")
	}
	var all []hiring.Human
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		hs, err := tx.ListHumans(ctx)
		all = hs
		return err
	})
	if err != nil {
		return hiring.HumanPage{}, err
	}
	page := hiring.HumanPage{Limit: hiring.ClampPage(f.Limit), Offset: max(f.Offset, 0), Humans: []hiring.PublicProfile{}}
	for _, h := range all {
		if !f.Matches(h) {
			continue
		}
		if page.Total >= page.Offset && len(page.Humans) < page.Limit {
			page.Humans = append(page.Humans, h.Public())
		}
		page.Total++
	}
	return page, nil
}

// GetHuman returns the public profile.
func (s *Service) GetHuman(ctx context.Context, id string) (hiring.PublicProfile, error) {
	var h hiring.Human
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		got, err := tx.GetHuman(ctx, id)
		h = got
		return notFound(err, hiring.CodeHumanNotFound, "human", id)
	})
	return h.Public(), err
}

// FullProfile is the gated read of contact details. Payment details are
// included once the human accepted one of the caller's jobs.
func (s *Service) FullProfile(ctx context.Context, c Caller, id string) (fp hiring.FullProfile, err error) {
	defer func() { observe("get_human_full_profile", err) }()
	g, err := s.Gate(ctx, c, hiring.OpProfileView)
	if err != nil {
		return fp, err
	}
	defer g.Settle(ctx, &err)

	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		h, err := tx.GetHuman(ctx, id)
		if err != nil {
			return notFound(err, hiring.CodeHumanNotFound, "human", id)
		}
		jobs, err := tx.ListJobs(ctx, marketplace.JobFilter{AgentID: c.AgentID, HumanID: id})
		if err != nil {
			return err
		}
		unlocked := false
		for _, j := range jobs {
			if j.PaymentUnlocked() {
				unlocked = true
				break
			}
		}
		fp = h.Full(unlocked)
		return nil
	})
	return fp, err
}

// RegisterHuman is the admin path for adding a human and issuing its key.
func (s *Service) RegisterHuman(ctx context.Context, h hiring.Human) (hiring.RegisterHumanResponse, error) {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return hiring.RegisterHumanResponse{}, hiring.Invalid("name", "name is required")
	}
	if c := h.Location.Coordinates; c != nil && !c.Valid() {
		return hiring.RegisterHumanResponse{}, hiring.Invalid("location", "coordinates are out of range")
	}
	for _, m := range h.WorkModes {
		if !m.Valid() {
			return hiring.RegisterHumanResponse{}, hiring.Invalid("work_modes", "work mode must be REMOTE, ONSITE or HYBRID")
		}
	}
	if h.ID == "" {
		h.ID = newID("hum")
	}
	h.Rating, h.ReviewCount = 0, 0
	h.CreatedAt = s.now()

	key, err := s.keys.Issue(ctx, auth.Principal{Kind: auth.KindHuman, ID: h.ID})
	if err != nil {
		return hiring.RegisterHumanResponse{}, fmt.Errorf("issue api key: %w", err)
	}
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		return tx.PutHuman(ctx, h)
	})
	if err != nil {
		return hiring.RegisterHumanResponse{}, err
	}
	s.log.Info("human registered", "human_id", h.ID)
	return hiring.RegisterHumanResponse{Human: h, APIKey: key}, nil
}

// humanJob loads a job for the human side of the marketplace.
func (s *Service) humanJob(ctx context.Context, tx marketplace.Tx, humanID, jobID string) (hiring.Job, hiring.Agent, error) {
	j, err := tx.GetJob(ctx, jobID)
	if err != nil {
		return hiring.Job{}, hiring.Agent{}, notFound(err, hiring.CodeJobNotFound, "job", jobID)
	}
	if j.HumanID != humanID {
		return hiring.Job{}, hiring.Agent{}, hiring.Errorf(hiring.CodeNotJobOwner, "job %s was offered to another human", jobID)
	}
	a, err := tx.GetAgent(ctx, j.AgentID)
	if err != nil {
		return hiring.Job{}, hiring.Agent{}, fmt.Errorf("load job agent: %w", err)
	}
	return j, a, nil
}

// humanTransition applies one human-side event to a job.
func (s *Service) humanTransition(ctx context.Context, op, humanID, jobID, event string, apply func(j *hiring.Job, now time.Time) error) (out hiring.Job, err error) {
	defer func() { observe(op, err) }()
	var box outbox
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		j, a, err := s.humanJob(ctx, tx, humanID, jobID)
		if err != nil {
			return err
		}
		prev := j.Status
		if err := apply(&j, s.now()); err != nil {
			return err
		}
		if err := tx.PutJob(ctx, j); err != nil {
			return err
		}
		box.job(a, j, event, prev, nil)
		out = j
		return nil
	})
	if err != nil {
		return hiring.Job{}, err
	}
	s.flush(ctx, box)
	s.log.Info("job transition", "job_id", jobID, "human_id", humanID, "status", out.Status)
	return out.Redacted(), nil
}

// AcceptJob unlocks the human's payment details for the hiring agent.
func (s *Service) AcceptJob(ctx context.Context, humanID, jobID string) (hiring.Job, error) {
	return s.humanTransition(ctx, "accept_job", humanID, jobID, webhook.JobAccepted, func(j *hiring.Job, now time.Time) error {
		return j.Accept(now)
	})
}

func (s *Service) RejectJob(ctx context.Context, humanID, jobID string) (hiring.Job, error) {
	return s.humanTransition(ctx, "reject_job", humanID, jobID, webhook.JobRejected, func(j *hiring.Job, now time.Time) error {
		return j.Reject(now)
	})
}

func (s *Service) CompleteJob(ctx context.Context, humanID, jobID string) (hiring.Job, error) {
	return s.humanTransition(ctx, "complete_job", humanID, jobID, webhook.JobCompleted, func(j *hiring.Job, now time.Time) error {
		return j.Complete(now)
	})
}

// DisputeJob freezes a PAID or STREAMING job pending off-protocol resolution.
func (s *Service) DisputeJob(ctx context.Context, humanID, jobID string, req hiring.DisputeRequest) (hiring.Job, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return hiring.Job{}, hiring.Invalid("reason", "a dispute needs a reason")
	}
	return s.humanTransition(ctx, "dispute_job", humanID, jobID, webhook.JobDisputed, func(j *hiring.Job, now time.Time) error {
		return j.Dispute(reason, now)
	})
}

// HumanMessage appends a human-authored message to the job conversation.
func (s *Service) HumanMessage(ctx context.Context, humanID, jobID string, req hiring.MessageRequest) (msg hiring.Message, err error) {
	defer func() { observe("human_message", err) }()
	if err := hiring.ValidateMessageBody(req.Body); err != nil {
		return msg, err
	}
	var box outbox
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		j, a, err := s.humanJob(ctx, tx, humanID, jobID)
		if err != nil {
			return err
		}
		msg, err = s.appendMessage(ctx, tx, j, hiring.SenderHuman, req.Body)
		if err != nil {
			return err
		}
		box.job(a, j, webhook.JobMessage, j.Status, msg)
		return nil
	})
	if err != nil {
		return hiring.Message{}, err
	}
	s.flush(ctx, box)
	return msg, nil
}
