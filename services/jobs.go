package services

import (
	"context"
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/webhook"
)

// jobDraft is everything the shared creation path needs, whether the offer
// is direct or converted from a listing application.
type jobDraft struct {
	HumanID       string
	ListingID     string
	ApplicationID string
	Title         string
	Description   string
	Category      string
	Price         hiring.Cents
	Terms         hiring.PaymentTerms
	Location      *hiring.Coordinates
	Callback      *hiring.Callback
}

// createJob validates the draft against the human's spam filters and stores
// a PENDING job. Both direct and listing offers go through here.
func (s *Service) createJob(ctx context.Context, tx marketplace.Tx, agent hiring.Agent, d jobDraft, box *outbox, now time.Time) (hiring.Job, hiring.Human, error) {
	human, err := tx.GetHuman(ctx, d.HumanID)
	if err != nil {
		return hiring.Job{}, hiring.Human{}, notFound(err, hiring.CodeHumanNotFound, "human", d.HumanID)
	}
	if d.Price <= 0 {
		return hiring.Job{}, hiring.Human{}, hiring.Invalid("price", "price must be positive")
	}
	if err := human.CheckOfferFilters(d.Price, d.Location); err != nil {
		return hiring.Job{}, hiring.Human{}, err
	}
	if err := d.Terms.Validate(); err != nil {
		return hiring.Job{}, hiring.Human{}, err
	}
	if err := d.Callback.Validate(); err != nil {
		return hiring.Job{}, hiring.Human{}, err
	}

	j := hiring.NewJob(newID("job"), now)
	j.AgentID = agent.ID
	j.HumanID = human.ID
	j.ListingID = d.ListingID
	j.ApplicationID = d.ApplicationID
	j.Title = strings.TrimSpace(d.Title)
	j.Description = d.Description
	j.Category = d.Category
	j.Price = d.Price
	j.Location = d.Location
	j.Callback = d.Callback
	j.SetTerms(d.Terms)
	if err := tx.PutJob(ctx, j); err != nil {
		return hiring.Job{}, hiring.Human{}, err
	}
	box.job(agent, j, webhook.JobCreated, "", nil)
	return j, human, nil
}

// CreateOffer sends a direct job offer to a human.
func (s *Service) CreateOffer(ctx context.Context, c Caller, req hiring.OfferRequest) (view hiring.JobView, err error) {
	defer func() { observe("create_job_offer", err) }()
	g, err := s.Gate(ctx, c, hiring.OpJobOffer)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)
	if err := req.Validate(); err != nil {
		return view, err
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
		job, human, err = s.createJob(ctx, tx, agent, jobDraft{
			HumanID:     req.HumanID,
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Price:       req.Price,
			Terms:       req.Terms,
			Location:    req.Location,
			Callback:    req.Callback,
		}, &box, now)
		return err
	})
	if err != nil {
		return view, err
	}
	s.flush(ctx, box)
	s.log.Info("job offer created", "job_id", job.ID, "agent_id", c.AgentID, "human_id", human.ID, "paid_by_proof", g.PaidByProof())
	return s.jobView(job, &human, now), nil
}

// jobView projects a job for its owning agent.
func (s *Service) jobView(j hiring.Job, h *hiring.Human, now time.Time) hiring.JobView {
	v := hiring.JobView{Job: j.Redacted(), NextSteps: hiring.JobNextSteps(j, now)}
	if h != nil {
		p := h.Public()
		v.Human = &p
		if j.PaymentUnlocked() {
			v.Payment = h.PaymentDetails()
		}
	}
	if j.Stream != nil {
		snap := j.Stream.Snapshot(now)
		v.Stream = &snap
	}
	return v
}

// GetJob returns the job with the human's profile, unlocked payment details
// and stream projection.
func (s *Service) GetJob(ctx context.Context, agentID, jobID string) (hiring.JobView, error) {
	var (
		job   hiring.Job
		human hiring.Human
	)
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		if _, err := s.loadAgent(ctx, tx, agentID); err != nil {
			return err
		}
		j, err := s.ownedJob(ctx, tx, agentID, jobID)
		if err != nil {
			return err
		}
		job = j
		human, err = tx.GetHuman(ctx, j.HumanID)
		return err
	})
	if err != nil {
		return hiring.JobView{}, err
	}
	return s.jobView(job, &human, s.now()), nil
}

// ListJobs returns the caller's jobs newest first, optionally by status.
func (s *Service) ListJobs(ctx context.Context, agentID string, status hiring.JobStatus) ([]hiring.JobView, error) {
	var (
		jobs   []hiring.Job
		humans = map[string]hiring.Human{}
	)
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		if _, err := s.loadAgent(ctx, tx, agentID); err != nil {
			return err
		}
		js, err := tx.ListJobs(ctx, marketplace.JobFilter{AgentID: agentID, Status: status})
		if err != nil {
			return err
		}
		jobs = js
		for _, j := range js {
			if _, ok := humans[j.HumanID]; ok {
				continue
			}
			h, err := tx.GetHuman(ctx, j.HumanID)
			if err != nil {
				return err
			}
			humans[j.HumanID] = h
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]hiring.JobView, 0, len(jobs))
	for _, j := range jobs {
		h := humans[j.HumanID]
		out = append(out, s.jobView(j, &h, now))
	}
	return out, nil
}

// MarkPaid settles a ONE_TIME job after verifying the transfer on chain.
func (s *Service) MarkPaid(ctx context.Context, c Caller, jobID string, req hiring.MarkPaidRequest) (view hiring.JobView, err error) {
	defer func() { observe("mark_job_paid", err) }()
	g, err := s.Gate(ctx, c, hiring.OpJobControl)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)
	agentID := c.AgentID
	txHash := strings.TrimSpace(req.TxHash)
	network := chain.NormalizeNetwork(req.Network)
	if !chain.ValidTxHash(txHash) {
		return view, hiring.Invalid("tx_hash", "tx_hash must be a 0x-prefixed 32-byte hex string")
	}
	if network == "" {
		return view, hiring.Invalid("network", "network is required")
	}
	if req.Amount <= 0 {
		return view, hiring.Invalid("amount", "amount must be positive")
	}

	var receiver string
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		j, err := s.ownedJob(ctx, tx, agentID, jobID)
		if err != nil {
			return err
		}
		if err := j.CanMarkPaid(req.Amount); err != nil {
			return err
		}
		h, err := tx.GetHuman(ctx, j.HumanID)
		if err != nil {
			return err
		}
		addr, ok := h.WalletFor(network)
		if !ok {
			return hiring.Errorf(hiring.CodeHumanWalletMissing, "human has no wallet on %s", network)
		}
		receiver = addr
		return nil
	})
	if err != nil {
		return view, err
	}

	t, err := s.verifier.VerifyTransfer(ctx, chain.TransferQuery{Network: network, TxHash: txHash, To: receiver})
	if err != nil {
		return view, verifyErr(err, hiring.CodePaymentNotFound, txHash)
	}

	now := s.now()
	var (
		box   outbox
		job   hiring.Job
		human hiring.Human
	)
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		j, err := s.ownedJob(ctx, tx, agentID, jobID)
		if err != nil {
			return err
		}
		prev := j.Status
		rec := hiring.PaymentRecord{TxHash: txHash, Network: network, Amount: t.Amount, VerifiedAt: now}
		if err := j.MarkPaid(rec, now); err != nil {
			return err
		}
		fresh, err := tx.MarkProofUsed(ctx, network, txHash)
		if err != nil {
			return err
		}
		if !fresh {
			return hiring.Errorf(hiring.CodePaymentAlreadyUsed, "transaction %s was already spent", txHash)
		}
		if err := tx.PutJob(ctx, j); err != nil {
			return err
		}
		if human, err = tx.GetHuman(ctx, j.HumanID); err != nil {
			return err
		}
		box.job(agent, j, webhook.JobPaid, prev, nil)
		job = j
		return nil
	})
	if err != nil {
		return view, err
	}
	s.flush(ctx, box)
	s.log.Info("job paid", "job_id", jobID, "amount", t.Amount.String(), "tx_hash", txHash)
	return s.jobView(job, &human, now), nil
}

// CancelJob withdraws a job from any non-terminal status.
func (s *Service) CancelJob(ctx context.Context, c Caller, jobID string, req hiring.CancelRequest) (view hiring.JobView, err error) {
	defer func() { observe("cancel_job", err) }()
	g, err := s.Gate(ctx, c, hiring.OpJobControl)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)
	return s.agentTransition(ctx, c.AgentID, jobID, webhook.JobCancelled, func(j *hiring.Job, now time.Time) error {
		return j.Cancel(strings.TrimSpace(req.Reason), now)
	})
}

// LeaveReview attaches the one-shot rating and folds it into the human's aggregate.
func (s *Service) LeaveReview(ctx context.Context, c Caller, jobID string, req hiring.ReviewRequest) (view hiring.JobView, err error) {
	defer func() { observe("leave_review", err) }()
	g, err := s.Gate(ctx, c, hiring.OpJobControl)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)
	if req.Rating < hiring.MinRating || req.Rating > hiring.MaxRating {
		return view, hiring.Invalid("rating", "rating must be an integer between %d and %d", hiring.MinRating, hiring.MaxRating)
	}
	now := s.now()
	var (
		job   hiring.Job
		human hiring.Human
	)
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		j, err := s.ownedJob(ctx, tx, c.AgentID, jobID)
		if err != nil {
			return err
		}
		if err := j.AttachReview(req.Rating, strings.TrimSpace(req.Comment), now); err != nil {
			return err
		}
		h, err := tx.GetHuman(ctx, j.HumanID)
		if err != nil {
			return err
		}
		h.AddRating(req.Rating)
		if err := tx.PutHuman(ctx, h); err != nil {
			return err
		}
		job, human = j, h
		return tx.PutJob(ctx, j)
	})
	if err != nil {
		return view, err
	}
	return s.jobView(job, &human, now), nil
}

// agentTransition applies one owner-side event to a job inside a single transaction.
func (s *Service) agentTransition(ctx context.Context, agentID, jobID, event string, apply func(j *hiring.Job, now time.Time) error) (hiring.JobView, error) {
	now := s.now()
	var (
		box   outbox
		job   hiring.Job
		human hiring.Human
	)
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		j, err := s.ownedJob(ctx, tx, agentID, jobID)
		if err != nil {
			return err
		}
		prev := j.Status
		if err := apply(&j, now); err != nil {
			return err
		}
		if err := tx.PutJob(ctx, j); err != nil {
			return err
		}
		if human, err = tx.GetHuman(ctx, j.HumanID); err != nil {
			return err
		}
		box.job(agent, j, event, prev, nil)
		job = j
		return nil
	})
	if err != nil {
		return hiring.JobView{}, err
	}
	s.flush(ctx, box)
	s.log.Info("job transition", "job_id", jobID, "agent_id", agentID, "status", job.Status)
	return s.jobView(job, &human, now), nil
}

// SendMessage appends an agent-authored message. Messages are metered per minute.
func (s *Service) SendMessage(ctx context.Context, c Caller, jobID string, req hiring.MessageRequest) (msg hiring.Message, err error) {
	defer func() { observe("send_message", err) }()
	g, err := s.Gate(ctx, c, hiring.OpMessage)
	if err != nil {
		return msg, err
	}
	defer g.Settle(ctx, &err)
	if err := hiring.ValidateMessageBody(req.Body); err != nil {
		return msg, err
	}

	var box outbox
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, c.AgentID)
		if err != nil {
			return err
		}
		j, err := s.ownedJob(ctx, tx, c.AgentID, jobID)
		if err != nil {
			return err
		}
		msg, err = s.appendMessage(ctx, tx, j, hiring.SenderAgent, req.Body)
		if err != nil {
			return err
		}
		box.job(agent, j, webhook.JobMessage, j.Status, msg)
		return nil
	})
	if err != nil {
		return hiring.Message{}, err
	}
	s.flush(ctx, box)
	return msg, nil
}

func (s *Service) appendMessage(ctx context.Context, tx marketplace.Tx, j hiring.Job, from hiring.MessageSender, body string) (hiring.Message, error) {
	if !j.Status.AllowsMessaging() {
		return hiring.Message{}, hiring.ErrJobClosed.WithDetail("status", string(j.Status))
	}
	m := hiring.Message{
		ID:        newID("msg"),
		JobID:     j.ID,
		Sender:    from,
		Body:      strings.TrimSpace(body),
		CreatedAt: s.now(),
	}
	if err := tx.AppendMessage(ctx, m); err != nil {
		return hiring.Message{}, err
	}
	return m, nil
}

// GetMessages returns the job conversation in chronological order.
func (s *Service) GetMessages(ctx context.Context, agentID, jobID string) ([]hiring.Message, error) {
	return s.messages(ctx, jobID, func(tx marketplace.Tx) error {
		_, err := s.ownedJob(ctx, tx, agentID, jobID)
		return err
	})
}

// HumanMessages is GetMessages for the human the job was offered to.
func (s *Service) HumanMessages(ctx context.Context, humanID, jobID string) ([]hiring.Message, error) {
	return s.messages(ctx, jobID, func(tx marketplace.Tx) error {
		_, _, err := s.humanJob(ctx, tx, humanID, jobID)
		return err
	})
}

func (s *Service) messages(ctx context.Context, jobID string, authorize func(tx marketplace.Tx) error) ([]hiring.Message, error) {
	var out []hiring.Message
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		if err := authorize(tx); err != nil {
			return err
		}
		ms, err := tx.ListMessages(ctx, jobID)
		out = ms
		return err
	})
	if out == nil {
		out = []hiring.Message{}
	}
	return out, err
}
