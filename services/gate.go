package services

import (
	"context"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/storage/ratelimit"
	"github.com/human-pages-ai/humanpages/telemetry"
)

// Grant is an admission through the permission gate. When the guarded
// operation fails, Settle hands back whatever the gate consumed.
type Grant struct {
	svc      *Service
	op       hiring.Operation
	agent    hiring.Agent
	key      string
	decision ratelimit.Decision
	network  string
	txHash   string
}

type quotaReportKey struct{}

// WithQuotaReport returns a context whose gated operations record their
// quota decision into the returned value.
func WithQuotaReport(ctx context.Context) (context.Context, *ratelimit.Decision) {
	d := &ratelimit.Decision{}
	return context.WithValue(ctx, quotaReportKey{}, d), d
}

// QuotaReport returns the decision recorded by the last gated operation
// run under ctx.
func QuotaReport(ctx context.Context) (ratelimit.Decision, bool) {
	d, ok := ctx.Value(quotaReportKey{}).(*ratelimit.Decision)
	if !ok || d.Limit == 0 {
		return ratelimit.Decision{}, false
	}
	return *d, true
}

func reportQuota(ctx context.Context, d ratelimit.Decision) {
	if out, ok := ctx.Value(quotaReportKey{}).(*ratelimit.Decision); ok {
		*out = d
	}
}

func quotaKey(agentID string, op hiring.Operation) string {
	return agentID + ":" + string(op)
}

// Gate admits the caller for op. The order is: credential, payment proof,
// activation, quota. A denied activation consumes nothing. Unmetered
// operations stop after activation.
func (s *Service) Gate(ctx context.Context, c Caller, op hiring.Operation) (*Grant, error) {
	var agent hiring.Agent
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, c.AgentID)
		agent = a
		return err
	})
	if err != nil {
		return nil, err
	}
	g := &Grant{svc: s, op: op, agent: agent}

	if c.PaymentProof != "" {
		if err := s.admitPayment(ctx, g, c.PaymentProof); err != nil {
			return nil, err
		}
		telemetry.PaymentBypasses.WithLabelValues(string(op)).Inc()
		return g, nil
	}

	now := s.now()
	if agent.EffectiveStatus(now) != hiring.AgentActive {
		return nil, hiring.ErrAgentPending.WithDetail("next_steps", hiring.AgentNextSteps(agent, now))
	}
	if !hiring.Metered(op) {
		return g, nil
	}
	q, ok := hiring.QuotaFor(agent.EffectiveTier(now), op)
	if !ok {
		return nil, hiring.ErrAgentPending
	}
	g.key = quotaKey(agent.ID, op)
	d, err := s.limiter.Allow(ctx, g.key, q)
	if err != nil {
		return nil, err
	}
	reportQuota(ctx, d)
	if !d.Allowed {
		telemetry.RateLimitRejects.WithLabelValues(string(op)).Inc()
		return nil, (&hiring.Error{
			Code:    hiring.CodeRateLimited,
			Message: "quota for " + string(op) + " exhausted; retry later or attach a payment proof",
		}).WithDetail("limit", d.Limit).
			WithDetail("remaining", d.Remaining).
			WithDetail("reset_at", d.ResetAt).
			WithDetail("per_call_price_cents", int64(hiring.PerCallPrice(op)))
	}
	g.decision = d
	return g, nil
}

// admitPayment verifies a per-call proof paid the treasury at least the
// operation's price from the agent's payer address, and burns it.
func (s *Service) admitPayment(ctx context.Context, g *Grant, raw string) error {
	network, txHash, ok := chain.ParseProof(raw)
	if !ok {
		return hiring.Invalid("payment_proof", "payment proof must look like <network>:<0x transaction hash>")
	}
	if g.agent.PayerAddress == "" {
		return hiring.Invalid("payment_proof", "per-call payments need a payer_address; set it at registration or with get_payment_activation")
	}
	t, err := s.verifier.VerifyTransfer(ctx, chain.TransferQuery{
		Network: network,
		TxHash:  txHash,
		To:      s.opts.TreasuryAddress,
		From:    g.agent.PayerAddress,
	})
	if err != nil {
		return verifyErr(err, hiring.CodePaymentNotFound, txHash)
	}
	price := hiring.PerCallPrice(g.op)
	if t.Amount < price {
		return (&hiring.Error{
			Code:    hiring.CodePaymentInsufficient,
			Message: "payment of " + t.Amount.String() + " is below the per-call price of " + price.String(),
		}).WithDetail("price_cents", int64(price))
	}
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		fresh, err := tx.MarkProofUsed(ctx, network, txHash)
		if err != nil {
			return err
		}
		if !fresh {
			return hiring.Errorf(hiring.CodePaymentAlreadyUsed, "transaction %s was already spent", txHash)
		}
		return nil
	})
	if err != nil {
		return err
	}
	g.network, g.txHash = network, txHash
	return nil
}

// Settle refunds the quota slot and releases the payment proof when *errp
// is non-nil. Call it deferred with the operation's named error.
func (g *Grant) Settle(ctx context.Context, errp *error) {
	if g == nil || errp == nil || *errp == nil {
		return
	}
	s := g.svc
	ctx = context.WithoutCancel(ctx)
	if g.key != "" && g.decision.Allowed {
		if err := s.limiter.Refund(ctx, g.key, g.decision); err != nil {
			s.log.Warn("quota refund failed", "agent_id", g.agent.ID, "operation", g.op, "error", err)
		}
	}
	if g.txHash != "" {
		err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
			return tx.ReleaseProof(ctx, g.network, g.txHash)
		})
		if err != nil {
			s.log.Warn("payment proof release failed", "tx_hash", g.txHash, "error", err)
		}
	}
}

// PaidByProof reports whether the grant came from a per-call payment.
func (g *Grant) PaidByProof() bool { return g.txHash != "" }
