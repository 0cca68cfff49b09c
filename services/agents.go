package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/auth"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/telemetry"
)

const (
	promoCounter    = "promo_upgrades"
	domainTXTPrefix = "humanpages-verify="
)

// RegisterAgent creates a PENDING agent and returns its API key once.
func (s *Service) RegisterAgent(ctx context.Context, req hiring.RegisterAgentRequest) (resp hiring.RegisterAgentResponse, err error) {
	defer func() { observe("register_agent", err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return resp, hiring.Invalid("name", "name is required")
	}
	domain, err := normalizeDomain(req.Domain)
	if err != nil {
		return resp, err
	}
	if req.WebhookURL != "" {
		cb := &hiring.Callback{URL: req.WebhookURL, Secret: req.WebhookSecret}
		if err := cb.Validate(); err != nil {
			return resp, err
		}
	}
	var payer string
	if strings.TrimSpace(req.PayerAddress) != "" {
		if payer, err = normalizePayer(req.PayerAddress); err != nil {
			return resp, err
		}
	}

	now := s.now()
	agent := hiring.NewAgent(newID("agt"), name, now)
	agent.Domain = domain
	if domain != "" {
		agent.DomainToken = newToken()
	}
	agent.WebhookURL = req.WebhookURL
	agent.WebhookSecret = req.WebhookSecret
	agent.PayerAddress = payer

	key, err := s.keys.Issue(ctx, auth.Principal{Kind: auth.KindAgent, ID: agent.ID})
	if err != nil {
		return resp, fmt.Errorf("issue api key: %w", err)
	}
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		return tx.PutAgent(ctx, agent)
	})
	if err != nil {
		return resp, err
	}
	s.log.Info("agent registered", "agent_id", agent.ID, "domain", domain)
	return hiring.RegisterAgentResponse{
		Agent:     agent.Redacted(),
		APIKey:    key,
		NextSteps: hiring.AgentNextSteps(agent, now),
	}, nil
}

// normalizePayer checksums the wallet an agent pays from.
func normalizePayer(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if !common.IsHexAddress(addr) {
		return "", hiring.Invalid("payer_address", "payer_address must be a 0x-prefixed EVM address")
	}
	return common.HexToAddress(addr).Hex(), nil
}

func normalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return "", nil
	}
	d = strings.TrimSuffix(d, ".")
	if strings.Contains(d, "/") || strings.Contains(d, ":") || !strings.Contains(d, ".") {
		return "", hiring.Invalid("domain", "domain must be a bare host name like example.com")
	}
	return d, nil
}

// AgentStatus reports tier, expiry and remaining quota per operation class.
func (s *Service) AgentStatus(ctx context.Context, agentID string) (hiring.AgentStatusView, error) {
	var agent hiring.Agent
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, agentID)
		agent = a
		return err
	})
	if err != nil {
		return hiring.AgentStatusView{}, err
	}
	now := s.now()
	view := hiring.AgentStatusView{Agent: agent.Redacted(), NextSteps: hiring.AgentNextSteps(agent, now)}
	view.Agent.Status = agent.EffectiveStatus(now)
	view.Agent.Tier = agent.EffectiveTier(now)
	for _, op := range hiring.Operations() {
		qs := hiring.QuotaStatus{Operation: op, PerCallPrice: hiring.PerCallPrice(op)}
		if q, ok := hiring.QuotaFor(view.Agent.Tier, op); ok {
			d, err := s.limiter.Peek(ctx, quotaKey(agent.ID, op), q)
			if err != nil {
				return hiring.AgentStatusView{}, err
			}
			qs.Limit = d.Limit
			qs.Remaining = d.Remaining
			qs.WindowSeconds = int64(q.Window.Seconds())
			qs.ResetAt = d.ResetAt
		}
		view.Quotas = append(view.Quotas, qs)
	}
	return view, nil
}

// RequestActivationCode issues a fresh social activation code, replacing any
// earlier one.
func (s *Service) RequestActivationCode(ctx context.Context, agentID string) (view hiring.ActivationCodeView, err error) {
	defer func() { observe("request_activation_code", err) }()
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		_, err := s.loadAgent(ctx, tx, agentID)
		return err
	})
	if err != nil {
		return view, err
	}
	code, err := s.codes.Issue(ctx, agentID)
	if err != nil {
		return view, fmt.Errorf("issue activation code: %w", err)
	}
	return hiring.ActivationCodeView{
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt,
		Instructions: fmt.Sprintf(
			"Publish a public post containing %s (for example on X, Mastodon or a blog), then call verify_social_activation with the post URL before %s.",
			code.Code, code.ExpiresAt.Format("2006-01-02 15:04 MST")),
	}, nil
}

// VerifySocial activates BASIC when the post at PostURL contains the live code.
func (s *Service) VerifySocial(ctx context.Context, agentID string, req hiring.VerifySocialRequest) (view hiring.AgentStatusView, err error) {
	defer func() { observe("verify_social_activation", err) }()
	if err := hiring.ValidateHTTPURL("post_url", req.PostURL); err != nil {
		return view, err
	}
	var agent hiring.Agent
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, agentID)
		agent = a
		return err
	})
	if err != nil {
		return view, err
	}
	if agent.EffectiveTier(s.now()) == hiring.TierPro {
		return view, hiring.Errorf(hiring.CodeTierIneligible, "agent already holds an active PRO tier")
	}

	code, err := s.codes.Current(ctx, agentID)
	if errors.Is(err, auth.ErrNoCode) {
		return view, hiring.Errorf(hiring.CodeCodeExpired, "no live activation code; call request_activation_code")
	}
	if err != nil {
		return view, err
	}
	body, err := s.posts.Fetch(ctx, strings.TrimSpace(req.PostURL))
	if err != nil {
		return view, hiring.Errorf(hiring.CodePostUnreachable, "could not read the post: %v", err)
	}
	if !strings.Contains(body, code.Code) {
		return view, hiring.Errorf(hiring.CodeCodeNotFoundInPost, "the post does not contain %s", code.Code)
	}
	if err := s.codes.Consume(ctx, agentID, code.Code); err != nil {
		if errors.Is(err, auth.ErrNoCode) {
			return view, hiring.Errorf(hiring.CodeCodeExpired, "activation code expired before it was used")
		}
		return view, err
	}
	if err := s.activate(ctx, agentID, hiring.ActivationSocial, hiring.TierBasic); err != nil {
		return view, err
	}
	return s.AgentStatus(ctx, agentID)
}

func (s *Service) activate(ctx context.Context, agentID string, method hiring.ActivationMethod, tier hiring.Tier) error {
	err := s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		a.Activate(method, tier, s.now())
		return tx.PutAgent(ctx, a)
	})
	if err != nil {
		return err
	}
	telemetry.Activations.WithLabelValues(string(method)).Inc()
	s.log.Info("agent activated", "agent_id", agentID, "method", method, "tier", tier)
	return nil
}

// PaymentIntent issues the treasury deposit target for PRO activation and
// binds it to the wallet the deposit will come from.
func (s *Service) PaymentIntent(ctx context.Context, agentID string, req hiring.PaymentIntentRequest) (intent hiring.PaymentIntent, err error) {
	defer func() { observe("get_payment_activation", err) }()
	if s.opts.TreasuryAddress == "" {
		return intent, hiring.Errorf(hiring.CodeInternal, "payment activation is not configured")
	}
	var payer string
	if strings.TrimSpace(req.PayerAddress) != "" {
		if payer, err = normalizePayer(req.PayerAddress); err != nil {
			return intent, err
		}
	}
	now := s.now()
	units := hiring.USDCFromCents(hiring.ProActivationPrice)
	intent = hiring.PaymentIntent{
		AgentID:        agentID,
		DepositAddress: s.opts.TreasuryAddress,
		Network:        s.opts.TreasuryNetwork,
		Token:          "USDC",
		Amount:         hiring.ProActivationPrice,
		AmountUnits:    units.String(),
		PaymentURI:     PaymentURI(s.opts.TreasuryAddress, s.opts.TreasuryToken, s.opts.TreasuryChainID, units),
		CreatedAt:      now,
		ExpiresAt:      now.Add(hiring.PaymentIntentTTL),
	}

	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		bound := payer
		if bound == "" {
			bound = a.PayerAddress
		}
		if bound == "" {
			return hiring.Invalid("payer_address", "payer_address is required: the wallet the deposit will be sent from")
		}
		if a.PayerAddress != bound {
			a.PayerAddress = bound
			if err := tx.PutAgent(ctx, a); err != nil {
				return err
			}
		}
		intent.PayerAddress = bound
		return tx.PutPaymentIntent(ctx, intent)
	})
	if err != nil {
		return hiring.PaymentIntent{}, err
	}

	qr, err := s.qr.GenerateBase64(intent.PaymentURI)
	if err != nil {
		s.log.Warn("payment QR code failed", "agent_id", agentID, "error", err)
	}
	intent.QRCodePNG = qr
	return intent, nil
}

// VerifyPayment activates PRO once the intent's deposit is found on chain.
func (s *Service) VerifyPayment(ctx context.Context, agentID string, req hiring.VerifyPaymentRequest) (view hiring.AgentStatusView, err error) {
	defer func() { observe("verify_payment_activation", err) }()
	if !chain.ValidTxHash(strings.TrimSpace(req.TxHash)) {
		return view, hiring.Invalid("tx_hash", "tx_hash must be a 0x-prefixed 32-byte hex string")
	}
	txHash := strings.TrimSpace(req.TxHash)

	var intent hiring.PaymentIntent
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		if _, err := s.loadAgent(ctx, tx, agentID); err != nil {
			return err
		}
		p, err := tx.GetPaymentIntent(ctx, agentID)
		if errors.Is(err, marketplace.ErrNotFound) {
			return hiring.Errorf(hiring.CodePaymentExpired, "no payment intent; call get_payment_activation first")
		}
		intent = p
		return err
	})
	if err != nil {
		return view, err
	}
	if !s.now().Before(intent.ExpiresAt) {
		return view, hiring.Errorf(hiring.CodePaymentExpired, "payment intent expired at %s; request a new one", intent.ExpiresAt.Format("15:04 MST"))
	}
	if intent.PayerAddress == "" {
		return view, hiring.Errorf(hiring.CodePaymentExpired, "payment intent names no payer; request a new one")
	}
	network := chain.NormalizeNetwork(req.Network)
	if network == "" {
		network = intent.Network
	}
	if network != intent.Network {
		return view, hiring.Invalid("network", "activation payments are accepted on %s only", intent.Network)
	}

	t, err := s.verifier.VerifyTransfer(ctx, chain.TransferQuery{
		Network: network,
		TxHash:  txHash,
		To:      intent.DepositAddress,
		From:    intent.PayerAddress,
	})
	if err != nil {
		return view, verifyErr(err, hiring.CodePaymentNotFound, txHash)
	}
	if t.MinedBefore(intent.CreatedAt) {
		return view, hiring.Errorf(hiring.CodePaymentNotFound, "transaction %s was mined before the payment intent was issued", txHash)
	}
	if t.Amount < intent.Amount {
		return view, (&hiring.Error{
			Code:    hiring.CodePaymentInsufficient,
			Message: "deposit of " + t.Amount.String() + " is below " + intent.Amount.String(),
		}).WithDetail("required_cents", int64(intent.Amount))
	}

	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		fresh, err := tx.MarkProofUsed(ctx, network, txHash)
		if err != nil {
			return err
		}
		if !fresh {
			return hiring.Errorf(hiring.CodePaymentAlreadyUsed, "transaction %s was already spent", txHash)
		}
		a, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		a.Activate(hiring.ActivationPayment, hiring.TierPro, s.now())
		return tx.PutAgent(ctx, a)
	})
	if err != nil {
		return view, err
	}
	telemetry.Activations.WithLabelValues(string(hiring.ActivationPayment)).Inc()
	s.log.Info("agent activated", "agent_id", agentID, "method", hiring.ActivationPayment, "tx_hash", txHash)
	return s.AgentStatus(ctx, agentID)
}

// ClaimPromo upgrades an active BASIC agent to PRO while global capacity lasts.
func (s *Service) ClaimPromo(ctx context.Context, agentID string) (view hiring.AgentStatusView, err error) {
	defer func() { observe("claim_promo_upgrade", err) }()
	var remaining int
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, agentID)
		if err != nil {
			return err
		}
		if err := a.ClaimPromo(s.now()); err != nil {
			return err
		}
		n, moved, err := tx.IncrementCounter(ctx, promoCounter, s.opts.PromoCapacity)
		if err != nil {
			return err
		}
		if !moved {
			return hiring.Errorf(hiring.CodePromoExhausted, "all %d promotional upgrades have been claimed", s.opts.PromoCapacity)
		}
		remaining = s.opts.PromoCapacity - n
		return tx.PutAgent(ctx, a)
	})
	if err != nil {
		return view, err
	}
	telemetry.Activations.WithLabelValues(string(hiring.ActivationPromo)).Inc()
	s.log.Info("promo upgrade claimed", "agent_id", agentID, "remaining", remaining)
	return s.AgentStatus(ctx, agentID)
}

// VerifyDomain checks the agent's domain for its humanpages-verify TXT record.
func (s *Service) VerifyDomain(ctx context.Context, agentID string) (view hiring.AgentStatusView, err error) {
	defer func() { observe("verify_agent_domain", err) }()
	var agent hiring.Agent
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		a, err := s.loadAgent(ctx, tx, agentID)
		agent = a
		return err
	})
	if err != nil {
		return view, err
	}
	if agent.Domain == "" {
		return view, hiring.Errorf(hiring.CodeDomainNotVerified, "agent registered without a domain")
	}
	if !agent.DomainVerified {
		records, err := s.txt.LookupTXT(ctx, agent.Domain)
		if err != nil {
			return view, hiring.Errorf(hiring.CodeDomainNotVerified, "TXT lookup for %s failed: %v", agent.Domain, err)
		}
		want := domainTXTPrefix + agent.DomainToken
		found := false
		for _, r := range records {
			if strings.TrimSpace(r) == want {
				found = true
				break
			}
		}
		if !found {
			return view, hiring.Errorf(hiring.CodeDomainNotVerified, "no TXT record %q on %s", want, agent.Domain)
		}
		err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
			a, err := s.loadAgent(ctx, tx, agentID)
			if err != nil {
				return err
			}
			a.DomainVerified = true
			return tx.PutAgent(ctx, a)
		})
		if err != nil {
			return view, err
		}
	}
	return s.AgentStatus(ctx, agentID)
}
