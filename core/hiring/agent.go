package hiring

import "time"

type AgentStatus string

const (
	AgentPending AgentStatus = "PENDING"
	AgentActive  AgentStatus = "ACTIVE"
)

type Tier string

const (
	TierNone  Tier = "NONE"
	TierBasic Tier = "BASIC"
	TierPro   Tier = "PRO"
)

type ActivationMethod string

const (
	ActivationSocial  ActivationMethod = "SOCIAL"
	ActivationPayment ActivationMethod = "PAYMENT"
	ActivationPromo   ActivationMethod = "PROMO"
)

// Agent is a hiring principal acting on behalf of an AI system.
type Agent struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Domain           string           `json:"domain,omitempty"`
	DomainToken      string           `json:"domain_token,omitempty"`
	DomainVerified   bool             `json:"domain_verified"`
	Status           AgentStatus      `json:"status"`
	Tier             Tier             `json:"tier"`
	TierExpiresAt    *time.Time       `json:"tier_expires_at,omitempty"`
	ActivationMethod ActivationMethod `json:"activation_method,omitempty"`
	PromoClaimed     bool             `json:"promo_claimed"`
	PayerAddress     string           `json:"payer_address,omitempty"`
	WebhookURL       string           `json:"webhook_url,omitempty"`
	WebhookSecret    string           `json:"webhook_secret,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ActivatedAt      *time.Time       `json:"activated_at,omitempty"`
}

// NewAgent returns a freshly registered agent: PENDING with no tier.
func NewAgent(id, name string, now time.Time) Agent {
	return Agent{
		ID:        id,
		Name:      name,
		Status:    AgentPending,
		Tier:      TierNone,
		CreatedAt: now,
	}
}

// EffectiveStatus treats an agent whose tier lapsed as PENDING.
func (a Agent) EffectiveStatus(now time.Time) AgentStatus {
	if a.Status != AgentActive {
		return AgentPending
	}
	if a.TierExpiresAt != nil && !now.Before(*a.TierExpiresAt) {
		return AgentPending
	}
	return AgentActive
}

// EffectiveTier is NONE once the tier has lapsed.
func (a Agent) EffectiveTier(now time.Time) Tier {
	if a.EffectiveStatus(now) != AgentActive {
		return TierNone
	}
	return a.Tier
}

// Activate moves the agent to ACTIVE at tier for the tier's fixed duration.
func (a *Agent) Activate(method ActivationMethod, tier Tier, now time.Time) {
	exp := now.Add(TierDuration(tier))
	a.Status = AgentActive
	a.Tier = tier
	a.TierExpiresAt = &exp
	a.ActivationMethod = method
	a.ActivatedAt = &now
}

// ClaimPromo upgrades an active BASIC agent to PRO. Global capacity is
// enforced by the caller.
func (a *Agent) ClaimPromo(now time.Time) error {
	if a.PromoClaimed {
		return Errorf(CodePromoAlreadyClaimed, "promotional upgrade already claimed")
	}
	if a.EffectiveStatus(now) != AgentActive || a.Tier != TierBasic {
		return Errorf(CodeTierIneligible, "promotional upgrade requires an active BASIC agent (current tier %s)", a.EffectiveTier(now))
	}
	a.Activate(ActivationPromo, TierPro, now)
	a.PromoClaimed = true
	return nil
}

// Redacted strips secrets before the agent leaves the backend.
func (a Agent) Redacted() Agent {
	a.WebhookSecret = ""
	return a
}
