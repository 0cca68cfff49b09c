package hiring

import "time"

// Operation is a permission class the trust tier gates and meters.
type Operation string

const (
	OpJobOffer      Operation = "job_offer"
	OpListing       Operation = "listing"
	OpProfileView   Operation = "profile_view"
	OpMessage       Operation = "message"
	OpStreamControl Operation = "stream_control"
	OpJobControl    Operation = "job_control"
)

// Operations lists every metered class in display order.
func Operations() []Operation {
	return []Operation{OpJobOffer, OpListing, OpProfileView, OpMessage, OpStreamControl}
}

// Quota is a count allowed within a rolling window.
type Quota struct {
	Limit  int
	Window time.Duration
}

const (
	day = 24 * time.Hour

	BasicTierDuration = 30 * day
	ProTierDuration   = 30 * day

	ActivationCodeTTL    = 24 * time.Hour
	PaymentIntentTTL     = time.Hour
	ProActivationPrice   = Cents(500)
	DefaultPromoCapacity = 100
	MessagesPerMinute    = 10
	activationCodePrefix = "HP-"
)

var tierQuotas = map[Tier]map[Operation]Quota{
	TierBasic: {
		OpJobOffer:      {Limit: 5, Window: day},
		OpListing:       {Limit: 2, Window: day},
		OpProfileView:   {Limit: 20, Window: day},
		OpMessage:       {Limit: MessagesPerMinute, Window: time.Minute},
		OpStreamControl: {Limit: 60, Window: time.Hour},
	},
	TierPro: {
		OpJobOffer:      {Limit: 50, Window: day},
		OpListing:       {Limit: 20, Window: day},
		OpProfileView:   {Limit: 200, Window: day},
		OpMessage:       {Limit: MessagesPerMinute, Window: time.Minute},
		OpStreamControl: {Limit: 600, Window: time.Hour},
	},
}

// Metered reports whether op draws on a tier quota. OpJobControl, the
// owner's bookkeeping on jobs and listings it already has, needs activation
// but is not metered.
func Metered(op Operation) bool {
	return op != OpJobControl
}

// QuotaFor returns the tier's allowance for op. NONE has no allowance.
func QuotaFor(tier Tier, op Operation) (Quota, bool) {
	q, ok := tierQuotas[tier][op]
	return q, ok
}

var perCallPrices = map[Operation]Cents{
	OpJobOffer:      50,
	OpListing:       100,
	OpProfileView:   10,
	OpMessage:       2,
	OpStreamControl: 5,
	OpJobControl:    1,
}

// PerCallPrice is what a payment proof must cover to bypass the tier for op.
func PerCallPrice(op Operation) Cents {
	return perCallPrices[op]
}

// TierDuration is how long an activation at tier lasts.
func TierDuration(tier Tier) time.Duration {
	switch tier {
	case TierBasic:
		return BasicTierDuration
	case TierPro:
		return ProTierDuration
	}
	return 0
}

// ActivationCodeFormat prefixes every social activation code.
func ActivationCodeFormat(body string) string {
	return activationCodePrefix + body
}
