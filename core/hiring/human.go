package hiring

import (
	"math"
	"slices"
	"strings"
	"time"
)

type WorkMode string

const (
	WorkRemote WorkMode = "REMOTE"
	WorkOnsite WorkMode = "ONSITE"
	WorkHybrid WorkMode = "HYBRID"
)

func (m WorkMode) Valid() bool {
	switch m {
	case WorkRemote, WorkOnsite, WorkHybrid:
		return true
	}
	return false
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(a, b Coordinates) float64 {
	rad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLng := (b.Lng - a.Lng) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

type Location struct {
	City        string       `json:"city,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Contact struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Telegram string `json:"telegram,omitempty"`
}

type Wallet struct {
	Network string `json:"network"`
	Address string `json:"address"`
}

// HumanPrivate holds the fields only the gated full-profile read reveals.
type HumanPrivate struct {
	Contact     Contact           `json:"contact"`
	Socials     map[string]string `json:"socials,omitempty"`
	Wallets     []Wallet          `json:"wallets,omitempty"`
	FiatHandles map[string]string `json:"fiat_handles,omitempty"`
}

// Human is a hireable person. Owned by the human's own account.
type Human struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Bio                string       `json:"bio,omitempty"`
	Skills             []string     `json:"skills"`
	Equipment          []string     `json:"equipment,omitempty"`
	Languages          []string     `json:"languages,omitempty"`
	HourlyRate         Cents        `json:"hourly_rate_cents"`
	Availability       string       `json:"availability,omitempty"`
	Location           Location     `json:"location"`
	WorkModes          []WorkMode   `json:"work_modes,omitempty"`
	Rating             float64      `json:"rating"`
	ReviewCount        int          `json:"review_count"`
	Verified           bool         `json:"verified"`
	MinOfferPrice      Cents        `json:"min_offer_price_cents,omitempty"`
	MaxOfferDistanceKm float64      `json:"max_offer_distance_km,omitempty"`
	Private            HumanPrivate `json:"private"`
	CreatedAt          time.Time    `json:"created_at"`
}

// WalletFor returns the human's payout address on network.
func (h Human) WalletFor(network string) (string, bool) {
	for _, w := range h.Private.Wallets {
		if strings.EqualFold(w.Network, network) {
			return w.Address, true
		}
	}
	return "", false
}

// AddRating folds a new review into the reputation aggregate.
func (h *Human) AddRating(rating int) {
	total := h.Rating*float64(h.ReviewCount) + float64(rating)
	h.ReviewCount++
	h.Rating = math.Round(total/float64(h.ReviewCount)*100) / 100
}

// PublicProfile is what any caller may see.
type PublicProfile struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Bio                string     `json:"bio,omitempty"`
	Skills             []string   `json:"skills"`
	Equipment          []string   `json:"equipment,omitempty"`
	Languages          []string   `json:"languages,omitempty"`
	HourlyRate         Cents      `json:"hourly_rate_cents"`
	Availability       string     `json:"availability,omitempty"`
	City               string     `json:"city,omitempty"`
	Country            string     `json:"country,omitempty"`
	WorkModes          []WorkMode `json:"work_modes,omitempty"`
	Rating             float64    `json:"rating"`
	ReviewCount        int        `json:"review_count"`
	Verified           bool       `json:"verified"`
	MinOfferPrice      Cents      `json:"min_offer_price_cents,omitempty"`
	MaxOfferDistanceKm float64    `json:"max_offer_distance_km,omitempty"`
}

func (h Human) Public() PublicProfile {
	return PublicProfile{
		ID:                 h.ID,
		Name:               h.Name,
		Bio:                h.Bio,
		Skills:             h.Skills,
		Equipment:          h.Equipment,
		Languages:          h.Languages,
		HourlyRate:         h.HourlyRate,
		Availability:       h.Availability,
		City:               h.Location.City,
		Country:            h.Location.Country,
		WorkModes:          h.WorkModes,
		Rating:             h.Rating,
		ReviewCount:        h.ReviewCount,
		Verified:           h.Verified,
		MinOfferPrice:      h.MinOfferPrice,
		MaxOfferDistanceKm: h.MaxOfferDistanceKm,
	}
}

// PaymentDetails are unlocked once the human accepted one of the agent's jobs.
type PaymentDetails struct {
	Wallets     []Wallet          `json:"wallets,omitempty"`
	FiatHandles map[string]string `json:"fiat_handles,omitempty"`
}

// FullProfile is the gated read of a human.
type FullProfile struct {
	PublicProfile
	Contact         Contact           `json:"contact"`
	Socials         map[string]string `json:"socials,omitempty"`
	PaymentUnlocked bool              `json:"payment_unlocked"`
	Payment         *PaymentDetails   `json:"payment,omitempty"`
}

func (h Human) Full(paymentUnlocked bool) FullProfile {
	fp := FullProfile{
		PublicProfile:   h.Public(),
		Contact:         h.Private.Contact,
		Socials:         h.Private.Socials,
		PaymentUnlocked: paymentUnlocked,
	}
	if paymentUnlocked {
		fp.Payment = h.PaymentDetails()
	}
	return fp
}

func (h Human) PaymentDetails() *PaymentDetails {
	return &PaymentDetails{Wallets: h.Private.Wallets, FiatHandles: h.Private.FiatHandles}
}

// HumanFilter narrows search_humans results.
type HumanFilter struct {
	Skills    []string     `json:"skills,omitempty"`
	Equipment []string     `json:"equipment,omitempty"`
	Language  string       `json:"language,omitempty"`
	WorkMode  WorkMode     `json:"work_mode,omitempty"`
	MaxRate   Cents        `json:"max_rate_cents,omitempty"`
	Near      *Coordinates `json:"near,omitempty"`
	RadiusKm  float64      `json:"radius_km,omitempty"`
	Verified  bool         `json:"verified,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}

// Matches reports whether h satisfies every filter criterion.
func (f HumanFilter) Matches(h Human) bool {
	if !matchesAny(h.Skills, f.Skills) || !matchesAny(h.Equipment, f.Equipment) {
		return false
	}
	if f.Language != "" && !slices.ContainsFunc(h.Languages, func(l string) bool { return strings.EqualFold(l, f.Language) }) {
		return false
	}
	if f.WorkMode != "" && !slices.Contains(h.WorkModes, f.WorkMode) {
		return false
	}
	if f.MaxRate > 0 && h.HourlyRate > f.MaxRate {
		return false
	}
	if f.Verified && !h.Verified {
		return false
	}
	if f.Near != nil && f.RadiusKm > 0 {
		if h.Location.Coordinates == nil || DistanceKm(*f.Near, *h.Location.Coordinates) > f.RadiusKm {
			return false
		}
	}
	return true
}

// matchesAny is true when want is empty or any element of want is in have.
func matchesAny(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if slices.ContainsFunc(have, func(s string) bool { return strings.EqualFold(s, w) }) {
			return true
		}
	}
	return false
}

// CheckOfferFilters applies the human's spam filters to an incoming offer.
func (h Human) CheckOfferFilters(price Cents, at *Coordinates) error {
	if h.MinOfferPrice > 0 && price < h.MinOfferPrice {
		return (&Error{
			Code:    CodeBelowMinOfferPrice,
			Message: "offer of " + price.String() + " is below this human's minimum of " + h.MinOfferPrice.String(),
		}).WithDetail("min_offer_price_cents", int64(h.MinOfferPrice))
	}
	if h.MaxOfferDistanceKm <= 0 || h.Location.Coordinates == nil {
		return nil
	}
	if at == nil {
		return Errorf(CodeCoordinatesRequired, "this human only accepts offers within %.0f km; supply the job location", h.MaxOfferDistanceKm)
	}
	if d := DistanceKm(*at, *h.Location.Coordinates); d > h.MaxOfferDistanceKm {
		return (&Error{
			Code:    CodeOutOfRange,
			Message: "job location is outside this human's accepted distance",
		}).WithDetail("distance_km", math.Round(d)).WithDetail("max_offer_distance_km", h.MaxOfferDistanceKm)
	}
	return nil
}
