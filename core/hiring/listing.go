package hiring

import (
	"strings"
	"time"
)

const (
	MinListingBudget  Cents = 500
	MaxListingHorizon       = 90 * 24 * time.Hour

	DefaultPageSize = 20
	MaxPageSize     = 50
)

// ClampPage bounds a requested page size.
func ClampPage(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

type ListingStatus string

const (
	ListingOpen      ListingStatus = "OPEN"
	ListingClosed    ListingStatus = "CLOSED"
	ListingCancelled ListingStatus = "CANCELLED"
	ListingExpired   ListingStatus = "EXPIRED"
)

type Requirements struct {
	Skills      []string     `json:"skills,omitempty"`
	Equipment   []string     `json:"equipment,omitempty"`
	Location    string       `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	RadiusKm    float64      `json:"radius_km,omitempty"`
	WorkMode    WorkMode     `json:"work_mode,omitempty"`
}

// Listing is a public posting seeking applicants.
type Listing struct {
	ID               string        `json:"id"`
	AgentID          string        `json:"agent_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Category         string        `json:"category,omitempty"`
	Budget           Cents         `json:"budget_cents"`
	Requirements     Requirements  `json:"requirements"`
	ExpiresAt        time.Time     `json:"expires_at"`
	MaxApplicants    int           `json:"max_applicants,omitempty"`
	ApplicationCount int           `json:"application_count"`
	Status           ListingStatus `json:"status"`
	Callback         *Callback     `json:"callback,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty"`
}

// ValidateListing checks budget and expiry bounds for a new listing.
func ValidateListing(budget Cents, expiresAt, now time.Time, maxApplicants int) error {
	if budget < MinListingBudget {
		return (&Error{
			Code:    CodeBudgetTooLow,
			Message: "budget " + budget.String() + " is below the minimum of " + MinListingBudget.String(),
		}).WithDetail("min_budget_cents", int64(MinListingBudget))
	}
	if !expiresAt.After(now) {
		return Errorf(CodeExpiryInPast, "expiry must be in the future")
	}
	if expiresAt.Sub(now) > MaxListingHorizon {
		return Errorf(CodeExpiryTooFar, "expiry may be at most %d days ahead", int(MaxListingHorizon.Hours()/24))
	}
	if maxApplicants < 0 {
		return Invalid("max_applicants", "max applicants cannot be negative")
	}
	return nil
}

// EffectiveStatus reports OPEN listings past their expiry as EXPIRED.
func (l Listing) EffectiveStatus(now time.Time) ListingStatus {
	if l.Status == ListingOpen && !now.Before(l.ExpiresAt) {
		return ListingExpired
	}
	return l.Status
}

// Expire persists the lazy EXPIRED transition. It reports whether anything changed.
func (l *Listing) Expire(now time.Time) bool {
	if l.Status != ListingOpen || now.Before(l.ExpiresAt) {
		return false
	}
	l.Status = ListingExpired
	at := now
	l.ClosedAt = &at
	return true
}

// CheckApply validates that a human may apply right now.
func (l *Listing) CheckApply(now time.Time) error {
	if st := l.EffectiveStatus(now); st != ListingOpen {
		return ErrListingNotOpen.WithDetail("status", string(st))
	}
	if l.MaxApplicants > 0 && l.ApplicationCount >= l.MaxApplicants {
		return ErrListingFull.WithDetail("max_applicants", l.MaxApplicants)
	}
	return nil
}

// CheckOffer allows offers on OPEN and CLOSED listings only.
func (l *Listing) CheckOffer(now time.Time) error {
	switch st := l.EffectiveStatus(now); st {
	case ListingOpen, ListingClosed:
		return nil
	default:
		return ErrListingNotOpen.WithDetail("status", string(st))
	}
}

// Close is applied after the first successful offer; later offers leave it CLOSED.
func (l *Listing) Close(now time.Time) {
	if l.Status != ListingOpen {
		return
	}
	l.Status = ListingClosed
	at := now
	l.ClosedAt = &at
}

// Cancel withdraws an OPEN listing.
func (l *Listing) Cancel(now time.Time) error {
	if st := l.EffectiveStatus(now); st != ListingOpen {
		return ErrAlreadyClosed.WithDetail("status", string(st))
	}
	l.Status = ListingCancelled
	at := now
	l.ClosedAt = &at
	return nil
}

func (l Listing) Redacted() Listing {
	if l.Callback != nil {
		c := *l.Callback
		c.Secret = ""
		l.Callback = &c
	}
	return l
}

// ListingFilter narrows browse_listings.
type ListingFilter struct {
	Skills    []string      `json:"skills,omitempty"`
	Category  string        `json:"category,omitempty"`
	WorkMode  WorkMode      `json:"work_mode,omitempty"`
	MinBudget Cents         `json:"min_budget_cents,omitempty"`
	MaxBudget Cents         `json:"max_budget_cents,omitempty"`
	Near      *Coordinates  `json:"near,omitempty"`
	RadiusKm  float64       `json:"radius_km,omitempty"`
	Status    ListingStatus `json:"status,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Offset    int           `json:"offset,omitempty"`
}

// Matches applies every criterion; Status defaults to OPEN.
func (f ListingFilter) Matches(l Listing, now time.Time) bool {
	want := f.Status
	if want == "" {
		want = ListingOpen
	}
	if l.EffectiveStatus(now) != want {
		return false
	}
	if !matchesAny(l.Requirements.Skills, f.Skills) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(l.Category, f.Category) {
		return false
	}
	if f.WorkMode != "" && l.Requirements.WorkMode != "" && l.Requirements.WorkMode != f.WorkMode {
		return false
	}
	if f.MinBudget > 0 && l.Budget < f.MinBudget {
		return false
	}
	if f.MaxBudget > 0 && l.Budget > f.MaxBudget {
		return false
	}
	if f.Near != nil && f.RadiusKm > 0 {
		if l.Requirements.Coordinates == nil {
			return l.Requirements.WorkMode == WorkRemote
		}
		if DistanceKm(*f.Near, *l.Requirements.Coordinates) > f.RadiusKm {
			return false
		}
	}
	return true
}

// ListingPage is one page of browse results.
type ListingPage struct {
	Listings []Listing `json:"listings"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationOffered  ApplicationStatus = "OFFERED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// Application is a human's response to a listing.
type Application struct {
	ID        string            `json:"id"`
	ListingID string            `json:"listing_id"`
	HumanID   string            `json:"human_id"`
	Pitch     string            `json:"pitch"`
	Status    ApplicationStatus `json:"status"`
	JobID     string            `json:"job_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Offer converts the application into the given job.
func (a *Application) Offer(jobID string, now time.Time) error {
	if a.Status != ApplicationPending {
		return ErrApplicationNotPending.WithDetail("status", string(a.Status))
	}
	a.Status = ApplicationOffered
	a.JobID = jobID
	a.UpdatedAt = now
	return nil
}

// Reject is applied to pending applications when their listing is cancelled.
func (a *Application) Reject(now time.Time) bool {
	if a.Status != ApplicationPending {
		return false
	}
	a.Status = ApplicationRejected
	a.UpdatedAt = now
	return true
}
