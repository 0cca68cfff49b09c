package hiring

import (
	"errors"
	"testing"
	"time"
)

func TestValidateListing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		budget  Cents
		expires time.Time
		want    Code
	}{
		{"ok", 500, now.Add(24 * time.Hour), ""},
		{"budget too low", 499, now.Add(24 * time.Hour), CodeBudgetTooLow},
		{"expiry now", 1000, now, CodeExpiryInPast},
		{"expiry past", 1000, now.Add(-time.Minute), CodeExpiryInPast},
		{"expiry at horizon", 1000, now.Add(MaxListingHorizon), ""},
		{"expiry too far", 1000, now.Add(MaxListingHorizon + time.Second), CodeExpiryTooFar},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateListing(tc.budget, tc.expires, now, 0)
			if CodeOf(err) != tc.want {
				t.Fatalf("ValidateListing() = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestListingApplyAndOffer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Listing{ID: "l1", Status: ListingOpen, ExpiresAt: now.Add(time.Hour), MaxApplicants: 1}

	if err := l.CheckApply(now); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	l.ApplicationCount++
	if err := l.CheckApply(now); !errors.Is(err, ErrListingFull) {
		t.Fatalf("expected LISTING_FULL, got %v", err)
	}

	app := Application{ID: "a1", Status: ApplicationPending}
	if err := l.CheckOffer(now); err != nil {
		t.Fatalf("offer check: %v", err)
	}
	if err := app.Offer("job-1", now); err != nil {
		t.Fatalf("offer: %v", err)
	}
	l.Close(now)
	if l.Status != ListingClosed {
		t.Fatalf("expected CLOSED, got %s", l.Status)
	}
	if err := app.Offer("job-2", now); !errors.Is(err, ErrApplicationNotPending) {
		t.Fatalf("expected APPLICATION_NOT_PENDING, got %v", err)
	}
	if err := l.CheckOffer(now); err != nil {
		t.Fatalf("closed listing should still accept offers: %v", err)
	}
	if err := l.CheckApply(now); !errors.Is(err, ErrListingNotOpen) {
		t.Fatalf("closed listing accepted an application: %v", err)
	}
	if err := l.Cancel(now); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ALREADY_CLOSED, got %v", err)
	}
}

func TestListingExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Listing{Status: ListingOpen, ExpiresAt: now}
	if l.EffectiveStatus(now) != ListingExpired {
		t.Fatalf("listing at its expiry should read as EXPIRED")
	}
	if err := l.CheckApply(now); !errors.Is(err, ErrListingNotOpen) {
		t.Fatalf("expected LISTING_NOT_OPEN, got %v", err)
	}
	if err := l.CheckOffer(now); !errors.Is(err, ErrListingNotOpen) {
		t.Fatalf("expected LISTING_NOT_OPEN for offer, got %v", err)
	}
	if !l.Expire(now) || l.Status != ListingExpired {
		t.Fatalf("Expire did not persist the transition")
	}
	if l.Expire(now) {
		t.Fatalf("Expire reported a change twice")
	}
}

func TestListingFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	berlin := Coordinates{Lat: 52.52, Lng: 13.405}
	potsdam := Coordinates{Lat: 52.39, Lng: 13.06}
	paris := Coordinates{Lat: 48.8566, Lng: 2.3522}

	l := Listing{
		Status:    ListingOpen,
		Category:  "delivery",
		Budget:    2500,
		ExpiresAt: now.Add(time.Hour),
		Requirements: Requirements{
			Skills:      []string{"Driving", "Photography"},
			Coordinates: &berlin,
			WorkMode:    WorkOnsite,
		},
	}
	cases := []struct {
		name   string
		filter ListingFilter
		want   bool
	}{
		{"empty", ListingFilter{}, true},
		{"skill any case", ListingFilter{Skills: []string{"photography"}}, true},
		{"skill miss", ListingFilter{Skills: []string{"welding"}}, false},
		{"category", ListingFilter{Category: "Delivery"}, true},
		{"work mode miss", ListingFilter{WorkMode: WorkRemote}, false},
		{"budget range", ListingFilter{MinBudget: 2000, MaxBudget: 3000}, true},
		{"budget below", ListingFilter{MinBudget: 3000}, false},
		{"near", ListingFilter{Near: &potsdam, RadiusKm: 50}, true},
		{"far", ListingFilter{Near: &paris, RadiusKm: 50}, false},
		{"status closed", ListingFilter{Status: ListingClosed}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(l, now); got != tc.want {
				t.Fatalf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClampPage(t *testing.T) {
	if ClampPage(0) != DefaultPageSize || ClampPage(500) != MaxPageSize || ClampPage(7) != 7 {
		t.Fatalf("ClampPage bounds wrong")
	}
}
