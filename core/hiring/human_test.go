package hiring

import (
	"math"
	"testing"
	"time"
)

func TestDistanceKm(t *testing.T) {
	berlin := Coordinates{Lat: 52.52, Lng: 13.405}
	paris := Coordinates{Lat: 48.8566, Lng: 2.3522}
	d := DistanceKm(berlin, paris)
	if math.Abs(d-878) > 10 {
		t.Fatalf("Berlin-Paris distance %.1f km, want about 878", d)
	}
	if DistanceKm(berlin, berlin) != 0 {
		t.Fatalf("distance to self should be zero")
	}
}

func TestCheckOfferFilters(t *testing.T) {
	home := Coordinates{Lat: 40.7128, Lng: -74.0060}
	nearby := Coordinates{Lat: 40.73, Lng: -73.99}
	boston := Coordinates{Lat: 42.3601, Lng: -71.0589}

	h := Human{
		MinOfferPrice:      2000,
		MaxOfferDistanceKm: 25,
		Location:           Location{Coordinates: &home},
	}
	cases := []struct {
		name  string
		price Cents
		at    *Coordinates
		want  Code
	}{
		{"below minimum", 1000, &nearby, CodeBelowMinOfferPrice},
		{"missing coordinates", 2500, nil, CodeCoordinatesRequired},
		{"out of range", 2500, &boston, CodeOutOfRange},
		{"ok", 2500, &nearby, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(h.CheckOfferFilters(tc.price, tc.at)); got != tc.want {
				t.Fatalf("CheckOfferFilters() code = %q, want %q", got, tc.want)
			}
		})
	}

	open := Human{}
	if err := open.CheckOfferFilters(1, nil); err != nil {
		t.Fatalf("human without filters rejected offer: %v", err)
	}
}

func TestHumanFilterAndRating(t *testing.T) {
	h := Human{
		Skills:     []string{"Plumbing"},
		Languages:  []string{"English", "Spanish"},
		WorkModes:  []WorkMode{WorkOnsite},
		HourlyRate: 4000,
	}
	if !(HumanFilter{Skills: []string{"plumbing"}, Language: "spanish"}).Matches(h) {
		t.Fatalf("expected match")
	}
	if (HumanFilter{MaxRate: 3000}).Matches(h) {
		t.Fatalf("rate above max should not match")
	}
	if (HumanFilter{WorkMode: WorkRemote}).Matches(h) {
		t.Fatalf("work mode should not match")
	}

	h.AddRating(5)
	h.AddRating(4)
	if h.ReviewCount != 2 || h.Rating != 4.5 {
		t.Fatalf("rating aggregate = %.2f over %d", h.Rating, h.ReviewCount)
	}
}

func TestAgentTierLifecycle(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := NewAgent("a1", "scout", now)
	if a.EffectiveStatus(now) != AgentPending || a.Tier != TierNone {
		t.Fatalf("new agent should be PENDING/NONE")
	}
	if err := a.ClaimPromo(now); CodeOf(err) != CodeTierIneligible {
		t.Fatalf("pending agent promo: expected TIER_INELIGIBLE, got %v", err)
	}

	a.Activate(ActivationSocial, TierBasic, now)
	if a.EffectiveStatus(now) != AgentActive || a.EffectiveTier(now) != TierBasic {
		t.Fatalf("activation failed: %+v", a)
	}
	if a.EffectiveStatus(now.Add(BasicTierDuration)) != AgentPending {
		t.Fatalf("tier should lapse after its duration")
	}

	if err := a.ClaimPromo(now); err != nil {
		t.Fatalf("promo: %v", err)
	}
	if a.Tier != TierPro || !a.PromoClaimed {
		t.Fatalf("promo did not upgrade: %+v", a)
	}
	if err := a.ClaimPromo(now); CodeOf(err) != CodePromoAlreadyClaimed {
		t.Fatalf("expected PROMO_ALREADY_CLAIMED, got %v", err)
	}
}

func TestMoneyConversions(t *testing.T) {
	if Dollars(25) != 2500 || Dollars(19.99) != 1999 {
		t.Fatalf("Dollars rounding wrong")
	}
	if Cents(2505).String() != "$25.05" || Cents(-5).String() != "-$0.05" {
		t.Fatalf("String formatting wrong: %s %s", Cents(2505), Cents(-5))
	}
	if CentsFromUSDC(USDCFromCents(1234)) != 1234 {
		t.Fatalf("USDC conversion not reversible")
	}
}
