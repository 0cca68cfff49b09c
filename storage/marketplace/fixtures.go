package marketplace

import (
	"context"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// SeedHumans returns demo worker profiles for local development.
func SeedHumans() []hiring.Human {
	created := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	nyc := hiring.Coordinates{Lat: 40.7128, Lng: -74.0060}
	lisbon := hiring.Coordinates{Lat: 38.7223, Lng: -9.1393}

	return []hiring.Human{
		{
			ID:           "human-ana-ferreira",
			Name:         "Ana Ferreira",
			Bio:          "Product photographer and local errand runner.",
			Skills:       []string{"photography", "delivery", "retail-audit"},
			Equipment:    []string{"DSLR camera", "car"},
			Languages:    []string{"Portuguese", "English"},
			HourlyRate:   2500,
			Availability: "weekdays",
			Location:     hiring.Location{City: "Lisbon", Country: "PT", Coordinates: &lisbon},
			WorkModes:    []hiring.WorkMode{hiring.WorkOnsite, hiring.WorkHybrid},
			Rating:       4.8,
			ReviewCount:  37,
			Verified:     true,
			Private: hiring.HumanPrivate{
				Contact: hiring.Contact{Email: "ana@example.com", Telegram: "@ana_f"},
				Wallets: []hiring.Wallet{{Network: "base", Address: "0x1111111111111111111111111111111111111111"}},
			},
			CreatedAt: created,
		},
		{
			ID:                 "human-marcus-lee",
			Name:               "Marcus Lee",
			Bio:                "Handyman, furniture assembly and on-site inspections.",
			Skills:             []string{"plumbing", "assembly", "inspection"},
			Equipment:          []string{"toolkit", "van"},
			Languages:          []string{"English"},
			HourlyRate:         4500,
			Availability:       "evenings and weekends",
			Location:           hiring.Location{City: "New York", Country: "US", Coordinates: &nyc},
			WorkModes:          []hiring.WorkMode{hiring.WorkOnsite},
			Rating:             4.6,
			ReviewCount:        12,
			Verified:           true,
			MinOfferPrice:      2000,
			MaxOfferDistanceKm: 40,
			Private: hiring.HumanPrivate{
				Contact:     hiring.Contact{Phone: "+1-555-0100"},
				Wallets:     []hiring.Wallet{{Network: "base", Address: "0x2222222222222222222222222222222222222222"}},
				FiatHandles: map[string]string{"venmo": "@marcus-lee"},
			},
			CreatedAt: created,
		},
		{
			ID:           "human-priya-nair",
			Name:         "Priya Nair",
			Bio:          "Remote data labeling, transcription and QA testing.",
			Skills:       []string{"transcription", "data-labeling", "qa-testing"},
			Languages:    []string{"English", "Hindi", "Malayalam"},
			HourlyRate:   1800,
			Availability: "flexible",
			Location:     hiring.Location{City: "Kochi", Country: "IN"},
			WorkModes:    []hiring.WorkMode{hiring.WorkRemote},
			Rating:       4.9,
			ReviewCount:  58,
			Private: hiring.HumanPrivate{
				Contact: hiring.Contact{Email: "priya@example.com"},
				Socials: map[string]string{"linkedin": "https://linkedin.com/in/priya-nair"},
				Wallets: []hiring.Wallet{
					{Network: "base", Address: "0x3333333333333333333333333333333333333333"},
					{Network: "polygon", Address: "0x3333333333333333333333333333333333333333"},
				},
			},
			CreatedAt: created,
		},
	}
}

// Seed writes SeedHumans into store.
func Seed(ctx context.Context, store Store) error {
	return store.InTx(ctx, func(tx Tx) error {
		for _, h := range SeedHumans() {
			if err := tx.PutHuman(ctx, h); err != nil {
				return err
			}
		}
		return nil
	})
}
