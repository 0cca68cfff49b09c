package mcp

import (
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/client"
	"github.com/human-pages-ai/humanpages/core/hiring"
)

// Typed argument structs, one per tool family. Money arguments are USD
// amounts and become cents before they reach the client.

type agentArgs struct {
	AgentKey     string `json:"agent_key"`
	PaymentProof string `json:"payment_proof,omitempty"`
}

func (a agentArgs) creds() client.Credentials {
	return client.Credentials{AgentKey: strings.TrimSpace(a.AgentKey), PaymentProof: strings.TrimSpace(a.PaymentProof)}
}

type registerAgentArgs struct {
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
	PayerAddress  string `json:"payer_address"`
}

type paymentIntentArgs struct {
	agentArgs
	PayerAddress string `json:"payer_address"`
}

type verifySocialArgs struct {
	agentArgs
	PostURL string `json:"post_url"`
}

func (a verifySocialArgs) validate() error {
	return hiring.ValidateHTTPURL("post_url", a.PostURL)
}

type verifyPaymentArgs struct {
	agentArgs
	TxHash  string `json:"tx_hash"`
	Network string `json:"network"`
}

func (a verifyPaymentArgs) validate() error {
	if strings.TrimSpace(a.TxHash) == "" {
		return hiring.Invalid("tx_hash", "tx_hash is required")
	}
	return nil
}

// point is an optional lat/lng pair; both or neither must be set.
type point struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

func (p point) coordinates() (*hiring.Coordinates, error) {
	if p.Lat == nil && p.Lng == nil {
		return nil, nil
	}
	if p.Lat == nil || p.Lng == nil {
		return nil, hiring.Invalid("lat", "lat and lng must be given together")
	}
	c := &hiring.Coordinates{Lat: *p.Lat, Lng: *p.Lng}
	if !c.Valid() {
		return nil, hiring.Invalid("lat", "coordinates are out of range")
	}
	return c, nil
}

type searchHumansArgs struct {
	point
	Skills    []string `json:"skills"`
	Equipment []string `json:"equipment"`
	Language  string   `json:"language"`
	WorkMode  string   `json:"work_mode"`
	MaxRate   float64  `json:"max_rate_usd"`
	RadiusKm  float64  `json:"radius_km"`
	Verified  bool     `json:"verified"`
	Limit     int      `json:"limit"`
	Offset    int      `json:"offset"`
}

func (a searchHumansArgs) filter() (hiring.HumanFilter, error) {
	near, err := a.coordinates()
	if err != nil {
		return hiring.HumanFilter{}, err
	}
	mode, err := workMode(a.WorkMode)
	if err != nil {
		return hiring.HumanFilter{}, err
	}
	if a.MaxRate < 0 || a.RadiusKm < 0 || a.Limit < 0 || a.Offset < 0 {
		return hiring.HumanFilter{}, hiring.Invalid("limit", "numeric filters cannot be negative")
	}
	return hiring.HumanFilter{
		Skills:    a.Skills,
		Equipment: a.Equipment,
		Language:  a.Language,
		WorkMode:  mode,
		MaxRate:   hiring.Dollars(a.MaxRate),
		Near:      near,
		RadiusKm:  a.RadiusKm,
		Verified:  a.Verified,
		Limit:     a.Limit,
		Offset:    a.Offset,
	}, nil
}

func workMode(raw string) (hiring.WorkMode, error) {
	if raw == "" {
		return "", nil
	}
	m := hiring.WorkMode(strings.ToUpper(raw))
	if !m.Valid() {
		return "", hiring.Invalid("work_mode", "work_mode must be REMOTE, ONSITE or HYBRID")
	}
	return m, nil
}

type humanArgs struct {
	HumanID string `json:"human_id"`
}

type fullProfileArgs struct {
	agentArgs
	HumanID string `json:"human_id"`
}

type jobArgs struct {
	agentArgs
	JobID string `json:"job_id"`
}

// termsArgs is the flat tool-level view of hiring.PaymentTerms. Stream
// settings are rejected unless payment_mode is STREAM.
type termsArgs struct {
	PaymentMode    string  `json:"payment_mode"`
	StreamMethod   string  `json:"stream_method"`
	StreamInterval string  `json:"stream_interval"`
	StreamRate     float64 `json:"stream_rate_usd"`
	StreamMaxTicks *int    `json:"stream_max_ticks,omitempty"`
}

func (a termsArgs) terms() (hiring.PaymentTerms, error) {
	mode := hiring.PaymentMode(strings.ToUpper(a.PaymentMode))
	switch mode {
	case "", hiring.PaymentOneTime:
		if a.StreamMethod != "" || a.StreamInterval != "" || a.StreamRate != 0 || a.StreamMaxTicks != nil {
			return hiring.PaymentTerms{}, hiring.Invalid("payment_mode", "stream settings require payment_mode STREAM")
		}
		return hiring.OneTime(), nil
	case hiring.PaymentStream:
		t := hiring.Streaming(hiring.StreamTerms{
			Method:   hiring.StreamMethod(strings.ToUpper(a.StreamMethod)),
			Interval: hiring.Interval(strings.ToUpper(a.StreamInterval)),
			Rate:     hiring.Dollars(a.StreamRate),
			MaxTicks: a.StreamMaxTicks,
		})
		return t, t.Validate()
	}
	return hiring.PaymentTerms{}, hiring.Invalid("payment_mode", "payment_mode must be ONE_TIME or STREAM")
}

type callbackArgs struct {
	CallbackURL    string `json:"callback_url"`
	CallbackSecret string `json:"callback_secret"`
}

func (a callbackArgs) callback() (*hiring.Callback, error) {
	if a.CallbackURL == "" && a.CallbackSecret == "" {
		return nil, nil
	}
	cb := &hiring.Callback{URL: a.CallbackURL, Secret: a.CallbackSecret}
	return cb, cb.Validate()
}

type createOfferArgs struct {
	agentArgs
	termsArgs
	callbackArgs
	point
	HumanID     string  `json:"human_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price_usd"`
}

func (a createOfferArgs) request() (hiring.OfferRequest, error) {
	terms, err := a.terms()
	if err != nil {
		return hiring.OfferRequest{}, err
	}
	at, err := a.coordinates()
	if err != nil {
		return hiring.OfferRequest{}, err
	}
	cb, err := a.callback()
	if err != nil {
		return hiring.OfferRequest{}, err
	}
	req := hiring.OfferRequest{
		HumanID:     strings.TrimSpace(a.HumanID),
		Title:       strings.TrimSpace(a.Title),
		Description: a.Description,
		Category:    a.Category,
		Price:       hiring.Dollars(a.Price),
		Terms:       terms,
		Location:    at,
		Callback:    cb,
	}
	return req, req.Validate()
}

type listJobsArgs struct {
	agentArgs
	Status string `json:"status"`
}

type markPaidArgs struct {
	jobArgs
	TxHash  string  `json:"tx_hash"`
	Network string  `json:"network"`
	Amount  float64 `json:"amount_usd"`
}

type cancelJobArgs struct {
	jobArgs
	Reason string `json:"reason"`
}

type reviewArgs struct {
	jobArgs
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (a reviewArgs) validate() error {
	if a.Rating < hiring.MinRating || a.Rating > hiring.MaxRating {
		return hiring.Invalid("rating", "rating must be between %d and %d", hiring.MinRating, hiring.MaxRating)
	}
	return nil
}

type messageArgs struct {
	jobArgs
	Body string `json:"body"`
}

type startStreamArgs struct {
	jobArgs
	SenderAddress string `json:"sender_address"`
	Network       string `json:"network"`
}

func (a startStreamArgs) validate() error {
	if strings.TrimSpace(a.SenderAddress) == "" {
		return hiring.Invalid("sender_address", "sender_address is required")
	}
	if strings.TrimSpace(a.Network) == "" {
		return hiring.Invalid("network", "network is required")
	}
	return nil
}

type tickArgs struct {
	jobArgs
	TxHash string `json:"tx_hash"`
}

func (a tickArgs) validate() error {
	if strings.TrimSpace(a.TxHash) == "" {
		return hiring.Invalid("tx_hash", "tx_hash is required")
	}
	return nil
}

type createListingArgs struct {
	agentArgs
	callbackArgs
	point
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Budget        float64  `json:"budget_usd"`
	Skills        []string `json:"skills"`
	Equipment     []string `json:"equipment"`
	Location      string   `json:"location"`
	RadiusKm      float64  `json:"radius_km"`
	WorkMode      string   `json:"work_mode"`
	ExpiresAt     string   `json:"expires_at"`
	MaxApplicants int      `json:"max_applicants"`
}

func (a createListingArgs) request() (hiring.ListingRequest, error) {
	expires, err := time.Parse(time.RFC3339, strings.TrimSpace(a.ExpiresAt))
	if err != nil {
		return hiring.ListingRequest{}, hiring.Invalid("expires_at", "expires_at must be an RFC 3339 timestamp")
	}
	mode, err := workMode(a.WorkMode)
	if err != nil {
		return hiring.ListingRequest{}, err
	}
	at, err := a.coordinates()
	if err != nil {
		return hiring.ListingRequest{}, err
	}
	cb, err := a.callback()
	if err != nil {
		return hiring.ListingRequest{}, err
	}
	req := hiring.ListingRequest{
		Title:       strings.TrimSpace(a.Title),
		Description: a.Description,
		Category:    a.Category,
		Budget:      hiring.Dollars(a.Budget),
		Requirements: hiring.Requirements{
			Skills:      a.Skills,
			Equipment:   a.Equipment,
			Location:    a.Location,
			Coordinates: at,
			RadiusKm:    a.RadiusKm,
			WorkMode:    mode,
		},
		ExpiresAt:     expires.UTC(),
		MaxApplicants: a.MaxApplicants,
		Callback:      cb,
	}
	return req, req.Validate()
}

type browseListingsArgs struct {
	point
	Skills    []string `json:"skills"`
	Category  string   `json:"category"`
	WorkMode  string   `json:"work_mode"`
	MinBudget float64  `json:"min_budget_usd"`
	MaxBudget float64  `json:"max_budget_usd"`
	RadiusKm  float64  `json:"radius_km"`
	Status    string   `json:"status"`
	Limit     int      `json:"limit"`
	Offset    int      `json:"offset"`
}

func (a browseListingsArgs) filter() (hiring.ListingFilter, error) {
	near, err := a.coordinates()
	if err != nil {
		return hiring.ListingFilter{}, err
	}
	mode, err := workMode(a.WorkMode)
	if err != nil {
		return hiring.ListingFilter{}, err
	}
	if a.MinBudget > 0 && a.MaxBudget > 0 && a.MinBudget > a.MaxBudget {
		return hiring.ListingFilter{}, hiring.Invalid("min_budget_usd", "min_budget_usd exceeds max_budget_usd")
	}
	return hiring.ListingFilter{
		Skills:    a.Skills,
		Category:  a.Category,
		WorkMode:  mode,
		MinBudget: hiring.Dollars(a.MinBudget),
		MaxBudget: hiring.Dollars(a.MaxBudget),
		Near:      near,
		RadiusKm:  a.RadiusKm,
		Status:    hiring.ListingStatus(strings.ToUpper(a.Status)),
		Limit:     a.Limit,
		Offset:    a.Offset,
	}, nil
}

type listingArgs struct {
	ListingID string `json:"listing_id"`
}

type ownedListingArgs struct {
	agentArgs
	ListingID string `json:"listing_id"`
}

type listingOfferArgs struct {
	agentArgs
	termsArgs
	callbackArgs
	point
	ListingID     string `json:"listing_id"`
	ApplicationID string `json:"application_id"`
}

func (a listingOfferArgs) request() (hiring.ListingOfferRequest, error) {
	var req hiring.ListingOfferRequest
	if a.PaymentMode != "" {
		terms, err := a.terms()
		if err != nil {
			return req, err
		}
		req.Terms = &terms
	} else if _, err := a.terms(); err != nil {
		return req, err
	}
	at, err := a.coordinates()
	if err != nil {
		return req, err
	}
	cb, err := a.callback()
	if err != nil {
		return req, err
	}
	req.Location, req.Callback = at, cb
	return req, nil
}

type verifyWebhookArgs struct {
	Secret    string `json:"secret"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func (a verifyWebhookArgs) validate() error {
	switch {
	case a.Secret == "":
		return hiring.Invalid("secret", "secret is required")
	case a.Payload == "":
		return hiring.Invalid("payload", "payload is required")
	case a.Signature == "":
		return hiring.Invalid("signature", "signature is required")
	}
	return nil
}
