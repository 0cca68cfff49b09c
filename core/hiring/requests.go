package hiring

import "time"

// Request and view shapes exchanged between the REST API and its clients.

type RegisterAgentRequest struct {
	Name          string `json:"name"`
	Domain        string `json:"domain,omitempty"`
	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
	PayerAddress  string `json:"payer_address,omitempty"`
}

type RegisterAgentResponse struct {
	Agent     Agent    `json:"agent"`
	APIKey    string   `json:"api_key"`
	NextSteps []string `json:"next_steps,omitempty"`
}

type QuotaStatus struct {
	Operation     Operation `json:"operation"`
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	WindowSeconds int64     `json:"window_seconds"`
	ResetAt       time.Time `json:"reset_at,omitempty"`
	PerCallPrice  Cents     `json:"per_call_price_cents"`
}

type AgentStatusView struct {
	Agent     Agent         `json:"agent"`
	Quotas    []QuotaStatus `json:"quotas,omitempty"`
	NextSteps []string      `json:"next_steps,omitempty"`
}

type ActivationCodeView struct {
	Code         string    `json:"code"`
	ExpiresAt    time.Time `json:"expires_at"`
	Instructions string    `json:"instructions"`
}

type VerifySocialRequest struct {
	PostURL string `json:"post_url"`
}

type VerifyPaymentRequest struct {
	TxHash  string `json:"tx_hash"`
	Network string `json:"network"`
}

// PaymentIntentRequest names the wallet the activation deposit will come
// from. Empty falls back to the agent's registered payer address.
type PaymentIntentRequest struct {
	PayerAddress string `json:"payer_address,omitempty"`
}

// PaymentIntent is the deposit target for PRO activation. Only a transfer
// from PayerAddress mined after CreatedAt settles it.
type PaymentIntent struct {
	AgentID        string    `json:"agent_id"`
	PayerAddress   string    `json:"payer_address"`
	DepositAddress string    `json:"deposit_address"`
	Network        string    `json:"network"`
	Token          string    `json:"token"`
	Amount         Cents     `json:"amount_cents"`
	AmountUnits    string    `json:"amount_units"`
	PaymentURI     string    `json:"payment_uri"`
	QRCodePNG      string    `json:"qr_code_png_base64,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type OfferRequest struct {
	HumanID     string       `json:"human_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category,omitempty"`
	Price       Cents        `json:"price_cents"`
	Terms       PaymentTerms `json:"terms"`
	Location    *Coordinates `json:"location,omitempty"`
	Callback    *Callback    `json:"callback,omitempty"`
}

// Validate performs the local checks that need no backend state.
func (r OfferRequest) Validate() error {
	if r.HumanID == "" {
		return Invalid("human_id", "human_id is required")
	}
	if r.Title == "" {
		return Invalid("title", "title is required")
	}
	if r.Price <= 0 {
		return Invalid("price", "price must be positive")
	}
	if r.Location != nil && !r.Location.Valid() {
		return Invalid("location", "coordinates are out of range")
	}
	if err := r.Terms.Validate(); err != nil {
		return err
	}
	return r.Callback.Validate()
}

type MarkPaidRequest struct {
	TxHash  string `json:"tx_hash"`
	Network string `json:"network"`
	Amount  Cents  `json:"amount_cents"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type MessageRequest struct {
	Body string `json:"body"`
}

type StartStreamRequest struct {
	SenderAddress string `json:"sender_address"`
	Network       string `json:"network"`
}

type TickRequest struct {
	TxHash string `json:"tx_hash"`
}

// JobView is a job as its owning agent sees it.
type JobView struct {
	Job       Job             `json:"job"`
	Human     *PublicProfile  `json:"human,omitempty"`
	Payment   *PaymentDetails `json:"human_payment,omitempty"`
	Stream    *StreamSnapshot `json:"stream_snapshot,omitempty"`
	NextSteps []string        `json:"next_steps,omitempty"`
}

type ListingRequest struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Category      string       `json:"category,omitempty"`
	Budget        Cents        `json:"budget_cents"`
	Requirements  Requirements `json:"requirements"`
	ExpiresAt     time.Time    `json:"expires_at"`
	MaxApplicants int          `json:"max_applicants,omitempty"`
	Callback      *Callback    `json:"callback,omitempty"`
}

func (r ListingRequest) Validate() error {
	if r.Title == "" {
		return Invalid("title", "title is required")
	}
	if r.Requirements.WorkMode != "" && !r.Requirements.WorkMode.Valid() {
		return Invalid("work_mode", "work mode must be REMOTE, ONSITE or HYBRID")
	}
	if r.Requirements.Coordinates != nil && !r.Requirements.Coordinates.Valid() {
		return Invalid("coordinates", "coordinates are out of range")
	}
	if r.MaxApplicants < 0 {
		return Invalid("max_applicants", "max applicants cannot be negative")
	}
	return r.Callback.Validate()
}

type ListingView struct {
	Listing   Listing  `json:"listing"`
	NextSteps []string `json:"next_steps,omitempty"`
}

// ListingOfferRequest converts an application into a job. Terms default to ONE_TIME.
type ListingOfferRequest struct {
	Terms    *PaymentTerms `json:"terms,omitempty"`
	Location *Coordinates  `json:"location,omitempty"`
	Callback *Callback     `json:"callback,omitempty"`
}

type ListingOfferResponse struct {
	Application Application `json:"application"`
	Listing     Listing     `json:"listing"`
	Job         JobView     `json:"job"`
}

type ApplicationView struct {
	Application Application   `json:"application"`
	Applicant   PublicProfile `json:"applicant"`
}

type ApplyRequest struct {
	Pitch string `json:"pitch"`
}

type DisputeRequest struct {
	Reason string `json:"reason"`
}

type RegisterHumanResponse struct {
	Human  Human  `json:"human"`
	APIKey string `json:"api_key"`
}

// HumanPage is one page of search_humans results.
type HumanPage struct {
	Humans []PublicProfile `json:"humans"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// List envelopes.

type JobList struct {
	Jobs []JobView `json:"jobs"`
}

type MessageList struct {
	Messages []Message `json:"messages"`
}

type ListingList struct {
	Listings []ListingView `json:"listings"`
}

type ApplicationList struct {
	Applications []ApplicationView `json:"applications"`
}

type SweepResult struct {
	Expired int `json:"expired"`
}
