package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

func send[T any](ctx context.Context, c *Client, rc call) (T, error) {
	var out T
	err := c.do(ctx, rc, &out)
	return out, err
}

// agentCall runs an agent-authenticated request against /v1 + path.
func agentCall[T any](ctx context.Context, c *Client, cr Credentials, method, path string, body any) (T, error) {
	h, err := agentHeader(cr)
	if err != nil {
		var zero T
		return zero, err
	}
	return send[T](ctx, c, call{method: method, path: "/v1" + path, body: body, header: h})
}

// jobCall addresses /v1/jobs/{id}/suffix.
func jobCall[T any](ctx context.Context, c *Client, cr Credentials, method, jobID, suffix string, body any) (T, error) {
	id, err := segment("job_id", jobID)
	if err != nil {
		var zero T
		return zero, err
	}
	return agentCall[T](ctx, c, cr, method, "/jobs/"+id+suffix, body)
}

func listingCall[T any](ctx context.Context, c *Client, cr Credentials, method, listingID, suffix string, body any) (T, error) {
	id, err := segment("listing_id", listingID)
	if err != nil {
		var zero T
		return zero, err
	}
	return agentCall[T](ctx, c, cr, method, "/listings/"+id+suffix, body)
}

// Agents and trust.

func (c *Client) RegisterAgent(ctx context.Context, req hiring.RegisterAgentRequest) (hiring.RegisterAgentResponse, error) {
	if req.Name == "" {
		return hiring.RegisterAgentResponse{}, hiring.Invalid("name", "name is required")
	}
	return send[hiring.RegisterAgentResponse](ctx, c, call{method: http.MethodPost, path: "/v1/agents", body: req})
}

func (c *Client) AgentStatus(ctx context.Context, cr Credentials) (hiring.AgentStatusView, error) {
	return agentCall[hiring.AgentStatusView](ctx, c, cr, http.MethodGet, "/agents/me", nil)
}

func (c *Client) RequestActivationCode(ctx context.Context, cr Credentials) (hiring.ActivationCodeView, error) {
	return agentCall[hiring.ActivationCodeView](ctx, c, cr, http.MethodPost, "/agents/me/activation/social", nil)
}

func (c *Client) VerifySocial(ctx context.Context, cr Credentials, req hiring.VerifySocialRequest) (hiring.AgentStatusView, error) {
	if req.PostURL == "" {
		return hiring.AgentStatusView{}, hiring.Invalid("post_url", "post_url is required")
	}
	return agentCall[hiring.AgentStatusView](ctx, c, cr, http.MethodPost, "/agents/me/activation/social/verify", req)
}

func (c *Client) PaymentIntent(ctx context.Context, cr Credentials, req hiring.PaymentIntentRequest) (hiring.PaymentIntent, error) {
	return agentCall[hiring.PaymentIntent](ctx, c, cr, http.MethodPost, "/agents/me/activation/payment", req)
}

func (c *Client) VerifyPayment(ctx context.Context, cr Credentials, req hiring.VerifyPaymentRequest) (hiring.AgentStatusView, error) {
	if req.TxHash == "" {
		return hiring.AgentStatusView{}, hiring.Invalid("tx_hash", "tx_hash is required")
	}
	return agentCall[hiring.AgentStatusView](ctx, c, cr, http.MethodPost, "/agents/me/activation/payment/verify", req)
}

func (c *Client) ClaimPromo(ctx context.Context, cr Credentials) (hiring.AgentStatusView, error) {
	return agentCall[hiring.AgentStatusView](ctx, c, cr, http.MethodPost, "/agents/me/promo", nil)
}

func (c *Client) VerifyDomain(ctx context.Context, cr Credentials) (hiring.AgentStatusView, error) {
	return agentCall[hiring.AgentStatusView](ctx, c, cr, http.MethodPost, "/agents/me/domain/verify", nil)
}

// Humans.

func (c *Client) SearchHumans(ctx context.Context, f hiring.HumanFilter) (hiring.HumanPage, error) {
	return send[hiring.HumanPage](ctx, c, call{method: http.MethodGet, path: "/v1/humans", query: f.Query()})
}

func (c *Client) GetHuman(ctx context.Context, humanID string) (hiring.PublicProfile, error) {
	id, err := segment("human_id", humanID)
	if err != nil {
		return hiring.PublicProfile{}, err
	}
	return send[hiring.PublicProfile](ctx, c, call{method: http.MethodGet, path: "/v1/humans/" + id})
}

func (c *Client) FullProfile(ctx context.Context, cr Credentials, humanID string) (hiring.FullProfile, error) {
	id, err := segment("human_id", humanID)
	if err != nil {
		return hiring.FullProfile{}, err
	}
	return agentCall[hiring.FullProfile](ctx, c, cr, http.MethodGet, "/humans/"+id+"/profile", nil)
}

// Jobs.

func (c *Client) CreateOffer(ctx context.Context, cr Credentials, req hiring.OfferRequest) (hiring.JobView, error) {
	if err := req.Validate(); err != nil {
		return hiring.JobView{}, err
	}
	return agentCall[hiring.JobView](ctx, c, cr, http.MethodPost, "/jobs", req)
}

func (c *Client) GetJob(ctx context.Context, cr Credentials, jobID string) (hiring.JobView, error) {
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodGet, jobID, "", nil)
}

func (c *Client) ListJobs(ctx context.Context, cr Credentials, status hiring.JobStatus) ([]hiring.JobView, error) {
	h, err := agentHeader(cr)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	out, err := send[hiring.JobList](ctx, c, call{method: http.MethodGet, path: "/v1/jobs", query: q, header: h})
	return out.Jobs, err
}

func (c *Client) MarkPaid(ctx context.Context, cr Credentials, jobID string, req hiring.MarkPaidRequest) (hiring.JobView, error) {
	if req.TxHash == "" {
		return hiring.JobView{}, hiring.Invalid("tx_hash", "tx_hash is required")
	}
	if req.Amount <= 0 {
		return hiring.JobView{}, hiring.Invalid("amount", "amount must be positive")
	}
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/paid", req)
}

func (c *Client) CancelJob(ctx context.Context, cr Credentials, jobID string, req hiring.CancelRequest) (hiring.JobView, error) {
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/cancel", req)
}

func (c *Client) LeaveReview(ctx context.Context, cr Credentials, jobID string, req hiring.ReviewRequest) (hiring.JobView, error) {
	if req.Rating < hiring.MinRating || req.Rating > hiring.MaxRating {
		return hiring.JobView{}, hiring.Invalid("rating", "rating must be between %d and %d", hiring.MinRating, hiring.MaxRating)
	}
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/review", req)
}

func (c *Client) SendMessage(ctx context.Context, cr Credentials, jobID string, req hiring.MessageRequest) (hiring.Message, error) {
	if err := hiring.ValidateMessageBody(req.Body); err != nil {
		return hiring.Message{}, err
	}
	return jobCall[hiring.Message](ctx, c, cr, http.MethodPost, jobID, "/messages", req)
}

func (c *Client) GetMessages(ctx context.Context, cr Credentials, jobID string) ([]hiring.Message, error) {
	out, err := jobCall[hiring.MessageList](ctx, c, cr, http.MethodGet, jobID, "/messages", nil)
	return out.Messages, err
}

// Streams.

func (c *Client) StartStream(ctx context.Context, cr Credentials, jobID string, req hiring.StartStreamRequest) (hiring.JobView, error) {
	if req.SenderAddress == "" {
		return hiring.JobView{}, hiring.Invalid("sender_address", "sender_address is required")
	}
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/stream/start", req)
}

func (c *Client) RecordTick(ctx context.Context, cr Credentials, jobID string, req hiring.TickRequest) (hiring.JobView, error) {
	if req.TxHash == "" {
		return hiring.JobView{}, hiring.Invalid("tx_hash", "tx_hash is required")
	}
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/stream/tick", req)
}

func (c *Client) PauseStream(ctx context.Context, cr Credentials, jobID string) (hiring.JobView, error) {
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/stream/pause", nil)
}

func (c *Client) ResumeStream(ctx context.Context, cr Credentials, jobID string) (hiring.JobView, error) {
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/stream/resume", nil)
}

func (c *Client) StopStream(ctx context.Context, cr Credentials, jobID string) (hiring.JobView, error) {
	return jobCall[hiring.JobView](ctx, c, cr, http.MethodPost, jobID, "/stream/stop", nil)
}

// Listings.

func (c *Client) CreateListing(ctx context.Context, cr Credentials, req hiring.ListingRequest) (hiring.ListingView, error) {
	if err := req.Validate(); err != nil {
		return hiring.ListingView{}, err
	}
	return agentCall[hiring.ListingView](ctx, c, cr, http.MethodPost, "/listings", req)
}

func (c *Client) BrowseListings(ctx context.Context, f hiring.ListingFilter) (hiring.ListingPage, error) {
	return send[hiring.ListingPage](ctx, c, call{method: http.MethodGet, path: "/v1/listings", query: f.Query()})
}

func (c *Client) GetListing(ctx context.Context, listingID string) (hiring.ListingView, error) {
	id, err := segment("listing_id", listingID)
	if err != nil {
		return hiring.ListingView{}, err
	}
	return send[hiring.ListingView](ctx, c, call{method: http.MethodGet, path: "/v1/listings/" + id})
}

func (c *Client) MyListings(ctx context.Context, cr Credentials) ([]hiring.ListingView, error) {
	out, err := agentCall[hiring.ListingList](ctx, c, cr, http.MethodGet, "/listings/mine", nil)
	return out.Listings, err
}

func (c *Client) ListApplications(ctx context.Context, cr Credentials, listingID string) ([]hiring.ApplicationView, error) {
	out, err := listingCall[hiring.ApplicationList](ctx, c, cr, http.MethodGet, listingID, "/applications", nil)
	return out.Applications, err
}

func (c *Client) MakeListingOffer(ctx context.Context, cr Credentials, listingID, applicationID string, req hiring.ListingOfferRequest) (hiring.ListingOfferResponse, error) {
	app, err := segment("application_id", applicationID)
	if err != nil {
		return hiring.ListingOfferResponse{}, err
	}
	if req.Terms != nil {
		if err := req.Terms.Validate(); err != nil {
			return hiring.ListingOfferResponse{}, err
		}
	}
	return listingCall[hiring.ListingOfferResponse](ctx, c, cr, http.MethodPost, listingID, "/applications/"+app+"/offer", req)
}

func (c *Client) CancelListing(ctx context.Context, cr Credentials, listingID string) (hiring.ListingView, error) {
	return listingCall[hiring.ListingView](ctx, c, cr, http.MethodPost, listingID, "/cancel", nil)
}

// Human side. The MCP surface never calls these; they drive the human half
// of a job in integration tests and tooling.

func humanCall[T any](ctx context.Context, c *Client, cr Credentials, method, path string, body any) (T, error) {
	h, err := humanHeader(cr)
	if err != nil {
		var zero T
		return zero, err
	}
	return send[T](ctx, c, call{method: method, path: "/v1/human" + path, body: body, header: h})
}

func (c *Client) humanJob(ctx context.Context, cr Credentials, jobID, action string, body any) (hiring.Job, error) {
	id, err := segment("job_id", jobID)
	if err != nil {
		return hiring.Job{}, err
	}
	return humanCall[hiring.Job](ctx, c, cr, http.MethodPost, "/jobs/"+id+"/"+action, body)
}

func (c *Client) AcceptJob(ctx context.Context, cr Credentials, jobID string) (hiring.Job, error) {
	return c.humanJob(ctx, cr, jobID, "accept", nil)
}

func (c *Client) RejectJob(ctx context.Context, cr Credentials, jobID string) (hiring.Job, error) {
	return c.humanJob(ctx, cr, jobID, "reject", nil)
}

func (c *Client) CompleteJob(ctx context.Context, cr Credentials, jobID string) (hiring.Job, error) {
	return c.humanJob(ctx, cr, jobID, "complete", nil)
}

func (c *Client) DisputeJob(ctx context.Context, cr Credentials, jobID string, req hiring.DisputeRequest) (hiring.Job, error) {
	return c.humanJob(ctx, cr, jobID, "dispute", req)
}

func (c *Client) HumanSendMessage(ctx context.Context, cr Credentials, jobID string, req hiring.MessageRequest) (hiring.Message, error) {
	id, err := segment("job_id", jobID)
	if err != nil {
		return hiring.Message{}, err
	}
	return humanCall[hiring.Message](ctx, c, cr, http.MethodPost, "/jobs/"+id+"/messages", req)
}

func (c *Client) HumanMessages(ctx context.Context, cr Credentials, jobID string) ([]hiring.Message, error) {
	id, err := segment("job_id", jobID)
	if err != nil {
		return nil, err
	}
	out, err := humanCall[hiring.MessageList](ctx, c, cr, http.MethodGet, "/jobs/"+id+"/messages", nil)
	return out.Messages, err
}

func (c *Client) ApplyToListing(ctx context.Context, cr Credentials, listingID string, req hiring.ApplyRequest) (hiring.Application, error) {
	id, err := segment("listing_id", listingID)
	if err != nil {
		return hiring.Application{}, err
	}
	return humanCall[hiring.Application](ctx, c, cr, http.MethodPost, "/listings/"+id+"/applications", req)
}

// Admin.

func (c *Client) RegisterHuman(ctx context.Context, cr Credentials, h hiring.Human) (hiring.RegisterHumanResponse, error) {
	hdr, err := adminHeader(cr)
	if err != nil {
		return hiring.RegisterHumanResponse{}, err
	}
	return send[hiring.RegisterHumanResponse](ctx, c, call{method: http.MethodPost, path: "/v1/admin/humans", body: h, header: hdr})
}

func (c *Client) ExpireListings(ctx context.Context, cr Credentials) (int, error) {
	hdr, err := adminHeader(cr)
	if err != nil {
		return 0, err
	}
	out, err := send[hiring.SweepResult](ctx, c, call{method: http.MethodPost, path: "/v1/admin/listings/expire", header: hdr})
	return out.Expired, err
}
