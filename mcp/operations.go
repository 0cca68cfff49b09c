package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/human-pages-ai/humanpages/client"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/webhook"
)

// operation is one entry of the dispatch table: the declared tool and the
// function that binds its arguments and calls the collaborator.
type operation struct {
	tool   mcp.Tool
	invoke func(ctx context.Context, api *client.Client, req mcp.CallToolRequest) (result, error)
}

type validator interface {
	validate() error
}

// define binds the tool arguments into A, runs A's local validation and
// then fn.
func define[A any](tool mcp.Tool, fn func(ctx context.Context, api *client.Client, a A) (result, error)) operation {
	return operation{
		tool: tool,
		invoke: func(ctx context.Context, api *client.Client, req mcp.CallToolRequest) (result, error) {
			var a A
			if err := req.BindArguments(&a); err != nil {
				return result{}, hiring.Invalid("arguments", "arguments do not match the %s schema: %v", tool.Name, err)
			}
			if v, ok := any(a).(validator); ok {
				if err := v.validate(); err != nil {
					return result{}, err
				}
			}
			return fn(ctx, api, a)
		},
	}
}

func newTool(name, description string, groups ...[]mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, g := range groups {
		opts = append(opts, g...)
	}
	return mcp.NewTool(name, opts...)
}

func opts(o ...mcp.ToolOption) []mcp.ToolOption { return o }

var (
	agentParams = opts(
		mcp.WithString("agent_key", mcp.Required(), mcp.Description("Agent API key returned once by register_agent")),
	)
	paidParams = opts(
		mcp.WithString("agent_key", mcp.Required(), mcp.Description("Agent API key returned once by register_agent")),
		mcp.WithString("payment_proof", mcp.Description("Optional per-call payment proof \"<network>:<tx_hash>\" of a transfer from your payer_address; admits the call regardless of tier quota")),
	)
	jobParams = opts(
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
	)
	pointParams = opts(
		mcp.WithNumber("lat", mcp.Description("Latitude in degrees"), mcp.Min(-90), mcp.Max(90)),
		mcp.WithNumber("lng", mcp.Description("Longitude in degrees"), mcp.Min(-180), mcp.Max(180)),
	)
	termsParams = opts(
		mcp.WithString("payment_mode", mcp.Description("ONE_TIME (default) or STREAM"), mcp.Enum("ONE_TIME", "STREAM")),
		mcp.WithString("stream_method", mcp.Description("STREAM only: SUPERFLUID or MICRO_TRANSFER"), mcp.Enum("SUPERFLUID", "MICRO_TRANSFER")),
		mcp.WithString("stream_interval", mcp.Description("STREAM only: payment interval"), mcp.Enum("HOURLY", "DAILY", "WEEKLY", "MONTHLY")),
		mcp.WithNumber("stream_rate_usd", mcp.Description("STREAM only: USD paid per interval")),
		mcp.WithNumber("stream_max_ticks", mcp.Description("STREAM only: stop automatically after this many ticks"), mcp.Min(1)),
	)
	callbackParams = opts(
		mcp.WithString("callback_url", mcp.Description("Webhook URL notified on every status change")),
		mcp.WithString("callback_secret", mcp.Description("Shared secret used to sign webhook payloads (HMAC-SHA256)")),
	)
)

// operations is the complete tool surface.
func operations() []operation {
	return []operation{
		// Agents and trust.
		define(newTool("register_agent", "Register a new agent. Returns the agent record and its API key, which is shown only once. New agents start PENDING and must activate before hiring.",
			opts(
				mcp.WithString("name", mcp.Required(), mcp.Description("Display name of the agent")),
				mcp.WithString("domain", mcp.Description("Domain to verify later with verify_agent_domain")),
				mcp.WithString("webhook_url", mcp.Description("Default webhook endpoint for this agent")),
				mcp.WithString("webhook_secret", mcp.Description("Secret used to sign webhooks sent to webhook_url")),
				mcp.WithString("payer_address", mcp.Description("Wallet the agent pays activation deposits and per-call proofs from")),
			)),
			func(ctx context.Context, api *client.Client, a registerAgentArgs) (result, error) {
				resp, err := api.RegisterAgent(ctx, hiring.RegisterAgentRequest{
					Name:          strings.TrimSpace(a.Name),
					Domain:        a.Domain,
					WebhookURL:    a.WebhookURL,
					WebhookSecret: a.WebhookSecret,
					PayerAddress:  strings.TrimSpace(a.PayerAddress),
				})
				return viewResult("Agent registered. Save the api_key now: it cannot be retrieved again.", resp, err)
			}),

		define(newTool("get_agent_status", "Show the agent's activation status, tier, expiry and remaining quotas.", agentParams),
			func(ctx context.Context, api *client.Client, a agentArgs) (result, error) {
				v, err := api.AgentStatus(ctx, a.creds())
				return viewResult(fmt.Sprintf("Agent %s is %s (tier %s).", v.Agent.ID, v.Agent.Status, v.Agent.Tier), v, err)
			}),

		define(newTool("request_activation_code", "Issue a single-use activation code for social-post activation (BASIC tier). Publish a public post containing the code, then call verify_social_activation.", agentParams),
			func(ctx context.Context, api *client.Client, a agentArgs) (result, error) {
				code, err := api.RequestActivationCode(ctx, a.creds())
				if err != nil {
					return result{}, err
				}
				return result{
					Summary: fmt.Sprintf("Activation code %s issued; it expires at %s.", code.Code, code.ExpiresAt.Format("2006-01-02 15:04 MST")),
					Body:    code,
					Next:    []string{code.Instructions, "Call verify_social_activation with the URL of the post."},
				}, nil
			}),

		define(newTool("verify_social_activation", "Verify a public post containing the activation code. On success the agent becomes ACTIVE on the BASIC tier.",
			agentParams, opts(mcp.WithString("post_url", mcp.Required(), mcp.Description("Public URL of the post containing the code")))),
			func(ctx context.Context, api *client.Client, a verifySocialArgs) (result, error) {
				v, err := api.VerifySocial(ctx, a.creds(), hiring.VerifySocialRequest{PostURL: a.PostURL})
				return viewResult("Social activation verified.", v, err)
			}),

		define(newTool("get_payment_activation", "Get the deposit address, network and amount for PRO activation by on-chain payment, with a QR code. Only a deposit sent from payer_address after this call counts.",
			agentParams, opts(
				mcp.WithString("payer_address", mcp.Description("Wallet the deposit will be sent from; defaults to the one given at registration")),
			)),
			func(ctx context.Context, api *client.Client, a paymentIntentArgs) (result, error) {
				intent, err := api.PaymentIntent(ctx, a.creds(), hiring.PaymentIntentRequest{PayerAddress: strings.TrimSpace(a.PayerAddress)})
				if err != nil {
					return result{}, err
				}
				png := intent.QRCodePNG
				intent.QRCodePNG = ""
				return result{
					Summary: fmt.Sprintf("Send %s in %s on %s from %s to %s.", intent.Amount, intent.Token, intent.Network, intent.PayerAddress, intent.DepositAddress),
					Body:    intent,
					Next:    []string{"After the transfer confirms, call verify_payment_activation with its tx_hash."},
					PNG:     png,
				}, nil
			}),

		define(newTool("verify_payment_activation", "Verify the PRO activation payment. On success the agent becomes ACTIVE on the PRO tier.",
			agentParams, opts(
				mcp.WithString("tx_hash", mcp.Required(), mcp.Description("Transaction hash of the deposit")),
				mcp.WithString("network", mcp.Description("Network of the deposit; defaults to the activation network")),
			)),
			func(ctx context.Context, api *client.Client, a verifyPaymentArgs) (result, error) {
				v, err := api.VerifyPayment(ctx, a.creds(), hiring.VerifyPaymentRequest{TxHash: strings.TrimSpace(a.TxHash), Network: a.Network})
				return viewResult("Payment activation verified.", v, err)
			}),

		define(newTool("claim_promo_upgrade", "Upgrade an active BASIC agent to PRO at no cost. Once per agent while promotional capacity lasts.", agentParams),
			func(ctx context.Context, api *client.Client, a agentArgs) (result, error) {
				v, err := api.ClaimPromo(ctx, a.creds())
				return viewResult("Promotional upgrade applied.", v, err)
			}),

		define(newTool("verify_agent_domain", "Verify the agent's domain through a DNS TXT record humanpages-verify=<token>.", agentParams),
			func(ctx context.Context, api *client.Client, a agentArgs) (result, error) {
				v, err := api.VerifyDomain(ctx, a.creds())
				return viewResult("Domain verified.", v, err)
			}),

		// Humans.
		define(newTool("search_humans", "Search hireable humans by skill, equipment, language, work mode, rate and distance.",
			opts(
				mcp.WithArray("skills", mcp.Description("Any of these skills"), mcp.WithStringItems()),
				mcp.WithArray("equipment", mcp.Description("Any of this equipment"), mcp.WithStringItems()),
				mcp.WithString("language", mcp.Description("Spoken language")),
				mcp.WithString("work_mode", mcp.Enum("REMOTE", "ONSITE", "HYBRID")),
				mcp.WithNumber("max_rate_usd", mcp.Description("Maximum hourly rate in USD")),
				mcp.WithNumber("radius_km", mcp.Description("Search radius around lat/lng")),
				mcp.WithBoolean("verified", mcp.Description("Only verified humans")),
				mcp.WithNumber("limit", mcp.Description("Page size"), mcp.Min(1), mcp.Max(100)),
				mcp.WithNumber("offset", mcp.Description("Results to skip"), mcp.Min(0)),
			), pointParams),
			func(ctx context.Context, api *client.Client, a searchHumansArgs) (result, error) {
				f, err := a.filter()
				if err != nil {
					return result{}, err
				}
				page, err := api.SearchHumans(ctx, f)
				if err != nil {
					return result{}, err
				}
				return result{
					Summary: fmt.Sprintf("Found %d humans (showing %d).", page.Total, len(page.Humans)),
					Body:    page,
					Next:    []string{"Use get_human for a public profile or create_job_offer to hire."},
				}, nil
			}),

		define(newTool("get_human", "Get a human's public profile.", opts(mcp.WithString("human_id", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a humanArgs) (result, error) {
				p, err := api.GetHuman(ctx, a.HumanID)
				if err != nil {
					return result{}, err
				}
				return result{Summary: fmt.Sprintf("%s, %s/h.", p.Name, p.HourlyRate), Body: p}, nil
			}),

		define(newTool("get_human_full_profile", "Get a human's private contact and payment details. Counts against the profile-view quota; payment details unlock once the human accepted one of your jobs.",
			paidParams, opts(mcp.WithString("human_id", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a fullProfileArgs) (result, error) {
				p, err := api.FullProfile(ctx, a.creds(), a.HumanID)
				if err != nil {
					return result{}, err
				}
				return result{Summary: "Full profile of " + p.Name + ".", Body: p}, nil
			}),

		// Jobs.
		define(newTool("create_job_offer", "Offer a job to a human. ONE_TIME jobs are paid once with mark_job_paid; STREAM jobs are paid per interval through the stream tools.",
			paidParams, opts(
				mcp.WithString("human_id", mcp.Required()),
				mcp.WithString("title", mcp.Required()),
				mcp.WithString("description"),
				mcp.WithString("category"),
				mcp.WithNumber("price_usd", mcp.Required(), mcp.Description("Agreed price in USD")),
			), termsParams, pointParams, callbackParams),
			func(ctx context.Context, api *client.Client, a createOfferArgs) (result, error) {
				req, err := a.request()
				if err != nil {
					return result{}, err
				}
				v, err := api.CreateOffer(ctx, a.creds(), req)
				return viewResult("Job offer created.", v, err)
			}),

		define(newTool("get_job", "Get a job with its status, payment and stream details. The source of truth after any webhook.", agentParams, jobParams),
			func(ctx context.Context, api *client.Client, a jobArgs) (result, error) {
				v, err := api.GetJob(ctx, a.creds(), a.JobID)
				return viewResult(fmt.Sprintf("Job %s is %s.", v.Job.ID, v.Job.Status), v, err)
			}),

		define(newTool("list_jobs", "List the agent's jobs, optionally filtered by status.",
			agentParams, opts(mcp.WithString("status", mcp.Enum("PENDING", "ACCEPTED", "REJECTED", "PAID", "STREAMING", "PAUSED", "COMPLETED", "CANCELLED", "DISPUTED")))),
			func(ctx context.Context, api *client.Client, a listJobsArgs) (result, error) {
				status := hiring.JobStatus(strings.ToUpper(a.Status))
				if status != "" && !status.Valid() {
					return result{}, hiring.Invalid("status", "unknown job status %q", a.Status)
				}
				jobs, err := api.ListJobs(ctx, a.creds(), status)
				if err != nil {
					return result{}, err
				}
				return result{Summary: fmt.Sprintf("%d jobs.", len(jobs)), Body: hiring.JobList{Jobs: jobs}}, nil
			}),

		define(newTool("mark_job_paid", "Record the one-time payment of an ACCEPTED job. The transfer must reach the human's wallet and cover the agreed price.",
			paidParams, jobParams, opts(
				mcp.WithString("tx_hash", mcp.Required()),
				mcp.WithString("network", mcp.Required(), mcp.Description("Network of the transfer, e.g. base")),
				mcp.WithNumber("amount_usd", mcp.Required()),
			)),
			func(ctx context.Context, api *client.Client, a markPaidArgs) (result, error) {
				v, err := api.MarkPaid(ctx, a.creds(), a.JobID, hiring.MarkPaidRequest{
					TxHash:  strings.TrimSpace(a.TxHash),
					Network: a.Network,
					Amount:  hiring.Dollars(a.Amount),
				})
				return viewResult("Payment recorded.", v, err)
			}),

		define(newTool("cancel_job", "Cancel a job that has not reached a terminal status.",
			paidParams, jobParams, opts(mcp.WithString("reason"))),
			func(ctx context.Context, api *client.Client, a cancelJobArgs) (result, error) {
				v, err := api.CancelJob(ctx, a.creds(), a.JobID, hiring.CancelRequest{Reason: a.Reason})
				return viewResult("Job cancelled.", v, err)
			}),

		define(newTool("leave_review", "Review a COMPLETED job once, with a rating from 1 to 5.",
			paidParams, jobParams, opts(
				mcp.WithNumber("rating", mcp.Required(), mcp.Min(hiring.MinRating), mcp.Max(hiring.MaxRating)),
				mcp.WithString("comment"),
			)),
			func(ctx context.Context, api *client.Client, a reviewArgs) (result, error) {
				v, err := api.LeaveReview(ctx, a.creds(), a.JobID, hiring.ReviewRequest{Rating: a.Rating, Comment: a.Comment})
				return viewResult("Review saved.", v, err)
			}),

		define(newTool("send_message", "Send a message to the human on an open job.",
			paidParams, jobParams, opts(mcp.WithString("body", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a messageArgs) (result, error) {
				m, err := api.SendMessage(ctx, a.creds(), a.JobID, hiring.MessageRequest{Body: a.Body})
				if err != nil {
					return result{}, err
				}
				return result{Summary: "Message sent.", Body: m, Next: []string{"Use get_messages to read replies."}}, nil
			}),

		define(newTool("get_messages", "Read a job's message log in chronological order.", agentParams, jobParams),
			func(ctx context.Context, api *client.Client, a jobArgs) (result, error) {
				msgs, err := api.GetMessages(ctx, a.creds(), a.JobID)
				if err != nil {
					return result{}, err
				}
				return result{Summary: fmt.Sprintf("%d messages.", len(msgs)), Body: hiring.MessageList{Messages: msgs}}, nil
			}),

		// Streams.
		define(newTool("start_stream", "Start paying an ACCEPTED STREAM job. SUPERFLUID requires the flow to exist already; MICRO_TRANSFER opens tick #1.",
			paidParams, jobParams, opts(
				mcp.WithString("sender_address", mcp.Required(), mcp.Description("Wallet address paying the stream")),
				mcp.WithString("network", mcp.Required()),
			)),
			func(ctx context.Context, api *client.Client, a startStreamArgs) (result, error) {
				v, err := api.StartStream(ctx, a.creds(), a.JobID, hiring.StartStreamRequest{
					SenderAddress: strings.TrimSpace(a.SenderAddress),
					Network:       a.Network,
				})
				return viewResult("Stream started.", v, err)
			}),

		define(newTool("record_stream_tick", "Record the transfer paying the pending tick of a MICRO_TRANSFER stream.",
			paidParams, jobParams, opts(mcp.WithString("tx_hash", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a tickArgs) (result, error) {
				v, err := api.RecordTick(ctx, a.creds(), a.JobID, hiring.TickRequest{TxHash: strings.TrimSpace(a.TxHash)})
				return viewResult("Tick recorded.", v, err)
			}),

		define(newTool("pause_stream", "Pause a stream. SUPERFLUID requires the on-chain flow to be deleted first.", paidParams, jobParams),
			func(ctx context.Context, api *client.Client, a jobArgs) (result, error) {
				v, err := api.PauseStream(ctx, a.creds(), a.JobID)
				return viewResult("Stream paused.", v, err)
			}),

		define(newTool("resume_stream", "Resume a paused stream. SUPERFLUID requires a freshly created flow.", paidParams, jobParams),
			func(ctx context.Context, api *client.Client, a jobArgs) (result, error) {
				v, err := api.ResumeStream(ctx, a.creds(), a.JobID)
				return viewResult("Stream resumed.", v, err)
			}),

		define(newTool("stop_stream", "Stop a stream permanently and complete the job.", paidParams, jobParams),
			func(ctx context.Context, api *client.Client, a jobArgs) (result, error) {
				v, err := api.StopStream(ctx, a.creds(), a.JobID)
				return viewResult("Stream stopped.", v, err)
			}),

		// Listings.
		define(newTool("create_listing", "Post a public listing humans can apply to.",
			paidParams, opts(
				mcp.WithString("title", mcp.Required()),
				mcp.WithString("description"),
				mcp.WithString("category"),
				mcp.WithNumber("budget_usd", mcp.Required()),
				mcp.WithString("expires_at", mcp.Required(), mcp.Description("RFC 3339 expiry, at most 90 days ahead")),
				mcp.WithArray("skills", mcp.WithStringItems()),
				mcp.WithArray("equipment", mcp.WithStringItems()),
				mcp.WithString("location", mcp.Description("Free-text location")),
				mcp.WithNumber("radius_km"),
				mcp.WithString("work_mode", mcp.Enum("REMOTE", "ONSITE", "HYBRID")),
				mcp.WithNumber("max_applicants", mcp.Min(0)),
			), pointParams, callbackParams),
			func(ctx context.Context, api *client.Client, a createListingArgs) (result, error) {
				req, err := a.request()
				if err != nil {
					return result{}, err
				}
				v, err := api.CreateListing(ctx, a.creds(), req)
				return viewResult("Listing created.", v, err)
			}),

		define(newTool("browse_listings", "Browse public listings.",
			opts(
				mcp.WithArray("skills", mcp.WithStringItems()),
				mcp.WithString("category"),
				mcp.WithString("work_mode", mcp.Enum("REMOTE", "ONSITE", "HYBRID")),
				mcp.WithNumber("min_budget_usd"),
				mcp.WithNumber("max_budget_usd"),
				mcp.WithNumber("radius_km"),
				mcp.WithString("status", mcp.Enum("OPEN", "CLOSED", "CANCELLED", "EXPIRED")),
				mcp.WithNumber("limit", mcp.Min(1), mcp.Max(100)),
				mcp.WithNumber("offset", mcp.Min(0)),
			), pointParams),
			func(ctx context.Context, api *client.Client, a browseListingsArgs) (result, error) {
				f, err := a.filter()
				if err != nil {
					return result{}, err
				}
				page, err := api.BrowseListings(ctx, f)
				if err != nil {
					return result{}, err
				}
				return result{Summary: fmt.Sprintf("Found %d listings (showing %d).", page.Total, len(page.Listings)), Body: page}, nil
			}),

		define(newTool("get_listing", "Get a public listing.", opts(mcp.WithString("listing_id", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a listingArgs) (result, error) {
				v, err := api.GetListing(ctx, a.ListingID)
				return viewResult(fmt.Sprintf("Listing %s is %s.", v.Listing.ID, v.Listing.Status), v, err)
			}),

		define(newTool("list_my_listings", "List the listings this agent posted.", agentParams),
			func(ctx context.Context, api *client.Client, a agentArgs) (result, error) {
				ls, err := api.MyListings(ctx, a.creds())
				if err != nil {
					return result{}, err
				}
				return result{Summary: fmt.Sprintf("%d listings.", len(ls)), Body: ls}, nil
			}),

		define(newTool("list_listing_applications", "List applications to one of your listings, oldest first, with applicant profiles.",
			agentParams, opts(mcp.WithString("listing_id", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a ownedListingArgs) (result, error) {
				apps, err := api.ListApplications(ctx, a.creds(), a.ListingID)
				if err != nil {
					return result{}, err
				}
				return result{
					Summary: fmt.Sprintf("%d applications.", len(apps)),
					Body:    hiring.ApplicationList{Applications: apps},
					Next:    []string{"Use make_listing_offer on a PENDING application to hire that applicant."},
				}, nil
			}),

		define(newTool("make_listing_offer", "Turn a PENDING application into a job at the listing's budget. The listing closes.",
			paidParams, opts(
				mcp.WithString("listing_id", mcp.Required()),
				mcp.WithString("application_id", mcp.Required()),
			), termsParams, pointParams, callbackParams),
			func(ctx context.Context, api *client.Client, a listingOfferArgs) (result, error) {
				req, err := a.request()
				if err != nil {
					return result{}, err
				}
				resp, err := api.MakeListingOffer(ctx, a.creds(), a.ListingID, a.ApplicationID, req)
				return viewResult("Offer sent; the listing is now CLOSED.", resp, err)
			}),

		define(newTool("cancel_listing", "Cancel one of your listings; its pending applications are rejected.",
			paidParams, opts(mcp.WithString("listing_id", mcp.Required()))),
			func(ctx context.Context, api *client.Client, a ownedListingArgs) (result, error) {
				v, err := api.CancelListing(ctx, a.creds(), a.ListingID)
				return viewResult("Listing cancelled.", v, err)
			}),

		// Webhooks.
		define(newTool("verify_webhook_signature", "Check the X-HumanPages-Signature of a received webhook against your shared secret.",
			opts(
				mcp.WithString("secret", mcp.Required(), mcp.Description("The callback secret supplied at creation")),
				mcp.WithString("payload", mcp.Required(), mcp.Description("Raw request body, byte for byte")),
				mcp.WithString("signature", mcp.Required(), mcp.Description("Value of the signature header, sha256=<hex>")),
			)),
			func(_ context.Context, _ *client.Client, a verifyWebhookArgs) (result, error) {
				if !webhook.Verify(a.Secret, []byte(a.Payload), a.Signature) {
					return result{
						Summary: "Signature does not match. Reject this webhook.",
						Body:    map[string]any{"valid": false},
					}, nil
				}
				body := map[string]any{"valid": true}
				var ev webhook.Event
				if err := json.Unmarshal([]byte(a.Payload), &ev); err == nil && ev.Type != "" {
					body["event"] = ev
				}
				return result{
					Summary: "Signature is valid.",
					Body:    body,
					Next:    []string{"Confirm the new state with get_job or get_listing before acting on it."},
				}, nil
			}),
	}
}

// viewResult renders a backend view with its own next-step guidance.
func viewResult(summary string, v any, err error) (result, error) {
	if err != nil {
		return result{}, err
	}
	return result{Summary: summary, Body: v, Next: nextSteps(v)}, nil
}
