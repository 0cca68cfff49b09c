package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/client"
	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/config"
	"github.com/human-pages-ai/humanpages/container"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/webhook"
)

const (
	adminKey = "admin-secret"
	sender   = "0x4444444444444444444444444444444444444444"
	marcus   = "human-marcus-lee"
)

type posts map[string]string

func (p posts) Fetch(_ context.Context, url string) (string, error) {
	if body, ok := p[url]; ok {
		return body, nil
	}
	return "", errors.New("not found")
}

type noTXT struct{}

func (noTXT) LookupTXT(context.Context, string) ([]string, error) { return nil, nil }

// stack runs the MCP server against a real REST backend on an in-memory store.
type stack struct {
	srv   *Server
	api   *client.Client
	chain *chain.Static
	clock *clock.FakeClock
	posts posts
	txs   int
}

func newStack(t *testing.T) *stack {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.Server.AdminKey = adminKey
	cfg.Webhooks.Mode = "none"

	st := &stack{
		chain: chain.NewStatic(),
		clock: clock.Fake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)),
		posts: posts{},
	}
	c, err := container.New(context.Background(), cfg, quiet, container.Overrides{
		Clock:    st.clock,
		Verifier: st.chain,
		Notifier: webhook.NopNotifier{},
		Posts:    st.posts,
		TXT:      noTXT{},
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	backend := httptest.NewServer(c.API.Router())
	t.Cleanup(backend.Close)

	st.api, err = client.New(backend.URL, client.WithHTTPClient(backend.Client()), client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	st.srv = NewServer(st.api, quiet)
	return st
}

func (st *stack) call(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	return st.srv.Call(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "first content is %T", res.Content[0])
	return tc.Text
}

// ok asserts success and decodes the JSON block of the result into out.
func (st *stack) ok(t *testing.T, name string, args map[string]any, out any) string {
	t.Helper()
	res := st.call(t, name, args)
	body := text(t, res)
	require.False(t, res.IsError, "%s failed: %s", name, body)
	if out != nil {
		start := strings.Index(body, "```json\n")
		end := strings.LastIndex(body, "\n```")
		require.True(t, start >= 0 && end > start, "no JSON block in %q", body)
		require.NoError(t, json.Unmarshal([]byte(body[start+len("```json\n"):end]), out))
	}
	return body
}

// fails asserts the tool failed with code.
func (st *stack) fails(t *testing.T, name string, args map[string]any, code hiring.Code) string {
	t.Helper()
	res := st.call(t, name, args)
	body := text(t, res)
	require.True(t, res.IsError, "%s unexpectedly succeeded: %s", name, body)
	assert.True(t, strings.HasPrefix(body, string(code)+": "), "expected %s, got %q", code, body)
	return body
}

func (st *stack) registerAgent(t *testing.T, name string) string {
	t.Helper()
	var resp hiring.RegisterAgentResponse
	st.ok(t, "register_agent", map[string]any{"name": name}, &resp)
	require.Equal(t, hiring.AgentPending, resp.Agent.Status)
	return resp.APIKey
}

func (st *stack) activate(t *testing.T, key string) {
	t.Helper()
	var code hiring.ActivationCodeView
	st.ok(t, "request_activation_code", map[string]any{"agent_key": key}, &code)
	url := "https://social.example/posts/" + code.Code
	st.posts[url] = "I'm hiring humans on Human Pages " + code.Code

	var view hiring.AgentStatusView
	st.ok(t, "verify_social_activation", map[string]any{"agent_key": key, "post_url": url}, &view)
	require.Equal(t, hiring.AgentActive, view.Agent.Status)
	require.Equal(t, hiring.TierBasic, view.Agent.Tier)
}

func (st *stack) registerHuman(t *testing.T, name, wallet string) hiring.RegisterHumanResponse {
	t.Helper()
	resp, err := st.api.RegisterHuman(context.Background(), client.Credentials{AdminKey: adminKey}, hiring.Human{
		Name:       name,
		Skills:     []string{"data-labeling"},
		HourlyRate: 2000,
		WorkModes:  []hiring.WorkMode{hiring.WorkRemote},
		Private:    hiring.HumanPrivate{Wallets: []hiring.Wallet{{Network: "base", Address: wallet}}},
	})
	require.NoError(t, err)
	return resp
}

func (st *stack) transfer(to string, amount hiring.Cents) string {
	st.txs++
	hash := fmt.Sprintf("0x%064x", st.txs)
	st.chain.AddTransfer(chain.Transfer{Network: "base", TxHash: hash, From: sender, To: to, Amount: amount})
	return hash
}

func TestToolSurface(t *testing.T) {
	st := newStack(t)
	want := []string{
		"register_agent", "get_agent_status", "request_activation_code", "verify_social_activation",
		"get_payment_activation", "verify_payment_activation", "claim_promo_upgrade", "verify_agent_domain",
		"search_humans", "get_human", "get_human_full_profile",
		"create_job_offer", "get_job", "list_jobs", "mark_job_paid", "cancel_job", "leave_review", "send_message", "get_messages",
		"start_stream", "record_stream_tick", "pause_stream", "resume_stream", "stop_stream",
		"create_listing", "browse_listings", "get_listing", "list_my_listings", "list_listing_applications", "make_listing_offer", "cancel_listing",
		"verify_webhook_signature",
	}
	assert.Len(t, st.srv.ops, len(want))
	for _, name := range want {
		_, ok := st.srv.ops[name]
		assert.True(t, ok, "tool %s not registered", name)
	}
	st.fails(t, "hire_everyone", nil, hiring.CodeInvalidInput)
}

func TestPendingAgentThenActivatedOffer(t *testing.T) {
	st := newStack(t)
	key := st.registerAgent(t, "errand-bot")

	var status hiring.AgentStatusView
	st.ok(t, "get_agent_status", map[string]any{"agent_key": key}, &status)
	assert.Equal(t, hiring.AgentPending, status.Agent.Status)

	offer := map[string]any{
		"agent_key": key,
		"human_id":  marcus,
		"title":     "Assemble a bookshelf",
		"price_usd": 25,
		"lat":       40.73,
		"lng":       -73.99,
	}
	st.fails(t, "create_job_offer", offer, hiring.CodeAgentPending)

	st.activate(t, key)

	cheap := map[string]any{}
	for k, v := range offer {
		cheap[k] = v
	}
	cheap["price_usd"] = 10
	body := st.fails(t, "create_job_offer", cheap, hiring.CodeBelowMinOfferPrice)
	assert.Contains(t, body, "min_offer_price_cents")

	var view hiring.JobView
	out := st.ok(t, "create_job_offer", offer, &view)
	assert.Equal(t, hiring.JobPending, view.Job.Status)
	assert.Equal(t, hiring.Cents(2500), view.Job.Price)
	assert.Contains(t, out, "Next steps:")

	var jobs hiring.JobList
	st.ok(t, "list_jobs", map[string]any{"agent_key": key, "status": "pending"}, &jobs)
	require.Len(t, jobs.Jobs, 1)
}

func TestMicroTransferStream(t *testing.T) {
	st := newStack(t)
	key := st.registerAgent(t, "labeler")
	st.activate(t, key)
	const wallet = "0x6666666666666666666666666666666666666666"
	human := st.registerHuman(t, "Lena Ortiz", wallet)

	var view hiring.JobView
	st.ok(t, "create_job_offer", map[string]any{
		"agent_key":       key,
		"human_id":        human.Human.ID,
		"title":           "Daily data labeling",
		"price_usd":       10,
		"payment_mode":    "STREAM",
		"stream_method":   "MICRO_TRANSFER",
		"stream_interval": "DAILY",
		"stream_rate_usd": 10,
	}, &view)
	jobID := view.Job.ID

	job, err := st.api.AcceptJob(context.Background(), client.Credentials{HumanKey: human.APIKey}, jobID)
	require.NoError(t, err)
	require.Equal(t, hiring.JobAccepted, job.Status)

	args := map[string]any{"agent_key": key, "job_id": jobID}
	st.fails(t, "mark_job_paid", map[string]any{"agent_key": key, "job_id": jobID, "tx_hash": st.transfer(wallet, 1000), "network": "base", "amount_usd": 10}, hiring.CodeWrongPaymentMode)

	st.ok(t, "start_stream", map[string]any{"agent_key": key, "job_id": jobID, "sender_address": sender, "network": "base"}, &view)
	assert.Equal(t, hiring.JobStreaming, view.Job.Status)
	require.NotNil(t, view.Job.Stream.PendingTick)
	assert.Equal(t, 1, view.Job.Stream.PendingTick.Number)

	st.ok(t, "record_stream_tick", map[string]any{"agent_key": key, "job_id": jobID, "tx_hash": st.transfer(wallet, 1000)}, &view)
	assert.Equal(t, 1, view.Job.Stream.TickCount)
	assert.Equal(t, hiring.Cents(1000), view.Job.Stream.TotalPaid)
	require.NotNil(t, view.Job.Stream.PendingTick)
	assert.Equal(t, 2, view.Job.Stream.PendingTick.Number)

	st.fails(t, "record_stream_tick", map[string]any{"agent_key": key, "job_id": jobID, "tx_hash": st.transfer(wallet, 500)}, hiring.CodeTickVerification)

	st.ok(t, "get_job", args, &view)
	assert.Equal(t, 1, view.Job.Stream.TickCount)
	assert.Equal(t, hiring.Cents(1000), view.Job.Stream.TotalPaid)

	st.ok(t, "pause_stream", args, &view)
	assert.Equal(t, hiring.JobPaused, view.Job.Status)
	st.ok(t, "stop_stream", args, &view)
	assert.Equal(t, hiring.JobCompleted, view.Job.Status)
	st.fails(t, "stop_stream", args, hiring.CodeAlreadyStopped)

	st.ok(t, "leave_review", map[string]any{"agent_key": key, "job_id": jobID, "rating": 5}, &view)
	st.fails(t, "leave_review", map[string]any{"agent_key": key, "job_id": jobID, "rating": 4}, hiring.CodeAlreadyReviewed)
}

func TestListingWithSingleSeat(t *testing.T) {
	st := newStack(t)
	key := st.registerAgent(t, "survey-bot")
	st.activate(t, key)
	first := st.registerHuman(t, "Kofi Mensah", "0x7777777777777777777777777777777777777777")
	second := st.registerHuman(t, "Mei Tanaka", "0x8888888888888888888888888888888888888888")

	var lv hiring.ListingView
	st.ok(t, "create_listing", map[string]any{
		"agent_key":      key,
		"title":          "Transcribe 30 minutes of audio",
		"budget_usd":     40,
		"skills":         []any{"transcription"},
		"work_mode":      "REMOTE",
		"expires_at":     st.clock.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"max_applicants": 1,
	}, &lv)
	listingID := lv.Listing.ID
	assert.Equal(t, hiring.ListingOpen, lv.Listing.Status)

	ctx := context.Background()
	app, err := st.api.ApplyToListing(ctx, client.Credentials{HumanKey: first.APIKey}, listingID, hiring.ApplyRequest{Pitch: "Native speaker, fast typist"})
	require.NoError(t, err)

	_, err = st.api.ApplyToListing(ctx, client.Credentials{HumanKey: second.APIKey}, listingID, hiring.ApplyRequest{Pitch: "Me too"})
	assert.Equal(t, hiring.CodeListingFull, hiring.CodeOf(err))

	var apps hiring.ApplicationList
	st.ok(t, "list_listing_applications", map[string]any{"agent_key": key, "listing_id": listingID}, &apps)
	require.Len(t, apps.Applications, 1)
	assert.Equal(t, first.Human.ID, apps.Applications[0].Applicant.ID)

	var offer hiring.ListingOfferResponse
	st.ok(t, "make_listing_offer", map[string]any{"agent_key": key, "listing_id": listingID, "application_id": app.ID}, &offer)
	assert.Equal(t, hiring.ListingClosed, offer.Listing.Status)
	assert.Equal(t, hiring.ApplicationOffered, offer.Application.Status)
	assert.Equal(t, hiring.Cents(4000), offer.Job.Job.Price)

	st.ok(t, "get_listing", map[string]any{"listing_id": listingID}, &lv)
	assert.Equal(t, hiring.ListingClosed, lv.Listing.Status)
}

func TestLocalValidation(t *testing.T) {
	st := newStack(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want hiring.Code
	}{
		{"missing agent key", "get_agent_status", nil, hiring.CodeMissingCredential},
		{"stream settings on one-time job", "create_job_offer", map[string]any{
			"agent_key": "k", "human_id": marcus, "title": "x", "price_usd": 25, "stream_method": "SUPERFLUID",
		}, hiring.CodeInvalidInput},
		{"stream without rate", "create_job_offer", map[string]any{
			"agent_key": "k", "human_id": marcus, "title": "x", "price_usd": 25,
			"payment_mode": "STREAM", "stream_method": "SUPERFLUID", "stream_interval": "HOURLY",
		}, hiring.CodeInvalidInput},
		{"half a coordinate", "search_humans", map[string]any{"lat": 40.7}, hiring.CodeInvalidInput},
		{"bad expiry", "create_listing", map[string]any{"agent_key": "k", "title": "x", "budget_usd": 10, "expires_at": "next week"}, hiring.CodeInvalidInput},
		{"rating out of range", "leave_review", map[string]any{"agent_key": "k", "job_id": "j", "rating": 9}, hiring.CodeInvalidInput},
		{"fractional rating", "leave_review", map[string]any{"agent_key": "k", "job_id": "j", "rating": 4.5}, hiring.CodeInvalidInput},
		{"unknown status", "list_jobs", map[string]any{"agent_key": "k", "status": "DONE"}, hiring.CodeInvalidInput},
		{"callback without secret", "create_job_offer", map[string]any{
			"agent_key": "k", "human_id": marcus, "title": "x", "price_usd": 25, "callback_url": "https://agent.example/hook",
		}, hiring.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st.fails(t, tt.tool, tt.args, tt.want)
		})
	}
}

func TestPaymentActivationCarriesQRCode(t *testing.T) {
	st := newStack(t)
	key := st.registerAgent(t, "pro-bot")

	st.fails(t, "get_payment_activation", map[string]any{"agent_key": key}, hiring.CodeInvalidInput)

	res := st.call(t, "get_payment_activation", map[string]any{"agent_key": key, "payer_address": sender})
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "from "+sender)
	require.Len(t, res.Content, 2)
	img, ok := res.Content[1].(mcp.ImageContent)
	require.True(t, ok, "second content is %T", res.Content[1])
	assert.Equal(t, "image/png", img.MIMEType)
	assert.NotEmpty(t, img.Data)
	assert.NotContains(t, text(t, res), "qr_code_png_base64")
}

func TestVerifyWebhookSignature(t *testing.T) {
	st := newStack(t)
	payload := `{"id":"evt_1","type":"job.accepted","resource":"job","resource_id":"job_1","status":"ACCEPTED","occurred_at":"2026-05-04T10:00:00Z"}`
	sig := webhook.Sign("whsec", []byte(payload))

	body := st.ok(t, "verify_webhook_signature", map[string]any{"secret": "whsec", "payload": payload, "signature": sig}, nil)
	assert.Contains(t, body, `"valid": true`)
	assert.Contains(t, body, "job.accepted")

	body = st.ok(t, "verify_webhook_signature", map[string]any{"secret": "other", "payload": payload, "signature": sig}, nil)
	assert.Contains(t, body, `"valid": false`)

	st.fails(t, "verify_webhook_signature", map[string]any{"secret": "whsec"}, hiring.CodeInvalidInput)
}
