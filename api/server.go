// Package api is the collaborator REST surface over the marketplace service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"

	_ "github.com/human-pages-ai/humanpages/docs"

	"github.com/human-pages-ai/humanpages/core/hiring"
	mw "github.com/human-pages-ai/humanpages/middleware"
	"github.com/human-pages-ai/humanpages/services"
	"github.com/human-pages-ai/humanpages/telemetry"
)

const defaultMaxBody = 1 << 20

// Options tunes the HTTP surface.
type Options struct {
	AdminKey       string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

// Server wires HTTP handlers for the collaborator API.
type Server struct {
	svc  *services.Service
	opts Options
	log  *slog.Logger
}

// New constructs the API server.
func New(svc *services.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &Server{svc: svc, opts: opts, log: opts.Logger.With("component", "api")}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(mw.Recovery(s.log), mw.Logging(s.log), mw.SecurityHeaders, mw.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		mw.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())
	r.Get("/swagger.json", s.handleSwagger)

	agent := mw.RequireAgent(s.svc, s.log)
	human := mw.RequireHuman(s.svc, s.log)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.ContentType, mw.BodyLimit(s.opts.MaxBodyBytes), mw.Timeout(s.opts.RequestTimeout), quotaReport)

		r.Post("/agents", handle(http.StatusCreated, s.registerAgent))
		r.Get("/humans", handle(http.StatusOK, s.searchHumans))
		r.Get("/humans/{id}", handle(http.StatusOK, s.getHuman))
		r.Get("/listings", handle(http.StatusOK, s.browseListings))
		r.Get("/listings/{id}", handle(http.StatusOK, s.getListing))

		r.Group(func(r chi.Router) {
			r.Use(agent)

			r.Get("/agents/me", handle(http.StatusOK, s.agentStatus))
			r.Post("/agents/me/activation/social", handle(http.StatusOK, s.requestActivationCode))
			r.Post("/agents/me/activation/social/verify", handle(http.StatusOK, s.verifySocial))
			r.Post("/agents/me/activation/payment", handle(http.StatusOK, s.paymentIntent))
			r.Post("/agents/me/activation/payment/verify", handle(http.StatusOK, s.verifyPayment))
			r.Post("/agents/me/promo", handle(http.StatusOK, s.claimPromo))
			r.Post("/agents/me/domain/verify", handle(http.StatusOK, s.verifyDomain))

			r.Get("/humans/{id}/profile", handle(http.StatusOK, s.fullProfile))

			r.Post("/jobs", handle(http.StatusCreated, s.createOffer))
			r.Get("/jobs", handle(http.StatusOK, s.listJobs))
			r.Get("/jobs/{id}", handle(http.StatusOK, s.getJob))
			r.Post("/jobs/{id}/paid", handle(http.StatusOK, s.markPaid))
			r.Post("/jobs/{id}/cancel", handle(http.StatusOK, s.cancelJob))
			r.Post("/jobs/{id}/review", handle(http.StatusOK, s.leaveReview))
			r.Get("/jobs/{id}/messages", handle(http.StatusOK, s.getMessages))
			r.Post("/jobs/{id}/messages", handle(http.StatusCreated, s.sendMessage))
			r.Post("/jobs/{id}/stream/start", handle(http.StatusOK, s.startStream))
			r.Post("/jobs/{id}/stream/tick", handle(http.StatusOK, s.recordTick))
			r.Post("/jobs/{id}/stream/pause", handle(http.StatusOK, s.pauseStream))
			r.Post("/jobs/{id}/stream/resume", handle(http.StatusOK, s.resumeStream))
			r.Post("/jobs/{id}/stream/stop", handle(http.StatusOK, s.stopStream))

			r.Post("/listings", handle(http.StatusCreated, s.createListing))
			r.Get("/listings/mine", handle(http.StatusOK, s.myListings))
			r.Get("/listings/{id}/applications", handle(http.StatusOK, s.listApplications))
			r.Post("/listings/{id}/applications/{appID}/offer", handle(http.StatusCreated, s.makeListingOffer))
			r.Post("/listings/{id}/cancel", handle(http.StatusOK, s.cancelListing))
		})

		r.Route("/human", func(r chi.Router) {
			r.Use(human)
			r.Post("/jobs/{id}/accept", handle(http.StatusOK, s.acceptJob))
			r.Post("/jobs/{id}/reject", handle(http.StatusOK, s.rejectJob))
			r.Post("/jobs/{id}/complete", handle(http.StatusOK, s.completeJob))
			r.Post("/jobs/{id}/dispute", handle(http.StatusOK, s.disputeJob))
			r.Get("/jobs/{id}/messages", handle(http.StatusOK, s.humanMessages))
			r.Post("/jobs/{id}/messages", handle(http.StatusCreated, s.humanSendMessage))
			r.Post("/listings/{id}/applications", handle(http.StatusCreated, s.applyToListing))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireAdmin(s.opts.AdminKey, s.log))
			r.Post("/humans", handle(http.StatusCreated, s.registerHuman))
			r.Post("/listings/expire", handle(http.StatusOK, s.expireListings))
		})
	})
	return r
}

func (s *Server) handleSwagger(w http.ResponseWriter, _ *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		mw.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

// quotaReport lets gated operations hand their quota decision back to the
// response headers.
func quotaReport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := services.WithQuotaReport(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return err
	default:
		return hiring.Invalid("body", "malformed JSON body: %v", err)
	}
}

func reply(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if d, ok := services.QuotaReport(r.Context()); ok {
		mw.SetRateLimit(w, d)
	}
	if err != nil {
		mw.WriteError(w, err)
		return
	}
	mw.WriteJSON(w, status, v)
}

func caller(r *http.Request) services.Caller {
	return services.Caller{
		AgentID:      mw.AgentID(r.Context()),
		PaymentProof: mw.PaymentProof(r.Context()),
	}
}

// none is the request type of operations without a body.
type none struct{}

// handle decodes Req, runs fn and writes its result with status.
func handle[Req, Resp any](status int, fn func(r *http.Request, req Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decode(r, &req); err != nil {
			reply(w, r, 0, nil, err)
			return
		}
		resp, err := fn(r, req)
		reply(w, r, status, resp, err)
	}
}

func id(r *http.Request) string { return chi.URLParam(r, "id") }
