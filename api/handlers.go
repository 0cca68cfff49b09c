package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/human-pages-ai/humanpages/core/hiring"
	mw "github.com/human-pages-ai/humanpages/middleware"
)

// Agents and trust.

func (s *Server) registerAgent(r *http.Request, req hiring.RegisterAgentRequest) (hiring.RegisterAgentResponse, error) {
	return s.svc.RegisterAgent(r.Context(), req)
}

func (s *Server) agentStatus(r *http.Request, _ none) (hiring.AgentStatusView, error) {
	return s.svc.AgentStatus(r.Context(), mw.AgentID(r.Context()))
}

func (s *Server) requestActivationCode(r *http.Request, _ none) (hiring.ActivationCodeView, error) {
	return s.svc.RequestActivationCode(r.Context(), mw.AgentID(r.Context()))
}

func (s *Server) verifySocial(r *http.Request, req hiring.VerifySocialRequest) (hiring.AgentStatusView, error) {
	return s.svc.VerifySocial(r.Context(), mw.AgentID(r.Context()), req)
}

func (s *Server) paymentIntent(r *http.Request, req hiring.PaymentIntentRequest) (hiring.PaymentIntent, error) {
	return s.svc.PaymentIntent(r.Context(), mw.AgentID(r.Context()), req)
}

func (s *Server) verifyPayment(r *http.Request, req hiring.VerifyPaymentRequest) (hiring.AgentStatusView, error) {
	return s.svc.VerifyPayment(r.Context(), mw.AgentID(r.Context()), req)
}

func (s *Server) claimPromo(r *http.Request, _ none) (hiring.AgentStatusView, error) {
	return s.svc.ClaimPromo(r.Context(), mw.AgentID(r.Context()))
}

func (s *Server) verifyDomain(r *http.Request, _ none) (hiring.AgentStatusView, error) {
	return s.svc.VerifyDomain(r.Context(), mw.AgentID(r.Context()))
}

// Humans.

func (s *Server) searchHumans(r *http.Request, _ none) (hiring.HumanPage, error) {
	f, err := hiring.ParseHumanFilter(r.URL.Query())
	if err != nil {
		return hiring.HumanPage{}, err
	}
	return s.svc.SearchHumans(r.Context(), f)
}

func (s *Server) getHuman(r *http.Request, _ none) (hiring.PublicProfile, error) {
	return s.svc.GetHuman(r.Context(), id(r))
}

func (s *Server) fullProfile(r *http.Request, _ none) (hiring.FullProfile, error) {
	return s.svc.FullProfile(r.Context(), caller(r), id(r))
}

// Jobs.

func (s *Server) createOffer(r *http.Request, req hiring.OfferRequest) (hiring.JobView, error) {
	return s.svc.CreateOffer(r.Context(), caller(r), req)
}

func (s *Server) listJobs(r *http.Request, _ none) (hiring.JobList, error) {
	status := hiring.JobStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		return hiring.JobList{}, hiring.Invalid("status", "unknown job status %q", status)
	}
	jobs, err := s.svc.ListJobs(r.Context(), mw.AgentID(r.Context()), status)
	return hiring.JobList{Jobs: jobs}, err
}

func (s *Server) getJob(r *http.Request, _ none) (hiring.JobView, error) {
	return s.svc.GetJob(r.Context(), mw.AgentID(r.Context()), id(r))
}

func (s *Server) markPaid(r *http.Request, req hiring.MarkPaidRequest) (hiring.JobView, error) {
	return s.svc.MarkPaid(r.Context(), caller(r), id(r), req)
}

func (s *Server) cancelJob(r *http.Request, req hiring.CancelRequest) (hiring.JobView, error) {
	return s.svc.CancelJob(r.Context(), caller(r), id(r), req)
}

func (s *Server) leaveReview(r *http.Request, req hiring.ReviewRequest) (hiring.JobView, error) {
	return s.svc.LeaveReview(r.Context(), caller(r), id(r), req)
}

func (s *Server) getMessages(r *http.Request, _ none) (hiring.MessageList, error) {
	msgs, err := s.svc.GetMessages(r.Context(), mw.AgentID(r.Context()), id(r))
	return hiring.MessageList{Messages: msgs}, err
}

func (s *Server) sendMessage(r *http.Request, req hiring.MessageRequest) (hiring.Message, error) {
	return s.svc.SendMessage(r.Context(), caller(r), id(r), req)
}

// Streams.

func (s *Server) startStream(r *http.Request, req hiring.StartStreamRequest) (hiring.JobView, error) {
	return s.svc.StartStream(r.Context(), caller(r), id(r), req)
}

func (s *Server) recordTick(r *http.Request, req hiring.TickRequest) (hiring.JobView, error) {
	return s.svc.RecordTick(r.Context(), caller(r), id(r), req)
}

func (s *Server) pauseStream(r *http.Request, _ none) (hiring.JobView, error) {
	return s.svc.PauseStream(r.Context(), caller(r), id(r))
}

func (s *Server) resumeStream(r *http.Request, _ none) (hiring.JobView, error) {
	return s.svc.ResumeStream(r.Context(), caller(r), id(r))
}

func (s *Server) stopStream(r *http.Request, _ none) (hiring.JobView, error) {
	return s.svc.StopStream(r.Context(), caller(r), id(r))
}

// Listings.

func (s *Server) createListing(r *http.Request, req hiring.ListingRequest) (hiring.ListingView, error) {
	return s.svc.CreateListing(r.Context(), caller(r), req)
}

func (s *Server) browseListings(r *http.Request, _ none) (hiring.ListingPage, error) {
	f, err := hiring.ParseListingFilter(r.URL.Query())
	if err != nil {
		return hiring.ListingPage{}, err
	}
	return s.svc.BrowseListings(r.Context(), f)
}

func (s *Server) getListing(r *http.Request, _ none) (hiring.ListingView, error) {
	return s.svc.GetListing(r.Context(), id(r))
}

func (s *Server) myListings(r *http.Request, _ none) (hiring.ListingList, error) {
	ls, err := s.svc.MyListings(r.Context(), mw.AgentID(r.Context()))
	return hiring.ListingList{Listings: ls}, err
}

func (s *Server) listApplications(r *http.Request, _ none) (hiring.ApplicationList, error) {
	apps, err := s.svc.ListApplications(r.Context(), mw.AgentID(r.Context()), id(r))
	return hiring.ApplicationList{Applications: apps}, err
}

func (s *Server) makeListingOffer(r *http.Request, req hiring.ListingOfferRequest) (hiring.ListingOfferResponse, error) {
	return s.svc.MakeListingOffer(r.Context(), caller(r), id(r), chi.URLParam(r, "appID"), req)
}

func (s *Server) cancelListing(r *http.Request, _ none) (hiring.ListingView, error) {
	return s.svc.CancelListing(r.Context(), caller(r), id(r))
}

// Human side.

func (s *Server) acceptJob(r *http.Request, _ none) (hiring.Job, error) {
	return s.svc.AcceptJob(r.Context(), mw.HumanID(r.Context()), id(r))
}

func (s *Server) rejectJob(r *http.Request, _ none) (hiring.Job, error) {
	return s.svc.RejectJob(r.Context(), mw.HumanID(r.Context()), id(r))
}

func (s *Server) completeJob(r *http.Request, _ none) (hiring.Job, error) {
	return s.svc.CompleteJob(r.Context(), mw.HumanID(r.Context()), id(r))
}

func (s *Server) disputeJob(r *http.Request, req hiring.DisputeRequest) (hiring.Job, error) {
	return s.svc.DisputeJob(r.Context(), mw.HumanID(r.Context()), id(r), req)
}

func (s *Server) humanMessages(r *http.Request, _ none) (hiring.MessageList, error) {
	msgs, err := s.svc.HumanMessages(r.Context(), mw.HumanID(r.Context()), id(r))
	return hiring.MessageList{Messages: msgs}, err
}

func (s *Server) humanSendMessage(r *http.Request, req hiring.MessageRequest) (hiring.Message, error) {
	return s.svc.HumanMessage(r.Context(), mw.HumanID(r.Context()), id(r), req)
}

func (s *Server) applyToListing(r *http.Request, req hiring.ApplyRequest) (hiring.Application, error) {
	return s.svc.Apply(r.Context(), mw.HumanID(r.Context()), id(r), req)
}

// Admin.

func (s *Server) registerHuman(r *http.Request, req hiring.Human) (hiring.RegisterHumanResponse, error) {
	return s.svc.RegisterHuman(r.Context(), req)
}

func (s *Server) expireListings(r *http.Request, _ none) (hiring.SweepResult, error) {
	n, err := s.svc.ExpireListings(r.Context())
	return hiring.SweepResult{Expired: n}, err
}
