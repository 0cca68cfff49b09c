package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/ratelimit"
)

// ErrorBody is the wire shape of every failed REST call.
type ErrorBody struct {
	Error *hiring.Error `json:"error"`
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps err onto its protocol code and status. Errors that carry
// no protocol code are reported as INTERNAL_ERROR without their text.
func WriteError(w http.ResponseWriter, err error) {
	e := toProtocol(err)
	if e.Code == hiring.CodeRateLimited {
		setRateLimitFromDetails(w, e.Details)
	}
	WriteJSON(w, e.Code.HTTPStatus(), ErrorBody{Error: e})
}

func toProtocol(err error) *hiring.Error {
	if e, ok := hiring.AsError(err); ok {
		return e
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return hiring.Invalid("body", "request body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, context.DeadlineExceeded):
		return hiring.Errorf(hiring.CodeUpstreamTimeout, "request timed out")
	default:
		return hiring.Errorf(hiring.CodeInternal, "internal error")
	}
}

// SetRateLimit reports a quota decision in the response headers.
func SetRateLimit(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func setRateLimitFromDetails(w http.ResponseWriter, details map[string]any) {
	var d ratelimit.Decision
	d.Limit, _ = details["limit"].(int)
	d.Remaining, _ = details["remaining"].(int)
	d.ResetAt, _ = details["reset_at"].(time.Time)
	SetRateLimit(w, d)
	if !d.ResetAt.IsZero() {
		secs := int(time.Until(d.ResetAt).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
}
