package hiring

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable failure code shared by the backend and its clients.
type Code string

// Category groups codes by who detects them and how a caller should react.
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryPermission   Category = "permission"
	CategoryState        Category = "state"
	CategoryEconomic     Category = "economic"
	CategoryVerification Category = "verification"
	CategoryNotFound     Category = "not_found"
	CategoryInternal     Category = "internal"
)

const (
	// Input validation
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeMissingCredential Code = "MISSING_CREDENTIAL"

	// Permission / trust
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeAgentPending        Code = "AGENT_PENDING"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeTierIneligible      Code = "TIER_INELIGIBLE"
	CodePromoExhausted      Code = "PROMO_EXHAUSTED"
	CodePromoAlreadyClaimed Code = "PROMO_ALREADY_CLAIMED"
	CodeNotJobOwner         Code = "NOT_JOB_OWNER"
	CodeNotListingOwner     Code = "NOT_LISTING_OWNER"
	CodeDomainNotVerified   Code = "DOMAIN_NOT_VERIFIED"

	// Activation
	CodeCodeExpired       Code = "CODE_EXPIRED"
	CodeCodeNotFoundInPost Code = "CODE_NOT_FOUND_IN_POST"
	CodePostUnreachable   Code = "POST_UNREACHABLE"

	// Payment verification
	CodePaymentNotFound     Code = "PAYMENT_NOT_FOUND"
	CodePaymentInsufficient Code = "PAYMENT_INSUFFICIENT"
	CodePaymentExpired      Code = "PAYMENT_EXPIRED"
	CodePaymentAlreadyUsed  Code = "PAYMENT_ALREADY_USED"
	CodeInsufficientPayment Code = "INSUFFICIENT_PAYMENT"
	CodeHumanWalletMissing  Code = "HUMAN_WALLET_MISSING"
	CodeFlowNotFound        Code = "FLOW_NOT_FOUND"
	CodeFlowRateMismatch    Code = "FLOW_RATE_MISMATCH"
	CodeFlowStillActive     Code = "FLOW_STILL_ACTIVE"
	CodeTickVerification    Code = "TICK_VERIFICATION_FAILED"
	CodeVerificationDown    Code = "VERIFICATION_UNAVAILABLE"

	// State machine
	CodeInvalidState          Code = "INVALID_STATE"
	CodeWrongPaymentMode      Code = "WRONG_PAYMENT_MODE"
	CodeWrongStreamMethod     Code = "WRONG_STREAM_METHOD"
	CodeNotCompleted          Code = "NOT_COMPLETED"
	CodeAlreadyReviewed       Code = "ALREADY_REVIEWED"
	CodeJobClosed             Code = "JOB_CLOSED"
	CodeNoPendingTick         Code = "NO_PENDING_TICK"
	CodeAlreadyStopped        Code = "ALREADY_STOPPED"
	CodeListingNotOpen        Code = "LISTING_NOT_OPEN"
	CodeListingFull           Code = "LISTING_FULL"
	CodeAlreadyApplied        Code = "ALREADY_APPLIED"
	CodeApplicationNotPending Code = "APPLICATION_NOT_PENDING"
	CodeAlreadyClosed         Code = "ALREADY_CLOSED"

	// Economic / spam filters
	CodeBelowMinOfferPrice  Code = "BELOW_MIN_OFFER_PRICE"
	CodeOutOfRange          Code = "OUT_OF_RANGE"
	CodeCoordinatesRequired Code = "COORDINATES_REQUIRED"
	CodeBudgetTooLow        Code = "BUDGET_TOO_LOW"
	CodeExpiryTooFar        Code = "EXPIRY_TOO_FAR"
	CodeExpiryInPast        Code = "EXPIRY_IN_PAST"

	// Lookup
	CodeAgentNotFound       Code = "AGENT_NOT_FOUND"
	CodeHumanNotFound       Code = "HUMAN_NOT_FOUND"
	CodeJobNotFound         Code = "JOB_NOT_FOUND"
	CodeListingNotFound     Code = "LISTING_NOT_FOUND"
	CodeApplicationNotFound Code = "APPLICATION_NOT_FOUND"

	// Infrastructure
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout     Code = "UPSTREAM_TIMEOUT"
	CodeBadUpstreamResponse Code = "BAD_UPSTREAM_RESPONSE"
)

type codeInfo struct {
	status   int
	category Category
}

var registry = map[Code]codeInfo{
	CodeInvalidInput:      {http.StatusBadRequest, CategoryValidation},
	CodeMissingCredential: {http.StatusUnauthorized, CategoryValidation},

	CodeUnauthorized:        {http.StatusUnauthorized, CategoryPermission},
	CodeAgentPending:        {http.StatusForbidden, CategoryPermission},
	CodeRateLimited:         {http.StatusTooManyRequests, CategoryPermission},
	CodeTierIneligible:      {http.StatusForbidden, CategoryPermission},
	CodePromoExhausted:      {http.StatusConflict, CategoryPermission},
	CodePromoAlreadyClaimed: {http.StatusConflict, CategoryPermission},
	CodeNotJobOwner:         {http.StatusForbidden, CategoryPermission},
	CodeNotListingOwner:     {http.StatusForbidden, CategoryPermission},
	CodeDomainNotVerified:   {http.StatusUnprocessableEntity, CategoryVerification},

	CodeCodeExpired:        {http.StatusGone, CategoryVerification},
	CodeCodeNotFoundInPost: {http.StatusUnprocessableEntity, CategoryVerification},
	CodePostUnreachable:    {http.StatusBadGateway, CategoryVerification},

	CodePaymentNotFound:     {http.StatusPaymentRequired, CategoryVerification},
	CodePaymentInsufficient: {http.StatusPaymentRequired, CategoryVerification},
	CodePaymentExpired:      {http.StatusGone, CategoryVerification},
	CodePaymentAlreadyUsed:  {http.StatusConflict, CategoryVerification},
	CodeInsufficientPayment: {http.StatusUnprocessableEntity, CategoryVerification},
	CodeHumanWalletMissing:  {http.StatusUnprocessableEntity, CategoryVerification},
	CodeFlowNotFound:        {http.StatusUnprocessableEntity, CategoryVerification},
	CodeFlowRateMismatch:    {http.StatusUnprocessableEntity, CategoryVerification},
	CodeFlowStillActive:     {http.StatusConflict, CategoryVerification},
	CodeTickVerification:    {http.StatusUnprocessableEntity, CategoryVerification},
	CodeVerificationDown:    {http.StatusServiceUnavailable, CategoryInternal},

	CodeInvalidState:          {http.StatusConflict, CategoryState},
	CodeWrongPaymentMode:      {http.StatusConflict, CategoryState},
	CodeWrongStreamMethod:     {http.StatusConflict, CategoryState},
	CodeNotCompleted:          {http.StatusConflict, CategoryState},
	CodeAlreadyReviewed:       {http.StatusConflict, CategoryState},
	CodeJobClosed:             {http.StatusConflict, CategoryState},
	CodeNoPendingTick:         {http.StatusConflict, CategoryState},
	CodeAlreadyStopped:        {http.StatusConflict, CategoryState},
	CodeListingNotOpen:        {http.StatusConflict, CategoryState},
	CodeListingFull:           {http.StatusConflict, CategoryState},
	CodeAlreadyApplied:        {http.StatusConflict, CategoryState},
	CodeApplicationNotPending: {http.StatusConflict, CategoryState},
	CodeAlreadyClosed:         {http.StatusConflict, CategoryState},

	CodeBelowMinOfferPrice:  {http.StatusUnprocessableEntity, CategoryEconomic},
	CodeOutOfRange:          {http.StatusUnprocessableEntity, CategoryEconomic},
	CodeCoordinatesRequired: {http.StatusUnprocessableEntity, CategoryEconomic},
	CodeBudgetTooLow:        {http.StatusUnprocessableEntity, CategoryEconomic},
	CodeExpiryTooFar:        {http.StatusUnprocessableEntity, CategoryEconomic},
	CodeExpiryInPast:        {http.StatusUnprocessableEntity, CategoryEconomic},

	CodeAgentNotFound:       {http.StatusNotFound, CategoryNotFound},
	CodeHumanNotFound:       {http.StatusNotFound, CategoryNotFound},
	CodeJobNotFound:         {http.StatusNotFound, CategoryNotFound},
	CodeListingNotFound:     {http.StatusNotFound, CategoryNotFound},
	CodeApplicationNotFound: {http.StatusNotFound, CategoryNotFound},

	CodeInternal:            {http.StatusInternalServerError, CategoryInternal},
	CodeUpstreamUnavailable: {http.StatusBadGateway, CategoryInternal},
	CodeUpstreamTimeout:     {http.StatusGatewayTimeout, CategoryInternal},
	CodeBadUpstreamResponse: {http.StatusBadGateway, CategoryInternal},
}

// HTTPStatus maps a code to the status the REST API answers with.
func (c Code) HTTPStatus() int {
	if info, ok := registry[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Category reports the code's error class.
func (c Code) Category() Category {
	if info, ok := registry[c]; ok {
		return info.category
	}
	return CategoryInternal
}

// Error is the structured failure every protocol operation returns.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of e carrying an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	out := &Error{Code: e.Code, Message: e.Message, Details: make(map[string]any, len(e.Details)+1)}
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return out
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a protocol error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the protocol code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeInternal
}

var (
	ErrInvalidState          = &Error{Code: CodeInvalidState, Message: "transition not allowed from current status"}
	ErrWrongPaymentMode      = &Error{Code: CodeWrongPaymentMode, Message: "operation does not apply to this payment mode"}
	ErrWrongStreamMethod     = &Error{Code: CodeWrongStreamMethod, Message: "operation does not apply to this stream method"}
	ErrNotCompleted          = &Error{Code: CodeNotCompleted, Message: "job is not completed"}
	ErrAlreadyReviewed       = &Error{Code: CodeAlreadyReviewed, Message: "job already has a review"}
	ErrJobClosed             = &Error{Code: CodeJobClosed, Message: "job no longer accepts messages"}
	ErrNoPendingTick         = &Error{Code: CodeNoPendingTick, Message: "no tick is currently open"}
	ErrAlreadyStopped        = &Error{Code: CodeAlreadyStopped, Message: "stream already stopped"}
	ErrListingNotOpen        = &Error{Code: CodeListingNotOpen, Message: "listing is not open"}
	ErrListingFull           = &Error{Code: CodeListingFull, Message: "listing reached its applicant cap"}
	ErrApplicationNotPending = &Error{Code: CodeApplicationNotPending, Message: "application is not pending"}
	ErrAlreadyClosed         = &Error{Code: CodeAlreadyClosed, Message: "listing is already closed"}
	ErrAgentPending          = &Error{Code: CodeAgentPending, Message: "agent is not activated"}
	ErrUnauthorized          = &Error{Code: CodeUnauthorized, Message: "missing or invalid credentials"}
)

// Invalid reports a local input validation failure on field.
func Invalid(field, format string, args ...any) *Error {
	e := Errorf(CodeInvalidInput, format, args...)
	e.Details = map[string]any{"field": field}
	return e
}
