package hiring

import (
	"net/url"
	"strings"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobAccepted  JobStatus = "ACCEPTED"
	JobRejected  JobStatus = "REJECTED"
	JobPaid      JobStatus = "PAID"
	JobStreaming JobStatus = "STREAMING"
	JobPaused    JobStatus = "PAUSED"
	JobCompleted JobStatus = "COMPLETED"
	JobCancelled JobStatus = "CANCELLED"
	JobDisputed  JobStatus = "DISPUTED"
)

// Terminal reports whether no further lifecycle transition can leave s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobRejected, JobCompleted, JobCancelled, JobDisputed:
		return true
	}
	return false
}

// AllowsMessaging reports whether the job's message log is still open.
func (s JobStatus) AllowsMessaging() bool {
	switch s {
	case JobPending, JobAccepted, JobPaid, JobStreaming, JobPaused:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobAccepted, JobRejected, JobPaid, JobStreaming, JobPaused, JobCompleted, JobCancelled, JobDisputed:
		return true
	}
	return false
}

// JobEvent names a lifecycle transition.
type JobEvent string

const (
	EventAccept      JobEvent = "accept"
	EventReject      JobEvent = "reject"
	EventMarkPaid    JobEvent = "mark_paid"
	EventComplete    JobEvent = "complete"
	EventStartStream JobEvent = "start_stream"
	EventPause       JobEvent = "pause"
	EventResume      JobEvent = "resume"
	EventStop        JobEvent = "stop"
	EventCancel      JobEvent = "cancel"
	EventDispute     JobEvent = "dispute"
)

type transition struct {
	from []JobStatus
	to   JobStatus
}

var jobTransitions = map[JobEvent]transition{
	EventAccept:      {from: []JobStatus{JobPending}, to: JobAccepted},
	EventReject:      {from: []JobStatus{JobPending}, to: JobRejected},
	EventMarkPaid:    {from: []JobStatus{JobAccepted}, to: JobPaid},
	EventComplete:    {from: []JobStatus{JobPaid}, to: JobCompleted},
	EventStartStream: {from: []JobStatus{JobAccepted}, to: JobStreaming},
	EventPause:       {from: []JobStatus{JobStreaming}, to: JobPaused},
	EventResume:      {from: []JobStatus{JobPaused}, to: JobStreaming},
	EventStop:        {from: []JobStatus{JobStreaming, JobPaused}, to: JobCompleted},
	EventCancel:      {from: []JobStatus{JobPending, JobAccepted, JobPaid, JobStreaming, JobPaused}, to: JobCancelled},
	EventDispute:     {from: []JobStatus{JobPaid, JobStreaming}, to: JobDisputed},
}

// JobEvents lists every lifecycle event.
func JobEvents() []JobEvent {
	return []JobEvent{EventAccept, EventReject, EventMarkPaid, EventComplete, EventStartStream,
		EventPause, EventResume, EventStop, EventCancel, EventDispute}
}

// NextJobStatus returns the status ev leads to from from, or INVALID_STATE.
func NextJobStatus(from JobStatus, ev JobEvent) (JobStatus, error) {
	t, ok := jobTransitions[ev]
	if !ok {
		return from, Errorf(CodeInvalidState, "unknown job event %q", ev)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return from, (&Error{
		Code:    CodeInvalidState,
		Message: "cannot " + strings.ReplaceAll(string(ev), "_", " ") + " a job in status " + string(from),
	}).WithDetail("status", string(from))
}

type PaymentMode string

const (
	PaymentOneTime PaymentMode = "ONE_TIME"
	PaymentStream  PaymentMode = "STREAM"
)

type StreamMethod string

const (
	MethodSuperfluid    StreamMethod = "SUPERFLUID"
	MethodMicroTransfer StreamMethod = "MICRO_TRANSFER"
)

type Interval string

const (
	IntervalHourly  Interval = "HOURLY"
	IntervalDaily   Interval = "DAILY"
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
)

// Duration of one payment interval. MONTHLY is a 30-day period.
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalHourly:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	case IntervalWeekly:
		return 7 * 24 * time.Hour
	case IntervalMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// StreamTerms configure a STREAM job.
type StreamTerms struct {
	Method   StreamMethod `json:"method"`
	Interval Interval     `json:"interval"`
	Rate     Cents        `json:"rate_cents"`
	MaxTicks *int         `json:"max_ticks,omitempty"`
}

// PaymentTerms is a variant: Stream is set exactly when Mode is STREAM.
type PaymentTerms struct {
	Mode   PaymentMode  `json:"mode"`
	Stream *StreamTerms `json:"stream,omitempty"`
}

func OneTime() PaymentTerms { return PaymentTerms{Mode: PaymentOneTime} }

func Streaming(t StreamTerms) PaymentTerms { return PaymentTerms{Mode: PaymentStream, Stream: &t} }

// Validate checks the variant is well formed.
func (p PaymentTerms) Validate() error {
	switch p.Mode {
	case PaymentOneTime, "":
		if p.Stream != nil {
			return Invalid("stream", "stream settings only apply when payment mode is STREAM")
		}
		return nil
	case PaymentStream:
		if p.Stream == nil {
			return Invalid("stream", "STREAM payment mode requires stream settings")
		}
		s := p.Stream
		if s.Method != MethodSuperfluid && s.Method != MethodMicroTransfer {
			return Invalid("stream.method", "stream method must be SUPERFLUID or MICRO_TRANSFER")
		}
		if s.Interval.Duration() == 0 {
			return Invalid("stream.interval", "interval must be HOURLY, DAILY, WEEKLY or MONTHLY")
		}
		if s.Rate <= 0 {
			return Invalid("stream.rate", "stream rate must be positive")
		}
		if s.MaxTicks != nil && *s.MaxTicks < 1 {
			return Invalid("stream.max_ticks", "max ticks must be at least 1 when set")
		}
		return nil
	}
	return Invalid("payment_mode", "payment mode must be ONE_TIME or STREAM")
}

// Callback is the webhook endpoint for a job or listing.
type Callback struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// Validate requires an absolute http(s) URL and a shared secret.
func (c *Callback) Validate() error {
	if c == nil {
		return nil
	}
	if err := ValidateHTTPURL("callback_url", c.URL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Secret) == "" {
		return Invalid("callback_secret", "callback secret is required with a callback URL")
	}
	return nil
}

// ValidateHTTPURL rejects anything that is not an absolute http(s) URL.
func ValidateHTTPURL(field, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Invalid(field, "%s must be an absolute http(s) URL", field)
	}
	return nil
}

type PaymentRecord struct {
	TxHash     string    `json:"tx_hash"`
	Network    string    `json:"network"`
	Amount     Cents     `json:"amount_cents"`
	VerifiedAt time.Time `json:"verified_at"`
}

type Review struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Timeline records when each transition happened.
type Timeline struct {
	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	StreamingAt *time.Time `json:"streaming_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Job is a single engagement between an agent and a human.
type Job struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agent_id"`
	HumanID       string         `json:"human_id"`
	ListingID     string         `json:"listing_id,omitempty"`
	ApplicationID string         `json:"application_id,omitempty"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      string         `json:"category,omitempty"`
	Price         Cents          `json:"price_cents"`
	Terms         PaymentTerms   `json:"terms"`
	Status        JobStatus      `json:"status"`
	Timeline      Timeline       `json:"timeline"`
	Location      *Coordinates   `json:"location,omitempty"`
	Payment       *PaymentRecord `json:"payment,omitempty"`
	Stream        *StreamState   `json:"stream,omitempty"`
	Callback      *Callback      `json:"callback,omitempty"`
	Review        *Review        `json:"review,omitempty"`
	CancelReason  string         `json:"cancel_reason,omitempty"`
	DisputeReason string         `json:"dispute_reason,omitempty"`
}

// NewJob builds a PENDING job. STREAM jobs start AWAITING_START.
func NewJob(id string, now time.Time) Job {
	return Job{
		ID:       id,
		Status:   JobPending,
		Terms:    OneTime(),
		Timeline: Timeline{CreatedAt: now, UpdatedAt: now},
	}
}

// SetTerms installs payment terms and, for STREAM, the awaiting stream state.
func (j *Job) SetTerms(t PaymentTerms) {
	if t.Mode == "" {
		t.Mode = PaymentOneTime
	}
	j.Terms = t
	j.Stream = nil
	if t.Mode == PaymentStream {
		j.Stream = newStreamState(*t.Stream)
	}
}

func (j *Job) apply(ev JobEvent, now time.Time) error {
	next, err := NextJobStatus(j.Status, ev)
	if err != nil {
		return err
	}
	j.Status = next
	j.Timeline.UpdatedAt = now
	at := now
	switch next {
	case JobAccepted:
		j.Timeline.AcceptedAt = &at
	case JobRejected:
		j.Timeline.RejectedAt = &at
	case JobPaid:
		j.Timeline.PaidAt = &at
	case JobStreaming:
		if j.Timeline.StreamingAt == nil {
			j.Timeline.StreamingAt = &at
		}
	case JobPaused:
		j.Timeline.PausedAt = &at
	case JobCompleted:
		j.Timeline.CompletedAt = &at
	case JobCancelled:
		j.Timeline.CancelledAt = &at
	case JobDisputed:
		j.Timeline.DisputedAt = &at
	}
	return nil
}

func (j *Job) Accept(now time.Time) error { return j.apply(EventAccept, now) }

func (j *Job) Reject(now time.Time) error { return j.apply(EventReject, now) }

// Complete marks a paid one-time job done. Streams complete through StopStream.
func (j *Job) Complete(now time.Time) error { return j.apply(EventComplete, now) }

func (j *Job) Dispute(reason string, now time.Time) error {
	if err := j.apply(EventDispute, now); err != nil {
		return err
	}
	j.DisputeReason = reason
	if j.Stream != nil && j.Stream.Phase == PhaseActive {
		j.Stream.halt(now)
	}
	return nil
}

// CanMarkPaid checks the one-time payment preconditions that do not depend on chain state.
func (j *Job) CanMarkPaid(amount Cents) error {
	if _, err := NextJobStatus(j.Status, EventMarkPaid); err != nil {
		return err
	}
	if j.Terms.Mode != PaymentOneTime {
		return Errorf(CodeWrongPaymentMode, "STREAM jobs are paid through the stream operations")
	}
	if amount < j.Price {
		return (&Error{
			Code:    CodeInsufficientPayment,
			Message: "paid " + amount.String() + " but the agreed price is " + j.Price.String(),
		}).WithDetail("price_cents", int64(j.Price))
	}
	return nil
}

// MarkPaid records a verified one-time payment.
func (j *Job) MarkPaid(p PaymentRecord, now time.Time) error {
	if err := j.CanMarkPaid(p.Amount); err != nil {
		return err
	}
	if err := j.apply(EventMarkPaid, now); err != nil {
		return err
	}
	j.Payment = &p
	return nil
}

// Cancel ends the job from any non-terminal status, halting an open stream.
func (j *Job) Cancel(reason string, now time.Time) error {
	if err := j.apply(EventCancel, now); err != nil {
		return err
	}
	j.CancelReason = reason
	if j.Stream != nil && j.Stream.Phase != PhaseStopped {
		j.Stream.halt(now)
	}
	return nil
}

// AttachReview leaves the one-shot review on a completed job.
func (j *Job) AttachReview(rating int, comment string, now time.Time) error {
	if rating < MinRating || rating > MaxRating {
		return Invalid("rating", "rating must be an integer between %d and %d", MinRating, MaxRating)
	}
	if j.Status != JobCompleted {
		return ErrNotCompleted.WithDetail("status", string(j.Status))
	}
	if j.Review != nil {
		return ErrAlreadyReviewed
	}
	j.Review = &Review{Rating: rating, Comment: comment, CreatedAt: now}
	j.Timeline.UpdatedAt = now
	return nil
}

// PaymentUnlocked reports whether the human's payout details are visible to the agent.
func (j Job) PaymentUnlocked() bool {
	if j.Timeline.AcceptedAt == nil {
		return false
	}
	return j.Status != JobRejected
}

// Clone returns a deep copy safe to mutate.
func (j Job) Clone() Job {
	out := j
	if j.Terms.Stream != nil {
		st := *j.Terms.Stream
		st.MaxTicks = cloneInt(st.MaxTicks)
		out.Terms.Stream = &st
	}
	if j.Location != nil {
		loc := *j.Location
		out.Location = &loc
	}
	if j.Payment != nil {
		p := *j.Payment
		out.Payment = &p
	}
	if j.Callback != nil {
		c := *j.Callback
		out.Callback = &c
	}
	if j.Review != nil {
		r := *j.Review
		out.Review = &r
	}
	if j.Stream != nil {
		out.Stream = j.Stream.clone()
	}
	return out
}

// Redacted strips the callback secret before the job leaves the backend.
func (j Job) Redacted() Job {
	out := j.Clone()
	if out.Callback != nil {
		out.Callback.Secret = ""
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

const MaxMessageLength = 2000

// Review ratings are whole stars.
const (
	MinRating = 1
	MaxRating = 5
)

type MessageSender string

const (
	SenderAgent MessageSender = "AGENT"
	SenderHuman MessageSender = "HUMAN"
)

// Message is one entry in a job's append-only conversation log.
type Message struct {
	ID        string        `json:"id"`
	JobID     string        `json:"job_id"`
	Sender    MessageSender `json:"sender"`
	Body      string        `json:"body"`
	CreatedAt time.Time     `json:"created_at"`
}

// ValidateMessageBody enforces the message length bounds.
func ValidateMessageBody(body string) error {
	n := len([]rune(strings.TrimSpace(body)))
	if n == 0 {
		return Invalid("body", "message body is required")
	}
	if n > MaxMessageLength {
		return Invalid("body", "message body exceeds %d characters", MaxMessageLength)
	}
	return nil
}
