package hiring

import (
	"math/big"
	"strings"
	"time"
)

type StreamPhase string

const (
	PhaseAwaitingStart StreamPhase = "AWAITING_START"
	PhaseActive        StreamPhase = "ACTIVE"
	PhasePaused        StreamPhase = "PAUSED"
	PhaseStopped       StreamPhase = "STOPPED"
)

// PendingTick is the currently open MICRO_TRANSFER payment slot.
type PendingTick struct {
	Number   int       `json:"number"`
	OpenedAt time.Time `json:"opened_at"`
	DueAt    time.Time `json:"due_at"`
}

// TickRecord is one verified MICRO_TRANSFER payment.
type TickRecord struct {
	Number     int       `json:"number"`
	TxHash     string    `json:"tx_hash"`
	Amount     Cents     `json:"amount_cents"`
	VerifiedAt time.Time `json:"verified_at"`
}

// StreamState is embedded in STREAM jobs. TotalPaid never decreases.
type StreamState struct {
	Method          StreamMethod `json:"method"`
	Interval        Interval     `json:"interval"`
	Rate            Cents        `json:"rate_cents"`
	MaxTicks        *int         `json:"max_ticks,omitempty"`
	Phase           StreamPhase  `json:"phase"`
	Network         string       `json:"network,omitempty"`
	Token           string       `json:"token,omitempty"`
	SenderAddress   string       `json:"sender_address,omitempty"`
	ReceiverAddress string       `json:"receiver_address,omitempty"`
	TickCount       int          `json:"tick_count"`
	TotalPaid       Cents        `json:"total_paid_cents"`
	PendingTick     *PendingTick `json:"pending_tick,omitempty"`
	SkippedTicks    int          `json:"skipped_ticks,omitempty"`
	Ticks           []TickRecord `json:"ticks,omitempty"`

	// SUPERFLUID bookkeeping: FlowRate is super-token wei per second of the
	// current flow, ActiveSeconds the time accrued by finished segments.
	FlowRate      string     `json:"flow_rate,omitempty"`
	FlowStartedAt *time.Time `json:"flow_started_at,omitempty"`
	ActiveSeconds int64      `json:"active_seconds,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

func newStreamState(t StreamTerms) *StreamState {
	return &StreamState{
		Method:   t.Method,
		Interval: t.Interval,
		Rate:     t.Rate,
		MaxTicks: cloneInt(t.MaxTicks),
		Phase:    PhaseAwaitingStart,
	}
}

// ExpectedFlowRate is the per-second rate matching the agreed terms.
func (s *StreamState) ExpectedFlowRate() *big.Int {
	return FlowRateFor(s.Rate, s.Interval)
}

func (s *StreamState) flowRate() *big.Int {
	r, ok := new(big.Int).SetString(s.FlowRate, 10)
	if !ok {
		return new(big.Int)
	}
	return r
}

func (s *StreamState) maxTicksReached() bool {
	return s.MaxTicks != nil && s.TickCount >= *s.MaxTicks
}

func (s *StreamState) openTick(now time.Time) {
	s.PendingTick = &PendingTick{
		Number:   s.TickCount + 1,
		OpenedAt: now,
		DueAt:    now.Add(s.Interval.Duration()),
	}
}

func (s *StreamState) beginFlow(rate *big.Int, now time.Time) {
	s.FlowRate = rate.String()
	at := now
	s.FlowStartedAt = &at
}

// accrueFlow folds the running flow segment into TotalPaid.
func (s *StreamState) accrueFlow(now time.Time) {
	if s.Method != MethodSuperfluid || s.FlowStartedAt == nil {
		return
	}
	secs := int64(now.Sub(*s.FlowStartedAt).Seconds())
	if secs > 0 {
		s.ActiveSeconds += secs
		s.TotalPaid += FlowAccrual(s.flowRate(), secs)
	}
	s.FlowStartedAt = nil
}

// halt stops the stream without touching the job status.
func (s *StreamState) halt(now time.Time) {
	s.accrueFlow(now)
	s.PendingTick = nil
	s.Phase = PhaseStopped
	at := now
	s.StoppedAt = &at
}

func (s *StreamState) clone() *StreamState {
	out := *s
	out.MaxTicks = cloneInt(s.MaxTicks)
	if s.PendingTick != nil {
		p := *s.PendingTick
		out.PendingTick = &p
	}
	if s.Ticks != nil {
		out.Ticks = append([]TickRecord(nil), s.Ticks...)
	}
	out.FlowStartedAt = cloneTime(s.FlowStartedAt)
	out.StartedAt = cloneTime(s.StartedAt)
	out.StoppedAt = cloneTime(s.StoppedAt)
	return &out
}

// StreamStart carries what start_stream locks in.
type StreamStart struct {
	Network         string
	Token           string
	SenderAddress   string
	ReceiverAddress string
	// FlowRate is the verified on-chain rate; SUPERFLUID only.
	FlowRate *big.Int
}

func (j *Job) stream() (*StreamState, error) {
	if j.Terms.Mode != PaymentStream || j.Stream == nil {
		return nil, Errorf(CodeWrongPaymentMode, "job %s is not a STREAM job", j.ID)
	}
	return j.Stream, nil
}

// CheckStreamStart validates start_stream preconditions before any chain lookup.
func (j *Job) CheckStreamStart() error {
	if _, err := j.stream(); err != nil {
		return err
	}
	_, err := NextJobStatus(j.Status, EventStartStream)
	return err
}

// StartStream moves an ACCEPTED stream job to STREAMING.
func (j *Job) StartStream(st StreamStart, now time.Time) error {
	s, err := j.stream()
	if err != nil {
		return err
	}
	if err := j.CheckStreamStart(); err != nil {
		return err
	}
	if s.Method == MethodSuperfluid {
		if err := s.checkFlow(st.FlowRate); err != nil {
			return err
		}
	}
	if err := j.apply(EventStartStream, now); err != nil {
		return err
	}
	s.Network = st.Network
	s.Token = st.Token
	s.SenderAddress = st.SenderAddress
	s.ReceiverAddress = st.ReceiverAddress
	s.Phase = PhaseActive
	at := now
	s.StartedAt = &at
	switch s.Method {
	case MethodSuperfluid:
		s.beginFlow(st.FlowRate, now)
	case MethodMicroTransfer:
		s.openTick(now)
	}
	return nil
}

func (s *StreamState) checkFlow(rate *big.Int) error {
	if rate == nil || rate.Sign() <= 0 {
		return Errorf(CodeFlowNotFound, "no active flow from the sender to the human's wallet")
	}
	expected := s.ExpectedFlowRate()
	if !FlowRateSufficient(rate, expected) {
		return (&Error{
			Code:    CodeFlowRateMismatch,
			Message: "on-chain flow rate is below the agreed rate",
		}).WithDetail("flow_rate", rate.String()).WithDetail("expected_flow_rate", expected.String())
	}
	return nil
}

// CheckTick validates record_stream_tick preconditions before chain verification.
func (j *Job) CheckTick() error {
	s, err := j.stream()
	if err != nil {
		return err
	}
	if s.Method != MethodMicroTransfer {
		return Errorf(CodeWrongStreamMethod, "SUPERFLUID ticks are inferred from flow time and never recorded")
	}
	if s.Phase != PhaseActive || s.PendingTick == nil {
		return ErrNoPendingTick.WithDetail("phase", string(s.Phase))
	}
	return nil
}

// RecordTick books a verified transfer of exactly one interval's rate
// against the pending tick. When the max tick cap is reached the stream
// stops and the job completes.
func (j *Job) RecordTick(txHash string, amount Cents, now time.Time) (stopped bool, err error) {
	if err := j.CheckTick(); err != nil {
		return false, err
	}
	s := j.Stream
	for _, t := range s.Ticks {
		if strings.EqualFold(t.TxHash, txHash) {
			return false, Errorf(CodeTickVerification, "transaction %s was already recorded for tick %d", txHash, t.Number)
		}
	}
	if amount != s.Rate {
		return false, (&Error{
			Code:    CodeTickVerification,
			Message: "transfer of " + amount.String() + " does not match the per-interval rate of " + s.Rate.String(),
		}).WithDetail("rate_cents", int64(s.Rate))
	}
	s.Ticks = append(s.Ticks, TickRecord{Number: s.PendingTick.Number, TxHash: txHash, Amount: amount, VerifiedAt: now})
	s.TickCount++
	s.TotalPaid += amount
	j.Timeline.UpdatedAt = now
	if s.maxTicksReached() {
		if err := j.apply(EventStop, now); err != nil {
			return false, err
		}
		s.halt(now)
		return true, nil
	}
	s.openTick(now)
	return false, nil
}

// CheckPause validates pause preconditions before chain verification.
func (j *Job) CheckPause() error {
	if _, err := j.stream(); err != nil {
		return err
	}
	_, err := NextJobStatus(j.Status, EventPause)
	return err
}

// PauseStream pauses an active stream. flowRate is the sender's current
// on-chain rate and must be zero for SUPERFLUID.
func (j *Job) PauseStream(flowRate *big.Int, now time.Time) error {
	if err := j.CheckPause(); err != nil {
		return err
	}
	s := j.Stream
	if s.Method == MethodSuperfluid && flowRate != nil && flowRate.Sign() > 0 {
		return (&Error{
			Code:    CodeFlowStillActive,
			Message: "delete the on-chain flow before pausing",
		}).WithDetail("flow_rate", flowRate.String())
	}
	if err := j.apply(EventPause, now); err != nil {
		return err
	}
	switch s.Method {
	case MethodSuperfluid:
		s.accrueFlow(now)
	case MethodMicroTransfer:
		if s.PendingTick != nil {
			s.SkippedTicks++
			s.PendingTick = nil
		}
	}
	s.Phase = PhasePaused
	return nil
}

// CheckResume validates resume preconditions before chain verification.
func (j *Job) CheckResume() error {
	if _, err := j.stream(); err != nil {
		return err
	}
	_, err := NextJobStatus(j.Status, EventResume)
	return err
}

// ResumeStream reopens a paused stream. SUPERFLUID needs a freshly verified flow.
func (j *Job) ResumeStream(flowRate *big.Int, now time.Time) error {
	if err := j.CheckResume(); err != nil {
		return err
	}
	s := j.Stream
	if s.Method == MethodSuperfluid {
		if err := s.checkFlow(flowRate); err != nil {
			return err
		}
	}
	if err := j.apply(EventResume, now); err != nil {
		return err
	}
	switch s.Method {
	case MethodSuperfluid:
		s.beginFlow(flowRate, now)
	case MethodMicroTransfer:
		s.openTick(now)
	}
	s.Phase = PhaseActive
	return nil
}

// StopStream ends the stream for good and completes the job.
func (j *Job) StopStream(now time.Time) error {
	s, err := j.stream()
	if err != nil {
		return err
	}
	if s.Phase == PhaseStopped && j.Status == JobCompleted {
		return ErrAlreadyStopped
	}
	if err := j.apply(EventStop, now); err != nil {
		return err
	}
	s.halt(now)
	return nil
}

// StreamSnapshot is the read projection of a stream at a point in time.
type StreamSnapshot struct {
	StreamState
	InferredTicks   int   `json:"inferred_ticks,omitempty"`
	ProjectedPaid   Cents `json:"projected_paid_cents"`
	ElapsedSeconds  int64 `json:"elapsed_active_seconds,omitempty"`
	MaxTicksReached bool  `json:"max_ticks_reached"`
}

// Snapshot projects the stream at now. SUPERFLUID ticks are inferred from
// active flow time; MICRO_TRANSFER reports booked ticks only.
func (s *StreamState) Snapshot(now time.Time) StreamSnapshot {
	snap := StreamSnapshot{StreamState: *s.clone(), ProjectedPaid: s.TotalPaid}
	if s.Method != MethodSuperfluid {
		snap.MaxTicksReached = s.maxTicksReached()
		return snap
	}
	elapsed := s.ActiveSeconds
	if s.FlowStartedAt != nil {
		running := int64(now.Sub(*s.FlowStartedAt).Seconds())
		if running > 0 {
			elapsed += running
			snap.ProjectedPaid += FlowAccrual(s.flowRate(), running)
		}
	}
	snap.ElapsedSeconds = elapsed
	if secs := int64(s.Interval.Duration().Seconds()); secs > 0 {
		snap.InferredTicks = int(elapsed / secs)
	}
	if s.MaxTicks != nil && snap.InferredTicks >= *s.MaxTicks {
		snap.InferredTicks = *s.MaxTicks
		snap.MaxTicksReached = true
	}
	snap.TickCount = snap.InferredTicks
	return snap
}
