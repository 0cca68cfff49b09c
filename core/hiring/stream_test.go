package hiring

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func startedMicroJob(t *testing.T, maxTicks *int) (Job, time.Time) {
	t.Helper()
	j := newStreamJob(MethodMicroTransfer, maxTicks)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := j.Accept(now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := j.StartStream(StreamStart{Network: "base", SenderAddress: "0xsender"}, now); err != nil {
		t.Fatalf("start: %v", err)
	}
	return j, now
}

func TestMicroTransferTicks(t *testing.T) {
	j, now := startedMicroJob(t, nil)
	if j.Status != JobStreaming || j.Stream.Phase != PhaseActive {
		t.Fatalf("unexpected state after start: %s / %s", j.Status, j.Stream.Phase)
	}
	if j.Stream.PendingTick == nil || j.Stream.PendingTick.Number != 1 {
		t.Fatalf("expected tick #1 open, got %+v", j.Stream.PendingTick)
	}

	if _, err := j.RecordTick("0xaaa", 1000, now); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if j.Stream.TickCount != 1 || j.Stream.TotalPaid != 1000 || j.Stream.PendingTick.Number != 2 {
		t.Fatalf("after tick 1: %+v", j.Stream)
	}

	_, err := j.RecordTick("0xbbb", 500, now)
	if !errors.Is(err, &Error{Code: CodeTickVerification}) {
		t.Fatalf("expected TICK_VERIFICATION_FAILED, got %v", err)
	}
	if j.Stream.TickCount != 1 || j.Stream.TotalPaid != 1000 {
		t.Fatalf("failed tick changed bookkeeping: %+v", j.Stream)
	}

	if _, err := j.RecordTick("0xAAA", 1000, now); CodeOf(err) != CodeTickVerification {
		t.Fatalf("expected replayed tx to fail, got %v", err)
	}

	if _, err := j.RecordTick("0xccc", 1500, now); CodeOf(err) != CodeTickVerification {
		t.Fatalf("expected overpayment to fail, got %v", err)
	}
	if j.Stream.TickCount != 1 || j.Stream.TotalPaid != 1000 || j.Stream.PendingTick.Number != 2 {
		t.Fatalf("overpaid tick changed bookkeeping: %+v", j.Stream)
	}
}

func TestMicroTransferTotalEqualsSumOfTicks(t *testing.T) {
	max := 5
	j, now := startedMicroJob(t, &max)
	amounts := []Cents{1000, 1000, 1000, 1000, 1000, 1000}
	for i, a := range amounts {
		now = now.Add(24 * time.Hour)
		_, err := j.RecordTick(string(rune('a'+i)), a, now)
		if i >= max {
			if CodeOf(err) != CodeNoPendingTick {
				t.Fatalf("tick beyond cap: expected NO_PENDING_TICK, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}
	var sum Cents
	for _, tr := range j.Stream.Ticks {
		sum += tr.Amount
	}
	if sum != j.Stream.TotalPaid {
		t.Fatalf("total %s != sum of ticks %s", j.Stream.TotalPaid, sum)
	}
	if j.Stream.TickCount > max {
		t.Fatalf("tick count %d exceeds cap %d", j.Stream.TickCount, max)
	}
	if j.Status != JobCompleted || j.Stream.Phase != PhaseStopped {
		t.Fatalf("stream should auto-stop at cap, got %s / %s", j.Status, j.Stream.Phase)
	}
}

func TestMicroTransferPauseSkipsPendingTick(t *testing.T) {
	j, now := startedMicroJob(t, nil)
	if err := j.PauseStream(nil, now); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if j.Status != JobPaused || j.Stream.PendingTick != nil || j.Stream.SkippedTicks != 1 {
		t.Fatalf("unexpected paused stream: %s %+v", j.Status, j.Stream)
	}
	if _, err := j.RecordTick("0x1", 1000, now); !errors.Is(err, ErrNoPendingTick) {
		t.Fatalf("expected NO_PENDING_TICK while paused, got %v", err)
	}
	if err := j.ResumeStream(nil, now); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if j.Stream.PendingTick == nil || j.Stream.PendingTick.Number != 1 {
		t.Fatalf("resume should reopen tick #1, got %+v", j.Stream.PendingTick)
	}
}

func TestStopStream(t *testing.T) {
	j, now := startedMicroJob(t, nil)
	if err := j.StopStream(now); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if j.Status != JobCompleted {
		t.Fatalf("expected COMPLETED, got %s", j.Status)
	}
	if err := j.StopStream(now); !errors.Is(err, ErrAlreadyStopped) {
		t.Fatalf("expected ALREADY_STOPPED, got %v", err)
	}

	pending := newStreamJob(MethodMicroTransfer, nil)
	if err := pending.StopStream(now); CodeOf(err) != CodeInvalidState {
		t.Fatalf("stop before start: expected INVALID_STATE, got %v", err)
	}
}

func TestSuperfluidStream(t *testing.T) {
	j := newStreamJob(MethodSuperfluid, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = j.Accept(now)
	expected := j.Stream.ExpectedFlowRate()

	if err := j.StartStream(StreamStart{Network: "base"}, now); CodeOf(err) != CodeFlowNotFound {
		t.Fatalf("expected FLOW_NOT_FOUND, got %v", err)
	}
	low := new(big.Int).Div(new(big.Int).Mul(expected, big.NewInt(90)), big.NewInt(100))
	if err := j.StartStream(StreamStart{Network: "base", FlowRate: low}, now); CodeOf(err) != CodeFlowRateMismatch {
		t.Fatalf("expected FLOW_RATE_MISMATCH, got %v", err)
	}
	if j.Status != JobAccepted {
		t.Fatalf("failed start changed status to %s", j.Status)
	}
	if err := j.StartStream(StreamStart{Network: "base", FlowRate: expected}, now); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := j.RecordTick("0x1", 1000, now); CodeOf(err) != CodeWrongStreamMethod {
		t.Fatalf("expected WRONG_STREAM_METHOD, got %v", err)
	}

	later := now.Add(48 * time.Hour)
	snap := j.Stream.Snapshot(later)
	if snap.InferredTicks != 2 {
		t.Fatalf("expected 2 inferred ticks after two days, got %d", snap.InferredTicks)
	}
	if snap.ProjectedPaid < 1990 || snap.ProjectedPaid > 2000 {
		t.Fatalf("projected paid %s, want about $20", snap.ProjectedPaid)
	}

	if err := j.PauseStream(expected, later); CodeOf(err) != CodeFlowStillActive {
		t.Fatalf("expected FLOW_STILL_ACTIVE, got %v", err)
	}
	if err := j.PauseStream(big.NewInt(0), later); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paidAtPause := j.Stream.TotalPaid
	if paidAtPause != snap.ProjectedPaid {
		t.Fatalf("accrued %s at pause, projected %s", paidAtPause, snap.ProjectedPaid)
	}
	if got := j.Stream.Snapshot(later.Add(72 * time.Hour)).ProjectedPaid; got != paidAtPause {
		t.Fatalf("paused stream kept accruing: %s", got)
	}

	if err := j.ResumeStream(nil, later); CodeOf(err) != CodeFlowNotFound {
		t.Fatalf("resume without a fresh flow: expected FLOW_NOT_FOUND, got %v", err)
	}
	if err := j.ResumeStream(expected, later); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := j.StopStream(later.Add(24 * time.Hour)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if j.Stream.TotalPaid < paidAtPause {
		t.Fatalf("total paid decreased: %s < %s", j.Stream.TotalPaid, paidAtPause)
	}
}

func TestSuperfluidMaxTicksReached(t *testing.T) {
	max := 3
	j := newStreamJob(MethodSuperfluid, &max)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = j.Accept(now)
	if err := j.StartStream(StreamStart{FlowRate: j.Stream.ExpectedFlowRate()}, now); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := j.Stream.Snapshot(now.Add(10 * 24 * time.Hour))
	if snap.InferredTicks != max || !snap.MaxTicksReached {
		t.Fatalf("expected capped inferred ticks, got %d reached=%v", snap.InferredTicks, snap.MaxTicksReached)
	}
}

func TestCancelHaltsStream(t *testing.T) {
	j, now := startedMicroJob(t, nil)
	if err := j.Cancel("changed plans", now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if j.Stream.Phase != PhaseStopped || j.Stream.PendingTick != nil {
		t.Fatalf("stream still open after cancel: %+v", j.Stream)
	}
	err := j.StopStream(now)
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("expected INVALID_STATE after cancel, got %v", err)
	}
	if e, _ := AsError(err); e.Details["status"] != string(JobCancelled) {
		t.Fatalf("expected status detail CANCELLED, got %v", e.Details)
	}
}

func TestStopStreamAfterDispute(t *testing.T) {
	j, now := startedMicroJob(t, nil)
	if err := j.Dispute("no show", now); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	err := j.StopStream(now)
	if CodeOf(err) != CodeInvalidState || errors.Is(err, ErrAlreadyStopped) {
		t.Fatalf("expected INVALID_STATE after dispute, got %v", err)
	}
	if j.Status != JobDisputed {
		t.Fatalf("stop changed a disputed job to %s", j.Status)
	}
}
