package services

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/telemetry"
	"github.com/human-pages-ai/humanpages/webhook"
)

// Token symbols recorded on the stream for each method.
const (
	tokenUSDC  = "USDC"
	tokenUSDCx = "USDCx"
)

// streamOp runs a gated stream-control operation: a read transaction for
// preconditions, an optional chain lookup outside any transaction, then a
// write transaction that re-checks and applies.
type streamOp struct {
	name   string
	check  func(j *hiring.Job, h hiring.Human) error
	chain  func(ctx context.Context, j hiring.Job) error
	apply  func(j *hiring.Job) ([]string, error)
	commit func(ctx context.Context, tx marketplace.Tx, j hiring.Job) error
}

func (s *Service) runStreamOp(ctx context.Context, c Caller, jobID string, op streamOp) (view hiring.JobView, err error) {
	defer func() { observe(op.name, err) }()
	g, err := s.Gate(ctx, c, hiring.OpStreamControl)
	if err != nil {
		return view, err
	}
	defer g.Settle(ctx, &err)

	var pre hiring.Job
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		j, err := s.ownedJob(ctx, tx, c.AgentID, jobID)
		if err != nil {
			return err
		}
		h, err := tx.GetHuman(ctx, j.HumanID)
		if err != nil {
			return err
		}
		pre = j
		return op.check(&pre, h)
	})
	if err != nil {
		return view, err
	}
	if op.chain != nil {
		if err := op.chain(ctx, pre); err != nil {
			return view, err
		}
	}

	now := s.now()
	var (
		box   outbox
		job   hiring.Job
		human hiring.Human
	)
	err = s.store.InTx(ctx, func(tx marketplace.Tx) error {
		agent, err := s.loadAgent(ctx, tx, c.AgentID)
		if err != nil {
			return err
		}
		j, err := s.ownedJob(ctx, tx, c.AgentID, jobID)
		if err != nil {
			return err
		}
		prev := j.Status
		events, err := op.apply(&j)
		if err != nil {
			return err
		}
		if op.commit != nil {
			if err := op.commit(ctx, tx, j); err != nil {
				return err
			}
		}
		if err := tx.PutJob(ctx, j); err != nil {
			return err
		}
		if human, err = tx.GetHuman(ctx, j.HumanID); err != nil {
			return err
		}
		for _, ev := range events {
			var data any
			if j.Stream != nil {
				data = j.Stream.Snapshot(now)
			}
			box.job(agent, j, ev, prev, data)
		}
		job = j
		return nil
	})
	if err != nil {
		return view, err
	}
	s.flush(ctx, box)
	s.log.Info("stream operation", "operation", op.name, "job_id", jobID, "status", job.Status, "phase", job.Stream.Phase)
	return s.jobView(job, &human, now), nil
}

// StartStream opens a STREAM job. SUPERFLUID requires a live flow of at
// least the agreed rate; MICRO_TRANSFER opens tick #1.
func (s *Service) StartStream(ctx context.Context, c Caller, jobID string, req hiring.StartStreamRequest) (hiring.JobView, error) {
	sender := strings.TrimSpace(req.SenderAddress)
	network := chain.NormalizeNetwork(req.Network)
	if !common.IsHexAddress(sender) {
		return hiring.JobView{}, hiring.Invalid("sender_address", "sender_address must be a 0x-prefixed EVM address")
	}
	if network == "" {
		return hiring.JobView{}, hiring.Invalid("network", "network is required")
	}

	var (
		receiver string
		rate     *big.Int
	)
	return s.runStreamOp(ctx, c, jobID, streamOp{
		name: "start_stream",
		check: func(j *hiring.Job, h hiring.Human) error {
			if err := j.CheckStreamStart(); err != nil {
				return err
			}
			addr, ok := h.WalletFor(network)
			if !ok {
				return hiring.Errorf(hiring.CodeHumanWalletMissing, "human has no wallet on %s", network)
			}
			receiver = addr
			return nil
		},
		chain: func(ctx context.Context, j hiring.Job) error {
			if j.Stream.Method != hiring.MethodSuperfluid {
				return nil
			}
			r, err := s.verifier.FlowRate(ctx, network, sender, receiver)
			if err != nil {
				return flowErr(err)
			}
			rate = r
			return nil
		},
		apply: func(j *hiring.Job) ([]string, error) {
			token := tokenUSDC
			if j.Stream.Method == hiring.MethodSuperfluid {
				token = tokenUSDCx
			}
			err := j.StartStream(hiring.StreamStart{
				Network:         network,
				Token:           token,
				SenderAddress:   sender,
				ReceiverAddress: receiver,
				FlowRate:        rate,
			}, s.now())
			return []string{webhook.JobStreamStarted}, err
		},
	})
}

// RecordTick books a verified MICRO_TRANSFER payment against the open tick.
func (s *Service) RecordTick(ctx context.Context, c Caller, jobID string, req hiring.TickRequest) (hiring.JobView, error) {
	txHash := strings.TrimSpace(req.TxHash)
	if !chain.ValidTxHash(txHash) {
		return hiring.JobView{}, hiring.Invalid("tx_hash", "tx_hash must be a 0x-prefixed 32-byte hex string")
	}
	var paid hiring.Cents
	return s.runStreamOp(ctx, c, jobID, streamOp{
		name: "record_stream_tick",
		check: func(j *hiring.Job, _ hiring.Human) error {
			return j.CheckTick()
		},
		chain: func(ctx context.Context, j hiring.Job) error {
			st := j.Stream
			t, err := s.verifier.VerifyTransfer(ctx, chain.TransferQuery{
				Network: st.Network,
				TxHash:  txHash,
				To:      st.ReceiverAddress,
				From:    st.SenderAddress,
			})
			if err != nil {
				return verifyErr(err, hiring.CodeTickVerification, txHash)
			}
			paid = t.Amount
			return nil
		},
		apply: func(j *hiring.Job) ([]string, error) {
			stopped, err := j.RecordTick(txHash, paid, s.now())
			if err != nil {
				return nil, err
			}
			if stopped {
				return []string{webhook.JobStreamTick, webhook.JobStreamStopped}, nil
			}
			return []string{webhook.JobStreamTick}, nil
		},
		commit: func(ctx context.Context, tx marketplace.Tx, j hiring.Job) error {
			fresh, err := tx.MarkProofUsed(ctx, j.Stream.Network, txHash)
			if err != nil {
				return err
			}
			if !fresh {
				return hiring.Errorf(hiring.CodePaymentAlreadyUsed, "transaction %s was already spent", txHash)
			}
			telemetry.StreamTicks.Inc()
			return nil
		},
	})
}

func flowErr(err error) error {
	if errors.Is(err, chain.ErrNetworkUnsupported) {
		return hiring.Invalid("network", "network is not supported")
	}
	return hiring.Errorf(hiring.CodeVerificationDown, "flow lookup failed: %v", err)
}

// flowRate reads the current on-chain rate for a SUPERFLUID stream.
func (s *Service) flowRate(ctx context.Context, j hiring.Job, into **big.Int) error {
	if j.Stream.Method != hiring.MethodSuperfluid {
		return nil
	}
	st := j.Stream
	r, err := s.verifier.FlowRate(ctx, st.Network, st.SenderAddress, st.ReceiverAddress)
	if err != nil {
		return flowErr(err)
	}
	*into = r
	return nil
}

// PauseStream pauses an active stream. A SUPERFLUID flow must already be deleted.
func (s *Service) PauseStream(ctx context.Context, c Caller, jobID string) (hiring.JobView, error) {
	var rate *big.Int
	return s.runStreamOp(ctx, c, jobID, streamOp{
		name:  "pause_stream",
		check: func(j *hiring.Job, _ hiring.Human) error { return j.CheckPause() },
		chain: func(ctx context.Context, j hiring.Job) error { return s.flowRate(ctx, j, &rate) },
		apply: func(j *hiring.Job) ([]string, error) {
			return []string{webhook.JobStreamPaused}, j.PauseStream(rate, s.now())
		},
	})
}

// ResumeStream reopens a paused stream. SUPERFLUID needs a fresh flow.
func (s *Service) ResumeStream(ctx context.Context, c Caller, jobID string) (hiring.JobView, error) {
	var rate *big.Int
	return s.runStreamOp(ctx, c, jobID, streamOp{
		name:  "resume_stream",
		check: func(j *hiring.Job, _ hiring.Human) error { return j.CheckResume() },
		chain: func(ctx context.Context, j hiring.Job) error { return s.flowRate(ctx, j, &rate) },
		apply: func(j *hiring.Job) ([]string, error) {
			return []string{webhook.JobStreamResumed}, j.ResumeStream(rate, s.now())
		},
	})
}

// StopStream finishes the stream and completes the job.
func (s *Service) StopStream(ctx context.Context, c Caller, jobID string) (hiring.JobView, error) {
	return s.runStreamOp(ctx, c, jobID, streamOp{
		name: "stop_stream",
		check: func(j *hiring.Job, _ hiring.Human) error {
			if j.Stream == nil || j.Terms.Mode != hiring.PaymentStream {
				return hiring.Errorf(hiring.CodeWrongPaymentMode, "job %s is not a STREAM job", j.ID)
			}
			if j.Stream.Phase == hiring.PhaseStopped && j.Status == hiring.JobCompleted {
				return hiring.ErrAlreadyStopped
			}
			_, err := hiring.NextJobStatus(j.Status, hiring.EventStop)
			return err
		},
		apply: func(j *hiring.Job) ([]string, error) {
			return []string{webhook.JobStreamStopped}, j.StopStream(s.now())
		},
	})
}
