package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// Static is an in-memory Verifier for development and tests. Transfers and
// flows are registered explicitly. With AcceptAll set, any well-formed
// transaction hash verifies as a payment of that amount to whoever asks.
type Static struct {
	mu        sync.RWMutex
	transfers map[string]Transfer
	flows     map[string]*big.Int
	AcceptAll hiring.Cents
}

func NewStatic() *Static {
	return &Static{transfers: make(map[string]Transfer), flows: make(map[string]*big.Int)}
}

func transferKey(network, txHash string) string {
	return NormalizeNetwork(network) + ":" + strings.ToLower(txHash)
}

func flowKey(network, sender, receiver string) string {
	return NormalizeNetwork(network) + ":" + strings.ToLower(sender) + ":" + strings.ToLower(receiver)
}

// AddTransfer registers a transfer that VerifyTransfer will report.
func (s *Static) AddTransfer(t Transfer) {
	s.mu.Lock()
	s.transfers[transferKey(t.Network, t.TxHash)] = t
	s.mu.Unlock()
}

// SetFlow sets the flow rate between sender and receiver. A nil or zero
// rate deletes the flow.
func (s *Static) SetFlow(network, sender, receiver string, rate *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := flowKey(network, sender, receiver)
	if rate == nil || rate.Sign() <= 0 {
		delete(s.flows, k)
		return
	}
	s.flows[k] = new(big.Int).Set(rate)
}

func (s *Static) VerifyTransfer(_ context.Context, q TransferQuery) (Transfer, error) {
	s.mu.RLock()
	t, ok := s.transfers[transferKey(q.Network, q.TxHash)]
	accept := s.AcceptAll
	s.mu.RUnlock()

	if !ok {
		if accept <= 0 || !ValidTxHash(q.TxHash) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{
			Network: NormalizeNetwork(q.Network),
			TxHash:  q.TxHash,
			From:    q.From,
			To:      q.To,
			Amount:  accept,
			Units:   hiring.USDCFromCents(accept),
		}, nil
	}
	if !strings.EqualFold(t.To, q.To) || (q.From != "" && !strings.EqualFold(t.From, q.From)) {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (s *Static) FlowRate(_ context.Context, network, sender, receiver string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.flows[flowKey(network, sender, receiver)]; ok {
		return new(big.Int).Set(r), nil
	}
	return big.NewInt(0), nil
}
