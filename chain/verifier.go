// Package chain verifies USDC transfers and Superfluid flows on EVM networks.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrTransferNotFound   = Err("transfer not found")
	ErrNetworkUnsupported = Err("network not supported")
)

// TransferQuery identifies a transaction and what it must have paid.
// From is optional.
type TransferQuery struct {
	Network string
	TxHash  string
	To      string
	From    string
}

// Transfer is the USDC movement found in a transaction, summed over all
// matching Transfer events. BlockTime is zero when the source cannot tell
// when the transaction was mined.
type Transfer struct {
	Network   string       `json:"network"`
	TxHash    string       `json:"tx_hash"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Amount    hiring.Cents `json:"amount_cents"`
	Units     *big.Int     `json:"-"`
	BlockTime time.Time    `json:"block_time,omitempty"`
}

// MinedBefore reports whether the transfer is known to predate ts.
func (t Transfer) MinedBefore(ts time.Time) bool {
	return !t.BlockTime.IsZero() && t.BlockTime.Before(ts)
}

// Verifier answers on-chain questions for the payment flows.
type Verifier interface {
	// VerifyTransfer returns ErrTransferNotFound when the transaction is
	// unknown, failed, or moved nothing to q.To.
	VerifyTransfer(ctx context.Context, q TransferQuery) (Transfer, error)
	// FlowRate returns the current super-token flow rate in wei per second.
	// A missing flow reads as zero.
	FlowRate(ctx context.Context, network, sender, receiver string) (*big.Int, error)
}

// NormalizeNetwork lowercases and trims a network name.
func NormalizeNetwork(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}

// ParseProof splits an X-Payment header value of the form <network>:<tx_hash>.
func ParseProof(raw string) (network, txHash string, ok bool) {
	network, txHash, found := strings.Cut(strings.TrimSpace(raw), ":")
	network = NormalizeNetwork(network)
	txHash = strings.TrimSpace(txHash)
	if !found || network == "" || !ValidTxHash(txHash) {
		return "", "", false
	}
	return network, txHash, true
}

// ValidTxHash checks for a 0x-prefixed 32-byte hex string.
func ValidTxHash(h string) bool {
	if len(h) != 66 || !strings.HasPrefix(h, "0x") {
		return false
	}
	for _, c := range h[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
