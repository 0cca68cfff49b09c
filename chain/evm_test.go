package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

const (
	usdcAddr  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	superAddr = "0xD04383398dD2426297da660F9CCA3d439AF9ce1b"
	payer     = "0x00000000000000000000000000000000000000aa"
	payee     = "0x00000000000000000000000000000000000000bb"
	txHash    = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

type fakeBackend struct {
	receipts  map[common.Hash]*coretypes.Receipt
	blockTime map[uint64]uint64
	flowRate  *big.Int
	calls     int
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*coretypes.Receipt, error) {
	r, ok := f.receipts[h]
	if !ok {
		return nil, gethcore.NotFound
	}
	return r, nil
}

func (f *fakeBackend) HeaderByNumber(_ context.Context, n *big.Int) (*coretypes.Header, error) {
	ts, ok := f.blockTime[n.Uint64()]
	if !ok {
		return nil, gethcore.NotFound
	}
	return &coretypes.Header{Number: new(big.Int).Set(n), Time: ts}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if call.To == nil || *call.To != common.HexToAddress(DefaultCFAForwarder) {
		return nil, errors.New("unexpected call target")
	}
	parsed, err := abi.JSON(strings.NewReader(forwarderABI))
	if err != nil {
		return nil, err
	}
	return parsed.Methods["getFlowrate"].Outputs.Pack(f.flowRate)
}

func transferLog(token, from, to string, units *big.Int) *coretypes.Log {
	return &coretypes.Log{
		Address: common.HexToAddress(token),
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(common.HexToAddress(from).Bytes()),
			common.BytesToHash(common.HexToAddress(to).Bytes()),
		},
		Data: common.LeftPadBytes(units.Bytes(), 32),
	}
}

func newTestVerifier(t *testing.T, backend *fakeBackend) *EVMVerifier {
	t.Helper()
	v, err := NewEVMVerifierWithBackends(
		[]NetworkConfig{{Name: "base", USDC: usdcAddr, SuperToken: superAddr}},
		map[string]Backend{"base": backend},
	)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerifyTransfer(t *testing.T) {
	ctx := context.Background()
	mined := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	backend := &fakeBackend{receipts: map[common.Hash]*coretypes.Receipt{
		common.HexToHash(txHash): {
			Status:      coretypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(1200),
			Logs: []*coretypes.Log{
				transferLog(usdcAddr, payer, payee, big.NewInt(3_000_000)),
				transferLog(usdcAddr, payer, payee, big.NewInt(2_000_000)),
				// other token and other recipient are ignored
				transferLog(superAddr, payer, payee, big.NewInt(9_000_000)),
				transferLog(usdcAddr, payer, payer, big.NewInt(9_000_000)),
			},
		},
	}, blockTime: map[uint64]uint64{1200: uint64(mined.Unix())}}
	v := newTestVerifier(t, backend)

	got, err := v.VerifyTransfer(ctx, TransferQuery{Network: "Base", TxHash: txHash, To: payee})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Amount != hiring.Dollars(5) {
		t.Fatalf("amount = %s, want $5.00", got.Amount)
	}
	if !common.IsHexAddress(got.From) || common.HexToAddress(got.From) != common.HexToAddress(payer) {
		t.Fatalf("from = %s", got.From)
	}
	if !got.BlockTime.Equal(mined) {
		t.Fatalf("block time = %s, want %s", got.BlockTime, mined)
	}
	if !got.MinedBefore(mined.Add(time.Second)) || got.MinedBefore(mined) {
		t.Fatalf("MinedBefore disagrees with block time %s", got.BlockTime)
	}
	if (Transfer{}).MinedBefore(mined) {
		t.Fatal("transfer without a block time reported as mined before")
	}

	cases := []struct {
		name string
		q    TransferQuery
		want error
	}{
		{"unknown tx", TransferQuery{Network: "base", TxHash: "0x" + strings.Repeat("2", 64), To: payee}, ErrTransferNotFound},
		{"wrong recipient", TransferQuery{Network: "base", TxHash: txHash, To: "0x00000000000000000000000000000000000000cc"}, ErrTransferNotFound},
		{"wrong sender", TransferQuery{Network: "base", TxHash: txHash, To: payee, From: payee}, ErrTransferNotFound},
		{"unsupported network", TransferQuery{Network: "solana", TxHash: txHash, To: payee}, ErrNetworkUnsupported},
		{"malformed hash", TransferQuery{Network: "base", TxHash: "0x12", To: payee}, ErrTransferNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.VerifyTransfer(ctx, tc.q); !errors.Is(err, tc.want) {
				t.Fatalf("VerifyTransfer() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestVerifyTransferFailedReceipt(t *testing.T) {
	backend := &fakeBackend{receipts: map[common.Hash]*coretypes.Receipt{
		common.HexToHash(txHash): {
			Status: coretypes.ReceiptStatusFailed,
			Logs:   []*coretypes.Log{transferLog(usdcAddr, payer, payee, big.NewInt(1_000_000))},
		},
	}}
	v := newTestVerifier(t, backend)
	if _, err := v.VerifyTransfer(context.Background(), TransferQuery{Network: "base", TxHash: txHash, To: payee}); !errors.Is(err, ErrTransferNotFound) {
		t.Fatalf("reverted tx verified: %v", err)
	}
}

func TestFlowRate(t *testing.T) {
	backend := &fakeBackend{flowRate: big.NewInt(385802469135802)}
	v := newTestVerifier(t, backend)

	rate, err := v.FlowRate(context.Background(), "base", payer, payee)
	if err != nil {
		t.Fatalf("flow rate: %v", err)
	}
	if rate.Cmp(big.NewInt(385802469135802)) != 0 {
		t.Fatalf("rate = %s", rate)
	}
	if backend.calls != 1 {
		t.Fatalf("expected one eth_call, got %d", backend.calls)
	}
}

func TestParseProof(t *testing.T) {
	network, hash, ok := ParseProof(" Base:" + txHash)
	if !ok || network != "base" || hash != txHash {
		t.Fatalf("ParseProof = %q %q %v", network, hash, ok)
	}
	for _, bad := range []string{"", txHash, "base:", "base:0xzz", ":" + txHash} {
		if _, _, ok := ParseProof(bad); ok {
			t.Fatalf("ParseProof(%q) accepted", bad)
		}
	}
}

func TestStaticVerifier(t *testing.T) {
	ctx := context.Background()
	s := NewStatic()
	s.AddTransfer(Transfer{Network: "base", TxHash: txHash, From: payer, To: payee, Amount: 500})

	got, err := s.VerifyTransfer(ctx, TransferQuery{Network: "BASE", TxHash: txHash, To: payee})
	if err != nil || got.Amount != 500 {
		t.Fatalf("static verify = %+v, %v", got, err)
	}
	other := "0x" + strings.Repeat("3", 64)
	if _, err := s.VerifyTransfer(ctx, TransferQuery{Network: "base", TxHash: other, To: payee}); !errors.Is(err, ErrTransferNotFound) {
		t.Fatalf("unknown tx verified: %v", err)
	}
	s.AcceptAll = 50
	if got, err := s.VerifyTransfer(ctx, TransferQuery{Network: "base", TxHash: other, To: payee}); err != nil || got.Amount != 50 {
		t.Fatalf("accept-all = %+v, %v", got, err)
	}

	s.SetFlow("base", payer, payee, big.NewInt(10))
	if r, _ := s.FlowRate(ctx, "base", payer, payee); r.Int64() != 10 {
		t.Fatalf("flow = %s", r)
	}
	s.SetFlow("base", payer, payee, nil)
	if r, _ := s.FlowRate(ctx, "base", payer, payee); r.Sign() != 0 {
		t.Fatalf("deleted flow = %s", r)
	}
}
