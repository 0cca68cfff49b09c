package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// DefaultCFAForwarder is the Superfluid CFAv1Forwarder, deployed at the same
// address on every supported network.
const DefaultCFAForwarder = "0xcfA132E353cB4E398080B9700609bb008eceB125"

const forwarderABI = `[{"inputs":[{"internalType":"contract ISuperToken","name":"token","type":"address"},{"internalType":"address","name":"sender","type":"address"},{"internalType":"address","name":"receiver","type":"address"}],"name":"getFlowrate","outputs":[{"internalType":"int96","name":"flowrate","type":"int96"}],"stateMutability":"view","type":"function"}]`

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// NetworkConfig describes one EVM network the verifier can read.
type NetworkConfig struct {
	Name       string `yaml:"name"`
	RPCURL     string `yaml:"rpc_url"`
	USDC       string `yaml:"usdc"`
	SuperToken string `yaml:"super_token"`
	Forwarder  string `yaml:"forwarder"`
}

// Backend is the subset of ethclient the verifier needs.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
}

type evmNetwork struct {
	backend    Backend
	usdc       common.Address
	superToken common.Address
	forwarder  common.Address
	closer     func()
}

// EVMVerifier reads receipts and flow rates over JSON-RPC.
type EVMVerifier struct {
	mu        sync.RWMutex
	networks  map[string]*evmNetwork
	forwarder abi.ABI
}

func newEVMVerifier() (*EVMVerifier, error) {
	parsed, err := abi.JSON(strings.NewReader(forwarderABI))
	if err != nil {
		return nil, fmt.Errorf("parse forwarder abi: %w", err)
	}
	return &EVMVerifier{networks: make(map[string]*evmNetwork), forwarder: parsed}, nil
}

// NewEVMVerifier dials every configured network.
func NewEVMVerifier(ctx context.Context, cfgs []NetworkConfig) (*EVMVerifier, error) {
	v, err := newEVMVerifier()
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		rpcURL := strings.TrimSpace(cfg.RPCURL)
		if rpcURL == "" {
			v.Close()
			return nil, fmt.Errorf("network %s: rpc_url is required", cfg.Name)
		}
		rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
		if err != nil {
			v.Close()
			return nil, fmt.Errorf("dial %s: %w", cfg.Name, err)
		}
		eth := ethclient.NewClient(rpcClient)
		if err := v.AddNetwork(cfg, eth); err != nil {
			eth.Close()
			v.Close()
			return nil, err
		}
		v.networks[NormalizeNetwork(cfg.Name)].closer = eth.Close
	}
	return v, nil
}

// NewEVMVerifierWithBackends wires pre-built backends, keyed by network name.
func NewEVMVerifierWithBackends(cfgs []NetworkConfig, backends map[string]Backend) (*EVMVerifier, error) {
	v, err := newEVMVerifier()
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		b, ok := backends[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no backend for network %s", cfg.Name)
		}
		if err := v.AddNetwork(cfg, b); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AddNetwork registers a network served by backend.
func (v *EVMVerifier) AddNetwork(cfg NetworkConfig, backend Backend) error {
	name := NormalizeNetwork(cfg.Name)
	if name == "" {
		return errors.New("network name is required")
	}
	if !common.IsHexAddress(cfg.USDC) {
		return fmt.Errorf("network %s: invalid usdc address %q", name, cfg.USDC)
	}
	fwd := cfg.Forwarder
	if fwd == "" {
		fwd = DefaultCFAForwarder
	}
	n := &evmNetwork{
		backend:   backend,
		usdc:      common.HexToAddress(cfg.USDC),
		forwarder: common.HexToAddress(fwd),
	}
	if cfg.SuperToken != "" {
		if !common.IsHexAddress(cfg.SuperToken) {
			return fmt.Errorf("network %s: invalid super token address %q", name, cfg.SuperToken)
		}
		n.superToken = common.HexToAddress(cfg.SuperToken)
	}
	v.mu.Lock()
	v.networks[name] = n
	v.mu.Unlock()
	return nil
}

// Close releases RPC connections.
func (v *EVMVerifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, n := range v.networks {
		if n.closer != nil {
			n.closer()
		}
	}
}

func (v *EVMVerifier) network(name string) (*evmNetwork, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n, ok := v.networks[NormalizeNetwork(name)]
	if !ok {
		return nil, ErrNetworkUnsupported
	}
	return n, nil
}

func (v *EVMVerifier) VerifyTransfer(ctx context.Context, q TransferQuery) (Transfer, error) {
	n, err := v.network(q.Network)
	if err != nil {
		return Transfer{}, err
	}
	if !ValidTxHash(q.TxHash) || !common.IsHexAddress(q.To) {
		return Transfer{}, ErrTransferNotFound
	}
	receipt, err := n.backend.TransactionReceipt(ctx, common.HexToHash(q.TxHash))
	if errors.Is(err, gethcore.NotFound) {
		return Transfer{}, ErrTransferNotFound
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil || receipt.Status != coretypes.ReceiptStatusSuccessful {
		return Transfer{}, ErrTransferNotFound
	}

	to := common.HexToAddress(q.To)
	var from common.Address
	if q.From != "" {
		from = common.HexToAddress(q.From)
	}
	total := new(big.Int)
	var payer common.Address
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != n.usdc || len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
			continue
		}
		logFrom := common.BytesToAddress(lg.Topics[1].Bytes())
		logTo := common.BytesToAddress(lg.Topics[2].Bytes())
		if logTo != to || (q.From != "" && logFrom != from) {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
		payer = logFrom
	}
	if total.Sign() == 0 {
		return Transfer{}, ErrTransferNotFound
	}
	var minedAt time.Time
	if receipt.BlockNumber != nil {
		h, err := n.backend.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return Transfer{}, fmt.Errorf("fetch block header: %w", err)
		}
		minedAt = time.Unix(int64(h.Time), 0).UTC()
	}
	return Transfer{
		Network:   NormalizeNetwork(q.Network),
		TxHash:    q.TxHash,
		From:      payer.Hex(),
		To:        to.Hex(),
		Amount:    hiring.CentsFromUSDC(total),
		Units:     total,
		BlockTime: minedAt,
	}, nil
}

func (v *EVMVerifier) FlowRate(ctx context.Context, network, sender, receiver string) (*big.Int, error) {
	n, err := v.network(network)
	if err != nil {
		return nil, err
	}
	if n.superToken == (common.Address{}) {
		return nil, fmt.Errorf("network %s has no super token configured", network)
	}
	if !common.IsHexAddress(sender) || !common.IsHexAddress(receiver) {
		return big.NewInt(0), nil
	}
	input, err := v.forwarder.Pack("getFlowrate", n.superToken, common.HexToAddress(sender), common.HexToAddress(receiver))
	if err != nil {
		return nil, fmt.Errorf("pack getFlowrate: %w", err)
	}
	out, err := n.backend.CallContract(ctx, gethcore.CallMsg{To: &n.forwarder, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getFlowrate: %w", err)
	}
	vals, err := v.forwarder.Unpack("getFlowrate", out)
	if err != nil {
		return nil, fmt.Errorf("unpack getFlowrate: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("getFlowrate returned %d values", len(vals))
	}
	rate, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getFlowrate returned %T", vals[0])
	}
	if rate.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return rate, nil
}
