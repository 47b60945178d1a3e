// Package client is the entry point the trading and monitoring layers use: it
// owns one endpoint pool, one transaction manager and one trade router, and
// exposes signing, balance, swap and receipt operations over them. When the
// chain has a hub contract configured it also owns the hub client.
package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/chainctl/internal/config"
	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution"
	"github.com/ggonzalez94/chainctl/internal/execution/signer"
	"github.com/ggonzalez94/chainctl/internal/hub"
	"github.com/ggonzalez94/chainctl/internal/metrics"
	"github.com/ggonzalez94/chainctl/internal/registry"
	"github.com/ggonzalez94/chainctl/internal/router"
	"go.uber.org/zap"
)

var erc20ABI = mustABI(registry.ERC20ABI)

// Account signs transactions and personal messages for one address.
// *signer.LocalSigner satisfies it.
type Account interface {
	signer.Signer
	SignMessage(message []byte) ([]byte, error)
}

type Options struct {
	// Account is optional. Without it the client is read-only and every
	// signing operation fails with CodeUsage.
	Account         Account
	GasLimit        uint64
	PollInterval    time.Duration
	ReceiptTimeout  time.Duration
	SerializeNonces bool
	PoolCache       router.PoolCache
	// ProbeTimeout bounds endpoint probes and HTTP requests; UserAgent and
	// RPCRetries configure the HTTP transport.
	ProbeTimeout time.Duration
	UserAgent    string
	RPCRetries   int
	Logger       *zap.Logger
	Metrics      *metrics.Collectors
}

type Client struct {
	cfg       config.ChainConfig
	account   Account
	endpoints *endpoint.Manager
	exec      *execution.Manager
	router    *router.Router
	hub       *hub.Hub
	log       *zap.Logger
}

// New wires the endpoint pool, transaction manager and router for cfg. It
// does not touch the network; the first call connects.
func New(cfg config.ChainConfig, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	endpoints, err := endpoint.New(cfg.RPCEndpoint, cfg.Family, endpoint.Options{
		ExpectedChainID: cfg.ChainID,
		ProbeTimeout:    opts.ProbeTimeout,
		UserAgent:       opts.UserAgent,
		Retries:         opts.RPCRetries,
		Logger:          log,
		Metrics:         opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c, err := newWithEndpoints(cfg, endpoints, opts, log)
	if err != nil {
		endpoints.Close()
		return nil, err
	}
	return c, nil
}

func newWithEndpoints(cfg config.ChainConfig, endpoints *endpoint.Manager, opts Options, log *zap.Logger) (*Client, error) {
	var txSigner signer.Signer = readOnlyAccount{}
	if opts.Account != nil {
		txSigner = opts.Account
	}
	exec := execution.NewManager(endpoints, txSigner, execution.Options{
		ChainID:         cfg.ChainID,
		DefaultGasLimit: opts.GasLimit,
		PollInterval:    opts.PollInterval,
		ReceiptTimeout:  opts.ReceiptTimeout,
		SerializeNonces: opts.SerializeNonces,
		Logger:          log,
		Metrics:         opts.Metrics,
	})
	routerOpts := router.Options{
		ChainID:   cfg.ChainID,
		Router:    cfg.Router,
		Factory:   cfg.Factory,
		Quoter:    cfg.Quoter,
		PoolCache: opts.PoolCache,
		Logger:    log,
		Metrics:   opts.Metrics,
	}
	if d, ok := registry.V3Deployment(cfg.ChainID); ok && d.WrappedNative != "" && strings.EqualFold(d.Router, cfg.Router.Hex()) {
		routerOpts.WrappedNative = common.HexToAddress(d.WrappedNative)
	}
	rt, err := router.New(endpoints, exec, routerOpts)
	if err != nil {
		return nil, err
	}
	var hubClient *hub.Hub
	if cfg.Hub != (common.Address{}) {
		if hubClient, err = hub.New(endpoints, exec, hub.Options{Contract: cfg.Hub, GasLimit: opts.GasLimit, Logger: log}); err != nil {
			return nil, err
		}
	}
	return &Client{
		cfg:       cfg,
		account:   opts.Account,
		endpoints: endpoints,
		exec:      exec,
		router:    rt,
		hub:       hubClient,
		log:       log.Named("client"),
	}, nil
}

func (c *Client) Config() config.ChainConfig { return c.cfg }

func (c *Client) Endpoints() *endpoint.Manager { return c.endpoints }

func (c *Client) Execution() *execution.Manager { return c.exec }

func (c *Client) Router() *router.Router { return c.router }

// Hub returns the registration and task contract client. It fails with
// CodeUnsupported when the chain has no hub configured.
func (c *Client) Hub() (*hub.Hub, error) {
	if c.hub == nil {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no hub contract configured for chain %d", c.cfg.ChainID))
	}
	return c.hub, nil
}

// Address is the trading account, or the zero address for a read-only client.
func (c *Client) Address() common.Address {
	if c.account == nil {
		return common.Address{}
	}
	return c.account.Address()
}

// StartHealthMonitor re-probes the active endpoint every interval until Close.
func (c *Client) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	c.endpoints.StartHealthMonitor(ctx, interval)
}

// Close stops the health monitor and releases the connection. It is safe to
// call more than once.
func (c *Client) Close() {
	c.endpoints.Close()
}

// SignMessage returns the 0x-hex EIP-191 signature of text.
func (c *Client) SignMessage(text string) (string, error) {
	if err := c.requireAccount(); err != nil {
		return "", err
	}
	sig, err := c.account.SignMessage([]byte(text))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigningFailed, "sign message", err).At(clierr.StageSign)
	}
	return hexutil.Encode(sig), nil
}

// VerifySignature reports whether signature is address's EIP-191 signature of
// text. A well-formed signature by another address is false, not an error.
func (c *Client) VerifySignature(text, signature, address string) (bool, error) {
	addr, err := config.ParseAddress("signer", address)
	if err != nil {
		return false, err
	}
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return false, clierr.Wrap(clierr.CodeUsage, "decode signature", err)
	}
	ok, err := signer.VerifyMessage([]byte(text), sig, addr)
	if err != nil {
		return false, clierr.Wrap(clierr.CodeUsage, "verify signature", err)
	}
	return ok, nil
}

// GetBalance returns the balance of address in base units. An empty token or
// the native sentinel reads the native balance. An empty address reads the
// trading account.
func (c *Client) GetBalance(ctx context.Context, address, token string) (*big.Int, error) {
	owner, err := c.resolveOwner(address)
	if err != nil {
		return nil, err
	}
	tokenAddr, native, err := parseToken(token)
	if err != nil {
		return nil, err
	}
	return c.balance(ctx, owner, tokenAddr, native)
}

func (c *Client) balance(ctx context.Context, owner, token common.Address, native bool) (*big.Int, error) {
	conn, err := c.endpoints.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if native {
		bal, err := conn.Client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
		}
		return bal, nil
	}
	out, err := c.call(ctx, conn, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid balanceOf response")
	}
	return bal, nil
}

// SubmitSwap swaps amount of tokenIn for tokenOut and returns the transaction
// hash. Reverts come back as TransactionReverted carrying the hash.
func (c *Client) SubmitSwap(ctx context.Context, tokenIn, tokenOut string, amount *big.Int, feeHint uint32) (string, error) {
	if err := c.requireAccount(); err != nil {
		return "", err
	}
	in, _, err := parseToken(tokenIn)
	if err != nil {
		return "", err
	}
	out, _, err := parseToken(tokenOut)
	if err != nil {
		return "", err
	}
	res, err := c.router.Swap(ctx, router.SwapRequest{TokenIn: in, TokenOut: out, AmountIn: amount, FeeHint: feeHint})
	if err != nil {
		return "", err
	}
	return res.Receipt.TxHash, nil
}

// GetTransactionInfo returns the receipt of a mined transaction.
func (c *Client) GetTransactionInfo(ctx context.Context, txHash string) (execution.Receipt, error) {
	return c.exec.Receipt(ctx, txHash)
}

type TokenInfo struct {
	Address     string `json:"address"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

func (c *Client) TokenInfo(ctx context.Context, token string) (TokenInfo, error) {
	addr, native, err := parseToken(token)
	if err != nil {
		return TokenInfo{}, err
	}
	if native {
		return TokenInfo{}, clierr.New(clierr.CodeUsage, "native asset has no token contract")
	}
	conn, err := c.endpoints.Acquire(ctx)
	if err != nil {
		return TokenInfo{}, err
	}
	decOut, err := c.call(ctx, conn, addr, "decimals")
	if err != nil {
		return TokenInfo{}, err
	}
	supplyOut, err := c.call(ctx, conn, addr, "totalSupply")
	if err != nil {
		return TokenInfo{}, err
	}
	decimals, _ := decOut[0].(uint8)
	supply, _ := supplyOut[0].(*big.Int)
	if supply == nil {
		supply = new(big.Int)
	}
	return TokenInfo{Address: addr.Hex(), Decimals: decimals, TotalSupply: supply.String()}, nil
}

func (c *Client) requireAccount() error {
	if c.account == nil {
		return clierr.New(clierr.CodeUsage, "no signing account configured")
	}
	return nil
}

func (c *Client) resolveOwner(address string) (common.Address, error) {
	if strings.TrimSpace(address) == "" {
		if c.account == nil {
			return common.Address{}, clierr.New(clierr.CodeUsage, "address is required without a signing account")
		}
		return c.account.Address(), nil
	}
	return config.ParseAddress("owner", address)
}

func (c *Client) call(ctx context.Context, conn *endpoint.Connection, to common.Address, method string, args ...any) ([]any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	raw, err := conn.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s on %s", method, to.Hex()), err)
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err)
	}
	return out, nil
}

// parseToken accepts "", the native sentinel or a token address.
func parseToken(raw string) (common.Address, bool, error) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, registry.NativeTokenSentinel) || strings.EqualFold(v, "native") {
		return common.Address{}, true, nil
	}
	addr, err := config.ParseAddress("token", v)
	if err != nil {
		return common.Address{}, false, err
	}
	return addr, router.IsNative(addr), nil
}

// readOnlyAccount stands in for a missing signer so read paths keep working.
type readOnlyAccount struct{}

func (readOnlyAccount) Address() common.Address { return common.Address{} }

func (readOnlyAccount) SignTx(*big.Int, *types.Transaction) (*types.Transaction, error) {
	return nil, fmt.Errorf("no signing account configured")
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
