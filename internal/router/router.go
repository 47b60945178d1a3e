// Package router discovers V3 pools against the wrapped native token, decides
// between direct and two-hop routes, and submits swaps through the router
// contract.
package router

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chainctl/internal/cache"
	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution"
	"github.com/ggonzalez94/chainctl/internal/metrics"
	"github.com/ggonzalez94/chainctl/internal/registry"
	memo "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	DefaultDeadlineOffset = time.Hour
	DefaultMemoTTL        = 5 * time.Minute

	legIn  = "in"
	legOut = "out"
)

// DefaultFeeTiers is the probe order: highest fee (usually deepest liquidity) first.
var DefaultFeeTiers = []uint32{10000, 2500, 500, 100}

var (
	erc20ABI   = mustABI(registry.ERC20ABI)
	factoryABI = mustABI(registry.V3FactoryABI)
	routerABI  = mustABI(registry.V3SwapRouterABI)
	quoterABI  = mustABI(registry.V3QuoterV2ABI)
)

// Connections hands out read connections. *endpoint.Manager satisfies it.
type Connections interface {
	Acquire(ctx context.Context) (*endpoint.Connection, error)
}

// Executor submits transactions for the trading account. *execution.Manager
// satisfies it.
type Executor interface {
	Address() common.Address
	Send(ctx context.Context, call execution.Call) (execution.Receipt, error)
}

// PoolCache persists pool addresses across processes. *cache.Store satisfies it.
type PoolCache interface {
	LookupPool(key cache.PoolKey) (common.Address, bool)
	StorePool(key cache.PoolKey, pool common.Address) error
}

type Options struct {
	ChainID int64
	Router  common.Address
	Factory common.Address
	// Quoter is optional; Quote fails with CodeUnsupported without it.
	Quoter common.Address
	// WrappedNative skips the router WETH9() read when set.
	WrappedNative  common.Address
	FeeTiers       []uint32
	DeadlineOffset time.Duration
	MemoTTL        time.Duration
	PoolCache      PoolCache
	Logger         *zap.Logger
	Metrics        *metrics.Collectors
	// Now is the deadline clock.
	Now func() time.Time
}

type Router struct {
	conns Connections
	exec  Executor
	opts  Options
	log   *zap.Logger
	memo  *memo.Cache
}

// Pool is a discovered pool and the tier it was found at.
type Pool struct {
	Token   common.Address `json:"token"`
	Address common.Address `json:"address"`
	Fee     uint32         `json:"fee"`
}

func New(conns Connections, exec Executor, opts Options) (*Router, error) {
	if opts.Router == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUsage, "router address is required")
	}
	if opts.Factory == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUsage, "factory address is required")
	}
	if len(opts.FeeTiers) == 0 {
		opts.FeeTiers = DefaultFeeTiers
	}
	if opts.DeadlineOffset <= 0 {
		opts.DeadlineOffset = DefaultDeadlineOffset
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = DefaultMemoTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		conns: conns,
		exec:  exec,
		opts:  opts,
		log:   log.Named("router"),
		memo:  memo.New(opts.MemoTTL, 2*opts.MemoTTL),
	}, nil
}

// IsNative reports whether token stands for the chain's native asset: the
// zero address or the 0xEeee... sentinel.
func IsNative(token common.Address) bool {
	return token == (common.Address{}) || token == common.HexToAddress(registry.NativeTokenSentinel)
}

// WrappedNative returns the router's WETH9 token, reading it once.
func (r *Router) WrappedNative(ctx context.Context) (common.Address, error) {
	if r.opts.WrappedNative != (common.Address{}) {
		return r.opts.WrappedNative, nil
	}
	const key = "weth9"
	if v, ok := r.memo.Get(key); ok {
		return v.(common.Address), nil
	}
	out, err := r.call(ctx, r.opts.Router, routerABI, "WETH9")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "router returned no wrapped native token").At(clierr.StageRoute)
	}
	r.memo.Set(key, addr, memo.NoExpiration)
	return addr, nil
}

// FindPool returns the first pool pairing token with the wrapped native token,
// probing feeHint first when non-zero and then the configured tiers in order.
func (r *Router) FindPool(ctx context.Context, token common.Address, feeHint uint32) (Pool, error) {
	wrapped, err := r.WrappedNative(ctx)
	if err != nil {
		return Pool{}, err
	}
	for _, fee := range r.tierOrder(feeHint) {
		addr, err := r.lookupPool(ctx, token, wrapped, fee)
		if err != nil {
			return Pool{}, err
		}
		if addr != (common.Address{}) {
			r.log.Debug("pool found", zap.String("token", token.Hex()), zap.Uint32("fee", fee), zap.String("pool", addr.Hex()))
			return Pool{Token: token, Address: addr, Fee: fee}, nil
		}
	}
	return Pool{}, clierr.NoPoolFound(token.Hex())
}

func (r *Router) tierOrder(feeHint uint32) []uint32 {
	if feeHint == 0 {
		return r.opts.FeeTiers
	}
	out := make([]uint32, 0, len(r.opts.FeeTiers)+1)
	out = append(out, feeHint)
	for _, fee := range r.opts.FeeTiers {
		if fee != feeHint {
			out = append(out, fee)
		}
	}
	return out
}

func (r *Router) lookupPool(ctx context.Context, token, wrapped common.Address, fee uint32) (common.Address, error) {
	key := cache.PoolKey{ChainID: r.opts.ChainID, Factory: r.opts.Factory, TokenA: token, TokenB: wrapped, Fee: fee}
	memoKey := fmt.Sprintf("pool:%d:%s:%s:%d", key.ChainID, strings.ToLower(token.Hex()), strings.ToLower(wrapped.Hex()), fee)
	if v, ok := r.memo.Get(memoKey); ok {
		r.opts.Metrics.PoolLookup("memo")
		return v.(common.Address), nil
	}
	if r.opts.PoolCache != nil {
		if addr, ok := r.opts.PoolCache.LookupPool(key); ok {
			r.opts.Metrics.PoolLookup("cache")
			r.memo.SetDefault(memoKey, addr)
			return addr, nil
		}
	}
	out, err := r.call(ctx, r.opts.Factory, factoryABI, "getPool", token, wrapped, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	r.opts.Metrics.PoolLookup("chain")
	addr, _ := out[0].(common.Address)
	if addr == (common.Address{}) {
		return addr, nil
	}
	r.memo.SetDefault(memoKey, addr)
	if r.opts.PoolCache != nil {
		if err := r.opts.PoolCache.StorePool(key, addr); err != nil {
			r.log.Warn("pool cache write failed", zap.Error(err))
		}
	}
	return addr, nil
}

// ResolveRoute picks a direct hop when either side is native or wrapped
// native, otherwise two hops through the wrapped native token. Native tokens
// appear as the wrapped token inside the route.
func (r *Router) ResolveRoute(ctx context.Context, tokenIn, tokenOut common.Address, feeHint uint32) (Route, error) {
	wrapped, err := r.WrappedNative(ctx)
	if err != nil {
		return Route{}, err
	}
	in, out := tokenIn, tokenOut
	if IsNative(in) {
		in = wrapped
	}
	if IsNative(out) {
		out = wrapped
	}
	if in == out {
		return Route{}, clierr.New(clierr.CodeUsage, "input and output token resolve to the same asset").At(clierr.StageRoute)
	}

	if in == wrapped || out == wrapped {
		other := out
		if other == wrapped {
			other = in
		}
		pool, err := r.FindPool(ctx, other, feeHint)
		if err != nil {
			return Route{}, err
		}
		return Route{Hops: []Hop{{TokenIn: in, TokenOut: out, Fee: pool.Fee, Pool: pool.Address}}}, nil
	}

	first, err := r.FindPool(ctx, in, feeHint)
	if err != nil {
		return Route{}, asRouteLeg(err, legIn)
	}
	second, err := r.FindPool(ctx, out, feeHint)
	if err != nil {
		return Route{}, asRouteLeg(err, legOut)
	}
	return Route{Hops: []Hop{
		{TokenIn: in, TokenOut: wrapped, Fee: first.Fee, Pool: first.Address},
		{TokenIn: wrapped, TokenOut: out, Fee: second.Fee, Pool: second.Address},
	}}, nil
}

func asRouteLeg(err error, leg string) error {
	if clierr.Is(err, clierr.CodeNoPoolFound) {
		return clierr.NoRouteFound(leg, err)
	}
	return err
}

func (r *Router) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err).At(clierr.StageRoute)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err).At(clierr.StageRoute)
	}
	return out, nil
}

func (r *Router) deadline() *big.Int {
	return big.NewInt(r.opts.Now().Add(r.opts.DeadlineOffset).Unix())
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
