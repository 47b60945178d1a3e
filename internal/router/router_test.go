package router

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ggonzalez94/chainctl/internal/cache"
	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution"
	"github.com/ggonzalez94/chainctl/internal/metrics"
)

var (
	testRouter  = common.HexToAddress("0x1b81D678ffb9C0263b24A97847620C99d213eB14")
	testFactory = common.HexToAddress("0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865")
	testQuoter  = common.HexToAddress("0xbC203d7f83677c7ed3F7acEc959963E7F4ECC5C2")
	testWallet  = common.HexToAddress("0x00000000000000000000000000000000000000C0")
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type callArgs struct {
	To    common.Address `json:"to"`
	Data  string         `json:"data"`
	Input string         `json:"input"`
}

// mockChain serves eth_call for the factory, router, quoter and ERC-20
// contracts used by the router.
type mockChain struct {
	*httptest.Server

	mu           sync.Mutex
	pools        map[string]common.Address
	allowance    *big.Int
	getPoolCalls int
	quotePath    []byte
	quoteMethod  string
	slot0        map[common.Address]*big.Int
	balances     map[common.Address]*big.Int
}

func poolKey(token common.Address, fee uint32) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(token.Hex()), fee)
}

func newMockChain(t *testing.T) *mockChain {
	t.Helper()
	m := &mockChain{
		pools:     map[string]common.Address{},
		allowance: big.NewInt(0),
		slot0:     map[common.Address]*big.Int{},
		balances:  map[common.Address]*big.Int{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "eth_chainId":
			writeRPCResult(w, req.ID, "0x61")
		case "eth_call":
			var args callArgs
			if err := json.Unmarshal(req.Params[0], &args); err != nil {
				writeRPCError(w, req.ID, -32602, err.Error())
				return
			}
			payload := args.Input
			if payload == "" {
				payload = args.Data
			}
			out, err := m.handleCall(args.To, common.FromHex(payload))
			if err != nil {
				writeRPCError(w, req.ID, 3, err.Error())
				return
			}
			writeRPCResult(w, req.ID, "0x"+hex.EncodeToString(out))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockChain) setPool(token common.Address, fee uint32, pool common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[poolKey(token, fee)] = pool
}

func (m *mockChain) setAllowance(v *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowance = new(big.Int).Set(v)
}

func (m *mockChain) poolCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPoolCalls
}

func (m *mockChain) handleCall(to common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch to {
	case testRouter:
		return routerABI.Methods["WETH9"].Outputs.Pack(wbnb)
	case testFactory:
		args, err := factoryABI.Methods["getPool"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		m.getPoolCalls++
		tokenA := args[0].(common.Address)
		fee := args[2].(*big.Int).Uint64()
		return factoryABI.Methods["getPool"].Outputs.Pack(m.pools[poolKey(tokenA, uint32(fee))])
	case testQuoter:
		method, err := quoterABI.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		m.quoteMethod = method.Name
		m.quotePath = args[0].([]byte)
		amount := args[1].(*big.Int)
		return method.Outputs.Pack(new(big.Int).Mul(amount, big.NewInt(2)), []*big.Int{}, []uint32{}, big.NewInt(90_000))
	default:
		if sqrtPrice, ok := m.slot0[to]; ok {
			return poolABI.Methods["slot0"].Outputs.Pack(sqrtPrice, big.NewInt(-120))
		}
		if method, err := erc20ABI.MethodById(data[:4]); err == nil && method.Name == "balanceOf" {
			if balance, ok := m.balances[to]; ok {
				return method.Outputs.Pack(balance)
			}
		}
		return erc20ABI.Methods["allowance"].Outputs.Pack(m.allowance)
	}
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawIDOrDefault(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

// recordingExecutor captures calls instead of signing and broadcasting them.
type recordingExecutor struct {
	mu     sync.Mutex
	calls  []execution.Call
	onSend func(execution.Call)
}

func (e *recordingExecutor) Address() common.Address { return testWallet }

func (e *recordingExecutor) Send(_ context.Context, call execution.Call) (execution.Receipt, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	n := len(e.calls)
	e.mu.Unlock()
	if e.onSend != nil {
		e.onSend(call)
	}
	return execution.Receipt{TxHash: fmt.Sprintf("0x%064x", n), Status: execution.StateConfirmed}, nil
}

func newTestRouter(t *testing.T, chain *mockChain, exec Executor, opts Options) *Router {
	t.Helper()
	conns := endpoint.NewWithPool(endpoint.Pool{Family: "bsc-testnet", Endpoints: []string{chain.URL}}, endpoint.Options{})
	t.Cleanup(conns.Close)
	opts.ChainID = 97
	opts.Router = testRouter
	opts.Factory = testFactory
	if opts.Quoter == (common.Address{}) {
		opts.Quoter = testQuoter
	}
	opts.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	r, err := New(conns, exec, opts)
	if err != nil {
		t.Fatalf("New router failed: %v", err)
	}
	return r
}

func TestFindPoolRespectsTierPriority(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 500, common.HexToAddress("0x0000000000000000000000000000000000000500"))
	chain.setPool(tokenX, 100, common.HexToAddress("0x0000000000000000000000000000000000000100"))
	collectors := metrics.New()
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{Metrics: collectors})

	pool, err := r.FindPool(context.Background(), tokenX, 0)
	if err != nil {
		t.Fatalf("FindPool failed: %v", err)
	}
	if pool.Fee != 500 {
		t.Fatalf("expected fee tier 500, got %d", pool.Fee)
	}
	if chain.poolCalls() != 3 {
		t.Fatalf("expected probes at 10000, 2500, 500, got %d calls", chain.poolCalls())
	}

	if _, err := r.FindPool(context.Background(), tokenX, 0); err != nil {
		t.Fatalf("FindPool (memo) failed: %v", err)
	}
	if got := poolLookups(t, collectors, "memo"); got != 1 {
		t.Fatalf("expected second lookup to be served from memo, got %v memo hits", got)
	}
}

func TestFindPoolTriesFeeHintFirst(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 10000, common.HexToAddress("0x0000000000000000000000000000000000010000"))
	chain.setPool(tokenX, 100, common.HexToAddress("0x0000000000000000000000000000000000000100"))
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})

	pool, err := r.FindPool(context.Background(), tokenX, 100)
	if err != nil {
		t.Fatalf("FindPool failed: %v", err)
	}
	if pool.Fee != 100 || chain.poolCalls() != 1 {
		t.Fatalf("expected hinted tier 100 after one probe, got fee=%d calls=%d", pool.Fee, chain.poolCalls())
	}
}

func TestFindPoolNoPoolFound(t *testing.T) {
	chain := newMockChain(t)
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})

	_, err := r.FindPool(context.Background(), tokenX, 0)
	if !clierr.Is(err, clierr.CodeNoPoolFound) {
		t.Fatalf("expected NoPoolFound, got %v", err)
	}
	if chain.poolCalls() != len(DefaultFeeTiers) {
		t.Fatalf("expected every tier probed, got %d", chain.poolCalls())
	}
}

func TestFindPoolUsesPersistentCache(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 2500, common.HexToAddress("0x0000000000000000000000000000000000002500"))
	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "pools.db"), filepath.Join(tmp, "pools.lock"), time.Hour)
	if err != nil {
		t.Fatalf("open pool cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	first := newTestRouter(t, chain, &recordingExecutor{}, Options{PoolCache: store})
	if _, err := first.FindPool(context.Background(), tokenX, 0); err != nil {
		t.Fatalf("FindPool failed: %v", err)
	}
	probes := chain.poolCalls()

	second := newTestRouter(t, chain, &recordingExecutor{}, Options{PoolCache: store})
	pool, err := second.FindPool(context.Background(), tokenX, 0)
	if err != nil {
		t.Fatalf("FindPool (cached) failed: %v", err)
	}
	if pool.Fee != 2500 {
		t.Fatalf("expected cached tier 2500, got %d", pool.Fee)
	}
	// 10000 has no pool and is not cached, so only that tier is re-probed.
	if got := chain.poolCalls() - probes; got != 1 {
		t.Fatalf("expected one re-probe for the empty tier, got %d", got)
	}
}

func TestResolveRouteHopCounts(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 500, common.HexToAddress("0x0000000000000000000000000000000000000500"))
	chain.setPool(tokenY, 2500, common.HexToAddress("0x0000000000000000000000000000000000002500"))
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})
	ctx := context.Background()

	direct, err := r.ResolveRoute(ctx, tokenX, wbnb, 0)
	if err != nil {
		t.Fatalf("ResolveRoute direct failed: %v", err)
	}
	if !direct.Direct() || direct.Hops[0].Fee != 500 {
		t.Fatalf("expected one hop at 500, got %+v", direct)
	}

	native, err := r.ResolveRoute(ctx, common.Address{}, tokenY, 0)
	if err != nil {
		t.Fatalf("ResolveRoute native failed: %v", err)
	}
	if !native.Direct() || native.Hops[0].TokenIn != wbnb || native.Hops[0].Fee != 2500 {
		t.Fatalf("expected native input to route from wrapped native, got %+v", native)
	}

	twoHop, err := r.ResolveRoute(ctx, tokenX, tokenY, 0)
	if err != nil {
		t.Fatalf("ResolveRoute two-hop failed: %v", err)
	}
	if len(twoHop.Hops) != 2 || twoHop.Hops[0].TokenOut != wbnb || twoHop.Hops[1].TokenIn != wbnb {
		t.Fatalf("expected pivot through wrapped native, got %+v", twoHop)
	}
	path, err := twoHop.Path(false)
	if err != nil || len(path) != 66 {
		t.Fatalf("expected 66-byte path, got len=%d err=%v", len(path), err)
	}
}

func TestResolveRouteNamesMissingLeg(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 500, common.HexToAddress("0x0000000000000000000000000000000000000500"))
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})

	_, err := r.ResolveRoute(context.Background(), tokenX, tokenY, 0)
	if !clierr.Is(err, clierr.CodeNoRouteFound) {
		t.Fatalf("expected NoRouteFound, got %v", err)
	}
	cliErr, _ := clierr.As(err)
	if cliErr.Leg != "out" {
		t.Fatalf("expected out leg, got %q", cliErr.Leg)
	}

	_, err = r.ResolveRoute(context.Background(), tokenY, tokenX, 0)
	cliErr, _ = clierr.As(err)
	if cliErr == nil || cliErr.Leg != "in" {
		t.Fatalf("expected in leg, got %v", err)
	}
}

func TestSwapNativeInAttachesValueWithoutApproval(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 10000, common.HexToAddress("0x0000000000000000000000000000000000010000"))
	exec := &recordingExecutor{}
	r := newTestRouter(t, chain, exec, Options{})

	res, err := r.Swap(context.Background(), SwapRequest{TokenIn: common.Address{}, TokenOut: tokenX, AmountIn: big.NewInt(1_000)})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if res.Approval != nil || len(exec.calls) != 1 {
		t.Fatalf("expected a single swap call and no approval, got %d calls", len(exec.calls))
	}
	call := exec.calls[0]
	if call.To != testRouter || call.Value.Int64() != 1_000 {
		t.Fatalf("unexpected swap call to=%s value=%s", call.To.Hex(), call.Value)
	}
	params := decodeExactInputSingle(t, call.Data)
	if params.TokenIn != wbnb || params.TokenOut != tokenX || params.Fee.Int64() != 10000 || params.Recipient != testWallet {
		t.Fatalf("unexpected exactInputSingle params %+v", params)
	}
	if params.Deadline.Int64() != 1_700_000_000+3600 {
		t.Fatalf("expected default one hour deadline, got %s", params.Deadline)
	}
}

func TestSwapTwoHopApprovesThenEncodesPath(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 500, common.HexToAddress("0x0000000000000000000000000000000000000500"))
	chain.setPool(tokenY, 2500, common.HexToAddress("0x0000000000000000000000000000000000002500"))
	exec := &recordingExecutor{}
	exec.onSend = func(call execution.Call) {
		if call.To == tokenX {
			chain.setAllowance(math.MaxBig256)
		}
	}
	r := newTestRouter(t, chain, exec, Options{})

	res, err := r.Swap(context.Background(), SwapRequest{TokenIn: tokenX, TokenOut: tokenY, AmountIn: big.NewInt(7), MinAmountOut: big.NewInt(3)})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if res.Approval == nil || len(exec.calls) != 2 {
		t.Fatalf("expected approval then swap, got %d calls", len(exec.calls))
	}
	approve := exec.calls[0]
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(approve.Data[4:])
	if err != nil {
		t.Fatalf("decode approve: %v", err)
	}
	if args[0].(common.Address) != testRouter || args[1].(*big.Int).Cmp(math.MaxBig256) != 0 {
		t.Fatalf("expected max approval to router, got %v", args)
	}

	swap := exec.calls[1]
	method, err := routerABI.MethodById(swap.Data[:4])
	if err != nil || method.Name != "exactInput" {
		t.Fatalf("expected exactInput call, got %v (err=%v)", method, err)
	}
	decoded, err := method.Inputs.Unpack(swap.Data[4:])
	if err != nil {
		t.Fatalf("decode exactInput: %v", err)
	}
	params := abi.ConvertType(decoded[0], new(exactInputParams)).(*exactInputParams)
	if len(params.Path) != 66 || params.AmountOutMinimum.Int64() != 3 || params.Recipient != testWallet {
		t.Fatalf("unexpected exactInput params path=%d min=%s recipient=%s", len(params.Path), params.AmountOutMinimum, params.Recipient.Hex())
	}
	if swap.Value.Sign() != 0 {
		t.Fatalf("token input swap must not carry value, got %s", swap.Value)
	}
}

func TestSellToNativeBundlesSwapAndUnwrap(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 2500, common.HexToAddress("0x0000000000000000000000000000000000002500"))
	chain.setAllowance(math.MaxBig256)
	exec := &recordingExecutor{}
	r := newTestRouter(t, chain, exec, Options{})

	res, err := r.Swap(context.Background(), SwapRequest{TokenIn: tokenX, TokenOut: common.Address{}, AmountIn: big.NewInt(50)})
	if err != nil {
		t.Fatalf("Swap to native failed: %v", err)
	}
	if res.Approval != nil || len(exec.calls) != 1 {
		t.Fatalf("expected standing approval to be reused, got %d calls", len(exec.calls))
	}
	method, err := routerABI.MethodById(exec.calls[0].Data[:4])
	if err != nil || method.Name != "multicall" {
		t.Fatalf("expected multicall, got %v (err=%v)", method, err)
	}
	decoded, err := method.Inputs.Unpack(exec.calls[0].Data[4:])
	if err != nil {
		t.Fatalf("decode multicall: %v", err)
	}
	inner := decoded[0].([][]byte)
	if len(inner) != 2 {
		t.Fatalf("expected swap + unwrap, got %d calls", len(inner))
	}
	swap := decodeExactInputSingle(t, inner[0])
	if swap.Recipient != (common.Address{}) || swap.TokenOut != wbnb || swap.Fee.Int64() != 2500 {
		t.Fatalf("unexpected sell leg %+v", swap)
	}
	unwrap, err := routerABI.MethodById(inner[1][:4])
	if err != nil || unwrap.Name != "unwrapWETH9" {
		t.Fatalf("expected unwrapWETH9, got %v (err=%v)", unwrap, err)
	}
	unwrapArgs, err := unwrap.Inputs.Unpack(inner[1][4:])
	if err != nil {
		t.Fatalf("decode unwrapWETH9: %v", err)
	}
	if unwrapArgs[1].(common.Address) != testWallet {
		t.Fatalf("expected proceeds unwrapped to wallet, got %v", unwrapArgs[1])
	}
}

func TestEnsureApprovalReportsInsufficientAllowance(t *testing.T) {
	chain := newMockChain(t)
	exec := &recordingExecutor{}
	r := newTestRouter(t, chain, exec, Options{})

	receipt, err := r.EnsureApproval(context.Background(), tokenX, big.NewInt(10))
	if !clierr.Is(err, clierr.CodeInsufficientApproval) {
		t.Fatalf("expected InsufficientApproval, got %v", err)
	}
	if receipt == nil || len(exec.calls) != 1 {
		t.Fatalf("expected the approval transaction to be sent once, got %d", len(exec.calls))
	}
}

func TestQuoteExactOutputReversesPath(t *testing.T) {
	chain := newMockChain(t)
	chain.setPool(tokenX, 500, common.HexToAddress("0x0000000000000000000000000000000000000500"))
	chain.setPool(tokenY, 2500, common.HexToAddress("0x0000000000000000000000000000000000002500"))
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})

	q, err := r.Quote(context.Background(), tokenX, tokenY, big.NewInt(100), true, 0)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	chain.mu.Lock()
	method, path := chain.quoteMethod, chain.quotePath
	chain.mu.Unlock()
	if method != "quoteExactOutput" {
		t.Fatalf("expected quoteExactOutput, got %s", method)
	}
	want, _ := EncodePath([]common.Address{tokenY, wbnb, tokenX}, []uint32{2500, 500}, false)
	if hex.EncodeToString(path) != hex.EncodeToString(want) {
		t.Fatalf("expected reversed path")
	}
	if q.AmountOut != "100" || q.AmountIn != "200" || q.GasEstimate != "90000" {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestQuoteWithoutQuoterIsUnsupported(t *testing.T) {
	chain := newMockChain(t)
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})
	r.opts.Quoter = common.Address{}
	if _, err := r.Quote(context.Background(), tokenX, tokenY, big.NewInt(1), false, 0); !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func decodeExactInputSingle(t *testing.T, data []byte) *exactInputSingleParams {
	t.Helper()
	method, err := routerABI.MethodById(data[:4])
	if err != nil || method.Name != "exactInputSingle" {
		t.Fatalf("expected exactInputSingle, got %v (err=%v)", method, err)
	}
	decoded, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("decode exactInputSingle: %v", err)
	}
	return abi.ConvertType(decoded[0], new(exactInputSingleParams)).(*exactInputSingleParams)
}

func poolLookups(t *testing.T, c *metrics.Collectors, source string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "chainctl_router_pool_lookups_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "source" && label.GetValue() == source {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPoolLiquidityReadsReservesAndSpotPrice(t *testing.T) {
	chain := newMockChain(t)
	pool := common.HexToAddress("0x0000000000000000000000000000000000002500")
	chain.setPool(tokenX, 2500, pool)
	chain.mu.Lock()
	chain.slot0[pool] = new(big.Int).Lsh(big.NewInt(2), 96)
	chain.balances[tokenX] = big.NewInt(4_000)
	chain.balances[wbnb] = big.NewInt(1_000)
	chain.mu.Unlock()
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})

	liq, err := r.PoolLiquidity(context.Background(), tokenX, 0)
	if err != nil {
		t.Fatalf("PoolLiquidity failed: %v", err)
	}
	if liq.Pool != pool || liq.Fee != 2500 || liq.WrappedNative != wbnb {
		t.Fatalf("unexpected pool %+v", liq)
	}
	if liq.TokenReserve != "4000" || liq.NativeReserve != "1000" {
		t.Fatalf("unexpected reserves token=%s native=%s", liq.TokenReserve, liq.NativeReserve)
	}
	// tokenX sorts below wbnb, so it is token0 and the price is (sqrtP/2^96)^2.
	if liq.Price != "4" || liq.Tick != -120 {
		t.Fatalf("unexpected price %s tick %d", liq.Price, liq.Tick)
	}
}

func TestSpotPriceInvertsForToken1(t *testing.T) {
	sqrtPrice := new(big.Int).Lsh(big.NewInt(2), 96)
	if got := spotPrice(sqrtPrice, false); got != "0.25" {
		t.Fatalf("expected inverted price 0.25, got %s", got)
	}
	high := common.HexToAddress("0xff00000000000000000000000000000000000000")
	if tokenIsToken0(high, wbnb) || !tokenIsToken0(tokenX, wbnb) {
		t.Fatal("unexpected token ordering")
	}
}

func TestPoolLiquidityUninitializedPool(t *testing.T) {
	chain := newMockChain(t)
	pool := common.HexToAddress("0x0000000000000000000000000000000000002500")
	chain.setPool(tokenX, 2500, pool)
	chain.mu.Lock()
	chain.slot0[pool] = big.NewInt(0)
	chain.mu.Unlock()
	r := newTestRouter(t, chain, &recordingExecutor{}, Options{})

	if _, err := r.PoolLiquidity(context.Background(), tokenX, 0); !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
