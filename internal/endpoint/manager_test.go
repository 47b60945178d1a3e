package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/metrics"
	"go.uber.org/zap"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type fakeNode struct {
	*httptest.Server
	chainID uint64
	down    atomic.Bool
	hits    atomic.Int64
}

func newFakeNode(t *testing.T, chainID uint64) *fakeNode {
	t.Helper()
	n := &fakeNode{chainID: chainID}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		n.hits.Add(1)
		if n.down.Load() {
			http.Error(w, "node unavailable", http.StatusServiceUnavailable)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "eth_chainId":
			writeRPCResult(w, req.ID, hexutil.EncodeUint64(n.chainID))
		case "eth_blockNumber":
			writeRPCResult(w, req.ID, "0x2a")
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}))
	t.Cleanup(n.Close)
	return n
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

func newTestManager(t *testing.T, opts Options, nodes ...*fakeNode) *Manager {
	t.Helper()
	urls := make([]string, 0, len(nodes))
	for _, n := range nodes {
		urls = append(urls, n.URL)
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	opts.Logger = zap.NewNop()
	m := NewWithPool(Pool{Family: "test", Endpoints: urls}, opts)
	t.Cleanup(m.Close)
	return m
}

func TestResolvePoolPutsUserEndpointFirstOnce(t *testing.T) {
	pool, err := ResolvePool("https://bsc-testnet-rpc.publicnode.com/", "")
	if err != nil {
		t.Fatalf("ResolvePool failed: %v", err)
	}
	if pool.Family != "bsc-testnet" {
		t.Fatalf("expected bsc-testnet family, got %s", pool.Family)
	}
	if pool.Endpoints[0] != "https://bsc-testnet-rpc.publicnode.com/" {
		t.Fatalf("expected user endpoint at head, got %s", pool.Endpoints[0])
	}
	if len(pool.Endpoints) != 10 {
		t.Fatalf("expected duplicate user endpoint to be dropped, got %d endpoints", len(pool.Endpoints))
	}
}

func TestResolvePoolAddsUnknownUserEndpoint(t *testing.T) {
	pool, err := ResolvePool("https://my-node.example/bsc", "bsc")
	if err != nil {
		t.Fatalf("ResolvePool failed: %v", err)
	}
	if pool.Endpoints[0] != "https://my-node.example/bsc" || len(pool.Endpoints) != 5 {
		t.Fatalf("unexpected pool: %+v", pool)
	}
}

func TestResolvePoolNoEndpointConfigured(t *testing.T) {
	_, err := ResolvePool("", "ethereum")
	if !clierr.Is(err, clierr.CodeNoEndpointConfigured) {
		t.Fatalf("expected NoEndpointConfigured, got %v", err)
	}
}

func TestEnsureConnectedFailsOverToThirdAndReusesIt(t *testing.T) {
	first, second, third := newFakeNode(t, 97), newFakeNode(t, 97), newFakeNode(t, 97)
	first.down.Store(true)
	second.down.Store(true)
	m := newTestManager(t, Options{}, first, second, third)

	conn, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if conn.Endpoint != third.URL {
		t.Fatalf("expected third endpoint, got %s", conn.Endpoint)
	}

	first.hits.Store(0)
	second.hits.Store(0)
	for i := 0; i < 3; i++ {
		again, err := m.EnsureConnected(context.Background())
		if err != nil {
			t.Fatalf("EnsureConnected #%d failed: %v", i, err)
		}
		if again != conn {
			t.Fatal("expected the healthy connection to be reused")
		}
	}
	if first.hits.Load() != 0 || second.hits.Load() != 0 {
		t.Fatalf("expected no re-probing of failed endpoints, got first=%d second=%d", first.hits.Load(), second.hits.Load())
	}
}

func TestEnsureConnectedPrefersEarliestHealthyEndpoint(t *testing.T) {
	first, second := newFakeNode(t, 97), newFakeNode(t, 97)
	m := newTestManager(t, Options{}, first, second)

	conn, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if conn.Endpoint != first.URL {
		t.Fatalf("expected first endpoint, got %s", conn.Endpoint)
	}
	if second.hits.Load() != 0 {
		t.Fatalf("expected lower priority endpoint untouched, got %d hits", second.hits.Load())
	}
}

func TestEnsureConnectedSkipsTheFailingEndpoint(t *testing.T) {
	first, second := newFakeNode(t, 97), newFakeNode(t, 97)
	m := newTestManager(t, Options{}, first, second)
	if _, err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	first.down.Store(true)
	first.hits.Store(0)
	conn, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("failover failed: %v", err)
	}
	if conn.Endpoint != second.URL {
		t.Fatalf("expected failover to second endpoint, got %s", conn.Endpoint)
	}
	if got := first.hits.Load(); got != 1 {
		t.Fatalf("expected failing endpoint probed once at entry, got %d", got)
	}
}

func TestEnsureConnectedNoAvailableEndpoint(t *testing.T) {
	first, second := newFakeNode(t, 97), newFakeNode(t, 97)
	first.down.Store(true)
	second.down.Store(true)
	m := newTestManager(t, Options{}, first, second)

	_, err := m.EnsureConnected(context.Background())
	if !clierr.Is(err, clierr.CodeNoAvailableEndpoint) {
		t.Fatalf("expected NoAvailableEndpoint, got %v", err)
	}
	cErr, _ := clierr.As(err)
	if cErr.Stage != clierr.StageConnect {
		t.Fatalf("expected connect stage, got %q", cErr.Stage)
	}
	if m.Current() != nil {
		t.Fatal("expected no current connection")
	}
}

func TestEnsureConnectedRejectsWrongChain(t *testing.T) {
	mainnet, testnet := newFakeNode(t, 56), newFakeNode(t, 97)
	m := newTestManager(t, Options{ExpectedChainID: 97}, mainnet, testnet)

	conn, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if conn.Endpoint != testnet.URL {
		t.Fatalf("expected chain 97 endpoint, got %s", conn.Endpoint)
	}
}

func TestConcurrentEnsureConnectedSharesOneConnection(t *testing.T) {
	node := newFakeNode(t, 97)
	m := newTestManager(t, Options{}, node)

	var wg sync.WaitGroup
	conns := make([]*Connection, 8)
	for i := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := m.EnsureConnected(context.Background())
			if err != nil {
				t.Errorf("EnsureConnected failed: %v", err)
				return
			}
			conns[i] = conn
		}()
	}
	wg.Wait()
	for i, conn := range conns {
		if conn != m.Current() {
			t.Fatalf("goroutine %d observed a different connection", i)
		}
	}
}

func TestHealthMonitorFailsOverAndStops(t *testing.T) {
	first, second := newFakeNode(t, 97), newFakeNode(t, 97)
	collectors := metrics.New()
	m := newTestManager(t, Options{Metrics: collectors}, first, second)
	if _, err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	m.StartHealthMonitor(context.Background(), 20*time.Millisecond)
	first.down.Store(true)

	deadline := time.Now().Add(3 * time.Second)
	for m.Current().Endpoint != second.URL {
		if time.Now().After(deadline) {
			t.Fatal("health monitor did not fail over in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Stop()
	m.Stop()
	hits := second.hits.Load()
	time.Sleep(80 * time.Millisecond)
	if second.hits.Load() != hits {
		t.Fatal("expected no probes after Stop")
	}
}

func TestStopWithoutMonitorIsSafe(t *testing.T) {
	node := newFakeNode(t, 97)
	m := newTestManager(t, Options{}, node)
	m.Stop()
	m.Stop()
	m.StartHealthMonitor(context.Background(), time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if node.hits.Load() != 0 {
		t.Fatal("expected a stopped manager not to start monitoring")
	}
}

func TestCheckReportsEveryEndpoint(t *testing.T) {
	up, down := newFakeNode(t, 97), newFakeNode(t, 97)
	down.down.Store(true)
	m := newTestManager(t, Options{ExpectedChainID: 97}, up, down)
	if _, err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	report := m.Check(context.Background())
	if len(report) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(report))
	}
	if !report[0].Reachable || !report[0].Active || report[0].BlockNumber != 42 || report[0].ChainID != 97 {
		t.Fatalf("unexpected status for healthy endpoint: %+v", report[0])
	}
	if report[1].Reachable || report[1].Error == "" || report[1].Priority != 1 {
		t.Fatalf("unexpected status for failing endpoint: %+v", report[1])
	}
}

func TestFailoverClosesReplacedConnectionAfterGrace(t *testing.T) {
	first, second := newFakeNode(t, 97), newFakeNode(t, 97)
	m := newTestManager(t, Options{RetireGrace: 20 * time.Millisecond}, first, second)
	old, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	first.down.Store(true)
	next, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("failover failed: %v", err)
	}
	if next == old || next.closed.Load() {
		t.Fatal("expected a fresh open connection after failover")
	}
	if old.closed.Load() {
		t.Fatal("expected replaced connection to stay open during the grace period")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !old.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("replaced connection was never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseReleasesRetiredConnections(t *testing.T) {
	first, second := newFakeNode(t, 97), newFakeNode(t, 97)
	m := newTestManager(t, Options{RetireGrace: time.Hour}, first, second)
	old, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	first.down.Store(true)
	next, err := m.EnsureConnected(context.Background())
	if err != nil {
		t.Fatalf("failover failed: %v", err)
	}

	m.Close()
	if !old.closed.Load() || !next.closed.Load() {
		t.Fatalf("expected Close to release every connection, old=%v current=%v", old.closed.Load(), next.closed.Load())
	}
}
