package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/httpx"
	"github.com/ggonzalez94/chainctl/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultHealthInterval = 300 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultStopTimeout    = time.Second
	DefaultRetireGrace    = 30 * time.Second
)

// Connection is an immutable handle on one endpoint. It is replaced as a whole
// on failover and never mutated after creation.
type Connection struct {
	Endpoint string
	Client   *ethclient.Client
	rpc      *rpc.Client
	closed   atomic.Bool
}

// RPC exposes the raw JSON-RPC client for calls ethclient does not wrap.
func (c *Connection) RPC() *rpc.Client { return c.rpc }

func (c *Connection) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.Client != nil {
		c.Client.Close()
	}
}

type Options struct {
	// ExpectedChainID rejects endpoints that answer for another chain. Zero accepts any.
	ExpectedChainID int64
	ProbeTimeout    time.Duration
	StopTimeout     time.Duration
	// RetireGrace is how long a connection replaced on failover stays open for
	// callers still holding it.
	RetireGrace     time.Duration
	// UserAgent is sent on HTTP endpoints; Retries bounds retries of 429/502/503 answers.
	UserAgent string
	Retries   int
	Logger    *zap.Logger
	Metrics   *metrics.Collectors
}

// Manager owns the endpoint pool and the current connection of one client.
type Manager struct {
	pool Pool
	opts Options
	log  *zap.Logger

	current atomic.Pointer[Connection]
	swapMu  sync.Mutex
	retired map[*Connection]*time.Timer

	monitorOnce sync.Once
	stopOnce    sync.Once
	stop        chan struct{}
	done        chan struct{}
}

// New resolves the pool for userEndpoint/family. It does not connect; the
// first EnsureConnected call does.
func New(userEndpoint, family string, opts Options) (*Manager, error) {
	pool, err := ResolvePool(userEndpoint, family)
	if err != nil {
		return nil, err
	}
	return NewWithPool(pool, opts), nil
}

func NewWithPool(pool Pool, opts Options) *Manager {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.RetireGrace <= 0 {
		opts.RetireGrace = DefaultRetireGrace
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		pool:    Pool{Family: pool.Family, Endpoints: append([]string(nil), pool.Endpoints...)},
		opts:    opts,
		log:     log.Named("endpoint"),
		stop:    make(chan struct{}),
		retired: make(map[*Connection]*time.Timer),
	}
}

func (m *Manager) Family() string { return m.pool.Family }

func (m *Manager) Endpoints() []string { return append([]string(nil), m.pool.Endpoints...) }

// Current returns the active connection, or nil before the first successful connect.
func (m *Manager) Current() *Connection { return m.current.Load() }

// Acquire returns the current connection without probing it, connecting first
// if there is none yet. Read paths use it; submissions use EnsureConnected.
func (m *Manager) Acquire(ctx context.Context) (*Connection, error) {
	if conn := m.current.Load(); conn != nil {
		return conn, nil
	}
	return m.EnsureConnected(ctx)
}

// EnsureConnected returns a connection that just answered a liveness probe.
// A healthy current connection short-circuits; otherwise the pool is walked in
// priority order, skipping the endpoint that just failed.
func (m *Manager) EnsureConnected(ctx context.Context) (*Connection, error) {
	snapshot := m.current.Load()
	failing := ""
	if snapshot != nil {
		err := m.probe(ctx, snapshot)
		if err == nil {
			return snapshot, nil
		}
		failing = snapshot.Endpoint
		m.opts.Metrics.ProbeFailed(failing)
		m.log.Warn("active endpoint failed liveness probe", zap.String("endpoint", failing), zap.Error(err))
	}

	tried := 0
	var lastErr error
	for _, endpoint := range m.pool.Endpoints {
		if endpoint == failing {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, clierr.NoAvailableEndpoint(tried, err)
		}
		tried++
		conn, err := m.dial(ctx, endpoint)
		if err == nil {
			err = m.probe(ctx, conn)
			if err != nil {
				conn.Close()
			}
		}
		if err != nil {
			lastErr = err
			m.opts.Metrics.ProbeFailed(endpoint)
			m.log.Debug("endpoint probe failed", zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		return m.swap(snapshot, conn), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate endpoints besides the failing one")
	}
	return nil, clierr.NoAvailableEndpoint(tried, lastErr)
}

// swap installs next unless another caller already replaced expected, in which
// case the winner is kept and next is discarded. The replaced connection stays
// open for RetireGrace so callers holding it can finish, then it is closed.
func (m *Manager) swap(expected, next *Connection) *Connection {
	m.swapMu.Lock()
	defer m.swapMu.Unlock()
	if cur := m.current.Load(); cur != expected && cur != nil {
		next.Close()
		return cur
	}
	m.current.Store(next)
	from := ""
	if expected != nil {
		from = expected.Endpoint
		m.retire(expected)
	}
	m.opts.Metrics.Failover(from, next.Endpoint)
	m.log.Info("connected to endpoint", zap.String("endpoint", next.Endpoint), zap.String("previous", from))
	return next
}

// retire schedules conn to close after the grace period. Callers hold swapMu.
func (m *Manager) retire(conn *Connection) {
	if _, ok := m.retired[conn]; ok {
		return
	}
	m.retired[conn] = time.AfterFunc(m.opts.RetireGrace, func() {
		m.swapMu.Lock()
		delete(m.retired, conn)
		m.swapMu.Unlock()
		conn.Close()
		m.log.Debug("retired endpoint connection closed", zap.String("endpoint", conn.Endpoint))
	})
}

func (m *Manager) dial(ctx context.Context, endpoint string) (*Connection, error) {
	client, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(httpx.NewClient(m.opts.ProbeTimeout, m.opts.Retries, m.opts.UserAgent)))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &Connection{Endpoint: endpoint, Client: ethclient.NewClient(client), rpc: client}, nil
}

func (m *Manager) probe(ctx context.Context, conn *Connection) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	chainID, err := conn.Client.ChainID(probeCtx)
	if err != nil {
		return fmt.Errorf("probe %s: %w", conn.Endpoint, err)
	}
	if m.opts.ExpectedChainID != 0 && chainID.Int64() != m.opts.ExpectedChainID {
		return fmt.Errorf("probe %s: chain id %s, expected %d", conn.Endpoint, chainID, m.opts.ExpectedChainID)
	}
	return nil
}

// StartHealthMonitor runs EnsureConnected every interval in the background until
// Stop is called or ctx ends. Probe failures are logged, never returned.
// Only the first call starts a monitor.
func (m *Manager) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	m.monitorOnce.Do(func() {
		m.done = make(chan struct{})
		go m.monitor(ctx, interval)
	})
}

func (m *Manager) monitor(ctx context.Context, interval time.Duration) {
	defer close(m.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := m.EnsureConnected(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn("health check found no available endpoint", zap.Error(err))
		}
	}
}

// Stop signals the health monitor and waits up to the stop timeout for it to
// exit. It is safe to call more than once and before the monitor started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.monitorOnce.Do(func() {})
	done := m.done
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(m.opts.StopTimeout):
		m.log.Warn("health monitor did not stop in time", zap.Duration("timeout", m.opts.StopTimeout))
	}
}

// Close stops the monitor and releases the current connection along with any
// retired ones still in their grace period.
func (m *Manager) Close() {
	m.Stop()
	m.swapMu.Lock()
	defer m.swapMu.Unlock()
	if conn := m.current.Swap(nil); conn != nil {
		conn.Close()
	}
	for conn, timer := range m.retired {
		timer.Stop()
		conn.Close()
		delete(m.retired, conn)
	}
}
