package endpoint

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is a point-in-time health reading of one endpoint.
type Status struct {
	URL         string `json:"url"`
	Priority    int    `json:"priority"`
	Reachable   bool   `json:"reachable"`
	Active      bool   `json:"active"`
	ChainID     int64  `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	LatencyMS   int64  `json:"latency_ms"`
	Error       string `json:"error,omitempty"`
}

const checkConcurrency = 4

// Check probes every endpoint of the pool concurrently on throwaway
// connections. It never touches the current connection.
func (m *Manager) Check(ctx context.Context) []Status {
	out := make([]Status, len(m.pool.Endpoints))
	active := ""
	if conn := m.current.Load(); conn != nil {
		active = conn.Endpoint
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)
	for i, url := range m.pool.Endpoints {
		g.Go(func() error {
			out[i] = m.checkOne(gctx, url)
			out[i].Priority = i
			out[i].Active = url == active
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (m *Manager) checkOne(ctx context.Context, url string) Status {
	st := Status{URL: url}
	start := time.Now()
	conn, err := m.dial(ctx, url)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	defer conn.Close()

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	chainID, err := conn.Client.ChainID(probeCtx)
	if err != nil {
		st.Error = err.Error()
		st.LatencyMS = time.Since(start).Milliseconds()
		return st
	}
	st.ChainID = chainID.Int64()
	block, err := conn.Client.BlockNumber(probeCtx)
	st.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.BlockNumber = block
	st.Reachable = m.opts.ExpectedChainID == 0 || st.ChainID == m.opts.ExpectedChainID
	if !st.Reachable {
		st.Error = "chain id mismatch"
	}
	return st
}
