package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/httpx"
	"github.com/ggonzalez94/chainctl/internal/id"
	"github.com/ggonzalez94/chainctl/internal/model"
	"github.com/ggonzalez94/chainctl/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const metricsShutdownTimeout = 5 * time.Second

// endpointManager builds a standalone pool manager for the configured chain.
// It does not need contract addresses, so it works on chains without a
// known deployment.
func (s *runtimeState) endpointManager() (*endpoint.Manager, id.Chain, error) {
	chain, err := id.ParseChain(s.settings.Chain)
	if err != nil {
		return nil, id.Chain{}, err
	}
	mgr, err := endpoint.New(s.settings.RPCEndpoint, chain.Family, endpoint.Options{
		ExpectedChainID: chain.ChainID,
		ProbeTimeout:    s.settings.Timeout,
		UserAgent:       version.UserAgent(),
		Retries:         httpx.DefaultRetries,
		Logger:          s.log,
		Metrics:         s.metrics,
	})
	if err != nil {
		return nil, id.Chain{}, err
	}
	s.chain = &model.ChainMeta{ChainID: chain.ChainID, Family: mgr.Family()}
	return mgr, chain, nil
}

func (s *runtimeState) newEndpointsCommand() *cobra.Command {
	root := &cobra.Command{Use: "endpoints", Short: "Endpoint pool commands"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the endpoint pool in failover order",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, chain, err := s.endpointManager()
			if err != nil {
				return err
			}
			defer mgr.Close()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.EndpointPool{
				Family:    mgr.Family(),
				ChainID:   chain.ChainID,
				Endpoints: mgr.Endpoints(),
			}, nil)
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Probe every endpoint of the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := s.endpointManager()
			if err != nil {
				return err
			}
			defer mgr.Close()
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			statuses := mgr.Check(ctx)
			var warnings []string
			reachable := 0
			for _, st := range statuses {
				if st.Reachable {
					reachable++
				} else {
					warnings = append(warnings, st.URL+": "+st.Error)
				}
			}
			if reachable == 0 {
				return clierr.NoAvailableEndpoint(len(statuses), errors.New(warnings[len(warnings)-1])).At(clierr.StageConnect)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), statuses, warnings)
		},
	}

	root.AddCommand(list)
	root.AddCommand(check)
	return root
}

func (s *runtimeState) newMonitorCommand() *cobra.Command {
	var intervalArg, addrArg, durationArg string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Keep the endpoint pool healthy and serve Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := s.settings.HealthInterval
			if intervalArg != "" {
				d, err := time.ParseDuration(intervalArg)
				if err != nil || d <= 0 {
					return clierr.New(clierr.CodeUsage, "--interval must be a positive duration")
				}
				interval = d
			}
			var duration time.Duration
			if durationArg != "" {
				d, err := time.ParseDuration(durationArg)
				if err != nil || d < 0 {
					return clierr.New(clierr.CodeUsage, "--duration must be a non-negative duration")
				}
				duration = d
			}
			addr := s.settings.MetricsAddr
			if addrArg != "" {
				addr = addrArg
			}

			mgr, _, err := s.endpointManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "listen for metrics", err)
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", s.metrics.Handler())
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.Serve(listener) }()

			started := time.Now()
			connectCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
			if _, err := mgr.EnsureConnected(connectCtx); err != nil {
				s.log.Warn("initial connect failed", zap.Error(err))
			}
			cancel()
			mgr.StartHealthMonitor(ctx, interval)
			s.log.Info("monitoring endpoint pool",
				zap.String("family", mgr.Family()),
				zap.Duration("interval", interval),
				zap.String("metrics_addr", listener.Addr().String()))

			var runErr error
			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					runErr = clierr.Wrap(clierr.CodeInternal, "serve metrics", err)
				}
			}
			mgr.Stop()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancelShutdown()
			_ = srv.Shutdown(shutdownCtx)
			if runErr != nil {
				return runErr
			}

			summary := model.MonitorSummary{
				Family:      mgr.Family(),
				Endpoints:   mgr.Endpoints(),
				MetricsAddr: listener.Addr().String(),
				UptimeMS:    time.Since(started).Milliseconds(),
			}
			if conn := mgr.Current(); conn != nil {
				summary.Active = conn.Endpoint
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), summary, nil)
		},
	}
	cmd.Flags().StringVar(&intervalArg, "interval", "", "Health check interval (default from config, 300s)")
	cmd.Flags().StringVar(&addrArg, "metrics-addr", "", "Listen address for /metrics")
	cmd.Flags().StringVar(&durationArg, "duration", "", "Stop after this long (default: until interrupted)")
	return cmd
}
