package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggonzalez94/chainctl/internal/cache"
	"github.com/ggonzalez94/chainctl/internal/client"
	"github.com/ggonzalez94/chainctl/internal/config"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/httpx"
	"github.com/ggonzalez94/chainctl/internal/metrics"
	"github.com/ggonzalez94/chainctl/internal/model"
	"github.com/ggonzalez94/chainctl/internal/out"
	"github.com/ggonzalez94/chainctl/internal/policy"
	"github.com/ggonzalez94/chainctl/internal/schema"
	"github.com/ggonzalez94/chainctl/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	started     time.Time

	log     *zap.Logger
	metrics *metrics.Collectors
	cache   *cache.Store
	client  *client.Client
	chain   *model.ChainMeta
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &runtimeState{runner: r, log: zap.NewNop(), metrics: metrics.New()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.ExecuteContext(ctx))
	if err != nil {
		state.renderError("", err)
	}
	state.close()
	if err == nil {
		return 0
	}
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	_ = s.log.Sync()
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Chain connectivity and V3 trade execution CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			s.started = s.runner.now()
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			if err := policy.CheckWriteAllowed(settings.ReadOnly, path, schema.SendsTransactions(cmd)); err != nil {
				return err
			}

			log, err := newLogger(settings.LogLevel)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "build logger", err)
			}
			s.log = log.With(zap.String("command", path))
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.BoolVar(&s.flags.ReadOnly, "read-only", false, "Block commands that send transactions")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Per-command network timeout")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	pf.StringVar(&s.flags.Chain, "chain", "", "Chain family or id (bsc-testnet|bsc|ethereum|<id>)")
	pf.StringVar(&s.flags.RPC, "rpc", "", "Preferred RPC endpoint; the chain's built-in pool backs it up")
	pf.StringVar(&s.flags.Router, "router", "", "V3 swap router address")
	pf.StringVar(&s.flags.Factory, "factory", "", "V3 factory address")
	pf.StringVar(&s.flags.PositionManager, "position-manager", "", "V3 position manager address")
	pf.StringVar(&s.flags.Quoter, "quoter", "", "QuoterV2 address")
	pf.StringVar(&s.flags.Hub, "hub", "", "Hub (agent registration and task) contract address")
	pf.Int64Var(&s.flags.GasLimit, "gas-limit", 0, "Gas limit for transactions")
	pf.StringVar(&s.flags.ReceiptTimeout, "receipt-timeout", "", "How long to wait for a receipt")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the persistent pool cache")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newEndpointsCommand())
	cmd.AddCommand(s.newMonitorCommand())
	cmd.AddCommand(s.newPoolCommand())
	cmd.AddCommand(s.newRouteCommand())
	cmd.AddCommand(s.newPathCommand())
	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newSellCommand())
	cmd.AddCommand(s.newApproveCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newTokenCommand())
	cmd.AddCommand(s.newTxCommand())
	cmd.AddCommand(s.newSignCommand())
	cmd.AddCommand(s.newVerifyCommand())
	cmd.AddCommand(s.newWaitBalanceCommand())
	cmd.AddCommand(s.newHubCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
}

// sendsTransactions marks cmd for the --read-only guard and the schema output.
func sendsTransactions(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[schema.AnnotationSendsTransactions] = "true"
	return cmd
}

// clientOptions controls what chainClient wires beyond the endpoint pool.
type clientOptions struct {
	account   client.Account
	poolCache bool
}

// chainClient builds the client for the configured chain once per run.
func (s *runtimeState) chainClient(opts clientOptions) (*client.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	cfg, err := s.settings.ChainConfig()
	if err != nil {
		return nil, err
	}
	copts := client.Options{
		Account:         opts.account,
		GasLimit:        s.settings.GasLimit,
		PollInterval:    s.settings.PollInterval,
		ReceiptTimeout:  s.settings.ReceiptTimeout,
		SerializeNonces: true,
		ProbeTimeout:    s.settings.Timeout,
		UserAgent:       version.UserAgent(),
		RPCRetries:      httpx.DefaultRetries,
		Logger:          s.log,
		Metrics:         s.metrics,
	}
	if opts.poolCache && s.settings.CacheEnabled {
		if s.cache == nil {
			store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath, s.settings.CacheTTL)
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeInternal, "open pool cache", err)
			}
			if err := store.Prune(); err != nil {
				s.log.Warn("prune pool cache", zap.Error(err))
			}
			s.cache = store
		}
		copts.PoolCache = s.cache
	}
	c, err := client.New(cfg, copts)
	if err != nil {
		return nil, err
	}
	s.client = c
	s.chain = &model.ChainMeta{ChainID: cfg.ChainID, Family: cfg.Family, Endpoint: cfg.RPCEndpoint}
	return c, nil
}

// commandContext bounds one command. Commands that wait for receipts get the
// receipt timeout on top of the network timeout.
func (s *runtimeState) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := s.settings.Timeout
	if schema.SendsTransactions(cmd) {
		timeout += 2 * s.settings.ReceiptTimeout
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.outputOptions())
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	body := &model.ErrorBody{Code: code, Type: clierr.TypeName(clierr.CodeInternal), Message: err.Error()}
	if cErr, ok := clierr.As(err); ok {
		body.Type = clierr.TypeName(cErr.Code)
		body.Message = cErr.Message
		if cErr.Cause != nil {
			body.Message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		body.Stage = string(cErr.Stage)
		body.Reason = cErr.Reason
		body.Leg = cErr.Leg
		body.TxHash = cErr.TxHash
	}
	opts := s.outputOptions()
	opts.ResultsOnly = false
	opts.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error:   body,
		Meta:    s.meta(commandPath),
	}
	_ = out.Render(s.runner.stderr, env, opts)
}

func (s *runtimeState) meta(commandPath string) model.EnvelopeMeta {
	if s.client != nil {
		if conn := s.client.Endpoints().Current(); conn != nil {
			s.chain.Endpoint = conn.Endpoint
		}
	}
	now := s.runner.now()
	m := model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: now.UTC(),
		Command:   commandPath,
		Chain:     s.chain,
	}
	if !s.started.IsZero() {
		m.LatencyMS = now.Sub(s.started).Milliseconds()
	}
	return m
}

func (s *runtimeState) outputOptions() out.Options {
	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	return out.Options{Mode: mode, SelectFields: s.settings.SelectFields, ResultsOnly: s.settings.ResultsOnly}
}

// newLogger writes JSON logs to the process stderr so stdout carries only the
// envelope.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if norm := strings.TrimSpace(part); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
