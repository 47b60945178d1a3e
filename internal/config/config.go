package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CHAINCTL_"

// GlobalFlags mirrors the persistent CLI flags. Empty strings and negative
// numbers mean "not set on the command line".
type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	ReadOnly       bool
	Timeout        string
	LogLevel       string

	Chain           string
	RPC             string
	Router          string
	Factory         string
	PositionManager string
	Quoter          string
	Hub             string
	GasLimit        int64
	ReceiptTimeout  string
	NoCache         bool
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	ReadOnly       bool
	Timeout        time.Duration
	LogLevel       string

	Chain           string
	RPCEndpoint     string
	Router          string
	Factory         string
	PositionManager string
	Quoter          string
	Hub             string

	GasLimit       uint64
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	HealthInterval time.Duration

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	CacheTTL      time.Duration

	MetricsAddr string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	LogLevel string `yaml:"log_level"`
	ReadOnly *bool  `yaml:"read_only"`
	Chain    struct {
		Name            string `yaml:"name"`
		RPC             string `yaml:"rpc"`
		Router          string `yaml:"router"`
		Factory         string `yaml:"factory"`
		PositionManager string `yaml:"position_manager"`
		Quoter          string `yaml:"quoter"`
		Hub             string `yaml:"hub"`
	} `yaml:"chain"`
	Execution struct {
		GasLimit       *uint64 `yaml:"gas_limit"`
		ReceiptTimeout string  `yaml:"receipt_timeout"`
		PollInterval   string  `yaml:"poll_interval"`
	} `yaml:"execution"`
	Health struct {
		Interval string `yaml:"interval"`
	} `yaml:"health"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Load resolves settings from defaults, the YAML file, a .env file, the
// CHAINCTL_* environment and flags, each layer overriding the previous one.
func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = 2 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.HealthInterval <= 0 {
		settings.HealthInterval = 300 * time.Second
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:     "json",
		Timeout:        30 * time.Second,
		LogLevel:       "info",
		Chain:          "bsc-testnet",
		GasLimit:       300_000,
		ReceiptTimeout: 2 * time.Minute,
		PollInterval:   2 * time.Second,
		HealthInterval: 300 * time.Second,
		CacheEnabled:   true,
		CachePath:      cachePath,
		CacheLockPath:  lockPath,
		CacheTTL:       24 * time.Hour,
		MetricsAddr:    "127.0.0.1:9464",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "chainctl", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "chainctl")
	return filepath.Join(dir, "pools.db"), filepath.Join(dir, "pools.lock"), nil
}

// loadDotEnv exports variables from a .env file without overriding the real
// environment. The default ./.env is optional; an explicit path must exist.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file %s: %w", path, err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.ReadOnly != nil {
		settings.ReadOnly = *cfg.ReadOnly
	}
	setString(&settings.Chain, cfg.Chain.Name)
	setString(&settings.RPCEndpoint, cfg.Chain.RPC)
	setString(&settings.Router, cfg.Chain.Router)
	setString(&settings.Factory, cfg.Chain.Factory)
	setString(&settings.PositionManager, cfg.Chain.PositionManager)
	setString(&settings.Quoter, cfg.Chain.Quoter)
	setString(&settings.Hub, cfg.Chain.Hub)
	if cfg.Execution.GasLimit != nil {
		settings.GasLimit = *cfg.Execution.GasLimit
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	setString(&settings.MetricsAddr, cfg.Metrics.Addr)

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Timeout, "timeout", &settings.Timeout},
		{cfg.Execution.ReceiptTimeout, "execution.receipt_timeout", &settings.ReceiptTimeout},
		{cfg.Execution.PollInterval, "execution.poll_interval", &settings.PollInterval},
		{cfg.Health.Interval, "health.interval", &settings.HealthInterval},
		{cfg.Cache.TTL, "cache.ttl", &settings.CacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(settings *Settings) error {
	if v := env("OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := env("LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := env("READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.ReadOnly = b
		}
	}
	setString(&settings.Chain, env("CHAIN"))
	setString(&settings.RPCEndpoint, env("RPC"))
	setString(&settings.Router, env("ROUTER"))
	setString(&settings.Factory, env("FACTORY"))
	setString(&settings.PositionManager, env("POSITION_MANAGER"))
	setString(&settings.Quoter, env("QUOTER"))
	setString(&settings.Hub, env("HUB"))
	setString(&settings.CachePath, env("CACHE_PATH"))
	setString(&settings.CacheLockPath, env("CACHE_LOCK_PATH"))
	setString(&settings.MetricsAddr, env("METRICS_ADDR"))
	if v := env("GAS_LIMIT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sGAS_LIMIT: %w", envPrefix, err)
		}
		settings.GasLimit = n
	}
	if v := env("NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TIMEOUT", &settings.Timeout},
		{"RECEIPT_TIMEOUT", &settings.ReceiptTimeout},
		{"POLL_INTERVAL", &settings.PollInterval},
		{"HEALTH_INTERVAL", &settings.HealthInterval},
		{"CACHE_TTL", &settings.CacheTTL},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}
	if flags.ReadOnly {
		settings.ReadOnly = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.ReceiptTimeout != "" {
		d, err := time.ParseDuration(flags.ReceiptTimeout)
		if err != nil {
			return fmt.Errorf("parse --receipt-timeout: %w", err)
		}
		settings.ReceiptTimeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	setString(&settings.Chain, flags.Chain)
	setString(&settings.RPCEndpoint, flags.RPC)
	setString(&settings.Router, flags.Router)
	setString(&settings.Factory, flags.Factory)
	setString(&settings.PositionManager, flags.PositionManager)
	setString(&settings.Quoter, flags.Quoter)
	setString(&settings.Hub, flags.Hub)
	if flags.GasLimit > 0 {
		settings.GasLimit = uint64(flags.GasLimit)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	switch settings.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
