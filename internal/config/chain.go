package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/registry"
)

// ChainParams is the raw, unvalidated chain configuration.
type ChainParams struct {
	RPCEndpoint     string
	ChainID         int64
	Router          string
	Factory         string
	PositionManager string
	Quoter          string
	Hub             string
}

// ChainConfig is the validated configuration the chain client runs against.
// It never carries key material.
type ChainConfig struct {
	RPCEndpoint     string
	ChainID         int64
	Family          string
	Router          common.Address
	Factory         common.Address
	PositionManager common.Address
	// Quoter is the zero address when the chain has no quoter configured.
	Quoter common.Address
	// Hub is the agent registration and task contract; zero when unset.
	Hub common.Address
}

// NewChainConfig validates p. Addresses must be hex; mixed-case input must
// carry a correct EIP-55 checksum. Quoter and Hub are optional.
func NewChainConfig(p ChainParams) (ChainConfig, error) {
	endpoint := strings.TrimSpace(p.RPCEndpoint)
	if endpoint == "" {
		return ChainConfig{}, clierr.New(clierr.CodeUsage, "rpc endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ChainConfig{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc endpoint %q is not a valid url", endpoint))
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return ChainConfig{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc endpoint scheme %q is not supported", u.Scheme))
	}
	if p.ChainID <= 0 {
		return ChainConfig{}, clierr.New(clierr.CodeUsage, "chain id must be positive")
	}

	cfg := ChainConfig{RPCEndpoint: endpoint, ChainID: p.ChainID}
	if family, ok := registry.FamilyForChainID(p.ChainID); ok {
		cfg.Family = family
	} else {
		cfg.Family = registry.FamilyForEndpoint(endpoint)
	}
	required := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"router", p.Router, &cfg.Router},
		{"factory", p.Factory, &cfg.Factory},
		{"position manager", p.PositionManager, &cfg.PositionManager},
	}
	for _, field := range required {
		addr, err := ParseAddress(field.name, field.raw)
		if err != nil {
			return ChainConfig{}, err
		}
		*field.dst = addr
	}
	if strings.TrimSpace(p.Quoter) != "" {
		if cfg.Quoter, err = ParseAddress("quoter", p.Quoter); err != nil {
			return ChainConfig{}, err
		}
	}
	if strings.TrimSpace(p.Hub) != "" {
		if cfg.Hub, err = ParseAddress("hub", p.Hub); err != nil {
			return ChainConfig{}, err
		}
	}
	return cfg, nil
}

// ParseAddress validates a hex address. All-lowercase and all-uppercase input
// is accepted as is; mixed case must match its EIP-55 checksum.
func ParseAddress(name, raw string) (common.Address, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s address is required", name))
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s address %q is not a valid hex address", name, v))
	}
	addr := common.HexToAddress(v)
	body := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex() != "0x"+body {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s address %q has an invalid checksum", name, v))
	}
	return addr, nil
}

// ResolveChainID accepts a chain family name or a numeric chain id.
func ResolveChainID(chain string) (int64, error) {
	v := strings.TrimSpace(chain)
	if v == "" {
		return 0, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n <= 0 {
			return 0, clierr.New(clierr.CodeUsage, "chain id must be positive")
		}
		return n, nil
	}
	if id, ok := registry.FamilyChainID(v); ok {
		return id, nil
	}
	return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown chain %q", chain))
}

// ChainConfig fills unset contract addresses from the built-in deployment for
// the selected chain and validates the result.
func (s Settings) ChainConfig() (ChainConfig, error) {
	chainID, err := ResolveChainID(s.Chain)
	if err != nil {
		return ChainConfig{}, err
	}
	p := ChainParams{
		RPCEndpoint:     s.RPCEndpoint,
		ChainID:         chainID,
		Router:          s.Router,
		Factory:         s.Factory,
		PositionManager: s.PositionManager,
		Quoter:          s.Quoter,
		Hub:             s.Hub,
	}
	if d, ok := registry.V3Deployment(chainID); ok {
		setString(&p.Router, orEmpty(p.Router, d.Router))
		setString(&p.Factory, orEmpty(p.Factory, d.Factory))
		setString(&p.PositionManager, orEmpty(p.PositionManager, d.PositionManager))
		setString(&p.Quoter, orEmpty(p.Quoter, d.QuoterV2))
		setString(&p.Hub, orEmpty(p.Hub, d.Hub))
	}
	if strings.TrimSpace(p.RPCEndpoint) == "" {
		if family, ok := registry.FamilyForChainID(chainID); ok {
			if list, err := registry.FamilyEndpoints(family); err == nil && len(list) > 0 {
				p.RPCEndpoint = list[0]
			}
		}
	}
	return NewChainConfig(p)
}

func orEmpty(current, fallback string) string {
	if strings.TrimSpace(current) != "" {
		return current
	}
	return fallback
}
