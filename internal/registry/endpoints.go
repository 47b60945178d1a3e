package registry

import (
	"fmt"
	"strings"
)

// Chain families with a built-in endpoint pool.
const (
	FamilyBSCTestnet = "bsc-testnet"
	FamilyBSC        = "bsc"
	FamilyEthereum   = "ethereum"
)

// DefaultEndpoint is used when no rpc endpoint is configured at all.
const DefaultEndpoint = "https://bsc-testnet-rpc.publicnode.com"

// Public endpoints in priority order. The ethereum pool is intentionally empty:
// ethereum clients must bring their own endpoint.
var endpointsByFamily = map[string][]string{
	FamilyBSCTestnet: {
		"https://data-seed-prebsc-1-s1.binance.org:8545",
		"https://data-seed-prebsc-1-s2.binance.org:8545",
		"https://data-seed-prebsc-1-s3.binance.org:8545",
		"https://data-seed-prebsc-2-s1.binance.org:8545",
		"https://data-seed-prebsc-2-s2.binance.org:8545",
		"https://data-seed-prebsc-2-s3.binance.org:8545",
		"https://bsc-testnet.drpc.org",
		"https://bsc-testnet.public.blastapi.io",
		"https://bsc-testnet-rpc.publicnode.com",
		"https://api.zan.top/bsc-testnet",
	},
	FamilyBSC: {
		"https://bsc-dataseed1.binance.org",
		"https://bsc-dataseed2.binance.org",
		"https://bsc-dataseed3.binance.org",
		"https://bsc-dataseed4.binance.org",
	},
	FamilyEthereum: {},
}

var chainIDByFamily = map[string]int64{
	FamilyBSCTestnet: 97,
	FamilyBSC:        56,
	FamilyEthereum:   1,
}

// FamilyEndpoints returns a copy of the built-in pool for family.
func FamilyEndpoints(family string) ([]string, error) {
	list, ok := endpointsByFamily[NormalizeFamily(family)]
	if !ok {
		return nil, fmt.Errorf("unknown chain family %q", family)
	}
	return append([]string(nil), list...), nil
}

func FamilyChainID(family string) (int64, bool) {
	id, ok := chainIDByFamily[NormalizeFamily(family)]
	return id, ok
}

// FamilyForChainID maps a chain ID back to its family name.
func FamilyForChainID(chainID int64) (string, bool) {
	for family, id := range chainIDByFamily {
		if id == chainID {
			return family, true
		}
	}
	return "", false
}

// FamilyForEndpoint guesses the family from an endpoint URL: binance/bsc hosts
// select a BSC pool (testnet when the URL mentions "test" or "prebsc"), anything else is ethereum.
func FamilyForEndpoint(endpoint string) string {
	lower := strings.ToLower(endpoint)
	if strings.Contains(lower, "binance") || strings.Contains(lower, "bsc") {
		if strings.Contains(lower, "test") || strings.Contains(lower, "prebsc") {
			return FamilyBSCTestnet
		}
		return FamilyBSC
	}
	return FamilyEthereum
}

func NormalizeFamily(family string) string {
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "bsc-testnet", "bsc_testnet", "bsctest", "bnb-testnet", "test", "testnet", "chapel":
		return FamilyBSCTestnet
	case "bsc", "bnb", "binance", "main", "mainnet":
		return FamilyBSC
	case "ethereum", "eth":
		return FamilyEthereum
	default:
		return strings.ToLower(strings.TrimSpace(family))
	}
}
