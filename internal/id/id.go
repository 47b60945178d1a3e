// Package id parses the chain and token identifiers accepted on the command
// line: family names, numeric or CAIP-2 chain ids, and token symbols,
// addresses or CAIP-19 asset ids.
package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/registry"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155AssetPattern = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
)

type Chain struct {
	Name         string
	Family       string
	CAIP2        string
	ChainID      int64
	NativeSymbol string
}

type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
	// Native marks the chain's native asset; Address is then the sentinel.
	Native bool
}

type knownToken struct {
	symbol   string
	address  string
	decimals int
}

var chainsByID = map[int64]Chain{
	56: {Name: "BNB Smart Chain", Family: registry.FamilyBSC, CAIP2: "eip155:56", ChainID: 56, NativeSymbol: "BNB"},
	97: {Name: "BNB Smart Chain Testnet", Family: registry.FamilyBSCTestnet, CAIP2: "eip155:97", ChainID: 97, NativeSymbol: "tBNB"},
	1:  {Name: "Ethereum", Family: registry.FamilyEthereum, CAIP2: "eip155:1", ChainID: 1, NativeSymbol: "ETH"},
}

var tokensByChain = map[int64][]knownToken{
	56: {
		{"WBNB", "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", 18},
		{"USDT", "0x55d398326f99059ff775485246999027b3197955", 18},
		{"USDC", "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", 18},
		{"BUSD", "0xe9e7cea3dedca5984780bafc599bd69add087d56", 18},
		{"CAKE", "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", 18},
	},
	97: {
		{"WBNB", "0xae13d989dac2f0debff460ac112a837c89baa7cd", 18},
		{"USDT", "0x337610d27c682e347c9cd60bd4b3b107c9d34ddd", 18},
		{"BUSD", "0xab1a4d4f1d656d2450692d237fdd6c7f9146e814", 18},
		{"CAKE", "0xfa60d973f7642b748046464e165a65b7323b0dee", 18},
	},
	1: {
		{"WETH", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", 18},
		{"USDC", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 6},
		{"USDT", "0xdac17f958d2ee523a2206206994597c13d831ec7", 6},
		{"DAI", "0x6b175474e89094c44da98b954eedeac495271d0f", 18},
	},
}

// ParseChain accepts a family name or alias, a numeric chain id or a CAIP-2
// id. Unknown numeric ids are accepted with a generic name.
func ParseChain(input string) (Chain, error) {
	raw := strings.ToLower(strings.TrimSpace(input))
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if eip155ChainPattern.MatchString(raw) {
		raw = strings.TrimPrefix(raw, "eip155:")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return Chain{}, clierr.New(clierr.CodeUsage, "chain id must be positive")
		}
		if chain, ok := chainsByID[n]; ok {
			return chain, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", n), CAIP2: fmt.Sprintf("eip155:%d", n), ChainID: n, NativeSymbol: "ETH"}, nil
	}
	if chainID, ok := registry.FamilyChainID(raw); ok {
		return chainsByID[chainID], nil
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ParseToken resolves a symbol, address or CAIP-19 id on chain. The empty
// string, "native", the native symbol and the 0xEeee... sentinel all mean
// the native asset.
func ParseToken(input string, chain Chain) (Token, error) {
	raw := strings.TrimSpace(input)
	if raw == "" || strings.EqualFold(raw, "native") || strings.EqualFold(raw, chain.NativeSymbol) ||
		strings.EqualFold(raw, registry.NativeTokenSentinel) {
		return Token{Symbol: chain.NativeSymbol, Address: common.HexToAddress(registry.NativeTokenSentinel), Decimals: 18, Native: true}, nil
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(strings.ToLower(raw)) {
			return Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if !strings.EqualFold(parts[0], chain.CAIP2) {
			return Token{}, clierr.New(clierr.CodeUsage, "asset chain does not match --chain")
		}
		raw = strings.SplitN(parts[1], ":", 2)[1]
	}

	if evmAddressPattern.MatchString(raw) {
		addr := common.HexToAddress(raw)
		if known, ok := LookupByAddress(chain.ChainID, addr); ok {
			return known, nil
		}
		return Token{Address: addr}, nil
	}

	for _, t := range tokensByChain[chain.ChainID] {
		if strings.EqualFold(t.symbol, raw) {
			return Token{Symbol: t.symbol, Address: common.HexToAddress(t.address), Decimals: t.decimals}, nil
		}
	}
	return Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
}

func LookupByAddress(chainID int64, addr common.Address) (Token, bool) {
	for _, t := range tokensByChain[chainID] {
		if common.HexToAddress(t.address) == addr {
			return Token{Symbol: t.symbol, Address: addr, Decimals: t.decimals}, true
		}
	}
	return Token{}, false
}

// AssetID is the CAIP-19 id of token on chain.
func AssetID(chain Chain, token Token) string {
	if token.Native {
		return fmt.Sprintf("%s/slip44:%s", chain.CAIP2, strings.ToLower(chain.NativeSymbol))
	}
	return fmt.Sprintf("%s/erc20:%s", chain.CAIP2, strings.ToLower(token.Address.Hex()))
}
