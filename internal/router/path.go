package router

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
)

const feeLength = 3

// Hop is one pool traversal.
type Hop struct {
	TokenIn  common.Address `json:"token_in"`
	TokenOut common.Address `json:"token_out"`
	Fee      uint32         `json:"fee"`
	Pool     common.Address `json:"pool"`
}

// Route is a direct swap (one hop) or a two-hop swap pivoting through the
// wrapped native token.
type Route struct {
	Hops []Hop `json:"hops"`
}

func (r Route) Direct() bool { return len(r.Hops) == 1 }

// Tokens lists every token the route visits, in order.
func (r Route) Tokens() []common.Address {
	if len(r.Hops) == 0 {
		return nil
	}
	out := make([]common.Address, 0, len(r.Hops)+1)
	for _, hop := range r.Hops {
		out = append(out, hop.TokenIn)
	}
	return append(out, r.Hops[len(r.Hops)-1].TokenOut)
}

func (r Route) Fees() []uint32 {
	out := make([]uint32, 0, len(r.Hops))
	for _, hop := range r.Hops {
		out = append(out, hop.Fee)
	}
	return out
}

// Path encodes the route for exactInput (exactOutput=false) or exactOutput.
func (r Route) Path(exactOutput bool) ([]byte, error) {
	return EncodePath(r.Tokens(), r.Fees(), exactOutput)
}

// EncodePath packs tokens and fees as token0|fee0|token1|fee1|...|tokenN with
// 20-byte addresses and 3-byte big-endian fees. exactOutput reverses both
// sequences first. len(fees) must be len(tokens)-1.
func EncodePath(tokens []common.Address, fees []uint32, exactOutput bool) ([]byte, error) {
	if len(tokens) == 0 || len(fees) != len(tokens)-1 {
		return nil, clierr.InvalidPathArity(len(tokens), len(fees))
	}
	for _, fee := range fees {
		if fee >= 1<<(8*feeLength) {
			return nil, clierr.New(clierr.CodeUsage, "fee tier does not fit in 3 bytes").At(clierr.StageEncode)
		}
	}
	if exactOutput {
		tokens = slices.Clone(tokens)
		fees = slices.Clone(fees)
		slices.Reverse(tokens)
		slices.Reverse(fees)
	}
	out := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*feeLength)
	for i, fee := range fees {
		out = append(out, tokens[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	return append(out, tokens[len(tokens)-1].Bytes()...), nil
}
