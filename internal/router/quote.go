package router

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
)

type Quote struct {
	Route       Route  `json:"route"`
	ExactOutput bool   `json:"exact_output"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	GasEstimate string `json:"gas_estimate"`
	Path        string `json:"path"`
}

// Quote prices a swap with the QuoterV2 contract. With exactOutput, amount is
// the desired output and the path is encoded in reverse.
func (r *Router) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int, exactOutput bool, feeHint uint32) (Quote, error) {
	if r.opts.Quoter == (common.Address{}) {
		return Quote{}, clierr.New(clierr.CodeUnsupported, "no quoter contract configured for this chain")
	}
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, clierr.New(clierr.CodeUsage, "quote amount must be positive")
	}
	route, err := r.ResolveRoute(ctx, tokenIn, tokenOut, feeHint)
	if err != nil {
		return Quote{}, err
	}
	path, err := route.Path(exactOutput)
	if err != nil {
		return Quote{}, err
	}
	method := "quoteExactInput"
	if exactOutput {
		method = "quoteExactOutput"
	}
	out, err := r.call(ctx, r.opts.Quoter, quoterABI, method, path, amount)
	if err != nil {
		return Quote{}, err
	}
	quoted, ok := out[0].(*big.Int)
	if !ok || quoted == nil {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "invalid quoter response").At(clierr.StageRoute)
	}
	gas := new(big.Int)
	if len(out) > 3 {
		if v, ok := out[3].(*big.Int); ok && v != nil {
			gas = v
		}
	}

	q := Quote{Route: route, ExactOutput: exactOutput, GasEstimate: gas.String(), Path: "0x" + common.Bytes2Hex(path)}
	if exactOutput {
		q.AmountIn, q.AmountOut = quoted.String(), amount.String()
	} else {
		q.AmountIn, q.AmountOut = amount.String(), quoted.String()
	}
	return q, nil
}
