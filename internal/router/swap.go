package router

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution"
	"go.uber.org/zap"
)

// approvalThreshold is 2^196-1. An allowance at or above it counts as a
// standing max approval.
var approvalThreshold = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 196), big.NewInt(1))

type exactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Fee               *big.Int       `abi:"fee"`
	Recipient         common.Address `abi:"recipient"`
	Deadline          *big.Int       `abi:"deadline"`
	AmountIn          *big.Int       `abi:"amountIn"`
	AmountOutMinimum  *big.Int       `abi:"amountOutMinimum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type exactInputParams struct {
	Path             []byte         `abi:"path"`
	Recipient        common.Address `abi:"recipient"`
	Deadline         *big.Int       `abi:"deadline"`
	AmountIn         *big.Int       `abi:"amountIn"`
	AmountOutMinimum *big.Int       `abi:"amountOutMinimum"`
}

// SwapRequest describes an exact-input swap. A zero or sentinel token address
// means the native asset.
type SwapRequest struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	// MinAmountOut defaults to zero.
	MinAmountOut *big.Int
	// FeeHint is probed before the standard tier order when non-zero.
	FeeHint uint32
}

type SwapResult struct {
	Route   Route             `json:"route"`
	Receipt execution.Receipt `json:"receipt"`
	// Approval is set when an allowance transaction preceded the swap.
	Approval *execution.Receipt `json:"approval,omitempty"`
}

// Swap resolves a route and submits the matching router call: exactInputSingle
// for a direct route, exactInput over the encoded path for two hops, and a
// swap-plus-unwrap multicall when the output is the native asset.
func (r *Router) Swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return SwapResult{}, clierr.New(clierr.CodeUsage, "swap amount must be positive")
	}
	if IsNative(req.TokenIn) && IsNative(req.TokenOut) {
		return SwapResult{}, clierr.New(clierr.CodeUsage, "input and output are both the native asset")
	}
	if IsNative(req.TokenOut) {
		return r.SellToNative(ctx, req.TokenIn, req.AmountIn, req.MinAmountOut, req.FeeHint)
	}

	route, err := r.ResolveRoute(ctx, req.TokenIn, req.TokenOut, req.FeeHint)
	if err != nil {
		return SwapResult{}, err
	}
	result := SwapResult{Route: route}

	value := new(big.Int)
	if IsNative(req.TokenIn) {
		value.Set(req.AmountIn)
	} else {
		approval, err := r.EnsureApproval(ctx, req.TokenIn, req.AmountIn)
		if err != nil {
			return result, err
		}
		result.Approval = approval
	}

	data, err := r.swapCalldata(route, req.AmountIn, minOut(req.MinAmountOut))
	if err != nil {
		return result, err
	}
	r.log.Info("submitting swap",
		zap.Int("hops", len(route.Hops)),
		zap.String("token_in", route.Hops[0].TokenIn.Hex()),
		zap.String("token_out", route.Hops[len(route.Hops)-1].TokenOut.Hex()),
		zap.String("amount_in", req.AmountIn.String()))
	receipt, err := r.exec.Send(ctx, execution.Call{To: r.opts.Router, Data: data, Value: value})
	result.Receipt = receipt
	return result, err
}

func (r *Router) swapCalldata(route Route, amountIn, amountOutMin *big.Int) ([]byte, error) {
	recipient := r.exec.Address()
	if route.Direct() {
		hop := route.Hops[0]
		data, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
			TokenIn:           hop.TokenIn,
			TokenOut:          hop.TokenOut,
			Fee:               big.NewInt(int64(hop.Fee)),
			Recipient:         recipient,
			Deadline:          r.deadline(),
			AmountIn:          amountIn,
			AmountOutMinimum:  amountOutMin,
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "pack exactInputSingle calldata", err).At(clierr.StageEncode)
		}
		return data, nil
	}
	path, err := route.Path(false)
	if err != nil {
		return nil, err
	}
	data, err := routerABI.Pack("exactInput", exactInputParams{
		Path:             path,
		Recipient:        recipient,
		Deadline:         r.deadline(),
		AmountIn:         amountIn,
		AmountOutMinimum: amountOutMin,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack exactInput calldata", err).At(clierr.StageEncode)
	}
	return data, nil
}

// SellToNative swaps token into the wrapped native token and unwraps the
// proceeds to the wallet in one multicall transaction. The swap leg sends its
// output to the router (zero recipient) so unwrapWETH9 can release it.
func (r *Router) SellToNative(ctx context.Context, token common.Address, amountIn, amountOutMin *big.Int, feeHint uint32) (SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return SwapResult{}, clierr.New(clierr.CodeUsage, "sell amount must be positive")
	}
	wrapped, err := r.WrappedNative(ctx)
	if err != nil {
		return SwapResult{}, err
	}
	if IsNative(token) || token == wrapped {
		return SwapResult{}, clierr.New(clierr.CodeUnsupported, "selling the native or wrapped native token to native is an unwrap, not a swap")
	}
	pool, err := r.FindPool(ctx, token, feeHint)
	if err != nil {
		return SwapResult{}, err
	}
	route := Route{Hops: []Hop{{TokenIn: token, TokenOut: wrapped, Fee: pool.Fee, Pool: pool.Address}}}
	result := SwapResult{Route: route}

	approval, err := r.EnsureApproval(ctx, token, amountIn)
	if err != nil {
		return result, err
	}
	result.Approval = approval

	data, err := r.sellCalldata(route.Hops[0], amountIn, minOut(amountOutMin))
	if err != nil {
		return result, err
	}
	r.log.Info("submitting sell to native", zap.String("token", token.Hex()), zap.Uint32("fee", pool.Fee), zap.String("amount_in", amountIn.String()))
	receipt, err := r.exec.Send(ctx, execution.Call{To: r.opts.Router, Data: data})
	result.Receipt = receipt
	return result, err
}

func (r *Router) sellCalldata(hop Hop, amountIn, amountOutMin *big.Int) ([]byte, error) {
	swapData, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           hop.TokenIn,
		TokenOut:          hop.TokenOut,
		Fee:               big.NewInt(int64(hop.Fee)),
		Recipient:         common.Address{},
		Deadline:          r.deadline(),
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack exactInputSingle calldata", err).At(clierr.StageEncode)
	}
	unwrapData, err := routerABI.Pack("unwrapWETH9", amountOutMin, r.exec.Address())
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack unwrapWETH9 calldata", err).At(clierr.StageEncode)
	}
	data, err := routerABI.Pack("multicall", [][]byte{swapData, unwrapData})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack multicall calldata", err).At(clierr.StageEncode)
	}
	return data, nil
}

// Allowance reads token's allowance from the wallet to the router.
func (r *Router) Allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, erc20ABI, "allowance", r.exec.Address(), r.opts.Router)
	if err != nil {
		return nil, err
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid allowance response").At(clierr.StageBuild)
	}
	return allowance, nil
}

// EnsureApproval grants the router a max allowance on token unless a standing
// max approval covering amount already exists. It returns the approval receipt
// when a transaction was sent.
func (r *Router) EnsureApproval(ctx context.Context, token common.Address, amount *big.Int) (*execution.Receipt, error) {
	if amount == nil {
		amount = new(big.Int)
	}
	allowance, err := r.Allowance(ctx, token)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(approvalThreshold) >= 0 && allowance.Cmp(amount) >= 0 {
		return nil, nil
	}
	receipt, err := r.Approve(ctx, token)
	if err != nil {
		return nil, err
	}
	allowance, err = r.Allowance(ctx, token)
	if err != nil {
		return &receipt, err
	}
	if allowance.Cmp(amount) < 0 {
		return &receipt, clierr.InsufficientApproval(token.Hex())
	}
	return &receipt, nil
}

// Approve sends approve(router, 2^256-1) for token.
func (r *Router) Approve(ctx context.Context, token common.Address) (execution.Receipt, error) {
	data, err := erc20ABI.Pack("approve", r.opts.Router, math.MaxBig256)
	if err != nil {
		return execution.Receipt{}, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err).At(clierr.StageEncode)
	}
	r.log.Info("approving router", zap.String("token", token.Hex()), zap.String("router", r.opts.Router.Hex()))
	return r.exec.Send(ctx, execution.Call{To: token, Data: data})
}

func minOut(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
