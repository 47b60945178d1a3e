package router

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/registry"
	"golang.org/x/sync/errgroup"
)

const priceDigits = 18

var (
	poolABI = mustABI(registry.V3PoolABI)
	q192    = new(big.Int).Lsh(big.NewInt(1), 192)
)

// Liquidity is a point-in-time view of the pool pairing a token with the
// wrapped native token.
type Liquidity struct {
	Pool          common.Address `json:"pool"`
	Fee           uint32         `json:"fee"`
	Token         common.Address `json:"token"`
	WrappedNative common.Address `json:"wrapped_native"`
	TokenReserve  string         `json:"token_reserve"`
	NativeReserve string         `json:"native_reserve"`
	SqrtPriceX96  string         `json:"sqrt_price_x96"`
	Tick          int64          `json:"tick"`
	// Price is wrapped native base units per token base unit at the current tick.
	Price string `json:"price"`
}

// PoolLiquidity finds the token's pool like FindPool and reads its token and
// wrapped native balances together with the spot price from slot0.
func (r *Router) PoolLiquidity(ctx context.Context, token common.Address, feeHint uint32) (Liquidity, error) {
	pool, err := r.FindPool(ctx, token, feeHint)
	if err != nil {
		return Liquidity{}, err
	}
	wrapped, err := r.WrappedNative(ctx)
	if err != nil {
		return Liquidity{}, err
	}

	var (
		tokenReserve, nativeReserve *big.Int
		slot0                       []any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.call(gctx, pool.Address, poolABI, "slot0")
		slot0 = out
		return err
	})
	g.Go(func() error {
		out, err := r.call(gctx, token, erc20ABI, "balanceOf", pool.Address)
		if err == nil {
			tokenReserve, _ = out[0].(*big.Int)
		}
		return err
	})
	g.Go(func() error {
		out, err := r.call(gctx, wrapped, erc20ABI, "balanceOf", pool.Address)
		if err == nil {
			nativeReserve, _ = out[0].(*big.Int)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Liquidity{}, err
	}

	sqrtPrice, _ := slot0[0].(*big.Int)
	if sqrtPrice == nil || sqrtPrice.Sign() == 0 {
		return Liquidity{}, clierr.New(clierr.CodeUnavailable, "pool "+pool.Address.Hex()+" is not initialized").At(clierr.StageRoute)
	}
	out := Liquidity{
		Pool:          pool.Address,
		Fee:           pool.Fee,
		Token:         token,
		WrappedNative: wrapped,
		TokenReserve:  bigString(tokenReserve),
		NativeReserve: bigString(nativeReserve),
		SqrtPriceX96:  sqrtPrice.String(),
		Price:         spotPrice(sqrtPrice, tokenIsToken0(token, wrapped)),
	}
	if len(slot0) > 1 {
		if tick, ok := slot0[1].(*big.Int); ok {
			out.Tick = tick.Int64()
		}
	}
	return out, nil
}

// tokenIsToken0 follows the pool's ordering: the lower address is token0.
func tokenIsToken0(token, wrapped common.Address) bool {
	return strings.Compare(strings.ToLower(token.Hex()), strings.ToLower(wrapped.Hex())) < 0
}

// spotPrice converts sqrtPriceX96 (token1 per token0) into the other token
// per token, in base units.
func spotPrice(sqrtPriceX96 *big.Int, token0 bool) string {
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	price := new(big.Rat).SetFrac(squared, q192)
	if !token0 {
		price.Inv(price)
	}
	text := price.FloatString(priceDigits)
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
