package app

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/model"
	"github.com/ggonzalez94/chainctl/internal/router"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newPoolCommand() *cobra.Command {
	root := &cobra.Command{Use: "pool", Short: "Pool discovery commands"}
	var tokenArgIn string
	var fee uint32
	find := &cobra.Command{
		Use:   "find",
		Short: "Find the pool pairing a token with the wrapped native token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := s.parseToken(tokenArgIn)
			if err != nil {
				return err
			}
			c, err := s.chainClient(clientOptions{poolCache: true})
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			pool, err := c.Router().FindPool(ctx, token.Address, fee)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), pool, nil)
		},
	}
	find.Flags().StringVar(&tokenArgIn, "token", "", "Token symbol, address or CAIP-19 id")
	find.Flags().Uint32Var(&fee, "fee", 0, "Fee tier to probe first (100|500|2500|10000)")
	_ = find.MarkFlagRequired("token")

	var liqToken string
	var liqFee uint32
	liquidity := &cobra.Command{
		Use:   "liquidity",
		Short: "Read pool reserves and the spot price against the wrapped native token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := s.parseToken(liqToken)
			if err != nil {
				return err
			}
			if token.Native {
				return clierr.New(clierr.CodeUsage, "liquidity needs an ERC-20 token, not the native asset")
			}
			c, err := s.chainClient(clientOptions{poolCache: true})
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			liq, err := c.Router().PoolLiquidity(ctx, token.Address, liqFee)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), liq, nil)
		},
	}
	liquidity.Flags().StringVar(&liqToken, "token", "", "Token symbol, address or CAIP-19 id")
	liquidity.Flags().Uint32Var(&liqFee, "fee", 0, "Fee tier to probe first (100|500|2500|10000)")
	_ = liquidity.MarkFlagRequired("token")

	root.AddCommand(find)
	root.AddCommand(liquidity)
	return root
}

func (s *runtimeState) newRouteCommand() *cobra.Command {
	var inArg, outArg string
	var fee uint32
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Resolve a direct or two-hop route between two tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := s.parseToken(inArg)
			if err != nil {
				return err
			}
			out, err := s.parseToken(outArg)
			if err != nil {
				return err
			}
			c, err := s.chainClient(clientOptions{poolCache: true})
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			route, err := c.Router().ResolveRoute(ctx, in.Address, out.Address, fee)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), route, nil)
		},
	}
	cmd.Flags().StringVar(&inArg, "token-in", "", "Input token")
	cmd.Flags().StringVar(&outArg, "token-out", "", "Output token")
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Fee tier to probe first")
	_ = cmd.MarkFlagRequired("token-in")
	_ = cmd.MarkFlagRequired("token-out")
	return cmd
}

func (s *runtimeState) newPathCommand() *cobra.Command {
	root := &cobra.Command{Use: "path", Short: "Swap path commands"}
	var tokensArg, feesArg string
	var exactOutput bool
	encode := &cobra.Command{
		Use:   "encode",
		Short: "Encode a multi-hop swap path offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tokens []common.Address
			var display []string
			for _, raw := range splitCSV(tokensArg) {
				t, err := s.parseToken(raw)
				if err != nil {
					return err
				}
				if t.Native {
					return clierr.New(clierr.CodeUsage, "path tokens must be ERC-20 contracts; use the wrapped native token")
				}
				tokens = append(tokens, t.Address)
				display = append(display, t.Address.Hex())
			}
			fees := []uint32{}
			for _, raw := range splitCSV(feesArg) {
				fee, err := strconv.ParseUint(raw, 10, 32)
				if err != nil {
					return clierr.New(clierr.CodeUsage, "--fees must be comma-separated integers")
				}
				fees = append(fees, uint32(fee))
			}
			path, err := router.EncodePath(tokens, fees, exactOutput)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.EncodedPath{
				Tokens:      display,
				Fees:        fees,
				ExactOutput: exactOutput,
				Path:        hexutil.Encode(path),
				Bytes:       len(path),
			}, nil)
		},
	}
	encode.Flags().StringVar(&tokensArg, "tokens", "", "Tokens in swap order (comma-separated)")
	encode.Flags().StringVar(&feesArg, "fees", "", "Fee tiers between consecutive tokens (comma-separated)")
	encode.Flags().BoolVar(&exactOutput, "exact-output", false, "Encode in reverse for exactOutput swaps")
	_ = encode.MarkFlagRequired("tokens")
	root.AddCommand(encode)
	return root
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var inArg, outArg, amountBase, amountDecimal string
	var fee uint32
	var exactOutput bool
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap with the quoter contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := s.parseToken(inArg)
			if err != nil {
				return err
			}
			out, err := s.parseToken(outArg)
			if err != nil {
				return err
			}
			c, err := s.chainClient(clientOptions{poolCache: true})
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			amountToken := in
			if exactOutput {
				amountToken = out
			}
			amount, err := parseAmount(ctx, c, amountToken, amountBase, amountDecimal)
			if err != nil {
				return err
			}
			quote, err := c.Router().Quote(ctx, in.Address, out.Address, amount, exactOutput, fee)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), quote, nil)
		},
	}
	cmd.Flags().StringVar(&inArg, "token-in", "", "Input token")
	cmd.Flags().StringVar(&outArg, "token-out", "", "Output token")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Amount in base units (input, or output with --exact-output)")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().BoolVar(&exactOutput, "exact-output", false, "Quote the input needed for an exact output amount")
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Fee tier to probe first")
	_ = cmd.MarkFlagRequired("token-in")
	_ = cmd.MarkFlagRequired("token-out")
	return cmd
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var inArg, outArg, amountBase, amountDecimal, minOutArg string
	var fee uint32
	var account accountFlags
	cmd := sendsTransactions(&cobra.Command{
		Use:   "swap",
		Short: "Swap an exact input amount through the V3 router",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := s.parseToken(inArg)
			if err != nil {
				return err
			}
			out, err := s.parseToken(outArg)
			if err != nil {
				return err
			}
			minOut, err := parseBaseUnits("min-out", minOutArg)
			if err != nil {
				return err
			}
			c, err := s.signingClient(account, true)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			amount, err := parseAmount(ctx, c, in, amountBase, amountDecimal)
			if err != nil {
				return err
			}
			result, err := c.Router().Swap(ctx, router.SwapRequest{
				TokenIn:      in.Address,
				TokenOut:     out.Address,
				AmountIn:     amount,
				MinAmountOut: minOut,
				FeeHint:      fee,
			})
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil)
		},
	})
	cmd.Flags().StringVar(&inArg, "token-in", "", "Input token (symbol, address, CAIP-19 or native)")
	cmd.Flags().StringVar(&outArg, "token-out", "", "Output token (symbol, address, CAIP-19 or native)")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Input amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Input amount in decimal units")
	cmd.Flags().StringVar(&minOutArg, "min-out", "", "Minimum output in base units (default 0)")
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Fee tier to probe first")
	account.register(cmd)
	_ = cmd.MarkFlagRequired("token-in")
	_ = cmd.MarkFlagRequired("token-out")
	return cmd
}

func (s *runtimeState) newSellCommand() *cobra.Command {
	var tokenArgIn, amountBase, amountDecimal, minOutArg string
	var fee uint32
	var account accountFlags
	cmd := sendsTransactions(&cobra.Command{
		Use:   "sell",
		Short: "Sell a token for the native asset in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := s.parseToken(tokenArgIn)
			if err != nil {
				return err
			}
			minOut, err := parseBaseUnits("min-out", minOutArg)
			if err != nil {
				return err
			}
			c, err := s.signingClient(account, true)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			amount, err := parseAmount(ctx, c, token, amountBase, amountDecimal)
			if err != nil {
				return err
			}
			result, err := c.Router().SellToNative(ctx, token.Address, amount, minOut, fee)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil)
		},
	})
	cmd.Flags().StringVar(&tokenArgIn, "token", "", "Token to sell")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&minOutArg, "min-out", "", "Minimum native output in base units (default 0)")
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Fee tier to probe first")
	account.register(cmd)
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (s *runtimeState) newApproveCommand() *cobra.Command {
	var tokenArgIn, amountBase, amountDecimal string
	var force bool
	var account accountFlags
	cmd := sendsTransactions(&cobra.Command{
		Use:   "approve",
		Short: "Grant the router a max allowance on a token unless one already stands",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := s.parseToken(tokenArgIn)
			if err != nil {
				return err
			}
			if token.Native {
				return clierr.New(clierr.CodeUsage, "the native asset needs no approval")
			}
			c, err := s.signingClient(account, false)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			result := model.Approval{Token: token.Address.Hex(), Spender: c.Config().Router.Hex()}
			if force {
				receipt, err := c.Router().Approve(ctx, token.Address)
				if err != nil {
					return err
				}
				result.TxHash = receipt.TxHash
			} else {
				required := new(big.Int)
				if amountBase != "" || amountDecimal != "" {
					if required, err = parseAmount(ctx, c, token, amountBase, amountDecimal); err != nil {
						return err
					}
				}
				receipt, err := c.Router().EnsureApproval(ctx, token.Address, required)
				if err != nil {
					return err
				}
				if receipt == nil {
					result.Skipped = true
				} else {
					result.TxHash = receipt.TxHash
				}
			}
			allowance, err := c.Router().Allowance(ctx, token.Address)
			if err != nil {
				return err
			}
			result.Allowance = allowance.String()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil)
		},
	})
	cmd.Flags().StringVar(&tokenArgIn, "token", "", "Token to approve")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Allowance the approval must cover, in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Allowance the approval must cover, in decimal units")
	cmd.Flags().BoolVar(&force, "force", false, "Send the approval even when a max allowance stands")
	account.register(cmd)
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
