package app

import (
	"time"

	"github.com/ggonzalez94/chainctl/internal/client"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution"
	"github.com/ggonzalez94/chainctl/internal/id"
	"github.com/ggonzalez94/chainctl/internal/model"
	"github.com/spf13/cobra"
)

// ownerClient returns a read-only client when address is given and a client
// bound to the signing account otherwise.
func (s *runtimeState) ownerClient(address string, account accountFlags) (*client.Client, error) {
	if address != "" {
		return s.chainClient(clientOptions{})
	}
	return s.signingClient(account, false)
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var addressArg, tokenArgIn, tokensArg string
	var account accountFlags
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Read native or token balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.ownerClient(addressArg, account)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			if tokensArg != "" {
				var tokens []string
				for _, raw := range splitCSV(tokensArg) {
					t, err := s.parseToken(raw)
					if err != nil {
						return err
					}
					if !t.Native {
						tokens = append(tokens, t.Address.Hex())
					}
				}
				snap, err := c.Snapshot(ctx, addressArg, tokens)
				if err != nil {
					return err
				}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), snap, nil)
			}

			token, err := s.parseToken(tokenArgIn)
			if err != nil {
				return err
			}
			amount, err := c.GetBalance(ctx, addressArg, tokenArg(token))
			if err != nil {
				return err
			}
			owner := addressArg
			if owner == "" {
				owner = c.Address().Hex()
			}
			result := model.Balance{Owner: owner, Token: token.Address.Hex(), Symbol: token.Symbol, BaseUnits: amount.String()}
			if decimals, err := tokenDecimals(ctx, c, token); err == nil {
				result.Decimals = decimals
				result.Decimal = id.FormatUnits(amount, decimals)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil)
		},
	}
	cmd.Flags().StringVar(&addressArg, "address", "", "Owner address (default: signing account)")
	cmd.Flags().StringVar(&tokenArgIn, "token", "", "Token (default: native asset)")
	cmd.Flags().StringVar(&tokensArg, "tokens", "", "Read the native balance plus these tokens concurrently (comma-separated)")
	account.register(cmd)
	return cmd
}

type tokenInfo struct {
	client.TokenInfo
	Symbol  string `json:"symbol,omitempty"`
	AssetID string `json:"asset_id"`
}

func (s *runtimeState) newTokenCommand() *cobra.Command {
	root := &cobra.Command{Use: "token", Short: "Token metadata commands"}
	var tokenArgIn string
	info := &cobra.Command{
		Use:   "info",
		Short: "Read decimals and total supply of a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(s.settings.Chain)
			if err != nil {
				return err
			}
			token, err := id.ParseToken(tokenArgIn, chain)
			if err != nil {
				return err
			}
			c, err := s.chainClient(clientOptions{})
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			meta, err := c.TokenInfo(ctx, tokenArg(token))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), tokenInfo{
				TokenInfo: meta,
				Symbol:    token.Symbol,
				AssetID:   id.AssetID(chain, token),
			}, nil)
		},
	}
	info.Flags().StringVar(&tokenArgIn, "token", "", "Token symbol, address or CAIP-19 id")
	_ = info.MarkFlagRequired("token")
	root.AddCommand(info)
	return root
}

type txInfo struct {
	execution.Receipt
	RevertReason string `json:"revert_reason,omitempty"`
}

func (s *runtimeState) newTxCommand() *cobra.Command {
	root := &cobra.Command{Use: "tx", Short: "Transaction commands"}
	var hashArg string
	var diagnose bool
	info := &cobra.Command{
		Use:   "info",
		Short: "Show the receipt of a mined transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.chainClient(clientOptions{})
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			receipt, err := c.GetTransactionInfo(ctx, hashArg)
			if err != nil {
				return err
			}
			result := txInfo{Receipt: receipt}
			if diagnose && receipt.Status == execution.StateReverted {
				reason, err := c.Execution().Diagnose(ctx, hashArg)
				if err != nil {
					return err
				}
				result.RevertReason = reason
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil)
		},
	}
	info.Flags().StringVar(&hashArg, "hash", "", "Transaction hash")
	info.Flags().BoolVar(&diagnose, "diagnose", false, "Replay a reverted transaction to recover its revert reason")
	_ = info.MarkFlagRequired("hash")
	root.AddCommand(info)
	return root
}

func (s *runtimeState) newSignCommand() *cobra.Command {
	var message string
	var account accountFlags
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a personal message (EIP-191) with the trading key",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.signingClient(account, false)
			if err != nil {
				return err
			}
			sig, err := c.SignMessage(message)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.Signature{
				Signer:    c.Address().Hex(),
				Message:   message,
				Signature: sig,
			}, nil)
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "Message text")
	account.register(cmd)
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func (s *runtimeState) newVerifyCommand() *cobra.Command {
	var message, signature, address string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a personal-message signature was made by an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.chainClient(clientOptions{})
			if err != nil {
				return err
			}
			ok, err := c.VerifySignature(message, signature, address)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.Verification{Address: address, Valid: ok}, nil)
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "Message text")
	cmd.Flags().StringVar(&signature, "signature", "", "0x-prefixed 65-byte signature")
	cmd.Flags().StringVar(&address, "address", "", "Expected signer address")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("signature")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func (s *runtimeState) newWaitBalanceCommand() *cobra.Command {
	var addressArg, tokenArgIn, baselineArg, timeoutArg, intervalArg, maxDelayArg string
	var account accountFlags
	cmd := &cobra.Command{
		Use:   "wait-balance",
		Short: "Block until a balance moves away from its baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := s.parseToken(tokenArgIn)
			if err != nil {
				return err
			}
			baseline, err := parseBaseUnits("baseline", baselineArg)
			if err != nil {
				return err
			}
			opts := client.WaitOptions{Baseline: baseline}
			for _, d := range []struct {
				name string
				raw  string
				dst  *time.Duration
			}{
				{"wait-timeout", timeoutArg, &opts.Timeout},
				{"interval", intervalArg, &opts.Interval},
				{"max-delay", maxDelayArg, &opts.MaxDelay},
			} {
				if d.raw == "" {
					continue
				}
				parsed, err := time.ParseDuration(d.raw)
				if err != nil || parsed <= 0 {
					return clierr.New(clierr.CodeUsage, "--"+d.name+" must be a positive duration")
				}
				*d.dst = parsed
			}
			c, err := s.ownerClient(addressArg, account)
			if err != nil {
				return err
			}
			change, err := c.WaitForBalanceChange(cmd.Context(), addressArg, tokenArg(token), opts)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), change, nil)
		},
	}
	cmd.Flags().StringVar(&addressArg, "address", "", "Owner address (default: signing account)")
	cmd.Flags().StringVar(&tokenArgIn, "token", "", "Token (default: native asset)")
	cmd.Flags().StringVar(&baselineArg, "baseline", "", "Balance to move away from, in base units (default: current)")
	cmd.Flags().StringVar(&timeoutArg, "wait-timeout", "", "Give up after this long (default 10m)")
	cmd.Flags().StringVar(&intervalArg, "interval", "", "First poll delay; doubles each poll (default 2s)")
	cmd.Flags().StringVar(&maxDelayArg, "max-delay", "", "Cap on the poll delay (default 30s)")
	account.register(cmd)
	return cmd
}
