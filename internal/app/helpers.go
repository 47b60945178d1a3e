package app

import (
	"context"
	"math/big"
	"strings"

	"github.com/ggonzalez94/chainctl/internal/client"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	execsigner "github.com/ggonzalez94/chainctl/internal/execution/signer"
	"github.com/ggonzalez94/chainctl/internal/id"
	"github.com/spf13/cobra"
)

// accountFlags selects the signing key for commands that need one.
type accountFlags struct {
	keySource      string
	confirmAddress string
}

func (a *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.keySource, "key-source", execsigner.KeySourceAuto, "Key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&a.confirmAddress, "confirm-address", "", "Require signer address to match this value")
}

func (a accountFlags) load() (*execsigner.LocalSigner, error) {
	local, err := execsigner.NewLocalSignerFromInputs(a.keySource, "")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigningFailed, "load signing key", err).At(clierr.StageSign)
	}
	if confirm := strings.TrimSpace(a.confirmAddress); confirm != "" && !strings.EqualFold(confirm, local.Address().Hex()) {
		return nil, clierr.New(clierr.CodeUsage, "signer address does not match --confirm-address")
	}
	return local, nil
}

// signingClient loads the key and builds a client that can send transactions.
func (s *runtimeState) signingClient(a accountFlags, poolCache bool) (*client.Client, error) {
	local, err := a.load()
	if err != nil {
		return nil, err
	}
	return s.chainClient(clientOptions{account: local, poolCache: poolCache})
}

func (s *runtimeState) parseToken(input string) (id.Token, error) {
	chain, err := id.ParseChain(s.settings.Chain)
	if err != nil {
		return id.Token{}, err
	}
	return id.ParseToken(input, chain)
}

// tokenArg is the address form the client facade accepts: "" for native.
func tokenArg(t id.Token) string {
	if t.Native {
		return ""
	}
	return t.Address.Hex()
}

// tokenDecimals returns the registry decimals, 18 for the native asset, or
// reads decimals() from the token contract.
func tokenDecimals(ctx context.Context, c *client.Client, t id.Token) (int, error) {
	if t.Native {
		return 18, nil
	}
	if t.Decimals > 0 {
		return t.Decimals, nil
	}
	info, err := c.TokenInfo(ctx, t.Address.Hex())
	if err != nil {
		return 0, err
	}
	return int(info.Decimals), nil
}

// parseAmount resolves --amount / --amount-decimal against t's decimals.
func parseAmount(ctx context.Context, c *client.Client, t id.Token, base, decimal string) (*big.Int, error) {
	decimals := 18
	if decimal != "" {
		d, err := tokenDecimals(ctx, c, t)
		if err != nil {
			return nil, err
		}
		decimals = d
	}
	amount, _, err := id.ParseAmount(base, decimal, decimals)
	return amount, err
}

func parseBaseUnits(name, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || n.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "--"+name+" must be a non-negative integer in base units")
	}
	return n, nil
}
