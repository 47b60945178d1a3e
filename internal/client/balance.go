package client

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultWaitTimeout  = 10 * time.Minute
	DefaultWaitInterval = 2 * time.Second
	DefaultWaitMaxDelay = 30 * time.Second

	snapshotConcurrency = 4
	finalPollTimeout    = 10 * time.Second
)

// Snapshot is the native and token balances of one owner read concurrently.
type Snapshot struct {
	Owner  string            `json:"owner"`
	Native string            `json:"native"`
	Tokens map[string]string `json:"tokens,omitempty"`
}

func (c *Client) Snapshot(ctx context.Context, address string, tokens []string) (Snapshot, error) {
	owner, err := c.resolveOwner(address)
	if err != nil {
		return Snapshot{}, err
	}
	addrs := make([]common.Address, 0, len(tokens))
	for _, t := range tokens {
		addr, native, err := parseToken(t)
		if err != nil {
			return Snapshot{}, err
		}
		if !native {
			addrs = append(addrs, addr)
		}
	}

	var native *big.Int
	balances := make([]*big.Int, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	g.Go(func() error {
		bal, err := c.balance(gctx, owner, common.Address{}, true)
		native = bal
		return err
	})
	for i, token := range addrs {
		g.Go(func() error {
			bal, err := c.balance(gctx, owner, token, false)
			balances[i] = bal
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	out := Snapshot{Owner: owner.Hex(), Native: native.String()}
	if len(addrs) > 0 {
		out.Tokens = make(map[string]string, len(addrs))
		for i, token := range addrs {
			out.Tokens[token.Hex()] = balances[i].String()
		}
	}
	return out, nil
}

type WaitOptions struct {
	// Baseline is the balance to move away from. Nil reads it first.
	Baseline *big.Int
	Timeout  time.Duration
	// Interval is the first poll delay; it doubles up to MaxDelay.
	Interval time.Duration
	MaxDelay time.Duration
}

type BalanceChange struct {
	Owner    string `json:"owner"`
	Token    string `json:"token,omitempty"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Polls    int    `json:"polls"`
}

// WaitForBalanceChange polls the balance of address until it differs from the
// baseline, backing off exponentially between polls. It gives up with
// CodeReceiptTimeout after the timeout and returns ctx's error when ctx ends.
func (c *Client) WaitForBalanceChange(ctx context.Context, address, token string, opts WaitOptions) (BalanceChange, error) {
	owner, err := c.resolveOwner(address)
	if err != nil {
		return BalanceChange{}, err
	}
	tokenAddr, native, err := parseToken(token)
	if err != nil {
		return BalanceChange{}, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWaitTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultWaitInterval
	}
	if opts.MaxDelay < opts.Interval {
		opts.MaxDelay = max(DefaultWaitMaxDelay, opts.Interval)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	baseline := opts.Baseline
	if baseline == nil {
		baseline, err = c.balance(waitCtx, owner, tokenAddr, native)
		if err != nil {
			return BalanceChange{}, err
		}
	}
	change := BalanceChange{Owner: owner.Hex(), Previous: baseline.String()}
	if !native {
		change.Token = tokenAddr.Hex()
	}
	log := c.log.With(zap.String("owner", change.Owner), zap.String("token", change.Token))

	delay := opts.Interval
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	// The first token is spent on the baseline read.
	limiter.Allow()
	var lastErr error
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// Wait fails early when the next poll would land past the deadline.
			<-waitCtx.Done()
			if ctx.Err() != nil {
				return change, ctx.Err()
			}
			finalCtx, finalCancel := context.WithTimeout(ctx, finalPollTimeout)
			current, ferr := c.balance(finalCtx, owner, tokenAddr, native)
			finalCancel()
			change.Polls++
			if ferr == nil && current.Cmp(baseline) != 0 {
				change.Current = current.String()
				log.Info("balance changed", zap.String("previous", change.Previous), zap.String("current", change.Current))
				return change, nil
			}
			if ferr != nil {
				lastErr = ferr
			}
			if lastErr == nil {
				lastErr = err
			}
			return change, clierr.Wrap(clierr.CodeReceiptTimeout, "timed out waiting for balance change", lastErr).At(clierr.StageConfirm)
		}
		change.Polls++
		current, err := c.balance(waitCtx, owner, tokenAddr, native)
		switch {
		case err != nil:
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			lastErr = err
			log.Debug("balance poll failed", zap.Error(err))
		case current.Cmp(baseline) != 0:
			change.Current = current.String()
			log.Info("balance changed", zap.String("previous", change.Previous), zap.String("current", change.Current))
			return change, nil
		}
		if delay < opts.MaxDelay {
			delay = min(2*delay, opts.MaxDelay)
			limiter.SetLimit(rate.Every(delay))
		}
	}
}
