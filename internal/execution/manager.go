package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ggonzalez94/chainctl/internal/endpoint"
	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/execution/signer"
	"github.com/ggonzalez94/chainctl/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 2 * time.Minute

	finalReceiptFetchTimeout = 10 * time.Second
)

// ConnectionSource hands out live chain connections. *endpoint.Manager
// satisfies it.
type ConnectionSource interface {
	EnsureConnected(ctx context.Context) (*endpoint.Connection, error)
	Acquire(ctx context.Context) (*endpoint.Connection, error)
}

type Options struct {
	// ChainID signs for a fixed chain. Zero asks the connected node.
	ChainID         int64
	DefaultGasLimit uint64
	PollInterval    time.Duration
	ReceiptTimeout  time.Duration
	// SerializeNonces holds a per-account lock from nonce read to broadcast.
	SerializeNonces bool
	Logger          *zap.Logger
	Metrics         *metrics.Collectors
}

// Manager builds, signs, broadcasts and confirms transactions for one signer.
type Manager struct {
	conns  ConnectionSource
	signer signer.Signer
	opts   Options
	log    *zap.Logger
}

func NewManager(conns ConnectionSource, s signer.Signer, opts Options) *Manager {
	if opts.DefaultGasLimit == 0 {
		opts.DefaultGasLimit = DefaultGasLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = DefaultReceiptTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{conns: conns, signer: s, opts: opts, log: log.Named("execution")}
}

// Address is the account transactions are sent from.
func (m *Manager) Address() common.Address { return m.signer.Address() }

// BuildParams reads the pending nonce and the suggested gas price for the
// signer's account.
func (m *Manager) BuildParams(ctx context.Context, value *big.Int, gasLimit uint64) (TxParams, error) {
	conn, err := m.conns.EnsureConnected(ctx)
	if err != nil {
		return TxParams{}, err
	}
	from := m.signer.Address()
	nonce, err := conn.Client.PendingNonceAt(ctx, from)
	if err != nil {
		return TxParams{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err).At(clierr.StageBuild)
	}
	gasPrice, err := conn.Client.SuggestGasPrice(ctx)
	if err != nil {
		return TxParams{}, clierr.Wrap(clierr.CodeUnavailable, "fetch gas price", err).At(clierr.StageBuild)
	}
	if gasLimit == 0 {
		gasLimit = m.opts.DefaultGasLimit
	}
	if value == nil {
		value = new(big.Int)
	}
	return TxParams{From: from, Nonce: nonce, GasPrice: gasPrice, Gas: gasLimit, Value: value}, nil
}

// Send builds parameters for call and submits it, waiting for the receipt.
// With SerializeNonces the per-account lock covers build and broadcast only;
// it is released before the receipt wait.
func (m *Manager) Send(ctx context.Context, call Call) (Receipt, error) {
	sent, err := m.buildAndBroadcast(ctx, call)
	if err != nil {
		return Receipt{}, err
	}
	return m.confirm(ctx, sent)
}

func (m *Manager) buildAndBroadcast(ctx context.Context, call Call) (broadcastTx, error) {
	if m.opts.SerializeNonces {
		chainID, err := m.chainID(ctx)
		if err != nil {
			return broadcastTx{}, err
		}
		release := acquireSignerNonceLock(chainID.Int64(), m.signer.Address())
		defer release()
	}
	params, err := m.BuildParams(ctx, call.Value, call.GasLimit)
	if err != nil {
		return broadcastTx{}, err
	}
	return m.broadcast(ctx, call, params)
}

// Submit signs and broadcasts call with params, then waits for a receipt.
// A reverted receipt is diagnosed by replay and returned as
// TransactionReverted together with the receipt.
func (m *Manager) Submit(ctx context.Context, call Call, params TxParams) (Receipt, error) {
	sent, err := m.broadcast(ctx, call, params)
	if err != nil {
		return Receipt{}, err
	}
	return m.confirm(ctx, sent)
}

type broadcastTx struct {
	hash common.Hash
	log  *zap.Logger
}

func (m *Manager) broadcast(ctx context.Context, call Call, params TxParams) (broadcastTx, error) {
	conn, err := m.conns.EnsureConnected(ctx)
	if err != nil {
		return broadcastTx{}, err
	}
	chainID, err := m.chainID(ctx)
	if err != nil {
		return broadcastTx{}, err
	}
	to := call.To
	value := params.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    params.Nonce,
		To:       &to,
		Value:    value,
		Gas:      params.Gas,
		GasPrice: params.GasPrice,
		Data:     call.Data,
	})
	log := m.log.With(zap.String("to", to.Hex()), zap.Uint64("nonce", params.Nonce))
	log.Debug("transaction built", zap.String("state", string(StateBuilt)))

	signed, err := m.signer.SignTx(chainID, tx)
	if err != nil {
		m.opts.Metrics.TxFinished("sign_failed")
		return broadcastTx{}, clierr.SigningFailed(err)
	}
	hash := signed.Hash().Hex()
	log = log.With(zap.String("tx", hash))
	log.Debug("transaction signed", zap.String("state", string(StateSigned)))

	if err := conn.Client.SendTransaction(ctx, signed); err != nil {
		m.opts.Metrics.TxFinished("broadcast_failed")
		return broadcastTx{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err).At(clierr.StageBroadcast).WithTx(hash)
	}
	log.Info("transaction submitted", zap.String("state", string(StateSubmitted)))
	return broadcastTx{hash: signed.Hash(), log: log}, nil
}

func (m *Manager) confirm(ctx context.Context, sent broadcastTx) (Receipt, error) {
	hash := sent.hash.Hex()
	receipt, err := m.waitReceipt(ctx, sent.hash)
	if err != nil {
		m.opts.Metrics.TxFinished("timeout")
		return Receipt{}, err
	}
	out := receiptFromChain(receipt)
	if out.Status == StateReverted {
		m.opts.Metrics.TxFinished(string(StateReverted))
		reason, derr := m.Diagnose(ctx, hash)
		if derr != nil {
			reason = fmt.Sprintf("could not diagnose: %v", derr)
		}
		sent.log.Warn("transaction reverted", zap.String("reason", reason), zap.Uint64("block", out.BlockNumber))
		return out, clierr.TransactionReverted(hash, reason)
	}
	m.opts.Metrics.TxFinished(string(StateConfirmed))
	sent.log.Info("transaction confirmed", zap.Uint64("block", out.BlockNumber), zap.Uint64("gas_used", out.GasUsed))
	return out, nil
}

// WaitReceipt polls for the receipt of hash until it lands, ctx ends or the
// receipt timeout elapses.
func (m *Manager) WaitReceipt(ctx context.Context, hash string) (Receipt, error) {
	if !isTxHash(hash) {
		return Receipt{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash %q", hash))
	}
	r, err := m.waitReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		return Receipt{}, err
	}
	return receiptFromChain(r), nil
}

func (m *Manager) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.opts.ReceiptTimeout)
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(m.opts.PollInterval), 1)
	var lastErr error
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// Wait fails early when the next poll would land past the deadline.
			// Sit out the rest of the timeout and look once more.
			<-waitCtx.Done()
			if ctx.Err() == nil {
				finalCtx, finalCancel := context.WithTimeout(ctx, finalReceiptFetchTimeout)
				receipt, ferr := m.fetchReceipt(finalCtx, hash)
				finalCancel()
				if ferr == nil && receipt != nil {
					return receipt, nil
				}
				if ferr != nil {
					lastErr = ferr
				}
			}
			if lastErr == nil {
				lastErr = err
			}
			return nil, clierr.ReceiptTimeout(hash.Hex(), lastErr)
		}
		receipt, err := m.fetchReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil {
			lastErr = err
		}
		m.log.Debug("receipt pending", zap.String("tx", hash.Hex()), zap.String("state", string(StatePending)))
	}
}

// fetchReceipt returns a nil receipt and nil error while the transaction is
// not mined yet.
func (m *Manager) fetchReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	conn, err := m.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := conn.Client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

// Receipt fetches the receipt of hash once, without waiting.
func (m *Manager) Receipt(ctx context.Context, hash string) (Receipt, error) {
	if !isTxHash(hash) {
		return Receipt{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash %q", hash))
	}
	conn, err := m.conns.Acquire(ctx)
	if err != nil {
		return Receipt{}, err
	}
	r, err := conn.Client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return Receipt{}, clierr.New(clierr.CodeUnavailable, "receipt not found").At(clierr.StageConfirm).WithTx(hash)
		}
		return Receipt{}, clierr.Wrap(clierr.CodeUnavailable, "fetch receipt", err).At(clierr.StageConfirm).WithTx(hash)
	}
	return receiptFromChain(r), nil
}

// Diagnose replays a mined transaction as an eth_call against the state of
// the block before it and returns the decoded revert reason.
func (m *Manager) Diagnose(ctx context.Context, hash string) (string, error) {
	if !isTxHash(hash) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash %q", hash))
	}
	conn, err := m.conns.Acquire(ctx)
	if err != nil {
		return "", err
	}
	txHash := common.HexToHash(hash)
	tx, _, err := conn.Client.TransactionByHash(ctx, txHash)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch transaction", err).At(clierr.StageDiagnose).WithTx(hash)
	}
	receipt, err := conn.Client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch receipt", err).At(clierr.StageDiagnose).WithTx(hash)
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "recover sender", err).At(clierr.StageDiagnose).WithTx(hash)
	}
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	if _, err := conn.Client.CallContract(ctx, msg, block); err != nil {
		return decodeRevertFromError(err), nil
	}
	return "replay succeeded; revert depends on in-block state", nil
}

func (m *Manager) chainID(ctx context.Context) (*big.Int, error) {
	if m.opts.ChainID > 0 {
		return big.NewInt(m.opts.ChainID), nil
	}
	conn, err := m.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	id, err := conn.Client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch chain id", err).At(clierr.StageBuild)
	}
	return id, nil
}

func isTxHash(s string) bool {
	b := common.FromHex(s)
	return len(b) == common.HashLength && len(s) >= 2*common.HashLength
}
