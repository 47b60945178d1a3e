package execution

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// State is a position in the transaction lifecycle. Transitions only move
// forward; a retry is a new request with a fresh nonce.
type State string

const (
	StateBuilt     State = "built"
	StateSigned    State = "signed"
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateReverted  State = "reverted"
)

// DefaultGasLimit is used when a call does not carry an explicit gas limit.
const DefaultGasLimit uint64 = 300_000

// Call is a prepared contract invocation: target, ABI-encoded calldata and the
// native value to attach.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	// GasLimit overrides DefaultGasLimit when non-zero.
	GasLimit uint64
}

// TxParams are the sender-side fields of a legacy transaction.
type TxParams struct {
	From     common.Address
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	Value    *big.Int
}

// Receipt is the terminal record of one submitted transaction.
type Receipt struct {
	TxHash            string `json:"tx_hash"`
	Status            State  `json:"status"`
	BlockNumber       uint64 `json:"block_number"`
	GasUsed           uint64 `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price"`
	// GasFee is GasUsed * EffectiveGasPrice in wei.
	GasFee string `json:"gas_fee"`
}

func receiptFromChain(r *types.Receipt) Receipt {
	out := Receipt{
		TxHash:  r.TxHash.Hex(),
		Status:  StateConfirmed,
		GasUsed: r.GasUsed,
	}
	if r.Status != types.ReceiptStatusSuccessful {
		out.Status = StateReverted
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	price := r.EffectiveGasPrice
	if price == nil {
		price = new(big.Int)
	}
	out.EffectiveGasPrice = price.String()
	out.GasFee = new(big.Int).Mul(price, new(big.Int).SetUint64(r.GasUsed)).String()
	return out
}
