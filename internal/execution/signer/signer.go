package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// MessageSigner produces EIP-191 personal-message signatures.
type MessageSigner interface {
	Address() common.Address
	SignMessage(message []byte) ([]byte, error)
}
