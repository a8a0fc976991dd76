package model

import (
	"math/big"
	"time"
)

// ExecutionResult is the outcome of dispatching a single intent to a
// single wallet, as returned by the Scheduler in the same order as the
// batch's intents.
type ExecutionResult struct {
	Intent      *TransferIntent
	WalletAddr  string
	Success     bool
	TxHash      string
	BlockNumber uint64
	Err         error
}

// GasFees is the set of fields an EvmExecutor needs to build a
// transaction, preferring EIP-1559 fields and falling back to legacy
// gasPrice.
type GasFees struct {
	UseDynamicFee        bool
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
	GasLimit             uint64
	RefreshedAt          time.Time
}
