package executor

/*
 * Licensed under LGPL-3.0.
 *
 * You can get a copy of the LGPL-3.0 License at
 *
 * https://www.gnu.org/licenses/lgpl-3.0.en.html
 *
 * @wcgcyx - https://github.com/wcgcyx
 */

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
)

var (
	// ErrInsufficientFunds is returned if the sender cannot pay for gas * price + value.
	ErrInsufficientFunds = core.ErrInsufficientFunds

	// ErrInsufficientFundsForTransfer is returned if the sender cannot pay the value.
	ErrInsufficientFundsForTransfer = core.ErrInsufficientFundsForTransfer

	// ErrIntrinsicGas is returned if the gas limit is below the intrinsic gas.
	ErrIntrinsicGas = core.ErrIntrinsicGas

	// ErrCodeStoreOutOfGas is reported if the created code cannot be paid for.
	ErrCodeStoreOutOfGas = vm.ErrCodeStoreOutOfGas

	// ErrExecutionReverted is reported if the execution reverts.
	ErrExecutionReverted = vm.ErrExecutionReverted
)

// ExecutionResult includes all output after executing given message.
type ExecutionResult struct {
	// Returned data from evm
	ReturnData []byte

	// Any error encountered during the execution (listed in core/vm/errors.go)
	Err error

	// Gas charged, at least the minimum share of the gas limit
	UsedGas uint64

	// Gas actually consumed after refund
	ExecutionGas uint64

	// Gas refunded
	RefundedGas uint64
}

// Unwrap returns the internal evm error which allows us for further
// analysis outside.
func (result *ExecutionResult) Unwrap() error {
	return result.Err
}

// Failed returns the indicator whether the execution is successful or not
func (result *ExecutionResult) Failed() bool {
	return result.Err != nil
}

// Return is a helper function to help caller distinguish between revert reason
// and function return. Return returns the data after execution if no error occurs.
func (result *ExecutionResult) Return() []byte {
	if result.Err != nil {
		return nil
	}
	return result.ReturnData
}

// Revert returns the concrete revert reason if the execution is aborted by `REVERT`
// opcode. Note the reason can be nil if no data supplied with revert opcode.
func (result *ExecutionResult) Revert() []byte {
	if result.Err != vm.ErrExecutionReverted {
		return nil
	}
	return result.ReturnData
}

// receipt builds the receipt reported to tracers.
func (result *ExecutionResult) receipt(tx *types.Transaction) *types.Receipt {
	receipt := &types.Receipt{
		Type:              tx.Type(),
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		CumulativeGasUsed: result.UsedGas,
		Status:            types.ReceiptStatusSuccessful,
	}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	}
	return receipt
}

// RevertReason decodes the reason string of revert data.
func RevertReason(data []byte) (string, bool) {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}
