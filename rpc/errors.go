package rpc

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
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/wcgcyx/callsim/executor"
)

// Note:
// This is adapted from:
// 		go-ethereum@v1.14.8/internal/ethapi/errors.go

const (
	errCodeReverted = 3
	errCodeDefault  = -32000
)

// revertError is an API error that encompasses an EVM revert with JSON error
// code and a binary data blob.
type revertError struct {
	error
	reason string // revert reason hex encoded
}

// ErrorCode returns the JSON error code for a revert.
func (e *revertError) ErrorCode() int {
	return errCodeReverted
}

// ErrorData returns the hex encoded revert reason.
func (e *revertError) ErrorData() interface{} {
	return e.reason
}

// Unwrap returns the revert cause so it can be matched with errors.Is.
func (e *revertError) Unwrap() error {
	return e.error
}

// newRevertError creates a revertError instance with the provided revert data.
func newRevertError(revert []byte) *revertError {
	err := vm.ErrExecutionReverted

	reason, ok := executor.RevertReason(revert)
	if ok {
		err = fmt.Errorf("%w: %v", vm.ErrExecutionReverted, reason)
	}
	return &revertError{
		error:  err,
		reason: hexutil.Encode(revert),
	}
}

// TxIndexingError is an API error that indicates the transaction is not indexed.
type TxIndexingError struct{}

// NewTxIndexingError creates a TxIndexingError instance.
func NewTxIndexingError() *TxIndexingError { return &TxIndexingError{} }

// Error implement error interface, returning the error message.
func (e *TxIndexingError) Error() string {
	return "transaction indexing is in progress"
}

// ErrorCode returns the JSON error code.
func (e *TxIndexingError) ErrorCode() int {
	return errCodeDefault
}

// ErrorData returns the error reason.
func (e *TxIndexingError) ErrorData() interface{} { return "transaction indexing is in progress" }

// errorCode gets the json-rpc error code label of an error.
func errorCode(err error) string {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return strconv.Itoa(rpcErr.ErrorCode())
	}
	return strconv.Itoa(errCodeDefault)
}
