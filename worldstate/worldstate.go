package worldstate

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	itypes "github.com/wcgcyx/callsim/types"
)

// ErrStateNotAvailable is returned when the requested block state is not retained.
var ErrStateNotAvailable = errors.New("state not available")

// Snapshot is a read-only view of the ledger at a fixed block.
// All methods are safe for concurrent use.
type Snapshot interface {
	// Height returns the block height of this snapshot.
	Height() uint64

	// BlockHash returns the block hash of this snapshot.
	BlockHash() common.Hash

	// GetAccountValue gets the account value for given address.
	GetAccountValue(addr common.Address) (itypes.AccountValue, error)

	// GetStorageByVersion gets the storage value of the given account version.
	GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error)

	// GetCodeByHash gets the code for given hash.
	GetCodeByHash(codeHash common.Hash) ([]byte, error)
}

// Archive keeps the persisted state plus a window of recent layers,
// one for every imported block.
type Archive interface {
	// GetSnapshot gets the snapshot after the block with given height and hash.
	GetSnapshot(height uint64, blockHash common.Hash) (Snapshot, error)

	// Has checks if the snapshot of the given block is retained.
	Has(height uint64, blockHash common.Hash) bool

	// AddLayer adds the state changes of a new block on top of its parent.
	AddLayer(layerLog itypes.LayerLog) (Snapshot, error)

	// PersistedHeight gets the height of the persisted state.
	PersistedHeight() uint64
}

// MutableState is a journaled state built on top of a snapshot.
// It implements the state database required by the EVM.
type MutableState interface {
	vm.StateDB

	// SetLogger sets the logger for account update hooks.
	SetLogger(l *tracing.Hooks)

	// SetTxContext sets the current transaction hash and index.
	SetTxContext(thash common.Hash, ti int)

	// TxIndex returns the current transaction index.
	TxIndex() int

	// GetLogs returns the logs of the given transaction.
	GetLogs(hash common.Hash, blockNumber uint64, blockHash common.Hash) []*types.Log

	// Finalise finalises the state at the end of a transaction.
	Finalise(deleteEmptyObjects bool)

	// Error returns the first datastore error met.
	Error() error

	// LayerLog builds the layer log of all finalised changes.
	LayerLog(number uint64, blockHash common.Hash, parentHash common.Hash) itypes.LayerLog
}

// GetBalance gets the balance of the given address from a snapshot.
func GetBalance(s Snapshot, addr common.Address) (*uint256.Int, error) {
	acct, err := s.GetAccountValue(addr)
	if err != nil {
		return nil, err
	}
	return acct.Balance, nil
}

// GetNonce gets the nonce of the given address from a snapshot.
func GetNonce(s Snapshot, addr common.Address) (uint64, error) {
	acct, err := s.GetAccountValue(addr)
	if err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

// GetCode gets the code of the given address from a snapshot.
func GetCode(s Snapshot, addr common.Address) ([]byte, error) {
	acct, err := s.GetAccountValue(addr)
	if err != nil {
		return nil, err
	}
	if acct.CodeHash == types.EmptyCodeHash || acct.CodeHash == (common.Hash{}) {
		return []byte{}, nil
	}
	return s.GetCodeByHash(acct.CodeHash)
}

// GetState gets the storage value of the given address from a snapshot.
func GetState(s Snapshot, addr common.Address, key common.Hash) (common.Hash, error) {
	acct, err := s.GetAccountValue(addr)
	if err != nil {
		return common.Hash{}, err
	}
	if !acct.Exists() {
		return common.Hash{}, nil
	}
	return s.GetStorageByVersion(addr, acct.Version, key)
}
