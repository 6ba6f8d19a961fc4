package statestore

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
	"github.com/ethereum/go-ethereum/common"
	itypes "github.com/wcgcyx/callsim/types"
)

// StateStore is the persisted base ledger. It holds the flattened state at the
// persisted height and the layer logs of blocks that are still retained in memory.
type StateStore interface {
	// GetPersistedHeight gets the persisted state height and block hash.
	GetPersistedHeight() (uint64, common.Hash, error)

	// GetLayerLog gets the layer log for the block with the given hash.
	GetLayerLog(height uint64, blockHash common.Hash) (itypes.LayerLog, error)

	// GetAccountValue gets the persisted account value for given address.
	GetAccountValue(addr common.Address) (itypes.AccountValue, error)

	// GetStorageByVersion gets the persisted storage value for given key.
	GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error)

	// GetCodeByHash gets the persisted code for given hash.
	GetCodeByHash(codeHash common.Hash) ([]byte, error)

	// NewTransaction creates a new transaction to write.
	NewTransaction() (Transaction, error)

	// Shutdown safely shuts the statestore down.
	Shutdown()
}

type Transaction interface {
	// PersistLayerLog flattens the layer log into the persisted state.
	// It includes update persisted height, block hash and all account changes.
	PersistLayerLog(layerLog itypes.LayerLog) error

	// PutLayerLog puts layer log of a retained block.
	PutLayerLog(layerLog itypes.LayerLog) error

	// DeleteLayerLog deletes layer log of a retained block.
	DeleteLayerLog(height uint64, blockHash common.Hash) error

	// Commit commits all changes.
	Commit() error

	// Discard discards all changes.
	Discard()
}
