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
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/wcgcyx/callsim/statestore"
	itypes "github.com/wcgcyx/callsim/types"
)

// persistedSnapshot implements Snapshot over the persisted state.
type persistedSnapshot struct {
	sstore statestore.StateStore

	height    uint64
	blockHash common.Hash

	// Set once the persisted state has moved past this height
	stale atomic.Bool
}

// newPersistedSnapshot creates a snapshot over the persisted state.
func newPersistedSnapshot(sstore statestore.StateStore) (*persistedSnapshot, error) {
	height, blockHash, err := sstore.GetPersistedHeight()
	if err != nil {
		return nil, err
	}
	return &persistedSnapshot{
		sstore:    sstore,
		height:    height,
		blockHash: blockHash,
	}, nil
}

// Height returns the block height of this snapshot.
func (s *persistedSnapshot) Height() uint64 {
	return s.height
}

// BlockHash returns the block hash of this snapshot.
func (s *persistedSnapshot) BlockHash() common.Hash {
	return s.blockHash
}

// GetAccountValue gets the account value for given address.
func (s *persistedSnapshot) GetAccountValue(addr common.Address) (itypes.AccountValue, error) {
	if s.stale.Load() {
		return itypes.AccountValue{}, ErrStateNotAvailable
	}
	return s.sstore.GetAccountValue(addr)
}

// GetStorageByVersion gets the storage value of the given account version.
func (s *persistedSnapshot) GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error) {
	if s.stale.Load() {
		return common.Hash{}, ErrStateNotAvailable
	}
	return s.sstore.GetStorageByVersion(addr, version, key)
}

// GetCodeByHash gets the code for given hash.
func (s *persistedSnapshot) GetCodeByHash(codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return []byte{}, nil
	}
	// Code is content addressed and never removed, so a stale snapshot can still serve it.
	return s.sstore.GetCodeByHash(codeHash)
}
