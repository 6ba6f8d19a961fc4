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
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	itypes "github.com/wcgcyx/callsim/types"
)

// layeredSnapshot implements Snapshot by placing the changes of one block
// on top of the snapshot of its parent block.
type layeredSnapshot struct {
	// Layer log at this block
	layerLog itypes.LayerLog

	// Snapshot at parent block, replaced once the parent gets persisted
	lock   sync.RWMutex
	parent Snapshot

	// Set once this layer is dropped from the archive
	pruned atomic.Bool

	// Cache to speed up lookups
	cachedAccts   *lru.Cache[common.Address, itypes.AccountValue]
	cachedCode    *lru.Cache[common.Hash, []byte]
	cachedStorage *lru.Cache[string, common.Hash]
}

// newLayeredSnapshot creates a new layered snapshot.
func newLayeredSnapshot(parent Snapshot, layerLog itypes.LayerLog) (*layeredSnapshot, error) {
	cachedAccts, err := lru.New[common.Address, itypes.AccountValue](512)
	if err != nil {
		return nil, err
	}
	cachedCode, err := lru.New[common.Hash, []byte](128)
	if err != nil {
		return nil, err
	}
	cachedStorage, err := lru.New[string, common.Hash](4096)
	if err != nil {
		return nil, err
	}
	return &layeredSnapshot{
		layerLog:      layerLog,
		parent:        parent,
		cachedAccts:   cachedAccts,
		cachedCode:    cachedCode,
		cachedStorage: cachedStorage,
	}, nil
}

// Height returns the block height of this snapshot.
func (s *layeredSnapshot) Height() uint64 {
	return s.layerLog.BlockNumber
}

// BlockHash returns the block hash of this snapshot.
func (s *layeredSnapshot) BlockHash() common.Hash {
	return s.layerLog.BlockHash
}

// getParent gets the current parent.
func (s *layeredSnapshot) getParent() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.parent
}

// setParent replaces the parent.
// The new parent must represent the same state as the old one.
func (s *layeredSnapshot) setParent(parent Snapshot) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.parent = parent
}

// GetAccountValue gets the account value for given address.
func (s *layeredSnapshot) GetAccountValue(addr common.Address) (itypes.AccountValue, error) {
	if s.pruned.Load() {
		return itypes.AccountValue{}, ErrStateNotAvailable
	}
	res, ok := s.layerLog.UpdatedAccounts[addr]
	if ok {
		return res.Copy(), nil
	}
	res, ok = s.cachedAccts.Get(addr)
	if ok {
		return res.Copy(), nil
	}
	res, err := s.getParent().GetAccountValue(addr)
	if err != nil {
		return itypes.AccountValue{}, err
	}
	s.cachedAccts.Add(addr, res.Copy())
	return res, nil
}

// GetStorageByVersion gets the storage value of the given account version.
func (s *layeredSnapshot) GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error) {
	if s.pruned.Load() {
		return common.Hash{}, ErrStateNotAvailable
	}
	accountKey := itypes.GetAccountStorageKey(addr, version)
	storage, ok := s.layerLog.UpdatedStorage[accountKey]
	if ok {
		val, ok := storage[key]
		if ok {
			return val, nil
		}
	}
	cacheKey := accountKey + "-" + key.Hex()
	val, ok := s.cachedStorage.Get(cacheKey)
	if ok {
		return val, nil
	}
	val, err := s.getParent().GetStorageByVersion(addr, version, key)
	if err != nil {
		return common.Hash{}, err
	}
	s.cachedStorage.Add(cacheKey, val)
	return val, nil
}

// GetCodeByHash gets the code for given hash.
func (s *layeredSnapshot) GetCodeByHash(codeHash common.Hash) ([]byte, error) {
	if codeHash == types.EmptyCodeHash {
		return []byte{}, nil
	}
	code, ok := s.layerLog.CodePreimage[codeHash]
	if ok {
		return code, nil
	}
	code, ok = s.cachedCode.Get(codeHash)
	if ok {
		return code, nil
	}
	code, err := s.getParent().GetCodeByHash(codeHash)
	if err != nil {
		return nil, err
	}
	s.cachedCode.Add(codeHash, code)
	return code, nil
}
