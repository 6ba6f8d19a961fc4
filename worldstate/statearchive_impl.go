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
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log"
	"github.com/wcgcyx/callsim/metrics"
	"github.com/wcgcyx/callsim/statestore"
	itypes "github.com/wcgcyx/callsim/types"
)

// Logger
var log = logging.Logger("worldstate")

// archiveImpl implements Archive.
type archiveImpl struct {
	opts   Opts
	sstore statestore.StateStore

	lock      sync.RWMutex
	persisted *persistedSnapshot
	layers    map[uint64]map[common.Hash]*layeredSnapshot
}

// NewArchiveImpl creates a new Archive on top of the persisted state.
// Layers above the persisted height need to be added back by the caller.
func NewArchiveImpl(opts Opts, sstore statestore.StateStore) (Archive, error) {
	persisted, err := newPersistedSnapshot(sstore)
	if err != nil {
		return nil, err
	}
	log.Infof("Start state archive from persisted state %v-%v", persisted.height, persisted.blockHash)
	metrics.StateRetained(persisted.height, 0)
	return &archiveImpl{
		opts:      opts,
		sstore:    sstore,
		lock:      sync.RWMutex{},
		persisted: persisted,
		layers:    make(map[uint64]map[common.Hash]*layeredSnapshot),
	}, nil
}

// GetSnapshot gets the snapshot after the block with given height and hash.
func (a *archiveImpl) GetSnapshot(height uint64, blockHash common.Hash) (Snapshot, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	snap := a.get(height, blockHash)
	if snap == nil {
		return nil, fmt.Errorf("%w: block %v-%v", ErrStateNotAvailable, height, blockHash)
	}
	return snap, nil
}

// Has checks if the snapshot of the given block is retained.
func (a *archiveImpl) Has(height uint64, blockHash common.Hash) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.get(height, blockHash) != nil
}

// PersistedHeight gets the height of the persisted state.
func (a *archiveImpl) PersistedHeight() uint64 {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.persisted.height
}

// get gets the snapshot, caller must hold the lock.
func (a *archiveImpl) get(height uint64, blockHash common.Hash) Snapshot {
	if height == a.persisted.height && blockHash == a.persisted.blockHash {
		return a.persisted
	}
	hashMap, ok := a.layers[height]
	if !ok {
		return nil
	}
	layer, ok := hashMap[blockHash]
	if !ok {
		return nil
	}
	return layer
}

// AddLayer adds the state changes of a new block on top of its parent.
func (a *archiveImpl) AddLayer(layerLog itypes.LayerLog) (Snapshot, error) {
	if layerLog.BlockNumber == 0 {
		return nil, fmt.Errorf("cannot add layer at genesis")
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if existing := a.get(layerLog.BlockNumber, layerLog.BlockHash); existing != nil {
		log.Debugf("Layer %v-%v already exists", layerLog.BlockNumber, layerLog.BlockHash)
		return existing, nil
	}
	parent := a.get(layerLog.BlockNumber-1, layerLog.ParentHash)
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %v-%v of %v", ErrStateNotAvailable, layerLog.BlockNumber-1, layerLog.ParentHash, layerLog.BlockHash)
	}
	layer, err := newLayeredSnapshot(parent, layerLog)
	if err != nil {
		return nil, err
	}
	// Keep the layer log so the layer can be rebuilt after restart.
	txn, err := a.sstore.NewTransaction()
	if err != nil {
		return nil, err
	}
	defer txn.Discard()
	err = txn.PutLayerLog(layerLog)
	if err != nil {
		return nil, err
	}
	err = txn.Commit()
	if err != nil {
		return nil, err
	}
	hashMap, ok := a.layers[layerLog.BlockNumber]
	if !ok {
		hashMap = make(map[common.Hash]*layeredSnapshot)
		a.layers[layerLog.BlockNumber] = hashMap
	}
	hashMap[layerLog.BlockHash] = layer
	// Flatten the oldest layers on the path to the new layer.
	for a.opts.MaxLayerToRetain > 0 && layerLog.BlockNumber-a.persisted.height > a.opts.MaxLayerToRetain {
		target := layer
		for target.Height() > a.persisted.height+1 {
			next, ok := target.getParent().(*layeredSnapshot)
			if !ok {
				return nil, fmt.Errorf("fail to locate layer at height %v", a.persisted.height+1)
			}
			target = next
		}
		err = a.flatten(target)
		if err != nil {
			log.Errorf("Fail to flatten layer %v-%v: %v", target.Height(), target.BlockHash(), err.Error())
			return nil, err
		}
	}
	metrics.StateRetained(a.persisted.height, a.count())
	return layer, nil
}

// flatten writes the given layer into the persisted state and drops every
// layer that is no longer reachable from it. Caller must hold the lock.
func (a *archiveImpl) flatten(target *layeredSnapshot) error {
	log.Debugf("Flatten layer %v-%v", target.Height(), target.BlockHash())
	txn, err := a.sstore.NewTransaction()
	if err != nil {
		return err
	}
	defer txn.Discard()
	err = txn.PersistLayerLog(target.layerLog)
	if err != nil {
		return err
	}
	err = txn.DeleteLayerLog(target.Height(), target.BlockHash())
	if err != nil {
		return err
	}
	old := a.persisted
	old.stale.Store(true)
	err = txn.Commit()
	if err != nil {
		old.stale.Store(false)
		return err
	}
	persisted := &persistedSnapshot{
		sstore:    a.sstore,
		height:    target.Height(),
		blockHash: target.BlockHash(),
	}
	a.persisted = persisted

	// The target keeps serving the same state from the new persisted state.
	target.setParent(persisted)
	delete(a.layers[target.Height()], target.BlockHash())
	for hash, sibling := range a.layers[target.Height()] {
		sibling.pruned.Store(true)
		a.dropLayerLog(sibling.Height(), hash)
	}
	delete(a.layers, target.Height())

	// Re-parent children of the target and prune other branches.
	height := target.Height() + 1
	kept := map[Snapshot]bool{target: true}
	for {
		hashMap, ok := a.layers[height]
		if !ok {
			break
		}
		for hash, layer := range hashMap {
			parent := layer.getParent()
			if parent == target {
				layer.setParent(persisted)
				kept[layer] = true
			} else if kept[parent] {
				kept[layer] = true
			} else {
				layer.pruned.Store(true)
				a.dropLayerLog(height, hash)
				delete(hashMap, hash)
			}
		}
		if len(hashMap) == 0 {
			delete(a.layers, height)
		}
		height++
	}
	return nil
}

// dropLayerLog removes the stored layer log of a pruned branch.
func (a *archiveImpl) dropLayerLog(height uint64, blockHash common.Hash) {
	txn, err := a.sstore.NewTransaction()
	if err != nil {
		log.Warnf("Fail to open transaction to drop layer log %v-%v: %v", height, blockHash, err.Error())
		return
	}
	defer txn.Discard()
	err = txn.DeleteLayerLog(height, blockHash)
	if err == nil {
		err = txn.Commit()
	}
	if err != nil {
		log.Warnf("Fail to drop layer log %v-%v: %v", height, blockHash, err.Error())
	}
}

// count counts the retained layers, caller must hold the lock.
func (a *archiveImpl) count() int {
	res := 0
	for _, hashMap := range a.layers {
		res += len(hashMap)
	}
	return res
}
