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
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ipfs/go-datastore"
	badgerds "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log"
	itypes "github.com/wcgcyx/callsim/types"
)

// Logger
var log = logging.Logger("statestore")

// stateStoreImpl implements StateStore.
type stateStoreImpl struct {
	ctx  context.Context
	opts Opts
	ds   *badgerds.Datastore
	// Process related
	routineCtx context.Context
	cancel     context.CancelFunc
	exitLoop   chan bool
}

// NewStateStoreImpl creates a new StateStore.
// If the datastore is empty, it is initialised with the genesis allocation.
func NewStateStoreImpl(ctx context.Context, opts Opts, genesis *core.Genesis, genesisHash common.Hash) (StateStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("empty path provided")
	}
	dsopts := badgerds.DefaultOptions
	dsopts.SyncWrites = false
	dsopts.Truncate = true
	dsopts.Options.MaxTableSize = defaultMaxTableSize
	if opts.MaxTableSize > 0 {
		dsopts.Options.MaxTableSize = opts.MaxTableSize
	}
	ds, err := badgerds.NewDatastore(opts.Path, &dsopts)
	if err != nil {
		return nil, err
	}
	routineCtx, cancel := context.WithCancel(context.Background())
	res := &stateStoreImpl{
		ctx:        ctx,
		opts:       opts,
		ds:         ds,
		routineCtx: routineCtx,
		cancel:     cancel,
		exitLoop:   make(chan bool),
	}
	ok, err := res.ds.Has(ctx, persistedHeightKey())
	if err != nil {
		cancel()
		ds.Close()
		return nil, err
	}
	if ok {
		log.Infof("Existing ds detected, skip starting from genesis")
		go res.gcRoutine()
		return res, nil
	}
	if genesis == nil {
		cancel()
		ds.Close()
		return nil, fmt.Errorf("empty genesis provided")
	}
	// Persist genesis state
	layerLog := itypes.LayerLogFromGenesis(genesis, genesisHash)
	err = func() error {
		txn, err := res.NewTransaction()
		if err != nil {
			return err
		}
		defer txn.Discard()
		err = txn.PersistLayerLog(*layerLog)
		if err != nil {
			return err
		}
		return txn.Commit()
	}()
	if err != nil {
		cancel()
		ds.Close()
		return nil, err
	}
	log.Infof("Datastore successfully initialized from genesis %v", genesisHash)
	go res.gcRoutine()
	return res, nil
}

// GetPersistedHeight gets the persisted state height and block hash.
func (s *stateStoreImpl) GetPersistedHeight() (uint64, common.Hash, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReadTimeout)
	defer cancel()

	val, err := s.ds.Get(ctx, persistedHeightKey())
	if err != nil {
		return 0, common.Hash{}, err
	}
	return decodePersistedHeight(val)
}

// GetLayerLog gets the layer log for the block with the given hash.
func (s *stateStoreImpl) GetLayerLog(height uint64, blockHash common.Hash) (itypes.LayerLog, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReadTimeout)
	defer cancel()

	val, err := s.ds.Get(ctx, getLayerLogKey(height, blockHash))
	if err != nil {
		return itypes.LayerLog{}, err
	}
	return itypes.DecodeLayerLog(val)
}

// GetAccountValue gets the persisted account value for given address.
func (s *stateStoreImpl) GetAccountValue(addr common.Address) (itypes.AccountValue, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReadTimeout)
	defer cancel()

	val, err := s.ds.Get(ctx, getAccountValueKey(addr))
	if err == nil {
		return decodeAccountValue(val)
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return itypes.AccountValue{}, err
	}
	// Account does not exist, but it may have existed before.
	version := uint64(0)
	versionBytes, err := s.ds.Get(ctx, getAccountVersionKey(addr))
	if err == nil {
		version, err = decodeAccountVersion(versionBytes)
		if err != nil {
			return itypes.AccountValue{}, err
		}
	} else if !errors.Is(err, datastore.ErrNotFound) {
		return itypes.AccountValue{}, err
	}
	return itypes.EmptyAccountValue(version), nil
}

// GetStorageByVersion gets the persisted storage value for given key.
func (s *stateStoreImpl) GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReadTimeout)
	defer cancel()

	val, err := s.ds.Get(ctx, getStorageKey(addr, version, key))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return common.Hash{}, nil
		}
		return common.Hash{}, err
	}
	return common.BytesToHash(val), nil
}

// GetCodeByHash gets the persisted code for given hash.
func (s *stateStoreImpl) GetCodeByHash(codeHash common.Hash) ([]byte, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ReadTimeout)
	defer cancel()

	return s.ds.Get(ctx, getCodeKey(codeHash))
}

// Shutdown safely shuts the statestore down.
func (s *stateStoreImpl) Shutdown() {
	log.Infof("Close statestore...")
	s.cancel()
	<-s.exitLoop
	err := s.ds.Close()
	if err != nil {
		log.Errorf("Fail to close statestore: %v", err.Error())
		return
	}
	log.Infof("Statestore closed successfully.")
}
