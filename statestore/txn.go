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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-datastore"
	itypes "github.com/wcgcyx/callsim/types"
)

// transactionImpl implements Transaction.
type transactionImpl struct {
	ctx    context.Context
	cancel context.CancelFunc
	txn    datastore.Txn
}

// NewTransaction creates a new transaction to write.
func (s *stateStoreImpl) NewTransaction() (Transaction, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
	txn, err := s.ds.NewTransaction(ctx, false)
	if err != nil {
		cancel()
		return nil, err
	}
	return &transactionImpl{ctx: ctx, cancel: cancel, txn: txn}, nil
}

// PersistLayerLog flattens the layer log into the persisted state.
// It includes update persisted height, block hash and all account changes.
func (t *transactionImpl) PersistLayerLog(layerLog itypes.LayerLog) error {
	err := t.txn.Put(t.ctx, persistedHeightKey(), encodePersistedHeight(layerLog.BlockNumber, layerLog.BlockHash))
	if err != nil {
		return err
	}

	for addr, acct := range layerLog.UpdatedAccounts {
		// Check committed account version for possible GC
		committed, err := t.getCommittedVersion(addr)
		if err != nil {
			return err
		}
		if acct.Exists() {
			err = t.txn.Put(t.ctx, getAccountValueKey(addr), encodeAccountValue(acct))
			if err != nil {
				return err
			}
			err = t.txn.Delete(t.ctx, getAccountVersionKey(addr))
			if err != nil {
				return err
			}
		} else {
			// This account has been destructed, only remember its version.
			err = t.txn.Delete(t.ctx, getAccountValueKey(addr))
			if err != nil {
				return err
			}
			err = t.txn.Put(t.ctx, getAccountVersionKey(addr), encodeAccountVersion(acct.Version))
			if err != nil {
				return err
			}
		}
		for i := committed; i < acct.Version; i++ {
			if i%2 == 1 {
				// Notify GC to clear storage of the old incarnation
				err = t.txn.Put(t.ctx, getGCKey(addr, i), []byte{})
				if err != nil {
					return err
				}
			}
		}
	}

	for codeHash, code := range layerLog.CodePreimage {
		err = t.txn.Put(t.ctx, getCodeKey(codeHash), code)
		if err != nil {
			return err
		}
	}

	for storageKey, storage := range layerLog.UpdatedStorage {
		addr, version, err := itypes.SplitAccountStorageKey(storageKey)
		if err != nil {
			return err
		}
		for k, v := range storage {
			if v == (common.Hash{}) {
				err = t.txn.Delete(t.ctx, getStorageKey(addr, version, k))
			} else {
				err = t.txn.Put(t.ctx, getStorageKey(addr, version, k), v.Bytes())
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// getCommittedVersion gets the version of the account before this transaction.
func (t *transactionImpl) getCommittedVersion(addr common.Address) (uint64, error) {
	val, err := t.txn.Get(t.ctx, getAccountValueKey(addr))
	if err == nil {
		acct, err := decodeAccountValue(val)
		if err != nil {
			return 0, err
		}
		return acct.Version, nil
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return 0, err
	}
	val, err = t.txn.Get(t.ctx, getAccountVersionKey(addr))
	if err == nil {
		return decodeAccountVersion(val)
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return 0, err
	}
	return 0, nil
}

// PutLayerLog puts layer log of a retained block.
func (t *transactionImpl) PutLayerLog(layerLog itypes.LayerLog) error {
	return t.txn.Put(t.ctx, getLayerLogKey(layerLog.BlockNumber, layerLog.BlockHash), itypes.EncodeLayerLog(layerLog))
}

// DeleteLayerLog deletes layer log of a retained block.
func (t *transactionImpl) DeleteLayerLog(height uint64, blockHash common.Hash) error {
	return t.txn.Delete(t.ctx, getLayerLogKey(height, blockHash))
}

// Commit commits all changes.
func (t *transactionImpl) Commit() error {
	return t.txn.Commit(t.ctx)
}

// Discard discards all changes.
func (t *transactionImpl) Discard() {
	t.txn.Discard(t.ctx)
	t.cancel()
}
