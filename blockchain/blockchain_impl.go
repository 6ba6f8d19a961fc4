package blockchain

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
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ipfs/go-datastore"
	badgerds "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log"
)

// Logger
var log = logging.Logger("blockchain")

// blockchainImpl implements Blockchain.
type blockchainImpl struct {
	opts   Opts
	config *params.ChainConfig
	ds     *badgerds.Datastore

	lock sync.RWMutex
	tail uint64
}

// NewBlockchainImpl creates a new Blockchain.
// If the datastore is empty, it is initialised with the genesis block.
func NewBlockchainImpl(ctx context.Context, opts Opts, genesis *core.Genesis) (Blockchain, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("empty path provided")
	}
	if genesis == nil || genesis.Config == nil {
		return nil, fmt.Errorf("empty genesis provided")
	}
	dsopts := badgerds.DefaultOptions
	dsopts.SyncWrites = false
	dsopts.Truncate = true
	// Use max table size of 64MiB
	dsopts.Options.MaxTableSize = 64 << 20
	// Use block cache size of 64MiB
	dsopts.Options.BlockCacheSize = 64 << 20
	ds, err := badgerds.NewDatastore(opts.Path, &dsopts)
	if err != nil {
		return nil, err
	}
	res := &blockchainImpl{
		opts:   opts,
		config: genesis.Config,
		ds:     ds,
		lock:   sync.RWMutex{},
	}
	val, err := res.ds.Get(ctx, getTailKey())
	if err == nil {
		tail, err := decodeHeight(val)
		if err != nil {
			log.Infof("Close DB: %v", ds.Close())
			return nil, err
		}
		log.Infof("Existing ds detected, skip starting from genesis")
		res.tail = tail
		return res, nil
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		log.Infof("Close DB: %v", ds.Close())
		return nil, err
	}
	log.Infof("No existing ds detected, starting from genesis...")
	// Write genesis block to block, canonical, head and tail.
	err = func() error {
		txn, err := res.ds.NewTransaction(ctx, false)
		if err != nil {
			return err
		}
		defer txn.Discard(ctx)

		genesisBlk := genesis.ToBlock()
		data, err := encodeBlock(genesisBlk)
		if err != nil {
			return err
		}
		err = txn.Put(ctx, getBlockKey(genesisBlk.Hash()), data)
		if err != nil {
			return err
		}
		err = txn.Put(ctx, getCanonicalKey(0), encodeHash(genesisBlk.Hash()))
		if err != nil {
			return err
		}
		err = txn.Put(ctx, getHeadKey(), encodeHash(genesisBlk.Hash()))
		if err != nil {
			return err
		}
		err = txn.Put(ctx, getTailKey(), encodeHeight(0))
		if err != nil {
			return err
		}
		return txn.Commit(ctx)
	}()
	if err != nil {
		log.Infof("Close DB: %v", ds.Close())
		return nil, err
	}
	log.Infof("Datastore successfully initialized from genesis")
	return res, nil
}

// HasBlock returns if blockchain contains the block corresponding to the block hash.
func (bc *blockchainImpl) HasBlock(ctx context.Context, hash common.Hash) (bool, error) {
	subCtx, cancel := context.WithTimeout(ctx, bc.opts.ReadTimeout)
	defer cancel()

	return bc.ds.Has(subCtx, getBlockKey(hash))
}

// GetBlockByHash returns the block corresponding to the block hash.
func (bc *blockchainImpl) GetBlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	subCtx, cancel := context.WithTimeout(ctx, bc.opts.ReadTimeout)
	defer cancel()

	val, err := bc.ds.Get(subCtx, getBlockKey(hash))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownBlock, hash)
		}
		return nil, err
	}
	return decodeBlock(val)
}

// GetBlockByNumber returns the canonical block corresponding to the block height.
func (bc *blockchainImpl) GetBlockByNumber(ctx context.Context, height uint64) (*types.Block, error) {
	subCtx, cancel := context.WithTimeout(ctx, bc.opts.ReadTimeout)
	defer cancel()

	val, err := bc.ds.Get(subCtx, getCanonicalKey(height))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, fmt.Errorf("%w: height %v", ErrUnknownBlock, height)
		}
		return nil, err
	}
	hash, err := decodeHash(val)
	if err != nil {
		return nil, err
	}
	return bc.GetBlockByHash(subCtx, hash)
}

// GetHeaderByHash returns the header corresponding to the block hash.
func (bc *blockchainImpl) GetHeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	blk, err := bc.GetBlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return blk.Header(), nil
}

// GetHeaderByNumber returns the header corresponding to the block height.
func (bc *blockchainImpl) GetHeaderByNumber(ctx context.Context, height uint64) (*types.Header, error) {
	blk, err := bc.GetBlockByNumber(ctx, height)
	if err != nil {
		return nil, err
	}
	return blk.Header(), nil
}

// GetTransaction gets the transaction for given tx hash, with its block hash and index.
func (bc *blockchainImpl) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, common.Hash, uint64, bool, error) {
	blk, index, found, err := bc.lookup(ctx, hash)
	if err != nil || !found {
		return nil, common.Hash{}, 0, found, err
	}
	return blk.Transactions()[index], blk.Hash(), index, true, nil
}

// GetReceipts gets the receipts of the block, with all derived fields filled.
func (bc *blockchainImpl) GetReceipts(ctx context.Context, hash common.Hash) (types.Receipts, error) {
	blk, err := bc.GetBlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return bc.getReceipts(ctx, blk)
}

// GetReceipt gets the receipt for given tx hash, with its block hash and index.
func (bc *blockchainImpl) GetReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, common.Hash, uint64, bool, error) {
	blk, index, found, err := bc.lookup(ctx, hash)
	if err != nil || !found {
		return nil, common.Hash{}, 0, found, err
	}
	receipts, err := bc.getReceipts(ctx, blk)
	if err != nil {
		return nil, common.Hash{}, 0, false, err
	}
	return receipts[index], blk.Hash(), index, true, nil
}

// GetHead returns the head block.
func (bc *blockchainImpl) GetHead(ctx context.Context) (*types.Block, error) {
	subCtx, cancel := context.WithTimeout(ctx, bc.opts.ReadTimeout)
	defer cancel()

	val, err := bc.ds.Get(subCtx, getHeadKey())
	if err != nil {
		return nil, err
	}
	hash, err := decodeHash(val)
	if err != nil {
		return nil, err
	}
	return bc.GetBlockByHash(subCtx, hash)
}

// GetTail returns the height of the oldest retained block.
func (bc *blockchainImpl) GetTail() uint64 {
	bc.lock.RLock()
	defer bc.lock.RUnlock()
	return bc.tail
}

// AddBlock adds a *validated* block on top of the head and makes it the new head.
func (bc *blockchainImpl) AddBlock(ctx context.Context, blk *types.Block, receipts types.Receipts) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	subCtx, cancel := context.WithTimeout(ctx, bc.opts.WriteTimeout)
	defer cancel()

	hash := blk.Hash()
	// Check if block exists
	exists, err := bc.HasBlock(subCtx, hash)
	if err != nil {
		return err
	}
	if exists {
		// Avoid adding block that exists
		return nil
	}
	head, err := bc.GetHead(subCtx)
	if err != nil {
		return err
	}
	if blk.ParentHash() != head.Hash() || blk.NumberU64() != head.NumberU64()+1 {
		return fmt.Errorf("block %v-%v does not extend head %v-%v", blk.NumberU64(), hash, head.NumberU64(), head.Hash())
	}
	if len(blk.Transactions()) != len(receipts) {
		return fmt.Errorf("receipts length mismatch: expect %v, got %v", len(blk.Transactions()), len(receipts))
	}

	txn, err := bc.ds.NewTransaction(subCtx, false)
	if err != nil {
		return err
	}
	defer txn.Discard(subCtx)

	// Put block
	data, err := encodeBlock(blk)
	if err != nil {
		return err
	}
	err = txn.Put(subCtx, getBlockKey(hash), data)
	if err != nil {
		return err
	}
	// Put receipts
	data, err = encodeReceipts(receipts)
	if err != nil {
		return err
	}
	err = txn.Put(subCtx, getReceiptsKey(hash), data)
	if err != nil {
		return err
	}
	// Put transaction lookups
	for index, t := range blk.Transactions() {
		err = txn.Put(subCtx, getTxLookupKey(t.Hash()), encodeTxLookup(hash, uint64(index)))
		if err != nil {
			return err
		}
	}
	// Update canonical chain and head
	err = txn.Put(subCtx, getCanonicalKey(blk.NumberU64()), encodeHash(hash))
	if err != nil {
		return err
	}
	err = txn.Put(subCtx, getHeadKey(), encodeHash(hash))
	if err != nil {
		return err
	}
	err = txn.Commit(subCtx)
	if err != nil {
		return err
	}
	bc.tryPrune(ctx, blk.NumberU64())
	return nil
}

// tryPrune try to prune the chain by given new height, caller must hold the lock.
func (bc *blockchainImpl) tryPrune(ctx context.Context, height uint64) {
	if bc.opts.MaxBlockToRetain == 0 || height-bc.tail <= bc.opts.MaxBlockToRetain {
		return
	}

	numBlksPruned := 0
	numTxnsPruned := 0

	newTail := height - bc.opts.MaxBlockToRetain
	for i := bc.tail; i < newTail; i++ {
		err := func() error {
			subCtx, cancel := context.WithTimeout(ctx, bc.opts.WriteTimeout)
			defer cancel()
			blk, err := bc.GetBlockByNumber(subCtx, i)
			if err != nil {
				return err
			}
			txn, err := bc.ds.NewTransaction(subCtx, false)
			if err != nil {
				return err
			}
			defer txn.Discard(subCtx)
			for _, t := range blk.Transactions() {
				err = txn.Delete(subCtx, getTxLookupKey(t.Hash()))
				if err != nil {
					return err
				}
				numTxnsPruned++
			}
			err = txn.Delete(subCtx, getReceiptsKey(blk.Hash()))
			if err != nil {
				return err
			}
			err = txn.Delete(subCtx, getBlockKey(blk.Hash()))
			if err != nil {
				return err
			}
			err = txn.Delete(subCtx, getCanonicalKey(i))
			if err != nil {
				return err
			}
			err = txn.Put(subCtx, getTailKey(), encodeHeight(i+1))
			if err != nil {
				return err
			}
			return txn.Commit(subCtx)
		}()
		if err != nil {
			log.Warnf("Fail to prune block at %v: %v", i, err.Error())
			return
		}
		numBlksPruned++
		bc.tail = i + 1
	}
	log.Infof("Succesfully pruned block data to %v: %v blks pruned, %v txns pruned", bc.tail, numBlksPruned, numTxnsPruned)
}

// lookup locates the block and index of the given transaction.
func (bc *blockchainImpl) lookup(ctx context.Context, hash common.Hash) (*types.Block, uint64, bool, error) {
	subCtx, cancel := context.WithTimeout(ctx, bc.opts.ReadTimeout)
	defer cancel()

	val, err := bc.ds.Get(subCtx, getTxLookupKey(hash))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	blkHash, index, err := decodeTxLookup(val)
	if err != nil {
		return nil, 0, false, err
	}
	blk, err := bc.GetBlockByHash(subCtx, blkHash)
	if err != nil {
		return nil, 0, false, err
	}
	if index >= uint64(len(blk.Transactions())) {
		return nil, 0, false, fmt.Errorf("invalid index %v of transaction %v in block %v", index, hash, blkHash)
	}
	return blk, index, true, nil
}

// getReceipts loads the receipts of the block and derives the non-consensus fields.
func (bc *blockchainImpl) getReceipts(ctx context.Context, blk *types.Block) (types.Receipts, error) {
	subCtx, cancel := context.WithTimeout(ctx, bc.opts.ReadTimeout)
	defer cancel()

	val, err := bc.ds.Get(subCtx, getReceiptsKey(blk.Hash()))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, fmt.Errorf("%w: receipts of %v", ErrUnknownBlock, blk.Hash())
		}
		return nil, err
	}
	receipts, err := decodeReceipts(val)
	if err != nil {
		return nil, err
	}
	var blobGasPrice *big.Int
	if excess := blk.ExcessBlobGas(); excess != nil {
		blobGasPrice = eip4844.CalcBlobFee(*excess)
	}
	err = receipts.DeriveFields(bc.config, blk.Hash(), blk.NumberU64(), blk.Time(), blk.BaseFee(), blobGasPrice, blk.Transactions())
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// Shutdown safely shuts the blockchain down.
func (bc *blockchainImpl) Shutdown() {
	log.Infof("Close blockchain...")
	err := bc.ds.Close()
	if err != nil {
		log.Errorf("Fail to close blockchain: %v", err.Error())
		return
	}
	log.Infof("Blockchain closed successfully.")
}
