package backend

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
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log"
	"github.com/wcgcyx/callsim/blockchain"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/metrics"
	"github.com/wcgcyx/callsim/processor"
	"github.com/wcgcyx/callsim/statestore"
	itypes "github.com/wcgcyx/callsim/types"
	"github.com/wcgcyx/callsim/worldstate"
)

// Logger
var log = logging.Logger("backend")

// BackendImpl implements Backend.
type BackendImpl struct {
	opts Opts

	// Chain processor, executor and chain config
	blkProcessor *processor.BlockProcessor
	exec         *executor.Executor
	chainConfig  *params.ChainConfig

	// Chain and states
	bc     blockchain.Blockchain
	sstore statestore.StateStore
	sa     worldstate.Archive

	// Imports are serialized
	importLock sync.Mutex

	chainHeadFeed event.Feed
	scope         event.SubscriptionScope
}

// NewBackendImpl creates a new backend.
// The in-memory layers between the persisted state and the chain head are rebuilt from the stored layer logs.
func NewBackendImpl(
	ctx context.Context,
	opts Opts,
	chainConfig *params.ChainConfig,
	exec *executor.Executor,
	bc blockchain.Blockchain,
	sstore statestore.StateStore,
	sa worldstate.Archive) (Backend, error) {
	b := &BackendImpl{
		opts:         opts,
		blkProcessor: processor.NewBlockProcessor(chainConfig, bc, exec),
		exec:         exec,
		chainConfig:  chainConfig,
		bc:           bc,
		sstore:       sstore,
		sa:           sa,
	}
	if err := b.replay(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Processor gets the current block processor.
func (b *BackendImpl) Processor() *processor.BlockProcessor {
	return b.blkProcessor
}

// Executor gets the executor shared by calls and blocks.
func (b *BackendImpl) Executor() *executor.Executor {
	return b.exec
}

// ChainConfig gets the current chain config.
func (b *BackendImpl) ChainConfig() *params.ChainConfig {
	return b.chainConfig
}

// Blockchain gets the blockchain instance.
func (b *BackendImpl) Blockchain() blockchain.Blockchain {
	return b.bc
}

// StateArchive gets the state archive instance.
func (b *BackendImpl) StateArchive() worldstate.Archive {
	return b.sa
}

// StateAtBlock gets the snapshot of the state after the given block.
func (b *BackendImpl) StateAtBlock(ctx context.Context, header *types.Header) (worldstate.Snapshot, error) {
	return b.sa.GetSnapshot(header.Number.Uint64(), header.Hash())
}

// StateAtTransaction gets the state right before the transaction at txIndex of the block,
// together with the message of that transaction and the block context.
func (b *BackendImpl) StateAtTransaction(ctx context.Context, block *types.Block, txIndex int) (*core.Message, vm.BlockContext, worldstate.MutableState, error) {
	if block.NumberU64() == 0 {
		return nil, vm.BlockContext{}, nil, errors.New("no transaction in genesis")
	}
	parent, err := b.sa.GetSnapshot(block.NumberU64()-1, block.ParentHash())
	if err != nil {
		return nil, vm.BlockContext{}, nil, err
	}
	state := worldstate.NewMutableState(parent)
	msg, blockCtx, err := b.blkProcessor.StateAtTransaction(ctx, block, txIndex, state)
	if err != nil {
		return nil, vm.BlockContext{}, nil, err
	}
	return msg, blockCtx, state, nil
}

// SealBlock executes the transactions on top of the head and imports the result as the new head.
// It returns the sealed block and the transactions that could not be included.
func (b *BackendImpl) SealBlock(ctx context.Context, txs []*types.Transaction, timestamp uint64) (*types.Block, []*types.Transaction, error) {
	b.importLock.Lock()
	defer b.importLock.Unlock()

	head, err := b.bc.GetHead(ctx)
	if err != nil {
		return nil, nil, err
	}
	parent := head.Header()
	header := b.prepareHeader(parent, timestamp)
	snap, err := b.sa.GetSnapshot(parent.Number.Uint64(), parent.Hash())
	if err != nil {
		return nil, nil, err
	}
	state := worldstate.NewMutableState(snap)
	blk, receipts, rejected, err := b.blkProcessor.Build(ctx, parent, header, txs, state)
	if err != nil {
		return nil, nil, err
	}
	err = b.commit(ctx, blk, receipts, state)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Successfully sealed block %v (%v): txn %v gas used %v", blk.NumberU64(), blk.Hash(), len(receipts), blk.GasUsed())
	return blk, rejected, nil
}

// ImportBlock process and import a block built on top of the head.
func (b *BackendImpl) ImportBlock(ctx context.Context, blk *types.Block) error {
	b.importLock.Lock()
	defer b.importLock.Unlock()

	// Check if this block has already been imported
	exists, err := b.bc.HasBlock(ctx, blk.Hash())
	if err != nil {
		return err
	}
	if exists {
		log.Infof("Block %v has already been imported, skip", blk.Hash())
		return nil
	}
	parent, err := b.bc.GetHeaderByHash(ctx, blk.ParentHash())
	if err != nil {
		return err
	}
	snap, err := b.sa.GetSnapshot(parent.Number.Uint64(), parent.Hash())
	if err != nil {
		return err
	}
	state := worldstate.NewMutableState(snap)
	receipts, _, gasUsed, err := b.blkProcessor.Process(ctx, parent, blk, state)
	if err != nil {
		return err
	}
	err = b.commit(ctx, blk, receipts, state)
	if err != nil {
		return err
	}
	log.Infof("Successfully processed block %v (%v): txn %v gas used %v", blk.NumberU64(), blk.Hash(), len(receipts), gasUsed)
	return nil
}

// SubscribeChainHeadEvent registers a subscription of ChainHeadEvent.
func (b *BackendImpl) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return b.scope.Track(b.chainHeadFeed.Subscribe(ch))
}

// Shutdown safely shuts the backend down.
func (b *BackendImpl) Shutdown() {
	log.Infof("Close backend...")
	b.scope.Close()
	log.Infof("Backend closed successfully.")
}

// prepareHeader prepares the header of the next block on top of parent.
func (b *BackendImpl) prepareHeader(parent *types.Header, timestamp uint64) *types.Header {
	if timestamp <= parent.Time {
		timestamp = parent.Time + 1
	}
	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		GasLimit:   parent.GasLimit,
		Time:       timestamp,
		Coinbase:   b.opts.Coinbase,
		Difficulty: common.Big0,
		MixDigest:  crypto.Keccak256Hash(parent.Hash().Bytes()),
	}
	if b.chainConfig.IsLondon(header.Number) {
		header.BaseFee = eip1559.CalcBaseFee(b.chainConfig, parent)
	}
	if b.chainConfig.IsCancun(header.Number, header.Time) {
		var excessBlobGas uint64
		if parent.ExcessBlobGas != nil && parent.BlobGasUsed != nil {
			excessBlobGas = eip4844.CalcExcessBlobGas(*parent.ExcessBlobGas, *parent.BlobGasUsed)
		}
		header.ExcessBlobGas = &excessBlobGas
		header.BlobGasUsed = new(uint64)
		header.ParentBeaconRoot = new(common.Hash)
	}
	return header
}

// commit adds the state changes of the block to the archive, then the block to the chain.
func (b *BackendImpl) commit(ctx context.Context, blk *types.Block, receipts types.Receipts, state worldstate.MutableState) error {
	if err := state.Error(); err != nil {
		return err
	}
	_, err := b.sa.AddLayer(state.LayerLog(blk.NumberU64(), blk.Hash(), blk.ParentHash()))
	if err != nil {
		return err
	}
	err = b.bc.AddBlock(ctx, blk, receipts)
	if err != nil {
		return err
	}
	metrics.BlockImported(blk.NumberU64())
	b.chainHeadFeed.Send(core.ChainHeadEvent{Block: blk})
	return nil
}

// replay rebuilds the layers above the persisted state up to the chain head.
func (b *BackendImpl) replay(ctx context.Context) error {
	head, err := b.bc.GetHead(ctx)
	if err != nil {
		return err
	}
	from := b.sa.PersistedHeight() + 1
	if from <= head.NumberU64() {
		log.Infof("Rebuild state layers from %v to %v", from, head.NumberU64())
	}
	for height := from; height <= head.NumberU64(); height++ {
		blk, err := b.bc.GetBlockByNumber(ctx, height)
		if err != nil {
			return fmt.Errorf("fail to load block %v to rebuild state: %w", height, err)
		}
		layerLog, err := b.sstore.GetLayerLog(height, blk.Hash())
		if err != nil {
			if !errors.Is(err, datastore.ErrNotFound) {
				return err
			}
			log.Warnf("Layer log of block %v-%v not found, re-execute block", height, blk.Hash())
			layerLog, err = b.reexecute(ctx, blk)
			if err != nil {
				return err
			}
		}
		_, err = b.sa.AddLayer(layerLog)
		if err != nil {
			return err
		}
	}
	return nil
}

// reexecute executes the block again on top of its parent state to get its layer log.
func (b *BackendImpl) reexecute(ctx context.Context, blk *types.Block) (itypes.LayerLog, error) {
	parent, err := b.bc.GetHeaderByHash(ctx, blk.ParentHash())
	if err != nil {
		return itypes.LayerLog{}, err
	}
	snap, err := b.sa.GetSnapshot(parent.Number.Uint64(), parent.Hash())
	if err != nil {
		return itypes.LayerLog{}, err
	}
	state := worldstate.NewMutableState(snap)
	_, _, _, err = b.blkProcessor.Process(ctx, parent, blk, state)
	if err != nil {
		return itypes.LayerLog{}, err
	}
	if err = state.Error(); err != nil {
		return itypes.LayerLog{}, err
	}
	return state.LayerLog(blk.NumberU64(), blk.Hash(), blk.ParentHash()), nil
}
