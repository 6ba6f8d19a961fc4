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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/wcgcyx/callsim/blockchain"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/processor"
	"github.com/wcgcyx/callsim/worldstate"
)

type Backend interface {
	// Processor gets the current block processor.
	Processor() *processor.BlockProcessor

	// Executor gets the executor shared by calls and blocks.
	Executor() *executor.Executor

	// ChainConfig gets the current chain config.
	ChainConfig() *params.ChainConfig

	// Blockchain gets the blockchain instance.
	Blockchain() blockchain.Blockchain

	// StateArchive gets the state archive instance.
	StateArchive() worldstate.Archive

	// StateAtBlock gets the snapshot of the state after the given block.
	StateAtBlock(ctx context.Context, header *types.Header) (worldstate.Snapshot, error)

	// StateAtTransaction gets the state right before the transaction at txIndex of the block,
	// together with the message of that transaction and the block context.
	StateAtTransaction(ctx context.Context, block *types.Block, txIndex int) (*core.Message, vm.BlockContext, worldstate.MutableState, error)

	// SealBlock executes the transactions on top of the head and imports the result as the new head.
	// It returns the sealed block and the transactions that could not be included.
	SealBlock(ctx context.Context, txs []*types.Transaction, timestamp uint64) (*types.Block, []*types.Transaction, error)

	// ImportBlock process and import a block built on top of the head.
	ImportBlock(ctx context.Context, blk *types.Block) error

	// SubscribeChainHeadEvent registers a subscription of ChainHeadEvent.
	SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription

	// Shutdown safely shuts the backend down.
	Shutdown()
}

// Opts is the options for the backend.
type Opts struct {
	// Fee recipient of sealed blocks
	Coinbase common.Address
}
