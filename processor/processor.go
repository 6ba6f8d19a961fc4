package processor

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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	logging "github.com/ipfs/go-log"
	"github.com/wcgcyx/callsim/blockchain"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/worldstate"
)

// Logger
var log = logging.Logger("processor")

// BlockProcessor executes the transactions of a block through the executor.
type BlockProcessor struct {
	// Chain configuration
	config *params.ChainConfig
	// Blockchain
	chain blockchain.Blockchain
	// Executor shared with calls
	exec *executor.Executor
}

// NewBlockProcessor creates a new block processor.
func NewBlockProcessor(config *params.ChainConfig, chain blockchain.Blockchain, exec *executor.Executor) *BlockProcessor {
	return &BlockProcessor{
		config: config,
		chain:  chain,
		exec:   exec,
	}
}

// BlockContext creates the EVM block context of the given header.
func (p *BlockProcessor) BlockContext(ctx context.Context, header *types.Header) vm.BlockContext {
	return core.NewEVMBlockContext(header, NewChainContext(ctx, p.chain), &header.Coinbase)
}

// Build executes the transactions on top of the parent state and seals the
// result into a block with the given header. Transactions that fail the
// consensus checks or do not fit in the block are skipped and returned.
func (p *BlockProcessor) Build(ctx context.Context, parent *types.Header, header *types.Header, txs []*types.Transaction, state worldstate.MutableState) (*types.Block, types.Receipts, []*types.Transaction, error) {
	var (
		receipts = make(types.Receipts, 0)
		included = make([]*types.Transaction, 0)
		rejected = make([]*types.Transaction, 0)
		usedGas  = new(uint64)
		signer   = types.MakeSigner(p.config, header.Number, header.Time)
		env      = &executor.Env{
			ChainConfig: p.config,
			BlockCtx:    p.BlockContext(ctx, header),
		}
	)
	if beaconRoot := header.ParentBeaconRoot; beaconRoot != nil {
		processBeaconBlockRoot(*beaconRoot, env, state)
	}
	for _, tx := range txs {
		if tx.Gas() > header.GasLimit-*usedGas {
			log.Debugf("Skip txn %v: gas %v exceeds remaining %v", tx.Hash(), tx.Gas(), header.GasLimit-*usedGas)
			rejected = append(rejected, tx)
			continue
		}
		msg, err := core.TransactionToMessage(tx, signer, header.BaseFee)
		if err != nil {
			log.Debugf("Skip txn %v: %v", tx.Hash(), err.Error())
			rejected = append(rejected, tx)
			continue
		}
		snap := state.Snapshot()
		state.SetTxContext(tx.Hash(), len(included))
		env.Tx = tx
		receipt, err := p.applyTransaction(ctx, env, msg, state, header.Number, tx, usedGas)
		if err != nil {
			log.Debugf("Skip txn %v: %v", tx.Hash(), err.Error())
			state.RevertToSnapshot(snap)
			rejected = append(rejected, tx)
			continue
		}
		receipts = append(receipts, receipt)
		included = append(included, tx)
	}
	var withdrawals []*types.Withdrawal
	if p.config.IsShanghai(header.Number, header.Time) {
		withdrawals = make([]*types.Withdrawal, 0)
	}
	header.GasUsed = *usedGas
	header.Root = layerRoot(parent.Root, state.LayerLog(header.Number.Uint64(), common.Hash{}, parent.Hash()))
	blk := types.NewBlock(header, &types.Body{Transactions: included, Withdrawals: withdrawals}, receipts, trie.NewStackTrie(nil))
	return blk, receipts, rejected, nil
}

// Process executes every transaction of the block on top of the parent state and
// checks the outcome against the block header.
func (p *BlockProcessor) Process(ctx context.Context, parent *types.Header, block *types.Block, state worldstate.MutableState) (types.Receipts, []*types.Log, uint64, error) {
	var (
		receipts types.Receipts
		allLogs  []*types.Log
		usedGas  = new(uint64)
		header   = block.Header()
		signer   = types.MakeSigner(p.config, header.Number, header.Time)
		env      = &executor.Env{
			ChainConfig: p.config,
			BlockCtx:    p.BlockContext(ctx, header),
		}
	)
	if beaconRoot := block.BeaconRoot(); beaconRoot != nil {
		processBeaconBlockRoot(*beaconRoot, env, state)
	}
	for i, tx := range block.Transactions() {
		msg, err := core.TransactionToMessage(tx, signer, header.BaseFee)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash().Hex(), err)
		}
		state.SetTxContext(tx.Hash(), i)
		env.Tx = tx
		receipt, err := p.applyTransaction(ctx, env, msg, state, header.Number, tx, usedGas)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash().Hex(), err)
		}
		receipts = append(receipts, receipt)
		allLogs = append(allLogs, receipt.Logs...)
	}
	if *usedGas != header.GasUsed {
		return nil, nil, 0, fmt.Errorf("invalid gas used (remote: %d local: %d)", header.GasUsed, *usedGas)
	}
	receiptSha := types.DeriveSha(receipts, trie.NewStackTrie(nil))
	if receiptSha != header.ReceiptHash {
		return nil, nil, 0, fmt.Errorf("invalid receipt root hash (remote: %x local: %x)", header.ReceiptHash, receiptSha)
	}
	root := layerRoot(parent.Root, state.LayerLog(header.Number.Uint64(), common.Hash{}, parent.Hash()))
	if root != header.Root {
		return nil, nil, 0, fmt.Errorf("invalid merkle root (remote: %x local: %x)", header.Root, root)
	}
	return receipts, allLogs, *usedGas, nil
}

// StateAtTransaction replays the transactions before txIndex on top of the parent state
// and returns the message and block context of the transaction at txIndex.
func (p *BlockProcessor) StateAtTransaction(ctx context.Context, block *types.Block, txIndex int, state worldstate.MutableState) (*core.Message, vm.BlockContext, error) {
	if txIndex < 0 || txIndex >= len(block.Transactions()) {
		return nil, vm.BlockContext{}, fmt.Errorf("transaction index %d out of range for block %#x", txIndex, block.Hash())
	}
	var (
		header  = block.Header()
		usedGas = new(uint64)
		signer  = types.MakeSigner(p.config, header.Number, header.Time)
		env     = &executor.Env{
			ChainConfig: p.config,
			BlockCtx:    p.BlockContext(ctx, header),
		}
	)
	if beaconRoot := block.BeaconRoot(); beaconRoot != nil {
		processBeaconBlockRoot(*beaconRoot, env, state)
	}
	for i, tx := range block.Transactions() {
		msg, err := core.TransactionToMessage(tx, signer, header.BaseFee)
		if err != nil {
			return nil, vm.BlockContext{}, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash().Hex(), err)
		}
		state.SetTxContext(tx.Hash(), i)
		if i == txIndex {
			return msg, env.BlockCtx, nil
		}
		env.Tx = tx
		_, err = p.applyTransaction(ctx, env, msg, state, header.Number, tx, usedGas)
		if err != nil {
			return nil, vm.BlockContext{}, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash().Hex(), err)
		}
	}
	return nil, vm.BlockContext{}, fmt.Errorf("transaction index %d out of range for block %#x", txIndex, block.Hash())
}
