package rpc

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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/gasprice"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/wcgcyx/callsim/backend"
	"github.com/wcgcyx/callsim/node"
	"github.com/wcgcyx/callsim/override"
	"github.com/wcgcyx/callsim/worldstate"
)

// Note:
// This is adapted from:
// 		go-ethereum@v1.14.8/internal/ethapi/api.go

// ethAPIHandler is used to handle eth API.
type ethAPIHandler struct {
	opts Opts

	node   *node.Node
	be     backend.Backend
	oracle *gasprice.Oracle
}

func (h *ethAPIHandler) BlobBaseFee(ctx context.Context) (res *hexutil.Big, err error) {
	defer observe("eth_blobBaseFee", time.Now(), &err)
	blk, err := h.be.Blockchain().GetHead(ctx)
	if err != nil {
		return nil, err
	}
	if excess := blk.ExcessBlobGas(); excess != nil {
		return (*hexutil.Big)(eip4844.CalcBlobFee(*excess)), nil
	}
	return nil, nil
}

func (h *ethAPIHandler) BlockNumber(ctx context.Context) (res hexutil.Uint64, err error) {
	defer observe("eth_blockNumber", time.Now(), &err)
	blk, err := h.be.Blockchain().GetHead(ctx)
	if err != nil {
		return hexutil.Uint64(0), err
	}
	return hexutil.Uint64(blk.NumberU64()), nil
}

func (h *ethAPIHandler) Call(ctx context.Context, args TransactionArgs, blockNrOrHash *rpc.BlockNumberOrHash, overrides *override.StateOverride, blockOverrides *override.BlockOverrides) (res hexutil.Bytes, err error) {
	defer observe("eth_call", time.Now(), &err)
	if blockNrOrHash == nil {
		latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
		blockNrOrHash = &latest
	}
	result, err := DoCall(ctx, h.be, args, *blockNrOrHash, derefOverrides(overrides), blockOverrides, h.opts.RPCEVMTimeout, h.opts.RPCGasCap)
	if err != nil {
		return nil, err
	}
	// If the result contains a revert reason, try to unpack and return it.
	if len(result.Revert()) > 0 {
		return nil, newRevertError(result.Revert())
	}
	return result.Return(), result.Err
}

func (h *ethAPIHandler) ChainId() *hexutil.Big {
	defer observe("eth_chainId", time.Now(), nil)
	return (*hexutil.Big)(h.be.ChainConfig().ChainID)
}

func (h *ethAPIHandler) EstimateGas(ctx context.Context, args TransactionArgs, blockNrOrHash *rpc.BlockNumberOrHash, overrides *override.StateOverride, blockOverrides *override.BlockOverrides) (res hexutil.Uint64, err error) {
	defer observe("eth_estimateGas", time.Now(), &err)
	bNrOrHash := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
	if blockNrOrHash != nil {
		bNrOrHash = *blockNrOrHash
	}
	return DoEstimateGas(ctx, h.be, args, bNrOrHash, derefOverrides(overrides), blockOverrides, h.opts.RPCGasCap)
}

func (h *ethAPIHandler) GetBalance(ctx context.Context, address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (res *hexutil.Big, err error) {
	defer observe("eth_getBalance", time.Now(), &err)
	snap, _, err := stateAndHeaderByNumberOrHash(ctx, h.be, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	b, err := worldstate.GetBalance(snap, address)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(b.ToBig()), nil
}

func (h *ethAPIHandler) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (res map[string]interface{}, err error) {
	defer observe("eth_getBlockByHash", time.Now(), &err)
	block, err := getBlockByHash(ctx, h.be, hash)
	if block == nil || err != nil {
		return nil, err
	}
	return RPCMarshalBlock(block, true, fullTx, h.be.ChainConfig()), nil
}

func (h *ethAPIHandler) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (res map[string]interface{}, err error) {
	defer observe("eth_getBlockByNumber", time.Now(), &err)
	block, err := getBlockByNumber(ctx, h.be, number)
	if block == nil || err != nil {
		return nil, err
	}
	return RPCMarshalBlock(block, true, fullTx, h.be.ChainConfig()), nil
}

func (h *ethAPIHandler) GetBlockReceipts(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (res []map[string]interface{}, err error) {
	defer observe("eth_getBlockReceipts", time.Now(), &err)
	block, err := getBlockByNumberOrHash(ctx, h.be, blockNrOrHash)
	if block == nil || err != nil {
		// When the block doesn't exist, the RPC method returns JSON null.
		return nil, nil
	}
	receipts, err := h.be.Blockchain().GetReceipts(ctx, block.Hash())
	if err != nil {
		return nil, err
	}
	txs := block.Transactions()
	if len(txs) != len(receipts) {
		return nil, fmt.Errorf("receipts length mismatch: %d vs %d", len(txs), len(receipts))
	}

	// Derive the sender.
	signer := types.MakeSigner(h.be.ChainConfig(), block.Number(), block.Time())

	result := make([]map[string]interface{}, len(receipts))
	for i, receipt := range receipts {
		result[i] = marshalReceipt(receipt, block.Hash(), block.NumberU64(), signer, txs[i], i)
	}
	return result, nil
}

func (h *ethAPIHandler) GetBlockTransactionCountByHash(ctx context.Context, blockHash common.Hash) *hexutil.Uint {
	defer observe("eth_getBlockTransactionCountByHash", time.Now(), nil)
	block, err := getBlockByHash(ctx, h.be, blockHash)
	if block == nil || err != nil {
		return nil
	}
	res := hexutil.Uint(block.Transactions().Len())
	return &res
}

func (h *ethAPIHandler) GetBlockTransactionCountByNumber(ctx context.Context, blockNr rpc.BlockNumber) *hexutil.Uint {
	defer observe("eth_getBlockTransactionCountByNumber", time.Now(), nil)
	block, err := getBlockByNumber(ctx, h.be, blockNr)
	if block == nil || err != nil {
		return nil
	}
	res := hexutil.Uint(block.Transactions().Len())
	return &res
}

func (h *ethAPIHandler) GetCode(ctx context.Context, address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (res hexutil.Bytes, err error) {
	defer observe("eth_getCode", time.Now(), &err)
	snap, _, err := stateAndHeaderByNumberOrHash(ctx, h.be, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return worldstate.GetCode(snap, address)
}

func (h *ethAPIHandler) GetStorageAt(ctx context.Context, address common.Address, hexKey string, blockNrOrHash rpc.BlockNumberOrHash) (res hexutil.Bytes, err error) {
	defer observe("eth_getStorageAt", time.Now(), &err)
	snap, _, err := stateAndHeaderByNumberOrHash(ctx, h.be, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	key, _, err := decodeHash(hexKey)
	if err != nil {
		return nil, fmt.Errorf("unable to decode storage key: %s", err)
	}
	val, err := worldstate.GetState(snap, address, key)
	if err != nil {
		return nil, err
	}
	return val[:], nil
}

func (h *ethAPIHandler) GetTransactionByBlockHashAndIndex(ctx context.Context, blockHash common.Hash, index hexutil.Uint) *RPCTransaction {
	defer observe("eth_getTransactionByBlockHashAndIndex", time.Now(), nil)
	block, err := getBlockByHash(ctx, h.be, blockHash)
	if block == nil || err != nil {
		return nil
	}
	return newRPCTransactionFromBlockIndex(block, uint64(index), h.be.ChainConfig())
}

func (h *ethAPIHandler) GetTransactionByBlockNumberAndIndex(ctx context.Context, blockNr rpc.BlockNumber, index hexutil.Uint) *RPCTransaction {
	defer observe("eth_getTransactionByBlockNumberAndIndex", time.Now(), nil)
	block, err := getBlockByNumber(ctx, h.be, blockNr)
	if block == nil || err != nil {
		return nil
	}
	return newRPCTransactionFromBlockIndex(block, uint64(index), h.be.ChainConfig())
}

func (h *ethAPIHandler) GetTransactionByHash(ctx context.Context, hash common.Hash) (res *RPCTransaction, err error) {
	defer observe("eth_getTransactionByHash", time.Now(), &err)
	tx, blkHash, index, exists, err := h.be.Blockchain().GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !exists {
		// Unknown transactions are reported as null
		return nil, nil
	}
	header, err := h.be.Blockchain().GetHeaderByHash(ctx, blkHash)
	if err != nil {
		return nil, err
	}
	return newRPCTransaction(tx, blkHash, header.Number.Uint64(), header.Time, index, header.BaseFee, h.be.ChainConfig()), nil
}

func (h *ethAPIHandler) GetTransactionCount(ctx context.Context, address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (res *hexutil.Uint64, err error) {
	defer observe("eth_getTransactionCount", time.Now(), &err)
	snap, _, err := stateAndHeaderByNumberOrHash(ctx, h.be, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	nonce, err := worldstate.GetNonce(snap, address)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Uint64)(&nonce), nil
}

func (h *ethAPIHandler) GetTransactionReceipt(ctx context.Context, hash common.Hash) (res map[string]interface{}, err error) {
	defer observe("eth_getTransactionReceipt", time.Now(), &err)
	tx, _, _, exists, err := h.be.Blockchain().GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	receipt, blkHash, index, exists, err := h.be.Blockchain().GetReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NewTxIndexingError()
	}
	header, err := h.be.Blockchain().GetHeaderByHash(ctx, blkHash)
	if err != nil {
		return nil, err
	}
	// Derive the sender.
	signer := types.MakeSigner(h.be.ChainConfig(), header.Number, header.Time)
	return marshalReceipt(receipt, blkHash, header.Number.Uint64(), signer, tx, int(index)), nil
}

func (h *ethAPIHandler) GetUncleCountByBlockNumber(ctx context.Context, blockNr rpc.BlockNumber) (res *hexutil.Uint, err error) {
	defer observe("eth_getUncleCountByBlockNumber", time.Now(), &err)
	block, err := getBlockByNumber(ctx, h.be, blockNr)
	if block == nil || err != nil {
		return nil, err
	}
	n := hexutil.Uint(len(block.Uncles()))
	return &n, nil
}

func (h *ethAPIHandler) GetUncleCountByBlockHash(ctx context.Context, blockHash common.Hash) (res *hexutil.Uint, err error) {
	defer observe("eth_getUncleCountByBlockHash", time.Now(), &err)
	block, err := getBlockByHash(ctx, h.be, blockHash)
	if block == nil || err != nil {
		return nil, err
	}
	n := hexutil.Uint(len(block.Uncles()))
	return &n, nil
}

// SendRawTransaction will add the signed transaction to the seal queue.
// The sender is responsible for signing the transaction and using the correct nonce.
func (h *ethAPIHandler) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (res common.Hash, err error) {
	defer observe("eth_sendRawTransaction", time.Now(), &err)
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	return h.node.SubmitTransaction(ctx, tx)
}

func (h *ethAPIHandler) FeeHistory(ctx context.Context, blockCount math.HexOrDecimal64, lastBlock rpc.BlockNumber, rewardPercentiles []float64) (res *feeHistoryResult, err error) {
	defer observe("eth_feeHistory", time.Now(), &err)
	oldest, reward, baseFee, gasUsed, blobBaseFee, blobGasUsed, err := h.oracle.FeeHistory(ctx, uint64(blockCount), lastBlock, rewardPercentiles)
	if err != nil {
		return nil, err
	}
	results := &feeHistoryResult{
		OldestBlock:  (*hexutil.Big)(oldest),
		GasUsedRatio: gasUsed,
	}
	if reward != nil {
		results.Reward = make([][]*hexutil.Big, len(reward))
		for i, w := range reward {
			results.Reward[i] = make([]*hexutil.Big, len(w))
			for j, v := range w {
				results.Reward[i][j] = (*hexutil.Big)(v)
			}
		}
	}
	if baseFee != nil {
		results.BaseFee = make([]*hexutil.Big, len(baseFee))
		for i, v := range baseFee {
			results.BaseFee[i] = (*hexutil.Big)(v)
		}
	}
	if blobBaseFee != nil {
		results.BlobBaseFee = make([]*hexutil.Big, len(blobBaseFee))
		for i, v := range blobBaseFee {
			results.BlobBaseFee[i] = (*hexutil.Big)(v)
		}
	}
	if blobGasUsed != nil {
		results.BlobGasUsedRatio = blobGasUsed
	}
	return results, nil
}

func (h *ethAPIHandler) GasPrice(ctx context.Context) (res *hexutil.Big, err error) {
	defer observe("eth_gasPrice", time.Now(), &err)
	tipcap, err := h.oracle.SuggestTipCap(ctx)
	if err != nil {
		return nil, err
	}
	headBlk, err := h.be.Blockchain().GetHead(ctx)
	if err != nil {
		return nil, err
	}
	if head := headBlk.Header(); head.BaseFee != nil {
		tipcap.Add(tipcap, head.BaseFee)
	}
	return (*hexutil.Big)(tipcap), nil
}

func (h *ethAPIHandler) MaxPriorityFeePerGas(ctx context.Context) (res *hexutil.Big, err error) {
	defer observe("eth_maxPriorityFeePerGas", time.Now(), &err)
	tipcap, err := h.oracle.SuggestTipCap(ctx)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(tipcap), nil
}

// derefOverrides gets the state overrides of an optional argument.
func derefOverrides(overrides *override.StateOverride) override.StateOverride {
	if overrides == nil {
		return nil
	}
	return *overrides
}
