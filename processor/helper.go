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
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/wcgcyx/callsim/blockchain"
	"github.com/wcgcyx/callsim/executor"
	itypes "github.com/wcgcyx/callsim/types"
	"github.com/wcgcyx/callsim/worldstate"
)

type chainContext struct {
	ctx   context.Context
	chain blockchain.Blockchain
}

// NewChainContext creates a new chain context
func NewChainContext(ctx context.Context, chain blockchain.Blockchain) core.ChainContext {
	return &chainContext{
		ctx:   ctx,
		chain: chain,
	}
}

// Engine retrieves the chain's consensus engine.
// Blocks are sealed locally and the author is always given, so there is none.
func (c *chainContext) Engine() consensus.Engine {
	return nil
}

// GetHeader returns the header corresponding to the hash/number argument pair.
func (c *chainContext) GetHeader(hash common.Hash, height uint64) *types.Header {
	header, err := c.chain.GetHeaderByHash(c.ctx, hash)
	if err != nil {
		log.Debugf("Fail to get header by hash for %v-%v: %v", height, hash, err.Error())
		return nil
	}
	return header
}

// processBeaconBlockRoot applies the EIP-4788 system call to the beacon block root
// contract.
func processBeaconBlockRoot(beaconRoot common.Hash, env *executor.Env, state worldstate.MutableState) {
	msg := &core.Message{
		From:      params.SystemAddress,
		GasLimit:  30_000_000,
		GasPrice:  common.Big0,
		GasFeeCap: common.Big0,
		GasTipCap: common.Big0,
		To:        &params.BeaconRootsAddress,
		Data:      beaconRoot[:],
	}
	vmenv := vm.NewEVM(env.BlockCtx, core.NewEVMTxContext(msg), state, env.ChainConfig, vm.Config{})
	state.AddAddressToAccessList(params.BeaconRootsAddress)
	_, _, _ = vmenv.Call(vm.AccountRef(msg.From), *msg.To, msg.Data, 30_000_000, common.U2560)
	state.Finalise(true)
}

// applyTransaction applies a transaction to state and creates its receipt.
// The block hash of the receipt and its logs are left empty.
func (p *BlockProcessor) applyTransaction(ctx context.Context, env *executor.Env, msg *core.Message, state worldstate.MutableState, blockNumber *big.Int, tx *types.Transaction, usedGas *uint64) (*types.Receipt, error) {
	// Apply the transaction to the current state, state is finalised on success.
	result, err := p.exec.ApplyMessage(ctx, env, state, msg, nil)
	if err != nil {
		return nil, err
	}
	*usedGas += result.UsedGas

	// Create a new receipt for the transaction, storing the gas used by the tx.
	receipt := &types.Receipt{Type: tx.Type(), CumulativeGasUsed: *usedGas}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	receipt.TxHash = tx.Hash()
	receipt.GasUsed = result.UsedGas

	if tx.Type() == types.BlobTxType {
		receipt.BlobGasUsed = uint64(len(tx.BlobHashes()) * params.BlobTxBlobGasPerBlob)
		receipt.BlobGasPrice = env.BlockCtx.BlobBaseFee
	}

	// If the transaction created a contract, store the creation address in the receipt.
	if msg.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(msg.From, tx.Nonce())
	}

	// Set the receipt logs and create the bloom filter.
	receipt.Logs = state.GetLogs(tx.Hash(), blockNumber.Uint64(), common.Hash{})
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	receipt.BlockNumber = blockNumber
	receipt.TransactionIndex = uint(state.TxIndex())
	return receipt, nil
}

// layerRoot commits to the parent root and the state changes of a block.
// It stands in for the state trie root, which is never built.
func layerRoot(parentRoot common.Hash, layerLog itypes.LayerLog) common.Hash {
	hasher := crypto.NewKeccakState()
	hasher.Write(parentRoot.Bytes())

	addrs := make([]common.Address, 0, len(layerLog.UpdatedAccounts))
	for addr := range layerLog.UpdatedAccounts {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int { return a.Cmp(b) })
	for _, addr := range addrs {
		acct := layerLog.UpdatedAccounts[addr]
		bs := make([]byte, itypes.SizeAccountValue(acct))
		itypes.MarshalAccountValue(acct, bs)
		hasher.Write(addr.Bytes())
		hasher.Write(bs)
	}

	storageKeys := make([]string, 0, len(layerLog.UpdatedStorage))
	for key := range layerLog.UpdatedStorage {
		storageKeys = append(storageKeys, key)
	}
	slices.SortFunc(storageKeys, strings.Compare)
	for _, key := range storageKeys {
		hasher.Write([]byte(key))
		slots := layerLog.UpdatedStorage[key]
		keys := make([]common.Hash, 0, len(slots))
		for k := range slots {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b common.Hash) int { return a.Cmp(b) })
		for _, k := range keys {
			v := slots[k]
			hasher.Write(k.Bytes())
			hasher.Write(v.Bytes())
		}
	}

	var root common.Hash
	hasher.Read(root[:])
	return root
}
