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
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/eth/gasprice"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/wcgcyx/callsim/backend"
)

// Note:
// This is adapted from:
// 		go-ethereum@v1.14.8/internal/ethapi/api.go
// 		go-ethereum@v1.14.8/eth/gasprice/gasprice.go

type feeHistoryResult struct {
	OldestBlock      *hexutil.Big     `json:"oldestBlock"`
	Reward           [][]*hexutil.Big `json:"reward,omitempty"`
	BaseFee          []*hexutil.Big   `json:"baseFeePerGas,omitempty"`
	GasUsedRatio     []float64        `json:"gasUsedRatio"`
	BlobBaseFee      []*hexutil.Big   `json:"baseFeePerBlobGas,omitempty"`
	BlobGasUsedRatio []float64        `json:"blobGasUsedRatio,omitempty"`
}

// newOracle creates the gas price oracle over the local chain.
func newOracle(be backend.Backend) *gasprice.Oracle {
	return gasprice.NewOracle(&oracleBackend{be: be}, ethconfig.FullNodeGPO, big.NewInt(params.GWei))
}

// oracleBackend serves the gas price oracle from the local chain.
type oracleBackend struct {
	be backend.Backend
}

func (ob *oracleBackend) HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error) {
	block, err := ob.BlockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return block.Header(), nil
}

func (ob *oracleBackend) BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error) {
	block, err := getBlockByNumber(ctx, ob.be, number)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errors.New("block not found")
	}
	return block, nil
}

func (ob *oracleBackend) GetReceipts(ctx context.Context, hash common.Hash) (types.Receipts, error) {
	return ob.be.Blockchain().GetReceipts(ctx, hash)
}

// Pending returns nothing as there is no pending block, the oracle falls back to the head.
func (ob *oracleBackend) Pending() (*types.Block, types.Receipts, *state.StateDB) {
	return nil, nil, nil
}

func (ob *oracleBackend) ChainConfig() *params.ChainConfig {
	return ob.be.ChainConfig()
}

func (ob *oracleBackend) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return ob.be.SubscribeChainHeadEvent(ch)
}
