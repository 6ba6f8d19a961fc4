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

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/wcgcyx/callsim/backend"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/metrics"
	"github.com/wcgcyx/callsim/override"
	"github.com/wcgcyx/callsim/worldstate"
)

// Note:
// This is adapted from:
// 		go-ethereum@v1.14.8/internal/ethapi/api.go

// DoEstimateGas returns the lowest gas limit the call succeeds with on top of the state after the given block.
func DoEstimateGas(ctx context.Context, be backend.Backend, args TransactionArgs, blockNrOrHash rpc.BlockNumberOrHash, overrides override.StateOverride, blockOverrides *override.BlockOverrides, gasCap uint64) (hexutil.Uint64, error) {
	// Retrieve the base state and mutate it with any overrides
	snap, header, err := stateAndHeaderByNumberOrHash(ctx, be, blockNrOrHash)
	if err != nil {
		return 0, err
	}
	snap, err = override.Apply(snap, overrides)
	if err != nil {
		return 0, err
	}
	blockCtx := be.Processor().BlockContext(ctx, header)
	blockOverrides.Apply(&blockCtx)

	// Construct the gas estimator option from the user input
	opts := &executor.EstimateOpts{
		Env: &executor.Env{
			ChainConfig: be.ChainConfig(),
			BlockCtx:    blockCtx,
			NoBaseFee:   true,
		},
		NewState:   func() worldstate.MutableState { return worldstate.NewMutableState(snap) },
		ErrorRatio: executor.DefaultErrorRatio,
	}
	// Set any required transaction default, but make sure the gas cap itself is not messed with
	// if it was not specified in the original argument list.
	if args.Gas == nil {
		args.Gas = new(hexutil.Uint64)
	}
	if err := args.CallDefaults(gasCap, blockCtx.BaseFee, be.ChainConfig().ChainID); err != nil {
		return 0, err
	}
	call := args.ToMessage(blockCtx.BaseFee)

	// Run the gas estimation and wrap any revertals into a custom return
	metrics.Execution("estimate")
	estimate, revert, err := be.Executor().EstimateGas(ctx, opts, call, gasCap)
	if err != nil {
		if len(revert) > 0 {
			return 0, newRevertError(revert)
		}
		return 0, err
	}
	return hexutil.Uint64(estimate), nil
}
