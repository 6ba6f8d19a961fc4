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

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
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

// DoCall executes the call on top of the state after the given block.
func DoCall(ctx context.Context, be backend.Backend, args TransactionArgs, blockNrOrHash rpc.BlockNumberOrHash, overrides override.StateOverride, blockOverrides *override.BlockOverrides, timeout time.Duration, globalGasCap uint64) (*executor.ExecutionResult, error) {
	defer func(start time.Time) { log.Debugf("Executing EVM call finished, runtime %v", time.Since(start)) }(time.Now())

	snap, header, err := stateAndHeaderByNumberOrHash(ctx, be, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return doCall(ctx, be, args, snap, header, overrides, blockOverrides, timeout, globalGasCap)
}

func doCall(ctx context.Context, be backend.Backend, args TransactionArgs, snap worldstate.Snapshot, header *types.Header, overrides override.StateOverride, blockOverrides *override.BlockOverrides, timeout time.Duration, globalGasCap uint64) (*executor.ExecutionResult, error) {
	env, state, msg, err := prepareCall(ctx, be, &args, snap, header, overrides, blockOverrides, globalGasCap)
	if err != nil {
		return nil, err
	}
	env.Timeout = timeout

	metrics.Execution("call")
	result, err := be.Executor().ApplyMessage(ctx, env, state, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("err: %w (supplied gas %d)", err, msg.GasLimit)
	}
	return result, nil
}

// prepareCall builds the environment, the pre-state and the message of a call.
// The pre-state is a fresh mutable state over the overridden snapshot, so the call never
// changes the snapshot it runs on.
func prepareCall(ctx context.Context, be backend.Backend, args *TransactionArgs, snap worldstate.Snapshot, header *types.Header, overrides override.StateOverride, blockOverrides *override.BlockOverrides, globalGasCap uint64) (*executor.Env, worldstate.MutableState, *core.Message, error) {
	snap, err := override.Apply(snap, overrides)
	if err != nil {
		return nil, nil, nil, err
	}
	blockCtx := be.Processor().BlockContext(ctx, header)
	blockOverrides.Apply(&blockCtx)
	if err := args.CallDefaults(globalGasCap, blockCtx.BaseFee, be.ChainConfig().ChainID); err != nil {
		return nil, nil, nil, err
	}
	msg := args.ToMessage(blockCtx.BaseFee)
	env := &executor.Env{
		ChainConfig: be.ChainConfig(),
		BlockCtx:    blockCtx,
		NoBaseFee:   true,
	}
	return env, worldstate.NewMutableState(snap), msg, nil
}
