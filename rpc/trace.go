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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/tracers"
	"github.com/wcgcyx/callsim/backend"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/metrics"
	"github.com/wcgcyx/callsim/override"
	ctracers "github.com/wcgcyx/callsim/tracers"
	"github.com/wcgcyx/callsim/worldstate"
)

// Note:
// This is adapted from:
// 		go-ethereum@v1.14.8/eth/tracers/api.go

// defaultTraceTimeout is the amount of time a single transaction can execute
// by default before being forcefully aborted.
const defaultTraceTimeout = 5 * time.Second

var errExecutionTimeout = errors.New("execution timeout")

// TraceCallConfig is the config for traceCall API. It holds one more
// field to override the state for tracing.
type TraceCallConfig struct {
	tracers.TraceConfig
	StateOverrides *override.StateOverride
	BlockOverrides *override.BlockOverrides
}

// txTraceResult is the result of a single transaction trace.
type txTraceResult struct {
	TxHash common.Hash     `json:"txHash"`           // transaction hash
	Result json.RawMessage `json:"result,omitempty"` // Trace results produced by the tracer
	Error  string          `json:"error,omitempty"`  // Trace failure produced by the tracer
}

// newTracer creates the tracer of the given config, the struct logger if none is named.
func newTracer(txctx *tracers.Context, config *tracers.TraceConfig) (*tracers.Tracer, error) {
	if config.Tracer == nil {
		return ctracers.NewStructLogger(config.Config), nil
	}
	return ctracers.New(*config.Tracer, txctx, config.TracerConfig)
}

// traceTx configures a new tracer according to the provided configuration, and
// executes the given message in the provided environment. The return value will
// be tracer dependent.
func traceTx(ctx context.Context, exec *executor.Executor, message *core.Message, txctx *tracers.Context, env *executor.Env, state worldstate.MutableState, config *tracers.TraceConfig, defaultTimeout time.Duration) (json.RawMessage, error) {
	if config == nil {
		config = &tracers.TraceConfig{}
	}
	tracer, err := newTracer(txctx, config)
	if err != nil {
		return nil, err
	}
	// Define a meaningful timeout of a single transaction trace
	timeout := defaultTimeout
	if timeout <= 0 {
		timeout = defaultTraceTimeout
	}
	if config.Timeout != nil {
		if timeout, err = time.ParseDuration(*config.Timeout); err != nil {
			return nil, err
		}
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-deadlineCtx.Done()
		if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			log.Warnf("Trace of %v stopped after %v", txctx.TxHash, timeout)
			tracer.Stop(errExecutionTimeout)
		}
	}()

	// Call Prepare to clear out the statedb access list
	state.SetTxContext(txctx.TxHash, txctx.TxIndex)
	metrics.Execution("trace")
	_, err = exec.ApplyMessage(deadlineCtx, env, state, message, tracer.Hooks)
	if err != nil {
		if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			return nil, errExecutionTimeout
		}
		return nil, fmt.Errorf("tracing failed: %w", err)
	}
	return tracer.GetResult()
}

// traceCall traces the call built from the given arguments on top of the state after the given block.
func traceCall(ctx context.Context, be backend.Backend, args TransactionArgs, snap worldstate.Snapshot, header *types.Header, config *TraceCallConfig, gasCap uint64, defaultTimeout time.Duration) (json.RawMessage, error) {
	var (
		stateOverrides override.StateOverride
		blockOverrides *override.BlockOverrides
		traceConfig    *tracers.TraceConfig
	)
	if config != nil {
		if config.StateOverrides != nil {
			stateOverrides = *config.StateOverrides
		}
		blockOverrides = config.BlockOverrides
		traceConfig = &config.TraceConfig
	}
	env, state, msg, err := prepareCall(ctx, be, &args, snap, header, stateOverrides, blockOverrides, gasCap)
	if err != nil {
		return nil, err
	}
	txctx := &tracers.Context{
		BlockNumber: env.BlockCtx.BlockNumber,
	}
	return traceTx(ctx, be.Executor(), msg, txctx, env, state, traceConfig, defaultTimeout)
}

// traceTransaction replays the block up to the transaction and traces it.
func traceTransaction(ctx context.Context, be backend.Backend, hash common.Hash, config *tracers.TraceConfig, defaultTimeout time.Duration) (json.RawMessage, error) {
	tx, blockHash, index, found, err := be.Blockchain().GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewTxIndexingError()
	}
	block, err := be.Blockchain().GetBlockByHash(ctx, blockHash)
	if err != nil {
		return nil, err
	}
	msg, blockCtx, state, err := be.StateAtTransaction(ctx, block, int(index))
	if err != nil {
		return nil, err
	}
	txctx := &tracers.Context{
		BlockHash:   blockHash,
		BlockNumber: block.Number(),
		TxIndex:     int(index),
		TxHash:      hash,
	}
	env := &executor.Env{
		ChainConfig: be.ChainConfig(),
		BlockCtx:    blockCtx,
		Tx:          tx,
		NoBaseFee:   true,
	}
	return traceTx(ctx, be.Executor(), msg, txctx, env, state, config, defaultTimeout)
}

// traceBlock configures a new tracer according to the provided configuration, and
// executes all the transactions contained within. The return value will be one item
// per transaction, dependent on the requested tracer.
func traceBlock(ctx context.Context, be backend.Backend, block *types.Block, config *tracers.TraceConfig, defaultTimeout time.Duration) ([]*txTraceResult, error) {
	if block.NumberU64() == 0 {
		return nil, errors.New("genesis is not traceable")
	}
	var (
		txs       = block.Transactions()
		blockHash = block.Hash()
		signer    = types.MakeSigner(be.ChainConfig(), block.Number(), block.Time())
		results   = make([]*txTraceResult, len(txs))
	)
	if len(txs) == 0 {
		return results, nil
	}
	// The state before the first transaction, every trace then advances it by one transaction.
	_, blockCtx, state, err := be.StateAtTransaction(ctx, block, 0)
	if err != nil {
		return nil, err
	}
	for i, tx := range txs {
		msg, err := core.TransactionToMessage(tx, signer, block.BaseFee())
		if err != nil {
			return nil, fmt.Errorf("could not apply tx %d [%v]: %w", i, tx.Hash().Hex(), err)
		}
		txctx := &tracers.Context{
			BlockHash:   blockHash,
			BlockNumber: block.Number(),
			TxIndex:     i,
			TxHash:      tx.Hash(),
		}
		env := &executor.Env{
			ChainConfig: be.ChainConfig(),
			BlockCtx:    blockCtx,
			Tx:          tx,
			NoBaseFee:   true,
		}
		res, err := traceTx(ctx, be.Executor(), msg, txctx, env, state, config, defaultTimeout)
		if err != nil {
			// The state is left mid transaction, the rest of the block cannot be traced
			return nil, err
		}
		results[i] = &txTraceResult{TxHash: tx.Hash(), Result: res}
	}
	return results, nil
}
