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
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/eth/tracers"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/wcgcyx/callsim/backend"
)

// debugAPIHandler is used to handle debug API.
type debugAPIHandler struct {
	opts Opts

	be backend.Backend
}

// TraceCall lets you trace a given eth_call. It collects the structured logs
// created during the execution of EVM if the given transaction was added on
// top of the provided block and returns them as a JSON object.
func (h *debugAPIHandler) TraceCall(ctx context.Context, args TransactionArgs, blockNrOrHash rpc.BlockNumberOrHash, config *TraceCallConfig) (res json.RawMessage, err error) {
	defer observe("debug_traceCall", time.Now(), &err)
	snap, header, err := stateAndHeaderByNumberOrHash(ctx, h.be, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return traceCall(ctx, h.be, args, snap, header, config, h.opts.RPCGasCap, h.opts.RPCTraceTimeout)
}

// TraceTransaction returns the structured logs created during the execution of EVM
// and returns them as a JSON object.
func (h *debugAPIHandler) TraceTransaction(ctx context.Context, hash common.Hash, config *tracers.TraceConfig) (res json.RawMessage, err error) {
	defer observe("debug_traceTransaction", time.Now(), &err)
	return traceTransaction(ctx, h.be, hash, config, h.opts.RPCTraceTimeout)
}

// TraceBlockByNumber returns the structured logs created during the execution of
// EVM and returns them as a JSON object.
func (h *debugAPIHandler) TraceBlockByNumber(ctx context.Context, number rpc.BlockNumber, config *tracers.TraceConfig) (res []*txTraceResult, err error) {
	defer observe("debug_traceBlockByNumber", time.Now(), &err)
	block, err := getBlockByNumber(ctx, h.be, number)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("block #%d not found", number)
	}
	return traceBlock(ctx, h.be, block, config, h.opts.RPCTraceTimeout)
}

// TraceBlockByHash returns the structured logs created during the execution of
// EVM and returns them as a JSON object.
func (h *debugAPIHandler) TraceBlockByHash(ctx context.Context, hash common.Hash, config *tracers.TraceConfig) (res []*txTraceResult, err error) {
	defer observe("debug_traceBlockByHash", time.Now(), &err)
	block, err := getBlockByHash(ctx, h.be, hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("block %#x not found", hash)
	}
	return traceBlock(ctx, h.be, block, config, h.opts.RPCTraceTimeout)
}
