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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/stretchr/testify/assert"
	"github.com/wcgcyx/callsim/override"
	"github.com/wcgcyx/callsim/tracers"
)

// txArgs builds the call arguments replaying the given transaction.
func txArgs(tx *types.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"from":                 testAcct,
		"to":                   tx.To(),
		"gas":                  hexutil.Uint64(tx.Gas()),
		"maxFeePerGas":         (*hexutil.Big)(tx.GasFeeCap()),
		"maxPriorityFeePerGas": (*hexutil.Big)(tx.GasTipCap()),
		"value":                (*hexutil.Big)(tx.Value()),
		"nonce":                hexutil.Uint64(tx.Nonce()),
		"input":                hexutil.Bytes(tx.Data()),
	}
}

func TestTraceCallMatchesTraceTransaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()
	contract := env.deployStorage()
	parent := env.headNumber()
	tx := env.sendTx(&contract, hashOf(1).Bytes(), nil, 100_000)

	for _, config := range []map[string]interface{}{
		nil,
		{"tracer": "callTracer"},
		{"tracer": "prestateTracer"},
		{"tracer": "opcountTracer"},
	} {
		var byCall, byTx json.RawMessage
		assert.Nil(t, env.client.CallContext(ctx, &byCall, "debug_traceCall", txArgs(tx), hexutil.EncodeUint64(parent), config))
		assert.Nil(t, env.client.CallContext(ctx, &byTx, "debug_traceTransaction", tx.Hash(), config))
		assert.JSONEq(t, string(byTx), string(byCall))
	}

	var res logger.ExecutionResult
	assert.Nil(t, env.client.CallContext(ctx, &res, "debug_traceTransaction", tx.Hash()))
	assert.False(t, res.Failed)
	assert.Equal(t, uint64(50_000), res.Gas)
	assert.Equal(t, common.Bytes2Hex(hashOf(2).Bytes()), res.ReturnValue)
	assert.Equal(t, 8, len(res.StructLogs))
	assert.Equal(t, "SLOAD", res.StructLogs[2].Op)

	var results []*txTraceResult
	assert.Nil(t, env.client.CallContext(ctx, &results, "debug_traceBlockByNumber", hexutil.EncodeUint64(parent+1)))
	assert.Equal(t, 1, len(results))
	assert.Equal(t, tx.Hash(), results[0].TxHash)
	assert.Empty(t, results[0].Error)
}

func TestTraceCallDefaultGas(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()

	args := map[string]interface{}{
		"from":  testAcct,
		"to":    testReceiver,
		"value": (*hexutil.Big)(big.NewInt(1)),
	}
	var frame struct {
		Gas     hexutil.Uint64 `json:"gas"`
		GasUsed hexutil.Uint64 `json:"gasUsed"`
		Type    string         `json:"type"`
	}
	assert.Nil(t, env.client.CallContext(ctx, &frame, "debug_traceCall", args, "latest", map[string]interface{}{"tracer": "callTracer"}))
	assert.Equal(t, "CALL", frame.Type)
	assert.Equal(t, testGasCap, uint64(frame.Gas))
	assert.Equal(t, testGasCap/2, uint64(frame.GasUsed))

	var res logger.ExecutionResult
	assert.Nil(t, env.client.CallContext(ctx, &res, "debug_traceCall", args, "latest"))
	assert.Equal(t, testGasCap/2, res.Gas)
	assert.Empty(t, res.StructLogs)

	// A call without a price is not charged
	before, err := env.eth.BalanceAt(ctx, testAcct, nil)
	assert.Nil(t, err)
	var diff struct {
		Post map[common.Address]map[string]interface{} `json:"post"`
	}
	assert.Nil(t, env.client.CallContext(ctx, &diff, "debug_traceCall", args, "latest", map[string]interface{}{
		"tracer":       "prestateTracer",
		"tracerConfig": map[string]interface{}{"diffMode": true},
	}))
	assert.Equal(t, 2, len(diff.Post))
	assert.Equal(t, hexutil.EncodeBig(new(big.Int).Sub(before, big.NewInt(1))), diff.Post[testAcct]["balance"])
	assert.Equal(t, float64(1), diff.Post[testAcct]["nonce"])
	assert.Equal(t, "0x1", diff.Post[testReceiver]["balance"])
	_, ok := diff.Post[testReceiver]["nonce"]
	assert.False(t, ok)

	// The sender must afford the value
	args["from"] = testDead
	err = env.client.CallContext(ctx, &res, "debug_traceCall", args, "latest")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "insufficient")
}

func TestTraceCallOverridesAndConfig(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()

	payload := revertPayload("boom")
	code := hexutil.Bytes(revertCode(payload))
	config := map[string]interface{}{
		"stateOverrides": override.StateOverride{testDead: {Code: &code}},
		"disableStack":   true,
	}
	var res logger.ExecutionResult
	assert.Nil(t, env.client.CallContext(ctx, &res, "debug_traceCall", callArgs(testDead, nil), "latest", config))
	assert.True(t, res.Failed)
	assert.Equal(t, common.Bytes2Hex(payload), res.ReturnValue)
	assert.Equal(t, "REVERT", res.StructLogs[len(res.StructLogs)-1].Op)
	assert.Nil(t, res.StructLogs[0].Stack)

	var frame struct {
		Error        string `json:"error"`
		RevertReason string `json:"revertReason"`
	}
	config["tracer"] = "callTracer"
	assert.Nil(t, env.client.CallContext(ctx, &frame, "debug_traceCall", callArgs(testDead, nil), "latest", config))
	assert.Equal(t, "execution reverted", frame.Error)
	assert.Equal(t, "boom", frame.RevertReason)

	// Block overrides reach the block context
	numberBytes := hexutil.Bytes(numberCode)
	var counted []int
	assert.Nil(t, env.client.CallContext(ctx, &counted, "debug_traceCall", callArgs(testDead, nil), "latest", map[string]interface{}{
		"stateOverrides": override.StateOverride{testDead: {Code: &numberBytes}},
		"blockOverrides": override.BlockOverrides{Number: (*hexutil.Big)(big.NewInt(100))},
		"tracer":         "{n: 0, step: function() { this.n++; }, fault: function() {}, result: function(ctx) { return [this.n, ctx.block]; }}",
	}))
	assert.Equal(t, []int{6, 100}, counted)

	// Unknown tracers are rejected
	err := env.client.CallContext(ctx, &res, "debug_traceCall", callArgs(testReceiver, nil), "latest", map[string]interface{}{"tracer": "noSuchTracer"})
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), tracers.ErrTracerNotFound.Error())

	// Long running traces are stopped
	loop := hexutil.Bytes(loopCode)
	err = env.client.CallContext(ctx, &res, "debug_traceCall", callArgs(testDead, nil), "latest", map[string]interface{}{
		"stateOverrides": override.StateOverride{testDead: {Code: &loop}},
		"timeout":        "10ms",
	})
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "execution timeout")
}

func TestTraceBlockAdvancesState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()
	contract := env.deployStorage()

	// Queue several transactions of the same sender into one block
	env.node.Pause()
	txs := []*types.Transaction{
		env.sendTx(&testReceiver, nil, big.NewInt(1), 21_000),
		env.sendTx(&testReceiver, nil, big.NewInt(2), 21_000),
		env.sendTx(&contract, hashOf(1).Bytes(), nil, 100_000),
	}
	blk, err := env.node.Seal(ctx)
	assert.Nil(t, err)
	env.node.Unpause()
	assert.Equal(t, 3, len(blk.Transactions()))

	for _, config := range []map[string]interface{}{
		nil,
		{"tracer": "prestateTracer"},
		{"tracer": "prestateTracer", "tracerConfig": map[string]interface{}{"diffMode": true}},
		{"tracer": "callTracer"},
	} {
		var results []*txTraceResult
		assert.Nil(t, env.client.CallContext(ctx, &results, "debug_traceBlockByHash", blk.Hash(), config))
		assert.Equal(t, len(txs), len(results))
		for i, tx := range txs {
			var byTx json.RawMessage
			assert.Nil(t, env.client.CallContext(ctx, &byTx, "debug_traceTransaction", tx.Hash(), config))
			assert.Equal(t, tx.Hash(), results[i].TxHash)
			assert.Empty(t, results[i].Error)
			assert.JSONEq(t, string(byTx), string(results[i].Result))
		}
	}

	// Each transaction sees the nonce left by the one before
	var pre []struct {
		Result map[common.Address]struct {
			Nonce uint64 `json:"nonce"`
		} `json:"result"`
	}
	assert.Nil(t, env.client.CallContext(ctx, &pre, "debug_traceBlockByHash", blk.Hash(), map[string]interface{}{"tracer": "prestateTracer"}))
	for i, res := range pre {
		assert.Equal(t, txs[i].Nonce(), res.Result[testAcct].Nonce)
	}
}
