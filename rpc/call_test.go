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
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/wcgcyx/callsim/override"
)

var (
	testDead = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	// Returns the block number.
	numberCode = common.FromHex("4360005260206000f3")
)

func callArgs(to common.Address, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"to":    to,
		"input": hexutil.Bytes(data),
	}
}

func hashOf(v int64) common.Hash {
	return common.BigToHash(big.NewInt(v))
}

// revertPayload encodes the reason as Error(string).
func revertPayload(reason string) []byte {
	payload := crypto.Keccak256([]byte("Error(string)"))[:4]
	payload = append(payload, common.LeftPadBytes([]byte{0x20}, 32)...)
	payload = append(payload, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	payload = append(payload, common.RightPadBytes([]byte(reason), 32)...)
	return payload
}

// revertCode reverts with the given payload, which must be shorter than 256 bytes.
func revertCode(payload []byte) []byte {
	size := byte(len(payload))
	code := []byte{0x60, size, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, size, 0x60, 0x00, 0xfd}
	return append(code, payload...)
}

func TestCallStateOverrides(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()
	contract := env.deployStorage()

	call := func(to common.Address, key common.Hash, overrides override.StateOverride) (*big.Int, error) {
		var res hexutil.Bytes
		err := env.client.CallContext(ctx, &res, "eth_call", callArgs(to, key.Bytes()), "latest", overrides)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetBytes(res), nil
	}

	val, err := call(contract, hashOf(1), nil)
	assert.Nil(t, err)
	assert.Equal(t, int64(2), val.Int64())

	// A diff keeps the unlisted slots, so slot 1 (the greeting) survives
	diff := override.StateOverride{contract: {StateDiff: map[common.Hash]common.Hash{hashOf(0): hashOf(9)}}}
	val, err = call(contract, hashOf(0), diff)
	assert.Nil(t, err)
	assert.Equal(t, int64(9), val.Int64())
	val, err = call(contract, hashOf(1), diff)
	assert.Nil(t, err)
	assert.Equal(t, int64(2), val.Int64())

	// A full state zeroes the unlisted slots, so the greeting is lost
	full := override.StateOverride{contract: {State: map[common.Hash]common.Hash{hashOf(0): hashOf(9)}}}
	val, err = call(contract, hashOf(0), full)
	assert.Nil(t, err)
	assert.Equal(t, int64(9), val.Int64())
	val, err = call(contract, hashOf(1), full)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), val.Int64())

	// Overrides never reach the ledger
	slot, err := env.eth.StorageAt(ctx, contract, hashOf(0), nil)
	assert.Nil(t, err)
	assert.Equal(t, hashOf(1).Bytes(), slot)
	val, err = call(contract, hashOf(0), nil)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), val.Int64())

	// Injected code runs against injected storage
	code := hexutil.Bytes(slotZeroCode)
	injected := override.StateOverride{testDead: {Code: &code, State: map[common.Hash]common.Hash{hashOf(0): hashOf(100)}}}
	val, err = call(testDead, common.Hash{}, injected)
	assert.Nil(t, err)
	assert.Equal(t, int64(100), val.Int64())
	deployed, err := env.eth.CodeAt(ctx, testDead, nil)
	assert.Nil(t, err)
	assert.Empty(t, deployed)

	// State and diff of the same account cannot be combined
	conflicting := override.StateOverride{contract: {
		State:     map[common.Hash]common.Hash{hashOf(0): hashOf(9)},
		StateDiff: map[common.Hash]common.Hash{hashOf(1): hashOf(9)},
	}}
	_, err = call(contract, hashOf(0), conflicting)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "conflicting override")
}

func TestCallBalanceAndBlockOverrides(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()

	args := map[string]interface{}{
		"from":  testDead,
		"to":    testReceiver,
		"value": (*hexutil.Big)(big.NewInt(5)),
	}
	var res hexutil.Bytes
	err := env.client.CallContext(ctx, &res, "eth_call", args, "latest")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "insufficient funds for gas * price + value")

	balance := (*hexutil.Big)(big.NewInt(params.Ether))
	err = env.client.CallContext(ctx, &res, "eth_call", args, "latest", override.StateOverride{testDead: {Balance: balance}})
	assert.Nil(t, err)

	// Fees are charged when a price is given
	priced := map[string]interface{}{
		"from":     testDead,
		"to":       testReceiver,
		"gasPrice": (*hexutil.Big)(big.NewInt(1)),
	}
	err = env.client.CallContext(ctx, &res, "eth_call", priced, "latest")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "supplied gas 25000000")

	code := hexutil.Bytes(numberCode)
	number := (*hexutil.Big)(big.NewInt(100))
	err = env.client.CallContext(ctx, &res, "eth_call", callArgs(testDead, nil), "latest",
		override.StateOverride{testDead: {Code: &code}}, &override.BlockOverrides{Number: number})
	assert.Nil(t, err)
	assert.Equal(t, int64(100), new(big.Int).SetBytes(res).Int64())
}

func TestCallAndEstimateRevert(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()

	payload := revertPayload("boom")
	code := hexutil.Bytes(revertCode(payload))
	overrides := override.StateOverride{testDead: {Code: &code}}

	check := func(err error) {
		assert.NotNil(t, err)
		assert.Equal(t, "execution reverted: boom", err.Error())
		var rpcErr rpc.Error
		assert.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, 3, rpcErr.ErrorCode())
		var dataErr rpc.DataError
		assert.True(t, errors.As(err, &dataErr))
		assert.Equal(t, hexutil.Encode(payload), dataErr.ErrorData())
	}

	var res hexutil.Bytes
	check(env.client.CallContext(ctx, &res, "eth_call", callArgs(testDead, nil), "latest", overrides))
	var gas hexutil.Uint64
	check(env.client.CallContext(ctx, &gas, "eth_estimateGas", callArgs(testDead, nil), "latest", overrides))
}

func TestEstimateGas(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	defer env.close()
	contract := env.deployStorage()

	gas, err := env.eth.EstimateGas(ctx, ethereum.CallMsg{From: testAcct, To: &testReceiver, Value: big.NewInt(1)})
	assert.Nil(t, err)
	assert.Equal(t, params.TxGas, gas)

	gas, err = env.eth.EstimateGas(ctx, ethereum.CallMsg{From: testAcct, To: &contract, Data: hashOf(1).Bytes()})
	assert.Nil(t, err)
	assert.Greater(t, gas, params.TxGas)

	// The estimate is enough to get the transaction included
	tx := env.sendTx(&contract, hashOf(1).Bytes(), nil, gas)
	receipt, err := env.eth.TransactionReceipt(ctx, tx.Hash())
	assert.Nil(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	// A message that never succeeds within the cap
	code := hexutil.Bytes(loopCode)
	var res hexutil.Uint64
	err = env.client.CallContext(ctx, &res, "eth_estimateGas", callArgs(testDead, nil), "latest", override.StateOverride{testDead: {Code: &code}})
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "gas required exceeds allowance (25000000)")
}
