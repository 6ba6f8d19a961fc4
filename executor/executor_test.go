package executor

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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	itypes "github.com/wcgcyx/callsim/types"
	"github.com/wcgcyx/callsim/worldstate"
	"go.uber.org/mock/gomock"
)

var (
	testSender   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testReceiver = common.HexToAddress("0x1000000000000000000000000000000000000002")
	testCoinbase = common.HexToAddress("0x1000000000000000000000000000000000000003")
	testReverter = common.HexToAddress("0x1000000000000000000000000000000000000004")
	testStorer   = common.HexToAddress("0x1000000000000000000000000000000000000005")
	testLooper   = common.HexToAddress("0x1000000000000000000000000000000000000006")

	// MSTORE8(0, 0xaa) REVERT(0, 1)
	revertCode = common.FromHex("0x60aa60005360016000fd")
	// SSTORE(0, 1) STOP
	storeCode = common.FromHex("0x600160005500")
	// JUMPDEST PUSH1 0 JUMP
	loopCode = common.FromHex("0x5b600056")
	// RETURN(0, 0x1000)
	largeInitCode = common.FromHex("0x6110006000f3")
)

func testSnapshot(ctrl *gomock.Controller) *worldstate.MockSnapshot {
	codes := make(map[common.Hash][]byte)
	accts := map[common.Address]itypes.AccountValue{
		testSender: {
			Nonce:    2,
			Balance:  uint256.NewInt(1_000_000),
			CodeHash: types.EmptyCodeHash,
			Version:  1,
		},
	}
	for addr, code := range map[common.Address][]byte{testReverter: revertCode, testStorer: storeCode, testLooper: loopCode} {
		codeHash := crypto.Keccak256Hash(code)
		codes[codeHash] = code
		accts[addr] = itypes.AccountValue{
			Nonce:    1,
			Balance:  uint256.NewInt(0),
			CodeHash: codeHash,
			Version:  1,
		}
	}
	snap := worldstate.NewMockSnapshot(ctrl)
	snap.EXPECT().Height().Return(uint64(1)).AnyTimes()
	snap.EXPECT().BlockHash().Return(common.HexToHash("0x01")).AnyTimes()
	snap.EXPECT().GetAccountValue(gomock.Any()).DoAndReturn(func(addr common.Address) (itypes.AccountValue, error) {
		acct, ok := accts[addr]
		if !ok {
			return itypes.EmptyAccountValue(0), nil
		}
		return acct.Copy(), nil
	}).AnyTimes()
	snap.EXPECT().GetStorageByVersion(gomock.Any(), gomock.Any(), gomock.Any()).Return(common.Hash{}, nil).AnyTimes()
	snap.EXPECT().GetCodeByHash(gomock.Any()).DoAndReturn(func(codeHash common.Hash) ([]byte, error) {
		code, ok := codes[codeHash]
		if !ok {
			return nil, errors.New("code not found")
		}
		return code, nil
	}).AnyTimes()
	return snap
}

func testEnv() *Env {
	return &Env{
		ChainConfig: params.AllDevChainProtocolChanges,
		BlockCtx: vm.BlockContext{
			CanTransfer: core.CanTransfer,
			Transfer:    core.Transfer,
			GetHash:     func(uint64) common.Hash { return common.Hash{} },
			Coinbase:    testCoinbase,
			BlockNumber: big.NewInt(1),
			Time:        1,
			Difficulty:  big.NewInt(0),
			Random:      &common.Hash{},
			GasLimit:    30_000_000,
			BaseFee:     big.NewInt(0),
			BlobBaseFee: big.NewInt(1),
		},
		NoBaseFee: true,
	}
}

func testMsg(to *common.Address, gas uint64, value int64, data []byte) *core.Message {
	return &core.Message{
		From:              testSender,
		To:                to,
		Value:             big.NewInt(value),
		GasLimit:          gas,
		GasPrice:          big.NewInt(0),
		GasFeeCap:         big.NewInt(0),
		GasTipCap:         big.NewInt(0),
		Data:              data,
		SkipAccountChecks: true,
	}
}

func TestNewExecutor(t *testing.T) {
	e := NewExecutor(Opts{})
	assert.Equal(t, DefaultGasCap, e.GasCap())
	assert.Equal(t, uint64(0), e.MinGasPercent())

	e = NewExecutor(Opts{GasCap: 100_000, MinGasPercent: 101})
	assert.Equal(t, uint64(100_000), e.GasCap())
	assert.Equal(t, DefaultMinGasPercent, e.MinGasPercent())
}

func TestTransferWithDefaultGas(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	msg := testMsg(&testReceiver, 0, 10, nil)
	res, err := e.ApplyMessage(context.Background(), testEnv(), state, msg, nil)
	assert.Nil(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, DefaultGasCap/2, res.UsedGas)
	assert.Equal(t, params.TxGas, res.ExecutionGas)
	assert.Equal(t, uint64(0), res.RefundedGas)
	// The caller's message is left untouched
	assert.Equal(t, uint64(0), msg.GasLimit)

	assert.Equal(t, uint64(10), state.GetBalance(testReceiver).Uint64())
	assert.Equal(t, uint64(999_990), state.GetBalance(testSender).Uint64())
	assert.Equal(t, uint64(3), state.GetNonce(testSender))
	// Zero fee fields do not touch the coinbase
	assert.False(t, state.Exist(testCoinbase))
}

func TestTransferChargesMinimumGas(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: 50})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	msg := testMsg(&testReceiver, 50_000, 10, nil)
	msg.GasPrice = big.NewInt(1)
	msg.GasFeeCap = big.NewInt(1)
	msg.GasTipCap = big.NewInt(1)
	res, err := e.ApplyMessage(context.Background(), testEnv(), state, msg, nil)
	assert.Nil(t, err)
	assert.Equal(t, uint64(25_000), res.UsedGas)
	assert.Equal(t, params.TxGas, res.ExecutionGas)
	assert.Equal(t, uint64(1_000_000-25_000-10), state.GetBalance(testSender).Uint64())
	assert.Equal(t, uint64(25_000), state.GetBalance(testCoinbase).Uint64())

	// Without minimum, only the actual usage is charged
	e = NewExecutor(Opts{})
	state = worldstate.NewMutableState(testSnapshot(ctrl))
	res, err = e.ApplyMessage(context.Background(), testEnv(), state, msg, nil)
	assert.Nil(t, err)
	assert.Equal(t, params.TxGas, res.UsedGas)
	assert.Equal(t, uint64(1_000_000-21_000-10), state.GetBalance(testSender).Uint64())
}

func TestRevert(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	res, err := e.ApplyMessage(context.Background(), testEnv(), state, testMsg(&testReverter, 0, 0, nil), nil)
	assert.Nil(t, err)
	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.Unwrap(), ErrExecutionReverted)
	assert.Equal(t, []byte{0xaa}, res.Revert())
	assert.Nil(t, res.Return())

	_, ok := RevertReason(res.Revert())
	assert.False(t, ok)
}

func TestRevertReason(t *testing.T) {
	// Error("hello")
	data := common.FromHex("0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000005" +
		"68656c6c6f000000000000000000000000000000000000000000000000000000")
	reason, ok := RevertReason(data)
	assert.True(t, ok)
	assert.Equal(t, "hello", reason)
}

func TestIntrinsicGasTooLow(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	_, err := e.ApplyMessage(context.Background(), testEnv(), state, testMsg(&testReceiver, 20_000, 0, nil), nil)
	assert.ErrorIs(t, err, ErrIntrinsicGas)
	assert.Equal(t, "intrinsic gas too low: have 20000, want 21000", err.Error())
}

func TestInsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{})

	msg := testMsg(&testReceiver, 21_000, 1_000_000, nil)
	msg.GasPrice = big.NewInt(1)
	msg.GasFeeCap = big.NewInt(1)
	msg.GasTipCap = big.NewInt(1)
	state := worldstate.NewMutableState(testSnapshot(ctrl))
	_, err := e.ApplyMessage(context.Background(), testEnv(), state, msg, nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "insufficient funds for gas * price + value")
	assert.Contains(t, err.Error(), "have 1000000 want 1021000")
	// Nothing has been charged
	assert.Equal(t, uint64(1_000_000), state.GetBalance(testSender).Uint64())

	state = worldstate.NewMutableState(testSnapshot(ctrl))
	_, err = e.ApplyMessage(context.Background(), testEnv(), state, testMsg(&testReceiver, 21_000, 1_000_001, nil), nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCodeStoreOutOfGas(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	res, err := e.ApplyMessage(context.Background(), testEnv(), state, testMsg(nil, 200_000, 0, largeInitCode), nil)
	assert.Nil(t, err)
	assert.ErrorIs(t, res.Err, ErrCodeStoreOutOfGas)
	assert.Equal(t, "contract creation code storage out of gas", res.Err.Error())
	// All gas is consumed
	assert.Equal(t, uint64(200_000), res.UsedGas)
	// The creation still bumps the nonce
	assert.Equal(t, uint64(3), state.GetNonce(testSender))
}

func TestTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{GasCap: 1_000_000_000})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	env := testEnv()
	env.Timeout = 10 * time.Millisecond
	_, err := e.ApplyMessage(context.Background(), env, state, testMsg(&testLooper, 0, 0, nil), nil)
	assert.NotNil(t, err)
	assert.Equal(t, "execution aborted (timeout = 10ms)", err.Error())
}

func TestHooks(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	var (
		started  *types.Transaction
		receipt  *types.Receipt
		entered  int
		balances int
	)
	hooks := &tracing.Hooks{
		OnTxStart: func(env *tracing.VMContext, tx *types.Transaction, from common.Address) {
			started = tx
			assert.Equal(t, testSender, from)
		},
		OnTxEnd: func(r *types.Receipt, err error) {
			receipt = r
			assert.Nil(t, err)
		},
		OnEnter: func(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
			entered++
		},
		OnBalanceChange: func(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
			balances++
		},
	}
	res, err := e.ApplyMessage(context.Background(), testEnv(), state, testMsg(&testReverter, 100_000, 0, nil), hooks)
	assert.Nil(t, err)
	assert.NotNil(t, started)
	assert.Equal(t, uint64(100_000), started.Gas())
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	assert.Equal(t, res.UsedGas, receipt.GasUsed)
	assert.Equal(t, uint64(50_000), receipt.GasUsed)
	assert.Equal(t, 1, entered)
	assert.Less(t, 0, balances)
}

func TestHooksOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{})
	state := worldstate.NewMutableState(testSnapshot(ctrl))

	var txErr error
	hooks := &tracing.Hooks{
		OnTxEnd: func(r *types.Receipt, err error) {
			assert.Nil(t, r)
			txErr = err
		},
	}
	_, err := e.ApplyMessage(context.Background(), testEnv(), state, testMsg(&testReceiver, 20_000, 0, nil), hooks)
	assert.ErrorIs(t, err, ErrIntrinsicGas)
	assert.ErrorIs(t, txErr, ErrIntrinsicGas)
}

func testEstimateOpts(ctrl *gomock.Controller) *EstimateOpts {
	snap := testSnapshot(ctrl)
	return &EstimateOpts{
		Env: testEnv(),
		NewState: func() worldstate.MutableState {
			return worldstate.NewMutableState(snap)
		},
		ErrorRatio: DefaultErrorRatio,
	}
}

func TestEstimateTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})

	gas, revert, err := e.EstimateGas(context.Background(), testEstimateOpts(ctrl), testMsg(&testReceiver, 0, 10, nil), e.GasCap())
	assert.Nil(t, err)
	assert.Nil(t, revert)
	assert.Equal(t, params.TxGas, gas)
}

func TestEstimateStorage(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})
	opts := testEstimateOpts(ctrl)

	msg := testMsg(&testStorer, 0, 0, nil)
	gas, _, err := e.EstimateGas(context.Background(), opts, msg, e.GasCap())
	assert.Nil(t, err)
	assert.Less(t, params.TxGas+params.SstoreSetGasEIP2200, gas)
	// Far below the cap although every trial execution is charged half of its limit
	assert.Greater(t, uint64(100_000), gas)

	msg.GasLimit = gas
	res, err := e.ApplyMessage(context.Background(), opts.Env, opts.NewState(), msg, nil)
	assert.Nil(t, err)
	assert.False(t, res.Failed())
}

func TestEstimateExceedsAllowance(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})

	_, _, err := e.EstimateGas(context.Background(), testEstimateOpts(ctrl), testMsg(&testStorer, 21_204, 0, nil), e.GasCap())
	assert.NotNil(t, err)
	assert.Equal(t, "gas required exceeds allowance (21204)", err.Error())
}

func TestEstimateRevert(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{MinGasPercent: DefaultMinGasPercent})

	_, revert, err := e.EstimateGas(context.Background(), testEstimateOpts(ctrl), testMsg(&testReverter, 0, 0, nil), e.GasCap())
	assert.ErrorIs(t, err, ErrExecutionReverted)
	assert.Equal(t, []byte{0xaa}, revert)
}

func TestEstimateInsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	e := NewExecutor(Opts{})

	msg := testMsg(&testReceiver, 0, 1_000_000, nil)
	msg.GasPrice = big.NewInt(1)
	msg.GasFeeCap = big.NewInt(1)
	msg.GasTipCap = big.NewInt(1)
	_, _, err := e.EstimateGas(context.Background(), testEstimateOpts(ctrl), msg, e.GasCap())
	assert.ErrorIs(t, err, ErrInsufficientFundsForTransfer)

	// The fundable gas is below the intrinsic gas
	msg.Value = big.NewInt(990_000)
	_, _, err = e.EstimateGas(context.Background(), testEstimateOpts(ctrl), msg, e.GasCap())
	assert.NotNil(t, err)
	assert.Equal(t, "gas required exceeds allowance (10000)", err.Error())
}
