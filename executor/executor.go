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
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	logging "github.com/ipfs/go-log"
	"github.com/wcgcyx/callsim/worldstate"
)

// Logger
var log = logging.Logger("executor")

const (
	// DefaultGasCap is the gas limit used when a message carries none.
	DefaultGasCap = uint64(25_000_000)

	// DefaultMinGasPercent is the share of the gas limit charged at minimum.
	DefaultMinGasPercent = uint64(50)
)

// Opts is the options for the executor.
type Opts struct {
	// Gas limit to use when a message carries none
	GasCap uint64

	// Minimum share of the gas limit to charge, in percent
	MinGasPercent uint64
}

// Env is the environment a message executes in.
type Env struct {
	ChainConfig *params.ChainConfig
	BlockCtx    vm.BlockContext

	// Transaction the message is built from, reported to tracer hooks.
	// A legacy transaction is derived from the message if nil.
	Tx *types.Transaction

	// Abort execution after the timeout, 0 means no timeout
	Timeout time.Duration

	// Skip base fee checks, used by calls
	NoBaseFee bool
}

// Executor runs single messages against a mutable state.
type Executor struct {
	opts Opts
}

// NewExecutor creates a new executor.
func NewExecutor(opts Opts) *Executor {
	if opts.GasCap == 0 {
		opts.GasCap = DefaultGasCap
	}
	if opts.MinGasPercent > 100 {
		log.Warnf("Minimum gas percent %v out of range, use %v", opts.MinGasPercent, DefaultMinGasPercent)
		opts.MinGasPercent = DefaultMinGasPercent
	}
	return &Executor{opts: opts}
}

// GasCap returns the configured gas cap.
func (e *Executor) GasCap() uint64 {
	return e.opts.GasCap
}

// MinGasPercent returns the configured minimum gas percent.
func (e *Executor) MinGasPercent() uint64 {
	return e.opts.MinGasPercent
}

// ApplyMessage runs the message on top of the given state.
// A message without gas limit runs with the gas cap.
// Hooks are optional. Consensus failures such as insufficient funds are
// returned as error,
// EVM failures such as revert are reported in the result.
func (e *Executor) ApplyMessage(ctx context.Context, env *Env, state worldstate.MutableState, msg *core.Message, hooks *tracing.Hooks) (*ExecutionResult, error) {
	if msg.GasLimit == 0 {
		capped := *msg
		capped.GasLimit = e.opts.GasCap
		msg = &capped
	}
	tx := env.Tx
	if tx == nil {
		tx = messageToTransaction(msg)
	}
	// Setup context so it may be cancelled when the call has completed
	// or, in case of unmetered gas, setup a context with a timeout.
	var cancel context.CancelFunc
	if env.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, env.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	evm := vm.NewEVM(env.BlockCtx, core.NewEVMTxContext(msg), state, env.ChainConfig, vm.Config{Tracer: hooks, NoBaseFee: env.NoBaseFee})
	if hooks != nil {
		state.SetLogger(hooks)
		defer state.SetLogger(nil)
	}

	// Wait for the context to be done and cancel the evm. Even if the
	// EVM has finished, cancelling may be done (repeatedly)
	go func() {
		<-ctx.Done()
		evm.Cancel()
	}()

	if hooks != nil && hooks.OnTxStart != nil {
		hooks.OnTxStart(evm.GetVMContext(), tx, msg.From)
	}
	result, err := newStateTransition(evm, state, msg, e.opts.MinGasPercent).execute()
	if err == nil {
		state.Finalise(env.ChainConfig.IsEIP158(env.BlockCtx.BlockNumber))
		err = state.Error()
	}
	if hooks != nil && hooks.OnTxEnd != nil {
		if err != nil {
			hooks.OnTxEnd(nil, err)
		} else {
			hooks.OnTxEnd(result.receipt(tx), nil)
		}
	}
	if err != nil {
		return nil, err
	}
	// If the timer caused an abort, return an appropriate error message
	if evm.Cancelled() {
		return nil, fmt.Errorf("execution aborted (timeout = %v)", env.Timeout)
	}
	return result, nil
}

// messageToTransaction derives a legacy transaction from the message.
func messageToTransaction(msg *core.Message) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    msg.Nonce,
		GasPrice: msg.GasPrice,
		Gas:      msg.GasLimit,
		To:       msg.To,
		Value:    msg.Value,
		Data:     msg.Data,
	})
}
