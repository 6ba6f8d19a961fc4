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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/wcgcyx/callsim/worldstate"
)

// Note:
// The search is adapted from:
// 		go-ethereum@v1.14.8/eth/gasestimator/gasestimator.go

// DefaultErrorRatio is the allowed overestimation ratio of the gas estimator.
const DefaultErrorRatio = 0.015

// EstimateOpts is the options for a gas estimation.
type EstimateOpts struct {
	// Environment to run every trial execution in
	Env *Env

	// NewState creates a fresh pre-state for every trial execution
	NewState func() worldstate.MutableState

	// Allowed overestimation ratio for faster estimation termination
	ErrorRatio float64
}

// EstimateGas returns the lowest possible gas limit that allows the message to
// run successfully. It returns the revert data together with the error if the
// message would always revert.
func (e *Executor) EstimateGas(ctx context.Context, opts *EstimateOpts, call *core.Message, gasCap uint64) (uint64, []byte, error) {
	// Binary search the gas limit, as it may need to be higher than the amount used
	var (
		lo = params.TxGas - 1 // lowest-known gas limit where tx execution fails
		hi uint64             // lowest-known gas limit where tx execution succeeds
	)
	// Determine the highest gas limit can be used during the estimation.
	hi = opts.Env.BlockCtx.GasLimit
	if call.GasLimit >= params.TxGas {
		hi = call.GasLimit
	}
	// Normalize the max fee per gas the call is willing to spend.
	var feeCap *big.Int
	if call.GasFeeCap != nil {
		feeCap = call.GasFeeCap
	} else if call.GasPrice != nil {
		feeCap = call.GasPrice
	} else {
		feeCap = common.Big0
	}
	// Recap the highest gas limit with account's available balance.
	if feeCap.BitLen() != 0 {
		state := opts.NewState()
		balance := state.GetBalance(call.From).ToBig()
		if err := state.Error(); err != nil {
			return 0, nil, err
		}
		available := new(big.Int).Set(balance)
		if call.Value != nil {
			if call.Value.Cmp(available) >= 0 {
				return 0, nil, core.ErrInsufficientFundsForTransfer
			}
			available.Sub(available, call.Value)
		}
		allowance := new(big.Int).Div(available, feeCap)

		// If the allowance is larger than maximum uint64, skip checking
		if allowance.IsUint64() && hi > allowance.Uint64() {
			log.Debugf("Gas estimation capped by limited funds, original %v balance %v maxFeePerGas %v fundable %v", hi, balance, feeCap, allowance)
			hi = allowance.Uint64()
		}
	}
	// Recap the highest gas allowance with specified gascap.
	if gasCap != 0 && hi > gasCap {
		log.Debugf("Caller gas above allowance, capping, requested %v cap %v", hi, gasCap)
		hi = gasCap
	}
	// If the transaction is a plain value transfer, short circuit estimation and
	// directly try 21000. Returning 21000 without any execution is dangerous as
	// some tx field combos might bump the price up even for plain transfers (e.g.
	// unused access list items). Ever so slightly wasteful, but safer overall.
	if len(call.Data) == 0 && call.To != nil {
		if opts.NewState().GetCodeSize(*call.To) == 0 {
			failed, _, err := e.tryGas(ctx, call, opts, params.TxGas)
			if !failed && err == nil {
				return params.TxGas, nil, nil
			}
		}
	}
	// We first execute the transaction at the highest allowable gas limit, since if this fails we
	// can return error immediately.
	failed, result, err := e.tryGas(ctx, call, opts, hi)
	if err != nil {
		return 0, nil, err
	}
	if failed {
		if result != nil && !errors.Is(result.Err, vm.ErrOutOfGas) {
			return 0, result.Revert(), result.Err
		}
		return 0, nil, fmt.Errorf("gas required exceeds allowance (%d)", hi)
	}
	// For almost any transaction, the gas consumed by the unconstrained execution
	// above lower-bounds the gas limit required for it to succeed. The charged
	// gas is inflated by the minimum share so the actual usage is taken.
	if result.ExecutionGas-1 > lo {
		lo = result.ExecutionGas - 1
	}

	// There's a fairly high chance for the transaction to execute successfully
	// with gasLimit set to the first execution's usedGas + gasRefund. Explicitly
	// check that gas amount and use as a limit for the binary search.
	optimisticGasLimit := (result.ExecutionGas + result.RefundedGas + params.CallStipend) * 64 / 63
	if optimisticGasLimit < hi {
		failed, _, err = e.tryGas(ctx, call, opts, optimisticGasLimit)
		if err != nil {
			// This should not happen under normal conditions since if we make it this far the
			// transaction had run without error at least once before.
			log.Errorf("Execution error in estimate gas: %v", err)
			return 0, nil, err
		}
		if failed {
			lo = optimisticGasLimit
		} else {
			hi = optimisticGasLimit
		}
	}
	// Binary search for the smallest gas limit that allows the tx to execute successfully.
	for lo+1 < hi {
		if opts.ErrorRatio > 0 {
			// It is a bit pointless to return a perfect estimation, as changing
			// network conditions require the caller to bump it up anyway.
			if float64(hi-lo)/float64(hi) < opts.ErrorRatio {
				break
			}
		}
		mid := (hi + lo) / 2
		if mid > lo*2 {
			// Most txs don't need much higher gas limit than their gas used, so
			// the selection of where to bisect the range is skewed to the low side.
			mid = lo * 2
		}
		failed, _, err = e.tryGas(ctx, call, opts, mid)
		if err != nil {
			log.Errorf("Execution error in estimate gas: %v", err)
			return 0, nil, err
		}
		if failed {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil, nil
}

// tryGas executes the message under a given gas limit and returns true if the
// execution fails for a reason that might be related to not enough gas.
// A non-nil error means execution failed due to reasons unrelated to the gas limit.
func (e *Executor) tryGas(ctx context.Context, call *core.Message, opts *EstimateOpts, gasLimit uint64) (bool, *ExecutionResult, error) {
	// Configure the call for this specific execution (and revert the change after)
	if gasLimit == 0 {
		return true, nil, nil
	}
	defer func(gas uint64) { call.GasLimit = gas }(call.GasLimit)
	call.GasLimit = gasLimit

	result, err := e.ApplyMessage(ctx, opts.Env, opts.NewState(), call, nil)
	if err != nil {
		if errors.Is(err, core.ErrIntrinsicGas) {
			return true, nil, nil // Special case, raise gas limit
		}
		return true, nil, fmt.Errorf("failed with %d gas: %w", gasLimit, err)
	}
	return result.Failed(), result, nil
}
