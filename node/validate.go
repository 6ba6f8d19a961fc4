package node

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
	"fmt"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/txpool"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/wcgcyx/callsim/worldstate"
)

// validateTx checks a submitted transaction against the head block and its state.
func validateTx(config *params.ChainConfig, head *types.Header, snap worldstate.Snapshot, tx *types.Transaction) error {
	if tx.Type() == types.BlobTxType {
		return fmt.Errorf("%w: %v", ErrTxTypeNotSealed, tx.Type())
	}
	if tx.Type() != types.LegacyTxType || tx.Protected() {
		if tx.ChainId().Cmp(config.ChainID) != 0 {
			return fmt.Errorf("%w: have %v, want %v", ErrInvalidChainID, tx.ChainId(), config.ChainID)
		}
	}
	from, err := types.Sender(types.LatestSigner(config), tx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSender, err)
	}
	if tx.Gas() > head.GasLimit {
		return fmt.Errorf("%w: have %v, limit %v", txpool.ErrGasLimit, tx.Gas(), head.GasLimit)
	}
	if tx.GasFeeCapIntCmp(tx.GasTipCap()) < 0 {
		return fmt.Errorf("%w: address %v, maxPriorityFeePerGas: %s, maxFeePerGas: %s", core.ErrTipAboveFeeCap, from.Hex(), tx.GasTipCap(), tx.GasFeeCap())
	}
	rules := config.Rules(head.Number, true, head.Time)
	gas, err := core.IntrinsicGas(tx.Data(), tx.AccessList(), tx.To() == nil, rules.IsHomestead, rules.IsIstanbul, rules.IsShanghai)
	if err != nil {
		return err
	}
	if tx.Gas() < gas {
		return fmt.Errorf("%w: have %d, want %d", core.ErrIntrinsicGas, tx.Gas(), gas)
	}
	nonce, err := worldstate.GetNonce(snap, from)
	if err != nil {
		return err
	}
	if tx.Nonce() < nonce {
		return fmt.Errorf("%w: address %v, tx: %d state: %d", core.ErrNonceTooLow, from.Hex(), tx.Nonce(), nonce)
	}
	balance, err := worldstate.GetBalance(snap, from)
	if err != nil {
		return err
	}
	if balance.ToBig().Cmp(tx.Cost()) < 0 {
		return fmt.Errorf("%w: address %v have %v want %v", core.ErrInsufficientFunds, from.Hex(), balance, tx.Cost())
	}
	return nil
}
