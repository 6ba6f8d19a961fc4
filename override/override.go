package override

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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
	logging "github.com/ipfs/go-log"
)

// Logger
var log = logging.Logger("override")

// ErrConflictingOverride is returned when an account override has both state and stateDiff.
var ErrConflictingOverride = errors.New("conflicting override")

// Uint64 is a quantity that decodes from either a hex string or a JSON number.
type Uint64 uint64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Uint64) UnmarshalJSON(input []byte) error {
	if len(input) > 0 && input[0] == '"' {
		var v hexutil.Uint64
		err := json.Unmarshal(input, &v)
		if err != nil {
			return err
		}
		*n = Uint64(v)
		return nil
	}
	v, err := strconv.ParseUint(string(input), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid nonce %s: %w", string(input), err)
	}
	*n = Uint64(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Uint64(n))
}

// OverrideAccount indicates the overriding fields of account during the execution
// of a message call.
// Note, state and stateDiff can't be specified at the same time. If state is
// set, message execution will only use the data in the given state. Otherwise
// if stateDiff is set, all diff will be applied first and then execute the call
// message.
type OverrideAccount struct {
	Nonce     *Uint64                     `json:"nonce"`
	Code      *hexutil.Bytes              `json:"code"`
	Balance   *hexutil.Big                `json:"balance"`
	State     map[common.Hash]common.Hash `json:"state"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff"`
}

// StateOverride is the collection of overridden accounts.
type StateOverride map[common.Address]OverrideAccount

// Validate checks the overrides are well formed.
func (diff StateOverride) Validate() error {
	for addr, account := range diff {
		if account.State != nil && account.StateDiff != nil {
			return fmt.Errorf("%w: account %s has both 'state' and 'stateDiff'", ErrConflictingOverride, addr.Hex())
		}
		if account.Balance != nil {
			bal := account.Balance.ToInt()
			if bal.Sign() < 0 || bal.BitLen() > 256 {
				return fmt.Errorf("account %s has invalid balance %v", addr.Hex(), bal)
			}
		}
	}
	return nil
}

// BlockOverrides is a set of header fields to override.
type BlockOverrides struct {
	Number      *hexutil.Big    `json:"number"`
	Difficulty  *hexutil.Big    `json:"difficulty"`
	Time        *hexutil.Uint64 `json:"time"`
	GasLimit    *hexutil.Uint64 `json:"gasLimit"`
	Coinbase    *common.Address `json:"coinbase"`
	Random      *common.Hash    `json:"random"`
	BaseFee     *hexutil.Big    `json:"baseFee"`
	BlobBaseFee *hexutil.Big    `json:"blobBaseFee"`
}

// Apply overrides the given header fields into the given block context.
func (o *BlockOverrides) Apply(blockCtx *vm.BlockContext) {
	if o == nil {
		return
	}
	if o.Number != nil {
		blockCtx.BlockNumber = o.Number.ToInt()
	}
	if o.Difficulty != nil {
		blockCtx.Difficulty = o.Difficulty.ToInt()
	}
	if o.Time != nil {
		blockCtx.Time = uint64(*o.Time)
	}
	if o.GasLimit != nil {
		blockCtx.GasLimit = uint64(*o.GasLimit)
	}
	if o.Coinbase != nil {
		blockCtx.Coinbase = *o.Coinbase
	}
	if o.Random != nil {
		blockCtx.Random = o.Random
	}
	if o.BaseFee != nil {
		blockCtx.BaseFee = o.BaseFee.ToInt()
	}
	if o.BlobBaseFee != nil {
		blockCtx.BlobBaseFee = o.BlobBaseFee.ToInt()
	}
}
