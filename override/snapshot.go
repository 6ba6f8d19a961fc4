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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/wcgcyx/callsim/worldstate"
	itypes "github.com/wcgcyx/callsim/types"
)

// overriddenAccount is an account with overridden fields.
type overriddenAccount struct {
	value itypes.AccountValue

	// Storage of the account is replaced entirely
	replace bool
	storage map[common.Hash]common.Hash
}

// overriddenSnapshot implements worldstate.Snapshot by intercepting the reads
// of overridden accounts. Nothing is written to the parent.
type overriddenSnapshot struct {
	parent   worldstate.Snapshot
	accounts map[common.Address]*overriddenAccount
	code     map[common.Hash][]byte
}

// Apply wraps the snapshot with the given overrides.
// A nil or empty override returns the snapshot itself.
func Apply(snap worldstate.Snapshot, diff StateOverride) (worldstate.Snapshot, error) {
	if len(diff) == 0 {
		return snap, nil
	}
	err := diff.Validate()
	if err != nil {
		return nil, err
	}
	res := &overriddenSnapshot{
		parent:   snap,
		accounts: make(map[common.Address]*overriddenAccount),
		code:     make(map[common.Hash][]byte),
	}
	for addr, account := range diff {
		acct, err := snap.GetAccountValue(addr)
		if err != nil {
			return nil, err
		}
		replace := account.State != nil
		if !acct.Exists() {
			// Bring the account alive with a fresh version, no storage can be found under it.
			acct = itypes.EmptyAccountValue(acct.Version + 1)
			replace = true
		}
		if account.Nonce != nil {
			acct.Nonce = uint64(*account.Nonce)
		}
		if account.Balance != nil {
			acct.Balance = uint256.MustFromBig(account.Balance.ToInt())
		}
		if account.Code != nil {
			code := []byte(*account.Code)
			acct.CodeHash = crypto.Keccak256Hash(code)
			if len(code) == 0 {
				acct.CodeHash = types.EmptyCodeHash
			}
			res.code[acct.CodeHash] = code
		}
		storage := make(map[common.Hash]common.Hash)
		for k, v := range account.State {
			storage[k] = v
		}
		for k, v := range account.StateDiff {
			storage[k] = v
		}
		log.Debugf("Override account %v with %v slots (replace: %v)", addr, len(storage), replace)
		res.accounts[addr] = &overriddenAccount{
			value:   acct,
			replace: replace,
			storage: storage,
		}
	}
	return res, nil
}

// Height returns the block height of this snapshot.
func (s *overriddenSnapshot) Height() uint64 {
	return s.parent.Height()
}

// BlockHash returns the block hash of this snapshot.
func (s *overriddenSnapshot) BlockHash() common.Hash {
	return s.parent.BlockHash()
}

// GetAccountValue gets the account value for given address.
func (s *overriddenSnapshot) GetAccountValue(addr common.Address) (itypes.AccountValue, error) {
	acct, ok := s.accounts[addr]
	if ok {
		return acct.value.Copy(), nil
	}
	return s.parent.GetAccountValue(addr)
}

// GetStorageByVersion gets the storage value of the given account version.
func (s *overriddenSnapshot) GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error) {
	acct, ok := s.accounts[addr]
	if ok && acct.value.Version == version {
		val, ok := acct.storage[key]
		if ok {
			return val, nil
		}
		if acct.replace {
			return common.Hash{}, nil
		}
	}
	return s.parent.GetStorageByVersion(addr, version, key)
}

// GetCodeByHash gets the code for given hash.
func (s *overriddenSnapshot) GetCodeByHash(codeHash common.Hash) ([]byte, error) {
	code, ok := s.code[codeHash]
	if ok {
		return code, nil
	}
	return s.parent.GetCodeByHash(codeHash)
}
