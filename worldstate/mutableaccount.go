package worldstate

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
	"github.com/holiman/uint256"
	itypes "github.com/wcgcyx/callsim/types"
)

// mutableAccount tracks one account across the transactions of a block.
//
// There are three views of the account:
// 1. origin, the value in the parent snapshot,
// 2. committed, the value after the last finalised transaction,
// 3. the current value, updated by the running transaction.
// Every write returns a function to revert it.
type mutableAccount struct {
	db   *mutableStateImpl
	addr common.Address

	origin        itypes.AccountValue
	originStorage map[common.Hash]common.Hash // lazy-init

	committed        itypes.AccountValue
	committedStorage map[common.Hash]common.Hash

	nonce    uint64
	balance  *uint256.Int
	codeHash common.Hash
	version  uint64
	storage  map[common.Hash]common.Hash

	selfDestructed bool
	newContract    bool
}

// newMutableAccount creates a mutable account from its value in the parent snapshot.
func newMutableAccount(db *mutableStateImpl, addr common.Address, origin itypes.AccountValue) *mutableAccount {
	return &mutableAccount{
		db:               db,
		addr:             addr,
		origin:           origin,
		committed:        origin.Copy(),
		committedStorage: make(map[common.Hash]common.Hash),
		nonce:            origin.Nonce,
		balance:          uint256.NewInt(0).Set(origin.Balance),
		codeHash:         origin.CodeHash,
		version:          origin.Version,
		storage:          make(map[common.Hash]common.Hash),
	}
}

// exists returns if this account is alive.
func (acct *mutableAccount) exists() bool {
	return acct.version%2 == 1
}

// empty returns if this account is empty according to EIP-161.
func (acct *mutableAccount) empty() bool {
	return acct.nonce == 0 && acct.balance.IsZero() && (acct.codeHash == types.EmptyCodeHash || acct.codeHash == common.Hash{})
}

// code returns the code of this account.
func (acct *mutableAccount) code() []byte {
	if acct.codeHash == types.EmptyCodeHash || acct.codeHash == (common.Hash{}) {
		return nil
	}
	code, ok := acct.db.codes[acct.codeHash]
	if ok {
		return code
	}
	code, err := acct.db.parent.GetCodeByHash(acct.codeHash)
	if err != nil {
		acct.db.setError(err)
		return nil
	}
	acct.db.codes[acct.codeHash] = code
	return code
}

// getOriginState gets the storage value in the parent snapshot.
func (acct *mutableAccount) getOriginState(key common.Hash) common.Hash {
	if !acct.origin.Exists() {
		return common.Hash{}
	}
	if acct.originStorage == nil {
		acct.originStorage = make(map[common.Hash]common.Hash)
	}
	val, ok := acct.originStorage[key]
	if ok {
		return val
	}
	val, err := acct.db.parent.GetStorageByVersion(acct.addr, acct.origin.Version, key)
	if err != nil {
		acct.db.setError(err)
		return common.Hash{}
	}
	acct.originStorage[key] = val
	return val
}

// getCommittedState gets the storage value at the start of current transaction.
func (acct *mutableAccount) getCommittedState(key common.Hash) common.Hash {
	if acct.version != acct.committed.Version || !acct.committed.Exists() {
		return common.Hash{}
	}
	val, ok := acct.committedStorage[key]
	if ok {
		return val
	}
	if acct.committed.Version == acct.origin.Version {
		return acct.getOriginState(key)
	}
	return common.Hash{}
}

// getState gets the current storage value.
func (acct *mutableAccount) getState(key common.Hash) common.Hash {
	if !acct.exists() {
		return common.Hash{}
	}
	val, ok := acct.storage[key]
	if ok {
		return val
	}
	return acct.getCommittedState(key)
}

// hasStorage returns if this account is known to hold non-empty storage.
func (acct *mutableAccount) hasStorage() bool {
	for _, val := range acct.storage {
		if val != (common.Hash{}) {
			return true
		}
	}
	if acct.version != acct.committed.Version {
		return false
	}
	for _, val := range acct.committedStorage {
		if val != (common.Hash{}) {
			return true
		}
	}
	return false
}

// snapshot captures the current value for revert.
func (acct *mutableAccount) snapshot() func() {
	nonce := acct.nonce
	balance := uint256.NewInt(0).Set(acct.balance)
	codeHash := acct.codeHash
	version := acct.version
	storage := acct.storage
	selfDestructed := acct.selfDestructed
	newContract := acct.newContract
	return func() {
		acct.nonce = nonce
		acct.balance = balance
		acct.codeHash = codeHash
		acct.version = version
		acct.storage = storage
		acct.selfDestructed = selfDestructed
		acct.newContract = newContract
	}
}

// touch brings a non-existent account alive before it gets written.
func (acct *mutableAccount) touch() func() {
	if acct.exists() {
		return func() {}
	}
	acct.version++
	acct.nonce = 0
	acct.balance = uint256.NewInt(0)
	acct.codeHash = types.EmptyCodeHash
	acct.storage = make(map[common.Hash]common.Hash)
	return func() { acct.version-- }
}

// create creates a fresh incarnation of this account.
func (acct *mutableAccount) create() (revert func()) {
	revert = acct.snapshot()
	if acct.exists() {
		acct.version += 2
	} else {
		acct.version++
	}
	acct.nonce = 0
	acct.balance = uint256.NewInt(0)
	acct.codeHash = types.EmptyCodeHash
	acct.storage = make(map[common.Hash]common.Hash)
	acct.selfDestructed = false
	acct.newContract = false
	return
}

// setNonce sets the nonce.
func (acct *mutableAccount) setNonce(nonce uint64) (revert func()) {
	undoTouch := acct.touch()
	original := acct.nonce
	acct.nonce = nonce
	return func() {
		acct.nonce = original
		undoTouch()
	}
}

// setBalance sets the balance.
func (acct *mutableAccount) setBalance(balance *uint256.Int) (revert func()) {
	undoTouch := acct.touch()
	original := acct.balance
	acct.balance = uint256.NewInt(0).Set(balance)
	return func() {
		acct.balance = original
		undoTouch()
	}
}

// setCode sets the code hash.
func (acct *mutableAccount) setCode(codeHash common.Hash) (revert func()) {
	undoTouch := acct.touch()
	original := acct.codeHash
	acct.codeHash = codeHash
	return func() {
		acct.codeHash = original
		undoTouch()
	}
}

// setState sets a storage slot.
func (acct *mutableAccount) setState(key common.Hash, val common.Hash) (revert func()) {
	undoTouch := acct.touch()
	original, ok := acct.storage[key]
	acct.storage[key] = val
	return func() {
		if ok {
			acct.storage[key] = original
		} else {
			delete(acct.storage, key)
		}
		undoTouch()
	}
}

// selfDestruct marks this account as destructed and clears its balance.
func (acct *mutableAccount) selfDestruct() (revert func()) {
	original := acct.balance
	originalFlag := acct.selfDestructed
	acct.selfDestructed = true
	acct.balance = uint256.NewInt(0)
	return func() {
		acct.balance = original
		acct.selfDestructed = originalFlag
	}
}

// markNewContract marks this account as created in this transaction.
func (acct *mutableAccount) markNewContract() (revert func()) {
	original := acct.newContract
	acct.newContract = true
	return func() { acct.newContract = original }
}

// finalise moves the current value into the committed value.
func (acct *mutableAccount) finalise(deleteEmpty bool) {
	if acct.exists() && (acct.selfDestructed || (deleteEmpty && acct.empty())) {
		acct.version++
		if !acct.origin.Exists() {
			// Nothing of the intermediate incarnations ever got persisted.
			acct.version = acct.origin.Version
		}
	}
	if !acct.exists() {
		acct.nonce = 0
		acct.balance = uint256.NewInt(0)
		acct.codeHash = types.EmptyCodeHash
		acct.storage = make(map[common.Hash]common.Hash)
	}
	if acct.version != acct.committed.Version {
		acct.committedStorage = acct.storage
	} else {
		for k, v := range acct.storage {
			acct.committedStorage[k] = v
		}
	}
	acct.committed = acct.value()
	acct.storage = make(map[common.Hash]common.Hash)
	acct.selfDestructed = false
	acct.newContract = false
}

// value returns the current account value.
func (acct *mutableAccount) value() itypes.AccountValue {
	return itypes.AccountValue{
		Nonce:    acct.nonce,
		Balance:  uint256.NewInt(0).Set(acct.balance),
		CodeHash: acct.codeHash,
		Version:  acct.version,
	}
}

// changed returns if the committed value differs from the origin.
func (acct *mutableAccount) changed() bool {
	if len(acct.committedStorage) > 0 && acct.committed.Exists() {
		return true
	}
	return acct.committed.Nonce != acct.origin.Nonce ||
		acct.committed.Balance.Cmp(acct.origin.Balance) != 0 ||
		acct.committed.CodeHash != acct.origin.CodeHash ||
		acct.committed.Version != acct.origin.Version
}
