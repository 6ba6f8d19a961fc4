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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"
	itypes "github.com/wcgcyx/callsim/types"
)

// mutableStateImpl implements MutableState.
type mutableStateImpl struct {
	// Snapshot this state is built on
	parent Snapshot

	// Accounts loaded in this block
	accounts map[common.Address]*mutableAccount

	// Code seen in this block
	codes map[common.Hash][]byte

	// Current transaction
	txHash         common.Hash
	txIdx          int
	refund         uint64
	logs           map[common.Hash][]*types.Log
	logSize        uint
	dirties        map[common.Address]int
	transientState map[common.Address]map[common.Hash]common.Hash
	accessAddress  map[common.Address]int
	accessStorage  []map[common.Hash]bool

	// Journal of reverts and valid revisions
	journal        []func()
	validRevisions []revision
	nextRevisionId int

	// First error met reading the snapshot
	dbErr error

	// Tracer
	logger *tracing.Hooks
}

// revision is a snapshot id with the journal length at the time.
type revision struct {
	id           int
	journalIndex int
}

// NewMutableState creates a new MutableState on top of the given snapshot.
func NewMutableState(parent Snapshot) MutableState {
	return &mutableStateImpl{
		parent:         parent,
		accounts:       make(map[common.Address]*mutableAccount),
		codes:          make(map[common.Hash][]byte),
		txIdx:          0,
		logs:           make(map[common.Hash][]*types.Log),
		dirties:        make(map[common.Address]int),
		transientState: make(map[common.Address]map[common.Hash]common.Hash),
		accessAddress:  make(map[common.Address]int),
		accessStorage:  make([]map[common.Hash]bool, 0),
		journal:        make([]func(), 0),
		validRevisions: make([]revision, 0),
	}
}

// SetLogger sets the logger for account update hooks.
func (s *mutableStateImpl) SetLogger(l *tracing.Hooks) {
	s.logger = l
}

// setError remembers the first error met.
func (s *mutableStateImpl) setError(err error) {
	if s.dbErr == nil {
		log.Warnf("Fail to read state at %v-%v: %v", s.parent.Height(), s.parent.BlockHash(), err.Error())
		s.dbErr = err
	}
}

// Error returns the first datastore error met.
func (s *mutableStateImpl) Error() error {
	return s.dbErr
}

// loadAccount loads the account for given address.
func (s *mutableStateImpl) loadAccount(addr common.Address) *mutableAccount {
	acct, ok := s.accounts[addr]
	if ok {
		return acct
	}
	val, err := s.parent.GetAccountValue(addr)
	if err != nil {
		s.setError(err)
		val = itypes.EmptyAccountValue(0)
	}
	acct = newMutableAccount(s, addr, val)
	s.accounts[addr] = acct
	return acct
}

// loadAccountToWrite loads the account and marks it dirty in current transaction.
func (s *mutableStateImpl) loadAccountToWrite(addr common.Address) *mutableAccount {
	acct := s.loadAccount(addr)
	s.dirties[addr]++
	s.recordJournal(func() {
		s.dirties[addr]--
		if s.dirties[addr] == 0 {
			delete(s.dirties, addr)
		}
	})
	return acct
}

// recordJournal is used to record a revert function.
func (s *mutableStateImpl) recordJournal(revert func()) {
	s.journal = append(s.journal, revert)
}

// Exist reports whether the given account address exists in the state.
// Notably this also returns true for self-destructed accounts.
func (s *mutableStateImpl) Exist(addr common.Address) bool {
	return s.loadAccount(addr).exists()
}

// Empty returns whether the state object is either non-existent
// or empty according to EIP161 (balance = nonce = code = 0).
func (s *mutableStateImpl) Empty(addr common.Address) bool {
	acct := s.loadAccount(addr)
	return !acct.exists() || acct.empty()
}

// GetBalance retrieves the balance from the given address or 0 if object not found.
func (s *mutableStateImpl) GetBalance(addr common.Address) *uint256.Int {
	return uint256.NewInt(0).Set(s.loadAccount(addr).balance)
}

// GetNonce retrieves the nonce from the given address or 0 if object not found.
func (s *mutableStateImpl) GetNonce(addr common.Address) uint64 {
	return s.loadAccount(addr).nonce
}

// GetCodeHash gets the code hash of the given address.
func (s *mutableStateImpl) GetCodeHash(addr common.Address) common.Hash {
	acct := s.loadAccount(addr)
	if !acct.exists() {
		return common.Hash{}
	}
	return acct.codeHash
}

// GetCode gets the code of the given address.
func (s *mutableStateImpl) GetCode(addr common.Address) []byte {
	return s.loadAccount(addr).code()
}

// GetCodeSize gets the size of the code of the given address.
func (s *mutableStateImpl) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

// GetStorageRoot retrieves the storage root from the given address or empty
// if object not found.
func (s *mutableStateImpl) GetStorageRoot(addr common.Address) common.Hash {
	acct := s.loadAccount(addr)
	if acct.exists() && acct.hasStorage() {
		// Storage is not kept in a trie, any non empty root serves the collision check.
		return common.HexToHash("1")
	}
	return types.EmptyRootHash
}

// GetState retrieves the value associated with the specific key.
func (s *mutableStateImpl) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.loadAccount(addr).getState(key)
}

// GetCommittedState retrieves the value associated with the specific key
// without any mutations caused in the current execution.
func (s *mutableStateImpl) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	return s.loadAccount(addr).getCommittedState(key)
}

// SetTxContext sets the current transaction hash and index which are
// used when the EVM emits new state logs. It should be invoked before
// transaction execution.
func (s *mutableStateImpl) SetTxContext(thash common.Hash, ti int) {
	s.txHash = thash
	s.txIdx = ti
}

// TxIndex returns the current transaction index set by SetTxContext.
func (s *mutableStateImpl) TxIndex() int {
	return s.txIdx
}

// Prepare handles the preparatory steps for executing a state transition with.
// This method must be invoked before state transition.
//
// Berlin fork:
// - Add sender to access list (2929)
// - Add destination to access list (2929)
// - Add precompiles to access list (2929)
// - Add the contents of the optional tx access list (2930)
//
// Potential EIPs:
// - Reset access list (Berlin)
// - Add coinbase to access list (EIP-3651)
// - Reset transient storage (EIP-1153)
func (s *mutableStateImpl) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	if rules.IsEIP2929 {
		// Clear out any leftover from previous executions
		s.accessAddress = make(map[common.Address]int)
		s.accessStorage = make([]map[common.Hash]bool, 0)

		s.AddAddressToAccessList(sender)
		if dest != nil {
			s.AddAddressToAccessList(*dest)
			// If it's a create-tx, the destination will be added inside evm.create
		}
		for _, addr := range precompiles {
			s.AddAddressToAccessList(addr)
		}
		for _, el := range txAccesses {
			s.AddAddressToAccessList(el.Address)
			for _, key := range el.StorageKeys {
				s.AddSlotToAccessList(el.Address, key)
			}
		}
		if rules.IsShanghai { // EIP-3651: warm coinbase
			s.AddAddressToAccessList(coinbase)
		}
	}
	// Reset transient storage at the beginning of transaction execution
	s.transientState = make(map[common.Address]map[common.Hash]common.Hash)
}

// CreateAccount explicitly creates a new state object. If the account already
// exists, a fresh incarnation replaces it.
func (s *mutableStateImpl) CreateAccount(addr common.Address) {
	acct := s.loadAccountToWrite(addr)
	s.recordJournal(acct.create())
}

// CreateContract is used whenever a contract is created. This may be preceded
// by CreateAccount, but that is not required if it already existed in the
// state due to funds sent beforehand.
// This operation sets the 'newContract'-flag, which is required in order to
// correctly handle EIP-6780 'delete-in-same-transaction' logic.
func (s *mutableStateImpl) CreateContract(addr common.Address) {
	acct := s.loadAccountToWrite(addr)
	if !acct.newContract {
		s.recordJournal(acct.markNewContract())
	}
}

// SubBalance subtracts amount from the account associated with addr.
func (s *mutableStateImpl) SubBalance(addr common.Address, amt *uint256.Int, reason tracing.BalanceChangeReason) {
	acct := s.loadAccountToWrite(addr)
	prev := uint256.NewInt(0).Set(acct.balance)
	if amt.IsZero() {
		s.recordJournal(acct.touch())
		return
	}
	newBal := uint256.NewInt(0).Sub(prev, amt)
	if prev.Lt(amt) {
		newBal.Clear()
	}
	s.recordJournal(acct.setBalance(newBal))

	if s.logger != nil && s.logger.OnBalanceChange != nil {
		s.logger.OnBalanceChange(addr, prev.ToBig(), newBal.ToBig(), reason)
	}
}

// AddBalance adds amount to the account associated with addr.
func (s *mutableStateImpl) AddBalance(addr common.Address, amt *uint256.Int, reason tracing.BalanceChangeReason) {
	acct := s.loadAccountToWrite(addr)
	prev := uint256.NewInt(0).Set(acct.balance)
	if amt.IsZero() {
		// Zero transfer still touches the account.
		s.recordJournal(acct.touch())
		return
	}
	newBal := uint256.NewInt(0).Add(prev, amt)
	s.recordJournal(acct.setBalance(newBal))

	if s.logger != nil && s.logger.OnBalanceChange != nil {
		s.logger.OnBalanceChange(addr, prev.ToBig(), newBal.ToBig(), reason)
	}
}

// SetBalance sets the balance of the account associated with addr.
func (s *mutableStateImpl) SetBalance(addr common.Address, amt *uint256.Int, reason tracing.BalanceChangeReason) {
	acct := s.loadAccountToWrite(addr)
	prev := uint256.NewInt(0).Set(acct.balance)
	s.recordJournal(acct.setBalance(amt))

	if s.logger != nil && s.logger.OnBalanceChange != nil {
		s.logger.OnBalanceChange(addr, prev.ToBig(), amt.ToBig(), reason)
	}
}

// SetNonce sets the given nonce to the given address.
func (s *mutableStateImpl) SetNonce(addr common.Address, nonce uint64) {
	acct := s.loadAccountToWrite(addr)

	if s.logger != nil && s.logger.OnNonceChange != nil {
		s.logger.OnNonceChange(addr, acct.nonce, nonce)
	}

	s.recordJournal(acct.setNonce(nonce))
}

// SetCode sets the code to the given address.
func (s *mutableStateImpl) SetCode(addr common.Address, code []byte) {
	acct := s.loadAccountToWrite(addr)
	codeHash := crypto.Keccak256Hash(code)

	if s.logger != nil && s.logger.OnCodeChange != nil {
		prevHash := acct.codeHash
		if !acct.exists() {
			prevHash = types.EmptyCodeHash
		}
		s.logger.OnCodeChange(addr, prevHash, acct.code(), codeHash, code)
	}

	s.codes[codeHash] = code
	s.recordJournal(acct.setCode(codeHash))
}

// SetState sets the value associated with the specific key.
func (s *mutableStateImpl) SetState(addr common.Address, key common.Hash, val common.Hash) {
	acct := s.loadAccountToWrite(addr)

	if s.logger != nil && s.logger.OnStorageChange != nil {
		s.logger.OnStorageChange(addr, key, acct.getState(key), val)
	}

	s.recordJournal(acct.setState(key, val))
}

// GetTransientState gets transient storage for a given account.
func (s *mutableStateImpl) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	storageMap, ok := s.transientState[addr]
	if !ok {
		return common.Hash{}
	}
	return storageMap[key]
}

// SetTransientState sets transient storage for a given account. It
// adds the change to the journal so that it can be rolled back
// to its previous value if there is a revert.
func (s *mutableStateImpl) SetTransientState(addr common.Address, key common.Hash, val common.Hash) {
	storageMap, ok := s.transientState[addr]
	if !ok {
		storageMap = make(map[common.Hash]common.Hash)
		s.transientState[addr] = storageMap
		s.recordJournal(func() { delete(s.transientState, addr) })
	}
	original, ok := storageMap[key]
	storageMap[key] = val
	if ok {
		s.recordJournal(func() { storageMap[key] = original })
		return
	}
	s.recordJournal(func() { delete(storageMap, key) })
}

// GetRefund returns the current value of the refund counter.
func (s *mutableStateImpl) GetRefund() uint64 {
	return s.refund
}

// AddRefund adds gas to the refund counter.
func (s *mutableStateImpl) AddRefund(gas uint64) {
	original := s.refund
	s.refund += gas
	s.recordJournal(func() { s.refund = original })
}

// SubRefund removes gas from the refund counter.
// This method will panic if the refund counter goes below zero.
func (s *mutableStateImpl) SubRefund(gas uint64) {
	original := s.refund
	if s.refund < gas {
		log.Panicf("Refund counter below zero (gas: %d > refund: %d)", gas, s.refund)
	}
	s.refund -= gas
	s.recordJournal(func() { s.refund = original })
}

// HasSelfDestructed checks if given account was marked as self-destructed.
func (s *mutableStateImpl) HasSelfDestructed(addr common.Address) bool {
	return s.loadAccount(addr).selfDestructed
}

// SelfDestruct marks the given account as selfdestructed.
// This clears the account balance.
//
// The account is still available until the state is finalised.
func (s *mutableStateImpl) SelfDestruct(addr common.Address) {
	acct := s.loadAccountToWrite(addr)
	if !acct.exists() {
		return
	}

	if s.logger != nil && s.logger.OnBalanceChange != nil && acct.balance.Sign() > 0 {
		s.logger.OnBalanceChange(addr, acct.balance.ToBig(), new(big.Int), tracing.BalanceDecreaseSelfdestruct)
	}

	s.recordJournal(acct.selfDestruct())
}

// Selfdestruct6780 destructs the given account according to EIP-6780.
func (s *mutableStateImpl) Selfdestruct6780(addr common.Address) {
	if s.loadAccount(addr).newContract {
		s.SelfDestruct(addr)
	}
}

// AddressInAccessList returns true if the given address is in the access list.
func (s *mutableStateImpl) AddressInAccessList(addr common.Address) bool {
	_, ok := s.accessAddress[addr]
	return ok
}

// AddAddressToAccessList adds the given address to the access list.
func (s *mutableStateImpl) AddAddressToAccessList(addr common.Address) {
	_, ok := s.accessAddress[addr]
	if ok {
		return
	}
	s.accessAddress[addr] = -1
	s.recordJournal(func() { delete(s.accessAddress, addr) })
}

// SlotInAccessList returns true if the given (address, slot)-tuple is in the access list.
func (s *mutableStateImpl) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk bool, slotOk bool) {
	idx, ok := s.accessAddress[addr]
	if !ok {
		return false, false
	}
	if idx == -1 {
		return true, false
	}
	_, slotOk = s.accessStorage[idx][slot]
	return true, slotOk
}

// AddSlotToAccessList adds the given (address, slot)-tuple to the access list.
func (s *mutableStateImpl) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	idx, ok := s.accessAddress[addr]
	if !ok {
		s.accessAddress[addr] = len(s.accessStorage)
		s.accessStorage = append(s.accessStorage, make(map[common.Hash]bool))
		s.recordJournal(func() {
			s.accessStorage = s.accessStorage[:len(s.accessStorage)-1]
			delete(s.accessAddress, addr)
		})
	} else if idx == -1 {
		s.accessAddress[addr] = len(s.accessStorage)
		s.accessStorage = append(s.accessStorage, make(map[common.Hash]bool))
		s.recordJournal(func() {
			s.accessStorage = s.accessStorage[:len(s.accessStorage)-1]
			s.accessAddress[addr] = -1
		})
	}
	idx = s.accessAddress[addr]
	_, ok = s.accessStorage[idx][slot]
	if !ok {
		s.accessStorage[idx][slot] = true
		s.recordJournal(func() { delete(s.accessStorage[idx], slot) })
	}
}

// PointCache returns the point cache used in computations.
// Verkle rules are never activated here.
func (s *mutableStateImpl) PointCache() *utils.PointCache {
	return nil
}

// Witness retrieves the current state witness being collected.
func (s *mutableStateImpl) Witness() *stateless.Witness {
	return nil
}

// AddLog adds a log to the log list.
func (s *mutableStateImpl) AddLog(l *types.Log) {
	l.TxHash = s.txHash
	l.TxIndex = uint(s.txIdx)
	l.Index = s.logSize
	s.logs[s.txHash] = append(s.logs[s.txHash], l)
	s.logSize++
	txHash := s.txHash
	s.recordJournal(func() {
		logs := s.logs[txHash]
		if len(logs) == 1 {
			delete(s.logs, txHash)
		} else {
			s.logs[txHash] = logs[:len(logs)-1]
		}
		s.logSize--
	})

	if s.logger != nil && s.logger.OnLog != nil {
		s.logger.OnLog(l)
	}
}

// GetLogs returns the logs matching the specified transaction hash, and annotates
// them with the given blockNumber and blockHash.
func (s *mutableStateImpl) GetLogs(hash common.Hash, blockNumber uint64, blockHash common.Hash) []*types.Log {
	logs := s.logs[hash]
	for _, l := range logs {
		l.BlockNumber = blockNumber
		l.BlockHash = blockHash
	}
	return logs
}

// AddPreimage records a SHA3 preimage seen by the VM.
func (s *mutableStateImpl) AddPreimage(key common.Hash, val []byte) {
	// Not supported.
}

// Snapshot returns an identifier for the current revision of the state.
func (s *mutableStateImpl) Snapshot() int {
	id := s.nextRevisionId
	s.nextRevisionId++
	s.validRevisions = append(s.validRevisions, revision{id: id, journalIndex: len(s.journal)})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *mutableStateImpl) RevertToSnapshot(revid int) {
	idx := -1
	for i := len(s.validRevisions) - 1; i >= 0; i-- {
		if s.validRevisions[i].id == revid {
			idx = i
			break
		}
	}
	if idx == -1 {
		log.Panicf("Revision id %v cannot be reverted", revid)
	}
	snapshot := s.validRevisions[idx].journalIndex
	for i := len(s.journal) - 1; i >= snapshot; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:snapshot]
	s.validRevisions = s.validRevisions[:idx]
}

// Finalise finalises the state by removing the destructed objects and clears
// the journal as well as the refunds.
func (s *mutableStateImpl) Finalise(deleteEmptyObjects bool) {
	for addr := range s.dirties {
		acct := s.accounts[addr]
		// If ether was sent to account post-selfdestruct it is burnt.
		if bal := acct.balance; s.logger != nil && s.logger.OnBalanceChange != nil && acct.selfDestructed && bal.Sign() != 0 {
			s.logger.OnBalanceChange(addr, bal.ToBig(), new(big.Int), tracing.BalanceDecreaseSelfdestructBurn)
		}
		acct.finalise(deleteEmptyObjects)
	}
	s.dirties = make(map[common.Address]int)
	s.refund = 0
	s.journal = make([]func(), 0)
	s.validRevisions = s.validRevisions[:0]
}

// LayerLog builds the layer log of all finalised changes.
func (s *mutableStateImpl) LayerLog(number uint64, blockHash common.Hash, parentHash common.Hash) itypes.LayerLog {
	res := itypes.NewLayerLog(number, blockHash, parentHash)
	for addr, acct := range s.accounts {
		if !acct.changed() {
			continue
		}
		res.UpdatedAccounts[addr] = acct.committed.Copy()
		if acct.committed.Exists() && len(acct.committedStorage) > 0 {
			storage := make(map[common.Hash]common.Hash)
			for k, v := range acct.committedStorage {
				storage[k] = v
			}
			res.UpdatedStorage[itypes.GetAccountStorageKey(addr, acct.committed.Version)] = storage
		}
		code, ok := s.codes[acct.committed.CodeHash]
		if ok && acct.committed.CodeHash != acct.origin.CodeHash {
			res.CodePreimage[acct.committed.CodeHash] = code
		}
	}
	return *res
}
