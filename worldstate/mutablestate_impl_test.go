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
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	itypes "github.com/wcgcyx/callsim/types"
)

// memSnapshot is an in-memory snapshot for testing.
type memSnapshot struct {
	accts   map[common.Address]itypes.AccountValue
	storage map[string]map[common.Hash]common.Hash
	code    map[common.Hash][]byte
	err     error
}

func newMemSnapshot() *memSnapshot {
	return &memSnapshot{
		accts:   make(map[common.Address]itypes.AccountValue),
		storage: make(map[string]map[common.Hash]common.Hash),
		code:    make(map[common.Hash][]byte),
	}
}

func (s *memSnapshot) Height() uint64 { return 1 }

func (s *memSnapshot) BlockHash() common.Hash { return common.HexToHash("0x1") }

func (s *memSnapshot) GetAccountValue(addr common.Address) (itypes.AccountValue, error) {
	if s.err != nil {
		return itypes.AccountValue{}, s.err
	}
	acct, ok := s.accts[addr]
	if !ok {
		return itypes.EmptyAccountValue(0), nil
	}
	return acct.Copy(), nil
}

func (s *memSnapshot) GetStorageByVersion(addr common.Address, version uint64, key common.Hash) (common.Hash, error) {
	return s.storage[itypes.GetAccountStorageKey(addr, version)][key], nil
}

func (s *memSnapshot) GetCodeByHash(codeHash common.Hash) ([]byte, error) {
	code, ok := s.code[codeHash]
	if !ok {
		return nil, errors.New("code not found")
	}
	return code, nil
}

func testSnapshot() *memSnapshot {
	snap := newMemSnapshot()
	code := []byte{0x60, 0x00}
	codeHash := crypto.Keccak256Hash(code)
	snap.code[codeHash] = code
	snap.accts[testAddr1] = itypes.AccountValue{
		Nonce:    1,
		Balance:  uint256.NewInt(100),
		CodeHash: types.EmptyCodeHash,
		Version:  1,
	}
	snap.accts[testAddr2] = itypes.AccountValue{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		CodeHash: codeHash,
		Version:  3,
	}
	snap.storage[itypes.GetAccountStorageKey(testAddr2, 3)] = map[common.Hash]common.Hash{testKey1: testVal1}
	// Storage of an old incarnation
	snap.storage[itypes.GetAccountStorageKey(testAddr2, 1)] = map[common.Hash]common.Hash{testKey1: common.HexToHash("0x99")}
	return snap
}

func TestMutableStateGetters(t *testing.T) {
	state := NewMutableState(testSnapshot())
	assert.True(t, state.Exist(testAddr1))
	assert.False(t, state.Empty(testAddr1))
	assert.Equal(t, uint64(100), state.GetBalance(testAddr1).Uint64())
	assert.Equal(t, uint64(1), state.GetNonce(testAddr1))
	assert.Equal(t, types.EmptyCodeHash, state.GetCodeHash(testAddr1))
	assert.Nil(t, state.GetCode(testAddr1))

	assert.Equal(t, []byte{0x60, 0x00}, state.GetCode(testAddr2))
	assert.Equal(t, 2, state.GetCodeSize(testAddr2))
	assert.Equal(t, testVal1, state.GetState(testAddr2, testKey1))
	assert.Equal(t, testVal1, state.GetCommittedState(testAddr2, testKey1))
	assert.Equal(t, types.EmptyRootHash, state.GetStorageRoot(testAddr1))
	state.SetState(testAddr1, testKey1, testVal1)
	assert.NotEqual(t, types.EmptyRootHash, state.GetStorageRoot(testAddr1))

	unknown := common.HexToAddress("0x03")
	assert.False(t, state.Exist(unknown))
	assert.True(t, state.Empty(unknown))
	assert.Equal(t, common.Hash{}, state.GetCodeHash(unknown))
	assert.Equal(t, types.EmptyRootHash, state.GetStorageRoot(unknown))
	assert.Nil(t, state.Error())
}

func TestMutableStateError(t *testing.T) {
	snap := testSnapshot()
	snap.err = errors.New("test error")
	state := NewMutableState(snap)
	assert.Equal(t, uint64(0), state.GetBalance(testAddr1).Uint64())
	assert.NotNil(t, state.Error())
}

func TestMutableStateRevert(t *testing.T) {
	state := NewMutableState(testSnapshot())
	id0 := state.Snapshot()
	state.SubBalance(testAddr1, uint256.NewInt(10), tracing.BalanceChangeTransfer)
	state.SetNonce(testAddr1, 2)
	id1 := state.Snapshot()
	state.SetState(testAddr2, testKey1, common.HexToHash("0x22"))
	state.AddRefund(100)
	state.SetTransientState(testAddr2, testKey1, testVal1)
	state.AddLog(&types.Log{Address: testAddr2})
	assert.Equal(t, common.HexToHash("0x22"), state.GetState(testAddr2, testKey1))
	assert.Equal(t, testVal1, state.GetCommittedState(testAddr2, testKey1))
	assert.Equal(t, uint64(100), state.GetRefund())
	assert.Equal(t, testVal1, state.GetTransientState(testAddr2, testKey1))

	state.RevertToSnapshot(id1)
	assert.Equal(t, testVal1, state.GetState(testAddr2, testKey1))
	assert.Equal(t, uint64(0), state.GetRefund())
	assert.Equal(t, common.Hash{}, state.GetTransientState(testAddr2, testKey1))
	assert.Len(t, state.GetLogs(common.Hash{}, 1, common.Hash{}), 0)
	assert.Equal(t, uint64(90), state.GetBalance(testAddr1).Uint64())
	assert.Equal(t, uint64(2), state.GetNonce(testAddr1))

	state.RevertToSnapshot(id0)
	assert.Equal(t, uint64(100), state.GetBalance(testAddr1).Uint64())
	assert.Equal(t, uint64(1), state.GetNonce(testAddr1))

	assert.Panics(t, func() { state.RevertToSnapshot(id1) })
}

func TestMutableStateAccessList(t *testing.T) {
	state := NewMutableState(testSnapshot())
	id := state.Snapshot()
	state.AddAddressToAccessList(testAddr1)
	state.AddSlotToAccessList(testAddr2, testKey1)
	assert.True(t, state.AddressInAccessList(testAddr1))
	addrOk, slotOk := state.SlotInAccessList(testAddr1, testKey1)
	assert.True(t, addrOk)
	assert.False(t, slotOk)
	addrOk, slotOk = state.SlotInAccessList(testAddr2, testKey1)
	assert.True(t, addrOk)
	assert.True(t, slotOk)

	state.RevertToSnapshot(id)
	assert.False(t, state.AddressInAccessList(testAddr1))
	assert.False(t, state.AddressInAccessList(testAddr2))
}

func TestMutableStateTransferLayerLog(t *testing.T) {
	state := NewMutableState(testSnapshot())
	receiver := common.HexToAddress("0x03")
	state.SetTxContext(common.HexToHash("0xaa"), 0)
	state.SubBalance(testAddr1, uint256.NewInt(10), tracing.BalanceChangeTransfer)
	state.AddBalance(receiver, uint256.NewInt(10), tracing.BalanceChangeTransfer)
	state.SetNonce(testAddr1, 2)
	state.AddLog(&types.Log{Address: receiver})
	// Read only access does not show up in the layer log
	state.GetState(testAddr2, testKey1)
	state.Finalise(true)

	logs := state.GetLogs(common.HexToHash("0xaa"), 5, common.HexToHash("0x5"))
	assert.Len(t, logs, 1)
	assert.Equal(t, uint64(5), logs[0].BlockNumber)
	assert.Equal(t, uint(0), logs[0].Index)

	layerLog := state.LayerLog(2, common.HexToHash("0x2"), common.HexToHash("0x1"))
	assert.Equal(t, uint64(2), layerLog.BlockNumber)
	assert.Len(t, layerLog.UpdatedAccounts, 2)
	assert.Equal(t, uint64(90), layerLog.UpdatedAccounts[testAddr1].Balance.Uint64())
	assert.Equal(t, uint64(2), layerLog.UpdatedAccounts[testAddr1].Nonce)
	assert.Equal(t, uint64(10), layerLog.UpdatedAccounts[receiver].Balance.Uint64())
	assert.Equal(t, uint64(1), layerLog.UpdatedAccounts[receiver].Version)
	assert.Len(t, layerLog.UpdatedStorage, 0)
}

func TestMutableStateTouchEmpty(t *testing.T) {
	state := NewMutableState(testSnapshot())
	unknown := common.HexToAddress("0x03")
	state.AddBalance(unknown, uint256.NewInt(0), tracing.BalanceChangeTransfer)
	assert.True(t, state.Exist(unknown))
	state.Finalise(true)
	assert.False(t, state.Exist(unknown))

	layerLog := state.LayerLog(2, common.HexToHash("0x2"), common.HexToHash("0x1"))
	assert.Len(t, layerLog.UpdatedAccounts, 0)
}

func TestMutableStateSelfDestruct(t *testing.T) {
	state := NewMutableState(testSnapshot())
	state.SetState(testAddr2, common.HexToHash("0x2"), common.HexToHash("0x22"))
	state.Finalise(true)

	state.AddBalance(testAddr2, uint256.NewInt(5), tracing.BalanceChangeTransfer)
	state.SelfDestruct(testAddr2)
	assert.True(t, state.HasSelfDestructed(testAddr2))
	assert.True(t, state.Exist(testAddr2))
	assert.Equal(t, uint64(0), state.GetBalance(testAddr2).Uint64())
	// Storage is still readable before finalise
	assert.Equal(t, testVal1, state.GetState(testAddr2, testKey1))
	state.Finalise(true)
	assert.False(t, state.Exist(testAddr2))
	assert.Equal(t, common.Hash{}, state.GetState(testAddr2, testKey1))

	layerLog := state.LayerLog(2, common.HexToHash("0x2"), common.HexToHash("0x1"))
	acct := layerLog.UpdatedAccounts[testAddr2]
	assert.Equal(t, uint64(4), acct.Version)
	assert.False(t, acct.Exists())
	assert.Len(t, layerLog.UpdatedStorage, 0)

	// Recreate gets a fresh incarnation, old storage never comes back.
	state.CreateAccount(testAddr2)
	state.CreateContract(testAddr2)
	state.SetCode(testAddr2, []byte{0x01})
	assert.Equal(t, common.Hash{}, state.GetState(testAddr2, testKey1))
	state.Finalise(true)
	layerLog = state.LayerLog(2, common.HexToHash("0x2"), common.HexToHash("0x1"))
	acct = layerLog.UpdatedAccounts[testAddr2]
	assert.Equal(t, uint64(5), acct.Version)
	assert.Equal(t, crypto.Keccak256Hash([]byte{0x01}), acct.CodeHash)
	assert.Equal(t, []byte{0x01}, layerLog.CodePreimage[acct.CodeHash])
}

func TestMutableStateSelfdestruct6780(t *testing.T) {
	state := NewMutableState(testSnapshot())
	// Not created in this transaction
	state.Selfdestruct6780(testAddr2)
	assert.False(t, state.HasSelfDestructed(testAddr2))

	created := common.HexToAddress("0x03")
	state.CreateAccount(created)
	state.CreateContract(created)
	state.SetState(created, testKey1, testVal1)
	state.Selfdestruct6780(created)
	assert.True(t, state.HasSelfDestructed(created))
	state.Finalise(true)

	// Account never existed before, so it is left untouched.
	layerLog := state.LayerLog(2, common.HexToHash("0x2"), common.HexToHash("0x1"))
	_, ok := layerLog.UpdatedAccounts[created]
	assert.False(t, ok)
}

func TestMutableStateCreateOnExisting(t *testing.T) {
	state := NewMutableState(testSnapshot())
	state.CreateAccount(testAddr2)
	assert.Equal(t, common.Hash{}, state.GetState(testAddr2, testKey1))
	assert.Equal(t, common.Hash{}, state.GetCommittedState(testAddr2, testKey1))
	state.SetState(testAddr2, testKey1, common.HexToHash("0x33"))
	state.Finalise(false)

	layerLog := state.LayerLog(2, common.HexToHash("0x2"), common.HexToHash("0x1"))
	acct := layerLog.UpdatedAccounts[testAddr2]
	assert.Equal(t, uint64(5), acct.Version)
	assert.Equal(t, common.HexToHash("0x33"), layerLog.UpdatedStorage[itypes.GetAccountStorageKey(testAddr2, 5)][testKey1])
}

func TestMutableStateHooks(t *testing.T) {
	state := NewMutableState(testSnapshot())
	balances := 0
	nonces := 0
	storages := 0
	codes := 0
	state.SetLogger(&tracing.Hooks{
		OnBalanceChange: func(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) { balances++ },
		OnNonceChange:   func(addr common.Address, prev, new uint64) { nonces++ },
		OnStorageChange: func(addr common.Address, slot common.Hash, prev, new common.Hash) { storages++ },
		OnCodeChange: func(addr common.Address, prevCodeHash common.Hash, prevCode []byte, codeHash common.Hash, code []byte) {
			codes++
		},
	})
	state.AddBalance(testAddr1, uint256.NewInt(1), tracing.BalanceChangeTransfer)
	state.SubBalance(testAddr1, uint256.NewInt(1), tracing.BalanceChangeTransfer)
	state.SetNonce(testAddr1, 5)
	state.SetState(testAddr1, testKey1, testVal1)
	state.SetCode(testAddr1, []byte{0x01})
	assert.Equal(t, 2, balances)
	assert.Equal(t, 1, nonces)
	assert.Equal(t, 1, storages)
	assert.Equal(t, 1, codes)
}
