package statestore

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
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	itypes "github.com/wcgcyx/callsim/types"
)

const (
	testDS       = "./test-ds"
	testAcct1Str = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testAcct2Str = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

var testGenesisHash = common.HexToHash("0x1234")

func TestMain(m *testing.M) {
	os.RemoveAll(testDS)
	os.Mkdir(testDS, os.ModePerm)
	code := m.Run()
	os.RemoveAll(testDS)
	os.Exit(code)
}

func testGenesis() *core.Genesis {
	return &core.Genesis{
		Config: params.AllDevChainProtocolChanges,
		Alloc: types.GenesisAlloc{
			common.HexToAddress(testAcct1Str): {Balance: big.NewInt(1000)},
			common.HexToAddress(testAcct2Str): {
				Balance: big.NewInt(0),
				Code:    []byte{0x00},
				Storage: map[common.Hash]common.Hash{common.HexToHash("0x01"): common.HexToHash("0x64")},
			},
		},
	}
}

func testOpts() Opts {
	return Opts{
		Path:         testDS,
		GCPeriod:     time.Minute,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func TestNewStateStore(t *testing.T) {
	defer os.RemoveAll(testDS)

	ctx := context.Background()

	// Empty path should fail
	_, err := NewStateStoreImpl(ctx, Opts{GCPeriod: time.Minute}, nil, common.Hash{})
	assert.NotNil(t, err)

	// Should fail if starting from genesis with empty genesis
	_, err = NewStateStoreImpl(ctx, testOpts(), nil, common.Hash{})
	assert.NotNil(t, err)

	// Start from genesis should work
	sstore, err := NewStateStoreImpl(ctx, testOpts(), testGenesis(), testGenesisHash)
	assert.Nil(t, err)
	sstore.Shutdown()

	// Open existing should work
	sstore, err = NewStateStoreImpl(ctx, testOpts(), nil, common.Hash{})
	assert.Nil(t, err)
	defer sstore.Shutdown()

	height, hash, err := sstore.GetPersistedHeight()
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), height)
	assert.Equal(t, testGenesisHash, hash)

	acct, err := sstore.GetAccountValue(common.HexToAddress(testAcct1Str))
	assert.Nil(t, err)
	assert.True(t, acct.Exists())
	assert.Equal(t, uint64(1000), acct.Balance.Uint64())

	acct, err = sstore.GetAccountValue(common.HexToAddress(testAcct2Str))
	assert.Nil(t, err)
	code, err := sstore.GetCodeByHash(acct.CodeHash)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0x00}, code)
	val, err := sstore.GetStorageByVersion(common.HexToAddress(testAcct2Str), acct.Version, common.HexToHash("0x01"))
	assert.Nil(t, err)
	assert.Equal(t, common.HexToHash("0x64"), val)

	// Unknown account is empty
	acct, err = sstore.GetAccountValue(common.HexToAddress("0x99"))
	assert.Nil(t, err)
	assert.False(t, acct.Exists())
	assert.Equal(t, types.EmptyCodeHash, acct.CodeHash)
}

func TestPutAndDeleteLayerLog(t *testing.T) {
	defer os.RemoveAll(testDS)

	sstore, err := NewStateStoreImpl(context.Background(), testOpts(), testGenesis(), testGenesisHash)
	assert.Nil(t, err)
	defer sstore.Shutdown()

	layerLog := itypes.NewLayerLog(1, common.HexToHash("0x01"), testGenesisHash)
	layerLog.UpdatedAccounts[common.HexToAddress(testAcct1Str)] = itypes.AccountValue{
		Nonce:    1,
		Balance:  uint256.NewInt(900),
		CodeHash: types.EmptyCodeHash,
		Version:  1,
	}

	_, err = sstore.GetLayerLog(1, layerLog.BlockHash)
	assert.NotNil(t, err)

	txn, err := sstore.NewTransaction()
	assert.Nil(t, err)
	assert.Nil(t, txn.PutLayerLog(*layerLog))
	assert.Nil(t, txn.Commit())
	txn.Discard()

	stored, err := sstore.GetLayerLog(1, layerLog.BlockHash)
	assert.Nil(t, err)
	assert.Equal(t, layerLog.ParentHash, stored.ParentHash)
	assert.Equal(t, uint64(900), stored.UpdatedAccounts[common.HexToAddress(testAcct1Str)].Balance.Uint64())

	txn, err = sstore.NewTransaction()
	assert.Nil(t, err)
	assert.Nil(t, txn.DeleteLayerLog(1, layerLog.BlockHash))
	assert.Nil(t, txn.Commit())
	txn.Discard()

	_, err = sstore.GetLayerLog(1, layerLog.BlockHash)
	assert.NotNil(t, err)
}

func TestPersistLayerLog(t *testing.T) {
	defer os.RemoveAll(testDS)

	sstore, err := NewStateStoreImpl(context.Background(), testOpts(), testGenesis(), testGenesisHash)
	assert.Nil(t, err)
	defer sstore.Shutdown()

	acct2 := common.HexToAddress(testAcct2Str)
	newAcct := common.HexToAddress("0x42")
	code := []byte{0x60, 0x00}

	// Destruct account 2 and create a new contract account.
	layerLog := itypes.NewLayerLog(1, common.HexToHash("0x01"), testGenesisHash)
	layerLog.UpdatedAccounts[acct2] = itypes.EmptyAccountValue(2)
	layerLog.UpdatedAccounts[newAcct] = itypes.AccountValue{
		Nonce:    1,
		Balance:  uint256.NewInt(5),
		CodeHash: crypto.Keccak256Hash(code),
		Version:  1,
	}
	layerLog.CodePreimage[crypto.Keccak256Hash(code)] = code
	layerLog.UpdatedStorage[itypes.GetAccountStorageKey(newAcct, 1)] = map[common.Hash]common.Hash{
		common.HexToHash("0x00"): common.HexToHash("0x05"),
	}

	txn, err := sstore.NewTransaction()
	assert.Nil(t, err)
	assert.Nil(t, txn.PersistLayerLog(*layerLog))
	assert.Nil(t, txn.Commit())
	txn.Discard()

	height, hash, err := sstore.GetPersistedHeight()
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), height)
	assert.Equal(t, common.HexToHash("0x01"), hash)

	acct, err := sstore.GetAccountValue(acct2)
	assert.Nil(t, err)
	assert.False(t, acct.Exists())
	assert.Equal(t, uint64(2), acct.Version)
	// Storage of the new version is empty
	val, err := sstore.GetStorageByVersion(acct2, acct.Version, common.HexToHash("0x01"))
	assert.Nil(t, err)
	assert.Equal(t, common.Hash{}, val)

	acct, err = sstore.GetAccountValue(newAcct)
	assert.Nil(t, err)
	assert.True(t, acct.Exists())
	stored, err := sstore.GetCodeByHash(acct.CodeHash)
	assert.Nil(t, err)
	assert.Equal(t, code, stored)
	val, err = sstore.GetStorageByVersion(newAcct, 1, common.HexToHash("0x00"))
	assert.Nil(t, err)
	assert.Equal(t, common.HexToHash("0x05"), val)

	// GC clears the storage of the destructed incarnation.
	impl := sstore.(*stateStoreImpl)
	accts, slots := impl.gcRound()
	assert.Equal(t, 1, accts)
	assert.Equal(t, 1, slots)
	val, err = sstore.GetStorageByVersion(acct2, 1, common.HexToHash("0x01"))
	assert.Nil(t, err)
	assert.Equal(t, common.Hash{}, val)
}
