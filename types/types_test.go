package types

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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestAccountVersion(t *testing.T) {
	assert.False(t, EmptyAccountValue(0).Exists())
	assert.True(t, EmptyAccountValue(1).Exists())
	assert.False(t, EmptyAccountValue(2).Exists())

	acct := AccountValue{Nonce: 1, Balance: uint256.NewInt(10), CodeHash: types.EmptyCodeHash, Version: 1}
	cp := acct.Copy()
	cp.Balance.SetUint64(11)
	assert.Equal(t, uint64(10), acct.Balance.Uint64())
}

func TestSplitAccountStorageKey(t *testing.T) {
	addr := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	addr2, version, err := SplitAccountStorageKey(GetAccountStorageKey(addr, 7))
	assert.Nil(t, err)
	assert.Equal(t, addr, addr2)
	assert.Equal(t, uint64(7), version)

	_, _, err = SplitAccountStorageKey("bad")
	assert.NotNil(t, err)
	_, _, err = SplitAccountStorageKey(addr.Hex() + "-x")
	assert.NotNil(t, err)
}

func TestLayerLogFromGenesis(t *testing.T) {
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x55}
	contract := common.HexToAddress("0x1111")
	eoa := common.HexToAddress("0x2222")
	genesis := &core.Genesis{
		Config: params.AllDevChainProtocolChanges,
		Alloc: types.GenesisAlloc{
			contract: {
				Balance: big.NewInt(0),
				Code:    code,
				Storage: map[common.Hash]common.Hash{common.HexToHash("0x01"): common.HexToHash("0x02")},
			},
			eoa: {Balance: big.NewInt(100), Nonce: 3},
		},
	}
	layerLog := LayerLogFromGenesis(genesis, common.HexToHash("0xabcd"))
	assert.Equal(t, uint64(0), layerLog.BlockNumber)
	assert.Equal(t, common.HexToHash("0xabcd"), layerLog.BlockHash)
	assert.Equal(t, crypto.Keccak256Hash(code), layerLog.UpdatedAccounts[contract].CodeHash)
	assert.Equal(t, code, layerLog.CodePreimage[crypto.Keccak256Hash(code)])
	assert.Equal(t, common.HexToHash("0x02"), layerLog.UpdatedStorage[GetAccountStorageKey(contract, 1)][common.HexToHash("0x01")])
	assert.Equal(t, uint64(3), layerLog.UpdatedAccounts[eoa].Nonce)
	assert.Equal(t, types.EmptyCodeHash, layerLog.UpdatedAccounts[eoa].CodeHash)

	decoded, err := DecodeLayerLog(EncodeLayerLog(*layerLog))
	assert.Nil(t, err)
	assert.Equal(t, layerLog.BlockHash, decoded.BlockHash)
	assert.Equal(t, len(layerLog.UpdatedAccounts), len(decoded.UpdatedAccounts))
	assert.Equal(t, uint64(100), decoded.UpdatedAccounts[eoa].Balance.Uint64())
	assert.Equal(t, code, decoded.CodePreimage[crypto.Keccak256Hash(code)])
	assert.Equal(t, layerLog.UpdatedStorage, decoded.UpdatedStorage)
}
