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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// AccountValue is used to represent the state of an account.
//
// The version is used to namespace the storage of an account. An odd version
// means the account is alive, an even version means it does not exist. Every
// creation or destruction bumps the version, so slots written under an older
// incarnation are never visible again.
type AccountValue struct {
	// The nonce of the account
	Nonce uint64

	// The balance of the account
	Balance *uint256.Int

	// The code hash of this account
	CodeHash common.Hash

	// Version of the account
	Version uint64
}

// EmptyAccountValue returns the value of an account that has never existed
// or has been destructed at the given version.
func EmptyAccountValue(version uint64) AccountValue {
	return AccountValue{
		Nonce:    0,
		Balance:  uint256.NewInt(0),
		CodeHash: types.EmptyCodeHash,
		Version:  version,
	}
}

// Exists returns true if the account is alive.
func (v AccountValue) Exists() bool {
	return v.Version%2 == 1
}

// Copy returns a deep copy of the account value.
func (v AccountValue) Copy() AccountValue {
	bal := uint256.NewInt(0)
	if v.Balance != nil {
		bal.Set(v.Balance)
	}
	return AccountValue{
		Nonce:    v.Nonce,
		Balance:  bal,
		CodeHash: v.CodeHash,
		Version:  v.Version,
	}
}

// LayerLog is used to represent the state changes introduced by one block.
type LayerLog struct {
	// Block number of this layer
	BlockNumber uint64

	// Block hash of this layer
	BlockHash common.Hash

	// Parent block hash of this layer
	ParentHash common.Hash

	// Updated accounts in this layer
	// A map from addr -> acct value
	UpdatedAccounts map[common.Address]AccountValue

	// Seen code in this layer
	// A map from codeHash -> code
	CodePreimage map[common.Hash][]byte

	// Updated storage in this layer
	// A map from "addr.Hex()-version" -> key -> value
	UpdatedStorage map[string]map[common.Hash]common.Hash
}

// NewLayerLog creates an empty layer log for the given block.
func NewLayerLog(number uint64, hash common.Hash, parent common.Hash) *LayerLog {
	return &LayerLog{
		BlockNumber:     number,
		BlockHash:       hash,
		ParentHash:      parent,
		UpdatedAccounts: make(map[common.Address]AccountValue),
		CodePreimage:    make(map[common.Hash][]byte),
		UpdatedStorage:  make(map[string]map[common.Hash]common.Hash),
	}
}

// LayerLogFromGenesis creates the layer log for the genesis block.
func LayerLogFromGenesis(genesis *core.Genesis, genesisHash common.Hash) *LayerLog {
	layerLog := NewLayerLog(0, genesisHash, common.Hash{})
	for addr, account := range genesis.Alloc {
		bal := uint256.NewInt(0)
		if account.Balance != nil {
			bal = uint256.MustFromBig(account.Balance)
		}
		acct := AccountValue{
			Nonce:    account.Nonce,
			Balance:  bal,
			CodeHash: types.EmptyCodeHash,
			Version:  1,
		}
		if len(account.Code) > 0 {
			acct.CodeHash = crypto.Keccak256Hash(account.Code)
			layerLog.CodePreimage[acct.CodeHash] = account.Code
		}
		if len(account.Storage) > 0 {
			storage := make(map[common.Hash]common.Hash)
			for k, v := range account.Storage {
				storage[k] = v
			}
			layerLog.UpdatedStorage[GetAccountStorageKey(addr, acct.Version)] = storage
		}
		layerLog.UpdatedAccounts[addr] = acct
	}
	return layerLog
}
