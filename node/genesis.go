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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	ChainDev     = "dev"
	ChainMainnet = "mainnet"
	ChainSepolia = "sepolia"
	ChainHolesky = "holesky"

	// DevGasLimit is the block gas limit of the dev chain.
	DevGasLimit = uint64(30_000_000)
)

// NewGenesis gets the genesis of the given chain.
// Accounts in alloc are prefunded on top of the chain's own allocation.
func NewGenesis(chain string, alloc map[common.Address]*big.Int) (*core.Genesis, error) {
	var genesis *core.Genesis
	switch chain {
	case ChainDev:
		genesis = core.DeveloperGenesisBlock(DevGasLimit, nil)
	case ChainMainnet:
		genesis = core.DefaultGenesisBlock()
	case ChainSepolia:
		genesis = core.DefaultSepoliaGenesisBlock()
	case ChainHolesky:
		genesis = core.DefaultHoleskyGenesisBlock()
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedNet, chain)
	}
	if genesis.Alloc == nil {
		genesis.Alloc = make(types.GenesisAlloc)
	}
	for addr, balance := range alloc {
		acct := genesis.Alloc[addr]
		acct.Balance = new(big.Int).Set(balance)
		genesis.Alloc[addr] = acct
	}
	return genesis, nil
}
