package blockchain

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
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
)

const (
	testDS       = "./test-ds"
	testKey1     = "1111111111111111111111111111111111111111111111111111111111111111"
	testAcct1Str = "0x19E7E376E7C213B7E7e7e46cc70A5dD086DAff2A"
	testAcct2Str = "0x1563915e194D8CfBA1943570603F7606A3115508"
)

var (
	testAcct1 = common.HexToAddress(testAcct1Str)
	testAcct2 = common.HexToAddress(testAcct2Str)
)

func TestMain(m *testing.M) {
	os.RemoveAll(testDS)
	os.Mkdir(testDS, os.ModePerm)
	defer os.RemoveAll(testDS)
	m.Run()
}

func testGenesis() *core.Genesis {
	return &core.Genesis{
		Config:     params.AllDevChainProtocolChanges,
		GasLimit:   30_000_000,
		Difficulty: common.Big0,
		Alloc: types.GenesisAlloc{
			testAcct1: {Balance: big.NewInt(1000000000000000000)},
		},
	}
}

func testOpts(retain uint64) Opts {
	return Opts{
		Path:             testDS,
		MaxBlockToRetain: retain,
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// testChain generates blocks with two transfers each.
func testChain(t *testing.T, genesis *core.Genesis, n int) ([]*types.Block, []types.Receipts) {
	engine, err := ethconfig.CreateConsensusEngine(genesis.Config, rawdb.NewMemoryDatabase())
	assert.Nil(t, err)
	key, _ := crypto.HexToECDSA(testKey1)
	signer := types.LatestSigner(genesis.Config)
	_, blocks, receipts := core.GenerateChainWithGenesis(genesis, engine, n, func(i int, bg *core.BlockGen) {
		for j := 0; j < 2; j++ {
			tx := types.NewTransaction(bg.TxNonce(testAcct1), testAcct2, big.NewInt(1), 21000, big.NewInt(10*params.GWei), nil)
			tx, _ = types.SignTx(tx, signer, key)
			bg.AddTx(tx)
		}
	})
	return blocks, receipts
}

func TestNewBlockchain(t *testing.T) {
	defer os.RemoveAll(testDS)

	ctx := context.Background()

	genesis := testGenesis()
	// Empty path for genesis should fail
	_, err := NewBlockchainImpl(ctx, Opts{}, genesis)
	assert.NotNil(t, err)

	// Non empty path for genesis should succeed
	blockchain, err := NewBlockchainImpl(ctx, testOpts(0), genesis)
	assert.Nil(t, err)
	assert.NotNil(t, blockchain)

	head, err := blockchain.GetHead(ctx)
	assert.Nil(t, err)
	assert.Equal(t, genesis.ToBlock().Hash(), head.Hash())
	assert.Equal(t, uint64(0), blockchain.GetTail())
	// Close blockchain
	blockchain.Shutdown()

	// Open existing db with genesis should succeed.
	blockchain, err = NewBlockchainImpl(ctx, testOpts(0), genesis)
	assert.Nil(t, err)
	assert.NotNil(t, blockchain)
	// Close blockchain
	blockchain.Shutdown()
}

func TestAddBlock(t *testing.T) {
	defer os.RemoveAll(testDS)

	ctx := context.Background()

	genesis := testGenesis()
	blockchain, err := NewBlockchainImpl(ctx, testOpts(0), genesis)
	assert.Nil(t, err)
	defer blockchain.Shutdown()

	blocks, receipts := testChain(t, genesis, 16)

	// Block not extending the head should fail
	err = blockchain.AddBlock(ctx, blocks[1], receipts[1])
	assert.NotNil(t, err)

	// Receipts must match transactions
	err = blockchain.AddBlock(ctx, blocks[0], receipts[0][:1])
	assert.NotNil(t, err)

	for i, blk := range blocks {
		err = blockchain.AddBlock(ctx, blk, receipts[i])
		assert.Nil(t, err)
	}
	// Adding an existing block is a no-op
	err = blockchain.AddBlock(ctx, blocks[3], receipts[3])
	assert.Nil(t, err)

	head, err := blockchain.GetHead(ctx)
	assert.Nil(t, err)
	assert.Equal(t, blocks[15].Hash(), head.Hash())

	blk, err := blockchain.GetBlockByNumber(ctx, 0)
	assert.Nil(t, err)
	assert.Equal(t, genesis.ToBlock().Hash(), blk.Hash())

	blk, err = blockchain.GetBlockByNumber(ctx, 8)
	assert.Nil(t, err)
	assert.Equal(t, blocks[7].Hash(), blk.Hash())

	header, err := blockchain.GetHeaderByHash(ctx, blocks[4].Hash())
	assert.Nil(t, err)
	assert.Equal(t, uint64(5), header.Number.Uint64())

	_, err = blockchain.GetBlockByNumber(ctx, 17)
	assert.True(t, errors.Is(err, ErrUnknownBlock))

	_, err = blockchain.GetHeaderByHash(ctx, common.HexToHash("0x01"))
	assert.True(t, errors.Is(err, ErrUnknownBlock))
}

func TestTransactionAndReceipt(t *testing.T) {
	defer os.RemoveAll(testDS)

	ctx := context.Background()

	genesis := testGenesis()
	blockchain, err := NewBlockchainImpl(ctx, testOpts(0), genesis)
	assert.Nil(t, err)
	defer blockchain.Shutdown()

	blocks, receipts := testChain(t, genesis, 4)
	for i, blk := range blocks {
		err = blockchain.AddBlock(ctx, blk, receipts[i])
		assert.Nil(t, err)
	}

	expected := blocks[2].Transactions()[1]
	tx, blkHash, index, found, err := blockchain.GetTransaction(ctx, expected.Hash())
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, expected.Hash(), tx.Hash())
	assert.Equal(t, blocks[2].Hash(), blkHash)
	assert.Equal(t, uint64(1), index)

	receipt, blkHash, index, found, err := blockchain.GetReceipt(ctx, expected.Hash())
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, blocks[2].Hash(), blkHash)
	assert.Equal(t, uint64(1), index)
	assert.Equal(t, expected.Hash(), receipt.TxHash)
	assert.Equal(t, blocks[2].Hash(), receipt.BlockHash)
	assert.Equal(t, uint64(3), receipt.BlockNumber.Uint64())
	assert.Equal(t, uint(1), receipt.TransactionIndex)
	assert.Equal(t, uint64(21000), receipt.GasUsed)
	assert.Equal(t, uint64(42000), receipt.CumulativeGasUsed)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	all, err := blockchain.GetReceipts(ctx, blocks[2].Hash())
	assert.Nil(t, err)
	assert.Equal(t, 2, len(all))

	_, _, _, found, err = blockchain.GetTransaction(ctx, common.HexToHash("0x01"))
	assert.Nil(t, err)
	assert.False(t, found)

	_, _, _, found, err = blockchain.GetReceipt(ctx, common.HexToHash("0x01"))
	assert.Nil(t, err)
	assert.False(t, found)
}

func TestPruning(t *testing.T) {
	defer os.RemoveAll(testDS)

	ctx := context.Background()

	genesis := testGenesis()
	blockchain, err := NewBlockchainImpl(ctx, testOpts(8), genesis)
	assert.Nil(t, err)

	blocks, receipts := testChain(t, genesis, 20)
	for i, blk := range blocks {
		err = blockchain.AddBlock(ctx, blk, receipts[i])
		assert.Nil(t, err)
	}
	assert.Equal(t, uint64(12), blockchain.GetTail())

	_, err = blockchain.GetBlockByNumber(ctx, 11)
	assert.True(t, errors.Is(err, ErrUnknownBlock))
	exists, err := blockchain.HasBlock(ctx, blocks[10].Hash())
	assert.Nil(t, err)
	assert.False(t, exists)
	_, _, _, found, err := blockchain.GetTransaction(ctx, blocks[10].Transactions()[0].Hash())
	assert.Nil(t, err)
	assert.False(t, found)

	blk, err := blockchain.GetBlockByNumber(ctx, 12)
	assert.Nil(t, err)
	assert.Equal(t, blocks[11].Hash(), blk.Hash())
	blockchain.Shutdown()

	// Tail is kept after restart
	blockchain, err = NewBlockchainImpl(ctx, testOpts(8), genesis)
	assert.Nil(t, err)
	assert.Equal(t, uint64(12), blockchain.GetTail())
	head, err := blockchain.GetHead(ctx)
	assert.Nil(t, err)
	assert.Equal(t, blocks[19].Hash(), head.Hash())
	blockchain.Shutdown()
}
