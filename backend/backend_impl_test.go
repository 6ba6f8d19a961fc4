package backend

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
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/wcgcyx/callsim/blockchain"
	"github.com/wcgcyx/callsim/executor"
	"github.com/wcgcyx/callsim/statestore"
	"github.com/wcgcyx/callsim/worldstate"
)

const (
	testDS      = "./test-ds"
	testKey     = "1111111111111111111111111111111111111111111111111111111111111111"
	testAcctStr = "0x19E7E376E7C213B7E7e7e46cc70A5dD086DAff2A"
)

var (
	testAcct     = common.HexToAddress(testAcctStr)
	testReceiver = common.HexToAddress("0x1000000000000000000000000000000000000002")
	testCoinbase = common.HexToAddress("0x1000000000000000000000000000000000000003")
)

func TestMain(m *testing.M) {
	os.RemoveAll(testDS)
	os.Mkdir(testDS, os.ModePerm)
	defer os.RemoveAll(testDS)
	m.Run()
}

type testEnv struct {
	backend Backend
	bc      blockchain.Blockchain
	sstore  statestore.StateStore
}

func (e *testEnv) shutdown() {
	e.backend.Shutdown()
	e.bc.Shutdown()
	e.sstore.Shutdown()
}

func testGenesis() *core.Genesis {
	return &core.Genesis{
		Config:     params.AllDevChainProtocolChanges,
		GasLimit:   30_000_000,
		Difficulty: common.Big0,
		Alloc: types.GenesisAlloc{
			testAcct: {Balance: big.NewInt(params.Ether)},
		},
	}
}

func newTestEnv(t *testing.T, maxLayer uint64) *testEnv {
	ctx := context.Background()
	assert.Nil(t, os.MkdirAll(testDS, os.ModePerm))
	genesis := testGenesis()
	genesisHash := genesis.ToBlock().Hash()
	bc, err := blockchain.NewBlockchainImpl(ctx, blockchain.Opts{
		Path:         filepath.Join(testDS, "chain"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, genesis)
	assert.Nil(t, err)
	sstore, err := statestore.NewStateStoreImpl(ctx, statestore.Opts{
		Path:         filepath.Join(testDS, "state"),
		GCPeriod:     time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, genesis, genesisHash)
	assert.Nil(t, err)
	sa, err := worldstate.NewArchiveImpl(worldstate.Opts{MaxLayerToRetain: maxLayer}, sstore)
	assert.Nil(t, err)
	backend, err := NewBackendImpl(ctx, Opts{Coinbase: testCoinbase}, genesis.Config, executor.NewExecutor(executor.Opts{}), bc, sstore, sa)
	assert.Nil(t, err)
	return &testEnv{backend: backend, bc: bc, sstore: sstore}
}

func testTx(t *testing.T, nonce uint64) *types.Transaction {
	key, err := crypto.HexToECDSA(testKey)
	assert.Nil(t, err)
	tx, err := types.SignNewTx(key, types.LatestSigner(params.AllDevChainProtocolChanges), &types.DynamicFeeTx{
		ChainID:   params.AllDevChainProtocolChanges.ChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(10 * params.GWei),
		Gas:       params.TxGas,
		To:        &testReceiver,
		Value:     big.NewInt(1),
	})
	assert.Nil(t, err)
	return tx
}

func TestSealBlock(t *testing.T) {
	defer os.RemoveAll(testDS)
	ctx := context.Background()
	env := newTestEnv(t, 16)
	defer env.shutdown()

	heads := make(chan core.ChainHeadEvent, 1)
	sub := env.backend.SubscribeChainHeadEvent(heads)
	defer sub.Unsubscribe()

	blk, rejected, err := env.backend.SealBlock(ctx, []*types.Transaction{testTx(t, 0), testTx(t, 1), testTx(t, 1)}, uint64(time.Now().Unix()))
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), blk.NumberU64())
	assert.Equal(t, 2, len(blk.Transactions()))
	assert.Equal(t, 1, len(rejected))
	assert.Equal(t, uint64(42000), blk.GasUsed())
	assert.Equal(t, testCoinbase, blk.Coinbase())
	assert.NotNil(t, blk.BaseFee())

	ev := <-heads
	assert.Equal(t, blk.Hash(), ev.Block.Hash())

	head, err := env.bc.GetHead(ctx)
	assert.Nil(t, err)
	assert.Equal(t, blk.Hash(), head.Hash())

	receipt, blkHash, index, found, err := env.bc.GetReceipt(ctx, blk.Transactions()[1].Hash())
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, blk.Hash(), blkHash)
	assert.Equal(t, uint64(1), index)
	assert.Equal(t, uint64(21000), receipt.GasUsed)

	snap, err := env.backend.StateAtBlock(ctx, blk.Header())
	assert.Nil(t, err)
	bal, err := worldstate.GetBalance(snap, testReceiver)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), bal.Uint64())
	nonce, err := worldstate.GetNonce(snap, testAcct)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), nonce)
	// Tip is paid to the coinbase
	bal, err = worldstate.GetBalance(snap, testCoinbase)
	assert.Nil(t, err)
	assert.Equal(t, uint64(42000*params.GWei), bal.Uint64())

	msg, blockCtx, state, err := env.backend.StateAtTransaction(ctx, blk, 1)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), msg.Nonce)
	assert.Equal(t, uint64(1), blockCtx.BlockNumber.Uint64())
	assert.Equal(t, uint64(1), state.GetNonce(testAcct))
	assert.Equal(t, uint64(1), state.GetBalance(testReceiver).Uint64())

	// Importing a block already in the chain is a no-op
	err = env.backend.ImportBlock(ctx, blk)
	assert.Nil(t, err)
}

func TestStateRetentionAndRestart(t *testing.T) {
	defer os.RemoveAll(testDS)
	ctx := context.Background()
	env := newTestEnv(t, 2)

	blks := make([]*types.Block, 0)
	for i := 0; i < 4; i++ {
		blk, rejected, err := env.backend.SealBlock(ctx, []*types.Transaction{testTx(t, uint64(i))}, 0)
		assert.Nil(t, err)
		assert.Empty(t, rejected)
		blks = append(blks, blk)
	}
	assert.Equal(t, uint64(2), env.backend.StateArchive().PersistedHeight())
	_, err := env.backend.StateAtBlock(ctx, blks[0].Header())
	assert.True(t, errors.Is(err, worldstate.ErrStateNotAvailable))
	_, _, _, err = env.backend.StateAtTransaction(ctx, blks[1], 0)
	assert.True(t, errors.Is(err, worldstate.ErrStateNotAvailable))
	_, _, _, err = env.backend.StateAtTransaction(ctx, blks[3], 0)
	assert.Nil(t, err)
	// Timestamps keep increasing
	assert.Greater(t, blks[3].Time(), blks[2].Time())
	env.shutdown()

	// Layers above the persisted state are rebuilt on restart
	env = newTestEnv(t, 2)
	defer env.shutdown()
	snap, err := env.backend.StateAtBlock(ctx, blks[3].Header())
	assert.Nil(t, err)
	bal, err := worldstate.GetBalance(snap, testReceiver)
	assert.Nil(t, err)
	assert.Equal(t, uint64(4), bal.Uint64())
	_, err = env.backend.StateAtBlock(ctx, blks[2].Header())
	assert.Nil(t, err)

	blk, _, err := env.backend.SealBlock(ctx, []*types.Transaction{testTx(t, 4)}, 0)
	assert.Nil(t, err)
	assert.Equal(t, uint64(5), blk.NumberU64())
	assert.Equal(t, blks[3].Hash(), blk.ParentHash())
}
