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
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/txpool"
	"github.com/ethereum/go-ethereum/core/types"
	logging "github.com/ipfs/go-log"
	"github.com/wcgcyx/callsim/backend"
	"github.com/wcgcyx/callsim/worldstate"
)

// Logger
var log = logging.Logger("node")

const defaultMaxQueuedTxs = 4096

type Node struct {
	opts Opts

	// Backend
	Backend backend.Backend

	// Process related
	routineCtx context.Context
	exitLoop   chan bool
	submitCh   chan *submission
	sealCh     chan chan sealResult

	// Queue related, only accessed by the mainloop
	queue []*types.Transaction
	known map[common.Hash]bool

	// Pausing related
	paused     bool
	pausedLock sync.RWMutex

	// Shutdown function
	shutdown func()
}

// submission is a transaction waiting to enter the queue.
type submission struct {
	tx  *types.Transaction
	res chan error
}

// sealResult is the outcome of a requested seal.
type sealResult struct {
	blk *types.Block
	err error
}

// NewNode creates the main node.
func NewNode(
	opts Opts,
	b backend.Backend,
) (*Node, error) {
	if opts.MaxQueuedTxs <= 0 {
		opts.MaxQueuedTxs = defaultMaxQueuedTxs
	}
	routineCtx, cancel := context.WithCancel(context.Background())
	node := &Node{
		opts:       opts,
		Backend:    b,
		routineCtx: routineCtx,
		exitLoop:   make(chan bool),
		submitCh:   make(chan *submission),
		sealCh:     make(chan chan sealResult),
		queue:      make([]*types.Transaction, 0),
		known:      make(map[common.Hash]bool),
		paused:     false,
		pausedLock: sync.RWMutex{},
		shutdown:   func() { cancel() },
	}
	return node, nil
}

// The mainloop of node.
func (node *Node) Mainloop() {
	defer func() {
		node.exitLoop <- true
	}()
	log.Infof("Start main routine...")

	var tick <-chan time.Time
	if node.opts.SealPeriod > 0 {
		ticker := time.NewTicker(node.opts.SealPeriod)
		defer ticker.Stop()
		tick = ticker.C
	} else {
		log.Infof("Seal period not set, seal on every submission")
	}
	for {
		select {
		case <-node.routineCtx.Done():
			log.Infof("Shutdown node mainloop")
			return
		case sub := <-node.submitCh:
			err := node.enqueue(sub.tx)
			if err == nil && node.opts.SealPeriod == 0 && !node.isPaused() {
				var dropped map[common.Hash]error
				_, dropped, err = node.seal()
				if err == nil {
					err = dropped[sub.tx.Hash()]
				}
			}
			sub.res <- err
		case res := <-node.sealCh:
			blk, _, err := node.seal()
			res <- sealResult{blk: blk, err: err}
		case <-tick:
			if node.isPaused() {
				log.Debugf("Sealing is paused, %v transactions queued", len(node.queue))
				continue
			}
			if len(node.queue) == 0 {
				continue
			}
			if _, _, err := node.seal(); err != nil {
				log.Errorf("Fail to seal block: %v", err.Error())
			}
		}
	}
}

// SubmitTransaction validates the transaction and puts it into the seal queue.
// When sealing on submission, it returns after the block containing the transaction is sealed.
func (node *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	sub := &submission{tx: tx, res: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	case <-node.routineCtx.Done():
		return common.Hash{}, ErrNodeClosed
	case node.submitCh <- sub:
	}
	select {
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	case err := <-sub.res:
		if err != nil {
			return common.Hash{}, err
		}
		return tx.Hash(), nil
	}
}

// Seal seals all queued transactions into a new block, even if the queue is empty.
func (node *Node) Seal(ctx context.Context) (*types.Block, error) {
	res := make(chan sealResult, 1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-node.routineCtx.Done():
		return nil, ErrNodeClosed
	case node.sealCh <- res:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		return r.blk, r.err
	}
}

// Pause pauses automatic sealing. Submitted transactions stay queued.
func (node *Node) Pause() {
	node.pausedLock.Lock()
	defer node.pausedLock.Unlock()
	node.paused = true
}

// Unpause resumes automatic sealing.
func (node *Node) Unpause() {
	node.pausedLock.Lock()
	defer node.pausedLock.Unlock()
	node.paused = false
}

// Shutdown safely shuts down the main routine.
func (node *Node) Shutdown() {
	log.Infof("Close main routine...")
	node.shutdown()
	<-node.exitLoop
}

func (node *Node) isPaused() bool {
	node.pausedLock.RLock()
	defer node.pausedLock.RUnlock()
	return node.paused
}

// enqueue validates the transaction against the head state and adds it to the queue.
func (node *Node) enqueue(tx *types.Transaction) error {
	if node.known[tx.Hash()] {
		return ErrAlreadyKnown
	}
	if len(node.queue) >= node.opts.MaxQueuedTxs {
		return ErrQueueFull
	}
	head, err := node.Backend.Blockchain().GetHead(node.routineCtx)
	if err != nil {
		return err
	}
	snap, err := node.Backend.StateAtBlock(node.routineCtx, head.Header())
	if err != nil {
		return err
	}
	if err = validateTx(node.Backend.ChainConfig(), head.Header(), snap, tx); err != nil {
		return err
	}
	node.queue = append(node.queue, tx)
	node.known[tx.Hash()] = true
	log.Debugf("Queued transaction %v, %v in queue", tx.Hash(), len(node.queue))
	return nil
}

// seal seals the queued transactions into a block.
// Rejected transactions with a future nonce are kept in the queue, the rest are dropped.
func (node *Node) seal() (*types.Block, map[common.Hash]error, error) {
	txs := node.queue
	node.queue = make([]*types.Transaction, 0)
	slices.SortStableFunc(txs, func(a, b *types.Transaction) int {
		if a.Nonce() < b.Nonce() {
			return -1
		} else if a.Nonce() > b.Nonce() {
			return 1
		}
		return 0
	})
	blk, rejected, err := node.Backend.SealBlock(node.routineCtx, txs, uint64(time.Now().Unix()))
	if err != nil {
		node.queue = txs
		return nil, nil, err
	}
	for _, tx := range blk.Transactions() {
		delete(node.known, tx.Hash())
	}
	dropped := make(map[common.Hash]error)
	if len(rejected) > 0 {
		snap, err := node.Backend.StateAtBlock(node.routineCtx, blk.Header())
		if err != nil {
			return nil, nil, err
		}
		signer := types.MakeSigner(node.Backend.ChainConfig(), blk.Number(), blk.Time())
		for _, tx := range rejected {
			if reason := keepRejected(signer, snap, blk.Header(), tx); reason != nil {
				log.Warnf("Drop transaction %v: %v", tx.Hash(), reason.Error())
				delete(node.known, tx.Hash())
				dropped[tx.Hash()] = fmt.Errorf("%w: %w", ErrTxDropped, reason)
				continue
			}
			node.queue = append(node.queue, tx)
		}
	}
	log.Infof("Sealed block %v (%v) with %v transactions, %v still queued", blk.NumberU64(), blk.Hash(), len(blk.Transactions()), len(node.queue))
	return blk, dropped, nil
}

// keepRejected returns nil if a rejected transaction can still be included later.
func keepRejected(signer types.Signer, snap worldstate.Snapshot, header *types.Header, tx *types.Transaction) error {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSender, err)
	}
	nonce, err := worldstate.GetNonce(snap, from)
	if err != nil {
		return err
	}
	if tx.Nonce() < nonce {
		return fmt.Errorf("%w: address %v, tx: %d state: %d", core.ErrNonceTooLow, from.Hex(), tx.Nonce(), nonce)
	}
	if tx.Nonce() > nonce {
		return nil
	}
	// Executable nonce, rejected by fee, funds or the remaining block gas
	if header.BaseFee != nil && tx.GasFeeCapIntCmp(header.BaseFee) < 0 {
		return fmt.Errorf("%w: address %v, maxFeePerGas: %s, baseFee: %s", core.ErrFeeCapTooLow, from.Hex(), tx.GasFeeCap(), header.BaseFee)
	}
	balance, err := worldstate.GetBalance(snap, from)
	if err != nil {
		return err
	}
	if balance.ToBig().Cmp(tx.Cost()) < 0 {
		return fmt.Errorf("%w: address %v have %v want %v", core.ErrInsufficientFunds, from.Hex(), balance, tx.Cost())
	}
	if tx.Gas() > header.GasLimit {
		return txpool.ErrGasLimit
	}
	return nil
}
