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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownBlock is returned when the requested block is not stored.
var ErrUnknownBlock = errors.New("unknown block")

// Blockchain stores the canonical chain of sealed blocks together with
// their transactions and receipts.
type Blockchain interface {
	// HasBlock returns if blockchain contains the block corresponding to the block hash.
	HasBlock(context.Context, common.Hash) (bool, error)

	// GetBlockByHash returns the block corresponding to the block hash.
	GetBlockByHash(context.Context, common.Hash) (*types.Block, error)

	// GetBlockByNumber returns the canonical block corresponding to the block height.
	GetBlockByNumber(context.Context, uint64) (*types.Block, error)

	// GetHeaderByHash returns the header corresponding to the block hash.
	GetHeaderByHash(context.Context, common.Hash) (*types.Header, error)

	// GetHeaderByNumber returns the header corresponding to the block height.
	GetHeaderByNumber(context.Context, uint64) (*types.Header, error)

	// GetTransaction gets the transaction for given tx hash, with its block hash and index.
	GetTransaction(context.Context, common.Hash) (*types.Transaction, common.Hash, uint64, bool, error)

	// GetReceipts gets the receipts of the block, with all derived fields filled.
	GetReceipts(context.Context, common.Hash) (types.Receipts, error)

	// GetReceipt gets the receipt for given tx hash, with its block hash and index.
	GetReceipt(context.Context, common.Hash) (*types.Receipt, common.Hash, uint64, bool, error)

	// GetHead returns the head block.
	GetHead(context.Context) (*types.Block, error)

	// GetTail returns the height of the oldest retained block.
	GetTail() uint64

	// AddBlock adds a *validated* block on top of the head and makes it the new head.
	AddBlock(context.Context, *types.Block, types.Receipts) error

	// Shutdown safely shuts the blockchain down.
	Shutdown()
}
