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
	"encoding/base64"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ipfs/go-datastore"
	"github.com/mus-format/mus-go/varint"
	itypes "github.com/wcgcyx/callsim/types"
)

const (
	blockKey     = "b"
	canonicalKey = "n"
	txLookupKey  = "t"
	receiptsKey  = "r"
	tailKey      = "tail"
	headKey      = "head"
	separator    = "/"
)

// getBlockKey gets the datastore key for given block hash.
func getBlockKey(hash common.Hash) datastore.Key {
	hashStr := base64.URLEncoding.EncodeToString(hash.Bytes())
	return datastore.NewKey(blockKey + separator + hashStr)
}

// getCanonicalKey gets the datastore key for the canonical hash at given height.
func getCanonicalKey(height uint64) datastore.Key {
	return datastore.NewKey(canonicalKey + separator + strconv.FormatUint(height, 10))
}

// getTxLookupKey gets the datastore key for the location of given txn hash.
func getTxLookupKey(hash common.Hash) datastore.Key {
	hashStr := base64.URLEncoding.EncodeToString(hash.Bytes())
	return datastore.NewKey(txLookupKey + separator + hashStr)
}

// getReceiptsKey gets the datastore key for receipts of given block hash.
func getReceiptsKey(hash common.Hash) datastore.Key {
	hashStr := base64.URLEncoding.EncodeToString(hash.Bytes())
	return datastore.NewKey(receiptsKey + separator + hashStr)
}

// getTailKey gets the datastore key for tail height.
func getTailKey() datastore.Key {
	return datastore.NewKey(tailKey)
}

// getHeadKey gets the datastore key for head block.
func getHeadKey() datastore.Key {
	return datastore.NewKey(headKey)
}

// encodeBlock encodes block to bytes.
func encodeBlock(v *types.Block) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// decodeBlock decodes bytes to block.
func decodeBlock(val []byte) (*types.Block, error) {
	res := new(types.Block)
	if err := rlp.DecodeBytes(val, res); err != nil {
		return nil, err
	}
	return res, nil
}

// encodeReceipts encodes receipts to bytes in storage format.
func encodeReceipts(v types.Receipts) ([]byte, error) {
	stored := make([]*types.ReceiptForStorage, len(v))
	for i, r := range v {
		stored[i] = (*types.ReceiptForStorage)(r)
	}
	return rlp.EncodeToBytes(stored)
}

// decodeReceipts decodes bytes to receipts, only consensus fields are set.
func decodeReceipts(val []byte) (types.Receipts, error) {
	stored := make([]*types.ReceiptForStorage, 0)
	if err := rlp.DecodeBytes(val, &stored); err != nil {
		return nil, err
	}
	res := make(types.Receipts, len(stored))
	for i, r := range stored {
		res[i] = (*types.Receipt)(r)
	}
	return res, nil
}

// encodeTxLookup encodes the block hash and index of a transaction.
func encodeTxLookup(blkHash common.Hash, index uint64) []byte {
	bs := make([]byte, itypes.SizeHash(blkHash)+varint.SizeUint64(index))
	n := itypes.MarshalHash(blkHash, bs)
	varint.MarshalUint64(index, bs[n:])
	return bs
}

// decodeTxLookup decodes the block hash and index of a transaction.
func decodeTxLookup(val []byte) (common.Hash, uint64, error) {
	blkHash, n, err := itypes.UnmarshalHash(val)
	if err != nil {
		return common.Hash{}, 0, err
	}
	index, _, err := varint.UnmarshalUint64(val[n:])
	if err != nil {
		return common.Hash{}, 0, err
	}
	return blkHash, index, nil
}

// encodeHash encodes a block hash.
func encodeHash(hash common.Hash) []byte {
	bs := make([]byte, itypes.SizeHash(hash))
	itypes.MarshalHash(hash, bs)
	return bs
}

// decodeHash decodes a block hash.
func decodeHash(val []byte) (common.Hash, error) {
	hash, _, err := itypes.UnmarshalHash(val)
	return hash, err
}

// encodeHeight encodes a block height.
func encodeHeight(height uint64) []byte {
	bs := make([]byte, varint.SizeUint64(height))
	varint.MarshalUint64(height, bs)
	return bs
}

// decodeHeight decodes a block height.
func decodeHeight(val []byte) (uint64, error) {
	height, _, err := varint.UnmarshalUint64(val)
	return height, err
}
