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
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-datastore"
	"github.com/mus-format/mus-go/varint"
	itypes "github.com/wcgcyx/callsim/types"
)

const (
	persistedKey      = "p"
	layerLogKey       = "l"
	accountValueKey   = "a"
	accountVersionKey = "v"
	storageKey        = "s"
	codeKey           = "c"
	gcKey             = "g"
	separator         = "/"

	// Badger table size unless configured
	defaultMaxTableSize = int64(64 << 20)
)

// persistedHeightKey gets the datastore key for persisted height.
func persistedHeightKey() datastore.Key {
	return datastore.NewKey(persistedKey)
}

// getLayerLogKey gets the datastore key for layer log with given block.
func getLayerLogKey(height uint64, hash common.Hash) datastore.Key {
	hashStr := base64.URLEncoding.EncodeToString(hash.Bytes())
	return datastore.NewKey(layerLogKey + separator + strconv.FormatUint(height, 10) + separator + hashStr)
}

// getAccountValueKey gets the datastore key for account value with given address.
func getAccountValueKey(addr common.Address) datastore.Key {
	addrStr := base64.URLEncoding.EncodeToString(addr.Bytes())
	return datastore.NewKey(accountValueKey + separator + addrStr)
}

// getAccountVersionKey gets the datastore key for the version of a destructed account.
func getAccountVersionKey(addr common.Address) datastore.Key {
	addrStr := base64.URLEncoding.EncodeToString(addr.Bytes())
	return datastore.NewKey(accountVersionKey + separator + addrStr)
}

// getStoragePrefix gets the datastore prefix for all slots of an account version.
func getStoragePrefix(addr common.Address, version uint64) string {
	addrStr := base64.URLEncoding.EncodeToString(addr.Bytes())
	return separator + storageKey + separator + addrStr + separator + strconv.FormatUint(version, 10)
}

// getStorageKey gets the datastore key for given storage location.
func getStorageKey(addr common.Address, version uint64, key common.Hash) datastore.Key {
	keyStr := base64.URLEncoding.EncodeToString(key.Bytes())
	return datastore.NewKey(getStoragePrefix(addr, version) + separator + keyStr)
}

// getCodeKey gets the datastore key for given code hash.
func getCodeKey(codeHash common.Hash) datastore.Key {
	codeStr := base64.URLEncoding.EncodeToString(codeHash.Bytes())
	return datastore.NewKey(codeKey + separator + codeStr)
}

// getGCKey gets the gc key for given address-version pair.
func getGCKey(addr common.Address, version uint64) datastore.Key {
	addrStr := base64.URLEncoding.EncodeToString(addr.Bytes())
	return datastore.NewKey(gcKey + separator + addrStr + separator + strconv.FormatUint(version, 10))
}

// splitGCKey splits the gc key to get address-version pair.
func splitGCKey(key string) (common.Address, uint64, error) {
	temp := strings.Split(strings.TrimPrefix(key, separator), separator)
	if len(temp) != 3 || temp[0] != gcKey {
		return common.Address{}, 0, fmt.Errorf("invalid gc key %v", key)
	}
	data, err := base64.URLEncoding.DecodeString(temp[1])
	if err != nil {
		return common.Address{}, 0, err
	}
	version, err := strconv.ParseUint(temp[2], 10, 64)
	if err != nil {
		return common.Address{}, 0, err
	}
	return common.BytesToAddress(data), version, nil
}

// encodePersistedHeight encodes the persisted height and block hash.
func encodePersistedHeight(height uint64, hash common.Hash) []byte {
	bs := make([]byte, varint.SizeUint64(height)+itypes.SizeHash(hash))
	n := varint.MarshalUint64(height, bs)
	itypes.MarshalHash(hash, bs[n:])
	return bs
}

// decodePersistedHeight decodes the persisted height and block hash.
func decodePersistedHeight(bs []byte) (uint64, common.Hash, error) {
	height, n, err := varint.UnmarshalUint64(bs)
	if err != nil {
		return 0, common.Hash{}, err
	}
	hash, _, err := itypes.UnmarshalHash(bs[n:])
	return height, hash, err
}

// encodeAccountValue encodes the account value.
func encodeAccountValue(acct itypes.AccountValue) []byte {
	bs := make([]byte, itypes.SizeAccountValue(acct))
	itypes.MarshalAccountValue(acct, bs)
	return bs
}

// decodeAccountValue decodes the account value.
func decodeAccountValue(val []byte) (itypes.AccountValue, error) {
	res, _, err := itypes.UnmarshalAccountValue(val)
	return res, err
}

// encodeAccountVersion encodes the account version.
func encodeAccountVersion(version uint64) []byte {
	bs := make([]byte, varint.SizeUint64(version))
	varint.MarshalUint64(version, bs)
	return bs
}

// decodeAccountVersion decodes the account version.
func decodeAccountVersion(val []byte) (uint64, error) {
	res, _, err := varint.UnmarshalUint64(val)
	return res, err
}
