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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
)

const defaultGCPeriod = 30 * time.Minute

func (s *stateStoreImpl) gcRoutine() {
	defer func() {
		s.exitLoop <- true
	}()

	period := s.opts.GCPeriod
	if period <= 0 {
		period = defaultGCPeriod
	}
	after := time.NewTicker(period)
	defer after.Stop()
	for {
		select {
		case <-s.routineCtx.Done():
			log.Infof("Exit GC routine")
			return
		case <-after.C:
			log.Infof("Start GC round")
			accts, slots := s.gcRound()
			log.Infof("GC round cleared %v account versions with %v storage slots", accts, slots)
		}
	}
}

// gcRound clears the storage of every account version marked for collection.
func (s *stateStoreImpl) gcRound() (int, int) {
	results, err := s.ds.Query(s.routineCtx, query.Query{Prefix: separator + gcKey, KeysOnly: true})
	if err != nil {
		log.Warnf("GC - Fail to query ds: %v", err.Error())
		return 0, 0
	}
	entries, err := results.Rest()
	if err != nil {
		log.Warnf("GC - Fail to read gc entries: %v", err.Error())
		return 0, 0
	}
	totalAccts := 0
	totalSlots := 0
	for _, entry := range entries {
		if s.routineCtx.Err() != nil {
			log.Warnf("Exit GC round due to context cancelled: %v", s.routineCtx.Err().Error())
			break
		}
		addr, version, err := splitGCKey(entry.Key)
		if err != nil {
			log.Warnf("GC - Skip invalid entry: %v", err.Error())
			continue
		}
		cleared, err := s.clearVersion(entry.Key, addr, version)
		if err != nil {
			log.Warnf("GC - Fail to clear %v-%v: %v", addr, version, err.Error())
			continue
		}
		totalAccts++
		totalSlots += cleared
	}
	return totalAccts, totalSlots
}

// clearVersion deletes all storage slots of one account version and its gc entry.
func (s *stateStoreImpl) clearVersion(entryKey string, addr common.Address, version uint64) (int, error) {
	results, err := s.ds.Query(s.routineCtx, query.Query{Prefix: getStoragePrefix(addr, version), KeysOnly: true})
	if err != nil {
		return 0, err
	}
	slots, err := results.Rest()
	if err != nil {
		return 0, err
	}
	txn, err := s.ds.NewTransaction(s.routineCtx, false)
	if err != nil {
		return 0, err
	}
	defer txn.Discard(s.routineCtx)
	for _, slot := range slots {
		err = txn.Delete(s.routineCtx, datastore.NewKey(slot.Key))
		if err != nil {
			return 0, err
		}
	}
	err = txn.Delete(s.routineCtx, datastore.NewKey(entryKey))
	if err != nil {
		return 0, err
	}
	return len(slots), txn.Commit(s.routineCtx)
}
