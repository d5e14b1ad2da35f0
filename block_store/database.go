/***************************************************************
 *
 * Copyright (C) 2026, HTTPFS Project Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package block_store

// The persistent tier is a BadgerDB key/value store under
// <DataLocation>/db.  Key layout:
//
//   b:<url>\x00<num>  raw block bytes
//   m:<url>\x00<num>  msgpack blockMeta (size, stored, last access)
//   u:total           big-endian uint64 cumulative byte usage
//
// Eviction is independent of the memory index: when usage exceeds the
// configured byte bound, the least-recently-accessed records are deleted
// until the store fits again.

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/httpfsproject/httpfs/metrics"
)

const dbSubDir = "db"

var usageKey = []byte("u:total")

type blockMeta struct {
	Size       int64     `msgpack:"size"`
	StoredAt   time.Time `msgpack:"stored"`
	LastAccess time.Time `msgpack:"access"`
}

type cacheDB struct {
	db       *badger.DB
	maxBytes uint64

	// Invoked for every record removed by eviction, so the owning store
	// can keep its presence bitmaps truthful.  May be nil.
	onEvict func(BlockKey)

	// Serializes eviction passes; concurrent writers trigger at most one.
	evictMu   sync.Mutex
	closeOnce sync.Once
}

func blockKeyBytes(key BlockKey) []byte {
	return []byte("b:" + key.URL + "\x00" + strconv.FormatInt(key.Num, 10))
}

func metaKeyBytes(key BlockKey) []byte {
	return []byte("m:" + key.URL + "\x00" + strconv.FormatInt(key.Num, 10))
}

// parseMetaKey recovers the BlockKey from an m: database key.  The URL may
// itself contain ':' or '#', so the NUL separator is authoritative.
func parseMetaKey(raw []byte) (BlockKey, error) {
	s := string(raw)
	if len(s) < 2 || s[:2] != "m:" {
		return BlockKey{}, errors.Errorf("unexpected meta key %q", s)
	}
	s = s[2:]
	sep := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == 0 {
			sep = i
			break
		}
	}
	if sep < 0 {
		return BlockKey{}, errors.Errorf("meta key %q has no separator", raw)
	}
	num, err := strconv.ParseInt(s[sep+1:], 10, 64)
	if err != nil {
		return BlockKey{}, errors.Wrapf(err, "meta key %q has invalid block number", raw)
	}
	return BlockKey{URL: s[:sep], Num: num}, nil
}

func newCacheDB(baseDir string, maxBytes uint64) (*cacheDB, error) {
	dbPath := filepath.Join(baseDir, dbSubDir)
	if err := os.MkdirAll(dbPath, 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create block store directory")
	}

	opts := badger.DefaultOptions(dbPath)

	// Cache data is self-healing: a block lost to a crash is simply
	// re-fetched, so synchronous writes buy nothing here.
	opts.SyncWrites = false

	// Keep small values (metadata, usage counter) in the LSM tree; block
	// bodies go to the value log.
	opts.ValueThreshold = 4096

	opts.Logger = &badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open block store database")
	}

	cdb := &cacheDB{db: db, maxBytes: maxBytes}

	if current, err := cdb.usage(); err == nil {
		metrics.HttpfsCacheUsageBytes.Set(float64(current))
	}

	log.Debugf("Block store database opened at %s", dbPath)
	return cdb, nil
}

func (cdb *cacheDB) close() error {
	var closeErr error
	cdb.closeOnce.Do(func() {
		closeErr = cdb.db.Close()
	})
	return closeErr
}

// startGC runs badger's value-log garbage collection periodically until
// ctx is cancelled.
func (cdb *cacheDB) startGC(ctx context.Context, egrp *errgroup.Group) {
	egrp.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				err := cdb.db.RunValueLogGC(0.5)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					log.Warnf("Block store GC error: %v", err)
				}
			}
		}
	})
}

// getBlock returns the stored bytes for key, reporting found=false on
// absence.  A hit refreshes the record's access time (best effort) so the
// persistent tier's own LRU accounting stays truthful.
func (cdb *cacheDB) getBlock(key BlockKey) (data []byte, found bool, err error) {
	err = cdb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKeyBytes(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read block %s", key)
	}

	if touchErr := cdb.touchBlock(key); touchErr != nil {
		log.Debugf("Failed to refresh access time for block %s: %v", key, touchErr)
	}
	return data, true, nil
}

func (cdb *cacheDB) touchBlock(key BlockKey) error {
	return cdb.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKeyBytes(key))
		if err != nil {
			return err
		}
		var meta blockMeta
		if err := item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &meta)
		}); err != nil {
			return err
		}
		meta.LastAccess = time.Now()
		encoded, err := msgpack.Marshal(&meta)
		if err != nil {
			return err
		}
		return txn.Set(metaKeyBytes(key), encoded)
	})
}

// putBlock inserts or replaces the record for key and adjusts the usage
// counter atomically with it, then evicts if the store is over its bound.
func (cdb *cacheDB) putBlock(key BlockKey, data []byte) error {
	now := time.Now()
	err := cdb.db.Update(func(txn *badger.Txn) error {
		var delta = int64(len(data))
		if item, err := txn.Get(metaKeyBytes(key)); err == nil {
			var old blockMeta
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &old)
			}); err != nil {
				return err
			}
			delta -= old.Size
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(blockKeyBytes(key), data); err != nil {
			return err
		}
		meta := blockMeta{Size: int64(len(data)), StoredAt: now, LastAccess: now}
		encoded, err := msgpack.Marshal(&meta)
		if err != nil {
			return err
		}
		if err := txn.Set(metaKeyBytes(key), encoded); err != nil {
			return err
		}
		_, err = addUsageInTxn(txn, delta)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to persist block %s", key)
	}

	cdb.maybeEvict()
	return nil
}

func addUsageInTxn(txn *badger.Txn, delta int64) (uint64, error) {
	var current uint64
	item, err := txn.Get(usageKey)
	if err == nil {
		err = item.Value(func(val []byte) error {
			if len(val) == 8 {
				current = binary.BigEndian.Uint64(val)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	updated := int64(current) + delta
	if updated < 0 {
		updated = 0
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(updated))
	if err := txn.Set(usageKey, buf); err != nil {
		return 0, err
	}
	metrics.HttpfsCacheUsageBytes.Set(float64(updated))
	return uint64(updated), nil
}

func (cdb *cacheDB) usage() (uint64, error) {
	var current uint64
	err := cdb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usageKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				current = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	return current, err
}

// forEachMeta iterates every persisted block's metadata (keys only are
// prefetched; values decoded per record).
func (cdb *cacheDB) forEachMeta(fn func(key BlockKey, meta blockMeta) error) error {
	return cdb.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte("m:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key, err := parseMetaKey(item.KeyCopy(nil))
			if err != nil {
				log.Warnf("Skipping unparseable block store record: %v", err)
				continue
			}
			var meta blockMeta
			if err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			if err := fn(key, meta); err != nil {
				return err
			}
		}
		return nil
	})
}

// maybeEvict deletes least-recently-accessed records until usage is within
// the configured byte bound.  Runs at most one pass at a time.
func (cdb *cacheDB) maybeEvict() {
	if cdb.maxBytes == 0 {
		return
	}

	cdb.evictMu.Lock()
	defer cdb.evictMu.Unlock()

	current, err := cdb.usage()
	if err != nil {
		log.Warnf("Failed to read block store usage: %v", err)
		return
	}
	if current <= cdb.maxBytes {
		return
	}

	type candidate struct {
		key        BlockKey
		size       int64
		lastAccess time.Time
	}
	var candidates []candidate
	err = cdb.forEachMeta(func(key BlockKey, meta blockMeta) error {
		candidates = append(candidates, candidate{key: key, size: meta.Size, lastAccess: meta.LastAccess})
		return nil
	})
	if err != nil {
		log.Warnf("Failed to scan block store for eviction: %v", err)
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	excess := int64(current) - int64(cdb.maxBytes)
	evicted := 0
	for _, cand := range candidates {
		if excess <= 0 {
			break
		}
		err := cdb.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete(blockKeyBytes(cand.key)); err != nil {
				return err
			}
			if err := txn.Delete(metaKeyBytes(cand.key)); err != nil {
				return err
			}
			_, err := addUsageInTxn(txn, -cand.size)
			return err
		})
		if err != nil {
			log.Warnf("Failed to evict block %s: %v", cand.key, err)
			continue
		}
		excess -= cand.size
		evicted++
		metrics.HttpfsBlockEvictionsTotal.WithLabelValues("disk").Inc()
		if cdb.onEvict != nil {
			cdb.onEvict(cand.key)
		}
	}
	if evicted > 0 {
		log.Debugf("Evicted %d blocks from the persistent tier (usage was %d, limit %d)",
			evicted, current, cdb.maxBytes)
	}
}

// badgerLogger adapts logrus to badger's logger interface.
type badgerLogger struct{}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	log.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	log.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	log.Tracef("[BadgerDB] "+format, args...)
}
