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

// Package block_store provides the capacity-bounded, two-tier store for
// fetched blocks: a small in-memory LRU index of hot blocks in front of a
// larger, size-limited persistent store.  The tiers evict independently —
// a block pushed out of memory is still served from disk without a remote
// re-fetch.
package block_store

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/httpfsproject/httpfs/metrics"
)

// BlockSize is the fixed unit of remote fetch and cache storage (256 KiB).
const BlockSize = 256 * 1024

// BlockKey identifies one block of one remote resource.
type BlockKey struct {
	URL string
	Num int64
}

func (k BlockKey) String() string {
	return k.URL + "#" + strconv.FormatInt(k.Num, 10)
}

// OffsetToBlock returns the block number covering a byte offset.
func OffsetToBlock(offset int64) int64 {
	return offset / BlockSize
}

type (
	// Config holds the store's bounds.  MemoryBlocks caps the in-memory
	// index by entry count; MaxBytes caps the persistent tier by size
	// (0 disables the bound).
	Config struct {
		DataLocation string
		MemoryBlocks int
		MaxBytes     uint64
	}

	// Stats is a snapshot of the hit/miss counters.  Observability only.
	Stats struct {
		MemoryHits      uint64
		DiskHits        uint64
		Misses          uint64
		MemoryEvictions uint64
	}

	BlockStore struct {
		db       *cacheDB
		capacity int

		mu      sync.Mutex
		index   map[BlockKey]*list.Element
		lruList *list.List // front = most recently used

		state *blockState

		memoryHits      atomic.Uint64
		diskHits        atomic.Uint64
		misses          atomic.Uint64
		memoryEvictions atomic.Uint64
	}

	memEntry struct {
		key  BlockKey
		data []byte
	}
)

const defaultMemoryBlocks = 400

// NewBlockStore opens (or creates) the persistent tier under
// cfg.DataLocation and rebuilds the per-resource block-state bitmaps from
// it.  Background maintenance (value-log GC) is owned by egrp and stops
// when ctx is cancelled.
func NewBlockStore(ctx context.Context, egrp *errgroup.Group, cfg Config) (*BlockStore, error) {
	capacity := cfg.MemoryBlocks
	if capacity <= 0 {
		capacity = defaultMemoryBlocks
	}

	db, err := newCacheDB(cfg.DataLocation, cfg.MaxBytes)
	if err != nil {
		return nil, err
	}

	bs := &BlockStore{
		db:       db,
		capacity: capacity,
		index:    make(map[BlockKey]*list.Element),
		lruList:  list.New(),
		state:    newBlockState(),
	}
	db.onEvict = func(key BlockKey) {
		// The memory tier may still hold a copy; only blocks gone from
		// both tiers leave the presence bitmap.
		if bs.InMemory(key) {
			return
		}
		bs.state.remove(key)
	}

	// Persisted blocks survive restarts; rebuild the presence bitmaps so
	// membership queries don't need a database scan per lookup.
	nblocks := 0
	err = db.forEachMeta(func(key BlockKey, meta blockMeta) error {
		bs.state.add(key)
		nblocks++
		return nil
	})
	if err != nil {
		_ = db.close()
		return nil, err
	}
	if nblocks > 0 {
		log.Infof("Block store opened with %d persisted blocks", nblocks)
	}

	if egrp != nil {
		db.startGC(ctx, egrp)
	}

	return bs, nil
}

// Get returns the cached block for key and marks it most recently used.
// A memory miss falls through to the persistent tier, promoting the block
// back into the memory index on a hit.  Persistent-tier read failures
// degrade to a miss so the caller re-fetches from the remote.  A miss has
// no side effects beyond counters.
func (bs *BlockStore) Get(key BlockKey) ([]byte, bool) {
	bs.mu.Lock()
	if elem, ok := bs.index[key]; ok {
		bs.lruList.MoveToFront(elem)
		data := elem.Value.(*memEntry).data
		bs.mu.Unlock()
		bs.memoryHits.Add(1)
		metrics.HttpfsBlockHitsTotal.WithLabelValues("memory").Inc()
		return data, true
	}
	bs.mu.Unlock()

	// Disk tier is consulted outside the index lock; badger synchronizes
	// its own readers.
	data, found, err := bs.db.getBlock(key)
	if err != nil {
		log.Warnf("Persistent block read for %s failed, treating as miss: %v", key, err)
		bs.misses.Add(1)
		metrics.HttpfsBlockMissesTotal.Inc()
		return nil, false
	}
	if !found {
		bs.misses.Add(1)
		metrics.HttpfsBlockMissesTotal.Inc()
		return nil, false
	}

	bs.diskHits.Add(1)
	metrics.HttpfsBlockHitsTotal.WithLabelValues("disk").Inc()

	bs.mu.Lock()
	bs.insertLocked(key, data)
	bs.mu.Unlock()
	bs.state.add(key)
	return data, true
}

// Put stores a freshly fetched block in both tiers and marks it most
// recently used.  A persistent-tier write failure is logged and the block
// is kept in memory only; the cache stays usable.
func (bs *BlockStore) Put(key BlockKey, block []byte) {
	if err := bs.db.putBlock(key, block); err != nil {
		log.Warnf("Failed to persist block %s (%d bytes): %v", key, len(block), err)
	}

	bs.mu.Lock()
	bs.insertLocked(key, block)
	bs.mu.Unlock()
	bs.state.add(key)
}

// insertLocked inserts or refreshes a memory-index entry and evicts from
// the LRU tail until the index is within capacity.  Entries inserted at
// the same instant keep insertion order, so ties evict oldest-first.
func (bs *BlockStore) insertLocked(key BlockKey, data []byte) {
	if elem, ok := bs.index[key]; ok {
		elem.Value.(*memEntry).data = data
		bs.lruList.MoveToFront(elem)
		return
	}

	elem := bs.lruList.PushFront(&memEntry{key: key, data: data})
	bs.index[key] = elem

	for bs.lruList.Len() > bs.capacity {
		oldest := bs.lruList.Back()
		bs.lruList.Remove(oldest)
		delete(bs.index, oldest.Value.(*memEntry).key)
		bs.memoryEvictions.Add(1)
		metrics.HttpfsBlockEvictionsTotal.WithLabelValues("memory").Inc()
	}
}

// InMemory reports whether key currently sits in the memory index, without
// disturbing recency.
func (bs *BlockStore) InMemory(key BlockKey) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.index[key]
	return ok
}

// Contains reports whether key is present in either tier, without
// disturbing recency.
func (bs *BlockStore) Contains(key BlockKey) bool {
	return bs.state.contains(key)
}

// CachedBlocks returns how many distinct blocks of url the store holds
// across both tiers.
func (bs *BlockStore) CachedBlocks(url string) uint64 {
	return bs.state.count(url)
}

// Usage returns the persistent tier's current byte usage.
func (bs *BlockStore) Usage() (uint64, error) {
	return bs.db.usage()
}

func (bs *BlockStore) Stats() Stats {
	return Stats{
		MemoryHits:      bs.memoryHits.Load(),
		DiskHits:        bs.diskHits.Load(),
		Misses:          bs.misses.Load(),
		MemoryEvictions: bs.memoryEvictions.Load(),
	}
}

// Close flushes and closes the persistent tier.
func (bs *BlockStore) Close() error {
	return bs.db.close()
}
