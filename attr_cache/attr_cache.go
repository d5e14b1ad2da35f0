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

// Package attr_cache caches remote resource metadata (size, timestamps)
// with an idle-time expiry, and owns the periodic cleanup task that
// enforces it.
package attr_cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/httpfsproject/httpfs/fetcher"
	"github.com/httpfsproject/httpfs/metrics"
)

// Entry is the metadata cached for one resource path.
// LastAccessAt >= CreatedAt always holds; Touch only moves it forward.
type Entry struct {
	Size         int64
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// Statter resolves a resource URL to its byte length.
// *fetcher.RangeFetcher satisfies it.
type Statter interface {
	Stat(ctx context.Context, url string) (int64, error)
}

// AttributeCache maps resource paths to attribute entries.  Entries are
// created by a HEAD-equivalent stat on first sight, refreshed by Touch on
// every successful read, and purged by Sweep once idle past the expiry.
//
// Lookups of absent resources are remembered in a short-TTL negative
// cache so a flurry of probes for the same missing path doesn't hammer
// the origin; a real entry is never created for them.
type AttributeCache struct {
	statter Statter
	expiry  time.Duration

	mu      sync.Mutex
	entries map[string]Entry

	statGroup singleflight.Group
	negative  *ttlcache.Cache[string, struct{}]
}

// New builds an AttributeCache.  expiry bounds how long an untouched entry
// survives; negativeTTL bounds how long a NotFound result is remembered
// (0 disables the negative cache).
func New(statter Statter, expiry, negativeTTL time.Duration) *AttributeCache {
	ac := &AttributeCache{
		statter: statter,
		expiry:  expiry,
		entries: make(map[string]Entry),
	}
	if negativeTTL > 0 {
		ac.negative = ttlcache.New(
			ttlcache.WithTTL[string, struct{}](negativeTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
		go ac.negative.Start()
	}
	return ac
}

// Get returns the cached entry for path, populating it from the remote on
// first sight.  The stat runs outside the cache lock and concurrent
// misses for the same path are coalesced into a single remote call.
// A missing remote resource yields fetcher.ErrNotFound and caches nothing
// (beyond the negative marker).
func (ac *AttributeCache) Get(ctx context.Context, path, url string) (Entry, error) {
	ac.mu.Lock()
	entry, ok := ac.entries[path]
	ac.mu.Unlock()
	if ok {
		return entry, nil
	}

	if ac.negative != nil && ac.negative.Get(path) != nil {
		return Entry{}, errors.Wrapf(fetcher.ErrNotFound, "%s recently reported absent", path)
	}

	result, err, _ := ac.statGroup.Do(path, func() (interface{}, error) {
		// Re-check under the flight: a racing Get may have stored the
		// entry while we queued.
		ac.mu.Lock()
		if existing, ok := ac.entries[path]; ok {
			ac.mu.Unlock()
			return existing, nil
		}
		ac.mu.Unlock()

		size, err := ac.statter.Stat(ctx, url)
		if err != nil {
			if errors.Is(err, fetcher.ErrNotFound) && ac.negative != nil {
				ac.negative.Set(path, struct{}{}, ttlcache.DefaultTTL)
			}
			return Entry{}, err
		}

		now := time.Now()
		fresh := Entry{Size: size, CreatedAt: now, LastAccessAt: now}
		ac.mu.Lock()
		ac.entries[path] = fresh
		ac.mu.Unlock()
		log.Debugf("Cached attributes for %s (size %d)", path, size)
		return fresh, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return result.(Entry), nil
}

// Touch refreshes the entry's last-access time so actively read resources
// never expire mid-use.  No remote call; a missing entry is a no-op.
func (ac *AttributeCache) Touch(path string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	entry, ok := ac.entries[path]
	if !ok {
		return
	}
	entry.LastAccessAt = time.Now()
	ac.entries[path] = entry
}

// Sweep removes every entry idle for at least the expiry and returns how
// many were purged.  It holds the same lock as Get/Touch, so a sweep is
// atomic relative to concurrent touches.
func (ac *AttributeCache) Sweep(now time.Time) int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	purged := 0
	for path, entry := range ac.entries {
		if now.Sub(entry.LastAccessAt) >= ac.expiry {
			delete(ac.entries, path)
			purged++
		}
	}
	if purged > 0 {
		log.Debugf("Attribute sweep purged %d entries (%d remain)", purged, len(ac.entries))
	}
	return purged
}

// Len returns the number of live entries.
func (ac *AttributeCache) Len() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return len(ac.entries)
}

// Stop halts the negative cache's expiry goroutine.
func (ac *AttributeCache) Stop() {
	if ac.negative != nil {
		ac.negative.Stop()
	}
}

// CleanupScheduler periodically sweeps an AttributeCache for the lifetime
// of the owning process.
type CleanupScheduler struct {
	cache    *AttributeCache
	interval time.Duration
}

func NewCleanupScheduler(cache *AttributeCache, interval time.Duration) *CleanupScheduler {
	return &CleanupScheduler{cache: cache, interval: interval}
}

// Start launches the sweep loop under egrp.  Cancelling ctx stops the
// ticker and the negative cache; no timer outlives shutdown.
func (cs *CleanupScheduler) Start(ctx context.Context, egrp *errgroup.Group) {
	egrp.Go(func() error {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				cs.cache.Stop()
				return nil
			case <-ticker.C:
				purged := cs.cache.Sweep(time.Now())
				metrics.HttpfsAttributeSweepsTotal.Inc()
				metrics.HttpfsAttributesPurgedTotal.Add(float64(purged))
			}
		}
	})
}
