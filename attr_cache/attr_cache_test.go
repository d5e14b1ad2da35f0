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

package attr_cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/httpfsproject/httpfs/attr_cache"
	"github.com/httpfsproject/httpfs/fetcher"
)

// countingStatter answers with a fixed size per URL and counts calls.
type countingStatter struct {
	sizes map[string]int64
	calls atomic.Int64
	delay time.Duration
}

func (cs *countingStatter) Stat(ctx context.Context, url string) (int64, error) {
	cs.calls.Add(1)
	if cs.delay > 0 {
		time.Sleep(cs.delay)
	}
	size, ok := cs.sizes[url]
	if !ok {
		return 0, errors.Wrapf(fetcher.ErrNotFound, "no such resource %s", url)
	}
	return size, nil
}

func TestGetPopulatesOnce(t *testing.T) {
	statter := &countingStatter{sizes: map[string]int64{"https://example.com/a": 42}}
	ac := attr_cache.New(statter, time.Minute, 0)
	defer ac.Stop()

	entry, err := ac.Get(context.Background(), "/https/example.com/a..", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), entry.Size)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, entry.CreatedAt, entry.LastAccessAt)

	// Second lookup answers from the cache.
	_, err = ac.Get(context.Background(), "/https/example.com/a..", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), statter.calls.Load())
	assert.Equal(t, 1, ac.Len())
}

func TestGetNotFoundCachesNoEntry(t *testing.T) {
	statter := &countingStatter{sizes: map[string]int64{}}
	ac := attr_cache.New(statter, time.Minute, 0)
	defer ac.Stop()

	_, err := ac.Get(context.Background(), "/https/example.com/gone..", "https://example.com/gone")
	assert.ErrorIs(t, err, fetcher.ErrNotFound)
	assert.Equal(t, 0, ac.Len())
}

// With the negative cache on, a repeated probe for a missing resource
// answers from the marker instead of re-statting the origin.
func TestNegativeCacheSuppressesRestat(t *testing.T) {
	statter := &countingStatter{sizes: map[string]int64{}}
	ac := attr_cache.New(statter, time.Minute, 5*time.Second)
	defer ac.Stop()

	_, err := ac.Get(context.Background(), "/p", "https://example.com/gone")
	require.ErrorIs(t, err, fetcher.ErrNotFound)
	_, err = ac.Get(context.Background(), "/p", "https://example.com/gone")
	require.ErrorIs(t, err, fetcher.ErrNotFound)

	assert.Equal(t, int64(1), statter.calls.Load())
	assert.Equal(t, 0, ac.Len())
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	statter := &countingStatter{
		sizes: map[string]int64{"https://example.com/big": 1000000},
		delay: 50 * time.Millisecond,
	}
	ac := attr_cache.New(statter, time.Minute, 0)
	defer ac.Stop()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := ac.Get(context.Background(), "/p", "https://example.com/big")
			assert.NoError(t, err)
			assert.Equal(t, int64(1000000), entry.Size)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), statter.calls.Load())
}

func TestSweepPurgesIdleEntries(t *testing.T) {
	statter := &countingStatter{sizes: map[string]int64{
		"https://example.com/a": 1,
		"https://example.com/b": 2,
	}}
	ac := attr_cache.New(statter, time.Minute, 0)
	defer ac.Stop()

	_, err := ac.Get(context.Background(), "/a", "https://example.com/a")
	require.NoError(t, err)
	_, err = ac.Get(context.Background(), "/b", "https://example.com/b")
	require.NoError(t, err)
	require.Equal(t, 2, ac.Len())

	// Not idle long enough yet.
	assert.Equal(t, 0, ac.Sweep(time.Now().Add(30*time.Second)))
	assert.Equal(t, 2, ac.Len())

	// Both entries are past the expiry at this instant.
	assert.Equal(t, 2, ac.Sweep(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, ac.Len())

	// A purged entry is re-populated by the next Get.
	_, err = ac.Get(context.Background(), "/a", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), statter.calls.Load())
}

func TestTouchDefersExpiry(t *testing.T) {
	statter := &countingStatter{sizes: map[string]int64{"https://example.com/a": 1}}
	ac := attr_cache.New(statter, time.Minute, 0)
	defer ac.Stop()

	_, err := ac.Get(context.Background(), "/a", "https://example.com/a")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	ac.Touch("/a")

	// The sweep horizon sits past the creation time but short of the
	// refreshed access time, so the entry survives.
	entry, err := ac.Get(context.Background(), "/a", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 0, ac.Sweep(entry.CreatedAt.Add(time.Minute+5*time.Millisecond)))
	assert.Equal(t, 1, ac.Len())
}

func TestTouchMissingPathIsNoop(t *testing.T) {
	ac := attr_cache.New(&countingStatter{sizes: map[string]int64{}}, time.Minute, 0)
	defer ac.Stop()

	ac.Touch("/never/seen")
	assert.Equal(t, 0, ac.Len())
}

func TestCleanupSchedulerSweeps(t *testing.T) {
	statter := &countingStatter{sizes: map[string]int64{"https://example.com/a": 1}}
	ac := attr_cache.New(statter, 20*time.Millisecond, 0)

	_, err := ac.Get(context.Background(), "/a", "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, 1, ac.Len())

	ctx, cancel := context.WithCancel(context.Background())
	egrp, ctx := errgroup.WithContext(ctx)
	attr_cache.NewCleanupScheduler(ac, 10*time.Millisecond).Start(ctx, egrp)

	assert.Eventually(t, func() bool {
		return ac.Len() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, egrp.Wait())
}
