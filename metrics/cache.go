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

// Package metrics defines the prometheus instrumentation for the block
// cache and attribute cache.  Counters here are observability only; no
// control decision reads them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpfsBlockHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpfs_block_hits_total",
		Help: "Number of block reads served from the cache, by tier (memory or disk)",
	}, []string{"tier"})

	HttpfsBlockMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpfs_block_misses_total",
		Help: "Number of block reads that required a remote fetch",
	})

	HttpfsBlockEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpfs_block_evictions_total",
		Help: "Number of blocks evicted from the cache, by tier (memory or disk)",
	}, []string{"tier"})

	HttpfsRemoteFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpfs_remote_fetches_total",
		Help: "Number of remote range fetches issued, by result (ok or error)",
	}, []string{"result"})

	HttpfsCacheUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "httpfs_cache_usage_bytes",
		Help: "Current byte usage of the persistent block store",
	})

	HttpfsAttributeSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpfs_attribute_sweeps_total",
		Help: "Number of cleanup sweeps run against the attribute cache",
	})

	HttpfsAttributesPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpfs_attributes_purged_total",
		Help: "Number of attribute entries removed by cleanup sweeps",
	})
)
