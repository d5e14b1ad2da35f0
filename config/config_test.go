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

package config_test

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/httpfsproject/httpfs/config"
	"github.com/httpfsproject/httpfs/param"
)

func TestInitDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.NoError(t, config.Init())

	assert.NotEmpty(t, param.Cache_DataLocation.GetString())
	assert.Equal(t, 400, param.Cache_MemoryBlocks.GetInt())
	assert.Equal(t, 60*time.Second, param.Cache_CleanupInterval.GetDuration())
	assert.Equal(t, 60*time.Second, param.Cache_CleanupExpiry.GetDuration())
	assert.Equal(t, 5*time.Second, param.Cache_NegativeTTL.GetDuration())
	assert.Equal(t, 30*time.Second, param.Client_RequestTimeout.GetDuration())
	assert.False(t, param.TLSSkipVerify.GetBool())

	size, err := config.GetCacheSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<30), size)
}

func TestEnvironmentOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HTTPFS_CACHE_MEMORYBLOCKS", "25")
	t.Setenv("HTTPFS_CACHE_SIZE", "512MiB")
	require.NoError(t, config.Init())

	assert.Equal(t, 25, param.Cache_MemoryBlocks.GetInt())
	size, err := config.GetCacheSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(512<<20), size)
}

func TestCacheSizeVariants(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	require.NoError(t, config.Init())

	tests := []struct {
		value string
		want  uint64
	}{
		{"0", 0},
		{"1GB", 1000000000},
		{"1GiB", 1 << 30},
		{"512MB", 512000000},
	}
	for _, tt := range tests {
		viper.Set(param.Cache_Size.GetName(), tt.value)
		size, err := config.GetCacheSize()
		require.NoError(t, err, "value %q", tt.value)
		assert.Equal(t, tt.want, size, "value %q", tt.value)
	}

	viper.Set(param.Cache_Size.GetName(), "a lot")
	_, err := config.GetCacheSize()
	assert.Error(t, err)
}

func TestLoggingLevelApplied(t *testing.T) {
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		log.SetLevel(log.InfoLevel)
	})
	t.Setenv("HTTPFS_LOGGING_LEVEL", "debug")
	require.NoError(t, config.Init())
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestBadLoggingLevelRejected(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HTTPFS_LOGGING_LEVEL", "extremely-loud")
	assert.Error(t, config.Init())
}
