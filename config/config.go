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

// Package config owns process-wide configuration: viper defaults, the
// optional config file, environment overrides, and logging setup.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/httpfsproject/httpfs/param"
)

// Init configures viper defaults, environment-variable overrides
// (HTTPFS_-prefixed, dots replaced by underscores), and the optional
// config file at $HOME/.httpfs/config.yaml.  It then applies the
// configured logging level.
func Init() error {
	viper.SetDefault(param.Cache_DataLocation.GetName(), filepath.Join(os.TempDir(), "httpfs-cache"))
	viper.SetDefault(param.Cache_Size.GetName(), "1GiB")
	viper.SetDefault(param.Cache_MemoryBlocks.GetName(), 400)
	viper.SetDefault(param.Cache_CleanupInterval.GetName(), 60*time.Second)
	viper.SetDefault(param.Cache_CleanupExpiry.GetName(), 60*time.Second)
	viper.SetDefault(param.Cache_NegativeTTL.GetName(), 5*time.Second)

	viper.SetDefault(param.Client_RequestTimeout.GetName(), 30*time.Second)

	viper.SetDefault(param.Logging_Level.GetName(), "info")

	viper.SetDefault(param.Transport_DialerKeepAlive.GetName(), 30*time.Second)
	viper.SetDefault(param.Transport_DialerTimeout.GetName(), 10*time.Second)
	viper.SetDefault(param.Transport_ExpectContinueTimeout.GetName(), 1*time.Second)
	viper.SetDefault(param.Transport_IdleConnTimeout.GetName(), 90*time.Second)
	viper.SetDefault(param.Transport_MaxIdleConns.GetName(), 30)
	viper.SetDefault(param.Transport_ResponseHeaderTimeout.GetName(), 10*time.Second)
	viper.SetDefault(param.Transport_TLSHandshakeTimeout.GetName(), 15*time.Second)

	viper.SetEnvPrefix("httpfs")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.httpfs")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "failed to read config file")
		}
		// Missing config file is not an error; defaults apply.
	}

	return setLogging()
}

func setLogging() error {
	levelStr := param.Logging_Level.GetString()
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		return errors.Wrapf(err, "unknown logging level %q", levelStr)
	}
	log.SetLevel(level)
	return nil
}

// GetCacheSize parses the Cache.Size parameter (e.g. "1GB", "512MB") into
// a byte count.  A value of "0" disables the persistent-tier size bound.
func GetCacheSize() (uint64, error) {
	sizeStr := param.Cache_Size.GetString()
	signedSize, err := units.ParseStrictBytes(sizeStr)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to parse Cache.Size value %q", sizeStr)
	}
	if signedSize < 0 {
		return 0, errors.Errorf("Cache.Size cannot be negative (%s)", sizeStr)
	}
	return uint64(signedSize), nil
}
