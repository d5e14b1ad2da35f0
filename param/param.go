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

// Package param provides typed accessors for every recognized configuration
// parameter.  Values are resolved through viper, so they reflect defaults,
// the optional config file, and HTTPFS_*-prefixed environment variables.
package param

import (
	"time"

	"github.com/spf13/viper"
)

type StringParam struct {
	name string
}

func (p StringParam) GetName() string {
	return p.name
}

func (p StringParam) GetString() string {
	return viper.GetString(p.name)
}

type IntParam struct {
	name string
}

func (p IntParam) GetName() string {
	return p.name
}

func (p IntParam) GetInt() int {
	return viper.GetInt(p.name)
}

type BoolParam struct {
	name string
}

func (p BoolParam) GetName() string {
	return p.name
}

func (p BoolParam) GetBool() bool {
	return viper.GetBool(p.name)
}

type DurationParam struct {
	name string
}

func (p DurationParam) GetName() string {
	return p.name
}

func (p DurationParam) GetDuration() time.Duration {
	return viper.GetDuration(p.name)
}

var (
	Cache_DataLocation    = StringParam{"Cache.DataLocation"}
	Cache_Size            = StringParam{"Cache.Size"}
	Cache_MemoryBlocks    = IntParam{"Cache.MemoryBlocks"}
	Cache_CleanupInterval = DurationParam{"Cache.CleanupInterval"}
	Cache_CleanupExpiry   = DurationParam{"Cache.CleanupExpiry"}
	Cache_NegativeTTL     = DurationParam{"Cache.NegativeTTL"}

	Client_RequestTimeout = DurationParam{"Client.RequestTimeout"}

	Logging_Level = StringParam{"Logging.Level"}

	TLSSkipVerify = BoolParam{"TLSSkipVerify"}

	Transport_DialerKeepAlive       = DurationParam{"Transport.DialerKeepAlive"}
	Transport_DialerTimeout         = DurationParam{"Transport.DialerTimeout"}
	Transport_ExpectContinueTimeout = DurationParam{"Transport.ExpectContinueTimeout"}
	Transport_IdleConnTimeout       = DurationParam{"Transport.IdleConnTimeout"}
	Transport_MaxIdleConns          = IntParam{"Transport.MaxIdleConns"}
	Transport_ResponseHeaderTimeout = DurationParam{"Transport.ResponseHeaderTimeout"}
	Transport_TLSHandshakeTimeout   = DurationParam{"Transport.TLSHandshakeTimeout"}
)
