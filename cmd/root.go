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

package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "httpfs",
	Short: "A read-only http/https/ftp filesystem",
	Long: `httpfs presents a remote HTTP, HTTPS, or FTP origin as a read-only
filesystem.  Reads are satisfied through a block-based range-read cache, so
tools expecting ordinary file access can stream portions of a large remote
object without downloading it wholesale.`,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
