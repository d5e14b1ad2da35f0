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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/httpfsproject/httpfs/attr_cache"
	"github.com/httpfsproject/httpfs/block_store"
	"github.com/httpfsproject/httpfs/config"
	"github.com/httpfsproject/httpfs/fetcher"
	"github.com/httpfsproject/httpfs/httpfs"
	"github.com/httpfsproject/httpfs/mount"
	"github.com/httpfsproject/httpfs/param"
)

var (
	foreground bool

	mountCmd = &cobra.Command{
		Use:          "mount <mountpoint> <scheme>",
		Short:        "Mount a remote origin as a read-only filesystem",
		Args:         cobra.ExactArgs(2),
		RunE:         mountMain,
		SilenceUsage: true,
	}
)

func init() {
	mountCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground")
}

func mountMain(cmd *cobra.Command, args []string) error {
	if err := config.Init(); err != nil {
		return err
	}

	mountpoint, scheme := args[0], args[1]
	if !foreground {
		// Daemonization is left to the service manager; behave the same
		// either way rather than forking.
		log.Debugln("Background mode requested; staying in the foreground (use a service manager to daemonize)")
	}

	cacheSize, err := config.GetCacheSize()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	egrp, ctx := errgroup.WithContext(ctx)

	blocks, err := block_store.NewBlockStore(ctx, egrp, block_store.Config{
		DataLocation: param.Cache_DataLocation.GetString(),
		MemoryBlocks: param.Cache_MemoryBlocks.GetInt(),
		MaxBytes:     cacheSize,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open the block store")
	}

	rf := fetcher.New()
	attrs := attr_cache.New(rf, param.Cache_CleanupExpiry.GetDuration(), param.Cache_NegativeTTL.GetDuration())
	attr_cache.NewCleanupScheduler(attrs, param.Cache_CleanupInterval.GetDuration()).Start(ctx, egrp)

	fsys, err := httpfs.New(scheme, rf, blocks, attrs)
	if err != nil {
		return err
	}

	server, err := mount.Mount(fsys, mountpoint)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Infoln("Shutting down; unmounting", mountpoint)
	if err := server.Unmount(); err != nil {
		log.Warnf("Unmount of %s failed: %v", mountpoint, err)
	}
	server.Wait()

	stop()
	if err := egrp.Wait(); err != nil {
		log.Warnf("Background task error during shutdown: %v", err)
	}
	if err := blocks.Close(); err != nil {
		log.Warnf("Failed to close the block store cleanly: %v", err)
	}
	return nil
}
