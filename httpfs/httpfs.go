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

// Package httpfs assembles arbitrary (offset, length) reads of remote
// resources out of fixed-size cached blocks, and exposes the two callbacks
// a mounting layer needs: Attributes and ReadBytes.
package httpfs

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/httpfsproject/httpfs/attr_cache"
	"github.com/httpfsproject/httpfs/block_store"
)

// fileSuffixMarker is the two-character marker the mounting layer appends
// to distinguish "this is a file" paths from directory probes.  The core
// honors the convention but does not own it.
const fileSuffixMarker = ".."

// ErrNotFile is returned when a byte read targets a directory-probe path.
var ErrNotFile = errors.New("path does not name a file")

type (
	// Attributes is the tagged result of a metadata lookup: either
	// DirectoryAttributes or FileAttributes.
	Attributes interface {
		IsDir() bool
	}

	// DirectoryAttributes describes the synthetic directory nodes; every
	// path without the file marker resolves to one.
	DirectoryAttributes struct{}

	// FileAttributes describes a remote file.
	FileAttributes struct {
		Size         int64
		CreatedAt    time.Time
		LastAccessAt time.Time
	}

	// Fetcher is the remote-access dependency of the assembler.
	Fetcher interface {
		FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error)
		Stat(ctx context.Context, url string) (int64, error)
	}

	// Filesystem is the read-only byte store over a remote origin.
	Filesystem struct {
		scheme string
		blocks *block_store.BlockStore
		attrs  *attr_cache.AttributeCache

		fetcher    Fetcher
		fetchGroup singleflight.Group
	}
)

func (DirectoryAttributes) IsDir() bool { return true }
func (FileAttributes) IsDir() bool      { return false }

var supportedSchemes = map[string]bool{"http": true, "https": true, "ftp": true}

// New builds the filesystem core for one URL scheme.
func New(scheme string, f Fetcher, blocks *block_store.BlockStore, attrs *attr_cache.AttributeCache) (*Filesystem, error) {
	if !supportedSchemes[scheme] {
		return nil, errors.Errorf("unsupported scheme %q (want http, https, or ftp)", scheme)
	}
	return &Filesystem{
		scheme:  scheme,
		blocks:  blocks,
		attrs:   attrs,
		fetcher: f,
	}, nil
}

// resolveURL maps a path to its remote URL per the naming convention:
// strip the trailing file marker and prefix "<scheme>:/".  Paths without
// the marker are directory probes and do not resolve.
func (f *Filesystem) resolveURL(path string) (string, bool) {
	if !strings.HasSuffix(path, fileSuffixMarker) {
		return "", false
	}
	return f.scheme + ":/" + strings.TrimSuffix(path, fileSuffixMarker), true
}

// Attributes answers a metadata lookup for path.  Directory probes yield
// DirectoryAttributes without a remote call; file paths consult the
// attribute cache (statting the remote on first sight).  An absent remote
// resource surfaces as fetcher.ErrNotFound for the mounting layer to map
// to its "no such entry" signal.
func (f *Filesystem) Attributes(ctx context.Context, path string) (Attributes, error) {
	url, isFile := f.resolveURL(path)
	if !isFile {
		return DirectoryAttributes{}, nil
	}

	entry, err := f.attrs.Get(ctx, path, url)
	if err != nil {
		return nil, err
	}
	return FileAttributes{
		Size:         entry.Size,
		CreatedAt:    entry.CreatedAt,
		LastAccessAt: entry.LastAccessAt,
	}, nil
}

// ReadBytes returns the bytes [offset, offset+length) of the file at path,
// assembled from cached blocks with remote fetches on miss.  The result is
// exactly length bytes unless the range runs past the resource's known
// size, in which case it is truncated to the size reported by the
// attribute cache.  A failed block fetch fails the whole read; partial
// output is never returned.
func (f *Filesystem) ReadBytes(ctx context.Context, path string, length int, offset int64) ([]byte, error) {
	url, isFile := f.resolveURL(path)
	if !isFile {
		return nil, errors.Wrapf(ErrNotFile, "cannot read %s", path)
	}
	if offset < 0 || length < 0 {
		return nil, errors.Errorf("invalid read of %d bytes at offset %d", length, offset)
	}

	entry, err := f.attrs.Get(ctx, path, url)
	if err != nil {
		return nil, err
	}

	// Clamp to the known size; the assembler never guesses past it.
	if offset >= entry.Size {
		return []byte{}, nil
	}
	if offset+int64(length) > entry.Size {
		length = int(entry.Size - offset)
	}

	out := make([]byte, length)
	copied := 0
	for num := block_store.OffsetToBlock(offset); copied < length; num++ {
		blockStart := num * block_store.BlockSize

		block, err := f.getBlock(ctx, url, num)
		if err != nil {
			return nil, errors.Wrapf(err, "failed reading block %d of %s", num, path)
		}

		// Overlap of [blockStart, blockStart+len(block)) with the request.
		from := offset
		if blockStart > from {
			from = blockStart
		}
		to := offset + int64(length)
		if blockEnd := blockStart + int64(len(block)); blockEnd < to {
			to = blockEnd
		}
		if to <= from {
			return nil, errors.Errorf("short block %d of %s (%d bytes) cannot cover offset %d",
				num, path, len(block), from)
		}

		copied += copy(out[from-offset:to-offset], block[from-blockStart:to-blockStart])
	}

	f.attrs.Touch(path)
	return out, nil
}

// getBlock returns one whole block, from the store when cached and from
// the remote otherwise.  Concurrent misses on the same block share a
// single fetch through the singleflight group; the block is immutable once
// stored, so every waiter can safely use the shared slice.  The first
// caller's context governs the shared fetch (no per-read cancellation).
func (f *Filesystem) getBlock(ctx context.Context, url string, num int64) ([]byte, error) {
	key := block_store.BlockKey{URL: url, Num: num}
	if data, ok := f.blocks.Get(key); ok {
		return data, nil
	}

	result, err, shared := f.fetchGroup.Do(key.String(), func() (interface{}, error) {
		// A flight that completed while we queued may have stored the
		// block already.
		if data, ok := f.blocks.Get(key); ok {
			return data, nil
		}

		start := num * block_store.BlockSize
		end := start + block_store.BlockSize - 1
		data, err := f.fetcher.FetchRange(ctx, url, start, end)
		if err != nil {
			return nil, err
		}
		f.blocks.Put(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Tracef("Block %s served by a shared in-flight fetch", key)
	}
	return result.([]byte), nil
}
