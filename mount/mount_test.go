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

package mount

import (
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/httpfsproject/httpfs/fetcher"
	"github.com/httpfsproject/httpfs/httpfs"
)

func TestErrnoFor(t *testing.T) {
	assert.Equal(t, syscall.ENOENT, errnoFor(fetcher.ErrNotFound))
	assert.Equal(t, syscall.ENOENT, errnoFor(errors.Wrap(fetcher.ErrNotFound, "lookup failed")))
	assert.Equal(t, syscall.EISDIR, errnoFor(httpfs.ErrNotFile))
	assert.Equal(t, syscall.EIO, errnoFor(fetcher.ErrRemoteUnavailable))
	assert.Equal(t, syscall.EIO, errnoFor(errors.New("something else")))
}

func TestFillAttrDirectory(t *testing.T) {
	var out fuse.Attr
	fillAttr(httpfs.DirectoryAttributes{}, &out)
	assert.Equal(t, uint32(fuse.S_IFDIR|0555), out.Mode)
	assert.Equal(t, uint32(2), out.Nlink)
	assert.Zero(t, out.Size)
}

func TestFillAttrFile(t *testing.T) {
	created := time.Unix(1700000000, 0)
	accessed := time.Unix(1700000100, 0)
	var out fuse.Attr
	fillAttr(httpfs.FileAttributes{Size: 9876, CreatedAt: created, LastAccessAt: accessed}, &out)

	assert.Equal(t, uint32(fuse.S_IFREG|0644), out.Mode)
	assert.Equal(t, uint32(1), out.Nlink)
	assert.Equal(t, uint64(9876), out.Size)
	assert.Equal(t, uint64(accessed.Unix()), out.Atime)
	assert.Equal(t, uint64(created.Unix()), out.Mtime)
}
