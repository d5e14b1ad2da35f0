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

// Package mount is the thin FUSE glue: it registers the httpfs core as a
// mountable filesystem and dispatches kernel operations to its Attributes
// and ReadBytes callbacks.  No caching or retry logic lives here.
package mount

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/httpfsproject/httpfs/fetcher"
	"github.com/httpfsproject/httpfs/httpfs"
)

// fsNode is one synthetic node in the tree.  path is the full, /-rooted
// path handed to the core (the root's path is empty).
type fsNode struct {
	fs.Inode
	fsys *httpfs.Filesystem
	path string
}

var _ = (fs.NodeLookuper)((*fsNode)(nil))
var _ = (fs.NodeGetattrer)((*fsNode)(nil))
var _ = (fs.NodeOpener)((*fsNode)(nil))
var _ = (fs.NodeReader)((*fsNode)(nil))
var _ = (fs.NodeReaddirer)((*fsNode)(nil))

// errnoFor maps core errors onto the kernel's error vocabulary.
func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, fetcher.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, httpfs.ErrNotFile):
		return syscall.EISDIR
	default:
		return syscall.EIO
	}
}

func (n *fsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.path + "/" + name

	attr, err := n.fsys.Attributes(ctx, childPath)
	if err != nil {
		return nil, errnoFor(err)
	}

	child := &fsNode{fsys: n.fsys, path: childPath}
	mode := uint32(fuse.S_IFREG)
	if attr.IsDir() {
		mode = fuse.S_IFDIR
	}
	fillAttr(attr, &out.Attr)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode}), 0
}

func (n *fsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if n.path == "" {
		fillAttr(httpfs.DirectoryAttributes{}, &out.Attr)
		return 0
	}
	attr, err := n.fsys.Attributes(ctx, n.path)
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(attr, &out.Attr)
	return 0
}

func (n *fsNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	// Block immutability makes the kernel page cache safe to keep.
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *fsNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.fsys.ReadBytes(ctx, n.path, len(dest), off)
	if err != nil {
		log.Warnf("Read of %s failed: %v", n.path, err)
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(data), 0
}

// Readdir returns an empty listing: the tree is synthetic and only a
// single root is presented.
func (n *fsNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return fs.NewListDirStream(nil), 0
}

func fillAttr(attr httpfs.Attributes, out *fuse.Attr) {
	if attr.IsDir() {
		out.Mode = fuse.S_IFDIR | 0555
		out.Nlink = 2
		return
	}
	file := attr.(httpfs.FileAttributes)
	out.Mode = fuse.S_IFREG | 0644
	out.Nlink = 1
	out.Size = uint64(file.Size)
	out.SetTimes(&file.LastAccessAt, &file.CreatedAt, &file.CreatedAt)
}

// Mount registers the core at mountpoint and starts serving kernel
// requests.  The caller owns the returned server's lifetime (Unmount on
// shutdown).
func Mount(fsys *httpfs.Filesystem, mountpoint string) (*fuse.Server, error) {
	attrTimeout := 1 * time.Second
	entryTimeout := 1 * time.Second
	opts := &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			FsName: "httpfs",
			Name:   "httpfs",
		},
	}

	root := &fsNode{fsys: fsys, path: ""}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mount at %s", mountpoint)
	}
	log.Infof("Mounted httpfs at %s", mountpoint)
	return server, nil
}
