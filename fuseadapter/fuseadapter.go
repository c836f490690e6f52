// Package fuseadapter is the external FUSE binding spec.md §6 describes:
// a thin translation layer between the kernel's calling convention and
// core.FileSystem's path-based operations. It holds no filesystem state of
// its own beyond the path each node was looked up at — every operation
// still goes through core.FileSystem, which owns the single mutex
// serializing access (spec.md §5).
//
// Grounded on the github.com/hanwen/go-fuse/v2/fs tree API (an
// InodeEmbedder per node, reached via Lookup), rather than the
// lower-level raw fuse.RawFileSystem KarpelesLab/squashfs uses, since
// RUFS's operations are already path-addressed and don't need
// squashfs's custom inode-numbering scheme.
package fuseadapter

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/core"
)

// Node is the InodeEmbedder for every file and directory in a mounted
// RUFS volume. The root node's path is "/".
type Node struct {
	fs.Inode
	fsys *core.FileSystem
	path string
}

var (
	_ fs.InodeEmbedder = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
)

// Root returns the root InodeEmbedder for mounting fsys with
// github.com/hanwen/go-fuse/v2/fs.Mount.
func Root(fsys *core.FileSystem) fs.InodeEmbedder {
	return &Node{fsys: fsys, path: "/"}
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func fillAttr(a *fuse.Attr, st rufs.FileStat) {
	a.Ino = uint64(st.Ino)
	a.Size = uint64(st.Size)
	a.Mode = st.Mode
	a.Nlink = st.Nlink
	a.Uid = st.Uid
	a.Gid = st.Gid
	a.Blksize = uint32(st.BlockSize)
	setTime(&a.Atime, &a.Atimensec, st.AccessedAt)
	setTime(&a.Mtime, &a.Mtimensec, st.ModifiedAt)
	setTime(&a.Ctime, &a.Ctimensec, st.ChangedAt)
}

func setTime(sec *uint64, nsec *uint32, t time.Time) {
	*sec = uint64(t.Unix())
	*nsec = uint32(t.Nanosecond())
}

func stableAttr(st rufs.FileStat) fs.StableAttr {
	mode := uint32(fuse.S_IFREG)
	if st.IsDir() {
		mode = fuse.S_IFDIR
	}
	return fs.StableAttr{Mode: mode, Ino: uint64(st.Ino)}
}

// Lookup resolves name inside this directory node.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := childPath(n.path, name)
	st, err := n.fsys.Getattr(path)
	if err != nil {
		return nil, rufs.ToErrno(err)
	}
	fillAttr(&out.Attr, st)

	child := &Node{fsys: n.fsys, path: path}
	return n.NewInode(ctx, child, stableAttr(st)), 0
}

// Getattr fills out with this node's current attributes.
func (n *Node) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.fsys.Getattr(n.path)
	if err != nil {
		return rufs.ToErrno(err)
	}
	fillAttr(&out.Attr, st)
	return 0
}

// Setattr only supports the truncate-to-zero case core.FileSystem.Truncate
// implements; other attribute changes (mode, ownership) are accepted
// without effect, matching spec.md §1's "no permission enforcement beyond
// mode bits" non-goal.
func (n *Node) Setattr(ctx context.Context, _ fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if sz, ok := in.GetSize(); ok {
		if err := n.fsys.Truncate(n.path, int64(sz)); err != nil {
			return rufs.ToErrno(err)
		}
	}
	st, err := n.fsys.Getattr(n.path)
	if err != nil {
		return rufs.ToErrno(err)
	}
	fillAttr(&out.Attr, st)
	return 0
}

type dirStream struct {
	entries []fuse.DirEntry
	pos     int
}

func (d *dirStream) HasNext() bool { return d.pos < len(d.entries) }
func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++
	return e, 0
}
func (d *dirStream) Close() {}

// Readdir lists this directory's entries.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	err := n.fsys.Readdir(n.path, func(name string, ino uint32) error {
		entries = append(entries, fuse.DirEntry{Name: name, Ino: uint64(ino)})
		return nil
	})
	if err != nil {
		return nil, rufs.ToErrno(err)
	}
	return &dirStream{entries: entries}, 0
}

// Mkdir creates a child directory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	path := childPath(n.path, name)
	if err := n.fsys.Mkdir(path, mode); err != nil {
		return nil, rufs.ToErrno(err)
	}
	st, err := n.fsys.Getattr(path)
	if err != nil {
		return nil, rufs.ToErrno(err)
	}
	fillAttr(&out.Attr, st)
	child := &Node{fsys: n.fsys, path: path}
	return n.NewInode(ctx, child, stableAttr(st)), 0
}

// Rmdir removes a child directory.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return rufs.ToErrno(n.fsys.Rmdir(childPath(n.path, name)))
}

// Create creates and opens a child regular file.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	path := childPath(n.path, name)
	if err := n.fsys.Create(path, mode); err != nil {
		return nil, nil, 0, rufs.ToErrno(err)
	}
	st, err := n.fsys.Getattr(path)
	if err != nil {
		return nil, nil, 0, rufs.ToErrno(err)
	}
	fillAttr(&out.Attr, st)
	child := &Node{fsys: n.fsys, path: path}
	return n.NewInode(ctx, child, stableAttr(st)), nil, 0, 0
}

// Unlink removes a child regular file.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return rufs.ToErrno(n.fsys.Unlink(childPath(n.path, name)))
}

// Open verifies the node exists; RUFS addresses reads and writes by path,
// so no FileHandle is needed.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if err := n.fsys.Open(n.path); err != nil {
		return nil, 0, rufs.ToErrno(err)
	}
	return nil, 0, 0
}

// Read loops core.FileSystem.Read's single-block contract until dest is
// full or the file ends, since spec.md §4.7 assigns that looping to the
// external binding layer.
func (n *Node) Read(ctx context.Context, _ fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	total := 0
	for total < len(dest) {
		got, err := n.fsys.Read(n.path, dest[total:], off+int64(total))
		if err != nil {
			return nil, rufs.ToErrno(err)
		}
		if got == 0 {
			break
		}
		total += got
	}
	return fuse.ReadResultData(dest[:total]), 0
}

// Write loops core.FileSystem.Write's single-block contract until all of
// data has been written.
func (n *Node) Write(ctx context.Context, _ fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	total := 0
	for total < len(data) {
		n2, err := n.fsys.Write(n.path, data[total:], off+int64(total))
		if err != nil {
			return uint32(total), rufs.ToErrno(err)
		}
		if n2 == 0 {
			break
		}
		total += n2
	}
	return uint32(total), 0
}

// MountOptions returns the fs.Options this adapter expects to be mounted
// with: attribute caching disabled, since RUFS has no notion of a kernel
// page cache to invalidate on writes from another mount.
func MountOptions() *fs.Options {
	zero := 0 * time.Second
	return &fs.Options{
		EntryTimeout: &zero,
		AttrTimeout:  &zero,
		MountOptions: fuse.MountOptions{
			Name:   "rufs",
			FsName: "rufs",
		},
	}
}

// BlockSize re-exports block.Size for callers sizing I/O buffers without
// importing package block directly.
const BlockSize = block.Size
