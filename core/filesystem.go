// Package core composes the lower layers (block, layout, allocator, inode,
// directory, resolver) into the filesystem operations spec.md §4.7 and §6
// expose to an external binding layer: getattr, readdir, mkdir/rmdir,
// create/open/read/write/unlink, truncate/flush/release/utimens.
//
// Concurrency follows spec.md §5 strategy (A): FileSystem holds a single
// mutex taken for the duration of every exported method, matching how
// github.com/dargueta/disko/drivers/common/basedriver.CommonDriver
// serializes operations through one receiver value.
package core

import (
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/allocator"
	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/directory"
	"github.com/rufs-go/rufs/inode"
	"github.com/rufs-go/rufs/layout"
	"github.com/rufs-go/rufs/resolver"
)

// FileSystem is a mounted RUFS diskfile. The zero value is not usable; build
// one with Mount or Format.
type FileSystem struct {
	mu sync.Mutex

	dev         *block.Device
	sb          layout.Superblock
	table       *inode.Table
	inodeBitmap *allocator.Bitmap
	dataBitmap  *allocator.BlockAllocator
	dirs        *directory.Service
	resolve     *resolver.Resolver
}

func build(dev *block.Device, sb layout.Superblock) *FileSystem {
	table := inode.NewTable(dev, sb)
	dataBitmap := allocator.NewBlockAllocator(dev, int64(sb.DataBitmapBlk), sb.MaxDataBlocks, sb.DataStartBlk)
	dirs := directory.NewService(dev, table, dataBitmap)

	return &FileSystem{
		dev:         dev,
		sb:          sb,
		table:       table,
		inodeBitmap: allocator.New(dev, int64(sb.InodeBitmapBlk), sb.MaxInodes),
		dataBitmap:  dataBitmap,
		dirs:        dirs,
		resolve:     resolver.New(table, dirs),
	}
}

// Format is mkfs followed immediately by mount: it lays out a brand new
// filesystem on dev and returns it ready for use. dev must already contain
// enough blocks for params (see block.Init).
func Format(dev *block.Device, params layout.Params) (*FileSystem, error) {
	sb, err := layout.Format(dev, params)
	if err != nil {
		return nil, err
	}
	return build(dev, sb), nil
}

// Mount implements spec.md §4.2's mount contract: it rereads the superblock
// from block 0 and repopulates layout constants from it. No bitmap is
// cached — every allocator call still reads its block fresh.
func Mount(dev *block.Device) (*FileSystem, error) {
	sb, err := layout.Read(dev)
	if err != nil {
		return nil, err
	}
	return build(dev, sb), nil
}

// Close releases the backing block device. It is the "destroy" operation.
func (fs *FileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dev.Close()
}

// Stat returns filesystem-wide statistics, analogous to statvfs(2).
func (fs *FileSystem) Stat() (rufs.FSStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	usedInodes, err := fs.inodeBitmap.CountSet()
	if err != nil {
		return rufs.FSStat{}, err
	}
	usedBlocks, err := fs.dataBitmap.CountAllocated()
	if err != nil {
		return rufs.FSStat{}, err
	}

	return rufs.FSStat{
		BlockSize:     block.Size,
		TotalBlocks:   uint64(fs.sb.MaxDataBlocks),
		BlocksFree:    uint64(fs.sb.MaxDataBlocks) - uint64(usedBlocks),
		TotalInodes:   uint64(fs.sb.MaxInodes),
		InodesFree:    uint64(fs.sb.MaxInodes) - uint64(usedInodes),
		MaxNameLength: directory.NameMaxLen - 1,
	}, nil
}

// Getattr resolves path and projects its inode into a stat-shaped result.
func (fs *FileSystem) Getattr(path string) (rufs.FileStat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return rufs.FileStat{}, err
	}
	return n.FileStat(), nil
}

// OpenDir verifies path resolves to a directory. It returns the directory's
// inode number, which callers thread through to Readdir/ReleaseDir.
func (fs *FileSystem) OpenDir(path string) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return 0, err
	}
	if !n.IsDir() {
		return 0, rufs.ErrNotADirectory.WithMessagef("%q is not a directory", path)
	}
	return n.Ino, nil
}

// ReleaseDir is a thin wrapper; RUFS keeps no open-directory state to tear
// down (spec.md §4.7).
func (fs *FileSystem) ReleaseDir(uint32) error {
	return nil
}

// Readdir invokes fill once per occupied directory entry (spec.md §4.7).
// fill is called with the lock held, so it must not re-enter FileSystem.
func (fs *FileSystem) Readdir(path string, fill func(name string, ino uint32) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return err
	}
	if !n.IsDir() {
		return rufs.ErrNotADirectory.WithMessagef("%q is not a directory", path)
	}

	entries, err := fs.dirs.List(&n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if err := fill(e.Name, e.Ino); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSystem) newInode(mode uint32, isDir bool) (inode.Inode, error) {
	ino, err := fs.inodeBitmap.Allocate()
	if err != nil {
		return inode.Inode{}, err
	}

	now := time.Now()
	link := uint32(1)
	if isDir {
		link = 2
	}

	n := inode.Inode{
		Ino:        ino,
		Valid:      true,
		Type:       mode,
		Link:       link,
		Uid:        uint32(os.Getuid()),
		Gid:        uint32(os.Getgid()),
		AccessedAt: now,
		ModifiedAt: now,
		ChangedAt:  now,
	}
	return n, nil
}

// Mkdir creates an empty directory at path, populating its "." and ".."
// entries for symmetry with the root (spec.md §9).
func (fs *FileSystem) Mkdir(path string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, leaf, err := fs.resolve.ResolveParentAndLeaf(path)
	if err != nil {
		return err
	}
	if !parent.IsDir() {
		return rufs.ErrNotADirectory.WithMessagef("parent of %q is not a directory", path)
	}

	n, err := fs.newInode(rufs.ModeTypeDirectory|(mode&rufs.ModePermMask), true)
	if err != nil {
		return err
	}

	dataBlk, err := fs.dataBitmap.Allocate()
	if err != nil {
		fs.inodeBitmap.Free(n.Ino)
		return err
	}
	n.DirectPtr[0] = dataBlk
	n.Size = uint64(2 * directory.EntrySize())

	selfBlock := make([]byte, block.Size)
	directory.WriteDotEntries(selfBlock, n.Ino, parent.Ino)
	if err := fs.dev.WriteBlock(int64(dataBlk), selfBlock); err != nil {
		return err
	}

	if err := fs.table.Write(n); err != nil {
		return err
	}

	if err := fs.dirs.Add(parent.Ino, n.Ino, leaf, true); err != nil {
		return err
	}
	return nil
}

// Create creates an empty regular file at path (no data block is
// allocated until the first write).
func (fs *FileSystem) Create(path string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, leaf, err := fs.resolve.ResolveParentAndLeaf(path)
	if err != nil {
		return err
	}
	if !parent.IsDir() {
		return rufs.ErrNotADirectory.WithMessagef("parent of %q is not a directory", path)
	}

	n, err := fs.newInode(rufs.ModeTypeRegular|(mode&rufs.ModePermMask), false)
	if err != nil {
		return err
	}

	if err := fs.table.Write(n); err != nil {
		return err
	}
	return fs.dirs.Add(parent.Ino, n.Ino, leaf, false)
}

// Open verifies path resolves to an existing object. RUFS has no file
// descriptor table beyond this: reads and writes are addressed by path.
func (fs *FileSystem) Open(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.resolve.Resolve(path, resolver.RootIno)
	return err
}

// Release is a thin wrapper (spec.md §4.7); nothing to tear down.
func (fs *FileSystem) Release(string) error {
	return nil
}

// Flush is a thin wrapper; every write is already persisted synchronously.
func (fs *FileSystem) Flush(string) error {
	return nil
}

func (fs *FileSystem) freeDataBlocks(n *inode.Inode) error {
	for i, ptr := range n.DirectPtr {
		if ptr == 0 {
			continue
		}
		if err := fs.dataBitmap.Free(ptr); err != nil {
			return err
		}
		n.DirectPtr[i] = 0
	}
	return nil
}

// Unlink removes a regular file: frees its data blocks, frees its inode,
// and removes its directory entry.
func (fs *FileSystem) Unlink(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, leaf, err := fs.resolve.ResolveParentAndLeaf(path)
	if err != nil {
		return err
	}

	target, ok, err := fs.dirs.Find(&parent, leaf)
	if err != nil {
		return err
	}
	if !ok {
		return rufs.ErrNotFound.WithMessagef("%q not found", path)
	}

	targetNode, err := fs.table.Read(target.Ino)
	if err != nil {
		return err
	}
	if targetNode.IsDir() {
		return rufs.ErrIsADirectory.WithMessagef("%q is a directory", path)
	}

	if err := fs.freeDataBlocks(&targetNode); err != nil {
		return err
	}
	if err := fs.inodeBitmap.Free(targetNode.Ino); err != nil {
		return err
	}
	return fs.dirs.Remove(parent.Ino, leaf, false)
}

// Rmdir removes an empty directory (one containing only "." and "..").
func (fs *FileSystem) Rmdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, leaf, err := fs.resolve.ResolveParentAndLeaf(path)
	if err != nil {
		return err
	}

	target, ok, err := fs.dirs.Find(&parent, leaf)
	if err != nil {
		return err
	}
	if !ok {
		return rufs.ErrNotFound.WithMessagef("%q not found", path)
	}

	targetNode, err := fs.table.Read(target.Ino)
	if err != nil {
		return err
	}
	if !targetNode.IsDir() {
		return rufs.ErrNotADirectory.WithMessagef("%q is not a directory", path)
	}

	entries, err := fs.dirs.List(&targetNode)
	if err != nil {
		return err
	}
	nonDot := 0
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			nonDot++
		}
	}
	if nonDot > 0 {
		return rufs.ErrNotEmpty.WithMessagef("%q is not empty", path)
	}

	if err := fs.freeDataBlocks(&targetNode); err != nil {
		return err
	}
	if err := fs.inodeBitmap.Free(targetNode.Ino); err != nil {
		return err
	}
	return fs.dirs.Remove(parent.Ino, leaf, true)
}

// Utimens updates a path's access and modification times.
func (fs *FileSystem) Utimens(path string, atime, mtime time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return err
	}
	n.AccessedAt = atime
	n.ModifiedAt = mtime
	n.ChangedAt = time.Now()
	return fs.table.Write(n)
}

// Truncate implements the reserved truncate operation (spec.md §4.7) for
// the one case that matters in practice — truncating to zero, as done by
// O_TRUNC opens and by "> file" shell redirection. Non-zero target sizes
// are rejected: RUFS has no indirect blocks (spec.md §1 Non-goals), so
// growing or shrinking a file to an arbitrary size beyond its already
// allocated direct blocks is out of scope.
func (fs *FileSystem) Truncate(path string, size int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if size != 0 {
		return rufs.ErrInvalid.WithMessage("truncate to a non-zero size is not supported")
	}

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return err
	}
	if n.IsDir() {
		return rufs.ErrIsADirectory.WithMessagef("%q is a directory", path)
	}

	if err := fs.freeDataBlocks(&n); err != nil {
		return err
	}
	n.Size = 0
	n.ModifiedAt = time.Now()
	return fs.table.Write(n)
}

// Read satisfies at most one data block per call (spec.md §4.7): it copies
// min(len(dst), block.Size-off%block.Size) bytes starting at off into dst
// and returns the count actually read. A caller wanting more than one
// block loops, advancing off by the returned count — that looping belongs
// to the external binding layer, not to core.
func (fs *FileSystem) Read(path string, dst []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return 0, err
	}
	if n.IsDir() {
		return 0, rufs.ErrIsADirectory.WithMessagef("%q is a directory", path)
	}
	if off >= int64(n.Size) {
		return 0, nil
	}

	blockIdx := off / block.Size
	inBlockOff := off % block.Size
	if int(blockIdx) >= inode.NumDirect || n.DirectPtr[blockIdx] == 0 {
		return 0, nil
	}

	want := int64(len(dst))
	if remaining := int64(n.Size) - off; want > remaining {
		want = remaining
	}
	if want > block.Size-inBlockOff {
		want = block.Size - inBlockOff
	}
	if want <= 0 {
		return 0, nil
	}

	buf := make([]byte, block.Size)
	if err := fs.dev.ReadBlock(int64(n.DirectPtr[blockIdx]), buf); err != nil {
		return 0, err
	}
	copy(dst[:want], buf[inBlockOff:inBlockOff+want])
	return int(want), nil
}

// Write satisfies at most one data block per call, allocating that block
// if the file has not yet grown to cover it. Size only ever grows to
// cover the written range (spec.md §9): a write entirely inside an
// already-allocated region never shrinks Size.
func (fs *FileSystem) Write(path string, src []byte, off int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.resolve.Resolve(path, resolver.RootIno)
	if err != nil {
		return 0, err
	}
	if n.IsDir() {
		return 0, rufs.ErrIsADirectory.WithMessagef("%q is a directory", path)
	}

	blockIdx := off / block.Size
	inBlockOff := off % block.Size
	if int(blockIdx) >= inode.NumDirect {
		return 0, rufs.ErrNoSpace.WithMessagef("%q has no direct block slot for offset %d", path, off)
	}

	want := int64(len(src))
	if want > block.Size-inBlockOff {
		want = block.Size - inBlockOff
	}
	if want <= 0 {
		return 0, nil
	}

	buf := make([]byte, block.Size)
	absBlk := n.DirectPtr[blockIdx]
	if absBlk == 0 {
		absBlk, err = fs.dataBitmap.Allocate()
		if err != nil {
			return 0, err
		}
		n.DirectPtr[blockIdx] = absBlk
	} else if err := fs.dev.ReadBlock(int64(absBlk), buf); err != nil {
		return 0, err
	}

	copy(buf[inBlockOff:inBlockOff+want], src[:want])
	if err := fs.dev.WriteBlock(int64(absBlk), buf); err != nil {
		return 0, err
	}

	if grown := uint64(off + want); grown > n.Size {
		n.Size = grown
	}
	n.ModifiedAt = time.Now()
	if err := fs.table.Write(n); err != nil {
		return 0, err
	}
	return int(want), nil
}

// CheckConsistency is an additive fsck-style sweep, not named by spec.md:
// it walks every allocated inode and reports (without repairing) any
// direct pointer that falls outside the data region, and any allocated
// data block unreachable from every inode's direct pointers. Errors
// accumulate via github.com/hashicorp/go-multierror rather than stopping
// at the first one, so a single run surfaces every defect.
func (fs *FileSystem) CheckConsistency() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var result error
	reachable := make(map[uint32]bool)

	for ino := uint32(0); ino < fs.sb.MaxInodes; ino++ {
		allocated, err := fs.inodeBitmap.IsSet(ino)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !allocated {
			continue
		}

		n, err := fs.table.Read(ino)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !n.Valid {
			result = multierror.Append(result, rufs.ErrInvalid.WithMessagef(
				"inode %d is allocated but not marked valid", ino))
		}

		for i, ptr := range n.DirectPtr {
			if ptr == 0 {
				continue
			}
			if ptr < fs.sb.DataStartBlk || ptr >= fs.sb.DataStartBlk+fs.sb.MaxDataBlocks {
				result = multierror.Append(result, rufs.ErrInvalid.WithMessagef(
					"inode %d direct_ptr[%d]=%d is outside the data region", ino, i, ptr))
				continue
			}
			reachable[ptr] = true
		}
	}

	for i := uint32(0); i < fs.sb.MaxDataBlocks; i++ {
		abs := i + fs.sb.DataStartBlk
		allocated, err := fs.dataBitmap.IsAllocated(abs)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if allocated && !reachable[abs] {
			result = multierror.Append(result, rufs.ErrInvalid.WithMessagef(
				"data block %d is allocated but unreachable from any inode", abs))
		}
	}

	return result
}
