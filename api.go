package rufs

import (
	"os"
	"time"
)

// FileStat is a platform-independent projection of an inode's vstat field
// (spec.md §3), modeled on github.com/dargueta/disko's FileStat.
type FileStat struct {
	Ino        uint32
	Mode       uint32
	Nlink      uint32
	Uid        uint32
	Gid        uint32
	Size       int64
	BlockSize  int64
	NumBlocks  int64
	AccessedAt time.Time
	ModifiedAt time.Time
	ChangedAt  time.Time
}

// IsDir reports whether the stat entry describes a directory.
func (s *FileStat) IsDir() bool {
	return IsDir(s.Mode)
}

// IsRegular reports whether the stat entry describes a regular file.
func (s *FileStat) IsRegular() bool {
	return IsRegular(s.Mode)
}

// FileMode projects Mode onto the standard library's os.FileMode, for
// callers (the FUSE binding, directory listings) that want to use
// io/fs-shaped types instead of raw bits.
func (s *FileStat) FileMode() os.FileMode {
	perm := os.FileMode(s.Mode & ModePermMask)
	if s.IsDir() {
		return perm | os.ModeDir
	}
	return perm
}

// FSStat is a platform-independent projection of the superblock plus live
// allocator state, analogous to syscall.Statfs_t and
// github.com/dargueta/disko's FSStat.
type FSStat struct {
	BlockSize     int64
	TotalBlocks   uint64
	BlocksFree    uint64
	TotalInodes   uint64
	InodesFree    uint64
	MaxNameLength int64
}
