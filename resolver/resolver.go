// Package resolver implements the path resolver of spec.md §4.6: splitting
// a slash-separated path into components and walking directory lookups
// from a starting inode to the target.
//
// Grounded on the reference C implementation's num_of_components (which
// discards empty path components) and on the path-normalization idiom in
// github.com/dargueta/disko/drivers/common/basedriver's CommonDriver.
package resolver

import (
	"strings"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/directory"
	"github.com/rufs-go/rufs/inode"
)

// RootIno is the distinguished root inode number.
const RootIno uint32 = 0

// SplitPath splits path on "/", discarding empty components (so "//a//b/"
// yields ["a", "b"], matching the reference's num_of_components).
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolver walks directory lookups from a starting inode to a target
// inode.
type Resolver struct {
	table *inode.Table
	dirs  *directory.Service
}

// New returns a Resolver backed by table (for reading inodes) and dirs (for
// dir_find lookups).
func New(table *inode.Table, dirs *directory.Service) *Resolver {
	return &Resolver{table: table, dirs: dirs}
}

// Resolve is spec.md §4.6's resolve(path, start_ino): it returns the inode
// named by path, starting the walk at startIno. path == "/" is special-cased
// to the root inode directly, without consulting any directory entry
// (spec.md §4.6 step 1, and §9's note on the legacy "/" dirent).
func (r *Resolver) Resolve(path string, startIno uint32) (inode.Inode, error) {
	if path == "/" {
		return r.table.Read(RootIno)
	}

	components := SplitPath(path)
	current := startIno

	for i, name := range components {
		dir, err := r.table.Read(current)
		if err != nil {
			return inode.Inode{}, err
		}
		if !dir.IsDir() {
			return inode.Inode{}, rufs.ErrNotADirectory.WithMessagef(
				"%q is not a directory", strings.Join(components[:i], "/"))
		}

		entry, ok, err := r.dirs.Find(&dir, name)
		if err != nil {
			return inode.Inode{}, err
		}
		if !ok {
			return inode.Inode{}, rufs.ErrNotFound.WithMessagef("%q not found", path)
		}
		current = entry.Ino
	}

	return r.table.Read(current)
}

// ResolveParentAndLeaf splits path into its parent directory's inode and
// the final path component, for operations (mkdir, create, unlink, rmdir)
// that need both. path must not be "/".
func (r *Resolver) ResolveParentAndLeaf(path string) (parent inode.Inode, leaf string, err error) {
	components := SplitPath(path)
	if len(components) == 0 {
		return inode.Inode{}, "", rufs.ErrInvalid.WithMessage("path has no leaf component")
	}

	leaf = components[len(components)-1]
	parentPath := "/" + strings.Join(components[:len(components)-1], "/")

	parent, err = r.Resolve(parentPath, RootIno)
	return parent, leaf, err
}
