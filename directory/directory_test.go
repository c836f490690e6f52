package directory_test

import (
	"fmt"
	"testing"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/allocator"
	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/directory"
	"github.com/rufs-go/rufs/inode"
	"github.com/rufs-go/rufs/internal/testutil"
	"github.com/rufs-go/rufs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T, maxDataBlks uint32) (*directory.Service, *inode.Table, layout.Superblock) {
	t.Helper()
	sb := layout.Compute(layout.Params{MaxInodes: 64, MaxDataBlks: maxDataBlks})
	dev := testutil.NewMemDevice(t, sb.TotalBlocks())
	table := inode.NewTable(dev, sb)
	dataBlk := allocator.NewBlockAllocator(dev, int64(sb.DataBitmapBlk), sb.MaxDataBlocks, sb.DataStartBlk)
	require.NoError(t, dataBlk.Format())

	dir := inode.Inode{Ino: 0, Valid: true, Type: rufs.ModeTypeDirectory, Link: 2}
	require.NoError(t, table.Write(dir))

	return directory.NewService(dev, table, dataBlk), table, sb
}

func TestAddFindRemove(t *testing.T) {
	svc, table, _ := newFixture(t, 32)

	require.NoError(t, svc.Add(0, 5, "foo", false))

	entry, ok, err := func() (directory.Entry, bool, error) {
		dir, err := table.Read(0)
		require.NoError(t, err)
		return svc.Find(&dir, "foo")
	}()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 5, entry.Ino)

	require.NoError(t, svc.Remove(0, "foo", false))

	dir, err := table.Read(0)
	require.NoError(t, err)
	_, ok, err = svc.Find(&dir, "foo")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAddDoesNotClobberZeroInoDotEntries reproduces root's own "."/".."
// slots, both pointing at ino 0 (as layout.Format and core.Mkdir write
// them), and confirms Add finds a slot past them instead of overwriting
// one: a zero ino must not be mistaken for a free slot.
func TestAddDoesNotClobberZeroInoDotEntries(t *testing.T) {
	sb := layout.Compute(layout.Params{MaxInodes: 64, MaxDataBlks: 32})
	dev := testutil.NewMemDevice(t, sb.TotalBlocks())
	table := inode.NewTable(dev, sb)
	dataBlk := allocator.NewBlockAllocator(dev, int64(sb.DataBitmapBlk), sb.MaxDataBlocks, sb.DataStartBlk)
	require.NoError(t, dataBlk.Format())

	blockIdx, err := dataBlk.Allocate()
	require.NoError(t, err)

	buf := make([]byte, block.Size)
	directory.WriteDotEntries(buf, 0, 0)
	require.NoError(t, dev.WriteBlock(int64(blockIdx), buf))

	dir := inode.Inode{Ino: 0, Valid: true, Type: rufs.ModeTypeDirectory, Link: 2, Size: uint64(directory.EntrySize() * 2)}
	dir.DirectPtr[0] = blockIdx
	require.NoError(t, table.Write(dir))

	svc := directory.NewService(dev, table, dataBlk)
	require.NoError(t, svc.Add(0, 5, "child", true))

	dir, err = table.Read(0)
	require.NoError(t, err)
	entries, err := svc.List(&dir)
	require.NoError(t, err)

	byName := make(map[string]directory.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	require.Contains(t, byName, ".")
	require.Contains(t, byName, "..")
	require.Contains(t, byName, "child")
	assert.EqualValues(t, 0, byName["."].Ino)
	assert.EqualValues(t, 0, byName[".."].Ino)
	assert.EqualValues(t, 5, byName["child"].Ino)
}

func TestAddDuplicateNameIsExist(t *testing.T) {
	svc, _, _ := newFixture(t, 32)

	require.NoError(t, svc.Add(0, 5, "foo", false))
	err := svc.Add(0, 6, "foo", false)
	assert.ErrorIs(t, err, rufs.ErrExists)
}

func TestAddChildDirectoryBumpsLink(t *testing.T) {
	svc, table, _ := newFixture(t, 32)

	require.NoError(t, svc.Add(0, 5, "subdir", true))
	dir, err := table.Read(0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, dir.Link)

	require.NoError(t, svc.Remove(0, "subdir", true))
	dir, err = table.Read(0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, dir.Link)
}

func TestDirectorySizeTracksEntryCount(t *testing.T) {
	svc, table, _ := newFixture(t, 32)

	require.NoError(t, svc.Add(0, 5, "a", false))
	require.NoError(t, svc.Add(0, 6, "b", false))

	dir, err := table.Read(0)
	require.NoError(t, err)
	entries, err := svc.List(&dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, svc.Remove(0, "a", false))
	dir, err = table.Read(0)
	require.NoError(t, err)
	entries, err = svc.List(&dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFillDirectoryReturnsNoSpace(t *testing.T) {
	// MaxEntries() depends on K*D; use a generous data-block budget so we
	// hit the directory's own capacity limit, not block exhaustion.
	svc, table, _ := newFixture(t, uint32(inode.NumDirect+4))

	max := directory.MaxEntries()
	for i := 0; i < max; i++ {
		require.NoError(t, svc.Add(0, uint32(i+1), fmt.Sprintf("f%d", i), false))
	}

	err := svc.Add(0, 9999, "overflow", false)
	assert.ErrorIs(t, err, rufs.ErrNoSpace)

	dir, err := table.Read(0)
	require.NoError(t, err)
	entries, err := svc.List(&dir)
	require.NoError(t, err)
	assert.Len(t, entries, max)
}

func TestRemoveFreesEmptyBlock(t *testing.T) {
	svc, table, _ := newFixture(t, 8)

	require.NoError(t, svc.Add(0, 5, "only", false))
	dir, err := table.Read(0)
	require.NoError(t, err)
	require.NotZero(t, dir.DirectPtr[0])

	require.NoError(t, svc.Remove(0, "only", false))
	dir, err = table.Read(0)
	require.NoError(t, err)
	assert.Zero(t, dir.DirectPtr[0])
}
