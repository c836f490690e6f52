package resolver_test

import (
	"testing"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/allocator"
	"github.com/rufs-go/rufs/directory"
	"github.com/rufs-go/rufs/inode"
	"github.com/rufs-go/rufs/internal/testutil"
	"github.com/rufs-go/rufs/layout"
	"github.com/rufs-go/rufs/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPathDiscardsEmptyComponents(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, resolver.SplitPath("//a//b/"))
	assert.Empty(t, resolver.SplitPath("/"))
}

type fixture struct {
	table *inode.Table
	dirs  *directory.Service
	res   *resolver.Resolver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	sb := layout.Compute(layout.Params{MaxInodes: 64, MaxDataBlks: 64})
	dev := testutil.NewMemDevice(t, sb.TotalBlocks())
	table := inode.NewTable(dev, sb)
	dataBlk := allocator.NewBlockAllocator(dev, int64(sb.DataBitmapBlk), sb.MaxDataBlocks, sb.DataStartBlk)
	require.NoError(t, dataBlk.Format())

	dirs := directory.NewService(dev, table, dataBlk)
	root := inode.Inode{Ino: 0, Valid: true, Type: rufs.ModeTypeDirectory, Link: 2}
	require.NoError(t, table.Write(root))

	return fixture{table: table, dirs: dirs, res: resolver.New(table, dirs)}
}

func TestResolveRoot(t *testing.T) {
	f := newFixture(t)
	got, err := f.res.Resolve("/", resolver.RootIno)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.Ino)
}

func TestResolveNestedPath(t *testing.T) {
	f := newFixture(t)

	a := inode.Inode{Ino: 1, Valid: true, Type: rufs.ModeTypeDirectory, Link: 2}
	require.NoError(t, f.table.Write(a))
	require.NoError(t, f.dirs.Add(0, 1, "a", true))

	b := inode.Inode{Ino: 2, Valid: true, Type: rufs.ModeTypeRegular, Link: 1}
	require.NoError(t, f.table.Write(b))
	require.NoError(t, f.dirs.Add(1, 2, "b", false))

	got, err := f.res.Resolve("/a/b", resolver.RootIno)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Ino)
}

func TestResolveMissingComponent(t *testing.T) {
	f := newFixture(t)
	_, err := f.res.Resolve("/nope", resolver.RootIno)
	assert.ErrorIs(t, err, rufs.ErrNotFound)
}

func TestResolveThroughRegularFileFails(t *testing.T) {
	f := newFixture(t)

	file := inode.Inode{Ino: 1, Valid: true, Type: rufs.ModeTypeRegular, Link: 1}
	require.NoError(t, f.table.Write(file))
	require.NoError(t, f.dirs.Add(0, 1, "f", false))

	_, err := f.res.Resolve("/f/x", resolver.RootIno)
	assert.ErrorIs(t, err, rufs.ErrNotADirectory)
}

func TestResolveParentAndLeaf(t *testing.T) {
	f := newFixture(t)

	a := inode.Inode{Ino: 1, Valid: true, Type: rufs.ModeTypeDirectory, Link: 2}
	require.NoError(t, f.table.Write(a))
	require.NoError(t, f.dirs.Add(0, 1, "a", true))

	parent, leaf, err := f.res.ResolveParentAndLeaf("/a/b")
	require.NoError(t, err)
	assert.Equal(t, "b", leaf)
	assert.EqualValues(t, 1, parent.Ino)
}
