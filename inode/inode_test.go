package inode_test

import (
	"testing"
	"time"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/inode"
	"github.com/rufs-go/rufs/internal/testutil"
	"github.com/rufs-go/rufs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	want := inode.Inode{
		Ino:        3,
		Valid:      true,
		Size:       4096,
		Type:       rufs.ModeTypeRegular | rufs.DefaultFileMode,
		Link:       1,
		Uid:        1000,
		Gid:        1000,
		AccessedAt: time.Unix(1700000000, 0),
		ModifiedAt: time.Unix(1700000001, 0),
		ChangedAt:  time.Unix(1700000002, 0),
	}
	want.DirectPtr[0] = 42

	got := inode.UnmarshalBinary(want.MarshalBinary())
	assert.Equal(t, want, got)
}

func TestFileStatProjection(t *testing.T) {
	n := inode.Inode{Ino: 1, Type: rufs.ModeTypeDirectory | rufs.DefaultDirMode, Link: 2, Size: 160}
	stat := n.FileStat()

	assert.True(t, stat.IsDir())
	assert.EqualValues(t, 2, stat.Nlink)
	assert.EqualValues(t, 160, stat.Size)
}

func TestTableReadWriteDoesNotClobberNeighbor(t *testing.T) {
	dev := testutil.NewMemDevice(t, 8)
	sb := layout.Compute(layout.Params{MaxInodes: 64, MaxDataBlks: 64})
	table := inode.NewTable(dev, sb)

	a := inode.Inode{Ino: 0, Valid: true, Type: rufs.ModeTypeDirectory, Link: 2}
	b := inode.Inode{Ino: 1, Valid: true, Type: rufs.ModeTypeRegular, Link: 1, Size: 7}

	require.NoError(t, table.Write(a))
	require.NoError(t, table.Write(b))

	gotA, err := table.Read(0)
	require.NoError(t, err)
	gotB, err := table.Read(1)
	require.NoError(t, err)

	assert.True(t, gotA.IsDir())
	assert.EqualValues(t, 2, gotA.Link)
	assert.EqualValues(t, 7, gotB.Size)
}

func TestTableReadOutOfRange(t *testing.T) {
	dev := testutil.NewMemDevice(t, 8)
	sb := layout.Compute(layout.Params{MaxInodes: 4, MaxDataBlks: 16})
	table := inode.NewTable(dev, sb)

	_, err := table.Read(4)
	assert.Error(t, err)
}
