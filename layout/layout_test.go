package layout_test

import (
	"testing"

	"github.com/rufs-go/rufs/inode"
	"github.com/rufs-go/rufs/internal/testutil"
	"github.com/rufs-go/rufs/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInodeSizeConstantsAgree(t *testing.T) {
	assert.EqualValues(t, layout.InodeSize, inode.RawSize)
}

func TestComputeOrdering(t *testing.T) {
	sb := layout.Compute(layout.DefaultParams)
	require.NoError(t, sb.Validate())

	assert.Less(t, uint32(0), sb.InodeBitmapBlk)
	assert.Less(t, sb.InodeBitmapBlk, sb.DataBitmapBlk)
	assert.Less(t, sb.DataBitmapBlk, sb.InodeStartBlk)
	assert.Less(t, sb.InodeStartBlk, sb.DataStartBlk)
}

func TestComputeReferenceValues(t *testing.T) {
	// spec.md §3: reference layout fixes blocks at 0,1,2,3 and
	// 3+ceil(max_inum*sizeof(inode)/B).
	sb := layout.Compute(layout.DefaultParams)
	assert.EqualValues(t, 1, sb.InodeBitmapBlk)
	assert.EqualValues(t, 2, sb.DataBitmapBlk)
	assert.EqualValues(t, 3, sb.InodeStartBlk)

	expectedDataStart := 3 + (layout.DefaultParams.MaxInodes*layout.InodeSize+4095)/4096
	assert.EqualValues(t, expectedDataStart, sb.DataStartBlk)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dev := testutil.NewMemDevice(t, 32)
	sb := layout.Compute(layout.Params{MaxInodes: 64, MaxDataBlks: 128})

	require.NoError(t, layout.Write(dev, sb))

	got, err := layout.Read(dev)
	require.NoError(t, err)
	assert.Equal(t, sb, got)
}

func TestReadRejectsBadMagic(t *testing.T) {
	dev := testutil.NewMemDevice(t, 4)
	_, err := layout.Read(dev)
	assert.Error(t, err)
}
