package allocator_test

import (
	"testing"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/allocator"
	"github.com/rufs-go/rufs/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFirstFit(t *testing.T) {
	dev := testutil.NewMemDevice(t, 4)
	bm := allocator.New(dev, 1, 8)
	require.NoError(t, bm.Format())

	first, err := bm.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 0, first)

	second, err := bm.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 1, second)

	set, err := bm.IsSet(0)
	require.NoError(t, err)
	assert.True(t, set)
}

func TestAllocateExhaustion(t *testing.T) {
	dev := testutil.NewMemDevice(t, 4)
	bm := allocator.New(dev, 1, 4)
	require.NoError(t, bm.Format())

	for i := 0; i < 4; i++ {
		_, err := bm.Allocate()
		require.NoError(t, err)
	}

	_, err := bm.Allocate()
	assert.ErrorIs(t, err, rufs.ErrNoSpace)
}

func TestFreeThenReallocate(t *testing.T) {
	dev := testutil.NewMemDevice(t, 4)
	bm := allocator.New(dev, 1, 4)
	require.NoError(t, bm.Format())

	for i := 0; i < 4; i++ {
		_, err := bm.Allocate()
		require.NoError(t, err)
	}

	require.NoError(t, bm.Free(2))
	idx, err := bm.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, 2, idx)
}

func TestBlockAllocatorOffset(t *testing.T) {
	dev := testutil.NewMemDevice(t, 20)
	const dataStart = 10
	ba := allocator.NewBlockAllocator(dev, 2, 8, dataStart)
	require.NoError(t, ba.Format())

	idx, err := ba.Allocate()
	require.NoError(t, err)
	assert.EqualValues(t, dataStart, idx)

	allocated, err := ba.IsAllocated(dataStart)
	require.NoError(t, err)
	assert.True(t, allocated)

	require.NoError(t, ba.Free(dataStart))
	allocated, err = ba.IsAllocated(dataStart)
	require.NoError(t, err)
	assert.False(t, allocated)
}

func TestAllocateFreeRestoresBitmapByteForByte(t *testing.T) {
	// mkdir; rmdir should restore bitmaps byte-for-byte (spec.md §8).
	dev := testutil.NewMemDevice(t, 4)
	bm := allocator.New(dev, 1, 16)
	require.NoError(t, bm.Format())

	before := make([]byte, 4096)
	require.NoError(t, dev.ReadBlock(1, before))

	idx, err := bm.Allocate()
	require.NoError(t, err)
	require.NoError(t, bm.Free(idx))

	after := make([]byte, 4096)
	require.NoError(t, dev.ReadBlock(1, after))
	assert.Equal(t, before, after)
}
