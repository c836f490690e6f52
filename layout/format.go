package layout

import (
	"time"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/allocator"
	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/inode"
)

// rootDirentSize mirrors directory.rawSize without importing package
// directory (which depends on inode, and through inode on layout):
// 4+1+1+208.
const rootDirentSize = 4 + 1 + 1 + 208

// Format implements mkfs (spec.md §4.2): it creates dev's superblock and
// bitmaps, then allocates and persists the root inode and its "." and ".."
// entries. dev must already contain at least Compute(params).TotalBlocks()
// blocks (see block.Init).
//
// Unlike the reference C implementation, Format takes no process-wide
// guard flag: callers run it at most once per diskfile by construction
// (block.Init always creates a fresh file), which is the stack-buffer,
// no-hidden-state style spec.md §9 recommends.
func Format(dev *block.Device, params Params) (Superblock, error) {
	sb := Compute(params)
	if dev.TotalBlocks() < sb.TotalBlocks() {
		return Superblock{}, rufs.ErrInvalid.WithMessagef(
			"diskfile has %d blocks, need at least %d for this layout",
			dev.TotalBlocks(), sb.TotalBlocks())
	}

	if err := Write(dev, sb); err != nil {
		return Superblock{}, err
	}

	inodeBitmap := allocator.New(dev, int64(sb.InodeBitmapBlk), sb.MaxInodes)
	if err := inodeBitmap.Format(); err != nil {
		return Superblock{}, err
	}

	dataBitmap := allocator.NewBlockAllocator(dev, int64(sb.DataBitmapBlk), sb.MaxDataBlocks, sb.DataStartBlk)
	if err := dataBitmap.Format(); err != nil {
		return Superblock{}, err
	}

	rootIno, err := inodeBitmap.Allocate()
	if err != nil {
		return Superblock{}, err
	}
	if rootIno != 0 {
		return Superblock{}, rufs.ErrIO.WithMessage("root inode allocation did not return 0")
	}

	rootDataBlk, err := dataBitmap.Allocate()
	if err != nil {
		return Superblock{}, err
	}

	now := time.Now()
	root := inode.Inode{
		Ino:        rootIno,
		Valid:      true,
		Type:       rufs.ModeTypeDirectory | rufs.DefaultDirMode,
		Link:       2,
		Size:       uint64(2 * rootDirentSize),
		AccessedAt: now,
		ModifiedAt: now,
		ChangedAt:  now,
	}
	root.DirectPtr[0] = rootDataBlk

	rootBlockData := make([]byte, block.Size)
	writeDirentAt(rootBlockData, 0, rootIno, ".")
	writeDirentAt(rootBlockData, 1, rootIno, "..")
	if err := dev.WriteBlock(int64(rootDataBlk), rootBlockData); err != nil {
		return Superblock{}, err
	}

	table := inode.NewTable(dev, sb)
	if err := table.Write(root); err != nil {
		return Superblock{}, err
	}

	return sb, nil
}

func writeDirentAt(block []byte, slot int, ino uint32, name string) {
	off := slot * rootDirentSize
	block[off] = byte(ino)
	block[off+1] = byte(ino >> 8)
	block[off+2] = byte(ino >> 16)
	block[off+3] = byte(ino >> 24)
	block[off+4] = 1 // valid
	block[off+5] = byte(len(name))
	copy(block[off+6:off+6+len(name)], name)
}
