// Package layout computes and persists the superblock: the region offsets
// spec.md §3 requires every layer to agree on (i_bitmap_blk, d_bitmap_blk,
// i_start_blk, d_start_blk), plus the capacity caps and the magic number
// identifying a formatted disk.
package layout

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/block"
)

// Magic identifies a block 0 as holding a valid RUFS superblock.
const Magic uint32 = 0x52554653 // "RUFS"

// Params are the configurable capacity knobs from spec.md §3. Zero-value
// Params is invalid; use DefaultParams for the reference's defaults.
type Params struct {
	MaxInodes   uint32
	MaxDataBlks uint32
}

// DefaultParams matches the reference implementation's MAX_INUM=1024,
// MAX_DNUM=16384.
var DefaultParams = Params{MaxInodes: 1024, MaxDataBlks: 16384}

// InodeSize is sizeof(inode) on disk: see inode.RawSize. Declared here
// (rather than imported from package inode) to avoid a layout<->inode
// import cycle, since inode.Table needs the layout Superblock to locate
// itself. The two constants are kept in lockstep by
// TestInodeSizeConstantsAgree in layout_test.go.
const InodeSize = 160

// Superblock is the on-disk record persisted in block 0, and the in-memory
// layout cache spec.md §4.2's mount step repopulates from it. Field order
// and sizes here define the disk format; InodeSizeOnDisk must never change
// across a disk's lifetime (spec.md §6).
type Superblock struct {
	Magic           uint32
	MaxInodes       uint32
	MaxDataBlocks   uint32
	InodeBitmapBlk  uint32
	DataBitmapBlk   uint32
	InodeStartBlk   uint32
	DataStartBlk    uint32
	InodeSizeOnDisk uint32
}

// inodesPerBlock is B / sizeof(inode), rounded down: spec.md §4.4.
func inodesPerBlock() uint32 {
	return block.Size / InodeSize
}

// Compute derives the fixed layout for params: blocks 0,1,2,3 are the
// superblock and the two bitmaps, and the inode table begins at block 3,
// exactly as spec.md §3 and §6 require.
func Compute(params Params) Superblock {
	inodeBlocks := (params.MaxInodes + inodesPerBlock() - 1) / inodesPerBlock()
	return Superblock{
		Magic:           Magic,
		MaxInodes:       params.MaxInodes,
		MaxDataBlocks:   params.MaxDataBlks,
		InodeBitmapBlk:  1,
		DataBitmapBlk:   2,
		InodeStartBlk:   3,
		DataStartBlk:    3 + inodeBlocks,
		InodeSizeOnDisk: InodeSize,
	}
}

// TotalBlocks returns the number of blocks a freshly formatted diskfile with
// this layout must contain to hold its data region.
func (sb *Superblock) TotalBlocks() int64 {
	return int64(sb.DataStartBlk) + int64(sb.MaxDataBlocks)
}

// InodesPerBlock is B / sizeof(inode).
func (sb *Superblock) InodesPerBlock() uint32 {
	return block.Size / sb.InodeSizeOnDisk
}

// Validate checks the invariant spec.md §3 states: 0 < i_bitmap_blk <
// d_bitmap_blk < i_start_blk < d_start_blk, plus the magic number.
func (sb *Superblock) Validate() error {
	if sb.Magic != Magic {
		return rufs.ErrInvalid.WithMessage("not a RUFS diskfile: bad magic number")
	}
	if !(0 < sb.InodeBitmapBlk && sb.InodeBitmapBlk < sb.DataBitmapBlk &&
		sb.DataBitmapBlk < sb.InodeStartBlk && sb.InodeStartBlk < sb.DataStartBlk) {
		return rufs.ErrInvalid.WithMessage("corrupt superblock: region ordering violated")
	}
	if sb.InodeSizeOnDisk == 0 {
		return rufs.ErrInvalid.WithMessage("corrupt superblock: zero inode size")
	}
	return nil
}

// Read loads the superblock from block 0 of dev.
func Read(dev *block.Device) (Superblock, error) {
	buf := make([]byte, block.Size)
	if err := dev.ReadBlock(0, buf); err != nil {
		return Superblock{}, err
	}

	var sb Superblock
	order := binary.LittleEndian
	sb.Magic = order.Uint32(buf[0:4])
	sb.MaxInodes = order.Uint32(buf[4:8])
	sb.MaxDataBlocks = order.Uint32(buf[8:12])
	sb.InodeBitmapBlk = order.Uint32(buf[12:16])
	sb.DataBitmapBlk = order.Uint32(buf[16:20])
	sb.InodeStartBlk = order.Uint32(buf[20:24])
	sb.DataStartBlk = order.Uint32(buf[24:28])
	sb.InodeSizeOnDisk = order.Uint32(buf[28:32])

	if err := sb.Validate(); err != nil {
		return Superblock{}, err
	}
	return sb, nil
}

// Write persists sb into block 0 of dev, zero-padding the rest of the
// block as spec.md §6 requires.
func Write(dev *block.Device, sb Superblock) error {
	buf := make([]byte, block.Size)
	writer := bytewriter.New(buf)
	order := binary.LittleEndian

	fields := []uint32{
		sb.Magic,
		sb.MaxInodes,
		sb.MaxDataBlocks,
		sb.InodeBitmapBlk,
		sb.DataBitmapBlk,
		sb.InodeStartBlk,
		sb.DataStartBlk,
		sb.InodeSizeOnDisk,
	}
	for _, v := range fields {
		if err := binary.Write(writer, order, v); err != nil {
			return err
		}
	}

	return dev.WriteBlock(0, buf)
}
