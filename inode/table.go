package inode

import (
	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/layout"
)

// Table implements read_inode/write_inode (spec.md §4.4): locating the
// block and in-block offset of an inode number, and the load-modify-store
// needed so writers never clobber their neighbors in the same block.
type Table struct {
	dev            *block.Device
	startBlk       int64
	inodesPerBlock uint32
	maxInodes      uint32
}

// NewTable returns a Table for the inode region described by sb.
func NewTable(dev *block.Device, sb layout.Superblock) *Table {
	return &Table{
		dev:            dev,
		startBlk:       int64(sb.InodeStartBlk),
		inodesPerBlock: sb.InodesPerBlock(),
		maxInodes:      sb.MaxInodes,
	}
}

func (t *Table) locate(ino uint32) (blockIdx int64, offset int) {
	blockIdx = t.startBlk + int64(ino/t.inodesPerBlock)
	offset = int(ino%t.inodesPerBlock) * RawSize
	return
}

func (t *Table) checkIno(ino uint32) error {
	if ino >= t.maxInodes {
		return rufs.ErrInvalid.WithMessagef("inode number %d out of range [0, %d)", ino, t.maxInodes)
	}
	return nil
}

// Read loads the inode-table block containing ino and returns the inode
// record at its offset.
func (t *Table) Read(ino uint32) (Inode, error) {
	if err := t.checkIno(ino); err != nil {
		return Inode{}, err
	}

	blockIdx, offset := t.locate(ino)
	buf := make([]byte, block.Size)
	if err := t.dev.ReadBlock(blockIdx, buf); err != nil {
		return Inode{}, err
	}

	return UnmarshalBinary(buf[offset : offset+RawSize]), nil
}

// Write loads the inode-table block containing n.Ino, overwrites the
// record at its offset, and writes the block back whole — never skipping
// the read step, so the other inodes sharing the block survive (spec.md
// §4.4).
func (t *Table) Write(n Inode) error {
	if err := t.checkIno(n.Ino); err != nil {
		return err
	}

	blockIdx, offset := t.locate(n.Ino)
	buf := make([]byte, block.Size)
	if err := t.dev.ReadBlock(blockIdx, buf); err != nil {
		return err
	}

	copy(buf[offset:offset+RawSize], n.MarshalBinary())
	return t.dev.WriteBlock(blockIdx, buf)
}
