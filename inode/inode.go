// Package inode implements the on-disk inode record and the read_inode/
// write_inode load-modify-store dance of spec.md §4.4, grounded on the raw
// inode layout pattern in
// github.com/dargueta/disko/drivers/unixv6's RawInode/RawInodeToStat.
package inode

import (
	"encoding/binary"
	"time"

	"github.com/noxer/bytewriter"

	"github.com/rufs-go/rufs"
)

// NumDirect is D, the number of direct block pointers per inode (spec.md
// §3).
const NumDirect = 16

// numIndirect is the reserved-but-unused indirect pointer slots; spec.md §3
// requires the field be zeroed and preserved across read-modify-write, not
// that it be used (indirect blocks are a non-goal, spec.md §1).
const numIndirect = 8

// RawSize is sizeof(inode) on disk. Must equal layout.InodeSize.
const RawSize = 4 + 1 + 4 + 8 + 4 + 4 + 4 + 8 + 8 + 8 + (NumDirect * 4) + (numIndirect * 4) + 11

// Inode is the in-memory form of an on-disk inode (spec.md §3). vstat is
// not a separate cached struct here: FileStat() below projects Inode
// directly, which makes the invariants "vstat.size == size", "vstat.nlink
// == link", "vstat.mode == type" hold by construction instead of by
// separately-maintained bookkeeping.
type Inode struct {
	Ino        uint32
	Valid      bool
	Size       uint64
	Type       uint32
	Link       uint32
	Uid        uint32
	Gid        uint32
	AccessedAt time.Time
	ModifiedAt time.Time
	ChangedAt  time.Time
	DirectPtr  [NumDirect]uint32
	// Indirect is reserved; RUFS never allocates or dereferences these
	// slots (spec.md §1, §3, §9) but preserves whatever was written there.
	Indirect [numIndirect]uint32
}

// FileStat projects the inode into the platform-independent stat shape
// spec.md §4.7's getattr returns.
func (n *Inode) FileStat() rufs.FileStat {
	return rufs.FileStat{
		Ino:        n.Ino,
		Mode:       n.Type,
		Nlink:      n.Link,
		Uid:        n.Uid,
		Gid:        n.Gid,
		Size:       int64(n.Size),
		BlockSize:  4096,
		NumBlocks:  int64(n.allocatedDirectCount()),
		AccessedAt: n.AccessedAt,
		ModifiedAt: n.ModifiedAt,
		ChangedAt:  n.ChangedAt,
	}
}

func (n *Inode) allocatedDirectCount() int {
	count := 0
	for _, ptr := range n.DirectPtr {
		if ptr != 0 {
			count++
		}
	}
	return count
}

// IsDir reports whether the inode identifies a directory.
func (n *Inode) IsDir() bool {
	return rufs.IsDir(n.Type)
}

// MarshalBinary encodes the inode into exactly RawSize bytes, little-endian,
// per spec.md §6. Fields are written in order through a single bytewriter
// over buf, so the trailing reserved bytes stay zeroed without a separate
// pad step.
func (n *Inode) MarshalBinary() []byte {
	buf := make([]byte, RawSize)
	writer := bytewriter.New(buf)
	order := binary.LittleEndian

	var valid uint8
	if n.Valid {
		valid = 1
	}

	binary.Write(writer, order, n.Ino)
	binary.Write(writer, order, valid)
	binary.Write(writer, order, n.Type)
	binary.Write(writer, order, n.Size)
	binary.Write(writer, order, n.Link)
	binary.Write(writer, order, n.Uid)
	binary.Write(writer, order, n.Gid)
	binary.Write(writer, order, uint64(n.AccessedAt.Unix()))
	binary.Write(writer, order, uint64(n.ModifiedAt.Unix()))
	binary.Write(writer, order, uint64(n.ChangedAt.Unix()))
	binary.Write(writer, order, n.DirectPtr)
	binary.Write(writer, order, n.Indirect)

	return buf
}

// UnmarshalBinary decodes an inode from exactly RawSize bytes produced by
// MarshalBinary.
func UnmarshalBinary(buf []byte) Inode {
	order := binary.LittleEndian
	var n Inode

	n.Ino = order.Uint32(buf[0:4])
	n.Valid = buf[4] != 0
	n.Type = order.Uint32(buf[5:9])
	n.Size = order.Uint64(buf[9:17])
	n.Link = order.Uint32(buf[17:21])
	n.Uid = order.Uint32(buf[21:25])
	n.Gid = order.Uint32(buf[25:29])
	n.AccessedAt = time.Unix(int64(order.Uint64(buf[29:37])), 0)
	n.ModifiedAt = time.Unix(int64(order.Uint64(buf[37:45])), 0)
	n.ChangedAt = time.Unix(int64(order.Uint64(buf[45:53])), 0)

	offset := 53
	for i := range n.DirectPtr {
		n.DirectPtr[i] = order.Uint32(buf[offset : offset+4])
		offset += 4
	}
	for i := range n.Indirect {
		n.Indirect[i] = order.Uint32(buf[offset : offset+4])
		offset += 4
	}
	return n
}
