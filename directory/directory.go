// Package directory implements the directory service of spec.md §4.5:
// fixed-slot directory entries packed into a directory inode's data
// blocks, with find/add/remove operating across every allocated block in
// ascending direct_ptr order, then ascending slot order.
package directory

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/rufs-go/rufs"
	"github.com/rufs-go/rufs/allocator"
	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/inode"
)

// NameMaxLen is NAME_MAX_LEN (spec.md §3): the fixed capacity of a dirent's
// name field.
const NameMaxLen = 208

// rawSize is sizeof(dirent): ino (4) + valid (1) + len (1) + name (208).
const rawSize = 4 + 1 + 1 + NameMaxLen

// entriesPerBlock is K = floor(B / sizeof(dirent)).
func entriesPerBlock() int {
	return block.Size / rawSize
}

// MaxEntries is MAX_DIRENTS = K * D.
func MaxEntries() int {
	return entriesPerBlock() * inode.NumDirect
}

// Entry is a directory entry: a name bound to a child inode number. Root's
// ino is 0, and root's own "." entry and any top-level directory's ".."
// entry legitimately carry Ino == 0 — the on-disk valid byte, not the ino
// value, is what distinguishes an occupied slot from a free one.
type Entry struct {
	Ino  uint32
	Name string
}

func marshalEntry(ino uint32, name string) []byte {
	buf := make([]byte, rawSize)
	writer := bytewriter.New(buf)
	order := binary.LittleEndian

	binary.Write(writer, order, ino)
	binary.Write(writer, order, uint8(1)) // valid
	binary.Write(writer, order, uint8(len(name)))
	writer.Write([]byte(name))
	return buf
}

func unmarshalEntry(buf []byte) (ino uint32, valid bool, name string) {
	ino = binary.LittleEndian.Uint32(buf[0:4])
	valid = buf[4] != 0
	n := int(buf[5])
	name = string(buf[6 : 6+n])
	return
}

// Service implements dir_find/dir_add/dir_remove against a diskfile. It
// holds no directory content in memory: every call reloads whatever blocks
// it needs from dev, per spec.md §4.5's "the service itself reloads and
// persists" contract.
type Service struct {
	dev     *block.Device
	table   *inode.Table
	dataBlk *allocator.BlockAllocator
}

// NewService returns a directory Service operating against dev via table
// (for persisting directory inode metadata) and dataBlk (for allocating new
// directory data blocks).
func NewService(dev *block.Device, table *inode.Table, dataBlk *allocator.BlockAllocator) *Service {
	return &Service{dev: dev, table: table, dataBlk: dataBlk}
}

func checkName(name string) error {
	if name == "" || len(name) >= NameMaxLen {
		return rufs.ErrNameTooLong.WithMessagef(
			"name %q must be 1 to %d bytes", name, NameMaxLen-1)
	}
	return nil
}

// Find is dir_find: it scans every allocated data block of dir in ascending
// direct_ptr order, then ascending slot order, and returns the first
// occupied (valid) entry whose name matches.
func (s *Service) Find(dir *inode.Inode, name string) (Entry, bool, error) {
	var found Entry
	var ok bool

	err := s.forEachEntry(dir, func(e Entry, _ int64, _ int) (stop bool, err error) {
		if e.Name == name {
			found, ok = e, true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return found, ok, nil
}

// forEachEntry visits every occupied (valid) slot across dir's allocated
// data blocks, in the order spec.md §4.5 mandates. The callback receives
// the absolute block index and slot index so callers can persist in-place
// edits without re-scanning.
func (s *Service) forEachEntry(dir *inode.Inode, visit func(e Entry, blockIdx int64, slot int) (stop bool, err error)) error {
	buf := make([]byte, block.Size)
	for _, ptr := range dir.DirectPtr {
		if ptr == 0 {
			continue
		}
		if err := s.dev.ReadBlock(int64(ptr), buf); err != nil {
			return err
		}

		for slot := 0; slot < entriesPerBlock(); slot++ {
			off := slot * rawSize
			ino, valid, name := unmarshalEntry(buf[off : off+rawSize])
			if !valid {
				continue
			}
			stop, err := visit(Entry{Ino: ino, Name: name}, int64(ptr), slot)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// EntrySize returns sizeof(dirent), for callers that need to size a
// directory inode after seeding it outside of Add (mkdir's own "." and
// ".." entries, written directly into a freshly allocated block).
func EntrySize() int { return rawSize }

// WriteDotEntries packs "." and ".." into the first two slots of buf, a
// zeroed block.Size buffer. Used when creating a directory other than the
// root, whose own dot entries are written by layout.Format before any
// Service exists to call this.
func WriteDotEntries(buf []byte, selfIno, parentIno uint32) {
	copy(buf[0:rawSize], marshalEntry(selfIno, "."))
	copy(buf[rawSize:2*rawSize], marshalEntry(parentIno, ".."))
}

// List returns every occupied entry in iteration order, for readdir
// (spec.md §4.7).
func (s *Service) List(dir *inode.Inode) ([]Entry, error) {
	var entries []Entry
	err := s.forEachEntry(dir, func(e Entry, _ int64, _ int) (bool, error) {
		entries = append(entries, e)
		return false, nil
	})
	return entries, err
}

// Add is dir_add: duplicate-checks, then places childIno/name into the
// first free slot of dir's allocated blocks, allocating a new data block
// only if none has room. dir is reloaded and persisted by this call, not
// by the caller — the caller's copy may be stale afterward.
func (s *Service) Add(dirIno uint32, childIno uint32, name string, childIsDir bool) error {
	if err := checkName(name); err != nil {
		return err
	}

	dir, err := s.table.Read(dirIno)
	if err != nil {
		return err
	}

	if _, exists, err := s.Find(&dir, name); err != nil {
		return err
	} else if exists {
		return rufs.ErrExists.WithMessagef("%q already exists", name)
	}

	if int(dir.Size)/rawSize >= MaxEntries() {
		return rufs.ErrNoSpace.WithMessage("directory is full")
	}

	placed, err := s.placeInExistingBlock(&dir, childIno, name)
	if err != nil {
		return err
	}
	if !placed {
		if err := s.allocateBlockAndPlace(&dir, childIno, name); err != nil {
			return err
		}
	}

	dir.Size += uint64(rawSize)
	if childIsDir {
		dir.Link++
	}
	return s.table.Write(dir)
}

func (s *Service) placeInExistingBlock(dir *inode.Inode, childIno uint32, name string) (bool, error) {
	buf := make([]byte, block.Size)
	for _, ptr := range dir.DirectPtr {
		if ptr == 0 {
			continue
		}
		if err := s.dev.ReadBlock(int64(ptr), buf); err != nil {
			return false, err
		}

		for slot := 0; slot < entriesPerBlock(); slot++ {
			off := slot * rawSize
			if buf[off+4] != 0 {
				continue
			}
			copy(buf[off:off+rawSize], marshalEntry(childIno, name))
			return true, s.dev.WriteBlock(int64(ptr), buf)
		}
	}
	return false, nil
}

func (s *Service) allocateBlockAndPlace(dir *inode.Inode, childIno uint32, name string) error {
	slotIdx := -1
	for i, ptr := range dir.DirectPtr {
		if ptr == 0 {
			slotIdx = i
			break
		}
	}
	if slotIdx == -1 {
		return rufs.ErrNoSpace.WithMessage("directory has no free direct pointer slot")
	}

	blockIdx, err := s.dataBlk.Allocate()
	if err != nil {
		return err
	}

	buf := make([]byte, block.Size)
	copy(buf[0:rawSize], marshalEntry(childIno, name))

	// Commit the data block before mutating direct_ptr (spec.md §7): a
	// failure between the two leaves only a leaked, unreferenced data
	// block, never a dangling pointer.
	if err := s.dev.WriteBlock(int64(blockIdx), buf); err != nil {
		return err
	}

	dir.DirectPtr[slotIdx] = blockIdx
	return nil
}

// Remove is dir_remove: it zeroes the matching slot and, symmetrically
// with Add, decrements the directory's size (and link, for child
// directories) and frees the data block if it becomes entirely empty.
func (s *Service) Remove(dirIno uint32, name string, childIsDir bool) error {
	dir, err := s.table.Read(dirIno)
	if err != nil {
		return err
	}

	var foundBlock int64 = -1
	var foundSlot int
	err = s.forEachEntry(&dir, func(e Entry, blockIdx int64, slot int) (bool, error) {
		if e.Name == name {
			foundBlock, foundSlot = blockIdx, slot
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if foundBlock == -1 {
		return rufs.ErrNotFound.WithMessagef("%q not found", name)
	}

	buf := make([]byte, block.Size)
	if err := s.dev.ReadBlock(foundBlock, buf); err != nil {
		return err
	}
	off := foundSlot * rawSize
	for i := 0; i < rawSize; i++ {
		buf[off+i] = 0
	}

	empty := true
	for slot := 0; slot < entriesPerBlock(); slot++ {
		so := slot * rawSize
		if buf[so+4] != 0 {
			empty = false
			break
		}
	}
	if err := s.dev.WriteBlock(foundBlock, buf); err != nil {
		return err
	}

	if empty {
		for i, ptr := range dir.DirectPtr {
			if int64(ptr) == foundBlock {
				dir.DirectPtr[i] = 0
				break
			}
		}
		if err := s.dataBlk.Free(uint32(foundBlock)); err != nil {
			return err
		}
	}

	dir.Size -= uint64(rawSize)
	if childIsDir {
		dir.Link--
	}
	return s.table.Write(dir)
}
