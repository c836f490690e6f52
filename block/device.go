// Package block implements the block device adapter spec.md §4.1 treats as
// an external collaborator: a fixed-size-block view over a single flat
// backing file (the diskfile), exposing block_read/block_write/dev_init/
// dev_open/dev_close.
//
// Modeled on github.com/dargueta/disko/drivers/common's BlockDevice, but
// narrowed to RUFS's needs: one block at a time, one backing stream, no
// cluster grouping.
package block

import (
	"fmt"
	"io"
	"os"

	"github.com/rufs-go/rufs"
)

// Size is the fixed size of one block, in bytes. spec.md §3 calls this B
// and the reference implementation uses 4096.
const Size = 4096

// Device transfers fixed-size blocks between a backing stream and caller
// buffers. It is safe for use by at most one goroutine at a time; callers
// above it are responsible for the locking strategy spec.md §5 requires.
type Device struct {
	stream      io.ReadWriteSeeker
	closer      io.Closer
	totalBlocks int64
}

// Init creates path as a new, zero-filled diskfile containing numBlocks
// blocks and returns a Device over it. It is the "dev_init" operation.
func Init(path string, numBlocks int64) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, rufs.ErrIO.Wrap(err)
	}

	if err := f.Truncate(numBlocks * Size); err != nil {
		f.Close()
		return nil, rufs.ErrIO.Wrap(err)
	}

	return &Device{stream: f, closer: f, totalBlocks: numBlocks}, nil
}

// Open opens an existing diskfile at path. It is the "dev_open" operation
// and fails if path does not exist.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rufs.ErrNotFound.Wrap(err)
		}
		return nil, rufs.ErrIO.Wrap(err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, rufs.ErrIO.Wrap(err)
	}

	return &Device{stream: f, closer: f, totalBlocks: info.Size() / Size}, nil
}

// WrapStream adapts any io.ReadWriteSeeker (for instance an in-memory image
// from github.com/xaionaro-go/bytesextra) into a Device of numBlocks blocks.
// Used by tests (internal/testutil) to operate on images that aren't backed
// by a real file.
func WrapStream(stream io.ReadWriteSeeker, numBlocks int64) *Device {
	return &Device{stream: stream, totalBlocks: numBlocks}
}

// Close is the "dev_close" operation.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// TotalBlocks returns the number of Size-byte blocks the diskfile holds.
func (d *Device) TotalBlocks() int64 {
	return d.totalBlocks
}

func (d *Device) checkBounds(idx int64) error {
	if idx < 0 || idx >= d.totalBlocks {
		return rufs.ErrInvalid.WithMessagef(
			"block index %d out of range [0, %d)", idx, d.totalBlocks)
	}
	return nil
}

// ReadBlock is "block_read": it fills buf (which must be exactly Size
// bytes) with the contents of block idx.
func (d *Device) ReadBlock(idx int64, buf []byte) error {
	if len(buf) != Size {
		return rufs.ErrInvalid.WithMessagef("buffer must be %d bytes, got %d", Size, len(buf))
	}
	if err := d.checkBounds(idx); err != nil {
		return err
	}

	if _, err := d.stream.Seek(idx*Size, io.SeekStart); err != nil {
		return rufs.ErrIO.Wrap(err)
	}
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return rufs.ErrIO.Wrap(err)
	}
	return nil
}

// WriteBlock is "block_write": it transfers exactly Size bytes of buf to
// block idx.
func (d *Device) WriteBlock(idx int64, buf []byte) error {
	if len(buf) != Size {
		return rufs.ErrInvalid.WithMessagef("buffer must be %d bytes, got %d", Size, len(buf))
	}
	if err := d.checkBounds(idx); err != nil {
		return err
	}

	if _, err := d.stream.Seek(idx*Size, io.SeekStart); err != nil {
		return rufs.ErrIO.Wrap(err)
	}
	if n, err := d.stream.Write(buf); err != nil || n != Size {
		if err == nil {
			err = fmt.Errorf("short write: wrote %d of %d bytes", n, Size)
		}
		return rufs.ErrIO.Wrap(err)
	}
	return nil
}
