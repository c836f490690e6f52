// Package testutil provides helpers shared by every layer's tests: an
// in-memory block.Device backed by github.com/xaionaro-go/bytesextra,
// the same way github.com/dargueta/disko/testing builds in-memory disk
// images for its tests without touching the filesystem.
package testutil

import (
	"testing"

	"github.com/rufs-go/rufs/block"
	"github.com/xaionaro-go/bytesextra"
)

// NewMemDevice returns a block.Device over a freshly zeroed, in-memory image
// of numBlocks blocks. It never touches disk, making per-test devices cheap.
func NewMemDevice(t testing.TB, numBlocks int64) *block.Device {
	t.Helper()
	image := make([]byte, numBlocks*block.Size)
	stream := bytesextra.NewReadWriteSeeker(image)
	return block.WrapStream(stream, numBlocks)
}
