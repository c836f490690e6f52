package rufs_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/rufs-go/rufs"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	err := rufs.ErrNotFound.WithMessage("/a/b/c")
	assert.Equal(t, "/a/b/c", err.Error())
	assert.ErrorIs(t, err, rufs.ErrNotFound)
}

func TestErrorWrap(t *testing.T) {
	original := errors.New("short read")
	err := rufs.ErrIO.Wrap(original)

	assert.Equal(t, "input/output error: short read", err.Error())
	assert.ErrorIs(t, err, rufs.ErrIO)
	assert.ErrorIs(t, err, original)
}

func TestToErrno(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{rufs.ErrNotFound, syscall.ENOENT},
		{rufs.ErrExists.WithMessage("dup"), syscall.EEXIST},
		{rufs.ErrNoSpace, syscall.ENOSPC},
		{rufs.ErrNotADirectory, syscall.ENOTDIR},
		{errors.New("unmapped"), syscall.EIO},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, rufs.ToErrno(tc.err))
	}
}
