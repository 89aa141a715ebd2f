package bridge

import (
	"errors"
	"syscall"

	gofat "github.com/theanurin/emphatic-fs"
)

// toErrno translates this package's sentinel error taxonomy into the
// syscall.Errno the go-fuse Node* callbacks return. Unrecognized errors
// map to EIO, matching the contract that every device error is fatal to
// the current operation (§4.2's failure semantics).
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, gofat.ErrNoSuchEntry):
		return syscall.ENOENT
	case errors.Is(err, gofat.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, gofat.ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, gofat.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, gofat.ErrPermissionDenied):
		return syscall.EACCES
	case errors.Is(err, gofat.ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, gofat.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, gofat.ErrOutOfSpace):
		return syscall.ENOSPC
	case errors.Is(err, gofat.ErrEndOfFile):
		return syscall.EINVAL
	case errors.Is(err, gofat.ErrCorruptVolume):
		return syscall.EIO
	case errors.Is(err, gofat.ErrIOError):
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
