package fat

import "errors"

// Sentinel errors surfaced to callers, per the error taxonomy. A bridge
// (FUSE or otherwise) maps these to the platform's errno space; callers
// inside this package should wrap them with checkpoint.Wrap rather than
// returning them bare, so errors.Is keeps working through the chain while
// still carrying file/line provenance.
var (
	ErrNoSuchEntry       = errors.New("no such entry")
	ErrNotADirectory     = errors.New("not a directory")
	ErrNotEmpty          = errors.New("directory not empty")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrEndOfFile         = errors.New("end of file")
	ErrCorruptVolume     = errors.New("corrupt volume")
	ErrOutOfSpace        = errors.New("out of space")
	ErrIOError           = errors.New("i/o error")
	ErrExists            = errors.New("entry already exists")
	ErrIsADirectory      = errors.New("is a directory")
)
