//go:build linux || darwin

// Package blockdev provides advisory exclusive locking of the raw device
// file a volume is mounted from, so a second accidental mount of the same
// device fails fast instead of racing the first one's writes.
package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lock takes an advisory, non-blocking exclusive lock on f. It returns an
// error if the lock is already held (typically by another mount of the
// same device). The lock is released automatically when f is closed.
func Lock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// Unlock releases a lock taken by Lock. Closing f has the same effect;
// Unlock exists for callers that want to release the lock without closing
// the file.
func Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
