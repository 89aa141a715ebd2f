//go:build !linux && !darwin

package blockdev

import "os"

// Lock is a no-op on platforms without flock support; the driver is not
// expected to mount real block-special files there.
func Lock(f *os.File) error { return nil }

// Unlock mirrors Lock.
func Unlock(f *os.File) error { return nil }
