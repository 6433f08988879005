//go:build linux || darwin

package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/nrdvana/go-userp/uenv"
)

// NewMmap wraps an mmap-backed region (e.g. from a caller-managed
// unix.Mmap call) as a DataMmap Buffer; Drop will unix.Munmap it once
// the last reference goes away.
func NewMmap(env *uenv.Env, data []byte) *Buffer {
	return &Buffer{
		env:      env,
		data:     data,
		allocLen: len(data),
		refcnt:   1,
		flags:    DataMmap,
		unmap:    unix.Munmap,
	}
}
