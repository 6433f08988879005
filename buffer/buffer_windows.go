//go:build windows

package buffer

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/nrdvana/go-userp/uenv"
)

// NewMmap wraps a MapViewOfFile-backed region as a DataMmap Buffer;
// Drop will UnmapViewOfFile it once the last reference goes away.
func NewMmap(env *uenv.Env, data []byte) *Buffer {
	return &Buffer{
		env:      env,
		data:     data,
		allocLen: len(data),
		refcnt:   1,
		flags:    DataMmap,
		unmap: func(b []byte) error {
			if len(b) == 0 {
				return nil
			}
			return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
		},
	}
}
