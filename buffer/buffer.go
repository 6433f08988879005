// Package buffer implements the reference-counted byte region that
// every ByteString Part borrows from.
package buffer

import (
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/uenv"
)

// Flags describe the capability and provenance bits of a Buffer.
type Flags uint8

const (
	// Appendable means the writer may extend data into unused capacity
	// without reallocating, provided refcnt == 1.
	Appendable Flags = 1 << iota
	// DataAlloc means data came from env's allocator and must be freed
	// through it.
	DataAlloc
	// DataMmap means data must be released via an OS unmap rather than
	// the allocator.
	DataMmap
)

// Buffer owns (or references) a contiguous byte region.
//
// refcnt == 0 means "not tracked — lifetime guaranteed by the caller."
// Any other Buffer is destroyed exactly when refcnt drops to zero.
type Buffer struct {
	data     []byte
	allocLen int
	refcnt   int32
	env      *uenv.Env
	flags    Flags

	// unmap, when non-nil, releases a DataMmap-flagged buffer. Set by
	// the OS-specific constructors in buffer_unix.go / buffer_windows.go.
	unmap func([]byte) error
}

// New allocates (or wraps) a buffer. If data is nil and allocLen > 0,
// storage is allocated via env's allocator, rounded up to a power of
// two unless HintStatic is set. The returned Buffer has refcnt == 1.
func New(env *uenv.Env, data []byte, allocLen int, hints uenv.AllocFlags) (*Buffer, error) {
	b := &Buffer{env: env, refcnt: 1}
	if data == nil && allocLen > 0 {
		size := allocLen
		if hints&uenv.HintStatic == 0 {
			size = nextPow2(allocLen)
		}
		alloc := uenv.DefaultAllocator
		if env != nil && env.Alloc != nil {
			alloc = env.Alloc
		}
		buf, ok := alloc.Alloc(nil, size, hints)
		if !ok {
			return nil, env.Diag(diag.EAlloc, "allocate %d bytes", size)
		}
		b.data = buf[:allocLen]
		b.allocLen = size
		b.flags = Appendable | DataAlloc
		return b, nil
	}
	b.data = data
	b.allocLen = len(data)
	return b, nil
}

// NewExternal wraps caller-owned memory with refcnt == 0: Userp never
// frees it and never assumes exclusive ownership.
func NewExternal(data []byte) *Buffer {
	return &Buffer{data: data, allocLen: len(data)}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Bytes returns the currently valid byte span of the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// AllocLen returns the capacity in bytes (0 means "unknown").
func (b *Buffer) AllocLen() int { return b.allocLen }

// Flags returns the buffer's capability/provenance flags.
func (b *Buffer) Flags() Flags { return b.flags }

// Refcnt returns the current reference count (0 == externally managed).
func (b *Buffer) Refcnt() int32 { return b.refcnt }

// Appendable reports whether the buffer may be extended in place right
// now: Appendable flag set, refcnt == 1, and spare capacity available.
func (b *Buffer) Appendable(extra int) bool {
	return b.flags&Appendable != 0 && b.refcnt == 1 && len(b.data)+extra <= b.allocLen
}

// AppendInPlace extends data by appending p, assuming Appendable(len(p))
// holds; it returns the byte offset the new data starts at.
func (b *Buffer) AppendInPlace(p []byte) int {
	off := len(b.data)
	b.data = append(b.data, p...)
	return off
}

// Reserve grows allocLen to at least newLen in place (spare backing
// array capacity), doubling geometrically. It never shrinks.
func (b *Buffer) Reserve(env *uenv.Env, newLen int) error {
	if newLen <= b.allocLen {
		return nil
	}
	size := b.allocLen
	if size == 0 {
		size = 1
	}
	for size < newLen {
		size <<= 1
	}
	alloc := uenv.DefaultAllocator
	if env != nil && env.Alloc != nil {
		alloc = env.Alloc
	}
	grown, ok := alloc.Alloc(b.data, size, 0)
	if !ok {
		return env.Diag(diag.EAlloc, "grow buffer to %d bytes", size)
	}
	b.data = grown[:len(b.data)]
	b.allocLen = size
	b.flags |= Appendable | DataAlloc
	return nil
}

// Grab increments the reference count. On an externally managed buffer
// (refcnt == 0) it is a no-op that reports success — callers should
// check Refcnt() first if they need to distinguish. It fails (returning
// false) only when the count would overflow.
func (b *Buffer) Grab() bool {
	if b.refcnt == 0 {
		return true
	}
	if b.refcnt == (1<<31 - 1) {
		return false
	}
	b.refcnt++
	return true
}

// Drop decrements the reference count; at zero, frees data (if owner)
// and detaches the env reference.
func (b *Buffer) Drop() error {
	if b.refcnt == 0 {
		return nil
	}
	b.refcnt--
	if b.refcnt > 0 {
		return nil
	}
	var err error
	switch {
	case b.flags&DataMmap != 0 && b.unmap != nil:
		err = b.unmap(b.data)
	case b.flags&DataAlloc != 0 && b.env != nil && b.env.Alloc != nil:
		_, ok := b.env.Alloc.Alloc(b.data, 0, 0)
		if !ok {
			err = b.env.Diag(diag.EAlloc, "free buffer")
		}
	}
	b.data = nil
	b.allocLen = 0
	b.env = nil
	return err
}
