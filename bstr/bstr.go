// Package bstr implements ByteString: an ordered, possibly
// non-contiguous sequence of byte-range windows (Parts) into
// reference-counted Buffers, supporting zero-copy decode and
// append-oriented encode.
package bstr

import (
	"golang.org/x/exp/slices"

	"github.com/nrdvana/go-userp/buffer"
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/uenv"
)

// AppendFlags controls ByteString.AppendBytes behavior.
type AppendFlags uint8

// Contiguous requires the entire appended span to land in exactly one
// Part, forcing a fresh Buffer allocation rather than splitting across
// the current tail and a new one.
const Contiguous AppendFlags = 1 << 0

// Part is a borrowed window { buf, offset, len } inside a ByteString,
// reporting its logical offset from the start of the string.
type Part struct {
	Buf       *buffer.Buffer // nil for borrowed memory with no refcount
	Offset    int            // byte offset into Buf.Bytes()
	Len       int            // length in bytes
	StrOffset int64          // logical offset from the start of the owning ByteString
}

// Bytes returns the Part's byte window.
func (p Part) Bytes() []byte {
	if p.Buf == nil {
		return nil
	}
	return p.Buf.Bytes()[p.Offset : p.Offset+p.Len]
}

// ByteString is an ordered sequence of Parts, logically contiguous
// (offsets chain) but not necessarily contiguous in memory.
type ByteString struct {
	env   *uenv.Env
	parts []Part
}

// New returns an empty ByteString bound to env (env may be nil to use
// package defaults).
func New(env *uenv.Env) *ByteString {
	return &ByteString{env: env}
}

// Parts returns the current Part list. The slice and its elements must
// not be mutated by the caller.
func (s *ByteString) Parts() []Part { return s.parts }

// Len returns the total logical length in bytes.
func (s *ByteString) Len() int64 {
	if len(s.parts) == 0 {
		return 0
	}
	last := s.parts[len(s.parts)-1]
	return last.StrOffset + int64(last.Len)
}

// Reserve grows the parts slice to at least nParts capacity, rounded up
// to a multiple of 16 with >= 8 headroom. Shrinking only happens when
// nParts == 0 (full release) or it would free >= 16x headroom.
func (s *ByteString) Reserve(nParts int) {
	if nParts == 0 {
		s.parts = nil
		return
	}
	want := ((nParts + 8 + 15) / 16) * 16
	if cap(s.parts) >= want {
		return
	}
	if cap(s.parts) > 0 && want < cap(s.parts)/16 {
		return
	}
	s.parts = slices.Grow(s.parts, want-len(s.parts))
}

// AppendBytes reserves len bytes of storage and returns a writable
// window over them. If data is non-nil its contents are copied in;
// otherwise the returned bytes are uninitialized (reserved) space for
// the caller to fill. On allocator failure the ByteString is left
// exactly as it was before the call.
func (s *ByteString) AppendBytes(data []byte, length int, flags AppendFlags) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if len(s.parts) > 0 {
		tail := &s.parts[len(s.parts)-1]
		if tail.Buf != nil && tail.Buf.Appendable(length) {
			off := tail.Buf.AppendInPlace(make([]byte, length))
			if data != nil {
				copy(tail.Buf.Bytes()[off:off+length], data)
			}
			tail.Len += length
			return tail.Buf.Bytes()[off : off+length], nil
		}
	}

	size := length
	if flags&Contiguous == 0 && len(s.parts) > 0 {
		prevCap := s.parts[len(s.parts)-1].Buf.AllocLen()
		if grow := (prevCap * 3) / 2; grow > size {
			size = grow
		}
	}
	buf, err := buffer.New(s.env, nil, size, uenv.HintDynamic)
	if err != nil {
		return nil, err
	}
	raw := buf.Bytes()[:length]
	if data != nil {
		copy(raw, data)
	}
	s.parts = append(s.parts, Part{
		Buf:       buf,
		Offset:    0,
		Len:       length,
		StrOffset: s.Len(),
	})
	return raw, nil
}

// AppendParts copies n Part records from src, grabbing each Buffer's
// reference count. On any grab failure, previously-grabbed parts in
// this call are released and the ByteString is left unchanged.
func (s *ByteString) AppendParts(src []Part) error {
	base := s.Len()
	added := make([]Part, 0, len(src))
	for _, p := range src {
		if p.Buf != nil && !p.Buf.Grab() {
			for _, a := range added {
				if a.Buf != nil {
					a.Buf.Drop()
				}
			}
			return diag.New(diag.EAlloc, "refcount overflow appending part")
		}
		np := p
		np.StrOffset = base
		base += int64(p.Len)
		added = append(added, np)
	}
	s.parts = append(s.parts, added...)
	return nil
}

// Release drops every Part's Buffer reference in LIFO order and empties
// the ByteString.
func (s *ByteString) Release() {
	for i := len(s.parts) - 1; i >= 0; i-- {
		if s.parts[i].Buf != nil {
			s.parts[i].Buf.Drop()
		}
	}
	s.parts = nil
}

// Slice extracts the logical byte range [start, start+length) as a new
// ByteString sharing the underlying Buffers (grabbing references to
// them). It may span multiple Parts.
func (s *ByteString) Slice(start, length int64) (*ByteString, error) {
	out := New(s.env)
	end := start + length
	for _, p := range s.parts {
		pStart, pEnd := p.StrOffset, p.StrOffset+int64(p.Len)
		lo, hi := max64(start, pStart), min64(end, pEnd)
		if lo >= hi {
			continue
		}
		np := Part{
			Buf:    p.Buf,
			Offset: p.Offset + int(lo-pStart),
			Len:    int(hi - lo),
		}
		if err := out.AppendParts([]Part{np}); err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}

// Contiguous reports whether the logical range [start, start+length) is
// backed by a single Part, and if so returns its byte window directly
// (zero-copy).
func (s *ByteString) Contiguous(start, length int64) ([]byte, bool) {
	for _, p := range s.parts {
		if start >= p.StrOffset && start+length <= p.StrOffset+int64(p.Len) {
			off := p.Offset + int(start-p.StrOffset)
			return p.Buf.Bytes()[off : off+int(length)], true
		}
	}
	return nil, false
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
