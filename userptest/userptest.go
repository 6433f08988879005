// Package userptest provides small deterministic test doubles shared
// across this module's package tests: an Allocator that can be told to
// fail after N successful calls, and a Reader that feeds a fixed byte
// stream back in caller-controlled chunk sizes rather than all at once.
package userptest

import (
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/uenv"
)

// FailingAllocator wraps uenv.DefaultAllocator and fails the call whose
// 1-based index equals FailAt (0 disables injection). Every call,
// whether it fails or not, is recorded in Calls for assertions.
type FailingAllocator struct {
	FailAt int
	Calls  int
}

func (a *FailingAllocator) Alloc(old []byte, newSize int, flags uenv.AllocFlags) ([]byte, bool) {
	a.Calls++
	if a.FailAt != 0 && a.Calls == a.FailAt {
		return old, false
	}
	return uenv.DefaultAllocator.Alloc(old, newSize, flags)
}

// ChunkReader is a uenv.Reader that doles out a fixed backing slice in
// pieces of at most ChunkSize bytes per Feed call, simulating a decoder
// reading from a streaming source rather than one contiguous buffer.
// A ChunkSize of 0 means "return everything remaining in one call."
type ChunkReader struct {
	Data      []byte
	ChunkSize int

	pos   int
	Feeds int
}

// NewChunkReader returns a ChunkReader over data that serves chunkSize
// bytes (or everything remaining, if chunkSize is 0) per Feed call.
func NewChunkReader(data []byte, chunkSize int) *ChunkReader {
	return &ChunkReader{Data: data, ChunkSize: chunkSize}
}

// Feed returns up to ChunkSize bytes regardless of needed, so callers
// exercise the case where a single Feed call undershoots what the
// reader asked for and must loop.
func (r *ChunkReader) Feed(needed int) ([]byte, bool) {
	r.Feeds++
	if r.pos >= len(r.Data) {
		return nil, false
	}
	n := len(r.Data) - r.pos
	if r.ChunkSize > 0 && n > r.ChunkSize {
		n = r.ChunkSize
	}
	chunk := r.Data[r.pos : r.pos+n]
	r.pos += n
	return chunk, true
}

// Remaining reports how many bytes of Data have not yet been served.
func (r *ChunkReader) Remaining() int {
	return len(r.Data) - r.pos
}

// RecordingDiag collects every diagnostic emitted through an Env's
// DiagFunc, for tests that assert on warnings/errors without caring
// about the error value a call returns.
type RecordingDiag struct {
	Entries []DiagEntry
}

type DiagEntry struct {
	Severity diag.Severity
	Code     diag.Code
	Message  string
}

// Sink returns a uenv.DiagFunc that appends every emitted diagnostic to
// r.Entries.
func (r *RecordingDiag) Sink() uenv.DiagFunc {
	return func(sev diag.Severity, code diag.Code, message string) {
		r.Entries = append(r.Entries, DiagEntry{Severity: sev, Code: code, Message: message})
	}
}
