// Package uenv provides the shared environment object and the three
// external-collaborator interfaces (allocator, diagnostic sink, reader
// callback) that the rest of this module treats as injected
// dependencies rather than implementing itself.
package uenv

import (
	"github.com/google/uuid"

	"github.com/nrdvana/go-userp/diag"
)

// AllocFlags mirrors the recognized allocator hint/alignment bits from
// the external allocator contract.
type AllocFlags uint32

const (
	HintStatic AllocFlags = 1 << iota
	HintDynamic
	HintBrief
	HintPersist
	AllocAlignSizeT
	AllocAlignIntmax
	AllocAlignPage
)

// Allocator is the collaborator responsible for growing, shrinking, and
// freeing the backing storage of Buffers. A nil newSize-0 call is a
// free; old == nil allocates; otherwise it reallocates. On failure the
// original slice (and its backing array) must be left untouched and ok
// is false.
type Allocator interface {
	Alloc(old []byte, newSize int, flags AllocFlags) (data []byte, ok bool)
}

type defaultAllocator struct{}

func (defaultAllocator) Alloc(old []byte, newSize int, flags AllocFlags) ([]byte, bool) {
	if newSize == 0 {
		return nil, true
	}
	if old == nil {
		return make([]byte, newSize), true
	}
	if newSize <= cap(old) {
		return old[:newSize], true
	}
	grown := make([]byte, newSize)
	copy(grown, old)
	return grown, true
}

// DefaultAllocator is a plain make/append-backed Allocator with no
// external resource limits.
var DefaultAllocator Allocator = defaultAllocator{}

// Reader is the "feed me more bytes" callback invoked by a decoder when
// its BitReader underruns. Feed must either return at least one
// non-empty chunk and true, or signal end-of-stream with false.
type Reader interface {
	Feed(needed int) (data []byte, ok bool)
}

// Limits bounds resource usage that would otherwise be unbounded
// recursion/allocation driven by untrusted input. Only MaxScopeDepth is
// enforced (by scope.New); the other fields are defaulted and loaded by
// LoadLimits but no package reads them.
type Limits struct {
	MaxScopeDepth      int `json:"maxScopeDepth" yaml:"maxScopeDepth"`
	MaxHashtreeDepth   int `json:"maxHashtreeDepth" yaml:"maxHashtreeDepth"`
	MaxSymbolNameBytes int `json:"maxSymbolNameBytes" yaml:"maxSymbolNameBytes"`
	MaxBigintLimbs     int `json:"maxBigintLimbs" yaml:"maxBigintLimbs"`
}

// DefaultLimits mirror conservative, generous-enough-for-tests values.
func DefaultLimits() Limits {
	return Limits{
		MaxScopeDepth:      64,
		MaxHashtreeDepth:   64, // 2 * 32-bit width; scope/hashtree.go has no tree and does not read it
		MaxSymbolNameBytes: 64 * 1024,
		MaxBigintLimbs:     1 << 20,
	}
}

// DiagFunc receives every diagnostic emitted while operating within an
// Env. It is never required to recover from Fatal diagnostics; callers
// that want "abort on fatal" behavior should do so inside their sink.
type DiagFunc func(sev diag.Severity, code diag.Code, message string)

// Env is the one piece of process-wide state a caller opts into: it
// bundles resource limits, the allocator, and the diagnostic sink that
// Buffers, Scopes, and Decoders created through it will share.
type Env struct {
	SessionID uuid.UUID
	Limits    Limits
	Alloc     Allocator
	DiagFunc  DiagFunc
}

// New constructs an Env with a fresh session id, default limits, and
// the default allocator. Fields may be overridden after construction.
func New() *Env {
	return &Env{
		SessionID: uuid.New(),
		Limits:    DefaultLimits(),
		Alloc:     DefaultAllocator,
	}
}

// Diag emits a diagnostic through DiagFunc if one is installed. It
// always also returns a *diag.Error so callers can propagate it as a Go
// error regardless of whether a sink is installed — Go has no
// process-wide default sink that can unilaterally abort the program on
// the caller's behalf, so every Fatal diagnostic must still surface as
// a normal returned error.
func (e *Env) Diag(code diag.Code, format string, args ...any) *diag.Error {
	err := diag.New(code, format, args...)
	if e != nil && e.DiagFunc != nil {
		e.DiagFunc(code.Severity(), code, err.Message)
	}
	return err
}
