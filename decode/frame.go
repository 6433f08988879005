package decode

import "github.com/nrdvana/go-userp/scope"

// FrameKind tags what a Frame is iterating.
type FrameKind uint8

const (
	// FrameRoot is the single-element frame 0, holding the root node.
	FrameRoot FrameKind = iota
	FrameRecord
	FrameArray
)

// Frame is one level of the decoder's navigation stack: a container
// being iterated, plus the position within it.
type Frame struct {
	Kind FrameKind

	ElemI   int
	ElemLim int

	// FrameRecord
	fields  []scope.RecordField
	present []bool

	// FrameArray
	elemType int

	// FrameRoot
	rootType int
}
