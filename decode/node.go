// Package decode implements the frame-stack decoder: a cursor that walks
// a Userp value against a finalized Scope, exposing one node at a time
// via NodeInfo and a small set of navigation calls (Begin/End/Skip/
// SeekElem/SeekField).
package decode

import (
	"github.com/nrdvana/go-userp/bitio"
	"github.com/nrdvana/go-userp/scope"
)

// Flags reports which NodeInfo fields a node actually populated and a
// few structural facts about how it was reached.
type Flags uint16

const (
	// FlagTyperef marks a TYPEREF-typed leaf: TypeRef holds the resolved
	// target type id, nothing else is populated.
	FlagTyperef Flags = 1 << iota
	// FlagSymref marks a SYMREF-typed leaf: SymRef holds the resolved id.
	FlagSymref
	// FlagBigint marks an INT value too large for IntVal/UintVal; the
	// magnitude lives in Bigint instead.
	FlagBigint
	// FlagSigned marks an INT value as signed (IntVal valid, not UintVal).
	FlagSigned
	// FlagChoiceLiteral marks a CHOICE node whose selected option was a
	// literal rather than a subtype.
	FlagChoiceLiteral
	// FlagContainer marks a node whose class is RECORD or ARRAY (or a
	// CHOICE that resolved to one): Begin is valid on it.
	FlagContainer
)

// NodeInfo describes the node the decoder's cursor currently sits on.
// Only the fields relevant to the node's resolved type class are
// populated; see Flags.
type NodeInfo struct {
	Flags    Flags
	TypeID   int // the node's own (post-substitution) type id
	IntVal   int64
	UintVal  uint64
	Bigint   *bitio.Bigint
	TypeRef  int
	SymRef   int
	ChoiceIdx int
	Literal  int64 // valid when FlagChoiceLiteral is set
	ArrayDims []int
	ElemCount int
}

// containerInfo is the side-payload produced alongside a container
// NodeInfo, letting Begin push a Frame without re-parsing the header.
type containerInfo struct {
	kind FrameKind

	// record
	fields  []scope.RecordField
	present []bool

	// array
	elemType int
	count    int
}
