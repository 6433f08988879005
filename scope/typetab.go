package scope

import "github.com/nrdvana/go-userp/uenv"

// TypeClass tags a TypeEntry's body, mirroring the typeclass field of
// the data model's type entry.
type TypeClass uint8

const (
	TypeAny TypeClass = iota
	TypeTyperef
	TypeSymref
	TypeInt
	TypeChoice
	TypeArray
	TypeRecord
)

func (c TypeClass) String() string {
	switch c {
	case TypeAny:
		return "any"
	case TypeTyperef:
		return "typeref"
	case TypeSymref:
		return "symref"
	case TypeInt:
		return "int"
	case TypeChoice:
		return "choice"
	case TypeArray:
		return "array"
	case TypeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// IntBody is the body of an INT type entry.
type IntBody struct {
	Align, Pad     int
	Bits           int
	TwosComplement bool
	Min, Max       *int64
	Bswap          bool
	Names          []int // symbol ids naming individual bit values, if any
}

// ChoiceOption is one arm of a CHOICE type: either a reference to
// another type, or an inline literal value.
type ChoiceOption struct {
	IsLiteral bool
	TypeRef   int
	Literal   int64
}

// ChoiceBody is the body of a CHOICE type entry.
type ChoiceBody struct {
	Align, Pad int
	Options    []ChoiceOption
}

// ArrayBody is the body of an ARRAY type entry. Dims is empty for a
// dynamically-sized array (dimension count and sizes read at decode
// time using DimType's width).
type ArrayBody struct {
	Align, Pad        int
	ElemType, DimType int
	Dims              []int // empty for a dynamically-sized array
	Rank              int   // number of dimensions; authoritative when Dims is empty
}

// FieldCategory is a record field's presence category.
type FieldCategory uint8

const (
	FieldAlways FieldCategory = iota
	FieldOften
	FieldSeldom
)

// RecordField is one field of a RECORD type: a name, a type, and a
// placement (static bit offset when known, or a marker that it's
// dynamically placed).
type RecordField struct {
	Name      int
	Type      int
	Category  FieldCategory
	Placement int // static bit offset; -1 if dynamically placed
}

// RecordBody is the body of a RECORD type entry.
type RecordBody struct {
	Align, Pad     int
	StaticBits     int
	OtherFieldType int // (index, value)-pair mode for seldom fields; ParseTypeDef never sets it and the decoder does not read it
	Fields         []RecordField
}

// TypeEntry is one row of a Typetab.
type TypeEntry struct {
	Name   int // symbol id, 0 if anonymous
	Parent int
	Class  TypeClass

	Int     *IntBody
	Choice  *ChoiceBody
	Array   *ArrayBody
	Record  *RecordBody
}

// Typetab is a scope's type vector. Index 0 is reserved; the first real
// type id is 1.
type Typetab struct {
	env      *uenv.Env
	entries  []TypeEntry
	idOffset int
}

// NewTypetab returns an empty Typetab bound to env.
func NewTypetab(env *uenv.Env) *Typetab {
	return &Typetab{env: env, entries: []TypeEntry{{}}}
}

func (tt *Typetab) Count() int             { return len(tt.entries) - 1 }
func (tt *Typetab) Entry(id int) TypeEntry { return tt.entries[id] }
func (tt *Typetab) IDOffset() int          { return tt.idOffset }
func (tt *Typetab) SetIDOffset(off int)    { tt.idOffset = off }

// Mark returns a rollback point for a multi-step type definition.
func (tt *Typetab) Mark() int { return len(tt.entries) }

// Rollback truncates the table back to a Mark, discarding any entries
// added since — used when a type body fails to parse partway through.
func (tt *Typetab) Rollback(mark int) { tt.entries = tt.entries[:mark] }

func (tt *Typetab) append(e TypeEntry) int {
	tt.entries = append(tt.entries, e)
	return len(tt.entries) - 1
}

func (tt *Typetab) AppendAny(name, parent int) int {
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeAny})
}

func (tt *Typetab) AppendTyperef(name, parent, target int) int {
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeTyperef,
		Int: &IntBody{Names: []int{target}}})
}

// AppendSymref appends a SYMREF type entry: a node of this type decodes
// as a reference into the symbol table rather than into the type table.
func (tt *Typetab) AppendSymref(name, parent int) int {
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeSymref})
}

func (tt *Typetab) AppendInt(name, parent int, body IntBody) int {
	b := body
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeInt, Int: &b})
}

func (tt *Typetab) AppendChoice(name, parent int, body ChoiceBody) int {
	b := body
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeChoice, Choice: &b})
}

func (tt *Typetab) AppendArray(name, parent int, body ArrayBody) int {
	b := body
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeArray, Array: &b})
}

func (tt *Typetab) AppendRecord(name, parent int, body RecordBody) int {
	b := body
	return tt.append(TypeEntry{Name: name, Parent: parent, Class: TypeRecord, Record: &b})
}
