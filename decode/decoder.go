package decode

import (
	"math/bits"

	"github.com/nrdvana/go-userp/bitio"
	"github.com/nrdvana/go-userp/bstr"
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/scope"
	"github.com/nrdvana/go-userp/uenv"
)

// Decoder walks a Userp-encoded value, one node at a time, against a
// finalized Scope. It is not safe for concurrent use.
type Decoder struct {
	env   *uenv.Env
	scope *scope.Scope
	br    *bitio.BitReader

	stack []Frame

	cur          NodeInfo
	curHasValue  bool
	curContainer *containerInfo
}

// New returns a Decoder positioned before the root node of type rootType,
// reading from data. sc must be finalized.
func New(env *uenv.Env, sc *scope.Scope, rootType int, data *bstr.ByteString, reader bitio.Reader) *Decoder {
	return &Decoder{
		env:   env,
		scope: sc,
		br:    bitio.New(env, data, reader),
		stack: []Frame{{Kind: FrameRoot, ElemLim: 1, rootType: rootType}},
	}
}

func (d *Decoder) diag(code diag.Code, format string, args ...any) error {
	if d.env != nil {
		return d.env.Diag(code, format, args...)
	}
	return diag.New(code, format, args...)
}

// Current returns the node the cursor currently sits on. It is only
// valid after a Next call that returned (true, nil).
func (d *Decoder) Current() NodeInfo { return d.cur }

func (d *Decoder) top() *Frame { return &d.stack[len(d.stack)-1] }

// Next advances to the next sibling within the current frame, decoding
// its header (and, for INT/SYMREF/TYPEREF/CHOICE-literal leaves, its
// value) eagerly. It returns (false, nil) when the frame is exhausted —
// a no-op, safe to call again after End.
func (d *Decoder) Next() (bool, error) {
	f := d.top()
	var typeID int
	switch f.Kind {
	case FrameRoot:
		if f.ElemI >= f.ElemLim {
			return false, nil
		}
		typeID = f.rootType
	case FrameRecord:
		for f.ElemI < f.ElemLim && !f.present[f.ElemI] {
			f.ElemI++
		}
		if f.ElemI >= f.ElemLim {
			return false, nil
		}
		typeID = f.fields[f.ElemI].Type
	case FrameArray:
		if f.ElemI >= f.ElemLim {
			return false, nil
		}
		typeID = f.elemType
	}

	cp := d.br.Save()
	info, container, err := d.decodeNode(typeID)
	if err != nil {
		d.br.Restore(cp)
		return false, err
	}
	d.cur = info
	d.curHasValue = true
	d.curContainer = container
	f.ElemI++
	return true, nil
}

// Begin descends into the current node's children, which must be a
// RECORD or ARRAY (directly, or via a CHOICE that resolved to one).
// Subsequent Next calls iterate the children; call End to return.
func (d *Decoder) Begin() error {
	if !d.curHasValue || d.curContainer == nil {
		return d.diag(diag.EDoingItWrong, "Begin: current node is not a container")
	}
	c := d.curContainer
	var nf Frame
	switch c.kind {
	case FrameRecord:
		nf = Frame{Kind: FrameRecord, fields: c.fields, present: c.present, ElemLim: len(c.fields)}
	case FrameArray:
		nf = Frame{Kind: FrameArray, elemType: c.elemType, ElemLim: c.count}
	default:
		return d.diag(diag.EDoingItWrong, "Begin: unrecognized container kind")
	}
	d.stack = append(d.stack, nf)
	d.cur = NodeInfo{}
	d.curHasValue = false
	d.curContainer = nil
	return nil
}

// End discards any unread children of the current frame and pops back to
// the parent. The parent's cursor position already sits just past the
// container (Next advanced it before Begin was called).
func (d *Decoder) End() error {
	if len(d.stack) <= 1 {
		return d.diag(diag.EDoingItWrong, "End: already at the root frame")
	}
	f := d.top()
	for f.ElemI < f.ElemLim {
		ok, err := d.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if d.curContainer != nil {
			if err := d.discardContainer(); err != nil {
				return err
			}
		}
	}
	d.stack = d.stack[:len(d.stack)-1]
	d.cur = NodeInfo{}
	d.curHasValue = false
	d.curContainer = nil
	return nil
}

// discardContainer fully consumes the just-decoded container node
// (pushing, draining, and popping a frame for it) without exposing it to
// the caller.
func (d *Decoder) discardContainer() error {
	if d.curContainer == nil {
		return nil
	}
	if err := d.Begin(); err != nil {
		return err
	}
	return d.End()
}

// Skip advances past the current node without producing its value. For a
// leaf the value is already consumed by Next; for a container, Skip
// discards its remaining content.
func (d *Decoder) Skip() error {
	if !d.curHasValue {
		return d.diag(diag.EDoingItWrong, "Skip: no current node")
	}
	if d.curContainer != nil {
		return d.discardContainer()
	}
	return nil
}

// SeekElem advances the current record/array frame forward to index i,
// discarding intervening elements. i must be at or after the index that
// would be read next (seeking backward is not supported).
func (d *Decoder) SeekElem(i int) error {
	f := d.top()
	if f.Kind != FrameRecord && f.Kind != FrameArray {
		return d.diag(diag.EDoingItWrong, "SeekElem: current frame is not a record or array")
	}
	if i < f.ElemI {
		return d.diag(diag.EDoingItWrong, "SeekElem: cannot seek backward (at %d, wanted %d)", f.ElemI, i)
	}
	for {
		ok, err := d.Next()
		if err != nil {
			return err
		}
		if !ok {
			return d.diag(diag.ERecord, "SeekElem: index %d out of range", i)
		}
		// Next may have stepped over absent record fields first, so the
		// index just read is the frame's position minus one.
		at := d.top().ElemI - 1
		if at == i {
			return nil
		}
		if at > i {
			return d.diag(diag.ERecord, "SeekElem: element %d is not present", i)
		}
		if err := d.Skip(); err != nil {
			return err
		}
	}
}

// SeekField advances the current record frame forward to the named
// field, discarding intervening fields. The field must be present and
// not already passed.
func (d *Decoder) SeekField(symID int) error {
	f := d.top()
	if f.Kind != FrameRecord {
		return d.diag(diag.EDoingItWrong, "SeekField: current frame is not a record")
	}
	for i, fld := range f.fields {
		if fld.Name == symID && f.present[i] {
			return d.SeekElem(i)
		}
	}
	return d.diag(diag.ERecord, "SeekField: field not present")
}

// decodeNode reads typeID's node-initialization header, returning a
// populated NodeInfo and, if the resolved class is a container, the
// side-payload Begin needs to descend into it.
func (d *Decoder) decodeNode(typeID int) (NodeInfo, *containerInfo, error) {
	entry := d.scope.Typetab().Entry(typeID)
	switch entry.Class {
	case scope.TypeAny:
		ref, _, err := d.br.ReadUVarint()
		if err != nil {
			return NodeInfo{}, nil, err
		}
		resolved := d.scope.ResolveTypeRef(int(ref))
		return d.decodeNode(resolved)

	case scope.TypeTyperef:
		ref, _, err := d.br.ReadUVarint()
		if err != nil {
			return NodeInfo{}, nil, err
		}
		resolved := d.scope.ResolveTypeRef(int(ref))
		return NodeInfo{Flags: FlagTyperef, TypeID: typeID, TypeRef: resolved}, nil, nil

	case scope.TypeSymref:
		ref, _, err := d.br.ReadUVarint()
		if err != nil {
			return NodeInfo{}, nil, err
		}
		resolved := d.scope.ResolveSymRef(int(ref))
		return NodeInfo{Flags: FlagSymref, TypeID: typeID, SymRef: resolved}, nil, nil

	case scope.TypeInt:
		return d.decodeInt(typeID, entry.Int)

	case scope.TypeChoice:
		return d.decodeChoice(typeID, entry.Choice)

	case scope.TypeArray:
		return d.decodeArrayHeader(typeID, entry.Array)

	case scope.TypeRecord:
		return d.decodeRecordHeader(typeID, entry.Record)

	default:
		return NodeInfo{}, nil, d.diag(diag.EType, "unrecognized type class for type %d", typeID)
	}
}

func (d *Decoder) decodeInt(typeID int, body *scope.IntBody) (NodeInfo, *containerInfo, error) {
	if body.Align > 0 {
		if err := d.br.Align(uint(body.Align)); err != nil {
			return NodeInfo{}, nil, err
		}
	}
	if body.Bits == 0 {
		// varint-encoded, unbounded width
		if body.TwosComplement {
			v, big, err := d.br.ReadIVarint()
			if err != nil {
				return NodeInfo{}, nil, err
			}
			if big != nil {
				return NodeInfo{Flags: FlagBigint | FlagSigned, TypeID: typeID, Bigint: big}, nil, nil
			}
			return NodeInfo{Flags: FlagSigned, TypeID: typeID, IntVal: v}, nil, nil
		}
		v, big, err := d.br.ReadUVarint()
		if err != nil {
			return NodeInfo{}, nil, err
		}
		if big != nil {
			return NodeInfo{Flags: FlagBigint, TypeID: typeID, Bigint: big}, nil, nil
		}
		return NodeInfo{TypeID: typeID, UintVal: v}, nil, nil
	}
	if body.Bits <= 64 {
		if body.TwosComplement {
			v, err := d.br.ReadSignedBits(body.Bits)
			if err != nil {
				return NodeInfo{}, nil, err
			}
			return NodeInfo{Flags: FlagSigned, TypeID: typeID, IntVal: v}, nil, nil
		}
		v, err := d.br.ReadBits(body.Bits)
		if err != nil {
			return NodeInfo{}, nil, err
		}
		return NodeInfo{TypeID: typeID, UintVal: v}, nil, nil
	}
	// Fixed width beyond 64 bits: only byte-multiple widths are supported;
	// any other width fails with ETYPE.
	if body.Bits%8 != 0 {
		return NodeInfo{}, nil, d.diag(diag.EType, "fixed INT width %d is not byte-aligned and exceeds 64 bits", body.Bits)
	}
	n := body.Bits / 8
	mag := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := d.br.ReadBits(8)
		if err != nil {
			return NodeInfo{}, nil, err
		}
		mag[i] = byte(b)
	}
	return NodeInfo{Flags: FlagBigint, TypeID: typeID, Bigint: &bitio.Bigint{Magnitude: mag}}, nil, nil
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func (d *Decoder) decodeChoice(typeID int, body *scope.ChoiceBody) (NodeInfo, *containerInfo, error) {
	nbits := ceilLog2(len(body.Options))
	var disc uint64
	var err error
	if nbits > 0 {
		disc, err = d.br.ReadBits(nbits)
		if err != nil {
			return NodeInfo{}, nil, err
		}
	}
	if int(disc) >= len(body.Options) {
		return NodeInfo{}, nil, d.diag(diag.EType, "choice discriminator %d out of range (%d options)", disc, len(body.Options))
	}
	opt := body.Options[disc]
	if opt.IsLiteral {
		return NodeInfo{Flags: FlagChoiceLiteral, TypeID: typeID, ChoiceIdx: int(disc), Literal: opt.Literal}, nil, nil
	}
	// Transparent substitution: the node's effective type becomes the
	// chosen subtype, decoded exactly as if reached directly.
	return d.decodeNode(opt.TypeRef)
}

func (d *Decoder) decodeArrayHeader(typeID int, body *scope.ArrayBody) (NodeInfo, *containerInfo, error) {
	dims := body.Dims
	if len(dims) == 0 {
		dims = make([]int, body.Rank)
		for i := range dims {
			v, err := d.br.ReadVsize()
			if err != nil {
				return NodeInfo{}, nil, err
			}
			dims[i] = v
		}
	}
	count := 1
	for _, dim := range dims {
		count *= dim
	}
	if body.Align > 0 {
		if err := d.br.Align(uint(body.Align)); err != nil {
			return NodeInfo{}, nil, err
		}
	}
	info := NodeInfo{Flags: FlagContainer, TypeID: typeID, ArrayDims: dims, ElemCount: count}
	return info, &containerInfo{kind: FrameArray, elemType: body.ElemType, count: count}, nil
}

func (d *Decoder) decodeRecordHeader(typeID int, body *scope.RecordBody) (NodeInfo, *containerInfo, error) {
	present := make([]bool, len(body.Fields))
	var seldomPos []int
	oftenCount := 0
	for i, f := range body.Fields {
		switch f.Category {
		case scope.FieldAlways:
			present[i] = true
		case scope.FieldOften:
			oftenCount++
		case scope.FieldSeldom:
			seldomPos = append(seldomPos, i)
		}
	}
	if oftenCount > 0 || len(seldomPos) > 0 {
		var bitmap uint64
		var err error
		if oftenCount > 0 {
			bitmap, err = d.br.ReadBits(oftenCount)
			if err != nil {
				return NodeInfo{}, nil, err
			}
		}
		oi := 0
		for i, f := range body.Fields {
			if f.Category == scope.FieldOften {
				if bitmap&(1<<uint(oi)) != 0 {
					present[i] = true
				}
				oi++
			}
		}
		if len(seldomPos) > 0 {
			extraCount, err := d.br.ReadVsize()
			if err != nil {
				return NodeInfo{}, nil, err
			}
			idxBits := ceilLog2(len(seldomPos))
			for k := 0; k < extraCount; k++ {
				var idx uint64
				if idxBits > 0 {
					idx, err = d.br.ReadBits(idxBits)
					if err != nil {
						return NodeInfo{}, nil, err
					}
				}
				if int(idx) >= len(seldomPos) {
					return NodeInfo{}, nil, d.diag(diag.ERecord, "seldom field index %d out of range", idx)
				}
				present[seldomPos[idx]] = true
			}
		}
	}
	if body.Align > 0 {
		if err := d.br.Align(uint(body.Align)); err != nil {
			return NodeInfo{}, nil, err
		}
	}
	info := NodeInfo{Flags: FlagContainer, TypeID: typeID}
	return info, &containerInfo{kind: FrameRecord, fields: body.Fields, present: present}, nil
}
