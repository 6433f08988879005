package scope

import (
	"github.com/nrdvana/go-userp/bitio"
	"github.com/nrdvana/go-userp/diag"
)

// TypeDefClass tags which type-table entry shape a wire type definition
// encodes. It is an alias of TypeClass, named separately because a
// typedef stream needs to name a class before any body bytes exist to
// infer it from.
type TypeDefClass = TypeClass

// ParseTypeDef reads one type definition from br and appends the
// resulting entry to s's own (not-yet-finalized) type table, returning
// its new id. name and parent are ids already resolved by the caller
// (0 for anonymous / no parent). class selects which body shape follows;
// callers typically read it from a small fixed-width tag ahead of the
// call.
//
// On any failure partway through a body, the in-progress entry (and any
// other entries begun by this call) are discarded and the type table is
// rolled back to its state before the call, per §4.6.
func (s *Scope) ParseTypeDef(br *bitio.BitReader, class TypeDefClass, name, parent int) (int, error) {
	mark := s.typetab.Mark()
	id, err := s.parseTypeDef(br, class, name, parent)
	if err != nil {
		s.typetab.Rollback(mark)
		return 0, err
	}
	return id, nil
}

func (s *Scope) parseTypeDef(br *bitio.BitReader, class TypeDefClass, name, parent int) (int, error) {
	switch class {
	case TypeAny:
		return s.typetab.AppendAny(name, parent), nil

	case TypeSymref:
		return s.typetab.AppendSymref(name, parent), nil

	case TypeTyperef:
		ref, _, err := br.ReadUVarint()
		if err != nil {
			return 0, err
		}
		target := s.ResolveTypeRef(int(ref))
		if target == 0 {
			return 0, s.typeDiag(diag.EType, "typeref type definition: target reference out of range")
		}
		return s.typetab.AppendTyperef(name, parent, target), nil

	case TypeInt:
		body, err := s.parseIntBody(br)
		if err != nil {
			return 0, err
		}
		return s.typetab.AppendInt(name, parent, body), nil

	case TypeChoice:
		body, err := s.parseChoiceBody(br)
		if err != nil {
			return 0, err
		}
		return s.typetab.AppendChoice(name, parent, body), nil

	case TypeArray:
		body, err := s.parseArrayBody(br)
		if err != nil {
			return 0, err
		}
		return s.typetab.AppendArray(name, parent, body), nil

	case TypeRecord:
		body, err := s.parseRecordBody(br)
		if err != nil {
			return 0, err
		}
		return s.typetab.AppendRecord(name, parent, body), nil

	default:
		return 0, s.typeDiag(diag.EType, "unrecognized type definition class %d", class)
	}
}

func (s *Scope) typeDiag(code diag.Code, format string, args ...any) error {
	return scopeDiag(s.env, code, format, args...)
}

func (s *Scope) readSymref(br *bitio.BitReader) (int, error) {
	ref, _, err := br.ReadUVarint()
	if err != nil {
		return 0, err
	}
	id := s.ResolveSymRef(int(ref))
	if id == 0 {
		return 0, s.typeDiag(diag.ESymbol, "type definition: symbol reference out of range")
	}
	return id, nil
}

func (s *Scope) readTyperef(br *bitio.BitReader) (int, error) {
	ref, _, err := br.ReadUVarint()
	if err != nil {
		return 0, err
	}
	id := s.ResolveTypeRef(int(ref))
	if id == 0 {
		return 0, s.typeDiag(diag.EType, "type definition: type reference out of range")
	}
	return id, nil
}

// parseIntBody reads: align (vsize, 0 = none), bits (vsize, 0 = varint-
// encoded), a 4-bit flags field (bit0 = two's complement, bit1 = bswap,
// bit2 = has_min, bit3 = has_max), min/max (ivarint each, if present),
// and a names list (vsize count, then that many symrefs).
func (s *Scope) parseIntBody(br *bitio.BitReader) (IntBody, error) {
	align, err := br.ReadVsize()
	if err != nil {
		return IntBody{}, err
	}
	bitWidth, err := br.ReadVsize()
	if err != nil {
		return IntBody{}, err
	}
	flags, err := br.ReadBits(4)
	if err != nil {
		return IntBody{}, err
	}
	body := IntBody{Align: align, Bits: bitWidth, TwosComplement: flags&1 != 0, Bswap: flags&2 != 0}
	if flags&4 != 0 {
		v, _, err := br.ReadIVarint()
		if err != nil {
			return IntBody{}, err
		}
		body.Min = &v
	}
	if flags&8 != 0 {
		v, _, err := br.ReadIVarint()
		if err != nil {
			return IntBody{}, err
		}
		body.Max = &v
	}
	nameCount, err := br.ReadVsize()
	if err != nil {
		return IntBody{}, err
	}
	if nameCount > 0 {
		body.Names = make([]int, nameCount)
		for i := 0; i < nameCount; i++ {
			sid, err := s.readSymref(br)
			if err != nil {
				return IntBody{}, err
			}
			body.Names[i] = sid
		}
	}
	return body, nil
}

// parseChoiceBody reads: align (vsize), option count (vsize), then for each option one
// bit (is_literal) followed by either an ivarint literal or a typeref.
func (s *Scope) parseChoiceBody(br *bitio.BitReader) (ChoiceBody, error) {
	align, err := br.ReadVsize()
	if err != nil {
		return ChoiceBody{}, err
	}
	n, err := br.ReadVsize()
	if err != nil {
		return ChoiceBody{}, err
	}
	opts := make([]ChoiceOption, n)
	for i := range opts {
		lit, err := br.ReadBits(1)
		if err != nil {
			return ChoiceBody{}, err
		}
		if lit != 0 {
			v, _, err := br.ReadIVarint()
			if err != nil {
				return ChoiceBody{}, err
			}
			opts[i] = ChoiceOption{IsLiteral: true, Literal: v}
			continue
		}
		tid, err := s.readTyperef(br)
		if err != nil {
			return ChoiceBody{}, err
		}
		opts[i] = ChoiceOption{TypeRef: tid}
	}
	return ChoiceBody{Align: align, Options: opts}, nil
}

// parseArrayBody reads: align (vsize), elem type (typeref), dim type
// (typeref), rank (vsize), one bit (fixed_dims), and if fixed, rank
// vsizes giving each dimension.
func (s *Scope) parseArrayBody(br *bitio.BitReader) (ArrayBody, error) {
	align, err := br.ReadVsize()
	if err != nil {
		return ArrayBody{}, err
	}
	elemType, err := s.readTyperef(br)
	if err != nil {
		return ArrayBody{}, err
	}
	dimType, err := s.readTyperef(br)
	if err != nil {
		return ArrayBody{}, err
	}
	rank, err := br.ReadVsize()
	if err != nil {
		return ArrayBody{}, err
	}
	fixed, err := br.ReadBits(1)
	if err != nil {
		return ArrayBody{}, err
	}
	body := ArrayBody{Align: align, ElemType: elemType, DimType: dimType, Rank: rank}
	if fixed != 0 {
		body.Dims = make([]int, rank)
		for i := range body.Dims {
			d, err := br.ReadVsize()
			if err != nil {
				return ArrayBody{}, err
			}
			body.Dims[i] = d
		}
	}
	return body, nil
}

// WriteTypeDef emits typetab entry id's body in the same layout
// ParseTypeDef reads, using absolute (not relative) symrefs/typerefs —
// the symmetric counterpart used by scopeio to persist a finalized
// scope's type table. The class tag itself is not written; callers
// that need self-describing framing write entry.Class separately.
func (s *Scope) WriteTypeDef(w *bitio.BitWriter, id int) {
	e := s.typetab.Entry(id)
	switch e.Class {
	case TypeAny, TypeSymref:
		// no body
	case TypeTyperef:
		w.WriteUVarint(uint64(e.Int.Names[0]) << 1)
	case TypeInt:
		writeIntBody(w, e.Int)
	case TypeChoice:
		writeChoiceBody(w, e.Choice)
	case TypeArray:
		writeArrayBody(w, e.Array)
	case TypeRecord:
		writeRecordBody(w, e.Record)
	}
}

func writeIntBody(w *bitio.BitWriter, b *IntBody) {
	w.WriteVsize(b.Align)
	w.WriteVsize(b.Bits)
	var flags uint64
	if b.TwosComplement {
		flags |= 1
	}
	if b.Bswap {
		flags |= 2
	}
	if b.Min != nil {
		flags |= 4
	}
	if b.Max != nil {
		flags |= 8
	}
	w.WriteBits(flags, 4)
	if b.Min != nil {
		w.WriteIVarint(*b.Min)
	}
	if b.Max != nil {
		w.WriteIVarint(*b.Max)
	}
	w.WriteVsize(len(b.Names))
	for _, sid := range b.Names {
		w.WriteUVarint(uint64(sid) << 1)
	}
}

func writeChoiceBody(w *bitio.BitWriter, b *ChoiceBody) {
	w.WriteVsize(b.Align)
	w.WriteVsize(len(b.Options))
	for _, o := range b.Options {
		if o.IsLiteral {
			w.WriteBits(1, 1)
			w.WriteIVarint(o.Literal)
			continue
		}
		w.WriteBits(0, 1)
		w.WriteUVarint(uint64(o.TypeRef) << 1)
	}
}

func writeArrayBody(w *bitio.BitWriter, b *ArrayBody) {
	w.WriteVsize(b.Align)
	w.WriteUVarint(uint64(b.ElemType) << 1)
	w.WriteUVarint(uint64(b.DimType) << 1)
	w.WriteVsize(b.Rank)
	if len(b.Dims) > 0 {
		w.WriteBits(1, 1)
		for _, d := range b.Dims {
			w.WriteVsize(d)
		}
	} else {
		w.WriteBits(0, 1)
	}
}

func writeRecordBody(w *bitio.BitWriter, b *RecordBody) {
	w.WriteVsize(b.Align)
	var always, often, seldom []RecordField
	for _, f := range b.Fields {
		switch f.Category {
		case FieldAlways:
			always = append(always, f)
		case FieldOften:
			often = append(often, f)
		case FieldSeldom:
			seldom = append(seldom, f)
		}
	}
	w.WriteVsize(len(always))
	w.WriteVsize(len(often))
	w.WriteVsize(len(seldom))
	for _, f := range append(append(always, often...), seldom...) {
		w.WriteUVarint(uint64(f.Name) << 1)
		w.WriteUVarint(uint64(f.Type) << 1)
		placement := 0
		if f.Placement >= 0 {
			placement = f.Placement + 1
		}
		w.WriteVsize(placement)
	}
}

// parseRecordBody reads align (vsize), then three field-category counts
// (always, often, seldom), then that many { symref name, typeref type, vint
// placement } triples in declaration order. A placement of 0 means
// dynamically placed; a nonzero value is (bit offset + 1).
func (s *Scope) parseRecordBody(br *bitio.BitReader) (RecordBody, error) {
	align, err := br.ReadVsize()
	if err != nil {
		return RecordBody{}, err
	}
	alwaysN, err := br.ReadVsize()
	if err != nil {
		return RecordBody{}, err
	}
	oftenN, err := br.ReadVsize()
	if err != nil {
		return RecordBody{}, err
	}
	seldomN, err := br.ReadVsize()
	if err != nil {
		return RecordBody{}, err
	}
	total := alwaysN + oftenN + seldomN
	fields := make([]RecordField, total)
	for i := range fields {
		nameID, err := s.readSymref(br)
		if err != nil {
			return RecordBody{}, err
		}
		typeID, err := s.readTyperef(br)
		if err != nil {
			return RecordBody{}, err
		}
		placement, err := br.ReadVsize()
		if err != nil {
			return RecordBody{}, err
		}
		cat := FieldAlways
		switch {
		case i >= alwaysN+oftenN:
			cat = FieldSeldom
		case i >= alwaysN:
			cat = FieldOften
		}
		pos := -1
		if placement > 0 {
			pos = placement - 1
		}
		fields[i] = RecordField{Name: nameID, Type: typeID, Category: cat, Placement: pos}
	}
	return RecordBody{Align: align, Fields: fields}, nil
}
