package decode

import (
	"github.com/nrdvana/go-userp/bitio"
	"github.com/nrdvana/go-userp/scope"
)

// Encoder writes node headers in exactly the layout Decoder reads,
// mirroring decodeNode/decodeInt/decodeChoice/decodeArrayHeader/
// decodeRecordHeader one write call at a time. It exists to build
// round-trip test fixtures, not as a general-purpose value serializer:
// callers supply the per-node shape (which fields are present, how many
// array dims) directly rather than from a generic value tree.
type Encoder struct {
	w *bitio.BitWriter
}

// NewEncoder returns an Encoder with an empty output buffer.
func NewEncoder() *Encoder { return &Encoder{w: bitio.NewWriter()} }

// Bytes flushes any partial trailing byte and returns the output so far.
func (e *Encoder) Bytes() []byte {
	e.w.Flush()
	return e.w.Bytes()
}

// EncodeTyperef writes an absolute typeref (the common case for
// hand-built fixtures; relative encoding is exercised directly against
// scope.resolveRef, not through this encoder).
func (e *Encoder) EncodeTyperef(targetID int) {
	e.w.WriteUVarint(uint64(targetID) << 1)
}

// EncodeSymref writes an absolute symref.
func (e *Encoder) EncodeSymref(targetID int) {
	e.w.WriteUVarint(uint64(targetID) << 1)
}

// EncodeUint writes an INT node's value: varint if body.Bits == 0,
// otherwise a fixed-width field (aligned first if body.Align is set).
func (e *Encoder) EncodeUint(body *scope.IntBody, v uint64) {
	if body.Align > 0 {
		e.w.Align(uint(body.Align))
	}
	if body.Bits == 0 {
		e.w.WriteUVarint(v)
		return
	}
	e.w.WriteBits(v, body.Bits)
}

// EncodeInt writes a signed INT node's value.
func (e *Encoder) EncodeInt(body *scope.IntBody, v int64) {
	if body.Align > 0 {
		e.w.Align(uint(body.Align))
	}
	if body.Bits == 0 {
		e.w.WriteIVarint(v)
		return
	}
	e.w.WriteSignedBits(v, body.Bits)
}

// EncodeBigUint writes a fixed-width INT node wider than 64 bits from a
// little-endian magnitude, zero-padded/truncated to body.Bits/8 bytes.
func (e *Encoder) EncodeBigUint(body *scope.IntBody, mag []byte) {
	if body.Align > 0 {
		e.w.Align(uint(body.Align))
	}
	n := body.Bits / 8
	for i := 0; i < n; i++ {
		var b byte
		if i < len(mag) {
			b = mag[i]
		}
		e.w.WriteBits(uint64(b), 8)
	}
}

// EncodeChoiceLiteral writes a CHOICE discriminator selecting a literal
// option at idx.
func (e *Encoder) EncodeChoiceLiteral(body *scope.ChoiceBody, idx int) {
	nbits := ceilLog2(len(body.Options))
	if nbits > 0 {
		e.w.WriteBits(uint64(idx), nbits)
	}
}

// BeginChoiceSubtype writes a CHOICE discriminator selecting the
// subtype option at idx; the caller is responsible for then encoding
// that subtype's own node inline (transparent substitution, mirroring
// decodeChoice's recursive dispatch).
func (e *Encoder) BeginChoiceSubtype(body *scope.ChoiceBody, idx int) {
	nbits := ceilLog2(len(body.Options))
	if nbits > 0 {
		e.w.WriteBits(uint64(idx), nbits)
	}
}

// BeginRecord writes a RECORD node's selector (often-field bitmap plus
// seldom-field index list) and alignment padding. present must be in
// field-declaration order and consistent with each field's Category
// (always-fields are assumed present; the caller need not set them).
func (e *Encoder) BeginRecord(body *scope.RecordBody, present []bool) {
	var seldomPos []int
	oftenCount := 0
	for i, f := range body.Fields {
		switch f.Category {
		case scope.FieldOften:
			oftenCount++
		case scope.FieldSeldom:
			seldomPos = append(seldomPos, i)
		}
	}
	if oftenCount > 0 {
		var bitmap uint64
		oi := 0
		for i, f := range body.Fields {
			if f.Category == scope.FieldOften {
				if present[i] {
					bitmap |= 1 << uint(oi)
				}
				oi++
			}
		}
		e.w.WriteBits(bitmap, oftenCount)
	}
	if len(seldomPos) > 0 {
		var extra []int
		for k, i := range seldomPos {
			if present[i] {
				extra = append(extra, k)
			}
		}
		e.w.WriteVsize(len(extra))
		idxBits := ceilLog2(len(seldomPos))
		for _, k := range extra {
			if idxBits > 0 {
				e.w.WriteBits(uint64(k), idxBits)
			}
		}
	}
	if body.Align > 0 {
		e.w.Align(uint(body.Align))
	}
}

// BeginArray writes a dynamically-sized ARRAY node's dimension vsizes
// (skipped when body.Dims is already fixed) and alignment padding.
func (e *Encoder) BeginArray(body *scope.ArrayBody, dims []int) {
	if len(body.Dims) == 0 {
		for _, d := range dims {
			e.w.WriteVsize(d)
		}
	}
	if body.Align > 0 {
		e.w.Align(uint(body.Align))
	}
}
