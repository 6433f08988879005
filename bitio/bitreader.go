// Package bitio implements the bit-level stream cursor (BitReader) and
// the variable-length integer codecs (vint, signed vint, vsize) built
// on top of it.
package bitio

import (
	"encoding/binary"

	"github.com/nrdvana/go-userp/bstr"
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/uenv"
)

// Reader is the optional "feed me more bytes" collaborator; it mirrors
// uenv.Reader but is kept local to avoid a dependency cycle with
// higher-level packages that also import uenv.
type Reader interface {
	Feed(needed int) (data []byte, ok bool)
}

// BitReader is a cursor over a bstr.ByteString measured in bits. It
// supports reads of 1..64 bits, power-of-two alignment, and skipping,
// transparently crossing Part boundaries and, if a Reader is attached,
// pulling in more Parts on underrun.
type BitReader struct {
	env    *uenv.Env
	str    *bstr.ByteString
	reader Reader

	partIdx   int   // index into str.Parts() of the current part
	bitPos    int   // bits already consumed within the current part
	bitsLeft  int   // bits remaining in the current part (len*8 - bitPos)
	streamBit int64 // absolute bit position from the start of the stream
}

// New wraps str with a BitReader positioned at its start.
func New(env *uenv.Env, str *bstr.ByteString, reader Reader) *BitReader {
	r := &BitReader{env: env, str: str, reader: reader}
	r.loadPart(0)
	return r
}

func (r *BitReader) loadPart(idx int) bool {
	parts := r.str.Parts()
	for idx < len(parts) && parts[idx].Len == 0 {
		idx++
	}
	if idx >= len(parts) {
		return false
	}
	r.partIdx = idx
	r.bitPos = 0
	r.bitsLeft = parts[idx].Len * 8
	return true
}

// nextBuffer advances to the next non-empty part, invoking the reader
// callback on underrun. It fails with EOVERRUN when no such part exists
// and no reader callback supplies more.
func (r *BitReader) nextBuffer() error {
	if r.loadPart(r.partIdx + 1) {
		return nil
	}
	for r.reader != nil {
		data, ok := r.reader.Feed(1)
		if !ok || len(data) == 0 {
			break
		}
		if _, err := r.str.AppendBytes(data, len(data), 0); err != nil {
			return err
		}
		if r.loadPart(r.partIdx + 1) {
			return nil
		}
	}
	return r.diag(diag.EOverrun, "no more input parts available")
}

func (r *BitReader) diag(code diag.Code, format string, args ...any) error {
	if r.env != nil {
		return r.env.Diag(code, format, args...)
	}
	return diag.New(code, format, args...)
}

// StreamBit returns the absolute bit offset of the cursor from the
// start of the stream.
func (r *BitReader) StreamBit() int64 { return r.streamBit }

// checkpoint/restore let callers implement the "any failed operation
// leaves state byte-identical" contract around a multi-step read.
type Checkpoint struct {
	partIdx   int
	bitPos    int
	bitsLeft  int
	streamBit int64
}

func (r *BitReader) Save() Checkpoint {
	return Checkpoint{r.partIdx, r.bitPos, r.bitsLeft, r.streamBit}
}

func (r *BitReader) Restore(c Checkpoint) {
	r.partIdx, r.bitPos, r.bitsLeft, r.streamBit = c.partIdx, c.bitPos, c.bitsLeft, c.streamBit
}

// SkipBits advances the cursor by n bits, walking forward through parts
// as needed.
func (r *BitReader) SkipBits(n int64) error {
	cp := r.Save()
	for n > 0 {
		if r.bitsLeft == 0 {
			if err := r.nextBuffer(); err != nil {
				r.Restore(cp)
				return err
			}
		}
		take := n
		if int64(r.bitsLeft) < take {
			take = int64(r.bitsLeft)
		}
		r.bitPos += int(take)
		r.bitsLeft -= int(take)
		r.streamBit += take
		n -= take
	}
	return nil
}

// SkipBytes is a byte-granularity convenience wrapper over SkipBits.
func (r *BitReader) SkipBytes(n int64) error { return r.SkipBits(n * 8) }

// Align advances the cursor to the next boundary at 1<<pow2 bits,
// computed relative to the whole stream, not the current part.
func (r *BitReader) Align(pow2 uint) error {
	boundary := int64(1) << pow2
	rem := r.streamBit % boundary
	if rem == 0 {
		return nil
	}
	return r.SkipBits(boundary - rem)
}

// currentPartBytes returns the byte slice of the part currently loaded.
func (r *BitReader) currentPartBytes() []byte {
	return r.str.Parts()[r.partIdx].Bytes()
}

// ReadBits reads 0 < n <= 64 bits and returns them as an unsigned
// value, little-endian over the bit stream.
func (r *BitReader) ReadBits(n int) (uint64, error) {
	if n <= 0 || n > 64 {
		return 0, r.diag(diag.EDoingItWrong, "ReadBits: n=%d out of range", n)
	}
	cp := r.Save()

	// Fast path: enough bits left in the current part, loaded with a
	// single little-endian word read, when the part has at least 8
	// bytes remaining from the current byte boundary.
	if r.bitPos%8 == 0 && r.bitsLeft >= n {
		byteOff := r.bitPos / 8
		buf := r.currentPartBytes()
		if len(buf)-byteOff >= 8 {
			word := binary.LittleEndian.Uint64(buf[byteOff : byteOff+8])
			val := word
			if n < 64 {
				val &= (uint64(1) << n) - 1
			}
			r.bitPos += n
			r.bitsLeft -= n
			r.streamBit += int64(n)
			return val, nil
		}
	}

	// General path: assemble byte-by-byte (and part-by-part), low bits
	// first.
	var val uint64
	var got int
	for got < n {
		if r.bitsLeft == 0 {
			if err := r.nextBuffer(); err != nil {
				r.Restore(cp)
				return 0, err
			}
		}
		buf := r.currentPartBytes()
		byteOff := r.bitPos / 8
		bitOff := uint(r.bitPos % 8)
		avail := 8 - int(bitOff)
		take := n - got
		if take > avail {
			take = avail
		}
		if int64(take) > int64(r.bitsLeft) {
			take = r.bitsLeft
		}
		chunk := (uint64(buf[byteOff]) >> bitOff) & ((uint64(1) << take) - 1)
		val |= chunk << got
		got += take
		r.bitPos += take
		r.bitsLeft -= take
		r.streamBit += int64(take)
	}
	return val, nil
}

// ReadSignedBits reads n bits and sign-extends from bit n-1.
func (r *BitReader) ReadSignedBits(n int) (int64, error) {
	u, err := r.ReadBits(n)
	if err != nil {
		return 0, err
	}
	if n < 64 && u&(uint64(1)<<(n-1)) != 0 {
		u |= ^uint64(0) << n
	}
	return int64(u), nil
}

// AtEnd reports whether the cursor has reached the end of available
// input with no outstanding read, without mutating cursor state.
func (r *BitReader) AtEnd() bool {
	if r.bitsLeft > 0 {
		return false
	}
	for _, p := range r.str.Parts()[r.partIdx+1:] {
		if p.Len > 0 {
			return false
		}
	}
	return true
}
