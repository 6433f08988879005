package bitio

import (
	"math/bits"

	"github.com/nrdvana/go-userp/diag"
)

// Bigint is the representation of a varint magnitude too large to fit
// in 64 bits: sign plus the little-endian magnitude bytes. The bytes are
// copied out of the stream as the varint is decoded; Magnitude does not
// alias the BitReader's underlying ByteString.
type Bigint struct {
	Negative  bool
	Magnitude []byte // little-endian, no sign
}

// ReadUVarint reads an unsigned vint. The selector byte's trailing run
// of 1 bits (k, counted from bit 0) picks how many further bytes extend
// the value: the selector's remaining high bits (7-k of them) hold the
// low-order value bits, and the k following bytes (little-endian) hold
// the rest, shifted left by 7-k. A selector of 0xFF (all eight bits
// set, so there's no terminating 0 bit to find k with) carries no
// value bits at all and instead chains: it's followed by 7 raw bytes
// contributing the next 56 bits, and a fresh selector byte resumes the
// scheme from there, so the encoding extends to arbitrary width.
//
// The result is returned either as a uint64 (fits) or as a Bigint
// (does not).
func (r *BitReader) ReadUVarint() (uint64, *Bigint, error) {
	cp := r.Save()
	mag, _, err := r.readVarintMagnitude(false)
	if err != nil {
		r.Restore(cp)
		return 0, nil, err
	}
	v, big := magnitudeToValue(mag)
	return v, big, nil
}

// ReadIVarint reads a signed vint: same selector/continuation scheme as
// ReadUVarint, except the terminal block (the one that ends the chain)
// gives up one more bit of its own data to the sign, placed immediately
// after the selector's run-terminating 0 bit.
func (r *BitReader) ReadIVarint() (int64, *Bigint, error) {
	cp := r.Save()
	mag, neg, err := r.readVarintMagnitude(true)
	if err != nil {
		r.Restore(cp)
		return 0, nil, err
	}
	v, big := magnitudeToValue(mag)
	if big != nil {
		big.Negative = neg
		return 0, big, nil
	}
	if neg {
		return -int64(v), nil, nil
	}
	return int64(v), nil, nil
}

// readVarintMagnitude reads the raw little-endian magnitude bytes
// shared by the unsigned and signed encodings. For the signed encoding
// the terminal selector byte's sign bit is reported in neg.
func (r *BitReader) readVarintMagnitude(signed bool) (mag []byte, neg bool, err error) {
	for {
		b, err := r.ReadBits(8)
		if err != nil {
			return nil, false, err
		}
		sel := byte(b)
		if sel == 0xFF {
			group, err := r.readRawBytes(7)
			if err != nil {
				return nil, false, err
			}
			mag = append(mag, group...)
			continue
		}

		k := bits.TrailingZeros8(^sel)
		maxK := 7
		if signed {
			maxK = 6
		}
		if k > maxK {
			return nil, false, r.diag(diag.EOverflow, "vint selector byte %#x leaves no room for a sign bit", sel)
		}
		follow, err := r.readRawBytes(k)
		if err != nil {
			return nil, false, err
		}
		followVal := leToUint64(follow)

		var dataBits int
		var termVal uint64
		if signed {
			neg = (sel>>uint(k+1))&1 != 0
			dataBits = 6 - k
			data := uint64(sel) >> uint(k+2)
			termVal = data | (followVal << uint(dataBits))
		} else {
			dataBits = 7 - k
			data := uint64(sel) >> uint(k+1)
			termVal = data | (followVal << uint(dataBits))
		}
		width := dataBits + 8*k
		mag = append(mag, leBytes(termVal, (width+7)/8)...)
		return mag, neg, nil
	}
}

// readRawBytes reads n bytes verbatim, least-significant first.
func (r *BitReader) readRawBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		buf[i] = byte(b)
	}
	return buf, nil
}

func leToUint64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// leBytes returns the low n bytes of v, little-endian.
func leBytes(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// magnitudeToValue trims high-order zero bytes from a little-endian
// magnitude and reports it as a uint64 if it now fits, or as a Bigint
// otherwise.
func magnitudeToValue(mag []byte) (uint64, *Bigint) {
	for len(mag) > 1 && mag[len(mag)-1] == 0 {
		mag = mag[:len(mag)-1]
	}
	if len(mag) <= 8 {
		return leToUint64(mag), nil
	}
	return 0, &Bigint{Magnitude: mag}
}

// ReadVsize reads a size-constrained unsigned vint that must fit in a
// host int; it shares the full unsigned decoding with ReadUVarint and
// range-checks the result afterward (vsize never accepts a Bigint).
func (r *BitReader) ReadVsize() (int, error) {
	val, big, err := r.ReadUVarint()
	if err != nil {
		return 0, err
	}
	if big != nil {
		return 0, r.diag(diag.EOverflow, "vsize value exceeds host int range")
	}
	if val > uint64(^uint(0)>>1) {
		return 0, r.diag(diag.EOverflow, "vsize value %d exceeds host int range", val)
	}
	return int(val), nil
}
