// Package scopeio persists a finalized Scope's symbol and type tables
// to a byte stream, optionally compressed, and reloads them into a
// fresh Scope. Whether and how a scope's tables are ever written to
// durable storage is left to the application by the core design; this
// package is one concrete, optional answer.
package scopeio

import (
	"encoding/binary"

	"github.com/nrdvana/go-userp/bitio"
	"github.com/nrdvana/go-userp/bstr"
	"github.com/nrdvana/go-userp/compr"
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/scope"
	"github.com/nrdvana/go-userp/uenv"
)

const magic = "uSc1"

// Save serializes sc's own (non-inherited) symbol and type tables into
// a single self-describing byte slice. compression names a compr
// algorithm ("s2", "zstd", "zstd-better", or "" for none).
func Save(sc *scope.Scope, compression string) ([]byte, error) {
	raw := encodeTables(sc)

	// The header records the name compr.Decompression accepts for the
	// payload ("zstd" for "zstd-better"), not the requested encoder name.
	name := compression
	var payload []byte
	if compression != "" {
		c := compr.Compression(compression)
		if c == nil {
			return nil, diag.New(diag.EDoingItWrong, "scopeio: unknown compression %q", compression)
		}
		payload = c.Compress(raw, nil)
		name = c.Name()
	} else {
		payload = raw
	}

	out := make([]byte, 0, len(magic)+1+4+4+len(payload))
	out = append(out, magic...)
	nameLen := byte(len(name))
	out = append(out, nameLen)
	out = append(out, name...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	return out, nil
}

// encodeTables writes symbol count + NUL-joined names (the layout
// Symtab.ParseBlock expects) followed by type count + each type
// definition's class tag and body (WriteTypeDef).
func encodeTables(sc *scope.Scope) []byte {
	w := bitio.NewWriter()
	st := sc.Symtab()
	w.WriteVsize(st.Count())
	for i := 1; i <= st.Count(); i++ {
		for _, b := range st.Entry(i).Name.Bytes() {
			w.WriteBits(uint64(b), 8)
		}
		w.WriteBits(0, 8)
	}
	tt := sc.Typetab()
	w.WriteVsize(tt.Count())
	for i := 1; i <= tt.Count(); i++ {
		e := tt.Entry(i)
		w.WriteBits(uint64(e.Class), 4)
		sc.WriteTypeDef(w, i)
	}
	w.Flush()
	return w.Bytes()
}

// Load parses a Save'd byte slice into sc's own tables. sc must be a
// freshly constructed, not-yet-finalized scope with the same parent
// chain (if any) that produced the saved data, since symrefs/typerefs
// embedded in type definitions resolve against sc's full stack.
func Load(env *uenv.Env, sc *scope.Scope, data []byte) error {
	if len(data) < len(magic)+5 {
		return diag.New(diag.EOverrun, "scopeio: truncated header")
	}
	if string(data[:len(magic)]) != magic {
		return diag.New(diag.EDoingItWrong, "scopeio: bad magic")
	}
	off := len(magic)
	nameLen := int(data[off])
	off++
	if len(data) < off+nameLen+4 {
		return diag.New(diag.EOverrun, "scopeio: truncated header")
	}
	compression := string(data[off : off+nameLen])
	off += nameLen
	rawLen := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	payload := data[off:]

	var raw []byte
	if compression != "" {
		d := compr.Decompression(compression)
		if d == nil {
			return diag.New(diag.EDoingItWrong, "scopeio: unknown compression %q", compression)
		}
		raw = make([]byte, rawLen)
		if err := d.Decompress(payload, raw); err != nil {
			return diag.Wrap(diag.EOverrun, err, "scopeio: decompress failed")
		}
	} else {
		raw = payload
	}

	return decodeTables(env, sc, raw)
}

func decodeTables(env *uenv.Env, sc *scope.Scope, raw []byte) error {
	src := bstr.New(env)
	if len(raw) > 0 {
		if _, err := src.AppendBytes(raw, len(raw), bstr.Contiguous); err != nil {
			return err
		}
	}
	br := bitio.New(env, src, nil)

	symCount, err := br.ReadVsize()
	if err != nil {
		return err
	}
	if symCount > 0 {
		names := bstr.New(env)
		terminators := 0
		for terminators < symCount {
			b, err := br.ReadBits(8)
			if err != nil {
				return err
			}
			if _, err := names.AppendBytes([]byte{byte(b)}, 1, 0); err != nil {
				return err
			}
			if b == 0 {
				terminators++
			}
		}
		if err := sc.Symtab().ParseBlock(names, symCount); err != nil {
			return err
		}
	}

	typeCount, err := br.ReadVsize()
	if err != nil {
		return err
	}
	for i := 0; i < typeCount; i++ {
		class, err := br.ReadBits(4)
		if err != nil {
			return err
		}
		if _, err := sc.ParseTypeDef(br, scope.TypeClass(class), 0, 0); err != nil {
			return err
		}
	}
	return nil
}
