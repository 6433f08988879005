// Package scope implements the symbol table, type table, hashtree
// index, and scope inheritance/reference-resolution machinery.
package scope

import (
	"bytes"
	"unicode/utf8"

	"github.com/nrdvana/go-userp/bstr"
	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/uenv"
)

// SymbolEntry is one row of a Symtab: a name window, its hash, and the
// type/canonical links described in the data model.
type SymbolEntry struct {
	Name      bstr.Part
	Hash      uint32
	TypeRef   int // nonzero if this symbol also names a type in this scope
	Canonical int // nonzero: alias pointer to the canonical entry in an imported scope
}

// Symtab is a scope's symbol vector plus its lazy by-name index. Index 0
// is the reserved NUL symbol; the first real symbol is at index 1.
type Symtab struct {
	env      *uenv.Env
	entries  []SymbolEntry
	ht       *hashtree
	idOffset int
}

// NewSymtab returns an empty Symtab bound to env.
func NewSymtab(env *uenv.Env) *Symtab {
	k0, k1 := tableSalt(env)
	return &Symtab{
		env:     env,
		entries: []SymbolEntry{{}},
		ht:      newHashtree(k0, k1),
	}
}

// tableSalt derives a table's siphash key from the env's session id, so
// tables of different envs are keyed differently; every table of one env
// gets the same key. No source of randomness is needed at table-creation
// time.
func tableSalt(env *uenv.Env) (uint64, uint64) {
	if env == nil {
		return 0x5350_4C49_5455_5250, 0x5345_5250_5350_414E
	}
	id := env.SessionID
	var k0, k1 uint64
	for i := 0; i < 8; i++ {
		k0 |= uint64(id[i]) << (8 * i)
		k1 |= uint64(id[i+8]) << (8 * i)
	}
	return k0, k1
}

// Count returns the number of real symbols (excluding the reserved NUL
// entry at index 0).
func (st *Symtab) Count() int { return len(st.entries) - 1 }

// Entry returns the entry for id, a 1-based index.
func (st *Symtab) Entry(id int) SymbolEntry { return st.entries[id] }

// IDOffset returns the id offset this table contributes when chained
// below other tables on a scope stack.
func (st *Symtab) IDOffset() int { return st.idOffset }

// SetIDOffset is called by Scope when stacking tables.
func (st *Symtab) SetIDOffset(off int) { st.idOffset = off }

func (st *Symtab) diag(code diag.Code, format string, args ...any) error {
	if st.env != nil {
		return st.env.Diag(code, format, args...)
	}
	return diag.New(code, format, args...)
}

// AppendSymbol adds a single symbol by copying name into the table's
// storage, computing its hash, and appending an entry. The hashtree
// index is not updated; LookupByName catches it up lazily.
func (st *Symtab) AppendSymbol(name string) (int, error) {
	if err := validateSymbolName([]byte(name)); err != nil {
		return 0, err
	}
	scratch := bstr.New(st.env)
	raw, err := scratch.AppendBytes([]byte(name), len(name), bstr.Contiguous)
	if err != nil {
		return 0, err
	}
	_ = raw
	hv := hash32(st.ht.k0, st.ht.k1, []byte(name))
	st.entries = append(st.entries, SymbolEntry{Name: scratch.Parts()[0], Hash: hv})
	return len(st.entries) - 1, nil
}

// ParseBlock parses count NUL-delimited UTF-8 names out of src, starting
// at src's logical offset 0, appending one entry per name. Names that
// span a Part boundary are materialized into a new contiguous buffer;
// names fully inside one Part are recorded zero-copy, grabbing a
// reference to that Part's Buffer. On any failure the table is rolled
// back to its state before the call.
func (st *Symtab) ParseBlock(src *bstr.ByteString, count int) error {
	beforeLen := len(st.entries)
	rollback := func() {
		for _, e := range st.entries[beforeLen:] {
			if e.Name.Buf != nil {
				_ = e.Name.Buf.Drop()
			}
		}
		st.entries = st.entries[:beforeLen]
	}

	parts := src.Parts()
	parsed := 0
	var frag []byte

	for pi := 0; pi < len(parts); pi++ {
		if count > 0 && parsed >= count {
			break
		}
		p := parts[pi]
		data := p.Bytes()
		start := 0
		for start <= len(data) {
			if count > 0 && parsed >= count {
				break
			}
			nulAt := bytes.IndexByte(data[start:], 0)
			if nulAt < 0 {
				frag = append(frag, data[start:]...)
				break
			}
			nameEnd := start + nulAt

			var namePart bstr.Part
			if len(frag) == 0 {
				if nameEnd == start {
					rollback()
					return st.diag(diag.ESymbol, "zero-length symbol name")
				}
				if p.Buf != nil && !p.Buf.Grab() {
					rollback()
					return st.diag(diag.EAlloc, "refcount overflow on symbol name buffer")
				}
				namePart = bstr.Part{Buf: p.Buf, Offset: p.Offset + start, Len: nameEnd - start}
			} else {
				frag = append(frag, data[start:nameEnd]...)
				if len(frag) == 0 {
					rollback()
					return st.diag(diag.ESymbol, "zero-length symbol name")
				}
				scratch := bstr.New(st.env)
				if _, err := scratch.AppendBytes(frag, len(frag), bstr.Contiguous); err != nil {
					rollback()
					return err
				}
				namePart = scratch.Parts()[0]
				frag = nil
			}

			if err := validateSymbolName(namePart.Bytes()); err != nil {
				if namePart.Buf != nil {
					namePart.Buf.Drop()
				}
				rollback()
				return err
			}
			hv := hash32(st.ht.k0, st.ht.k1, namePart.Bytes())
			st.entries = append(st.entries, SymbolEntry{Name: namePart, Hash: hv})
			parsed++
			start = nameEnd + 1
		}
	}

	if count > 0 && parsed < count {
		rollback()
		return st.diag(diag.EOverrun, "input exhausted after %d of %d symbols", parsed, count)
	}
	if len(frag) > 0 {
		rollback()
		return st.diag(diag.EOverrun, "input ends mid-symbol-name")
	}
	return nil
}

// LookupByName resolves name to its 1-based id in this table, catching
// up the hashtree index first. A miss leaves the table unmutated beyond
// that catch-up.
func (st *Symtab) LookupByName(name string) (int, bool) {
	return st.ht.lookup(st.entries, name)
}

// validateSymbolName enforces the symbol-name rules: non-empty, valid
// UTF-8 (which already rejects over-long encodings and surrogate
// halves), no control characters 0x00-0x1F, and no 0x7F.
func validateSymbolName(name []byte) error {
	if len(name) == 0 {
		return diag.New(diag.ESymbol, "zero-length symbol name")
	}
	if !utf8.Valid(name) {
		return diag.New(diag.ESymbol, "invalid UTF-8 in symbol name")
	}
	for _, b := range name {
		if b < 0x20 || b == 0x7F {
			return diag.New(diag.ESymbol, "control byte %#x in symbol name", b)
		}
	}
	return nil
}
