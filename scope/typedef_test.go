package scope

import (
	"testing"

	"github.com/nrdvana/go-userp/bitio"
	"github.com/nrdvana/go-userp/bstr"
	"github.com/nrdvana/go-userp/uenv"
)

func newBitReader(t *testing.T, env *uenv.Env, w *bitio.BitWriter) *bitio.BitReader {
	t.Helper()
	src := bstr.New(env)
	raw := w.Bytes()
	if len(raw) > 0 {
		if _, err := src.AppendBytes(raw, len(raw), bstr.Contiguous); err != nil {
			t.Fatal(err)
		}
	}
	return bitio.New(env, src, nil)
}

func TestParseTypeDefInt(t *testing.T) {
	env := uenv.New()
	sc, err := New(env, nil)
	if err != nil {
		t.Fatal(err)
	}

	w := bitio.NewWriter()
	w.WriteVsize(0) // align
	w.WriteVsize(8) // bits
	w.WriteBits(0, 4) // flags: none set
	w.WriteVsize(0) // names
	w.Flush()

	id, err := sc.ParseTypeDef(newBitReader(t, env, w), TypeInt, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	entry := sc.Typetab().Entry(id)
	if entry.Class != TypeInt || entry.Int.Bits != 8 {
		t.Fatalf("entry = %+v, want Class=TypeInt Bits=8", entry)
	}
}

func TestParseTypeDefRecord(t *testing.T) {
	env := uenv.New()
	sc, err := New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	symID, err := sc.Symtab().AppendSymbol("field1")
	if err != nil {
		t.Fatal(err)
	}
	intType := sc.Typetab().AppendInt(0, 0, IntBody{Bits: 8})

	w := bitio.NewWriter()
	w.WriteVsize(0) // align
	w.WriteVsize(1) // always count
	w.WriteVsize(0) // often count
	w.WriteVsize(0) // seldom count
	w.WriteUVarint(uint64(symID) << 1)   // name symref, absolute
	w.WriteUVarint(uint64(intType) << 1) // type typeref, absolute
	w.WriteVsize(0)                      // placement: dynamic
	w.Flush()

	id, err := sc.ParseTypeDef(newBitReader(t, env, w), TypeRecord, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	entry := sc.Typetab().Entry(id)
	if entry.Class != TypeRecord || len(entry.Record.Fields) != 1 {
		t.Fatalf("entry = %+v, want one record field", entry)
	}
	f := entry.Record.Fields[0]
	if f.Name != symID || f.Type != intType || f.Category != FieldAlways || f.Placement != -1 {
		t.Fatalf("field = %+v, want Name=%d Type=%d Category=FieldAlways Placement=-1", f, symID, intType)
	}
}

func TestWriteTypeDefRoundTrip(t *testing.T) {
	env := uenv.New()
	sc, err := New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	symID, err := sc.Symtab().AppendSymbol("count")
	if err != nil {
		t.Fatal(err)
	}
	intType := sc.Typetab().AppendInt(0, 0, IntBody{Bits: 16, TwosComplement: true})
	recType := sc.Typetab().AppendRecord(0, 0, RecordBody{Fields: []RecordField{
		{Name: symID, Type: intType, Category: FieldAlways, Placement: -1},
	}})

	w := bitio.NewWriter()
	sc.WriteTypeDef(w, intType)
	w.Flush()
	gotIntID, err := sc.ParseTypeDef(newBitReader(t, env, w), TypeInt, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	gotInt := sc.Typetab().Entry(gotIntID)
	if gotInt.Int.Bits != 16 || !gotInt.Int.TwosComplement {
		t.Fatalf("re-parsed int = %+v, want Bits=16 TwosComplement=true", gotInt.Int)
	}

	w2 := bitio.NewWriter()
	sc.WriteTypeDef(w2, recType)
	w2.Flush()
	gotRecID, err := sc.ParseTypeDef(newBitReader(t, env, w2), TypeRecord, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	gotRec := sc.Typetab().Entry(gotRecID)
	if len(gotRec.Record.Fields) != 1 || gotRec.Record.Fields[0].Name != symID || gotRec.Record.Fields[0].Type != intType {
		t.Fatalf("re-parsed record = %+v", gotRec.Record)
	}
}

func TestParseTypeDefRollsBackOnFailure(t *testing.T) {
	env := uenv.New()
	sc, err := New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	markBefore := sc.Typetab().Count()

	w := bitio.NewWriter()
	w.WriteVsize(0) // align
	w.WriteVsize(1) // always count
	w.WriteVsize(0) // often count
	w.WriteVsize(0) // seldom count
	// Truncated: no name/type/placement follow, so the read underruns.
	w.Flush()

	if _, err := sc.ParseTypeDef(newBitReader(t, env, w), TypeRecord, 0, 0); err == nil {
		t.Fatal("expected an error from a truncated record definition")
	}
	if sc.Typetab().Count() != markBefore {
		t.Fatalf("type table count = %d after rollback, want %d", sc.Typetab().Count(), markBefore)
	}
}
