package scopeio

import (
	"testing"

	"github.com/nrdvana/go-userp/scope"
	"github.com/nrdvana/go-userp/uenv"
)

func buildScope(t *testing.T) (*uenv.Env, *scope.Scope, int, int) {
	t.Helper()
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	symID, err := sc.Symtab().AppendSymbol("count")
	if err != nil {
		t.Fatal(err)
	}
	intType := sc.Typetab().AppendInt(0, 0, scope.IntBody{Bits: 16, TwosComplement: true})
	recType := sc.Typetab().AppendRecord(0, 0, scope.RecordBody{Fields: []scope.RecordField{
		{Name: symID, Type: intType, Category: scope.FieldAlways, Placement: -1},
	}})
	sc.Finalize()
	return env, sc, intType, recType
}

func TestSaveLoadRoundTripUncompressed(t *testing.T) {
	env, sc, intType, recType := buildScope(t)

	data, err := Save(sc, "")
	if err != nil {
		t.Fatal(err)
	}

	sc2, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Load(env, sc2, data); err != nil {
		t.Fatal(err)
	}

	if sc2.Symtab().Count() != 1 {
		t.Fatalf("symbol count = %d, want 1", sc2.Symtab().Count())
	}
	if string(sc2.Symtab().Entry(1).Name.Bytes()) != "count" {
		t.Fatalf("symbol name = %q, want %q", sc2.Symtab().Entry(1).Name.Bytes(), "count")
	}
	if sc2.Typetab().Count() != sc.Typetab().Count() {
		t.Fatalf("type count = %d, want %d", sc2.Typetab().Count(), sc.Typetab().Count())
	}
	gotInt := sc2.Typetab().Entry(intType)
	if gotInt.Class != scope.TypeInt || gotInt.Int.Bits != 16 || !gotInt.Int.TwosComplement {
		t.Fatalf("re-loaded int = %+v", gotInt)
	}
	gotRec := sc2.Typetab().Entry(recType)
	if gotRec.Class != scope.TypeRecord || len(gotRec.Record.Fields) != 1 {
		t.Fatalf("re-loaded record = %+v", gotRec)
	}
	f := gotRec.Record.Fields[0]
	if f.Name != 1 || f.Type != intType || f.Category != scope.FieldAlways {
		t.Fatalf("re-loaded field = %+v", f)
	}
}

func TestSaveLoadRoundTripCompressed(t *testing.T) {
	for _, algo := range []string{"s2", "zstd"} {
		t.Run(algo, func(t *testing.T) {
			env, sc, intType, _ := buildScope(t)

			data, err := Save(sc, algo)
			if err != nil {
				t.Fatal(err)
			}

			sc2, err := scope.New(env, nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := Load(env, sc2, data); err != nil {
				t.Fatal(err)
			}
			gotInt := sc2.Typetab().Entry(intType)
			if gotInt.Int.Bits != 16 {
				t.Fatalf("re-loaded int bits = %d, want 16", gotInt.Int.Bits)
			}
		})
	}
}

func TestLoadRejectsUnknownCompression(t *testing.T) {
	env, sc, _, _ := buildScope(t)
	data, err := Save(sc, "")
	if err != nil {
		t.Fatal(err)
	}
	// Splice in a bogus 3-byte algorithm name ahead of the raw-length
	// field and payload Save already produced.
	header := append([]byte(magic), 3)
	header = append(header, "bad"...)
	rest := data[len(magic)+1:] // rawLen(4) + payload, unchanged
	bad := append(header, rest...)

	sc2, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Load(env, sc2, bad); err == nil {
		t.Fatal("expected an error for an unrecognized compression name")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	env, sc, _, _ := buildScope(t)
	data, err := Save(sc, "")
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'x'

	sc2, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := Load(env, sc2, data); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}
