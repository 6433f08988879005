package decode

import (
	"testing"

	"github.com/nrdvana/go-userp/scope"
	"github.com/nrdvana/go-userp/uenv"
)

func TestRoundTripFixedWidthInt(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	body := scope.IntBody{Bits: 12}
	typeID := sc.Typetab().AppendInt(0, 0, body)
	sc.Finalize()

	enc := NewEncoder()
	enc.EncodeUint(&body, 0xABC)
	dec := newTestDecoder(t, env, sc, typeID, enc.Bytes())
	mustNext(t, dec)
	if got := dec.Current().UintVal; got != 0xABC {
		t.Fatalf("got %x, want ABC", got)
	}
}

func TestRoundTripBigFixedInt(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	body := scope.IntBody{Bits: 128}
	typeID := sc.Typetab().AppendInt(0, 0, body)
	sc.Finalize()

	mag := make([]byte, 16)
	mag[0] = 0xEF
	mag[15] = 0x01 // little-endian: top byte nonzero, a 121-bit magnitude within 128 bits
	enc := NewEncoder()
	enc.EncodeBigUint(&body, mag)
	dec := newTestDecoder(t, env, sc, typeID, enc.Bytes())
	mustNext(t, dec)
	got := dec.Current()
	if got.Flags&FlagBigint == 0 || got.Bigint == nil {
		t.Fatal("expected FlagBigint for a 128-bit INT")
	}
	if len(got.Bigint.Magnitude) != 16 {
		t.Fatalf("magnitude length = %d, want 16", len(got.Bigint.Magnitude))
	}
	if got.Bigint.Magnitude[0] != 0xEF || got.Bigint.Magnitude[15] != 0x01 {
		t.Fatalf("magnitude = %x, want EF...01", got.Bigint.Magnitude)
	}
}

func TestRoundTripSignedVarint(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	body := scope.IntBody{TwosComplement: true}
	typeID := sc.Typetab().AppendInt(0, 0, body)
	sc.Finalize()

	for _, v := range []int64{0, -1, 63, -64, 12345, -99999} {
		enc := NewEncoder()
		enc.EncodeInt(&body, v)
		dec := newTestDecoder(t, env, sc, typeID, enc.Bytes())
		mustNext(t, dec)
		if got := dec.Current().IntVal; got != v {
			t.Fatalf("round-trip %d: got %d", v, got)
		}
	}
}

func TestRoundTripSymrefAndTyperef(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sc.Symtab().AppendSymbol("greeting"); err != nil {
		t.Fatal(err)
	}
	intType := sc.Typetab().AppendInt(0, 0, scope.IntBody{Bits: 8})
	symrefType := sc.Typetab().AppendSymref(0, 0)
	typerefType := sc.Typetab().AppendTyperef(0, 0, intType)
	sc.Finalize()

	enc := NewEncoder()
	enc.EncodeSymref(1) // absolute form, symbol id 1
	dec := newTestDecoder(t, env, sc, symrefType, enc.Bytes())
	mustNext(t, dec)
	got := dec.Current()
	if got.Flags&FlagSymref == 0 || got.SymRef != 1 {
		t.Fatalf("symref decode = %+v, want SymRef=1", got)
	}

	enc2 := NewEncoder()
	enc2.EncodeTyperef(intType)
	dec2 := newTestDecoder(t, env, sc, typerefType, enc2.Bytes())
	mustNext(t, dec2)
	got2 := dec2.Current()
	if got2.Flags&FlagTyperef == 0 || got2.TypeRef != intType {
		t.Fatalf("typeref decode = %+v, want TypeRef=%d", got2, intType)
	}
}

func TestRoundTripRecordAlwaysOftenSeldom(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	intBody := scope.IntBody{Bits: 8}
	intType := sc.Typetab().AppendInt(0, 0, intBody)
	recBody := scope.RecordBody{Fields: []scope.RecordField{
		{Type: intType, Category: scope.FieldAlways},
		{Type: intType, Category: scope.FieldOften},
		{Type: intType, Category: scope.FieldSeldom},
	}}
	recType := sc.Typetab().AppendRecord(0, 0, recBody)
	sc.Finalize()

	// Often field present, seldom field absent.
	present := make([]bool, 3)
	present[1] = true
	enc := NewEncoder()
	enc.BeginRecord(&recBody, present)
	enc.EncodeUint(&intBody, 10)
	enc.EncodeUint(&intBody, 20)
	data := enc.Bytes()

	dec := newTestDecoder(t, env, sc, recType, data)
	mustNext(t, dec)
	if dec.Current().Flags&FlagContainer == 0 {
		t.Fatal("expected record node to report FlagContainer")
	}
	if err := dec.Begin(); err != nil {
		t.Fatal(err)
	}
	mustNext(t, dec)
	if got := dec.Current().UintVal; got != 10 {
		t.Fatalf("always field = %d, want 10", got)
	}
	mustNext(t, dec)
	if got := dec.Current().UintVal; got != 20 {
		t.Fatalf("often field = %d, want 20", got)
	}
	ok, err := dec.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected absent seldom field to be skipped, exhausting the record")
	}
	if err := dec.End(); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTripArrayFixedDims(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	intBody := scope.IntBody{Bits: 8}
	intType := sc.Typetab().AppendInt(0, 0, intBody)
	arrBody := scope.ArrayBody{ElemType: intType, Dims: []int{3}}
	arrType := sc.Typetab().AppendArray(0, 0, arrBody)
	sc.Finalize()

	enc := NewEncoder()
	enc.BeginArray(&arrBody, arrBody.Dims)
	for _, v := range []uint64{1, 2, 3} {
		enc.EncodeUint(&intBody, v)
	}
	dec := newTestDecoder(t, env, sc, arrType, enc.Bytes())
	mustNext(t, dec)
	info := dec.Current()
	if info.ElemCount != 3 {
		t.Fatalf("ElemCount = %d, want 3", info.ElemCount)
	}
	if err := dec.Begin(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []uint64{1, 2, 3} {
		mustNext(t, dec)
		if got := dec.Current().UintVal; got != want {
			t.Fatalf("element = %d, want %d", got, want)
		}
	}
	ok, err := dec.Next()
	if err != nil || ok {
		t.Fatal("expected array to be exhausted after 3 elements")
	}
	if err := dec.End(); err != nil {
		t.Fatal(err)
	}
}

func TestRoundTripChoiceLiteral(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	intType := sc.Typetab().AppendInt(0, 0, scope.IntBody{Bits: 8})
	choiceBody := scope.ChoiceBody{Options: []scope.ChoiceOption{
		{IsLiteral: true, Literal: 42},
		{IsLiteral: false, TypeRef: intType},
	}}
	choiceType := sc.Typetab().AppendChoice(0, 0, choiceBody)
	sc.Finalize()

	enc := NewEncoder()
	enc.EncodeChoiceLiteral(&choiceBody, 0)
	dec := newTestDecoder(t, env, sc, choiceType, enc.Bytes())
	mustNext(t, dec)
	got := dec.Current()
	if got.Flags&FlagChoiceLiteral == 0 || got.Literal != 42 {
		t.Fatalf("choice literal decode = %+v, want Literal=42", got)
	}
}

func TestRoundTripChoiceSubtypeTransparentSubstitution(t *testing.T) {
	env := uenv.New()
	sc, err := scope.New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	intBody := scope.IntBody{Bits: 8}
	intType := sc.Typetab().AppendInt(0, 0, intBody)
	choiceBody := scope.ChoiceBody{Options: []scope.ChoiceOption{
		{IsLiteral: true, Literal: 42},
		{IsLiteral: false, TypeRef: intType},
	}}
	choiceType := sc.Typetab().AppendChoice(0, 0, choiceBody)
	sc.Finalize()

	enc := NewEncoder()
	enc.BeginChoiceSubtype(&choiceBody, 1)
	enc.EncodeUint(&intBody, 99)
	dec := newTestDecoder(t, env, sc, choiceType, enc.Bytes())
	mustNext(t, dec)
	got := dec.Current()
	if got.TypeID != intType || got.UintVal != 99 {
		t.Fatalf("choice subtype decode = %+v, want TypeID=%d UintVal=99", got, intType)
	}
}
