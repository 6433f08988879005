package bstr

import (
	"bytes"
	"testing"

	"github.com/nrdvana/go-userp/uenv"
)

func TestAppendBytesContiguous(t *testing.T) {
	s := New(uenv.New())
	got, err := s.AppendBytes([]byte("hello"), 5, Contiguous)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
	if len(s.Parts()) != 1 {
		t.Fatalf("expected 1 part, got %d", len(s.Parts()))
	}
	if s.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", s.Len())
	}
}

func TestAppendBytesReusesTail(t *testing.T) {
	s := New(uenv.New())
	// 5 bytes rounds up to an 8-byte backing allocation, leaving 3
	// bytes of spare capacity for the next append to reuse in place.
	if _, err := s.AppendBytes([]byte("abcde"), 5, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendBytes([]byte("fg"), 2, 0); err != nil {
		t.Fatal(err)
	}
	if len(s.Parts()) != 1 {
		t.Fatalf("expected tail reuse to produce 1 part, got %d", len(s.Parts()))
	}
	if s.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", s.Len())
	}
	got, ok := s.Contiguous(0, 7)
	if !ok {
		t.Fatal("expected single contiguous part")
	}
	if string(got) != "abcdefg" {
		t.Fatalf("got %q", got)
	}
}

func TestSliceAcrossParts(t *testing.T) {
	s := New(uenv.New())
	if _, err := s.AppendBytes([]byte("abc"), 3, Contiguous); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendBytes([]byte("def"), 3, Contiguous); err != nil {
		t.Fatal(err)
	}
	sub, err := s.Slice(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Parts()) != 2 {
		t.Fatalf("expected slice spanning both parts, got %d parts", len(sub.Parts()))
	}
	var got []byte
	for _, p := range sub.Parts() {
		got = append(got, p.Bytes()...)
	}
	if !bytes.Equal(got, []byte("cde")) {
		t.Fatalf("got %q, want %q", got, "cde")
	}
}

func TestContiguousLookup(t *testing.T) {
	s := New(uenv.New())
	if _, err := s.AppendBytes([]byte("abc"), 3, Contiguous); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendBytes([]byte("def"), 3, Contiguous); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Contiguous(0, 3); !ok || !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("Contiguous(0,3) = %q, %v", got, ok)
	}
	if _, ok := s.Contiguous(2, 3); ok {
		t.Fatal("range spanning two parts must not report contiguous")
	}
}

func TestAppendFailureLeavesStateUnchanged(t *testing.T) {
	s := New(uenv.New())
	if _, err := s.AppendBytes([]byte("abc"), 3, Contiguous); err != nil {
		t.Fatal(err)
	}
	before := len(s.Parts())
	beforeLen := s.Len()

	failEnv := uenv.New()
	failEnv.Alloc = failingAllocator{}
	s2 := New(failEnv)
	if _, err := s2.AppendBytes([]byte("xyz"), 3, Contiguous); err == nil {
		t.Fatal("expected allocator failure to propagate")
	}
	if len(s2.Parts()) != 0 {
		t.Fatal("failed append must not add a part")
	}
	if len(s.Parts()) != before || s.Len() != beforeLen {
		t.Fatal("unrelated ByteString must be unaffected")
	}
}

type failingAllocator struct{}

func (failingAllocator) Alloc(old []byte, newSize int, flags uenv.AllocFlags) ([]byte, bool) {
	return nil, false
}
