package buffer

import (
	"testing"

	"github.com/nrdvana/go-userp/diag"
	"github.com/nrdvana/go-userp/uenv"
	"github.com/nrdvana/go-userp/userptest"
)

func TestNewOwnedRefcountIsOne(t *testing.T) {
	env := uenv.New()
	b, err := New(env, nil, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.Refcnt() != 1 {
		t.Fatalf("refcnt = %d, want 1", b.Refcnt())
	}
	if b.AllocLen() < 4 {
		t.Fatalf("allocLen = %d, want >= 4", b.AllocLen())
	}
}

func TestExternalRefcountIsZero(t *testing.T) {
	b := NewExternal([]byte("hello"))
	if b.Refcnt() != 0 {
		t.Fatalf("refcnt = %d, want 0", b.Refcnt())
	}
	if !b.Grab() {
		t.Fatal("grab on external buffer should be a no-op success")
	}
	if err := b.Drop(); err != nil {
		t.Fatal(err)
	}
	if b.Refcnt() != 0 {
		t.Fatalf("external refcnt should stay 0, got %d", b.Refcnt())
	}
}

func TestGrabDropLifecycle(t *testing.T) {
	env := uenv.New()
	b, err := New(env, nil, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Grab() {
		t.Fatal("grab failed")
	}
	if b.Refcnt() != 2 {
		t.Fatalf("refcnt = %d, want 2", b.Refcnt())
	}
	if err := b.Drop(); err != nil {
		t.Fatal(err)
	}
	if b.Refcnt() != 1 {
		t.Fatalf("refcnt = %d, want 1", b.Refcnt())
	}
	if err := b.Drop(); err != nil {
		t.Fatal(err)
	}
	if b.Refcnt() != 0 {
		t.Fatalf("refcnt = %d, want 0 after final drop", b.Refcnt())
	}
	if b.Bytes() != nil {
		t.Fatalf("data should be released after final drop")
	}
}

func TestNewSurfacesAllocatorFailure(t *testing.T) {
	env := uenv.New()
	env.Alloc = &userptest.FailingAllocator{FailAt: 1}

	_, err := New(env, nil, 4, 0)
	if err == nil {
		t.Fatal("expected an error when the allocator refuses the request")
	}
	derr, ok := err.(*diag.Error)
	if !ok || derr.Code != diag.EAlloc {
		t.Fatalf("err = %v, want a *diag.Error with code EAlloc", err)
	}
}

func TestAppendableRequiresSoleOwner(t *testing.T) {
	env := uenv.New()
	b, err := New(env, nil, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Appendable(0) {
		t.Fatal("sole-owner buffer should be appendable for a zero-byte extension")
	}
	b.Grab()
	if b.Appendable(0) {
		t.Fatal("shared buffer must not be appendable")
	}
}
