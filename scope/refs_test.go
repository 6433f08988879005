package scope

import (
	"testing"

	"github.com/nrdvana/go-userp/uenv"
)

// buildChain builds a chain of n finalized scopes, each descending from
// the last, appending the given number of symbols to each level before
// finalizing it.
func buildChain(t *testing.T, env *uenv.Env, symbolCounts []int) []*Scope {
	t.Helper()
	var chain []*Scope
	var parent *Scope
	for level, n := range symbolCounts {
		s, err := New(env, parent)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		for i := 0; i < n; i++ {
			if _, err := s.Symtab().AppendSymbol(symName(level, i)); err != nil {
				t.Fatalf("level %d symbol %d: %v", level, i, err)
			}
		}
		s.Finalize()
		chain = append(chain, s)
		parent = s
	}
	return chain
}

func symName(level, i int) string {
	return string(rune('A'+level)) + string(rune('a'+i))
}

func TestResolveSymRefTopOfStack(t *testing.T) {
	env := uenv.New()
	// A 4-deep stack: 2 symbols, 1 symbol, 0 symbols, then the "current"
	// scope still under construction with its own symbol appended.
	chain := buildChain(t, env, []int{2, 1, 0})
	top, err := New(env, chain[len(chain)-1])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := top.Symtab().AppendSymbol("x"); err != nil {
		t.Fatal(err)
	}

	// selector 0b1: trailing-ones count 1 (odd) -> top of stack, offset 0
	// -> sym[1] of the top (current) scope's own table.
	got := top.ResolveSymRef(1)
	want := top.Symtab().IDOffset() + 1
	if got != want {
		t.Fatalf("ResolveSymRef(1) = %d, want %d", got, want)
	}
	wantName := string(top.Symtab().Entry(1).Name.Bytes())
	if wantName != "x" {
		t.Fatalf("resolved entry name = %q, want %q", wantName, "x")
	}
}

func TestResolveSymRefAbsolute(t *testing.T) {
	env := uenv.New()
	chain := buildChain(t, env, []int{3, 2})
	deepest := chain[len(chain)-1]
	// absolute reference: bit0 == 0, value = ref>>1. Global id 4 is the
	// first symbol of the second-level table (ids 1-3 from level 0, 4-5
	// from level 1).
	got := deepest.ResolveSymRef(4 << 1)
	if got != 4 {
		t.Fatalf("ResolveSymRef(absolute 4) = %d, want 4", got)
	}
}

func TestResolveSymRefOutOfRangeIsZero(t *testing.T) {
	env := uenv.New()
	chain := buildChain(t, env, []int{1})
	s := chain[0]
	// 0b01111: trailing-ones count 4, selecting the second table from
	// the bottom of a stack that only has one table — out of range.
	got := s.ResolveSymRef(0b01111)
	if got != 0 {
		t.Fatalf("expected 0 for out-of-range reference, got %d", got)
	}
}

func TestScopeMustBeFinalToParent(t *testing.T) {
	env := uenv.New()
	root, err := New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	// root is not finalized yet.
	if _, err := New(env, root); err == nil {
		t.Fatal("expected error nesting under a non-final scope")
	}
}

func TestScopeNestingLimitExceeded(t *testing.T) {
	env := uenv.New()
	env.Limits.MaxScopeDepth = 1
	root, err := New(env, nil)
	if err != nil {
		t.Fatal(err)
	}
	root.Finalize()
	child, err := New(env, root)
	if err != nil {
		t.Fatal(err)
	}
	child.Finalize()
	if _, err := New(env, child); err == nil {
		t.Fatal("expected ELIMIT exceeding max scope depth")
	}
}
