package scope

// hashtree is the by-name lookup index over a Symtab's entries. It is
// deliberately lazy: appending symbols to a Symtab never touches the
// index; a lookup first "catches up" by inserting every entry appended
// since the last lookup (tracked by processed), then probes.
//
// The C source auto-scales bucket/node element width between 8, 16 and
// 32 bits and stores collision groups as an index-based red-black tree
// to avoid pointer-chasing reallocation. Go's growable slices already
// give that property natively, so this port collapses both mechanisms
// to a plain slice-of-slices bucket table: each bucket holds the ids of
// every entry whose hash maps to it, scanned linearly (collisions under
// a keyed hash are expected short, so a linear scan costs nothing in
// practice and needs no rebalancing).
type hashtree struct {
	k0, k1    uint64
	buckets   [][]int32
	processed int
}

const minBucketCount = 0x200

func newHashtree(k0, k1 uint64) *hashtree {
	return &hashtree{k0: k0, k1: k1, buckets: make([][]int32, minBucketCount+1)}
}

// nextOddBucketCount rounds n up to an odd number >= minBucketCount, for
// better distribution against a power-of-two-biased hash.
func nextOddBucketCount(n int) int {
	if n < minBucketCount {
		n = minBucketCount
	}
	if n%2 == 0 {
		n++
	}
	return n
}

// catchUp inserts every entry in entries[processed+1:] into the index,
// reshaping first if the projected load factor would exceed 50%.
func (h *hashtree) catchUp(entries []SymbolEntry) {
	target := len(entries) - 1 // entries[0] is the reserved NUL symbol
	if target <= h.processed {
		return
	}
	if target+1 > len(h.buckets)/2 {
		h.rebuild(nextOddBucketCount(target*3), entries)
	}
	for id := h.processed + 1; id <= target; id++ {
		h.insert(int32(id), entries[id].Hash)
	}
	h.processed = target
}

func (h *hashtree) insert(id int32, hv uint32) {
	idx := int(hv) % len(h.buckets)
	h.buckets[idx] = append(h.buckets[idx], id)
}

// rebuild rehashes every already-processed id into a fresh, larger
// bucket table.
func (h *hashtree) rebuild(bucketCount int, entries []SymbolEntry) {
	old := h.buckets
	h.buckets = make([][]int32, bucketCount)
	for _, chain := range old {
		for _, id := range chain {
			h.insert(id, entries[id].Hash)
		}
	}
}

// lookup returns the id of the entry named name, catching up any
// pending insertions first. A lookup that finds nothing never mutates
// the table beyond catch-up (which is itself idempotent once current).
func (h *hashtree) lookup(entries []SymbolEntry, name string) (int, bool) {
	h.catchUp(entries)
	target := hash32(h.k0, h.k1, []byte(name))
	idx := int(target) % len(h.buckets)
	for _, id := range h.buckets[idx] {
		e := &entries[id]
		if e.Hash == target && string(e.Name.Bytes()) == name {
			return int(id), true
		}
	}
	return 0, false
}
