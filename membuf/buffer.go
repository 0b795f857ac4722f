// Package membuf implements the Write Buffer from spec.md §4.3/§2: a
// plain append-only key/value store, sorted only when a compaction
// finalizes it. The teacher's equivalent (lsmT/memtable.go) backs every
// write with a skiplist and a WAL so individual writes stay ordered and
// durable across a crash; spec.md explicitly drops both (no crash
// recovery of in-flight epochs, sort-on-finalize rather than sort-on-
// insert), so this keeps only the plain accumulate-then-sort half of that
// file and none of its skiplist/WAL machinery.
package membuf

import "sort"

// Entry is one buffered (key, value) pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// Buffer accumulates entries in arrival order. It is not safe for
// concurrent use; callers (the Directory Logger) serialize access under
// their own mutex.
type Buffer struct {
	entries []Entry
	bytes   int
}

// Add appends one entry, copying key and value so the caller's slices may
// be reused.
func (b *Buffer) Add(key, value []byte) {
	e := Entry{
		Key:   append([]byte{}, key...),
		Value: append([]byte{}, value...),
	}
	b.entries = append(b.entries, e)
	b.bytes += len(e.Key) + len(e.Value)
}

// Len reports the number of buffered entries.
func (b *Buffer) Len() int { return len(b.entries) }

// Bytes reports the total key+value byte count buffered so far, used by
// the Directory Logger to decide when the active buffer is full
// (spec.md §4.5).
func (b *Buffer) Bytes() int { return b.bytes }

// Entries returns the buffered entries in their current order. The
// returned slice aliases the buffer's internal storage and must not be
// retained past the next Add/Reset.
func (b *Buffer) Entries() []Entry { return b.entries }

// Sort orders entries by key ascending, stably so that equal keys retain
// their arrival order (needed for mode=multimap's "within epoch insertion
// order" guarantee, spec.md §4.5 step 2/§8).
func (b *Buffer) Sort() {
	sort.SliceStable(b.entries, func(i, j int) bool {
		return compareBytes(b.entries[i].Key, b.entries[j].Key) < 0
	})
}

// IsSorted reports whether entries are already in non-decreasing key
// order, for the skip_sort option's "assert input is already sorted"
// contract (spec.md §4.5 step 1).
func (b *Buffer) IsSorted() bool {
	for i := 1; i < len(b.entries); i++ {
		if compareBytes(b.entries[i].Key, b.entries[i-1].Key) < 0 {
			return false
		}
	}
	return true
}

// Reset empties the buffer for reuse as the next active or immutable
// slot.
func (b *Buffer) Reset() {
	b.entries = b.entries[:0]
	b.bytes = 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
