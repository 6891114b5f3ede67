package page

import "github.com/dolthub/maphash"

// runIndex maps the base address of every run the allocator tracks, used
// or free, to the slotRef holding its descriptor, giving Free O(1) lookup
// instead of a linear scan of the used collection.
//
// It is a deliberately de-generalized specialization of a swiss-table hash
// map: same hash-then-probe shape, but a fixed uintptr key, no generics, and
// no SIMD-style group metadata, since this table only ever needs to hold as
// many entries as there are tracked runs.
type runIndex struct {
	hash       maphash.Hasher[uintptr]
	entries    []indexEntry
	count      int
	tombstones int
}

type indexEntry struct {
	key   uintptr
	value *slotRef
	state int8
}

const (
	slotFree int8 = iota
	slotTombstone
	slotUsed
)

func newRunIndex() *runIndex {
	idx := &runIndex{hash: maphash.NewHasher[uintptr]()}
	idx.entries = make([]indexEntry, 16)

	return idx
}

// Get returns the slotRef registered for key, if any.
func (idx *runIndex) Get(key uintptr) (*slotRef, bool) {
	i := idx.find(key)
	if idx.entries[i].state == slotUsed {
		return idx.entries[i].value, true
	}

	return nil, false
}

// Put registers value for key, overwriting any existing entry.
func (idx *runIndex) Put(key uintptr, value *slotRef) {
	// Grow on the occupancy of used-or-tombstoned slots, not just live
	// entries: a Put/Delete cycle on the same key otherwise leaves count
	// oscillating near zero while tombstones silently consume the table.
	if (idx.count+idx.tombstones+1)*4 >= len(idx.entries)*3 {
		idx.grow()
	}

	i := idx.find(key)

	switch idx.entries[i].state {
	case slotFree:
		idx.count++
	case slotTombstone:
		idx.count++
		idx.tombstones--
	}

	idx.entries[i] = indexEntry{key: key, value: value, state: slotUsed}
}

// Delete removes the entry for key, if any.
func (idx *runIndex) Delete(key uintptr) {
	i := idx.find(key)
	if idx.entries[i].state == slotUsed {
		idx.entries[i] = indexEntry{state: slotTombstone}
		idx.count--
		idx.tombstones++
	}
}

// find returns the index key currently occupies, if any. Otherwise it
// returns the first slot the probe sequence can reuse for an insert: the
// earliest tombstone it passes over, or else the terminating free slot.
// Tombstones never stop the probe -- only a matching key or a free slot
// does -- so a deleted-then-reinserted key is still found past them.
func (idx *runIndex) find(key uintptr) int {
	mask := uint64(len(idx.entries) - 1)
	i := idx.hash.Hash(key) & mask
	reusable := -1

	for {
		switch idx.entries[i].state {
		case slotFree:
			if reusable >= 0 {
				return reusable
			}

			return int(i)
		case slotTombstone:
			if reusable < 0 {
				reusable = int(i)
			}
		case slotUsed:
			if idx.entries[i].key == key {
				return int(i)
			}
		}

		i = (i + 1) & mask
	}
}

func (idx *runIndex) grow() {
	old := idx.entries
	idx.entries = make([]indexEntry, len(old)*2)
	idx.count = 0
	idx.tombstones = 0

	for _, e := range old {
		if e.state == slotUsed {
			idx.Put(e.key, e.value)
		}
	}
}
