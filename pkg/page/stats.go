package page

import "sync/atomic"

// Counters is a snapshot of the allocator's monotonic instrumentation
// counters. It lets callers and tests observe properties like "the OS has
// observed at least one unmap" without reaching into allocator internals,
// and does not itself affect allocation or free behavior.
type Counters struct {
	Mapped               uint64
	Unmapped             uint64
	MetadataPagesCreated uint64
	MetadataPagesRetired uint64
}

var counters struct {
	mapped               atomic.Uint64
	unmapped             atomic.Uint64
	metadataPagesCreated atomic.Uint64
	metadataPagesRetired atomic.Uint64
}

// Stats returns a snapshot of the allocator's instrumentation counters.
func Stats() Counters {
	return Counters{
		Mapped:               counters.mapped.Load(),
		Unmapped:             counters.unmapped.Load(),
		MetadataPagesCreated: counters.metadataPagesCreated.Load(),
		MetadataPagesRetired: counters.metadataPagesRetired.Load(),
	}
}
