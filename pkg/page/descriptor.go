package page

import "container/list"

// runDescriptor records one run of contiguous pages: its base address and
// length. addr == 0 marks an unoccupied slot; no live mmap result is ever
// page 0, so it is safe as a sentinel.
type runDescriptor struct {
	addr  uintptr
	pages uint32
}

func (d runDescriptor) occupied() bool { return d.addr != 0 }

// slotRef locates one descriptor slot inside its owning metadata page.
//
// It is the Value held by exactly one container/list.Element -- in the
// free collection, the used collection, or neither (an unoccupied slot
// has no slotRef at all) -- which is how this port keeps list membership
// bookkeeping on the Go heap instead of inside the raw, GC-unscanned page
// bytes the descriptor itself lives in.
type slotRef struct {
	page  *metadataPage
	index int
	elem  *list.Element
}

func (s *slotRef) get() runDescriptor  { return s.page.slot(s.index) }
func (s *slotRef) set(d runDescriptor) { s.page.setSlot(s.index, d) }
