package page

import (
	"container/list"
	"unsafe"

	"github.com/flier/palloc/pkg/xunsafe"
)

// StaticSlotCount is the capacity of the process-lifetime static metadata
// page.
const StaticSlotCount = 32

// staticSlots is the statically-reserved fallback metadata block: the
// idiomatic analogue of a linker-reserved BSS block in the source. It
// breaks the chicken-and-egg between "metadata lives on pages obtained
// from the page allocator" and "allocating pages requires a free
// descriptor slot" -- no page allocation is needed to seat the very first
// descriptor.
var staticSlots [StaticSlotCount]runDescriptor

// descriptorSize is the on-page footprint of one runDescriptor.
const descriptorSize = int(unsafe.Sizeof(runDescriptor{}))

// headerSize mirrors the header the source's on-page layout reserves
// ahead of the descriptor array. This port keeps a metadata page's header
// fields (capacity, secondChance, static, elem) on the Go heap in
// metadataPage itself rather than inside the raw page bytes -- storing a
// live Go pointer in memory the GC does not scan is unsound -- but still
// reserves the equivalent space so a dynamic metadata page's descriptor
// capacity matches what the source's layout would allow.
const headerSize = descriptorSize

// metadataPage is one page's worth of descriptor slots plus the
// bookkeeping needed to manage the page itself.
//
// base is the address of the first runDescriptor in the page's slot
// array: either a real OS page (dynamic pages) or staticSlots (the one
// static page).
type metadataPage struct {
	base         uintptr
	capacity     int
	secondChance bool
	static       bool
	elem         *list.Element
}

func (p *metadataPage) slots() *xunsafe.VLA[runDescriptor] {
	return (*xunsafe.VLA[runDescriptor])(unsafe.Pointer(p.base))
}

func (p *metadataPage) slot(i int) runDescriptor {
	return *p.slots().Get(i)
}

func (p *metadataPage) setSlot(i int, d runDescriptor) {
	*p.slots().Get(i) = d
}

// freeSlot returns the index of the first unoccupied slot in p, or -1 if
// p's array is full.
func (p *metadataPage) freeSlot() int {
	for i := 0; i < p.capacity; i++ {
		if !p.slot(i).occupied() {
			return i
		}
	}

	return -1
}

// empty reports whether every slot in p is unoccupied.
func (p *metadataPage) empty() bool {
	for i := 0; i < p.capacity; i++ {
		if p.slot(i).occupied() {
			return false
		}
	}

	return true
}

func newStaticMetadataPage() *metadataPage {
	return &metadataPage{
		base:     uintptr(unsafe.Pointer(&staticSlots[0])),
		capacity: StaticSlotCount,
		static:   true,
	}
}
