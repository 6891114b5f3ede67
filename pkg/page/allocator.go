// Package page implements the page allocator: a process-wide singleton
// that vends and reclaims runs of contiguous OS pages, bootstrapping its
// own bookkeeping metadata on pages it allocates from itself.
package page

import (
	"container/list"
	"fmt"
	"sync"
	"unsafe"

	"github.com/flier/palloc/internal/debug"
	"github.com/flier/palloc/internal/vmm"
	"github.com/flier/palloc/pkg/res"
)

// Size returns the OS page size in bytes, cached on first call.
func Size() int { return vmm.PageSize() }

type allocator struct {
	mu sync.Mutex

	metadataPages *list.List // of *metadataPage
	free          *list.List // of *slotRef
	used          *list.List // of *slotRef
	index         *runIndex
	freePageTotal int
}

var (
	globalOnce sync.Once
	global     allocator
)

func theAllocator() *allocator {
	globalOnce.Do(func() {
		global.metadataPages = list.New()
		global.free = list.New()
		global.used = list.New()
		global.index = newRunIndex()
	})

	return &global
}

// ensureStatic inserts the statically-reserved metadata page on the first
// call into this allocator.
func (a *allocator) ensureStatic() {
	if a.metadataPages.Len() == 0 {
		p := newStaticMetadataPage()
		p.elem = a.metadataPages.PushBack(p)
	}
}

// Alloc acquires a page-aligned, contiguous run of at least pageCount
// pages, readable and writable by the calling process.
//
// A non-positive pageCount is an invalid argument and leaves allocator
// state unchanged.
func Alloc(pageCount int) res.Result[uintptr] {
	if pageCount <= 0 {
		return res.Err[uintptr](ErrInvalidArgument)
	}

	a := theAllocator()

	a.mu.Lock()
	defer a.mu.Unlock()

	addr, err := a.allocLocked(pageCount)
	if err != nil {
		return res.Err[uintptr](err)
	}

	return res.Ok(addr)
}

// allocLocked finds or creates a free descriptor slot, then finds or maps a
// run to fill it; a.mu must already be held.
func (a *allocator) allocLocked(pageCount int) (uintptr, error) {
	a.ensureStatic()

	spare, err := a.findOrCreateFreeSlot()
	if err != nil {
		return 0, err
	}

	addr, err := a.findRun(pageCount, spare)
	if err != nil {
		return 0, err
	}

	// The metadata page that provided spare was examined or written this
	// round either way, so it counts as recently used.
	spare.page.secondChance = false

	return addr, nil
}

// findOrCreateFreeSlot locates a free descriptor slot across existing
// metadata pages, or creates a new metadata page and reserves its first
// slot.
func (a *allocator) findOrCreateFreeSlot() (*slotRef, error) {
	for e := a.metadataPages.Front(); e != nil; e = e.Next() {
		mp, _ := e.Value.(*metadataPage)
		if i := mp.freeSlot(); i >= 0 {
			return &slotRef{page: mp, index: i}, nil
		}
	}

	mp := &metadataPage{capacity: (Size() - headerSize) / descriptorSize}

	// mp's own slot 1 is reserved as an extra descriptor out-parameter: if
	// obtaining a host page for mp itself requires splitting an oversized
	// free run, the leftover is written there instead of recursing back
	// into this search.
	extra := &slotRef{page: mp, index: 1}

	addr, err := a.findHostPage(extra)
	if err != nil {
		return nil, err
	}

	mp.base = addr
	mp.elem = a.metadataPages.PushBack(mp)
	counters.metadataPagesCreated.Add(1)

	return &slotRef{page: mp, index: 0}, nil
}

// findHostPage obtains one page of memory for a new metadata page via the
// same free-run-then-map search findRun performs, but without creating a
// used-descriptor entry for the page itself: metadata pages are tracked
// solely by their membership in the metadata-page collection, not as
// ordinary runs.
func (a *allocator) findHostPage(extra *slotRef) (uintptr, error) {
	if e := a.free.Front(); e != nil {
		ref, _ := e.Value.(*slotRef)
		d := ref.get()

		a.free.Remove(e)
		a.index.Delete(d.addr)
		a.freePageTotal -= int(d.pages)

		if d.pages > 1 {
			leftover := runDescriptor{
				addr:  d.addr + uintptr(Size()),
				pages: d.pages - 1,
			}

			extra.page.base = d.addr
			extra.set(leftover)
			extra.elem = a.free.PushBack(extra)
			a.index.Put(leftover.addr, extra)
			a.freePageTotal += int(leftover.pages)
		}

		// ref's old slot reverts to unoccupied: the page it used to
		// describe is now mp itself, tracked outside the descriptor
		// machinery entirely.
		ref.page.setSlot(ref.index, runDescriptor{})

		return d.addr, nil
	}

	addr, err := vmm.Map(1)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	counters.mapped.Add(1)

	return addr, nil
}

// findRun locates a free run of at least pageCount pages, splitting an
// oversized one or mapping a fresh run, and records the result as used.
// spare is the scratch slot found or created
// by findOrCreateFreeSlot; it is consumed only when a new descriptor must
// be written -- a split leftover, or a freshly mapped run's own used
// entry -- and is left untouched on an exact-fit match.
func (a *allocator) findRun(pageCount int, spare *slotRef) (uintptr, error) {
	for e := a.free.Front(); e != nil; e = e.Next() {
		ref, _ := e.Value.(*slotRef)
		d := ref.get()

		if int(d.pages) < pageCount {
			continue
		}

		a.free.Remove(e)
		a.index.Delete(d.addr)
		a.freePageTotal -= int(d.pages)

		if int(d.pages) > pageCount {
			leftover := runDescriptor{
				addr:  d.addr + uintptr(pageCount)*uintptr(Size()),
				pages: d.pages - uint32(pageCount),
			}

			spare.set(leftover)
			spare.elem = a.free.PushBack(spare)
			a.index.Put(leftover.addr, spare)
			a.freePageTotal += int(leftover.pages)

			ref.set(runDescriptor{addr: d.addr, pages: uint32(pageCount)})
		}

		ref.elem = a.used.PushBack(ref)
		a.index.Put(d.addr, ref)

		return d.addr, nil
	}

	addr, err := vmm.Map(pageCount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	counters.mapped.Add(uint64(pageCount))

	spare.set(runDescriptor{addr: addr, pages: uint32(pageCount)})
	spare.elem = a.used.PushBack(spare)
	a.index.Put(addr, spare)

	return addr, nil
}

// Free releases a run previously returned by Alloc.
//
// addr may be any address within the first page of the run, not only its
// exact base: the address is masked down to its containing page boundary
// before lookup, so any address in a live run's first page frees that
// run. An address that does not correspond to any live run is a silent
// no-op; this tolerance is intentional and MUST be preserved.
func Free(addr uintptr) {
	base := addr &^ uintptr(Size()-1)

	a := theAllocator()

	a.mu.Lock()

	ref, ok := a.index.Get(base)
	if !ok {
		a.mu.Unlock()

		return
	}

	d := ref.get()

	// The index also holds free runs. A hit on one is not a live run, so
	// freeing it again is a silent no-op like any other unknown address.
	n := a.used.Len()
	a.used.Remove(ref.elem)
	if a.used.Len() == n {
		a.mu.Unlock()

		return
	}

	a.index.Delete(base)

	if a.freePageTotal <= FreeListCap {
		zeroRun(d)

		ref.set(d)
		ref.elem = a.free.PushBack(ref)
		a.index.Put(base, ref)
		a.freePageTotal += int(d.pages)

		a.mu.Unlock()

		return
	}

	mp := ref.page
	ref.page.setSlot(ref.index, runDescriptor{})

	if mp.static {
		a.mu.Unlock()
		unmap(d.addr, int(d.pages))

		return
	}

	if !mp.secondChance {
		mp.secondChance = true
		a.mu.Unlock()
		unmap(d.addr, int(d.pages))

		return
	}

	empty := mp.empty()
	if empty {
		a.metadataPages.Remove(mp.elem)
	}

	a.mu.Unlock()

	unmap(d.addr, int(d.pages))

	if empty {
		unmap(mp.base, 1)
		counters.metadataPagesRetired.Add(1)
	}
}

func unmap(addr uintptr, pageCount int) {
	vmm.Unmap(addr, pageCount)
	counters.unmapped.Add(uint64(pageCount))
}

func zeroRun(d runDescriptor) {
	debug.Assert(d.occupied(), "zeroRun called on an unoccupied descriptor")

	mem := unsafe.Slice((*byte)(unsafe.Pointer(d.addr)), int(d.pages)*Size())
	clear(mem)
}
