//go:build go1.22

// Package arena provides a page-backed bump allocator: cheap bump-style
// sub-page allocation with bulk release, built on top of pkg/page.
//
// Unlike a GC-backed arena, every chunk here is raw memory owned by
// pkg/page and must be returned to it explicitly -- there is no Reset,
// only Free. Allocations must not be used to store live Go pointers: the
// garbage collector does not scan memory obtained this way.
package arena

import (
	"unsafe"

	"github.com/flier/palloc/pkg/page"
	"github.com/flier/palloc/pkg/res"
	"github.com/flier/palloc/pkg/xunsafe/layout"
)

// Align is the alignment every allocation returned by Alloc is rounded up
// to.
const Align = int(unsafe.Sizeof(uintptr(0)))

// Arena is a bump allocator over chunks obtained from pkg/page.
//
// Arena is not safe for concurrent use: each arena has a single owner at
// a time. Callers needing a shared arena must synchronize externally.
type Arena struct {
	first, current *chunk
	growthBytes    int
}

// Create creates a new arena whose initial chunk and growth policy are
// both one page.
func Create() res.Result[*Arena] {
	return CreateExt(page.Size(), page.Size())
}

// CreateExt creates a new arena whose first chunk holds at least
// initialBytes, growing by at least growthBytes (each rounded up to whole
// pages) whenever the current chunk cannot satisfy an allocation.
func CreateExt(initialBytes, growthBytes int) res.Result[*Arena] {
	a := &Arena{growthBytes: growthBytes}

	c, err := a.newChunk(initialBytes)
	if err != nil {
		return res.Err[*Arena](err)
	}

	a.first = c
	a.current = c

	return res.Ok(a)
}

// Alloc returns a pointer to an uninitialized region of bytes bytes
// within the arena, aligned to Align.
//
// If the current chunk cannot fit the request, a fresh chunk of at least
// max(bytes, growthBytes) is allocated and linked in as the new current
// chunk; allocations never span two chunks. Zero-initialization is not
// guaranteed.
func (a *Arena) Alloc(bytes int) res.Result[unsafe.Pointer] {
	size := layout.RoundUp(bytes, Align)

	// One byte of trailing slack per chunk is kept, per the resolved open
	// question over the source's "- 1" fit test: an allocation exactly
	// equal to the remaining space spills into a new chunk.
	if a.current.next+uintptr(size) <= a.current.end-1 {
		p := unsafe.Pointer(a.current.next) //nolint:govet
		a.current.next += uintptr(size)

		return res.Ok(p)
	}

	c, err := a.newChunk(max(size, a.growthBytes))
	if err != nil {
		return res.Err[unsafe.Pointer](err)
	}

	c.link = a.current
	a.current = c

	p := unsafe.Pointer(c.next) //nolint:govet
	c.next += uintptr(size)

	return res.Ok(p)
}

// Free releases every chunk back to pkg/page. first, the chunk hosting
// the arena's own bookkeeping in the source this module is ported from,
// is released last.
//
// After Free returns, the arena and every address previously returned
// from it are invalid.
func (a *Arena) Free() {
	for c := a.current; c != nil && c != a.first; {
		next := c.link
		page.Free(c.base)
		c = next
	}

	page.Free(a.first.base)
}

func (a *Arena) newChunk(bytes int) (*chunk, error) {
	pages := pagesFor(bytes)

	r := page.Alloc(pages)
	if r.IsErr() {
		return nil, r.Err
	}

	base := r.Unwrap()

	return &chunk{
		base:  base,
		next:  base,
		end:   base + uintptr(pages*page.Size()),
		pages: pages,
	}, nil
}

// pagesFor rounds bytes up to whole pages.
func pagesFor(bytes int) int {
	size := page.Size()

	return (bytes + size - 1) / size
}
