// Package vmm wraps the OS primitives for anonymous, private,
// page-granular virtual memory mapping.
//
// It is the leaf of the allocator's dependency order: pkg/page calls into
// vmm for every run it cannot satisfy from its own free list, and never
// touches syscall directly.
package vmm

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/flier/palloc/internal/debug"
)

var (
	pageSizeOnce sync.Once
	pageSize     int
)

// PageSize returns the OS page size in bytes, cached after the first call.
func PageSize() int {
	pageSizeOnce.Do(func() {
		pageSize = syscall.Getpagesize()
	})

	return pageSize
}

// Map requests pageCount fresh OS pages, anonymous and private, readable and
// writable by the calling process.
//
// The OS zeroes freshly mapped memory; callers may rely on that.
//
// Map returns an error rather than aborting on mapping failure: an
// out-of-memory condition here is a caller-recoverable event, not a
// programmer error.
func Map(pageCount int) (uintptr, error) {
	debug.Assert(pageCount > 0, "pageCount must be positive, got %d", pageCount)

	size := pageCount * PageSize()

	data, err := syscall.Mmap(-1, 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANONYMOUS)
	if err != nil {
		return 0, fmt.Errorf("vmm: mmap %d bytes: %w", size, err)
	}

	return addrOf(data), nil
}

// Unmap releases pageCount OS pages previously returned by Map at addr.
//
// Failure to unmap is a programmer-error condition (a bad address or page
// count), not a resource-exhaustion one, and is therefore fatal.
func Unmap(addr uintptr, pageCount int) {
	debug.Assert(pageCount > 0, "pageCount must be positive, got %d", pageCount)

	size := pageCount * PageSize()

	if err := syscall.Munmap(sliceOf(addr, size)); err != nil {
		panic(fmt.Errorf("vmm: munmap %#x (%d bytes): %w", addr, size, err))
	}
}
