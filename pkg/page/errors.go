package page

import "errors"

var (
	// ErrInvalidArgument is returned by Alloc for a non-positive page
	// count. It does not mutate allocator state.
	ErrInvalidArgument = errors.New("page: invalid argument")

	// ErrOutOfMemory is returned by Alloc when the OS failed to map fresh
	// pages and no free run satisfied the request.
	ErrOutOfMemory = errors.New("page: out of memory")
)

// FreeListCap bounds the pages the allocator keeps mapped but idle: Free
// retains a run while the free-page total is at most FreeListCap before
// adding it, so the total can exceed FreeListCap by the size of the last
// run retained. Runs freed once the total is above FreeListCap are
// returned to the OS.
const FreeListCap = 16
