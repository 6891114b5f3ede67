package vmm

import "unsafe"

// addrOf returns the base address of a mapping returned by syscall.Mmap.
func addrOf(data []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(data)))
}

// sliceOf reconstructs the []byte view syscall.Munmap expects from a base
// address and length, mirroring the reverse of addrOf.
func sliceOf(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
