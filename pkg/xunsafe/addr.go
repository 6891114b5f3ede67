//go:build go1.20

package xunsafe

import (
	"fmt"
	"unsafe"

	"github.com/flier/palloc/pkg/xunsafe/layout"
)

// Addr is a typed address: a uintptr that remembers the pointee type it was
// derived from, so that arithmetic on it is automatically scaled and so that
// it can be converted back to a *T without an intervening unsafe.Pointer at
// every call site.
//
// Addr exists for code that wants pointer arithmetic on memory the Go
// runtime does not manage (such as a page obtained directly from the OS)
// without resorting to bare uintptr, which carries no type information and
// is easy to mis-scale.
type Addr[T any] uintptr

// AddrOf returns the address of p.
func AddrOf[T any](p *T) Addr[T] {
	return Addr[T](unsafe.Pointer(p))
}

// EndOf returns the address one past the last element of s.
func EndOf[T any](s []T) Addr[T] {
	return AddrOf(unsafe.SliceData(s)).Add(len(s))
}

// AssertValid converts this address back to a pointer.
//
// The caller is responsible for ensuring the address actually refers to a
// live, well-aligned T; this performs no checking beyond what a raw
// unsafe.Pointer conversion would.
func (a Addr[T]) AssertValid() *T {
	return (*T)(unsafe.Pointer(uintptr(a))) //nolint:govet
}

// Add adds n, scaled by the size of T, to this address.
func (a Addr[T]) Add(n int) Addr[T] {
	return a + Addr[T](n*layout.Size[T]())
}

// ByteAdd adds n unscaled bytes to this address.
func (a Addr[T]) ByteAdd(n int) Addr[T] {
	return a + Addr[T](n)
}

// Sub returns the number of Ts (not bytes) between a and b.
func (a Addr[T]) Sub(b Addr[T]) int {
	return int(a-b) / layout.Size[T]()
}

// Padding returns the number of bytes needed to round this address up to
// align.
func (a Addr[T]) Padding(align int) int {
	return layout.Padding(int(a), align)
}

// RoundUpTo rounds this address up to a multiple of align.
func (a Addr[T]) RoundUpTo(align int) Addr[T] {
	return Addr[T](layout.RoundUp(int(a), align))
}

// SignBit returns whether the most significant bit of this address is set.
func (a Addr[T]) SignBit() bool {
	return a&(1<<(unsafe.Sizeof(a)*8-1)) != 0
}

// SignBitMask returns all-ones if SignBit is set, all-zeros otherwise.
func (a Addr[T]) SignBitMask() Addr[T] {
	if a.SignBit() {
		return ^Addr[T](0)
	}
	return 0
}

// ClearSignBit returns this address with its most significant bit cleared.
func (a Addr[T]) ClearSignBit() Addr[T] {
	return a &^ (1 << (unsafe.Sizeof(a)*8 - 1))
}

func (a Addr[T]) String() string { return fmt.Sprintf("%#x", uintptr(a)) }

// Format implements fmt.Formatter so that %x and %v both print the raw
// address, matching how a uintptr would normally print.
func (a Addr[T]) Format(s fmt.State, verb rune) {
	switch verb {
	case 'x':
		fmt.Fprintf(s, "%x", uintptr(a))
	default:
		fmt.Fprint(s, a.String())
	}
}
