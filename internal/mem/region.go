// Frame area memory management for the AF_XDP umem region.
package mem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a contiguous, page-aligned, anonymous shared mapping. The kernel
// driver reads and writes it directly once it is registered as a umem, so the
// base address must stay stable for the lifetime of the region.
type Region struct {
	data  []byte
	unmap func([]byte) error
}

// New maps an anonymous shared region of the given length. With useHugePages
// the mapping is backed by huge pages, which the caller must have reserved.
func New(length int, useHugePages bool) (*Region, error) {
	if length <= 0 {
		return nil, fmt.Errorf("mem: invalid region length %d", length)
	}

	flags := unix.MAP_SHARED | unix.MAP_ANONYMOUS
	if useHugePages {
		flags |= unix.MAP_HUGETLB
	}

	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mem: mmap %d bytes: %w", length, err)
	}

	return &Region{data: data, unmap: unix.Munmap}, nil
}

// FromSlice wraps memory that was mapped elsewhere. unmap, if non-nil, is
// invoked by Unmap; otherwise Unmap only releases the reference.
func FromSlice(b []byte, unmap func([]byte) error) *Region {
	return &Region{data: b, unmap: unmap}
}

// Bytes returns the whole mapping.
func (r *Region) Bytes() []byte { return r.data }

// Len returns the mapping length in bytes.
func (r *Region) Len() int { return len(r.data) }

// Mapped reports whether the region is still mapped.
func (r *Region) Mapped() bool { return r.data != nil }

// BasePointer returns the start of the mapping for kernel registration.
func (r *Region) BasePointer() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(r.data))
}

// Slice returns the n bytes starting at byte offset off. Offsets come from
// ring descriptors that the kernel produced, so this only guards against
// corruption, not routine misuse.
func (r *Region) Slice(off, n uint64) []byte {
	if off+n > uint64(len(r.data)) {
		panic(fmt.Sprintf("mem: slice [%d, %d) outside region of %d bytes", off, off+n, len(r.data)))
	}
	return r.data[off : off+n : off+n]
}

// Unmap releases the mapping. It must be called exactly once, after the umem
// using the region has been destroyed. Descriptors may still reference the
// region when unmapping fails, so failure is unrecoverable.
func (r *Region) Unmap() {
	if r.data == nil {
		return
	}
	data := r.data
	r.data = nil
	if r.unmap == nil {
		return
	}
	if err := r.unmap(data); err != nil {
		panic(fmt.Sprintf("mem: munmap frame area: %v", err))
	}
}
