package ring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// FromOffsets builds a Map over the mmapped ring region b, using the control
// word offsets reported by getsockopt(XDP_MMAP_OFFSETS).
func FromOffsets(b []byte, off unix.XDPRingOffset, size uint32) Map {
	return Map{
		Producer: (*uint32)(unsafe.Pointer(&b[off.Producer])),
		Consumer: (*uint32)(unsafe.Pointer(&b[off.Consumer])),
		Flags:    (*uint32)(unsafe.Pointer(&b[off.Flags])),
		Slots:    unsafe.Pointer(&b[off.Desc]),
		Size:     size,
	}
}

// MapLength returns how many bytes of the ring region must be mapped for a
// ring whose slot array starts at off.Desc.
func MapLength[T any](off unix.XDPRingOffset, size uint32) int {
	var zero T
	return int(off.Desc + uint64(size)*uint64(unsafe.Sizeof(zero)))
}

// Alloc builds a heap-backed ring of the given size. It carries the same
// semantics as a kernel mapping and exists so the ring discipline can be
// exercised without an AF_XDP socket.
func Alloc[T any](size uint32) Map {
	words := new(struct{ producer, consumer, flags uint32 })
	slots := make([]T, size)
	return Map{
		Producer: &words.producer,
		Consumer: &words.consumer,
		Flags:    &words.flags,
		Slots:    unsafe.Pointer(unsafe.SliceData(slots)),
		Size:     size,
	}
}
