// SPSC descriptor rings shared with the kernel AF_XDP driver.
//
// All four AF_XDP rings have the same shape: a power-of-two slot array plus a
// producer and a consumer index living in memory mapped from the socket. One
// side is the kernel, the other is this process. The fill and tx rings are
// produced here and consumed by the kernel; the rx and completion rings are
// the reverse.
//
// Index words are accessed with sync/atomic. Go atomics are sequentially
// consistent, which subsumes the required pairing: the producer's index store
// publishes its slot writes (release), and the consumer's index load makes
// those slot writes visible before it reads them (acquire).
package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Map locates one ring inside a shared memory mapping. Producer, Consumer and
// Flags point at the kernel-maintained control words; Slots is the first slot.
type Map struct {
	Producer *uint32
	Consumer *uint32
	Flags    *uint32
	Slots    unsafe.Pointer
	Size     uint32
}

func (m Map) check() error {
	if m.Size == 0 || m.Size&(m.Size-1) != 0 {
		return fmt.Errorf("ring: size %d is not a nonzero power of two", m.Size)
	}
	if m.Producer == nil || m.Consumer == nil || m.Slots == nil {
		return fmt.Errorf("ring: incomplete ring mapping")
	}
	return nil
}

// Producer is the userspace side of a user→kernel ring (fill, tx).
// At most one goroutine may use a Producer.
type Producer[T any] struct {
	mem        Map
	mask       uint32
	cachedProd uint32 // includes reserved-but-unsubmitted slots
	cachedCons uint32 // consumer index + Size, refreshed lazily
}

// NewProducer wraps a ring mapping as the producing side.
func NewProducer[T any](m Map) (*Producer[T], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	p := &Producer[T]{mem: m, mask: m.Size - 1}
	p.cachedProd = atomic.LoadUint32(m.Producer)
	p.cachedCons = atomic.LoadUint32(m.Consumer) + m.Size
	return p, nil
}

// FreeSlots returns how many slots can currently be reserved.
func (p *Producer[T]) FreeSlots() uint32 {
	p.cachedCons = atomic.LoadUint32(p.mem.Consumer) + p.mem.Size
	return p.cachedCons - p.cachedProd
}

// Reserve grants up to n slots for writing and returns the index of the
// first. The grant may be partial. Reserved slots must be written through
// Slot and then published with Submit.
func (p *Producer[T]) Reserve(n uint32) (granted, idx uint32) {
	free := p.cachedCons - p.cachedProd
	if free < n {
		free = p.FreeSlots()
	}
	granted = min(n, free)
	idx = p.cachedProd
	p.cachedProd += granted
	return granted, idx
}

// Slot returns the slot at idx. idx must come from the current reservation.
func (p *Producer[T]) Slot(idx uint32) *T {
	var zero T
	return (*T)(unsafe.Add(p.mem.Slots, uintptr(idx&p.mask)*unsafe.Sizeof(zero)))
}

// Submit publishes the first n reserved slots to the kernel. The atomic store
// of the producer index is what makes the slot writes visible.
func (p *Producer[T]) Submit(n uint32) {
	if n == 0 {
		return
	}
	atomic.StoreUint32(p.mem.Producer, atomic.LoadUint32(p.mem.Producer)+n)
}

// NeedsWakeup reports whether the kernel asked for a syscall notification
// before it will process new entries on this ring.
func (p *Producer[T]) NeedsWakeup() bool {
	if p.mem.Flags == nil {
		return false
	}
	return atomic.LoadUint32(p.mem.Flags)&unix.XDP_RING_NEED_WAKEUP != 0
}

// Capacity returns the ring size.
func (p *Producer[T]) Capacity() uint32 { return p.mem.Size }

// Consumer is the userspace side of a kernel→user ring (rx, completion).
// At most one goroutine may use a Consumer.
type Consumer[T any] struct {
	mem        Map
	mask       uint32
	cachedProd uint32
	cachedCons uint32 // advanced by Peek ahead of the shared consumer word
	peeked     uint32 // slots peeked but not yet released
}

// NewConsumer wraps a ring mapping as the consuming side.
func NewConsumer[T any](m Map) (*Consumer[T], error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	c := &Consumer[T]{mem: m, mask: m.Size - 1}
	c.cachedCons = atomic.LoadUint32(m.Consumer)
	c.cachedProd = atomic.LoadUint32(m.Producer)
	return c, nil
}

// Available returns how many filled slots are ready to peek.
func (c *Consumer[T]) Available() uint32 {
	c.cachedProd = atomic.LoadUint32(c.mem.Producer)
	return c.cachedProd - c.cachedCons
}

// Peek grants up to n filled slots without consuming them and returns the
// index of the first. Peeked slots stay owned by the kernel's accounting
// until Release is called.
func (c *Consumer[T]) Peek(n uint32) (avail, idx uint32) {
	ready := c.cachedProd - c.cachedCons
	if ready < n {
		ready = c.Available()
	}
	avail = min(n, ready)
	idx = c.cachedCons
	c.cachedCons += avail
	c.peeked += avail
	return avail, idx
}

// Slot returns the slot at idx. idx must come from the current peek.
func (c *Consumer[T]) Slot(idx uint32) *T {
	var zero T
	return (*T)(unsafe.Add(c.mem.Slots, uintptr(idx&c.mask)*unsafe.Sizeof(zero)))
}

// Release hands n previously peeked slots back to the kernel for reuse.
func (c *Consumer[T]) Release(n uint32) {
	if n == 0 {
		return
	}
	if n > c.peeked {
		panic(fmt.Sprintf("ring: releasing %d slots with only %d peeked", n, c.peeked))
	}
	c.peeked -= n
	atomic.StoreUint32(c.mem.Consumer, atomic.LoadUint32(c.mem.Consumer)+n)
}

// Capacity returns the ring size.
func (c *Consumer[T]) Capacity() uint32 { return c.mem.Size }
