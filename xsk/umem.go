package xsk

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/onager-net/onager/internal/mem"
	"github.com/onager-net/onager/internal/ring"
)

// Umem joins the frame area with the two rings that move frame ownership
// between userspace and the kernel: the fill ring hands free frames to the
// driver for ingress, the completion ring returns transmitted frames.
//
// Fill is called only by the Rx goroutine and Complete only by the Tx
// goroutine; the frame pool is the boundary between them.
type Umem struct {
	area *mem.Region
	fill *ring.Producer[uint64]
	comp *ring.Consumer[uint64]

	// Ring page mappings, unmapped on close. Empty when the rings are
	// heap-backed.
	fillPages []byte
	compPages []byte

	frameSize    uint32
	headroomSize uint32
	chunkSize    uint32
	frameCount   uint32

	ops     kernelOps
	metrics *Metrics
}

// newUmem registers the frame area with the socket and maps the fill and
// completion rings. The socket owns the registration; the Umem owns the area
// and the two ring mappings.
func newUmem(ops kernelOps, fd int, area *mem.Region, cfg *Config) (*Umem, error) {
	u := &Umem{
		area:         area,
		frameSize:    cfg.FrameSize,
		headroomSize: cfg.HeadroomSize,
		chunkSize:    cfg.chunkSize(),
		frameCount:   cfg.frameCount(),
		ops:          ops,
		metrics:      cfg.metrics(),
	}

	// Unwind partial ring mappings so a failed construction leaks nothing;
	// the caller still owns the frame area and the descriptor.
	fail := func(err error) (*Umem, error) {
		if u.fillPages != nil {
			ops.UnmapRing(u.fillPages)
		}
		if u.compPages != nil {
			ops.UnmapRing(u.compPages)
		}
		return nil, err
	}

	reg := unix.XDPUmemReg{
		Addr:     uint64(uintptr(area.BasePointer())),
		Len:      uint64(area.Len()),
		Size:     u.chunkSize,
		Headroom: cfg.HeadroomSize,
	}
	if err := ops.RegisterUmem(fd, &reg); err != nil {
		return nil, fmt.Errorf("%w: register %d byte area: %w", ErrUmem, area.Len(), err)
	}

	if err := ops.SetRingSize(fd, unix.XDP_UMEM_FILL_RING, cfg.RingSize); err != nil {
		return nil, fmt.Errorf("%w: fill ring size %d: %w", ErrRing, cfg.RingSize, err)
	}
	if err := ops.SetRingSize(fd, unix.XDP_UMEM_COMPLETION_RING, cfg.RingSize); err != nil {
		return nil, fmt.Errorf("%w: completion ring size %d: %w", ErrRing, cfg.RingSize, err)
	}

	off, err := ops.MmapOffsets(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: ring offsets: %w", ErrRing, err)
	}

	u.fillPages, err = ops.MapRing(fd, unix.XDP_UMEM_PGOFF_FILL_RING, ring.MapLength[uint64](off.Fr, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: map fill ring: %w", ErrRing, err))
	}
	u.fill, err = ring.NewProducer[uint64](ring.FromOffsets(u.fillPages, off.Fr, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRing, err))
	}

	u.compPages, err = ops.MapRing(fd, unix.XDP_UMEM_PGOFF_COMPLETION_RING, ring.MapLength[uint64](off.Cr, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: map completion ring: %w", ErrRing, err))
	}
	u.comp, err = ring.NewConsumer[uint64](ring.FromOffsets(u.compPages, off.Cr, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRing, err))
	}

	return u, nil
}

// Fill moves free frame addresses from the pool into the fill ring so the
// NIC has buffers for incoming frames. Returns how many were posted. Pool
// entries are payload starts; the kernel aligns each fill entry down to its
// frame start before use.
func (u *Umem) Fill(pool *framePool) uint32 {
	n := min(pool.Len(), u.fill.FreeSlots())
	if n == 0 {
		return 0
	}
	// TxSocket.Alloc also pops from the pool, so fewer than n addresses may
	// be available by now. A slot is reserved only once its address is in
	// hand, so a short count never leaves a reserved slot unpublished. n is
	// within the ring's free space, so each single-slot reservation succeeds.
	var posted uint32
	for posted < n {
		addr, ok := pool.Pop()
		if !ok {
			break
		}
		_, idx := u.fill.Reserve(1)
		*u.fill.Slot(idx) = addr
		posted++
	}
	u.fill.Submit(posted)
	u.metrics.FillEntries.Add(float64(posted))
	return posted
}

// Complete moves transmitted frame addresses from the completion ring back
// to the pool, bounded by the pool's free space. Returns how many were
// reclaimed.
func (u *Umem) Complete(pool *framePool) uint32 {
	n := min(pool.Free(), u.comp.Capacity())
	if n == 0 {
		return 0
	}
	avail, idx := u.comp.Peek(n)
	if avail == 0 {
		return 0
	}
	for i := uint32(0); i < avail; i++ {
		if !pool.Push(*u.comp.Slot(idx + i)) {
			// Unreachable while every frame has exactly one owner.
			u.metrics.PoolOverflow.Inc()
		}
	}
	u.comp.Release(avail)
	u.metrics.Completions.Add(float64(avail))
	return avail
}

// NeedsWakeup reports whether the kernel wants a wakeup syscall before it
// consumes new fill ring entries.
func (u *Umem) NeedsWakeup() bool { return u.fill.NeedsWakeup() }

// DataAt resolves a frame-area offset to n bytes of frame memory.
func (u *Umem) DataAt(addr, n uint64) []byte { return u.area.Slice(addr, n) }

// FrameSize returns the payload capacity of one frame.
func (u *Umem) FrameSize() uint32 { return u.frameSize }

// HeadroomSize returns the per-frame headroom.
func (u *Umem) HeadroomSize() uint32 { return u.headroomSize }

// close unmaps the fill and completion rings and then the frame area. The
// socket must already be closed so the kernel holds no references.
func (u *Umem) close() {
	if u.fillPages != nil {
		if err := u.ops.UnmapRing(u.fillPages); err != nil {
			panic(fmt.Sprintf("xsk: unmap fill ring: %v", err))
		}
		u.fillPages = nil
	}
	if u.compPages != nil {
		if err := u.ops.UnmapRing(u.compPages); err != nil {
			panic(fmt.Sprintf("xsk: unmap completion ring: %v", err))
		}
		u.compPages = nil
	}
	u.area.Unmap()
}
