package xsk

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/onager-net/onager/internal/ring"
)

// RxSocket is the receive half of an AF_XDP socket. A single goroutine owns
// it; Receive is built for busy-poll loops and never blocks.
type RxSocket struct {
	inner *socketInner
	ring  *ring.Consumer[unix.XDPDesc]
	pool  *framePool
	umem  *Umem

	closeOnce sync.Once
}

// Receive appends up to cap(out)-len(out) received frames to out and returns
// how many were delivered. Zero is legal and common.
//
// Each call first replenishes the fill ring from the frame pool and, when
// the kernel asks for it, issues a zero-timeout poll as the wakeup. Excess
// frames beyond out's capacity stay in the rx ring for the next call.
func (r *RxSocket) Receive(out *[]Descriptor) int {
	space := cap(*out) - len(*out)
	if space == 0 {
		return 0
	}

	r.umem.Fill(r.pool)
	if r.umem.NeedsWakeup() {
		r.inner.ops.Poll(r.inner.fd)
	}

	n, idx := r.ring.Peek(min(uint32(space), r.ring.Capacity()))
	if n == 0 {
		return 0
	}
	for i := uint32(0); i < n; i++ {
		d := r.ring.Slot(idx + i)
		*out = append(*out, Descriptor{addr: d.Addr, length: d.Len, umem: r.umem})
	}
	r.ring.Release(n)

	r.inner.metrics.RxFrames.Add(float64(n))
	return int(n)
}

// Recycle returns a received frame to the pool without transmitting it.
// The descriptor must not be used afterwards.
func (r *RxSocket) Recycle(d Descriptor) {
	if !r.pool.Push(d.addr) {
		r.inner.metrics.PoolOverflow.Inc()
	}
}

// Stats reads the kernel's per-socket XDP statistics.
func (r *RxSocket) Stats() (unix.XDPStatistics, error) {
	return r.inner.statistics()
}

// Close releases the receive endpoint. The socket itself is destroyed once
// the transmit endpoint is closed too.
func (r *RxSocket) Close() {
	r.closeOnce.Do(r.inner.release)
}
