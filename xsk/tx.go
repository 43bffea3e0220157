package xsk

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/onager-net/onager/internal/ring"
)

// TxSocket is the transmit half of an AF_XDP socket. A single goroutine owns
// it; Send is built for busy-poll loops and never blocks.
type TxSocket struct {
	inner *socketInner
	ring  *ring.Producer[unix.XDPDesc]
	pool  *framePool
	umem  *Umem

	closeOnce sync.Once
}

// Send submits frames from the front of in to the tx ring and returns how
// many were accepted. Accepted descriptors are removed from in; ownership of
// their frames passes to the kernel until the completion ring returns them.
//
// After submitting, Send kicks the kernel when the tx ring asks for it and
// reaps completed frames back into the pool.
func (t *TxSocket) Send(in *[]Descriptor) int {
	if len(*in) == 0 {
		return 0
	}

	granted, idx := t.ring.Reserve(uint32(len(*in)))
	for i := uint32(0); i < granted; i++ {
		d := &(*in)[i]
		slot := t.ring.Slot(idx + i)
		slot.Addr = d.addr
		slot.Len = d.length
		slot.Options = 0
	}
	t.ring.Submit(granted)
	*in = (*in)[granted:]

	if granted > 0 && t.ring.NeedsWakeup() {
		t.kick()
	}

	t.umem.Complete(t.pool)

	t.inner.metrics.TxFrames.Add(float64(granted))
	return int(granted)
}

// kick notifies the kernel that the tx ring has new descriptors. EAGAIN and
// EBUSY mean the kernel is already draining the ring; anything else is
// counted and logged but does not fail the burst.
func (t *TxSocket) kick() {
	err := t.inner.ops.Kick(t.inner.fd)
	if err == nil || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EBUSY) {
		return
	}
	t.inner.metrics.KickErrors.Inc()
	t.inner.log.WithError(err).Warn("tx kick failed")
}

// Reap moves completed frame addresses back into the pool without
// submitting anything. Send reaps on its own, but once the sender goes idle
// with transmissions still in flight nothing else returns those frames;
// idle loops should keep calling Reap until it reports zero.
func (t *TxSocket) Reap() int {
	return int(t.umem.Complete(t.pool))
}

// Alloc takes a free frame from the pool for packet building. The returned
// descriptor has zero length; write the packet through Data or Payload after
// SetLen and hand it to Send. Reports false when no frame is free.
func (t *TxSocket) Alloc() (Descriptor, bool) {
	addr, ok := t.pool.Pop()
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{addr: addr, umem: t.umem}, true
}

// Release returns an allocated but unsent frame to the pool.
func (t *TxSocket) Release(d Descriptor) {
	if !t.pool.Push(d.addr) {
		t.inner.metrics.PoolOverflow.Inc()
	}
}

// Stats reads the kernel's per-socket XDP statistics.
func (t *TxSocket) Stats() (unix.XDPStatistics, error) {
	return t.inner.statistics()
}

// Close releases the transmit endpoint. The socket itself is destroyed once
// the receive endpoint is closed too.
func (t *TxSocket) Close() {
	t.closeOnce.Do(t.inner.release)
}
