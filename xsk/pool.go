package xsk

import "sync/atomic"

// framePool is the ledger of frame addresses currently owned by userspace
// and not sitting in any ring. The Rx goroutine drains it into the fill ring
// and the Tx goroutine refills it from the completion ring, so it must be a
// lock-free bounded queue.
//
// The implementation is a sequence-numbered MPMC ring (Vyukov): each cell
// carries a sequence word that encodes whether it is ready to write (seq ==
// head) or ready to read (seq == tail+1), and head/tail advance with CAS.
type framePool struct {
	mask  uint64
	size  uint64
	cells []poolCell

	head atomic.Uint64 // next enqueue position
	tail atomic.Uint64 // next dequeue position
}

type poolCell struct {
	seq  atomic.Uint64
	addr uint64
}

// newFramePool builds a pool of the given power-of-two capacity.
func newFramePool(capacity uint32) *framePool {
	p := &framePool{
		mask:  uint64(capacity) - 1,
		size:  uint64(capacity),
		cells: make([]poolCell, capacity),
	}
	for i := range p.cells {
		p.cells[i].seq.Store(uint64(i))
	}
	return p
}

// Push returns a frame address to the pool. It reports false when the pool
// is full, which cannot happen while frame accounting holds: every address
// is in exactly one place and the pool capacity covers all of them.
func (p *framePool) Push(addr uint64) bool {
	pos := p.head.Load()
	for {
		cell := &p.cells[pos&p.mask]
		seq := cell.seq.Load()
		switch {
		case seq == pos:
			if p.head.CompareAndSwap(pos, pos+1) {
				cell.addr = addr
				cell.seq.Store(pos + 1)
				return true
			}
			pos = p.head.Load()
		case seq < pos:
			return false
		default:
			pos = p.head.Load()
		}
	}
}

// Pop takes a free frame address, reporting false when the pool is empty.
func (p *framePool) Pop() (uint64, bool) {
	pos := p.tail.Load()
	for {
		cell := &p.cells[pos&p.mask]
		seq := cell.seq.Load()
		switch {
		case seq == pos+1:
			if p.tail.CompareAndSwap(pos, pos+1) {
				addr := cell.addr
				cell.seq.Store(pos + p.size)
				return addr, true
			}
			pos = p.tail.Load()
		case seq < pos+1:
			return 0, false
		default:
			pos = p.tail.Load()
		}
	}
}

// Len returns the number of pooled addresses. It is exact when the pool is
// quiescent and a close approximation while both goroutines run.
func (p *framePool) Len() uint32 {
	head := p.head.Load()
	tail := p.tail.Load()
	if head < tail {
		return 0
	}
	return uint32(head - tail)
}

// Free returns how many more addresses the pool can absorb.
func (p *framePool) Free() uint32 {
	return uint32(p.size) - min(p.Len(), uint32(p.size))
}

// Capacity returns the fixed pool capacity.
func (p *framePool) Capacity() uint32 { return uint32(p.size) }
