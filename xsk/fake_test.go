package xsk

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/onager-net/onager/internal/ring"
)

// fakeRingOffset is the control word layout the fake kernel reports for
// every ring: producer, consumer and flags words followed by the slot array.
var fakeRingOffset = unix.XDPRingOffset{Producer: 0, Consumer: 4, Flags: 8, Desc: 16}

// fakeKernel implements kernelOps over heap memory and records teardown
// events (socket close, ring unmaps) so tests can assert teardown order.
type fakeKernel struct {
	mu     sync.Mutex
	events []string

	ringSizes map[int]uint32
	maps      map[int64][]byte
	umemReg   *unix.XDPUmemReg
	bound     *unix.SockaddrXDP

	socketErr error
	bindErr   error
	regErr    error
	kickErr   error

	polls atomic.Int32
	kicks atomic.Int32

	stats unix.XDPStatistics
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		ringSizes: make(map[int]uint32),
		maps:      make(map[int64][]byte),
	}
}

func (f *fakeKernel) event(s string) {
	f.mu.Lock()
	f.events = append(f.events, s)
	f.mu.Unlock()
}

func (f *fakeKernel) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeKernel) RemoveMemlock() error { return nil }

func (f *fakeKernel) Socket() (int, error) {
	if f.socketErr != nil {
		return -1, f.socketErr
	}
	return 42, nil
}

func (f *fakeKernel) InterfaceIndex(name string) (uint32, error) {
	if name == "missing0" {
		return 0, errors.New("no such network interface")
	}
	return 7, nil
}

func (f *fakeKernel) SetRingSize(fd, opt int, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ringSizes[opt] = size
	return nil
}

func (f *fakeKernel) RegisterUmem(fd int, reg *unix.XDPUmemReg) error {
	if f.regErr != nil {
		return f.regErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *reg
	f.umemReg = &cp
	return nil
}

func (f *fakeKernel) MmapOffsets(fd int) (unix.XDPMmapOffsets, error) {
	return unix.XDPMmapOffsets{
		Rx: fakeRingOffset,
		Tx: fakeRingOffset,
		Fr: fakeRingOffset,
		Cr: fakeRingOffset,
	}, nil
}

func (f *fakeKernel) MapRing(fd int, pgoff int64, length int) ([]byte, error) {
	// Back the mapping with uint64 storage so ring slots stay 8-aligned.
	words := make([]uint64, (length+7)/8)
	b := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), length)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maps[pgoff] = b
	return b, nil
}

func ringNameByOffset(pgoff int64) string {
	switch pgoff {
	case unix.XDP_PGOFF_RX_RING:
		return "rx"
	case unix.XDP_PGOFF_TX_RING:
		return "tx"
	case unix.XDP_UMEM_PGOFF_FILL_RING:
		return "fill"
	case unix.XDP_UMEM_PGOFF_COMPLETION_RING:
		return "comp"
	}
	return "unknown"
}

func (f *fakeKernel) UnmapRing(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pgoff, m := range f.maps {
		if unsafe.SliceData(m) == unsafe.SliceData(b) {
			delete(f.maps, pgoff)
			f.events = append(f.events, "unmap:"+ringNameByOffset(pgoff))
			return nil
		}
	}
	return errors.New("fake: unmapping unknown ring")
}

func (f *fakeKernel) Bind(fd int, sa *unix.SockaddrXDP) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sa
	f.bound = &cp
	return nil
}

func (f *fakeKernel) Poll(fd int) error {
	f.polls.Add(1)
	return nil
}

func (f *fakeKernel) Kick(fd int) error {
	f.kicks.Add(1)
	return f.kickErr
}

func (f *fakeKernel) Statistics(fd int) (unix.XDPStatistics, error) {
	return f.stats, nil
}

func (f *fakeKernel) Close(fd int) error {
	f.event("close")
	return nil
}

// kernelSide drives the four rings the way the driver would: it consumes the
// fill and tx rings and produces the rx and completion rings.
type kernelSide struct {
	fill *ring.Consumer[uint64]
	comp *ring.Producer[uint64]
	rx   *ring.Producer[unix.XDPDesc]
	tx   *ring.Consumer[unix.XDPDesc]

	fillFlags *uint32
	txFlags   *uint32
}

func (f *fakeKernel) kernelSide(t *testing.T, size uint32) *kernelSide {
	t.Helper()
	f.mu.Lock()
	mk := func(pgoff int64) ring.Map {
		b, ok := f.maps[pgoff]
		require.True(t, ok, "ring %s not mapped", ringNameByOffset(pgoff))
		return ring.FromOffsets(b, fakeRingOffset, size)
	}
	fillMap, compMap := mk(unix.XDP_UMEM_PGOFF_FILL_RING), mk(unix.XDP_UMEM_PGOFF_COMPLETION_RING)
	rxMap, txMap := mk(unix.XDP_PGOFF_RX_RING), mk(unix.XDP_PGOFF_TX_RING)
	f.mu.Unlock()

	fill, err := ring.NewConsumer[uint64](fillMap)
	require.NoError(t, err)
	comp, err := ring.NewProducer[uint64](compMap)
	require.NoError(t, err)
	rx, err := ring.NewProducer[unix.XDPDesc](rxMap)
	require.NoError(t, err)
	tx, err := ring.NewConsumer[unix.XDPDesc](txMap)
	require.NoError(t, err)

	return &kernelSide{
		fill: fill, comp: comp, rx: rx, tx: tx,
		fillFlags: fillMap.Flags, txFlags: txMap.Flags,
	}
}

func (k *kernelSide) setFillWakeup(on bool) {
	var v uint32
	if on {
		v = unix.XDP_RING_NEED_WAKEUP
	}
	atomic.StoreUint32(k.fillFlags, v)
}

func (k *kernelSide) setTxWakeup(on bool) {
	var v uint32
	if on {
		v = unix.XDP_RING_NEED_WAKEUP
	}
	atomic.StoreUint32(k.txFlags, v)
}

// fillLevel returns how many addresses userspace has posted for rx.
func (k *kernelSide) fillLevel() uint32 { return k.fill.Available() }

// deliver receives frames: for each length it takes one fill ring address
// and publishes an rx descriptor for it. Returns the delivered addresses.
func (k *kernelSide) deliver(lens ...uint32) []uint64 {
	var addrs []uint64
	for _, l := range lens {
		if k.rx.FreeSlots() == 0 {
			break
		}
		avail, fi := k.fill.Peek(1)
		if avail == 0 {
			break
		}
		granted, gi := k.rx.Reserve(1)
		if granted == 0 {
			break
		}
		addr := *k.fill.Slot(fi)
		k.fill.Release(1)
		*k.rx.Slot(gi) = unix.XDPDesc{Addr: addr, Len: l}
		k.rx.Submit(1)
		addrs = append(addrs, addr)
	}
	return addrs
}

// complete transmits: it drains up to max tx descriptors and returns their
// addresses through the completion ring.
func (k *kernelSide) complete(max uint32) []uint64 {
	n := min(max, k.comp.FreeSlots())
	avail, idx := k.tx.Peek(n)
	if avail == 0 {
		return nil
	}
	granted, ci := k.comp.Reserve(avail)
	var addrs []uint64
	for i := uint32(0); i < granted; i++ {
		addr := k.tx.Slot(idx + i).Addr
		*k.comp.Slot(ci+i) = addr
		addrs = append(addrs, addr)
	}
	k.comp.Submit(granted)
	k.tx.Release(avail)
	return addrs
}

// pendingTx returns how many descriptors sit unconsumed in the tx ring.
func (k *kernelSide) pendingTx() uint32 { return k.tx.Available() }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

// newTestSocket builds a socket against the fake kernel and returns both
// endpoints plus the kernel-side ring driver.
func newTestSocket(t *testing.T, cfg Config) (*RxSocket, *TxSocket, *fakeKernel, *kernelSide) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	fake := newFakeKernel()
	rx, tx, err := newSocket(fake, "veth0", 0, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		rx.Close()
		tx.Close()
	})
	return rx, tx, fake, fake.kernelSide(t, cfg.RingSize)
}
