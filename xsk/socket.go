package xsk

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/onager-net/onager/internal/mem"
	"github.com/onager-net/onager/internal/ring"
)

// New creates an AF_XDP socket bound to one queue of the named interface and
// returns its two endpoints. The endpoints share the socket; it is torn down
// when both have been closed, destroying the socket first, then the rings,
// then the umem, then the frame area.
func New(interfaceName string, queueID uint32, cfg Config) (*RxSocket, *TxSocket, error) {
	return newSocket(linuxKernel{}, interfaceName, queueID, cfg)
}

// socketInner is the state shared by both endpoints.
type socketInner struct {
	ops     kernelOps
	fd      int
	umem    *Umem
	rxPages []byte
	txPages []byte

	iface   string
	queueID uint32

	log     *logrus.Logger
	metrics *Metrics

	refs atomic.Int32
}

func newSocket(ops kernelOps, interfaceName string, queueID uint32, cfg Config) (rx *RxSocket, tx *TxSocket, err error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	if err := validateInterfaceName(interfaceName); err != nil {
		return nil, nil, err
	}
	log := cfg.logger()

	// The frame area gets pinned by the kernel when it is registered, so the
	// locked-memory limit has to go first. Repeating this per socket is
	// idempotent.
	if err := ops.RemoveMemlock(); err != nil {
		return nil, nil, fmt.Errorf("%w: raise RLIMIT_MEMLOCK: %w", ErrSocket, err)
	}

	ifindex, err := ops.InterfaceIndex(interfaceName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: interface %q: %w", ErrSocket, interfaceName, err)
	}

	fd, err := ops.Socket()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create AF_XDP socket: %w", ErrSocket, err)
	}

	area, err := mem.New(int(cfg.chunkSize())*int(cfg.frameCount()), cfg.UseHugePages)
	if err != nil {
		ops.Close(fd)
		return nil, nil, fmt.Errorf("%w: %w", ErrMap, err)
	}

	inner := &socketInner{
		ops:     ops,
		fd:      fd,
		iface:   interfaceName,
		queueID: queueID,
		log:     log,
		metrics: cfg.metrics(),
	}

	// From here on the inner owns fd and area; fail through its teardown so
	// partial construction cannot leak the mapping or the descriptor.
	fail := func(err error) (*RxSocket, *TxSocket, error) {
		ops.Close(fd)
		if inner.rxPages != nil {
			ops.UnmapRing(inner.rxPages)
		}
		if inner.txPages != nil {
			ops.UnmapRing(inner.txPages)
		}
		if inner.umem != nil {
			inner.umem.close()
		} else {
			area.Unmap()
		}
		return nil, nil, err
	}

	inner.umem, err = newUmem(ops, fd, area, &cfg)
	if err != nil {
		inner.umem = nil
		return fail(err)
	}

	if err := ops.SetRingSize(fd, unix.XDP_RX_RING, cfg.RingSize); err != nil {
		return fail(fmt.Errorf("%w: rx ring size %d: %w", ErrRing, cfg.RingSize, err))
	}
	if err := ops.SetRingSize(fd, unix.XDP_TX_RING, cfg.RingSize); err != nil {
		return fail(fmt.Errorf("%w: tx ring size %d: %w", ErrRing, cfg.RingSize, err))
	}

	off, err := ops.MmapOffsets(fd)
	if err != nil {
		return fail(fmt.Errorf("%w: ring offsets: %w", ErrRing, err))
	}

	inner.rxPages, err = ops.MapRing(fd, unix.XDP_PGOFF_RX_RING, ring.MapLength[unix.XDPDesc](off.Rx, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: map rx ring: %w", ErrRing, err))
	}
	rxRing, err := ring.NewConsumer[unix.XDPDesc](ring.FromOffsets(inner.rxPages, off.Rx, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRing, err))
	}

	inner.txPages, err = ops.MapRing(fd, unix.XDP_PGOFF_TX_RING, ring.MapLength[unix.XDPDesc](off.Tx, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: map tx ring: %w", ErrRing, err))
	}
	txRing, err := ring.NewProducer[unix.XDPDesc](ring.FromOffsets(inner.txPages, off.Tx, cfg.RingSize))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRing, err))
	}

	bindFlags := uint16(unix.XDP_USE_NEED_WAKEUP)
	if cfg.ForceZeroCopy {
		bindFlags |= unix.XDP_ZEROCOPY
	} else {
		bindFlags |= unix.XDP_COPY
	}
	sa := &unix.SockaddrXDP{
		Flags:   bindFlags,
		Ifindex: ifindex,
		QueueID: queueID,
	}
	if err := ops.Bind(fd, sa); err != nil {
		return fail(fmt.Errorf("%w: bind to %s queue %d: %w", ErrSocket, interfaceName, queueID, err))
	}

	// Every frame starts out owned by userspace, one pool entry per frame.
	// Pooled addresses are payload starts (frame start plus headroom); the
	// kernel aligns fill ring entries down to the frame start itself, and rx,
	// tx and completion descriptors all carry payload starts, so addresses
	// circulate through the pool and rings without adjustment.
	pool := newFramePool(cfg.frameCount())
	for k := uint64(0); k < uint64(cfg.frameCount()); k++ {
		pool.Push(k*uint64(cfg.chunkSize()) + uint64(cfg.HeadroomSize))
	}

	inner.refs.Store(2)
	rx = &RxSocket{inner: inner, ring: rxRing, pool: pool, umem: inner.umem}
	tx = &TxSocket{inner: inner, ring: txRing, pool: pool, umem: inner.umem}

	log.WithFields(logrus.Fields{
		"interface":  interfaceName,
		"queue":      queueID,
		"ring_size":  cfg.RingSize,
		"frame_size": cfg.FrameSize,
		"headroom":   cfg.HeadroomSize,
		"zero_copy":  cfg.ForceZeroCopy,
	}).Info("AF_XDP socket ready")

	return rx, tx, nil
}

// release drops one endpoint reference and tears the socket down when the
// last one goes. Teardown order is load-bearing: the socket descriptor
// first, so the kernel drops its ring and umem references, then the ring
// mappings, then the umem with the frame area.
func (s *socketInner) release() {
	if s.refs.Add(-1) != 0 {
		return
	}

	if err := s.ops.Close(s.fd); err != nil {
		panic(fmt.Sprintf("xsk: close socket: %v", err))
	}
	if s.rxPages != nil {
		if err := s.ops.UnmapRing(s.rxPages); err != nil {
			panic(fmt.Sprintf("xsk: unmap rx ring: %v", err))
		}
		s.rxPages = nil
	}
	if s.txPages != nil {
		if err := s.ops.UnmapRing(s.txPages); err != nil {
			panic(fmt.Sprintf("xsk: unmap tx ring: %v", err))
		}
		s.txPages = nil
	}
	s.umem.close()

	s.log.WithFields(logrus.Fields{
		"interface": s.iface,
		"queue":     s.queueID,
	}).Info("AF_XDP socket closed")
}

func (s *socketInner) statistics() (unix.XDPStatistics, error) {
	return s.ops.Statistics(s.fd)
}
