package xsk

import (
	"fmt"
	"net"
	"unsafe"

	"github.com/cilium/ebpf/rlimit"
	"golang.org/x/sys/unix"
)

// kernelOps is the kernel surface the datapath is built on. Construction,
// teardown, wakeup and kick behavior all go through it, which keeps the
// burst and lifecycle logic testable without an AF_XDP capable NIC.
type kernelOps interface {
	RemoveMemlock() error
	Socket() (int, error)
	InterfaceIndex(name string) (uint32, error)
	SetRingSize(fd, opt int, size uint32) error
	RegisterUmem(fd int, reg *unix.XDPUmemReg) error
	MmapOffsets(fd int) (unix.XDPMmapOffsets, error)
	MapRing(fd int, pgoff int64, length int) ([]byte, error)
	UnmapRing(b []byte) error
	Bind(fd int, sa *unix.SockaddrXDP) error
	Poll(fd int) error
	Kick(fd int) error
	Statistics(fd int) (unix.XDPStatistics, error)
	Close(fd int) error
}

// linuxKernel is the real implementation over the AF_XDP syscall surface.
type linuxKernel struct{}

func (linuxKernel) RemoveMemlock() error {
	return rlimit.RemoveMemlock()
}

func (linuxKernel) Socket() (int, error) {
	return unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
}

func (linuxKernel) InterfaceIndex(name string) (uint32, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return uint32(ifi.Index), nil
}

func (linuxKernel) SetRingSize(fd, opt int, size uint32) error {
	return unix.SetsockoptInt(fd, unix.SOL_XDP, opt, int(size))
}

func (linuxKernel) RegisterUmem(fd int, reg *unix.XDPUmemReg) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT,
		uintptr(fd), uintptr(unix.SOL_XDP), uintptr(unix.XDP_UMEM_REG),
		uintptr(unsafe.Pointer(reg)), unsafe.Sizeof(*reg), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (linuxKernel) MmapOffsets(fd int) (unix.XDPMmapOffsets, error) {
	var off unix.XDPMmapOffsets
	length := uint32(unsafe.Sizeof(off))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd), uintptr(unix.SOL_XDP), uintptr(unix.XDP_MMAP_OFFSETS),
		uintptr(unsafe.Pointer(&off)), uintptr(unsafe.Pointer(&length)), 0)
	if errno != 0 {
		return off, errno
	}
	if length != uint32(unsafe.Sizeof(off)) {
		return off, fmt.Errorf("kernel reported %d byte ring offsets, need %d (flags offsets require Linux 5.4+)", length, unsafe.Sizeof(off))
	}
	return off, nil
}

func (linuxKernel) MapRing(fd int, pgoff int64, length int) ([]byte, error) {
	return unix.Mmap(fd, pgoff, length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE)
}

func (linuxKernel) UnmapRing(b []byte) error {
	return unix.Munmap(b)
}

func (linuxKernel) Bind(fd int, sa *unix.SockaddrXDP) error {
	return unix.Bind(fd, sa)
}

// Poll is the rx wakeup: a zero-timeout poll that tells the kernel the fill
// ring has new entries. The result is irrelevant, received frames are
// observed through the rx ring either way.
func (linuxKernel) Poll(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, 0)
	return err
}

// Kick is the canonical AF_XDP tx doorbell: a null sendto that never blocks.
func (linuxKernel) Kick(fd int) error {
	return unix.Sendto(fd, nil, unix.MSG_DONTWAIT, nil)
}

func (linuxKernel) Statistics(fd int) (unix.XDPStatistics, error) {
	var stats unix.XDPStatistics
	length := uint32(unsafe.Sizeof(stats))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd), uintptr(unix.SOL_XDP), uintptr(unix.XDP_STATISTICS),
		uintptr(unsafe.Pointer(&stats)), uintptr(unsafe.Pointer(&length)), 0)
	if errno != 0 {
		return stats, errno
	}
	return stats, nil
}

func (linuxKernel) Close(fd int) error {
	return unix.Close(fd)
}
