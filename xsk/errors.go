package xsk

import "errors"

// Error kinds. Construction errors wrap one of these so callers can select
// on the failing subsystem with errors.Is; the chain also carries the OS
// errno where one exists. Burst operations never return errors.
var (
	// ErrConfig reports an invalid Config or interface name.
	ErrConfig = errors.New("xsk: invalid configuration")

	// ErrMap reports a frame area mapping failure.
	ErrMap = errors.New("xsk: frame area mapping failed")

	// ErrUmem reports a kernel umem registration failure.
	ErrUmem = errors.New("xsk: umem setup failed")

	// ErrRing reports a ring construction or mapping failure.
	ErrRing = errors.New("xsk: ring setup failed")

	// ErrSocket reports an AF_XDP socket creation or bind failure.
	ErrSocket = errors.New("xsk: socket setup failed")
)
