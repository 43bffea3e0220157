package xsk

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Defaults match what most kernels accept without tuning.
const (
	DefaultFrameSize    = 4096
	DefaultHeadroomSize = 0
	DefaultRingSize     = 2048
)

// Config controls socket construction. The ring size is used for all four
// rings, so it also fixes the number of frames in the frame area.
type Config struct {
	// FrameSize is the payload capacity of one frame in bytes.
	// Must be a multiple of 2; kernels generally accept 2048 or 4096.
	FrameSize uint32

	// HeadroomSize is reserved in front of each payload so upper layers can
	// prepend headers without copying.
	HeadroomSize uint32

	// RingSize is the capacity of the fill, completion, rx and tx rings.
	// Must be a nonzero power of two.
	RingSize uint32

	// UseHugePages backs the frame area with huge pages.
	UseHugePages bool

	// ForceZeroCopy binds with XDP_ZEROCOPY; otherwise the socket binds with
	// XDP_COPY. Binding fails on drivers without zero-copy support.
	ForceZeroCopy bool

	// Logger receives construction, teardown and unexpected-errno events.
	// Defaults to the logrus standard logger. Bursts never log.
	Logger *logrus.Logger

	// Metrics receives datapath counters. Defaults to an unregistered set.
	Metrics *Metrics
}

// DefaultConfig returns the configuration used by the stock tools.
func DefaultConfig() Config {
	return Config{
		FrameSize:    DefaultFrameSize,
		HeadroomSize: DefaultHeadroomSize,
		RingSize:     DefaultRingSize,
	}
}

func (c *Config) validate() error {
	if c.RingSize == 0 || c.RingSize&(c.RingSize-1) != 0 {
		return fmt.Errorf("%w: ring size %d is not a nonzero power of two", ErrConfig, c.RingSize)
	}
	if c.FrameSize == 0 || c.FrameSize%2 != 0 {
		return fmt.Errorf("%w: frame size %d is not a positive multiple of 2", ErrConfig, c.FrameSize)
	}
	if c.HeadroomSize >= c.FrameSize {
		return fmt.Errorf("%w: headroom %d does not leave payload room in a %d byte frame", ErrConfig, c.HeadroomSize, c.FrameSize)
	}
	return nil
}

// chunkSize is the stride between frames in the frame area: headroom bytes
// followed by the payload.
func (c *Config) chunkSize() uint32 { return c.FrameSize + c.HeadroomSize }

// frameCount equals the ring size so that the fill and completion rings can
// always absorb every frame userspace owns.
func (c *Config) frameCount() uint32 { return c.RingSize }

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Config) metrics() *Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return NewMetrics(nil)
}

func validateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty interface name", ErrConfig)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: interface name %q contains a NUL byte", ErrConfig, name)
	}
	return nil
}
