package xsk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.validate())
	assert.Equal(t, uint32(DefaultFrameSize), cfg.FrameSize)
	assert.Equal(t, uint32(DefaultRingSize), cfg.RingSize)
	assert.Equal(t, cfg.RingSize, cfg.frameCount())
	assert.Equal(t, cfg.FrameSize+cfg.HeadroomSize, cfg.chunkSize())
}

func TestValidateRingSize(t *testing.T) {
	for _, size := range []uint32{1, 2, 8, 2048, 1 << 16} {
		cfg := DefaultConfig()
		cfg.RingSize = size
		assert.NoError(t, cfg.validate(), "size %d", size)
	}
	for _, size := range []uint32{0, 3, 5, 6, 7, 100, 2047} {
		cfg := DefaultConfig()
		cfg.RingSize = size
		assert.ErrorIs(t, cfg.validate(), ErrConfig, "size %d", size)
	}
}

func TestValidateFrameSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSize = 0
	assert.ErrorIs(t, cfg.validate(), ErrConfig)

	cfg.FrameSize = 2047
	assert.ErrorIs(t, cfg.validate(), ErrConfig)

	cfg.FrameSize = 2048
	assert.NoError(t, cfg.validate())
}

func TestValidateInterfaceName(t *testing.T) {
	assert.NoError(t, validateInterfaceName("eth0"))
	assert.ErrorIs(t, validateInterfaceName(""), ErrConfig)
	assert.ErrorIs(t, validateInterfaceName("eth\x000"), ErrConfig)
}
