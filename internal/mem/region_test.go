package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndUnmap(t *testing.T) {
	r, err := New(1<<16, false)
	require.NoError(t, err)
	require.Equal(t, 1<<16, r.Len())
	assert.True(t, r.Mapped())
	assert.NotNil(t, r.BasePointer())

	// The mapping must be writable end to end.
	b := r.Bytes()
	b[0] = 0xAA
	b[len(b)-1] = 0x55
	assert.Equal(t, byte(0xAA), r.Slice(0, 1)[0])
	assert.Equal(t, byte(0x55), r.Slice(uint64(r.Len())-1, 1)[0])

	r.Unmap()
	assert.False(t, r.Mapped())
	// A second Unmap is a no-op, not a double munmap.
	r.Unmap()
}

func TestNewRejectsBadLength(t *testing.T) {
	_, err := New(0, false)
	assert.Error(t, err)
	_, err = New(-4096, false)
	assert.Error(t, err)
}

func TestSliceBounds(t *testing.T) {
	r, err := New(4096, false)
	require.NoError(t, err)
	defer r.Unmap()

	assert.Len(t, r.Slice(0, 4096), 4096)
	assert.Len(t, r.Slice(4000, 96), 96)
	assert.Panics(t, func() { r.Slice(4000, 97) })
	assert.Panics(t, func() { r.Slice(1<<40, 1) })
}

func TestSliceCapsAliasing(t *testing.T) {
	r, err := New(4096, false)
	require.NoError(t, err)
	defer r.Unmap()

	s := r.Slice(100, 10)
	assert.Equal(t, 10, cap(s), "slice must not extend into the next frame")
}

func TestFromSlice(t *testing.T) {
	backing := make([]byte, 128)
	unmapped := false
	r := FromSlice(backing, func(b []byte) error {
		unmapped = true
		assert.Equal(t, 128, len(b))
		return nil
	})

	assert.Equal(t, 128, r.Len())
	r.Unmap()
	assert.True(t, unmapped)
	assert.False(t, r.Mapped())
}

func TestUnmapFailurePanics(t *testing.T) {
	r := FromSlice(make([]byte, 8), func([]byte) error {
		return assert.AnError
	})
	assert.Panics(t, func() { r.Unmap() })
}
