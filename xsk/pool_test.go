package xsk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolFillDrain(t *testing.T) {
	p := newFramePool(8)
	assert.Equal(t, uint32(8), p.Capacity())
	assert.Equal(t, uint32(0), p.Len())
	assert.Equal(t, uint32(8), p.Free())

	for i := uint64(0); i < 8; i++ {
		require.True(t, p.Push(i*4096))
	}
	assert.Equal(t, uint32(8), p.Len())
	assert.Equal(t, uint32(0), p.Free())

	// Full pool rejects without losing the value.
	assert.False(t, p.Push(99))

	seen := make(map[uint64]bool)
	for i := 0; i < 8; i++ {
		addr, ok := p.Pop()
		require.True(t, ok)
		assert.False(t, seen[addr], "address %d popped twice", addr)
		seen[addr] = true
	}
	_, ok := p.Pop()
	assert.False(t, ok)
	assert.Equal(t, uint32(0), p.Len())
}

func TestPoolFIFOWhenSingleThreaded(t *testing.T) {
	p := newFramePool(4)
	for i := uint64(0); i < 4; i++ {
		p.Push(i)
	}
	for i := uint64(0); i < 4; i++ {
		addr, ok := p.Pop()
		require.True(t, ok)
		assert.Equal(t, i, addr)
	}
}

// TestPoolConservation runs the two-goroutine pattern the datapath uses: one
// side pops (rx fill), the other pushes the popped values back (tx
// complete). No address may be lost or duplicated.
func TestPoolConservation(t *testing.T) {
	const frames = 64
	const rounds = 100000

	p := newFramePool(frames)
	for i := uint64(0); i < frames; i++ {
		require.True(t, p.Push(i*2048))
	}

	transit := make(chan uint64, frames)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for n := 0; n < rounds; {
			if addr, ok := p.Pop(); ok {
				transit <- addr
				n++
			}
		}
	}()
	go func() {
		defer wg.Done()
		for n := 0; n < rounds; n++ {
			addr := <-transit
			for !p.Push(addr) {
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, uint32(frames), p.Len())
	seen := make(map[uint64]bool)
	for {
		addr, ok := p.Pop()
		if !ok {
			break
		}
		assert.False(t, seen[addr])
		assert.Zero(t, addr%2048)
		seen[addr] = true
	}
	assert.Len(t, seen, frames)
}
