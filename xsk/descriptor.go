package xsk

// Descriptor is a handle to one frame in flight: an address into the frame
// area, the payload length, and the umem that resolves the address to bytes.
//
// A Descriptor has exactly one owner at any time: application code, the tx
// ring, or the kernel. Handing it to Send transfers ownership; keeping a copy
// and touching its data afterwards races with the NIC.
type Descriptor struct {
	addr   uint64
	length uint32
	umem   *Umem
}

// Addr returns the payload start offset within the frame area.
func (d Descriptor) Addr() uint64 { return d.addr }

// Len returns the payload length in bytes.
func (d Descriptor) Len() uint32 { return d.length }

// SetLen sets the payload length before transmission. Lengths beyond the
// frame's payload capacity are clamped.
func (d *Descriptor) SetLen(n uint32) {
	if n > d.umem.frameSize {
		n = d.umem.frameSize
	}
	d.length = n
}

// Data returns the frame bytes including the configured headroom in front of
// the payload, so headers can be prepended in place. The payload begins at
// Data()[HeadroomSize].
func (d Descriptor) Data() []byte {
	h := uint64(d.umem.headroomSize)
	return d.umem.area.Slice(d.addr-h, uint64(d.length)+h)
}

// Payload returns only the payload bytes.
func (d Descriptor) Payload() []byte {
	return d.umem.area.Slice(d.addr, uint64(d.length))
}
