// Package xsk implements high-throughput userspace packet I/O over AF_XDP
// sockets. It shares a frame area with the kernel driver and exchanges frame
// ownership through the four AF_XDP rings (fill, completion, rx, tx),
// exposing the two halves of the datapath as an RxSocket and a TxSocket.
//
// Per socket, at most one goroutine may call Receive and at most one may call
// Send. The two goroutines meet only at the shared frame pool, which keeps
// the ledger of frames currently owned by userspace.
package xsk
