// Package fifo implements the bounded byte ring buffer used by the AES
// engine's WRFIFO/RDFIFO and the RSA engine's exponent FIFO. SHA, PXI
// and NDMA keep their own buffers and do not use this package.
package fifo

import "fmt"

// FIFO is a power-of-two-capacity byte ring buffer. Empty vs full is
// disambiguated with an explicit flag rather than wasting a slot:
// len == (full ? capacity : (w-r) mod capacity).
type FIFO struct {
	buf  []byte
	r, w int
	full bool
}

// New creates a FIFO of the given capacity, which must be a power of two.
func New(capacity int) *FIFO {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("fifo: capacity %d is not a positive power of two", capacity))
	}
	return &FIFO{buf: make([]byte, capacity)}
}

// Cap returns the FIFO's total byte capacity.
func (f *FIFO) Cap() int { return len(f.buf) }

// Len returns the number of bytes currently queued.
func (f *FIFO) Len() int {
	if f.full {
		return len(f.buf)
	}
	return (f.w - f.r) & (len(f.buf) - 1)
}

// Free returns the number of bytes that can still be pushed.
func (f *FIFO) Free() int { return len(f.buf) - f.Len() }

// Empty reports whether the FIFO holds no bytes.
func (f *FIFO) Empty() bool { return !f.full && f.r == f.w }

// Full reports whether the FIFO has no free space.
func (f *FIFO) Full() bool { return f.full }

// Reset empties the FIFO without altering capacity.
func (f *FIFO) Reset() {
	f.r, f.w = 0, 0
	f.full = false
}

// PushByte pushes one byte. Returns false (a guest programming error)
// if the FIFO is already full; the caller is responsible for
// surfacing a sticky error bit.
func (f *FIFO) PushByte(b byte) bool {
	if f.full {
		return false
	}
	f.buf[f.w] = b
	f.w = (f.w + 1) & (len(f.buf) - 1)
	if f.w == f.r {
		f.full = true
	}
	return true
}

// Push16 pushes a little-endian 16-bit value as two bytes.
func (f *FIFO) Push16(v uint16) bool {
	return f.PushByte(byte(v)) && f.PushByte(byte(v>>8))
}

// Push32 pushes a little-endian 32-bit value as four bytes.
func (f *FIFO) Push32(v uint32) bool {
	ok := true
	for i := 0; i < 4; i++ {
		ok = f.PushByte(byte(v>>(8*i))) && ok
	}
	return ok
}

// PopByte pops one byte. The second return is false (guest programming
// error) if the FIFO was empty; the popped value is then undefined (0).
func (f *FIFO) PopByte() (byte, bool) {
	if f.Empty() {
		return 0, false
	}
	b := f.buf[f.r]
	f.r = (f.r + 1) & (len(f.buf) - 1)
	f.full = false
	return b, true
}

// Pop32 pops a little-endian 32-bit value as four bytes. ok is false if
// any of the four bytes could not be popped.
func (f *FIFO) Pop32() (v uint32, ok bool) {
	ok = true
	for i := 0; i < 4; i++ {
		b, got := f.PopByte()
		ok = ok && got
		v |= uint32(b) << (8 * i)
	}
	return v, ok
}

// PushBytes pushes as many bytes from data as fit, returning the count
// actually pushed.
func (f *FIFO) PushBytes(data []byte) int {
	n := 0
	for _, b := range data {
		if !f.PushByte(b) {
			break
		}
		n++
	}
	return n
}
