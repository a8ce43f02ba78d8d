// Package pxi implements the inter-processor FIFO pair.
// Grounded on ctr9_pxi.c's SYNC/CNT/SEND/RECV register layout, and on
// a serial log-sink's shape for a single-core stub peer: an
// IRQ-callback-driven device that silently accepts what the (absent)
// other core would have consumed.
package pxi

const (
	offSync = 0x00
	offCNT  = 0x04
	offSend = 0x08
	offRecv = 0x0C
)

const fifoCapacity = 64

// IRQLine is one of the PXI's three interrupt outputs.
type IRQLine interface {
	SetLevel(level bool)
}

// wordFIFO is a 64-entry ring of 32-bit words (two 64-entry word
// FIFOs), distinct from the byte-oriented fifo package used by
// AES/RSA since PXI only ever moves whole words.
type wordFIFO struct {
	buf  [fifoCapacity]uint32
	r, w int
	full bool
}

func (f *wordFIFO) len() int {
	if f.full {
		return fifoCapacity
	}
	return (f.w - f.r) & (fifoCapacity - 1)
}

func (f *wordFIFO) empty() bool { return !f.full && f.r == f.w }

func (f *wordFIFO) push(v uint32) bool {
	if f.full {
		return false
	}
	f.buf[f.w] = v
	f.w = (f.w + 1) & (fifoCapacity - 1)
	if f.w == f.r {
		f.full = true
	}
	return true
}

func (f *wordFIFO) pop() (uint32, bool) {
	if f.empty() {
		return 0, false
	}
	v := f.buf[f.r]
	f.r = (f.r + 1) & (fifoCapacity - 1)
	f.full = false
	return v, true
}

func (f *wordFIFO) reset() { f.r, f.w, f.full = 0, 0, false }

// PXI is one inter-processor FIFO pair with sync counters.
type PXI struct {
	recvCount uint8
	sendCount uint8
	syncIRQEnable bool

	sendEmptyIRQEnable bool
	recvNonEmptyIRQEnable bool
	errorSticky bool
	fifoEnable  bool

	send, recv wordFIFO

	syncLine, sendEmptyLine, recvNonEmptyLine IRQLine
}

// New creates an idle PXI pair.
func New() *PXI { return &PXI{} }

// ConnectIRQs attaches the three output lines (sync/send-empty/
// recv-not-empty route to consecutive PIC lines).
func (p *PXI) ConnectIRQs(sync, sendEmpty, recvNonEmpty IRQLine) {
	p.syncLine, p.sendEmptyLine, p.recvNonEmptyLine = sync, sendEmpty, recvNonEmpty
}

// PeerSync simulates the other core bumping its send counter, as a
// test harness would in this single-core model.
func (p *PXI) PeerSync(count uint8) {
	p.recvCount = count
	if p.syncIRQEnable && p.syncLine != nil {
		p.syncLine.SetLevel(true)
	}
}

// PeerPreloadRecv lets a test harness place a word in the recv FIFO
// as if the peer had sent it.
func (p *PXI) PeerPreloadRecv(word uint32) bool {
	wasEmpty := p.recv.empty()
	ok := p.recv.push(word)
	if ok && wasEmpty && p.recvNonEmptyIRQEnable && p.recvNonEmptyLine != nil {
		p.recvNonEmptyLine.SetLevel(true)
	}
	return ok
}

// PeerDrainSend lets a test harness pop a word as if the peer had
// consumed it, observing the send-FIFO-became-empty IRQ.
func (p *PXI) PeerDrainSend() (uint32, bool) {
	v, ok := p.send.pop()
	if ok && p.send.empty() && p.sendEmptyIRQEnable && p.sendEmptyLine != nil {
		p.sendEmptyLine.SetLevel(true)
	}
	return v, ok
}

func (p *PXI) readCNT() uint32 {
	var v uint32
	if p.send.empty() {
		v |= 1 << 0
	}
	if p.send.full {
		v |= 1 << 1
	}
	if p.sendEmptyIRQEnable {
		v |= 1 << 2
	}
	if p.recv.empty() {
		v |= 1 << 8
	}
	if p.recv.full {
		v |= 1 << 9
	}
	if p.recvNonEmptyIRQEnable {
		v |= 1 << 10
	}
	if p.errorSticky {
		v |= 1 << 14
	}
	if p.fifoEnable {
		v |= 1 << 15
	}
	return v
}

// Read implements the MMIO read side. A read from RECV that finds the
// FIFO empty is a guest programming error: it sets the sticky error
// bit and returns zero.
func (p *PXI) Read(offset uint32, size int) uint32 {
	switch offset &^ 0x3 {
	case offSync:
		var v uint32
		v = uint32(p.recvCount) | uint32(p.sendCount)<<8
		if p.syncIRQEnable {
			v |= 1 << 31
		}
		return v
	case offCNT:
		return p.readCNT()
	case offRecv:
		v, ok := p.recv.pop()
		if !ok {
			p.errorSticky = true
			return 0
		}
		return v
	default:
		return 0
	}
}

// Write implements the MMIO write side. A write to SEND that finds the
// FIFO full is a guest programming error: sticky error bit, write
// dropped.
func (p *PXI) Write(offset uint32, size int, value uint32) {
	switch offset &^ 0x3 {
	case offSync:
		p.sendCount = uint8(value >> 8)
		p.syncIRQEnable = value&(1<<31) != 0
	case offCNT:
		p.sendEmptyIRQEnable = value&(1<<2) != 0
		p.recvNonEmptyIRQEnable = value&(1<<10) != 0
		if value&(1<<14) != 0 {
			p.errorSticky = false
		}
		p.fifoEnable = value&(1<<15) != 0
	case offSend:
		if !p.send.push(value) {
			p.errorSticky = true
		}
	default:
	}
}
