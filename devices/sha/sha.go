// Package sha implements the streaming SHA-1/224/256 engine.
// Grounded on ctr9_sha.c's CNT/INFIFO/hash-window register
// layout (128-byte double-block input buffer, flush-at-128-bytes
// streaming), with the digest math itself from the standard library
// (crypto/sha1, crypto/sha256) since no example repo in the pack ships
// a hash algorithm implementation — see DESIGN.md.
package sha

import (
	"crypto/sha1"
	"crypto/sha256"
	"log/slog"
)

const (
	offCNT        = 0x00
	offBlockCount = 0x04
	offInFifoLo   = 0x80
	offInFifoHi   = 0xC0
	offHashLo     = 0x40
	offHashHi     = 0x60

	inputBufferSize = 128
)

// Mode selects the digest algorithm (mode bits 4..5 of CNT).
type Mode uint8

const (
	ModeSHA256 Mode = 0
	ModeSHA224 Mode = 1
	ModeSHA1   Mode = 2
)

// digester is satisfied by crypto/sha1 and crypto/sha256's hash.Hash.
type digester interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// SHA is the streaming hash engine.
type SHA struct {
	mode         Mode
	outputEndian bool // reset default: true (native order, per ctr9_sha_init)

	buf       [inputBufferSize]byte
	bufLen    int
	blockCount uint32

	hd     digester
	active bool

	hash [32]byte
	irq  IRQLine
	irqEnable bool
}

// IRQLine is the SHA engine's interrupt output (AES line 15 is
// distinct; SHA has no listed PIC assignment in the address-map table,
// and the board leaves this line unconnected).
type IRQLine interface {
	SetLevel(level bool)
}

// New creates a SHA engine with output_endian defaulting to native
// order, matching ctr9_sha_init.
func New() *SHA {
	return &SHA{outputEndian: true}
}

// ConnectIRQ attaches the completion interrupt line.
func (s *SHA) ConnectIRQ(line IRQLine) { s.irq = line }

func newDigester(m Mode) digester {
	switch m {
	case ModeSHA1:
		return sha1.New()
	case ModeSHA224:
		return sha256.New224()
	default:
		return sha256.New()
	}
}

func (s *SHA) readCNT() uint32 {
	var v uint32
	if s.outputEndian {
		v |= 1 << 3
	}
	v |= uint32(s.mode&0x3) << 4
	return v
}

// start resets the input buffer and opens a new digest session.
func (s *SHA) start() {
	s.bufLen = 0
	s.blockCount = 0
	s.hd = newDigester(s.mode)
	s.active = true
}

// feed appends data to the 128-byte buffer, flushing two 64-byte SHA
// blocks into the digest whenever it fills.
func (s *SHA) feed(data []byte) {
	for _, b := range data {
		if s.bufLen >= inputBufferSize {
			break
		}
		s.buf[s.bufLen] = b
		s.bufLen++
		s.blockCount++
		if s.bufLen == inputBufferSize {
			s.flushBuffer()
		}
	}
}

func (s *SHA) flushBuffer() {
	if s.hd != nil && s.bufLen > 0 {
		s.hd.Write(s.buf[:s.bufLen])
	}
	s.bufLen = 0
}

// final flushes any leftover bytes and stores the digest.
func (s *SHA) final() {
	s.flushBuffer()
	if s.hd == nil {
		slog.Warn("sha: final with no active session")
		return
	}
	sum := s.hd.Sum(nil)
	copy(s.hash[:], sum)
	s.active = false
	if s.irqEnable && s.irq != nil {
		s.irq.SetLevel(true)
	}
}

func swapWords(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+4 <= len(b); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = b[i+3], b[i+2], b[i+1], b[i]
	}
	return out
}

// digestLen returns the valid digest length for the current mode.
func (s *SHA) digestLen() int {
	switch s.mode {
	case ModeSHA1:
		return 20
	case ModeSHA224:
		return 28
	default:
		return 32
	}
}

func (s *SHA) readHashWindow() []byte {
	n := s.digestLen()
	out := make([]byte, 32)
	copy(out, s.hash[:n])
	if !s.outputEndian {
		out = swapWords(out)
	}
	return out
}

// Read implements the MMIO read side.
func (s *SHA) Read(offset uint32, size int) uint32 {
	switch {
	case offset == offCNT:
		return s.readCNT()
	case offset == offBlockCount:
		return s.blockCount
	case offset >= offHashLo && offset < offHashHi:
		h := s.readHashWindow()
		idx := offset - offHashLo
		return readLE(h, idx, size)
	default:
		return 0
	}
}

func readLE(buf []byte, idx uint32, size int) uint32 {
	var v uint32
	for i := 0; i < size && int(idx)+i < len(buf); i++ {
		v |= uint32(buf[int(idx)+i]) << (8 * i)
	}
	return v
}

// Write implements the MMIO write side.
func (s *SHA) Write(offset uint32, size int, value uint32) {
	switch {
	case offset == offCNT:
		startBit := value&1 != 0
		finalBit := value&(1<<1) != 0
		s.outputEndian = value&(1<<3) != 0
		s.mode = Mode((value >> 4) & 0x3)
		if startBit {
			s.start()
		}
		if finalBit {
			s.final()
		}
	case offset >= offInFifoLo && offset < offInFifoHi:
		b := make([]byte, size)
		for i := 0; i < size; i++ {
			b[i] = byte(value >> (8 * i))
		}
		s.feed(b)
	default:
	}
}
