// Package pic implements the 32-line interrupt controller.
// Grounded on the mask/request idea behind MMU.RequestInterrupt-style
// interrupt routing, generalized from a fixed 5-bit IF register to a
// standalone 32-line controller with a real enable mask and
// write-one-to-clear pending register.
package pic

import "log/slog"

const (
	offEnabled = 0x0
	offPending = 0x4
)

// CPULine is the controller's single aggregated output, asserted
// whenever (pending & enabled) != 0.
type CPULine interface {
	SetLevel(level bool)
}

// PIC is the 32-line interrupt controller.
type PIC struct {
	enabled uint32
	pending uint32
	cpu     CPULine
}

// New creates a PIC with all lines masked and nothing pending.
func New() *PIC {
	return &PIC{}
}

// ConnectCPU attaches the output line the controller asserts to the CPU.
func (p *PIC) ConnectCPU(cpu CPULine) {
	p.cpu = cpu
	p.reevaluate()
}

// SetLine sets or clears input line n's (0..31) pending bit by level,
// then re-evaluates the aggregated output.
func (p *PIC) SetLine(n int, level bool) {
	if n < 0 || n > 31 {
		slog.Warn("pic: line out of range", "line", n)
		return
	}
	bitMask := uint32(1) << uint(n)
	if level {
		p.pending |= bitMask
	} else {
		p.pending &^= bitMask
	}
	p.reevaluate()
}

// Line returns a bound IRQLine for input line n, for devices to hold
// and call SetLevel on without depending on the pic package elsewhere.
func (p *PIC) Line(n int) *Line {
	return &Line{pic: p, n: n}
}

// Line is a single input wire bound to a PIC line number.
type Line struct {
	pic *PIC
	n   int
}

// SetLevel implements board.IRQLine.
func (l *Line) SetLevel(level bool) { l.pic.SetLine(l.n, level) }

func (p *PIC) reevaluate() {
	if p.cpu != nil {
		p.cpu.SetLevel(p.pending&p.enabled != 0)
	}
}

// Read implements the MMIO read side: ENABLED at offset 0, PENDING at
// offset 4. Any other offset reads as zero.
func (p *PIC) Read(offset uint32, size int) uint32 {
	switch offset &^ 0x3 {
	case offEnabled:
		return p.enabled
	case offPending:
		return p.pending
	default:
		return 0
	}
}

// Write implements the MMIO write side. Writes to ENABLED replace the
// mask outright; writes to PENDING clear each bit whose written value
// is 1 (write-one-to-clear) and never set a bit.
func (p *PIC) Write(offset uint32, size int, value uint32) {
	switch offset &^ 0x3 {
	case offEnabled:
		p.enabled = value
	case offPending:
		p.pending &^= value
	default:
		slog.Debug("pic: write to unmapped offset", "offset", offset)
		return
	}
	p.reevaluate()
}
