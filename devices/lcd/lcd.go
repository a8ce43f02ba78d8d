// Package lcd implements the dual-screen framebuffer blit: on each host
// refresh it copies two column-major, bottom-to-top RGB888 source
// buffers out of guest RAM into a single 400x480 32-bit host surface,
// the sub screen centered beneath the top screen. Grounded on
// jeebie/video/framebuffer.go's FrameBuffer (a plain pixel slice a
// backend reads each refresh) and jeebie/video/gpu.go's tick-driven
// blit shape, generalized to the source layout and screen geometry
// n3ds_lcd.c/ctr9_lcd.c describe.
package lcd

import "log/slog"

const (
	TopWidth  = 400
	TopHeight = 240
	SubWidth  = 320
	SubHeight = 240

	HostWidth  = TopWidth
	HostHeight = TopHeight + SubHeight

	subXOffset = (TopWidth - SubWidth) / 2
)

// Default framebuffer addresses in guest RAM, matching n3ds_lcdfb_init:
// the top screen's left and right eyes share one buffer (stereo 3D is
// out of scope), the sub screen gets its own.
const (
	defaultTopAddr = 0x20000000
	defaultSubAddr = 0x20046500
)

// Mem is the guest address space the device reads source pixels from
// and writes the draw-info triple to, the same dispatch the CPU uses.
type Mem interface {
	Read(address uint32, size int) uint32
	Write(address uint32, size int, value uint32)
}

// LCD is the framebuffer blit device. It owns no MMIO register window
// of its own (per the original, which backs an empty no-op register
// range at 0x10400000); its only guest-visible side effect is the
// draw-info triple written once at init.
type LCD struct {
	mem Mem

	topAddr, subAddr uint32

	surface [HostWidth * HostHeight]uint32
}

// New creates an LCD using the standard top/sub framebuffer addresses.
func New() *LCD {
	return &LCD{topAddr: defaultTopAddr, subAddr: defaultSubAddr}
}

// ConnectBus attaches the guest address space source pixels are read
// from and the draw-info triple is written to.
func (l *LCD) ConnectBus(mem Mem) { l.mem = mem }

// WriteDrawInfo writes the fixed {top_left_fb, top_right_fb, sub_fb}
// triple to address, to be consumed by guest boot code. Call once at
// board initialization, after ConnectBus.
func (l *LCD) WriteDrawInfo(address uint32) {
	if l.mem == nil {
		slog.Warn("lcd: WriteDrawInfo called before ConnectBus")
		return
	}
	l.mem.Write(address, 4, l.topAddr)
	l.mem.Write(address+4, 4, l.topAddr)
	l.mem.Write(address+8, 4, l.subAddr)
}

// Surface returns the composited 400x480 host surface, row-major,
// 0xAARRGGBB per pixel, for a backend to blit as-is.
func (l *LCD) Surface() []uint32 { return l.surface[:] }

// Refresh re-blits both screens from guest RAM into the host surface.
// Call once per host frame; this is the device's only "tick".
func (l *LCD) Refresh() {
	l.blit(l.topAddr, TopWidth, TopHeight, 0, 0)
	l.blit(l.subAddr, SubWidth, SubHeight, subXOffset, TopHeight)
}

// blit copies one column-major, bottom-to-top RGB888 source buffer of
// the given dimensions into the host surface at (dstX, dstY). Source
// pixel (x, y) lives at byte offset (height-1-y)*3 + x*height*3, per
// n3ds_update_display.
func (l *LCD) blit(srcAddr uint32, width, height, dstX, dstY int) {
	if l.mem == nil {
		return
	}
	stride := height * 3
	for y := 0; y < height; y++ {
		rowBase := (height - 1 - y) * 3
		for x := 0; x < width; x++ {
			off := srcAddr + uint32(rowBase+x*stride)
			r := l.mem.Read(off, 1)
			g := l.mem.Read(off+1, 1)
			b := l.mem.Read(off+2, 1)
			pixel := uint32(0xFF)<<24 | r<<16 | g<<8 | b
			l.surface[(dstY+y)*HostWidth+(dstX+x)] = pixel
		}
	}
}
