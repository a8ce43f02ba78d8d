package board

import (
	"log/slog"
	"os"

	"github.com/arm9board/core/board/addr"
	"github.com/arm9board/core/devices/aes"
	"github.com/arm9board/core/devices/hid"
	"github.com/arm9board/core/devices/lcd"
	"github.com/arm9board/core/devices/ndma"
	"github.com/arm9board/core/devices/pic"
	"github.com/arm9board/core/devices/pit"
	"github.com/arm9board/core/devices/pxi"
	"github.com/arm9board/core/devices/rsa"
	"github.com/arm9board/core/devices/sdmmc"
	"github.com/arm9board/core/devices/sha"
)

// defaultMainRAMSize is used when Config.RAMSize is left zero.
const defaultMainRAMSize = 128 * 1024 * 1024

// CyclesPerFrame is an illustrative host-tick budget per Step call; the
// core's Non-goals explicitly exclude cycle-accurate timing, so this
// only needs to be "enough ticks that a cascading PIT timer eventually
// overflows", not a faithful ARM9 clock count.
const CyclesPerFrame = 4468864 // ~268MHz / 60Hz

// Config is the set of board construction options, built by
// cmd/arm9board's CLI flags, mirroring jeebie.NewWithFile's path-based
// loading but for the several external files this core consumes.
type Config struct {
	ITCMPath      string
	BootROMPath   string
	SDMMCInfoPath string
	ExtCSDPath    string
	SDPath        string
	NANDPath      string
	RAMSize       uint32
}

// Board wires every device into one address space, following
// jeebie/bus.go's role as the central wiring point and jeebie/core.go's
// Emulator as the thing a host driving loop calls into once per frame.
type Board struct {
	bus *Bus

	pic   *pic.PIC
	pit   *pit.PIT
	ndma  *ndma.NDMA
	sdmmc *sdmmc.SDMMC
	pxi   *pxi.PXI
	aes   *aes.AES
	sha   *sha.SHA
	rsa   *rsa.RSA
	hid   *hid.HID
	lcd   *lcd.LCD

	handshake *handshakeReg

	cpuIRQ bool
}

// NewBoard constructs a fully wired board and loads every external
// file named in cfg. A missing or unreadable file is logged once and
// leaves the corresponding backing store empty, per the
// missing-host-file error class; NewBoard itself never fails for that
// reason. The returned error is always nil; the (T, error) shape
// mirrors jeebie.NewWithFile's convention.
func NewBoard(cfg Config) (*Board, error) {
	b := &Board{
		bus:       NewBus(),
		pic:       pic.New(),
		pit:       pit.New(),
		ndma:      ndma.New(),
		sdmmc:     sdmmc.New(),
		pxi:       pxi.New(),
		aes:       aes.New(),
		sha:       sha.New(),
		rsa:       rsa.New(),
		hid:       hid.New(),
		lcd:       lcd.New(),
		handshake: &handshakeReg{},
	}

	b.pic.ConnectCPU(b)
	b.installRAM(cfg)
	b.installDevices()
	b.connectIRQs()
	b.connectNDMAEdges()

	b.ndma.ConnectBus(b.bus)
	b.lcd.ConnectBus(b.bus)
	b.lcd.WriteDrawInfo(addr.DrawInfoAddr)

	b.loadBootFiles(cfg)

	return b, nil
}

func (b *Board) installRAM(cfg Config) {
	ramSize := cfg.RAMSize
	if ramSize == 0 {
		ramSize = defaultMainRAMSize
	}

	itcm := newRAM(addr.ITCMSize)
	b.bus.Install("itcm", addr.ITCMBase, addr.ITCMSize, itcm.handlers())
	b.bus.Install("itcm-alias", addr.ITCMAliasBase, addr.ITCMSize, itcm.handlers())

	b.bus.Install("internal-ram", addr.InternalRAMBase, addr.InternalRAMSize, newRAM(addr.InternalRAMSize).handlers())
	b.bus.Install("vram", addr.VRAMBase, addr.VRAMSize, newRAM(addr.VRAMSize).handlers())
	b.bus.Install("dsp-ram", addr.DSPRAMBase, addr.DSPRAMSize, newRAM(addr.DSPRAMSize).handlers())
	b.bus.Install("axi-wram", addr.AXIWRAMBase, addr.AXIWRAMSize, newRAM(addr.AXIWRAMSize).handlers())
	b.bus.Install("main-ram", addr.MainRAMBase, ramSize, newRAM(ramSize).handlers())
	b.bus.Install("dtcm", addr.DTCMBase, addr.DTCMSize, newRAM(addr.DTCMSize).handlers())
	b.bus.Install("boot-rom", addr.BootROMBase, addr.BootROMSize, newRAM(addr.BootROMSize).handlers())

	b.bus.Install("handshake", addr.HandshakeAddr, addr.HandshakeSize, b.handshake.handlers())
}

func (b *Board) installDevices() {
	b.bus.Install("pic", addr.PICBase, addr.PICSize, Handlers{Read: b.pic.Read, Write: b.pic.Write})
	b.bus.Install("ndma", addr.NDMABase, addr.NDMASize, Handlers{Read: b.ndma.Read, Write: b.ndma.Write})
	b.bus.Install("pit", addr.PITBase, addr.PITSize, Handlers{Read: b.pit.Read, Write: b.pit.Write})
	b.bus.Install("sdmmc", addr.SDMMCBase, addr.SDMMCSize, Handlers{Read: b.sdmmc.Read, Write: b.sdmmc.Write})
	b.bus.Install("pxi", addr.PXIBase, addr.PXISize, Handlers{Read: b.pxi.Read, Write: b.pxi.Write})
	b.bus.Install("aes", addr.AESBase, addr.AESSize, Handlers{Read: b.aes.Read, Write: b.aes.Write})
	b.bus.Install("sha", addr.SHABase, addr.SHASize, Handlers{Read: b.sha.Read, Write: b.sha.Write})
	b.bus.Install("rsa", addr.RSABase, addr.RSASize, Handlers{Read: b.rsa.Read, Write: b.rsa.Write})
	b.bus.Install("hid", addr.HIDBase, addr.HIDSize, Handlers{Read: b.hid.Read, Write: b.hid.Write})
}

// connectIRQs wires every device output line to its PIC input per the
// §6 address-map table. SHA has no PIC line in that table (and none in
// ctr9_sha.c's sysbus wiring either, which creates the device with no
// IRQ argument), so it is left unconnected rather than inventing one.
// DMAC-2 (line 28) is likewise unwired: this core models one 8-channel
// NDMA bank (DMAC-1, lines 0..7); a second bank has no device here.
func (b *Board) connectIRQs() {
	for ch := 0; ch < 4; ch++ {
		b.pit.Timer(ch).ConnectIRQ(b.pic.Line(addr.IRQTimerBase + ch))
	}
	for ch := 0; ch < 8; ch++ {
		b.ndma.ConnectIRQ(ch, b.pic.Line(addr.IRQDMAC1Base+ch))
	}
	b.pxi.ConnectIRQs(
		b.pic.Line(addr.IRQPXISync),
		b.pic.Line(addr.IRQPXISendEmpty),
		b.pic.Line(addr.IRQPXIRecvNotEmpty),
	)
	b.aes.ConnectIRQ(b.pic.Line(addr.IRQAES))
	b.rsa.ConnectIRQ(b.pic.Line(addr.IRQRSA))
	b.sdmmc.ConnectIRQ(b.pic.Line(addr.IRQSDIO1))
}

// connectNDMAEdges wires AES's two output edges (WRFIFO has space,
// RDFIFO has data) to their assigned NDMA startup sources.
func (b *Board) connectNDMAEdges() {
	b.aes.ConnectEdges(
		ndmaEdge{b.ndma, addr.NDMASrcAESWrFifo},
		ndmaEdge{b.ndma, addr.NDMASrcAESRdFifo},
	)
}

// ndmaEdge adapts an NDMA startup source id into AES's no-argument
// EdgeLine, since board.EdgeSink.Fire takes a source id but AES's two
// outputs are each dedicated to exactly one source.
type ndmaEdge struct {
	ndma   *ndma.NDMA
	source int
}

func (e ndmaEdge) Fire() { e.ndma.Fire(e.source) }

func (b *Board) loadBootFiles(cfg Config) {
	if cfg.ITCMPath != "" {
		loadIntoRegion(b.bus, addr.ITCMBase, addr.ITCMSize, cfg.ITCMPath)
	}
	if cfg.BootROMPath != "" {
		loadIntoRegion(b.bus, addr.BootROMBase, addr.BootROMSize, cfg.BootROMPath)
	}

	if cfg.SDMMCInfoPath != "" {
		data, err := os.ReadFile(cfg.SDMMCInfoPath)
		if err != nil {
			slog.Error("board: failed to read sdmmc-info file", "path", cfg.SDMMCInfoPath, "error", err)
		}
		b.sdmmc.LoadSDMMCInfo(data)
	} else {
		b.sdmmc.LoadSDMMCInfo(nil)
	}

	if cfg.ExtCSDPath != "" {
		data, err := os.ReadFile(cfg.ExtCSDPath)
		if err != nil {
			slog.Error("board: failed to read extcsd file", "path", cfg.ExtCSDPath, "error", err)
		}
		b.sdmmc.LoadExtCSD(data)
	} else {
		b.sdmmc.LoadExtCSD(nil)
	}

	b.sdmmc.SetBackingFile(0, openBackingFile(cfg.SDPath))
	b.sdmmc.SetBackingFile(1, openBackingFile(cfg.NANDPath))
}

// openBackingFile opens a read/write backing file for SDMMC. A missing
// path or an open failure returns nil, which SetBackingFile treats as
// an empty backing store (zeroed reads, discarded writes).
func openBackingFile(path string) *os.File {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		slog.Error("board: failed to open sdmmc backing file", "path", path, "error", err)
		return nil
	}
	return f
}

// loadIntoRegion reads path and copies it into the RAM region installed
// at base, truncating if the file is larger than the region.
func loadIntoRegion(bus *Bus, base, size uint32, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("board: failed to load boot file", "path", path, "error", err)
		return
	}
	n := len(data)
	if uint32(n) > size {
		slog.Warn("board: boot file larger than its region, truncating", "path", path, "region_size", size, "file_size", n)
		n = int(size)
	}
	for i := 0; i < n; i += 4 {
		chunk := n - i
		if chunk > 4 {
			chunk = 4
		}
		var v uint32
		for j := 0; j < chunk; j++ {
			v |= uint32(data[i+j]) << (8 * j)
		}
		bus.Write(base+uint32(i), chunk, v)
	}
}

// SetLevel implements board.IRQLine: the board is the PIC's single
// aggregated CPU output, since no ARM9 CPU emulator exists in this
// repository (out of scope, per the core's purpose and scope).
func (b *Board) SetLevel(level bool) { b.cpuIRQ = level }

// CPUIRQAsserted reports whether the PIC's aggregated output is
// currently asserted, for a host driving loop to observe.
func (b *Board) CPUIRQAsserted() bool { return b.cpuIRQ }

// Step advances every host-timer-driven device (the PIT cascade) by
// cycles ticks. There is no CPU loop to drive in this repository (see
// Non-goals); a host frontend calls Step once per host timer callback,
// matching §5's "timers are driven by a host timer callback" model.
func (b *Board) Step(cycles int) {
	b.pit.Tick(cycles)
}

// RunFrame advances one host frame's worth of ticks and re-blits both
// LCD screens, the board-level analogue of
// jeebie/core.go's Emulator.RunUntilFrame.
func (b *Board) RunFrame() {
	b.Step(CyclesPerFrame)
	b.lcd.Refresh()
}

// Bus returns the shared address space, for a backend or test harness
// that needs to poke memory directly (e.g. loading a guest program).
func (b *Board) Bus() *Bus { return b.bus }

// PIC, PIT, NDMA, SDMMC, PXI, AES, SHA, RSA, HID and LCD expose each
// device for direct host interaction (keypad events, framebuffer
// reads) that doesn't go through the MMIO address space.
func (b *Board) PIC() *pic.PIC     { return b.pic }
func (b *Board) PIT() *pit.PIT     { return b.pit }
func (b *Board) NDMA() *ndma.NDMA  { return b.ndma }
func (b *Board) SDMMC() *sdmmc.SDMMC { return b.sdmmc }
func (b *Board) PXI() *pxi.PXI     { return b.pxi }
func (b *Board) AES() *aes.AES     { return b.aes }
func (b *Board) SHA() *sha.SHA     { return b.sha }
func (b *Board) RSA() *rsa.RSA     { return b.rsa }
func (b *Board) HID() *hid.HID     { return b.hid }
func (b *Board) LCD() *lcd.LCD     { return b.lcd }

// ram is a flat byte-addressed memory region, the board-level analogue
// of jeebie/memory's cartridge/RAM byte buffers, generalized to
// arbitrary size and little-endian 1/2/4-byte MMIO access.
type ram struct {
	data []byte
}

func newRAM(size uint32) *ram {
	return &ram{data: make([]byte, size)}
}

func (r *ram) handlers() Handlers {
	return Handlers{Read: r.read, Write: r.write}
}

func (r *ram) read(offset uint32, size int) uint32 {
	var v uint32
	for i := 0; i < size; i++ {
		idx := int(offset) + i
		if idx < 0 || idx >= len(r.data) {
			continue
		}
		v |= uint32(r.data[idx]) << (8 * i)
	}
	return v
}

func (r *ram) write(offset uint32, size int, value uint32) {
	for i := 0; i < size; i++ {
		idx := int(offset) + i
		if idx < 0 || idx >= len(r.data) {
			continue
		}
		r.data[idx] = byte(value >> (8 * i))
	}
}

// handshakeReg models the fake application-core handshake word: writing
// 1 latches "woken", after which every read returns 3, matching
// ctr9_fake11_ops / n3ds's equivalent stub.
type handshakeReg struct {
	woken bool
}

func (h *handshakeReg) handlers() Handlers {
	return Handlers{Read: h.read, Write: h.write}
}

func (h *handshakeReg) read(offset uint32, size int) uint32 {
	if h.woken {
		return 3
	}
	return 0
}

func (h *handshakeReg) write(offset uint32, size int, value uint32) {
	if value == 1 {
		h.woken = true
	}
}
