// Package sdmmc implements the TMIO-style dual-card (SD + eMMC) host:
// one register window shared by two cards selected via PORTSEL, command
// dispatch over CMD/CMDARG0/CMDARG1, and a per-block read/write state
// machine backed by host files. Grounded on ctr9_sdmmc.c's register
// offsets, status-bit layout, and command table; ctr9_sdmmc.c was
// preferred over the n3ds_sdmmc.c variant (as PIT preferred ctr9_pit.c)
// since it is the more complete of the two, modeling per-card irqmasks
// and the 32-bit register aliases the other lacks.
package sdmmc

import (
	"log/slog"
	"os"
)

const (
	offCMD       = 0x00
	offPortSel   = 0x02
	offCmdArg0   = 0x04
	offCmdArg1   = 0x06
	offStop      = 0x08
	offBlkCount  = 0x0A
	offResp0     = 0x0C
	offResp1     = 0x0E
	offResp2     = 0x10
	offResp3     = 0x12
	offResp4     = 0x14
	offResp5     = 0x16
	offResp6     = 0x18
	offResp7     = 0x1A
	offStatus0   = 0x1C
	offStatus1   = 0x1E
	offIRQMask0  = 0x20
	offIRQMask1  = 0x22
	offCLKCtl    = 0x24
	offOpt       = 0x28
	offFIFO      = 0x30
	offReset     = 0xE0

	offDataCtl32  = 0x100
	offBlkLen32   = 0x104
	offBlkCount32 = 0x108
	offFIFO32     = 0x10C
)

// TMIO status bits.
const (
	stat0CmdRespEnd  = 0x0001
	stat0DataEnd     = 0x0004
	stat0SigState    = 0x0020
	stat0WrProtect   = 0x0080
	stat0SigStateA   = 0x0400
	stat0NormalBits  = stat0SigState | stat0WrProtect | stat0SigStateA

	stat1CmdTimeout = 0x0040
	stat1RxRdy      = 0x0100
	stat1TxRq       = 0x0200
	stat1CmdBusy    = 0x4000
	stat1NormalBits = 0x0080
)

// Card state machine values, matching ctr9_sdmmc.c's EMMC_STATE_* table.
const (
	stateIdle = iota
	stateReady
	stateIdent
	stateStandby
	stateTransfer
	stateRead
	stateWrite
	stateProg
	stateDC
)

const bufferSize = 0x1000

// IRQLine is the host's single interrupt output, raised whenever the
// selected card has an unmasked status bit set.
type IRQLine interface {
	SetLevel(level bool)
}

// card is one of the two TMIO cards (SD at index 0, eMMC/NAND at
// index 1) sharing the host's register window.
type card struct {
	cid, csd [4]uint32 // little-endian words, CRC zeroed, MSB-padded
	isSD     bool

	state int

	blockLen     uint32
	ioBlockCount uint32
	ioOffset     uint32

	buffer    [bufferSize]byte
	bufferPtr uint32

	status0, status1   uint16
	irqMask0, irqMask1 uint16
	ctl32              uint32

	file  *os.File
	label string
}

// SDMMC is the dual-card host.
type SDMMC struct {
	cards    [2]card
	selected int

	prevCmd          uint16
	cmdArg0, cmdArg1 uint16
	resp             [4]uint32

	extCSD []byte

	irq IRQLine
}

// New creates a host with card 0 as SD and card 1 as eMMC (NAND), both
// idle, with card 0 selected, matching ctr9_sdmmc_init's reset defaults.
func New() *SDMMC {
	s := &SDMMC{}
	s.cards[0].isSD = true
	s.cards[0].label = "sd"
	s.cards[0].irqMask0 = 0x31D
	s.cards[0].irqMask1 = 0x807F
	s.cards[1].label = "nand"
	s.cards[1].irqMask0 = 0x31D
	s.cards[1].irqMask1 = 0x837F
	return s
}

// ConnectIRQ attaches the host's single interrupt output (PIC line 16;
// the SDIO-1-async line 17 is unused, since card insert/remove is out
// of scope).
func (s *SDMMC) ConnectIRQ(line IRQLine) { s.irq = line }

// SetBackingFile attaches card cardIdx's (0=SD, 1=eMMC) read/write
// backing store. A nil file means the host file was missing: reads
// from that card return zero and writes are discarded, per the
// missing-host-file error class; the caller is expected to have
// already logged the open failure.
func (s *SDMMC) SetBackingFile(cardIdx int, file *os.File) {
	if cardIdx < 0 || cardIdx > 1 {
		return
	}
	s.cards[cardIdx].file = file
}

// LoadSDMMCInfo parses the 4x16-byte blob (NAND-CSD, NAND-CID, SD-CSD,
// SD-CID) consumed on startup. A short or missing blob leaves every
// CID/CSD zeroed rather than aborting.
func (s *SDMMC) LoadSDMMCInfo(data []byte) {
	if len(data) < 64 {
		slog.Error("sdmmc: sdmmc_info.bin missing or too short, CID/CSD left zeroed", "got", len(data))
		return
	}
	s.cards[1].csd = unpackLE128(data[0:16])
	s.cards[1].cid = unpackLE128(data[16:32])
	s.cards[0].csd = unpackLE128(data[32:48])
	s.cards[0].cid = unpackLE128(data[48:64])
}

// LoadExtCSD preloads the 512-byte extcsd.bin blob the eMMC's
// SEND_EXT_CSD command (CMD8) serves. Unlike the original, which
// re-opens the file on every CMD8, this is loaded once at board setup.
// A missing or short blob is logged once here and CMD8 then serves a
// zeroed buffer, per the missing-host-file error class.
func (s *SDMMC) LoadExtCSD(data []byte) {
	if len(data) < 0x200 {
		slog.Error("sdmmc: extcsd.bin missing or too short, SEND_EXT_CSD will read zeros", "got", len(data))
	}
	s.extCSD = data
}

func unpackLE128(b []byte) [4]uint32 {
	var v [4]uint32
	for i := 0; i < 4; i++ {
		v[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	return v
}

func (s *SDMMC) card() *card { return &s.cards[s.selected] }

func respR1(c *card) [4]uint32 {
	return [4]uint32{uint32(c.state<<1|1) << 8, 0, 0, 0}
}

// Read implements the MMIO read side.
func (s *SDMMC) Read(offset uint32, size int) uint32 {
	c := s.card()
	switch offset {
	case offCMD:
		return uint32(s.prevCmd)
	case offPortSel:
		return uint32(s.selected)
	case offStatus0:
		v := uint32(c.status0) | stat0NormalBits
		if size == 4 {
			v |= (uint32(c.status1) | stat1NormalBits) << 16
		}
		return v
	case offStatus1:
		return uint32(c.status1) | stat1NormalBits
	case offIRQMask0:
		return uint32(c.irqMask0)
	case offIRQMask1:
		return uint32(c.irqMask1)
	case offCLKCtl:
		return 0x0300
	case offOpt:
		return 0x40EB
	case offReset:
		return 0x0007
	case offResp0:
		return s.resp[0] & 0xFFFF
	case offResp1:
		return s.resp[0] >> 16
	case offResp2:
		return s.resp[1] & 0xFFFF
	case offResp3:
		return s.resp[1] >> 16
	case offResp4:
		return s.resp[2] & 0xFFFF
	case offResp5:
		return s.resp[2] >> 16
	case offResp6:
		return s.resp[3] & 0xFFFF
	case offResp7:
		return s.resp[3] >> 16
	case offFIFO, offFIFO32:
		return s.readFIFO(c, size)
	case offDataCtl32:
		return c.ctl32 | 2
	default:
		return 0
	}
}

func (s *SDMMC) readFIFO(c *card, size int) uint32 {
	if c.state != stateRead || c.bufferPtr >= c.blockLen {
		return 0
	}
	var v uint32
	for i := 0; i < size; i++ {
		v |= uint32(c.buffer[c.bufferPtr+uint32(i)]) << (8 * i)
	}
	c.bufferPtr += uint32(size)
	if c.bufferPtr == c.blockLen {
		s.fileRead(c)
	}
	return v
}

// Write implements the MMIO write side.
func (s *SDMMC) Write(offset uint32, size int, value uint32) {
	c := s.card()
	switch offset {
	case offCMD:
		s.prevCmd = uint16(value)
		s.dispatch(uint8(value & 0xFF))
	case offCmdArg0:
		s.cmdArg0 = uint16(value)
	case offCmdArg1:
		s.cmdArg1 = uint16(value)
	case offStop:
		s.writeStop(c, value)
	case offBlkCount, offBlkCount32:
		c.ioBlockCount = value
	case offPortSel:
		if value&0x03 == 0 {
			s.selected = 0
		} else {
			s.selected = 1
		}
	case offStatus0:
		c.status0 &= uint16(value)
	case offStatus1:
		c.status1 &= uint16(value)
	case offIRQMask0:
		c.irqMask0 = uint16(value)
	case offIRQMask1:
		c.irqMask1 = uint16(value)
	case offCLKCtl, offOpt, offReset:
	case offDataCtl32:
		c.ctl32 = value
	case offBlkLen32:
		c.blockLen = value
	case offFIFO, offFIFO32:
		s.writeFIFO(c, size, value)
	default:
		slog.Debug("sdmmc: write to unmapped offset", "offset", offset)
	}
}

func (s *SDMMC) writeFIFO(c *card, size int, value uint32) {
	if c.state != stateWrite || c.bufferPtr >= c.blockLen {
		return
	}
	for i := 0; i < size; i++ {
		c.buffer[c.bufferPtr+uint32(i)] = byte(value >> (8 * i))
	}
	c.bufferPtr += uint32(size)
	if c.bufferPtr == c.blockLen {
		s.fileWrite(c)
	}
}

// writeStop handles the STOP register: a nonzero write aborts the
// current data phase. Whether a STOP_TRANSMISSION during a write
// flushes the partially-filled buffer to backing storage is
// inconsistent between known source variants; this flushes whatever
// has been collected so far, for safety.
func (s *SDMMC) writeStop(c *card, value uint32) {
	if value == 0 {
		return
	}
	if c.state == stateWrite && c.bufferPtr > 0 {
		s.flushPartial(c)
	}
	if c.state == stateRead || c.state == stateWrite {
		c.state = stateTransfer
	} else {
		c.state = stateReady
	}
	c.status1 = 0
	s.resp = respR1(c)
}

func (s *SDMMC) flushPartial(c *card) {
	if c.file == nil {
		return
	}
	if _, err := c.file.WriteAt(c.buffer[:c.bufferPtr], int64(c.ioOffset)); err != nil {
		slog.Error("sdmmc: partial write flush failed", "card", c.label, "error", err)
	}
}

func (s *SDMMC) readBlock(c *card) {
	if c.file == nil {
		for i := uint32(0); i < c.blockLen && i < bufferSize; i++ {
			c.buffer[i] = 0
		}
		return
	}
	if _, err := c.file.ReadAt(c.buffer[:c.blockLen], int64(c.ioOffset)); err != nil {
		slog.Debug("sdmmc: short or failed read from backing file", "card", c.label, "offset", c.ioOffset, "error", err)
	}
}

func (s *SDMMC) writeBlock(c *card) {
	if c.file == nil {
		return
	}
	if _, err := c.file.WriteAt(c.buffer[:c.blockLen], int64(c.ioOffset)); err != nil {
		slog.Error("sdmmc: write to backing file failed", "card", c.label, "error", err)
	}
}

// fileRead advances the read-multiple-block state machine: refills the
// buffer from the backing file, or asserts DATAEND once exhausted.
func (s *SDMMC) fileRead(c *card) {
	if c.ioBlockCount >= 1 {
		s.readBlock(c)
		c.bufferPtr = 0
		c.ioOffset += c.blockLen
		c.ioBlockCount--
		c.status0 = stat0CmdRespEnd
		c.status1 = stat1CmdBusy | stat1RxRdy
		c.ctl32 |= 0x100
	} else {
		c.status0 = stat0CmdRespEnd | stat0DataEnd
		c.status1 = 0
		c.ctl32 = 0
		c.state = stateTransfer
	}
}

// fileWrite mirrors fileRead for write-multiple-block: flushes the
// collected buffer, then either requests the next chunk or asserts
// DATAEND.
func (s *SDMMC) fileWrite(c *card) {
	if c.ioBlockCount >= 1 {
		s.writeBlock(c)
		c.bufferPtr = 0
		c.ioOffset += c.blockLen
		c.ioBlockCount--
		if c.ioBlockCount > 0 {
			c.status0 = stat0CmdRespEnd
			c.status1 = stat1CmdBusy | stat1TxRq
			c.ctl32 |= 0x100
		} else {
			c.status0 = stat0CmdRespEnd | stat0DataEnd
			c.status1 = 0
			c.ctl32 = 0
			c.state = stateTransfer
		}
	} else {
		c.status0 = stat0CmdRespEnd | stat0DataEnd
		c.status1 = 0
		c.state = stateReady
	}
}

// dispatch executes one CMD (or ACMD) register write: the command
// coverage required is CMD0/1/2/3/6/7/8/9/10/12/13/16/18/25/55,
// ACMD6, ACMD41.
func (s *SDMMC) dispatch(cmd uint8) {
	c := s.card()
	c.status0 = 0
	arg := uint32(s.cmdArg0) | uint32(s.cmdArg1)<<16

	switch cmd {
	case 0x00: // GO_IDLE_STATE
		c.status0 = stat0CmdRespEnd
		c.state = stateIdle
	case 0x01: // SEND_OP_COND
		s.resp[0] = 0x80FF8080
		c.status0 = stat0CmdRespEnd
		c.state = stateReady
	case 0x02: // ALL_SEND_CID
		s.resp = c.cid
		c.status0 = stat0CmdRespEnd
		c.state = stateIdent
	case 0x03: // SEND_RELATIVE_ADDR
		if s.selected == 1 {
			s.resp[0] = 0x01
		} else {
			s.resp[0] = 0x48
		}
		c.status0 = stat0CmdRespEnd
	case 0x06: // SWITCH
		c.status0 = stat0CmdRespEnd
		s.resp = respR1(c)
	case 0x07: // SELECT_CARD
		c.status0 = stat0CmdRespEnd
		s.resp = respR1(c)
		c.state = stateTransfer
	case 0x08: // SEND_EXT_CSD (eMMC) / SEND_IF_COND (SD)
		s.dispatchCMD8(c, arg)
	case 0x09: // SEND_CSD
		s.resp = c.csd
		c.status0 = stat0CmdRespEnd
	case 0x0A: // SEND_CID
		s.resp = c.cid
		c.status0 = stat0CmdRespEnd
	case 0x0C: // STOP_TRANSMISSION
		c.status0 = stat0CmdRespEnd
		c.state = stateTransfer
		c.bufferPtr = 0
		c.ioBlockCount = 0
		s.resp = respR1(c)
	case 0x0D: // SEND_STATUS
		c.status0 = stat0CmdRespEnd
		s.resp = respR1(c)
	case 0x10: // SET_BLOCKLEN
		c.blockLen = uint32(s.cmdArg0)
		c.status0 = stat0CmdRespEnd
		s.resp = respR1(c)
	case 0x12: // READ_MULTIPLE_BLOCK
		c.ioOffset = arg
		c.state = stateRead
		s.fileRead(c)
		s.resp = respR1(c)
	case 0x19: // WRITE_MULTIPLE_BLOCK
		c.bufferPtr = 0
		c.ioOffset = arg
		c.state = stateWrite
		c.status0 = stat0CmdRespEnd
		c.status1 = stat1TxRq
	case 0x37: // APP_CMD (55)
		if !c.isSD {
			c.status1 = stat1CmdTimeout
		}
		c.status0 = stat0CmdRespEnd
	case 0x46: // ACMD6 BUS_WIDTH
		if !c.isSD {
			c.status1 = stat1CmdTimeout
		}
		c.status0 = stat0CmdRespEnd
	case 0x69: // ACMD41 SD_APP_OP_COND
		if c.isSD {
			s.resp[0] = (0x80000000 | arg) &^ 0x40000000
			c.state = stateReady
		} else {
			c.status1 = stat1CmdTimeout
		}
		c.status0 = stat0CmdRespEnd
	}

	if c.status0&^c.irqMask0 != 0 || c.status1&^c.irqMask1 != 0 {
		if s.irq != nil {
			s.irq.SetLevel(true)
		}
	}
}

func (s *SDMMC) dispatchCMD8(c *card, arg uint32) {
	if c.isSD {
		s.resp[0] = arg
		c.status0 = stat0CmdRespEnd
		return
	}
	if c.state == stateIdle {
		c.status0 = stat0CmdRespEnd
		c.status1 = stat1CmdTimeout
		return
	}
	c.bufferPtr = 0
	c.ioBlockCount = 0
	c.blockLen = 0x200
	for i := uint32(0); i < c.blockLen; i++ {
		c.buffer[i] = 0
	}
	if len(s.extCSD) >= int(c.blockLen) {
		copy(c.buffer[:c.blockLen], s.extCSD)
	}
	c.status0 = stat0CmdRespEnd
	c.status1 = stat1CmdBusy | stat1RxRdy
	c.ctl32 |= 0x100
	s.resp = respR1(c)
	c.state = stateRead
}
