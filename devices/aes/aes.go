// Package aes implements the 64-keyslot AES-128 engine: a
// proprietary key scrambler, three key-assembly FIFOs, a 16-byte
// write/read FIFO pair, and ECB/CBC/CTR (CCM unimplemented, see
// DESIGN.md). Grounded on ctr9_aes.c's CNT/KEYSEL/KEYCNT/CTR/TWLKEYS/
// KEYFIFO register layout; the scrambler arithmetic uses board/bit's
// big-endian 128-bit helpers (rather than the original's native-endian
// memory-reinterpret trick, which only happens to work on a
// little-endian host). AES-128
// block operations use crypto/aes, since no example repo in the pack
// ships a block cipher — see DESIGN.md.
package aes

import (
	"log/slog"

	"github.com/arm9board/core/board/bit"
	"github.com/arm9board/core/board/fifo"
	stdaes "crypto/aes"
	"crypto/cipher"
)

const (
	offCNT      = 0x000
	offBlkCount = 0x004
	offWRFIFO   = 0x008
	offRDFIFO   = 0x00C
	offKeySel   = 0x010
	offKeyCnt   = 0x011
	offCTR      = 0x020
	offMAC      = 0x030
	offTWLKeys  = 0x040
	twlKeysSize = 0xC0 // keyslots 0..3 only; KEYFIFO begins where this ends
	offKeyFifo  = 0x100
	offKeyXFifo = 0x104
	offKeyYFifo = 0x108

	numKeyslots = 64
	blockSize   = 16
	fifoDepth   = 128
)

// keyKind indexes a keyslot's three sub-keys.
type keyKind int

const (
	keyNormal keyKind = 0
	keyX      keyKind = 1
	keyY      keyKind = 2
)

// Mode is the 3-bit CNT mode field: even=decrypt, odd=encrypt.
type Mode uint8

const (
	ModeCCMDecrypt Mode = 0
	ModeCCMEncrypt Mode = 1
	ModeCTR0       Mode = 2
	ModeCTR1       Mode = 3
	ModeCBCDecrypt Mode = 4
	ModeCBCEncrypt Mode = 5
	ModeECBDecrypt Mode = 6
	ModeECBEncrypt Mode = 7
)

// cTWL and cCTR are the scrambler constants, given
// most-significant-word first.
var (
	cTWL = bit.U128{Hi: 0xFFFEFB4E29590258, Lo: 0x2A680F5F1A4F3E79}
	cCTR = bit.U128{Hi: 0x1FF9E9AAC5FE0408, Lo: 0x024591DC5D52768A}
)

// keyslot holds one slot's three sub-keys, stored in logical
// big-endian order (the scrambler formulas operate directly on this
// representation).
type keyslot struct {
	keys [3][blockSize]byte
}

// keyAssembly is one of the three write-only 16-byte key FIFO buffers.
type keyAssembly struct {
	buf [blockSize]byte
	n   int
}

// IRQLine is the AES completion interrupt output (PIC line 15).
type IRQLine interface {
	SetLevel(level bool)
}

// EdgeLine is one of the AES engine's two NDMA startup edges: WRFIFO
// has space, or RDFIFO has data.
type EdgeLine interface {
	Fire()
}

// AES is the block cipher engine.
type AES struct {
	inputOrder, outputOrder   bool // "normal" order: key FIFOs reverse word order when set, the data path (convert) when clear
	inputEndian, outputEndian bool // big-endian: key/TWLKEYS/CTR writes swap bytes per word when set, the data path when clear
	unk                       uint8
	mode                      Mode
	irqEnable                 bool
	started                   bool

	blockCount uint32

	wr, rd *fifo.FIFO

	keysel    uint8
	activeKey [blockSize]byte

	keycntKey     uint8
	scramblerType uint8
	keyfifoEn     bool

	ctr [blockSize]byte // raw MMIO bytes, hardware reversed-word order

	keyAssembly [3]keyAssembly
	slots       [numKeyslots]keyslot

	block   cipher.Block // nil when the selected keyslot is not crypto-backed
	counter bit.U128
	iv      [blockSize]byte

	irq     IRQLine
	wrReady EdgeLine
	rdReady EdgeLine
}

// New creates an idle AES engine with the reset-default endian/order
// bits (all big-endian/normal), matching ctr9_aes_init.
func New() *AES {
	return &AES{
		inputOrder: true, outputOrder: true,
		inputEndian: true, outputEndian: true,
		wr: fifo.New(fifoDepth), rd: fifo.New(fifoDepth),
	}
}

// ConnectIRQ attaches the block-completion interrupt line.
func (a *AES) ConnectIRQ(line IRQLine) { a.irq = line }

// ConnectEdges attaches the two NDMA startup edges.
func (a *AES) ConnectEdges(wrReady, rdReady EdgeLine) {
	a.wrReady, a.rdReady = wrReady, rdReady
}

func (a *AES) readCNT() uint32 {
	var v uint32
	v |= uint32(a.wr.Len()/4) & 0x1F
	v |= (uint32(a.rd.Len()/4) & 0x1F) << 5
	if a.outputEndian {
		v |= 1 << 22
	}
	if a.inputEndian {
		v |= 1 << 23
	}
	if a.outputOrder {
		v |= 1 << 24
	}
	if a.inputOrder {
		v |= 1 << 25
	}
	v |= uint32(a.unk&0x3) << 12
	v |= uint32(a.mode&0x7) << 27
	if a.irqEnable {
		v |= 1 << 30
	}
	if a.started {
		v |= 1 << 31
	}
	return v
}

func (a *AES) writeCNT(value uint32) {
	a.inputOrder = value&(1<<25) != 0
	a.outputOrder = value&(1<<24) != 0
	a.inputEndian = value&(1<<23) != 0
	a.outputEndian = value&(1<<22) != 0
	a.unk = uint8((value >> 12) & 0x3)
	a.mode = Mode((value >> 27) & 0x7)
	a.irqEnable = value&(1<<30) != 0
	starting := value&(1<<31) != 0

	if value&(1<<26) != 0 {
		a.activeKey = a.slots[a.keysel].keys[keyNormal]
	}

	if starting && !a.started {
		a.beginSession()
	}
	a.started = starting
}

// cryptoBacked reports whether keyslot id runs real AES-128; other
// slots pass data through unchanged.
func cryptoBacked(id uint8) bool { return id < 4 || id == 0x11 }

// beginSession implements the CNT start transitions 0->1 data path:
// clear WRFIFO, open the cipher with the active key and seed IV/counter
// from CTR (crypto-backed slots only), then fire the WRFIFO-ready edge.
// The block count is left as programmed.
func (a *AES) beginSession() {
	a.wr.Reset()

	if cryptoBacked(a.keysel) {
		block, err := stdaes.NewCipher(a.activeKey[:])
		if err != nil {
			slog.Warn("aes: failed to open cipher", "err", err)
			a.block = nil
		} else {
			a.block = block
		}
		iv := reverse16(a.ctr)
		a.iv = iv
		a.counter = bit.U128FromBytesBE(iv[:])
	} else {
		a.block = nil
	}

	if a.mode == ModeCCMDecrypt || a.mode == ModeCCMEncrypt {
		slog.Warn("aes: CCM mode requested but not implemented", "block_count", a.blockCount)
	}

	if a.wrReady != nil {
		a.wrReady.Fire()
	}
}

func (a *AES) writeWRFIFO(value uint32) {
	if !a.started || a.blockCount == 0 {
		return
	}
	a.wr.Push32(value)
	if a.wr.Len() != blockSize {
		return
	}

	var block [blockSize]byte
	for i := range block {
		b, _ := a.wr.PopByte()
		block[i] = b
	}

	in := convert(block, a.inputEndian, a.inputOrder)

	var out [blockSize]byte
	if a.block != nil {
		out = a.cryptBlock(in)
	} else {
		out = in
	}

	outConv := convert(out, a.outputEndian, a.outputOrder)
	a.rd.PushBytes(outConv[:])

	if a.wr.Free() >= blockSize && a.wrReady != nil {
		a.wrReady.Fire()
	}
	if a.rd.Len() >= blockSize && a.rdReady != nil {
		a.rdReady.Fire()
	}

	a.blockCount--
	if a.blockCount == 0 {
		a.started = false
		a.wr.Reset()
		a.block = nil
		if a.irqEnable && a.irq != nil {
			a.irq.SetLevel(true)
		}
	}
}

func (a *AES) cryptBlock(in [blockSize]byte) [blockSize]byte {
	switch a.mode {
	case ModeCTR0, ModeCTR1:
		return a.ctrBlock(in)
	case ModeCBCEncrypt:
		return a.cbcEncryptBlock(in)
	case ModeCBCDecrypt:
		return a.cbcDecryptBlock(in)
	case ModeECBEncrypt:
		var out [blockSize]byte
		a.block.Encrypt(out[:], in[:])
		return out
	case ModeECBDecrypt:
		var out [blockSize]byte
		a.block.Decrypt(out[:], in[:])
		return out
	default:
		slog.Warn("aes: CCM block requested but not implemented", "mode", a.mode)
		return in
	}
}

func (a *AES) ctrBlock(in [blockSize]byte) [blockSize]byte {
	var ctrBytes, keystream, out [blockSize]byte
	a.counter.BytesBE(ctrBytes[:])
	a.block.Encrypt(keystream[:], ctrBytes[:])
	for i := range out {
		out[i] = in[i] ^ keystream[i]
	}
	a.counter = bit.Add128(a.counter, bit.U128{Lo: 1})
	return out
}

func (a *AES) cbcEncryptBlock(in [blockSize]byte) [blockSize]byte {
	var xored, out [blockSize]byte
	for i := range xored {
		xored[i] = in[i] ^ a.iv[i]
	}
	a.block.Encrypt(out[:], xored[:])
	a.iv = out
	return out
}

func (a *AES) cbcDecryptBlock(in [blockSize]byte) [blockSize]byte {
	var decrypted, out [blockSize]byte
	a.block.Decrypt(decrypted[:], in[:])
	for i := range out {
		out[i] = decrypted[i] ^ a.iv[i]
	}
	a.iv = in
	return out
}

// swapWordsBE32 flips byte order within each of the four 32-bit words.
func swapWordsBE32(b [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	for w := 0; w < 4; w++ {
		i := w * 4
		out[i], out[i+1], out[i+2], out[i+3] = b[i+3], b[i+2], b[i+1], b[i]
	}
	return out
}

// reverseWordOrder reverses the order of the four 32-bit words.
func reverseWordOrder(b [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	for w := 0; w < 4; w++ {
		copy(out[w*4:w*4+4], b[(3-w)*4:(3-w)*4+4])
	}
	return out
}

func reverse16(b [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	for i := range b {
		out[i] = b[blockSize-1-i]
	}
	return out
}

// convert applies the endian/order conversion to the bulk data path:
// a per-word byte swap when endianBE is false, and a
// whole-block word-order reversal when orderNormal is false. Unlike
// the key FIFOs' polarity (grounded directly on ctr9_aes_keyfifo_write),
// the WRFIFO/RDFIFO data path has no original-hardware equivalent to
// ground against, so "normal" is defined as the identity transform.
func convert(b [blockSize]byte, endianBE, orderNormal bool) [blockSize]byte {
	out := b
	if !endianBE {
		out = swapWordsBE32(out)
	}
	if !orderNormal {
		out = reverseWordOrder(out)
	}
	return out
}

// scramble recomputes keyslot id's Normal key from its X/Y sub-keys.
func (a *AES) scramble(id uint8) {
	k := &a.slots[id]
	x := bit.U128FromBytesBE(k.keys[keyX][:])
	y := bit.U128FromBytesBE(k.keys[keyY][:])

	var n bit.U128
	if id < 4 || a.scramblerType == 1 {
		n = bit.Rol128(bit.Add128(bit.Xor128(x, y), cTWL), 42)
	} else {
		n = bit.Ror128(bit.Add128(bit.Xor128(bit.Rol128(x, 2), y), cCTR), 41)
	}
	n.BytesBE(k.keys[keyNormal][:])
}

// writeKeyFifo assembles one 4-byte push into the given sub-key's
// 16-byte FIFO buffer, flushing into the selected keyslot once full,
// matching ctr9_aes_keyfifo_write.
func (a *AES) writeKeyFifo(kind keyKind, value uint32, size int) {
	if size == 1 {
		value |= value<<8 | value<<16 | value<<24
	} else if size == 2 {
		value |= value << 16
	}

	asm := &a.keyAssembly[kind]
	var word [4]byte
	if a.inputEndian {
		word = [4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	} else {
		word = [4]byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	}
	copy(asm.buf[asm.n:], word[:])
	asm.n += 4
	if asm.n != blockSize {
		return
	}

	target := &a.slots[a.keycntKey].keys[kind]
	if a.inputOrder {
		*target = reverseWordOrder(asm.buf)
	} else {
		*target = asm.buf
	}
	asm.n = 0

	if kind == keyY {
		a.scramble(a.keycntKey)
	}
}

// writeTWLKeys handles a direct byte/half/word write into the
// TWLKEYS window, which only reaches keyslots 0..3 (the window ends
// exactly where KEYFIFO begins).
func (a *AES) writeTWLKeys(offset uint32, size int, value uint32) {
	rel := offset - offTWLKeys
	slotID := rel / (blockSize * 3)
	kind := keyKind((rel / blockSize) % 3)
	byteOff := rel % blockSize

	var buf [4]byte
	for i := 0; i < size; i++ {
		buf[i] = byte(value >> (8 * i))
	}
	if size == 4 && a.inputEndian {
		buf[0], buf[1], buf[2], buf[3] = buf[3], buf[2], buf[1], buf[0]
	}

	target := &a.slots[slotID].keys[kind]
	for i := 0; i < size; i++ {
		target[byteOff+uint32(i)] = buf[i]
	}

	if kind == keyY && byteOff+uint32(size) >= blockSize {
		a.scramble(uint8(slotID))
	}
}

func (a *AES) writeCTR(rel uint32, size int, value uint32) {
	if size != 4 {
		return
	}
	v := value
	if a.inputEndian {
		v = uint32(byte(value))<<24 | uint32(byte(value>>8))<<16 | uint32(byte(value>>16))<<8 | uint32(byte(value>>24))
	}
	a.ctr[rel] = byte(v)
	a.ctr[rel+1] = byte(v >> 8)
	a.ctr[rel+2] = byte(v >> 16)
	a.ctr[rel+3] = byte(v >> 24)
}

// Read implements the MMIO read side.
func (a *AES) Read(offset uint32, size int) uint32 {
	switch {
	case offset < offCNT+4:
		return a.readCNT()
	case offset == offRDFIFO:
		v, _ := a.rd.Pop32()
		return v
	case offset == offKeySel:
		return uint32(a.keysel)
	case offset == offKeyCnt:
		v := uint32(a.keycntKey)
		v |= uint32(a.scramblerType) << 6
		if a.keyfifoEn {
			v |= 1 << 7
		}
		return v
	default:
		return 0
	}
}

// Write implements the MMIO write side.
func (a *AES) Write(offset uint32, size int, value uint32) {
	switch {
	case offset < offCNT+4:
		a.writeCNT(value)
	case offset == offBlkCount:
		if size == 4 {
			a.blockCount = value >> 16
		}
	case offset == offBlkCount+2:
		if size <= 2 {
			a.blockCount = value
		}
	case offset == offWRFIFO:
		a.writeWRFIFO(value)
	case offset == offKeySel:
		a.keysel = uint8(value & 0x3F)
	case offset == offKeyCnt:
		a.keycntKey = uint8(value & 0x3F)
		a.scramblerType = uint8((value >> 6) & 1)
		a.keyfifoEn = value&(1<<7) != 0
	case offset >= offCTR && offset < offCTR+blockSize:
		a.writeCTR(offset-offCTR, size, value)
	case offset >= offMAC && offset < offMAC+blockSize:
		// CCM MAC register: stored nowhere, since CCM is unimplemented.
	case offset >= offTWLKeys && offset < offTWLKeys+twlKeysSize:
		a.writeTWLKeys(offset, size, value)
	case offset == offKeyFifo:
		a.writeKeyFifo(keyNormal, value, size)
	case offset == offKeyXFifo:
		a.writeKeyFifo(keyX, value, size)
	case offset == offKeyYFifo:
		a.writeKeyFifo(keyY, value, size)
	default:
	}
}
