package sha

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pushInFifo(s *SHA, data []byte) {
	for i := 0; i < len(data); i += 4 {
		end := i + 4
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]
		var buf [4]byte
		copy(buf[:], chunk)
		v := binary.LittleEndian.Uint32(buf[:])
		s.Write(offInFifoLo, len(chunk), v)
	}
}

func readHash(s *SHA, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i += 4 {
		v := s.Read(offHashLo+uint32(i), 4)
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		copy(out[i:], buf[:])
	}
	return out
}

// cntValue builds a full CNT register value, since a write to CNT
// replaces every field at once (matching ctr9_sha.c): callers must
// restate mode and output_endian on every write, including the
// finalizing one.
func cntValue(start, final bool, mode Mode, nativeEndian bool) uint32 {
	var v uint32
	if start {
		v |= 1
	}
	if final {
		v |= 1 << 1
	}
	if nativeEndian {
		v |= 1 << 3
	}
	v |= uint32(mode&0x3) << 4
	return v
}

// TestSHA256StreamingABC exercises the SHA-256 streaming
// scenario: push "abc" through INFIFO, finalize, and expect the known
// digest (default output_endian, matching ctr9_sha_init's reset value).
func TestSHA256StreamingABC(t *testing.T) {
	s := New()
	s.Write(offCNT, 4, cntValue(true, false, ModeSHA256, true))
	pushInFifo(s, []byte("abc"))
	s.Write(offCNT, 4, cntValue(false, true, ModeSHA256, true))

	got := readHash(s, 32)
	want := sha256.Sum256([]byte("abc"))
	assert.Equal(t, want[:], got)
}

func TestSHA1Streaming(t *testing.T) {
	s := New()
	s.Write(offCNT, 4, cntValue(true, false, ModeSHA1, true))
	pushInFifo(s, []byte("abc"))
	s.Write(offCNT, 4, cntValue(false, true, ModeSHA1, true))

	got := readHash(s, 20)
	want := sha1.Sum([]byte("abc"))
	assert.Equal(t, want[:], got)
}

func TestSHA224Streaming(t *testing.T) {
	s := New()
	s.Write(offCNT, 4, cntValue(true, false, ModeSHA224, true))
	pushInFifo(s, []byte("abc"))
	s.Write(offCNT, 4, cntValue(false, true, ModeSHA224, true))

	got := readHash(s, 28)
	want := sha256.Sum224([]byte("abc"))
	assert.Equal(t, want[:], got)
}

// TestChunkingIsTransparent verifies that splitting input across many
// small writes must not change the resulting digest, regardless of
// where the 128-byte buffer wraps.
func TestChunkingIsTransparent(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 7)
	}

	s1 := New()
	s1.Write(offCNT, 4, cntValue(true, false, ModeSHA256, true))
	pushInFifo(s1, data)
	s1.Write(offCNT, 4, cntValue(false, true, ModeSHA256, true))
	got1 := readHash(s1, 32)

	s2 := New()
	s2.Write(offCNT, 4, cntValue(true, false, ModeSHA256, true))
	for _, b := range data {
		s2.Write(offInFifoLo, 1, uint32(b))
	}
	s2.Write(offCNT, 4, cntValue(false, true, ModeSHA256, true))
	got2 := readHash(s2, 32)

	want := sha256.Sum256(data)
	assert.Equal(t, want[:], got1)
	assert.Equal(t, want[:], got2)
}

func TestOutputEndianSwapsWords(t *testing.T) {
	s := New()
	s.Write(offCNT, 4, cntValue(true, false, ModeSHA256, true))
	pushInFifo(s, []byte("abc"))
	s.Write(offCNT, 4, cntValue(false, true, ModeSHA256, true))
	native := readHash(s, 32)

	s2 := New()
	s2.Write(offCNT, 4, cntValue(true, false, ModeSHA256, false))
	pushInFifo(s2, []byte("abc"))
	s2.Write(offCNT, 4, cntValue(false, true, ModeSHA256, false))
	swapped := readHash(s2, 32)

	assert.NotEqual(t, native, swapped)
	assert.Equal(t, swapWords(native), swapped)
}

func TestBlockCountTracksBytesFed(t *testing.T) {
	s := New()
	s.Write(offCNT, 4, cntValue(true, false, ModeSHA256, true))
	pushInFifo(s, []byte("abc"))
	assert.Equal(t, uint32(3), s.Read(offBlockCount, 4))
}
