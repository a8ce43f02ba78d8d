package hid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllReleasedReadsAllOnes(t *testing.T) {
	h := New()
	assert.Equal(t, uint32(0xFFFFFFFF), h.Read(0, 4))
}

func TestPressClearsTheMappedBit(t *testing.T) {
	h := New()
	h.Press("M") // A
	assert.Equal(t, ^uint32(ButtonA), h.Read(0, 4))
}

func TestReleaseSetsTheBitBackFlag(t *testing.T) {
	h := New()
	h.Press("N") // B
	h.Release("N")
	assert.Equal(t, uint32(0xFFFFFFFF), h.Read(0, 4))
}

func TestRepeatedPressIsIdempotent(t *testing.T) {
	h := New()
	h.Press("J") // X
	h.Press("J")
	assert.Equal(t, ^uint32(ButtonX), h.Read(0, 4))
}

func TestArrowKeysMapToDpad(t *testing.T) {
	h := New()
	h.Press("Up")
	h.Press("Left")
	want := ^uint32(ButtonUp | ButtonLeft)
	assert.Equal(t, want, h.Read(0, 4))
}

func TestUnmappedKeyIsNoOp(t *testing.T) {
	h := New()
	h.Press("Start")
	assert.Equal(t, uint32(0xFFFFFFFF), h.Read(0, 4))
}

func TestWriteIsIgnored(t *testing.T) {
	h := New()
	h.Write(0, 4, 0xFFFFFFFF)
	assert.Equal(t, uint32(0xFFFFFFFF), h.Read(0, 4))
}
