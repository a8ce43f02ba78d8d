package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyFullInvariant(t *testing.T) {
	f := New(8)
	assert.True(t, f.Empty())
	assert.False(t, f.Full())
	assert.Equal(t, 0, f.Len())

	for i := 0; i < 8; i++ {
		assert.True(t, f.PushByte(byte(i)))
	}
	assert.True(t, f.Full())
	assert.False(t, f.Empty())
	assert.Equal(t, 8, f.Len())
	assert.False(t, f.PushByte(0xFF), "push into full fifo must fail")

	for i := 0; i < 8; i++ {
		b, ok := f.PopByte()
		assert.True(t, ok)
		assert.Equal(t, byte(i), b)
	}
	assert.True(t, f.Empty())
	_, ok := f.PopByte()
	assert.False(t, ok, "pop from empty fifo must fail")
}

func TestWrapAround(t *testing.T) {
	f := New(4)
	for i := 0; i < 3; i++ {
		f.PushByte(byte(i))
	}
	f.PopByte()
	f.PopByte()
	for i := 10; i < 13; i++ {
		assert.True(t, f.PushByte(byte(i)))
	}
	assert.True(t, f.Full())

	var got []byte
	for !f.Empty() {
		b, _ := f.PopByte()
		got = append(got, b)
	}
	assert.Equal(t, []byte{2, 10, 11, 12}, got)
}

func TestLenMatchesInvariantThroughRandomOps(t *testing.T) {
	f := New(16)
	state := 12345
	rnd := func() int {
		state = (state*1103515245 + 12345) & 0x7fffffff
		return state
	}

	var model []byte
	for i := 0; i < 1000; i++ {
		if rnd()%2 == 0 && len(model) < 16 {
			b := byte(rnd())
			if f.PushByte(b) {
				model = append(model, b)
			}
		} else if len(model) > 0 {
			b, ok := f.PopByte()
			assert.True(t, ok)
			assert.Equal(t, model[0], b)
			model = model[1:]
		}
		assert.Equal(t, len(model), f.Len())
		assert.True(t, f.Len() >= 0 && f.Len() <= f.Cap())
	}
}

func TestPush32Pop32RoundTrip(t *testing.T) {
	f := New(8)
	assert.True(t, f.Push32(0xDEADBEEF))
	v, ok := f.Pop32()
	assert.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { New(3) })
	assert.Panics(t, func() { New(0) })
}
