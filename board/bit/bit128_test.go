package bit

import "testing"

func TestRol128Ror128RoundTrip(t *testing.T) {
	a := U128{Hi: 0x0123456789ABCDEF, Lo: 0xFEDCBA9876543210}
	for n := uint(0); n < 128; n++ {
		rolled := Rol128(a, n)
		back := Ror128(rolled, n)
		if back != a {
			t.Fatalf("rol/ror mismatch at n=%d: got %+v want %+v", n, back, a)
		}
	}
}

func TestRol128ByOne(t *testing.T) {
	a := U128{Hi: 0x8000000000000000, Lo: 0}
	got := Rol128(a, 1)
	want := U128{Hi: 0, Lo: 0x0000000000000001}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestRor128ByOne(t *testing.T) {
	a := U128{Hi: 0, Lo: 1}
	got := Ror128(a, 1)
	want := U128{Hi: 0x8000000000000000, Lo: 0}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestAdd128Carry(t *testing.T) {
	a := U128{Hi: 0, Lo: 0xFFFFFFFFFFFFFFFF}
	b := U128{Hi: 0, Lo: 1}
	got := Add128(a, b)
	want := U128{Hi: 1, Lo: 0}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestXor128(t *testing.T) {
	a := U128{Hi: 0xF0F0F0F0F0F0F0F0, Lo: 0x0F0F0F0F0F0F0F0F}
	b := U128{Hi: 0xFFFFFFFFFFFFFFFF, Lo: 0xFFFFFFFFFFFFFFFF}
	got := Xor128(a, b)
	want := U128{Hi: 0x0F0F0F0F0F0F0F0F, Lo: 0xF0F0F0F0F0F0F0F0}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestBytesBERoundTrip(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
	v := U128FromBytesBE(b)
	out := make([]byte, 16)
	v.BytesBE(out)
	for i := range b {
		if b[i] != out[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, out[i], b[i])
		}
	}
}

func TestBytesLERoundTrip(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
	v := U128FromBytesLE(b)
	out := make([]byte, 16)
	v.BytesLE(out)
	for i := range b {
		if b[i] != out[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, out[i], b[i])
		}
	}
}

func TestBytesLEAddMatchesCarryAcrossWordBoundary(t *testing.T) {
	// bytes 0..7 are the LE value's low 64 bits, all ones here; adding
	// one must carry into the high limb, matching the C scrambler's
	// uint64[2] reinterpretation of a little-endian byte buffer.
	b := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0}
	v := U128FromBytesLE(b)
	one := U128{Lo: 1}
	got := Add128(v, one)
	want := U128{Hi: 1, Lo: 0}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}
