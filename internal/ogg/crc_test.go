package ogg

import "testing"

func TestChecksumKnownVector(t *testing.T) {
	t.Parallel()
	// CRC-32/CKSUM of "123456789" is 0x765E7680; Ogg omits the final xor.
	data := []byte("123456789")
	got := Checksum(data)
	want := uint32(0x765E7680 ^ 0xFFFFFFFF)
	if got != want {
		t.Errorf("Checksum(%q) = 0x%08X, want 0x%08X", data, got, want)
	}
}

func TestChecksumEmpty(t *testing.T) {
	t.Parallel()
	if got := Checksum(nil); got != 0 {
		t.Errorf("Checksum(nil) = 0x%08X, want 0", got)
	}
}

func TestUpdateIncremental(t *testing.T) {
	t.Parallel()
	data := []byte("OggS incremental checksum")
	whole := Checksum(data)
	split := Update(Update(0, data[:7]), data[7:])
	if whole != split {
		t.Errorf("split checksum 0x%08X != whole 0x%08X", split, whole)
	}
}
