// Package bitio provides MSB-first bit reading and writing over byte slices
// plus the small fixed-width integer helpers the container parsers need.
package bitio

// Reader reads bits MSB-first from a byte slice. Reads past the end return
// zero bits and set the overflow flag; Skip may move the position past the
// end so callers can detect overrun with Overflow.
type Reader struct {
	data     []byte
	bitPos   int
	overflow bool
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current bit position, which may pass the end after Skip.
func (r *Reader) Pos() int {
	return r.bitPos
}

// BitsLeft returns the number of unread bits, or zero once the position has
// passed the end.
func (r *Reader) BitsLeft() int {
	total := len(r.data) * 8
	if r.bitPos > total {
		return 0
	}
	return total - r.bitPos
}

// Overflow reports whether a read or skip went past the end of the data.
func (r *Reader) Overflow() bool {
	return r.overflow
}

// ReadBit returns the next bit as a bool.
func (r *Reader) ReadBit() bool {
	if r.bitPos >= len(r.data)*8 {
		r.overflow = true
		return false
	}
	byteIdx := r.bitPos / 8
	bitIdx := 7 - (r.bitPos % 8)
	r.bitPos++
	return (r.data[byteIdx]>>uint(bitIdx))&1 == 1
}

// ReadUint32 reads n (at most 32) bits.
func (r *Reader) ReadUint32(n int) uint32 {
	var val uint32
	for i := 0; i < n; i++ {
		val <<= 1
		if r.ReadBit() {
			val |= 1
		}
	}
	return val
}

// Skip advances the position by n bits without bounds clamping.
func (r *Reader) Skip(n int) {
	r.bitPos += n
	if r.bitPos > len(r.data)*8 {
		r.overflow = true
	}
}

// Writer writes bits MSB-first into a fixed-size byte slice. Bits beyond the
// slice are dropped.
type Writer struct {
	data   []byte
	bitPos int
}

// NewWriter returns a Writer over a zeroed slice of size bytes.
func NewWriter(size int) *Writer {
	return &Writer{data: make([]byte, size)}
}

func (w *Writer) PutBit(v bool) {
	if w.bitPos >= len(w.data)*8 {
		return
	}
	if v {
		byteIdx := w.bitPos / 8
		bitIdx := 7 - (w.bitPos % 8)
		w.data[byteIdx] |= 1 << uint(bitIdx)
	}
	w.bitPos++
}

// PutUint32 writes the low n bits of v.
func (w *Writer) PutUint32(n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		w.PutBit((v>>uint(i))&1 == 1)
	}
}

func (w *Writer) Bytes() []byte {
	return w.data
}

// CopyBits returns length bits of src starting at bit offset, left-aligned in
// a new slice of (length+7)/8 bytes. Unused trailing bits are zero.
func CopyBits(src []byte, offset, length int) []byte {
	if length <= 0 {
		return nil
	}
	dst := make([]byte, (length+7)/8)
	startByte := offset / 8
	endByte := (offset + length - 1) / 8
	shiftA := uint(offset % 8)
	shiftB := 8 - shiftA

	if shiftA == 0 {
		copy(dst, src[startByte:startByte+len(dst)])
	} else {
		i := 0
		for ; i < endByte-startByte; i++ {
			dst[i] = src[startByte+i]<<shiftA | src[startByte+i+1]>>shiftB
		}
		if i < len(dst) {
			dst[i] = src[startByte+i] << shiftA
		}
	}
	dst[len(dst)-1] &= byte(0xFF) << uint(len(dst)*8-length)
	return dst
}

// Uint24 decodes a 24-bit big-endian integer.
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutUint24 encodes v as a 24-bit big-endian integer.
func PutUint24(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
