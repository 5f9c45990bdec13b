// Package ogg builds and verifies Ogg bitstream pages.
package ogg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header type flags.
const (
	FlagContinued = 0x01
	FlagFirst     = 0x02
	FlagLast      = 0x04
)

const (
	// HeaderSize is the fixed part of a page header, before the segment table.
	HeaderSize = 27
	// MaxPacketSize is the largest packet that fits in one lacing segment.
	MaxPacketSize = 254
	// MaxSegments is the most segments a page can carry.
	MaxSegments = 255
)

var (
	ErrPacketSize = errors.New("ogg: packet exceeds maximum size")
	ErrCapture    = errors.New("ogg: missing capture pattern")
	ErrChecksum   = errors.New("ogg: checksum mismatch")
)

var capturePattern = [4]byte{'O', 'g', 'g', 'S'}

// Page is one Ogg page whose packets each occupy a single lacing segment.
type Page struct {
	Flags    byte
	Granule  uint64
	Serial   uint32
	Sequence uint32
	Packets  [][]byte
}

// DataSize returns the number of payload bytes.
func (p *Page) DataSize() int {
	n := 0
	for _, pkt := range p.Packets {
		n += len(pkt)
	}
	return n
}

// Size returns the encoded page length.
func (p *Page) Size() int {
	return HeaderSize + len(p.Packets) + p.DataSize()
}

// Marshal encodes the page with its checksum filled in.
func (p *Page) Marshal() ([]byte, error) {
	if len(p.Packets) > MaxSegments {
		return nil, fmt.Errorf("ogg: %d packets in one page", len(p.Packets))
	}
	buf := make([]byte, HeaderSize+len(p.Packets), p.Size())
	copy(buf, capturePattern[:])
	buf[4] = 0 // stream structure version
	buf[5] = p.Flags
	binary.LittleEndian.PutUint64(buf[6:], p.Granule)
	binary.LittleEndian.PutUint32(buf[14:], p.Serial)
	binary.LittleEndian.PutUint32(buf[18:], p.Sequence)
	buf[26] = byte(len(p.Packets))
	for i, pkt := range p.Packets {
		if len(pkt) > MaxPacketSize {
			return nil, ErrPacketSize
		}
		buf[HeaderSize+i] = byte(len(pkt))
	}
	for _, pkt := range p.Packets {
		buf = append(buf, pkt...)
	}
	binary.LittleEndian.PutUint32(buf[22:], Checksum(buf))
	return buf, nil
}

// Verify checks the capture pattern and checksum of an encoded page and
// returns its total length, so consecutive pages can be walked.
func Verify(b []byte) (int, error) {
	if len(b) < HeaderSize || [4]byte(b[:4]) != capturePattern {
		return 0, ErrCapture
	}
	n := HeaderSize + int(b[26])
	if len(b) < n {
		return 0, fmt.Errorf("ogg: truncated segment table")
	}
	for _, seg := range b[HeaderSize:n] {
		n += int(seg)
	}
	if len(b) < n {
		return 0, fmt.Errorf("ogg: truncated page data")
	}
	stored := binary.LittleEndian.Uint32(b[22:])
	crc := Update(0, b[:22])
	crc = Update(crc, []byte{0, 0, 0, 0})
	crc = Update(crc, b[26:n])
	if crc != stored {
		return 0, fmt.Errorf("%w: computed 0x%08X, stored 0x%08X", ErrChecksum, crc, stored)
	}
	return n, nil
}
