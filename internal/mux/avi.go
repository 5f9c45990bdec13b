package mux

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/zsiec/flvextract/internal/bitio"
	"github.com/zsiec/flvextract/media"
)

// Fixed AVI layout written by AVIWriter:
//
//	Chunk          Off  Len
//	RIFF AVI         0   12
//	  LIST hdrl     12   12
//	    avih        24   64
//	    LIST strl   88   12
//	      strh     100   64
//	      strf     164   48
//	  LIST movi    212   12
//	    (frames)   224    -
//	  idx1           -    -
const aviHeaderSize = 224

const (
	aviKeyFrameFlag = 0x10
	aviIndexEntry   = 16
)

// AVIWriter stores Sorenson H.263 and VP6 frames in a single-stream AVI file.
// For VP6 with alpha, one writer is created for the colour plane and a second
// one, with alpha set, for the alpha plane of the same chunks.
type AVIWriter struct {
	w     io.WriteSeeker
	c     io.Closer
	path  string
	codec media.VideoCodec
	alpha bool
	warn  WarnFunc

	width, height int
	frameCount    uint32
	moviDataSize  uint32
	index         []aviIndex
}

type aviIndex struct {
	flags  uint32
	offset uint32
	size   uint32
}

// AlphaPath returns the alpha-plane file that accompanies a VP6-with-alpha
// AVI written to path.
func AlphaPath(path string) string {
	return strings.TrimSuffix(path, ".avi") + ".alpha.avi"
}

// NewAVIWriter writes the fixed header and returns a writer for codec, which
// must be H.263, VP6 or VP6 with alpha. w must be seekable.
func NewAVIWriter(w io.WriteCloser, path string, codec media.VideoCodec, alpha bool, warn WarnFunc) (*AVIWriter, error) {
	fourCC, ok := aviFourCC(codec)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, codec)
	}
	ws, err := seeker(w)
	if err != nil {
		return nil, err
	}
	a := &AVIWriter{
		w:     ws,
		c:     w,
		path:  path,
		codec: codec,
		alpha: alpha,
		warn:  warn,
	}
	if _, err := ws.Write(aviHeader(fourCC)); err != nil {
		return nil, fmt.Errorf("avi: write header: %w", err)
	}
	return a, nil
}

func aviFourCC(codec media.VideoCodec) (string, bool) {
	switch codec {
	case media.VideoH263:
		return "FLV1", true
	case media.VideoVP6, media.VideoVP6Alpha:
		return "VP6F", true
	default:
		return "", false
	}
}

func aviHeader(fourCC string) []byte {
	b := make([]byte, 0, aviHeaderSize)
	le := binary.LittleEndian
	b = append(b, "RIFF"...)
	b = le.AppendUint32(b, 0) // file size
	b = append(b, "AVI "...)

	b = append(b, "LIST"...)
	b = le.AppendUint32(b, 192)
	b = append(b, "hdrl"...)

	b = append(b, "avih"...)
	b = le.AppendUint32(b, 56)
	for _, v := range []uint32{
		0, 0, 0, 0x10, // usec per frame, max bytes/s, padding, AVIF_HASINDEX
		0,    // total frames
		0, 1, // initial frames, streams
		0,    // suggested buffer size
		0, 0, // width, height
		0, 0, 0, 0,
	} {
		b = le.AppendUint32(b, v)
	}

	b = append(b, "LIST"...)
	b = le.AppendUint32(b, 116)
	b = append(b, "strl"...)

	b = append(b, "strh"...)
	b = le.AppendUint32(b, 56)
	b = append(b, "vids"...)
	b = append(b, fourCC...)
	for _, v := range []uint32{
		0, 0, 0, // flags, priority and language, initial frames
		0, 0, // scale (rate denominator), rate (numerator)
		0, 0, // start, length in frames
		0, 0xFFFFFFFF, 0, // suggested buffer size, quality, sample size
	} {
		b = le.AppendUint32(b, v)
	}
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0) // frame right
	b = le.AppendUint16(b, 0) // frame bottom

	b = append(b, "strf"...)
	b = le.AppendUint32(b, 40)
	b = le.AppendUint32(b, 40) // biSize
	b = le.AppendUint32(b, 0)  // width
	b = le.AppendUint32(b, 0)  // height
	b = le.AppendUint16(b, 1)  // planes
	b = le.AppendUint16(b, 24) // bit count
	b = append(b, fourCC...)
	for i := 0; i < 5; i++ {
		b = le.AppendUint32(b, 0) // size image, ppm, ppm, colours used, important
	}

	b = append(b, "LIST"...)
	b = le.AppendUint32(b, 0) // movi size
	b = append(b, "movi"...)
	return b
}

func (a *AVIWriter) Path() string { return a.path }

// FrameSize returns the picture size parsed from the first frame that had a
// recognizable header.
func (a *AVIWriter) FrameSize() (width, height int) {
	return a.width, a.height
}

// WriteChunk stores one video frame as a 00dc chunk and records it in the
// index.
func (a *AVIWriter) WriteChunk(chunk []byte, _ uint32, frameType media.FrameType) error {
	offset, n := a.frameBounds(chunk)

	var flags uint32
	if frameType == media.FrameKey {
		flags = aviKeyFrameFlag
	}
	a.index = append(a.index, aviIndex{flags: flags, offset: a.moviDataSize + 4, size: uint32(n)})

	if a.width == 0 && a.height == 0 {
		a.readFrameSize(chunk)
	}

	buf := make([]byte, 0, 8+n+1)
	buf = append(buf, "00dc"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	buf = append(buf, chunk[offset:offset+n]...)
	if n%2 != 0 {
		buf = append(buf, 0)
		n++
	}
	if _, err := a.w.Write(buf); err != nil {
		return fmt.Errorf("avi: write frame: %w", err)
	}
	a.moviDataSize += uint32(n) + 8
	a.frameCount++
	return nil
}

// frameBounds returns the part of chunk holding this writer's picture data.
// VP6 payloads start with an adjustment byte; VP6 with alpha adds a 24-bit
// offset that splits the colour plane from the alpha plane.
func (a *AVIWriter) frameBounds(chunk []byte) (offset, n int) {
	n = len(chunk)
	switch a.codec {
	case media.VideoVP6:
		offset = 1
		n--
	case media.VideoVP6Alpha:
		offset = 4
		if n >= 4 {
			alphaOffset := int(binary.BigEndian.Uint32(chunk) & 0xFFFFFF)
			if !a.alpha {
				n = alphaOffset
			} else {
				offset += alphaOffset
				n -= offset
			}
		} else {
			n = 0
		}
	}
	n = max(n, 0)
	n = min(n, len(chunk)-offset)
	if n < 0 {
		// offset past the end of a malformed chunk
		return 0, 0
	}
	return offset, n
}

func (a *AVIWriter) readFrameSize(chunk []byte) {
	switch a.codec {
	case media.VideoH263:
		a.width, a.height = h263FrameSize(chunk)
	case media.VideoVP6, media.VideoVP6Alpha:
		skip := 1
		if a.codec == media.VideoVP6Alpha {
			skip = 4
		}
		w, h, ok := vp6FrameSize(chunk, skip)
		if !ok {
			return
		}
		a.width, a.height = w, h

		// The adjustment byte holds the right and bottom padding the encoder
		// added to reach a macroblock boundary. The header keeps the padded
		// size; the crop is only reported.
		if !a.alpha {
			cropX, cropY := chunk[0]>>4, chunk[0]&0x0F
			if cropX != 0 || cropY != 0 {
				a.warn.warn(fmt.Sprintf("Suggested cropping: %d pixels from right, %d pixels from bottom.", cropX, cropY))
			}
		}
	}
}

// h263FrameSize reads the picture size from a Sorenson H.263 picture header.
func h263FrameSize(chunk []byte) (width, height int) {
	if len(chunk) < 10 || chunk[0] != 0 || chunk[1] != 0 {
		return 0, 0
	}
	r := bitio.NewReader(chunk[2:10])
	if !r.ReadBit() {
		return 0, 0
	}
	r.Skip(5) // rest of the start code and version
	r.Skip(8) // temporal reference

	switch r.ReadUint32(3) {
	case 0:
		return int(r.ReadUint32(8)), int(r.ReadUint32(8))
	case 1:
		return int(r.ReadUint32(16)), int(r.ReadUint32(16))
	case 2:
		return 352, 288
	case 3:
		return 176, 144
	case 4:
		return 128, 96
	case 5:
		return 320, 240
	case 6:
		return 160, 120
	default:
		return 0, 0
	}
}

// vp6FrameSize reads the macroblock dimensions from a VP6 key frame header.
func vp6FrameSize(chunk []byte, skip int) (width, height int, ok bool) {
	if len(chunk) < skip+8 {
		return 0, 0, false
	}
	r := bitio.NewReader(chunk[skip : skip+8])
	deltaFrame := r.ReadBit()
	r.Skip(6) // quantizer
	separatedCoeff := r.ReadBit()
	r.Skip(5) // sub version
	filterHeader := r.ReadUint32(2)
	r.Skip(1) // interlaced

	if deltaFrame {
		return 0, 0, false
	}
	if separatedCoeff || filterHeader == 0 {
		r.Skip(16)
	}
	height = int(r.ReadUint32(8)) * 16
	width = int(r.ReadUint32(8)) * 16
	return width, height, true
}

// Finish writes the index, patches the header with the frame count, size
// and averageFrameRate, then closes the file.
func (a *AVIWriter) Finish(averageFrameRate media.Fraction) error {
	err := a.finish(averageFrameRate)
	if cerr := a.c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *AVIWriter) finish(rate media.Fraction) error {
	indexSize := uint32(len(a.index) * aviIndexEntry)
	buf := make([]byte, 0, 8+indexSize)
	buf = append(buf, "idx1"...)
	buf = binary.LittleEndian.AppendUint32(buf, indexSize)
	for _, e := range a.index {
		buf = append(buf, "00dc"...)
		buf = binary.LittleEndian.AppendUint32(buf, e.flags)
		buf = binary.LittleEndian.AppendUint32(buf, e.offset)
		buf = binary.LittleEndian.AppendUint32(buf, e.size)
	}
	if _, err := a.w.Write(buf); err != nil {
		return fmt.Errorf("avi: write index: %w", err)
	}

	// The RIFF size covers everything after its own 8-byte chunk header.
	fileSize := aviHeaderSize + a.moviDataSize + 8 + indexSize
	w, h := uint32(a.width), uint32(a.height)
	patches := []struct {
		offset int64
		value  []byte
	}{
		{4, u32le(fileSize - 8)},
		{32, u32le(0)},
		{48, u32le(a.frameCount)},
		{64, u32le(w)},
		{68, u32le(h)},
		{128, u32le(rate.Den)},
		{132, u32le(rate.Num)},
		{140, u32le(a.frameCount)},
		{160, append(u16le(uint16(w)), u16le(uint16(h))...)},
		{176, u32le(w)},
		{180, u32le(h)},
		{192, u32le(w * h * 6)},
		{216, u32le(a.moviDataSize + 4)},
	}
	for _, p := range patches {
		if err := writeAt(a.w, p.offset, p.value); err != nil {
			return fmt.Errorf("avi: patch header at %d: %w", p.offset, err)
		}
	}
	return nil
}

func u32le(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func u16le(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
