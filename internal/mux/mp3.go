package mux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zsiec/flvextract/media"
)

// Bitrates in kbit/s for Layer III, indexed by the 4-bit header field.
var (
	mpeg1BitRates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mpeg2BitRates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// Sample rates indexed by the 2-bit header field, per version id.
var mp3SampleRates = map[uint32][3]int{
	mpegVersion1:  {44100, 48000, 32000},
	mpegVersion2:  {22050, 24000, 16000},
	mpegVersion25: {11025, 12000, 8000},
}

const (
	mpegVersion25 = 0
	mpegVersion2  = 2
	mpegVersion1  = 3

	channelModeMono = 3

	mp3DelayWriteLimit = 65536
	xingTag            = 0x58696E67 // "Xing"
	xingTOCEntries     = 100
	xingBitRate        = 64000
)

// MP3Writer copies MP3 frames to a file. It holds back the first 64 KiB so
// that a Xing VBR header can be placed in front of the audio if the bitrate
// turns out to vary.
type MP3Writer struct {
	w    io.WriteCloser
	path string
	warn WarnFunc

	chunks           [][]byte
	frameOffsets     []uint32
	totalFrameLength uint32

	isVBR          bool
	delayWrite     bool
	hasVBRHeader   bool
	writeVBRHeader bool

	firstBitRate     int
	mpegVersion      uint32
	sampleRate       int
	channelMode      uint32
	firstFrameHeader uint32
}

// NewMP3Writer returns a writer that buffers until it knows whether the
// stream is VBR. warn may be nil.
func NewMP3Writer(w io.WriteCloser, path string, warn WarnFunc) *MP3Writer {
	return &MP3Writer{
		w:          w,
		path:       path,
		warn:       warn,
		delayWrite: true,
	}
}

func (m *MP3Writer) Path() string { return m.path }

// IsVBR reports whether more than one bitrate was seen.
func (m *MP3Writer) IsVBR() bool { return m.isVBR }

// Frames returns the number of frames parsed so far.
func (m *MP3Writer) Frames() int { return len(m.frameOffsets) }

// WriteChunk parses the frames in chunk and writes them once the delay
// window has passed.
func (m *MP3Writer) WriteChunk(chunk []byte, _ uint32, _ media.FrameType) error {
	m.chunks = append(m.chunks, chunk)
	if err := m.parseFrames(chunk); err != nil {
		return err
	}

	if m.delayWrite && m.totalFrameLength >= mp3DelayWriteLimit {
		m.delayWrite = false
	}
	if !m.delayWrite {
		return m.flush()
	}
	return nil
}

// Finish writes any held-back audio, fills in the Xing header if one was
// reserved and closes the file.
func (m *MP3Writer) Finish(media.Fraction) error {
	err := m.finish()
	if cerr := m.w.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *MP3Writer) finish() error {
	if err := m.flush(); err != nil {
		return err
	}
	if !m.writeVBRHeader {
		return nil
	}
	ws, err := seeker(m.w)
	if err != nil {
		return err
	}
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("mp3: seek: %w", err)
	}
	return m.writeXingHeader(ws, false)
}

func (m *MP3Writer) flush() error {
	for _, c := range m.chunks {
		if _, err := m.w.Write(c); err != nil {
			return fmt.Errorf("mp3: write: %w", err)
		}
	}
	m.chunks = m.chunks[:0]
	return nil
}

// parseFrames walks the frame headers in buf, recording frame offsets and
// detecting bitrate changes. Parsing stops at the first invalid header or at
// a frame that extends past the buffer.
func (m *MP3Writer) parseFrames(buf []byte) error {
	offset := 0
	length := len(buf)

	for length >= 4 {
		header := binary.BigEndian.Uint32(buf[offset:])
		h := parseMP3Header(header)
		if h.sync != 0x7FF || h.version == 1 || h.layer != 1 {
			break
		}
		if h.bitRateIdx == 0 || h.bitRateIdx == 15 || h.sampleRateIdx == 3 {
			break
		}

		bitRate := mp3BitRate(h.version, h.bitRateIdx)
		sampleRate := mp3SampleRates[h.version][h.sampleRateIdx]
		frameLen := mp3FrameLength(h.version, bitRate, sampleRate, h.padding)
		if frameLen > length {
			break
		}

		isVBRHeaderFrame := false
		if len(m.frameOffsets) == 0 {
			// Check for an existing Xing header.
			o := offset + xingDataOffset(h.version, h.channelMode)
			if o+4 <= len(buf) && binary.BigEndian.Uint32(buf[o:]) == xingTag {
				isVBRHeaderFrame = true
				m.delayWrite = false
				m.hasVBRHeader = true
			}
		}

		switch {
		case isVBRHeaderFrame:
		case m.firstBitRate == 0:
			m.firstBitRate = bitRate
			m.mpegVersion = h.version
			m.sampleRate = sampleRate
			m.channelMode = h.channelMode
			m.firstFrameHeader = header
		case !m.isVBR && bitRate != m.firstBitRate:
			m.isVBR = true
			switch {
			case m.hasVBRHeader:
			case m.delayWrite:
				if err := m.writeXingHeader(m.w, true); err != nil {
					return err
				}
				m.writeVBRHeader = true
				m.delayWrite = false
			default:
				m.warn.warn("Detected VBR too late, cannot add VBR header.")
			}
		}

		m.frameOffsets = append(m.frameOffsets, m.totalFrameLength+uint32(offset))

		offset += frameLen
		length -= frameLen
	}

	m.totalFrameLength += uint32(len(buf))
	return nil
}

// writeXingHeader writes a silent 64 kbit/s frame carrying a Xing tag. The
// placeholder has the right size but no content and is rewritten at Finish.
func (m *MP3Writer) writeXingHeader(w io.Writer, placeholder bool) error {
	buf := make([]byte, mp3FrameLength(m.mpegVersion, xingBitRate, m.sampleRate, 0))
	if !placeholder {
		idx := uint32(8)
		if m.mpegVersion == mpegVersion1 {
			idx = 5
		}
		header := m.firstFrameHeader
		header &= 0xFFFF0DFF // clear bitrate, padding and private bits
		header |= 0x00010000 // no CRC
		header |= idx << 12
		binary.BigEndian.PutUint32(buf, header)

		o := xingDataOffset(m.mpegVersion, m.channelMode)
		binary.BigEndian.PutUint32(buf[o:], xingTag)
		binary.BigEndian.PutUint32(buf[o+4:], 7) // frames, bytes and TOC present
		binary.BigEndian.PutUint32(buf[o+8:], uint32(len(m.frameOffsets)))
		binary.BigEndian.PutUint32(buf[o+12:], m.totalFrameLength)
		for i := 0; i < xingTOCEntries; i++ {
			frame := int(float64(i) / xingTOCEntries * float64(len(m.frameOffsets)))
			buf[o+16+i] = byte(float64(m.frameOffsets[frame]) / float64(m.totalFrameLength) * 256)
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("mp3: write vbr header: %w", err)
	}
	return nil
}

type mp3Header struct {
	sync          uint32
	version       uint32
	layer         uint32
	bitRateIdx    uint32
	sampleRateIdx uint32
	padding       int
	channelMode   uint32
}

func parseMP3Header(h uint32) mp3Header {
	return mp3Header{
		sync:          h >> 21,
		version:       (h >> 19) & 0x03,
		layer:         (h >> 17) & 0x03,
		bitRateIdx:    (h >> 12) & 0x0F,
		sampleRateIdx: (h >> 10) & 0x03,
		padding:       int((h >> 9) & 0x01),
		channelMode:   (h >> 6) & 0x03,
	}
}

// mp3BitRate returns the bitrate in bit/s.
func mp3BitRate(version, idx uint32) int {
	if version == mpegVersion1 {
		return mpeg1BitRates[idx] * 1000
	}
	return mpeg2BitRates[idx] * 1000
}

func mp3FrameLength(version uint32, bitRate, sampleRate, padding int) int {
	coef := 72
	if version == mpegVersion1 {
		coef = 144
	}
	return coef*bitRate/sampleRate + padding
}

// xingDataOffset is the position of the Xing tag inside a frame: the frame
// header plus the side information.
func xingDataOffset(version, channelMode uint32) int {
	if version == mpegVersion1 {
		if channelMode == channelModeMono {
			return 4 + 17
		}
		return 4 + 32
	}
	if channelMode == channelModeMono {
		return 4 + 9
	}
	return 4 + 17
}
