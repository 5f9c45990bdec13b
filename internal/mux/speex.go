package mux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zsiec/flvextract/internal/bitio"
	"github.com/zsiec/flvextract/internal/ogg"
	"github.com/zsiec/flvextract/media"
)

const (
	speexVendor          = "FLV Extract"
	speexSampleRate      = 16000
	speexMsPerFrame      = 20
	speexSamplesPerFrame = speexSampleRate / (1000 / speexMsPerFrame)
	speexHeaderSize      = 80
	speexTargetPageData  = 4096

	// The two header pages are written last, into space reserved up front.
	speexReservedSize = (ogg.HeaderSize + 1 + speexHeaderSize) + (ogg.HeaderSize + 1 + 8 + len(speexVendor))
	// Audio pages follow the header page and the comment page.
	speexFirstAudioPage = 2
)

// Frame sizes in bits, indexed by narrowband submode, wideband submode and
// in-band signal code.
var (
	speexSubModeSizes      = [...]int{0, 43, 119, 160, 220, 300, 364, 492, 79}
	speexWideBandSizes     = [...]int{0, 36, 112, 192, 352}
	speexInBandSignalSizes = [...]int{1, 1, 4, 4, 4, 4, 4, 4, 8, 8, 16, 16, 32, 32, 64, 64}
)

// SpeexWriter splits FLV Speex payloads into individual frames and stores
// them as Ogg packets, one frame per packet.
type SpeexWriter struct {
	w    io.WriteSeeker
	c    io.Closer
	path string

	serial   uint32
	sequence uint32
	granule  uint64

	packets     [][]byte
	packetBytes int
	pending     *ogg.Page
}

// NewSpeexWriter reserves room for the header pages; w must be seekable.
func NewSpeexWriter(w io.WriteCloser, path string, serial uint32) (*SpeexWriter, error) {
	ws, err := seeker(w)
	if err != nil {
		return nil, err
	}
	if _, err := ws.Write(make([]byte, speexReservedSize)); err != nil {
		return nil, fmt.Errorf("speex: reserve header: %w", err)
	}
	return &SpeexWriter{
		w:        ws,
		c:        w,
		path:     path,
		serial:   serial,
		sequence: speexFirstAudioPage,
	}, nil
}

func (s *SpeexWriter) Path() string { return s.path }

// WriteChunk splits chunk into Speex frames and queues each one as an Ogg
// packet.
func (s *SpeexWriter) WriteChunk(chunk []byte, _ uint32, _ media.FrameType) error {
	r := bitio.NewReader(chunk)
	frameStart, frameEnd := -1, 0

loop:
	for r.BitsLeft() >= 5 {
		if r.ReadBit() {
			mode := r.ReadUint32(3)
			if mode < 1 || mode > 4 {
				return speexError("wideband mode %d", mode)
			}
			r.Skip(speexWideBandSizes[mode] - 4)
		} else {
			mode := r.ReadUint32(4)
			switch {
			case mode >= 1 && mode <= 8:
				if frameStart != -1 {
					if err := s.writeFrame(chunk, frameStart, frameEnd); err != nil {
						return err
					}
				}
				frameStart = frameEnd
				r.Skip(speexSubModeSizes[mode] - 5)
			case mode == 15:
				break loop
			case mode == 14:
				if r.BitsLeft() < 4 {
					return speexError("truncated in-band signal")
				}
				r.Skip(speexInBandSignalSizes[r.ReadUint32(4)])
			case mode == 13:
				if r.BitsLeft() < 5 {
					return speexError("truncated custom in-band signal")
				}
				r.Skip(int(r.ReadUint32(5)) * 8)
			default:
				return speexError("narrowband mode %d", mode)
			}
		}
		frameEnd = r.Pos()
	}
	if r.Overflow() {
		return speexError("frame runs past end of packet")
	}

	if frameStart != -1 {
		return s.writeFrame(chunk, frameStart, frameEnd)
	}
	return nil
}

func speexError(format string, args ...any) error {
	return &ParseError{Codec: "speex", Err: fmt.Errorf("%w: %s", ErrSpeexData, fmt.Sprintf(format, args...))}
}

// writeFrame stores bits [start, end) as one packet, padded with a zero bit
// followed by ones.
func (s *SpeexWriter) writeFrame(data []byte, start, end int) error {
	n := end - start
	frame := bitio.CopyBits(data, start, n)
	if n%8 != 0 {
		frame[len(frame)-1] |= byte(0xFF >> ((n % 8) + 1))
	}
	return s.addPacket(frame, speexSamplesPerFrame, true)
}

func (s *SpeexWriter) addPacket(data []byte, samples uint64, delay bool) error {
	if len(data) > ogg.MaxPacketSize {
		return fmt.Errorf("speex: %w", ogg.ErrPacketSize)
	}
	s.granule += samples
	s.packets = append(s.packets, data)
	s.packetBytes += len(data)
	if !delay || s.packetBytes >= speexTargetPageData || len(s.packets) == ogg.MaxSegments {
		return s.writePage()
	}
	return nil
}

// writePage moves the queued packets into a new pending page, first writing
// out the previous one. The newest page is held back so Finish can mark it
// as the last.
func (s *SpeexWriter) writePage() error {
	if len(s.packets) == 0 {
		return nil
	}
	if err := s.flushPage(false); err != nil {
		return err
	}
	p := &ogg.Page{
		Granule:  s.granule,
		Serial:   s.serial,
		Sequence: s.sequence,
		Packets:  s.packets,
	}
	if s.sequence == 0 {
		p.Flags = ogg.FlagFirst
	}
	s.pending = p
	s.packets = nil
	s.packetBytes = 0
	s.sequence++
	return nil
}

func (s *SpeexWriter) flushPage(last bool) error {
	if s.pending == nil {
		return nil
	}
	if last {
		s.pending.Flags |= ogg.FlagLast
	}
	b, err := s.pending.Marshal()
	if err != nil {
		return fmt.Errorf("speex: %w", err)
	}
	s.pending = nil
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("speex: write page: %w", err)
	}
	return nil
}

// Finish writes the last page, rewrites the reserved header pages and
// closes the file.
func (s *SpeexWriter) Finish(media.Fraction) error {
	err := s.finish()
	if cerr := s.c.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *SpeexWriter) finish() error {
	if err := s.writePage(); err != nil {
		return err
	}
	if err := s.flushPage(true); err != nil {
		return err
	}

	if _, err := s.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("speex: seek: %w", err)
	}
	s.sequence = 0
	s.granule = 0
	if err := s.addPacket(speexHeaderPacket(), 0, false); err != nil {
		return err
	}
	if err := s.addPacket(vorbisCommentPacket(), 0, false); err != nil {
		return err
	}
	return s.flushPage(false)
}

func speexHeaderPacket() []byte {
	b := make([]byte, speexHeaderSize)
	copy(b[0:], "Speex   ")
	copy(b[8:], "unknown")                                              // speex_version
	b[28] = 1                                                           // speex_version_id
	b[32] = speexHeaderSize                                             // header_size
	binary.LittleEndian.PutUint32(b[36:], speexSampleRate)              // rate
	b[40] = 1                                                           // mode
	b[44] = 4                                                           // mode_bitstream_version
	b[48] = 1                                                           // nb_channels
	binary.LittleEndian.PutUint32(b[52:], 0xFFFFFFFF)                   // bitrate
	binary.LittleEndian.PutUint32(b[56:], uint32(speexSamplesPerFrame)) // frame_size
	b[64] = 1                                                           // frames_per_packet
	return b
}

func vorbisCommentPacket() []byte {
	b := make([]byte, 8+len(speexVendor))
	binary.LittleEndian.PutUint32(b, uint32(len(speexVendor)))
	copy(b[4:], speexVendor)
	return b
}
