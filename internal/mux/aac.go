package mux

import (
	"fmt"
	"io"

	"github.com/zsiec/flvextract/internal/bitio"
	"github.com/zsiec/flvextract/media"
)

// AAC sample rate index table (ISO 14496-3)
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

const (
	aacPacketSequenceHeader = 0
	adtsHeaderSize          = 7
	aacMaxChannelConfig     = 6
)

// AACWriter rewraps FLV AAC packets as an ADTS stream.
type AACWriter struct {
	w    io.WriteCloser
	path string

	configured      bool
	profile         uint32 // audio object type minus one
	sampleRateIndex uint32
	channelConfig   uint32
}

// NewAACWriter returns a writer that expects an AudioSpecificConfig packet
// before any raw frames.
func NewAACWriter(w io.WriteCloser, path string) *AACWriter {
	return &AACWriter{w: w, path: path}
}

func (a *AACWriter) Path() string { return a.path }

// SampleRate returns the rate from the last AudioSpecificConfig, or 0.
func (a *AACWriter) SampleRate() int {
	if !a.configured {
		return 0
	}
	return aacSampleRates[a.sampleRateIndex]
}

// WriteChunk handles one FLV AAC packet: a sequence header updates the
// ADTS fields and a raw frame is written behind a fresh ADTS header.
func (a *AACWriter) WriteChunk(chunk []byte, _ uint32, _ media.FrameType) error {
	if len(chunk) < 1 {
		return nil
	}

	if chunk[0] == aacPacketSequenceHeader {
		if len(chunk) < 3 {
			return nil
		}
		return a.parseConfig(chunk[1:3])
	}

	hdr := a.adtsHeader(len(chunk) - 1)
	if _, err := a.w.Write(hdr); err != nil {
		return fmt.Errorf("aac: write header: %w", err)
	}
	if _, err := a.w.Write(chunk[1:]); err != nil {
		return fmt.Errorf("aac: write frame: %w", err)
	}
	return nil
}

// parseConfig reads the first 13 bits of an AudioSpecificConfig.
func (a *AACWriter) parseConfig(b []byte) error {
	r := bitio.NewReader(b)
	objectType := int(r.ReadUint32(5))
	srIdx := r.ReadUint32(4)
	chCfg := r.ReadUint32(4)

	// ADTS has two bits for the profile: Main, LC, SSR and LTP only.
	if objectType < 1 || objectType > 4 {
		return &ParseError{Codec: "aac", Err: fmt.Errorf("%w: object type %d", ErrAACProfile, objectType)}
	}
	if int(srIdx) >= len(aacSampleRates) {
		return &ParseError{Codec: "aac", Err: fmt.Errorf("%w: %d", ErrAACSampleRate, srIdx)}
	}
	if chCfg > aacMaxChannelConfig {
		return &ParseError{Codec: "aac", Err: fmt.Errorf("%w: %d", ErrAACChannels, chCfg)}
	}

	a.profile = uint32(objectType - 1)
	a.sampleRateIndex = srIdx
	a.channelConfig = chCfg
	a.configured = true
	return nil
}

func (a *AACWriter) adtsHeader(payloadLen int) []byte {
	w := bitio.NewWriter(adtsHeaderSize)
	w.PutUint32(12, 0xFFF) // sync word
	w.PutUint32(1, 0)      // MPEG-4
	w.PutUint32(2, 0)      // layer
	w.PutUint32(1, 1)      // protection absent
	w.PutUint32(2, a.profile)
	w.PutUint32(4, a.sampleRateIndex)
	w.PutUint32(1, 0) // private
	w.PutUint32(3, a.channelConfig)
	w.PutUint32(1, 0) // original/copy
	w.PutUint32(1, 0) // home
	w.PutUint32(1, 0) // copyright id bit
	w.PutUint32(1, 0) // copyright id start
	w.PutUint32(13, uint32(payloadLen+adtsHeaderSize))
	w.PutUint32(11, 0x7FF) // buffer fullness, VBR
	w.PutUint32(2, 0)      // one raw data block
	return w.Bytes()
}

// Finish closes the file.
func (a *AACWriter) Finish(media.Fraction) error {
	return a.w.Close()
}
