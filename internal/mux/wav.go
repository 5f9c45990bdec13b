package mux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zsiec/flvextract/media"
)

const (
	wavHeaderSize  = 44
	wavMaxFileSize = 0x7FFFFFFE
	wavFormatPCM   = 1
)

// WAVWriter writes linear PCM samples into a RIFF/WAVE file. The header is
// written ahead of the first samples using the expected sample count and
// corrected at Finish when the count differs.
type WAVWriter struct {
	w    io.WriteCloser
	path string

	bitsPerSample int
	channels      int
	sampleRate    int
	blockAlign    int

	headerWritten  bool
	sampleLen      int64
	finalSampleLen int64
	wroteBytes     int64
}

// NewWAVWriter returns a writer for little-endian PCM with the given
// format. Nothing is written until the first chunk.
func NewWAVWriter(w io.WriteCloser, path string, bitsPerSample, channels, sampleRate int) *WAVWriter {
	return &WAVWriter{
		w:             w,
		path:          path,
		bitsPerSample: bitsPerSample,
		channels:      channels,
		sampleRate:    sampleRate,
		blockAlign:    channels * ((bitsPerSample + 7) / 8),
	}
}

func (v *WAVWriter) Path() string { return v.path }

// SetFinalSampleCount sets the number of samples the header announces. When
// the count written differs, Finish patches the header in place.
func (v *WAVWriter) SetFinalSampleCount(n int64) {
	v.finalSampleLen = n
}

// SampleCount returns the number of sample blocks written.
func (v *WAVWriter) SampleCount() int64 {
	return v.sampleLen
}

// WriteChunk appends whole sample blocks from chunk.
func (v *WAVWriter) WriteChunk(chunk []byte, _ uint32, _ media.FrameType) error {
	if v.blockAlign == 0 {
		return nil
	}
	return v.writeSamples(chunk, len(chunk)/v.blockAlign)
}

func (v *WAVWriter) writeSamples(buf []byte, count int) error {
	if !v.headerWritten {
		if _, err := v.w.Write(v.header(v.finalSampleLen)); err != nil {
			return fmt.Errorf("wav: write header: %w", err)
		}
		v.headerWritten = true
	}

	n := int64(count * v.blockAlign)
	v.sampleLen += int64(count)

	// Data past the largest representable data chunk is dropped.
	if room := v.dataChunkSize(1<<62) - v.wroteBytes; n > room {
		n = room
	}
	if n <= 0 {
		return nil
	}
	if _, err := v.w.Write(buf[:n]); err != nil {
		return fmt.Errorf("wav: write samples: %w", err)
	}
	v.wroteBytes += n
	return nil
}

// dataChunkSize returns the data chunk length for sampleCount samples, capped
// on a block boundary so the file stays below 2 GiB.
func (v *WAVWriter) dataChunkSize(sampleCount int64) int64 {
	maxSize := int64(wavMaxFileSize - wavHeaderSize)
	maxSize -= maxSize % int64(v.blockAlign)
	if sampleCount > maxSize/int64(v.blockAlign) {
		return maxSize
	}
	return sampleCount * int64(v.blockAlign)
}

func (v *WAVWriter) header(sampleCount int64) []byte {
	dataSize := uint32(v.dataChunkSize(sampleCount))
	b := make([]byte, 0, wavHeaderSize)
	b = append(b, "RIFF"...)
	b = binary.LittleEndian.AppendUint32(b, dataSize+(dataSize&1)+36)
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, wavFormatPCM)
	b = binary.LittleEndian.AppendUint16(b, uint16(v.channels))
	b = binary.LittleEndian.AppendUint32(b, uint32(v.sampleRate))
	b = binary.LittleEndian.AppendUint32(b, uint32(v.sampleRate*v.blockAlign))
	b = binary.LittleEndian.AppendUint16(b, uint16(v.blockAlign))
	b = binary.LittleEndian.AppendUint16(b, uint16(v.bitsPerSample))
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, dataSize)
	return b
}

// Finish pads an odd-sized data chunk, patches the header sizes when the
// sample count changed and closes the file.
func (v *WAVWriter) Finish(media.Fraction) error {
	err := v.finish()
	if cerr := v.w.Close(); err == nil {
		err = cerr
	}
	return err
}

func (v *WAVWriter) finish() error {
	if !v.headerWritten {
		return nil
	}
	dataSize := v.dataChunkSize(v.sampleLen)
	if dataSize&1 == 1 {
		if _, err := v.w.Write([]byte{0}); err != nil {
			return fmt.Errorf("wav: write padding: %w", err)
		}
	}
	if v.sampleLen == v.finalSampleLen {
		return nil
	}

	ws, ok := v.w.(io.WriteSeeker)
	if !ok {
		return ErrSampleCountMismatch
	}
	h := v.header(v.sampleLen)
	if err := writeAt(ws, 4, h[4:8]); err != nil {
		return fmt.Errorf("wav: patch riff size: %w", err)
	}
	if err := writeAt(ws, 40, h[40:44]); err != nil {
		return fmt.Errorf("wav: patch data size: %w", err)
	}
	return nil
}
