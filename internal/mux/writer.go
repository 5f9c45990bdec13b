// Package mux writes FLV tag payloads out as standalone elementary stream
// files: MP3, WAV, ADTS AAC, Annex B H.264, Ogg Speex, AVI (H.263 and VP6)
// and timecode lists.
//
// Every format implements [Writer]. The demultiplexer feeds each writer the
// payload of every tag of one media kind, in file order, then calls Finish
// exactly once. Writers own their output and close it in Finish.
package mux

import (
	"io"

	"github.com/zsiec/flvextract/media"
)

// Writer consumes the codec payloads of one media kind.
type Writer interface {
	// WriteChunk handles one tag payload, without the codec info byte.
	// Audio writers ignore timestamp and frameType.
	WriteChunk(chunk []byte, timestamp uint32, frameType media.FrameType) error
	// Finish completes the file and closes it. Only the AVI writer uses
	// the frame rate.
	Finish(averageFrameRate media.Fraction) error
	// Path is the output file, empty for the no-op writer.
	Path() string
}

// WarnFunc receives non-fatal diagnostics raised while writing.
type WarnFunc func(msg string)

type nopWriter struct{}

// Nop returns a Writer that discards everything. It stands in for disabled,
// declined and unsupported streams.
func Nop() Writer { return nopWriter{} }

func (nopWriter) WriteChunk([]byte, uint32, media.FrameType) error { return nil }
func (nopWriter) Finish(media.Fraction) error                      { return nil }
func (nopWriter) Path() string                                     { return "" }

// IsNop reports whether w is the no-op writer.
func IsNop(w Writer) bool {
	_, ok := w.(nopWriter)
	return ok
}

func (w WarnFunc) warn(msg string) {
	if w != nil {
		w(msg)
	}
}

// seeker returns w as an io.WriteSeeker or ErrNotSeekable.
func seeker(w io.Writer) (io.WriteSeeker, error) {
	ws, ok := w.(io.WriteSeeker)
	if !ok {
		return nil, ErrNotSeekable
	}
	return ws, nil
}

// writeAt overwrites len(b) bytes at offset.
func writeAt(ws io.WriteSeeker, offset int64, b []byte) error {
	if _, err := ws.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := ws.Write(b)
	return err
}
