package mux

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/zsiec/flvextract/media"
)

const timecodeHeader = "# timecode format v2\n"

// TimecodeWriter lists video frame timestamps in milliseconds, one per line,
// in the "timecode format v2" text format understood by mkvmerge.
type TimecodeWriter struct {
	bw   *bufio.Writer
	c    io.Closer
	path string
	buf  []byte
}

// NewTimecodeWriter writes the format line and returns the writer.
func NewTimecodeWriter(w io.WriteCloser, path string) (*TimecodeWriter, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(timecodeHeader); err != nil {
		return nil, fmt.Errorf("timecodes: write header: %w", err)
	}
	return &TimecodeWriter{bw: bw, c: w, path: path}, nil
}

func (t *TimecodeWriter) Path() string { return t.path }

func (t *TimecodeWriter) WriteChunk(_ []byte, timestamp uint32, _ media.FrameType) error {
	t.buf = strconv.AppendUint(t.buf[:0], uint64(timestamp), 10)
	t.buf = append(t.buf, '\n')
	if _, err := t.bw.Write(t.buf); err != nil {
		return fmt.Errorf("timecodes: write: %w", err)
	}
	return nil
}

// Finish flushes the buffered lines and closes the file.
func (t *TimecodeWriter) Finish(media.Fraction) error {
	err := t.bw.Flush()
	if err != nil {
		err = fmt.Errorf("timecodes: flush: %w", err)
	}
	if cerr := t.c.Close(); err == nil {
		err = cerr
	}
	return err
}
