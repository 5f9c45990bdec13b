package flv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/flvextract/internal/bitio"
)

// Reader reads tags from an FLV byte stream. A stream that ends in the middle
// of a tag is treated as a normal end of stream.
type Reader struct {
	r         io.Reader
	hdrBuf    [tagHeaderSize]byte
	header    Header
	started   bool
	done      bool
	truncated bool
	tags      int
}

// NewReader creates a Reader over r. ReadHeader must be called before NextTag.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadHeader reads and validates the file header, skips to the first tag and
// consumes the leading previous-tag-size field.
func (r *Reader) ReadHeader() (Header, error) {
	var buf [fileHeaderSize]byte
	n, err := io.ReadFull(r.r, buf[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Header{}, fmt.Errorf("flv: read header: %w", err)
	}
	if n < 4 || binary.BigEndian.Uint32(buf[:4]) != Signature {
		if n >= 8 && binary.BigEndian.Uint32(buf[4:8]) == ftypBox {
			return Header{}, ErrMP4Container
		}
		return Header{}, ErrNotFLV
	}
	if n < fileHeaderSize {
		return Header{}, ErrTruncatedHeader
	}

	h := Header{
		Version:    buf[3],
		Flags:      buf[4],
		DataOffset: binary.BigEndian.Uint32(buf[5:9]),
	}
	if h.DataOffset < fileHeaderSize {
		return Header{}, ErrBadHeaderSize
	}
	if skip := int64(h.DataOffset) - fileHeaderSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r.r, skip); err != nil {
			r.done = true
		}
	}

	// Previous tag size 0. A short read here leaves no room for tags and is
	// caught by the first NextTag call.
	var prev [tagFooterSize]byte
	if _, err := io.ReadFull(r.r, prev[:]); err != nil {
		r.done = true
	}

	r.header = h
	r.started = true
	return h, nil
}

// NextTag returns the next non-empty tag. It returns io.EOF when the stream
// ends, including when the final tag is incomplete.
func (r *Reader) NextTag() (*Tag, error) {
	if !r.started {
		return nil, errors.New("flv: NextTag before ReadHeader")
	}
	for {
		if r.done {
			return nil, io.EOF
		}
		if n, err := r.readFull(r.hdrBuf[:]); err != nil {
			if n > 0 {
				r.truncated = true
			}
			return nil, err
		}

		tag := &Tag{
			Type:      TagType(r.hdrBuf[0]),
			Timestamp: bitio.Uint24(r.hdrBuf[4:7]) | uint32(r.hdrBuf[7])<<24,
			StreamID:  bitio.Uint24(r.hdrBuf[8:11]),
		}
		size := bitio.Uint24(r.hdrBuf[1:4])

		if size > 0 {
			tag.Data = make([]byte, size)
			if _, err := r.readFull(tag.Data); err != nil {
				r.truncated = true
				return nil, err
			}
		}

		var footer [tagFooterSize]byte
		_, footerErr := r.readFull(footer[:])

		if size == 0 {
			if footerErr != nil {
				return nil, footerErr
			}
			continue
		}
		r.tags++
		// A tag whose footer is cut off is still complete; the stream ends
		// after it.
		return tag, nil
	}
}

// readFull reads exactly len(b) bytes. A short read ends the stream and
// reports io.EOF along with the number of bytes that were available.
func (r *Reader) readFull(b []byte) (int, error) {
	n, err := io.ReadFull(r.r, b)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		r.done = true
		return n, io.EOF
	default:
		return n, fmt.Errorf("flv: read: %w", err)
	}
}

// Header returns the header read by ReadHeader.
func (r *Reader) Header() Header {
	return r.header
}

// Truncated reports whether the stream ended inside a tag header or payload.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Tags returns the number of non-empty tags returned so far.
func (r *Reader) Tags() int {
	return r.tags
}
