package mux

import (
	"errors"
	"fmt"
)

// Sentinel errors for elementary stream writing. Codec parse failures are
// wrapped in a ParseError naming the codec.
var (
	ErrAACProfile          = errors.New("unsupported AAC profile")
	ErrAACSampleRate       = errors.New("invalid AAC sample rate index")
	ErrAACChannels         = errors.New("invalid AAC channel configuration")
	ErrSpeexData           = errors.New("invalid Speex data")
	ErrNotSeekable         = errors.New("mux: output is not seekable")
	ErrSampleCountMismatch = errors.New("mux: samples written differs from the expected sample count")
	ErrUnsupportedCodec    = errors.New("mux: unsupported codec")
)

// ParseError indicates codec-specific data inside a tag could not be parsed.
// Such failures abort the extraction.
type ParseError struct {
	Codec string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mux: parse %s: %v", e.Codec, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
