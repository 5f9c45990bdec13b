// Package flv reads the FLV container: the file header followed by a
// sequence of tags, each carrying one audio, video or script payload.
package flv

import "errors"

// Signature is "FLV" followed by format version 1.
const Signature uint32 = 0x464C5601

// ftypBox marks an ISO base media (MP4) file at bytes 4..8.
const ftypBox uint32 = 0x66747970

const (
	fileHeaderSize = 9
	tagHeaderSize  = 11
	tagFooterSize  = 4
)

var (
	ErrNotFLV          = errors.New("flv: not a valid FLV file")
	ErrMP4Container    = errors.New("flv: file is MP4, not FLV")
	ErrTruncatedHeader = errors.New("flv: truncated file header")
	ErrBadHeaderSize   = errors.New("flv: data offset inside file header")
)

// TagType identifies the payload of a tag.
type TagType uint8

const (
	TagAudio  TagType = 8
	TagVideo  TagType = 9
	TagScript TagType = 18
)

func (t TagType) String() string {
	switch t {
	case TagAudio:
		return "audio"
	case TagVideo:
		return "video"
	case TagScript:
		return "script"
	default:
		return "unknown"
	}
}

// Header is the FLV file header.
type Header struct {
	Version    uint8
	Flags      uint8
	DataOffset uint32
}

// HasAudio reports the audio-present flag. Writers are chosen from the tags
// themselves; the flag is informational.
func (h Header) HasAudio() bool { return h.Flags&0x04 != 0 }

// HasVideo reports the video-present flag.
func (h Header) HasVideo() bool { return h.Flags&0x01 != 0 }

// Tag is one FLV tag. Data holds the whole payload including the leading
// codec info byte and is never empty.
type Tag struct {
	Type      TagType
	Timestamp uint32 // milliseconds, extended byte already applied
	StreamID  uint32
	Data      []byte
}

// CodecInfo returns the first payload byte.
func (t *Tag) CodecInfo() byte {
	return t.Data[0]
}

// Payload returns the codec-specific bytes after the codec info byte.
func (t *Tag) Payload() []byte {
	return t.Data[1:]
}
