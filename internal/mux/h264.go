package mux

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/zsiec/flvextract/media"
)

const (
	avcPacketSequenceHeader = 0
	avcPacketHeaderSize     = 4 // packet type + composition time
	avcConfigMinSize        = 10
)

// H264Writer converts FLV AVC packets (length-prefixed NAL units and an
// AVCDecoderConfigurationRecord) into an Annex B byte stream.
type H264Writer struct {
	w    io.WriteCloser
	path string

	nalLengthSize int
	width, height int
	nalus         int
}

// NewH264Writer returns a writer that emits every NAL unit behind a 4-byte
// start code.
func NewH264Writer(w io.WriteCloser, path string) *H264Writer {
	return &H264Writer{w: w, path: path}
}

func (h *H264Writer) Path() string { return h.path }

// Resolution returns the picture size from the first parsable SPS.
func (h *H264Writer) Resolution() (width, height int) {
	return h.width, h.height
}

// WriteChunk converts one FLV AVC packet: the parameter sets of a sequence
// header or the NAL units of a coded picture.
func (h *H264Writer) WriteChunk(chunk []byte, _ uint32, _ media.FrameType) error {
	if len(chunk) < avcPacketHeaderSize {
		return nil
	}

	var au h264.AnnexB
	if chunk[0] == avcPacketSequenceHeader {
		au = h.parseConfig(chunk)
	} else {
		au = h.splitNALUs(chunk)
	}
	if len(au) == 0 {
		return nil
	}

	buf, err := au.Marshal()
	if err != nil {
		return fmt.Errorf("h264: marshal annex b: %w", err)
	}
	if _, err := h.w.Write(buf); err != nil {
		return fmt.Errorf("h264: write: %w", err)
	}
	h.nalus += len(au)
	return nil
}

// parseConfig extracts the SPS and PPS entries of an
// AVCDecoderConfigurationRecord, stopping at the first entry that would run
// past the end of the chunk.
func (h *H264Writer) parseConfig(chunk []byte) h264.AnnexB {
	if len(chunk) < avcConfigMinSize {
		return nil
	}

	offset := 8
	h.nalLengthSize = int(chunk[offset]&0x03) + 1
	offset++
	spsCount := int(chunk[offset] & 0x1F)
	offset++

	var au h264.AnnexB
	ppsCount := -1
	for offset <= len(chunk)-2 {
		if spsCount == 0 && ppsCount == -1 {
			ppsCount = int(chunk[offset])
			offset++
			continue
		}
		switch {
		case spsCount > 0:
			spsCount--
		case ppsCount > 0:
			ppsCount--
		default:
			return au
		}

		n := int(binary.BigEndian.Uint16(chunk[offset:]))
		offset += 2
		if offset+n > len(chunk) {
			break
		}
		nalu := chunk[offset : offset+n]
		offset += n

		if n > 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeSPS && h.width == 0 {
			var sps h264.SPS
			if err := sps.Unmarshal(nalu); err == nil {
				h.width, h.height = sps.Width(), sps.Height()
			}
		}
		au = append(au, nalu)
	}
	return au
}

// splitNALUs walks the length-prefixed NAL units of a coded picture. Length
// fields are 4 bytes unless the configuration record said 2.
func (h *H264Writer) splitNALUs(chunk []byte) h264.AnnexB {
	size := h.nalLengthSize
	if size != 2 {
		size = 4
	}

	var au h264.AnnexB
	offset := avcPacketHeaderSize
	for offset <= len(chunk)-size {
		var n int
		if size == 2 {
			n = int(binary.BigEndian.Uint16(chunk[offset:]))
		} else {
			n = int(binary.BigEndian.Uint32(chunk[offset:]))
		}
		offset += size
		if n < 0 || n > len(chunk)-offset {
			break
		}
		au = append(au, chunk[offset:offset+n])
		offset += n
	}
	return au
}

// Finish closes the file.
func (h *H264Writer) Finish(media.Fraction) error {
	return h.w.Close()
}
