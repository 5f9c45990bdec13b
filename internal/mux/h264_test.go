package mux

import (
	"encoding/binary"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1280x720 High profile SPS.
var testSPS = []byte{
	0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
	0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
	0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
	0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
}

var testPPS = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}

func avcConfigChunk(lengthSizeMinusOne byte, sps, pps [][]byte) []byte {
	b := []byte{avcPacketSequenceHeader, 0, 0, 0, 1, 0x64, 0x00, 0x1f, 0xFC | lengthSizeMinusOne, 0xE0 | byte(len(sps))}
	for _, s := range sps {
		b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
		b = append(b, s...)
	}
	b = append(b, byte(len(pps)))
	for _, p := range pps {
		b = binary.BigEndian.AppendUint16(b, uint16(len(p)))
		b = append(b, p...)
	}
	return b
}

func avcNALUChunk(lengthSize int, nalus ...[]byte) []byte {
	b := []byte{1, 0, 0, 0}
	for _, n := range nalus {
		if lengthSize == 2 {
			b = binary.BigEndian.AppendUint16(b, uint16(len(n)))
		} else {
			b = binary.BigEndian.AppendUint32(b, uint32(len(n)))
		}
		b = append(b, n...)
	}
	return b
}

func TestH264WriterAnnexB(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	w := NewH264Writer(createFile(t, fs, "out.264"), "out.264")

	idr := []byte{0x65, 0x88, 0x84, 0x21, 0xA0}
	slice := []byte{0x41, 0x9A, 0x02, 0x04}
	sei := []byte{0x06, 0x05, 0x01, 0x80}

	require.NoError(t, w.WriteChunk(avcConfigChunk(3, [][]byte{testSPS}, [][]byte{testPPS}), 0, 1))
	require.NoError(t, w.WriteChunk(avcNALUChunk(4, sei, idr), 0, 1))
	require.NoError(t, w.WriteChunk(avcNALUChunk(4, slice), 40, 2))
	require.NoError(t, w.Finish(noRate))

	width, height := w.Resolution()
	assert.Equal(t, 1280, width)
	assert.Equal(t, 720, height)

	got := readFile(t, fs, "out.264")
	assert.Equal(t, []byte{0, 0, 0, 1}, got[:4])

	var au h264.AnnexB
	require.NoError(t, au.Unmarshal(got))
	require.Len(t, au, 5)
	assert.Equal(t, testSPS, au[0])
	assert.Equal(t, testPPS, au[1])
	assert.Equal(t, sei, au[2])
	assert.Equal(t, idr, au[3])
	assert.Equal(t, slice, au[4])
	assert.Equal(t, h264.NALUTypeIDR, h264.NALUType(au[3][0]&0x1F))
}

func TestH264WriterTwoByteLengths(t *testing.T) {
	t.Parallel()
	sink := &streamSink{}
	w := NewH264Writer(sink, "out.264")

	nalu := []byte{0x65, 0x11, 0x22}
	require.NoError(t, w.WriteChunk(avcConfigChunk(1, nil, nil), 0, 1))
	require.NoError(t, w.WriteChunk(avcNALUChunk(2, nalu), 0, 1))

	assert.Equal(t, []byte{0, 0, 0, 1, 0x65, 0x11, 0x22}, sink.Bytes())
}

func TestH264WriterDefaultsToFourByteLengths(t *testing.T) {
	t.Parallel()
	sink := &streamSink{}
	w := NewH264Writer(sink, "out.264")

	// No configuration record seen yet.
	nalu := []byte{0x41, 0x01}
	require.NoError(t, w.WriteChunk(avcNALUChunk(4, nalu), 0, 2))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41, 0x01}, sink.Bytes())
}

func TestH264WriterStopsAtOverrun(t *testing.T) {
	t.Parallel()
	sink := &streamSink{}
	w := NewH264Writer(sink, "out.264")

	good := []byte{0x41, 0xAA}
	chunk := avcNALUChunk(4, good)
	chunk = binary.BigEndian.AppendUint32(chunk, 100) // claims more than remains
	chunk = append(chunk, 0x41, 0xBB)
	require.NoError(t, w.WriteChunk(chunk, 0, 2))
	assert.Equal(t, []byte{0, 0, 0, 1, 0x41, 0xAA}, sink.Bytes())
}

func TestH264WriterTruncatedConfig(t *testing.T) {
	t.Parallel()
	sink := &streamSink{}
	w := NewH264Writer(sink, "out.264")

	conf := avcConfigChunk(3, [][]byte{testSPS}, [][]byte{testPPS})
	// Cut the PPS short: only the SPS survives.
	require.NoError(t, w.WriteChunk(conf[:len(conf)-2], 0, 1))

	var au h264.AnnexB
	require.NoError(t, au.Unmarshal(sink.Bytes()))
	require.Len(t, au, 1)
	assert.Equal(t, testSPS, au[0])
}

func TestH264WriterIgnoresShortChunks(t *testing.T) {
	t.Parallel()
	sink := &streamSink{}
	w := NewH264Writer(sink, "out.264")
	require.NoError(t, w.WriteChunk([]byte{1, 0, 0}, 0, 2))
	require.NoError(t, w.WriteChunk([]byte{0, 0, 0, 0, 1, 0x64, 0, 0x1f}, 0, 1))
	assert.Zero(t, sink.Len())
}
