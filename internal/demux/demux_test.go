package demux

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/flvextract/internal/flv"
	"github.com/zsiec/flvextract/internal/mux"
	"github.com/zsiec/flvextract/media"
)

const (
	base = "/out/clip"

	pcmStereo16    = 0x3F // PCM little endian, 44.1 kHz, 16 bit, stereo
	pcmUnspecified = 0x0F // platform-endian PCM, 44.1 kHz, 16 bit, stereo
	adpcm          = 0x1F
	aacInfo        = 0xAF
	avcKey         = 0x17
	avcInter       = 0x27
	avcCommand     = 0x57
	screenKey      = 0x13
	vp6AlphaKey    = 0x15
)

var allOn = Options{ExtractAudio: true, ExtractVideo: true, ExtractTimecodes: true}

// flvFile assembles an FLV byte stream tag by tag.
type flvFile struct {
	bytes.Buffer
}

func newFLV() *flvFile {
	f := &flvFile{}
	f.Write([]byte{'F', 'L', 'V', 0x01, 0x05, 0, 0, 0, 9})
	f.Write([]byte{0, 0, 0, 0})
	return f
}

func (f *flvFile) tag(typ flv.TagType, ts uint32, data []byte) *flvFile {
	var hdr [11]byte
	hdr[0] = byte(typ)
	hdr[1], hdr[2], hdr[3] = byte(len(data)>>16), byte(len(data)>>8), byte(len(data))
	hdr[4], hdr[5], hdr[6] = byte(ts>>16), byte(ts>>8), byte(ts)
	hdr[7] = byte(ts >> 24)
	f.Write(hdr[:])
	f.Write(data)
	f.Write(binary.BigEndian.AppendUint32(nil, uint32(len(data)+11)))
	return f
}

func (f *flvFile) audio(ts uint32, info byte, payload ...byte) *flvFile {
	return f.tag(flv.TagAudio, ts, append([]byte{info}, payload...))
}

func (f *flvFile) video(ts uint32, info byte, payload ...byte) *flvFile {
	return f.tag(flv.TagVideo, ts, append([]byte{info}, payload...))
}

// avc appends an H.264 coded picture holding one NAL unit.
func (f *flvFile) avc(ts uint32, info byte, nalu ...byte) *flvFile {
	p := []byte{1, 0, 0, 0}
	p = binary.BigEndian.AppendUint32(p, uint32(len(nalu)))
	return f.video(ts, info, append(p, nalu...)...)
}

func run(t *testing.T, fs afero.Fs, data []byte, opts Options) (*Result, error) {
	t.Helper()
	r := flv.NewReader(bytes.NewReader(data))
	_, err := r.ReadHeader()
	require.NoError(t, err)
	return New(fs, base, opts, nil).Run(context.Background(), r)
}

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	return ok
}

func TestRunExtractsAudioVideoAndTimecodes(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		audio(0, pcmStereo16, 1, 2, 3, 4, 5, 6, 7, 8).
		avc(0, avcKey, 0x65, 0xAA).
		avc(40, avcInter, 0x41, 0x01).
		avc(80, avcInter, 0x41, 0x02).
		avc(120, avcInter, 0x41, 0x03)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	assert.True(t, res.ExtractedAudio)
	assert.True(t, res.ExtractedVideo)
	assert.True(t, res.ExtractedTimecodes)
	assert.Equal(t, base+ExtWAV, res.AudioPath)
	assert.Equal(t, []string{base + ExtH264}, res.VideoPaths)
	assert.Equal(t, base+ExtTimecodes, res.TimecodePath)
	assert.Equal(t, media.AudioPCMLE, res.AudioFormat)
	assert.Equal(t, media.VideoAVC, res.VideoCodec)
	assert.Equal(t, 5, res.Tags)
	assert.False(t, res.Truncated)

	require.NotNil(t, res.AverageFrameRate)
	require.NotNil(t, res.TrueFrameRate)
	assert.Equal(t, media.Fraction{Num: 25, Den: 1}, *res.AverageFrameRate)
	assert.Equal(t, media.Fraction{Num: 25, Den: 1}, *res.TrueFrameRate)

	wav, err := afero.ReadFile(fs, base+ExtWAV)
	require.NoError(t, err)
	require.Len(t, wav, 44+8)
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(wav[40:44]))

	h264, err := afero.ReadFile(fs, base+ExtH264)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x65, 0xAA}, h264[:6])

	tc, err := afero.ReadFile(fs, base+ExtTimecodes)
	require.NoError(t, err)
	assert.Equal(t, "# timecode format v2\n0\n40\n80\n120\n", string(tc))
}

func TestRunUnsupportedAudioKeepsVideo(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		audio(0, adpcm, 0x11, 0x22).
		avc(0, avcKey, 0x65, 0x01).
		audio(20, adpcm, 0x33).
		avc(40, avcInter, 0x41, 0x02)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ADPCM")
	assert.False(t, res.ExtractedAudio)
	assert.Empty(t, res.AudioPath)
	for _, ext := range []string{ExtMP3, ExtWAV, ExtAAC, ExtSpeex} {
		assert.False(t, exists(t, fs, base+ext), ext)
	}
	assert.True(t, res.ExtractedVideo)
	assert.True(t, exists(t, fs, base+ExtH264))
}

func TestRunUnsupportedVideoWarns(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().video(0, screenKey, 1, 2, 3).video(100, 0x2C, 4)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)

	assert.Equal(t, []string{"Unable to extract video (Screen is unsupported)."}, res.Warnings)
	assert.False(t, res.ExtractedVideo)
	assert.Empty(t, res.VideoPaths)
	// Timestamps of unsupported video still count.
	require.NotNil(t, res.AverageFrameRate)
	assert.Equal(t, media.Fraction{Num: 10, Den: 1}, *res.AverageFrameRate)
}

func TestRunUnknownAudioFormatWarns(t *testing.T) {
	t.Parallel()
	f := newFLV().audio(0, 0x9F, 1)
	res, err := run(t, afero.NewMemMapFs(), f.Bytes(), allOn)
	require.NoError(t, err)
	assert.Equal(t, []string{"Unable to extract audio (format=9 is unsupported)."}, res.Warnings)
}

func TestRunPCMByteOrderWarning(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().audio(0, pcmUnspecified, 1, 2, 3, 4)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)
	assert.Equal(t, []string{"PCM byte order unspecified, assuming little endian."}, res.Warnings)
	assert.True(t, exists(t, fs, base+ExtWAV))
}

func TestRunDisabledClassesWriteNothing(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		audio(0, adpcm, 1).
		avc(0, avcKey, 0x65, 0x01).
		avc(40, avcInter, 0x41, 0x02)

	res, err := run(t, fs, f.Bytes(), Options{})
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	assert.False(t, res.ExtractedAudio)
	assert.False(t, res.ExtractedVideo)
	assert.False(t, res.ExtractedTimecodes)
	assert.False(t, exists(t, fs, base+ExtH264))
	assert.False(t, exists(t, fs, base+ExtTimecodes))
	require.NotNil(t, res.AverageFrameRate)
	assert.Equal(t, media.Fraction{Num: 25, Den: 1}, *res.AverageFrameRate)
}

func TestRunSkipsCommandFrames(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		video(0, avcCommand, 0).
		avc(0, avcKey, 0x65, 0x01).
		video(20, avcCommand, 0).
		avc(40, avcInter, 0x41, 0x02)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)

	tc, err := afero.ReadFile(fs, base+ExtTimecodes)
	require.NoError(t, err)
	assert.Equal(t, "# timecode format v2\n0\n40\n", string(tc))
	require.NotNil(t, res.AverageFrameRate)
	assert.Equal(t, media.Fraction{Num: 25, Den: 1}, *res.AverageFrameRate)
}

func TestRunOverwriteDeclined(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, base+ExtH264, []byte("keep"), 0o644))

	var asked []string
	opts := allOn
	opts.Overwrite = func(path string) bool {
		asked = append(asked, path)
		return false
	}
	f := newFLV().avc(0, avcKey, 0x65, 0x01)

	res, err := run(t, fs, f.Bytes(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{base + ExtH264}, asked)
	assert.False(t, res.ExtractedVideo)
	assert.True(t, res.ExtractedTimecodes)
	got, err := afero.ReadFile(fs, base+ExtH264)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
}

func TestRunOverwriteAccepted(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, base+ExtH264, []byte("old"), 0o644))

	opts := allOn
	opts.Overwrite = func(string) bool { return true }
	f := newFLV().avc(0, avcKey, 0x65, 0x01)

	res, err := run(t, fs, f.Bytes(), opts)
	require.NoError(t, err)
	assert.True(t, res.ExtractedVideo)
	got, err := afero.ReadFile(fs, base+ExtH264)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x65, 0x01}, got)
}

func TestRunParseErrorRemovesOutputs(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		avc(0, avcKey, 0x65, 0x01).
		audio(0, aacInfo, 0, 0x00, 0x00) // AAC config with object type 0

	res, err := run(t, fs, f.Bytes(), allOn)
	require.ErrorIs(t, err, mux.ErrAACProfile)
	assert.Nil(t, res)

	var perr *mux.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "aac", perr.Codec)

	for _, ext := range []string{ExtH264, ExtAAC, ExtTimecodes} {
		assert.False(t, exists(t, fs, base+ext), ext)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().avc(0, avcKey, 0x65, 0x01)

	r := flv.NewReader(bytes.NewReader(f.Bytes()))
	_, err := r.ReadHeader()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(fs, base, allOn, nil).Run(ctx, r)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, exists(t, fs, base+ExtH264))
}

func TestRunVP6AlphaWritesTwoFiles(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	// Adjustment byte, 24-bit alpha offset of 2, two colour bytes, three
	// alpha bytes.
	frame := []byte{0x00, 0, 0, 2, 0xC1, 0xC2, 0xA1, 0xA2, 0xA3}
	f := newFLV().video(0, vp6AlphaKey, frame...).video(40, vp6AlphaKey, frame...)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)

	alphaPath := "/out/clip.alpha.avi"
	assert.Equal(t, []string{base + ExtAVI, alphaPath}, res.VideoPaths)

	colour, err := afero.ReadFile(fs, base+ExtAVI)
	require.NoError(t, err)
	alpha, err := afero.ReadFile(fs, alphaPath)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(colour, []byte{'0', '0', 'd', 'c', 2, 0, 0, 0, 0xC1, 0xC2}))
	assert.True(t, bytes.Contains(alpha, []byte{'0', '0', 'd', 'c', 3, 0, 0, 0, 0xA1, 0xA2, 0xA3}))
}

func TestRunVP6AlphaOverwriteDeclined(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	alphaPath := "/out/clip.alpha.avi"
	require.NoError(t, afero.WriteFile(fs, alphaPath, []byte("keep"), 0o644))

	var asked []string
	opts := allOn
	opts.Overwrite = func(path string) bool {
		asked = append(asked, path)
		return false
	}
	frame := []byte{0x00, 0, 0, 1, 0xC1, 0xA1}
	f := newFLV().video(0, vp6AlphaKey, frame...)

	res, err := run(t, fs, f.Bytes(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{alphaPath}, asked)
	assert.Equal(t, []string{base + ExtAVI}, res.VideoPaths)
	got, err := afero.ReadFile(fs, alphaPath)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
	assert.True(t, exists(t, fs, base+ExtAVI))
}

func TestRunAbortRemovesAlphaPlane(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	frame := []byte{0x00, 0, 0, 1, 0xC1, 0xA1}
	f := newFLV().
		video(0, vp6AlphaKey, frame...).
		audio(0, aacInfo, 0, 0x00, 0x00)

	_, err := run(t, fs, f.Bytes(), allOn)
	require.Error(t, err)
	assert.False(t, exists(t, fs, base+ExtAVI))
	assert.False(t, exists(t, fs, "/out/clip.alpha.avi"))
}

func TestRunTruncatedTailIsNotAnError(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		avc(0, avcKey, 0x65, 0x01).
		avc(40, avcInter, 0x41, 0x02)
	data := f.Bytes()
	data = append(data, byte(flv.TagVideo), 0, 0, 50, 0, 0) // header cut short

	res, err := run(t, fs, data, allOn)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 2, res.Tags)
	assert.True(t, res.ExtractedVideo)
}

// amf0String and amf0Number encode AMF0 values the way FLV script tags
// carry them.
func amf0String(s string) []byte {
	b := []byte{0x02}
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func amf0Number(v float64) []byte {
	return binary.BigEndian.AppendUint64([]byte{0x00}, math.Float64bits(v))
}

func onMetaDataTag(props map[string]float64, order ...string) []byte {
	b := amf0String(onMetaData)
	b = append(b, 0x08)
	b = binary.BigEndian.AppendUint32(b, uint32(len(order)))
	for _, k := range order {
		b = binary.BigEndian.AppendUint16(b, uint16(len(k)))
		b = append(b, k...)
		b = append(b, amf0Number(props[k])...)
	}
	return append(b, 0, 0, 0x09)
}

func TestRunDecodesMetadata(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	script := onMetaDataTag(map[string]float64{"duration": 12.5, "framerate": 25}, "duration", "framerate")
	f := newFLV().
		tag(flv.TagScript, 0, script).
		avc(0, avcKey, 0x65, 0x01)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, 12.5, res.Metadata["duration"])
	assert.Equal(t, float64(25), res.Metadata["framerate"])
}

func TestRunIgnoresOtherScriptData(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	f := newFLV().
		tag(flv.TagScript, 0, append(amf0String("onCuePoint"), amf0Number(1)...)).
		tag(flv.TagScript, 0, []byte{0xFF, 0xFF}).
		avc(0, avcKey, 0x65, 0x01)

	res, err := run(t, fs, f.Bytes(), allOn)
	require.NoError(t, err)
	assert.Nil(t, res.Metadata)
	assert.True(t, res.ExtractedVideo)
}

func TestNormalizeNestedValues(t *testing.T) {
	t.Parallel()
	type object map[string]interface{}
	in := object{
		"keyframes": object{"times": []interface{}{0.0, 2.0}},
		"raw":       []byte{1, 2},
		"nothing":   nil,
	}
	got, ok := normalize(in).(map[string]any)
	require.True(t, ok)
	kf, ok := got["keyframes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{0.0, 2.0}, kf["times"])
	assert.Equal(t, []byte{1, 2}, got["raw"])
	assert.Nil(t, got["nothing"])
}
