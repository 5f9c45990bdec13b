// Package media defines the codec identifiers and value types shared by the
// FLV reader, the demultiplexer and the elementary stream writers.
package media

import "fmt"

// FrameType is the upper nibble of an FLV video tag's codec info byte.
type FrameType uint8

const (
	FrameKey        FrameType = 1
	FrameInter      FrameType = 2
	FrameDisposable FrameType = 3
	FrameGenerated  FrameType = 4
	FrameCommand    FrameType = 5 // video info/command frame, carries no picture
)

// AudioFormat is the upper nibble of an FLV audio tag's codec info byte.
type AudioFormat uint8

const (
	AudioPCM        AudioFormat = 0 // platform-endian PCM
	AudioADPCM      AudioFormat = 1
	AudioMP3        AudioFormat = 2
	AudioPCMLE      AudioFormat = 3
	AudioNelly16k   AudioFormat = 4
	AudioNelly8k    AudioFormat = 5
	AudioNellymoser AudioFormat = 6
	AudioAAC        AudioFormat = 10
	AudioSpeex      AudioFormat = 11
	AudioMP3At8k    AudioFormat = 14
)

func (f AudioFormat) String() string {
	switch f {
	case AudioPCM, AudioPCMLE:
		return "PCM"
	case AudioADPCM:
		return "ADPCM"
	case AudioMP3, AudioMP3At8k:
		return "MP3"
	case AudioNelly16k, AudioNelly8k, AudioNellymoser:
		return "Nellymoser"
	case AudioAAC:
		return "AAC"
	case AudioSpeex:
		return "Speex"
	default:
		return fmt.Sprintf("format=%d", uint8(f))
	}
}

// VideoCodec is the lower nibble of an FLV video tag's codec info byte.
type VideoCodec uint8

const (
	VideoH263     VideoCodec = 2 // Sorenson H.263
	VideoScreen   VideoCodec = 3
	VideoVP6      VideoCodec = 4
	VideoVP6Alpha VideoCodec = 5
	VideoScreen2  VideoCodec = 6
	VideoAVC      VideoCodec = 7
)

func (c VideoCodec) String() string {
	switch c {
	case VideoH263:
		return "H.263"
	case VideoScreen:
		return "Screen"
	case VideoVP6:
		return "VP6"
	case VideoVP6Alpha:
		return "VP6 with alpha"
	case VideoScreen2:
		return "Screen2"
	case VideoAVC:
		return "AVC"
	default:
		return fmt.Sprintf("codecID=%d", uint8(c))
	}
}

// AudioInfo is the decoded codec info byte of an audio tag.
type AudioInfo struct {
	Format        AudioFormat
	SampleRate    int
	BitsPerSample int
	Channels      int
}

var audioSampleRates = [4]int{5512, 11025, 22050, 44100}

// ParseAudioInfo splits an audio tag's codec info byte into its fields.
func ParseAudioInfo(b byte) AudioInfo {
	info := AudioInfo{
		Format:        AudioFormat(b >> 4),
		SampleRate:    audioSampleRates[(b>>2)&0x03],
		BitsPerSample: 8,
		Channels:      1,
	}
	if (b>>1)&0x01 == 1 {
		info.BitsPerSample = 16
	}
	if b&0x01 == 1 {
		info.Channels = 2
	}
	return info
}

// VideoInfo is the decoded codec info byte of a video tag.
type VideoInfo struct {
	FrameType FrameType
	Codec     VideoCodec
}

// ParseVideoInfo splits a video tag's codec info byte into its fields.
func ParseVideoInfo(b byte) VideoInfo {
	return VideoInfo{
		FrameType: FrameType(b >> 4),
		Codec:     VideoCodec(b & 0x0F),
	}
}
