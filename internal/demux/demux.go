package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/zsiec/flvextract/internal/flv"
	"github.com/zsiec/flvextract/internal/mux"
	"github.com/zsiec/flvextract/media"
)

// Output file extensions, appended to the output base.
const (
	ExtMP3       = ".mp3"
	ExtWAV       = ".wav"
	ExtAAC       = ".aac"
	ExtSpeex     = ".spx"
	ExtAVI       = ".avi"
	ExtH264      = ".264"
	ExtTimecodes = ".txt"
)

// fallbackFrameRate is handed to the video writer when the average frame
// rate cannot be computed.
var fallbackFrameRate = media.Fraction{Num: 25, Den: 1}

// OverwriteFunc decides whether an existing output file may be replaced.
// It is consulted only for paths that already exist.
type OverwriteFunc func(path string) bool

// Options selects what a Demuxer extracts.
type Options struct {
	ExtractAudio     bool
	ExtractVideo     bool
	ExtractTimecodes bool
	// Overwrite is asked before an existing file is replaced. A nil
	// Overwrite replaces existing files.
	Overwrite OverwriteFunc
	// SerialNumber is the Ogg stream serial used for Speex output.
	SerialNumber uint32
}

// Result describes a completed extraction.
type Result struct {
	AverageFrameRate *media.Fraction
	TrueFrameRate    *media.Fraction
	Warnings         []string

	ExtractedAudio     bool
	ExtractedVideo     bool
	ExtractedTimecodes bool

	AudioPath    string
	VideoPaths   []string
	TimecodePath string

	AudioFormat media.AudioFormat
	VideoCodec  media.VideoCodec
	// Metadata holds the decoded onMetaData script tag, if any.
	Metadata map[string]any

	Tags      int
	Truncated bool
}

// Demuxer extracts the streams of one FLV file. It is not safe for
// concurrent use and runs once.
type Demuxer struct {
	log  *slog.Logger
	fs   afero.Fs
	base string
	opts Options

	audio     mux.Writer
	video     []mux.Writer
	timecodes mux.Writer

	audioFormat media.AudioFormat
	videoCodec  media.VideoCodec
	timestamps  []uint32
	warnings    []string
	metadata    map[string]any
}

// New creates a Demuxer that writes to outputBase plus a per-format
// extension on fs. If log is nil, slog.Default() is used.
func New(fs afero.Fs, outputBase string, opts Options, log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Demuxer{
		log:  log.With("component", "demux"),
		fs:   fs,
		base: outputBase,
		opts: opts,
	}
}

// Run reads every tag from r, whose header must already have been read, and
// writes the selected streams. On any error, including cancellation of
// ctx, the writers are finalized and their files removed.
func (d *Demuxer) Run(ctx context.Context, r *flv.Reader) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, d.abort(err)
		}
		tag, err := r.NextTag()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, d.abort(err)
		}
		if err := d.handleTag(tag); err != nil {
			return nil, d.abort(err)
		}
	}
	if r.Truncated() {
		d.log.Debug("stream ends inside a tag", "tags", r.Tags())
	}

	res := d.result()
	res.Tags = r.Tags()
	res.Truncated = r.Truncated()

	rate := fallbackFrameRate
	if res.AverageFrameRate != nil {
		rate = *res.AverageFrameRate
	}
	if err := d.finishAll(rate); err != nil {
		d.removeOutputs()
		return nil, err
	}
	return res, nil
}

func (d *Demuxer) handleTag(tag *flv.Tag) error {
	switch tag.Type {
	case flv.TagAudio:
		if d.audio == nil {
			w, err := d.audioWriter(media.ParseAudioInfo(tag.CodecInfo()))
			if err != nil {
				return err
			}
			d.audio = w
		}
		return d.audio.WriteChunk(tag.Payload(), tag.Timestamp, 0)

	case flv.TagVideo:
		info := media.ParseVideoInfo(tag.CodecInfo())
		if info.FrameType == media.FrameCommand {
			return nil
		}
		if d.video == nil {
			ws, err := d.videoWriters(info.Codec)
			if err != nil {
				return err
			}
			d.video = ws
		}
		if d.timecodes == nil {
			w, err := d.timecodeWriter()
			if err != nil {
				return err
			}
			d.timecodes = w
		}
		d.timestamps = append(d.timestamps, tag.Timestamp)
		for _, w := range d.video {
			if err := w.WriteChunk(tag.Payload(), tag.Timestamp, info.FrameType); err != nil {
				return err
			}
		}
		return d.timecodes.WriteChunk(nil, tag.Timestamp, info.FrameType)

	case flv.TagScript:
		md, err := parseScript(tag.Data)
		if err != nil {
			d.log.Debug("ignoring script tag", "error", err)
			return nil
		}
		if md != nil {
			d.metadata = md
		}
	}
	return nil
}

func (d *Demuxer) audioWriter(info media.AudioInfo) (mux.Writer, error) {
	d.audioFormat = info.Format
	if !d.opts.ExtractAudio {
		return mux.Nop(), nil
	}

	switch info.Format {
	case media.AudioMP3, media.AudioMP3At8k:
		return d.open(ExtMP3, func(f afero.File, path string) (mux.Writer, error) {
			return mux.NewMP3Writer(f, path, d.warn), nil
		})

	case media.AudioPCM, media.AudioPCMLE:
		return d.open(ExtWAV, func(f afero.File, path string) (mux.Writer, error) {
			if info.Format == media.AudioPCM {
				d.warn("PCM byte order unspecified, assuming little endian.")
			}
			return mux.NewWAVWriter(f, path, info.BitsPerSample, info.Channels, info.SampleRate), nil
		})

	case media.AudioAAC:
		return d.open(ExtAAC, func(f afero.File, path string) (mux.Writer, error) {
			return mux.NewAACWriter(f, path), nil
		})

	case media.AudioSpeex:
		return d.open(ExtSpeex, func(f afero.File, path string) (mux.Writer, error) {
			return mux.NewSpeexWriter(f, path, d.opts.SerialNumber)
		})

	default:
		d.warn(fmt.Sprintf("Unable to extract audio (%v is unsupported).", info.Format))
		return mux.Nop(), nil
	}
}

func (d *Demuxer) videoWriters(codec media.VideoCodec) ([]mux.Writer, error) {
	d.videoCodec = codec
	if !d.opts.ExtractVideo {
		return []mux.Writer{mux.Nop()}, nil
	}

	switch codec {
	case media.VideoH263, media.VideoVP6, media.VideoVP6Alpha:
		colour, err := d.open(ExtAVI, func(f afero.File, path string) (mux.Writer, error) {
			return mux.NewAVIWriter(f, path, codec, false, d.warn)
		})
		if err != nil {
			return nil, err
		}
		if codec != media.VideoVP6Alpha || mux.IsNop(colour) {
			return []mux.Writer{colour}, nil
		}
		alphaPath := mux.AlphaPath(colour.Path())
		if !d.canWriteTo(alphaPath) {
			d.log.Info("keeping existing file", "path", alphaPath)
			return []mux.Writer{colour}, nil
		}
		alpha, err := d.create(alphaPath, func(f afero.File) (mux.Writer, error) {
			return mux.NewAVIWriter(f, alphaPath, codec, true, d.warn)
		})
		if err != nil {
			_ = colour.Finish(fallbackFrameRate)
			_ = d.fs.Remove(colour.Path())
			return nil, err
		}
		return []mux.Writer{colour, alpha}, nil

	case media.VideoAVC:
		w, err := d.open(ExtH264, func(f afero.File, path string) (mux.Writer, error) {
			return mux.NewH264Writer(f, path), nil
		})
		if err != nil {
			return nil, err
		}
		return []mux.Writer{w}, nil

	default:
		d.warn(fmt.Sprintf("Unable to extract video (%v is unsupported).", codec))
		return []mux.Writer{mux.Nop()}, nil
	}
}

func (d *Demuxer) timecodeWriter() (mux.Writer, error) {
	if !d.opts.ExtractTimecodes {
		return mux.Nop(), nil
	}
	return d.open(ExtTimecodes, func(f afero.File, path string) (mux.Writer, error) {
		return mux.NewTimecodeWriter(f, path)
	})
}

// open creates base+ext through build, or returns the no-op writer if the
// overwrite policy declines an existing file.
func (d *Demuxer) open(ext string, build func(f afero.File, path string) (mux.Writer, error)) (mux.Writer, error) {
	path := d.base + ext
	if !d.canWriteTo(path) {
		d.log.Info("keeping existing file", "path", path)
		return mux.Nop(), nil
	}
	return d.create(path, func(f afero.File) (mux.Writer, error) {
		return build(f, path)
	})
}

func (d *Demuxer) create(path string, build func(f afero.File) (mux.Writer, error)) (mux.Writer, error) {
	f, err := d.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("demux: create output: %w", err)
	}
	w, err := build(f)
	if err != nil {
		_ = f.Close()
		_ = d.fs.Remove(path)
		return nil, err
	}
	d.log.Debug("writing", "path", path)
	return w, nil
}

func (d *Demuxer) canWriteTo(path string) bool {
	exists, err := afero.Exists(d.fs, path)
	if err != nil || !exists || d.opts.Overwrite == nil {
		return true
	}
	return d.opts.Overwrite(path)
}

func (d *Demuxer) warn(msg string) {
	d.warnings = append(d.warnings, msg)
	d.log.Warn(msg)
}

func (d *Demuxer) result() *Result {
	res := &Result{
		AudioFormat: d.audioFormat,
		VideoCodec:  d.videoCodec,
		Metadata:    d.metadata,
	}
	if f, ok := AverageFrameRate(d.timestamps); ok {
		res.AverageFrameRate = &f
	}
	if f, ok := TrueFrameRate(d.timestamps); ok {
		res.TrueFrameRate = &f
	}

	if d.audio != nil && !mux.IsNop(d.audio) {
		res.ExtractedAudio = true
		res.AudioPath = d.audio.Path()
	}
	for _, w := range d.video {
		if !mux.IsNop(w) {
			res.ExtractedVideo = true
			res.VideoPaths = append(res.VideoPaths, w.Path())
		}
	}
	if d.timecodes != nil && !mux.IsNop(d.timecodes) {
		res.ExtractedTimecodes = true
		res.TimecodePath = d.timecodes.Path()
	}
	res.Warnings = d.warnings
	return res
}

// finishAll finalizes video, then audio, then timecodes. Every writer is
// finished even if an earlier one fails.
func (d *Demuxer) finishAll(rate media.Fraction) error {
	var errs []error
	for _, w := range d.writers() {
		if err := w.Finish(rate); err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", w.Path(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Demuxer) writers() []mux.Writer {
	ws := make([]mux.Writer, 0, len(d.video)+2)
	ws = append(ws, d.video...)
	if d.audio != nil {
		ws = append(ws, d.audio)
	}
	if d.timecodes != nil {
		ws = append(ws, d.timecodes)
	}
	return ws
}

// abort finalizes every writer so its file is closed, deletes the outputs
// and returns cause.
func (d *Demuxer) abort(cause error) error {
	if err := d.finishAll(fallbackFrameRate); err != nil {
		d.log.Debug("finish during abort", "error", err)
	}
	d.removeOutputs()
	return cause
}

func (d *Demuxer) removeOutputs() {
	for _, w := range d.writers() {
		path := w.Path()
		if path == "" {
			continue
		}
		if err := d.fs.Remove(path); err != nil {
			d.log.Warn("failed to remove partial output", "path", path, "error", err)
			continue
		}
		d.log.Debug("removed partial output", "path", path)
	}
}
