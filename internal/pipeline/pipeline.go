// Package pipeline runs the extraction of a single FLV file: it validates
// the input and output locations, derives the output names and drives the
// demuxer over a buffered view of the file.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/zsiec/flvextract/internal/demux"
	"github.com/zsiec/flvextract/internal/flv"
)

const readBufferSize = 64 * 1024

var (
	ErrExtensionCollision = errors.New("pipeline: input has the extension of an output file, rename it")
	ErrOutputDirMissing   = errors.New("pipeline: output directory does not exist")
)

// outputExtensions are the extensions an input may not have, since
// extraction would write over it.
var outputExtensions = []string{
	demux.ExtAVI,
	demux.ExtMP3,
	demux.ExtH264,
	demux.ExtAAC,
	demux.ExtSpeex,
	demux.ExtTimecodes,
}

// Config controls what is extracted and where it goes.
type Config struct {
	// OutputDir receives the outputs. Empty means the input's directory.
	OutputDir string

	ExtractAudio     bool
	ExtractVideo     bool
	ExtractTimecodes bool

	Overwrite demux.OverwriteFunc
}

// Pipeline extracts the streams of one input file.
type Pipeline struct {
	log   *slog.Logger
	fs    afero.Fs
	input string
	cfg   Config
}

// New creates a Pipeline for input on fs. If log is nil, slog.Default() is
// used.
func New(fs afero.Fs, input string, cfg Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		log:   log.With("input", input),
		fs:    fs,
		input: input,
		cfg:   cfg,
	}
}

// Input returns the path of the file being extracted.
func (p *Pipeline) Input() string {
	return p.input
}

// OutputDir returns the directory the outputs are written to.
func (p *Pipeline) OutputDir() string {
	if p.cfg.OutputDir != "" {
		return p.cfg.OutputDir
	}
	return filepath.Dir(p.input)
}

// OutputBase returns the output directory joined with the input's name
// without extension. Each output appends its own extension.
func (p *Pipeline) OutputBase() string {
	name := filepath.Base(p.input)
	return filepath.Join(p.OutputDir(), strings.TrimSuffix(name, filepath.Ext(name)))
}

// Run extracts the input. The FLV signature is checked before the paths so
// that a wrong file type is reported first.
func (p *Pipeline) Run(ctx context.Context) (*demux.Result, error) {
	f, err := p.fs.Open(p.input)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pipeline: stat input: %w", err)
	}

	r := flv.NewReader(bufio.NewReaderSize(f, readBufferSize))
	hdr, err := r.ReadHeader()
	if err != nil {
		return nil, err
	}
	if err := p.checkPaths(); err != nil {
		return nil, err
	}

	p.log.Debug("flv header",
		"version", hdr.Version,
		"audio", hdr.HasAudio(),
		"video", hdr.HasVideo(),
		"size", info.Size(),
	)

	opts := demux.Options{
		ExtractAudio:     p.cfg.ExtractAudio,
		ExtractVideo:     p.cfg.ExtractVideo,
		ExtractTimecodes: p.cfg.ExtractTimecodes,
		Overwrite:        p.cfg.Overwrite,
		SerialNumber:     uint32(info.Size()),
	}

	start := time.Now()
	res, err := demux.New(p.fs, p.OutputBase(), opts, p.log).Run(ctx, r)
	if err != nil {
		return nil, err
	}

	attrs := []any{
		"tags", res.Tags,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"warnings", len(res.Warnings),
	}
	if res.AverageFrameRate != nil {
		attrs = append(attrs, "avg_fps", res.AverageFrameRate.Short())
	}
	if res.TrueFrameRate != nil {
		attrs = append(attrs, "true_fps", res.TrueFrameRate.Short())
	}
	p.log.Info("extraction complete", attrs...)
	return res, nil
}

func (p *Pipeline) checkPaths() error {
	if slices.Contains(outputExtensions, strings.ToLower(filepath.Ext(p.input))) {
		return ErrExtensionCollision
	}
	ok, err := afero.DirExists(p.fs, p.OutputDir())
	if err != nil {
		return fmt.Errorf("pipeline: check output directory: %w", err)
	}
	if !ok {
		return ErrOutputDirMissing
	}
	return nil
}
