package main

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/zsiec/flvextract/internal/batch"
	"github.com/zsiec/flvextract/media"
)

type report struct {
	Version string        `yaml:"version"`
	Files   []reportEntry `yaml:"files"`
}

type reportEntry struct {
	Input            string         `yaml:"input"`
	Error            string         `yaml:"error,omitempty"`
	Elapsed          string         `yaml:"elapsed,omitempty"`
	TrueFrameRate    string         `yaml:"true_frame_rate,omitempty"`
	AverageFrameRate string         `yaml:"average_frame_rate,omitempty"`
	Audio            string         `yaml:"audio,omitempty"`
	AudioFormat      string         `yaml:"audio_format,omitempty"`
	Video            []string       `yaml:"video,omitempty"`
	VideoCodec       string         `yaml:"video_codec,omitempty"`
	Timecodes        string         `yaml:"timecodes,omitempty"`
	Warnings         []string       `yaml:"warnings,omitempty"`
	Metadata         map[string]any `yaml:"metadata,omitempty"`
}

func buildReport(outcomes []batch.Outcome) report {
	r := report{Version: version}
	for _, o := range outcomes {
		e := reportEntry{Input: o.Input}
		if o.Err != nil {
			e.Error = o.Err.Error()
			r.Files = append(r.Files, e)
			continue
		}
		res := o.Result
		e.Elapsed = o.Elapsed.String()
		e.TrueFrameRate = ratio(res.TrueFrameRate)
		e.AverageFrameRate = ratio(res.AverageFrameRate)
		e.Audio = res.AudioPath
		if res.ExtractedAudio {
			e.AudioFormat = res.AudioFormat.String()
		}
		e.Video = res.VideoPaths
		if res.ExtractedVideo {
			e.VideoCodec = res.VideoCodec.String()
		}
		e.Timecodes = res.TimecodePath
		e.Warnings = res.Warnings
		e.Metadata = res.Metadata
		r.Files = append(r.Files, e)
	}
	return r
}

func writeReport(fsys afero.Fs, path string, outcomes []batch.Outcome) error {
	b, err := yaml.Marshal(buildReport(outcomes))
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := afero.WriteFile(fsys, path, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func ratio(f *media.Fraction) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

func rateString(f *media.Fraction) string {
	if f == nil {
		return "N/A"
	}
	return f.String()
}
