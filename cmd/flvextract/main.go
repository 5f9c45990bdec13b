package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zsiec/flvextract/internal/batch"
	"github.com/zsiec/flvextract/internal/config"
	"github.com/zsiec/flvextract/internal/demux"
	"github.com/zsiec/flvextract/internal/pipeline"
)

var version = "dev"

// errExtractionFailed is returned after the per-file errors were printed.
var errExtractionFailed = errors.New("one or more files failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errExtractionFailed) {
			fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "flvextract [flags] FILE...",
		Short:   "Extract audio and video streams from FLV files",
		Long:    "flvextract copies the audio and video of FLV files into standalone files (MP3, WAV, AAC, Speex, H.264, AVI) without re-encoding, and estimates the video frame rate.",
		Version: version,
		Args:    cobra.MinimumNArgs(1),

		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, inputs []string) error {
	fsys := afero.NewOsFs()
	cfg, err := config.Load(fsys, cmd.Flags())
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runner := batch.NewRunner(fsys, pipelineConfig(cfg, cmd.InOrStdin(), cmd.ErrOrStderr()), cfg.Jobs, log)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warn("received signal, abandoning extractions", "signal", sig, "active", len(runner.Active()))
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Debug("flvextract starting", "version", version, "inputs", len(inputs), "jobs", cfg.Jobs)
	outcomes := runner.Run(ctx, inputs)

	out := cmd.OutOrStdout()
	failed := false
	for i, o := range outcomes {
		if i > 0 {
			fmt.Fprintln(out)
		}
		printOutcome(out, o)
		failed = failed || o.Err != nil
	}

	if cfg.Report != "" {
		if err := writeReport(fsys, cfg.Report, outcomes); err != nil {
			return err
		}
	}
	if failed {
		return errExtractionFailed
	}
	return nil
}

func pipelineConfig(cfg config.Config, stdin io.Reader, prompt io.Writer) pipeline.Config {
	pc := pipeline.Config{
		OutputDir:        cfg.OutputDir,
		ExtractAudio:     cfg.Audio,
		ExtractVideo:     cfg.Video,
		ExtractTimecodes: cfg.Timecodes,
	}
	switch cfg.Overwrite {
	case config.OverwriteNever:
		pc.Overwrite = neverOverwrite
	case config.OverwriteAsk:
		if f, ok := stdin.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			slog.Warn("stdin is not a terminal, existing files will be kept")
			pc.Overwrite = neverOverwrite
			break
		}
		pc.Overwrite = newPrompter(stdin, prompt).ask
	}
	return pc
}

func neverOverwrite(string) bool { return false }

func printOutcome(w io.Writer, o batch.Outcome) {
	fmt.Fprintln(w, o.Input)
	if o.Err != nil {
		fmt.Fprintln(w, color.RedString("Error: %v", o.Err))
		return
	}
	res := o.Result
	fmt.Fprintf(w, "True Frame Rate: %s\n", rateString(res.TrueFrameRate))
	fmt.Fprintf(w, "Average Frame Rate: %s\n", rateString(res.AverageFrameRate))
	for _, p := range outputPaths(res) {
		fmt.Fprintf(w, "Wrote %s\n", p)
	}
	for _, msg := range res.Warnings {
		fmt.Fprintln(w, color.YellowString("Warning: %s", msg))
	}
}

func outputPaths(res *demux.Result) []string {
	var paths []string
	paths = append(paths, res.VideoPaths...)
	if res.AudioPath != "" {
		paths = append(paths, res.AudioPath)
	}
	if res.TimecodePath != "" {
		paths = append(paths, res.TimecodePath)
	}
	return paths
}
