// Package batch extracts many FLV files concurrently. Each input runs its
// own pipeline; the inputs share nothing except the registry of claimed
// output names.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/flvextract/internal/demux"
	"github.com/zsiec/flvextract/internal/pipeline"
)

// ErrDuplicateOutput is reported for an input whose outputs would collide
// with those of an earlier input in the same batch.
var ErrDuplicateOutput = errors.New("batch: another input writes the same output files")

// Outcome is the result of one input. Exactly one of Result and Err is set.
type Outcome struct {
	Input   string
	Result  *demux.Result
	Err     error
	Elapsed time.Duration
}

// Runner extracts inputs with bounded parallelism.
type Runner struct {
	log      *slog.Logger
	fs       afero.Fs
	cfg      pipeline.Config
	jobs     int
	registry *Registry
}

// NewRunner creates a Runner that runs at most jobs extractions at once.
// A jobs value below 1 means one per CPU. If log is nil, slog.Default() is
// used.
func NewRunner(fs afero.Fs, cfg pipeline.Config, jobs int, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}
	return &Runner{
		log:      log.With("component", "batch"),
		fs:       fs,
		cfg:      cfg,
		jobs:     jobs,
		registry: NewRegistry(log),
	}
}

// Active returns the extractions currently claimed but not finished.
func (r *Runner) Active() []*Job {
	return r.registry.List()
}

// Run extracts every input and returns one Outcome per input, in input
// order. A failed input does not stop the others; cancelling ctx aborts
// the extractions in flight and fails the ones not yet started.
func (r *Runner) Run(ctx context.Context, inputs []string) []Outcome {
	out := make([]Outcome, len(inputs))
	pipes := make([]*pipeline.Pipeline, len(inputs))

	// Claim output bases up front so the first input always wins a
	// collision, whatever the scheduling.
	for i, in := range inputs {
		out[i].Input = in
		p := pipeline.New(r.fs, in, r.cfg, r.log)
		if _, ok := r.registry.Create(in, p.OutputBase()); !ok {
			out[i].Err = fmt.Errorf("%w: %s", ErrDuplicateOutput, p.OutputBase())
			continue
		}
		pipes[i] = p
	}

	var g errgroup.Group
	g.SetLimit(r.jobs)
	for i, p := range pipes {
		i, p := i, p
		if p == nil {
			continue
		}
		g.Go(func() error {
			defer r.registry.Remove(p.OutputBase())
			out[i] = r.runOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	r.log.Debug("batch finished", "inputs", len(inputs), "failed", countFailed(out))
	return out
}

func (r *Runner) runOne(ctx context.Context, p *pipeline.Pipeline) Outcome {
	o := Outcome{Input: p.Input()}
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}
	start := time.Now()
	o.Result, o.Err = p.Run(ctx)
	o.Elapsed = time.Since(start)
	if o.Err != nil {
		r.log.Error("extraction failed", "input", p.Input(), "error", o.Err)
	}
	return o
}

func countFailed(out []Outcome) int {
	n := 0
	for _, o := range out {
		if o.Err != nil {
			n++
		}
	}
	return n
}
