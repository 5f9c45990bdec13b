package mux

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/flvextract/media"
)

func createFile(t *testing.T, fs afero.Fs, name string) afero.File {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	return f
}

func readFile(t *testing.T, fs afero.Fs, name string) []byte {
	t.Helper()
	b, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return b
}

// streamSink is a write-only output with no Seek method.
type streamSink struct {
	bytes.Buffer
	closed bool
}

func (s *streamSink) Close() error {
	s.closed = true
	return nil
}

type warnings []string

func (w *warnings) add(msg string) { *w = append(*w, msg) }

// noRate is passed to Finish by writers that ignore the frame rate.
var noRate media.Fraction
