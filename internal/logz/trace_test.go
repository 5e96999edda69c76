package logz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")

	w, err := NewTraceWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteLine("exit code: 0"))
	require.NoError(t, w.WriteLine("PUSH 1"))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "exit code: 0\nPUSH 1\n", string(data))
}

func TestTraceWriterKeepsPercentSigns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")

	w, err := NewTraceWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteLine("gas used 95% of limit"))
	require.NoError(t, w.WriteLine("stack: [%s placeholder]"))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gas used 95% of limit\nstack: [%s placeholder]\n", string(data))
}

func TestTraceWriterTruncatesOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	w, err := NewTraceWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteLine("fresh"))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(data))
}

func TestTraceWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")

	w, err := NewTraceWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Error(t, w.WriteLine("late"))
	assert.NoError(t, w.Close(), "closing twice is harmless")
}

func TestTraceWriterEmptyPath(t *testing.T) {
	_, err := NewTraceWriter("")
	assert.Error(t, err)
}
