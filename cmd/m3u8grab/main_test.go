package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootFlagDefaults(t *testing.T) {
	cmd := newRootCmd()

	expect := map[string]string{
		"concurrency":     "8",
		"retry":           "4",
		"download-dir":    "downloads",
		"output-dir":      "output",
		"index":           "-1",
		"timeout":         (30 * time.Second).String(),
		"ffmpeg":          "ffmpeg",
		"ext":             "mp4",
		"log-level":       "info",
		"progress-format": "text",
	}
	for name, want := range expect {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, want, f.DefValue, name)
	}

	assert.NotNil(t, cmd.Flags().ShorthandLookup("u"))
	assert.NotNil(t, cmd.Flags().ShorthandLookup("n"))
}

func TestRootRequiresURLAndName(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--name", "show"})
	assert.Error(t, cmd.Execute())
}

func TestRootRejectsInvalidURL(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--url", "not-a-url",
		"--name", "show",
		"--download-dir", filepath.Join(dir, "dl"),
		"--output-dir", filepath.Join(dir, "out"),
		"--quiet",
	})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)

	var se *errors.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.ErrInvalidURL, se.Code)
}

func TestBatchAllTasksFail(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(list, []byte(`[
  {"name": "a", "url": "ftp://example.com/a.m3u8"},
  {"name": "b", "url": ""}
]`), 0644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"batch", "--tasks", list,
		"--download-dir", filepath.Join(dir, "dl"),
		"--output-dir", filepath.Join(dir, "out"),
		"--quiet",
	})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.TaskError))
}

func TestBatchSkipsFinishedTasks(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "a.mp4"), []byte("done"), 0644))

	list := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(list, []byte(`[{"name": "a", "url": "https://example.invalid/a.m3u8"}]`), 0644))

	cfg := &config{
		tasksFile:   list,
		downloadDir: filepath.Join(dir, "dl"),
		outputDir:   out,
		extension:   "mp4",
		index:       -1,
		quiet:       true,
	}
	summary, err := runBatch(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.Skipped)
}

func TestBatchIndexOutOfRange(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(list, []byte(`[{"name": "a", "url": "https://example.com/a.m3u8"}]`), 0644))

	_, err := runBatch(context.Background(), &config{tasksFile: list, index: 3, quiet: true})
	require.Error(t, err)

	var se *errors.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.ErrTaskIndexOutOfRange, se.Code)
}

func TestBatchMissingTaskFile(t *testing.T) {
	_, err := runBatch(context.Background(), &config{tasksFile: filepath.Join(t.TempDir(), "none.json"), index: -1})
	assert.True(t, errors.Is(err, errors.SystemError))
}
