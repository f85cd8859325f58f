package assembler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/heyjunin/m3u8grab/pkg/playlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyRemuxer stands in for ffmpeg by copying the input unchanged.
type copyRemuxer struct {
	calls int
	err   error
}

func (c *copyRemuxer) Remux(ctx context.Context, in, out string) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func fixture(t *testing.T) (string, []playlist.Entry) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "show")
	require.NoError(t, os.MkdirAll(dir, 0755))

	entries := []playlist.Entry{
		{Index: 0, URI: "a.ts"},
		{Index: 1, URI: "b.ts"},
		{Index: 2, URI: "c.ts"},
	}
	// written in completion order C, A, B
	for _, f := range []struct{ name, body string }{{"c.ts", "CCC"}, {"a.ts", "AAA"}, {"b.ts", "BBB"}} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.name), []byte(f.body), 0644))
	}
	return dir, entries
}

func TestAssembleKeepsManifestOrder(t *testing.T) {
	dir, entries := fixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts.123.part"), []byte("stale"), 0644))
	out := filepath.Join(t.TempDir(), "show.mp4")

	rm := &copyRemuxer{}
	a := New(rm, logger.Nop())
	require.NoError(t, a.Assemble(context.Background(), dir, "show", entries, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "AAABBBCCC", string(data))
	assert.Equal(t, 1, rm.calls)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "download directory should be removed")
}

func TestAssembleMissingSegment(t *testing.T) {
	dir, entries := fixture(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "b.ts")))

	rm := &copyRemuxer{}
	err := New(rm, logger.Nop()).Assemble(context.Background(), dir, "show", entries, filepath.Join(t.TempDir(), "x.mp4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.MissingSegment))

	pos, ok := errors.PositionOf(err)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0, rm.calls, "remux must not run")

	_, err = os.Stat(TempPath(dir, "show"))
	assert.True(t, os.IsNotExist(err))
}

func TestAssembleRemuxFailureKeepsSegments(t *testing.T) {
	dir, entries := fixture(t)
	rm := &copyRemuxer{err: errors.New(errors.AssembleError, "FFmpeg command failed", "exit status 1", errors.ErrFFmpegFailed)}

	err := New(rm, logger.Nop()).Assemble(context.Background(), dir, "show", entries, filepath.Join(t.TempDir(), "x.mp4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.AssembleError))

	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, statErr, name)
	}
}

func TestAssembleLeavesForeignFiles(t *testing.T) {
	dir, entries := fixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))

	require.NoError(t, New(&copyRemuxer{}, logger.Nop()).Assemble(context.Background(), dir, "show", entries, filepath.Join(t.TempDir(), "x.mp4")))

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}
