// Package assembler joins downloaded segments in playlist order and hands the
// result to the remux step.
package assembler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/heyjunin/m3u8grab/pkg/playlist"
)

// Remuxer converts the concatenated stream into the output container.
// *transcoder.Transcoder implements it.
type Remuxer interface {
	Remux(ctx context.Context, inputPath, outputPath string) error
}

// Assembler produces the final artifact for one download directory.
type Assembler struct {
	remuxer Remuxer
	logger  logger.Logger
}

// New creates an Assembler.
func New(remuxer Remuxer, log logger.Logger) *Assembler {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Assembler{remuxer: remuxer, logger: log}
}

// TempPath returns the intermediate concatenation file for a download named name.
func TempPath(dir, name string) string {
	return filepath.Join(dir, name+"_temp.ts")
}

// Assemble concatenates the segment files of entries in manifest order, remuxes the
// result to outputPath and removes the working files. The order in which segments
// finished downloading has no influence on the output.
func (a *Assembler) Assemble(ctx context.Context, dir, name string, entries []playlist.Entry, outputPath string) error {
	paths := make([]string, len(entries))
	for i, e := range entries {
		p := filepath.Join(dir, e.LocalName())
		if _, err := os.Stat(p); err != nil {
			return errors.Wrap(err, errors.MissingSegment, "Segment file missing", errors.ErrSegmentMissing).
				WithPosition(e.Index)
		}
		paths[i] = p
	}

	tempPath := TempPath(dir, name)
	a.logger.Info("Concatenating segments", "assembler", map[string]interface{}{
		"segments": len(paths),
		"temp":     tempPath,
	})
	if err := concat(tempPath, paths); err != nil {
		return err
	}

	a.logger.Info("Remuxing", "assembler", map[string]interface{}{
		"input":  tempPath,
		"output": outputPath,
	})
	if err := a.remuxer.Remux(ctx, tempPath, outputPath); err != nil {
		return err
	}

	a.cleanup(dir, tempPath, paths)
	return nil
}

func concat(target string, paths []string) error {
	out, err := os.Create(target)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to create concatenation file", errors.ErrConcatFailed)
	}

	for _, p := range paths {
		if err := appendFile(out, p); err != nil {
			out.Close()
			return err
		}
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to write concatenation file", errors.ErrConcatFailed)
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to open segment", errors.ErrSegmentReadFailed)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to append segment", errors.ErrConcatFailed)
	}
	return nil
}

// cleanup removes segment files, the concatenation file, stray partial writes and
// finally the directory itself. Failures are logged and never returned.
func (a *Assembler) cleanup(dir, tempPath string, paths []string) {
	remove := func(p string) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("Failed to remove working file", "assembler", map[string]interface{}{
				"path":  p,
				"error": err.Error(),
			})
		}
	}

	for _, p := range paths {
		remove(p)
	}
	remove(tempPath)

	if leftovers, err := os.ReadDir(dir); err == nil {
		for _, e := range leftovers {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".part") {
				remove(filepath.Join(dir, e.Name()))
			}
		}
	}

	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		a.logger.Warn("Download directory not removed", "assembler", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}
}
