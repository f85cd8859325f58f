// Package transcoder wraps the external ffmpeg tool that turns the concatenated
// transport stream into the final container.
package transcoder

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
)

// stderrTail is how many trailing ffmpeg output lines are kept for error details.
const stderrTail = 10

var timeRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+\.\d+)`)

// Transcoder runs ffmpeg stream copies
type Transcoder struct {
	options Options
	logger  logger.Logger
}

// New creates a new Transcoder with the global logger
func New(options Options) *Transcoder {
	return NewWithDeps(options, logger.NewLogger())
}

// NewWithDeps creates a new Transcoder with a custom logger
func NewWithDeps(options Options, log logger.Logger) *Transcoder {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Transcoder{
		options: options.withDefaults(),
		logger:  log,
	}
}

// Remux copies the streams of inputPath into outputPath without re-encoding.
// ADTS audio is rewritten for the MP4 family of containers. Any existing output
// file is overwritten.
func (t *Transcoder) Remux(ctx context.Context, inputPath, outputPath string) error {
	if err := t.checkFFmpeg(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrDirectoryCreationFailed)
	}

	args := []string{
		"-i", inputPath,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
	}
	args = append(args, t.options.ExtraParams...)
	args = append(args, "-y", outputPath)

	t.logger.Debug("Executing FFmpeg command", "ffmpeg", map[string]interface{}{
		"command": t.options.FFmpegBinary + " " + strings.Join(args, " "),
	})

	cmd := exec.CommandContext(ctx, t.options.FFmpegBinary, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, errors.AssembleError, "Failed to create stderr pipe", errors.ErrFFmpegStart)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.AssembleError, "Failed to start FFmpeg", errors.ErrFFmpegStart)
	}

	var (
		mu   sync.Mutex
		tail []string
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			t.logger.Debug(line, "ffmpeg", nil)

			if matches := timeRegex.FindStringSubmatch(line); len(matches) > 3 {
				t.logger.Debug("Remux progress", "ffmpeg", map[string]interface{}{
					"seconds": parseTimestamp(matches[1], matches[2], matches[3]),
				})
			}

			mu.Lock()
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
			mu.Unlock()
		}
	}()

	// stderr must be drained before Wait closes the pipe
	<-done
	if err := cmd.Wait(); err != nil {
		mu.Lock()
		details := strings.Join(tail, "\n")
		mu.Unlock()
		if details == "" {
			details = err.Error()
		}
		return errors.New(errors.AssembleError, "FFmpeg command failed", details, errors.ErrFFmpegFailed)
	}

	t.sniff(outputPath)
	return nil
}

// sniff logs the detected type of the produced file. An unrecognized file is only a warning.
func (t *Transcoder) sniff(path string) {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		t.logger.Warn("Failed to inspect output file", "ffmpeg", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	if kind == filetype.Unknown {
		t.logger.Warn("Output file type not recognized", "ffmpeg", map[string]interface{}{
			"path": path,
		})
		return
	}
	t.logger.Debug("Output file type detected", "ffmpeg", map[string]interface{}{
		"path":      path,
		"mime":      kind.MIME.Value,
		"extension": kind.Extension,
	})
}

// checkFFmpeg checks if FFmpeg is available
func (t *Transcoder) checkFFmpeg() error {
	cmd := exec.Command(t.options.FFmpegBinary, "-version")
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, errors.AssembleError, "FFmpeg is not available", errors.ErrFFmpegMissing)
	}
	return nil
}

func parseTimestamp(h, m, s string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.ParseFloat(s, 64)
	return float64(hours*3600+minutes*60) + seconds
}
