package transcoder

import (
	"github.com/heyjunin/m3u8grab/pkg/errors"
)

const (
	// DefaultFFmpegBinary is looked up on PATH when no binary is configured.
	DefaultFFmpegBinary = "ffmpeg"
	// DefaultFFprobeBinary is looked up on PATH when no binary is configured.
	DefaultFFprobeBinary = "ffprobe"
)

// Options contains settings for the remux step
type Options struct {
	// FFmpegBinary is the ffmpeg executable.
	FFmpegBinary string
	// FFprobeBinary is the ffprobe executable used by Probe.
	FFprobeBinary string
	// ExtraParams are inserted before the output path.
	ExtraParams []string
}

// withDefaults fills unset binaries.
func (o Options) withDefaults() Options {
	if o.FFmpegBinary == "" {
		o.FFmpegBinary = DefaultFFmpegBinary
	}
	if o.FFprobeBinary == "" {
		o.FFprobeBinary = DefaultFFprobeBinary
	}
	return o
}

// ValidateOptions rejects extra parameters that would clash with the fixed remux arguments.
func ValidateOptions(opts Options) error {
	for _, p := range opts.ExtraParams {
		switch p {
		case "-i", "-y", "-n":
			return errors.New(errors.ValidationError, "Extra ffmpeg parameter not allowed", p, errors.ErrInvalidFFmpegParam)
		}
	}
	return nil
}
