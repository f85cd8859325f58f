package grabber

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/heyjunin/m3u8grab/pkg/downloader"
	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/scheduler"
	"github.com/heyjunin/m3u8grab/pkg/transcoder"
)

const (
	// DefaultRetries is the retry count used by DefaultOptions.
	DefaultRetries = 4
	// DefaultDownloadDir holds one working directory per download.
	DefaultDownloadDir = "downloads"
	// DefaultOutputDir receives finished artifacts.
	DefaultOutputDir = "output"
	// DefaultExtension is the container of the remuxed artifact.
	DefaultExtension = "mp4"
)

// Options contains settings for one playlist download
type Options struct {
	// URL is the playlist location.
	URL string
	// Name is the base name of the artifact and of the working directory.
	Name string

	// DownloadDir is the base directory; segments go to DownloadDir/Name.
	DownloadDir string
	// OutputDir receives Name.Extension.
	OutputDir string
	// Extension of the output artifact, without the dot.
	Extension string

	// Concurrency limits segment fetches in flight.
	Concurrency int
	// Retries per segment. Zero means one attempt.
	Retries int
	// Index is the position of this download in a task list, used in logs.
	Index int

	// Network options
	Timeout   time.Duration
	Backoff   time.Duration
	UserAgent string

	// Remux options
	FFmpegBinary      string
	FFmpegExtraParams []string
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	return Options{
		DownloadDir:  DefaultDownloadDir,
		OutputDir:    DefaultOutputDir,
		Extension:    DefaultExtension,
		Concurrency:  scheduler.DefaultConcurrency,
		Retries:      DefaultRetries,
		Timeout:      downloader.DefaultTimeout,
		Backoff:      downloader.DefaultBackoff,
		FFmpegBinary: transcoder.DefaultFFmpegBinary,
	}
}

// withDefaults fills zero values. Retries is left alone since zero is meaningful.
func (o Options) withDefaults() Options {
	if o.DownloadDir == "" {
		o.DownloadDir = DefaultDownloadDir
	}
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	o.Extension = strings.TrimPrefix(o.Extension, ".")
	if o.Concurrency == 0 {
		o.Concurrency = scheduler.DefaultConcurrency
	}
	if o.Timeout == 0 {
		o.Timeout = downloader.DefaultTimeout
	}
	if o.Backoff == 0 {
		o.Backoff = downloader.DefaultBackoff
	}
	if o.FFmpegBinary == "" {
		o.FFmpegBinary = transcoder.DefaultFFmpegBinary
	}
	return o
}

// ValidateOptions checks the options before any network or filesystem work.
func ValidateOptions(opts Options) error {
	if opts.URL == "" {
		return errors.New(errors.ValidationError, "Playlist URL is required", "", errors.ErrMissingURL)
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return errors.Wrap(err, errors.ValidationError, "Invalid playlist URL", errors.ErrInvalidURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.ValidationError, "Invalid playlist URL", opts.URL, errors.ErrInvalidURL)
	}

	if opts.Name == "" {
		return errors.New(errors.ValidationError, "Output name is required", "", errors.ErrMissingName)
	}
	if opts.Name == "." || opts.Name == ".." || strings.ContainsAny(opts.Name, `/\`) {
		return errors.New(errors.ValidationError, "Invalid output name", opts.Name, errors.ErrInvalidName)
	}

	if opts.Concurrency < 0 {
		return errors.New(errors.ValidationError, "Invalid concurrency", "", errors.ErrInvalidConcurrency)
	}
	if opts.Retries < 0 {
		return errors.New(errors.ValidationError, "Invalid retry count", "", errors.ErrInvalidRetries)
	}

	return transcoder.ValidateOptions(transcoder.Options{
		FFmpegBinary: opts.FFmpegBinary,
		ExtraParams:  opts.FFmpegExtraParams,
	})
}

// WorkDir is where the segments of this download are kept.
func (o Options) WorkDir() string {
	return filepath.Join(o.DownloadDir, o.Name)
}

// LockPath is the lock file guarding WorkDir.
func (o Options) LockPath() string {
	return filepath.Join(o.DownloadDir, o.Name+".lock")
}

// OutputPath is the final artifact.
func (o Options) OutputPath() string {
	return filepath.Join(o.OutputDir, o.Name+"."+o.Extension)
}
