package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/m3u8grab/pkg/decrypt"
	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/heyjunin/m3u8grab/pkg/playlist"
	"github.com/heyjunin/m3u8grab/pkg/progress"
	"github.com/heyjunin/m3u8grab/pkg/segment"
	"github.com/vfaronov/httpheader"
)

const (
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second
	// DefaultBackoff is the unit of the linear retry delay.
	DefaultBackoff = time.Second
)

// Options represents configuration options for the Downloader.
type Options struct {
	// BaseURL is the manifest location relative segment URIs are resolved against.
	BaseURL *url.URL
	// Dir is where segment files are persisted.
	Dir string
	// Retries is how many times a failed request is retried. Zero means a single attempt.
	Retries int
	// Backoff is the delay unit between retries; retry n waits n*Backoff.
	// Defaults to one second.
	Backoff time.Duration
	// Timeout sets the maximum time allowed for one HTTP request.
	// Defaults to 30 seconds.
	Timeout time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
	// Stats receives byte and segment counts. Optional.
	Stats *progress.Stats
}

// Downloader retrieves playlists, keys and segments over HTTP.
// A single Downloader is shared by every segment task of a download; it holds no
// per-segment state.
type Downloader struct {
	client  *http.Client
	options Options
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Downloader with its own HTTP client and the global logger.
func New(options Options) *Downloader {
	return NewWithDeps(options, nil, logger.NewLogger())
}

// NewWithDeps creates a Downloader with a custom HTTP client and logger.
// A nil client gets a default one using options.Timeout.
func NewWithDeps(options Options, client *http.Client, log logger.Logger) *Downloader {
	if options.Timeout == 0 {
		options.Timeout = DefaultTimeout
	}
	if options.Backoff == 0 {
		options.Backoff = DefaultBackoff
	}
	if options.Retries < 0 {
		options.Retries = 0
	}
	if client == nil {
		client = &http.Client{Timeout: options.Timeout}
	}
	if log == nil {
		log = logger.NewLogger()
	}

	return &Downloader{
		client:  client,
		options: options,
		logger:  log,
		sleep:   sleepContext,
	}
}

// WithBaseURL returns a copy of d resolving relative URIs against base.
// The copy shares the HTTP client, logger and stats.
func (d *Downloader) WithBaseURL(base *url.URL) *Downloader {
	c := *d
	c.options.BaseURL = base
	return &c
}

// Path returns where the segment for entry is persisted.
func (d *Downloader) Path(entry playlist.Entry) string {
	return filepath.Join(d.options.Dir, entry.LocalName())
}

// Fetch makes sure the segment for entry is persisted and valid.
// A valid file left by an earlier run is kept without any request. Otherwise the
// segment is downloaded, decrypted with key when key is non-nil, and written.
// Failed attempts are retried with a linear backoff; once retries are exhausted a
// FetchError carrying the last cause is returned.
func (d *Downloader) Fetch(ctx context.Context, entry playlist.Entry, key []byte) error {
	path := d.Path(entry)

	if _, err := os.Stat(path); err == nil {
		if segment.IsValid(path) {
			d.logger.Debug("Segment already downloaded, skipping", "downloader", map[string]interface{}{
				"position": entry.Index,
				"path":     path,
			})
			if d.options.Stats != nil {
				d.options.Stats.Skip()
			}
			return nil
		}
		d.logger.Warn("Existing segment failed validation, downloading again", "downloader", map[string]interface{}{
			"position": entry.Index,
			"path":     path,
		})
		if err := os.Remove(path); err != nil {
			d.logger.Error("Failed to remove corrupt segment", "downloader", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	retries, err := d.withRetry(ctx, entry.Index, func() error {
		return d.fetchOnce(ctx, entry, key, path)
	})
	if err != nil {
		return errors.Wrap(err, errors.FetchError, "Segment retries exhausted", errors.ErrRetriesExhausted).
			WithPosition(entry.Index).
			WithAttempts(retries)
	}

	if d.options.Stats != nil {
		snap := d.options.Stats.Complete()
		d.logger.Debug("Segment persisted", "downloader", map[string]interface{}{
			"position":  entry.Index,
			"completed": snap.Completed,
			"total":     snap.Total,
			"speed_bps": snap.Speed(),
		})
	}
	return nil
}

// Get downloads rawURL, resolved against the base URL, with the same retry policy as segments.
// It is used for playlists and keys.
func (d *Downloader) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	_, err := d.withRetry(ctx, -1, func() error {
		target, err := playlist.Resolve(d.options.BaseURL, rawURL)
		if err != nil {
			return err
		}
		body, err = d.get(ctx, target, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// fetchOnce performs a single attempt: resolve, request, decrypt, persist.
func (d *Downloader) fetchOnce(ctx context.Context, entry playlist.Entry, key []byte, path string) error {
	target, err := playlist.Resolve(d.options.BaseURL, entry.URI)
	if err != nil {
		return err
	}

	data, err := d.get(ctx, target, true)
	if err != nil {
		return err
	}

	if key != nil {
		data, err = decrypt.Segment(data, key, entry.Index)
		if err != nil {
			return err
		}
	}

	return persist(path, data)
}

// get issues one GET request. When count is set, received bytes are added to Stats as they arrive.
func (d *Downloader) get(ctx context.Context, target string, count bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.HTTPError, "Failed to create HTTP request", errors.ErrRequestCreationFailed)
	}
	if d.options.UserAgent != "" {
		req.Header.Set("User-Agent", d.options.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transportError(err, "Request failed", errors.ErrRequestFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		details := fmt.Sprintf("GET %s: %s", target, resp.Status)
		if at := httpheader.RetryAfter(resp.Header); !at.IsZero() {
			details += fmt.Sprintf(" (retry after %s)", at.Format(time.RFC3339))
		}
		return nil, errors.New(errors.HTTPError, "HTTP request failed", details, errors.ErrBadStatus)
	}

	var reader io.Reader = resp.Body
	if count && d.options.Stats != nil {
		reader = &progressReader{reader: resp.Body, stats: d.options.Stats}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, transportError(err, "Failed to read response body", errors.ErrBodyReadFailed)
	}
	return data, nil
}

// withRetry runs fn until it succeeds, the retries are spent or ctx is done.
// It returns how many retries were performed and the last error.
func (d *Downloader) withRetry(ctx context.Context, position int, fn func() error) (int, error) {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || attempt >= d.options.Retries {
			return attempt, err
		}

		data := map[string]interface{}{
			"retry":       attempt + 1,
			"max_retries": d.options.Retries,
			"error":       err.Error(),
		}
		message := "Retrying request"
		if position >= 0 {
			data["position"] = position
			message = "Retrying segment"
		}
		d.logger.Warn(message, "downloader", data)

		if serr := d.sleep(ctx, d.options.Backoff*time.Duration(attempt+1)); serr != nil {
			return attempt, err
		}
	}
}

// persist writes data next to path and renames it into place, so a reader never
// sees a partially written segment under the final name.
func persist(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to create segment file", errors.ErrSegmentWriteFailed)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.SystemError, "Failed to write segment file", errors.ErrSegmentWriteFailed)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.SystemError, "Failed to write segment file", errors.ErrSegmentWriteFailed)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.SystemError, "Failed to move segment file into place", errors.ErrSegmentWriteFailed)
	}
	return nil
}

func transportError(err error, message string, code int) *errors.StructuredError {
	var ne net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &ne) && ne.Timeout()) {
		return errors.Wrap(err, errors.Timeout, "Request timed out", errors.ErrRequestTimeout)
	}
	return errors.Wrap(err, errors.HTTPError, message, code)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// progressReader adds bytes to the shared stats while a response body is read.
type progressReader struct {
	reader io.Reader
	stats  *progress.Stats
}

// Read implements the io.Reader interface for progressReader.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.stats.AddBytes(int64(n))
	}
	return n, err
}
