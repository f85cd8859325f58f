// Package grabber turns one playlist URL into one remuxed artifact.
package grabber

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/heyjunin/m3u8grab/pkg/assembler"
	"github.com/heyjunin/m3u8grab/pkg/decrypt"
	"github.com/heyjunin/m3u8grab/pkg/downloader"
	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/heyjunin/m3u8grab/pkg/playlist"
	"github.com/heyjunin/m3u8grab/pkg/progress"
	"github.com/heyjunin/m3u8grab/pkg/scheduler"
	"github.com/heyjunin/m3u8grab/pkg/transcoder"
)

// prober is implemented by remuxers that can describe the file they produced.
type prober interface {
	Probe(ctx context.Context, path string) (*transcoder.MediaInfo, error)
}

// Grabber runs the whole pipeline for one playlist
type Grabber struct {
	options Options
	progRep progress.Reporter
	logger  logger.Logger
	client  *http.Client
	remuxer assembler.Remuxer

	mu    sync.Mutex
	stats *progress.Stats
}

// New creates a new Grabber with default dependencies
func New(options Options, progressReporter progress.Reporter) (*Grabber, error) {
	return NewWithDeps(options, progressReporter, logger.NewLogger(), nil, nil)
}

// NewWithDeps creates a new Grabber with custom dependencies.
// A nil client uses a default one; a nil remuxer runs ffmpeg.
func NewWithDeps(options Options, progressReporter progress.Reporter, log logger.Logger, client *http.Client, remuxer assembler.Remuxer) (*Grabber, error) {
	options = options.withDefaults()
	if err := ValidateOptions(options); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewLogger()
	}
	if remuxer == nil {
		remuxer = transcoder.NewWithDeps(transcoder.Options{
			FFmpegBinary: options.FFmpegBinary,
			ExtraParams:  options.FFmpegExtraParams,
		}, log)
	}

	return &Grabber{
		options: options,
		progRep: progressReporter,
		logger:  log,
		client:  client,
		remuxer: remuxer,
	}, nil
}

// Options returns the effective options, defaults included.
func (g *Grabber) Options() Options {
	return g.options
}

// Stats returns the counters of the latest Run.
func (g *Grabber) Stats() progress.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stats == nil {
		return progress.Snapshot{}
	}
	return g.stats.Snapshot()
}

// Run downloads every segment, assembles them and returns the artifact path.
// Segments persisted by an earlier interrupted run are reused.
func (g *Grabber) Run(ctx context.Context) (output string, err error) {
	if g.progRep != nil {
		defer func() {
			if err != nil {
				g.progRep.Fail(err.Error())
				return
			}
			g.progRep.Complete()
		}()
	}

	runID := uuid.NewString()
	workDir := g.options.WorkDir()
	outputPath := g.options.OutputPath()

	g.logger.Info("Starting download", "grabber", map[string]interface{}{
		"run_id":   runID,
		"name":     g.options.Name,
		"url":      g.options.URL,
		"index":    g.options.Index,
		"work_dir": workDir,
		"output":   outputPath,
	})

	for _, dir := range []string{workDir, g.options.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", g.fail(runID, errors.Wrap(err, errors.SystemError, "Failed to create directory", errors.ErrDirectoryCreationFailed))
		}
	}

	lock := flock.New(g.options.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return "", g.fail(runID, errors.Wrap(err, errors.SystemError, "Failed to lock download directory", errors.ErrDirectoryLocked))
	}
	if !locked {
		return "", g.fail(runID, errors.New(errors.SystemError, "Download directory is in use by another run", workDir, errors.ErrDirectoryLocked))
	}
	defer lock.Unlock()

	stats := progress.NewStats()
	g.mu.Lock()
	g.stats = stats
	g.mu.Unlock()

	base, err := url.Parse(g.options.URL)
	if err != nil {
		return "", g.fail(runID, errors.Wrap(err, errors.ValidationError, "Invalid playlist URL", errors.ErrInvalidURL))
	}
	dl := downloader.NewWithDeps(downloader.Options{
		BaseURL:   base,
		Dir:       workDir,
		Retries:   g.options.Retries,
		Backoff:   g.options.Backoff,
		Timeout:   g.options.Timeout,
		UserAgent: g.options.UserAgent,
		Stats:     stats,
	}, g.client, g.logger)

	pl, dl, err := g.loadPlaylist(ctx, dl)
	if err != nil {
		return "", g.fail(runID, err)
	}

	key, err := g.loadKey(ctx, dl, pl.Key)
	if err != nil {
		return "", g.fail(runID, err)
	}

	g.logger.Info("Playlist loaded", "grabber", map[string]interface{}{
		"run_id":    runID,
		"segments":  len(pl.Entries),
		"duration":  pl.TotalDuration(),
		"encrypted": key != nil,
	})

	stats.Start(len(pl.Entries))
	if g.progRep != nil {
		g.progRep.Start(len(pl.Entries))
	}

	sched := scheduler.New(dl, scheduler.Options{
		Concurrency: g.options.Concurrency,
		Stats:       stats,
		Reporter:    g.progRep,
		Logger:      g.logger,
	})
	if err := sched.Run(ctx, pl.Entries, key); err != nil {
		return "", g.fail(runID, err)
	}

	if g.progRep != nil {
		g.progRep.Update(stats.Snapshot(), "assembling")
	}
	if err := assembler.New(g.remuxer, g.logger).Assemble(ctx, workDir, g.options.Name, pl.Entries, outputPath); err != nil {
		return "", g.fail(runID, err)
	}

	snap := stats.Snapshot()
	done := map[string]interface{}{
		"run_id":    runID,
		"output":    outputPath,
		"completed": snap.Completed,
		"skipped":   snap.Skipped,
		"bytes":     snap.Bytes,
		"elapsed":   snap.Elapsed.String(),
		"speed_bps": snap.Speed(),
	}
	if p, ok := g.remuxer.(prober); ok {
		if info, err := p.Probe(ctx, outputPath); err == nil {
			done["duration"] = info.Duration
			done["width"] = info.Width
			done["height"] = info.Height
		} else {
			g.logger.Debug("Output probe skipped", "grabber", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	g.logger.Info("Download complete", "grabber", done)

	return outputPath, nil
}

// loadPlaylist fetches the playlist and follows a master playlist to its best variant.
// The returned downloader resolves against the media playlist actually used.
func (g *Grabber) loadPlaylist(ctx context.Context, dl *downloader.Downloader) (*playlist.Playlist, *downloader.Downloader, error) {
	pl, err := fetchPlaylist(ctx, dl, g.options.URL)
	if err != nil {
		return nil, nil, err
	}
	if !pl.IsMaster() {
		return pl, dl, nil
	}

	variant, err := pl.BestVariant()
	if err != nil {
		return nil, nil, err
	}
	base, _ := url.Parse(g.options.URL)
	resolved, err := playlist.Resolve(base, variant.URI)
	if err != nil {
		return nil, nil, err
	}
	variantURL, err := url.Parse(resolved)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ParseError, "Invalid variant URI", errors.ErrNoVariant)
	}

	g.logger.Info("Following master playlist variant", "grabber", map[string]interface{}{
		"variant":   resolved,
		"bandwidth": variant.Bandwidth,
		"variants":  len(pl.Variants),
	})

	dl = dl.WithBaseURL(variantURL)
	pl, err = fetchPlaylist(ctx, dl, resolved)
	if err != nil {
		return nil, nil, err
	}
	if pl.IsMaster() {
		return nil, nil, errors.New(errors.ParseError, "Variant is itself a master playlist", resolved, errors.ErrNoVariant)
	}
	return pl, dl, nil
}

func fetchPlaylist(ctx context.Context, dl *downloader.Downloader, rawURL string) (*playlist.Playlist, error) {
	body, err := dl.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return playlist.Decode(bytes.NewReader(body))
}

// loadKey fetches the AES-128 key once. A nil ref means the playlist is not encrypted.
func (g *Grabber) loadKey(ctx context.Context, dl *downloader.Downloader, ref *playlist.Key) ([]byte, error) {
	if ref == nil {
		return nil, nil
	}
	key, err := dl.Get(ctx, ref.URI)
	if err != nil {
		kind := errors.TypeOf(err)
		if kind == "" {
			kind = errors.HTTPError
		}
		return nil, errors.Wrap(err, kind, "Failed to fetch encryption key", errors.ErrKeyFetchFailed)
	}
	// checked here so a bad key fails once instead of once per segment
	if len(key) != decrypt.KeySize {
		return nil, errors.New(errors.InvalidKeyLength, "Encryption key must be 16 bytes",
			fmt.Sprintf("got %d bytes from %s", len(key), ref.URI), errors.ErrKeyLength)
	}
	return key, nil
}

// fail logs err with the run ID and tags it with the download name.
func (g *Grabber) fail(runID string, err error) error {
	g.logger.Error("Download failed", "grabber", map[string]interface{}{
		"run_id": runID,
		"name":   g.options.Name,
		"error":  err.Error(),
	})
	if se, ok := err.(*errors.StructuredError); ok && se.Task == "" {
		se.WithTask(g.options.Name)
	}
	return err
}
