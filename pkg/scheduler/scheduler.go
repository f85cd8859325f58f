// Package scheduler runs one fetch task per playlist entry with a bounded number
// of tasks in flight.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/heyjunin/m3u8grab/pkg/playlist"
	"github.com/heyjunin/m3u8grab/pkg/progress"
)

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 8

// Fetcher persists a single segment. *downloader.Downloader implements it.
type Fetcher interface {
	Fetch(ctx context.Context, entry playlist.Entry, key []byte) error
}

// Options configures a Scheduler.
type Options struct {
	// Concurrency is the maximum number of fetches in flight.
	Concurrency int
	// Stats is read after every task to publish progress. Optional.
	Stats *progress.Stats
	// Reporter receives a snapshot after every task. Optional.
	Reporter progress.Reporter
	// Logger defaults to the global logger.
	Logger logger.Logger
}

// Scheduler dispatches fetch tasks.
type Scheduler struct {
	fetcher Fetcher
	options Options
}

// New creates a Scheduler around fetcher.
func New(fetcher Fetcher, options Options) *Scheduler {
	if options.Concurrency <= 0 {
		options.Concurrency = DefaultConcurrency
	}
	if options.Logger == nil {
		options.Logger = logger.NewLogger()
	}
	return &Scheduler{fetcher: fetcher, options: options}
}

// Run fetches every entry and waits for all of them, even after a failure.
// The returned DownloadError reports how many segments failed and wraps the
// failure with the lowest position.
func (s *Scheduler) Run(ctx context.Context, entries []playlist.Entry, key []byte) error {
	sem := make(chan struct{}, s.options.Concurrency)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed = map[int]error{}
	)

	s.options.Logger.Info("Dispatching segments", "scheduler", map[string]interface{}{
		"segments":    len(entries),
		"concurrency": s.options.Concurrency,
	})

	notStarted := func(entry playlist.Entry) {
		mu.Lock()
		failed[entry.Index] = errors.Wrap(ctx.Err(), errors.FetchError, "Segment not started", errors.ErrSegmentFailed).
			WithPosition(entry.Index)
		mu.Unlock()
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			notStarted(entry)
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			notStarted(entry)
			continue
		}

		wg.Add(1)
		go func(entry playlist.Entry) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.fetcher.Fetch(ctx, entry, key)
			if err != nil {
				s.options.Logger.Error("Segment failed", "scheduler", map[string]interface{}{
					"position": entry.Index,
					"uri":      entry.URI,
					"error":    err.Error(),
				})
				mu.Lock()
				failed[entry.Index] = err
				mu.Unlock()
			}
			s.report()
		}(entry)
	}
	wg.Wait()

	if len(failed) == 0 {
		return nil
	}

	positions := make([]int, 0, len(failed))
	for p := range failed {
		positions = append(positions, p)
	}
	sort.Ints(positions)
	first := positions[0]

	return errors.Wrap(failed[first], errors.DownloadError,
		fmt.Sprintf("%d of %d segments failed", len(failed), len(entries)), errors.ErrSegmentFailed).
		WithPosition(first)
}

func (s *Scheduler) report() {
	if s.options.Reporter == nil || s.options.Stats == nil {
		return
	}
	s.options.Reporter.Update(s.options.Stats.Snapshot(), "downloading")
}
