package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

// ProgressEvent is one progress update, published after each segment reaches a terminal state.
type ProgressEvent struct {
	// Status is "initialized", "started", "downloading", "completed" or "failed".
	Status string `json:"status"`
	// Percentage of segments done, from 0.0 to 100.0.
	Percentage float64 `json:"percentage"`
	// Completed counts segments fetched during this run.
	Completed int `json:"completed"`
	// Skipped counts segments reused from a previous run.
	Skipped int `json:"skipped"`
	// Total is the number of segments in the playlist.
	Total int `json:"total"`
	// Bytes is the number of bytes received so far.
	Bytes int64 `json:"bytes"`
	// Speed is the average throughput in bytes per second.
	Speed float64 `json:"speed_bps"`
	// Stage names the current phase (e.g. "downloading", "assembling").
	Stage string `json:"stage"`
	// Timestamp marks when the event occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
}

// Reporter receives progress from the scheduler and assembler.
type Reporter interface {
	// Start initializes reporting for total segments.
	Start(total int)
	// Update publishes the counters after a segment finished.
	Update(snap Snapshot, stage string)
	// Complete marks the download as finished.
	Complete()
	// Fail marks the download as aborted. Like Complete it closes Updates.
	Fail(reason string)
	// Updates returns a channel of events. It is closed by Complete.
	Updates() <-chan ProgressEvent
}

// reporterOptions holds configuration for the DefaultReporter.
type reporterOptions struct {
	throttle           time.Duration
	progressFilePath   string
	progressFileFormat string // "text" or "json"
	description        string
	writer             io.Writer
}

// ReporterOption is a function type used to configure a DefaultReporter.
type ReporterOption func(*reporterOptions)

// WithThrottle sets the minimum interval between events sent to the Updates channel.
// Defaults to 0 (no throttling).
func WithThrottle(duration time.Duration) ReporterOption {
	return func(opts *reporterOptions) {
		opts.throttle = duration
	}
}

// WithProgressFile sets a file that is overwritten with the current progress on every update.
// The format is controlled by WithProgressFileFormat.
func WithProgressFile(path string) ReporterOption {
	return func(opts *reporterOptions) {
		opts.progressFilePath = path
	}
}

// WithProgressFileFormat sets the progress file format: "text" (percentage only) or "json".
func WithProgressFileFormat(format string) ReporterOption {
	return func(opts *reporterOptions) {
		if format == "json" || format == "text" {
			opts.progressFileFormat = format
			return
		}
		logger.Warn("Invalid progress file format specified, defaulting to 'text'", "progress", map[string]interface{}{
			"format": format,
		})
		opts.progressFileFormat = "text"
	}
}

// WithDescription sets the label shown in front of the console bar.
func WithDescription(desc string) ReporterOption {
	return func(opts *reporterOptions) {
		opts.description = desc
	}
}

// WithWriter sets where the console bar is drawn. Defaults to stderr.
func WithWriter(w io.Writer) ReporterOption {
	return func(opts *reporterOptions) {
		opts.writer = w
	}
}

// DefaultReporter draws a github.com/schollz/progressbar/v3 bar counting segments,
// emits ProgressEvent values on a channel and optionally mirrors them to a file.
type DefaultReporter struct {
	Bar        *progressbar.ProgressBar
	Event      ProgressEvent
	opts       reporterOptions
	updatesCh  chan ProgressEvent
	lastUpdate time.Time
	closed     bool
	mu         sync.Mutex
}

// NewReporter creates a new DefaultReporter.
func NewReporter(opts ...ReporterOption) *DefaultReporter {
	options := reporterOptions{
		description:        "Downloading",
		progressFileFormat: "text",
		writer:             os.Stderr,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &DefaultReporter{
		opts: options,
		Event: ProgressEvent{
			Status:    "initialized",
			Timestamp: time.Now().Format(time.RFC3339),
		},
		lastUpdate: time.Now(),
		updatesCh:  make(chan ProgressEvent, 16),
	}
}

// Start resets the event and creates the console bar for total segments.
func (r *DefaultReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Event = ProgressEvent{
		Status:    "started",
		Total:     total,
		Stage:     "downloading",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	r.Bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(r.opts.description),
		progressbar.OptionSetWriter(r.opts.writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	r.sendUpdateInternal(true)
	r.writeProgressFileInternal()
}

// Update moves the bar to the snapshot's done count and shows the throughput.
func (r *DefaultReporter) Update(snap Snapshot, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Bar == nil {
		return
	}

	r.Event.Status = "downloading"
	r.Event.Stage = stage
	r.Event.Percentage = snap.Percentage()
	r.Event.Completed = snap.Completed
	r.Event.Skipped = snap.Skipped
	r.Event.Total = snap.Total
	r.Event.Bytes = snap.Bytes
	r.Event.Speed = snap.Speed()
	r.Event.Timestamp = time.Now().Format(time.RFC3339)

	r.Bar.Describe(fmt.Sprintf("%s %.1f KB/s", r.opts.description, r.Event.Speed/1024))
	_ = r.Bar.Set(snap.Done())

	r.sendUpdateInternal(false)
	r.writeProgressFileInternal()
}

// Complete finishes the bar, sends a final event and closes the Updates channel.
func (r *DefaultReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.Bar != nil {
		_ = r.Bar.Finish()
		r.Bar = nil
	}

	r.Event.Status = "completed"
	r.Event.Percentage = 100
	r.Event.Timestamp = time.Now().Format(time.RFC3339)

	r.sendUpdateInternal(true)
	r.writeProgressFileInternal()
	r.closed = true
	close(r.updatesCh)
}

// Fail stops the bar where it is, sends a final "failed" event and closes the Updates channel.
func (r *DefaultReporter) Fail(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.Bar != nil {
		_ = r.Bar.Exit()
		r.Bar = nil
	}

	r.Event.Status = "failed"
	r.Event.Stage = reason
	r.Event.Timestamp = time.Now().Format(time.RFC3339)

	r.sendUpdateInternal(true)
	r.writeProgressFileInternal()
	r.closed = true
	close(r.updatesCh)
}

// Updates returns the channel for receiving ProgressEvent updates.
func (r *DefaultReporter) Updates() <-chan ProgressEvent {
	return r.updatesCh
}

// JSON returns the current progress event as a JSON string.
func (r *DefaultReporter) JSON() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(r.Event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return string(data), nil
}

// sendUpdateInternal does a throttled, non-blocking send. Requires r.mu.
func (r *DefaultReporter) sendUpdateInternal(force bool) {
	if r.closed {
		return
	}
	now := time.Now()
	if !force && now.Sub(r.lastUpdate) < r.opts.throttle {
		return
	}
	r.lastUpdate = now

	select {
	case r.updatesCh <- r.Event:
	default:
	}
}

// writeProgressFileInternal writes the current event to the progress file, if any. Requires r.mu.
func (r *DefaultReporter) writeProgressFileInternal() {
	if r.opts.progressFilePath == "" {
		return
	}

	var content []byte
	switch r.opts.progressFileFormat {
	case "json":
		data, err := json.MarshalIndent(r.Event, "", "  ")
		if err != nil {
			logger.Warn("Failed to marshal progress event to JSON", "progress", map[string]interface{}{
				"path":  r.opts.progressFilePath,
				"error": err.Error(),
			})
			return
		}
		content = data
	default:
		content = []byte(fmt.Sprintf("%.2f", r.Event.Percentage))
	}

	if err := os.WriteFile(r.opts.progressFilePath, content, 0644); err != nil {
		logger.Warn("Failed to write progress file", "progress", map[string]interface{}{
			"path":   r.opts.progressFilePath,
			"format": r.opts.progressFileFormat,
			"error":  err.Error(),
		})
	}
}
