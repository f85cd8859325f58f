package progress

import (
	"sync"
	"time"
)

// Stats holds the counters shared by every segment fetch of one download.
// All methods are safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	total     int
	completed int
	skipped   int
	bytes     int64
	started   time.Time
	now       func() time.Time
}

// Snapshot is a consistent copy of Stats at one instant.
type Snapshot struct {
	Total     int
	Completed int
	Skipped   int
	Bytes     int64
	Elapsed   time.Duration
}

// NewStats returns empty stats. Call Start before dispatching segments.
func NewStats() *Stats {
	return &Stats{now: time.Now}
}

// Start sets the segment total and the start time. Only the first call has an effect.
func (s *Stats) Start(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.IsZero() {
		return
	}
	s.total = total
	s.started = s.now()
}

// AddBytes records n received bytes. Negative values are ignored.
func (s *Stats) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.bytes += n
	s.mu.Unlock()
}

// Complete records one segment fetched during this run.
// Once Start has set a total, counts never exceed it.
func (s *Stats) Complete() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room() {
		s.completed++
	}
	return s.snapshotLocked()
}

// Skip records one segment reused from a previous run.
func (s *Stats) Skip() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room() {
		s.skipped++
	}
	return s.snapshotLocked()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// room reports whether another segment may be counted. Requires s.mu.
func (s *Stats) room() bool {
	return s.total <= 0 || s.completed+s.skipped < s.total
}

func (s *Stats) snapshotLocked() Snapshot {
	var elapsed time.Duration
	if !s.started.IsZero() {
		elapsed = s.now().Sub(s.started)
	}
	return Snapshot{
		Total:     s.total,
		Completed: s.completed,
		Skipped:   s.skipped,
		Bytes:     s.bytes,
		Elapsed:   elapsed,
	}
}

// Done is the number of segments in a terminal success state.
func (s Snapshot) Done() int {
	return s.Completed + s.Skipped
}

// Percentage of segments done, from 0 to 100.
func (s Snapshot) Percentage() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Done()) / float64(s.Total) * 100
}

// Speed is the average throughput in bytes per second since Start.
func (s Snapshot) Speed() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Bytes) / secs
}
