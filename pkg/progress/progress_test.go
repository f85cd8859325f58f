package progress

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuietReporter(opts ...ReporterOption) *DefaultReporter {
	return NewReporter(append([]ReporterOption{WithWriter(io.Discard)}, opts...)...)
}

func TestNewReporter(t *testing.T) {
	reporter := newQuietReporter()

	if reporter.Event.Status != "initialized" {
		t.Errorf("Initial status = %q, want %q", reporter.Event.Status, "initialized")
	}
	if reporter.Event.Timestamp == "" {
		t.Error("Timestamp should not be empty")
	}
}

func TestReporterStart(t *testing.T) {
	reporter := newQuietReporter()
	reporter.Start(10)

	assert.Equal(t, 10, reporter.Event.Total)
	assert.Equal(t, "started", reporter.Event.Status)
	assert.NotNil(t, reporter.Bar)

	ev := <-reporter.Updates()
	assert.Equal(t, "started", ev.Status)
}

func TestReporterUpdate(t *testing.T) {
	reporter := newQuietReporter()
	reporter.Start(4)
	<-reporter.Updates()

	reporter.Update(Snapshot{Total: 4, Completed: 1, Skipped: 1, Bytes: 2048, Elapsed: time.Second}, "downloading")

	ev := <-reporter.Updates()
	assert.Equal(t, "downloading", ev.Status)
	assert.Equal(t, 50.0, ev.Percentage)
	assert.Equal(t, 1, ev.Completed)
	assert.Equal(t, 1, ev.Skipped)
	assert.Equal(t, int64(2048), ev.Bytes)
	assert.Equal(t, 2048.0, ev.Speed)
}

func TestReporterUpdateBeforeStartIsIgnored(t *testing.T) {
	reporter := newQuietReporter()
	reporter.Update(Snapshot{Total: 2, Completed: 1}, "downloading")
	assert.Equal(t, "initialized", reporter.Event.Status)
}

func TestReporterCompleteClosesChannel(t *testing.T) {
	reporter := newQuietReporter()
	reporter.Start(2)
	reporter.Complete()
	reporter.Complete()

	var last ProgressEvent
	for ev := range reporter.Updates() {
		last = ev
	}
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 100.0, last.Percentage)
}

func TestReporterFail(t *testing.T) {
	reporter := newQuietReporter()
	reporter.Start(4)
	reporter.Update(Snapshot{Total: 4, Completed: 1}, "downloading")
	reporter.Fail("segment 2 failed")
	reporter.Complete()

	var last ProgressEvent
	for ev := range reporter.Updates() {
		last = ev
	}
	assert.Equal(t, "failed", last.Status)
	assert.Equal(t, "segment 2 failed", last.Stage)
	assert.Equal(t, 25.0, last.Percentage)
}

func TestReporterThrottle(t *testing.T) {
	reporter := newQuietReporter(WithThrottle(time.Hour))
	reporter.Start(3)
	<-reporter.Updates()

	reporter.Update(Snapshot{Total: 3, Completed: 1}, "downloading")
	reporter.Update(Snapshot{Total: 3, Completed: 2}, "downloading")

	select {
	case ev := <-reporter.Updates():
		t.Fatalf("expected throttled channel, got %+v", ev)
	default:
	}
}

func TestReporterProgressFile(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "progress.txt")
	reporter := newQuietReporter(WithProgressFile(textPath))
	reporter.Start(4)
	reporter.Update(Snapshot{Total: 4, Completed: 1}, "downloading")

	data, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Equal(t, "25.00", string(data))

	jsonPath := filepath.Join(dir, "progress.json")
	reporter = newQuietReporter(WithProgressFile(jsonPath), WithProgressFileFormat("json"))
	reporter.Start(2)
	reporter.Update(Snapshot{Total: 2, Completed: 2}, "downloading")

	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var ev ProgressEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, 100.0, ev.Percentage)
	assert.Equal(t, 2, ev.Completed)
}

func TestReporterJSON(t *testing.T) {
	reporter := newQuietReporter()
	reporter.Start(8)
	reporter.Update(Snapshot{Total: 8, Completed: 2}, "downloading")

	jsonStr, err := reporter.JSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &parsed))
	assert.Equal(t, "downloading", parsed["status"])
	assert.Equal(t, 25.0, parsed["percentage"])
	assert.Equal(t, "downloading", parsed["stage"])
}

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	base := time.Unix(1000, 0)
	clock := base
	s.now = func() time.Time { return clock }

	s.Start(3)
	s.Start(99) // ignored
	s.AddBytes(500)
	s.AddBytes(-10)
	s.Complete()
	s.Skip()
	clock = base.Add(2 * time.Second)
	s.AddBytes(500)
	snap := s.Complete()

	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, int64(1000), snap.Bytes)
	assert.Equal(t, 2*time.Second, snap.Elapsed)
	assert.Equal(t, 500.0, snap.Speed())
	assert.Equal(t, 100.0, snap.Percentage())

	// never exceeds total
	snap = s.Complete()
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 3, snap.Done())
}

func TestStatsCountsWithoutStart(t *testing.T) {
	s := NewStats()
	s.Complete()
	s.Complete()
	snap := s.Skip()

	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, 0.0, snap.Percentage())
}

func TestStatsConcurrentUpdates(t *testing.T) {
	s := NewStats()
	s.Start(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddBytes(10)
			s.Complete()
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 100, snap.Completed)
	assert.Equal(t, int64(1000), snap.Bytes)
}

func TestSnapshotZeroValues(t *testing.T) {
	var snap Snapshot
	assert.Equal(t, 0.0, snap.Percentage())
	assert.Equal(t, 0.0, snap.Speed())
}
