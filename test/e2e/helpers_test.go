package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heyjunin/m3u8grab/pkg/progress"
)

// recordingReporter captures every progress call for later inspection.
type recordingReporter struct {
	mu       sync.Mutex
	total    int
	snaps    []progress.Snapshot
	stages   []string
	complete bool
	failed   string
}

func (r *recordingReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *recordingReporter) Update(snap progress.Snapshot, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	r.stages = append(r.stages, stage)
}

func (r *recordingReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = true
}

func (r *recordingReporter) Fail(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = reason
}

func (r *recordingReporter) Updates() <-chan progress.ProgressEvent {
	ch := make(chan progress.ProgressEvent)
	close(ch)
	return ch
}

// copyRemuxer stands in for ffmpeg when only the byte stream matters.
type copyRemuxer struct{}

func (copyRemuxer) Remux(ctx context.Context, in, out string) error {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

// countingServer serves dir and counts requests per path.
type countingServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func serveDir(t *testing.T, dir string) *countingServer {
	t.Helper()
	s := &countingServer{hits: map[string]int{}}
	files := http.FileServer(http.Dir(dir))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *countingServer) count(suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, c := range s.hits {
		if strings.HasSuffix(p, suffix) {
			n += c
		}
	}
	return n
}

func checkFFmpegInstalled() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// generateHLS renders a short test pattern into an HLS media playlist under dir.
// With encrypt set, segments are AES-128 encrypted with key served as key.bin.
func generateHLS(t *testing.T, dir string, seconds int, key []byte) {
	t.Helper()
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("testsrc=duration=%d:size=320x240:rate=25", seconds),
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:duration=%d", seconds),
		"-c:v", "mpeg2video", "-g", "25",
		"-c:a", "aac",
		"-shortest",
		"-f", "hls",
		"-hls_time", "1",
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(dir, "seg_%03d.ts"),
	}
	if key != nil {
		keyPath := filepath.Join(dir, "key.bin")
		if err := os.WriteFile(keyPath, key, 0644); err != nil {
			t.Fatalf("Failed to write key: %v", err)
		}
		// without an IV line ffmpeg uses the media sequence number, i.e. the segment position
		info := filepath.Join(t.TempDir(), "key.info")
		if err := os.WriteFile(info, []byte("key.bin\n"+keyPath+"\n"), 0644); err != nil {
			t.Fatalf("Failed to write key info: %v", err)
		}
		args = append(args, "-hls_key_info_file", info)
	}
	args = append(args, filepath.Join(dir, "index.m3u8"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
	if err != nil {
		t.Skipf("ffmpeg could not generate test stream: %v\n%s", err, out)
	}
}

func countTSFiles(dir string) int {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	count := 0
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".ts" {
			count++
		}
	}
	return count
}
