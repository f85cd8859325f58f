package transcoder

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/heyjunin/m3u8grab/pkg/errors"
)

// MediaInfo describes a produced file as reported by ffprobe
type MediaInfo struct {
	Width    int
	Height   int
	Duration float64
	Streams  int
}

// ffprobeOutput is the subset of ffprobe's JSON output that Probe reads
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path. Audio-only files report zero width and height.
func (t *Transcoder) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx,
		t.options.FFprobeBinary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to run ffprobe", errors.ErrFFmpegStart)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to parse ffprobe output", errors.ErrFFmpegFailed)
	}

	info := &MediaInfo{Streams: len(probe.Streams)}
	for _, stream := range probe.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}
