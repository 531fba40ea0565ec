package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Info is what probing a source container yields.
type Info struct {
	Duration int     `json:"duration"`
	Size     int64   `json:"size"`
	Bitrate  int64   `json:"bitrate"`
	Video    *Stream `json:"video,omitempty"`
	Audio    *Stream `json:"audio,omitempty"`
}

// Stream describes one elementary stream of a container.
type Stream struct {
	Codec      string  `json:"codec"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	SampleRate int     `json:"sampleRate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
}

// Quality is a fixed video/audio bitrate pair.
type Quality struct {
	Name         string
	VideoBitrate string
	AudioBitrate string
}

var qualities = map[string]Quality{
	"high":   {Name: "high", VideoBitrate: "2000k", AudioBitrate: "128k"},
	"medium": {Name: "medium", VideoBitrate: "1000k", AudioBitrate: "96k"},
	"low":    {Name: "low", VideoBitrate: "500k", AudioBitrate: "64k"},
}

// ParseQuality resolves a tier name, falling back to medium.
func ParseQuality(name string) Quality {
	if q, ok := qualities[strings.ToLower(strings.TrimSpace(name))]; ok {
		return q
	}
	return qualities["medium"]
}

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. Failures carry the tail of stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

// FFmpeg wraps the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      Runner
}

// NewFFmpeg builds a toolkit; empty paths resolve through $PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string, runner Runner) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: runner}
}

// Probe reads container and stream metadata of path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Info, error) {
	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}
	return ParseProbe(out)
}

// Transcode re-encodes src into an H.264/AAC MP4 at dst.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string, q Quality) error {
	_, err := f.runner.Run(ctx, f.ffmpegPath, TranscodeArgs(src, dst, q)...)
	return err
}

// Thumbnail writes one JPEG frame taken at offset seconds, scaled to width x height.
func (f *FFmpeg) Thumbnail(ctx context.Context, src, dst string, offset float64, width, height int) error {
	_, err := f.runner.Run(ctx, f.ffmpegPath, ThumbnailArgs(src, dst, offset, width, height)...)
	return err
}

// TranscodeArgs builds the ffmpeg arguments for a canonical MP4 encode.
func TranscodeArgs(src, dst string, q Quality) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", src,
		"-c:v", "libx264",
		"-b:v", q.VideoBitrate,
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", q.AudioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		dst,
	}
}

// ThumbnailArgs builds the ffmpeg arguments for a single frame grab.
func ThumbnailArgs(src, dst string, offset float64, width, height int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-q:v", "2",
		dst,
	}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Channels     int    `json:"channels"`
	} `json:"streams"`
}

// ParseProbe decodes ffprobe JSON output. Input without a duration or any
// audio/video stream is rejected.
func ParseProbe(raw []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &Info{}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		info.Duration = RoundSeconds(d)
	}
	info.Size, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	info.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.Video != nil {
				continue
			}
			fps := parseRate(s.AvgFrameRate)
			if fps == 0 {
				fps = parseRate(s.RFrameRate)
			}
			info.Video = &Stream{Codec: s.CodecName, Width: s.Width, Height: s.Height, FPS: fps}
		case "audio":
			if info.Audio != nil {
				continue
			}
			rate, _ := strconv.Atoi(s.SampleRate)
			info.Audio = &Stream{Codec: s.CodecName, SampleRate: rate, Channels: s.Channels}
		}
	}

	if info.Video == nil && info.Audio == nil {
		return nil, errors.New("no audio or video streams found")
	}
	if out.Format.Duration == "" {
		return nil, errors.New("container reports no duration")
	}
	return info, nil
}

// RoundSeconds rounds half up to whole seconds.
func RoundSeconds(d float64) int {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return int(math.Floor(d + 0.5))
}

// ThumbnailOffset is the sampling point for a thumbnail: 10% into the video.
func ThumbnailOffset(durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return durationSeconds * 0.1
}

func parseRate(raw string) float64 {
	if raw == "" || raw == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(raw, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return math.Round(n/d*100) / 100
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
