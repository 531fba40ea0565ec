package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001"},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"duration": "29.500000", "size": "10485760", "bit_rate": "2843000"}
}`

type recordingRunner struct {
	name string
	args []string
	out  []byte
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return r.out, r.err
}

func TestParseProbe(t *testing.T) {
	info, err := ParseProbe([]byte(sampleProbe))
	require.NoError(t, err)
	assert.Equal(t, 30, info.Duration, "29.5s rounds half up")
	assert.Equal(t, int64(10485760), info.Size)
	assert.Equal(t, int64(2843000), info.Bitrate)
	require.NotNil(t, info.Video)
	assert.Equal(t, "h264", info.Video.Codec)
	assert.Equal(t, 1280, info.Video.Width)
	assert.InDelta(t, 29.97, info.Video.FPS, 0.001)
	require.NotNil(t, info.Audio)
	assert.Equal(t, 48000, info.Audio.SampleRate)
	assert.Equal(t, 2, info.Audio.Channels)
}

func TestParseProbeRejectsNonMedia(t *testing.T) {
	_, err := ParseProbe([]byte(`{"streams": [], "format": {"duration": "1.0"}}`))
	assert.Error(t, err)

	_, err = ParseProbe([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseProbe([]byte(`{"streams": [{"codec_type": "video", "codec_name": "png"}], "format": {}}`))
	assert.Error(t, err)
}

func TestRoundSeconds(t *testing.T) {
	assert.Equal(t, 0, RoundSeconds(-1))
	assert.Equal(t, 1, RoundSeconds(0.5))
	assert.Equal(t, 10, RoundSeconds(10.49))
	assert.Equal(t, 11, RoundSeconds(10.5))
}

func TestParseQualityDefaultsToMedium(t *testing.T) {
	assert.Equal(t, "2000k", ParseQuality("HIGH").VideoBitrate)
	assert.Equal(t, "64k", ParseQuality("low").AudioBitrate)
	assert.Equal(t, "medium", ParseQuality("ultra").Name)
}

func TestProbeUsesConfiguredBinary(t *testing.T) {
	runner := &recordingRunner{out: []byte(sampleProbe)}
	f := NewFFmpeg("", "/opt/ffprobe", runner)

	info, err := f.Probe(context.Background(), "/tmp/in.mov")
	require.NoError(t, err)
	assert.Equal(t, 30, info.Duration)
	assert.Equal(t, "/opt/ffprobe", runner.name)
	assert.Equal(t, "/tmp/in.mov", runner.args[len(runner.args)-1])
}

func TestTranscodeArgs(t *testing.T) {
	runner := &recordingRunner{}
	f := NewFFmpeg("ffmpeg", "", runner)
	require.NoError(t, f.Transcode(context.Background(), "in.mov", "out.mp4", ParseQuality("low")))

	assert.Equal(t, "ffmpeg", runner.name)
	assert.Subset(t, runner.args, []string{"libx264", "aac", "500k", "64k", "+faststart", "yuv420p", "out.mp4"})
	assert.Equal(t, "out.mp4", runner.args[len(runner.args)-1])
}

func TestThumbnailArgs(t *testing.T) {
	args := ThumbnailArgs("in.mp4", "thumb.jpg", ThumbnailOffset(30), 320, 240)
	assert.Contains(t, args, "3.000")
	assert.Contains(t, args, "scale=320:240")
	assert.Equal(t, "thumb.jpg", args[len(args)-1])
}

func TestRunnerErrorPropagates(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}
	f := NewFFmpeg("", "", runner)
	assert.Error(t, f.Thumbnail(context.Background(), "a", "b", 1, 1, 1))
}

func TestParseRate(t *testing.T) {
	assert.Equal(t, 25.0, parseRate("25/1"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate("1/0"))
	assert.Equal(t, 24.0, parseRate("24"))
}
