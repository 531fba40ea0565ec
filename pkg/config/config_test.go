package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDimensions(t *testing.T) {
	w, h, err := ParseDimensions("320x240")
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)

	w, h, err = ParseDimensions(" 640X360 ")
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 360, h)

	for _, raw := range []string{"", "320", "ax240", "320x0", "1x2x3"} {
		_, _, err := ParseDimensions(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "")
	t.Setenv("TRANSCODE_QUALITY", "HIGH")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(100*1024*1024), cfg.Upload.MaxFileSizeBytes)
	assert.Equal(t, "high", cfg.Media.Quality)
	assert.Equal(t, 10*time.Minute, cfg.Media.TranscodeTimeout)
	assert.Equal(t, time.Minute, cfg.Media.ToolTimeout)
	assert.Contains(t, cfg.Upload.AllowedExtensions, ".mkv")
	assert.Contains(t, cfg.Upload.AllowedMIMEs, "video/quicktime")
	assert.Equal(t, 320, cfg.Thumbnail.Width)
	assert.Equal(t, 5, cfg.RateLimit.AuthLimit)
	assert.Equal(t, 3, cfg.RateLimit.LoginFreeRetries)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.LoginLockoutWindow)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
