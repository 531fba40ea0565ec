package storage

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerDirIsIdempotentUnderConcurrency(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.OwnerDir(7)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	info, err := os.Stat(filepath.Join(s.Root(), "user_7"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveTempEnforcesLimit(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, n, err := s.SaveTemp(".MP4", bytes.NewReader(make([]byte, 100)), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	assert.True(t, strings.HasSuffix(path, ".mp4"))
	assert.True(t, s.Contains(path))

	_, _, err = s.SaveTemp(".mp4", bytes.NewReader(make([]byte, 101)), 100)
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(s.Root(), tempDirName))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "oversized upload must not be left behind")
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, _, err := s.SaveTemp(".mp4", strings.NewReader("x"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Delete(path))
	require.NoError(t, s.Delete(path))
	require.NoError(t, s.Delete(""))
}

func TestOpenMissingMatchesNotExist(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Open(filepath.Join(s.Root(), "user_1", "gone.mp4"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCleanupTempRemovesOldFiles(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	oldPath, _, err := s.SaveTemp(".mp4", strings.NewReader("old"), 0)
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, old, old))
	freshPath, _, err := s.SaveTemp(".mp4", strings.NewReader("new"), 0)
	require.NoError(t, err)

	deleted, err := s.CleanupTemp(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(oldPath)}, deleted)
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
}

func TestContainsRejectsEscapes(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.False(t, s.Contains("/etc/passwd"))
	assert.False(t, s.Contains("../outside.mp4"))
	assert.True(t, s.Contains("user_1/a.mp4"))
}

func TestCopyLeavesSourceIntact(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src, _, err := s.SaveTemp(".mp4", strings.NewReader("payload"), 0)
	require.NoError(t, err)
	dst := filepath.Join(s.Root(), "copy.mp4")

	require.NoError(t, s.Copy(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	_, err = os.Stat(src)
	assert.NoError(t, err)

	assert.Error(t, s.Copy(src, dst), "existing target is not overwritten")
}

func TestContainsRejectsPathsOutsideRoot(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.True(t, s.Contains(filepath.Join(s.Root(), "user_1", "clip.mp4")))
	assert.True(t, s.Contains("user_1/clip.mp4"))
	assert.False(t, s.Contains(filepath.Join(s.Root(), "..", "other", "clip.mp4")))
	assert.False(t, s.Contains("../clip.mp4"))
	assert.False(t, s.Contains("/etc/passwd"))
	assert.False(t, s.Contains(s.Root()+"-sibling/clip.mp4"))
}
