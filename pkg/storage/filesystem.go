package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTooLarge is returned when a stream exceeds the caller supplied limit.
var ErrTooLarge = errors.New("file exceeds size limit")

const tempDirName = "temp"

// LocalStorage keeps uploaded videos on disk under a root directory, one
// sub directory per owner plus a shared temp area for in-flight uploads.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the root and temp directories exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// Root returns the absolute storage root.
func (s *LocalStorage) Root() string {
	return s.baseDir
}

// OwnerDir returns the owner's directory, creating it if absent. Concurrent
// calls for the same owner are safe.
func (s *LocalStorage) OwnerDir(ownerID int64) (string, error) {
	dir := filepath.Join(s.baseDir, fmt.Sprintf("user_%d", ownerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create owner directory: %w", err)
	}
	return dir, nil
}

// SaveTemp streams r into a uniquely named file in the temp area. At most
// limit bytes are accepted; a larger stream is removed and ErrTooLarge returned.
func (s *LocalStorage) SaveTemp(ext string, r io.Reader, limit int64) (string, int64, error) {
	name := fmt.Sprintf("video-%d-%s%s", time.Now().UnixMilli(), RandomSuffix(4), strings.ToLower(ext))
	path := filepath.Join(s.baseDir, tempDirName, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create temp upload: %w", err)
	}

	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write temp upload: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("close temp upload: %w", closeErr)
	case limit > 0 && written > limit:
		_ = os.Remove(path)
		return "", 0, ErrTooLarge
	}
	return path, written, nil
}

// Copy duplicates src into a new file at dst, leaving src untouched.
func (s *LocalStorage) Copy(src, dst string) error {
	in, err := os.Open(s.resolve(src))
	if err != nil {
		return fmt.Errorf("open copy source: %w", err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(s.resolve(dst), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create copy target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(s.resolve(dst))
		return fmt.Errorf("copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(s.resolve(dst))
		return fmt.Errorf("close copy target: %w", err)
	}
	return nil
}

// Open returns a read-only handle and its stat for a stored file. A missing
// file yields an error matching fs.ErrNotExist.
func (s *LocalStorage) Open(path string) (*os.File, fs.FileInfo, error) {
	file, err := os.Open(s.resolve(path))
	if err != nil {
		return nil, nil, fmt.Errorf("open stored file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("stat stored file: %w", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, nil, fmt.Errorf("open stored file: %w", fs.ErrNotExist)
	}
	return file, info, nil
}

// Size reports the on-disk size of path.
func (s *LocalStorage) Size(path string) (int64, error) {
	info, err := os.Stat(s.resolve(path))
	if err != nil {
		return 0, fmt.Errorf("stat stored file: %w", err)
	}
	return info.Size(), nil
}

// Delete removes a stored file. A missing file is not an error.
func (s *LocalStorage) Delete(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(s.resolve(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// CleanupTemp removes abandoned temp uploads older than ttl and returns their names.
func (s *LocalStorage) CleanupTemp(ttl time.Duration) ([]string, error) {
	dir := filepath.Join(s.baseDir, tempDirName)
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		deleted = append(deleted, d.Name())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup temp uploads: %w", err)
	}
	return deleted, nil
}

// Contains reports whether path lies inside the storage root.
func (s *LocalStorage) Contains(path string) bool {
	rel, err := filepath.Rel(s.baseDir, s.resolve(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *LocalStorage) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.baseDir, path)
}

// RandomSuffix returns 2n hex characters of randomness.
func RandomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
