package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var unsafeFilenameChars = regexp.MustCompile(`(?i)[^a-z0-9.-]`)

// VideoFile describes one stored recording.
type VideoFile struct {
	Name string    `json:"name"`
	URL  string    `json:"url"`
	Time time.Time `json:"time"`
}

// VideoStore keeps uploaded device recordings on disk. It only deals
// in sanitized basenames, so callers can pass user input directly.
type VideoStore struct {
	dir    string
	logger *zap.Logger
}

func NewVideoStore(dir string, logger *zap.Logger) (*VideoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &VideoStore{dir: dir, logger: logger}, nil
}

// Save streams r to disk under a sanitized version of name and returns
// the filename actually used.
func (s *VideoStore) Save(name string, r io.Reader) (string, error) {
	if name == "" {
		name = fmt.Sprintf("video-%d.webm", time.Now().UnixMilli())
	}
	safe := unsafeFilenameChars.ReplaceAllString(filepath.Base(name), "_")

	f, err := os.Create(filepath.Join(s.dir, safe))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return safe, nil
}

// List returns the stored videos, newest first.
func (s *VideoStore) List() ([]VideoFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploads directory: %w", err)
	}

	files := make([]VideoFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isVideo(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, VideoFile{
			Name: entry.Name(),
			URL:  "/uploads/" + entry.Name(),
			Time: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Time.After(files[j].Time)
	})

	return files, nil
}

// Delete removes the named videos, returning how many were deleted and
// how many failed. Missing files count as neither.
func (s *VideoStore) Delete(names []string) (deleted, errors int) {
	for _, name := range names {
		path := filepath.Join(s.dir, filepath.Base(name))
		err := os.Remove(path)
		switch {
		case err == nil:
			deleted++
		case os.IsNotExist(err):
		default:
			s.logger.Error("Failed to delete video", zap.String("name", name), zap.Error(err))
			errors++
		}
	}
	return deleted, errors
}

// WriteZip streams a zip archive of every stored video to w and
// returns the number of files archived.
func (s *VideoStore) WriteZip(w io.Writer) (int, error) {
	files, err := s.List()
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	count := 0
	for _, file := range files {
		f, err := os.Open(filepath.Join(s.dir, file.Name))
		if err != nil {
			s.logger.Warn("Skipping unreadable video", zap.String("name", file.Name), zap.Error(err))
			continue
		}

		entry, err := zw.Create(file.Name)
		if err != nil {
			f.Close()
			zw.Close()
			return count, fmt.Errorf("failed to add %s to archive: %w", file.Name, err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			zw.Close()
			return count, fmt.Errorf("failed to write %s to archive: %w", file.Name, err)
		}
		f.Close()
		count++
	}

	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return count, nil
}

func isVideo(name string) bool {
	return strings.HasSuffix(name, ".webm") || strings.HasSuffix(name, ".mp4")
}
