package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extToType lists the source file extensions a session can ingest.
var extToType = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
}

// SourceService manages source data files.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
	}
}

// List returns all available source files, sorted by name.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		fileType, ok := extToType[ext]
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			Bytes:    info.Size(),
			FileType: fileType,
		})
	}

	return files, nil
}

// Validate checks that filename names an ingestible file inside the
// sources directory.
func (s *SourceService) Validate(filename string) error {
	// Check for path traversal
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "\\") || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid filename %q", filename)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := extToType[ext]; !ok {
		return fmt.Errorf("unsupported file type: %s", ext)
	}

	info, err := os.Stat(filepath.Join(s.sourcesDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", filename)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("not a file: %s", filename)
	}
	return nil
}

// Open validates filename and opens it for reading.
func (s *SourceService) Open(filename string) (io.ReadCloser, error) {
	if err := s.Validate(filename); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.sourcesDir, filename))
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
