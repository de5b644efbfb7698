package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"igengage/pkg/config"
	"igengage/pkg/logger"
	"igengage/pkg/models"
)

const timestampLayout = "20060102_150405"

// Writer places export files in the output directory
type Writer struct {
	fs     afero.Fs
	dir    string
	prefix string
	format string
	now    func() time.Time
	logger logger.Logger
	mu     sync.Mutex
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithClock replaces time.Now for file naming
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithWriterLogger sets the writer's logger
func WithWriterLogger(log logger.Logger) WriterOption {
	return func(w *Writer) { w.logger = log }
}

// NewWriter creates the output directory if needed
func NewWriter(fs afero.Fs, cfg config.OutputConfig, opts ...WriterOption) (*Writer, error) {
	if _, err := ForFormat(cfg.Format); err != nil {
		return nil, err
	}
	dir := cfg.Directory
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	w := &Writer{
		fs:     fs,
		dir:    dir,
		prefix: cfg.FilePrefix,
		format: strings.ToLower(cfg.Format),
		now:    time.Now,
		logger: logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// DefaultFormat is the configured format used when Write gets an empty one
func (w *Writer) DefaultFormat() string {
	return w.format
}

// Write renders the export and moves it into place, returning its path
func (w *Writer) Write(format string, post models.PostSummary, items []models.Interaction) (string, error) {
	if format == "" {
		format = w.format
	}
	exp, err := ForFormat(format)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := exp.Export(&buf, post, items); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.uniquePath(w.fileName(post.Shortcode, exp.Extension()))
	tempFile := path + ".tmp"
	if err := afero.WriteFile(w.fs, tempFile, buf.Bytes(), 0644); err != nil {
		w.fs.Remove(tempFile)
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := w.fs.Rename(tempFile, path); err != nil {
		w.fs.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	w.logger.InfoWithFields("Export written", map[string]interface{}{
		"path":         path,
		"format":       exp.Extension(),
		"interactions": len(items),
	})
	return path, nil
}

func (w *Writer) fileName(shortcode, ext string) string {
	parts := make([]string, 0, 3)
	if w.prefix != "" {
		parts = append(parts, w.prefix)
	}
	if shortcode != "" {
		parts = append(parts, shortcode)
	}
	parts = append(parts, w.now().Format(timestampLayout))
	return filepath.Join(w.dir, strings.Join(parts, "_")+"."+ext)
}

// uniquePath appends a counter when two exports land in the same second
func (w *Writer) uniquePath(path string) string {
	if ok, _ := afero.Exists(w.fs, path); !ok {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if ok, _ := afero.Exists(w.fs, candidate); !ok {
			return candidate
		}
	}
}

// Existing lists earlier exports of the post, oldest first
func (w *Writer) Existing(shortcode string) ([]string, error) {
	entries, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	marker := "_" + shortcode + "_"
	if w.prefix == "" {
		marker = shortcode + "_"
	}
	var found []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if strings.Contains(name, marker) {
			found = append(found, filepath.Join(w.dir, name))
		}
	}
	sort.Strings(found)
	return found, nil
}
