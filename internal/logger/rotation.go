package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const rotationTimeFormat = "20060102-150405.000"

// RotatingWriter is a size-bounded log file. Writes are serialized since
// worker goroutines log concurrently.
type RotatingWriter struct {
	mu       sync.Mutex
	filename string
	maxSize  int64 // bytes, 0 disables rotation
	maxAge   int   // days, 0 keeps everything
	compress bool
	file     *os.File
	size     int64
	now      func() time.Time
}

// NewRotatingWriter opens filename for appending, creating its directory
func NewRotatingWriter(filename string, maxSizeMB, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   maxAgeDays,
		compress: compress,
		now:      time.Now,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()

	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past maxSize
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file. Later writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate moves the current file aside and reopens filename. Caller holds mu.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	rotated := fmt.Sprintf("%s.%s", w.filename, w.now().Format(rotationTimeFormat))
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}
	if w.compress {
		// A failed compression leaves the plain rotated file in place
		_ = compressFile(rotated)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		os.Remove(filename + ".gz")
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(filename)
}

// prune removes rotated files older than maxAge
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := w.now().AddDate(0, 0, -w.maxAge)
	for _, path := range matches {
		if !strings.HasPrefix(filepath.Base(path), filepath.Base(w.filename)+".") {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}
