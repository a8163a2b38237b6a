package logger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("csv writer closed")

// CSVStats counts what a SafeCSVWriter has written.
type CSVStats struct {
	Records uint64
	Flushes uint64
}

// SafeCSVWriter appends CSV records from many goroutines and flushes them to
// disk on an interval and on Close.
type SafeCSVWriter struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	stats  CSVStats
	closed bool

	stop      chan struct{}
	flusher   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewSafeCSVWriter opens path for appending, creating parent directories.
// header is written only when the file is empty.
func NewSafeCSVWriter(path string, header []string, flushInterval time.Duration, logger *zap.Logger) (*SafeCSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	w := &SafeCSVWriter{
		path:   path,
		logger: logger,
		file:   file,
		writer: csv.NewWriter(file),
		stop:   make(chan struct{}),
	}
	if info.Size() == 0 && len(header) > 0 {
		// The header is not counted as a record or a flush.
		w.writer.Write(header)
		w.writer.Flush()
		if err := w.writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	w.flusher.Add(1)
	go w.flushEvery(flushInterval)
	return w, nil
}

// WriteRecord buffers one record.
func (w *SafeCSVWriter) WriteRecord(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.stats.Records++
	return nil
}

// Flush writes buffered records and syncs the file.
func (w *SafeCSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	return w.flushLocked()
}

func (w *SafeCSVWriter) flushLocked() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	w.stats.Flushes++
	return nil
}

func (w *SafeCSVWriter) flushEvery(interval time.Duration) {
	defer w.flusher.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil && !errors.Is(err, ErrWriterClosed) {
				w.logger.Error("Periodic CSV flush failed",
					zap.String("file", w.path),
					zap.Error(err))
			}
		case <-w.stop:
			return
		}
	}
}

// Close stops the flusher, writes what is buffered and closes the file. Only
// the first call does any work.
func (w *SafeCSVWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.flusher.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()

		w.closed = true
		w.closeErr = errors.Join(w.flushLocked(), w.file.Close())

		w.logger.Debug("Safe CSV writer closed",
			zap.String("file", w.path),
			zap.Uint64("written_records", w.stats.Records),
			zap.Uint64("flush_count", w.stats.Flushes))
	})
	return w.closeErr
}

// Stats returns the writer counters.
func (w *SafeCSVWriter) Stats() CSVStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
