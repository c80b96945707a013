package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RowWriter is the audit sink used by the reporter. *CSVLogger implements it.
type RowWriter interface {
	WriteRow(row []string) error
}

// CSVLogger handles CSV audit logging with periodic buffering.
// It is safe for concurrent use; teardown and on-demand reports may overlap.
type CSVLogger struct {
	mu         sync.Mutex
	writer     *csv.Writer
	file       *os.File
	toolName   string    // Tool name for filename (e.g., "meetingsnap")
	action     string    // Action being performed
	rowCount   int       // Number of rows written since last flush
	lastFlush  time.Time // Time of last flush
	flushEvery int       // Flush every N rows
}

// NewCSVLogger creates a new CSV logger for the specified tool and action in
// the system temp directory.
// Filename pattern: %TEMP%\_{toolName}_{action}_{date}.csv
//
// Example:
//   - _meetingsnap_taskpane_2026-01-09.csv
func NewCSVLogger(toolName, action string) (*CSVLogger, error) {
	return NewCSVLoggerIn(os.TempDir(), toolName, action)
}

// NewCSVLoggerIn is NewCSVLogger with an explicit directory.
func NewCSVLoggerIn(dir, toolName, action string) (*CSVLogger, error) {
	dateStr := time.Now().Format("2006-01-02")
	fileName := fmt.Sprintf("_%s_%s_%s.csv", toolName, action, dateStr)
	filePath := filepath.Join(dir, fileName)

	// Open or create file (append mode)
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create CSV log file: %w", err)
	}

	return &CSVLogger{
		writer:     csv.NewWriter(file),
		file:       file,
		toolName:   toolName,
		action:     action,
		lastFlush:  time.Now(),
		flushEvery: 10, // Flush every 10 rows or on close
	}, nil
}

// Path returns the location of the CSV file.
func (l *CSVLogger) Path() string {
	return l.file.Name()
}

// WriteHeader writes a CSV header with the provided column names.
// The timestamp column is automatically prepended to the header.
func (l *CSVLogger) WriteHeader(columns []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := append([]string{"Timestamp"}, columns...)
	if err := l.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// WriteRow writes a row to the CSV file with periodic buffering.
// The timestamp is automatically prepended to each row.
// Rows are flushed every N rows or every 5 seconds.
func (l *CSVLogger) WriteRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return fmt.Errorf("CSV writer is not initialized")
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fullRow := append([]string{timestamp}, row...)

	if err := l.writer.Write(fullRow); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}

	l.rowCount++

	if l.rowCount%l.flushEvery == 0 || time.Since(l.lastFlush) > 5*time.Second {
		l.writer.Flush()
		l.lastFlush = time.Now()
		if err := l.writer.Error(); err != nil {
			return fmt.Errorf("failed to flush CSV: %w", err)
		}
	}

	return nil
}

// Close closes the CSV file, ensuring all buffered data is flushed.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			return fmt.Errorf("error flushing CSV on close: %w", err)
		}
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ShouldWriteHeader checks if the CSV file is new (empty) and needs a header.
func (l *CSVLogger) ShouldWriteHeader() (bool, error) {
	fileInfo, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("could not stat CSV file: %w", err)
	}
	return fileInfo.Size() == 0, nil
}
