package internal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger appends timestamped, leveled lines to a log file
type FileLogger struct {
	logger *log.Logger
	file   *os.File
	runID  string
	mu     sync.Mutex
}

// OpenFileLogger opens (or creates) path for appending and writes a session header
func OpenFileLogger(path, runID string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	// Create logger with timestamp and microsecond precision
	l := &FileLogger{
		logger: log.New(f, "", log.LstdFlags|log.Lmicroseconds),
		file:   f,
		runID:  runID,
	}
	l.logger.Printf("[%s] [INFO] session started", runID)
	return l, nil
}

// Printf logs a formatted message at the given level
func (l *FileLogger) Printf(level, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[%s] [%s] "+format, append([]any{l.runID, level}, args...)...)
}

// Close flushes and closes the underlying file
func (l *FileLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
