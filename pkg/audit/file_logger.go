package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultMaxFileSize is the rotation threshold for the active log file.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultMaxFiles is the total number of log files kept, active included.
	DefaultMaxFiles = 5

	activeLogName = "audit.log"
)

// FileSink writes audit entries to a newline-delimited JSON file with
// size-based rotation. When the active file reaches MaxSize it is
// shifted to audit.log.1, existing rotated files move up one index, and
// the oldest beyond MaxFiles is deleted.
type FileSink struct {
	dir      string
	maxSize  int64
	maxFiles int

	mu   sync.Mutex
	file *os.File
	size int64
}

// FileSinkConfig configures a FileSink. Zero values fall back to the
// package defaults.
type FileSinkConfig struct {
	Dir      string
	MaxSize  int64
	MaxFiles int
}

// NewFileSink creates the log directory if needed and opens the active
// log file in append mode.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxFileSize
	}
	if cfg.MaxFiles < 1 {
		cfg.MaxFiles = DefaultMaxFiles
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	s := &FileSink{
		dir:      cfg.Dir,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
	}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) activePath() string {
	return filepath.Join(s.dir, activeLogName)
}

func (s *FileSink) rotatedPath(index int) string {
	return fmt.Sprintf("%s.%d", s.activePath(), index)
}

func (s *FileSink) openLocked() error {
	file, err := os.OpenFile(s.activePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}
	s.file = file
	s.size = info.Size()
	return nil
}

// rotateLocked shifts every rotated file up one index and moves the
// active file to index 1. The file at index maxFiles-1 is dropped.
func (s *FileSink) rotateLocked() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	oldest := s.rotatedPath(s.maxFiles - 1)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove oldest audit log: %w", err)
	}
	for i := s.maxFiles - 2; i >= 1; i-- {
		from := s.rotatedPath(i)
		if _, err := os.Stat(from); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(from, s.rotatedPath(i+1)); err != nil {
			return fmt.Errorf("failed to shift audit log %s: %w", from, err)
		}
	}
	if s.maxFiles > 1 {
		if err := os.Rename(s.activePath(), s.rotatedPath(1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	} else {
		if err := os.Remove(s.activePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to truncate audit log: %w", err)
		}
	}

	return s.openLocked()
}

// Record appends the entry as a single JSON line, rotating first when
// the write would push the active file past MaxSize.
func (s *FileSink) Record(ctx context.Context, entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := s.openLocked(); err != nil {
			return err
		}
	}
	if s.size+int64(len(line)) > s.maxSize {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := s.file.Write(line)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Query scans the active log file only; rotated files are retained for
// offline review, not queried. Malformed lines are skipped. Results are
// returned newest first, capped at the filter limit.
func (s *FileSink) Query(filter QueryFilter) ([]*Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	s.mu.Lock()
	path := s.activePath()
	s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var matched []*Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.Matches(&entry) {
			matched = append(matched, &entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	// Entries are appended chronologically; reverse for newest first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Close closes the active log file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
