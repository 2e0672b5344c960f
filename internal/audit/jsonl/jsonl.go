package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/applockd/applockd/pkg/types"
)

// Sink appends one JSON record per line with size-based rotation.
type Sink struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
}

func New(path string, maxSizeMB int, maxBackups int) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl path is empty")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open jsonl: %w", err)
	}

	return &Sink{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		file:       f,
	}, nil
}

func (s *Sink) Record(_ context.Context, rec types.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotateIfNeededLocked(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.file.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	return nil
}

func (s *Sink) Query(_ context.Context, _ types.RecordQuery) ([]types.AttemptRecord, error) {
	return nil, fmt.Errorf("jsonl sink does not support queries")
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (s *Sink) rotateIfNeededLocked() error {
	if s.file == nil {
		return fmt.Errorf("jsonl file not open")
	}
	st, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl: %w", err)
	}
	if st.Size() < s.maxBytes {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close for rotate: %w", err)
	}

	for i := s.maxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", s.path, i)
		to := fmt.Sprintf("%s.%d", s.path, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	_ = os.Rename(s.path, fmt.Sprintf("%s.1", s.path))

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("reopen jsonl: %w", err)
	}
	s.file = f
	return nil
}
