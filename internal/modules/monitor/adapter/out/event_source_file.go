package out

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"appguard/internal/modules/monitor/domain"
)

// FileEventSource reads events from a JSON lines file, one
// {"app_id","kind","at"} object per line. External feeders append to it.
// Each query reads only the bytes appended since the last one and keeps
// parsed events until a later query's window starts after them, so callers
// must not move from backwards. A truncated or replaced file is read again
// from the start.
type FileEventSource struct {
	path string

	mu      sync.Mutex
	info    fs.FileInfo
	offset  int64
	pending []domain.Event
}

func NewFileEventSource(path string) *FileEventSource {
	return &FileEventSource{path: path}
}

func (s *FileEventSource) QueryEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.rewind(nil)
		return nil, nil
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceTransient, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat events file: %v", domain.ErrSourceTransient, err)
	}
	if s.info == nil || !os.SameFile(s.info, info) || info.Size() < s.offset {
		s.rewind(info)
	}
	if err := s.readNew(ctx, file); err != nil {
		return nil, err
	}

	keep := s.pending[:0]
	var out []domain.Event
	for _, ev := range s.pending {
		if ev.At.Before(from) {
			continue
		}
		keep = append(keep, ev)
		if ev.At.Before(to) {
			out = append(out, ev)
		}
	}
	s.pending = keep
	domain.SortEvents(out)
	return out, nil
}

func (s *FileEventSource) rewind(info fs.FileInfo) {
	s.info = info
	s.offset = 0
	s.pending = nil
}

// readNew parses complete lines after the stored offset. A trailing line
// without a newline is left for the next query.
func (s *FileEventSource) readNew(ctx context.Context, file *os.File) error {
	if _, err := file.Seek(s.offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek events file: %v", domain.ErrSourceTransient, err)
	}
	reader := bufio.NewReader(file)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSourceTransient, err)
		}
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read events: %v", domain.ErrSourceTransient, err)
		}
		s.offset += int64(len(line))
		var ev domain.Event
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if ev.AppID == "" || ev.Kind.Validate() != nil {
			continue
		}
		s.pending = append(s.pending, ev)
	}
}

func (s *FileEventSource) Append(_ context.Context, ev domain.Event) error {
	return AppendEvent(s.path, ev)
}

// AppendEvent writes one event line to path.
func AppendEvent(path string, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write events file: %w", err)
	}
	return nil
}
