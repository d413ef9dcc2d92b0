package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal appends one line per delivered recipient:
//
//	from=<sender>,to=<recipient>,datetime=<sent_at>
//
// A Journal with an empty path records nothing.
type Journal struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Record(from string, to string, sentAt time.Time) error {
	if j == nil || j.path == "" {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("could not create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("could not open journal: %w", err)
	}

	line := fmt.Sprintf("from=%s,to=%s,datetime=%s\n", from, to, sentAt.UTC().Format("2006-01-02T15:04:05-07:00"))
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("could not write journal: %w", err)
	}
	return f.Close()
}
