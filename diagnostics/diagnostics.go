// Package diagnostics is the best-effort sink for debugging artifacts:
// unclassified ticket fragments and raw page snapshots from zero-result
// loads. Nothing here may fail a run; write errors are logged and
// dropped.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"showtime-scraper/models"
)

// Sink writes diagnostics under a base directory. A nil Sink or an
// empty directory disables all output.
type Sink struct {
	dir string

	mu sync.Mutex
}

func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

// LogFragment appends an unclassified fragment to fragments.jsonl.
func (s *Sink) LogFragment(f models.UnclassifiedFragment) {
	if s == nil || s.dir == "" {
		return
	}
	line, err := json.Marshal(f)
	if err != nil {
		slog.Debug("skip unclassified fragment", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		slog.Debug("diagnostics dir unavailable", "error", err)
		return
	}
	path := filepath.Join(s.dir, "fragments.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Debug("open fragment log failed", "error", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		slog.Debug("write fragment failed", "error", err)
	}
}

// SaveSnapshot persists the raw markup of a page that loaded fine but
// yielded zero showings, for offline selector debugging.
func (s *Sink) SaveSnapshot(theaterName, date, html string) {
	if s == nil || s.dir == "" || html == "" {
		return
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		slog.Debug("diagnostics dir unavailable", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s_%d.html", slugify(theaterName), date, time.Now().Unix())
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(html), 0o644); err != nil {
		slog.Debug("write snapshot failed", "theater", theaterName, "error", err)
		return
	}
	slog.Info("saved zero-result page snapshot", "theater", theaterName, "file", name)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
