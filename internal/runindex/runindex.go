// Package runindex maintains runs/index.jsonl, the global append-only ledger
// of case runs. Like the trace sink, the index is write-only in-process:
// each entry is one JSON line written in a single call on an O_APPEND file.
package runindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one completed (or failed) case run.
type Entry struct {
	RunID      string   `json:"run_id"`
	TS         string   `json:"ts"`
	CaseID     string   `json:"case_id"`
	Decision   string   `json:"decision,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	RunDir     string   `json:"run_dir"`
}

// Index appends entries to <runsDir>/index.jsonl.
type Index struct {
	mu sync.Mutex
	f  *os.File
}

// Open creates runsDir if needed and opens the index for appending.
func Open(runsDir string) (*Index, error) {
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("runindex: create %s: %w", runsDir, err)
	}
	path := filepath.Join(runsDir, "index.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runindex: open %s: %w", path, err)
	}
	return &Index{f: f}, nil
}

// Append writes one entry as a single JSON line.
func (ix *Index) Append(e Entry) error {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("runindex: marshal entry for %s: %w", e.CaseID, err)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, err := ix.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("runindex: append entry for %s: %w", e.CaseID, err)
	}
	return nil
}

// Close closes the underlying file.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.f.Close()
}
