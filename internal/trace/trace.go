// Package trace provides the append-only JSONL event sink shared by every
// pipeline component. Writers only ever append; nothing in the process reads
// the file back — consumers that need the events within the same run attach
// a Collector alongside the file writer.
package trace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Lifecycle steps. Every component emits at least one Start and exactly one
// terminal Done or Error event per unit of work.
const (
	StepStart = "start"
	StepDone  = "done"
	StepError = "error"
)

// Severities.
const (
	SeverityInfo  = "info"
	SeverityError = "error"
)

// tsLayout matches the original trace format: UTC with microseconds.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// Event is one line of the trace log.
type Event struct {
	RunID     string         `json:"run_id"`
	TS        string         `json:"ts"`
	CaseID    string         `json:"case_id"`
	Component string         `json:"component"`
	Step      string         `json:"step"`
	Name      string         `json:"event"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// Emitter receives lifecycle events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(ev Event)
}

// Writer appends events to a JSONL file, one JSON object per line. Each line
// is written with a single write call on a file opened with O_APPEND, so
// concurrent writers interleave whole lines without locking on content.
type Writer struct {
	runID string
	log   *slog.Logger

	mu sync.Mutex
	f  *os.File
}

// NewWriter opens (or creates) the trace file at path for appending.
func NewWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	return &Writer{runID: runID, f: f, log: slog.Default().With(slog.String("component", "trace"))}, nil
}

// Emit fills event defaults and appends one line. Sink failures are logged,
// not propagated: the trace is an observability channel, never a reason to
// fail an evaluation.
func (w *Writer) Emit(ev Event) {
	fill(&ev, w.runID)
	data, err := json.Marshal(ev)
	if err != nil {
		w.log.Warn("marshal trace event", "event", ev.Name, "err", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		w.log.Warn("append trace event", "event", ev.Name, "err", err)
	}
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Collector retains events in memory, in emission order.
type Collector struct {
	runID string

	mu     sync.Mutex
	events []Event
}

// NewCollector returns an empty in-memory collector for the given run.
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID}
}

func (c *Collector) Emit(ev Event) {
	fill(&ev, c.runID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Multi fans one Emit out to several emitters.
func Multi(emitters ...Emitter) Emitter {
	return multi(emitters)
}

type multi []Emitter

func (m multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Discard drops every event. Useful for pure-engine tests.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

func fill(ev *Event, runID string) {
	if ev.RunID == "" {
		ev.RunID = runID
	}
	if ev.TS == "" {
		ev.TS = time.Now().UTC().Format(tsLayout)
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
}
