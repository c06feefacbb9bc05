// Package runner orchestrates case evaluations: per-run directories, the
// staged reader/checks/decision/viz pipeline, artifact writing, trace
// emission and the global run index. Cases in a batch share nothing but the
// append-only sinks.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"abfactory/internal/casefile"
	"abfactory/internal/engine"
	"abfactory/internal/logging"
	"abfactory/internal/policy"
	"abfactory/internal/report"
	"abfactory/internal/runindex"
	"abfactory/internal/trace"
)

// Config configures a Runner.
type Config struct {
	CasesRoot string
	RunsDir   string
	Policy    *policy.Policy
	Parallel  int       // max concurrent cases in RunAll; <=0 means 4
	KeepRuns  int       // prune old run dirs down to this count; 0 keeps all
	Quiet     bool      // suppress the per-case stdout line
	Out       io.Writer // defaults to os.Stdout
}

// Result is the outcome of one case run. Err is set when the case failed;
// a failed case never aborts a batch.
type Result struct {
	CaseID  string
	RunID   string
	RunDir  string
	Outcome *engine.Outcome
	Err     error
}

// Runner runs cases under one engine and one run index.
type Runner struct {
	cfg   Config
	eng   *engine.Engine
	index *runindex.Index
	log   *slog.Logger

	// Guards cfg.Out: RunAll's goroutines share the writer the same way
	// they share the append-only sinks.
	outMu sync.Mutex
}

// New builds the engine from cfg.Policy, opens the run index and applies the
// keep-runs pruning. Policy misconfiguration surfaces here, before any case
// is touched.
func New(cfg Config) (*Runner, error) {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	eng, err := engine.New(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if cfg.KeepRuns > 0 {
		if err := pruneRuns(cfg.RunsDir, cfg.KeepRuns); err != nil {
			return nil, err
		}
	}
	index, err := runindex.Open(cfg.RunsDir)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, eng: eng, index: index, log: logging.New("runner")}, nil
}

// Close releases the run index.
func (r *Runner) Close() error { return r.index.Close() }

// RunAll evaluates every discovered case with bounded parallelism. Per-case
// failures are recorded in the results, not returned; only discovery and
// setup errors abort the batch.
func (r *Runner) RunAll(ctx context.Context) ([]Result, error) {
	dirs, err := casefile.Discover(r.cfg.CasesRoot)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("runner: no cases found under %s", r.cfg.CasesRoot)
	}

	results := make([]Result, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallel)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.RunCase(dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunCase evaluates one case directory end to end: fresh run id and run dir,
// staged pipeline, artifacts, timeline and index entry.
func (r *Runner) RunCase(dir string) Result {
	runID := uuid.NewString()
	res := Result{CaseID: filepath.Base(dir), RunID: runID}

	runDir := filepath.Join(r.cfg.RunsDir, runID)
	artifacts := filepath.Join(runDir, "artifacts")
	if err := os.MkdirAll(artifacts, 0o755); err != nil {
		res.Err = fmt.Errorf("runner: create run dir: %w", err)
		return res
	}
	res.RunDir = runDir

	writer, err := trace.NewWriter(filepath.Join(runDir, "traces.jsonl"), runID)
	if err != nil {
		res.Err = err
		return res
	}
	defer writer.Close()
	collector := trace.NewCollector(runID)
	tr := trace.Multi(writer, collector)

	outcome, err := r.pipeline(runID, dir, runDir, artifacts, tr)
	if outcome != nil {
		res.CaseID = outcome.CaseID
	}
	res.Outcome = outcome
	res.Err = err

	r.writeArtifact(runDir, "timeline.md", report.Timeline(runID, collector.Events()))
	r.appendIndex(res, runDir)
	r.printLine(res)
	return res
}

// pipeline runs the reader, checks, decision and viz stages, writing each
// stage's artifact as it completes.
func (r *Runner) pipeline(runID, dir, runDir, artifacts string, tr trace.Emitter) (*engine.Outcome, error) {
	caseID := filepath.Base(dir)

	tr.Emit(trace.Event{CaseID: caseID, Component: "reader", Step: trace.StepStart,
		Name: "case_loading", Message: dir})
	b, err := casefile.LoadBundle(dir)
	if err != nil {
		emitStageError(tr, caseID, "reader", err)
		return nil, err
	}
	caseID = b.Contract.CaseID
	r.writeArtifact(artifacts, "reader_summary.md", report.ReaderSummary(b))
	tr.Emit(trace.Event{CaseID: caseID, Component: "reader", Step: trace.StepDone,
		Name: "case_loaded", Message: fmt.Sprintf("%d rows", len(b.Rows)),
		Payload: map[string]any{"rows": len(b.Rows), "segments": b.Contract.Segments}})

	tr.Emit(trace.Event{CaseID: caseID, Component: "checks", Step: trace.StepStart, Name: "checks_running"})
	checks := casefile.RunChecks(b)
	r.writeArtifact(artifacts, "stats_checks.md", report.ChecksReport(checks))
	tr.Emit(trace.Event{CaseID: caseID, Component: "checks", Step: trace.StepDone,
		Name: "checks_done", Payload: map[string]any{"all_pass": casefile.AllPass(checks)}})

	outcome, err := r.eng.Evaluate(b, tr)
	if err != nil {
		return nil, err
	}
	doc, err := outcome.MarshalDocument()
	if err != nil {
		emitStageError(tr, caseID, "decision", err)
		return outcome, err
	}
	r.writeArtifact(artifacts, "decision.json", string(doc))
	r.writeArtifact(artifacts, "decision.md", report.DecisionMarkdown(outcome))

	tr.Emit(trace.Event{CaseID: caseID, Component: "viz", Step: trace.StepStart, Name: "viz_rendering"})
	r.writeArtifact(artifacts, "viz.md", report.Viz(b))
	tr.Emit(trace.Event{CaseID: caseID, Component: "viz", Step: trace.StepDone, Name: "viz_rendered"})

	r.writeArtifact(runDir, "final_report.md", report.Final(runID, b, outcome, checks))
	return outcome, nil
}

func emitStageError(tr trace.Emitter, caseID, component string, err error) {
	tr.Emit(trace.Event{
		CaseID:    caseID,
		Component: component,
		Step:      trace.StepError,
		Name:      component + "_failed",
		Severity:  trace.SeverityError,
		Message:   err.Error(),
		Payload:   map[string]any{"kind": engine.ErrorKind(err)},
	})
}

// writeArtifact logs write failures instead of failing the case; artifacts
// are derived output, the decision already stands.
func (r *Runner) writeArtifact(dir, name, content string) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.log.Warn("write artifact", "path", path, "err", err)
	}
}

func (r *Runner) appendIndex(res Result, runDir string) {
	entry := runindex.Entry{RunID: res.RunID, CaseID: res.CaseID, RunDir: runDir}
	if res.Outcome != nil {
		entry.Decision = string(res.Outcome.Decision)
		entry.Confidence = res.Outcome.Confidence
		entry.Reasons = res.Outcome.ReasonStrings()
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
		entry.ErrorKind = engine.ErrorKind(res.Err)
	}
	if err := r.index.Append(entry); err != nil {
		r.log.Warn("append run index", "case", res.CaseID, "err", err)
	}
}

func (r *Runner) printLine(res Result) {
	if r.cfg.Quiet {
		return
	}
	r.outMu.Lock()
	defer r.outMu.Unlock()
	if res.Err != nil {
		fmt.Fprintf(r.cfg.Out, "%-24s ERROR (%s): %v\n", res.CaseID, engine.ErrorKind(res.Err), res.Err)
		return
	}
	fmt.Fprintf(r.cfg.Out, "%-24s %-12s confidence=%.4f reasons=%v\n",
		res.CaseID, res.Outcome.Decision, res.Outcome.Confidence, res.Outcome.ReasonStrings())
}

// pruneRuns removes the oldest run directories so at most keep remain.
// index.jsonl is never pruned.
func pruneRuns(runsDir string, keep int) error {
	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("runner: read runs dir %s: %w", runsDir, err)
	}
	type dirInfo struct {
		name string
		mod  int64
	}
	var dirs []dirInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirInfo{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	if len(dirs) <= keep {
		return nil
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mod < dirs[j].mod })
	for _, d := range dirs[:len(dirs)-keep] {
		if err := os.RemoveAll(filepath.Join(runsDir, d.name)); err != nil {
			return fmt.Errorf("runner: prune run %s: %w", d.name, err)
		}
	}
	return nil
}
