// Package generate produces labeled synthetic case corpora. Each generated
// case is internally consistent with its archetype, so the decision engine
// classifies it exactly as its truth label says; a generated corpus must
// self-check at 100% accuracy.
package generate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"abfactory/internal/casefile"
)

// Options configures a corpus generation.
type Options struct {
	Root  string // corpus root; cases land under Root/cases/
	Count int
	Seed  int64 // rng seed; the same (seed, count) yields the same corpus
}

// DefaultSeed keeps repeated invocations reproducible unless overridden.
const DefaultSeed = 42

// Archetype mix, in fractions of the corpus. The remainder after flooring
// goes to clean uplift.
const (
	shareUplift    = 0.30
	shareGuardrail = 0.20
	shareSmall     = 0.20
	shareConflict  = 0.15
	shareReversal  = 0.15
)

type kind int

const (
	kindUplift kind = iota
	kindGuardrail
	kindSmall
	kindConflict
	kindReversal
)

var slugs = map[kind]string{
	kindUplift:    "clean_uplift",
	kindGuardrail: "guardrail_breach",
	kindSmall:     "practically_small",
	kindConflict:  "segment_conflict",
	kindReversal:  "long_term_reversal",
}

// Run generates opts.Count cases and returns the created case directories in
// order.
func Run(opts Options) ([]string, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("generate: count must be positive, got %d", opts.Count)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	g := &generator{rng: rand.New(rand.NewSource(seed))}

	casesDir := filepath.Join(opts.Root, "cases")
	if err := os.MkdirAll(casesDir, 0o755); err != nil {
		return nil, fmt.Errorf("generate: create %s: %w", casesDir, err)
	}

	schedule := schedule(opts.Count)
	g.rng.Shuffle(len(schedule), func(i, j int) {
		schedule[i], schedule[j] = schedule[j], schedule[i]
	})

	dirs := make([]string, 0, opts.Count)
	for i, k := range schedule {
		caseID := fmt.Sprintf("case_%03d_%s", i+1, slugs[k])
		dir := filepath.Join(casesDir, caseID)
		if err := g.emit(dir, caseID, k); err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// schedule lays out the archetype counts before shuffling.
func schedule(n int) []kind {
	counts := map[kind]int{
		kindGuardrail: int(float64(n) * shareGuardrail),
		kindSmall:     int(float64(n) * shareSmall),
		kindConflict:  int(float64(n) * shareConflict),
		kindReversal:  int(float64(n) * shareReversal),
	}
	used := counts[kindGuardrail] + counts[kindSmall] + counts[kindConflict] + counts[kindReversal]
	counts[kindUplift] = n - used

	out := make([]kind, 0, n)
	for _, k := range []kind{kindUplift, kindGuardrail, kindSmall, kindConflict, kindReversal} {
		for i := 0; i < counts[k]; i++ {
			out = append(out, k)
		}
	}
	return out
}

type generator struct {
	rng *rand.Rand
}

func (g *generator) between(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *generator) intBetween(lo, hi int64) int64 {
	return lo + g.rng.Int63n(hi-lo+1)
}

func (g *generator) emit(dir, caseID string, k kind) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("generate: create %s: %w", dir, err)
	}
	c := g.build(caseID, k)
	if err := writeJSON(filepath.Join(dir, "contract.json"), c.contract); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "truth.json"), c.truth); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, "data.csv"), c.rows)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("generate: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("generate: write %s: %w", path, err)
	}
	return nil
}

// csvHeader fixes the data schema every generated case shares.
var csvHeader = []string{
	"case_id", "segment", "variant", "n_users",
	"revenue", "cpm", "fillrate", "ctr", "shows",
	"revenue_effect_relative", "revenue_p_value",
	"ctr_effect_relative", "ctr_p_value",
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("generate: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("generate: write %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("generate: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("generate: flush %s: %w", path, err)
	}
	return nil
}

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// builtCase is one generated case before writing.
type builtCase struct {
	contract *casefile.Contract
	truth    *casefile.Truth
	rows     [][]string
}

// baseline holds the control arm's absolute figures for one segment.
type baseline struct {
	nUsers   int64
	revenue  float64
	cpm      float64
	fillrate float64
	ctr      float64
	shows    int64
}

func (g *generator) baseline() baseline {
	n := g.intBetween(50_000, 150_000)
	return baseline{
		nUsers:   n,
		revenue:  g.between(100_000, 500_000),
		cpm:      g.between(1.0, 5.0),
		fillrate: g.between(0.5, 0.9),
		ctr:      g.between(0.01, 0.05),
		shows:    n * g.intBetween(5, 15),
	}
}

// arm renders one CSV row. Effect and p-value cells are empty on control
// rows; absolute treatment values stay consistent with the stated effects.
type arm struct {
	caseID   string
	segment  string
	variant  string
	base     baseline
	revEff   *float64 // nil on control rows
	revP     *float64
	ctrEff   *float64
	ctrP     *float64
	fillMult float64 // treatment fillrate multiplier; 1 on control
}

func (a arm) row() []string {
	rev, ctr, fill := a.base.revenue, a.base.ctr, a.base.fillrate
	if a.revEff != nil {
		rev *= 1 + *a.revEff
	}
	if a.ctrEff != nil {
		ctr *= 1 + *a.ctrEff
	}
	if a.fillMult != 0 {
		fill *= a.fillMult
	}
	cell := func(v *float64) string {
		if v == nil {
			return ""
		}
		return f6(*v)
	}
	return []string{
		a.caseID, a.segment, a.variant,
		strconv.FormatInt(a.base.nUsers, 10),
		f2(rev), f6(a.base.cpm), f6(fill), f6(ctr),
		strconv.FormatInt(a.base.shows, 10),
		cell(a.revEff), cell(a.revP),
		cell(a.ctrEff), cell(a.ctrP),
	}
}

func (g *generator) pair(caseID, segment string, revEff, revP, ctrEff, ctrP float64) [][]string {
	base := g.baseline()
	control := arm{caseID: caseID, segment: segment, variant: casefile.ControlVariant, base: base, fillMult: 1}
	treatBase := base
	treatBase.nUsers = base.nUsers + g.intBetween(-2_000, 2_000)
	treatment := arm{
		caseID:   caseID,
		segment:  segment,
		variant:  "treatment",
		base:     treatBase,
		revEff:   &revEff,
		revP:     &revP,
		ctrEff:   &ctrEff,
		ctrP:     &ctrP,
		fillMult: 1 + g.between(-0.005, 0.005),
	}
	return [][]string{control.row(), treatment.row()}
}
