package casefile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	contractFile = "contract.json"
	truthFile    = "truth.json"
	dataFile     = "data.csv"
)

const (
	effectSuffix = "_effect_relative"
	pValueSuffix = "_p_value"
)

// Discover finds case directories under root, sorted by name. It accepts
// either root/cases/ or a root that directly contains case directories (any
// directory holding a contract.json counts).
func Discover(root string) ([]string, error) {
	search := root
	if st, err := os.Stat(filepath.Join(root, "cases")); err == nil && st.IsDir() {
		search = filepath.Join(root, "cases")
	}
	entries, err := os.ReadDir(search)
	if err != nil {
		return nil, fmt.Errorf("casefile: discover in %s: %w", search, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(search, e.Name())
		if _, err := os.Stat(filepath.Join(dir, contractFile)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Resolve maps a case spec to its directory. The spec may be the directory
// name, a bare number ("7" matches "case_007_*"), or a "case_" prefix.
func Resolve(root, spec string) (string, error) {
	dirs, err := Discover(root)
	if err != nil {
		return "", err
	}
	isNum := spec != "" && strings.IndexFunc(spec, func(r rune) bool { return r < '0' || r > '9' }) == -1
	padded := spec
	for len(padded) < 3 {
		padded = "0" + padded
	}
	for _, dir := range dirs {
		name := filepath.Base(dir)
		switch {
		case name == spec:
			return dir, nil
		case isNum && strings.Contains(name, "case_"+padded):
			return dir, nil
		case strings.HasPrefix(spec, "case_") && strings.HasPrefix(name, spec):
			return dir, nil
		}
	}
	return "", fmt.Errorf("casefile: case %q not found under %s", spec, root)
}

// LoadBundle reads and validates one case directory. truth.json is optional;
// contract.json and data.csv are not.
func LoadBundle(dir string) (*Bundle, error) {
	contract := &Contract{}
	if err := readJSON(filepath.Join(dir, contractFile), contract); err != nil {
		return nil, err
	}

	b := &Bundle{Dir: dir, Contract: contract}

	truthPath := filepath.Join(dir, truthFile)
	if _, err := os.Stat(truthPath); err == nil {
		truth := &Truth{}
		if err := readJSON(truthPath, truth); err != nil {
			return nil, err
		}
		b.Truth = truth
	}

	rows, metrics, err := readRows(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, err
	}
	b.Rows = rows
	b.HeaderMetrics = metrics

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return schemaErrorf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return schemaErrorf("parse %s: %v", path, err)
	}
	return nil
}

// readRows parses data.csv. Besides the fixed columns (case_id, segment,
// variant, n_users), every column is either an absolute metric value, a
// "<metric>_effect_relative" or a "<metric>_p_value". Empty cells mean the
// figure was not supplied.
func readRows(path string) ([]MetricRow, map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, schemaErrorf("read %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, schemaErrorf("parse %s: %v", path, err)
	}
	if len(records) < 2 {
		return nil, nil, schemaErrorf("%s: need a header and at least one row", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"case_id", "segment", "variant", "n_users"} {
		if _, ok := col[required]; !ok {
			return nil, nil, schemaErrorf("%s: missing required column %q", path, required)
		}
	}

	metrics := map[string]bool{}
	for _, h := range header {
		switch h {
		case "case_id", "segment", "variant", "n_users":
		default:
			name := strings.TrimSuffix(strings.TrimSuffix(h, effectSuffix), pValueSuffix)
			metrics[name] = true
		}
	}

	rows := make([]MetricRow, 0, len(records)-1)
	for lineNo, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, nil, schemaErrorf("%s: row %d has %d fields, header has %d", path, lineNo+2, len(rec), len(header))
		}
		row := MetricRow{
			Segment: rec[col["segment"]],
			Variant: rec[col["variant"]],
			Values:  map[string]float64{},
			Effects: map[string]float64{},
			PValues: map[string]float64{},
		}
		if row.Segment == "" || row.Variant == "" {
			return nil, nil, schemaErrorf("%s: row %d: segment and variant are required", path, lineNo+2)
		}
		if n, err := strconv.ParseInt(rec[col["n_users"]], 10, 64); err == nil {
			row.NUsers = n
		}
		for i, h := range header {
			cell := strings.TrimSpace(rec[i])
			if cell == "" {
				continue
			}
			switch h {
			case "case_id", "segment", "variant", "n_users":
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, schemaErrorf("%s: row %d: column %q: %v", path, lineNo+2, h, err)
			}
			switch {
			case strings.HasSuffix(h, effectSuffix):
				row.Effects[strings.TrimSuffix(h, effectSuffix)] = v
			case strings.HasSuffix(h, pValueSuffix):
				row.PValues[strings.TrimSuffix(h, pValueSuffix)] = v
			default:
				row.Values[h] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, metrics, nil
}
