/*
loader.go - Category file loading and row assembly

PURPOSE:
  Reads every delimited file in a category's folder and concatenates the
  surviving rows into one canonical table. Failure is contained at the
  smallest sensible scope: an unreadable file is logged and skipped, a row
  with an unparseable date is dropped, and a category whose folder is
  missing simply yields an empty table. Downstream stages treat an empty
  table as a valid input, so nothing here is fatal.

FILE ATOMICITY:
  A file either contributes all of its parseable rows or none. Rows are
  buffered per file and committed only after the file reads to the end,
  so a half-corrupt file cannot leave a partial contribution behind.

UNMATCHED COLUMNS:
  A header the mapping does not recognize is classified by its content:
  text columns survive as grouping attributes on the rows (a gender or
  age-band dimension the schema mapping predates), while numeric columns
  are dropped with a warning since an unlabelled count cannot be
  aggregated meaningfully.
*/
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// LOADER
// =============================================================================

// Loader reads one dataset directory. The zero value is not usable; build
// with NewLoader and override fields before the first LoadCategory call.
type Loader struct {
	Dir     string
	Mapping *Mapping
	Regions *Canonicalizer
	Logger  *log.Logger
}

func NewLoader(dir string) *Loader {
	return &Loader{
		Dir:     dir,
		Mapping: DefaultMapping(),
		Regions: NewCanonicalizer(PolicyPassthrough),
		Logger:  log.Default(),
	}
}

// LoadStats describes what one category load saw. The pipeline runner
// turns these into log lines and metrics; nothing in here is an error.
type LoadStats struct {
	Category           Category
	FilesRead          int
	FilesSkipped       int
	RowsRead           int
	RowsKept           int
	RowsDroppedBadDate int
	RowsQuarantined    int
	UnmappedColumns    []string
	AttributeColumns   []string
	UnrecognizedStates map[string]int
	QuarantinedStates  map[string]int
}

// LoadCategory produces the category's canonical table. The table is
// empty (never nil) when the folder is absent or every file failed.
func (l *Loader) LoadCategory(cat Category) (*table.Table, *LoadStats) {
	stats := &LoadStats{
		Category:           cat,
		UnrecognizedStates: make(map[string]int),
		QuarantinedStates:  make(map[string]int),
	}
	tbl := table.New(0)

	files := l.categoryFiles(cat)
	if len(files) == 0 {
		l.logf("warning: no files for category %q under %s", cat, l.Dir)
		return tbl, stats
	}

	seenUnmapped := make(map[string]struct{})
	seenAttrs := make(map[string]struct{})
	for _, f := range files {
		data, err := l.readFile(f, cat)
		if err != nil {
			l.logf("error reading %s: %v", f, err)
			stats.FilesSkipped++
			continue
		}
		stats.FilesRead++
		stats.RowsRead += data.read
		stats.RowsKept += len(data.rows)
		stats.RowsDroppedBadDate += data.droppedDates
		stats.RowsQuarantined += data.quarantined
		for v, n := range data.unrecognized {
			stats.UnrecognizedStates[v] += n
		}
		for v, n := range data.quarantinedVals {
			stats.QuarantinedStates[v] += n
		}
		for _, col := range data.unmapped {
			if _, seen := seenUnmapped[col]; !seen {
				seenUnmapped[col] = struct{}{}
				l.logf("dropping unmapped numeric column %q (category %s, schema v%d)", col, cat, l.Mapping.Version)
			}
		}
		for _, col := range data.attrs {
			if _, seen := seenAttrs[col]; !seen {
				seenAttrs[col] = struct{}{}
				l.logf("retaining unmapped column %q as a grouping attribute (category %s)", col, cat)
			}
		}

		tbl.Keys = tbl.Keys.Union(data.keys)
		for _, col := range data.cols {
			tbl.AddColumn(col)
		}
		for _, col := range data.attrs {
			tbl.AddAttr(col)
		}
		for _, r := range data.rows {
			tbl.Append(r)
		}
	}

	stats.UnmappedColumns = sortedKeys(seenUnmapped)
	stats.AttributeColumns = sortedKeys(seenAttrs)
	if stats.FilesRead > 0 && len(tbl.Columns) == 0 {
		l.logf("warning: category %s contributed no recognized count columns (schema v%d)", cat, l.Mapping.Version)
	}
	return tbl, stats
}

// categoryFiles resolves the category's folder(s) and lists their
// delimited files, sorted for deterministic load order. Folders match
// either the bare category name or any "*_<category>" dump name.
func (l *Loader) categoryFiles(cat Category) []string {
	var dirs []string
	if matches, err := filepath.Glob(filepath.Join(l.Dir, "*_"+string(cat))); err == nil {
		dirs = append(dirs, matches...)
	}
	exact := filepath.Join(l.Dir, string(cat))
	if info, err := os.Stat(exact); err == nil && info.IsDir() {
		dirs = append(dirs, exact)
	}

	var files []string
	for _, d := range dirs {
		for _, pattern := range []string{"*.csv", "*.tsv"} {
			if matches, err := filepath.Glob(filepath.Join(d, pattern)); err == nil {
				files = append(files, matches...)
			}
		}
	}
	sort.Strings(files)
	return files
}

// =============================================================================
// FILE READING
// =============================================================================

const (
	targetDrop = iota
	targetKey
	targetValue
	targetAttr
)

// colTarget is the resolved destination of one header position.
type colTarget struct {
	kind int
	key  table.KeyField
	col  string
}

// fileData is one file's buffered contribution. unmapped holds the
// headers dropped as numeric; attrs the ones retained as grouping
// attributes.
type fileData struct {
	keys            table.KeySet
	cols            []string
	attrs           []string
	rows            []table.Row
	read            int
	droppedDates    int
	quarantined     int
	unmapped        []string
	unrecognized    map[string]int
	quarantinedVals map[string]int
}

func (l *Loader) readFile(path string, cat Category) (*fileData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sniffDelimiter(path)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, err
	}

	data := &fileData{
		unrecognized:    make(map[string]int),
		quarantinedVals: make(map[string]int),
	}

	// Unmatched headers start as provisional attributes; once the whole
	// file is read, the ones whose cells were all numeric are demoted to
	// dropped columns.
	numericOnly := make(map[string]bool)
	plan := make([]colTarget, len(header))
	for i, raw := range header {
		h := normalizeHeader(raw)
		if field, ok := l.Mapping.ResolveKey(h); ok {
			kf, known := keyFieldByName(field)
			if known {
				plan[i] = colTarget{kind: targetKey, key: kf}
				data.keys = data.keys.With(kf)
				continue
			}
		}
		if bucket, ok := l.Mapping.ResolveBucket(cat, h); ok {
			col := cat.Column(bucket)
			plan[i] = colTarget{kind: targetValue, col: col}
			if !containsString(data.cols, col) {
				data.cols = append(data.cols, col)
			}
			continue
		}
		plan[i] = colTarget{kind: targetAttr, col: h}
		if !containsString(data.attrs, h) {
			data.attrs = append(data.attrs, h)
			numericOnly[h] = true
		}
	}

	hasDate := data.keys.Has(table.KeyDate)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data.read++

		var row table.Row
		counts := make(map[string]int64, len(data.cols))
		badDate := false
		for i, target := range plan {
			if i >= len(rec) {
				break
			}
			cell := rec[i]
			switch target.kind {
			case targetValue:
				counts[target.col] += ParseCount(cell)
			case targetAttr:
				v := strings.TrimSpace(cell)
				if v != "" && !isNumeric(v) {
					numericOnly[target.col] = false
				}
				if row.Attrs == nil {
					row.Attrs = make(map[string]string, len(data.attrs))
				}
				row.Attrs[target.col] = v
			case targetKey:
				switch target.key {
				case table.KeyDate:
					d, err := ParseDate(cell)
					if err != nil {
						badDate = true
					} else {
						row.Date = d
					}
				case table.KeyState:
					row.State = cell
				case table.KeyDistrict:
					row.District = l.Regions.Clean(cell)
				case table.KeyPincode:
					row.Pincode = strings.TrimSpace(cell)
				}
			}
		}
		if hasDate && (badDate || row.Date.IsZero()) {
			data.droppedDates++
			continue
		}

		if data.keys.Has(table.KeyState) {
			name, ok := l.Regions.Canonicalize(row.State)
			if !ok {
				if l.Regions.Policy() == PolicyQuarantine {
					data.quarantined++
					data.quarantinedVals[name]++
					continue
				}
				data.unrecognized[name]++
			}
			row.State = name
		}

		row.Counts = counts
		data.rows = append(data.rows, row)
	}

	kept := data.attrs[:0]
	for _, a := range data.attrs {
		if numericOnly[a] {
			data.unmapped = append(data.unmapped, a)
			for i := range data.rows {
				delete(data.rows[i].Attrs, a)
			}
			continue
		}
		kept = append(kept, a)
	}
	data.attrs = kept
	return data, nil
}

// sniffDelimiter picks the field separator from the file name; the dumps
// are comma-separated with the odd .tsv export.
func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

func keyFieldByName(name string) (table.KeyField, bool) {
	switch name {
	case "date":
		return table.KeyDate, true
	case "state":
		return table.KeyState, true
	case "district":
		return table.KeyDistrict, true
	case "pincode":
		return table.KeyPincode, true
	}
	return 0, false
}

// isNumeric reports whether a cell reads as a number, commas and
// surrounding space ignored, matching what ParseCount accepts.
func isNumeric(cell string) bool {
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *Loader) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}
