/*
merge.go - Outer-join merge engine

PURPOSE:
  Combines the aggregated category tables into the single analysis table
  the dashboard and the anomaly engine consume. The join is a full outer
  join: a region reporting only biometric updates still appears, with the
  other categories reading zero through the absent-column convention.

KEY CONCEPTS IN THIS FILE (merge.go):
  - Join keys: the intersection of the key fields (and grouping
    attributes) both sides carry, so a pincode-level table still aligns
    with a district-level one
  - Output keys: the union, preserving the finest granularity seen
  - Totals: per-category total columns derived after the join
*/
package pipeline

import (
	"strings"

	"github.com/haldar/aadhaar-sentinel/dataset"
	"github.com/haldar/aadhaar-sentinel/table"
)

// Merge outer-joins the given tables left to right and appends the
// per-category total columns. Empty tables are skipped, so an absent
// category never erases the others; merging nothing but empty tables
// yields an empty table.
func Merge(tables ...*table.Table) *table.Table {
	var merged *table.Table
	for _, t := range tables {
		if t.Empty() {
			continue
		}
		if merged == nil {
			merged = t
			continue
		}
		merged = outerJoin(merged, t)
	}
	if merged == nil {
		return table.New(table.AllKeys)
	}
	return deriveTotals(merged)
}

// =============================================================================
// OUTER JOIN
// =============================================================================

func outerJoin(a, b *table.Table) *table.Table {
	joinKeys := a.Keys.Intersect(b.Keys)
	joinAttrs := intersectStrings(a.Attrs, b.Attrs)
	cols := append([]string(nil), a.Columns...)
	out := table.New(a.Keys.Union(b.Keys), cols...)
	for _, c := range b.Columns {
		out.AddColumn(c)
	}
	out.Attrs = append([]string(nil), a.Attrs...)
	for _, n := range b.Attrs {
		out.AddAttr(n)
	}

	// Nothing shared means there is nothing to align on; keep both
	// sides whole rather than crossing every row with every other.
	if joinKeys.Empty() && len(joinAttrs) == 0 {
		for i := range a.Rows {
			out.Rows = append(out.Rows, joinedRow(out.Keys, &a.Rows[i], nil, a.Keys, 0))
		}
		for i := range b.Rows {
			out.Rows = append(out.Rows, joinedRow(out.Keys, nil, &b.Rows[i], 0, b.Keys))
		}
		out.SortByKey()
		return out
	}

	index := make(map[table.GroupKey][]int, b.Len())
	for i, rb := range b.Rows {
		k := table.KeyOn(joinKeys, joinAttrs, rb)
		index[k] = append(index[k], i)
	}
	matched := make([]bool, b.Len())

	for i := range a.Rows {
		ra := &a.Rows[i]
		hits := index[table.KeyOn(joinKeys, joinAttrs, *ra)]
		if len(hits) == 0 {
			out.Rows = append(out.Rows, joinedRow(out.Keys, ra, nil, a.Keys, 0))
			continue
		}
		for _, bi := range hits {
			matched[bi] = true
			out.Rows = append(out.Rows, joinedRow(out.Keys, ra, &b.Rows[bi], a.Keys, b.Keys))
		}
	}
	for i := range b.Rows {
		if !matched[i] {
			out.Rows = append(out.Rows, joinedRow(out.Keys, nil, &b.Rows[i], 0, b.Keys))
		}
	}
	out.SortByKey()
	return out
}

// joinedRow builds an output row from one or both sides. Key fields and
// attribute values come from whichever side carries them, left side
// first; counts are summed, which only matters if both sides ever report
// the same column.
func joinedRow(outKeys table.KeySet, ra, rb *table.Row, aKeys, bKeys table.KeySet) table.Row {
	row := table.Row{Counts: make(map[string]int64)}
	for _, f := range outKeys.Fields() {
		switch {
		case ra != nil && aKeys.Has(f):
			copyKeyField(&row, f, ra)
		case rb != nil && bKeys.Has(f):
			copyKeyField(&row, f, rb)
		}
	}
	if ra != nil {
		for c, v := range ra.Counts {
			row.Counts[c] += v
		}
		copyAttrs(&row, ra)
	}
	if rb != nil {
		for c, v := range rb.Counts {
			row.Counts[c] += v
		}
		copyAttrs(&row, rb)
	}
	return row
}

func copyAttrs(dst *table.Row, src *table.Row) {
	for n, v := range src.Attrs {
		if _, set := dst.Attrs[n]; set {
			continue
		}
		if dst.Attrs == nil {
			dst.Attrs = make(map[string]string, len(src.Attrs))
		}
		dst.Attrs[n] = v
	}
}

// intersectStrings keeps the entries of a that also appear in b, in a's
// order.
func intersectStrings(a, b []string) []string {
	var out []string
	for _, s := range a {
		for _, t := range b {
			if s == t {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func copyKeyField(dst *table.Row, f table.KeyField, src *table.Row) {
	switch f {
	case table.KeyDate:
		dst.Date = src.Date
	case table.KeyState:
		dst.State = src.State
	case table.KeyDistrict:
		dst.District = src.District
	case table.KeyPincode:
		dst.Pincode = src.Pincode
	}
}

// =============================================================================
// TOTALS
// =============================================================================

// deriveTotals appends one total column per category, each the row-wise
// sum of that category's count columns. Rows and count maps are copied,
// so the result owns its storage.
func deriveTotals(t *table.Table) *table.Table {
	out := table.New(t.Keys, t.Columns...)
	out.Attrs = append([]string(nil), t.Attrs...)
	type catTotal struct {
		column string
		cols   []string
	}
	var totals []catTotal
	for _, cat := range dataset.Categories() {
		ct := catTotal{
			column: "total_" + strings.TrimSuffix(cat.Prefix(), "_"),
			cols:   t.ColumnsContaining(cat.Prefix()),
		}
		out.AddColumn(ct.column)
		totals = append(totals, ct)
	}

	out.Rows = make([]table.Row, 0, t.Len())
	for _, r := range t.Rows {
		counts := make(map[string]int64, len(r.Counts)+len(totals))
		for c, v := range r.Counts {
			counts[c] = v
		}
		for _, ct := range totals {
			var sum int64
			for _, c := range ct.cols {
				sum += counts[c]
			}
			counts[ct.column] = sum
		}
		r.Counts = counts
		out.Rows = append(out.Rows, r)
	}
	return out
}
