/*
aggregate.go - Category aggregation

PURPOSE:
  Collapses a canonical category table from raw-event granularity to one
  row per grouping key, summing the category's count columns. This is the
  throughput-critical reduction: everything downstream is bounded by
  (unique dates) x (unique postal areas) instead of tens of millions of
  raw events.
*/
package pipeline

import (
	"github.com/haldar/aadhaar-sentinel/table"
)

// Aggregate groups t by the key fields and attributes it actually carries
// and sums every column containing prefix. A table with no matching value
// columns aggregates to an empty table; the category simply contributes
// nothing.
func Aggregate(t *table.Table, prefix string) *table.Table {
	if t == nil {
		return table.New(0)
	}
	valueCols := t.ColumnsContaining(prefix)
	if len(valueCols) == 0 {
		return table.New(t.Keys)
	}

	out := table.New(t.Keys, valueCols...)
	out.Attrs = append([]string(nil), t.Attrs...)
	index := make(map[table.GroupKey]int, len(t.Rows))
	for _, r := range t.Rows {
		k := t.Key(r)
		i, ok := index[k]
		if !ok {
			i = len(out.Rows)
			index[k] = i
			out.Rows = append(out.Rows, table.Row{
				Date:     k.Date,
				State:    k.State,
				District: k.District,
				Pincode:  k.Pincode,
				Counts:   make(map[string]int64, len(valueCols)),
				Attrs:    groupAttrs(out.Attrs, r),
			})
		}
		for _, c := range valueCols {
			if v, present := r.Counts[c]; present {
				out.Rows[i].Counts[c] += v
			}
		}
	}
	out.SortByKey()
	return out
}

// groupAttrs copies the attribute values that are part of the grouping
// identity. Rows in the same group carry identical values, so the first
// row seen supplies them.
func groupAttrs(names []string, r table.Row) map[string]string {
	if len(names) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(names))
	for _, n := range names {
		attrs[n] = r.Attrs[n]
	}
	return attrs
}
