/*
Package table provides the core tabular structure the analytics pipeline
operates on.

PURPOSE:
  This package contains the domain-agnostic data model shared by every
  pipeline stage. Whether the rows are raw biometric events or a merged
  analysis table, the same structure handles column bookkeeping, grouping
  keys, filtering, and deterministic ordering.

KEY CONCEPTS IN THIS FILE (table.go):
  - KeyField / KeySet: the identity dimensions of a row (date, state,
    district, pincode) and which of them a table actually carries
  - Row: one observation - fixed key fields, optional free-form string
    attributes, and named integer counts
  - Table: an ordered set of count columns over a set of rows
  - GroupKey: the comparable tuple used to align rows across tables;
    attribute values fold into it so attribute-distinct rows never
    collapse under grouping

CONVENTIONS:
  - A count column absent from a row's Counts map reads as zero. Missing
    means "no activity", never "unknown" - callers rely on Value()
    returning 0 rather than materializing zero cells.
  - Dates are UTC civil dates (midnight, time.UTC). Every date in the
    system flows through Date() or the dataset parser, so time.Time
    equality is safe for map keys.
  - Tables are append-only. A Row's Counts map is never mutated after
    Append; derived tables are built fresh, so filtered views can share
    row storage with their parent.

SEE ALSO:
  - dataset/: turns raw CSV files into canonical Tables
  - pipeline/: aggregation and merge over Tables
*/
package table

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// KEY FIELDS - Identity dimensions of a row
// =============================================================================

// KeyField identifies one of the four grouping dimensions.
type KeyField uint8

const (
	KeyDate KeyField = iota
	KeyState
	KeyDistrict
	KeyPincode
	numKeyFields
)

func (f KeyField) String() string {
	switch f {
	case KeyDate:
		return "date"
	case KeyState:
		return "state"
	case KeyDistrict:
		return "district"
	case KeyPincode:
		return "pincode"
	}
	return "unknown"
}

// KeySet is the set of key fields a table carries. Sources differ in
// granularity (some files lack pincode), so presence is tracked per table
// rather than assumed.
type KeySet uint8

// AllKeys is the full (date, state, district, pincode) grouping key.
const AllKeys = KeySet(1<<KeyDate | 1<<KeyState | 1<<KeyDistrict | 1<<KeyPincode)

func NewKeySet(fields ...KeyField) KeySet {
	var s KeySet
	for _, f := range fields {
		s |= 1 << f
	}
	return s
}

func (s KeySet) Has(f KeyField) bool { return s&(1<<f) != 0 }

func (s KeySet) With(f KeyField) KeySet { return s | 1<<f }

// Intersect returns the key fields present in both sets. Joins across
// tables of different granularity align on this.
func (s KeySet) Intersect(o KeySet) KeySet { return s & o }

func (s KeySet) Union(o KeySet) KeySet { return s | o }

func (s KeySet) Empty() bool { return s == 0 }

// Fields lists the present key fields in canonical order.
func (s KeySet) Fields() []KeyField {
	fields := make([]KeyField, 0, numKeyFields)
	for f := KeyField(0); f < numKeyFields; f++ {
		if s.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// =============================================================================
// ROW - One observation
// =============================================================================

// Row is a single observation: the four identity fields (zero-valued when
// the table's KeySet lacks them), named non-negative counts, and optional
// string attributes for extra grouping dimensions the fixed key fields do
// not cover (a source file's gender or age-band column, for example).
type Row struct {
	Date     time.Time
	State    string
	District string
	Pincode  string
	Counts   map[string]int64
	Attrs    map[string]string
}

// Value returns the count for col, zero when absent.
func (r Row) Value(col string) int64 { return r.Counts[col] }

// Attr returns the row's value for a string attribute, empty when absent.
func (r Row) Attr(name string) string { return r.Attrs[name] }

// Field returns the row's value for a key field as a string, dates in
// ISO form.
func (r Row) Field(f KeyField) string {
	switch f {
	case KeyDate:
		return FormatDate(r.Date)
	case KeyState:
		return r.State
	case KeyDistrict:
		return r.District
	case KeyPincode:
		return r.Pincode
	}
	return ""
}

// GroupKey is the comparable identity tuple of a row. Fields outside the
// originating table's KeySet are zero-valued, so keys from tables with
// the same KeySet compare correctly. Extra carries the row's attribute
// values, unit-separator-joined in the table's attribute order; tables
// without attributes leave it empty.
type GroupKey struct {
	Date     time.Time
	State    string
	District string
	Pincode  string
	Extra    string
}

// encodeAttrs folds a row's attribute values into one comparable string.
// The unit separator cannot appear in CSV cell text that survived the
// normalizer, so distinct value tuples encode distinctly.
func encodeAttrs(names []string, r Row) string {
	if len(names) == 0 {
		return ""
	}
	vals := make([]string, len(names))
	for i, n := range names {
		vals[i] = r.Attrs[n]
	}
	return strings.Join(vals, "\x1f")
}

// =============================================================================
// TABLE - Ordered count columns over rows
// =============================================================================

// Table is the unit of exchange between pipeline stages. Columns lists
// the count columns in first-seen order; rows may omit any of them (absent
// reads as zero).
type Table struct {
	Keys    KeySet
	Columns []string
	Attrs   []string
	Rows    []Row
}

// New returns an empty table carrying the given key fields and columns.
func New(keys KeySet, columns ...string) *Table {
	return &Table{Keys: keys, Columns: append([]string(nil), columns...)}
}

func (t *Table) Len() int { return len(t.Rows) }

// Empty reports whether the table has no rows. An empty table is a valid
// pipeline input, not an error condition.
func (t *Table) Empty() bool { return t == nil || len(t.Rows) == 0 }

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn registers a count column, preserving first-seen order.
// Idempotent.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

func (t *Table) HasAttr(name string) bool {
	for _, a := range t.Attrs {
		if a == name {
			return true
		}
	}
	return false
}

// AddAttr registers a string attribute, preserving first-seen order.
// Idempotent.
func (t *Table) AddAttr(name string) {
	if !t.HasAttr(name) {
		t.Attrs = append(t.Attrs, name)
	}
}

// Append adds a row. A nil Counts map is replaced so callers can always
// read through Value.
func (t *Table) Append(r Row) {
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	t.Rows = append(t.Rows, r)
}

// Key projects a row onto the table's key fields and attributes.
func (t *Table) Key(r Row) GroupKey {
	return KeyOn(t.Keys, t.Attrs, r)
}

// KeyOn projects a row onto an explicit key set and attribute list, used
// when joining tables of different granularity.
func KeyOn(keys KeySet, attrs []string, r Row) GroupKey {
	var k GroupKey
	if keys.Has(KeyDate) {
		k.Date = r.Date
	}
	if keys.Has(KeyState) {
		k.State = r.State
	}
	if keys.Has(KeyDistrict) {
		k.District = r.District
	}
	if keys.Has(KeyPincode) {
		k.Pincode = r.Pincode
	}
	k.Extra = encodeAttrs(attrs, r)
	return k
}

// ColumnsContaining returns the count columns whose name contains sub, in
// column order.
func (t *Table) ColumnsContaining(sub string) []string {
	var cols []string
	for _, c := range t.Columns {
		if strings.Contains(c, sub) {
			cols = append(cols, c)
		}
	}
	return cols
}

// SumColumn totals a column over all rows.
func (t *Table) SumColumn(name string) int64 {
	var sum int64
	for _, r := range t.Rows {
		sum += r.Value(name)
	}
	return sum
}

// =============================================================================
// VIEW OPERATIONS - Filtering, cloning, ordering
// =============================================================================

// Filter returns a new table with the rows matching pred. Row storage is
// shared with the receiver; per the append-only convention that is safe.
func (t *Table) Filter(pred func(Row) bool) *Table {
	out := New(t.Keys, t.Columns...)
	out.Attrs = append([]string(nil), t.Attrs...)
	for _, r := range t.Rows {
		if pred(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Clone deep-copies the table, including count and attribute maps. Used
// where a caller needs an independently mutable copy.
func (t *Table) Clone() *Table {
	out := New(t.Keys, t.Columns...)
	out.Attrs = append([]string(nil), t.Attrs...)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		counts := make(map[string]int64, len(r.Counts))
		for c, v := range r.Counts {
			counts[c] = v
		}
		r.Counts = counts
		if r.Attrs != nil {
			attrs := make(map[string]string, len(r.Attrs))
			for a, v := range r.Attrs {
				attrs[a] = v
			}
			r.Attrs = attrs
		}
		out.Rows[i] = r
	}
	return out
}

// SortByKey orders rows by (date, state, district, pincode), then by
// attribute values for tables that carry them. Row order is not part of
// any contract; sorting exists so identical inputs produce byte-identical
// output.
func (t *Table) SortByKey() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.State != b.State {
			return a.State < b.State
		}
		if a.District != b.District {
			return a.District < b.District
		}
		if a.Pincode != b.Pincode {
			return a.Pincode < b.Pincode
		}
		return encodeAttrs(t.Attrs, a) < encodeAttrs(t.Attrs, b)
	})
}

// =============================================================================
// DATES
// =============================================================================

// Date builds a UTC civil date. All dates in the system originate here or
// in the dataset parser, keeping time.Time values comparable with ==.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date in ISO form for output and keying.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
