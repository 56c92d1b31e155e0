/*
parse.go - Cell-level parsing

PURPOSE:
  Two coercions happen at the file boundary. Dates arrive in the
  registry's DD-MM-YYYY locale format; a row whose date does not parse is
  dropped, never defaulted, because it cannot participate in time-series
  aggregation. Counts arrive as integers, float-formatted integers
  ("1200.0"), grouped digits ("1,200") or garbage; anything that is not a
  non-negative integer coerces to zero.
*/
package dataset

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayout is the registry export format: day first, four-digit year.
const dateLayout = "02-01-2006"

// ParseDate parses a DD-MM-YYYY cell into a UTC civil date. time.Parse
// rejects out-of-range components, so "31-13-2024" fails here and the
// loader drops the row.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

// ParseCount coerces a count cell to a non-negative int64. The fast path
// is a plain integer; decimal handles float-formatted and exponent forms
// without float64 rounding surprises. Negative or unparseable cells
// coerce to zero.
func ParseCount(s string) int64 {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0
	}
	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ",", "")
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.IntPart()
}
