/*
Package forecast projects daily activity forward from the analysis table.

PURPOSE:
  Planners want to know what next month looks like, not just last month.
  This package collapses the analysis table into a national daily series
  for one metric and extends it with a Holt-Winters model: additive trend
  for the long drift, additive weekly seasonality for the enrolment-office
  rhythm (weekends crater, Mondays spike).

KEY CONCEPTS IN THIS FILE (forecast.go):
  - Daily series: sum of the metric per calendar day, with missing days
    zero-filled so the seasonal cycle stays aligned
  - Minimum history: two full weeks; anything less cannot even seed the
    weekly seasonals

SEE ALSO:
  - holtwinters.go: the smoothing model and its parameter search
*/
package forecast

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/haldar/aadhaar-sentinel/table"
)

var (
	// ErrNoHistory is returned when the table has fewer distinct days than
	// the model needs.
	ErrNoHistory = errors.New("not enough daily history")

	// ErrUnknownMetric is returned when the requested metric is not a
	// column of the table.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Point is one day of a series, observed or projected.
type Point struct {
	Date  time.Time
	Value float64
}

// Forecaster projects a metric forward. The zero value is not usable;
// construct with NewForecaster.
type Forecaster struct {
	SeasonLength int
	Horizon      int
	MinHistory   int
}

func NewForecaster() *Forecaster {
	return &Forecaster{
		SeasonLength: 7,
		Horizon:      30,
		MinHistory:   14,
	}
}

// Forecast fits the model on the table's daily series for metric and
// returns the projected points, one per day after the last observed day.
func (f *Forecaster) Forecast(t *table.Table, metric string) ([]Point, error) {
	if !t.HasColumn(metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	series := DailySeries(t, metric)
	series = fillCalendarGaps(series)
	// The smoother seeds its level, trend and seasonals from the first
	// two full cycles, so two seasons is a hard floor regardless of how
	// low MinHistory is configured.
	need := f.MinHistory
	if floor := 2 * f.SeasonLength; floor > need {
		need = floor
	}
	if len(series) < need {
		return nil, fmt.Errorf("%w: %d days, need %d", ErrNoHistory, len(series), need)
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	model := fitHoltWinters(values, f.SeasonLength)

	last := series[len(series)-1].Date
	out := make([]Point, f.Horizon)
	for h := 1; h <= f.Horizon; h++ {
		out[h-1] = Point{
			Date:  last.AddDate(0, 0, h),
			Value: model.forecast(h),
		}
	}
	return out, nil
}

// DailySeries sums the metric per calendar day, sorted ascending. Days
// nobody reported are absent; the model zero-fills them separately so
// dashboard charts can show the series as reported.
func DailySeries(t *table.Table, metric string) []Point {
	if !t.Keys.Has(table.KeyDate) {
		return nil
	}
	byDay := make(map[time.Time]float64)
	for _, r := range t.Rows {
		byDay[r.Date] += float64(r.Value(metric))
	}
	out := make([]Point, 0, len(byDay))
	for d, v := range byDay {
		out = append(out, Point{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// fillCalendarGaps inserts zero-valued points for days between the first
// and last observation. Gaps are real silence, and skipping them would
// shift the weekly cycle.
func fillCalendarGaps(series []Point) []Point {
	if len(series) < 2 {
		return series
	}
	out := make([]Point, 0, len(series))
	next := 0
	for d := series[0].Date; !d.After(series[len(series)-1].Date); d = d.AddDate(0, 0, 1) {
		if next < len(series) && series[next].Date.Equal(d) {
			out = append(out, series[next])
			next++
			continue
		}
		out = append(out, Point{Date: d})
	}
	return out
}
