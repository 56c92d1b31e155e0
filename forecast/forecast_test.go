package forecast_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/haldar/aadhaar-sentinel/forecast"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// weeklyTable builds a national daily table: value per day, with a +20
// spike on the first day of each week. Days listed in skip are omitted.
func weeklyTable(days int, skip map[int]bool) *table.Table {
	base := table.Date(2025, time.January, 6)
	t := table.New(table.NewKeySet(table.KeyDate, table.KeyState), "total_enrol")
	for i := 0; i < days; i++ {
		if skip[i] {
			continue
		}
		v := int64(100)
		if i%7 == 0 {
			v = 120
		}
		t.Append(table.Row{
			Date:   base.AddDate(0, 0, i),
			State:  "Kerala",
			Counts: map[string]int64{"total_enrol": v},
		})
	}
	return t
}

// =============================================================================
// FORECAST TESTS
// =============================================================================

func TestForecast_UnknownMetricIsRejected(t *testing.T) {
	// GIVEN: A table without the requested column
	// WHEN: Forecasting total_demo
	// THEN: ErrUnknownMetric comes back

	tbl := weeklyTable(56, nil)

	_, err := forecast.NewForecaster().Forecast(tbl, "total_demo")

	if !errors.Is(err, forecast.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestForecast_ShortHistoryIsRejected(t *testing.T) {
	// GIVEN: Only ten days of history
	// WHEN: Forecasting
	// THEN: ErrNoHistory comes back; the weekly seasonals cannot be seeded

	tbl := weeklyTable(10, nil)

	_, err := forecast.NewForecaster().Forecast(tbl, "total_enrol")

	if !errors.Is(err, forecast.ErrNoHistory) {
		t.Errorf("expected ErrNoHistory, got %v", err)
	}
}

func TestForecast_SeasonLongerThanMinHistoryIsRejected(t *testing.T) {
	// GIVEN: A ten-day season but only fourteen days of history
	// WHEN: Forecasting
	// THEN: ErrNoHistory comes back; seeding needs two full seasons even
	//       when MinHistory is configured below that

	tbl := weeklyTable(14, nil)
	f := forecast.NewForecaster()
	f.SeasonLength = 10
	f.MinHistory = 14

	_, err := f.Forecast(tbl, "total_enrol")

	if !errors.Is(err, forecast.ErrNoHistory) {
		t.Errorf("expected ErrNoHistory, got %v", err)
	}
}

func TestForecast_CarriesTheWeeklyCycleForward(t *testing.T) {
	// GIVEN: Eight clean weeks of a flat series with a weekly spike
	// WHEN: Forecasting 30 days
	// THEN: Spike days project at the spike level, the rest at the base

	tbl := weeklyTable(56, nil)

	points, err := forecast.NewForecaster().Forecast(tbl, "total_enrol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(points) != 30 {
		t.Fatalf("expected 30 projected days, got %d", len(points))
	}
	for h, p := range points {
		want := 100.0
		if h%7 == 0 {
			want = 120.0
		}
		if math.Abs(p.Value-want) > 1e-6 {
			t.Errorf("day +%d: projected %.6f, want %.1f", h+1, p.Value, want)
		}
	}
}

func TestForecast_StartsTheDayAfterHistoryEnds(t *testing.T) {
	// GIVEN: History with a silent day in the middle
	// WHEN: Forecasting
	// THEN: The gap is tolerated and projections run consecutively from
	//       the day after the last observation

	tbl := weeklyTable(56, map[int]bool{30: true})
	lastObserved := table.Date(2025, time.January, 6).AddDate(0, 0, 55)

	points, err := forecast.NewForecaster().Forecast(tbl, "total_enrol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for h, p := range points {
		want := lastObserved.AddDate(0, 0, h+1)
		if !p.Date.Equal(want) {
			t.Errorf("projection %d dated %s, want %s", h, p.Date.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	}
}

func TestForecast_Deterministic(t *testing.T) {
	// GIVEN: The same table forecast twice
	// WHEN: Comparing the projections
	// THEN: They match exactly

	tbl := weeklyTable(56, map[int]bool{12: true, 33: true})
	f := forecast.NewForecaster()

	first, err := f.Forecast(tbl, "total_enrol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.Forecast(tbl, "total_enrol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("projection %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// =============================================================================
// DAILY SERIES TESTS
// =============================================================================

func TestDailySeries_SumsAcrossRegions(t *testing.T) {
	// GIVEN: Two states reporting on the same day, one on the next
	// WHEN: Building the daily series
	// THEN: Same-day rows sum and the series is date-ordered

	tbl := table.New(table.NewKeySet(table.KeyDate, table.KeyState), "total_enrol")
	tbl.Append(table.Row{Date: table.Date(2025, time.March, 2), State: "Goa",
		Counts: map[string]int64{"total_enrol": 5}})
	tbl.Append(table.Row{Date: table.Date(2025, time.March, 1), State: "Kerala",
		Counts: map[string]int64{"total_enrol": 10}})
	tbl.Append(table.Row{Date: table.Date(2025, time.March, 1), State: "Goa",
		Counts: map[string]int64{"total_enrol": 7}})

	series := forecast.DailySeries(tbl, "total_enrol")

	if len(series) != 2 {
		t.Fatalf("expected 2 days, got %d", len(series))
	}
	if !series[0].Date.Equal(table.Date(2025, time.March, 1)) || series[0].Value != 17 {
		t.Errorf("day 1 = %+v, want March 1 with 17", series[0])
	}
	if !series[1].Date.Equal(table.Date(2025, time.March, 2)) || series[1].Value != 5 {
		t.Errorf("day 2 = %+v, want March 2 with 5", series[1])
	}
}
