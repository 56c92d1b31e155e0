package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldar/aadhaar-sentinel/anomaly"
	"github.com/haldar/aadhaar-sentinel/api"
	"github.com/haldar/aadhaar-sentinel/dataset"
	"github.com/haldar/aadhaar-sentinel/pipeline"
	"github.com/haldar/aadhaar-sentinel/store"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// writeTestDataset lays out a small but fully-shaped dump: two weeks of
// enrolment, biometric and demographic files over two districts, with one
// biometric spike standing far outside the rest.
func writeTestDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	enrol := "date,state,district,pincode,age_0_5,age_5_17,age_18_greater\n"
	bio := "date,state,district,pincode,bio_age_0_5,bio_age_5_17,bio_age_18_plus\n"
	demo := "date,state,district,pincode,demo_age_0_5,demo_age_5_17,demo_age_18_plus\n"
	for day := 1; day <= 14; day++ {
		date := fmt.Sprintf("%02d-01-2024", day)
		enrol += fmt.Sprintf("%s,Kerala,Ernakulam,682001,%d,%d,%d\n", date, 10+day, 20, 30)
		enrol += fmt.Sprintf("%s,Kerala,Thrissur,680001,%d,%d,%d\n", date, 8, 16, 24)
		if day == 7 {
			// The spike every anomaly assertion leans on.
			bio += fmt.Sprintf("%s,Kerala,Ernakulam,682001,%d,%d,%d\n", date, 5000, 5000, 5000)
		} else {
			bio += fmt.Sprintf("%s,Kerala,Ernakulam,682001,%d,%d,%d\n", date, 5, 6, 7)
		}
		demo += fmt.Sprintf("%s,Kerala,Thrissur,680001,%d,%d,%d\n", date, 3, 4, 5)
	}

	files := map[string]string{
		"api_data_aadhar_enrolment/jan.csv":   enrol,
		"api_data_aadhar_biometric/jan.csv":   bio,
		"api_data_aadhar_demographic/jan.csv": demo,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	loader := dataset.NewLoader(writeTestDataset(t))
	loader.Logger = quiet
	runner := pipeline.NewRunner(loader)
	runner.Logger = quiet

	detector := anomaly.NewDetector()
	detector.Logger = quiet

	h := api.NewHandler(runner, detector)
	h.Logger = quiet
	h.Store = store.NewMemory()
	h.Forecast = func(tbl *table.Table, metric string) ([]api.SeriesPoint, error) {
		if !tbl.HasColumn(metric) {
			return nil, fmt.Errorf("unknown metric %q", metric)
		}
		return []api.SeriesPoint{{Date: table.Date(2024, 1, 15), Value: 42}}, nil
	}
	h.Cluster = func(tbl *table.Table) ([]api.DistrictGroup, error) {
		return []api.DistrictGroup{
			{District: "Ernakulam", Cluster: 1, Label: "High Activity"},
			{District: "Thrissur", Cluster: 0, Label: "Low Activity"},
		}, nil
	}

	_, err := h.Refresh(context.Background())
	require.NoError(t, err)
	return h
}

func doGET(t *testing.T, h *api.Handler, url string, out any) *httptest.ResponseRecorder {
	t.Helper()
	router := api.NewRouter(h, []string{"*"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

// =============================================================================
// HEALTH AND OVERVIEW
// =============================================================================

func TestHealth_ReportsLoadedRun(t *testing.T) {
	h := newTestHandler(t)

	var dto api.HealthDTO
	rec := doGET(t, h, "/health", &dto)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", dto.Status)
	assert.Equal(t, 28, dto.AnalysisRows) // 14 days x 2 districts
	assert.NotEmpty(t, dto.RunID)
}

func TestOverview_TotalsAndSpan(t *testing.T) {
	h := newTestHandler(t)

	var dto api.OverviewDTO
	rec := doGET(t, h, "/api/v1/overview", &dto)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 28, dto.Records)
	assert.Equal(t, 1, dto.States)
	assert.Equal(t, 2, dto.Districts)
	assert.Equal(t, "2024-01-01", dto.DateFrom)
	assert.Equal(t, "2024-01-14", dto.DateTo)
	// 14 days of (10+day)+20+30 for Ernakulam plus 14 x (8+16+24) for Thrissur.
	assert.Equal(t, int64(14*60+105+14*48), dto.TotalEnrol)
}

func TestOverview_FiltersCompose(t *testing.T) {
	h := newTestHandler(t)

	var dto api.OverviewDTO
	rec := doGET(t, h, "/api/v1/overview?state=Kerala&district=Thrissur&from=2024-01-01&to=2024-01-07", &dto)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, dto.Records)
	assert.Equal(t, int64(0), dto.TotalBio)
	assert.Equal(t, int64(7*12), dto.TotalDemo)
}

func TestOverview_BadDateIs400(t *testing.T) {
	h := newTestHandler(t)
	rec := doGET(t, h, "/api/v1/overview?from=01-01-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RECORDS AND ANOMALIES
// =============================================================================

func TestRecords_UnknownStateYieldsEmptyNot500(t *testing.T) {
	h := newTestHandler(t)

	var page api.RecordsPageDTO
	rec := doGET(t, h, "/api/v1/records?state=Atlantis", &page)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Records)
}

func TestRecords_Paging(t *testing.T) {
	h := newTestHandler(t)

	var page api.RecordsPageDTO
	rec := doGET(t, h, "/api/v1/records?limit=10&offset=25", &page)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 28, page.Total)
	assert.Len(t, page.Records, 3)
	for _, r := range page.Records {
		assert.NotNil(t, r.Score)
		assert.NotEmpty(t, r.Reason)
	}
}

func TestAnomalies_SpikeIsFlaggedFirst(t *testing.T) {
	h := newTestHandler(t)

	var page api.RecordsPageDTO
	rec := doGET(t, h, "/api/v1/anomalies", &page)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, page.Records)
	top := page.Records[0]
	assert.Equal(t, "2024-01-07", top.Date)
	assert.Equal(t, "Ernakulam", top.District)
	require.NotNil(t, top.IsAnomaly)
	assert.True(t, *top.IsAnomaly)
	assert.Contains(t, top.Reason, "Biometric Updates")

	// Scores ascend: most anomalous first.
	for i := 1; i < len(page.Records); i++ {
		assert.LessOrEqual(t, *page.Records[i-1].Score, *page.Records[i].Score)
	}
}

func TestRecords_AnomaliesOnlyMatchesAnomalyList(t *testing.T) {
	h := newTestHandler(t)

	var anomalies, filtered api.RecordsPageDTO
	doGET(t, h, "/api/v1/anomalies", &anomalies)
	doGET(t, h, "/api/v1/records?anomalies_only=true", &filtered)

	assert.Equal(t, anomalies.Total, filtered.Total)
	for _, r := range filtered.Records {
		require.NotNil(t, r.IsAnomaly)
		assert.True(t, *r.IsAnomaly)
	}
}

// =============================================================================
// TRENDS AND REGIONS
// =============================================================================

func TestDailyTrends_SumsPerDay(t *testing.T) {
	h := newTestHandler(t)

	var points []api.TrendPointDTO
	rec := doGET(t, h, "/api/v1/trends/daily?district=Thrissur", &points)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, points, 14)
	assert.Equal(t, "2024-01-01", points[0].Date)
	assert.Equal(t, int64(48), points[0].TotalEnrol)
	assert.Equal(t, int64(12), points[0].TotalDemo)
}

func TestRegions_DrillDown(t *testing.T) {
	h := newTestHandler(t)

	var states, districts, pincodes []string
	doGET(t, h, "/api/v1/regions/states", &states)
	doGET(t, h, "/api/v1/regions/districts?state=Kerala", &districts)
	doGET(t, h, "/api/v1/regions/pincodes?state=Kerala&district=Ernakulam", &pincodes)

	assert.Equal(t, []string{"Kerala"}, states)
	assert.Equal(t, []string{"Ernakulam", "Thrissur"}, districts)
	assert.Equal(t, []string{"682001"}, pincodes)
}

// =============================================================================
// ADAPTERS
// =============================================================================

func TestForecast_UsesInjectedAdapter(t *testing.T) {
	h := newTestHandler(t)

	var dto api.ForecastDTO
	rec := doGET(t, h, "/api/v1/forecast", &dto)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "total_enrol", dto.Metric)
	require.Len(t, dto.Points, 1)
	assert.Equal(t, "2024-01-15", dto.Points[0].Date)
}

func TestForecast_AdapterErrorIs422(t *testing.T) {
	h := newTestHandler(t)
	rec := doGET(t, h, "/api/v1/forecast?metric=no_such_column", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestForecast_MissingAdapterIs501(t *testing.T) {
	h := newTestHandler(t)
	h.Forecast = nil
	rec := doGET(t, h, "/api/v1/forecast", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestClusters_UsesInjectedAdapter(t *testing.T) {
	h := newTestHandler(t)

	var groups []api.DistrictGroup
	rec := doGET(t, h, "/api/v1/clusters", &groups)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, groups, 2)
	assert.Equal(t, "High Activity", groups[0].Label)
}

// =============================================================================
// RUN HISTORY
// =============================================================================

func TestRuns_ListAndGet(t *testing.T) {
	h := newTestHandler(t)

	var runs []api.RunDTO
	rec := doGET(t, h, "/api/v1/runs", &runs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runs, 1)
	assert.Equal(t, 28, runs[0].AnalysisRows)

	var detail api.RunDetailDTO
	rec = doGET(t, h, "/api/v1/runs/"+runs[0].ID, &detail)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, detail.Stats, 3)
}

func TestRuns_UnknownIDIs404(t *testing.T) {
	h := newTestHandler(t)
	rec := doGET(t, h, "/api/v1/runs/not-a-run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh_SwapsViewAndPersists(t *testing.T) {
	h := newTestHandler(t)
	router := api.NewRouter(h, []string{"*"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var dto api.RefreshDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, 28, dto.AnalysisRows)

	var runs []api.RunDTO
	doGET(t, h, "/api/v1/runs", &runs)
	assert.Len(t, runs, 2)
}

// =============================================================================
// VIEW-RELATIVE SCORING
// =============================================================================

func TestFilteredView_IsRescoredFresh(t *testing.T) {
	// Scores are relative to the view: the same row scored inside the
	// full table and inside a district slice need not agree, but both
	// views must come back fully scored.
	h := newTestHandler(t)

	var full, sliced api.RecordsPageDTO
	doGET(t, h, "/api/v1/records?limit=1000", &full)
	doGET(t, h, "/api/v1/records?district=Ernakulam&limit=1000", &sliced)

	require.Len(t, full.Records, 28)
	require.Len(t, sliced.Records, 14)
	for _, r := range sliced.Records {
		assert.NotNil(t, r.Score)
	}
}
