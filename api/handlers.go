/*
handlers.go - HTTP API handlers for the registry analytics dashboard

PURPOSE:
  Exposes the analysis pipeline via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Views:
    GET  /api/v1/overview       KPI totals for the filtered view
    GET  /api/v1/records        Scored rows, paged
    GET  /api/v1/anomalies      Flagged rows, most anomalous first
    GET  /api/v1/trends/daily   Per-day grand totals

  Regions:
    GET  /api/v1/regions/states     Observed states
    GET  /api/v1/regions/districts  Districts of one state
    GET  /api/v1/regions/pincodes   Pincodes of one district

  Adapters:
    GET  /api/v1/forecast       Injected forecast function
    GET  /api/v1/clusters       Injected cluster function

  Runs:
    GET    /api/v1/runs         Persisted run summaries
    GET    /api/v1/runs/{id}    One run with stats and quarantine
    DELETE /api/v1/runs/{id}    Drop a run from history
    POST   /api/v1/refresh      Reload the dataset, swap the view

ARCHITECTURE:
  Handler holds all dependencies: the pipeline runner, the anomaly
  detector, the run store, metrics, and the two adapter functions. The
  current pipeline result lives behind an RWMutex pointer swap; requests
  read an immutable snapshot and never block a refresh.

VIEW SCORING:
  Scores are relative to the view. An unfiltered request reads the cached
  full-table scoring; any region or date filter refits the detector on
  exactly the filtered rows. Same filter, same rows, same seed - same
  scores.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Bad query parameters
  - 404: Unknown run id
  - 422: Adapter cannot serve the view (for example too little history)
  - 501: Optional dependency not wired (no store, no adapter)
  - 503: Server still loading its first pipeline run

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haldar/aadhaar-sentinel/anomaly"
	"github.com/haldar/aadhaar-sentinel/metrics"
	"github.com/haldar/aadhaar-sentinel/pipeline"
	"github.com/haldar/aadhaar-sentinel/store"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ForecastFunc is the injected forecast adapter: daily projections of one
// metric column over the given view.
type ForecastFunc func(t *table.Table, metric string) ([]SeriesPoint, error)

// ClusterFunc is the injected cluster adapter: one activity tier per
// district over the full table.
type ClusterFunc func(t *table.Table) ([]DistrictGroup, error)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Runner   *pipeline.Runner
	Detector *anomaly.Detector
	Store    store.RunStore
	Metrics  *metrics.Metrics
	Forecast ForecastFunc
	Cluster  ClusterFunc
	KeepRuns int
	Logger   *log.Logger

	mu      sync.RWMutex
	current *snapshot
}

// snapshot is one immutable served view: the pipeline result, its
// full-table scoring, and the identity of the persisted run.
type snapshot struct {
	res      *pipeline.Result
	scored   *anomaly.Result
	runID    string
	loadedAt time.Time
}

// NewHandler creates a handler. Store, Metrics and the adapter functions
// are optional; their endpoints degrade when absent.
func NewHandler(runner *pipeline.Runner, detector *anomaly.Detector) *Handler {
	return &Handler{
		Runner:   runner,
		Detector: detector,
		Logger:   log.Default(),
	}
}

// Refresh runs the pipeline, scores the full table, persists the run and
// swaps the served snapshot. Called once at startup and per POST
// /api/v1/refresh.
func (h *Handler) Refresh(ctx context.Context) (RefreshDTO, error) {
	res, err := h.Runner.Run(ctx)
	if err != nil {
		return RefreshDTO{}, fmt.Errorf("pipeline run: %w", err)
	}
	scored := h.Detector.Annotate(res.Table)
	h.Metrics.ObserveScoring(len(scored.Scores), scored.Flagged())

	run, records, quarantined := store.NewRun(res, *scored, h.Detector.Config, h.Runner.Loader.Dir)
	if h.Store != nil {
		if err := h.Store.SaveRun(ctx, run, records, quarantined); err != nil {
			return RefreshDTO{}, fmt.Errorf("persist run: %w", err)
		}
		if h.KeepRuns > 0 {
			if _, err := h.Store.Prune(ctx, h.KeepRuns); err != nil {
				h.logf("prune run history: %v", err)
			}
		}
	}

	h.mu.Lock()
	h.current = &snapshot{res: res, scored: scored, runID: run.ID, loadedAt: time.Now()}
	h.mu.Unlock()

	return RefreshDTO{
		RunID:           run.ID,
		AnalysisRows:    run.AnalysisRows,
		ScoredRows:      run.ScoredRows,
		FlaggedRows:     run.FlaggedRows,
		Quarantined:     len(quarantined),
		DurationSeconds: res.Duration().Seconds(),
	}, nil
}

func (h *Handler) snap() *snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// =============================================================================
// VIEW FILTERING
// =============================================================================

// viewFilter is the query-parameter slice of the analysis table. The
// zero value selects everything.
type viewFilter struct {
	State    string
	District string
	Pincode  string
	From     time.Time
	To       time.Time
}

func (f viewFilter) active() bool {
	return f.State != "" || f.District != "" || f.Pincode != "" || !f.From.IsZero() || !f.To.IsZero()
}

func (f viewFilter) match(r table.Row) bool {
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.District != "" && r.District != f.District {
		return false
	}
	if f.Pincode != "" && r.Pincode != f.Pincode {
		return false
	}
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(f.To) {
		return false
	}
	return true
}

func parseFilter(r *http.Request) (viewFilter, error) {
	q := r.URL.Query()
	f := viewFilter{
		State:    q.Get("state"),
		District: q.Get("district"),
		Pincode:  q.Get("pincode"),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = time.ParseInLocation("2006-01-02", v, time.UTC); err != nil {
			return f, fmt.Errorf("invalid from date %q (use YYYY-MM-DD)", v)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.ParseInLocation("2006-01-02", v, time.UTC); err != nil {
			return f, fmt.Errorf("invalid to date %q (use YYYY-MM-DD)", v)
		}
	}
	return f, nil
}

// view resolves a filter against the current snapshot. Unfiltered
// requests reuse the cached full-table scoring; filtered requests refit
// the detector on exactly the selected rows, per the view-relative
// scoring contract.
func (h *Handler) view(f viewFilter) (*table.Table, *anomaly.Result, bool) {
	s := h.snap()
	if s == nil {
		return nil, nil, false
	}
	if !f.active() {
		return s.res.Table, s.scored, true
	}
	filtered := s.res.Table.Filter(f.match)
	return filtered, h.Detector.Annotate(filtered), true
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and what data the server currently serves.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	s := h.snap()
	dto := HealthDTO{Status: "loading", DataDir: h.Runner.Loader.Dir}
	if s != nil {
		dto.Status = "ok"
		dto.AnalysisRows = s.res.Table.Len()
		dto.RunID = s.runID
		dto.LoadedAt = s.loadedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// VIEW ENDPOINTS
// =============================================================================

// GetOverview returns the KPI totals for one filtered view.
// GET /api/v1/overview
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	t, scored, ok := h.view(f)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}

	dto := OverviewDTO{
		Records:    t.Len(),
		TotalEnrol: t.SumColumn("total_enrol"),
		TotalBio:   t.SumColumn("total_bio"),
		TotalDemo:  t.SumColumn("total_demo"),
		Anomalies:  scored.Flagged(),
	}
	states := make(map[string]struct{})
	districts := make(map[string]struct{})
	var first, last time.Time
	for _, row := range t.Rows {
		states[row.State] = struct{}{}
		districts[row.District] = struct{}{}
		if first.IsZero() || row.Date.Before(first) {
			first = row.Date
		}
		if row.Date.After(last) {
			last = row.Date
		}
	}
	dto.States = len(states)
	dto.Districts = len(districts)
	dto.DateFrom = table.FormatDate(first)
	dto.DateTo = table.FormatDate(last)
	writeJSON(w, http.StatusOK, dto)
}

// ListRecords returns one page of scored rows for the filtered view.
// GET /api/v1/records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	limit, offset, err := parsePaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paging", err)
		return
	}
	t, scored, ok := h.view(f)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}

	idx := make([]int, 0, t.Len())
	anomaliesOnly := r.URL.Query().Get("anomalies_only") == "true"
	for i := range t.Rows {
		if anomaliesOnly && !(scored.Scored && scored.Flags[i]) {
			continue
		}
		idx = append(idx, i)
	}

	page := RecordsPageDTO{Total: len(idx), Limit: limit, Offset: offset, Records: []RecordDTO{}}
	for _, i := range paginate(idx, limit, offset) {
		page.Records = append(page.Records, toRecordDTO(t.Rows[i], *scored, i))
	}
	writeJSON(w, http.StatusOK, page)
}

// ListAnomalies returns the flagged rows of the view, most anomalous
// first.
// GET /api/v1/anomalies
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	limit, offset, err := parsePaging(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paging", err)
		return
	}
	t, scored, ok := h.view(f)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}

	var idx []int
	if scored.Scored {
		for i := range t.Rows {
			if scored.Flags[i] {
				idx = append(idx, i)
			}
		}
		// Most negative score first.
		sort.Slice(idx, func(a, b int) bool { return scored.Scores[idx[a]] < scored.Scores[idx[b]] })
	}

	page := RecordsPageDTO{Total: len(idx), Limit: limit, Offset: offset, Records: []RecordDTO{}}
	for _, i := range paginate(idx, limit, offset) {
		page.Records = append(page.Records, toRecordDTO(t.Rows[i], *scored, i))
	}
	writeJSON(w, http.StatusOK, page)
}

// DailyTrends returns per-date sums of the three grand totals over the
// filtered view.
// GET /api/v1/trends/daily
func (h *Handler) DailyTrends(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	t, _, ok := h.view(f)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}

	byDay := make(map[time.Time]*TrendPointDTO)
	for _, row := range t.Rows {
		p := byDay[row.Date]
		if p == nil {
			p = &TrendPointDTO{Date: table.FormatDate(row.Date)}
			byDay[row.Date] = p
		}
		p.TotalEnrol += row.Value("total_enrol")
		p.TotalBio += row.Value("total_bio")
		p.TotalDemo += row.Value("total_demo")
	}
	points := make([]TrendPointDTO, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	writeJSON(w, http.StatusOK, points)
}

// =============================================================================
// REGION ENDPOINTS
// =============================================================================

// ListStates returns the states observed in the analysis table.
// GET /api/v1/regions/states
func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	h.listRegionValues(w, viewFilter{}, func(row table.Row) string { return row.State })
}

// ListDistricts returns the districts observed for one state.
// GET /api/v1/regions/districts?state=...
func (h *Handler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	f := viewFilter{State: r.URL.Query().Get("state")}
	h.listRegionValues(w, f, func(row table.Row) string { return row.District })
}

// ListPincodes returns the pincodes observed for one district.
// GET /api/v1/regions/pincodes?state=...&district=...
func (h *Handler) ListPincodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := viewFilter{State: q.Get("state"), District: q.Get("district")}
	h.listRegionValues(w, f, func(row table.Row) string { return row.Pincode })
}

func (h *Handler) listRegionValues(w http.ResponseWriter, f viewFilter, field func(table.Row) string) {
	s := h.snap()
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}
	seen := make(map[string]struct{})
	for _, row := range s.res.Table.Rows {
		if !f.match(row) {
			continue
		}
		if v := field(row); v != "" {
			seen[v] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	writeJSON(w, http.StatusOK, values)
}

// =============================================================================
// ADAPTER ENDPOINTS
// =============================================================================

// GetForecast projects one metric's daily series forward using the
// injected forecast adapter.
// GET /api/v1/forecast?metric=total_enrol
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	if h.Forecast == nil {
		writeError(w, http.StatusNotImplemented, "Forecast adapter not configured", nil)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "total_enrol"
	}
	t, _, ok := h.view(f)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}

	points, err := h.Forecast(t, metric)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Forecast unavailable for this view", err)
		return
	}
	dto := ForecastDTO{Metric: metric, Days: len(points)}
	for _, p := range points {
		dto.Points = append(dto.Points, ForecastPointDTO{Date: table.FormatDate(p.Date), Value: p.Value})
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetClusters returns the district activity tiers from the injected
// cluster adapter, computed over the full table.
// GET /api/v1/clusters
func (h *Handler) GetClusters(w http.ResponseWriter, r *http.Request) {
	if h.Cluster == nil {
		writeError(w, http.StatusNotImplemented, "Cluster adapter not configured", nil)
		return
	}
	s := h.snap()
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}
	groups, err := h.Cluster(s.res.Table)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Clustering unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// =============================================================================
// QUARANTINE AND RUN HISTORY
// =============================================================================

// GetQuarantine returns the region values held out of the current run.
// GET /api/v1/quarantine
func (h *Handler) GetQuarantine(w http.ResponseWriter, r *http.Request) {
	s := h.snap()
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "No pipeline run loaded yet", nil)
		return
	}
	held := s.res.QuarantinedStates()
	dtos := make([]QuarantineDTO, 0, len(held))
	for value, rows := range held {
		dtos = append(dtos, QuarantineDTO{Value: value, Rows: rows})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Value < dtos[j].Value })
	writeJSON(w, http.StatusOK, dtos)
}

// ListRuns returns the persisted run summaries, newest first.
// GET /api/v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Run history disabled", nil)
		return
	}
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run with its load stats and quarantined values.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Run history disabled", nil)
		return
	}
	id := chi.URLParam(r, "id")
	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	quarantined, err := h.Store.GetQuarantine(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get quarantine", err)
		return
	}
	dto := RunDetailDTO{RunDTO: toRunDTO(*run), Stats: run.Stats, Quarantine: []QuarantineDTO{}}
	for _, q := range quarantined {
		dto.Quarantine = append(dto.Quarantine, QuarantineDTO{Value: q.Value, Rows: q.Rows})
	}
	writeJSON(w, http.StatusOK, dto)
}

// DeleteRun drops a run from history.
// DELETE /api/v1/runs/{id}
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Run history disabled", nil)
		return
	}
	id := chi.URLParam(r, "id")
	err := h.Store.DeleteRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete run", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// TriggerRefresh reloads the dataset directory and swaps the served
// view.
// POST /api/v1/refresh
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	dto, err := h.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePaging(r *http.Request) (limit, offset int, err error) {
	limit = 100
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
	}
	return limit, offset, nil
}

func paginate(idx []int, limit, offset int) []int {
	if offset >= len(idx) {
		return nil
	}
	end := offset + limit
	if end > len(idx) {
		end = len(idx)
	}
	return idx[offset:end]
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
