/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures the dashboard consumes. These types decouple
  the internal table/scoring model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific formatting (ISO dates, derived counters)
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - SeriesPoint / DistrictGroup: adapter contract types shared with the
    composition root (the forecast and cluster functions return them)

VALIDATION:
  Query validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/haldar/aadhaar-sentinel/anomaly"
	"github.com/haldar/aadhaar-sentinel/store"
	"github.com/haldar/aadhaar-sentinel/table"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// HealthDTO reports liveness and what data the server currently holds.
type HealthDTO struct {
	Status       string `json:"status"`
	DataDir      string `json:"data_dir"`
	AnalysisRows int    `json:"analysis_rows"`
	RunID        string `json:"run_id,omitempty"`
	LoadedAt     string `json:"loaded_at,omitempty"`
}

// OverviewDTO carries the KPI totals for one filtered view.
type OverviewDTO struct {
	Records    int    `json:"records"`
	TotalEnrol int64  `json:"total_enrol"`
	TotalBio   int64  `json:"total_bio"`
	TotalDemo  int64  `json:"total_demo"`
	Anomalies  int    `json:"anomalies"`
	States     int    `json:"states"`
	Districts  int    `json:"districts"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
}

// RecordDTO is one scored analysis row. Score and flag are omitted when
// the view was too small to score; the reason column is always present.
type RecordDTO struct {
	Date      string            `json:"date"`
	State     string            `json:"state"`
	District  string            `json:"district"`
	Pincode   string            `json:"pincode"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Counts    map[string]int64  `json:"counts"`
	Score     *float64          `json:"anomaly_score,omitempty"`
	IsAnomaly *bool             `json:"is_anomaly,omitempty"`
	Reason    string            `json:"anomaly_reason"`
}

// RecordsPageDTO is one page of scored rows plus the unpaged total.
type RecordsPageDTO struct {
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	Records []RecordDTO `json:"records"`
}

// TrendPointDTO is one day's grand totals over the filtered view.
type TrendPointDTO struct {
	Date       string `json:"date"`
	TotalEnrol int64  `json:"total_enrol"`
	TotalBio   int64  `json:"total_bio"`
	TotalDemo  int64  `json:"total_demo"`
}

// SeriesPoint is one dated value of a forecast series. Part of the
// forecast adapter contract.
type SeriesPoint struct {
	Date  time.Time
	Value float64
}

// ForecastDTO is the forecast endpoint response.
type ForecastDTO struct {
	Metric string             `json:"metric"`
	Days   int                `json:"days"`
	Points []ForecastPointDTO `json:"points"`
}

// ForecastPointDTO is one projected day.
type ForecastPointDTO struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// DistrictGroup is one district's activity-cluster assignment. Part of
// the cluster adapter contract; serialized as-is.
type DistrictGroup struct {
	District    string  `json:"district"`
	MeanEnrol   float64 `json:"mean_enrol"`
	MeanBio     float64 `json:"mean_bio"`
	MeanDemo    float64 `json:"mean_demo"`
	UpdateRatio float64 `json:"update_ratio"`
	Cluster     int     `json:"cluster"`
	Label       string  `json:"label"`
}

// QuarantineDTO is one region value held out of the current run.
type QuarantineDTO struct {
	Value string `json:"value"`
	Rows  int    `json:"rows"`
}

// RunDTO summarizes one persisted run.
type RunDTO struct {
	ID              string  `json:"id"`
	DataDir         string  `json:"data_dir"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      string  `json:"finished_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	AnalysisRows    int     `json:"analysis_rows"`
	ScoredRows      int     `json:"scored_rows"`
	FlaggedRows     int     `json:"flagged_rows"`
	Trees           int     `json:"trees"`
	Contamination   float64 `json:"contamination"`
	Seed            int64   `json:"seed"`
}

// RunDetailDTO is a run summary plus its per-category load stats and
// quarantined values.
type RunDetailDTO struct {
	RunDTO
	Stats      []store.CategoryStats `json:"stats"`
	Quarantine []QuarantineDTO       `json:"quarantine"`
}

// RefreshDTO reports the outcome of one pipeline reload.
type RefreshDTO struct {
	RunID           string  `json:"run_id"`
	AnalysisRows    int     `json:"analysis_rows"`
	ScoredRows      int     `json:"scored_rows"`
	FlaggedRows     int     `json:"flagged_rows"`
	Quarantined     int     `json:"quarantined_values"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(row table.Row, scored anomaly.Result, i int) RecordDTO {
	dto := RecordDTO{
		Date:     table.FormatDate(row.Date),
		State:    row.State,
		District: row.District,
		Pincode:  row.Pincode,
		Attrs:    row.Attrs,
		Counts:   row.Counts,
		Reason:   "Normal",
	}
	if i < len(scored.Reasons) {
		dto.Reason = scored.Reasons[i]
	}
	if scored.Scored && i < len(scored.Scores) && i < len(scored.Flags) {
		score, flagged := scored.Scores[i], scored.Flags[i]
		dto.Score = &score
		dto.IsAnomaly = &flagged
	}
	return dto
}

func toRunDTO(run store.Run) RunDTO {
	return RunDTO{
		ID:              run.ID,
		DataDir:         run.DataDir,
		StartedAt:       run.StartedAt.Format(time.RFC3339),
		FinishedAt:      run.FinishedAt.Format(time.RFC3339),
		DurationSeconds: run.FinishedAt.Sub(run.StartedAt).Seconds(),
		AnalysisRows:    run.AnalysisRows,
		ScoredRows:      run.ScoredRows,
		FlaggedRows:     run.FlaggedRows,
		Trees:           run.Trees,
		Contamination:   run.Contamination,
		Seed:            run.Seed,
	}
}
