package store

import (
	"context"
	"sort"
	"sync"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	runs       map[string]Run
	records    map[string][]Record
	quarantine map[string][]Quarantine
	order      []string // save order, oldest first
}

func NewMemory() *Memory {
	return &Memory{
		runs:       make(map[string]Run),
		records:    make(map[string][]Record),
		quarantine: make(map[string][]Quarantine),
	}
}

// SaveRun stores deep copies so later caller mutations cannot reach in.
func (m *Memory) SaveRun(_ context.Context, run Run, records []Record, quarantined []Quarantine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; !ok {
		m.order = append(m.order, run.ID)
	}
	run.Stats = append([]CategoryStats(nil), run.Stats...)
	m.runs[run.ID] = run
	m.records[run.ID] = copyRecords(records)
	m.quarantine[run.ID] = append([]Quarantine(nil), quarantined...)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	run.Stats = append([]CategoryStats(nil), run.Stats...)
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		run := m.runs[m.order[i]]
		run.Stats = append([]CategoryStats(nil), run.Stats...)
		runs = append(runs, run)
	}
	// Newest first by start time; equal starts keep reverse save order.
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

func (m *Memory) GetRecords(_ context.Context, runID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	return copyRecords(m.records[runID]), nil
}

func (m *Memory) GetQuarantine(_ context.Context, runID string) ([]Quarantine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	return append([]Quarantine(nil), m.quarantine[runID]...), nil
}

func (m *Memory) DeleteRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[id]; !ok {
		return ErrRunNotFound
	}
	m.deleteLocked(id)
	return nil
}

// Prune drops all but the newest keep runs, oldest start times first.
func (m *Memory) Prune(_ context.Context, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	excess := len(m.order) - keep
	if excess <= 0 {
		return 0, nil
	}
	ids := append([]string(nil), m.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return m.runs[ids[i]].StartedAt.Before(m.runs[ids[j]].StartedAt)
	})
	for _, id := range ids[:excess] {
		m.deleteLocked(id)
	}
	return excess, nil
}

func (m *Memory) deleteLocked(id string) {
	delete(m.runs, id)
	delete(m.records, id)
	delete(m.quarantine, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func copyRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		counts := make(map[string]int64, len(rec.Counts))
		for col, v := range rec.Counts {
			counts[col] = v
		}
		rec.Counts = counts
		if rec.Attrs != nil {
			attrs := make(map[string]string, len(rec.Attrs))
			for a, v := range rec.Attrs {
				attrs[a] = v
			}
			rec.Attrs = attrs
		}
		out[i] = rec
	}
	return out
}
