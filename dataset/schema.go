/*
Package dataset turns raw category CSV dumps into canonical tables.

PURPOSE:
  This package is the schema normalizer: it reads every delimited file in
  a category's folder, standardizes drifting column names through a
  versioned mapping table, parses locale-formatted dates, coerces count
  cells to integers, and canonicalizes state names. What comes out is a
  table.Table whose columns are stable regardless of which source file a
  row came from.

KEY CONCEPTS IN THIS FILE (schema.go):
  - Category: the three source domains (enrolment, biometric, demographic)
  - Mapping: an explicit, versioned header-to-field table per category.
    Header matching is exact (after trim/lowercase/underscore cleanup),
    never substring guessing - an unknown numeric header is dropped with
    a warning instead of silently misclassified.
  - Age buckets: every category resolves to the same three canonical
    fields (0_5, 5_17, 18_plus), prefixed per category on output
    (enrol_0_5, bio_5_17, demo_18_plus, ...).

SEE ALSO:
  - regions.go: state-name canonicalization
  - loader.go: file reading and row assembly
*/
package dataset

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Category is one of the three source domains.
type Category string

const (
	Enrolment   Category = "enrolment"
	Biometric   Category = "biometric"
	Demographic Category = "demographic"
)

// Categories returns the domains in merge-accumulation order
// (biometric first, then demographic, then enrolment).
func Categories() []Category {
	return []Category{Biometric, Demographic, Enrolment}
}

// Prefix is the canonical column prefix for the category's count columns.
func (c Category) Prefix() string {
	switch c {
	case Enrolment:
		return "enrol_"
	case Biometric:
		return "bio_"
	case Demographic:
		return "demo_"
	}
	return ""
}

func (c Category) String() string { return string(c) }

// Buckets are the canonical age-bucket fields every category maps onto.
var Buckets = []string{"0_5", "5_17", "18_plus"}

// Column builds the canonical column name for a bucket of this category.
func (c Category) Column(bucket string) string { return c.Prefix() + bucket }

// =============================================================================
// VERSIONED COLUMN MAPPING
// =============================================================================

// Mapping is the explicit header-to-field table. Keys holds grouping-key
// header variants (shared by all categories); Categories holds per-domain
// count-header variants mapped to canonical buckets. Headers are compared
// after normalization (trim, lowercase, spaces to underscores).
type Mapping struct {
	Version    int                            `yaml:"version"`
	Keys       map[string]string              `yaml:"keys"`
	Categories map[Category]map[string]string `yaml:"categories"`
}

// DefaultMapping is schema version 1: the header variants observed across
// the published registry dumps. Canonical names map to themselves so
// already-clean files need no entries of their own.
func DefaultMapping() *Mapping {
	return &Mapping{
		Version: 1,
		Keys: map[string]string{
			"date":          "date",
			"state":         "state",
			"state_name":    "state",
			"district":      "district",
			"district_name": "district",
			"pincode":       "pincode",
			"pin_code":      "pincode",
			"postal_code":   "pincode",
			"postal_area":   "pincode",
		},
		Categories: map[Category]map[string]string{
			Enrolment: {
				"enrol_0_5":        "0_5",
				"enrol_5_17":       "5_17",
				"enrol_18_plus":    "18_plus",
				"age_0_5":          "0_5",
				"age_0_to_5":       "0_5",
				"age_5_17":         "5_17",
				"age_5_to_17":      "5_17",
				"age_18_greater":   "18_plus",
				"age_18_plus":      "18_plus",
				"age_greater_18":   "18_plus",
				"age_18_and_above": "18_plus",
			},
			Biometric: {
				"bio_0_5":         "0_5",
				"bio_5_17":        "5_17",
				"bio_18_plus":     "18_plus",
				"bio_age_0_5":     "0_5",
				"bio_age_5_17":    "5_17",
				"bio_age_17_plus": "18_plus",
				"bio_age_18_plus": "18_plus",
				"age_0_5":         "0_5",
				"age_5_17":        "5_17",
				"age_17_plus":     "18_plus",
				"age_17_greater":  "18_plus",
				"age_18_plus":     "18_plus",
				"age_18_greater":  "18_plus",
			},
			Demographic: {
				"demo_0_5":         "0_5",
				"demo_5_17":        "5_17",
				"demo_18_plus":     "18_plus",
				"demo_age_0_5":     "0_5",
				"demo_age_5_17":    "5_17",
				"demo_age_17_plus": "18_plus",
				"demo_age_18_plus": "18_plus",
				"age_0_5":          "0_5",
				"age_5_17":         "5_17",
				"age_17_plus":      "18_plus",
				"age_17_greater":   "18_plus",
				"age_18_plus":      "18_plus",
				"age_18_greater":   "18_plus",
			},
		},
	}
}

// LoadMapping reads a YAML mapping file and overlays it on the defaults:
// file entries extend or override version-1 entries, so deployments only
// list the headers that differ.
func LoadMapping(path string) (*Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	var override Mapping
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}

	m := DefaultMapping()
	if override.Version != 0 {
		m.Version = override.Version
	}
	for header, field := range override.Keys {
		m.Keys[normalizeHeader(header)] = field
	}
	for cat, headers := range override.Categories {
		if m.Categories[cat] == nil {
			m.Categories[cat] = make(map[string]string)
		}
		for header, bucket := range headers {
			m.Categories[cat][normalizeHeader(header)] = bucket
		}
	}
	return m, nil
}

// ResolveKey maps a normalized header to a grouping-key field name.
func (m *Mapping) ResolveKey(header string) (string, bool) {
	field, ok := m.Keys[header]
	return field, ok
}

// ResolveBucket maps a normalized header to a canonical age bucket for
// the category.
func (m *Mapping) ResolveBucket(cat Category, header string) (string, bool) {
	bucket, ok := m.Categories[cat][header]
	return bucket, ok
}

// normalizeHeader is the cleanup applied before any mapping lookup: BOM
// strip, trim, lowercase, spaces to underscores.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}
