package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldar/aadhaar-sentinel/dataset"
)

func TestDefaultMapping_ResolvesObservedVariants(t *testing.T) {
	m := dataset.DefaultMapping()

	cases := []struct {
		cat    dataset.Category
		header string
		bucket string
	}{
		{dataset.Enrolment, "age_0_5", "0_5"},
		{dataset.Enrolment, "age_5_17", "5_17"},
		{dataset.Enrolment, "age_18_greater", "18_plus"},
		{dataset.Biometric, "bio_age_17_plus", "18_plus"},
		{dataset.Biometric, "bio_0_5", "0_5"},
		{dataset.Demographic, "demo_5_17", "5_17"},
		{dataset.Demographic, "age_17_plus", "18_plus"},
	}
	for _, c := range cases {
		bucket, ok := m.ResolveBucket(c.cat, c.header)
		require.True(t, ok, "header %q (%s) should resolve", c.header, c.cat)
		assert.Equal(t, c.bucket, bucket, "header %q", c.header)
	}

	_, ok := m.ResolveBucket(dataset.Enrolment, "mystery_metric")
	assert.False(t, ok)
}

func TestDefaultMapping_KeyVariants(t *testing.T) {
	m := dataset.DefaultMapping()

	for header, field := range map[string]string{
		"date":        "date",
		"state_name":  "state",
		"district":    "district",
		"pin_code":    "pincode",
		"postal_area": "pincode",
	} {
		got, ok := m.ResolveKey(header)
		require.True(t, ok, "key header %q", header)
		assert.Equal(t, field, got)
	}
}

func TestCategoryColumnNames(t *testing.T) {
	assert.Equal(t, "enrol_0_5", dataset.Enrolment.Column("0_5"))
	assert.Equal(t, "bio_5_17", dataset.Biometric.Column("5_17"))
	assert.Equal(t, "demo_18_plus", dataset.Demographic.Column("18_plus"))
}

func TestLoadMapping_OverlaysDefaults(t *testing.T) {
	// GIVEN: A site-local mapping file adding one header variant
	// WHEN: Loading it
	// THEN: The new variant resolves and version-1 entries still do

	path := filepath.Join(t.TempDir(), "schema.yaml")
	doc := "version: 2\ncategories:\n  enrolment:\n    children_under_five: 0_5\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := dataset.LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)

	bucket, ok := m.ResolveBucket(dataset.Enrolment, "children_under_five")
	require.True(t, ok)
	assert.Equal(t, "0_5", bucket)

	bucket, ok = m.ResolveBucket(dataset.Enrolment, "age_0_5")
	require.True(t, ok)
	assert.Equal(t, "0_5", bucket)
}

func TestLoadMapping_MissingFile(t *testing.T) {
	_, err := dataset.LoadMapping(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
