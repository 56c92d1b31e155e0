package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haldar/aadhaar-sentinel/dataset"
)

func TestCanonicalStates_ClosedEnumerationOf36(t *testing.T) {
	states := dataset.CanonicalStates()
	assert.Len(t, states, 36)
	assert.Contains(t, states, "West Bengal")
	assert.Contains(t, states, "NCT Of Delhi")
	assert.Contains(t, states, "Dadra And Nagar Haveli And Daman And Diu")
}

func TestCanonicalize_KnownMisspelling(t *testing.T) {
	// GIVEN: The classic dump spelling with stray whitespace
	// WHEN: Canonicalizing
	// THEN: It lands on the canonical name

	c := dataset.NewCanonicalizer(dataset.PolicyPassthrough)

	name, ok := c.Canonicalize(" west bangal ")
	assert.True(t, ok)
	assert.Equal(t, "West Bengal", name)
}

func TestCanonicalize_CommonVariants(t *testing.T) {
	c := dataset.NewCanonicalizer(dataset.PolicyPassthrough)

	cases := map[string]string{
		"ORISSA":          "Odisha",
		"pondicherry":     "Puducherry",
		"Jammu & Kashmir": "Jammu And Kashmir",
		"delhi":           "NCT Of Delhi",
		"TAMILNADU":       "Tamil Nadu",
		"uttaranchal":     "Uttarakhand",
	}
	for raw, want := range cases {
		name, ok := c.Canonicalize(raw)
		assert.True(t, ok, "variant %q should resolve", raw)
		assert.Equal(t, want, name, "variant %q", raw)
	}
}

func TestCanonicalize_IdempotentOnCanonicalNames(t *testing.T) {
	// GIVEN: Every canonical name, exactly as enumerated
	// WHEN: Canonicalizing it again
	// THEN: It comes back unchanged and recognized

	c := dataset.NewCanonicalizer(dataset.PolicyPassthrough)
	for _, s := range dataset.CanonicalStates() {
		name, ok := c.Canonicalize(s)
		assert.True(t, ok, "canonical %q should stay recognized", s)
		assert.Equal(t, s, name, "canonical %q should be a fixed point", s)
	}
}

func TestCanonicalize_UnrecognizedPassesThroughCleaned(t *testing.T) {
	c := dataset.NewCanonicalizer(dataset.PolicyPassthrough)

	name, ok := c.Canonicalize("  kingdom of atlantis ")
	assert.False(t, ok)
	assert.Equal(t, "Kingdom Of Atlantis", name)
}

func TestParseRegionPolicy(t *testing.T) {
	p, err := dataset.ParseRegionPolicy(" Quarantine ")
	require.NoError(t, err)
	assert.Equal(t, dataset.PolicyQuarantine, p)

	_, err = dataset.ParseRegionPolicy("reject")
	assert.Error(t, err)
}

func TestLoadAliases_ExtendsTable(t *testing.T) {
	c := dataset.NewCanonicalizer(dataset.PolicyPassthrough)
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Bengal: West Bengal\nKarnatka: Karnataka\n"), 0o644))

	require.NoError(t, c.LoadAliases(path))

	name, ok := c.Canonicalize("karnatka")
	assert.True(t, ok)
	assert.Equal(t, "Karnataka", name)
}

func TestLoadAliases_RejectsNonCanonicalTarget(t *testing.T) {
	c := dataset.NewCanonicalizer(dataset.PolicyPassthrough)
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Bengal: Atlantis\n"), 0o644))

	assert.Error(t, c.LoadAliases(path))
}
