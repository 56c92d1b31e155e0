/*
regions.go - State-name canonicalization

PURPOSE:
  Registry dumps spell administrative regions every way imaginable:
  " west bangal ", "WEST BENGAL", "Orissa", "Pondicherry". Grouping keys
  fragment unless every variant resolves to exactly one authoritative
  name. This file keeps the closed enumeration of the 36 states and union
  territories, a title-cased alias table for known variants, and the
  policy for values neither list recognizes.

POLICY FOR UNRECOGNIZED VALUES:
  - passthrough (default): the cleaned value flows on uncanonicalized.
    Joins and filters simply see an extra region value.
  - quarantine: the row is held out of the canonical table and the value
    is reported, so one typo cannot masquerade as a real region.

  The alias table is deliberately not exhaustive - it covers the variants
  actually seen in the dumps and can be extended from a YAML file without
  a rebuild.
*/
package dataset

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// REGION POLICY
// =============================================================================

// RegionPolicy decides what happens to a state value that is neither
// canonical nor a known alias.
type RegionPolicy string

const (
	PolicyPassthrough RegionPolicy = "passthrough"
	PolicyQuarantine  RegionPolicy = "quarantine"
)

// ParseRegionPolicy validates a configured policy string.
func ParseRegionPolicy(s string) (RegionPolicy, error) {
	switch RegionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyPassthrough:
		return PolicyPassthrough, nil
	case PolicyQuarantine:
		return PolicyQuarantine, nil
	}
	return "", fmt.Errorf("unknown region policy %q (want passthrough or quarantine)", s)
}

// =============================================================================
// CANONICAL ENUMERATION - 28 states + 8 union territories
// =============================================================================

var canonicalStates = []string{
	"Andhra Pradesh",
	"Arunachal Pradesh",
	"Assam",
	"Bihar",
	"Chhattisgarh",
	"Goa",
	"Gujarat",
	"Haryana",
	"Himachal Pradesh",
	"Jharkhand",
	"Karnataka",
	"Kerala",
	"Madhya Pradesh",
	"Maharashtra",
	"Manipur",
	"Meghalaya",
	"Mizoram",
	"Nagaland",
	"Odisha",
	"Punjab",
	"Rajasthan",
	"Sikkim",
	"Tamil Nadu",
	"Telangana",
	"Tripura",
	"Uttar Pradesh",
	"Uttarakhand",
	"West Bengal",
	"Andaman And Nicobar Islands",
	"Chandigarh",
	"Dadra And Nagar Haveli And Daman And Diu",
	"Jammu And Kashmir",
	"Ladakh",
	"Lakshadweep",
	"NCT Of Delhi",
	"Puducherry",
}

// CanonicalStates returns the closed enumeration, sorted.
func CanonicalStates() []string {
	out := append([]string(nil), canonicalStates...)
	sort.Strings(out)
	return out
}

// defaultAliases maps title-cased variants to canonical names. "Nct Of
// Delhi" bridges the title-caser's output back to the canonical spelling
// so canonical input stays a fixed point.
var defaultAliases = map[string]string{
	"West Bangal":                "West Bengal",
	"West Bengol":                "West Bengal",
	"Westbengal":                 "West Bengal",
	"Orissa":                     "Odisha",
	"Pondicherry":                "Puducherry",
	"Uttaranchal":                "Uttarakhand",
	"Chattisgarh":                "Chhattisgarh",
	"Chhatisgarh":                "Chhattisgarh",
	"Tamilnadu":                  "Tamil Nadu",
	"Telengana":                  "Telangana",
	"Jammu & Kashmir":            "Jammu And Kashmir",
	"J&K":                        "Jammu And Kashmir",
	"Delhi":                      "NCT Of Delhi",
	"New Delhi":                  "NCT Of Delhi",
	"Nct Of Delhi":               "NCT Of Delhi",
	"Andaman And Nicobar":        "Andaman And Nicobar Islands",
	"Andaman & Nicobar Islands":  "Andaman And Nicobar Islands",
	"A & N Islands":              "Andaman And Nicobar Islands",
	"Dadra And Nagar Haveli":     "Dadra And Nagar Haveli And Daman And Diu",
	"Dadra & Nagar Haveli":       "Dadra And Nagar Haveli And Daman And Diu",
	"Daman And Diu":              "Dadra And Nagar Haveli And Daman And Diu",
	"Daman & Diu":                "Dadra And Nagar Haveli And Daman And Diu",
}

// =============================================================================
// CANONICALIZER
// =============================================================================

// Canonicalizer resolves raw state spellings to canonical names. Not safe
// for concurrent use; the load pipeline is single-threaded.
type Canonicalizer struct {
	policy  RegionPolicy
	canon   map[string]struct{}
	aliases map[string]string
	titler  cases.Caser
}

func NewCanonicalizer(policy RegionPolicy) *Canonicalizer {
	c := &Canonicalizer{
		policy:  policy,
		canon:   make(map[string]struct{}, len(canonicalStates)),
		aliases: make(map[string]string, len(defaultAliases)),
		titler:  cases.Title(language.English),
	}
	for _, s := range canonicalStates {
		c.canon[s] = struct{}{}
	}
	for variant, target := range defaultAliases {
		c.aliases[variant] = target
	}
	return c
}

func (c *Canonicalizer) Policy() RegionPolicy { return c.policy }

// LoadAliases extends the alias table from a YAML file of
// variant-to-canonical pairs. Targets must be canonical names.
func (c *Canonicalizer) LoadAliases(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read alias file: %w", err)
	}
	extra := make(map[string]string)
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return fmt.Errorf("parse alias file %s: %w", path, err)
	}
	for variant, target := range extra {
		if _, ok := c.canon[target]; !ok {
			return fmt.Errorf("alias %q maps to non-canonical state %q", variant, target)
		}
		c.aliases[c.Clean(variant)] = target
	}
	return nil
}

// Canonicalize resolves a raw spelling. ok reports whether the value
// landed on the canonical enumeration; when false the returned name is
// the cleaned passthrough form (the caller applies the policy).
func (c *Canonicalizer) Canonicalize(raw string) (name string, ok bool) {
	clean := c.Clean(raw)
	if _, hit := c.canon[clean]; hit {
		return clean, true
	}
	if target, hit := c.aliases[clean]; hit {
		return target, true
	}
	return clean, false
}

// Clean trims and title-cases, the matching form for both tables. Also
// used for district names, which get casing cleanup but no canonical
// list.
func (c *Canonicalizer) Clean(raw string) string {
	return c.titler.String(strings.TrimSpace(raw))
}
