package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Tier is a named target quality for one rendition.
type Tier struct {
	// Label identifies the tier in file names and API payloads (e.g., "720p").
	Label string
	// Height is the output height in pixels. Width follows the source aspect ratio.
	Height int
	// VideoBitrateKbps is the fixed target video bitrate.
	VideoBitrateKbps int
}

var (
	Tier720p  = Tier{Label: "720p", Height: 720, VideoBitrateKbps: 2000}
	Tier1080p = Tier{Label: "1080p", Height: 1080, VideoBitrateKbps: 4000}
)

// Catalog returns every supported tier ordered by height.
func Catalog() []Tier {
	return []Tier{Tier720p, Tier1080p}
}

func (t Tier) String() string {
	return t.Label
}

// CompareTiers orders tiers by height. It is suitable for slices.SortFunc.
func CompareTiers(a, b Tier) int {
	return cmp.Compare(a.Height, b.Height)
}

// ParseTier resolves a tier label against the catalog.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseTier(label string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, t := range Catalog() {
		if t.Label == normalized {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %q", ErrUnknownTier, label)
}

// ParseTiers resolves a job's requested tier labels, preserving request order.
// The result is non-empty and contains each tier at most once.
func ParseTiers(labels []string) ([]Tier, error) {
	if len(labels) == 0 {
		return nil, ErrNoTiers
	}

	tiers := make([]Tier, 0, len(labels))
	for _, label := range labels {
		t, err := ParseTier(label)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}

	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

// ValidateTiers checks that tiers is non-empty and has no repeated labels.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return ErrNoTiers
	}

	seen := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		if _, dup := seen[t.Label]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTier, t.Label)
		}
		seen[t.Label] = struct{}{}
	}
	return nil
}

// SortedByHeight returns a copy of tiers ordered from lowest to highest.
func SortedByHeight(tiers []Tier) []Tier {
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, CompareTiers)
	return sorted
}
