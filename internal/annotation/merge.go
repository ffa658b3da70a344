package annotation

import (
	"sort"
	"strings"
)

// Policy is the agreement rule used to reduce several annotators'
// submissions to one consensus set.
type Policy string

const (
	PolicyUnion        Policy = "union"
	PolicyIntersection Policy = "intersection"
	PolicyMajority     Policy = "majority"
)

// Policies lists the supported policies in display order.
var Policies = []Policy{PolicyUnion, PolicyIntersection, PolicyMajority}

func (p Policy) Valid() bool {
	switch p {
	case PolicyUnion, PolicyIntersection, PolicyMajority:
		return true
	default:
		return false
	}
}

// ParsePolicy converts a wire value to a Policy. Unknown or empty names fall
// back to PolicyUnion instead of failing.
func ParsePolicy(name string) Policy {
	if policy := normalizePolicy(name); policy.Valid() {
		return policy
	}
	return PolicyUnion
}

// IsKnownPolicy reports whether ParsePolicy maps name to a policy without
// falling back.
func IsKnownPolicy(name string) bool {
	return normalizePolicy(name).Valid()
}

func normalizePolicy(name string) Policy {
	return Policy(strings.ToLower(strings.TrimSpace(name)))
}

// Merged is one consensus annotation with its provenance.
type Merged struct {
	Start          int            `json:"start"`
	End            int            `json:"end"`
	Label          string         `json:"label"`
	SpanID         string         `json:"span_id,omitempty"`
	EntityID       string         `json:"entity_id,omitempty"`
	IdentifierType IdentifierType `json:"identifier_type,omitempty"`
	Annotators     []string       `json:"annotators"`
	Confidence     float64        `json:"confidence"`
}

func (m Merged) Key() Key {
	return Key{Start: m.Start, End: m.End, Label: m.Label}
}

type keyGroup struct {
	first      Span
	annotators []string
}

// group builds key -> annotators in ledger iteration order. Keys keep the
// order in which they were first encountered and an annotator is recorded
// once per key.
func group(ledger *Ledger) []*keyGroup {
	var groups []*keyGroup
	index := make(map[Key]*keyGroup)
	for _, annotator := range ledger.order {
		for _, span := range ledger.entries[annotator] {
			key := span.Key()
			g, ok := index[key]
			if !ok {
				g = &keyGroup{first: span}
				index[key] = g
				groups = append(groups, g)
			}
			// annotators are visited one at a time, so a repeat can only
			// be the most recent entry
			if n := len(g.annotators); n > 0 && g.annotators[n-1] == annotator {
				continue
			}
			g.annotators = append(g.annotators, annotator)
		}
	}
	return groups
}

// Merge computes the consensus annotations of a ledger under a policy. It is
// deterministic for a fixed ledger and never fails; an empty ledger yields
// an empty slice.
func Merge(ledger *Ledger, policy Policy) []Merged {
	total := ledger.Len()
	if total == 0 {
		return []Merged{}
	}

	var keep func(agree int) (bool, float64)
	switch policy {
	case PolicyIntersection:
		keep = func(agree int) (bool, float64) {
			return agree == total, 1.0
		}
	case PolicyMajority:
		threshold := float64(total) / 2
		keep = func(agree int) (bool, float64) {
			return float64(agree) > threshold, float64(agree) / float64(total)
		}
	default:
		keep = func(agree int) (bool, float64) {
			return true, float64(agree) / float64(total)
		}
	}

	merged := make([]Merged, 0)
	for _, g := range group(ledger) {
		ok, confidence := keep(len(g.annotators))
		if !ok {
			continue
		}
		annotators := make([]string, len(g.annotators))
		copy(annotators, g.annotators)
		merged = append(merged, Merged{
			Start:          g.first.Start,
			End:            g.first.End,
			Label:          g.first.Label,
			SpanID:         g.first.SpanID,
			EntityID:       g.first.EntityID,
			IdentifierType: g.first.IdentifierType,
			Annotators:     annotators,
			Confidence:     confidence,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start < merged[j].Start
	})
	return merged
}
