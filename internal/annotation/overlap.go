package annotation

import "sort"

// Overlapping returns every span of a single annotator's set that overlaps
// at least one other span, ordered by start offset.
func Overlapping(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sortSpans(sorted)

	flagged := make([]bool, len(sorted))
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Start >= sorted[i].End {
				break
			}
			if sorted[i].Overlaps(sorted[j]) {
				flagged[i] = true
				flagged[j] = true
			}
		}
	}

	out := make([]Span, 0)
	for i, span := range sorted {
		if flagged[i] {
			out = append(out, span)
		}
	}
	return out
}

func sortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
}
