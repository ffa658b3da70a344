// Package annotation holds the span model and the multi-annotator merge
// engine. It has no knowledge of HTTP, SQL or sessions: callers hand it
// plain ledgers and get plain merged records back.
package annotation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// IdentifierType classifies an entity for PII corpus exports.
type IdentifierType string

const (
	IdentifierDirect  IdentifierType = "direct"
	IdentifierQuasi   IdentifierType = "quasi"
	IdentifierDefault IdentifierType = "default"
)

// Normalize maps empty or unknown identifier types to IdentifierDefault.
func (t IdentifierType) Normalize() IdentifierType {
	switch t {
	case IdentifierDirect, IdentifierQuasi, IdentifierDefault:
		return t
	default:
		return IdentifierDefault
	}
}

// Span is a single labelled character range [Start, End) produced by one
// annotator. Offsets count runes, not bytes.
type Span struct {
	Start          int            `json:"start"`
	End            int            `json:"end"`
	Label          string         `json:"label"`
	Annotator      string         `json:"annotator,omitempty"`
	SpanID         string         `json:"span_id,omitempty"`
	EntityID       string         `json:"entity_id,omitempty"`
	IdentifierType IdentifierType `json:"identifier_type,omitempty"`
}

// Key is the exact-match identity used to decide whether two annotators
// produced the same annotation.
type Key struct {
	Start int
	End   int
	Label string
}

func (s Span) Key() Key {
	return Key{Start: s.Start, End: s.End, Label: s.Label}
}

// Overlaps reports whether the two ranges share at least one character.
// Touching edges do not count.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// ErrInvalidSpan is the sentinel wrapped by every InvalidSpanError.
var ErrInvalidSpan = errors.New("invalid span")

// InvalidSpanError carries the offending values of a rejected span.
type InvalidSpanError struct {
	Start      int
	End        int
	Label      string
	TextLength int
	Reason     string
}

func (e *InvalidSpanError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid span [%d, %d) label %q in text of length %d: %s",
		e.Start, e.End, e.Label, e.TextLength, e.Reason)
}

func (e *InvalidSpanError) Unwrap() error {
	return ErrInvalidSpan
}

// ValidateSpan checks a span against the text it annotates.
func ValidateSpan(text string, start, end int, label string) error {
	length := utf8.RuneCountInString(text)
	reason := ""
	switch {
	case start < 0:
		reason = "start is negative"
	case end > length:
		reason = "end is beyond the end of the text"
	case start >= end:
		reason = "start must be before end"
	case strings.TrimSpace(label) == "":
		reason = "label is empty"
	}
	if reason == "" {
		return nil
	}
	return &InvalidSpanError{
		Start:      start,
		End:        end,
		Label:      label,
		TextLength: length,
		Reason:     reason,
	}
}

// ExpandLabels turns one multi-label mark into independent single-label spans
// sharing the same offsets. Blank labels are dropped.
func ExpandLabels(span Span, labels []string) []Span {
	out := make([]Span, 0, len(labels))
	for _, label := range labels {
		if strings.TrimSpace(label) == "" {
			continue
		}
		item := span
		item.Label = label
		out = append(out, item)
	}
	return out
}

// Slice returns text[start:end] in rune offsets, clamped to the text bounds.
func Slice(text string, start, end int) string {
	return sliceRunes([]rune(text), start, end)
}

func sliceRunes(runes []rune, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}
