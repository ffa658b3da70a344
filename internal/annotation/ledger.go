package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Ledger maps annotator identity to that annotator's latest submission for
// one task. Iteration order is the order in which annotators first
// submitted, which keeps merge output reproducible.
type Ledger struct {
	order   []string
	entries map[string][]Span
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string][]Span)}
}

// Submit replaces the annotator's whole submission. Other annotators'
// entries are left untouched and a re-submitting annotator keeps its
// position in the iteration order.
func (l *Ledger) Submit(annotator string, spans []Span) *Ledger {
	if l.entries == nil {
		l.entries = make(map[string][]Span)
	}
	if _, ok := l.entries[annotator]; !ok {
		l.order = append(l.order, annotator)
	}
	stored := make([]Span, len(spans))
	for i, span := range spans {
		span.Annotator = annotator
		stored[i] = span
	}
	l.entries[annotator] = stored
	return l
}

// Annotators returns annotator identities in iteration order.
func (l *Ledger) Annotators() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Spans returns a copy of the annotator's current submission.
func (l *Ledger) Spans(annotator string) []Span {
	if l == nil {
		return nil
	}
	spans, ok := l.entries[annotator]
	if !ok {
		return nil
	}
	out := make([]Span, len(spans))
	copy(out, spans)
	return out
}

func (l *Ledger) Has(annotator string) bool {
	if l == nil {
		return false
	}
	_, ok := l.entries[annotator]
	return ok
}

// Len is the number of annotators in the ledger.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}

func (l *Ledger) Clone() *Ledger {
	clone := NewLedger()
	if l == nil {
		return clone
	}
	for _, annotator := range l.order {
		clone.Submit(annotator, l.entries[annotator])
	}
	return clone
}

// Labels counts spans per label across every annotator.
func (l *Ledger) Labels() map[string]int {
	counts := make(map[string]int)
	if l == nil {
		return counts
	}
	for _, annotator := range l.order {
		for _, span := range l.entries[annotator] {
			counts[span.Label]++
		}
	}
	return counts
}

type ledgerEntry struct {
	Annotator string `json:"annotator"`
	Spans     []Span `json:"spans"`
}

// MarshalJSON encodes the ledger as an ordered list so persistence round
// trips keep the annotator order.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	entries := make([]ledgerEntry, 0, l.Len())
	if l != nil {
		for _, annotator := range l.order {
			spans := l.entries[annotator]
			if spans == nil {
				spans = []Span{}
			}
			entries = append(entries, ledgerEntry{Annotator: annotator, Spans: spans})
		}
	}
	return json.Marshal(entries)
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var entries []ledgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode ledger: %w", err)
	}
	l.order = nil
	l.entries = make(map[string][]Span, len(entries))
	for _, entry := range entries {
		l.Submit(entry.Annotator, entry.Spans)
	}
	return nil
}

// Rejection describes one span dropped from a submission batch.
type Rejection struct {
	Index int   `json:"index"`
	Span  Span  `json:"span"`
	Err   error `json:"-"`
}

func (r Rejection) Reason() string {
	var invalid *InvalidSpanError
	if errors.As(r.Err, &invalid) {
		return invalid.Reason
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// ValidateBatch checks every span against the text independently. One bad
// span never discards the rest of the batch.
func ValidateBatch(text string, spans []Span) ([]Span, []Rejection) {
	valid := make([]Span, 0, len(spans))
	var rejected []Rejection
	for i, span := range spans {
		span.Label = strings.TrimSpace(span.Label)
		if err := ValidateSpan(text, span.Start, span.End, span.Label); err != nil {
			rejected = append(rejected, Rejection{Index: i, Span: span, Err: err})
			continue
		}
		if span.IdentifierType != "" {
			span.IdentifierType = span.IdentifierType.Normalize()
		}
		valid = append(valid, span)
	}
	return valid, rejected
}

// ErrLedgerNotFound is returned by a LedgerStore when a task has no ledger.
var ErrLedgerNotFound = errors.New("ledger not found")

// LedgerStore loads and saves ledgers by task id. Implementations own
// persistence; this package keeps no global state.
//
// SubmitSpans applies Ledger.Submit for one annotator as a single atomic
// read-modify-write against the stored ledger and returns the result, so
// concurrent submissions by different annotators never overwrite each other.
type LedgerStore interface {
	GetLedger(ctx context.Context, taskID string) (*Ledger, error)
	SaveLedger(ctx context.Context, taskID string, ledger *Ledger) error
	SubmitSpans(ctx context.Context, taskID, annotator string, spans []Span) (*Ledger, error)
}
