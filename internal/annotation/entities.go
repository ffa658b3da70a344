package annotation

// Entity is the flat export record for one merged annotation.
type Entity struct {
	Start          int            `json:"start"`
	End            int            `json:"end"`
	EntityType     string         `json:"entity_type"`
	Annotators     []string       `json:"annotators"`
	Confidence     float64        `json:"confidence"`
	SpanText       string         `json:"span_text"`
	SpanID         string         `json:"span_id"`
	EntityID       string         `json:"entity_id"`
	IdentifierType IdentifierType `json:"identifier_type"`
}

// Entities formats merged annotations for corpus export.
func Entities(text string, merged []Merged) []Entity {
	runes := []rune(text)
	out := make([]Entity, 0, len(merged))
	for _, m := range merged {
		out = append(out, Entity{
			Start:          m.Start,
			End:            m.End,
			EntityType:     m.Label,
			Annotators:     append([]string(nil), m.Annotators...),
			Confidence:     m.Confidence,
			SpanText:       sliceRunes(runes, m.Start, m.End),
			SpanID:         m.SpanID,
			EntityID:       m.EntityID,
			IdentifierType: m.IdentifierType.Normalize(),
		})
	}
	return out
}
