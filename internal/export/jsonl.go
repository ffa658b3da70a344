package export

import (
	"encoding/json"
	"fmt"
	"io"

	"nercollab/internal/annotation"
)

type jsonlLine struct {
	ID       string              `json:"id"`
	Text     string              `json:"text"`
	Entities []annotation.Entity `json:"entities"`
	Metadata map[string]any      `json:"metadata"`
}

// WriteJSONL writes one line per task with its merged entities.
func WriteJSONL(w io.Writer, tasks []TaskExport) error {
	enc := json.NewEncoder(w)
	for _, task := range tasks {
		metadata := task.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		entities := task.MergedAnnotations
		if entities == nil {
			entities = []annotation.Entity{}
		}
		if err := enc.Encode(jsonlLine{ID: task.ID, Text: task.Text, Entities: entities, Metadata: metadata}); err != nil {
			return fmt.Errorf("encode jsonl line for %s: %w", task.ID, err)
		}
	}
	return nil
}
