package export

import (
	"fmt"
	"time"

	"nercollab/internal/annotation"
)

type LSTask struct {
	ID          string         `json:"id"`
	Data        LSData         `json:"data"`
	Annotations []LSAnnotation `json:"annotations"`
	Predictions []LSPrediction `json:"predictions"`
	Meta        map[string]any `json:"meta,omitempty"`
}

type LSData struct {
	Text string `json:"text"`
}

type LSAnnotation struct {
	ID          int        `json:"id"`
	CompletedBy string     `json:"completed_by"`
	CreatedAt   time.Time  `json:"created_at"`
	Result      []LSResult `json:"result"`
}

type LSPrediction struct {
	ModelVersion string     `json:"model_version"`
	Score        float64    `json:"score"`
	Result       []LSResult `json:"result"`
}

type LSResult struct {
	ID       string  `json:"id"`
	FromName string  `json:"from_name"`
	ToName   string  `json:"to_name"`
	Type     string  `json:"type"`
	Value    LSValue `json:"value"`
	Score    float64 `json:"score,omitempty"`
}

type LSValue struct {
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

// LabelStudioTasks converts an export into Label Studio import tasks: one
// annotation per annotator and the merged result as a prediction.
func LabelStudioTasks(bundle *WorkspaceExport) []LSTask {
	out := make([]LSTask, 0, len(bundle.Tasks))
	for _, task := range bundle.Tasks {
		item := LSTask{
			ID:          task.ID,
			Data:        LSData{Text: task.Text},
			Annotations: []LSAnnotation{},
			Predictions: []LSPrediction{},
			Meta:        task.Metadata,
		}
		for i, annotator := range task.IndividualAnnotations.Annotators() {
			spans := task.IndividualAnnotations.Spans(annotator)
			results := make([]LSResult, 0, len(spans))
			for j, span := range spans {
				results = append(results, lsResult(fmt.Sprintf("%s-%d-%d", task.ID, i+1, j+1), span.Start, span.End,
					annotation.Slice(task.Text, span.Start, span.End), span.Label, 0))
			}
			item.Annotations = append(item.Annotations, LSAnnotation{
				ID:          i + 1,
				CompletedBy: annotator,
				CreatedAt:   task.UpdatedAt,
				Result:      results,
			})
		}

		merged := make([]LSResult, 0, len(task.MergedAnnotations))
		score := 0.0
		for j, e := range task.MergedAnnotations {
			merged = append(merged, lsResult(fmt.Sprintf("%s-m-%d", task.ID, j+1), e.Start, e.End, e.SpanText, e.EntityType, e.Confidence))
			score += e.Confidence
		}
		if len(merged) > 0 {
			item.Predictions = append(item.Predictions, LSPrediction{
				ModelVersion: "merge-" + string(bundle.MergeStrategy),
				Score:        score / float64(len(merged)),
				Result:       merged,
			})
		}
		out = append(out, item)
	}
	return out
}

func lsResult(id string, start, end int, text, label string, score float64) LSResult {
	return LSResult{
		ID:       id,
		FromName: "label",
		ToName:   "text",
		Type:     "labels",
		Value: LSValue{
			Start:  start,
			End:    end,
			Text:   text,
			Labels: []string{label},
		},
		Score: score,
	}
}
