package search

import (
	"fmt"
	"strings"
)

// ResultType identifies the kind of record in a search result.
type ResultType string

const (
	ResultTask   ResultType = "task"
	ResultEntity ResultType = "entity"
)

// ParseResultType maps a query parameter to a filter; anything unknown means all types.
func ParseResultType(raw string) ResultType {
	switch ResultType(strings.ToLower(strings.TrimSpace(raw))) {
	case ResultTask:
		return ResultTask
	case ResultEntity:
		return ResultEntity
	default:
		return ""
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	TaskID      string     `json:"taskId"`
	WorkspaceID string     `json:"workspaceId"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterType        ResultType // empty = all types
	FilterWorkspaceID string
	Limit             int
	Offset            int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Text        string `json:"text"`
	Status      string `json:"status"`
}

// EntityRecord is the data we index for one merged annotation of a task.
type EntityRecord struct {
	ID          string   `json:"id"`
	TaskID      string   `json:"taskId"`
	WorkspaceID string   `json:"workspaceId"`
	EntityType  string   `json:"entityType"`
	SpanText    string   `json:"spanText"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Annotators  []string `json:"annotators"`
	Confidence  float64  `json:"confidence"`
}

// EntityRecordID builds an index-safe primary key for a merged annotation.
func EntityRecordID(taskID string, start, end int, label string) string {
	return fmt.Sprintf("%s_%d_%d_%s", safeID(taskID), start, end, safeID(label))
}

func safeID(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
