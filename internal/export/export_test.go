package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"nercollab/internal/annotation"
	"nercollab/internal/store"
)

type fakeStore struct {
	workspace store.Workspace
	tasks     []store.Task
	err       error
}

func (f *fakeStore) GetWorkspace(_ context.Context, workspaceID string) (store.Workspace, error) {
	if f.err != nil {
		return store.Workspace{}, f.err
	}
	if workspaceID != f.workspace.ID {
		return store.Workspace{}, sql.ErrNoRows
	}
	return f.workspace, nil
}

func (f *fakeStore) ListTasks(_ context.Context, _ string) ([]store.Task, error) {
	return f.tasks, nil
}

const sampleText = "Alice met Bob in New York"

func sampleStore() *fakeStore {
	ledger := annotation.NewLedger().
		Submit("alice", []annotation.Span{
			{Start: 0, End: 5, Label: "PERSON"},
			{Start: 17, End: 25, Label: "LOCATION"},
		}).
		Submit("bob", []annotation.Span{
			{Start: 0, End: 5, Label: "PERSON"},
			{Start: 10, End: 13, Label: "PERSON"},
		})
	return &fakeStore{
		workspace: store.Workspace{
			ID:      "ws-1",
			Name:    "News Corpus",
			Labels:  store.DefaultLabels,
			Members: []string{"alice", "bob"},
		},
		tasks: []store.Task{
			{ID: "task-1", WorkspaceID: "ws-1", Text: sampleText, Status: store.TaskInProgress, Ledger: ledger},
			{ID: "task-2", WorkspaceID: "ws-1", Text: "No entities here", Status: store.TaskPending},
		},
	}
}

func newTestService(fs DataStore) *Service {
	svc := NewService(fs)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSONL", FormatJSONL, false},
		{"label-studio", FormatLabelStudio, false},
		{"conll", FormatCoNLL, false},
		{"pdf", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseFormat(%q) = %q, %v", tt.input, got, err)
			}
		})
	}
}

func TestBuildMergesEveryTask(t *testing.T) {
	svc := newTestService(sampleStore())
	bundle, err := svc.Build(context.Background(), "ws-1", annotation.PolicyMajority)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(bundle.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(bundle.Tasks))
	}
	merged := bundle.Tasks[0].MergedAnnotations
	if len(merged) != 1 || merged[0].SpanText != "Alice" || merged[0].Confidence != 1.0 {
		t.Fatalf("unexpected majority merge: %+v", merged)
	}
	if bundle.Tasks[1].MergedAnnotations == nil || len(bundle.Tasks[1].MergedAnnotations) != 0 {
		t.Fatalf("expected empty merged list for unannotated task, got %+v", bundle.Tasks[1].MergedAnnotations)
	}

	if _, err := svc.Build(context.Background(), "missing", annotation.PolicyUnion); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected wrapped sql.ErrNoRows, got %v", err)
	}
}

func TestRenderJSON(t *testing.T) {
	svc := newTestService(sampleStore())
	res, err := svc.Export(context.Background(), Request{WorkspaceID: "ws-1", Policy: annotation.PolicyUnion, Format: FormatJSON})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "News-Corpus-union.json" || res.MimeType != "application/json" {
		t.Fatalf("unexpected result meta: %s %s", res.Filename, res.MimeType)
	}

	var decoded struct {
		MergeStrategy string `json:"merge_strategy"`
		Workspace     struct {
			Members []string `json:"members"`
		} `json:"workspace"`
		Tasks []struct {
			Individual []struct {
				Annotator string `json:"annotator"`
			} `json:"individual_annotations"`
			Merged []annotation.Entity `json:"merged_annotations"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(res.Data, &decoded); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if decoded.MergeStrategy != "union" || len(decoded.Workspace.Members) != 2 {
		t.Fatalf("unexpected header: %+v", decoded)
	}
	if got := decoded.Tasks[0].Individual; len(got) != 2 || got[0].Annotator != "alice" || got[1].Annotator != "bob" {
		t.Fatalf("individual annotations lost submission order: %+v", got)
	}
	if len(decoded.Tasks[0].Merged) != 3 {
		t.Fatalf("expected 3 union entities, got %d", len(decoded.Tasks[0].Merged))
	}
}

func TestRenderJSONL(t *testing.T) {
	svc := newTestService(sampleStore())
	res, err := svc.Export(context.Background(), Request{WorkspaceID: "ws-1", Policy: annotation.PolicyUnion, Format: FormatJSONL})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(res.Data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one line per task, got %d", len(lines))
	}
	var first struct {
		Text     string              `json:"text"`
		Entities []annotation.Entity `json:"entities"`
		Metadata map[string]any      `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first.Text != sampleText || len(first.Entities) != 3 || first.Metadata == nil {
		t.Fatalf("unexpected line: %+v", first)
	}
	if first.Entities[2].EntityType != "LOCATION" || first.Entities[2].SpanText != "New York" {
		t.Fatalf("unexpected entity: %+v", first.Entities[2])
	}
}

func TestRenderCoNLL(t *testing.T) {
	svc := newTestService(sampleStore())
	res, err := svc.Export(context.Background(), Request{WorkspaceID: "ws-1", Policy: annotation.PolicyUnion, Format: FormatCoNLL})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	want := strings.Join([]string{
		"# Task: task-1",
		"Alice\tB-PERSON",
		"met\tO",
		"Bob\tB-PERSON",
		"in\tO",
		"New\tB-LOCATION",
		"York\tI-LOCATION",
		"",
		"# Task: task-2",
		"No\tO",
		"entities\tO",
		"here\tO",
		"",
	}, "\n")
	if string(res.Data) != want {
		t.Fatalf("unexpected conll:\n%s\nwant:\n%s", res.Data, want)
	}
}

func TestBIOTagsUseRuneOffsets(t *testing.T) {
	text := "김민수 씨는  서울에 산다"
	entities := []annotation.Entity{
		{Start: 0, End: 3, EntityType: "PERSON"},
		{Start: 8, End: 12, EntityType: ""},
	}
	words, tags := BIOTags(text, entities)
	wantWords := []string{"김민수", "씨는", "서울에", "산다"}
	wantTags := []string{"B-PERSON", "O", "B-MISC", "O"}
	for i := range wantWords {
		if words[i] != wantWords[i] || tags[i] != wantTags[i] {
			t.Fatalf("token %d = %q/%q, want %q/%q", i, words[i], tags[i], wantWords[i], wantTags[i])
		}
	}
}

func TestLabelStudioTasks(t *testing.T) {
	svc := newTestService(sampleStore())
	bundle, err := svc.Build(context.Background(), "ws-1", annotation.PolicyIntersection)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	tasks := LabelStudioTasks(bundle)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	first := tasks[0]
	if first.Data.Text != sampleText || len(first.Annotations) != 2 {
		t.Fatalf("unexpected task: %+v", first)
	}
	if first.Annotations[1].CompletedBy != "bob" || first.Annotations[1].Result[1].Value.Text != "Bob" {
		t.Fatalf("unexpected bob annotation: %+v", first.Annotations[1])
	}
	res := first.Annotations[0].Result[0]
	if res.FromName != "label" || res.ToName != "text" || res.Type != "labels" || res.Value.Labels[0] != "PERSON" {
		t.Fatalf("unexpected result shape: %+v", res)
	}
	if len(first.Predictions) != 1 || first.Predictions[0].ModelVersion != "merge-intersection" || len(first.Predictions[0].Result) != 1 {
		t.Fatalf("unexpected predictions: %+v", first.Predictions)
	}
	if len(tasks[1].Annotations) != 0 || len(tasks[1].Predictions) != 0 {
		t.Fatalf("expected empty annotations for second task: %+v", tasks[1])
	}
}

func TestRenderPDFUsesReportTemplate(t *testing.T) {
	svc := newTestService(sampleStore())
	var captured string
	svc.pdf = func(html, name string) (*Result, error) {
		captured = html
		return &Result{Data: []byte("%PDF"), Filename: name + "-report.pdf", MimeType: "application/pdf"}, nil
	}
	res, err := svc.Export(context.Background(), Request{WorkspaceID: "ws-1", Policy: annotation.PolicyUnion, Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "News-Corpus-union-report.pdf" {
		t.Fatalf("unexpected filename %q", res.Filename)
	}
	for _, want := range []string{"News Corpus", "union", "<mark style=\"background: #FF6B6B\">Alice<sub>PERSON</sub></mark>", "No merged annotations.", "50%"} {
		if !strings.Contains(captured, want) {
			t.Fatalf("report missing %q", want)
		}
	}
}

func TestHighlightSkipsOverlaps(t *testing.T) {
	entities := []annotation.Entity{
		{Start: 0, End: 5, EntityType: "PERSON"},
		{Start: 2, End: 8, EntityType: "MISC"},
		{Start: 10, End: 13, EntityType: "OTHER"},
	}
	segments := highlight(sampleText, entities, map[string]string{"PERSON": "#FF6B6B"})
	var plain bytes.Buffer
	for _, s := range segments {
		plain.WriteString(s.Text)
	}
	if plain.String() != sampleText {
		t.Fatalf("segments do not rebuild the text: %q", plain.String())
	}
	if len(segments) != 4 || segments[0].Label != "PERSON" || segments[2].Color != defaultHighlight {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	svc := newTestService(sampleStore())
	_, err := svc.Export(context.Background(), Request{WorkspaceID: "ws-1", Policy: annotation.PolicyUnion, Format: "docx"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Corpus v1.2", "Corpus-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "workspace"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := percentEncodeForDataURL(tt.input); got != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
