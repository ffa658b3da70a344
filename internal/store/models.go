package store

import (
	"time"

	"nercollab/internal/annotation"
)

type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DefaultLabels seeds every new workspace.
var DefaultLabels = []Label{
	{Name: "PERSON", Color: "#FF6B6B"},
	{Name: "LOCATION", Color: "#4ECDC4"},
	{Name: "ORGANIZATION", Color: "#45B7D1"},
	{Name: "DATE", Color: "#96CEB4"},
	{Name: "MISC", Color: "#FFA500"},
}

type Workspace struct {
	ID          string
	Name        string
	Description string
	Labels      []Label
	Members     []string
	CreatedAt   time.Time
}

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

type Task struct {
	ID          string
	WorkspaceID string
	Text        string
	TextHash    string
	Status      string
	Metadata    map[string]any
	Ledger      *annotation.Ledger
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Submission is one row of the append-only submission log.
type Submission struct {
	ID          int64
	TaskID      string
	Annotator   string
	Spans       []annotation.Span
	Accepted    int
	Rejected    int
	CommitHash  string
	SubmittedAt time.Time
}
