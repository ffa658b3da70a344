// Package export renders a workspace and its merged annotations into the
// interchange formats annotators hand to training pipelines.
package export

import (
	"errors"
	"strings"
	"time"

	"nercollab/internal/annotation"
	"nercollab/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatJSON        Format = "json"
	FormatJSONL       Format = "jsonl"
	FormatLabelStudio Format = "labelstudio"
	FormatCoNLL       Format = "conll"
	FormatPDF         Format = "pdf"
)

// ParseFormat maps a query value to a Format. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatJSONL, FormatLabelStudio, FormatCoNLL, FormatPDF:
		return f, nil
	case "label-studio", "label_studio":
		return FormatLabelStudio, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	WorkspaceID string
	Policy      annotation.Policy
	Format      Format
}

// WorkspaceExport is the full JSON export of a workspace.
type WorkspaceExport struct {
	Workspace     WorkspaceInfo     `json:"workspace"`
	Tasks         []TaskExport      `json:"tasks"`
	ExportDate    time.Time         `json:"export_date"`
	MergeStrategy annotation.Policy `json:"merge_strategy"`
}

type WorkspaceInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
	Members     []string      `json:"members"`
	Labels      []store.Label `json:"labels"`
}

type TaskExport struct {
	ID                    string              `json:"id"`
	Text                  string              `json:"text"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"-"`
	Status                string              `json:"status"`
	Metadata              map[string]any      `json:"metadata,omitempty"`
	IndividualAnnotations *annotation.Ledger  `json:"individual_annotations"`
	MergedAnnotations     []annotation.Entity `json:"merged_annotations"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for an unknown export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
