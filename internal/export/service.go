package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nercollab/internal/annotation"
	"nercollab/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	ListTasks(ctx context.Context, workspaceID string) ([]store.Task, error)
}

// Service builds workspace exports
type Service struct {
	store DataStore
	now   func() time.Time
	pdf   func(html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store, now: time.Now, pdf: exportPDF}
}

// Build loads the workspace and merges every task's ledger with the policy.
func (s *Service) Build(ctx context.Context, workspaceID string, policy annotation.Policy) (*WorkspaceExport, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := &WorkspaceExport{
		Workspace: WorkspaceInfo{
			ID:          workspace.ID,
			Name:        workspace.Name,
			Description: workspace.Description,
			CreatedAt:   workspace.CreatedAt,
			Members:     nonNilStrings(workspace.Members),
			Labels:      workspace.Labels,
		},
		Tasks:         make([]TaskExport, 0, len(tasks)),
		ExportDate:    s.now().UTC(),
		MergeStrategy: policy,
	}
	for _, task := range tasks {
		ledger := task.Ledger
		if ledger == nil {
			ledger = annotation.NewLedger()
		}
		out.Tasks = append(out.Tasks, TaskExport{
			ID:                    task.ID,
			Text:                  task.Text,
			CreatedAt:             task.CreatedAt,
			UpdatedAt:             task.UpdatedAt,
			Status:                task.Status,
			Metadata:              task.Metadata,
			IndividualAnnotations: ledger,
			MergedAnnotations:     annotation.Entities(task.Text, annotation.Merge(ledger, policy)),
		})
	}
	return out, nil
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	bundle, err := s.Build(ctx, req.WorkspaceID, req.Policy)
	if err != nil {
		return nil, err
	}
	return s.Render(bundle, req.Format)
}

// Render encodes an already built export.
func (s *Service) Render(bundle *WorkspaceExport, format Format) (*Result, error) {
	base := sanitizeFilename(bundle.Workspace.Name) + "-" + string(bundle.MergeStrategy)

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json export: %w", err)
		}
		return &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	case FormatJSONL:
		var buf bytes.Buffer
		if err := WriteJSONL(&buf, bundle.Tasks); err != nil {
			return nil, err
		}
		return &Result{Data: buf.Bytes(), Filename: base + ".jsonl", MimeType: "application/x-ndjson"}, nil
	case FormatLabelStudio:
		data, err := json.MarshalIndent(LabelStudioTasks(bundle), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode label studio export: %w", err)
		}
		return &Result{Data: data, Filename: base + "-labelstudio.json", MimeType: "application/json"}, nil
	case FormatCoNLL:
		var buf bytes.Buffer
		if err := WriteCoNLL(&buf, bundle.Tasks); err != nil {
			return nil, err
		}
		return &Result{Data: buf.Bytes(), Filename: base + ".conll", MimeType: "text/plain; charset=utf-8"}, nil
	case FormatPDF:
		html, err := RenderReportHTML(ReportData(bundle))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return s.pdf(html, base)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
