package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"

	"nercollab/internal/annotation"
	"nercollab/internal/blob"
	"nercollab/internal/config"
	"nercollab/internal/events"
	"nercollab/internal/export"
	"nercollab/internal/gitrepo"
	"nercollab/internal/metrics"
	"nercollab/internal/search"
	"nercollab/internal/store"
	"nercollab/internal/util"
)

const (
	taskPreviewChars = 100
	// anonymousAnnotator is recorded when a submission names no annotator.
	anonymousAnnotator = "Anonymous"
)

// SpanInput is one span of a submission as sent by a client. Labels lets a
// client attach several entity types to the same offsets.
type SpanInput struct {
	Start          int      `json:"start"`
	End            int      `json:"end"`
	Label          string   `json:"label"`
	Labels         []string `json:"labels"`
	SpanID         string   `json:"span_id"`
	EntityID       string   `json:"entity_id"`
	IdentifierType string   `json:"identifier_type"`
}

type dataStore interface {
	Ping(context.Context) error
	InsertWorkspace(context.Context, store.Workspace) error
	ListWorkspaces(context.Context) ([]store.Workspace, error)
	GetWorkspace(context.Context, string) (store.Workspace, error)
	DeleteWorkspace(context.Context, string) (bool, error)
	AddMember(context.Context, string, string) error
	ListMembers(context.Context, string) ([]string, error)
	FindTaskByHash(context.Context, string, string) (store.Task, error)
	InsertTask(context.Context, store.Task) error
	GetTask(context.Context, string, string) (store.Task, error)
	ListTasks(context.Context, string) ([]store.Task, error)
	UpdateTaskStatus(context.Context, string, string, string) (bool, error)
	InsertSubmission(context.Context, store.Submission) error
	ListSubmissions(context.Context, string, string, int) ([]store.Submission, error)
}

type historyService interface {
	RecordSubmission(string, string, string, []annotation.Span) (gitrepo.CommitInfo, error)
	History(string, string, string, int) ([]gitrepo.CommitInfo, error)
	SubmissionAt(string, string, string, string) ([]annotation.Span, error)
	RemoveWorkspace(string) error
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexTask(search.TaskRecord)
	IndexEntities(string, []search.EntityRecord)
	DeleteWorkspace(string)
	ReindexAll([]search.TaskRecord, []search.EntityRecord)
}

type eventBus interface {
	Publish(context.Context, events.Event) error
	Serve(http.ResponseWriter, *http.Request, string)
}

type archiver interface {
	PutExport(context.Context, string, []byte, string) (blob.Object, error)
}

// Deps carries the collaborators of a Service. Search, Events and Archive
// are optional.
type Deps struct {
	Store   *store.PostgresStore
	Ledgers annotation.LedgerStore
	History *gitrepo.Service
	Search  *search.Service
	Events  *events.Bus
	Archive *blob.Store
}

type Service struct {
	cfg           config.Config
	store         dataStore
	ledgers       annotation.LedgerStore
	history       historyService
	search        searchIndex
	events        eventBus
	archive       archiver
	exporter      *export.Service
	defaultPolicy annotation.Policy
	taskLocks     *keyedMutex
	now           func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:           cfg,
		store:         deps.Store,
		ledgers:       deps.Ledgers,
		history:       deps.History,
		search:        search.NewService(nil, nil),
		events:        events.Nop{},
		exporter:      export.NewService(deps.Store),
		defaultPolicy: annotation.ParsePolicy(cfg.DefaultPolicy),
		taskLocks:     newKeyedMutex(),
		now:           time.Now,
	}
	if s.ledgers == nil {
		s.ledgers = deps.Store
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Events != nil {
		s.events = deps.Events
	}
	if deps.Archive != nil {
		s.archive = deps.Archive
	}
	return s
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap pushes every task and its union-merged entities to the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	workspaces, err := s.store.ListWorkspaces(ctx)
	if err != nil {
		return err
	}
	var tasks []search.TaskRecord
	var entities []search.EntityRecord
	for _, ws := range workspaces {
		items, err := s.store.ListTasks(ctx, ws.ID)
		if err != nil {
			return err
		}
		for _, task := range items {
			tasks = append(tasks, taskRecord(task))
			entities = append(entities, entityRecords(task, annotation.Merge(task.Ledger, annotation.PolicyUnion))...)
		}
	}
	s.search.ReindexAll(tasks, entities)
	log.Printf("app: reindexed %d tasks, %d entities", len(tasks), len(entities))
	return nil
}

func (s *Service) CreateWorkspace(ctx context.Context, name, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required", nil)
	}
	labels := make([]store.Label, len(store.DefaultLabels))
	copy(labels, store.DefaultLabels)
	ws := store.Workspace{
		ID:          util.NewID("ws"),
		Name:        name,
		Description: strings.TrimSpace(description),
		Labels:      labels,
		Members:     []string{},
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	return workspacePayload(ws, nil), nil
}

func (s *Service) ListWorkspaces(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, ws := range items {
		out = append(out, workspacePayload(ws, nil))
	}
	return out, nil
}

func (s *Service) GetWorkspace(ctx context.Context, workspaceID string) (map[string]any, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return workspacePayload(ws, tasks), nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	deleted, err := s.store.DeleteWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	s.search.DeleteWorkspace(workspaceID)
	if err := s.history.RemoveWorkspace(workspaceID); err != nil {
		log.Printf("app: remove history of %s: %v", workspaceID, err)
	}
	return nil
}

// JoinWorkspace adds a member; joining twice is a no-op.
func (s *Service) JoinWorkspace(ctx context.Context, workspaceID, memberName string) (map[string]any, error) {
	memberName, err := cleanMemberName(memberName)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	if err := s.store.AddMember(ctx, workspaceID, memberName); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.TypeMemberJoined, WorkspaceID: workspaceID, Actor: memberName})
	return map[string]any{
		"ok":           true,
		"workspace_id": workspaceID,
		"member_name":  memberName,
		"members":      members,
	}, nil
}

func (s *Service) ListLabels(ctx context.Context, workspaceID string) (map[string]any, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"labels": nonNilLabels(ws.Labels)}, nil
}

// AddTask stores a new task text. A text whose fingerprint already exists in
// the workspace returns the existing task instead of a copy.
func (s *Service) AddTask(ctx context.Context, workspaceID, text string, metadata map[string]any) (map[string]any, bool, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false, validationError("text is required", nil)
	}
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, false, err
	}

	hash := store.Fingerprint(trimmed)
	if existing, err := s.store.FindTaskByHash(ctx, workspaceID, hash); err == nil {
		return duplicatePayload(existing), false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	stored, truncated := util.Truncate(text, s.cfg.MaxTaskChars)
	task := store.Task{
		ID:          util.NewID("task"),
		WorkspaceID: workspaceID,
		Text:        stored,
		TextHash:    hash,
		Status:      store.TaskPending,
		Metadata:    metadata,
		Ledger:      annotation.NewLedger(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		// A concurrent AddTask with the same text wins the unique index.
		if existing, findErr := s.store.FindTaskByHash(ctx, workspaceID, hash); findErr == nil {
			return duplicatePayload(existing), false, nil
		}
		return nil, false, err
	}

	s.search.IndexTask(taskRecord(task))
	s.publish(ctx, events.Event{Type: events.TypeTaskCreated, WorkspaceID: workspaceID, TaskID: task.ID})
	return map[string]any{
		"task_id":   task.ID,
		"duplicate": false,
		"truncated": truncated,
		"status":    task.Status,
	}, true, nil
}

func (s *Service) ListTasks(ctx context.Context, workspaceID string) (map[string]any, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, taskSummary(task))
	}
	return map[string]any{"tasks": out}, nil
}

// GetTask returns the task with every annotator's current submission and,
// per annotator, the spans that overlap another span of the same annotator.
func (s *Service) GetTask(ctx context.Context, workspaceID, taskID string) (map[string]any, error) {
	task, ledger, err := s.loadTask(ctx, workspaceID, taskID)
	if err != nil {
		return nil, err
	}
	overlaps := make(map[string][]annotation.Span)
	for _, annotator := range ledger.Annotators() {
		if found := annotation.Overlapping(ledger.Spans(annotator)); len(found) > 0 {
			overlaps[annotator] = found
		}
	}
	return map[string]any{
		"id":          task.ID,
		"workspaceId": task.WorkspaceID,
		"text":        task.Text,
		"status":      task.Status,
		"metadata":    nonNilMetadata(task.Metadata),
		"annotations": ledger,
		"annotators":  ledger.Annotators(),
		"overlaps":    overlaps,
		"created_at":  task.CreatedAt,
		"updated_at":  task.UpdatedAt,
	}, nil
}

func (s *Service) UpdateTaskStatus(ctx context.Context, workspaceID, taskID, status string) (map[string]any, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case store.TaskPending, store.TaskInProgress, store.TaskCompleted:
	default:
		return nil, validationError("status must be one of pending, in_progress, completed", map[string]any{"status": status})
	}
	updated, err := s.store.UpdateTaskStatus(ctx, workspaceID, taskID, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	s.publish(ctx, events.Event{
		Type:        events.TypeTaskStatus,
		WorkspaceID: workspaceID,
		TaskID:      taskID,
		Payload:     map[string]any{"status": status},
	})
	return map[string]any{"ok": true, "task_id": taskID, "status": status}, nil
}

// SubmitAnnotations replaces the annotator's whole span list for a task.
// Invalid spans are rejected one by one; the valid rest is kept. A blank
// annotator submits as "Anonymous".
func (s *Service) SubmitAnnotations(ctx context.Context, workspaceID, taskID, annotator string, input []SpanInput) (map[string]any, error) {
	if strings.TrimSpace(annotator) == "" {
		annotator = anonymousAnnotator
	}
	annotator, err := cleanMemberName(annotator)
	if err != nil {
		return nil, err
	}

	// The store makes the ledger write atomic across replicas; the local lock
	// keeps this replica's history commits in ledger order.
	unlock := s.taskLocks.Lock(taskID)
	defer unlock()

	task, err := s.store.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return nil, err
	}

	valid, rejected := annotation.ValidateBatch(task.Text, expandInput(input))
	metrics.ObserveSubmission(len(valid), len(rejected))
	if len(valid) == 0 && len(rejected) > 0 {
		return nil, validationError("no valid annotations in submission", map[string]any{"rejected": rejectionPayload(rejected)})
	}

	ledger, err := s.ledgers.SubmitSpans(ctx, taskID, annotator, valid)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddMember(ctx, workspaceID, annotator); err != nil {
		log.Printf("app: auto-join %s to %s: %v", annotator, workspaceID, err)
	}
	if task.Status == store.TaskPending {
		if _, err := s.store.UpdateTaskStatus(ctx, workspaceID, taskID, store.TaskInProgress); err != nil {
			log.Printf("app: mark %s in progress: %v", taskID, err)
		}
	}

	commitHash := ""
	if commit, err := s.history.RecordSubmission(workspaceID, taskID, annotator, ledger.Spans(annotator)); err != nil {
		log.Printf("app: record submission history for %s/%s: %v", taskID, annotator, err)
	} else {
		commitHash = commit.Hash
	}
	if err := s.store.InsertSubmission(ctx, store.Submission{
		TaskID:     taskID,
		Annotator:  annotator,
		Spans:      ledger.Spans(annotator),
		Accepted:   len(valid),
		Rejected:   len(rejected),
		CommitHash: commitHash,
	}); err != nil {
		log.Printf("app: append submission log for %s/%s: %v", taskID, annotator, err)
	}

	s.search.IndexEntities(taskID, entityRecords(task, annotation.Merge(ledger, annotation.PolicyUnion)))
	s.publish(ctx, events.Event{
		Type:        events.TypeSubmission,
		WorkspaceID: workspaceID,
		TaskID:      taskID,
		Actor:       annotator,
		Payload:     map[string]any{"accepted": len(valid), "rejected": len(rejected), "commit": commitHash},
	})

	return map[string]any{
		"ok":         true,
		"task_id":    taskID,
		"annotator":  annotator,
		"accepted":   len(valid),
		"rejected":   rejectionPayload(rejected),
		"commit":     commitHash,
		"annotators": ledger.Annotators(),
	}, nil
}

// MergeTask merges the task's ledger. An empty strategy uses the configured
// default; an unknown one falls back to union and is flagged in the payload.
func (s *Service) MergeTask(ctx context.Context, workspaceID, taskID, strategy string) (map[string]any, error) {
	task, ledger, err := s.loadTask(ctx, workspaceID, taskID)
	if err != nil {
		return nil, err
	}
	policy := s.policyFor(strategy)
	started := time.Now()
	merged := annotation.Merge(ledger, policy)
	metrics.ObserveMerge(string(policy), len(merged), time.Since(started))

	return map[string]any{
		"task_id":            task.ID,
		"merge_strategy":     policy,
		"strategy_fallback":  strings.TrimSpace(strategy) != "" && !annotation.IsKnownPolicy(strategy),
		"total_annotators":   ledger.Len(),
		"merged_annotations": annotation.Entities(task.Text, merged),
	}, nil
}

// TaskHistory lists the task's submission commits next to the rows of the
// append-only submission log.
func (s *Service) TaskHistory(ctx context.Context, workspaceID, taskID, annotator string, limit int) (map[string]any, error) {
	if _, err := s.store.GetTask(ctx, workspaceID, taskID); err != nil {
		return nil, err
	}
	annotator = strings.TrimSpace(annotator)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	commits, err := s.history.History(workspaceID, taskID, annotator, limit)
	if err != nil {
		return nil, err
	}
	submissions, err := s.store.ListSubmissions(ctx, taskID, annotator, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(submissions))
	for _, item := range submissions {
		rows = append(rows, map[string]any{
			"id":           item.ID,
			"annotator":    item.Annotator,
			"accepted":     item.Accepted,
			"rejected":     item.Rejected,
			"commit":       item.CommitHash,
			"submitted_at": item.SubmittedAt,
		})
	}
	return map[string]any{
		"task_id":     taskID,
		"commits":     commits,
		"submissions": rows,
	}, nil
}

// SubmissionAt returns what the annotator had submitted as of a history commit.
func (s *Service) SubmissionAt(ctx context.Context, workspaceID, taskID, hash, annotator string) (map[string]any, error) {
	annotator = strings.TrimSpace(annotator)
	if annotator == "" {
		return nil, validationError("annotator is required", nil)
	}
	if _, err := s.store.GetTask(ctx, workspaceID, taskID); err != nil {
		return nil, err
	}
	spans, err := s.history.SubmissionAt(workspaceID, hash, taskID, annotator)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNoHistory) {
			return nil, sql.ErrNoRows
		}
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Submission not found at that commit", nil)
	}
	return map[string]any{
		"task_id":   taskID,
		"annotator": annotator,
		"commit":    hash,
		"spans":     spans,
	}, nil
}

func (s *Service) Statistics(ctx context.Context, workspaceID string) (map[string]any, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	byStatus := map[string]int{}
	byMember := map[string]int{}
	labels := map[string]int{}
	for _, task := range tasks {
		byStatus[task.Status]++
		for _, annotator := range task.Ledger.Annotators() {
			byMember[annotator]++
		}
		for _, merged := range annotation.Merge(task.Ledger, annotation.PolicyUnion) {
			labels[merged.Label]++
		}
	}
	return map[string]any{
		"workspace_name":        ws.Name,
		"total_tasks":           len(tasks),
		"total_members":         len(ws.Members),
		"tasks_by_status":       byStatus,
		"annotations_by_member": byMember,
		"label_distribution":    labels,
	}, nil
}

// ExportResult is a rendered export, optionally archived in object storage.
type ExportResult struct {
	*export.Result
	Archived *blob.Object
}

func (s *Service) ExportWorkspace(ctx context.Context, workspaceID, strategy, format string, archive bool) (*ExportResult, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError("format must be one of json, jsonl, labelstudio, conll, pdf", map[string]any{"format": format})
	}
	result, err := s.exporter.Export(ctx, export.Request{
		WorkspaceID: workspaceID,
		Policy:      s.policyFor(strategy),
		Format:      parsed,
	})
	metrics.ObserveExport(string(parsed), err)
	if err != nil {
		return nil, err
	}

	out := &ExportResult{Result: result}
	if !archive {
		return out, nil
	}
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Object storage is not configured", nil)
	}
	obj, err := s.archive.PutExport(ctx, blob.ExportKey(workspaceID, result.Filename, s.now()), result.Data, result.MimeType)
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	out.Archived = &obj
	return out, nil
}

func (s *Service) Search(_ context.Context, text, workspaceID, resultType string, limit, offset int) search.Response {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:              strings.TrimSpace(text),
		FilterType:        search.ParseResultType(resultType),
		FilterWorkspaceID: strings.TrimSpace(workspaceID),
		Limit:             limit,
		Offset:            offset,
	})
}

// ServeEvents streams the workspace's events over a websocket. It only
// returns an error before the connection is upgraded.
func (s *Service) ServeEvents(w http.ResponseWriter, r *http.Request, workspaceID string) error {
	if _, err := s.store.GetWorkspace(r.Context(), workspaceID); err != nil {
		return err
	}
	s.events.Serve(w, r, workspaceID)
	return nil
}

func (s *Service) loadTask(ctx context.Context, workspaceID, taskID string) (store.Task, *annotation.Ledger, error) {
	task, err := s.store.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return store.Task{}, nil, err
	}
	ledger, err := s.ledgers.GetLedger(ctx, taskID)
	if err != nil {
		return store.Task{}, nil, err
	}
	return task, ledger, nil
}

func (s *Service) policyFor(strategy string) annotation.Policy {
	if strings.TrimSpace(strategy) == "" {
		return s.defaultPolicy
	}
	return annotation.ParsePolicy(strategy)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("app: publish %s event for %s: %v", event.Type, event.WorkspaceID, err)
	}
}

func expandInput(input []SpanInput) []annotation.Span {
	spans := make([]annotation.Span, 0, len(input))
	for _, item := range input {
		span := annotation.Span{
			Start:          item.Start,
			End:            item.End,
			Label:          item.Label,
			SpanID:         item.SpanID,
			EntityID:       item.EntityID,
			IdentifierType: annotation.IdentifierType(item.IdentifierType),
		}
		labels := inputLabels(item)
		if len(labels) == 0 {
			spans = append(spans, span)
			continue
		}
		spans = append(spans, annotation.ExpandLabels(span, labels)...)
	}
	return spans
}

// inputLabels joins the single label and the label list of one input span,
// label first, without repeats. Nil means neither field named a label.
func inputLabels(item SpanInput) []string {
	if len(item.Labels) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(item.Labels)+1)
	out := make([]string, 0, len(item.Labels)+1)
	for _, label := range append([]string{item.Label}, item.Labels...) {
		label = strings.TrimSpace(label)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

// cleanMemberName trims a member name. Names are written to history commit
// trailers, so they must fit on one line.
func cleanMemberName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validationError("member_name is required", nil)
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '\u2028' || r == '\u2029' {
			return "", validationError("member_name must not contain control characters", map[string]any{"member_name": raw})
		}
	}
	return name, nil
}

func rejectionPayload(rejected []annotation.Rejection) []map[string]any {
	out := make([]map[string]any, 0, len(rejected))
	for _, r := range rejected {
		out = append(out, map[string]any{
			"index":  r.Index,
			"start":  r.Span.Start,
			"end":    r.Span.End,
			"label":  r.Span.Label,
			"reason": r.Reason(),
		})
	}
	return out
}

func workspacePayload(ws store.Workspace, tasks []store.Task) map[string]any {
	members := ws.Members
	if members == nil {
		members = []string{}
	}
	payload := map[string]any{
		"id":          ws.ID,
		"name":        ws.Name,
		"description": ws.Description,
		"labels":      nonNilLabels(ws.Labels),
		"members":     members,
		"created_at":  ws.CreatedAt,
	}
	if tasks != nil {
		summaries := make([]map[string]any, 0, len(tasks))
		for _, task := range tasks {
			summaries = append(summaries, taskSummary(task))
		}
		payload["tasks"] = summaries
	}
	return payload
}

func taskSummary(task store.Task) map[string]any {
	preview, _ := util.Truncate(task.Text, taskPreviewChars)
	return map[string]any{
		"id":         task.ID,
		"text":       preview,
		"status":     task.Status,
		"annotators": task.Ledger.Annotators(),
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	}
}

func duplicatePayload(task store.Task) map[string]any {
	return map[string]any{
		"task_id":   task.ID,
		"duplicate": true,
		"truncated": false,
		"status":    task.Status,
	}
}

func taskRecord(task store.Task) search.TaskRecord {
	return search.TaskRecord{
		ID:          task.ID,
		WorkspaceID: task.WorkspaceID,
		Text:        task.Text,
		Status:      task.Status,
	}
}

func entityRecords(task store.Task, merged []annotation.Merged) []search.EntityRecord {
	entities := annotation.Entities(task.Text, merged)
	out := make([]search.EntityRecord, 0, len(entities))
	for _, e := range entities {
		out = append(out, search.EntityRecord{
			ID:          search.EntityRecordID(task.ID, e.Start, e.End, e.EntityType),
			TaskID:      task.ID,
			WorkspaceID: task.WorkspaceID,
			EntityType:  e.EntityType,
			SpanText:    e.SpanText,
			Start:       e.Start,
			End:         e.End,
			Annotators:  e.Annotators,
			Confidence:  e.Confidence,
		})
	}
	return out
}

func nonNilLabels(labels []store.Label) []store.Label {
	if labels == nil {
		return []store.Label{}
	}
	return labels
}

func nonNilMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
