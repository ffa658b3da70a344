package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"nercollab/internal/annotation"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, item Workspace) error {
	labels := item.Labels
	if labels == nil {
		labels = []Label{}
	}
	encodedLabels, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, description, labels)
		VALUES ($1, $2, $3, $4::jsonb)
	`, item.ID, item.Name, item.Description, string(encodedLabels))
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, labels, created_at
		FROM workspaces
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		item, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

// GetWorkspace returns sql.ErrNoRows when the workspace does not exist.
func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, labels, created_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID)
	item, err := scanWorkspace(row)
	if err != nil {
		return Workspace{}, err
	}
	members, err := s.ListMembers(ctx, workspaceID)
	if err != nil {
		return Workspace{}, err
	}
	item.Members = members
	return item, nil
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete workspace rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, workspaceID, memberName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, member_name)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, member_name) DO NOTHING
	`, workspaceID, memberName)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_name
		FROM workspace_members
		WHERE workspace_id=$1
		ORDER BY joined_at ASC, member_name ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// FindTaskByHash returns sql.ErrNoRows when no task in the workspace has the
// same text fingerprint.
func (s *PostgresStore) FindTaskByHash(ctx context.Context, workspaceID, textHash string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, text, text_hash, status, metadata, ledger, created_at, updated_at
		FROM tasks
		WHERE workspace_id=$1 AND text_hash=$2
	`, workspaceID, textHash)
	return scanTask(row)
}

func (s *PostgresStore) InsertTask(ctx context.Context, item Task) error {
	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	status := item.Status
	if status == "" {
		status = TaskPending
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, workspace_id, text, text_hash, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, item.ID, item.WorkspaceID, item.Text, item.TextHash, status, string(encodedMetadata))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, workspaceID, taskID string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, text, text_hash, status, metadata, ledger, created_at, updated_at
		FROM tasks
		WHERE workspace_id=$1 AND id=$2
	`, workspaceID, taskID)
	return scanTask(row)
}

func (s *PostgresStore) ListTasks(ctx context.Context, workspaceID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, text, text_hash, status, metadata, ledger, created_at, updated_at
		FROM tasks
		WHERE workspace_id=$1
		ORDER BY created_at ASC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, workspaceID, taskID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status=$3, updated_at=NOW()
		WHERE workspace_id=$1 AND id=$2
	`, workspaceID, taskID, status)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update task status rows: %w", err)
	}
	return affected > 0, nil
}

// GetLedger implements annotation.LedgerStore.
func (s *PostgresStore) GetLedger(ctx context.Context, taskID string) (*annotation.Ledger, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT ledger FROM tasks WHERE id=$1`, taskID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, annotation.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return decodeLedger(raw)
}

// SaveLedger implements annotation.LedgerStore.
func (s *PostgresStore) SaveLedger(ctx context.Context, taskID string, ledger *annotation.Ledger) error {
	encoded, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET ledger=$2::jsonb, updated_at=NOW()
		WHERE id=$1
	`, taskID, string(encoded))
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save ledger rows: %w", err)
	}
	if affected == 0 {
		return annotation.ErrLedgerNotFound
	}
	return nil
}

// SubmitSpans implements annotation.LedgerStore. The task row stays locked
// from read to write so submissions from other replicas queue behind it.
func (s *PostgresStore) SubmitSpans(ctx context.Context, taskID, annotator string, spans []annotation.Span) (*annotation.Ledger, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT ledger FROM tasks WHERE id=$1 FOR UPDATE`, taskID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, annotation.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	ledger, err := decodeLedger(raw)
	if err != nil {
		return nil, err
	}
	ledger.Submit(annotator, spans)

	encoded, err := json.Marshal(ledger)
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET ledger=$2::jsonb, updated_at=NOW()
		WHERE id=$1
	`, taskID, string(encoded)); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}
	return ledger, nil
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, item Submission) error {
	spans := item.Spans
	if spans == nil {
		spans = []annotation.Span{}
	}
	encoded, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("encode submission spans: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submission_log (task_id, annotator, spans, accepted, rejected, commit_hash)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)
	`, item.TaskID, item.Annotator, string(encoded), item.Accepted, item.Rejected, item.CommitHash)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, taskID, annotator string, limit int) ([]Submission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, annotator, spans, accepted, rejected, commit_hash, submitted_at
		FROM submission_log
		WHERE task_id=$1 AND ($2='' OR annotator=$2)
		ORDER BY submitted_at DESC, id DESC
		LIMIT $3
	`, taskID, annotator, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		var item Submission
		var raw []byte
		if err := rows.Scan(&item.ID, &item.TaskID, &item.Annotator, &raw, &item.Accepted, &item.Rejected, &item.CommitHash, &item.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		_ = json.Unmarshal(raw, &item.Spans)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (Workspace, error) {
	var item Workspace
	var rawLabels []byte
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &rawLabels, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workspace{}, err
		}
		return Workspace{}, fmt.Errorf("scan workspace: %w", err)
	}
	item.Labels = []Label{}
	_ = json.Unmarshal(rawLabels, &item.Labels)
	item.Members = []string{}
	return item, nil
}

func scanTask(row rowScanner) (Task, error) {
	var item Task
	var rawMetadata, rawLedger []byte
	if err := row.Scan(&item.ID, &item.WorkspaceID, &item.Text, &item.TextHash, &item.Status, &rawMetadata, &rawLedger, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("scan task: %w", err)
	}
	item.Metadata = map[string]any{}
	_ = json.Unmarshal(rawMetadata, &item.Metadata)
	ledger, err := decodeLedger(rawLedger)
	if err != nil {
		return Task{}, err
	}
	item.Ledger = ledger
	return item, nil
}

func decodeLedger(raw []byte) (*annotation.Ledger, error) {
	ledger := annotation.NewLedger()
	if len(raw) == 0 {
		return ledger, nil
	}
	if err := json.Unmarshal(raw, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}
