package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches task text through tasks.fts and annotated spans through the
// stored ledgers. Span text is cut with substr, which counts characters like
// the annotation offsets do.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultTask {
		taskWhere := "t.fts @@ " + tsQuery
		if q.FilterWorkspaceID != "" {
			taskWhere += fmt.Sprintf(" AND t.workspace_id = $%d", argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.id AS title,
				ts_headline('simple', t.text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.id AS task_id, t.workspace_id,
				ts_rank(t.fts, %s) AS rank
			FROM tasks t
			WHERE %s`, tsQuery, tsQuery, taskWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultEntity {
		spanText := "substr(t.text, (s->>'start')::int + 1, (s->>'end')::int - (s->>'start')::int)"
		entityWhere := fmt.Sprintf("(to_tsvector('simple', %s) @@ %s OR lower(s->>'label') = lower($1))", spanText, tsQuery)
		if q.FilterWorkspaceID != "" {
			entityWhere += fmt.Sprintf(" AND t.workspace_id = $%d", argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT DISTINCT 'entity'::text AS type,
				t.id || '_' || (s->>'start') || '_' || (s->>'end') || '_' || (s->>'label') AS id,
				s->>'label' AS title,
				%s AS snippet,
				t.id AS task_id, t.workspace_id,
				ts_rank(to_tsvector('simple', %s), %s) AS rank
			FROM tasks t
			CROSS JOIN LATERAL jsonb_array_elements(t.ledger) AS e
			CROSS JOIN LATERAL jsonb_array_elements(e->'spans') AS s
			WHERE %s`, spanText, spanText, tsQuery, entityWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, task_id, workspace_id
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.TaskID, &r.WorkspaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}
