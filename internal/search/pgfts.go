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

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across projects, files, and comments
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Projects sub-query
	if q.FilterType == "" || q.FilterType == ResultProject {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.title,
				''::text AS snippet,
				p.id AS project_id, ''::text AS file_id, ''::text AS tag,
				ts_rank(p.fts, %s) AS rank
			FROM projects p
			WHERE p.fts @@ %s`, tsQuery, tsQuery))
	}

	// Files sub-query
	if q.FilterType == "" || q.FilterType == ResultFile {
		fileWhere := "f.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			fileWhere += fmt.Sprintf(" AND f.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'file'::text AS type, f.id, f.original_name AS title,
				ts_headline('english', coalesce(f.name, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				f.project_id, f.id AS file_id, ''::text AS tag,
				ts_rank(f.fts, %s) AS rank
			FROM files f
			WHERE %s`, tsQuery, tsQuery, fileWhere))
	}

	// Comments sub-query
	if q.FilterType == "" || q.FilterType == ResultComment {
		commentWhere := "c.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			commentWhere += fmt.Sprintf(" AND f.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, c.author_name AS title,
				ts_headline('english', coalesce(c.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				f.project_id, c.file_id, c.tag,
				ts_rank(c.fts, %s) AS rank
			FROM comments c
			JOIN files f ON f.id = c.file_id
			WHERE %s`, tsQuery, tsQuery, commentWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, file_id, tag
		FROM (%s) sub
		ORDER BY rank DESC
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.FileID, &r.Tag); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, []FileRecord, []CommentRecord, error) {
	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, title
		FROM projects
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var p ProjectRecord
		if err := projectRows.Scan(&p.ID, &p.Title); err != nil {
			return nil, nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	fileRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, original_name, mime_type, project_id
		FROM files
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load files: %w", err)
	}
	defer fileRows.Close()

	files := make([]FileRecord, 0)
	for fileRows.Next() {
		var f FileRecord
		if err := fileRows.Scan(&f.ID, &f.Name, &f.OriginalName, &f.MimeType, &f.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := fileRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate files: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.author_name, c.tag, c.file_id, f.project_id
		FROM comments c
		JOIN files f ON f.id = c.file_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	commentRecords := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.Content, &c.AuthorName, &c.Tag, &c.FileID, &c.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		commentRecords = append(commentRecords, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return projects, files, commentRecords, nil
}
