package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, public_id, title, user_id)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.PublicID, project.Title, project.UserID)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, title, user_id, created_at, updated_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.PublicID, &item.Title, &item.UserID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetProjectByPublicID(ctx context.Context, publicID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, title, user_id, created_at, updated_at
		FROM projects
		WHERE public_id=$1
	`, publicID).Scan(&item.ID, &item.PublicID, &item.Title, &item.UserID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, title, user_id, created_at, updated_at
		FROM projects
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.PublicID, &item.Title, &item.UserID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProjectTitle(ctx context.Context, projectID, title string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET title=$2, updated_at=NOW() WHERE id=$1
	`, projectID, title)
	if err != nil {
		return false, fmt.Errorf("update project title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update project title rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteProject removes the project and everything it owns: files, their
// comments, and any view ledger rows. Runs in one transaction.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	statements := []string{
		`DELETE FROM comments WHERE file_id IN (SELECT id FROM files WHERE project_id=$1)`,
		`DELETE FROM files WHERE project_id=$1`,
		`DELETE FROM project_views WHERE project_id=$1`,
		`DELETE FROM projects WHERE id=$1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete project: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertFile(ctx context.Context, file File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, project_id, name, original_name, mime_type, size, object_path, public_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.ProjectID, file.Name, file.OriginalName, file.MimeType, file.Size, file.ObjectPath, file.PublicID)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (File, error) {
	return s.getFileWhere(ctx, `id=$1`, fileID)
}

func (s *PostgresStore) GetFileByPublicID(ctx context.Context, publicID string) (File, error) {
	return s.getFileWhere(ctx, `public_id=$1`, publicID)
}

func (s *PostgresStore) getFileWhere(ctx context.Context, where, arg string) (File, error) {
	var item File
	var publicID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, original_name, mime_type, size, object_path, public_id, uploaded_at
		FROM files
		WHERE `+where, arg).Scan(
		&item.ID,
		&item.ProjectID,
		&item.Name,
		&item.OriginalName,
		&item.MimeType,
		&item.Size,
		&item.ObjectPath,
		&publicID,
		&item.UploadedAt,
	)
	if err != nil {
		return File{}, err
	}
	if publicID.Valid {
		item.PublicID = &publicID.String
	}
	return item, nil
}

func (s *PostgresStore) ListProjectFiles(ctx context.Context, projectID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, original_name, mime_type, size, object_path, public_id, uploaded_at
		FROM files
		WHERE project_id=$1
		ORDER BY uploaded_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	defer rows.Close()

	items := make([]File, 0)
	for rows.Next() {
		var item File
		var publicID sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.Name,
			&item.OriginalName,
			&item.MimeType,
			&item.Size,
			&item.ObjectPath,
			&publicID,
			&item.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if publicID.Valid {
			item.PublicID = &publicID.String
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return items, nil
}

// DeleteFile removes the file row and its comments. Children of the file's
// comments go with them, the blob object is the caller's problem.
func (s *PostgresStore) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete file: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE file_id=$1`, fileID); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete file comments: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, fileID)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete file rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete file: %w", err)
	}
	return affected > 0, nil
}

// SetFilePublicID assigns a share id only if the file does not have one yet,
// so repeated share requests keep returning the same link.
func (s *PostgresStore) SetFilePublicID(ctx context.Context, fileID, publicID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files SET public_id=$2 WHERE id=$1 AND public_id IS NULL
	`, fileID, publicID)
	if err != nil {
		return false, fmt.Errorf("set file public id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set file public id rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	tag := comment.Tag
	if tag == "" {
		tag = "To Do"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, file_id, parent_id, author_name, author_email, content, tag, position_x, position_y, video_timestamp, page)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, comment.ID, comment.FileID, comment.ParentID, comment.Name, comment.Email, comment.Content, tag,
		comment.PositionX, comment.PositionY, comment.Timestamp, comment.Page)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, parent_id, author_name, author_email, content, tag,
			position_x, position_y, video_timestamp, page, created_at, updated_at
		FROM comments
		WHERE id=$1
	`, commentID)
	return scanComment(row)
}

func (s *PostgresStore) ListFileComments(ctx context.Context, fileID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, parent_id, author_name, author_email, content, tag,
			position_x, position_y, video_timestamp, page, created_at, updated_at
		FROM comments
		WHERE file_id=$1
		ORDER BY created_at ASC, id ASC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list file comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// DeleteComment removes a single comment row. Children keep their parent_id
// pointing at the now-missing row; the tree builder absorbs them as roots.
func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateCommentTag(ctx context.Context, commentID, tag string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET tag=$2, updated_at=NOW() WHERE id=$1
	`, commentID, tag)
	if err != nil {
		return false, fmt.Errorf("update comment tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update comment tag rows: %w", err)
	}
	return affected > 0, nil
}

// UpsertProjectView bumps the (user, project) last-viewed marker in one
// conditional write, so concurrent calls can never produce a second row.
func (s *PostgresStore) UpsertProjectView(ctx context.Context, userID, projectID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_views (user_id, project_id, last_viewed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, project_id) DO UPDATE SET last_viewed_at=NOW()
	`, userID, projectID)
	if err != nil {
		return fmt.Errorf("upsert project view: %w", err)
	}
	return nil
}

// GetProjectView returns nil when the user has never viewed the project.
// Absence is a normal state, not an error.
func (s *PostgresStore) GetProjectView(ctx context.Context, userID, projectID string) (*ProjectView, error) {
	var item ProjectView
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, project_id, last_viewed_at
		FROM project_views
		WHERE user_id=$1 AND project_id=$2
	`, userID, projectID).Scan(&item.UserID, &item.ProjectID, &item.LastViewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project view: %w", err)
	}
	return &item, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (Comment, error) {
	var item Comment
	var parentID, email sql.NullString
	var posX, posY, timestamp, page sql.NullInt64
	err := row.Scan(
		&item.ID,
		&item.FileID,
		&parentID,
		&item.Name,
		&email,
		&item.Content,
		&item.Tag,
		&posX,
		&posY,
		&timestamp,
		&page,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	if parentID.Valid {
		item.ParentID = &parentID.String
	}
	if email.Valid {
		item.Email = &email.String
	}
	item.PositionX = nullableInt(posX)
	item.PositionY = nullableInt(posY)
	item.Timestamp = nullableInt(timestamp)
	item.Page = nullableInt(page)
	return item, nil
}

func nullableInt(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	converted := int(value.Int64)
	return &converted
}
