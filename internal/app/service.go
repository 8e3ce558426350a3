package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"markroom/api/internal/blob"
	"markroom/api/internal/cache"
	"markroom/api/internal/comments"
	"markroom/api/internal/config"
	"markroom/api/internal/gitexport"
	"markroom/api/internal/search"
	"markroom/api/internal/store"
	"markroom/api/internal/util"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type CreateCommentInput struct {
	ParentID  *string `json:"parentId"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
	Content   string  `json:"content"`
	Tag       string  `json:"tag"`
	PositionX *int    `json:"positionX"`
	PositionY *int    `json:"positionY"`
	Timestamp *int    `json:"timestamp"`
	Page      *int    `json:"page"`
}

type dataStore interface {
	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	GetProjectByPublicID(context.Context, string) (store.Project, error)
	ListProjects(context.Context, string) ([]store.Project, error)
	UpdateProjectTitle(context.Context, string, string) (bool, error)
	DeleteProject(context.Context, string) error
	InsertFile(context.Context, store.File) error
	GetFile(context.Context, string) (store.File, error)
	GetFileByPublicID(context.Context, string) (store.File, error)
	ListProjectFiles(context.Context, string) ([]store.File, error)
	DeleteFile(context.Context, string) (bool, error)
	SetFilePublicID(context.Context, string, string) (bool, error)
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListFileComments(context.Context, string) ([]store.Comment, error)
	DeleteComment(context.Context, string) (bool, error)
	UpdateCommentTag(context.Context, string, string) (bool, error)
	UpsertProjectView(context.Context, string, string) error
	GetProjectView(context.Context, string, string) (*store.ProjectView, error)
	Ping(ctx context.Context) error
}

type blobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PresignedGet(ctx context.Context, key, downloadName string) (string, error)
	Remove(ctx context.Context, key string) error
}

type statsCache interface {
	GetProjectStats(ctx context.Context, projectID string) (*cache.ProjectStats, error)
	SetProjectStats(ctx context.Context, projectID string, stats cache.ProjectStats) error
	InvalidateProject(ctx context.Context, projectID string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexProject(p search.ProjectRecord)
	IndexFile(f search.FileRecord)
	IndexComment(c search.CommentRecord)
	DeleteProject(id string)
	DeleteFile(id string)
	DeleteComment(id string)
}

type exportService interface {
	CommitSnapshot(projectID string, snap gitexport.Snapshot, author, message string) (gitexport.CommitInfo, error)
	History(projectID string, limit int) ([]gitexport.CommitInfo, error)
	Push(projectID, remoteURL, token string) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	blobs  blobStore
	cache  statsCache
	search searchService
	export exportService
}

// New wires the service. cacheStore and searchService may be nil; the service
// degrades to direct store reads and a disabled search endpoint.
func New(cfg config.Config, dataStore *store.PostgresStore, blobs *blob.Store, cacheStore *cache.RedisStore, searchSvc *search.Service, exportSvc *gitexport.Service) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		blobs:  blobs,
		export: exportSvc,
	}
	if cacheStore != nil {
		s.cache = cacheStore
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	return s
}

func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Projects ──

func (s *Service) CreateProject(ctx context.Context, userID, title string) (map[string]any, error) {
	if err := validation.Validate(title, validation.Required, validation.Length(1, 200)); err != nil {
		return nil, validationFailed(validation.Errors{"title": err})
	}

	project := store.Project{
		ID:       util.NewID("prj"),
		PublicID: util.NewPublicID(),
		Title:    title,
		UserID:   userID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}
	created, err := s.store.GetProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("load created project: %w", err)
	}

	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: created.ID, Title: created.Title})
	}
	return map[string]any{"project": projectJSON(created)}, nil
}

// ListProjectsWithStats builds the dashboard listing: every project of the
// user with comment counts, last activity, and the per-user unread flag.
func (s *Service) ListProjectsWithStats(ctx context.Context, userID string) (map[string]any, error) {
	projects, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		stats, err := s.projectStats(ctx, project.ID)
		if err != nil {
			return nil, err
		}

		view, err := s.store.GetProjectView(ctx, userID, project.ID)
		if err != nil {
			return nil, err
		}
		lastViewedAt := time.Time{}
		if view != nil {
			lastViewedAt = view.LastViewedAt
		}
		summary := comments.Summary{
			TotalComments:      stats.TotalComments,
			UnresolvedComments: stats.UnresolvedComments,
			LastCommentTime:    stats.LastCommentTime,
		}

		item := projectJSON(project)
		item["fileCount"] = stats.FileCount
		item["totalComments"] = stats.TotalComments
		item["unresolvedComments"] = stats.UnresolvedComments
		item["lastCommentTime"] = stats.LastCommentTime
		item["hasUnreadComments"] = summary.HasUnread(lastViewedAt)
		items = append(items, item)
	}
	return map[string]any{"projects": items}, nil
}

// projectStats computes the user-independent aggregate for one project,
// consulting the cache when configured. Cache failures fall through to the
// store and are logged, never surfaced.
func (s *Service) projectStats(ctx context.Context, projectID string) (cache.ProjectStats, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProjectStats(ctx, projectID)
		if err != nil {
			log.Printf("stats cache read for %s: %v", projectID, err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	files, err := s.store.ListProjectFiles(ctx, projectID)
	if err != nil {
		return cache.ProjectStats{}, err
	}
	all := make([]store.Comment, 0)
	for _, file := range files {
		list, err := s.store.ListFileComments(ctx, file.ID)
		if err != nil {
			return cache.ProjectStats{}, err
		}
		all = append(all, list...)
	}
	summary := comments.Summarize(all)
	stats := cache.ProjectStats{
		FileCount:          len(files),
		TotalComments:      summary.TotalComments,
		UnresolvedComments: summary.UnresolvedComments,
		LastCommentTime:    summary.LastCommentTime,
	}

	if s.cache != nil {
		if err := s.cache.SetProjectStats(ctx, projectID, stats); err != nil {
			log.Printf("stats cache write for %s: %v", projectID, err)
		}
	}
	return stats, nil
}

func (s *Service) invalidateStats(ctx context.Context, projectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProject(ctx, projectID); err != nil {
		log.Printf("stats cache invalidate for %s: %v", projectID, err)
	}
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListProjectFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"project": projectJSON(project),
		"files":   filesJSON(files),
	}, nil
}

func (s *Service) UpdateProjectTitle(ctx context.Context, projectID, title string) (map[string]any, error) {
	if err := validation.Validate(title, validation.Required, validation.Length(1, 200)); err != nil {
		return nil, validationFailed(validation.Errors{"title": err})
	}

	updated, err := s.store.UpdateProjectTitle(ctx, projectID, title)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: project.ID, Title: project.Title})
	}
	return map[string]any{"project": projectJSON(project)}, nil
}

// DeleteProject removes the project, its rows, its blob objects, and its
// search documents. Blob and search cleanup are best-effort once the rows are
// gone.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	files, err := s.store.ListProjectFiles(ctx, projectID)
	if err != nil {
		return err
	}
	commentIDs := make([]string, 0)
	for _, file := range files {
		list, err := s.store.ListFileComments(ctx, file.ID)
		if err != nil {
			return err
		}
		for _, c := range list {
			commentIDs = append(commentIDs, c.ID)
		}
	}

	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	for _, file := range files {
		if err := s.blobs.Remove(ctx, file.ObjectPath); err != nil {
			log.Printf("remove object for deleted file %s: %v", file.ID, err)
		}
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
		for _, file := range files {
			s.search.DeleteFile(file.ID)
		}
		for _, id := range commentIDs {
			s.search.DeleteComment(id)
		}
	}
	s.invalidateStats(ctx, projectID)
	return nil
}

// ── Files ──

func (s *Service) UploadFile(ctx context.Context, projectID, originalName, contentType string, size int64, reader io.Reader) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if err := validation.Validate(originalName, validation.Required, validation.Length(1, 255)); err != nil {
		return nil, validationFailed(validation.Errors{"file": err})
	}
	if size <= 0 {
		return nil, validationFailed(validation.Errors{"file": errors.New("upload is empty")})
	}
	if size > s.cfg.MaxUploadBytes {
		return nil, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("Upload exceeds the %d byte limit", s.cfg.MaxUploadBytes), nil)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := blob.ObjectKey(projectID, originalName)
	if err := s.blobs.Put(ctx, key, reader, size, contentType); err != nil {
		return nil, err
	}

	file := store.File{
		ID:           util.NewID("fil"),
		ProjectID:    projectID,
		Name:         originalName,
		OriginalName: originalName,
		MimeType:     contentType,
		Size:         size,
		ObjectPath:   key,
	}
	if err := s.store.InsertFile(ctx, file); err != nil {
		if removeErr := s.blobs.Remove(ctx, key); removeErr != nil {
			log.Printf("remove orphaned object %s: %v", key, removeErr)
		}
		return nil, err
	}
	created, err := s.store.GetFile(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("load created file: %w", err)
	}

	if s.search != nil {
		s.search.IndexFile(search.FileRecord{
			ID:           created.ID,
			Name:         created.Name,
			OriginalName: created.OriginalName,
			MimeType:     created.MimeType,
			ProjectID:    created.ProjectID,
		})
	}
	s.invalidateStats(ctx, projectID)
	return map[string]any{"file": fileJSON(created)}, nil
}

func (s *Service) FileWithDownloadURL(ctx context.Context, fileID string) (map[string]any, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	downloadURL, err := s.blobs.PresignedGet(ctx, file.ObjectPath, file.OriginalName)
	if err != nil {
		return nil, err
	}
	payload := fileJSON(file)
	payload["downloadUrl"] = downloadURL
	return map[string]any{"file": payload}, nil
}

func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	list, err := s.store.ListFileComments(ctx, fileID)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "File not found", nil)
	}

	if err := s.blobs.Remove(ctx, file.ObjectPath); err != nil {
		log.Printf("remove object for deleted file %s: %v", file.ID, err)
	}
	if s.search != nil {
		s.search.DeleteFile(fileID)
		for _, c := range list {
			s.search.DeleteComment(c.ID)
		}
	}
	s.invalidateStats(ctx, file.ProjectID)
	return nil
}

// ShareFile assigns the file a public id on first call and keeps returning
// the same id afterwards.
func (s *Service) ShareFile(ctx context.Context, fileID string) (map[string]any, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.PublicID != nil {
		return map[string]any{"publicId": *file.PublicID}, nil
	}

	publicID := util.NewPublicID()
	assigned, err := s.store.SetFilePublicID(ctx, fileID, publicID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		// Lost the race to a concurrent share request; return theirs.
		file, err = s.store.GetFile(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if file.PublicID == nil {
			return nil, fmt.Errorf("share file %s: public id missing after conflict", fileID)
		}
		publicID = *file.PublicID
	}
	return map[string]any{"publicId": publicID}, nil
}

// ── Comments ──

// ListFileComments returns the threaded forest plus the numbered pins for the
// file's anchor family. page, when >= 1, narrows PDF pins to that page
// without renumbering.
func (s *Service) ListFileComments(ctx context.Context, fileID string, page int) (map[string]any, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListFileComments(ctx, fileID)
	if err != nil {
		return nil, err
	}

	kind := comments.AnchorKindForMime(file.MimeType)
	forest := comments.BuildForest(list)
	pins := comments.Pins(list, kind)
	if kind == comments.AnchorPDF && page >= 1 {
		pins = comments.PagePins(pins, page)
	}

	return map[string]any{
		"file":     fileJSON(file),
		"comments": forestJSON(forest, kind),
		"pins":     pinsJSON(pins),
	}, nil
}

func (s *Service) CreateComment(ctx context.Context, fileID string, input CreateCommentInput) (map[string]any, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	fieldErrs := validation.Errors{}
	if err := validation.Validate(input.Name, validation.Required, validation.Length(1, 120)); err != nil {
		fieldErrs["name"] = err
	}
	if err := validation.Validate(input.Content, validation.Required, validation.Length(1, 5000)); err != nil {
		fieldErrs["content"] = err
	}
	if input.Email != nil {
		if err := validation.Validate(*input.Email, is.Email); err != nil {
			fieldErrs["email"] = err
		}
	}
	if input.Tag != "" && !comments.ValidTag(input.Tag) {
		fieldErrs["tag"] = errors.New("must be one of: To Do, In Progress, Resolved")
	}
	if len(fieldErrs) > 0 {
		return nil, validationFailed(fieldErrs)
	}

	isReply := input.ParentID != nil && *input.ParentID != ""
	if isReply {
		parent, err := s.store.GetComment(ctx, *input.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationFailed(validation.Errors{"parentId": errors.New("parent comment does not exist")})
		}
		if err != nil {
			return nil, err
		}
		if parent.FileID != fileID {
			return nil, validationFailed(validation.Errors{"parentId": errors.New("parent comment belongs to a different file")})
		}
	}

	kind := comments.AnchorKindForMime(file.MimeType)
	if !isReply {
		if errs := validateAnchor(kind, input); len(errs) > 0 {
			return nil, validationFailed(errs)
		}
	}

	comment := store.Comment{
		ID:        util.NewID("cmt"),
		FileID:    fileID,
		Name:      input.Name,
		Email:     input.Email,
		Content:   input.Content,
		Tag:       input.Tag,
		PositionX: input.PositionX,
		PositionY: input.PositionY,
		Timestamp: input.Timestamp,
		Page:      input.Page,
	}
	if isReply {
		comment.ParentID = input.ParentID
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	created, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, fmt.Errorf("load created comment: %w", err)
	}

	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:         created.ID,
			Content:    created.Content,
			AuthorName: created.Name,
			Tag:        created.Tag,
			FileID:     created.FileID,
			ProjectID:  file.ProjectID,
		})
	}
	s.invalidateStats(ctx, file.ProjectID)
	return map[string]any{"comment": commentJSON(created, kind)}, nil
}

// validateAnchor enforces the file's anchor family on root comments. Fields
// of a foreign family are rejected; within the family, partial anchors that
// could never render are rejected too. A comment with no anchor fields at all
// is always fine.
func validateAnchor(kind comments.AnchorKind, input CreateCommentInput) validation.Errors {
	errs := validation.Errors{}
	switch kind {
	case comments.AnchorImage:
		if input.Timestamp != nil {
			errs["timestamp"] = errors.New("not allowed for image files")
		}
		if input.Page != nil {
			errs["page"] = errors.New("not allowed for image files")
		}
		if (input.PositionX == nil) != (input.PositionY == nil) {
			errs["positionX"] = errors.New("positionX and positionY must be provided together")
		}
	case comments.AnchorVideo:
		if input.PositionX != nil || input.PositionY != nil {
			errs["positionX"] = errors.New("not allowed for video files")
		}
		if input.Page != nil {
			errs["page"] = errors.New("not allowed for video files")
		}
		if input.Timestamp != nil && *input.Timestamp < 0 {
			errs["timestamp"] = errors.New("must not be negative")
		}
	case comments.AnchorPDF:
		if input.Timestamp != nil {
			errs["timestamp"] = errors.New("not allowed for pdf files")
		}
		if input.Page != nil && *input.Page < 1 {
			errs["page"] = errors.New("must be at least 1")
		}
		if input.Page == nil && (input.PositionX != nil || input.PositionY != nil) {
			errs["page"] = errors.New("required when coordinates are set")
		}
		if (input.PositionX == nil) != (input.PositionY == nil) {
			errs["positionX"] = errors.New("positionX and positionY must be provided together")
		}
	default:
		if input.PositionX != nil || input.PositionY != nil {
			errs["positionX"] = errors.New("not allowed for this file type")
		}
		if input.Timestamp != nil {
			errs["timestamp"] = errors.New("not allowed for this file type")
		}
		if input.Page != nil {
			errs["page"] = errors.New("not allowed for this file type")
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// DeleteComment is idempotent: deleting a comment that is already gone
// succeeds. Children of a deleted comment survive and surface as roots.
func (s *Service) DeleteComment(ctx context.Context, commentID string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{"ok": true, "deleted": false}, nil
	}
	if err != nil {
		return nil, err
	}

	deleted, err := s.store.DeleteComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	if file, err := s.store.GetFile(ctx, comment.FileID); err == nil {
		s.invalidateStats(ctx, file.ProjectID)
	}
	return map[string]any{"ok": true, "deleted": deleted}, nil
}

func (s *Service) UpdateCommentTag(ctx context.Context, commentID, tag string) (map[string]any, error) {
	if !comments.ValidTag(tag) {
		return nil, validationFailed(validation.Errors{"tag": errors.New("must be one of: To Do, In Progress, Resolved")})
	}

	updated, err := s.store.UpdateCommentTag(ctx, commentID, tag)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	}

	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	file, err := s.store.GetFile(ctx, comment.FileID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:         comment.ID,
			Content:    comment.Content,
			AuthorName: comment.Name,
			Tag:        comment.Tag,
			FileID:     comment.FileID,
			ProjectID:  file.ProjectID,
		})
	}
	s.invalidateStats(ctx, file.ProjectID)
	return map[string]any{"comment": commentJSON(comment, comments.AnchorKindForMime(file.MimeType))}, nil
}

// ── View ledger ──

func (s *Service) MarkProjectViewed(ctx context.Context, userID, projectID string) error {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	return s.store.UpsertProjectView(ctx, userID, projectID)
}

func (s *Service) GetProjectView(ctx context.Context, userID, projectID string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	view, err := s.store.GetProjectView(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return map[string]any{"viewed": false}, nil
	}
	return map[string]any{"viewed": true, "lastViewedAt": view.LastViewedAt}, nil
}

// ── Search ──

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(q), nil
}

// ── Git export ──

// ExportProject writes a snapshot of the project's feedback into its git repo
// and optionally pushes it to a remote.
func (s *Service) ExportProject(ctx context.Context, projectID, userID, remoteURL, token string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListProjectFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}

	snap := gitexport.Snapshot{
		Project:    project,
		Files:      make([]gitexport.FileSnapshot, 0, len(files)),
		ExportedAt: time.Now().UTC(),
	}
	for _, file := range files {
		list, err := s.store.ListFileComments(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		snap.Files = append(snap.Files, gitexport.FileSnapshot{
			File:     file,
			Comments: comments.BuildForest(list),
		})
	}

	commit, err := s.export.CommitSnapshot(projectID, snap, userID, fmt.Sprintf("Feedback snapshot of %q", project.Title))
	if err != nil {
		return nil, err
	}

	pushed := false
	if remoteURL != "" {
		if err := s.export.Push(projectID, remoteURL, token); err != nil {
			return nil, domainError(http.StatusBadGateway, "EXPORT_PUSH_FAILED", "Could not push to remote", err.Error())
		}
		pushed = true
	}
	return map[string]any{"commit": commitJSON(commit), "pushed": pushed}, nil
}

func (s *Service) ExportHistory(ctx context.Context, projectID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	history, err := s.export.History(projectID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(history))
	for _, commit := range history {
		items = append(items, commitJSON(commit))
	}
	return map[string]any{"commits": items}, nil
}

// ── Public sharing ──

func (s *Service) PublicProject(ctx context.Context, publicID string) (map[string]any, error) {
	project, err := s.store.GetProjectByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListProjectFiles(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"project": publicProjectJSON(project),
		"files":   filesJSON(files),
	}, nil
}

func (s *Service) PublicFile(ctx context.Context, publicID string, page int) (map[string]any, error) {
	file, err := s.store.GetFileByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	return s.ListFileComments(ctx, file.ID, page)
}

// ── Payload builders ──

func validationFailed(errs validation.Errors) error {
	return domainError(http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", errs)
}

func projectJSON(p store.Project) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"publicId":  p.PublicID,
		"title":     p.Title,
		"userId":    p.UserID,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	}
}

// publicProjectJSON omits the owner: share links are anonymous.
func publicProjectJSON(p store.Project) map[string]any {
	return map[string]any{
		"publicId":  p.PublicID,
		"title":     p.Title,
		"createdAt": p.CreatedAt,
	}
}

func fileJSON(f store.File) map[string]any {
	payload := map[string]any{
		"id":           f.ID,
		"projectId":    f.ProjectID,
		"name":         f.Name,
		"originalName": f.OriginalName,
		"mimeType":     f.MimeType,
		"size":         f.Size,
		"anchorKind":   comments.AnchorKindForMime(f.MimeType),
		"uploadedAt":   f.UploadedAt,
	}
	if f.PublicID != nil {
		payload["publicId"] = *f.PublicID
	}
	return payload
}

func filesJSON(files []store.File) []map[string]any {
	items := make([]map[string]any, 0, len(files))
	for _, f := range files {
		items = append(items, fileJSON(f))
	}
	return items
}

func commentJSON(c store.Comment, kind comments.AnchorKind) map[string]any {
	payload := map[string]any{
		"id":        c.ID,
		"fileId":    c.FileID,
		"name":      c.Name,
		"content":   c.Content,
		"tag":       c.Tag,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
	if c.ParentID != nil {
		payload["parentId"] = *c.ParentID
	}
	if c.Email != nil {
		payload["email"] = *c.Email
	}
	if anchor, ok := comments.AnchorOf(c, kind); ok {
		payload["anchor"] = anchor
	}
	return payload
}

func forestJSON(forest []comments.Node, kind comments.AnchorKind) []map[string]any {
	items := make([]map[string]any, 0, len(forest))
	for _, node := range forest {
		payload := commentJSON(node.Comment, kind)
		payload["replies"] = forestJSON(node.Replies, kind)
		items = append(items, payload)
	}
	return items
}

func pinsJSON(pins []comments.Pin) []map[string]any {
	items := make([]map[string]any, 0, len(pins))
	for _, pin := range pins {
		items = append(items, map[string]any{
			"number":    pin.Number,
			"commentId": pin.Comment.ID,
			"anchor":    pin.Anchor,
		})
	}
	return items
}

func commitJSON(commit gitexport.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"message":   commit.Message,
		"author":    commit.Author,
		"createdAt": commit.CreatedAt,
	}
}
