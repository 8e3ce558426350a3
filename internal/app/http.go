package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"markroom/api/internal/search"
)

type HTTPServer struct {
	service *Service
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{service: service}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/projects" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListProjectsWithStats(r.Context(), requestUserID(r))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateProject(r.Context(), requestUserID(r), strings.TrimSpace(body.Title))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "projects" {
		s.handleProjects(w, r, parts[2], parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "files" {
		s.handleFiles(w, r, parts[2], parts)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "comments" {
		s.handleComments(w, r, parts[2], parts)
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "public" {
		s.handlePublic(w, r, parts[2], parts[3])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, projectID string, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetProject(r.Context(), projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateProjectTitle(r.Context(), projectID, strings.TrimSpace(body.Title))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodDelete:
			if err := s.service.DeleteProject(r.Context(), projectID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "view" {
		switch r.Method {
		case http.MethodPost:
			if err := s.service.MarkProjectViewed(r.Context(), requestUserID(r), projectID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		case http.MethodGet:
			payload, err := s.service.GetProjectView(r.Context(), requestUserID(r), projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "files" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetProject(r.Context(), projectID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"files": payload["files"]})
			return
		case http.MethodPost:
			s.handleUpload(w, r, projectID)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodPost {
		var body struct {
			RemoteURL string `json:"remoteUrl"`
			Token     string `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.ExportProject(r.Context(), projectID, requestUserID(r), strings.TrimSpace(body.RemoteURL), body.Token)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && parts[3] == "export" && parts[4] == "history" && r.Method == http.MethodGet {
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		payload, err := s.service.ExportHistory(r.Context(), projectID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, projectID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxUploadBytes()+1<<20)
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field 'file' is required", nil)
		return
	}
	defer part.Close()

	contentType := header.Header.Get("Content-Type")
	payload, err := s.service.UploadFile(r.Context(), projectID, header.Filename, contentType, header.Size, part)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, fileID string, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.FileWithDownloadURL(r.Context(), fileID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodDelete:
			if err := s.service.DeleteFile(r.Context(), fileID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "share" && r.Method == http.MethodPost {
		payload, err := s.service.ShareFile(r.Context(), fileID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "comments" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListFileComments(r.Context(), fileID, queryPage(r))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPost:
			var body CreateCommentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateComment(r.Context(), fileID, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, commentID string, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodDelete {
		payload, err := s.service.DeleteComment(r.Context(), commentID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "tag" && r.Method == http.MethodPut {
		var body struct {
			Tag string `json:"tag"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateCommentTag(r.Context(), commentID, strings.TrimSpace(body.Tag))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "offset must be an integer", nil)
			return
		}
		offset = parsed
	}

	payload, err := s.service.Search(r.Context(), search.Query{
		Text:            q,
		FilterType:      search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		FilterProjectID: strings.TrimSpace(r.URL.Query().Get("projectId")),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request, kind, publicID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch kind {
	case "projects":
		payload, err := s.service.PublicProject(r.Context(), publicID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case "files":
		payload, err := s.service.PublicFile(r.Context(), publicID, queryPage(r))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// requestUserID reads the caller identity header, defaulting to the single
// local user. The header is the seam where real authentication plugs in.
func requestUserID(r *http.Request) string {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return "usr_local"
	}
	return userID
}

func queryPage(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 0
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0
	}
	return page
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body is fine; callers validate the zero value.
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
