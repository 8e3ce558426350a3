package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"markroom/api/internal/store"
)

type fakeStoreForHealth struct {
	fakeStore
	pingFn func(context.Context) error
}

func (f *fakeStoreForHealth) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if ok := decodeResponse(t, rr)["ok"]; ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if requestID := rr.Header().Get("X-Request-ID"); requestID == "" {
		t.Error("expected a request id header")
	}
}

func TestReadyEndpointDatabaseFailure(t *testing.T) {
	fs := &fakeStoreForHealth{
		pingFn: func(context.Context) error {
			return errors.New("connection refused")
		},
	}
	svc := newTestService(&fakeStore{})
	svc.store = fs
	server := NewHTTPServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["status"] != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", response["status"])
	}
}

func TestCreateProjectEndpoint(t *testing.T) {
	var insertedUser string
	f := &fakeStore{
		insertProjectFn: func(_ context.Context, project store.Project) error {
			insertedUser = project.UserID
			return nil
		},
		getProjectFn: func(_ context.Context, projectID string) (store.Project, error) {
			return store.Project{ID: projectID, Title: "Launch", UserID: insertedUser}, nil
		},
	}
	server := NewHTTPServer(newTestService(f))

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"title":"Launch"}`))
	req.Header.Set("X-User-ID", "usr_42")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if insertedUser != "usr_42" {
		t.Fatalf("expected user from header, got %q", insertedUser)
	}
	project := decodeResponse(t, rr)["project"].(map[string]any)
	if project["title"] != "Launch" {
		t.Fatalf("unexpected project payload: %+v", project)
	}
}

func TestIdentityDefaultsToLocalUser(t *testing.T) {
	var viewedBy string
	f := &fakeStore{
		upsertProjectViewFn: func(_ context.Context, userID, projectID string) error {
			viewedBy = userID
			return nil
		},
	}
	server := NewHTTPServer(newTestService(f))

	req := httptest.NewRequest(http.MethodPost, "/api/projects/prj_1/view", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if viewedBy != "usr_local" {
		t.Fatalf("expected default identity usr_local, got %q", viewedBy)
	}
}

func TestFileCommentsEndpointBuildsForestAndPins(t *testing.T) {
	parentID := "cmt_1"
	f := &fakeStore{
		getFileFn: func(_ context.Context, fileID string) (store.File, error) {
			return store.File{ID: fileID, ProjectID: "prj_1", MimeType: "image/png"}, nil
		},
		listFileCommentsFn: func(context.Context, string) ([]store.Comment, error) {
			root := testComment("cmt_1", "fil_1", "To Do", 0)
			root.PositionX = intVal(1000)
			root.PositionY = intVal(2000)
			reply := testComment("cmt_2", "fil_1", "To Do", 5)
			reply.ParentID = &parentID
			// Input deliberately reply-first; output order must not care.
			return []store.Comment{reply, root}, nil
		},
	}
	server := NewHTTPServer(newTestService(f))

	req := httptest.NewRequest(http.MethodGet, "/api/files/fil_1/comments", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)

	forest := response["comments"].([]any)
	if len(forest) != 1 {
		t.Fatalf("expected 1 root, got %d", len(forest))
	}
	root := forest[0].(map[string]any)
	if root["id"] != "cmt_1" {
		t.Fatalf("unexpected root: %v", root["id"])
	}
	replies := root["replies"].([]any)
	if len(replies) != 1 || replies[0].(map[string]any)["id"] != "cmt_2" {
		t.Fatalf("unexpected replies: %+v", replies)
	}

	pins := response["pins"].([]any)
	if len(pins) != 1 {
		t.Fatalf("expected 1 pin, got %d", len(pins))
	}
	pin := pins[0].(map[string]any)
	if pin["number"] != float64(1) || pin["commentId"] != "cmt_1" {
		t.Fatalf("unexpected pin: %+v", pin)
	}
}

func TestDeleteCommentEndpointIdempotent(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}))

	req := httptest.NewRequest(http.MethodDelete, "/api/comments/cmt_ghost", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for absent comment, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["ok"] != true || response["deleted"] != false {
		t.Fatalf("unexpected payload: %+v", response)
	}
}

func TestCreateCommentEndpointValidationDetails(t *testing.T) {
	f := &fakeStore{
		getFileFn: func(_ context.Context, fileID string) (store.File, error) {
			return store.File{ID: fileID, ProjectID: "prj_1", MimeType: "video/mp4"}, nil
		},
	}
	server := NewHTTPServer(newTestService(f))

	body := `{"name":"Avery","content":"cut here","positionX":100,"positionY":200}`
	req := httptest.NewRequest(http.MethodPost, "/api/files/fil_1/comments", strings.NewReader(body))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if response["code"] != "VALIDATION_FAILED" {
		t.Fatalf("unexpected code: %v", response["code"])
	}
	details, ok := response["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected per-field details, got %v", response["details"])
	}
	if _, ok := details["positionX"]; !ok {
		t.Fatalf("expected positionX detail, got %+v", details)
	}
}

func TestPublicProjectEndpoint(t *testing.T) {
	f := &fakeStore{
		getProjectByPublicFn: func(_ context.Context, publicID string) (store.Project, error) {
			return store.Project{ID: "prj_1", PublicID: publicID, Title: "Launch", UserID: "usr_local"}, nil
		},
	}
	server := NewHTTPServer(newTestService(f))

	req := httptest.NewRequest(http.MethodGet, "/api/public/projects/pub_abc", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	project := decodeResponse(t, rr)["project"].(map[string]any)
	if project["publicId"] != "pub_abc" {
		t.Fatalf("unexpected project payload: %+v", project)
	}
	if _, leaked := project["userId"]; leaked {
		t.Fatal("public payload must not expose the owner")
	}
	if _, leaked := project["id"]; leaked {
		t.Fatal("public payload must not expose the primary id")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}))

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestMissingProjectMapsTo404(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{
		getProjectFn: func(context.Context, string) (store.Project, error) {
			return store.Project{}, sql.ErrNoRows
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/projects/prj_ghost", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
}
