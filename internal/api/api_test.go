package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/identity"
	"github.com/2029ijones-sudo/os-lab/internal/publish"
	"github.com/2029ijones-sudo/os-lab/internal/registry"
	"github.com/2029ijones-sudo/os-lab/internal/sandbox"
	"github.com/2029ijones-sudo/os-lab/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *sandbox.Fake) {
	t.Helper()
	log := zap.NewNop()
	st := store.NewMemory()
	fake := sandbox.NewFake()
	reg := registry.New(st, fake, registry.Config{}, log)
	pub := publish.New(st, 0, "http://oslab.test", log)
	verifier := identity.NewStatic(map[string]string{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	})

	srv := httptest.NewServer(NewAPI(st, reg, pub, verifier, log).Router())
	t.Cleanup(srv.Close)
	return srv, fake
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %s", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, reqBody)
	if err != nil {
		t.Fatalf("build request: %s", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %s", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decode(t *testing.T, b []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("decode %s: %s", b, err)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doRequest(t, srv, "POST", "/v1/workspaces", "", map[string]string{"name": "App"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d: %s", resp.StatusCode, body)
	}

	resp, _ = doRequest(t, srv, "POST", "/v1/workspaces", "bogus", map[string]string{"name": "App"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 with bad token, got %d", resp.StatusCode)
	}
}

func TestCreateWorkspace_DefaultTemplate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doRequest(t, srv, "POST", "/v1/workspaces", "tok-alice", map[string]string{"name": "My App"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var ws core.Workspace
	decode(t, body, &ws)
	if ws.Slug != "my-app" {
		t.Errorf("expected slug my-app, got %s", ws.Slug)
	}
	if ws.OwnerID != "alice" {
		t.Errorf("expected owner alice, got %s", ws.OwnerID)
	}
	for _, f := range []string{"package.json", "main.js", "index.html", "renderer.js"} {
		if _, ok := ws.Files[f]; !ok {
			t.Errorf("default template missing %s", f)
		}
	}
}

func TestWorkspaceVisibility(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doRequest(t, srv, "POST", "/v1/workspaces", "tok-alice", map[string]string{"name": "Private"})
	var ws core.Workspace
	decode(t, body, &ws)

	// Unpublished workspaces are invisible to other users.
	resp, _ := doRequest(t, srv, "GET", "/v1/workspaces/"+ws.ID, "tok-bob", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign draft, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, srv, "GET", "/v1/workspaces/"+ws.ID, "tok-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner should see own draft, got %d", resp.StatusCode)
	}

	// Only the owner may edit or delete.
	resp, _ = doRequest(t, srv, "PATCH", "/v1/workspaces/"+ws.ID, "tok-bob", map[string]string{"name": "X"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign patch, got %d", resp.StatusCode)
	}
}

func TestSessionFlow_EditSavePreview(t *testing.T) {
	srv, fake := newTestServer(t)

	// Create a workspace from the default template.
	_, body := doRequest(t, srv, "POST", "/v1/workspaces", "tok-alice", map[string]string{"name": "Demo"})
	var ws core.Workspace
	decode(t, body, &ws)

	// Open a session; with the in-process sandbox it is Ready at once.
	resp, body := doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/sessions", "tok-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("acquire session: %d: %s", resp.StatusCode, body)
	}
	var sess struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	decode(t, body, &sess)
	if sess.State != "READY" {
		t.Fatalf("expected READY session, got %s", sess.State)
	}

	// A second acquire joins the same session.
	_, body = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/sessions", "tok-alice", nil)
	var again struct {
		ID string `json:"id"`
	}
	decode(t, body, &again)
	if again.ID != sess.ID {
		t.Errorf("second acquire created a new session")
	}
	if fake.Boots() != 1 {
		t.Errorf("expected one boot, got %d", fake.Boots())
	}

	// Edit a file through the session.
	resp, body = doRequest(t, srv, "PUT", "/v1/sessions/"+sess.ID+"/files/index.html", "tok-alice",
		map[string]string{"content": "<h1>edited</h1>"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put file: %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, srv, "GET", "/v1/sessions/"+sess.ID+"/files/index.html", "tok-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get file: %d: %s", resp.StatusCode, body)
	}
	var file struct {
		Content string `json:"content"`
	}
	decode(t, body, &file)
	if file.Content != "<h1>edited</h1>" {
		t.Errorf("file round-trip failed: %q", file.Content)
	}

	// Run a command in the environment.
	resp, _ = doRequest(t, srv, "POST", "/v1/sessions/"+sess.ID+"/run", "tok-alice",
		map[string]interface{}{"argv": []string{"npm", "start"}})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run command: %d", resp.StatusCode)
	}

	// Save and publish.
	resp, body = doRequest(t, srv, "POST", "/v1/sessions/"+sess.ID+"/save", "tok-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: %d: %s", resp.StatusCode, body)
	}
	var pubRes struct {
		PreviewURL string `json:"preview_url"`
	}
	decode(t, body, &pubRes)
	if !strings.HasSuffix(pubRes.PreviewURL, "/v1/preview/"+ws.Slug) {
		t.Errorf("unexpected preview URL: %s", pubRes.PreviewURL)
	}

	// The preview serves the edited snapshot without credentials.
	resp, body = doRequest(t, srv, "GET", "/v1/preview/"+ws.Slug, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview: %d: %s", resp.StatusCode, body)
	}
	if string(body) != "<h1>edited</h1>" {
		t.Errorf("preview served wrong content: %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html content type, got %s", ct)
	}

	// Release the session; releasing again is a no-op.
	resp, _ = doRequest(t, srv, "DELETE", "/v1/sessions/"+sess.ID, "tok-alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("release: %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, srv, "DELETE", "/v1/sessions/"+sess.ID, "tok-alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("second release should be a no-op, got %d", resp.StatusCode)
	}
}

func TestStarAndFork(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doRequest(t, srv, "POST", "/v1/workspaces", "tok-alice", map[string]string{"name": "Demo"})
	var ws core.Workspace
	decode(t, body, &ws)

	// Starring an unpublished workspace is rejected.
	resp, _ := doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/star", "tok-bob", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 starring a draft, got %d", resp.StatusCode)
	}

	// Publish via a session save.
	_, body = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/sessions", "tok-alice", nil)
	var sess struct {
		ID string `json:"id"`
	}
	decode(t, body, &sess)
	resp, body = doRequest(t, srv, "POST", "/v1/sessions/"+sess.ID+"/save", "tok-alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/star", "tok-bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("star: %d: %s", resp.StatusCode, body)
	}
	var starred core.Workspace
	decode(t, body, &starred)
	if starred.Stars != 1 {
		t.Errorf("expected 1 star, got %d", starred.Stars)
	}

	// Another user forks the published workspace.
	resp, body = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/fork", "tok-bob", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("fork: %d: %s", resp.StatusCode, body)
	}
	var fork core.Workspace
	decode(t, body, &fork)
	if fork.OwnerID != "bob" {
		t.Errorf("fork owner should be bob, got %s", fork.OwnerID)
	}
	if fork.ParentID == nil || *fork.ParentID != ws.ID {
		t.Errorf("fork parent not set")
	}

	// Published list is visible and sortable.
	resp, body = doRequest(t, srv, "GET", "/v1/workspaces?sort=stars", "tok-bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d: %s", resp.StatusCode, body)
	}
	var list struct {
		Workspaces []core.Workspace `json:"workspaces"`
	}
	decode(t, body, &list)
	if len(list.Workspaces) != 1 || list.Workspaces[0].ID != ws.ID {
		t.Errorf("unexpected published list: %s", body)
	}
}

func TestUnpublishRemovesPreview(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doRequest(t, srv, "POST", "/v1/workspaces", "tok-alice", map[string]string{"name": "Demo"})
	var ws core.Workspace
	decode(t, body, &ws)

	_, body = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/sessions", "tok-alice", nil)
	var sess struct {
		ID string `json:"id"`
	}
	decode(t, body, &sess)
	doRequest(t, srv, "POST", "/v1/sessions/"+sess.ID+"/save", "tok-alice", nil)

	resp, _ := doRequest(t, srv, "GET", "/v1/preview/"+ws.Slug, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview before unpublish: %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/unpublish", "tok-alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unpublish: %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, srv, "GET", "/v1/preview/"+ws.Slug, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after unpublish, got %d", resp.StatusCode)
	}
}

func TestSessionOwnership(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := doRequest(t, srv, "POST", "/v1/workspaces", "tok-alice", map[string]string{"name": "Demo"})
	var ws core.Workspace
	decode(t, body, &ws)

	// Only the owner can open sessions.
	resp, _ := doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/sessions", "tok-bob", nil)
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign acquire should be rejected, got %d", resp.StatusCode)
	}

	_, body = doRequest(t, srv, "POST", "/v1/workspaces/"+ws.ID+"/sessions", "tok-alice", nil)
	var sess struct {
		ID string `json:"id"`
	}
	decode(t, body, &sess)

	resp, _ = doRequest(t, srv, "GET", "/v1/sessions/"+sess.ID, "tok-bob", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign session read should be 403, got %d", resp.StatusCode)
	}
}

func TestWriteErrorFormat(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, core.NewAppError(core.ErrBadRequest, "test error"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %s", err)
	}
	if resp.Code != "OSLAB_BAD_REQUEST" {
		t.Errorf("expected code OSLAB_BAD_REQUEST, got %s", resp.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doRequest(t, srv, "GET", "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, srv, "GET", "/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz: %d", resp.StatusCode)
	}
}
