package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"media-pipeline/internal/auth"
	"media-pipeline/pkg/models"
)

type fakeProcessor struct {
	mu   sync.Mutex
	reqs []*models.DownloadRequest
}

func (f *fakeProcessor) Process(ctx context.Context, req *models.DownloadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakePolicy struct{ reloads int }

func (f *fakePolicy) Reload() (int, int) {
	f.reloads++
	return 12, 34
}

type fakeCacheAdmin struct {
	url     string
	quality string
}

func (f *fakeCacheAdmin) Invalidate(url, quality string) (int64, error) {
	f.url, f.quality = url, quality
	return 2, nil
}

type fakeStats struct{}

func (f *fakeStats) GetStats() (*models.Stats, error) {
	return &models.Stats{TotalDownloads: 5}, nil
}
func (f *fakeStats) ListRecords(limit int) ([]*models.DownloadRecord, error) {
	return nil, nil
}

type memUsers struct{ users map[string]*models.User }

func (s *memUsers) GetUserByUsername(username string) (*models.User, error) {
	return s.users[username], nil
}
func (s *memUsers) SaveUser(user *models.User) error {
	s.users[user.Username] = user
	return nil
}

func newTestServer(t *testing.T, authEnabled bool) (*Server, *fakeProcessor, *fakePolicy, *fakeCacheAdmin) {
	t.Helper()
	cfg := &models.Config{}
	cfg.Auth.Enabled = authEnabled

	users := &memUsers{users: make(map[string]*models.User)}
	svc := auth.NewService(users, "test-secret", time.Hour)
	if err := svc.EnsureAdmin("hunter2"); err != nil {
		t.Fatal(err)
	}

	proc := &fakeProcessor{}
	policy := &fakePolicy{}
	cacheAdmin := &fakeCacheAdmin{}
	srv := NewServer(cfg, proc, policy, cacheAdmin, &fakeStats{}, svc)
	return srv, proc, policy, cacheAdmin
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	srv, _, _, _ := newTestServer(t, false)

	w := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSubmitDownload(t *testing.T) {
	srv, proc, _, _ := newTestServer(t, false)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/download", "", map[string]interface{}{
		"url":          "https://youtube.com/watch?v=x",
		"chat_id":      7,
		"requester_id": 7,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["request_id"] == "" {
		t.Error("no request_id returned")
	}

	deadline := time.Now().Add(time.Second)
	for proc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if proc.count() != 1 {
		t.Fatal("request never reached the processor")
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.reqs[0].MediaType != models.MediaTypeVideo {
		t.Errorf("media type = %s, want default video", proc.reqs[0].MediaType)
	}
}

func TestSubmitDownloadRejectsMissingURL(t *testing.T) {
	srv, _, _, _ := newTestServer(t, false)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/download", "", map[string]interface{}{
		"chat_id":      7,
		"requester_id": 7,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSubmitDownloadRejectsInvalidURL(t *testing.T) {
	srv, _, _, _ := newTestServer(t, false)

	for _, bad := range []string{"not a url at all", "ftp://example.com/file", "youtube.com/watch?v=x"} {
		w := doJSON(t, srv, http.MethodPost, "/api/v1/download", "", map[string]interface{}{
			"url":          bad,
			"chat_id":      7,
			"requester_id": 7,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("url %q: status = %d, want 400", bad, w.Code)
		}
	}
}

func TestSubmitDownloadExtractsURLFromText(t *testing.T) {
	srv, proc, _, _ := newTestServer(t, false)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/download", "", map[string]interface{}{
		"url":          "check this out https://youtube.com/watch?v=x please",
		"chat_id":      7,
		"requester_id": 7,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(time.Second)
	for proc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if proc.count() != 1 {
		t.Fatal("request never reached the processor")
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.reqs[0].SourceURL != "https://youtube.com/watch?v=x" {
		t.Errorf("source url = %q, want the extracted URL", proc.reqs[0].SourceURL)
	}
}

func TestReloadPolicy(t *testing.T) {
	srv, _, policy, _ := newTestServer(t, false)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/policy/reload", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if policy.reloads != 1 {
		t.Errorf("reloads = %d", policy.reloads)
	}

	var resp map[string]int
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["domains"] != 12 || resp["keywords"] != 34 {
		t.Errorf("resp = %v", resp)
	}
}

func TestInvalidateCache(t *testing.T) {
	srv, _, _, cacheAdmin := newTestServer(t, false)

	w := doJSON(t, srv, http.MethodDelete, "/api/v1/cache", "", map[string]string{
		"url":     "https://youtube.com/watch?v=x",
		"quality": "best",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if cacheAdmin.url != "https://youtube.com/watch?v=x" || cacheAdmin.quality != "best" {
		t.Errorf("invalidated %q/%q", cacheAdmin.url, cacheAdmin.quality)
	}
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	srv, _, _, _ := newTestServer(t, true)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/stats", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", w.Code)
	}

	login := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "hunter2",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d", login.Code)
	}
	var resp map[string]string
	json.Unmarshal(login.Body.Bytes(), &resp)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/stats", resp["token"], nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d with valid token", w.Code)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	srv, _, _, _ := newTestServer(t, true)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}
