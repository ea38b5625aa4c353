package cookie

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-pipeline/internal/store"
	"media-pipeline/pkg/models"
)

func testConfig(t *testing.T, sources ...string) *models.Config {
	t.Helper()
	cfg := &models.Config{}
	cfg.Download.SaveDir = t.TempDir()
	cfg.Cookies.SourceURLs = sources
	cfg.Cookies.Rotation = RotationRoundRobin
	cfg.Cookies.CacheMinutes = 30
	cfg.Cookies.MaxAgeHours = 24
	cfg.Cookies.RetryLimit = 3
	cfg.Cookies.RetryWindow = 600
	return cfg
}

func TestLeaseNoSources(t *testing.T) {
	m := NewManager(testConfig(t), store.NewMemory())

	lease, err := m.Lease(context.Background(), 1, "youtube")
	if err != nil {
		t.Fatal(err)
	}
	if lease != nil {
		t.Errorf("expected nil lease without sources, got %+v", lease)
	}
}

func TestLeaseFetchesAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("# Netscape HTTP Cookie File\n"))
	}))
	defer srv.Close()

	m := NewManager(testConfig(t, srv.URL), store.NewMemory())
	ctx := context.Background()

	lease, err := m.Lease(ctx, 1, "youtube")
	if err != nil {
		t.Fatal(err)
	}
	if lease == nil || lease.Path == "" {
		t.Fatal("expected a lease with a path")
	}
	if _, err := os.Stat(lease.Path); err != nil {
		t.Fatalf("cookie file missing: %v", err)
	}

	// Second lease inside the cache window reuses the file.
	again, err := m.Lease(ctx, 1, "youtube")
	if err != nil {
		t.Fatal(err)
	}
	if again.Path != lease.Path {
		t.Errorf("path changed across cached leases: %s vs %s", again.Path, lease.Path)
	}
	if hits != 1 {
		t.Errorf("source hit %d times, want 1", hits)
	}
}

func TestLeaseRoundRobin(t *testing.T) {
	var served []string
	mk := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			served = append(served, name)
			w.Write([]byte(name))
		}))
	}
	a, b := mk("a"), mk("b")
	defer a.Close()
	defer b.Close()

	cfg := testConfig(t, a.URL, b.URL)
	cfg.Cookies.CacheMinutes = 0 // force a fetch every lease
	m := NewManager(cfg, store.NewMemory())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := m.Lease(ctx, 1, "youtube"); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"a", "b", "a", "b"}
	for i, name := range want {
		if served[i] != name {
			t.Fatalf("fetch order = %v, want %v", served, want)
		}
	}
}

func TestLeaseServiceSpecificSources(t *testing.T) {
	shared := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shared"))
	}))
	special := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("special"))
	}))
	defer shared.Close()
	defer special.Close()

	cfg := testConfig(t, shared.URL)
	cfg.Cookies.ServiceURLs = map[string][]string{"instagram": {special.URL}}
	m := NewManager(cfg, store.NewMemory())

	lease, err := m.Lease(context.Background(), 1, "instagram")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(lease.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "special" {
		t.Errorf("got %q, want service-specific source content", data)
	}
}

func TestLeaseRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Cookies.RetryLimit = 2
	m := NewManager(cfg, store.NewMemory())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.Lease(ctx, 1, "youtube"); err == nil {
			t.Fatalf("attempt %d: expected fetch error", i+1)
		}
	}

	_, err := m.Lease(ctx, 1, "youtube")
	if err != ErrRetryBudgetExhausted {
		t.Errorf("got %v, want ErrRetryBudgetExhausted", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("cookies"))
	}))
	defer srv.Close()

	m := NewManager(testConfig(t, srv.URL), store.NewMemory())
	ctx := context.Background()

	if _, err := m.Lease(ctx, 1, "youtube"); err != nil {
		t.Fatal(err)
	}
	if err := m.Invalidate(1, "youtube"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Lease(ctx, 1, "youtube"); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("source hit %d times, want 2", hits)
	}
}

func TestCleanupOldCookies(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, store.NewMemory())

	dir := filepath.Join(cfg.Download.SaveDir, "cookies")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(dir, "1_youtube.txt")
	fresh := filepath.Join(dir, "2_youtube.txt")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed, err := m.CleanupOldCookies()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale file still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file was removed")
	}
}

func TestStartCleanupSweepRemovesStaleFiles(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, store.NewMemory())

	dir := filepath.Join(cfg.Download.SaveDir, "cookies")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(dir, "1_youtube.txt")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	stop := m.StartCleanupSweep(10 * time.Millisecond)
	defer stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(old); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stale file not removed by background sweep")
}
