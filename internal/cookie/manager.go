package cookie

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"media-pipeline/pkg/models"
)

// Rotation strategies for picking among cookie sources
const (
	RotationRoundRobin = "round_robin"
	RotationRandom     = "random"
)

// ErrRetryBudgetExhausted is returned when a user has burned through
// the allowed fetch failures inside the retry window.
var ErrRetryBudgetExhausted = fmt.Errorf("cookie fetch retry budget exhausted")

// Manager hands out cookie files for download engines. Sources are
// remote URLs serving Netscape-format cookie files; fetched files are
// cached on disk per (user, service) and reused until they age out.
type Manager struct {
	cfg    *models.Config
	kv     models.KV
	client *http.Client
	logger zerolog.Logger

	mu      sync.Mutex
	nextIdx map[string]int
}

// NewManager creates a cookie manager backed by the shared KV store
func NewManager(cfg *models.Config, kv models.KV) *Manager {
	return &Manager{
		cfg:     cfg,
		kv:      kv,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  zerolog.New(os.Stdout).With().Timestamp().Str("component", "cookie_manager").Logger(),
		nextIdx: make(map[string]int),
	}
}

// sourcesFor returns the source list for a service, preferring a
// service-specific list over the shared pool.
func (m *Manager) sourcesFor(service string) []string {
	if urls, ok := m.cfg.Cookies.ServiceURLs[service]; ok && len(urls) > 0 {
		return urls
	}
	return m.cfg.Cookies.SourceURLs
}

// pick selects the next source according to the rotation strategy.
// Round-robin position is tracked per service so busy services do not
// starve a single source.
func (m *Manager) pick(service string, sources []string) (int, string) {
	if m.cfg.Cookies.Rotation == RotationRandom {
		i := rand.Intn(len(sources))
		return i, sources[i]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.nextIdx[service] % len(sources)
	m.nextIdx[service] = i + 1
	return i, sources[i]
}

func (m *Manager) cacheDir() string {
	return filepath.Join(m.cfg.Download.SaveDir, "cookies")
}

func (m *Manager) cachePath(userID int64, service string) string {
	return filepath.Join(m.cacheDir(), fmt.Sprintf("%d_%s.txt", userID, service))
}

func retryKey(userID int64) string {
	return fmt.Sprintf("cookie:retries:%d", userID)
}

// Lease returns a cookie file path for the user and service. A cached
// file younger than the configured cache window is reused; otherwise a
// fresh file is fetched from the next rotated source. Returns a nil
// lease when no sources are configured.
func (m *Manager) Lease(ctx context.Context, userID int64, service string) (*models.CredentialLease, error) {
	sources := m.sourcesFor(service)
	if len(sources) == 0 {
		return nil, nil
	}

	path := m.cachePath(userID, service)
	maxAge := time.Duration(m.cfg.Cookies.CacheMinutes) * time.Minute
	if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < maxAge {
		return &models.CredentialLease{SourceID: -1, Path: path, AcquiredAt: info.ModTime()}, nil
	}

	if err := m.checkRetryBudget(ctx, userID); err != nil {
		return nil, err
	}

	idx, source := m.pick(service, sources)
	if err := m.fetch(ctx, source, path); err != nil {
		m.recordFailure(ctx, userID)
		return nil, fmt.Errorf("fetch cookies from source %d: %w", idx, err)
	}

	m.logger.Debug().
		Int64("user_id", userID).
		Str("service", service).
		Int("source", idx).
		Msg("Fetched fresh cookie file")

	return &models.CredentialLease{SourceID: idx, Path: path, AcquiredAt: time.Now()}, nil
}

// Invalidate drops the cached file so the next lease fetches fresh
// cookies, typically after an engine failed with the current ones.
func (m *Manager) Invalidate(userID int64, service string) error {
	err := os.Remove(m.cachePath(userID, service))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SourceCount reports how many sources serve the given service
func (m *Manager) SourceCount(service string) int {
	return len(m.sourcesFor(service))
}

func (m *Manager) checkRetryBudget(ctx context.Context, userID int64) error {
	if m.cfg.Cookies.RetryLimit <= 0 {
		return nil
	}
	val, found, err := m.kv.Get(ctx, retryKey(userID))
	if err != nil {
		return err
	}
	if found && val != "" {
		var n int
		fmt.Sscanf(val, "%d", &n)
		if n >= m.cfg.Cookies.RetryLimit {
			return ErrRetryBudgetExhausted
		}
	}
	return nil
}

func (m *Manager) recordFailure(ctx context.Context, userID int64) {
	if m.cfg.Cookies.RetryLimit <= 0 {
		return
	}
	window := time.Duration(m.cfg.Cookies.RetryWindow) * time.Second
	if _, err := m.kv.Incr(ctx, retryKey(userID), window); err != nil {
		m.logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to record cookie fetch failure")
	}
}

func (m *Manager) fetch(ctx context.Context, source, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// StartCleanupSweep removes aged-out cookie files on an interval until
// the returned stop function is called.
func (m *Manager) StartCleanupSweep(interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := m.CleanupOldCookies(); err != nil {
					m.logger.Warn().Err(err).Msg("Cookie cleanup sweep failed")
				}
			}
		}
	}()
	return func() { close(stop) }
}

// CleanupOldCookies removes cached cookie files older than the
// configured maximum age, returning how many were deleted.
func (m *Manager) CleanupOldCookies() (int, error) {
	maxAge := time.Duration(m.cfg.Cookies.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(m.cacheDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(m.cacheDir(), entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("Cleaned up old cookie files")
	}
	return removed, nil
}
