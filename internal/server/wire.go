package server

import (
	"path/filepath"
	"time"

	"media-pipeline/internal/auth"
	"media-pipeline/internal/cache"
	"media-pipeline/internal/cookie"
	"media-pipeline/internal/downloader"
	"media-pipeline/internal/engine"
	"media-pipeline/internal/monitor"
	"media-pipeline/internal/pipeline"
	"media-pipeline/internal/policy"
	"media-pipeline/internal/proxy"
	"media-pipeline/internal/ratelimit"
	"media-pipeline/internal/store"
	"media-pipeline/internal/transport"
	"media-pipeline/internal/uploader"
	"media-pipeline/pkg/models"
)

// App bundles the wired components behind the server so callers can
// reach the pipeline directly and release resources on shutdown.
type App struct {
	Server   *Server
	Pipeline *pipeline.Pipeline
	Cache    *cache.SQLite
	Cookies  *cookie.Manager
	Metrics  *monitor.Metrics
	KV       models.KV

	closers []func() error
}

// Close releases everything the wiring opened
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewApp wires the full pipeline and its API server from configuration
func NewApp(cfg *models.Config) (*App, error) {
	var kv models.KV
	var closers []func() error

	if cfg.Redis.Enabled {
		rdb, err := store.NewRedis(cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		kv = rdb
		closers = append(closers, rdb.Close)
	} else {
		mem := store.NewMemory()
		kv = mem
		closers = append(closers, mem.Close)
	}

	results, err := cache.NewSQLite(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	closers = append(closers, results.Close)

	cookies := cookie.NewManager(cfg, kv)
	stopSweep := cookies.StartCleanupSweep(time.Hour)
	closers = append(closers, func() error { stopSweep(); return nil })
	proxies := proxy.NewManager(cfg)
	ytdlp := engine.NewYtdlp(cfg.Download.YtdlpPath)
	gallery := engine.NewGalleryDl(cfg.Download.GalleryDlPath)
	orchestrator := downloader.NewOrchestrator(cfg, ytdlp, gallery, cookies, proxies)

	chatTransport := transport.NewLocal(filepath.Join(cfg.Download.SaveDir, "outbox"))
	deliverer := uploader.NewUploader(cfg, chatTransport)
	limiter := ratelimit.NewLimiter(cfg, kv)
	screener := policy.NewClassifier(cfg)
	metrics := monitor.NewMetrics()

	pipe := pipeline.NewPipeline(cfg, chatTransport, orchestrator, deliverer,
		limiter, screener, results, results, kv, metrics)

	authService := auth.NewService(results, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenExpiry)*time.Hour)
	if cfg.Auth.Enabled {
		if err := authService.EnsureAdmin(cfg.Auth.AdminPassword); err != nil {
			return nil, err
		}
	}

	srv := NewServer(cfg, pipe, screener, results, results, authService)

	return &App{
		Server:   srv,
		Pipeline: pipe,
		Cache:    results,
		Cookies:  cookies,
		Metrics:  metrics,
		KV:       kv,
		closers:  closers,
	}, nil
}
