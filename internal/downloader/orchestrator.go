package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"media-pipeline/internal/engine"
	"media-pipeline/pkg/models"
)

// Runner is the yt-dlp surface the orchestrator drives
type Runner interface {
	ExtractMetadata(ctx context.Context, url string, opts *engine.Options) (*engine.Metadata, error)
	DownloadMedia(ctx context.Context, url string, opts *engine.Options) ([]string, error)
	PrepareFilename(ctx context.Context, url string, opts *engine.Options) (string, error)
}

// GalleryRunner is the gallery-dl surface the orchestrator drives
type GalleryRunner interface {
	DownloadMedia(ctx context.Context, url string, opts *engine.Options) ([]string, error)
}

// CredentialSource hands out cookie files per user and service
type CredentialSource interface {
	Lease(ctx context.Context, userID int64, service string) (*models.CredentialLease, error)
	Invalidate(userID int64, service string) error
	SourceCount(service string) int
}

// ProxySelector supplies ordered proxy candidates for a domain
type ProxySelector interface {
	Candidates(domain string) []string
}

// Orchestrator runs the acquisition state machine for one request:
// probe, choose a strategy, rotate credentials and proxies across
// attempts, then resolve what actually landed on disk. Concurrency is
// bounded by the configured worker count.
type Orchestrator struct {
	cfg     *models.Config
	ytdlp   Runner
	gallery GalleryRunner
	creds   CredentialSource
	proxies ProxySelector
	logger  zerolog.Logger
	slots   chan struct{}
}

// NewOrchestrator wires an orchestrator from its collaborators
func NewOrchestrator(cfg *models.Config, ytdlp Runner, gallery GalleryRunner, creds CredentialSource, proxies ProxySelector) *Orchestrator {
	workers := cfg.Download.MaxWorkers
	if workers <= 0 {
		workers = 3
	}
	return &Orchestrator{
		cfg:     cfg,
		ytdlp:   ytdlp,
		gallery: gallery,
		creds:   creds,
		proxies: proxies,
		logger:  zerolog.New(os.Stdout).With().Timestamp().Str("component", "downloader").Logger(),
		slots:   make(chan struct{}, workers),
	}
}

// Execute acquires media for a routed request. The result's Files are
// the caller's to clean up after delivery.
func (o *Orchestrator) Execute(ctx context.Context, req *models.DownloadRequest, decision models.EngineDecision) (*models.DownloadResult, error) {
	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if o.cfg.Download.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.Download.Timeout)*time.Second)
		defer cancel()
	}

	switch decision.Engine {
	case models.EngineGalleryDl:
		return o.executeGallery(ctx, req, decision)
	case models.EngineYtdlpGalleryDlFlbk:
		result, err := o.executeYtdlp(ctx, req, decision)
		if err == nil && result.Success {
			return result, nil
		}
		o.logger.Info().Str("url", req.SourceURL).Msg("Primary engine failed, falling back to gallery")
		return o.executeGallery(ctx, req, decision)
	default:
		return o.executeYtdlp(ctx, req, decision)
	}
}

func (o *Orchestrator) executeYtdlp(ctx context.Context, req *models.DownloadRequest, decision models.EngineDecision) (*models.DownloadResult, error) {
	meta, err := o.probe(ctx, req, decision)
	if err != nil {
		return failure(fmt.Sprintf("metadata extraction failed: %v", err)), nil
	}
	o.logger.Debug().
		Str("url", req.SourceURL).
		Str("title", meta.Title).
		Int("entries", meta.EntryCount()).
		Msg("Probed media")

	if meta.IsLive && req.MediaType != models.MediaTypeLive {
		return failure("live streams require an explicit live request"), nil
	}
	maxDur := o.cfg.Download.MaxDuration
	if maxDur > 0 && !meta.IsPlaylist() && int(meta.Duration) > maxDur {
		return failure(fmt.Sprintf("media is %ds long, limit is %ds", int(meta.Duration), maxDur)), nil
	}

	opts := o.buildOptions(req, meta)

	files, err := o.attemptDownload(ctx, req, decision, opts)
	if err != nil {
		return failure(err.Error()), nil
	}

	resolved := o.resolveFiles(ctx, req, opts, files)
	if len(resolved) == 0 {
		return failure(models.ErrNoFiles.Error()), nil
	}

	result := &models.DownloadResult{
		Success:     true,
		Files:       resolved,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		Duration:    int(meta.Duration),
		Size:        totalSize(resolved),
		MediaType:   resultMediaType(req, meta),
		IsPlaylist:  meta.IsPlaylist(),
	}
	if result.IsPlaylist {
		result.EntryURLs = meta.EntryURLs()
	}
	return result, nil
}

func (o *Orchestrator) executeGallery(ctx context.Context, req *models.DownloadRequest, decision models.EngineDecision) (*models.DownloadResult, error) {
	if wait := o.cfg.Download.MaxImageWait; wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(wait)*time.Second)
		defer cancel()
	}

	opts := &engine.Options{
		Dest:     o.requestDir(req),
		RangeEnd: o.cfg.Download.MaxImageCount,
	}

	var files []string
	var lastErr error
	for _, proxy := range o.proxyCandidates(decision.Domain) {
		opts.Proxy = proxy
		lease, _ := o.creds.Lease(ctx, req.RequesterID, decision.Domain)
		if lease != nil {
			opts.CookieFile = lease.Path
		} else {
			opts.CookieFile = ""
		}

		files, lastErr = o.gallery.DownloadMedia(ctx, req.SourceURL, opts)
		if lastErr == nil && len(files) > 0 {
			break
		}
		if lease != nil {
			o.creds.Invalidate(req.RequesterID, decision.Domain)
		}
	}
	if len(files) == 0 {
		if lastErr == nil {
			lastErr = models.ErrNoFiles
		}
		return failure(lastErr.Error()), nil
	}

	return &models.DownloadResult{
		Success:   true,
		Files:     files,
		Size:      totalSize(files),
		MediaType: models.MediaTypeImage,
	}, nil
}

// probe runs the metadata extraction with the first proxy candidate
// and whatever cookies are on hand.
func (o *Orchestrator) probe(ctx context.Context, req *models.DownloadRequest, decision models.EngineDecision) (*engine.Metadata, error) {
	opts := &engine.Options{NoPlaylist: req.MediaType != models.MediaTypePlaylist}
	if candidates := o.proxyCandidates(decision.Domain); len(candidates) > 0 {
		opts.Proxy = candidates[0]
	}
	if lease, _ := o.creds.Lease(ctx, req.RequesterID, decision.Domain); lease != nil {
		opts.CookieFile = lease.Path
	}
	return o.ytdlp.ExtractMetadata(ctx, req.SourceURL, opts)
}

// buildOptions picks the format strategy for the request
func (o *Orchestrator) buildOptions(req *models.DownloadRequest, meta *engine.Metadata) *engine.Options {
	opts := &engine.Options{
		OutputTemplate: filepath.Join(o.requestDir(req), "%(title)s.%(ext)s"),
	}

	switch req.MediaType {
	case models.MediaTypeAudio:
		opts.Format = engine.FormatBestAudio
		opts.ExtractAudio = true
	case models.MediaTypePlaylist:
		opts.Format = videoFormat(req.Quality)
		opts.PlaylistItems = req.PlaylistRange
		if opts.PlaylistItems == "" && o.cfg.Download.MaxPlaylistCount > 0 {
			opts.PlaylistItems = "1-" + strconv.Itoa(o.cfg.Download.MaxPlaylistCount)
		}
	case models.MediaTypeLive:
		opts.Format = "best"
		opts.LiveFromStart = true
		if maxDur := o.cfg.Download.MaxDuration; maxDur > 0 {
			opts.MaxDurationSec = maxDur
		}
	default:
		opts.Format = videoFormat(req.Quality)
		opts.NoPlaylist = true
		if maxDur := o.cfg.Download.MaxDuration; maxDur > 0 {
			opts.MaxDurationSec = maxDur
		}
	}
	return opts
}

// attemptDownload walks the proxy candidates, rotating cookies between
// failures. The candidate list always ends with a direct connection.
func (o *Orchestrator) attemptDownload(ctx context.Context, req *models.DownloadRequest, decision models.EngineDecision, opts *engine.Options) ([]string, error) {
	var lastErr error
	for _, proxy := range o.proxyCandidates(decision.Domain) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		opts.Proxy = proxy

		lease, err := o.creds.Lease(ctx, req.RequesterID, decision.Domain)
		if err != nil {
			o.logger.Debug().Err(err).Msg("Cookie lease failed, continuing without")
		}
		if lease != nil {
			opts.CookieFile = lease.Path
		} else {
			opts.CookieFile = ""
		}

		files, err := o.ytdlp.DownloadMedia(ctx, req.SourceURL, opts)
		if err == nil {
			return files, nil
		}
		lastErr = err
		o.logger.Warn().Err(err).Str("proxy", proxy).Msg("Download attempt failed")

		if lease != nil {
			o.creds.Invalidate(req.RequesterID, decision.Domain)
		}
	}
	return nil, fmt.Errorf("all download attempts failed: %w", lastErr)
}

var altExtensions = []string{".mp4", ".mkv", ".webm", ".mp3", ".m4a", ".opus", ".ogg"}

// resolveFiles determines which files actually exist after a download.
// The predicted filename is checked first, then its sibling extensions
// (post-processing changes containers), then whatever the engine
// reported along the way.
func (o *Orchestrator) resolveFiles(ctx context.Context, req *models.DownloadRequest, opts *engine.Options, reported []string) []string {
	if req.MediaType == models.MediaTypePlaylist {
		return existingFiles(reported)
	}

	if predicted, err := o.ytdlp.PrepareFilename(ctx, req.SourceURL, opts); err == nil && predicted != "" {
		if _, err := os.Stat(predicted); err == nil {
			return []string{predicted}
		}
		stem := predicted[:len(predicted)-len(filepath.Ext(predicted))]
		for _, ext := range altExtensions {
			candidate := stem + ext
			if _, err := os.Stat(candidate); err == nil {
				return []string{candidate}
			}
		}
	}

	return existingFiles(reported)
}

func (o *Orchestrator) requestDir(req *models.DownloadRequest) string {
	return filepath.Join(o.cfg.Download.SaveDir, req.ID)
}

func (o *Orchestrator) proxyCandidates(domain string) []string {
	candidates := o.proxies.Candidates(domain)
	if len(candidates) == 0 {
		return []string{""}
	}
	return candidates
}

// Cleanup removes the per-request working directory after delivery
func (o *Orchestrator) Cleanup(req *models.DownloadRequest) {
	if err := os.RemoveAll(o.requestDir(req)); err != nil {
		o.logger.Warn().Err(err).Str("request", req.ID).Msg("Cleanup failed")
	}
}

func videoFormat(quality string) string {
	if height, err := strconv.Atoi(quality); err == nil && height > 0 {
		return engine.FormatVideoCapped(height)
	}
	return engine.FormatBestVideo
}

func resultMediaType(req *models.DownloadRequest, meta *engine.Metadata) models.MediaType {
	if meta.IsPlaylist() {
		return models.MediaTypePlaylist
	}
	if req.MediaType != "" {
		return req.MediaType
	}
	return models.MediaTypeVideo
}

func existingFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func totalSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if stat, err := os.Stat(p); err == nil {
			total += stat.Size()
		}
	}
	return total
}

func failure(reason string) *models.DownloadResult {
	return &models.DownloadResult{Success: false, Error: reason}
}
