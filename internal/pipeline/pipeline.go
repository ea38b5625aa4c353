package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"media-pipeline/internal/cache"
	"media-pipeline/internal/media"
	"media-pipeline/internal/monitor"
	"media-pipeline/internal/progress"
	"media-pipeline/internal/urlx"
	"media-pipeline/pkg/models"
)

const lockTTL = 10 * time.Minute

// Orchestrator acquires media for a routed request
type Orchestrator interface {
	Execute(ctx context.Context, req *models.DownloadRequest, decision models.EngineDecision) (*models.DownloadResult, error)
	Cleanup(req *models.DownloadRequest)
}

// Deliverer sends acquired files to a chat
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, files []models.FileUpload, caption string) ([]int64, error)
}

// Admitter gates requests per user
type Admitter interface {
	Admit(ctx context.Context, userID int64, multiplier int) error
}

// Screener applies the content policy
type Screener interface {
	Classify(rawURL, title, description, tags string) models.PolicyVerdict
}

// Recorder persists audit rows for statistics
type Recorder interface {
	RecordDownload(rec *models.DownloadRecord) error
}

// Pipeline drives a request end to end: normalize, screen, rate-limit,
// replay from cache or acquire fresh, deliver, then record the outcome.
type Pipeline struct {
	cfg          *models.Config
	transport    models.Transport
	orchestrator Orchestrator
	deliverer    Deliverer
	limiter      Admitter
	screener     Screener
	results      models.ResultCache
	recorder     Recorder
	kv           models.KV
	metrics      *monitor.Metrics
	logger       zerolog.Logger
}

// NewPipeline wires a pipeline from its collaborators
func NewPipeline(
	cfg *models.Config,
	transport models.Transport,
	orchestrator Orchestrator,
	deliverer Deliverer,
	limiter Admitter,
	screener Screener,
	results models.ResultCache,
	recorder Recorder,
	kv models.KV,
	metrics *monitor.Metrics,
) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		transport:    transport,
		orchestrator: orchestrator,
		deliverer:    deliverer,
		limiter:      limiter,
		screener:     screener,
		results:      results,
		recorder:     recorder,
		kv:           kv,
		metrics:      metrics,
		logger:       zerolog.New(os.Stdout).With().Timestamp().Str("component", "pipeline").Logger(),
	}
}

// Process handles one request end to end. The returned error covers
// infrastructure faults only; refusals and download failures are
// reported to the chat and recorded, not returned.
func (p *Pipeline) Process(ctx context.Context, req *models.DownloadRequest) error {
	url := urlx.Normalize(req.SourceURL)
	decision := urlx.Route(url)

	multiplier := 1
	if req.GroupChat && p.cfg.RateLimit.GroupMultiplier > 1 {
		multiplier = p.cfg.RateLimit.GroupMultiplier
	}
	if err := p.limiter.Admit(ctx, req.RequesterID, multiplier); err != nil {
		var rateErr *models.RateLimitedError
		if errors.As(err, &rateErr) {
			p.metrics.RateDenials.WithLabelValues(string(rateErr.Period)).Inc()
			p.notify(ctx, req.ChatID, fmt.Sprintf("Too many requests. Try again in %s.", rateErr.RetryAfter.Round(time.Second)))
			p.record(req, decision, "rate_limited", false, nil)
			return nil
		}
		return fmt.Errorf("rate limit check: %w", err)
	}

	// Screening on the URL alone happens before any cache access so a
	// blocked URL leaves no trace in the cache.
	if verdict := p.screener.Classify(url, "", "", ""); verdict.Blocked {
		p.metrics.PolicyBlocks.WithLabelValues(verdict.Reason).Inc()
		p.notify(ctx, req.ChatID, "This content cannot be downloaded.")
		p.record(req, decision, "policy_blocked", false, nil)
		return nil
	}

	lockKey := fmt.Sprintf("lock:%s:%s", cache.HashURL(url), req.Quality)
	acquired, err := p.kv.SetNX(ctx, lockKey, req.ID, lockTTL)
	if err != nil {
		return fmt.Errorf("download lock: %w", err)
	}
	if !acquired {
		p.notify(ctx, req.ChatID, "This download is already in progress.")
		return nil
	}
	defer p.kv.Delete(context.WithoutCancel(ctx), lockKey)

	if p.replayFromCache(ctx, req, url) {
		p.metrics.CacheHits.Inc()
		p.record(req, decision, "completed", true, nil)
		return nil
	}
	p.metrics.CacheMisses.Inc()

	return p.acquireAndDeliver(ctx, req, url, decision)
}

// replayFromCache forwards previously delivered messages. A failed
// replay invalidates the entry so the request falls through to a
// fresh acquisition.
func (p *Pipeline) replayFromCache(ctx context.Context, req *models.DownloadRequest, url string) bool {
	entry, err := p.results.Lookup(url, req.Quality)
	if err != nil {
		if !errors.Is(err, models.ErrCacheMiss) {
			p.logger.Warn().Err(err).Msg("Cache lookup failed")
		}
		return p.replayPlaylist(ctx, req, url)
	}

	ids := cache.DecodeMessageIDs(entry.MessageIDs)
	if len(ids) == 0 {
		return false
	}
	if err := p.transport.ForwardMessages(ctx, req.ChatID, ids); err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Cached replay failed, invalidating entry")
		p.results.Invalidate(url, req.Quality)
		return false
	}
	return true
}

func (p *Pipeline) replayPlaylist(ctx context.Context, req *models.DownloadRequest, url string) bool {
	if req.MediaType != models.MediaTypePlaylist {
		return false
	}
	playlistURL := urlx.CleanPlaylistURL(url)
	entries, err := p.results.LookupPlaylist(playlistURL)
	if err != nil || len(entries) == 0 {
		return false
	}

	forwarded := 0
	for _, entry := range entries {
		ids := cache.DecodeMessageIDs(entry.MessageIDs)
		if len(ids) == 0 {
			continue
		}
		if err := p.transport.ForwardMessages(ctx, req.ChatID, ids); err != nil {
			p.logger.Warn().Err(err).Int("index", entry.PlaylistIndex).Msg("Playlist replay stopped")
			break
		}
		forwarded++
	}
	return forwarded == len(entries) && forwarded > 0
}

func (p *Pipeline) acquireAndDeliver(ctx context.Context, req *models.DownloadRequest, url string, decision models.EngineDecision) error {
	reporter := progress.NewReporter(p.transport, req.ChatID)
	reporter.Start(ctx, "Downloading")
	defer reporter.Stop()

	p.metrics.ActiveDownloads.Inc()
	defer p.metrics.ActiveDownloads.Dec()
	started := time.Now()

	routed := *req
	routed.SourceURL = url
	result, err := p.orchestrator.Execute(ctx, &routed, decision)
	if err != nil {
		reporter.Finish(ctx, "Download failed.")
		p.record(req, decision, "failed", false, nil)
		return fmt.Errorf("orchestrate: %w", err)
	}
	defer p.orchestrator.Cleanup(&routed)

	p.metrics.DownloadsTotal.WithLabelValues(string(decision.Engine), string(result.MediaType)).Inc()
	p.metrics.DownloadDuration.WithLabelValues(string(decision.Engine)).Observe(time.Since(started).Seconds())

	if !result.Success {
		p.metrics.DownloadsFailed.WithLabelValues(string(decision.Engine), string(result.MediaType)).Inc()
		reporter.Finish(ctx, "Download failed: "+result.Error)
		p.record(req, decision, "failed", false, result)
		return nil
	}

	// Title, description and tags arrive only with the download, so the
	// keyword screen runs again before anything reaches the chat.
	if verdict := p.screener.Classify(url, result.Title, result.Description,
		strings.Join(result.Tags, " ")); verdict.Blocked {
		p.metrics.PolicyBlocks.WithLabelValues(verdict.Reason).Inc()
		reporter.Finish(ctx, "This content cannot be downloaded.")
		p.record(req, decision, "policy_blocked", false, result)
		return nil
	}

	files, cleanups := p.prepareUploads(ctx, result)
	defer func() {
		for _, c := range cleanups {
			media.RemoveIfExists(c)
		}
	}()

	reporter.Update("Uploading")
	messageIDs, err := p.deliverer.Deliver(ctx, req.ChatID, files, result.Title)
	if err != nil {
		if models.IsChatGone(err) {
			reporter.Stop()
			p.record(req, decision, "failed", false, result)
			return nil
		}
		reporter.Finish(ctx, "Upload failed.")
		p.record(req, decision, "failed", false, result)
		return fmt.Errorf("deliver: %w", err)
	}
	reporter.Stop()

	p.metrics.DownloadSize.WithLabelValues(string(result.MediaType)).Observe(float64(result.Size))
	p.metrics.DeliveredMsgs.Add(float64(len(messageIDs)))

	p.storeResult(req, url, result, messageIDs)
	p.record(req, decision, "completed", false, result)
	return nil
}

// prepareUploads converts result files into transport uploads,
// splitting videos that exceed the transport size limit. Returns the
// uploads plus any split parts to delete afterwards.
func (p *Pipeline) prepareUploads(ctx context.Context, result *models.DownloadResult) ([]models.FileUpload, []string) {
	maxBytes := int64(p.cfg.Transport.MaxFileSizeMB) * 1024 * 1024
	var uploads []models.FileUpload
	var cleanups []string

	for _, path := range result.Files {
		mediaType := result.MediaType
		if mediaType == models.MediaTypePlaylist {
			mediaType = models.MediaTypeVideo
		}

		if mediaType == models.MediaTypeVideo && maxBytes > 0 {
			parts, err := media.SplitBySize(ctx, path, maxBytes)
			if err == nil && len(parts) > 1 {
				for _, part := range parts {
					uploads = append(uploads, models.FileUpload{Path: part, MediaType: mediaType})
					cleanups = append(cleanups, part)
				}
				continue
			}
		}
		uploads = append(uploads, models.FileUpload{Path: path, MediaType: mediaType, Duration: result.Duration})
	}
	return uploads, cleanups
}

func (p *Pipeline) storeResult(req *models.DownloadRequest, url string, result *models.DownloadResult, messageIDs []int64) {
	entry := &models.CacheEntry{
		MessageIDs: cache.EncodeMessageIDs(messageIDs),
		Title:      result.Title,
		Size:       result.Size,
		Duration:   result.Duration,
		IsPlaylist: result.IsPlaylist,
	}
	if err := p.results.Store(url, req.Quality, entry); err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Cache store failed")
	}

	// Playlist entries are also stored per video when every entry mapped
	// to exactly one delivered message, so single-video requests for the
	// same content replay from cache.
	if result.IsPlaylist && len(result.EntryURLs) == len(messageIDs) {
		playlistURL := urlx.CleanPlaylistURL(url)
		for i, videoURL := range result.EntryURLs {
			child := &models.CacheEntry{
				MessageIDs:    cache.EncodeMessageIDs(messageIDs[i : i+1]),
				Title:         result.Title,
				PlaylistIndex: i + 1,
			}
			if err := p.results.StorePlaylistEntry(playlistURL, videoURL, req.Quality, child); err != nil {
				p.logger.Warn().Err(err).Str("url", videoURL).Msg("Playlist entry store failed")
			}
		}
	}
}

func (p *Pipeline) notify(ctx context.Context, chatID int64, text string) {
	if _, err := p.transport.SendText(ctx, chatID, text); err != nil {
		p.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Notification failed")
	}
}

func (p *Pipeline) record(req *models.DownloadRequest, decision models.EngineDecision, status string, fromCache bool, result *models.DownloadResult) {
	rec := &models.DownloadRecord{
		ID:          req.ID,
		RequesterID: req.RequesterID,
		URL:         req.SourceURL,
		Domain:      decision.Domain,
		Engine:      decision.Engine,
		MediaType:   req.MediaType,
		Quality:     req.Quality,
		FromCache:   fromCache,
		Status:      status,
	}
	if result != nil {
		rec.Size = result.Size
		rec.Duration = result.Duration
		rec.Error = result.Error
	}
	if err := p.recorder.RecordDownload(rec); err != nil {
		p.logger.Warn().Err(err).Str("request", req.ID).Msg("Audit record failed")
	}
}
