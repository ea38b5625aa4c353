package uploader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"media-pipeline/internal/media"
	"media-pipeline/pkg/models"
)

const maxSendAttempts = 3

// Uploader delivers downloaded files to a chat, batching media groups
// up to the transport limit and pacing calls against API flood limits.
type Uploader struct {
	transport models.Transport
	cfg       *models.Config
	pacer     *rate.Limiter
	logger    zerolog.Logger
}

// NewUploader creates an uploader over the given transport
func NewUploader(cfg *models.Config, transport models.Transport) *Uploader {
	cps := cfg.Transport.CallsPerSecond
	if cps <= 0 {
		cps = 1
	}
	return &Uploader{
		transport: transport,
		cfg:       cfg,
		pacer:     rate.NewLimiter(rate.Limit(cps), 1),
		logger:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "uploader").Logger(),
	}
}

func (u *Uploader) batchLimit() int {
	if u.cfg.Transport.BatchLimit > 0 {
		return u.cfg.Transport.BatchLimit
	}
	return 10
}

func (u *Uploader) maxFileSize() int64 {
	mb := u.cfg.Transport.MaxFileSizeMB
	if mb <= 0 {
		mb = 2048
	}
	return int64(mb) * 1024 * 1024
}

// Deliver sends the files to the chat and returns the message IDs of
// everything sent, in delivery order. The caption appears only on the
// first message. Oversize files are skipped with a warning.
func (u *Uploader) Deliver(ctx context.Context, chatID int64, files []models.FileUpload, caption string) ([]int64, error) {
	files = u.filterOversize(files)
	if len(files) == 0 {
		return nil, models.ErrNoFiles
	}

	u.enrichVideos(ctx, files)

	var messageIDs []int64
	limit := u.batchLimit()

	for start := 0; start < len(files); start += limit {
		end := start + limit
		if end > len(files) {
			end = len(files)
		}
		chunk := files[start:end]

		chunkCaption := ""
		if start == 0 {
			chunkCaption = caption
		}

		ids, err := u.sendChunk(ctx, chatID, chunk, chunkCaption)
		if err != nil {
			if models.IsChatGone(err) {
				u.logger.Warn().Int64("chat_id", chatID).Msg("Chat gone, abandoning delivery")
				return messageIDs, err
			}
			return messageIDs, err
		}
		messageIDs = append(messageIDs, ids...)
	}

	return messageIDs, nil
}

func (u *Uploader) filterOversize(files []models.FileUpload) []models.FileUpload {
	maxSize := u.maxFileSize()
	out := files[:0]
	for _, f := range files {
		if stat, err := os.Stat(f.Path); err == nil && stat.Size() > maxSize {
			u.logger.Warn().Str("file", f.Path).Int64("size", stat.Size()).Msg("File exceeds transport limit, skipping")
			continue
		}
		out = append(out, f)
	}
	return out
}

// enrichVideos fills in missing video dimensions and thumbnails so
// players render correctly before the full file arrives.
func (u *Uploader) enrichVideos(ctx context.Context, files []models.FileUpload) {
	for i := range files {
		f := &files[i]
		if f.MediaType != models.MediaTypeVideo || f.Width > 0 {
			continue
		}
		info, err := media.Probe(ctx, f.Path)
		if err != nil {
			u.logger.Debug().Err(err).Str("file", f.Path).Msg("Probe failed")
			continue
		}
		f.Width = info.Width
		f.Height = info.Height
		if f.Duration == 0 {
			f.Duration = info.Duration
		}
		if f.ThumbPath == "" {
			if thumb, err := media.ExtractThumbnail(ctx, f.Path, info); err == nil {
				f.ThumbPath = thumb
			}
		}
	}
}

func (u *Uploader) sendChunk(ctx context.Context, chatID int64, chunk []models.FileUpload, caption string) ([]int64, error) {
	if len(chunk) == 1 {
		f := chunk[0]
		f.Caption = caption
		id, err := u.sendSingle(ctx, chatID, f)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}

	group := make([]models.FileUpload, len(chunk))
	copy(group, chunk)
	for i := range group {
		group[i].Caption = ""
	}
	group[0].Caption = caption

	var ids []int64
	err := u.withRetry(ctx, func() error {
		var sendErr error
		ids, sendErr = u.transport.SendMediaGroup(ctx, chatID, group)
		return sendErr
	})
	return ids, err
}

func (u *Uploader) sendSingle(ctx context.Context, chatID int64, f models.FileUpload) (int64, error) {
	var id int64
	err := u.withRetry(ctx, func() error {
		var sendErr error
		switch f.MediaType {
		case models.MediaTypeVideo:
			id, sendErr = u.transport.SendVideo(ctx, chatID, f)
		case models.MediaTypeAudio:
			id, sendErr = u.transport.SendAudio(ctx, chatID, f)
		case models.MediaTypeImage:
			id, sendErr = u.transport.SendPhoto(ctx, chatID, f)
		default:
			id, sendErr = u.transport.SendDocument(ctx, chatID, f)
		}
		return sendErr
	})
	if err == nil || models.IsChatGone(err) {
		return id, err
	}
	if _, rateLimited := models.AsRetryAfter(err); rateLimited {
		return id, err
	}

	// Media-specific sends can fail on unsupported codecs or
	// containers; a plain document upload usually still works.
	u.logger.Warn().Err(err).Str("file", f.Path).Msg("Media send failed, falling back to document")
	var docErr error
	docErr = u.withRetry(ctx, func() error {
		var sendErr error
		id, sendErr = u.transport.SendDocument(ctx, chatID, f)
		return sendErr
	})
	if docErr != nil {
		return 0, fmt.Errorf("document fallback: %w", docErr)
	}
	return id, nil
}

// withRetry runs fn, honoring flood-control waits up to the attempt
// limit. Other errors return immediately.
func (u *Uploader) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if err = u.pacer.Wait(ctx); err != nil {
			return err
		}
		err = fn()
		if err == nil {
			return nil
		}
		retryAfter, ok := models.AsRetryAfter(err)
		if !ok {
			return err
		}
		u.logger.Debug().Dur("retry_after", retryAfter).Msg("Flood control, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}
	return err
}
