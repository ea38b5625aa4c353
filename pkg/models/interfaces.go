package models

import (
	"context"
	"time"
)

// FileUpload describes one local file handed to the transport
type FileUpload struct {
	Path      string
	Caption   string
	MediaType MediaType
	Width     int
	Height    int
	Duration  int
	ThumbPath string
}

// Transport is the chat API consumed by the pipeline. Implementations
// return opaque message identifiers; the core never inspects them.
type Transport interface {
	// SendText sends a plain status message
	SendText(ctx context.Context, chatID int64, text string) (int64, error)

	// EditText edits a previously sent status message
	EditText(ctx context.Context, chatID int64, messageID int64, text string) error

	// SendVideo sends a single video with derived metadata and thumbnail
	SendVideo(ctx context.Context, chatID int64, file FileUpload) (int64, error)

	// SendAudio sends a single audio file
	SendAudio(ctx context.Context, chatID int64, file FileUpload) (int64, error)

	// SendPhoto sends a single image
	SendPhoto(ctx context.Context, chatID int64, file FileUpload) (int64, error)

	// SendDocument sends a file without media-specific handling
	SendDocument(ctx context.Context, chatID int64, file FileUpload) (int64, error)

	// SendMediaGroup sends up to the transport batch limit in one call
	SendMediaGroup(ctx context.Context, chatID int64, files []FileUpload) ([]int64, error)

	// ForwardMessages replays previously delivered messages by reference
	ForwardMessages(ctx context.Context, chatID int64, messageIDs []int64) error
}

// KV is the shared backing store for rate windows, leases and locks.
// Incr must be an atomic increment-or-create; ttl is applied only when
// the key is created.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// ResultCache maps (url, quality) to previously delivered references
type ResultCache interface {
	Lookup(url, quality string) (*CacheEntry, error)
	Store(url, quality string, entry *CacheEntry) error
	StorePlaylistEntry(playlistURL, videoURL, quality string, entry *CacheEntry) error
	LookupPlaylist(playlistURL string) ([]*CacheEntry, error)
	Invalidate(url, quality string) (int64, error)
}
