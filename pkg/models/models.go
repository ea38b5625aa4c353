package models

import (
	"time"
)

// Engine represents the external extraction engine handling a URL
type Engine string

const (
	EngineYtdlp              Engine = "ytdlp"
	EngineGalleryDl          Engine = "gallery_dl"
	EngineYtdlpGalleryDlFlbk Engine = "ytdlp_with_gallery_dl_fallback"
)

// MediaType represents the type of media content
type MediaType string

const (
	MediaTypeVideo    MediaType = "video"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeImage    MediaType = "image"
	MediaTypePlaylist MediaType = "playlist"
	MediaTypeLive     MediaType = "live"
)

// RatePeriod represents a rate-limiting window period
type RatePeriod string

const (
	PeriodMinute RatePeriod = "minute"
	PeriodHour   RatePeriod = "hour"
	PeriodDay    RatePeriod = "day"
)

// DownloadRequest describes one inbound URL to process. Immutable once
// created; consumed exactly once by the pipeline.
type DownloadRequest struct {
	ID            string    `json:"id"`
	RequesterID   int64     `json:"requester_id"`
	ChatID        int64     `json:"chat_id"`
	SourceURL     string    `json:"source_url"`
	MediaType     MediaType `json:"media_type"`
	Quality       string    `json:"quality"`
	PlaylistRange string    `json:"playlist_range"`
	GroupChat     bool      `json:"group_chat"`
}

// EngineDecision is the routing outcome for a URL
type EngineDecision struct {
	Engine Engine `json:"engine"`
	Domain string `json:"domain"`
}

// PolicyVerdict is the accept/reject outcome of content screening
type PolicyVerdict struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason"`
}

// DownloadResult holds the transient outcome of one acquisition. Local
// files listed here are always cleaned up by the caller after delivery.
type DownloadResult struct {
	Success    bool      `json:"success"`
	Files      []string  `json:"files"`
	EntryURLs  []string  `json:"entry_urls,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Duration    int       `json:"duration"`
	Size        int64     `json:"size"`
	MediaType   MediaType `json:"media_type"`
	IsPlaylist  bool      `json:"is_playlist"`
	Error       string    `json:"error"`
}

// CacheEntry maps (url_hash, quality) to previously delivered message
// references. Entries are never mutated, only replaced on re-save.
type CacheEntry struct {
	URLHash       string    `json:"url_hash" gorm:"primaryKey;size:32"`
	Quality       string    `json:"quality" gorm:"primaryKey;size:16"`
	MessageIDs    string    `json:"message_ids" gorm:"type:text"`
	Title         string    `json:"title"`
	Size          int64     `json:"size"`
	Duration      int       `json:"duration"`
	IsPlaylist    bool      `json:"is_playlist"`
	PlaylistURL   string    `json:"playlist_url" gorm:"index"`
	PlaylistIndex int       `json:"playlist_index"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// DownloadRecord is a per-request audit row used for usage statistics
type DownloadRecord struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	RequesterID int64     `json:"requester_id" gorm:"index"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain" gorm:"index"`
	Engine      Engine    `json:"engine"`
	MediaType   MediaType `json:"media_type"`
	Quality     string    `json:"quality"`
	Size        int64     `json:"size"`
	Duration    int       `json:"duration"`
	FromCache   bool      `json:"from_cache"`
	Status      string    `json:"status" gorm:"index"`
	Error       string    `json:"error"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// CredentialLease is a read-only reference to rotating authentication
// material, valid for the duration of one extraction call.
type CredentialLease struct {
	SourceID   int       `json:"source_id"`
	Path       string    `json:"path"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Stats aggregates usage numbers for reporting and export
type Stats struct {
	TotalDownloads  int64   `json:"total_downloads"`
	TotalSize       int64   `json:"total_size"`
	TotalDuration   int64   `json:"total_duration"`
	CacheHits       int64   `json:"cache_hits"`
	FailedDownloads int64   `json:"failed_downloads"`
	DownloadsToday  int64   `json:"downloads_today"`
	SuccessRate     float64 `json:"success_rate"`
}

// User represents an admin account for the HTTP surface
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Username  string    `json:"username" gorm:"uniqueIndex"`
	Password  string    `json:"-" gorm:"not null"`
	Role      string    `json:"role" gorm:"default:admin"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
