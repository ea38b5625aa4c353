package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"media-pipeline/pkg/models"
)

// SQLite stores delivered-message references and per-request audit
// rows in a local database.
type SQLite struct {
	db *gorm.DB
}

// NewSQLite opens (or creates) the database at path and migrates the
// schema.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.CacheEntry{},
		&models.DownloadRecord{},
		&models.User{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &SQLite{db: db}, nil
}

// HashURL derives the cache key for a source URL
func HashURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// EncodeMessageIDs serializes message references for a cache entry
func EncodeMessageIDs(ids []int64) string {
	data, _ := json.Marshal(ids)
	return string(data)
}

// DecodeMessageIDs parses the stored message references
func DecodeMessageIDs(s string) []int64 {
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil
	}
	return ids
}

// Lookup returns the entry for (url, quality), or ErrCacheMiss
func (s *SQLite) Lookup(url, quality string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := s.db.Where("url_hash = ? AND quality = ?", HashURL(url), quality).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.ErrCacheMiss
		}
		return nil, err
	}
	return &entry, nil
}

// Store saves (or replaces) the entry for (url, quality)
func (s *SQLite) Store(url, quality string, entry *models.CacheEntry) error {
	entry.URLHash = HashURL(url)
	entry.Quality = quality
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url_hash"}, {Name: "quality"}},
		UpdateAll: true,
	}).Create(entry).Error
}

// StorePlaylistEntry saves one playlist item keyed by its own URL and
// linked to the playlist for ordered replay.
func (s *SQLite) StorePlaylistEntry(playlistURL, videoURL, quality string, entry *models.CacheEntry) error {
	entry.PlaylistURL = playlistURL
	return s.Store(videoURL, quality, entry)
}

// LookupPlaylist returns all cached items of a playlist in index order
func (s *SQLite) LookupPlaylist(playlistURL string) ([]*models.CacheEntry, error) {
	var entries []*models.CacheEntry
	err := s.db.Where("playlist_url = ?", playlistURL).
		Order("playlist_index ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Invalidate removes entries for a URL. An empty quality drops every
// quality variant. Returns the number of removed rows.
func (s *SQLite) Invalidate(url, quality string) (int64, error) {
	query := s.db.Where("url_hash = ?", HashURL(url))
	if quality != "" {
		query = query.Where("quality = ?", quality)
	}
	res := query.Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

// RecordDownload persists one audit row
func (s *SQLite) RecordDownload(rec *models.DownloadRecord) error {
	return s.db.Create(rec).Error
}

// GetStats aggregates usage numbers across all audit rows
func (s *SQLite) GetStats() (*models.Stats, error) {
	stats := &models.Stats{}
	model := s.db.Model(&models.DownloadRecord{})

	if err := model.Count(&stats.TotalDownloads).Error; err != nil {
		return nil, err
	}
	s.db.Model(&models.DownloadRecord{}).Where("status = ?", "failed").Count(&stats.FailedDownloads)
	s.db.Model(&models.DownloadRecord{}).Where("from_cache = ?", true).Count(&stats.CacheHits)

	var totals struct {
		Size     int64
		Duration int64
	}
	s.db.Model(&models.DownloadRecord{}).
		Select("COALESCE(SUM(size),0) AS size, COALESCE(SUM(duration),0) AS duration").
		Scan(&totals)
	stats.TotalSize = totals.Size
	stats.TotalDuration = totals.Duration

	today := time.Now().Truncate(24 * time.Hour)
	s.db.Model(&models.DownloadRecord{}).Where("created_at >= ?", today).Count(&stats.DownloadsToday)

	if stats.TotalDownloads > 0 {
		stats.SuccessRate = float64(stats.TotalDownloads-stats.FailedDownloads) / float64(stats.TotalDownloads) * 100
	}
	return stats, nil
}

// ListRecords returns the most recent audit rows, newest first
func (s *SQLite) ListRecords(limit int) ([]*models.DownloadRecord, error) {
	var records []*models.DownloadRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// GetUserByUsername looks up an admin account
func (s *SQLite) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// SaveUser creates or updates an admin account
func (s *SQLite) SaveUser(user *models.User) error {
	return s.db.Save(user).Error
}

// Close closes the underlying database connection
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
