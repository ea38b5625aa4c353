package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"media-pipeline/pkg/models"
)

// Manager manages application configuration
type Manager struct {
	config *models.Config
	viper  *viper.Viper
	logger zerolog.Logger
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: &models.Config{},
		viper:  viper.New(),
		logger: zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
}

// Load loads configuration from file and environment
func (m *Manager) Load(configPath string) (*models.Config, error) {
	m.setDefaults()

	m.viper.SetConfigName("config")
	m.viper.SetConfigType("yaml")

	if configPath != "" {
		m.viper.AddConfigPath(configPath)
	} else {
		m.viper.AddConfigPath(".")
		m.viper.AddConfigPath("./config")
		m.viper.AddConfigPath("$HOME/.media-pipeline")
		m.viper.AddConfigPath("/etc/media-pipeline")
	}

	m.viper.AutomaticEnv()
	m.viper.SetEnvPrefix("MP")

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults apply
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("error ensuring directories: %w", err)
	}

	m.configureLogger()

	return m.config, nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *models.Config {
	return m.config
}

// WriteDefault writes the effective configuration to a yaml file,
// refusing to overwrite an existing one.
func (m *Manager) WriteDefault(path string) error {
	if path == "" {
		path = "./config.yaml"
	}
	return m.viper.SafeWriteConfigAs(path)
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 8080)
	m.viper.SetDefault("server.read_timeout", 30)
	m.viper.SetDefault("server.write_timeout", 30)

	// Download defaults
	m.viper.SetDefault("download.save_dir", "./downloads")
	m.viper.SetDefault("download.max_workers", 4)
	m.viper.SetDefault("download.timeout", 600)
	m.viper.SetDefault("download.max_duration", 14400)
	m.viper.SetDefault("download.max_playlist_count", 50)
	m.viper.SetDefault("download.max_image_count", 20)
	m.viper.SetDefault("download.max_image_wait", 300)
	m.viper.SetDefault("download.ytdlp_path", "yt-dlp")
	m.viper.SetDefault("download.gallery_dl_path", "gallery-dl")

	// Database defaults
	m.viper.SetDefault("database.path", "./data/media-pipeline.db")

	// Redis defaults
	m.viper.SetDefault("redis.enabled", false)
	m.viper.SetDefault("redis.addr", "localhost:6379")
	m.viper.SetDefault("redis.db", 1)

	// Log defaults
	m.viper.SetDefault("log.level", "info")
	m.viper.SetDefault("log.format", "text")
	m.viper.SetDefault("log.output", "stdout")

	// Policy defaults
	m.viper.SetDefault("policy.domains_file", "./lists/blocked_domains.txt")
	m.viper.SetDefault("policy.keywords_file", "./lists/blocked_keywords.txt")
	m.viper.SetDefault("policy.allow_domains", []string{})
	m.viper.SetDefault("policy.grey_domains", []string{})
	m.viper.SetDefault("policy.allow_words", []string{})

	// Rate limit defaults
	m.viper.SetDefault("rate_limit.per_minute", 5)
	m.viper.SetDefault("rate_limit.per_hour", 30)
	m.viper.SetDefault("rate_limit.per_day", 100)
	m.viper.SetDefault("rate_limit.cooldown_minute", 300)
	m.viper.SetDefault("rate_limit.cooldown_hour", 1800)
	m.viper.SetDefault("rate_limit.cooldown_day", 86400)
	m.viper.SetDefault("rate_limit.group_multiplier", 2)

	// Cookie rotation defaults
	m.viper.SetDefault("cookies.rotation", "round_robin")
	m.viper.SetDefault("cookies.cache_minutes", 30)
	m.viper.SetDefault("cookies.max_age_hours", 24)
	m.viper.SetDefault("cookies.retry_limit", 3)
	m.viper.SetDefault("cookies.retry_window", 3600)

	// Proxy defaults
	m.viper.SetDefault("proxy.selection", "round_robin")

	// Transport defaults
	m.viper.SetDefault("transport.batch_limit", 10)
	m.viper.SetDefault("transport.max_file_size_mb", 2048)
	m.viper.SetDefault("transport.calls_per_second", 1)

	// Auth defaults
	m.viper.SetDefault("auth.enabled", true)
	m.viper.SetDefault("auth.jwt_secret", "change-this-in-production")
	m.viper.SetDefault("auth.token_expiry", 24)
	m.viper.SetDefault("auth.admin_password", "admin123")
}

// ensureDirectories ensures all required directories exist
func (m *Manager) ensureDirectories() error {
	dirs := []string{
		m.config.Download.SaveDir,
		filepath.Dir(m.config.Database.Path),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}

	return nil
}

// configureLogger configures the logger based on settings
func (m *Manager) configureLogger() {
	level, err := zerolog.ParseLevel(m.config.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if m.config.Log.Format != "json" {
		m.logger = m.logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if m.config.Log.Output != "stdout" {
		file, err := os.OpenFile(m.config.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			m.logger = m.logger.Output(file)
		}
	}
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() zerolog.Logger {
	return m.logger
}
