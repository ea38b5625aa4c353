package models

// Config represents the application configuration
type Config struct {
	Server struct {
		Host         string `mapstructure:"host" yaml:"host"`
		Port         int    `mapstructure:"port" yaml:"port"`
		ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
		WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
	} `mapstructure:"server" yaml:"server"`

	Download struct {
		SaveDir          string `mapstructure:"save_dir" yaml:"save_dir"`
		MaxWorkers       int    `mapstructure:"max_workers" yaml:"max_workers"`
		Timeout          int    `mapstructure:"timeout" yaml:"timeout"`
		MaxDuration      int    `mapstructure:"max_duration" yaml:"max_duration"`
		MaxPlaylistCount int    `mapstructure:"max_playlist_count" yaml:"max_playlist_count"`
		MaxImageCount    int    `mapstructure:"max_image_count" yaml:"max_image_count"`
		MaxImageWait     int    `mapstructure:"max_image_wait" yaml:"max_image_wait"`
		YtdlpPath        string `mapstructure:"ytdlp_path" yaml:"ytdlp_path"`
		GalleryDlPath    string `mapstructure:"gallery_dl_path" yaml:"gallery_dl_path"`
	} `mapstructure:"download" yaml:"download"`

	Database struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"database" yaml:"database"`

	Redis struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Addr    string `mapstructure:"addr" yaml:"addr"`
		DB      int    `mapstructure:"db" yaml:"db"`
	} `mapstructure:"redis" yaml:"redis"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
		Output string `mapstructure:"output" yaml:"output"`
	} `mapstructure:"log" yaml:"log"`

	Policy struct {
		DomainsFile  string   `mapstructure:"domains_file" yaml:"domains_file"`
		KeywordsFile string   `mapstructure:"keywords_file" yaml:"keywords_file"`
		AllowDomains []string `mapstructure:"allow_domains" yaml:"allow_domains"`
		GreyDomains  []string `mapstructure:"grey_domains" yaml:"grey_domains"`
		AllowWords   []string `mapstructure:"allow_words" yaml:"allow_words"`
	} `mapstructure:"policy" yaml:"policy"`

	RateLimit struct {
		PerMinute       int `mapstructure:"per_minute" yaml:"per_minute"`
		PerHour         int `mapstructure:"per_hour" yaml:"per_hour"`
		PerDay          int `mapstructure:"per_day" yaml:"per_day"`
		CooldownMinute  int `mapstructure:"cooldown_minute" yaml:"cooldown_minute"`
		CooldownHour    int `mapstructure:"cooldown_hour" yaml:"cooldown_hour"`
		CooldownDay     int `mapstructure:"cooldown_day" yaml:"cooldown_day"`
		GroupMultiplier int `mapstructure:"group_multiplier" yaml:"group_multiplier"`
	} `mapstructure:"rate_limit" yaml:"rate_limit"`

	Cookies struct {
		SourceURLs   []string            `mapstructure:"source_urls" yaml:"source_urls"`
		ServiceURLs  map[string][]string `mapstructure:"service_urls" yaml:"service_urls"`
		Rotation     string              `mapstructure:"rotation" yaml:"rotation"`
		CacheMinutes int                 `mapstructure:"cache_minutes" yaml:"cache_minutes"`
		MaxAgeHours  int                 `mapstructure:"max_age_hours" yaml:"max_age_hours"`
		RetryLimit   int                 `mapstructure:"retry_limit" yaml:"retry_limit"`
		RetryWindow  int                 `mapstructure:"retry_window" yaml:"retry_window"`
	} `mapstructure:"cookies" yaml:"cookies"`

	Proxy struct {
		Endpoints     []string            `mapstructure:"endpoints" yaml:"endpoints"`
		Selection     string              `mapstructure:"selection" yaml:"selection"`
		DomainRouting map[string][]string `mapstructure:"domain_routing" yaml:"domain_routing"`
	} `mapstructure:"proxy" yaml:"proxy"`

	Transport struct {
		BatchLimit     int `mapstructure:"batch_limit" yaml:"batch_limit"`
		MaxFileSizeMB  int `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
		CallsPerSecond int `mapstructure:"calls_per_second" yaml:"calls_per_second"`
	} `mapstructure:"transport" yaml:"transport"`

	Auth struct {
		Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
		JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
		TokenExpiry   int    `mapstructure:"token_expiry" yaml:"token_expiry"`
		AdminPassword string `mapstructure:"admin_password" yaml:"admin_password"`
	} `mapstructure:"auth" yaml:"auth"`
}
