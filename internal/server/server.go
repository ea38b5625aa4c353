package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"media-pipeline/internal/auth"
	"media-pipeline/internal/export"
	"media-pipeline/internal/urlx"
	"media-pipeline/pkg/models"
)

// Processor runs download requests end to end
type Processor interface {
	Process(ctx context.Context, req *models.DownloadRequest) error
}

// PolicyReloader re-reads the screening lists from disk
type PolicyReloader interface {
	Reload() (domains int, keywords int)
}

// CacheAdmin exposes the administrative cache operations
type CacheAdmin interface {
	Invalidate(url, quality string) (int64, error)
}

// StatsSource supplies usage numbers and audit rows
type StatsSource interface {
	GetStats() (*models.Stats, error)
	ListRecords(limit int) ([]*models.DownloadRecord, error)
}

// Server is the administrative HTTP surface over the pipeline
type Server struct {
	config      *models.Config
	processor   Processor
	policy      PolicyReloader
	cacheAdmin  CacheAdmin
	stats       StatsSource
	authService *auth.Service
	httpServer  *http.Server
	logger      zerolog.Logger
}

// NewServer creates the API server
func NewServer(cfg *models.Config, processor Processor, policy PolicyReloader, cacheAdmin CacheAdmin, stats StatsSource, authService *auth.Service) *Server {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		config:      cfg,
		processor:   processor,
		policy:      policy,
		cacheAdmin:  cacheAdmin,
		stats:       stats,
		authService: authService,
		logger:      zerolog.New(os.Stdout).With().Timestamp().Str("component", "server").Logger(),
	}
}

// Router builds the gin engine with all routes attached
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", s.login)

	protected := v1.Group("")
	if s.config.Auth.Enabled {
		protected.Use(auth.NewMiddleware(s.authService).Required())
	}
	{
		protected.POST("/download", s.submitDownload)
		protected.POST("/policy/reload", s.reloadPolicy)
		protected.DELETE("/cache", s.invalidateCache)
		protected.GET("/stats", s.getStats)
		protected.GET("/stats/export", s.exportStats)
	}

	return router
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	go func() {
		s.logger.Info().Str("address", s.httpServer.Addr).Msg("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("Error starting server")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := s.authService.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type downloadRequest struct {
	URL           string `json:"url" binding:"required"`
	ChatID        int64  `json:"chat_id" binding:"required"`
	RequesterID   int64  `json:"requester_id" binding:"required"`
	MediaType     string `json:"media_type"`
	Quality       string `json:"quality"`
	PlaylistRange string `json:"playlist_range"`
	GroupChat     bool   `json:"group_chat"`
}

func (s *Server) submitDownload(c *gin.Context) {
	var body downloadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Chat messages often wrap the URL in free text; accept that, but
	// reject requests carrying no usable URL at all.
	sourceURL := body.URL
	if !urlx.IsValid(sourceURL) {
		found := urlx.ExtractURLs(body.URL)
		if len(found) == 0 || !urlx.IsValid(found[0]) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) URL"})
			return
		}
		sourceURL = found[0]
	}

	mediaType := models.MediaType(body.MediaType)
	if mediaType == "" {
		mediaType = models.MediaTypeVideo
	}

	req := &models.DownloadRequest{
		ID:            uuid.NewString(),
		RequesterID:   body.RequesterID,
		ChatID:        body.ChatID,
		SourceURL:     sourceURL,
		MediaType:     mediaType,
		Quality:       body.Quality,
		PlaylistRange: body.PlaylistRange,
		GroupChat:     body.GroupChat,
	}

	go func() {
		if err := s.processor.Process(context.Background(), req); err != nil {
			s.logger.Error().Err(err).Str("request", req.ID).Msg("Request processing failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"request_id": req.ID})
}

func (s *Server) reloadPolicy(c *gin.Context) {
	domains, keywords := s.policy.Reload()
	c.JSON(http.StatusOK, gin.H{
		"domains":  domains,
		"keywords": keywords,
	})
}

func (s *Server) invalidateCache(c *gin.Context) {
	var req struct {
		URL     string `json:"url" binding:"required"`
		Quality string `json:"quality"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, err := s.cacheAdmin.Invalidate(req.URL, req.Quality)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.stats.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) exportStats(c *gin.Context) {
	stats, err := s.stats.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	records, err := s.stats.ListRecords(1000)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("media-pipeline-stats-%d.xlsx", time.Now().Unix()))
	if err := export.NewExporter(path, export.FormatXLSX).Export(stats, records); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.Remove(path)

	c.FileAttachment(path, "stats.xlsx")
}
