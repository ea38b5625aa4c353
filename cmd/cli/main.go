package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"media-pipeline/internal/cache"
	"media-pipeline/internal/config"
	"media-pipeline/internal/cookie"
	"media-pipeline/internal/export"
	"media-pipeline/internal/server"
	"media-pipeline/internal/store"
	"media-pipeline/pkg/models"
)

var (
	configPath string
	mediaType  string
	quality    string
	chatID     int64
	playlist   string
	verbose    bool
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			PaddingBottom(1)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Width(18)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575"))
	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))
)

var rootCmd = &cobra.Command{
	Use:   "media-pipeline",
	Short: "Media acquisition and delivery pipeline",
	Long: `Media Pipeline downloads videos, audio and image sets from URLs,
screens them against a content policy, rate-limits requesters and
delivers the results to chats, replaying cached deliveries when the
same URL comes around again.

Features:
- yt-dlp and gallery-dl acquisition engines
- Per-user rate limiting with cooldowns
- Cookie and proxy rotation
- Content-addressed delivery cache
- REST API server with metrics`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Run one URL through the full pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		cfg, err := config.NewManager().Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		app, err := server.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("error wiring pipeline: %w", err)
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req := &models.DownloadRequest{
			ID:            uuid.New().String(),
			RequesterID:   1,
			ChatID:        chatID,
			SourceURL:     url,
			MediaType:     models.MediaType(mediaType),
			Quality:       quality,
			PlaylistRange: playlist,
		}

		fmt.Println(titleStyle.Render("Processing " + url))
		start := time.Now()
		if err := app.Pipeline.Process(ctx, req); err != nil {
			fmt.Println(failStyle.Render("✗ " + err.Error()))
			return err
		}

		outbox := filepath.Join(cfg.Download.SaveDir, "outbox", fmt.Sprintf("chat_%d", chatID))
		fmt.Println(okStyle.Render("✓ Done in " + time.Since(start).Round(time.Millisecond).String()))
		fmt.Println(labelStyle.Render("Delivered to") + valueStyle.Render(outbox))
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [urls-file]",
	Short: "Run every URL in a file through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, err := readURLsFromFile(args[0])
		if err != nil {
			return fmt.Errorf("error reading URLs file: %w", err)
		}
		if len(urls) == 0 {
			fmt.Println("No URLs found in file")
			return nil
		}

		cfg, err := config.NewManager().Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		app, err := server.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("error wiring pipeline: %w", err)
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println(titleStyle.Render(fmt.Sprintf("Processing %d URLs", len(urls))))
		success, failed := 0, 0
		for _, url := range urls {
			if ctx.Err() != nil {
				break
			}
			req := &models.DownloadRequest{
				ID:          uuid.New().String(),
				RequesterID: 1,
				ChatID:      chatID,
				SourceURL:   url,
				MediaType:   models.MediaType(mediaType),
				Quality:     quality,
			}
			if err := app.Pipeline.Process(ctx, req); err != nil {
				failed++
				fmt.Println(failStyle.Render("✗ " + url + ": " + err.Error()))
				continue
			}
			success++
			fmt.Println(okStyle.Render("✓ " + url))
		}

		fmt.Printf("\nBatch summary: %d processed, %d failed\n", success, failed)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager().Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		app, err := server.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("error wiring pipeline: %w", err)
		}
		defer app.Close()

		if err := app.Server.Start(); err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		stopCollector := app.Metrics.StartSystemCollector(15 * time.Second)
		defer stopCollector()

		fmt.Printf("🚀 Server started on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop the server")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		return app.Server.Stop()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager().Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		results, err := cache.NewSQLite(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("error opening cache: %w", err)
		}
		defer results.Close()

		stats, err := results.GetStats()
		if err != nil {
			return fmt.Errorf("error reading statistics: %w", err)
		}

		fmt.Println(titleStyle.Render("📊 Usage Statistics"))
		printStat("Total downloads", fmt.Sprintf("%d", stats.TotalDownloads))
		printStat("Failed", fmt.Sprintf("%d", stats.FailedDownloads))
		printStat("Cache hits", fmt.Sprintf("%d", stats.CacheHits))
		printStat("Today", fmt.Sprintf("%d", stats.DownloadsToday))
		printStat("Total size", formatBytes(stats.TotalSize))
		printStat("Total duration", (time.Duration(stats.TotalDuration) * time.Second).String())
		printStat("Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate))

		if exportPath, _ := cmd.Flags().GetString("export"); exportPath != "" {
			records, err := results.ListRecords(10000)
			if err != nil {
				return fmt.Errorf("error listing records: %w", err)
			}
			format := export.FormatXLSX
			if strings.HasSuffix(exportPath, ".csv") {
				format = export.FormatCSV
			}
			if err := export.NewExporter(exportPath, format).Export(stats, records); err != nil {
				return fmt.Errorf("error exporting statistics: %w", err)
			}
			fmt.Println(okStyle.Render("✓ Exported to " + exportPath))
		}
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired cookie files and stale download directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager().Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		kv := store.NewMemory()
		defer kv.Close()

		cookies := cookie.NewManager(cfg, kv)
		removed, err := cookies.CleanupOldCookies()
		if err != nil {
			return fmt.Errorf("error cleaning cookies: %w", err)
		}

		stale, err := cleanStaleDirs(cfg.Download.SaveDir, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("error cleaning download directories: %w", err)
		}

		fmt.Println(okStyle.Render(fmt.Sprintf("✓ Removed %d cookie files, %d stale directories", removed, stale)))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := config.NewManager()
		if _, err := manager.Load(configPath); err != nil {
			return fmt.Errorf("error initializing configuration: %w", err)
		}
		if err := manager.WriteDefault(""); err != nil {
			return fmt.Errorf("error writing configuration file: %w", err)
		}
		fmt.Println("Configuration file created successfully")
		return nil
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager().Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		fmt.Println(titleStyle.Render("📋 Current Configuration"))
		printStat("Server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		printStat("Save dir", cfg.Download.SaveDir)
		printStat("Max workers", fmt.Sprintf("%d", cfg.Download.MaxWorkers))
		printStat("Database", cfg.Database.Path)
		printStat("Redis", fmt.Sprintf("%v", cfg.Redis.Enabled))
		printStat("Auth", fmt.Sprintf("%v", cfg.Auth.Enabled))
		printStat("Log level", cfg.Log.Level)
		return nil
	},
}

func printStat(label, value string) {
	fmt.Println(labelStyle.Render(label) + valueStyle.Render(value))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// cleanStaleDirs removes per-request working directories that were left
// behind by interrupted downloads.
func cleanStaleDirs(saveDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(saveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "outbox" || entry.Name() == "cookies" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(saveDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func readURLsFromFile(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&mediaType, "type", "t", "video", "Media type (video, audio, image, playlist, live)")
	rootCmd.PersistentFlags().StringVarP(&quality, "quality", "q", "", "Video quality (best, 1080, 720, 480)")
	rootCmd.PersistentFlags().Int64Var(&chatID, "chat", 1, "Destination chat ID")
	rootCmd.PersistentFlags().StringVar(&playlist, "items", "", "Playlist range, e.g. 1-10")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	statsCmd.Flags().String("export", "", "Export statistics to a .xlsx or .csv file")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(initConfigCmd)
	configCmd.AddCommand(showConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
