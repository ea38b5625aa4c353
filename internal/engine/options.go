package engine

import (
	"fmt"
	"strconv"
)

// Standard yt-dlp format selectors. MP4/M4A pairs are preferred so
// results play everywhere without remuxing.
const (
	FormatBestVideo = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	FormatBestAudio = "bestaudio/best"

	AudioFormatMP3 = "mp3"
	AudioQuality   = "192"
)

// FormatVideoCapped builds a selector limited to the given height, for
// quality requests like "720p".
func FormatVideoCapped(height int) string {
	return fmt.Sprintf(
		"bestvideo[ext=mp4][height<=%d]+bestaudio[ext=m4a]/best[ext=mp4][height<=%d]/best[height<=%d]/best",
		height, height, height,
	)
}

// Options describes one engine invocation. Zero values mean "omit the
// flag"; adapters translate the set fields into command-line args.
type Options struct {
	Format         string
	OutputTemplate string
	Proxy          string
	CookieFile     string

	// Playlist handling
	NoPlaylist    bool
	PlaylistItems string // yt-dlp item spec, e.g. "1-50" or "7"
	RangeEnd      int    // gallery-dl --range 1-N

	// Audio extraction (yt-dlp post-processing)
	ExtractAudio bool
	AudioFormat  string

	// MaxDurationSec rejects media longer than this before download
	MaxDurationSec int

	// LiveFromStart records a live stream from its beginning
	LiveFromStart bool

	Dest      string // gallery-dl destination directory
	ExtraArgs []string
}

// ytdlpArgs renders the yt-dlp argument list, URL last
func (o *Options) ytdlpArgs(url string) []string {
	args := []string{"--no-warnings", "--no-progress", "--restrict-filenames"}

	if o.Format != "" {
		args = append(args, "-f", o.Format)
	}
	if o.OutputTemplate != "" {
		args = append(args, "-o", o.OutputTemplate)
	}
	if o.Proxy != "" {
		args = append(args, "--proxy", o.Proxy)
	}
	if o.CookieFile != "" {
		args = append(args, "--cookies", o.CookieFile)
	}
	if o.NoPlaylist {
		args = append(args, "--no-playlist")
	}
	if o.PlaylistItems != "" {
		args = append(args, "--playlist-items", o.PlaylistItems)
	}
	if o.ExtractAudio {
		format := o.AudioFormat
		if format == "" {
			format = AudioFormatMP3
		}
		args = append(args, "-x", "--audio-format", format, "--audio-quality", AudioQuality)
	}
	if o.MaxDurationSec > 0 {
		args = append(args, "--match-filter", fmt.Sprintf("duration <= %d", o.MaxDurationSec))
	}
	if o.LiveFromStart {
		args = append(args, "--live-from-start")
	}

	args = append(args, o.ExtraArgs...)
	return append(args, url)
}

// gallerydlArgs renders the gallery-dl argument list, URL last
func (o *Options) gallerydlArgs(url string) []string {
	args := []string{}

	if o.Dest != "" {
		args = append(args, "--dest", o.Dest)
	}
	if o.Proxy != "" {
		args = append(args, "--proxy", o.Proxy)
	}
	if o.CookieFile != "" {
		args = append(args, "--cookies", o.CookieFile)
	}
	if o.RangeEnd > 0 {
		args = append(args, "--range", "1-"+strconv.Itoa(o.RangeEnd))
	}

	args = append(args, o.ExtraArgs...)
	return append(args, url)
}
