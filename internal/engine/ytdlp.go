package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Ytdlp shells out to the yt-dlp binary for metadata probes and
// downloads.
type Ytdlp struct {
	binary string
	logger zerolog.Logger
}

// NewYtdlp creates a yt-dlp adapter. An empty binary path falls back
// to "yt-dlp" on PATH.
func NewYtdlp(binary string) *Ytdlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Ytdlp{
		binary: binary,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "ytdlp").Logger(),
	}
}

// ExtractMetadata probes the URL with -J without downloading anything
func (y *Ytdlp) ExtractMetadata(ctx context.Context, url string, opts *Options) (*Metadata, error) {
	args := []string{"-J", "--no-warnings"}
	if opts != nil {
		if opts.Proxy != "" {
			args = append(args, "--proxy", opts.Proxy)
		}
		if opts.CookieFile != "" {
			args = append(args, "--cookies", opts.CookieFile)
		}
		if opts.NoPlaylist {
			args = append(args, "--no-playlist")
		}
		if opts.PlaylistItems != "" {
			args = append(args, "--playlist-items", opts.PlaylistItems)
		}
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, y.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp probe: %w: %s", err, firstLine(stderr.String()))
	}

	var meta Metadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	return &meta, nil
}

// DownloadMedia runs a download and returns every output path yt-dlp
// reported. Merged and post-processed outputs replace their inputs in
// the returned list.
func (y *Ytdlp) DownloadMedia(ctx context.Context, url string, opts *Options) ([]string, error) {
	cmd := exec.CommandContext(ctx, y.binary, opts.ytdlpArgs(url)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("yt-dlp start: %w", err)
	}

	files := y.collectOutputs(stdout)

	if err := cmd.Wait(); err != nil {
		// Partial playlist downloads still yield usable files.
		if len(files) > 0 {
			y.logger.Warn().Err(err).Int("files", len(files)).Msg("yt-dlp exited non-zero with partial output")
			return files, nil
		}
		return nil, fmt.Errorf("yt-dlp download: %w: %s", err, firstLine(stderr.String()))
	}
	return files, nil
}

// collectOutputs scans yt-dlp stdout for destination announcements.
// Later stages supersede earlier ones for the same media: a merge or
// audio extraction replaces the last raw destination.
func (y *Ytdlp) collectOutputs(r interface{ Read([]byte) (int, error) }) []string {
	var files []string
	replaceLast := func(path string) {
		if len(files) > 0 {
			files[len(files)-1] = path
		} else {
			files = append(files, path)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "[download] Destination: "):
			files = append(files, strings.TrimPrefix(line, "[download] Destination: "))
		case strings.Contains(line, " has already been downloaded"):
			path := strings.TrimPrefix(line, "[download] ")
			path = strings.TrimSuffix(path, " has already been downloaded")
			files = append(files, path)
		case strings.HasPrefix(line, "[Merger] Merging formats into "):
			replaceLast(strings.Trim(strings.TrimPrefix(line, "[Merger] Merging formats into "), "\""))
		case strings.HasPrefix(line, "[ExtractAudio] Destination: "):
			replaceLast(strings.TrimPrefix(line, "[ExtractAudio] Destination: "))
		}
	}
	return files
}

// PrepareFilename asks yt-dlp what filename a download would produce
func (y *Ytdlp) PrepareFilename(ctx context.Context, url string, opts *Options) (string, error) {
	args := []string{"--print", "filename", "--no-warnings"}
	if opts != nil {
		if opts.Format != "" {
			args = append(args, "-f", opts.Format)
		}
		if opts.OutputTemplate != "" {
			args = append(args, "-o", opts.OutputTemplate)
		}
		if opts.Proxy != "" {
			args = append(args, "--proxy", opts.Proxy)
		}
		if opts.CookieFile != "" {
			args = append(args, "--cookies", opts.CookieFile)
		}
		if opts.NoPlaylist {
			args = append(args, "--no-playlist")
		}
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, y.binary, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp prepare filename: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
