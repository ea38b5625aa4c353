package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// GalleryDl shells out to the gallery-dl binary for image galleries
// and platforms yt-dlp does not cover.
type GalleryDl struct {
	binary string
	logger zerolog.Logger
}

// NewGalleryDl creates a gallery-dl adapter. An empty binary path
// falls back to "gallery-dl" on PATH.
func NewGalleryDl(binary string) *GalleryDl {
	if binary == "" {
		binary = "gallery-dl"
	}
	return &GalleryDl{
		binary: binary,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "gallerydl").Logger(),
	}
}

// DownloadMedia downloads a gallery and returns the written file
// paths. gallery-dl prints one path per line; skipped existing files
// carry a leading "# " and are kept too.
func (g *GalleryDl) DownloadMedia(ctx context.Context, url string, opts *Options) ([]string, error) {
	cmd := exec.CommandContext(ctx, g.binary, opts.gallerydlArgs(url)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var files []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "# ")
		if line == "" {
			continue
		}
		if _, err := os.Stat(line); err == nil {
			files = append(files, line)
		}
	}

	if runErr != nil {
		if len(files) > 0 {
			g.logger.Warn().Err(runErr).Int("files", len(files)).Msg("gallery-dl exited non-zero with partial output")
			return files, nil
		}
		return nil, fmt.Errorf("gallery-dl download: %w: %s", runErr, firstLine(stderr.String()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("gallery-dl produced no files")
	}
	return files, nil
}
