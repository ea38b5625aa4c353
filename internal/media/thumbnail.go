package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Thumbnail size limit imposed by chat transports
const maxThumbSide = 320

// ThumbScale builds an ffmpeg scale filter that fits the frame inside
// the transport limit while preserving aspect ratio.
func ThumbScale(width, height int) string {
	if width >= height {
		return fmt.Sprintf("scale=%d:-2", maxThumbSide)
	}
	return fmt.Sprintf("scale=-2:%d", maxThumbSide)
}

// ExtractThumbnail grabs a representative frame from a video. The
// first attempt seeks a second in; an all-black opening frame falls
// back to the thumbnail filter, which picks the most representative
// frame of the first minute.
func ExtractThumbnail(ctx context.Context, videoPath string, info *Info) (string, error) {
	thumbPath := strings.TrimSuffix(videoPath, fileExt(videoPath)) + "_thumb.jpg"
	scale := ThumbScale(info.Width, info.Height)

	err := runFFmpeg(ctx,
		"-ss", "1",
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", scale,
		"-y", thumbPath,
	)
	if err == nil && !isBlankImage(ctx, thumbPath) {
		return thumbPath, nil
	}

	err = runFFmpeg(ctx,
		"-i", videoPath,
		"-vf", "thumbnail=60,"+scale,
		"-frames:v", "1",
		"-y", thumbPath,
	)
	if err != nil {
		return "", fmt.Errorf("extract thumbnail: %w", err)
	}
	return thumbPath, nil
}

func runFFmpeg(ctx context.Context, args ...string) error {
	full := append([]string{"-v", "error"}, args...)
	cmd := exec.CommandContext(ctx, "ffmpeg", full...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// isBlankImage detects near-black frames with the signalstats filter
func isBlankImage(ctx context.Context, path string) bool {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-f", "lavfi",
		"-i", "movie="+path+",signalstats",
		"-show_entries", "frame_tags=lavfi.signalstats.YAVG",
		"-of", "csv=p=0",
	)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	var avg float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &avg); err != nil {
		return false
	}
	return avg < 16
}

func fileExt(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// RemoveIfExists deletes a path, ignoring files already gone
func RemoveIfExists(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return
	}
}
