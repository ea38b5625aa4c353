package media

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SplitBySize cuts a video into parts no larger than maxBytes using
// stream copy, so splitting is fast and lossless. Returns the original
// path untouched when the file already fits.
func SplitBySize(ctx context.Context, path string, maxBytes int64) ([]string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if stat.Size() <= maxBytes {
		return []string{path}, nil
	}

	info, err := Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("cannot split %s: unknown duration", path)
	}

	parts := int(stat.Size()/maxBytes) + 1
	segment := info.Duration/parts + 1

	base := strings.TrimSuffix(path, fileExt(path))
	pattern := base + "_part%03d" + fileExt(path)

	err = runFFmpeg(ctx,
		"-i", path,
		"-c", "copy",
		"-map", "0",
		"-segment_time", fmt.Sprintf("%d", segment),
		"-f", "segment",
		"-reset_timestamps", "1",
		"-y", pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}

	var out []string
	for i := 0; ; i++ {
		p := fmt.Sprintf(base+"_part%03d"+fileExt(path), i)
		if _, err := os.Stat(p); err != nil {
			break
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("split %s produced no parts", path)
	}
	return out, nil
}
