//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

func probeDurationSeconds(mp4Path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mp4Path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

// probeStreamTypes returns the sorted codec types of every stream, e.g.
// [audio subtitle video].
func probeStreamTypes(path string) ([]string, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	types := strings.Fields(string(b))
	sort.Strings(types)
	return types, nil
}

// makeFixture renders a synthetic clip with ffmpeg's lavfi sources.
func makeFixture(out string, seconds int, color string, withAudio bool) error {
	args := []string{"-y", "-hide_banner",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=640x360:r=30:d=%d", color, seconds),
	}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:duration=%d", seconds),
			"-c:a", "aac", "-shortest")
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", out)
	b, err := exec.Command("ffmpeg", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg fixture: %w\n%s", err, string(b))
	}
	return nil
}

func makeTone(out string, seconds int) error {
	b, err := exec.Command("ffmpeg", "-y", "-hide_banner",
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=220:duration=%d", seconds),
		out,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg tone: %w\n%s", err, string(b))
	}
	return nil
}
