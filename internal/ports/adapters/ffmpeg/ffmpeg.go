package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/ports"
)

// maxErrOutput bounds how much engine output is attached to an error.
const maxErrOutput = 4096

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     zerolog.Logger
	trace   io.Writer
}

// New returns an adapter for the given binaries; empty paths resolve from
// PATH. Every encode invocation is printed to trace when it is non-nil.
func New(ffmpegPath, ffprobePath string, log zerolog.Logger, trace io.Writer) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: log.With().Str("component", "ffmpeg").Logger(), trace: trace}
}

var _ ports.MediaTool = (*Adapter)(nil)

func (a *Adapter) Encode(ctx context.Context, req ports.EncodeRequest) error {
	args, err := Args(req)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if a.trace != nil {
		fmt.Fprintf(a.trace, "→ %s\n", CommandLine(a.ffmpeg, args))
	}

	started := time.Now()
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(req.Output)
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg encode %s: %w", filepath.Base(req.Output), ctx.Err())
		}
		return fmt.Errorf("ffmpeg encode %s: %w\n%s", filepath.Base(req.Output), err, tail(b))
	}
	a.log.Debug().
		Str("output", req.Output).
		Int("inputs", len(req.Graph.Inputs)).
		Int("nodes", len(req.Graph.Nodes)).
		Dur("took", time.Since(started)).
		Msg("encode done")
	return nil
}

// Args renders the ffmpeg argument list for req. The graph must be fully
// bound and valid.
func Args(req ports.EncodeRequest) ([]string, error) {
	g := req.Graph
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if req.Output == "" {
		return nil, fmt.Errorf("encode: output path is required")
	}
	args := []string{"-y", "-hide_banner", "-nostdin"}
	for i, in := range g.Inputs {
		if in.Path == "" {
			return nil, fmt.Errorf("encode: input %d has no path", i)
		}
		if in.Loop {
			args = append(args, "-loop", "1")
		}
		args = append(args, "-i", in.Path)
	}
	if fc := g.FilterComplex(); fc != "" {
		args = append(args, "-filter_complex", fc)
	}
	if !g.AudioOnly {
		args = append(args, "-map", graph.MapArg(g.Video))
	}
	if g.Audio != "" {
		args = append(args, "-map", graph.MapArg(g.Audio))
	}
	if g.Subtitle != "" {
		args = append(args, "-map", graph.MapArg(g.Subtitle))
	}

	q := req.Quality
	switch {
	case g.AudioOnly:
		args = append(args, "-vn")
	case g.CopyVideo:
		args = append(args, "-c:v", "copy")
	default:
		args = append(args,
			"-c:v", orDefault(q.VideoCodec, "libx264"),
			"-preset", orDefault(q.Preset, "medium"),
			"-crf", strconv.Itoa(q.CRF),
			"-pix_fmt", orDefault(q.PixFmt, "yuv420p"),
		)
	}
	if g.Audio != "" {
		if g.AudioOnly && strings.EqualFold(filepath.Ext(req.Output), ".wav") {
			args = append(args, "-c:a", "pcm_s16le")
		} else {
			args = append(args, "-c:a", orDefault(q.AudioCodec, "aac"), "-b:a", orDefault(q.AudioBitrate, "192k"))
		}
	}
	if g.Subtitle != "" {
		args = append(args, "-c:s", "mov_text")
	}
	if !g.AudioOnly {
		args = append(args, "-movflags", "+faststart")
	}
	if g.Shortest {
		args = append(args, "-shortest")
	}
	return append(args, req.Output), nil
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, tail(b))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, in string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, tail(b))
	}
	return ParseDuration(string(b))
}

// ParseDuration parses ffprobe's format=duration output.
func ParseDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || sec <= 0 {
		return 0, fmt.Errorf("undetectable duration %q", s)
	}
	return time.Duration(math.Round(sec * float64(time.Second))), nil
}

// CommandLine renders an invocation for display, quoting arguments the way a
// POSIX shell would need them.
func CommandLine(bin string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(bin))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == ':' || r == '=' || r == '+' || r == ',' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tail(b []byte) string {
	if len(b) <= maxErrOutput {
		return string(b)
	}
	return "..." + string(b[len(b)-maxErrOutput:])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
