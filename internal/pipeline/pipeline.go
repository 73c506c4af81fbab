package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/reelchain/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/reelchain/internal/types"
	"github.com/forPelevin/reelchain/internal/usecase"
)

type Config struct {
	Render config.Render
	Logf   func(format string, args ...any)
	Log    zerolog.Logger
	// Trace receives every encoding engine invocation.
	Trace io.Writer

	// CacheDir is the base directory for per-job scratch files.
	// If empty, defaults to ".cache".
	CacheDir string
	// OutDir is where jobs without an explicit output path are placed.
	// If empty, defaults to "out".
	OutDir string

	FFmpegPath  string
	FFprobePath string

	WhisperBin   string
	WhisperModel string

	Listeners []ports.Listener

	// Media and ASR replace the CLI adapters when set.
	Media ports.MediaTool
	ASR   ports.ASR
}

func (c Config) Validate() error {
	if err := c.Render.Validate(); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if (c.WhisperBin == "") != (c.WhisperModel == "") {
		return errors.New("whisper binary and model must be set together")
	}
	return nil
}

// Job is one render request. An empty Output places the artifact in a
// fresh run directory under Config.OutDir.
type Job struct {
	ID     string
	Spec   types.TimelineSpec
	Output string
}

type Runner struct {
	cfg  Config
	deps usecase.Deps
	logf func(string, ...any)
}

func New(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	// adapters
	media := cfg.Media
	if media == nil {
		media = ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.Log, cfg.Trace)
	}
	asr := cfg.ASR
	if asr == nil && cfg.WhisperModel != "" {
		asr = whispercpp.New(cfg.WhisperBin, cfg.WhisperModel)
	}

	listeners := append(ports.Listeners{usecase.LogListener(cfg.Log)}, cfg.Listeners...)
	return &Runner{
		cfg:  cfg,
		logf: logf,
		deps: usecase.Deps{Media: media, ASR: asr, Listener: listeners, Log: cfg.Log},
	}, nil
}

// Run renders job and moves the artifact to its output path. A result.json
// with the diagnostics and stage list is written next to it.
func (r *Runner) Run(ctx context.Context, job Job) (usecase.Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	baseCache := r.cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	workDir := filepath.Join(baseCache, "runs", job.ID)
	r.logf("preparing workspace")
	r.logf("cache: %s", workDir)
	defer r.cleanup(workDir)

	uc := usecase.New(r.deps, r.cfg.Render)
	res, err := uc.Run(ctx, usecase.Input{JobID: job.ID, Spec: job.Spec, WorkDir: workDir, Logf: r.logf})
	if err != nil {
		return res, err
	}

	out := job.Output
	if out == "" {
		outDir := r.cfg.OutDir
		if outDir == "" {
			outDir = "out"
		}
		out = filepath.Join(buildRunOutDir(outDir, jobName(job.Spec), time.Now().UTC()), "video.mp4")
	}
	if err := place(res.Artifact.Path, out); err != nil {
		return res, r.fail(job, fmt.Errorf("place artifact: %w", err))
	}
	res.Artifact.Path = out

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return res, r.fail(job, fmt.Errorf("marshal result: %w", err))
	}
	resultPath := filepath.Join(filepath.Dir(out), "result.json")
	if err := os.WriteFile(resultPath, b, 0o644); err != nil {
		return res, r.fail(job, err)
	}
	r.logf("result written (%d stages, %d diagnostics): %s", len(res.Stages), len(res.Diagnostics), resultPath)
	return res, nil
}

// fail reports an error that happened after the render itself finished.
func (r *Runner) fail(job Job, err error) error {
	r.deps.Listener.OnEvent(types.Event{
		Kind:    types.EventJobFailed,
		JobID:   job.ID,
		Title:   job.Spec.Title,
		Message: err.Error(),
		At:      time.Now().UTC(),
	})
	return err
}

// Run is a one-shot convenience around New and Runner.Run.
func Run(ctx context.Context, cfg Config, job Job) (usecase.Result, error) {
	r, err := New(cfg)
	if err != nil {
		return usecase.Result{}, err
	}
	return r.Run(ctx, job)
}

func (r *Runner) cleanup(workDir string) {
	if r.cfg.Render.KeepIntermediates {
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		r.cfg.Log.Warn().Err(err).Str("dir", workDir).Msg("remove scratch dir")
	}
}

// place moves src to dst, copying when a rename crosses file systems.
func place(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func jobName(spec types.TimelineSpec) string {
	switch {
	case spec.Title != "":
		return spec.Title
	case spec.Base != "":
		return strings.TrimSuffix(filepath.Base(spec.Base), filepath.Ext(spec.Base))
	default:
		return ""
	}
}

func buildRunOutDir(outRoot, name string, now time.Time) string {
	seed := name
	name = normalizePathSegment(name)
	if name == "" {
		name = "job"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", seed, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
