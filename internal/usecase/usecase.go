package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/jobspec"
	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/types"
)

type Deps struct {
	Media    ports.MediaTool
	ASR      ports.ASR
	Listener ports.Listener
	Log      zerolog.Logger
}

type Usecase struct {
	d   Deps
	cfg config.Render
}

func New(d Deps, cfg config.Render) Usecase {
	if d.Listener == nil {
		d.Listener = ports.Listeners(nil)
	}
	return Usecase{d: d, cfg: cfg}
}

type Input struct {
	JobID string
	Spec  types.TimelineSpec
	// WorkDir is the job scratch directory. Every artifact, including the
	// final one, is written there.
	WorkDir string
	Logf    func(format string, args ...any)
}

// Result always carries the diagnostics gathered so far, also when Run
// fails.
type Result struct {
	JobID       string               `json:"job_id"`
	Artifact    types.RenderArtifact `json:"artifact"`
	Diagnostics []string             `json:"diagnostics"`
	Stages      []StageRecord        `json:"stages"`
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	if in.JobID == "" {
		in.JobID = uuid.NewString()
	}
	if in.Logf == nil {
		in.Logf = func(string, ...any) {}
	}
	u.emit(types.Event{Kind: types.EventJobAccepted, JobID: in.JobID, Title: in.Spec.Title})

	res, err := u.run(ctx, in)
	res.JobID = in.JobID
	if err != nil {
		u.emit(types.Event{Kind: types.EventJobFailed, JobID: in.JobID, Title: in.Spec.Title, Message: err.Error()})
		return res, err
	}
	u.emit(types.Event{
		Kind:    types.EventJobFinished,
		JobID:   in.JobID,
		Title:   in.Spec.Title,
		Output:  res.Artifact.Path,
		Message: fmt.Sprintf("%d stages, %d diagnostics", len(res.Stages), len(res.Diagnostics)),
	})
	return res, nil
}

func (u Usecase) run(ctx context.Context, in Input) (Result, error) {
	var res Result
	spec := in.Spec
	if err := jobspec.Validate(spec); err != nil {
		return res, &ValidationError{Err: err}
	}
	cfg := u.cfg.WithJob(spec)
	if err := cfg.Validate(); err != nil {
		return res, &ValidationError{Err: err}
	}
	if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
		return res, fmt.Errorf("create work dir: %w", err)
	}

	p, err := u.planChain(ctx, spec, cfg)
	if err != nil {
		return res, err
	}
	res.Diagnostics = append(res.Diagnostics, p.diags...)
	for _, d := range p.diags {
		in.Logf("%s", d)
	}
	in.Logf("planned %d video stages over %.2fs", len(p.stages), p.length)

	orch := NewOrchestrator(u.d.Media, cfg, in.JobID, in.WorkDir, u.d.Listener, u.d.Log)
	mixer := NewMixer(u.d.Media, cfg)
	integ := NewIntegrator(u.d.Media, u.d.ASR, cfg)

	// The video chain, music normalization and transcription are
	// independent until the final passes.
	var (
		video     string
		music     string
		caps      Captions
		capErr    error
		musicSrc  = spec.FindAudio(types.AudioMusic)
		captionRq = spec.Tracks.Captions
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := orch.Run(gctx, p.base, false, p.stages)
		video = out
		return err
	})
	if musicSrc != "" {
		g.Go(func() error {
			out, err := mixer.Normalize(gctx, musicSrc, in.WorkDir)
			music = out
			return err
		})
	}
	if captionRq != nil {
		g.Go(func() error {
			caps, capErr = integ.Prepare(gctx, captionRq, captionAudio(spec), in.WorkDir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		res.Stages = orch.Records()
		return res, err
	}

	if capErr != nil {
		res.Diagnostics = append(res.Diagnostics, "Captions skipped: "+capErr.Error())
		in.Logf("Captions skipped: %v", capErr)
	}
	if caps.BurnIn && caps.Burn != "" {
		out, err := orch.Run(ctx, video, true, []Stage{integ.BurnStage(caps)})
		switch {
		case err != nil && ctx.Err() != nil:
			res.Stages = orch.Records()
			return res, err
		case err != nil:
			res.Diagnostics = append(res.Diagnostics, "Captions skipped: "+err.Error())
			in.Logf("Captions skipped: %v", err)
		default:
			video = out
		}
	}

	mux := graph.Mux{Voice: spec.FindAudio(types.AudioVoice), Music: music, BaseAudio: chainHasAudio(p.stages)}
	if mux.Music != "" && mux.Voice == "" && !mux.BaseAudio {
		res.Diagnostics = append(res.Diagnostics, "Music: no voice or program audio to duck against, mapped without ducking")
		in.Logf("Music mapped without ducking: no voice or program audio")
	}
	if !caps.BurnIn && caps.SRT != "" {
		mux.Subtitles = caps.SRT
	}
	if st, ok := mixer.MuxStage(mux); ok {
		out, err := orch.Run(ctx, video, true, []Stage{st})
		if err != nil {
			res.Stages = orch.Records()
			return res, err
		}
		video = out
	}

	res.Stages = orch.Records()
	res.Artifact = types.RenderArtifact{
		Path:     video,
		Duration: p.length,
		Layout: types.Layout{
			Video:     true,
			Audio:     mux.Voice != "" || mux.Music != "" || mux.BaseAudio,
			Subtitles: mux.Subtitles != "",
		},
	}
	in.Logf("rendered %s", video)
	return res, nil
}

func chainHasAudio(stages []Stage) bool {
	if len(stages) == 0 {
		return true
	}
	return stages[len(stages)-1].Graph.Audio != ""
}

func (u Usecase) emit(ev types.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	u.d.Listener.OnEvent(ev)
}
