package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/domain/subtitles"
	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/types"
)

// Captions is the prepared subtitle track of a job.
type Captions struct {
	Track types.SubtitleTrack
	// SRT is the soft-track file; Burn is the file rendered into the pixels.
	SRT    string
	Burn   string
	BurnIn bool
}

// Integrator produces captions and decides how they reach the output.
type Integrator struct {
	tool ports.MediaTool
	asr  ports.ASR
	cfg  config.Render
}

func NewIntegrator(tool ports.MediaTool, asr ports.ASR, cfg config.Render) Integrator {
	return Integrator{tool: tool, asr: asr, cfg: cfg}
}

// Prepare returns the job's captions. Any failure is returned as an error
// the caller records as a diagnostic; it never aborts the job.
func (in Integrator) Prepare(ctx context.Context, req *types.CaptionsSpec, audioSrc, workDir string) (Captions, error) {
	if req.Src != "" {
		return in.fromFile(req)
	}
	if audioSrc == "" {
		return Captions{}, errors.New("no voice track or base media to transcribe")
	}
	if in.asr == nil {
		return Captions{}, errors.New("no speech recognizer configured")
	}

	wav := filepath.Join(workDir, "captions-audio.wav")
	if err := in.tool.ExtractAudioMono16k(ctx, audioSrc, wav); err != nil {
		return Captions{}, err
	}
	tr, err := in.asr.Transcribe(ctx, wav, workDir)
	if err != nil {
		return Captions{}, err
	}
	track := subtitles.FromTranscript(tr)
	if len(track.Cues) == 0 {
		return Captions{}, errors.New("transcript has no speech")
	}

	c := Captions{Track: track, BurnIn: req.BurnIn}
	if req.BurnIn {
		c.Burn = filepath.Join(workDir, "captions.ass")
		ass := subtitles.RenderKaraokeASS(tr, subtitles.Style{Canvas: in.cfg.Canvas, FontSize: in.cfg.SubtitleFontSize})
		if err := os.WriteFile(c.Burn, []byte(ass), 0o644); err != nil {
			return Captions{}, fmt.Errorf("write ass: %w", err)
		}
		return c, nil
	}
	var buf bytes.Buffer
	if err := subtitles.Format(&buf, track); err != nil {
		return Captions{}, err
	}
	c.SRT = filepath.Join(workDir, "captions.srt")
	if err := os.WriteFile(c.SRT, buf.Bytes(), 0o644); err != nil {
		return Captions{}, fmt.Errorf("write srt: %w", err)
	}
	return c, nil
}

// fromFile uses a supplied SRT as-is after checking that it parses.
func (in Integrator) fromFile(req *types.CaptionsSpec) (Captions, error) {
	f, err := os.Open(req.Src)
	if err != nil {
		return Captions{}, err
	}
	defer f.Close()
	track, err := subtitles.Parse(f)
	if err != nil {
		return Captions{}, err
	}
	if len(track.Cues) == 0 {
		return Captions{}, fmt.Errorf("%s has no cues", filepath.Base(req.Src))
	}
	c := Captions{Track: track, BurnIn: req.BurnIn}
	if req.BurnIn {
		c.Burn = req.Src
	} else {
		c.SRT = req.Src
	}
	return c, nil
}

// BurnStage renders captions into the video. It is always the last video
// stage.
func (in Integrator) BurnStage(c Captions) Stage {
	return Stage{Name: "captions", Graph: graph.NewCompiler(in.cfg).BurnSubtitles(c.Burn)}
}
