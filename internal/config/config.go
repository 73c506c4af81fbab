// Package config holds the immutable render configuration shared by the
// graph compiler and the chain orchestrator. A Render value is built once
// (defaults, then file, then environment, then per-job overrides) and passed
// explicitly; nothing reads it from package state.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/forPelevin/reelchain/internal/types"
)

const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
	DefaultFPS    = 30

	DefaultCRF          = 18
	DefaultPreset       = "medium"
	DefaultAudioBitrate = "192k"

	// ReferenceWidth is the canvas width the pixel constants below are
	// expressed against; they scale linearly with the real canvas width.
	ReferenceWidth = 1920
)

// Loudness is the loudnorm target applied to the music bed.
type Loudness struct {
	I   float64 `yaml:"i"`
	LRA float64 `yaml:"lra"`
	TP  float64 `yaml:"tp"`
}

// Duck holds sidechain compressor settings. Not user-tunable per job.
type Duck struct {
	Threshold float64 `yaml:"threshold"`
	Ratio     float64 `yaml:"ratio"`
	AttackMS  float64 `yaml:"attack_ms"`
	ReleaseMS float64 `yaml:"release_ms"`
}

type Render struct {
	Canvas  types.Canvas  `yaml:"canvas"`
	Quality types.Quality `yaml:"quality"`

	// MarginPx is the PiP inset margin at ReferenceWidth.
	MarginPx int `yaml:"margin_px"`
	// PiPAreaDivisor: the inset covers 1/PiPAreaDivisor of the canvas area.
	PiPAreaDivisor float64 `yaml:"pip_area_divisor"`
	// OverlayOverscan scales the PiP background overlay beyond the canvas so
	// the zoom reposition never exposes an edge.
	OverlayOverscan float64 `yaml:"overlay_overscan"`
	// ZoomShiftPx is the "left" zoom offset at ReferenceWidth.
	ZoomShiftPx int `yaml:"zoom_shift_px"`

	BRollFade float64 `yaml:"broll_fade"`
	// OverlayFade fades the PiP background overlay; PiPFade fades the inset.
	OverlayFade float64 `yaml:"overlay_fade"`
	PiPFade     float64 `yaml:"pip_fade"`

	Loudness Loudness `yaml:"loudness"`
	Duck     Duck     `yaml:"duck"`

	SubtitleFontSize int `yaml:"subtitle_font_size"`

	StageTimeout      time.Duration `yaml:"stage_timeout"`
	KeepIntermediates bool          `yaml:"keep_intermediates"`
}

func Defaults() Render {
	return Render{
		Canvas: types.Canvas{W: DefaultWidth, H: DefaultHeight, FPS: DefaultFPS},
		Quality: types.Quality{
			CRF:          DefaultCRF,
			Preset:       DefaultPreset,
			AudioBitrate: DefaultAudioBitrate,
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			PixFmt:       "yuv420p",
		},
		MarginPx:         24,
		PiPAreaDivisor:   12,
		OverlayOverscan:  1.4,
		ZoomShiftPx:      200,
		BRollFade:        0.25,
		OverlayFade:      0.25,
		PiPFade:          1.0,
		Loudness:         Loudness{I: -14, LRA: 11, TP: -1.5},
		Duck:             Duck{Threshold: 0.05, Ratio: 8, AttackMS: 5, ReleaseMS: 100},
		SubtitleFontSize: 28,
		StageTimeout:     2 * time.Hour,
	}
}

// WithJob returns a copy with the job's raster and output overrides applied.
func (r Render) WithJob(spec types.TimelineSpec) Render {
	out := r
	if spec.Raster != nil {
		if spec.Raster.W > 0 {
			out.Canvas.W = spec.Raster.W
		}
		if spec.Raster.H > 0 {
			out.Canvas.H = spec.Raster.H
		}
		if spec.Raster.FPS > 0 {
			out.Canvas.FPS = spec.Raster.FPS
		}
	}
	if spec.Output != nil {
		if spec.Output.CRF > 0 {
			out.Quality.CRF = spec.Output.CRF
		}
		if spec.Output.Preset != "" {
			out.Quality.Preset = spec.Output.Preset
		}
		if spec.Output.AudioBitrate != "" {
			out.Quality.AudioBitrate = spec.Output.AudioBitrate
		}
	}
	return out
}

// Px scales a reference-width pixel constant to the configured canvas.
func (r Render) Px(ref int) int {
	if r.Canvas.W == ReferenceWidth || r.Canvas.W <= 0 {
		return ref
	}
	return int(float64(ref)*float64(r.Canvas.W)/ReferenceWidth + 0.5)
}

func (r Render) Validate() error {
	if r.Canvas.W <= 0 || r.Canvas.H <= 0 {
		return fmt.Errorf("canvas must be positive, got %dx%d", r.Canvas.W, r.Canvas.H)
	}
	if r.Canvas.W%2 != 0 || r.Canvas.H%2 != 0 {
		return fmt.Errorf("canvas dimensions must be even for %s, got %dx%d", r.Quality.PixFmt, r.Canvas.W, r.Canvas.H)
	}
	if r.Canvas.FPS <= 0 {
		return errors.New("fps must be > 0")
	}
	if r.Quality.CRF < 0 || r.Quality.CRF > 51 {
		return fmt.Errorf("crf must be in [0, 51], got %d", r.Quality.CRF)
	}
	if r.Quality.Preset == "" {
		return errors.New("preset is required")
	}
	if r.Quality.AudioBitrate == "" {
		return errors.New("audio bitrate is required")
	}
	if r.PiPAreaDivisor < 1 {
		return fmt.Errorf("pip area divisor must be >= 1, got %v", r.PiPAreaDivisor)
	}
	if r.OverlayOverscan < 1 {
		return fmt.Errorf("overlay overscan must be >= 1, got %v", r.OverlayOverscan)
	}
	if r.MarginPx < 0 {
		return errors.New("margin must be >= 0")
	}
	if r.BRollFade < 0 || r.OverlayFade < 0 || r.PiPFade < 0 {
		return errors.New("fade durations must be >= 0")
	}
	if r.Duck.Ratio < 1 {
		return fmt.Errorf("duck ratio must be >= 1, got %v", r.Duck.Ratio)
	}
	if r.StageTimeout <= 0 {
		return errors.New("stage timeout must be > 0")
	}
	return nil
}
