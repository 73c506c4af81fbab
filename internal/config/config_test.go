package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/reelchain/internal/types"
)

func TestDefaults_Valid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	err := os.WriteFile(path, []byte("canvas:\n  w: 1280\n  h: 720\n  fps: 25\nquality:\n  crf: 20\n  preset: fast\n  audio_bitrate: 128k\nstage_timeout: 30m\n"), 0o644)
	require.NoError(t, err)

	t.Setenv(EnvCRF, "22")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.Canvas{W: 1280, H: 720, FPS: 25}, cfg.Canvas)
	assert.Equal(t, 22, cfg.Quality.CRF)
	assert.Equal(t, "fast", cfg.Quality.Preset)
	assert.Equal(t, 30*time.Minute, cfg.StageTimeout)
	// fields absent from the file keep their defaults
	assert.Equal(t, 24, cfg.MarginPx)
	assert.Equal(t, "libx264", cfg.Quality.VideoCodec)
}

func TestLoad_RejectsBadEnv(t *testing.T) {
	t.Setenv(EnvWidth, "wide")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvWidth)
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Render)
	}{
		{"odd width", func(r *Render) { r.Canvas.W = 1921 }},
		{"zero fps", func(r *Render) { r.Canvas.FPS = 0 }},
		{"crf range", func(r *Render) { r.Quality.CRF = 60 }},
		{"empty preset", func(r *Render) { r.Quality.Preset = "" }},
		{"overscan below one", func(r *Render) { r.OverlayOverscan = 0.5 }},
		{"no timeout", func(r *Render) { r.StageTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWithJob_DoesNotMutateReceiver(t *testing.T) {
	base := Defaults()
	job := base.WithJob(types.TimelineSpec{
		Raster: &types.Canvas{W: 1080, H: 1920, FPS: 60},
		Output: &types.Quality{CRF: 23, Preset: "veryfast", AudioBitrate: "160k"},
	})
	assert.Equal(t, 1080, job.Canvas.W)
	assert.Equal(t, "veryfast", job.Quality.Preset)
	assert.Equal(t, DefaultWidth, base.Canvas.W)
	assert.Equal(t, DefaultPreset, base.Quality.Preset)
}

func TestPx_ScalesWithCanvasWidth(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 24, cfg.Px(24))
	cfg.Canvas.W = 1280
	assert.Equal(t, 16, cfg.Px(24))
	assert.Equal(t, 133, cfg.Px(200))
}
