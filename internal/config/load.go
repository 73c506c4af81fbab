package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile   = "REELCHAIN_CONFIG"
	EnvWidth        = "REELCHAIN_WIDTH"
	EnvHeight       = "REELCHAIN_HEIGHT"
	EnvFPS          = "REELCHAIN_FPS"
	EnvCRF          = "REELCHAIN_CRF"
	EnvPreset       = "REELCHAIN_PRESET"
	EnvAudioBitrate = "REELCHAIN_AUDIO_BITRATE"
	EnvStageTimeout = "REELCHAIN_STAGE_TIMEOUT"
	EnvKeepInterim  = "REELCHAIN_KEEP_INTERMEDIATES"
)

// Load builds a Render from defaults, the YAML file at path (skipped when
// empty) and environment overrides, then validates it.
func Load(path string) (Render, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Render{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Render{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Render{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Render{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Render, getenv func(string) string) error {
	if v := getenv(EnvWidth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWidth, err)
		}
		cfg.Canvas.W = n
	}
	if v := getenv(EnvHeight); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeight, err)
		}
		cfg.Canvas.H = n
	}
	if v := getenv(EnvFPS); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvFPS, err)
		}
		cfg.Canvas.FPS = f
	}
	if v := getenv(EnvCRF); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCRF, err)
		}
		cfg.Quality.CRF = n
	}
	if v := getenv(EnvPreset); v != "" {
		cfg.Quality.Preset = v
	}
	if v := getenv(EnvAudioBitrate); v != "" {
		cfg.Quality.AudioBitrate = v
	}
	if v := getenv(EnvStageTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvStageTimeout, err)
		}
		cfg.StageTimeout = d
	}
	if v := getenv(EnvKeepInterim); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvKeepInterim, err)
		}
		cfg.KeepIntermediates = b
	}
	return nil
}
