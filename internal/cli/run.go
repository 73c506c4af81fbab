package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/jobspec"
	"github.com/forPelevin/reelchain/internal/logging"
	"github.com/forPelevin/reelchain/internal/pipeline"
	"github.com/forPelevin/reelchain/internal/store"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a job template after {{KEY}} substitution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, args[0])
		},
	}
	cmd.Flags().StringArray("var", nil, "Template variable KEY=VALUE (repeatable)")
	cmd.Flags().String("out", filepath.Join("output", "video.mp4"), "Output video path")
	cmd.Flags().String("db", "", "Record the job in this SQLite history database")
	return cmd
}

func render(cmd *cobra.Command, template string) error {
	pairs, _ := cmd.Flags().GetStringArray("var")
	out, _ := cmd.Flags().GetString("out")
	dbPath, _ := cmd.Flags().GetString("db")

	log := newLogger(cmd, true)

	vars, err := jobspec.ParseVars(pairs)
	if err != nil {
		return err
	}
	spec, err := jobspec.Load(template, vars)
	if err != nil {
		return err
	}

	cfg, err := pipelineConfig(cmd, log)
	if err != nil {
		return err
	}
	cfg.Trace = cmd.OutOrStdout()
	cfg.Logf = func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
	if dbPath != "" {
		st, err := store.Open(dbPath, log)
		if err != nil {
			return err
		}
		defer st.Close()
		cfg.Listeners = append(cfg.Listeners, st)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, pipeline.Job{Spec: spec, Output: out})
	for _, d := range res.Diagnostics {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", d)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Done → %s\n", res.Artifact.Path)
	return nil
}

// pipelineConfig resolves the render config and the external tool paths
// shared by render and serve.
func pipelineConfig(cmd *cobra.Command, log zerolog.Logger) (pipeline.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cacheDir, _ := cmd.Flags().GetString("cache")

	rc, err := config.Load(cfgPath)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := pipeline.Config{
		Render:   rc,
		Log:      log,
		Trace:    io.Discard,
		CacheDir: cacheDir,

		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		WhisperBin:   getenvDefault("WHISPER_BIN", filepath.Join(cacheDir, "bin", "whisper.cpp")),
		WhisperModel: getenvDefault("WHISPER_MODEL", filepath.Join(cacheDir, "models", "ggml-base.bin")),
	}
	if err := cfg.Validate(); err != nil {
		return pipeline.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, console bool) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.New(cmd.ErrOrStderr(), level, console)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
