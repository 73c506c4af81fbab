package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/ports"
)

// Mixer prepares the music bed. Normalization is independent of the video
// chain; the ducked mix itself is only built by the final mux pass.
type Mixer struct {
	tool     ports.MediaTool
	compiler graph.Compiler
	cfg      config.Render
}

func NewMixer(tool ports.MediaTool, cfg config.Render) Mixer {
	return Mixer{tool: tool, compiler: graph.NewCompiler(cfg), cfg: cfg}
}

// Normalize loudness-normalizes music into a fresh file in workDir.
func (m Mixer) Normalize(ctx context.Context, music, workDir string) (string, error) {
	out := filepath.Join(workDir, fmt.Sprintf("music-norm-%s.wav", uuid.NewString()[:8]))
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StageTimeout)
	defer cancel()
	if err := m.tool.Encode(ctx, ports.EncodeRequest{Graph: m.compiler.Loudnorm(music), Output: out, Quality: m.cfg.Quality}); err != nil {
		_ = os.Remove(out)
		return "", &StageError{Stage: "music", Index: -1, Err: err}
	}
	return out, nil
}

// MuxStage is the final pass: video is stream-copied from the chain
// artifact, voice and music are ducked into one track, and a soft subtitle
// stream is attached. It returns false when there is nothing to attach.
func (m Mixer) MuxStage(mux graph.Mux) (Stage, bool) {
	if mux.Empty() {
		return Stage{}, false
	}
	return Stage{Name: "mux", Graph: m.compiler.Finalize(mux)}, true
}
