package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/types"
)

// Stage is one encode pass. A graph whose base slot is empty reads the
// previous stage's artifact.
type Stage struct {
	Name  string
	Graph graph.Graph
}

// StageRecord describes a completed stage.
type StageRecord struct {
	Index  int           `json:"index"`
	Name   string        `json:"name"`
	Input  string        `json:"input"`
	Output string        `json:"output"`
	Took   time.Duration `json:"took"`
}

// Orchestrator drives the encode passes of one job strictly in sequence.
// It is not safe for concurrent use.
type Orchestrator struct {
	tool     ports.MediaTool
	compiler graph.Compiler
	cfg      config.Render
	jobID    string
	workDir  string
	listener ports.Listener
	log      zerolog.Logger

	next    int
	records []StageRecord
}

func NewOrchestrator(tool ports.MediaTool, cfg config.Render, jobID, workDir string, l ports.Listener, log zerolog.Logger) *Orchestrator {
	if l == nil {
		l = ports.Listeners(nil)
	}
	return &Orchestrator{
		tool:     tool,
		compiler: graph.NewCompiler(cfg),
		cfg:      cfg,
		jobID:    jobID,
		workDir:  workDir,
		listener: l,
		log:      log.With().Str("component", "chain").Str("job", jobID).Logger(),
	}
}

// Records returns the stages completed so far.
func (o *Orchestrator) Records() []StageRecord {
	return append([]StageRecord(nil), o.records...)
}

// Run encodes stages in order, feeding each artifact to the next stage, and
// returns the last artifact. With no stages it runs a single normalization
// pass so the result always has the canvas parameters.
//
// owned marks base as an artifact of an earlier Run; it is then removed once
// consumed, like any other intermediate. Caller-supplied media is never
// removed. On failure the partially written output is removed and earlier
// artifacts are left in place.
func (o *Orchestrator) Run(ctx context.Context, base string, owned bool, stages []Stage) (string, error) {
	if len(stages) == 0 {
		stages = []Stage{{Name: "normalize", Graph: o.compiler.Passthrough()}}
	}
	cur := base
	for _, st := range stages {
		g := st.Graph
		if len(g.Inputs) == 0 || g.Inputs[graph.BaseInput].Path == "" {
			g = g.WithBase(cur)
		}
		out, err := o.encode(ctx, st.Name, g)
		if err != nil {
			return "", err
		}
		if owned && cur != out {
			o.discard(cur)
		}
		cur, owned = out, true
	}
	return cur, nil
}

func (o *Orchestrator) encode(ctx context.Context, name string, g graph.Graph) (string, error) {
	idx := o.next
	o.next++
	out := o.outputPath(idx, name, ".mp4")

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	started := time.Now()
	err := o.tool.Encode(sctx, ports.EncodeRequest{Graph: g, Output: out, Quality: o.cfg.Quality})
	if err == nil {
		err = sctx.Err()
	}
	if err != nil {
		_ = os.Remove(out)
		o.log.Error().Err(err).Int("stage", idx).Str("name", name).Msg("stage failed")
		return "", &StageError{Stage: name, Index: idx, Err: err}
	}

	rec := StageRecord{Index: idx, Name: name, Input: g.Inputs[graph.BaseInput].Path, Output: out, Took: time.Since(started)}
	o.records = append(o.records, rec)
	o.log.Info().Int("stage", idx).Str("name", name).Str("output", out).Dur("took", rec.Took).Msg("stage completed")
	o.listener.OnEvent(types.Event{
		Kind:   types.EventStageCompleted,
		JobID:  o.jobID,
		Stage:  name,
		Index:  idx,
		Output: out,
		At:     time.Now().UTC(),
	})
	return out, nil
}

// outputPath allocates a fresh path in the job scratch dir. Paths are unique
// across jobs sharing the directory.
func (o *Orchestrator) outputPath(idx int, name, ext string) string {
	return filepath.Join(o.workDir, fmt.Sprintf("stage-%02d-%s-%s%s", idx, name, uuid.NewString()[:8], ext))
}

func (o *Orchestrator) discard(path string) {
	if o.cfg.KeepIntermediates || path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.log.Warn().Err(err).Str("path", path).Msg("remove intermediate")
	}
}
