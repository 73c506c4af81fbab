package usecase

import (
	"context"
	"fmt"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/domain/schedule"
	"github.com/forPelevin/reelchain/internal/types"
)

// plan is the video chain of a job: the stages in order, the base they
// start from and the timeline length everything is scheduled against.
type plan struct {
	base   string
	length float64
	stages []Stage
	diags  []string
}

// planChain schedules every timed track and compiles the video stages:
// timeline (clips, crossfades, graphics), one B-roll stage, then one stage
// per accepted PiP row in row order.
func (u Usecase) planChain(ctx context.Context, spec types.TimelineSpec, cfg config.Render) (plan, error) {
	c := graph.NewCompiler(cfg)
	var p plan

	clips := spec.Tracks.Video
	if len(clips) > 0 {
		p.length = graph.TimelineLength(clips, spec.Transitions)
	} else {
		p.base = spec.Base
		d, err := u.d.Media.ProbeDuration(ctx, spec.Base)
		if err != nil {
			return plan{}, invalid("base media %s: %v", spec.Base, err)
		}
		p.length = d.Seconds()
	}
	if p.length <= 0 {
		return plan{}, invalid("timeline has no duration")
	}

	gfx := schedule.Schedule(p.length, schedule.GraphicRequests(spec.Tracks.Graphics), 0, 0)
	p.diags = append(p.diags, prefixed("Graphics", gfx.Diagnostics())...)
	if len(clips) > 0 || len(gfx.Segments) > 0 {
		pos := make(map[int][2]int, len(spec.Tracks.Graphics))
		for i, g := range spec.Tracks.Graphics {
			pos[i] = [2]int{g.X, g.Y}
		}
		asm := c.Timeline(clips, spec.Transitions, gfx.Segments, pos)
		p.diags = append(p.diags, prefixed("Timeline", asm.Diagnostics)...)
		p.stages = append(p.stages, Stage{Name: "timeline", Graph: asm.Graph})
	}

	broll := schedule.Schedule(p.length, schedule.BRollRequests(spec.BRoll), cfg.BRollFade, cfg.BRollFade)
	p.diags = append(p.diags, prefixed("B-roll", broll.Diagnostics())...)
	if len(broll.Segments) > 0 {
		p.stages = append(p.stages, Stage{Name: "broll", Graph: c.BRoll(broll.Segments)})
	}

	for _, r := range schedule.Effects(p.length, spec.PiP, cfg.PiPFade) {
		p.diags = append(p.diags, r.String())
		if r.Accepted() {
			p.stages = append(p.stages, Stage{Name: fmt.Sprintf("pip-%d", r.Row+1), Graph: c.PiP(r.Effect)})
		}
	}
	return p, nil
}

func prefixed(prefix string, lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, prefix+": "+l)
	}
	return out
}

// captionAudio picks the media transcribed for captions: the voice track,
// else the base media, else a single untrimmed clip.
func captionAudio(spec types.TimelineSpec) string {
	if vo := spec.FindAudio(types.AudioVoice); vo != "" {
		return vo
	}
	if spec.Base != "" {
		return spec.Base
	}
	if v := spec.Tracks.Video; len(v) == 1 && v[0].In == 0 {
		return v[0].Src
	}
	return ""
}
