package graph

import (
	"fmt"
	"strconv"

	"github.com/forPelevin/reelchain/internal/types"
)

// Assembly is the compiled base timeline: the video tracks joined by
// transitions (or concatenated) with graphics on top.
type Assembly struct {
	Graph       Graph
	Length      float64
	Diagnostics []string
}

// TimelineLength is the length of the joined video tracks, computed the same
// way Timeline joins them.
func TimelineLength(clips []types.VideoClip, transitions []types.Transition) float64 {
	a := join(clips, transitions)
	return a.length
}

type joinStep struct {
	clip int
	// fade is the transition duration into this clip; 0 for the first clip
	// or a plain concatenation.
	fade   float64
	offset float64
}

type joinPlan struct {
	steps  []joinStep
	concat bool
	length float64
	diags  []string
}

// join decides the order clips are joined in. Transitions are applied in
// listed order and each output becomes the current stream for the next
// transition; a transition that does not start from the most recently joined
// clip is still chained onto the current stream and reported.
func join(clips []types.VideoClip, transitions []types.Transition) joinPlan {
	var p joinPlan
	if len(clips) == 0 {
		return p
	}
	index := make(map[string]int, len(clips))
	for i, c := range clips {
		index[c.ID] = i
	}

	if len(transitions) == 0 {
		p.concat = len(clips) > 1
		for i, c := range clips {
			p.steps = append(p.steps, joinStep{clip: i})
			p.length += c.Length()
		}
		return p
	}

	joined := map[int]bool{}
	first := -1
	if ids := transitions[0].Between; len(ids) == 2 {
		if i, ok := index[ids[0]]; ok {
			first = i
		}
	}
	if first < 0 {
		first = 0
		p.diags = append(p.diags, fmt.Sprintf("transition 1: unknown clip, starting from %q", clips[0].ID))
	}
	p.steps = append(p.steps, joinStep{clip: first})
	joined[first] = true
	p.length = clips[first].Length()
	tail := first

	for n, tr := range transitions {
		if len(tr.Between) != 2 {
			p.diags = append(p.diags, fmt.Sprintf("transition %d: needs exactly two clip ids → skipped", n+1))
			continue
		}
		a, okA := index[tr.Between[0]]
		bi, okB := index[tr.Between[1]]
		if !okA || !okB {
			p.diags = append(p.diags, fmt.Sprintf("transition %d: unknown clip in %v → skipped", n+1, tr.Between))
			continue
		}
		if joined[bi] {
			p.diags = append(p.diags, fmt.Sprintf("transition %d: %q already joined → skipped", n+1, tr.Between[1]))
			continue
		}
		if a != tail {
			p.diags = append(p.diags, fmt.Sprintf("transition %d: %q is not the current tail %q; chained sequentially", n+1, tr.Between[0], clips[tail].ID))
		}
		d := tr.Duration
		limit := minf(p.length, clips[bi].Length())
		if d >= limit {
			d = limit / 2
			p.diags = append(p.diags, fmt.Sprintf("transition %d: duration shortened to %.2fs", n+1, d))
		}
		if d < 0 {
			d = 0
		}
		p.steps = append(p.steps, joinStep{clip: bi, fade: d, offset: p.length - d})
		p.length += clips[bi].Length() - d
		joined[bi] = true
		tail = bi
	}
	for i, c := range clips {
		if !joined[i] {
			p.diags = append(p.diags, fmt.Sprintf("video %q is not part of the transition chain → ignored", c.ID))
		}
	}
	return p
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Timeline compiles the base timeline stage. With clips, the first clip is
// bound to the base slot and every other clip is its own input. Without
// clips the base slot is left for the caller and only graphics are added.
func (c Compiler) Timeline(clips []types.VideoClip, transitions []types.Transition, graphics []types.Segment, pos map[int][2]int) Assembly {
	plan := join(clips, transitions)
	b := newBuilder()
	if len(plan.steps) == 0 {
		b.g.Video = c.graphics(b, c.normalizeBase(b), graphics, pos)
		b.g.Audio = "0:a?"
		return Assembly{Graph: b.g, Diagnostics: plan.diags}
	}

	streams := make([]string, 0, len(plan.steps))
	for i, st := range plan.steps {
		clip := clips[st.clip]
		idx := BaseInput
		if i == 0 {
			b.g.Inputs[BaseInput].Path = clip.Src
		} else {
			idx = b.input(clip.Src)
		}
		fs := c.normalizeFilters(c.cfg.Canvas.W, c.cfg.Canvas.H, c.pixFmt())
		fs = append(fs,
			F("trim", "start", sec(clip.In), "end", sec(clip.Out)),
			F("setpts", "", "PTS-STARTPTS"),
		)
		streams = append(streams, b.add(KindNormalize, "v", []string{fmt.Sprintf("%d:v", idx)}, fs...))
	}

	cur := streams[0]
	switch {
	case plan.concat:
		cur = b.add(KindConcat, "vcat", streams, F("concat", "n", strconv.Itoa(len(streams)), "v", "1", "a", "0"))
	default:
		for i := 1; i < len(plan.steps); i++ {
			st := plan.steps[i]
			cur = b.add(KindXfade, "vx", []string{cur, streams[i]}, F("xfade",
				"transition", "fade", "duration", sec(st.fade), "offset", sec(st.offset)))
		}
	}

	b.g.Video = c.graphics(b, cur, graphics, pos)
	// A clip's own audio survives only when it is used untrimmed at the head;
	// joined or trimmed timelines take program audio from the voice track.
	if len(plan.steps) == 1 && clips[plan.steps[0].clip].In == 0 {
		b.g.Audio = "0:a?"
		b.g.Shortest = true
	}
	return Assembly{Graph: b.g, Length: plan.length, Diagnostics: plan.diags}
}
