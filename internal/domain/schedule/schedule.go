package schedule

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/forPelevin/reelchain/internal/types"
)

// Reason explains why a request was not scheduled. ReasonNone means accepted.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMissingSource
	ReasonInvalidNumeric
	ReasonNonPositiveDuration
	ReasonEmptyAfterClamp
	ReasonOverlapsPrevious
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "accepted"
	case ReasonMissingSource:
		return "missing-source"
	case ReasonInvalidNumeric:
		return "invalid-numeric"
	case ReasonNonPositiveDuration:
		return "non-positive-duration"
	case ReasonEmptyAfterClamp:
		return "empty-after-clamp"
	case ReasonOverlapsPrevious:
		return "overlaps-previous"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Request is one raw timed row as submitted.
type Request struct {
	Row      int
	Source   string
	Start    types.NumField
	Duration types.NumField
}

// Result is the per-request outcome. Segment is set when Reason is
// ReasonNone, and also carries the clamped window of an overlap rejection.
type Result struct {
	Row     int
	Source  string
	Segment types.Segment
	Reason  Reason
	// Blocker is the end of the accepted segment an overlap ran into.
	Blocker float64
	Detail  string
}

func (r Result) Accepted() bool { return r.Reason == ReasonNone }

// String renders the diagnostic line for this result.
func (r Result) String() string {
	name := filepath.Base(r.Source)
	switch r.Reason {
	case ReasonNone:
		return fmt.Sprintf("%.2f–%.2f → %s", r.Segment.Start, r.Segment.End, name)
	case ReasonOverlapsPrevious:
		return fmt.Sprintf("Row %d: overlaps previous (starts %.2fs before %.2fs) → skipped %s", r.Row+1, r.Segment.Start, r.Blocker, name)
	case ReasonInvalidNumeric:
		return fmt.Sprintf("Row %d: invalid start/duration (%s) → skipped", r.Row+1, r.Detail)
	case ReasonNonPositiveDuration:
		return fmt.Sprintf("Row %d: duration <= 0 → skipped", r.Row+1)
	case ReasonEmptyAfterClamp:
		return fmt.Sprintf("Row %d: end <= start after clamp → skipped", r.Row+1)
	case ReasonMissingSource:
		return fmt.Sprintf("Row %d: no file → skipped", r.Row+1)
	default:
		return fmt.Sprintf("Row %d: %s", r.Row+1, r.Reason)
	}
}

// Plan is the scheduler output: disjoint segments sorted by start plus one
// result per input, in input order.
type Plan struct {
	Segments []types.Segment
	Results  []Result
}

func (p Plan) Diagnostics() []string {
	out := make([]string, 0, len(p.Results))
	for _, r := range p.Results {
		out = append(out, r.String())
	}
	return out
}

// Skipped counts rejected requests.
func (p Plan) Skipped() int {
	n := 0
	for _, r := range p.Results {
		if !r.Accepted() {
			n++
		}
	}
	return n
}

// ClampWindow validates a raw start/duration pair against a base duration.
// start is clamped to >= 0 first, then end = min(base, start+duration).
func ClampWindow(base float64, start, duration types.NumField) (float64, float64, Reason, string) {
	s, err := start.Float()
	if err != nil {
		return 0, 0, ReasonInvalidNumeric, err.Error()
	}
	d, err := duration.Float()
	if err != nil {
		return 0, 0, ReasonInvalidNumeric, err.Error()
	}
	if d <= 0 {
		return 0, 0, ReasonNonPositiveDuration, ""
	}
	if s < 0 {
		s = 0
	}
	end := s + d
	if end > base {
		end = base
	}
	if end <= s {
		return 0, 0, ReasonEmptyAfterClamp, ""
	}
	return s, end, ReasonNone, ""
}

// Schedule turns raw requests into a sorted, pairwise disjoint segment list.
// Overlaps resolve earliest-start-wins; equal starts keep input order.
func Schedule(base float64, reqs []Request, fadeIn, fadeOut float64) Plan {
	results := make([]Result, len(reqs))
	var cands []int
	for i, rq := range reqs {
		res := Result{Row: rq.Row, Source: rq.Source}
		if rq.Source == "" {
			res.Reason = ReasonMissingSource
			results[i] = res
			continue
		}
		start, end, reason, detail := ClampWindow(base, rq.Start, rq.Duration)
		res.Reason = reason
		res.Detail = detail
		if reason == ReasonNone {
			res.Segment = types.Segment{
				Start:   start,
				End:     end,
				Source:  rq.Source,
				FadeIn:  fadeIn,
				FadeOut: fadeOut,
				Row:     rq.Row,
			}
			cands = append(cands, i)
		}
		results[i] = res
	}

	sort.SliceStable(cands, func(a, b int) bool {
		return results[cands[a]].Segment.Start < results[cands[b]].Segment.Start
	})

	var segs []types.Segment
	for _, i := range cands {
		seg := results[i].Segment
		if n := len(segs); n > 0 && seg.Start < segs[n-1].End {
			results[i].Reason = ReasonOverlapsPrevious
			results[i].Blocker = segs[n-1].End
			continue
		}
		segs = append(segs, seg)
	}
	return Plan{Segments: segs, Results: results}
}

// BRollRequests converts form rows into scheduler requests.
func BRollRequests(rows []types.BRollRow) []Request {
	out := make([]Request, 0, len(rows))
	for i, r := range rows {
		out = append(out, Request{Row: i, Source: r.File, Start: r.Start, Duration: r.Duration})
	}
	return out
}

// GraphicRequests converts graphic track entries into scheduler requests.
func GraphicRequests(gs []types.Graphic) []Request {
	out := make([]Request, 0, len(gs))
	for i, g := range gs {
		out = append(out, Request{Row: i, Source: g.Src, Start: g.At, Duration: g.Duration})
	}
	return out
}
