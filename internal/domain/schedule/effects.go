package schedule

import (
	"fmt"

	"github.com/forPelevin/reelchain/internal/types"
)

// EffectResult is the validation outcome of one picture-in-picture row.
type EffectResult struct {
	Row     int
	Effect  types.EffectRequest
	Reason  Reason
	Detail  string
	Enabled bool
	// ZoomNote is set when a requested zoom was dropped or narrowed.
	ZoomNote string
}

func (r EffectResult) Accepted() bool { return r.Enabled && r.Reason == ReasonNone }

func (r EffectResult) String() string {
	switch {
	case !r.Enabled:
		return fmt.Sprintf("PiP row %d: disabled", r.Row+1)
	case r.Reason == ReasonInvalidNumeric:
		return fmt.Sprintf("PiP row %d: invalid start/duration (%s) → skipped", r.Row+1, r.Detail)
	case r.Reason != ReasonNone:
		return fmt.Sprintf("PiP row %d: %s → skipped", r.Row+1, r.Reason)
	}
	line := fmt.Sprintf("+ PiP row %d: %.2fs for %.2fs", r.Row+1, r.Effect.Start, r.Effect.Duration)
	if r.Effect.HasZoom() {
		line += fmt.Sprintf(", zoom %s %.2fs–%.2fs", r.Effect.ZoomDirection, r.Effect.ZoomStart, r.Effect.ZoomEnd)
	}
	if r.ZoomNote != "" {
		line += " (" + r.ZoomNote + ")"
	}
	return line
}

// Effects validates PiP rows against the base duration. Rows are clamped
// like scheduled segments but never overlap-pruned: each accepted row is
// rendered as its own chain stage, in row order.
func Effects(base float64, rows []types.PiPRow, fade float64) []EffectResult {
	out := make([]EffectResult, 0, len(rows))
	for i, row := range rows {
		res := EffectResult{Row: i, Enabled: row.Enable}
		if !row.Enable {
			out = append(out, res)
			continue
		}
		start, end, reason, detail := ClampWindow(base, row.Start, row.Duration)
		res.Reason = reason
		res.Detail = detail
		if reason != ReasonNone {
			out = append(out, res)
			continue
		}
		eff := types.EffectRequest{
			Row:           i,
			Start:         start,
			Duration:      end - start,
			Overlay:       row.Overlay,
			ZoomDirection: types.ParseZoomDirection(row.ZoomDirection),
			FadeIn:        fade,
			FadeOut:       fade,
		}
		if eff.ZoomDirection != types.ZoomNone {
			res.ZoomNote = clampZoom(&eff, row.ZoomStart, row.ZoomEnd)
		}
		res.Effect = eff
		out = append(out, res)
	}
	return out
}

// clampZoom fits the zoom sub-window into [0, duration]. The zoom is
// disabled when its bounds are missing, malformed or empty after clamping.
func clampZoom(eff *types.EffectRequest, zs, ze types.NumField) string {
	if zs.IsEmpty() || ze.IsEmpty() {
		eff.ZoomDirection = types.ZoomNone
		return "zoom ignored: start and end are required"
	}
	s, err1 := zs.Float()
	e, err2 := ze.Float()
	if err1 != nil || err2 != nil {
		eff.ZoomDirection = types.ZoomNone
		return "zoom ignored: invalid zoom window"
	}
	note := ""
	if s < 0 {
		s, note = 0, "zoom window clamped"
	}
	if e > eff.Duration {
		e, note = eff.Duration, "zoom window clamped"
	}
	if e <= s {
		eff.ZoomDirection = types.ZoomNone
		return "zoom ignored: empty zoom window"
	}
	eff.ZoomStart, eff.ZoomEnd = s, e
	return note
}
