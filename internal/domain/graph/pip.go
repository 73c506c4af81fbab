package graph

import (
	"fmt"
	"math"
	"strconv"

	"github.com/forPelevin/reelchain/internal/types"
)

// InsetSize returns the picture-in-picture size: 1/divisor of the canvas
// area, so each side is scaled by 1/sqrt(divisor) and the aspect ratio is
// kept.
func InsetSize(w, h int, divisor float64) (int, int) {
	k := 1 / math.Sqrt(divisor)
	iw := int(float64(w) * k)
	ih := int(float64(h) * k)
	return max(1, iw), max(1, ih)
}

// InsetPosition anchors the inset bottom-left with margin on both edges.
func InsetPosition(canvasH, insetH, margin int) (int, int) {
	return margin, canvasH - insetH - margin
}

// overscanSize is the size the PiP background overlay is scaled to.
func (c Compiler) overscanSize() (int, int) {
	even := func(v float64) int { return int(v/2) * 2 }
	return even(float64(c.cfg.Canvas.W) * c.cfg.OverlayOverscan), even(float64(c.cfg.Canvas.H) * c.cfg.OverlayOverscan)
}

// ZoomShift is the horizontal overlay offset applied inside the zoom window.
func (c Compiler) ZoomShift(dir types.ZoomDirection) int {
	ow, _ := c.overscanSize()
	spare := ow - c.cfg.Canvas.W
	switch dir {
	case types.ZoomLeft:
		return -c.cfg.Px(c.cfg.ZoomShiftPx)
	case types.ZoomCenter:
		return -spare / 2
	case types.ZoomRight:
		return -spare
	default:
		return 0
	}
}

// overlayX is the background overlay x coordinate: a time-conditional
// expression when a zoom window is set, otherwise the resting position.
func (c Compiler) overlayX(eff types.EffectRequest) string {
	if !eff.HasZoom() {
		return "0"
	}
	zs := eff.Start + eff.ZoomStart
	ze := eff.Start + eff.ZoomEnd
	return quote(fmt.Sprintf("if(between(t,%s,%s),%d,0)", sec(zs), sec(ze), c.ZoomShift(eff.ZoomDirection)))
}

// PiP shrinks the base video into a bottom-left inset while t is inside the
// effect window. When an overlay asset is given it fills the canvas behind
// the inset for the same window; otherwise the full-frame base stays behind
// it. The overlay fades with OverlayFade, the inset with the effect's own
// fades. Audio always comes from the base.
func (c Compiler) PiP(eff types.EffectRequest) Graph {
	if eff.Duration <= 0 {
		return c.Passthrough()
	}
	t0, t1 := eff.Start, eff.End()
	b := newBuilder()
	norm := c.normalizeBase(b)
	bg, src := b.split(norm, "bg", "src")

	if eff.Overlay != "" {
		idx := b.input(eff.Overlay)
		ow, oh := c.overscanSize()
		ov := b.add(KindNormalize, "on", []string{fmt.Sprintf("%d:v", idx)}, c.normalizeFilters(ow, oh, "rgba")...)
		win := c.window(b, ov, "o", types.Segment{Start: t0, End: t1, FadeIn: c.cfg.OverlayFade, FadeOut: c.cfg.OverlayFade})
		bg = b.add(KindOverlay, "bgo", []string{bg, win}, F("overlay",
			"x", c.overlayX(eff), "y", "0", "format", "auto",
			"enable", between(t0, t1)))
	}

	iw, ih := InsetSize(c.cfg.Canvas.W, c.cfg.Canvas.H, c.cfg.PiPAreaDivisor)
	x, y := InsetPosition(c.cfg.Canvas.H, ih, c.cfg.Px(c.cfg.MarginPx))
	inset := b.add(KindScale, "pips", []string{src},
		F("scale", "", strconv.Itoa(iw), "", strconv.Itoa(ih)),
		F("format", "", "rgba"),
	)
	fi, fo := clampFades(eff.FadeIn, eff.FadeOut, eff.Duration)
	if fi > 0 || fo > 0 {
		var fades []Filter
		if fi > 0 {
			fades = append(fades, F("fade", "t", "in", "st", sec(t0), "d", sec(fi), "alpha", "1"))
		}
		if fo > 0 {
			fades = append(fades, F("fade", "t", "out", "st", sec(t1-fo), "d", sec(fo), "alpha", "1"))
		}
		inset = b.add(KindFade, "pipf", []string{inset}, fades...)
	}
	b.g.Video = b.add(KindOverlay, "vout", []string{bg, inset}, F("overlay",
		"x", strconv.Itoa(x), "y", strconv.Itoa(y), "format", "auto",
		"enable", between(t0, t1)))
	b.g.Audio = "0:a?"
	return b.g
}
