package graph

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/types"
)

// Compiler turns scheduled segments and effect requests into graphs for one
// canvas and quality profile.
type Compiler struct {
	cfg config.Render
}

func NewCompiler(cfg config.Render) Compiler { return Compiler{cfg: cfg} }

func (c Compiler) Config() config.Render { return c.cfg }

// builder accumulates nodes and hands out unique labels.
type builder struct {
	g    Graph
	seen map[string]int
}

func newBuilder() *builder {
	return &builder{g: Graph{Inputs: []Input{{}}}, seen: map[string]int{}}
}

func (b *builder) input(path string) int {
	b.g.Inputs = append(b.g.Inputs, Input{Path: path, Loop: IsStill(path)})
	if IsStill(path) {
		b.g.Shortest = true
	}
	return len(b.g.Inputs) - 1
}

func (b *builder) label(prefix string) string {
	n := b.seen[prefix]
	b.seen[prefix] = n + 1
	if n == 0 {
		return prefix
	}
	return prefix + strconv.Itoa(n)
}

// add appends a node with a fresh output label and returns that label.
func (b *builder) add(k Kind, prefix string, inputs []string, filters ...Filter) string {
	out := b.label(prefix)
	b.g.Nodes = append(b.g.Nodes, Node{Kind: k, Inputs: inputs, Outputs: []string{out}, Filters: filters})
	return out
}

func (b *builder) split(in string, a, c string) (string, string) {
	la, lc := b.label(a), b.label(c)
	b.g.Nodes = append(b.g.Nodes, Node{Kind: KindSplit, Inputs: []string{in}, Outputs: []string{la, lc}, Filters: []Filter{F("split", "", "2")}})
	return la, lc
}

var stillExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".bmp": true}

// IsStill reports whether path is a still image that must be looped.
func IsStill(path string) bool {
	return stillExts[strings.ToLower(filepath.Ext(path))]
}

func sec(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func quote(expr string) string { return "'" + expr + "'" }

// between renders the visibility gate active while global t is in [a, b].
func between(a, b float64) string {
	return quote(fmt.Sprintf("between(t,%s,%s)", sec(a), sec(b)))
}

// normalizeFilters conforms a stream to size, frame rate, pixel format and
// square pixels. w or h <= 0 keeps the native size.
func (c Compiler) normalizeFilters(w, h int, pixFmt string) []Filter {
	var fs []Filter
	if w > 0 && h > 0 {
		fs = append(fs, F("scale", "", strconv.Itoa(w), "", strconv.Itoa(h)))
	}
	fs = append(fs,
		F("fps", "", strconv.FormatFloat(c.cfg.Canvas.FPS, 'f', -1, 64)),
		F("format", "", pixFmt),
		F("setsar", "", "1"),
	)
	return fs
}

func (c Compiler) pixFmt() string {
	if c.cfg.Quality.PixFmt == "" {
		return "yuv420p"
	}
	return c.cfg.Quality.PixFmt
}

// normalizeBase adds the canvas normalization node for the base input.
func (c Compiler) normalizeBase(b *builder) string {
	return b.add(KindNormalize, "base", []string{"0:v"}, c.normalizeFilters(c.cfg.Canvas.W, c.cfg.Canvas.H, c.pixFmt())...)
}

// window places a source stream on the shared clock: trim to the segment's
// local [0, duration], reset timestamps, shift by start, then apply alpha
// fades anchored at absolute start and end-fadeOut. The order is fixed;
// shifting before the reset would misalign the visible window.
func (c Compiler) window(b *builder, in, prefix string, seg types.Segment) string {
	dur := seg.Duration()
	trimmed := b.add(KindTrim, prefix+"t", []string{in}, F("trim", "start", "0", "end", sec(dur)))
	shifted := b.add(KindShift, prefix+"s", []string{trimmed},
		F("setpts", "", "PTS-STARTPTS"),
		F("setpts", "", "PTS+"+sec(seg.Start)+"/TB"),
	)
	fi, fo := clampFades(seg.FadeIn, seg.FadeOut, dur)
	var fades []Filter
	if fi > 0 {
		fades = append(fades, F("fade", "t", "in", "st", sec(seg.Start), "d", sec(fi), "alpha", "1"))
	}
	if fo > 0 {
		fades = append(fades, F("fade", "t", "out", "st", sec(seg.End-fo), "d", sec(fo), "alpha", "1"))
	}
	if len(fades) == 0 {
		return shifted
	}
	return b.add(KindFade, prefix+"f", []string{shifted}, fades...)
}

// clampFades keeps fade-in and fade-out from overlapping inside a window.
func clampFades(in, out, dur float64) (float64, float64) {
	half := dur / 2
	return math.Max(0, math.Min(in, half)), math.Max(0, math.Min(out, half))
}

// Passthrough is the normalization-only stage: no visual change, but the
// output is conformed to canvas size, frame rate and codec.
func (c Compiler) Passthrough() Graph {
	b := newBuilder()
	b.g.Video = c.normalizeBase(b)
	b.g.Audio = "0:a?"
	return b.g
}

// BRoll composites every scheduled segment over the base in one stage. Each
// segment is full-frame, visible only while t is inside its window.
func (c Compiler) BRoll(segs []types.Segment) Graph {
	if len(segs) == 0 {
		return c.Passthrough()
	}
	b := newBuilder()
	last := c.normalizeBase(b)
	for _, seg := range segs {
		if seg.Duration() <= 0 {
			continue
		}
		idx := b.input(seg.Source)
		src := b.add(KindNormalize, "bn", []string{fmt.Sprintf("%d:v", idx)},
			c.normalizeFilters(c.cfg.Canvas.W, c.cfg.Canvas.H, "rgba")...)
		win := c.window(b, src, "b", seg)
		last = b.add(KindOverlay, "v", []string{last, win}, F("overlay",
			"x", "0", "y", "0", "format", "auto", "eof_action", "pass",
			"enable", between(seg.Start, seg.End)))
	}
	b.g.Video = last
	b.g.Audio = "0:a?"
	return b.g
}

// Graphics composites scheduled graphic segments at their native size and
// requested position over the stream labelled last.
func (c Compiler) graphics(b *builder, last string, segs []types.Segment, pos map[int][2]int) string {
	for _, seg := range segs {
		idx := b.input(seg.Source)
		src := b.add(KindNormalize, "gn", []string{fmt.Sprintf("%d:v", idx)}, c.normalizeFilters(0, 0, "rgba")...)
		win := c.window(b, src, "g", seg)
		xy := pos[seg.Row]
		last = b.add(KindOverlay, "vg", []string{last, win}, F("overlay",
			"x", strconv.Itoa(xy[0]), "y", strconv.Itoa(xy[1]), "format", "auto", "eof_action", "pass",
			"enable", between(seg.Start, seg.End)))
	}
	return last
}
