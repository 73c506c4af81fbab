package graph

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/reelchain/internal/config"
	"github.com/forPelevin/reelchain/internal/types"
)

func testCompiler() Compiler { return NewCompiler(config.Defaults()) }

func kinds(g Graph) []Kind {
	out := make([]Kind, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n.Kind)
	}
	return out
}

func TestPassthrough_NormalizesBase(t *testing.T) {
	g := testCompiler().Passthrough()
	require.NoError(t, g.WithBase("in.mp4").Validate())
	assert.Equal(t, "[0:v]scale=1920:1080,fps=30,format=yuv420p,setsar=1[base]", g.FilterComplex())
	assert.Equal(t, "base", g.Video)
	assert.Equal(t, "0:a?", g.Audio)
}

func TestBRoll_NoSegmentsIsPassthrough(t *testing.T) {
	c := testCompiler()
	assert.Equal(t, c.Passthrough().FilterComplex(), c.BRoll(nil).FilterComplex())
}

func TestBRoll_TrimResetShiftFadeGate(t *testing.T) {
	g := testCompiler().BRoll([]types.Segment{
		{Start: 5, End: 15, Source: "a.mp4", FadeIn: 0.25, FadeOut: 0.25},
	})
	require.NoError(t, g.WithBase("base.mp4").Validate())
	require.Len(t, g.Inputs, 2)
	assert.Equal(t, "a.mp4", g.Inputs[1].Path)

	assert.Equal(t, []Kind{KindNormalize, KindNormalize, KindTrim, KindShift, KindFade, KindOverlay}, kinds(g))

	trim, _ := g.Node(KindTrim)
	end, _ := trim.Filters[0].Arg("end")
	assert.Equal(t, "10.000", end, "trim uses the segment's local duration")

	shift, _ := g.Node(KindShift)
	require.Len(t, shift.Filters, 2)
	assert.Equal(t, "setpts=PTS-STARTPTS", shift.Filters[0].String(), "timestamps reset before shifting")
	assert.Equal(t, "setpts=PTS+5.000/TB", shift.Filters[1].String())

	fade, _ := g.Node(KindFade)
	assert.Equal(t, "fade=t=in:st=5.000:d=0.250:alpha=1", fade.Filters[0].String())
	assert.Equal(t, "fade=t=out:st=14.750:d=0.250:alpha=1", fade.Filters[1].String())

	ov, _ := g.Node(KindOverlay)
	enable, _ := ov.Filters[0].Arg("enable")
	assert.Equal(t, "'between(t,5.000,15.000)'", enable)
	assert.Equal(t, []string{"base", fade.Outputs[0]}, ov.Inputs)
	assert.Equal(t, ov.Outputs[0], g.Video)
}

func TestBRoll_ChainsOverlaysInOrder(t *testing.T) {
	g := testCompiler().BRoll([]types.Segment{
		{Start: 1, End: 3, Source: "a.mp4"},
		{Start: 4, End: 6, Source: "b.mp4"},
	})
	require.NoError(t, g.WithBase("base.mp4").Validate())
	ovs := g.NodesOf(KindOverlay)
	require.Len(t, ovs, 2)
	assert.Equal(t, ovs[0].Outputs[0], ovs[1].Inputs[0])
	assert.Equal(t, ovs[1].Outputs[0], g.Video)
	// zero fades produce no fade node
	assert.Empty(t, g.NodesOf(KindFade))
}

func TestBRoll_FadesNeverOverlap(t *testing.T) {
	g := testCompiler().BRoll([]types.Segment{{Start: 2, End: 2.3, Source: "a.mp4", FadeIn: 1, FadeOut: 1}})
	fade, ok := g.Node(KindFade)
	require.True(t, ok)
	d, _ := fade.Filters[0].Arg("d")
	assert.Equal(t, "0.150", d)
}

func TestInsetSize_AreaAndAspect(t *testing.T) {
	canvases := [][2]int{{1920, 1080}, {1280, 720}, {1080, 1920}, {3840, 2160}, {640, 480}}
	for _, cv := range canvases {
		w, h := cv[0], cv[1]
		iw, ih := InsetSize(w, h, 12)
		area := float64(w*h) / 12
		// each side is floored, so the area can fall short by at most one row and one column
		assert.InDelta(t, area, float64(iw*ih), float64(iw+ih+1), "%dx%d", w, h)
		assert.InDelta(t, float64(w)/float64(h), float64(iw)/float64(ih), 0.01, "%dx%d", w, h)
	}
	iw, ih := InsetSize(1920, 1080, 12)
	assert.Equal(t, 554, iw)
	assert.Equal(t, 311, ih)
	assert.InDelta(t, 1/math.Sqrt(12), float64(iw)/1920, 0.001)
}

func TestInsetPosition_BottomLeft(t *testing.T) {
	x, y := InsetPosition(1080, 311, 24)
	assert.Equal(t, 24, x)
	assert.Equal(t, 1080-311-24, y)
}

func TestPiP_WithoutOverlay(t *testing.T) {
	g := testCompiler().PiP(types.EffectRequest{Start: 2, Duration: 6, FadeIn: 1, FadeOut: 1})
	require.NoError(t, g.WithBase("base.mp4").Validate())
	assert.Len(t, g.Inputs, 1)
	assert.Equal(t, []Kind{KindNormalize, KindSplit, KindScale, KindFade, KindOverlay}, kinds(g))

	out, _ := g.Node(KindOverlay)
	assert.Equal(t, "overlay=x=24:y=745:format=auto:enable='between(t,2.000,8.000)'", out.Filters[0].String())
	fade, _ := g.Node(KindFade)
	assert.Equal(t, "fade=t=out:st=7.000:d=1.000:alpha=1", fade.Filters[1].String())
}

func TestPiP_OverlayWithLeftZoom(t *testing.T) {
	g := testCompiler().PiP(types.EffectRequest{
		Start: 10, Duration: 8, Overlay: "bg.png",
		ZoomDirection: types.ZoomLeft, ZoomStart: 2, ZoomEnd: 5,
		FadeIn: 1, FadeOut: 1,
	})
	require.NoError(t, g.WithBase("base.mp4").Validate())
	require.Len(t, g.Inputs, 2)
	assert.True(t, g.Inputs[1].Loop)
	assert.True(t, g.Shortest)

	ovs := g.NodesOf(KindOverlay)
	require.Len(t, ovs, 2, "zoom is an expression on the existing overlay, not another overlay node")
	x, _ := ovs[0].Filters[0].Arg("x")
	assert.Equal(t, "'if(between(t,12.000,15.000),-200,0)'", x)

	norm := g.NodesOf(KindNormalize)
	require.Len(t, norm, 2)
	assert.Equal(t, "scale=2688:1512", norm[1].Filters[0].String())

	fades := g.NodesOf(KindFade)
	require.Len(t, fades, 2)
	assert.Equal(t, "fade=t=in:st=10.000:d=0.250:alpha=1", fades[0].Filters[0].String(), "background overlay")
	assert.Equal(t, "fade=t=out:st=17.750:d=0.250:alpha=1", fades[0].Filters[1].String(), "background overlay")
	assert.Equal(t, "fade=t=in:st=10.000:d=1.000:alpha=1", fades[1].Filters[0].String(), "inset")
	assert.Equal(t, "fade=t=out:st=17.000:d=1.000:alpha=1", fades[1].Filters[1].String(), "inset")
}

func TestPiP_NoZoomKeepsStaticX(t *testing.T) {
	g := testCompiler().PiP(types.EffectRequest{Start: 0, Duration: 4, Overlay: "bg.mp4", ZoomDirection: types.ZoomNone})
	ov := g.NodesOf(KindOverlay)[0]
	x, _ := ov.Filters[0].Arg("x")
	assert.Equal(t, "0", x)
	assert.False(t, g.Shortest)
}

func TestZoomShift(t *testing.T) {
	c := testCompiler()
	assert.Equal(t, 0, c.ZoomShift(types.ZoomNone))
	assert.Equal(t, -200, c.ZoomShift(types.ZoomLeft))
	assert.Equal(t, -384, c.ZoomShift(types.ZoomCenter))
	assert.Equal(t, -768, c.ZoomShift(types.ZoomRight))
}

func TestPiP_ScalesMarginWithCanvas(t *testing.T) {
	cfg := config.Defaults()
	cfg.Canvas = types.Canvas{W: 1280, H: 720, FPS: 30}
	g := NewCompiler(cfg).PiP(types.EffectRequest{Start: 0, Duration: 4})
	out := g.NodesOf(KindOverlay)[0]
	_, ih := InsetSize(1280, 720, 12)
	x, _ := out.Filters[0].Arg("x")
	y, _ := out.Filters[0].Arg("y")
	assert.Equal(t, "16", x)
	assert.Equal(t, strconv.Itoa(720-ih-16), y)
}
