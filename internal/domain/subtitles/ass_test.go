package subtitles

import (
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/reelchain/internal/types"
)

var hd = Style{Canvas: types.Canvas{W: 1920, H: 1080, FPS: 30}, FontSize: 28}

func TestRenderKaraokeASS_HasKTags(t *testing.T) {
	tr := types.Transcript{Segments: []types.Utterance{
		{Start: 0, End: 2, Words: []types.Word{{Start: 0.0, End: 0.3, Word: "Hello"}, {Start: 0.3, End: 0.8, Word: "world"}}},
	}}
	ass := RenderKaraokeASS(tr, hd)
	if !strings.Contains(ass, `Dialogue: 0,0:00:00.00,0:00:00.80,Caption,,0,0,0,,{\k30}Hello {\k50}world`) {
		t.Fatalf("expected karaoke dialogue, got:\n%s", ass)
	}
}

func TestRenderKaraokeASS_FallsBackToUtterances(t *testing.T) {
	tr := types.Transcript{Segments: []types.Utterance{{Start: 1, End: 2.5, Text: "no {word} timing"}}}
	ass := RenderKaraokeASS(tr, hd)
	if !strings.Contains(ass, "Dialogue: 0,0:00:01.00,0:00:02.50,Caption,,0,0,0,,no (word) timing") {
		t.Fatalf("expected plain dialogue, got:\n%s", ass)
	}
	if strings.Contains(ass, `\k`) {
		t.Fatalf("unexpected karaoke tags:\n%s", ass)
	}
}

func TestRenderASS_ScalesToCanvas(t *testing.T) {
	ass := RenderASS(types.SubtitleTrack{Cues: []types.Cue{{Start: 0, End: 1, Text: "a\nb"}}}, hd)
	for _, want := range []string{"PlayResX: 1920", "PlayResY: 1080", "Style: Caption,Arial,105,", `,,a\Nb`} {
		if !strings.Contains(ass, want) {
			t.Fatalf("missing %q in:\n%s", want, ass)
		}
	}
}

func TestPackWords_RespectsBudgets(t *testing.T) {
	var words []timedWord
	for i := 0; i < 20; i++ {
		words = append(words, timedWord{Start: time.Duration(i) * time.Second, End: time.Duration(i+1) * time.Second, Text: "word"})
	}
	lines := packWords(words, 42, 9)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if len(lines[0].Words) != 8 {
		t.Fatalf("char budget: expected 8 words in first line, got %d", len(lines[0].Words))
	}
	if lines[1].Start != 8*time.Second || lines[2].End != 20*time.Second {
		t.Fatalf("unexpected line bounds: %+v", lines)
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
}
