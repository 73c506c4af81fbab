package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/reelchain/internal/types"
)

// srtPlayResY is the script height libass assumes for SRT input; force_style
// font sizes are relative to it.
const srtPlayResY = 288

// Style controls burned-in caption rendering.
type Style struct {
	Canvas types.Canvas
	// FontSize is expressed the way force_style expresses it for SRT input,
	// so burned-in ASS and styled SRT look the same.
	FontSize int
}

func (s Style) scaledFont() int {
	h := s.Canvas.H
	if h <= 0 {
		h = 1080
	}
	return max(1, s.FontSize*h/srtPlayResY)
}

// RenderASS renders one dialogue event per cue.
func RenderASS(track types.SubtitleTrack, st Style) string {
	var b strings.Builder
	writeHeader(&b, st)
	for _, c := range track.Cues {
		if c.End <= c.Start {
			continue
		}
		text := strings.ReplaceAll(sanitizeASS(c.Text), "\n", `\N`)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,%s\n", assTime(dur(c.Start)), assTime(dur(c.End)), text)
	}
	return b.String()
}

// RenderKaraokeASS renders word-timed captions with \k highlighting. It falls
// back to RenderASS over FromTranscript when the transcript carries no usable
// word timestamps.
func RenderKaraokeASS(tr types.Transcript, st Style) string {
	words := collectWords(tr)
	if len(words) == 0 {
		return RenderASS(FromTranscript(tr), st)
	}
	var b strings.Builder
	writeHeader(&b, st)
	for _, ln := range packWords(words, 42, 9) {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Caption,,0,0,0,,", assTime(ln.Start), assTime(ln.End))
		for i, w := range ln.Words {
			cs := max(1, int((w.End-w.Start)/(10*time.Millisecond)))
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, `{\k%d}%s`, cs, w.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type timedWord struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []timedWord
}

func collectWords(tr types.Transcript) []timedWord {
	var out []timedWord
	for _, u := range tr.Segments {
		for _, w := range u.Words {
			text := sanitizeASS(w.Word)
			if text == "" || w.End <= w.Start {
				continue
			}
			out = append(out, timedWord{Start: dur(w.Start), End: dur(w.End), Text: text})
		}
	}
	return out
}

// packWords groups words into lines of at most maxChars characters and
// maxWords words.
func packWords(words []timedWord, maxChars, maxWords int) []line {
	var out []line
	var cur line
	width := 0
	for _, w := range words {
		wl := len([]rune(w.Text))
		next := wl
		if width > 0 {
			next += width + 1
		}
		if len(cur.Words) > 0 && (len(cur.Words) >= maxWords || next > maxChars) {
			out = append(out, cur)
			cur, width, next = line{}, 0, wl
		}
		if len(cur.Words) == 0 {
			cur.Start = w.Start
		}
		cur.Words = append(cur.Words, w)
		cur.End = w.End
		width = next
	}
	if len(cur.Words) > 0 {
		out = append(out, cur)
	}
	return out
}

func writeHeader(b *strings.Builder, st Style) {
	w, h := st.Canvas.W, st.Canvas.H
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	margin := max(10, h*85/1080)
	fmt.Fprintf(b, `[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption,Arial,%d,&H00FFFFFF,&H00FFD200,&H00000000,&H64000000,0,0,0,0,100,100,0,0,1,2,1,2,40,40,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`, w, h, st.scaledFont(), margin)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := int64(d / (10 * time.Millisecond))
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	s := cs / 100
	cs -= s * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec*1000+0.5) * time.Millisecond }
