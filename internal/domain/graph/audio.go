package graph

import (
	"fmt"
	"strconv"
	"strings"
)

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Loudnorm normalizes a music bed to the configured loudness profile. The
// graph is audio-only and reads the music from the base slot.
func (c Compiler) Loudnorm(music string) Graph {
	b := newBuilder()
	b.g.Inputs[BaseInput].Path = music
	l := c.cfg.Loudness
	b.g.Audio = b.add(KindLoudnorm, "music", []string{"0:a"},
		F("loudnorm", "I", num(l.I), "LRA", num(l.LRA), "TP", num(l.TP)))
	b.g.AudioOnly = true
	return b.g
}

// Mux is the final pass. The rendered video is stream-copied from the base
// slot; voice, normalized music and a soft subtitle file are attached when
// given. With music the voice is the sidechain control signal that ducks the
// music, and the two are mixed into one program track. Without a voice the
// base audio is the control; when the base has none either, the music is
// mapped as is.
type Mux struct {
	Voice     string
	Music     string
	Subtitles string
	// BaseAudio reports whether the base slot carries an audio stream.
	BaseAudio bool
}

func (m Mux) Empty() bool { return m.Voice == "" && m.Music == "" && m.Subtitles == "" }

func (c Compiler) Finalize(m Mux) Graph {
	b := newBuilder()
	b.g.Video = "0:v"
	b.g.CopyVideo = true
	b.g.Audio = "0:a?"

	voice := "0:a"
	if m.Voice != "" {
		voice = fmt.Sprintf("%d:a", b.input(m.Voice))
		b.g.Audio = voice
	}
	if m.Music != "" {
		music := fmt.Sprintf("%d:a", b.input(m.Music))
		if m.Voice == "" && !m.BaseAudio {
			b.g.Audio = music
		} else {
			b.g.Audio = c.duck(b, voice, music)
		}
	}
	if m.Subtitles != "" {
		b.g.Subtitle = fmt.Sprintf("%d:s:0", b.input(m.Subtitles))
	}
	return b.g
}

// duck compresses music whenever voice is present and mixes the result with
// the voice.
func (c Compiler) duck(b *builder, voice, music string) string {
	sc, mix := b.label("vosc"), b.label("vomix")
	b.g.Nodes = append(b.g.Nodes, Node{
		Kind:    KindSplit,
		Inputs:  []string{voice},
		Outputs: []string{sc, mix},
		Filters: []Filter{F("asplit", "", "2")},
	})
	d := c.cfg.Duck
	ducked := b.add(KindDuck, "ducked", []string{music, sc}, F("sidechaincompress",
		"threshold", num(d.Threshold), "ratio", num(d.Ratio),
		"attack", num(d.AttackMS), "release", num(d.ReleaseMS)))
	return b.add(KindMix, "amix", []string{mix, ducked},
		F("amix", "inputs", "2", "duration", "first", "dropout_transition", "0"))
}

// BurnSubtitles renders a subtitle file into the video pixels. SRT input is
// styled with force_style; ASS input carries its own style.
func (c Compiler) BurnSubtitles(path string) Graph {
	b := newBuilder()
	norm := c.normalizeBase(b)
	args := []string{"filename", quote(EscapeFilterPath(path))}
	if strings.EqualFold(extOf(path), ".srt") {
		args = append(args, "force_style", quote(fmt.Sprintf("FontSize=%d", c.cfg.SubtitleFontSize)))
	}
	b.g.Video = b.add(KindSubtitles, "vout", []string{norm}, F("subtitles", args...))
	b.g.Audio = "0:a?"
	return b.g
}

func extOf(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i:]
	}
	return ""
}

// EscapeFilterPath escapes a path for use inside a quoted filter option.
func EscapeFilterPath(p string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
	)
	return r.Replace(p)
}
