// Package subtitles converts transcripts into subtitle tracks and renders
// them as SRT (soft captions) or ASS (burned-in captions).
package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/forPelevin/reelchain/internal/types"
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Milliseconds are rounded,
// negative input is clamped to zero.
func FormatTimestamp(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	ms := int64(math.Round(sec * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp is the inverse of FormatTimestamp. A dot is accepted in
// place of the comma.
func ParseTimestamp(v string) (float64, error) {
	v = strings.TrimSpace(strings.Replace(v, ".", ",", 1))
	hms, frac, ok := strings.Cut(v, ",")
	if !ok {
		return 0, fmt.Errorf("timestamp %q: missing milliseconds", v)
	}
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timestamp %q: want HH:MM:SS,mmm", v)
	}
	var total float64
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("timestamp %q: bad field %q", v, p)
		}
		total = total*60 + float64(n)
	}
	ms, err := strconv.Atoi(frac)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("timestamp %q: bad milliseconds", v)
	}
	return total + float64(ms)/math.Pow10(len(frac)), nil
}

// Format writes the track as SRT. Cues are numbered from 1 in order,
// regardless of their Index field.
func Format(w io.Writer, track types.SubtitleTrack) error {
	bw := bufio.NewWriter(w)
	for i, c := range track.Cues {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n", i+1, FormatTimestamp(c.Start), FormatTimestamp(c.End), strings.TrimSpace(c.Text))
	}
	return bw.Flush()
}

// Parse reads an SRT document. Blocks without a valid timing line are an
// error; empty text blocks are kept.
func Parse(r io.Reader) (types.SubtitleTrack, error) {
	var (
		track types.SubtitleTrack
		cur   *types.Cue
		text  []string
		line  int
	)
	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(text, "\n")
			track.Cues = append(track.Cues, *cur)
		}
		cur, text = nil, nil
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		s := strings.TrimRight(sc.Text(), "\r")
		if line == 1 {
			s = strings.TrimPrefix(s, "\uFEFF")
		}
		switch {
		case strings.TrimSpace(s) == "":
			flush()
		case cur == nil:
			idx, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return types.SubtitleTrack{}, fmt.Errorf("srt line %d: expected cue index, got %q", line, s)
			}
			cur = &types.Cue{Index: idx}
		case text == nil && strings.Contains(s, "-->"):
			a, b, _ := strings.Cut(s, "-->")
			start, err := ParseTimestamp(a)
			if err != nil {
				return types.SubtitleTrack{}, fmt.Errorf("srt line %d: %w", line, err)
			}
			fields := strings.Fields(b)
			if len(fields) == 0 {
				return types.SubtitleTrack{}, fmt.Errorf("srt line %d: missing end timestamp", line)
			}
			end, err := ParseTimestamp(fields[0])
			if err != nil {
				return types.SubtitleTrack{}, fmt.Errorf("srt line %d: %w", line, err)
			}
			cur.Start, cur.End = start, end
			text = []string{}
		case text == nil:
			return types.SubtitleTrack{}, fmt.Errorf("srt line %d: expected timing line, got %q", line, s)
		default:
			text = append(text, s)
		}
	}
	if err := sc.Err(); err != nil {
		return types.SubtitleTrack{}, fmt.Errorf("read srt: %w", err)
	}
	flush()
	return track, nil
}

// FromTranscript builds one cue per utterance. Utterances with no text or a
// non-positive span are dropped.
func FromTranscript(tr types.Transcript) types.SubtitleTrack {
	var track types.SubtitleTrack
	for _, u := range tr.Segments {
		text := strings.Join(strings.Fields(u.Text), " ")
		if text == "" || u.End <= u.Start {
			continue
		}
		track.Cues = append(track.Cues, types.Cue{
			Index: len(track.Cues) + 1,
			Start: math.Max(0, u.Start),
			End:   u.End,
			Text:  text,
		})
	}
	return track
}
