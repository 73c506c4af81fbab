package subtitles

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/reelchain/internal/types"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{75.125, "00:01:15,125"},
		{3599.9996, "01:00:00,000"},
		{3723.4, "01:02:03,400"},
		{-3, "00:00:00,000"},
		{0.0005, "00:00:00,001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in), "%v", tt.in)
	}
}

func TestParseTimestamp(t *testing.T) {
	v, err := ParseTimestamp("00:01:15,125")
	require.NoError(t, err)
	assert.InDelta(t, 75.125, v, 1e-9)

	v, err = ParseTimestamp(" 01:02:03.4 ")
	require.NoError(t, err)
	assert.InDelta(t, 3723.4, v, 1e-9)

	for _, bad := range []string{"", "00:01:15", "1:15,000", "aa:00:00,000", "00:00:00,x"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Format(&buf, types.SubtitleTrack{Cues: []types.Cue{
		{Index: 7, Start: 0.5, End: 2, Text: " Hello there "},
		{Index: 9, Start: 2.25, End: 4.001, Text: "two\nlines"},
	}})
	require.NoError(t, err)
	want := "1\n00:00:00,500 --> 00:00:02,000\nHello there\n\n" +
		"2\n00:00:02,250 --> 00:00:04,001\ntwo\nlines\n"
	assert.Equal(t, want, buf.String())
}

func TestParse_RoundTripsFormat(t *testing.T) {
	in := types.SubtitleTrack{Cues: []types.Cue{
		{Index: 1, Start: 1, End: 2.5, Text: "first"},
		{Index: 2, Start: 3, End: 4, Text: "second\nline"},
	}}
	var buf bytes.Buffer
	require.NoError(t, Format(&buf, in))
	out, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParse_ToleratesCRLFAndBOM(t *testing.T) {
	doc := "\uFEFF1\r\n00:00:01,000 --> 00:00:02,000 X1:0\r\nhi\r\n\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000\r\nyo\r\n"
	tr, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, tr.Cues, 2)
	assert.Equal(t, "hi", tr.Cues[0].Text)
	assert.InDelta(t, 4.0, tr.Cues[1].End, 1e-9)
}

func TestParse_Errors(t *testing.T) {
	for _, doc := range []string{
		"x\n00:00:01,000 --> 00:00:02,000\nhi\n",
		"1\nhello\n",
		"1\n00:00:01,000 --> \nhi\n",
	} {
		_, err := Parse(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

func TestFromTranscript(t *testing.T) {
	tr := types.Transcript{Segments: []types.Utterance{
		{Start: 0, End: 1.2, Text: "  hello   world "},
		{Start: 1.2, End: 1.2, Text: "zero length"},
		{Start: 2, End: 3, Text: "   "},
		{Start: 3, End: 4.5, Text: "bye"},
	}}
	got := FromTranscript(tr)
	assert.Equal(t, []types.Cue{
		{Index: 1, Start: 0, End: 1.2, Text: "hello world"},
		{Index: 2, Start: 3, End: 4.5, Text: "bye"},
	}, got.Cues)
}
