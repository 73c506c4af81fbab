package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canvas is the output raster every composited stream is conformed to.
type Canvas struct {
	W   int     `json:"w" yaml:"w"`
	H   int     `json:"h" yaml:"h"`
	FPS float64 `json:"fps" yaml:"fps"`
}

// Quality holds the encoder settings shared by every chain stage.
type Quality struct {
	CRF          int    `json:"crf" yaml:"crf"`
	Preset       string `json:"preset" yaml:"preset"`
	AudioBitrate string `json:"audio_bitrate" yaml:"audio_bitrate"`
	VideoCodec   string `json:"video_codec,omitempty" yaml:"video_codec,omitempty"`
	AudioCodec   string `json:"audio_codec,omitempty" yaml:"audio_codec,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty" yaml:"pix_fmt,omitempty"`
}

// TimelineSpec describes one render job. It is never mutated once a render
// has started.
type TimelineSpec struct {
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Base        string       `json:"base,omitempty" yaml:"base,omitempty"`
	Raster      *Canvas      `json:"raster,omitempty" yaml:"raster,omitempty"`
	Output      *Quality     `json:"output,omitempty" yaml:"output,omitempty"`
	Tracks      Tracks       `json:"tracks" yaml:"tracks"`
	Transitions []Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	BRoll       []BRollRow   `json:"broll,omitempty" yaml:"broll,omitempty"`
	PiP         []PiPRow     `json:"pip,omitempty" yaml:"pip,omitempty"`
}

type Tracks struct {
	Video    []VideoClip   `json:"video,omitempty" yaml:"video,omitempty"`
	Graphics []Graphic     `json:"graphics,omitempty" yaml:"graphics,omitempty"`
	Audio    []AudioTrack  `json:"audio,omitempty" yaml:"audio,omitempty"`
	Captions *CaptionsSpec `json:"captions,omitempty" yaml:"captions,omitempty"`
}

type VideoClip struct {
	ID  string  `json:"id" yaml:"id"`
	Src string  `json:"src" yaml:"src"`
	In  float64 `json:"in" yaml:"in"`
	Out float64 `json:"out" yaml:"out"`
}

func (v VideoClip) Length() float64 { return v.Out - v.In }

type Graphic struct {
	ID       string   `json:"id" yaml:"id"`
	Src      string   `json:"src" yaml:"src"`
	At       NumField `json:"at" yaml:"at"`
	Duration NumField `json:"duration" yaml:"duration"`
	X        int      `json:"x" yaml:"x"`
	Y        int      `json:"y" yaml:"y"`
}

const (
	AudioVoice = "vo"
	AudioMusic = "music"
)

type AudioTrack struct {
	ID  string `json:"id" yaml:"id"`
	Src string `json:"src" yaml:"src"`
}

// CaptionsSpec requests captions. An empty Src means the subtitle track is
// produced by transcribing the base media.
type CaptionsSpec struct {
	Src    string `json:"src,omitempty" yaml:"src,omitempty"`
	BurnIn bool   `json:"burn_in" yaml:"burn_in"`
}

type Transition struct {
	Between  []string `json:"between" yaml:"between"`
	Duration float64  `json:"duration" yaml:"duration"`
}

// BRollRow mirrors one indexed file/start/duration triple of the upload form.
type BRollRow struct {
	File     string   `json:"file" yaml:"file"`
	Start    NumField `json:"start" yaml:"start"`
	Duration NumField `json:"duration" yaml:"duration"`
}

// PiPRow mirrors one indexed picture-in-picture form row.
type PiPRow struct {
	Enable        bool     `json:"enable" yaml:"enable"`
	Start         NumField `json:"start" yaml:"start"`
	Duration      NumField `json:"duration" yaml:"duration"`
	Overlay       string   `json:"overlay,omitempty" yaml:"overlay,omitempty"`
	ZoomDirection string   `json:"zoom_direction,omitempty" yaml:"zoom_direction,omitempty"`
	ZoomStart     NumField `json:"zoom_start,omitempty" yaml:"zoom_start,omitempty"`
	ZoomEnd       NumField `json:"zoom_end,omitempty" yaml:"zoom_end,omitempty"`
}

// FindAudio returns the source of the audio track with the given id.
func (t TimelineSpec) FindAudio(id string) string {
	for _, a := range t.Tracks.Audio {
		if a.ID == id {
			return a.Src
		}
	}
	return ""
}

// NumField is a numeric form value kept in its raw textual form so that
// malformed input can be reported instead of silently zeroed. It decodes
// from either a JSON/YAML number or a string.
type NumField string

func Num(v float64) NumField {
	return NumField(strconv.FormatFloat(v, 'f', -1, 64))
}

func (n NumField) IsEmpty() bool { return strings.TrimSpace(string(n)) == "" }

// Float parses the field. NaN and infinities are rejected.
func (n NumField) Float() (float64, error) {
	s := strings.TrimSpace(string(n))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if v != v || v > 1e300 || v < -1e300 {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

func (n *NumField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NumField(s)
		return nil
	}
	*n = NumField(string(b))
	return nil
}

// MarshalJSON writes parseable values as canonical JSON numbers, so form
// spellings like ".5" or "+3" survive a round trip. Anything else stays a
// string.
func (n NumField) MarshalJSON() ([]byte, error) {
	if v, err := n.Float(); err == nil {
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
	return json.Marshal(string(n))
}

func (n *NumField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*n = ""
		return nil
	}
	*n = NumField(node.Value)
	return nil
}
