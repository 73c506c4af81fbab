package types

import "time"

// Transcript is the speech-to-text result for one media file.
type Transcript struct {
	Segments []Utterance `json:"segments"`
}

type Utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Segment is one scheduled time window on the shared timeline clock.
// After scheduling 0 <= Start < End <= base duration holds.
type Segment struct {
	Start   float64
	End     float64
	Source  string
	FadeIn  float64
	FadeOut float64
	Row     int
}

func (s Segment) Duration() float64 { return s.End - s.Start }

type ZoomDirection string

const (
	ZoomNone   ZoomDirection = "none"
	ZoomLeft   ZoomDirection = "left"
	ZoomCenter ZoomDirection = "center"
	ZoomRight  ZoomDirection = "right"
)

// ParseZoomDirection maps form values onto a direction; unknown or empty
// values mean no zoom.
func ParseZoomDirection(s string) ZoomDirection {
	switch ZoomDirection(s) {
	case ZoomLeft, ZoomCenter, ZoomRight:
		return ZoomDirection(s)
	default:
		return ZoomNone
	}
}

// EffectRequest is a validated picture-in-picture request. ZoomStart and
// ZoomEnd are offsets from Start inside [0, Duration].
type EffectRequest struct {
	Row           int
	Start         float64
	Duration      float64
	Overlay       string
	ZoomDirection ZoomDirection
	ZoomStart     float64
	ZoomEnd       float64
	FadeIn        float64
	FadeOut       float64
}

func (e EffectRequest) End() float64 { return e.Start + e.Duration }

// HasZoom reports whether the zoom sub-window is active.
func (e EffectRequest) HasZoom() bool {
	return e.ZoomDirection != ZoomNone && e.ZoomDirection != "" && e.ZoomEnd > e.ZoomStart
}

// Cue is one subtitle block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

type SubtitleTrack struct {
	Cues []Cue
}

type Layout struct {
	Video     bool `json:"video"`
	Audio     bool `json:"audio"`
	Subtitles bool `json:"subtitles"`
}

// RenderArtifact is an encoded file produced by one chain stage.
type RenderArtifact struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Layout   Layout  `json:"layout"`
}

type EventKind string

const (
	EventJobAccepted    EventKind = "job-accepted"
	EventStageCompleted EventKind = "stage-completed"
	EventJobFinished    EventKind = "job-finished"
	EventJobFailed      EventKind = "job-failed"
)

type Event struct {
	Kind    EventKind `json:"kind"`
	JobID   string    `json:"job_id"`
	Title   string    `json:"title,omitempty"`
	Stage   string    `json:"stage,omitempty"`
	Index   int       `json:"index"`
	Output  string    `json:"output,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}
