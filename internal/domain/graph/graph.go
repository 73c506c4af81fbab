// Package graph compiles timeline effects into ffmpeg filter graphs.
//
// A Graph is an ordered list of nodes. Each node reads raw input streams
// ("0:v", "2:a") or labels produced by earlier nodes, so the graph is acyclic
// by construction; Validate checks that property before anything is handed
// to the encoding engine.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind names the role of a node in the graph.
type Kind string

const (
	KindNormalize Kind = "normalize"
	KindScale     Kind = "scale"
	KindSplit     Kind = "split"
	KindTrim      Kind = "trim"
	KindShift     Kind = "shift"
	KindFade      Kind = "fade"
	KindOverlay   Kind = "overlay"
	KindXfade     Kind = "xfade"
	KindConcat    Kind = "concat"
	KindSubtitles Kind = "subtitles"
	KindLoudnorm  Kind = "loudnorm"
	KindDuck      Kind = "duck"
	KindMix       Kind = "mix"
)

// Arg is one filter option. An empty Key renders a positional value.
type Arg struct {
	Key   string
	Value string
}

type Filter struct {
	Name string
	Args []Arg
}

// F builds a filter from key/value pairs.
func F(name string, kv ...string) Filter {
	f := Filter{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Args = append(f.Args, Arg{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Arg returns the value of key and whether it is present.
func (f Filter) Arg(key string) (string, bool) {
	for _, a := range f.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		if a.Key == "" {
			parts = append(parts, a.Value)
			continue
		}
		parts = append(parts, a.Key+"="+a.Value)
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Node is a linear chain of filters with explicit inputs and outputs.
type Node struct {
	Kind    Kind
	Inputs  []string
	Outputs []string
	Filters []Filter
}

func (n Node) String() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString("[" + in + "]")
	}
	fs := make([]string, 0, len(n.Filters))
	for _, f := range n.Filters {
		fs = append(fs, f.String())
	}
	b.WriteString(strings.Join(fs, ","))
	for _, out := range n.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Input is a source file. Loop marks still images that must be looped to
// form a video stream.
type Input struct {
	Path string
	Loop bool
}

// BaseInput is the input slot the chain orchestrator fills with the previous
// stage's artifact.
const BaseInput = 0

type Graph struct {
	Inputs []Input
	Nodes  []Node

	// Video, Audio and Subtitle are the streams mapped into the output:
	// either a node label or a raw stream specifier such as "0:a?".
	Video    string
	Audio    string
	Subtitle string

	CopyVideo bool
	AudioOnly bool
	Shortest  bool
}

// WithBase returns a copy of g reading path as its base input.
func (g Graph) WithBase(path string) Graph {
	out := g
	out.Inputs = append([]Input(nil), g.Inputs...)
	if len(out.Inputs) == 0 {
		out.Inputs = []Input{{}}
	}
	out.Inputs[BaseInput].Path = path
	return out
}

// FilterComplex renders the node list in ffmpeg filter_complex syntax.
func (g Graph) FilterComplex() string {
	parts := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, ";")
}

// Node returns the first node of the given kind.
func (g Graph) Node(k Kind) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Kind == k {
			return n, true
		}
	}
	return Node{}, false
}

// NodesOf returns every node of the given kind in graph order.
func (g Graph) NodesOf(k Kind) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// IsRaw reports whether ref is an input stream specifier rather than a label.
func IsRaw(ref string) bool { return strings.Contains(ref, ":") }

// MapArg renders ref as a -map argument.
func MapArg(ref string) string {
	if IsRaw(ref) {
		return ref
	}
	return "[" + ref + "]"
}

// Validate checks that the graph is acyclic and fully connected: raw inputs
// are in range, every label is defined once before it is read, and every
// label is consumed exactly once by a later node or an output mapping.
func (g Graph) Validate() error {
	if len(g.Inputs) == 0 {
		return errors.New("graph has no inputs")
	}
	if g.Video == "" && !g.AudioOnly {
		return errors.New("graph has no video output")
	}
	if g.AudioOnly && g.Audio == "" {
		return errors.New("audio-only graph has no audio output")
	}

	defined := map[string]int{}
	consumed := map[string]int{}
	use := func(ref string, where string) error {
		if IsRaw(ref) {
			return g.checkRaw(ref, where)
		}
		if _, ok := defined[ref]; !ok {
			return fmt.Errorf("%s reads undefined label %q", where, ref)
		}
		consumed[ref]++
		if consumed[ref] > 1 {
			return fmt.Errorf("label %q consumed more than once", ref)
		}
		return nil
	}

	for i, n := range g.Nodes {
		where := fmt.Sprintf("node %d (%s)", i, n.Kind)
		if len(n.Filters) == 0 {
			return fmt.Errorf("%s has no filters", where)
		}
		if len(n.Outputs) == 0 {
			return fmt.Errorf("%s has no outputs", where)
		}
		for _, in := range n.Inputs {
			if err := use(in, where); err != nil {
				return err
			}
		}
		for _, out := range n.Outputs {
			if IsRaw(out) || out == "" {
				return fmt.Errorf("%s has invalid output label %q", where, out)
			}
			if _, dup := defined[out]; dup {
				return fmt.Errorf("%s redefines label %q", where, out)
			}
			defined[out] = i
		}
	}
	for _, m := range []string{g.Video, g.Audio, g.Subtitle} {
		if m == "" {
			continue
		}
		if err := use(m, "output map"); err != nil {
			return err
		}
	}
	for label := range defined {
		if consumed[label] == 0 {
			return fmt.Errorf("label %q is never consumed", label)
		}
	}
	return nil
}

func (g Graph) checkRaw(ref, where string) error {
	idx, _, _ := strings.Cut(ref, ":")
	n, err := strconv.Atoi(idx)
	if err != nil {
		return fmt.Errorf("%s has malformed stream %q", where, ref)
	}
	if n < 0 || n >= len(g.Inputs) {
		return fmt.Errorf("%s reads input %d, graph has %d inputs", where, n, len(g.Inputs))
	}
	return nil
}
