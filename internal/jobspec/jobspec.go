// Package jobspec loads render job descriptions from templates.
//
// A template is a JSON or YAML TimelineSpec containing {{KEY}} placeholders.
// Substitution is literal text replacement performed before parsing, so a
// placeholder may stand for any part of the document.
package jobspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/reelchain/internal/types"
)

// Format is the serialization of a job document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf picks the format from the file extension; anything that is not
// .yaml or .yml is JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

var placeholder = regexp.MustCompile(`\{\{([A-Za-z0-9_.-]+)\}\}`)

// Substitute replaces every {{KEY}} with vars[KEY]. Keys with no value are
// left untouched.
func Substitute(tpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tpl = strings.ReplaceAll(tpl, "{{"+k+"}}", vars[k])
	}
	return tpl
}

// Unresolved lists the placeholder keys still present in s.
func Unresolved(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Parse decodes a job document.
func Parse(data []byte, f Format) (types.TimelineSpec, error) {
	var spec types.TimelineSpec
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return types.TimelineSpec{}, fmt.Errorf("parse yaml job: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&spec); err != nil {
			return types.TimelineSpec{}, fmt.Errorf("parse json job: %w", err)
		}
	}
	return spec, nil
}

// Load reads the template at path, substitutes vars, and parses and
// validates the result. Placeholders left without a value are an error.
func Load(path string, vars map[string]string) (types.TimelineSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.TimelineSpec{}, fmt.Errorf("read template: %w", err)
	}
	doc := Substitute(string(raw), vars)
	if left := Unresolved(doc); len(left) > 0 {
		return types.TimelineSpec{}, fmt.Errorf("template %s: no value for %s", filepath.Base(path), strings.Join(left, ", "))
	}
	spec, err := Parse([]byte(doc), FormatOf(path))
	if err != nil {
		return types.TimelineSpec{}, err
	}
	if err := Validate(spec); err != nil {
		return types.TimelineSpec{}, err
	}
	return spec, nil
}

// ParseVars turns KEY=VALUE pairs into a substitution map.
func ParseVars(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("bad variable %q: want KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}

// Validate checks the structural requirements of a job. Per-row numeric
// problems in broll, pip and graphics rows are left to the scheduler, which
// reports them as diagnostics instead of failing the job.
func Validate(spec types.TimelineSpec) error {
	var errs []error
	if strings.TrimSpace(spec.Base) == "" && len(spec.Tracks.Video) == 0 {
		errs = append(errs, errors.New("no base media: set base or tracks.video"))
	}
	if r := spec.Raster; r != nil {
		if r.W < 0 || r.H < 0 || r.FPS < 0 {
			errs = append(errs, fmt.Errorf("raster must be positive, got %dx%d@%v", r.W, r.H, r.FPS))
		}
		if r.W%2 != 0 || r.H%2 != 0 {
			errs = append(errs, fmt.Errorf("raster dimensions must be even, got %dx%d", r.W, r.H))
		}
	}
	if o := spec.Output; o != nil && (o.CRF < 0 || o.CRF > 51) {
		errs = append(errs, fmt.Errorf("output.crf must be in [0, 51], got %d", o.CRF))
	}

	ids := map[string]bool{}
	for i, v := range spec.Tracks.Video {
		where := fmt.Sprintf("tracks.video[%d]", i)
		switch {
		case v.ID == "":
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		case ids[v.ID]:
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", where, v.ID))
		}
		ids[v.ID] = true
		if v.Src == "" {
			errs = append(errs, fmt.Errorf("%s: src is required", where))
		}
		if v.In < 0 || v.Out <= v.In {
			errs = append(errs, fmt.Errorf("%s: need 0 <= in < out, got in=%v out=%v", where, v.In, v.Out))
		}
	}
	for i, tr := range spec.Transitions {
		if tr.Duration < 0 {
			errs = append(errs, fmt.Errorf("transitions[%d]: duration must be >= 0", i))
		}
	}
	audio := map[string]bool{}
	for i, a := range spec.Tracks.Audio {
		if a.Src == "" {
			errs = append(errs, fmt.Errorf("tracks.audio[%d]: src is required", i))
		}
		if audio[a.ID] {
			errs = append(errs, fmt.Errorf("tracks.audio[%d]: duplicate id %q", i, a.ID))
		}
		audio[a.ID] = true
	}
	return errors.Join(errs...)
}
