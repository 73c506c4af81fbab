//go:build integration

package itest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

const cliTimeout = 3 * time.Minute

type robustCase struct {
	name            string
	args            func(t *testing.T, repoRoot string) []string
	env             map[string]string
	wantContains    []string
	wantNotContains []string
}

type cliRunResult struct {
	exitCode int
	output   string
}

func TestRobustness_ArgsValidation(t *testing.T) {
	repoRoot := mustRepoRoot(t)

	cases := []robustCase{
		{
			name: "no subcommand args",
			args: staticArgs("render"),
			wantContains: []string{
				"accepts 1 arg(s), received 0",
			},
		},
		{
			name: "too many args",
			args: staticArgs("render", "a.json", "extra"),
			wantContains: []string{
				"accepts 1 arg(s), received 2",
			},
		},
		{
			name: "unknown flag",
			args: staticArgs("render", "a.json", "--wat"),
			wantContains: []string{
				"unknown flag: --wat",
			},
		},
		{
			name: "malformed var",
			args: withTemplate(`{"base": "{{BASE}}"}`, "--var", "BASE"),
			wantContains: []string{
				`bad variable "BASE": want KEY=VALUE`,
			},
		},
		{
			name: "serve takes no args",
			args: staticArgs("serve", "extra"),
			wantContains: []string{
				`unknown command "extra"`,
			},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func TestRobustness_InvalidTemplates(t *testing.T) {
	repoRoot := mustRepoRoot(t)

	cases := []robustCase{
		{
			name: "missing template",
			args: staticArgs("render", filepath.Join(repoRoot, "does-not-exist.json")),
			wantContains: []string{
				"read template:",
			},
		},
		{
			name: "unresolved placeholder",
			args: withTemplate(`{"base": "{{BASE}}", "title": "{{TITLE}}"}`, "--var", "BASE=/x.mp4"),
			wantContains: []string{
				"no value for TITLE",
			},
		},
		{
			name: "no base media",
			args: withTemplate(`{"title": "x"}`),
			wantContains: []string{
				"no base media",
			},
		},
		{
			name: "odd raster",
			args: withTemplate(`{"base": "/x.mp4", "raster": {"w": 641, "h": 360, "fps": 30}}`),
			wantContains: []string{
				"raster dimensions must be even",
			},
		},
		{
			name: "bad config env",
			args: withTemplate(`{"base": "/x.mp4"}`),
			env: map[string]string{
				"REELCHAIN_CRF": "nope",
			},
			wantContains: []string{
				"invalid REELCHAIN_CRF",
			},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func TestRobustness_InvalidInputMedia(t *testing.T) {
	repoRoot := mustRepoRoot(t)

	cases := []robustCase{
		{
			name: "base does not exist",
			args: withTemplate(`{"base": "/nope/missing.mp4"}`),
			wantContains: []string{
				"invalid job: base media /nope/missing.mp4",
			},
		},
		{
			name: "base is not media",
			args: func(t *testing.T, _ string) []string {
				t.Helper()
				junk := filepath.Join(t.TempDir(), "junk.mp4")
				if err := os.WriteFile(junk, []byte("not media"), 0o644); err != nil {
					t.Fatalf("write fixture: %v", err)
				}
				return withTemplate(`{"base": "{{BASE}}"}`, "--var", "BASE="+junk)(t, "")
			},
			wantContains: []string{
				"invalid job: base media",
			},
		},
		{
			name: "encoder fails on unreadable overlay",
			args: func(t *testing.T, _ string) []string {
				t.Helper()
				base := filepath.Join(t.TempDir(), "base.mp4")
				if err := makeFixture(base, 3, "black", true); err != nil {
					t.Fatal(err)
				}
				tpl := `{"base": "{{BASE}}", "pip": [{"enable": true, "start": 0, "duration": 2, "overlay": "/nope/overlay.mp4"}]}`
				return withTemplate(tpl, "--var", "BASE="+base)(t, "")
			},
			wantContains: []string{
				"stage 0 (pip-1):",
				"ffmpeg",
			},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func runRobustCases(t *testing.T, repoRoot string, cases []robustCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, repoRoot, tc.args(t, repoRoot), tc.env)
			if res.exitCode == 0 {
				t.Fatalf("expected non-zero exit code, got 0\noutput:\n%s", res.output)
			}
			for _, want := range tc.wantContains {
				if !strings.Contains(res.output, want) {
					t.Fatalf("expected output to contain %q\noutput:\n%s", want, res.output)
				}
			}
			for _, notWant := range tc.wantNotContains {
				if strings.Contains(res.output, notWant) {
					t.Fatalf("expected output to not contain %q\noutput:\n%s", notWant, res.output)
				}
			}
		})
	}
}

func runCLI(t *testing.T, repoRoot string, args []string, env map[string]string) cliRunResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmdArgs := append([]string{"run", "./cmd/reelchain"}, args...)
	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	cmd.Dir = repoRoot
	cmd.Env = mergeEnv(
		os.Environ(),
		map[string]string{
			"NO_COLOR": "1",
			"TERM":     "dumb",
		},
		env,
	)

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("command timed out after %s: go %s", cliTimeout, strings.Join(cmdArgs, " "))
	}

	res := cliRunResult{output: string(out)}
	if err == nil {
		res.exitCode = 0
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}

	t.Fatalf("run command: %v\noutput:\n%s", err, string(out))
	return cliRunResult{}
}

func mergeEnv(base []string, overrides ...map[string]string) []string {
	env := make(map[string]string, len(base))
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		env[kv[:i]] = kv[i+1:]
	}

	for _, set := range overrides {
		for k, v := range set {
			env[k] = v
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// mustRepoRoot walks up from the test directory to the module root, the
// directory holding go.mod and cmd/reelchain.
func mustRepoRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		_, modErr := os.Stat(filepath.Join(dir, "go.mod"))
		_, cmdErr := os.Stat(filepath.Join(dir, "cmd", "reelchain"))
		if modErr == nil && cmdErr == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root: no go.mod with cmd/reelchain above the test directory")
		}
		dir = parent
	}
}

// withTemplate writes doc to a temp job template and renders it with the
// extra flags; output goes to a temp directory.
func withTemplate(doc string, extra ...string) func(t *testing.T, _ string) []string {
	return func(t *testing.T, _ string) []string {
		t.Helper()
		dir := t.TempDir()
		tpl := filepath.Join(dir, "job.json")
		if err := os.WriteFile(tpl, []byte(doc), 0o644); err != nil {
			t.Fatalf("write template: %v", err)
		}
		args := []string{"render", tpl, "--out", filepath.Join(dir, "out", "video.mp4"), "--cache", filepath.Join(dir, ".cache")}
		return append(args, extra...)
	}
}

func staticArgs(args ...string) func(t *testing.T, _ string) []string {
	clone := append([]string(nil), args...)
	return func(t *testing.T, _ string) []string {
		t.Helper()
		return append([]string(nil), clone...)
	}
}
