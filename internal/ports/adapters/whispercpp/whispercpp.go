package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath}
}

var _ ports.ASR = (*Adapter)(nil)

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	if a.bin == "" || a.model == "" {
		return types.Transcript{}, fmt.Errorf("whisper.cpp is not configured")
	}
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-ojf",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	return Decode(jb)
}

// output is the subset of whisper.cpp's full JSON output that is used.
type output struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text   string `json:"text"`
		Tokens []struct {
			Text    string `json:"text"`
			Offsets struct {
				From int64 `json:"from"`
				To   int64 `json:"to"`
			} `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// Decode converts whisper.cpp JSON into a transcript. Offsets are in
// milliseconds. Special tokens such as [_BEG_] are dropped; a token starting
// with a space begins a new word, others continue the previous one.
func Decode(b []byte) (types.Transcript, error) {
	var out output
	if err := json.Unmarshal(b, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("decode whisper output: %w", err)
	}
	var tr types.Transcript
	for _, s := range out.Transcription {
		u := types.Utterance{
			Start: ms(s.Offsets.From),
			End:   ms(s.Offsets.To),
			Text:  strings.TrimSpace(s.Text),
		}
		for _, tok := range s.Tokens {
			if strings.HasPrefix(tok.Text, "[_") || tok.Text == "" {
				continue
			}
			w := types.Word{Start: ms(tok.Offsets.From), End: ms(tok.Offsets.To), Word: strings.TrimSpace(tok.Text)}
			if n := len(u.Words); n > 0 && !strings.HasPrefix(tok.Text, " ") {
				u.Words[n-1].Word += w.Word
				u.Words[n-1].End = w.End
				continue
			}
			if w.Word != "" {
				u.Words = append(u.Words, w)
			}
		}
		tr.Segments = append(tr.Segments, u)
	}
	return tr, nil
}

func ms(v int64) float64 { return float64(v) / 1000 }
