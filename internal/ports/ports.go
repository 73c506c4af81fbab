package ports

import (
	"context"
	"time"

	"github.com/forPelevin/reelchain/internal/domain/graph"
	"github.com/forPelevin/reelchain/internal/types"
)

// EncodeRequest is one invocation of the encoding engine: a compiled graph
// whose inputs are fully bound, written to Output with Quality.
type EncodeRequest struct {
	Graph   graph.Graph
	Output  string
	Quality types.Quality
}

// MediaTool is the encoding engine. Encode either produces Output or fails;
// a failure leaves no guarantee about a partially written Output.
type MediaTool interface {
	Encode(ctx context.Context, req EncodeRequest) error
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	ProbeDuration(ctx context.Context, in string) (time.Duration, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// Listener receives job lifecycle events. Implementations must not block
// for long; the orchestrator calls them inline.
type Listener interface {
	OnEvent(ev types.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(types.Event)

func (f ListenerFunc) OnEvent(ev types.Event) { f(ev) }

// Listeners fans an event out to every non-nil listener in order.
type Listeners []Listener

func (ls Listeners) OnEvent(ev types.Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(ev)
		}
	}
}
