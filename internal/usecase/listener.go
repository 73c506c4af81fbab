package usecase

import (
	"github.com/rs/zerolog"

	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/types"
)

// LogListener writes every job event to a structured logger.
func LogListener(log zerolog.Logger) ports.Listener {
	log = log.With().Str("component", "events").Logger()
	return ports.ListenerFunc(func(ev types.Event) {
		e := log.Info()
		if ev.Kind == types.EventJobFailed {
			e = log.Error()
		}
		e = e.Str("kind", string(ev.Kind)).Str("job", ev.JobID)
		if ev.Title != "" {
			e = e.Str("title", ev.Title)
		}
		if ev.Stage != "" {
			e = e.Str("stage", ev.Stage).Int("index", ev.Index)
		}
		if ev.Output != "" {
			e = e.Str("output", ev.Output)
		}
		e.Msg(ev.Message)
	})
}
