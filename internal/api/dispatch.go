package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/reelchain/internal/logging"
	"github.com/forPelevin/reelchain/internal/pipeline"
	"github.com/forPelevin/reelchain/internal/store"
	"github.com/forPelevin/reelchain/internal/types"
	"github.com/forPelevin/reelchain/internal/usecase"
)

// JobStore is the job history the HTTP surface reads and writes.
type JobStore interface {
	CreateJob(ctx context.Context, id string, spec types.TimelineSpec) error
	GetJob(ctx context.Context, id string) (*store.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*store.Job, error)
	Events(ctx context.Context, jobID string) ([]types.Event, error)
	SetResult(ctx context.Context, id, output string, diagnostics []string) error
}

type Renderer interface {
	Run(ctx context.Context, job pipeline.Job) (usecase.Result, error)
}

// Dispatcher runs submitted jobs in the background, at most max at a time.
type Dispatcher struct {
	renderer Renderer
	store    JobStore
	log      zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	slots   chan struct{}
	running atomic.Int32

	// mu orders wg.Add in Submit against wg.Wait in Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var ErrDispatcherClosed = errors.New("dispatcher closed")

func NewDispatcher(renderer Renderer, st JobStore, max int, log zerolog.Logger) *Dispatcher {
	if max <= 0 {
		max = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		renderer: renderer,
		store:    st,
		log:      logging.WithComponent(log, "dispatch"),
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, max),
	}
}

// Submit records spec as a queued job and starts it once a slot is free.
func (d *Dispatcher) Submit(ctx context.Context, spec types.TimelineSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrDispatcherClosed
	}
	id := uuid.NewString()
	if err := d.store.CreateJob(ctx, id, spec); err != nil {
		return "", err
	}
	d.wg.Add(1)
	go d.run(id, spec)
	return id, nil
}

func (d *Dispatcher) run(id string, spec types.TimelineSpec) {
	defer d.wg.Done()
	log := logging.WithJob(d.log, id)

	select {
	case d.slots <- struct{}{}:
	case <-d.ctx.Done():
		log.Warn().Msg("dispatcher closed before job started")
		return
	}
	defer func() { <-d.slots }()

	d.running.Add(1)
	defer d.running.Add(-1)

	res, err := d.renderer.Run(d.ctx, pipeline.Job{ID: id, Spec: spec})
	output := ""
	if err == nil {
		output = res.Artifact.Path
	} else {
		log.Error().Err(err).Msg("job failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.SetResult(ctx, id, output, res.Diagnostics); err != nil {
		log.Error().Err(err).Msg("store result")
	}
}

// Running is the number of jobs currently rendering.
func (d *Dispatcher) Running() int {
	return int(d.running.Load())
}

// Wait blocks until every submitted job has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close rejects further submissions, cancels running jobs and waits for
// them to return. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
