package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/reelchain/internal/pipeline"
	"github.com/forPelevin/reelchain/internal/store"
	"github.com/forPelevin/reelchain/internal/types"
	"github.com/forPelevin/reelchain/internal/usecase"
)

// fakeRenderer reports events to the store the way the pipeline listeners do.
type fakeRenderer struct {
	st  *store.Store
	err error
}

func (f *fakeRenderer) Run(_ context.Context, job pipeline.Job) (usecase.Result, error) {
	f.st.OnEvent(types.Event{Kind: types.EventJobAccepted, JobID: job.ID, Title: job.Spec.Title})
	res := usecase.Result{JobID: job.ID, Diagnostics: []string{"B-roll: row 1 missing-source"}}
	if f.err != nil {
		f.st.OnEvent(types.Event{Kind: types.EventJobFailed, JobID: job.ID, Message: f.err.Error()})
		return res, f.err
	}
	f.st.OnEvent(types.Event{Kind: types.EventStageCompleted, JobID: job.ID, Stage: "normalize", Output: "/tmp/s.mp4"})
	f.st.OnEvent(types.Event{Kind: types.EventJobFinished, JobID: job.ID, Output: "/tmp/s.mp4"})
	res.Artifact.Path = "/out/" + job.ID + "/video.mp4"
	return res, nil
}

type testEnv struct {
	router http.Handler
	st     *store.Store
	disp   *Dispatcher
}

func newTestEnv(t *testing.T, renderErr error) testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	disp := NewDispatcher(&fakeRenderer{st: st, err: renderErr}, st, 1, zerolog.Nop())
	t.Cleanup(disp.Close)

	cfg := ServerConfig{Store: st, Dispatcher: disp, Logger: zerolog.Nop(), StartTime: time.Now()}
	return testEnv{router: NewRouter(cfg), st: st, disp: disp}
}

func (e testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	decodeJSONBody(t, rr, &resp)
	if resp.Status != "ok" {
		t.Fatalf("status = %q", resp.Status)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestSubmitJob_RunsAndPersistsResult(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"title":"Launch","base":"/media/base.mp4","pip":[{"enable":true,"start":"2","duration":6,"overlay":"/media/o.mp4"}]}`

	rr := env.do(t, http.MethodPost, "/jobs", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	var sub SubmitResponse
	decodeJSONBody(t, rr, &sub)
	if sub.ID == "" || sub.Status != "queued" {
		t.Fatalf("unexpected submit response: %+v", sub)
	}
	env.disp.Wait()

	rr = env.do(t, http.MethodGet, "/jobs/"+sub.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var job JobResponse
	decodeJSONBody(t, rr, &job)
	if job.Status != "finished" || job.Output != "/out/"+sub.ID+"/video.mp4" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(job.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", job.Diagnostics)
	}
	if job.Spec == nil || len(job.Spec.PiP) != 1 {
		t.Fatalf("spec not returned: %+v", job.Spec)
	}

	rr = env.do(t, http.MethodGet, "/jobs/"+sub.ID+"/events", "")
	var evs EventsResponse
	decodeJSONBody(t, rr, &evs)
	if len(evs.Events) != 3 || evs.Events[1].Stage != "normalize" {
		t.Fatalf("unexpected events: %+v", evs.Events)
	}

	rr = env.do(t, http.MethodGet, "/jobs", "")
	var list JobsResponse
	decodeJSONBody(t, rr, &list)
	if len(list.Jobs) != 1 || list.Jobs[0].ID != sub.ID {
		t.Fatalf("unexpected list: %+v", list.Jobs)
	}
}

func TestSubmitJob_FormStyleNumbers(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"title":"x","base":"/media/base.mp4","broll":[{"file":"/media/b.mp4","start":".5","duration":"+3"}],"pip":[{"enable":true,"start":"5.","duration":"2"}]}`

	rr := env.do(t, http.MethodPost, "/jobs", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	var sub SubmitResponse
	decodeJSONBody(t, rr, &sub)
	env.disp.Wait()

	j, err := env.st.GetJob(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Spec == nil || len(j.Spec.BRoll) != 1 {
		t.Fatalf("spec not stored: %+v", j.Spec)
	}
	if v, err := j.Spec.BRoll[0].Start.Float(); err != nil || v != 0.5 {
		t.Fatalf("broll start = %v, %v; want 0.5", v, err)
	}
	if v, err := j.Spec.PiP[0].Start.Float(); err != nil || v != 5 {
		t.Fatalf("pip start = %v, %v; want 5", v, err)
	}
}

func TestSubmitJob_FailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, errors.New("stage 0 (normalize): exit status 1"))
	rr := env.do(t, http.MethodPost, "/jobs", `{"title":"x","base":"/media/base.mp4"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status code = %d", rr.Code)
	}
	var sub SubmitResponse
	decodeJSONBody(t, rr, &sub)
	env.disp.Wait()

	j, err := env.st.GetJob(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != store.StatusFailed || !strings.Contains(j.Error, "exit status 1") {
		t.Fatalf("unexpected job: %+v", j)
	}
	if j.Output != "" || len(j.Diagnostics) != 1 {
		t.Fatalf("failed job should keep diagnostics only: %+v", j)
	}
}

func TestSubmitJob_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"title":`, "BAD_REQUEST"},
		{"no title", `{"base":"/media/base.mp4"}`, "VALIDATION_ERROR"},
		{"no base", `{"title":"x"}`, "VALIDATION_ERROR"},
		{"odd raster", `{"title":"x","base":"b.mp4","raster":{"w":1921,"h":1080,"fps":30}}`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/jobs", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status code = %d, want 400", rr.Code)
			}
			var resp ErrorResponse
			decodeJSONBody(t, rr, &resp)
			if resp.Code != tt.code {
				t.Fatalf("code = %q, want %q (%s)", resp.Code, tt.code, resp.Error)
			}
		})
	}
	if jobs, _ := env.st.ListJobs(context.Background(), 10); len(jobs) != 0 {
		t.Fatalf("rejected jobs must not be stored, got %d", len(jobs))
	}
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/jobs/missing", "/jobs/missing/events"} {
		if rr := env.do(t, http.MethodGet, path, ""); rr.Code != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404", path, rr.Code)
		}
	}
}

func TestListJobs_BadLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do(t, http.MethodGet, "/jobs?limit=-1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want 400", rr.Code)
	}
}

func TestSubmitJob_AfterClose(t *testing.T) {
	env := newTestEnv(t, nil)
	env.disp.Close()

	if _, err := env.disp.Submit(context.Background(), types.TimelineSpec{Title: "x", Base: "/media/base.mp4"}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("Submit after Close error = %v, want ErrDispatcherClosed", err)
	}
	rr := env.do(t, http.MethodPost, "/jobs", `{"title":"x","base":"/media/base.mp4"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want 503", rr.Code)
	}
	if jobs, _ := env.st.ListJobs(context.Background(), 10); len(jobs) != 0 {
		t.Fatalf("jobs submitted after close must not be stored, got %d", len(jobs))
	}
}

func TestDispatcher_SubmitRacesClose(t *testing.T) {
	env := newTestEnv(t, nil)
	spec := types.TimelineSpec{Title: "x", Base: "/media/base.mp4"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				if _, err := env.disp.Submit(context.Background(), spec); err != nil && !errors.Is(err, ErrDispatcherClosed) {
					t.Errorf("Submit error = %v", err)
				}
			}
		}()
	}
	env.disp.Close()
	wg.Wait()
	env.disp.Close()

	if env.disp.Running() != 0 {
		t.Fatalf("running = %d after Close", env.disp.Running())
	}
}
