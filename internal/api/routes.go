package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forPelevin/reelchain/internal/jobspec"
	"github.com/forPelevin/reelchain/internal/store"
	"github.com/forPelevin/reelchain/internal/types"
)

const maxSpecBytes = 1 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", submitJobHandler(cfg))
		r.Get("/", listJobsHandler(cfg))
		r.Get("/{id}", getJobHandler(cfg))
		r.Get("/{id}/events", jobEventsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Dispatcher != nil {
			resp.Running = cfg.Dispatcher.Running()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func submitJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec types.TimelineSpec
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpecBytes)).Decode(&spec); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(spec.Title) == "" {
			WriteError(w, http.StatusBadRequest, "title is required", "VALIDATION_ERROR")
			return
		}
		if err := jobspec.Validate(spec); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}

		id, err := cfg.Dispatcher.Submit(r.Context(), spec)
		if errors.Is(err, ErrDispatcherClosed) {
			WriteError(w, http.StatusServiceUnavailable, "server is shutting down", "UNAVAILABLE")
			return
		}
		if err != nil {
			cfg.Logger.Error().Err(err).Msg("submit job")
			WriteError(w, http.StatusInternalServerError, "failed to submit job", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusAccepted, SubmitResponse{ID: id, Status: string(store.StatusQueued)})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		jobs, err := cfg.Store.ListJobs(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}
		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := cfg.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get job", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(j))
	}
}

func jobEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := cfg.Store.GetJob(r.Context(), id); errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		} else if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get job", "INTERNAL_ERROR")
			return
		}

		events, err := cfg.Store.Events(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list events", "INTERNAL_ERROR")
			return
		}
		if events == nil {
			events = []types.Event{}
		}
		WriteJSON(w, http.StatusOK, EventsResponse{Events: events})
	}
}
