package api

import (
	"time"

	"github.com/forPelevin/reelchain/internal/store"
	"github.com/forPelevin/reelchain/internal/types"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
	Running int    `json:"running"`
}

type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Status      string              `json:"status"`
	Output      string              `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
	Diagnostics []string            `json:"diagnostics"`
	Spec        *types.TimelineSpec `json:"spec,omitempty"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type EventsResponse struct {
	Events []types.Event `json:"events"`
}

func JobToResponse(j *store.Job) JobResponse {
	diags := j.Diagnostics
	if diags == nil {
		diags = []string{}
	}
	return JobResponse{
		ID:          j.ID,
		Title:       j.Title,
		Status:      string(j.Status),
		Output:      j.Output,
		Error:       j.Error,
		Diagnostics: diags,
		Spec:        j.Spec,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
	}
}
