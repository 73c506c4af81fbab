package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forPelevin/reelchain/internal/ports"
	"github.com/forPelevin/reelchain/internal/types"
)

var _ ports.Listener = (*Store)(nil)

type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

var ErrNotFound = errors.New("job not found")

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Job struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Status      Status              `json:"status"`
	Spec        *types.TimelineSpec `json:"spec,omitempty"`
	Output      string              `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
	Diagnostics []string            `json:"diagnostics"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// CreateJob records a submitted job before it starts.
func (s *Store) CreateJob(ctx context.Context, id string, spec types.TimelineSpec) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	ts := now()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, title, status, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, spec.Title, string(StatusQueued), string(raw), ts, ts)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, status, spec, output, error, diagnostics, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// ListJobs returns the most recent jobs first. Specs are not loaded.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, status, NULL, output, error, diagnostics, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// SetResult stores the placed artifact path and the diagnostics of a run.
func (s *Store) SetResult(ctx context.Context, id, output string, diagnostics []string) error {
	if diagnostics == nil {
		diagnostics = []string{}
	}
	raw, err := json.Marshal(diagnostics)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET output = COALESCE(?, output), diagnostics = ?, updated_at = ? WHERE id = ?
	`, nullString(output), string(raw), now(), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Events(ctx context.Context, jobID string) ([]types.Event, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT kind, stage, stage_index, output, message, at
		FROM job_events WHERE job_id = ? ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev                     types.Event
			kind, at               string
			stage, output, message sql.NullString
		)
		if err := rows.Scan(&kind, &stage, &ev.Index, &output, &message, &at); err != nil {
			return nil, err
		}
		ev.Kind = types.EventKind(kind)
		ev.JobID = jobID
		ev.Stage = stage.String
		ev.Output = output.String
		ev.Message = message.String
		ev.At, _ = time.Parse(timeLayout, at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// OnEvent persists ev and moves the job to the status it implies. Jobs that
// were not created through CreateJob are inserted on their first event.
func (s *Store) OnEvent(ev types.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.record(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("job", ev.JobID).Str("kind", string(ev.Kind)).Msg("record event")
	}
}

func (s *Store) record(ctx context.Context, ev types.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC().Format(timeLayout)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (id, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.JobID, ev.Title, string(StatusQueued), ts, ts); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_events (job_id, kind, stage, stage_index, output, message, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.JobID, string(ev.Kind), nullString(ev.Stage), ev.Index,
		nullString(ev.Output), nullString(ev.Message), ts); err != nil {
		return err
	}

	switch ev.Kind {
	case types.EventJobAccepted, types.EventStageCompleted:
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, string(StatusRunning), ts, ev.JobID)
	case types.EventJobFinished:
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, output = ?, updated_at = ? WHERE id = ?`,
			string(StatusFinished), nullString(ev.Output), ts, ev.JobID)
	case types.EventJobFailed:
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
			string(StatusFailed), nullString(ev.Message), ts, ev.JobID)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j                    Job
		status, diags        string
		spec, output, errMsg sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&j.ID, &j.Title, &status, &spec, &output, &errMsg, &diags, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.Output = output.String
	j.Error = errMsg.String
	if spec.Valid && spec.String != "" {
		var ts types.TimelineSpec
		if err := json.Unmarshal([]byte(spec.String), &ts); err != nil {
			return nil, fmt.Errorf("decode spec of job %s: %w", j.ID, err)
		}
		j.Spec = &ts
	}
	if err := json.Unmarshal([]byte(diags), &j.Diagnostics); err != nil {
		return nil, fmt.Errorf("decode diagnostics of job %s: %w", j.ID, err)
	}
	j.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	j.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &j, nil
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
