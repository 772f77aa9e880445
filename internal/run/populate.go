package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/manifest"
	"github.com/openaddresses/batch-sub000/internal/models"
)

// JobSpec is one element of a populate request: either an explicit triple or
// the URL of a source manifest to explode.
type JobSpec struct {
	Ref    string
	Triple *manifest.Triple
}

// UnmarshalJSON accepts either a JSON string or a {source, layer, name} object.
func (s *JobSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Ref)
	}
	var t manifest.Triple
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("job spec must be a url or {source, layer, name}: %w", err)
	}
	s.Triple = &t
	return nil
}

// MarshalJSON renders the spec in the form it was given.
func (s JobSpec) MarshalJSON() ([]byte, error) {
	if s.Triple != nil {
		return json.Marshal(s.Triple)
	}
	return json.Marshal(s.Ref)
}

// ItemError is one per-item failure collected during populate.
type ItemError struct {
	Spec    string `json:"spec,omitempty"`
	JobID   int64  `json:"job,omitempty"`
	Message string `json:"error"`
}

// PopulateResult is the outcome of populating a run. Errors is never nil.
type PopulateResult struct {
	RunID  int64       `json:"run"`
	Jobs   []int64     `json:"jobs"`
	Errors []ItemError `json:"errors"`
}

// Populate fills an open run with jobs and dispatches them. A run can be
// populated exactly once: the run is closed atomically before any job is
// generated, so a second call fails with AlreadyClosed. Manifest, generation
// and dispatch failures are collected per item in the result.
func (e *Engine) Populate(ctx context.Context, runID int64, specs []JobSpec) (*PopulateResult, error) {
	// Reject malformed references before claiming the run so the caller can
	// fix them and retry.
	refs := make([]string, len(specs))
	for i, s := range specs {
		if s.Triple != nil {
			continue
		}
		raw, err := manifest.CheckReference(s.Ref)
		if err != nil {
			return nil, err
		}
		refs[i] = raw
	}

	r, err := e.claim(runID)
	if err != nil {
		return nil, err
	}

	res := &PopulateResult{RunID: r.ID, Jobs: []int64{}, Errors: []ItemError{}}

	var triples []manifest.Triple
	for i, s := range specs {
		if s.Triple != nil {
			triples = append(triples, *s.Triple)
			continue
		}
		src, err := manifest.Fetch(ctx, e.Fetcher, refs[i])
		if err != nil {
			e.logger().Warn("manifest fetch failed", "run", r.ID, "ref", s.Ref, "error", err)
			res.Errors = append(res.Errors, ItemError{Spec: s.Ref, Message: apperr.Safe(err).Message})
			continue
		}
		exploded, errs := manifest.Explode(s.Ref, src)
		for _, err := range errs {
			res.Errors = append(res.Errors, ItemError{Spec: s.Ref, Message: err.Error()})
		}
		triples = append(triples, exploded...)
	}

	kind := dispatch.KindJob
	if r.HasCheck() {
		kind = dispatch.KindJobCI
	}

	var failed *models.Job
	for _, t := range triples {
		j, err := job.Generate(e.DB, job.GenerateOpts{RunID: r.ID, Source: t.Source, Layer: t.Layer, Name: t.Name})
		if err != nil {
			e.logger().Warn("job generate failed", "run", r.ID, "source", t.Source, "error", err)
			res.Errors = append(res.Errors, ItemError{Spec: t.Source, Message: apperr.Safe(err).Message})
			continue
		}
		res.Jobs = append(res.Jobs, j.ID)

		if err := e.submit(ctx, kind, j); err != nil {
			res.Errors = append(res.Errors, ItemError{Spec: t.Source, JobID: j.ID, Message: apperr.Safe(err).Message})
			j.Status = models.StatusFail
			failed = j
		}
	}

	// Jobs that never reached the compute backend will not report back, so
	// the run is pinged here in case they were the last ones outstanding.
	if failed != nil {
		e.Ping(ctx, failed)
	}

	e.logger().Info("run populated", "run", r.ID, "jobs", len(res.Jobs), "errors", len(res.Errors))
	return res, nil
}

// claim closes an open run, failing if it was already closed.
func (e *Engine) claim(runID int64) (*models.Run, error) {
	res := e.DB.Model(&models.Run{}).
		Where("id = ? AND closed = ?", runID, false).
		Update("closed", true)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "run: close %d", runID)
	}
	if res.RowsAffected == 0 {
		if _, err := e.Get(runID); err != nil {
			return nil, err
		}
		return nil, apperr.AlreadyClosed("run %d has already been populated", runID)
	}
	return e.Get(runID)
}

// submit dispatches j. A failed dispatch marks the job Fail so it is
// visible and can be retried with Redispatch.
func (e *Engine) submit(ctx context.Context, kind dispatch.Kind, j *models.Job) error {
	handle, err := e.Dispatcher.Submit(ctx, kind, dispatch.Payload{
		JobID:  j.ID,
		Source: j.Source,
		Layer:  j.Layer,
		Name:   j.Name,
	})
	if err != nil {
		e.logger().Error("job dispatch failed", "job", j.ID, "error", err)
		if serr := job.SetStatus(e.DB, j.ID, models.StatusFail); serr != nil {
			e.logger().Error("marking undispatched job failed", "job", j.ID, "error", serr)
		}
		return err
	}
	e.logger().Debug("job dispatched", "job", j.ID, "kind", kind, "handle", handle)
	return nil
}

// Redispatch resets a failed or stuck job to Pending and submits it again.
func (e *Engine) Redispatch(ctx context.Context, jobID int64) (*models.Job, error) {
	j, err := job.Get(e.DB, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != models.StatusFail && j.Status != models.StatusPending {
		return nil, apperr.Conflict("job %d is %s; only Pending or Fail jobs can be re-dispatched", j.ID, j.Status)
	}
	r, err := e.Get(j.RunID)
	if err != nil {
		return nil, err
	}
	if err := job.SetStatus(e.DB, j.ID, models.StatusPending); err != nil {
		return nil, err
	}

	kind := dispatch.KindJob
	if r.HasCheck() {
		kind = dispatch.KindJobCI
	}
	if err := e.submit(ctx, kind, j); err != nil {
		return nil, err
	}
	return job.Get(e.DB, j.ID)
}
