package run

import (
	"context"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/result"
)

// Ping re-evaluates a run after one of its jobs changed status. On a live
// run a successful job becomes the current result; on a CI run the check is
// completed once every job is terminal. Ping never fails: problems are
// logged.
func (e *Engine) Ping(ctx context.Context, j *models.Job) {
	log := e.logger().With("run", j.RunID, "job", j.ID)

	r, err := e.Get(j.RunID)
	if err != nil {
		log.Error("ping: load run", "error", err)
		return
	}

	if r.Live {
		if j.Status == models.StatusSuccess {
			if err := e.UpdateResult(ctx, j); err != nil {
				log.Error("ping: update result", "error", err)
			}
		}
		return
	}

	if !r.HasCheck() || e.Checks == nil {
		return
	}

	jobs, err := job.ListByRun(e.DB, r.ID)
	if err != nil {
		log.Error("ping: list jobs", "error", err)
		return
	}
	for _, other := range jobs {
		if !other.Status.Terminal() {
			return
		}
	}

	if err := e.Checks.Complete(ctx, r.GitHub.URL, r.GitHub.CheckID, jobs); err != nil {
		log.Error("ping: complete check", "check", r.GitHub.CheckID, "error", err)
		return
	}
	log.Info("run check completed", "check", r.GitHub.CheckID, "jobs", len(jobs))
}

// PingJob loads a job and pings its run. It matches moderation.Pinger.
func (e *Engine) PingJob(ctx context.Context, jobID int64) {
	j, err := job.Get(e.DB, jobID)
	if err != nil {
		e.logger().Error("ping: load job", "job", jobID, "error", err)
		return
	}
	e.Ping(ctx, j)
}

// UpdateResult makes j the current result for its source, layer and name,
// matching its coverage first. A coverage failure does not block the result.
func (e *Engine) UpdateResult(ctx context.Context, j *models.Job) error {
	if e.Matcher != nil {
		if _, err := e.Matcher.Match(ctx, j); err != nil {
			e.logger().Warn("coverage match failed", "job", j.ID, "error", err)
		}
	}
	_, err := result.Update(e.DB, j)
	return err
}

// PromoteResult summarises Promote.
type PromoteResult struct {
	RunID   int64       `json:"run"`
	Results []int64     `json:"results"`
	Errors  []ItemError `json:"errors"`
}

// Promote marks a run live and makes each of its successful jobs the current
// result. It is used when the pull request that produced a CI run merges.
func (e *Engine) Promote(ctx context.Context, runID int64) (*PromoteResult, error) {
	res := e.DB.Model(&models.Run{}).Where("id = ? AND live = ?", runID, false).Update("live", true)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "run: promote %d", runID)
	}
	if res.RowsAffected == 0 {
		if _, err := e.Get(runID); err != nil {
			return nil, err
		}
		return nil, apperr.Conflict("run %d is already live", runID)
	}

	jobs, err := job.ListByRun(e.DB, runID)
	if err != nil {
		return nil, err
	}
	out := &PromoteResult{RunID: runID, Results: []int64{}, Errors: []ItemError{}}
	for i := range jobs {
		j := &jobs[i]
		if j.Status != models.StatusSuccess {
			continue
		}
		if err := e.UpdateResult(ctx, j); err != nil {
			out.Errors = append(out.Errors, ItemError{JobID: j.ID, Message: apperr.Safe(err).Message})
			continue
		}
		out.Results = append(out.Results, j.ID)
	}
	e.logger().Info("run promoted", "run", runID, "results", len(out.Results))
	return out, nil
}
