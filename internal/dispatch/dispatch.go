// Package dispatch hands work to the compute backend. Submission is
// fire-and-forget: completion is reported back through the job update API.
package dispatch

import (
	"context"
	"sort"
	"strconv"
)

// Kind selects the task a compute job runs.
type Kind string

const (
	KindJob     Kind = "job"
	KindJobCI   Kind = "job-ci"
	KindExport  Kind = "export"
	KindCollect Kind = "collect"
	KindFabric  Kind = "fabric"
	KindSources Kind = "sources"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindJob, KindJobCI, KindExport, KindCollect, KindFabric, KindSources:
		return true
	}
	return false
}

// Payload describes the unit of work. Zero fields are omitted from the
// task environment.
type Payload struct {
	JobID    int64
	Source   string
	Layer    string
	Name     string
	ExportID int64
	Format   string
}

// Env renders the payload as task environment variables, sorted by name.
func (p Payload) Env() [][2]string {
	env := map[string]string{}
	if p.JobID != 0 {
		env["OA_JOB_ID"] = strconv.FormatInt(p.JobID, 10)
	}
	if p.Source != "" {
		env["OA_SOURCE"] = p.Source
	}
	if p.Layer != "" {
		env["OA_SOURCE_LAYER"] = p.Layer
	}
	if p.Name != "" {
		env["OA_SOURCE_LAYER_NAME"] = p.Name
	}
	if p.ExportID != 0 {
		env["OA_EXPORT_ID"] = strconv.FormatInt(p.ExportID, 10)
	}
	if p.Format != "" {
		env["OA_EXPORT_FORMAT"] = p.Format
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, [2]string{k, env[k]})
	}
	return out
}

// Dispatcher submits work and returns a backend handle.
type Dispatcher interface {
	Submit(ctx context.Context, kind Kind, payload Payload) (string, error)
}
