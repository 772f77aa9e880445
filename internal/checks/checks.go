// Package checks drives the GitHub check run attached to a CI run.
package checks

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/models"
	"golang.org/x/oauth2"
)

// Check conclusions.
const (
	ConclusionSuccess = "success"
	ConclusionNeutral = "neutral"
	ConclusionFailure = "failure"
)

// Checks creates and completes CI checks.
type Checks interface {
	// Create opens an in-progress check on sha and returns its id.
	Create(ctx context.Context, repoURL, sha string, runID int64) (int64, error)
	// Complete closes a check with a conclusion and job summary.
	Complete(ctx context.Context, repoURL string, checkID int64, jobs []models.Job) error
}

type checksService interface {
	CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) (*github.CheckRun, *github.Response, error)
	UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, opts github.UpdateCheckRunOptions) (*github.CheckRun, *github.Response, error)
}

// GitHubOpts configures the GitHub checks client.
type GitHubOpts struct {
	Token      string
	Name       string // check name shown on the pull request
	BaseURL    string // enterprise API base, empty for github.com
	DetailsURL string // frontend base; "/run/{id}" is appended
	// For testing: inject a mock service instead of the real API.
	Service checksService
}

// GitHub implements Checks with the GitHub REST API.
type GitHub struct {
	svc  checksService
	opts GitHubOpts
}

// NewGitHub creates a GitHub checks client authenticated with a token.
func NewGitHub(ctx context.Context, opts GitHubOpts) (*GitHub, error) {
	if opts.Name == "" {
		opts.Name = "openaddresses/data"
	}
	if opts.Service != nil {
		return &GitHub{svc: opts.Service, opts: opts}, nil
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("checks: github token is required")
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	client := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("checks: enterprise url: %w", err)
		}
	}
	return &GitHub{svc: client.Checks, opts: opts}, nil
}

// Create implements Checks.
func (g *GitHub) Create(ctx context.Context, repoURL, sha string, runID int64) (int64, error) {
	owner, repo, err := ParseRepo(repoURL)
	if err != nil {
		return 0, err
	}
	opts := github.CreateCheckRunOptions{
		Name:       g.opts.Name,
		HeadSHA:    sha,
		Status:     github.Ptr("in_progress"),
		ExternalID: github.Ptr(fmt.Sprint(runID)),
	}
	if g.opts.DetailsURL != "" {
		opts.DetailsURL = github.Ptr(fmt.Sprintf("%s/run/%d", strings.TrimRight(g.opts.DetailsURL, "/"), runID))
	}
	check, _, err := g.svc.CreateCheckRun(ctx, owner, repo, opts)
	if err != nil {
		return 0, apperr.Upstream(err, "checks: create for %s/%s@%s", owner, repo, sha)
	}
	return check.GetID(), nil
}

// Complete implements Checks.
func (g *GitHub) Complete(ctx context.Context, repoURL string, checkID int64, jobs []models.Job) error {
	owner, repo, err := ParseRepo(repoURL)
	if err != nil {
		return err
	}
	conclusion := Conclusion(jobs)
	_, _, err = g.svc.UpdateCheckRun(ctx, owner, repo, checkID, github.UpdateCheckRunOptions{
		Name:       g.opts.Name,
		Status:     github.Ptr("completed"),
		Conclusion: github.Ptr(conclusion),
		Output: &github.CheckRunOutput{
			Title:   github.Ptr(Title(jobs)),
			Summary: github.Ptr(Summary(jobs)),
		},
	})
	if err != nil {
		return apperr.Upstream(err, "checks: complete %d", checkID)
	}
	return nil
}

// ParseRepo extracts owner and repository from a GitHub repository URL.
func ParseRepo(repoURL string) (string, string, error) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return "", "", apperr.Validation("checks: invalid repository url %q", repoURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperr.Validation("checks: repository url %q has no owner/repo", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
