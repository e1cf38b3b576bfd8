// Package deploy records review deployments of the web client on GitHub.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

const (
	DefaultOwner   = "GTCMT"
	DefaultRepo    = "earsketch-webclient"
	DefaultBaseURL = "https://earsketch-test.ersktch.gatech.edu"
)

// ErrInvalidPullRequest indicates the pull request argument is not "pr-N" or "N".
var ErrInvalidPullRequest = errors.New("invalid pull request number")

// Config selects the repository and the host serving review builds.
type Config struct {
	Owner   string
	Repo    string
	BaseURL string
}

// Result describes the deployment that was created.
type Result struct {
	DeploymentID   int64
	StatusID       int64
	Environment    string
	EnvironmentURL string
}

// Deployer creates GitHub deployments for pull request review environments.
type Deployer struct {
	client *github.Client
	cfg    Config
	logger zerolog.Logger
}

// NewClient builds a GitHub client that authenticates with basic auth. apiURL
// overrides the public API endpoint when set.
func NewClient(user, token, apiURL string) (*github.Client, error) {
	transport := &github.BasicAuthTransport{Username: user, Password: token}
	client := github.NewClient(transport.Client())

	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// New constructs a deployer.
func New(client *github.Client, cfg Config, logger zerolog.Logger) *Deployer {
	if cfg.Owner == "" {
		cfg.Owner = DefaultOwner
	}
	if cfg.Repo == "" {
		cfg.Repo = DefaultRepo
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Deployer{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "deployer").Logger(),
	}
}

// ParsePullRequest accepts "pr-12" or "12" and returns "12".
func ParsePullRequest(value string) (string, error) {
	number := strings.TrimPrefix(strings.TrimSpace(value), "pr-")
	if n, err := strconv.Atoi(number); err != nil || n <= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPullRequest, value)
	}
	return number, nil
}

// Deploy creates the review-N deployment for sha and marks it successful.
func (d *Deployer) Deploy(ctx context.Context, sha, pullRequest string) (Result, error) {
	number, err := ParsePullRequest(pullRequest)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(sha) == "" {
		return Result{}, errors.New("commit sha is required")
	}

	result := Result{
		Environment:    "review-" + number,
		EnvironmentURL: d.cfg.BaseURL + "/pr-" + number,
	}

	deployment, _, err := d.client.Repositories.CreateDeployment(ctx, d.cfg.Owner, d.cfg.Repo, &github.DeploymentRequest{
		Ref:              github.String(sha),
		AutoMerge:        github.Bool(false),
		RequiredContexts: &[]string{},
		Environment:      github.String(result.Environment),
	})
	if err != nil {
		return Result{}, fmt.Errorf("create deployment: %w", err)
	}
	result.DeploymentID = deployment.GetID()

	status, _, err := d.client.Repositories.CreateDeploymentStatus(ctx, d.cfg.Owner, d.cfg.Repo, result.DeploymentID, &github.DeploymentStatusRequest{
		State:          github.String("success"),
		Environment:    github.String(result.Environment),
		EnvironmentURL: github.String(result.EnvironmentURL),
	})
	if err != nil {
		return result, fmt.Errorf("create deployment status: %w", err)
	}
	result.StatusID = status.GetID()

	d.logger.Info().
		Int64("deployment_id", result.DeploymentID).
		Str("environment", result.Environment).
		Str("url", result.EnvironmentURL).
		Msg("review deployment created")
	return result, nil
}
