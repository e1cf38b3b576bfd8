package deploy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Path string
	User string
	Pass string
	Body map[string]interface{}
}

func newGitHubStub(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)

	mux := http.NewServeMux()
	record := func(r *http.Request) {
		user, pass, _ := r.BasicAuth()
		body := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		requests = append(requests, recordedRequest{Path: r.URL.Path, User: user, Pass: pass, Body: body})
		mu.Unlock()
	}

	mux.HandleFunc("/repos/GTCMT/earsketch-webclient/deployments", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		record(r)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42, "environment": "review-17"}`))
	})
	mux.HandleFunc("/repos/GTCMT/earsketch-webclient/deployments/42/statuses", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		record(r)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7, "state": "success"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func TestDeployCreatesDeploymentAndStatus(t *testing.T) {
	server, requests := newGitHubStub(t)

	client, err := NewClient("octocat", "token-123", server.URL)
	require.NoError(t, err)

	result, err := New(client, Config{}, zerolog.Nop()).Deploy(context.Background(), "abc123", "pr-17")
	require.NoError(t, err)
	require.Equal(t, Result{
		DeploymentID:   42,
		StatusID:       7,
		Environment:    "review-17",
		EnvironmentURL: "https://earsketch-test.ersktch.gatech.edu/pr-17",
	}, result)

	recorded := requests()
	require.Len(t, recorded, 2)

	deployment := recorded[0]
	require.Equal(t, "octocat", deployment.User)
	require.Equal(t, "token-123", deployment.Pass)
	require.Equal(t, "abc123", deployment.Body["ref"])
	require.Equal(t, false, deployment.Body["auto_merge"])
	require.Equal(t, []interface{}{}, deployment.Body["required_contexts"])
	require.Equal(t, "review-17", deployment.Body["environment"])

	status := recorded[1]
	require.Equal(t, "success", status.Body["state"])
	require.Equal(t, "review-17", status.Body["environment"])
	require.Equal(t, "https://earsketch-test.ersktch.gatech.edu/pr-17", status.Body["environment_url"])
}

func TestDeployUsesCustomBaseURL(t *testing.T) {
	server, requests := newGitHubStub(t)
	client, err := NewClient("octocat", "token", server.URL+"/")
	require.NoError(t, err)

	result, err := New(client, Config{BaseURL: "https://review.example.com/"}, zerolog.Nop()).Deploy(context.Background(), "abc", "17")
	require.NoError(t, err)
	require.Equal(t, "https://review.example.com/pr-17", result.EnvironmentURL)
	require.Len(t, requests(), 2)
}

func TestParsePullRequest(t *testing.T) {
	number, err := ParsePullRequest("pr-5")
	require.NoError(t, err)
	require.Equal(t, "5", number)

	number, err = ParsePullRequest("12")
	require.NoError(t, err)
	require.Equal(t, "12", number)

	for _, value := range []string{"", "pr-", "pr-x", "-3"} {
		_, err := ParsePullRequest(value)
		require.ErrorIs(t, err, ErrInvalidPullRequest, value)
	}
}

func TestDeployRejectsBadArguments(t *testing.T) {
	client, err := NewClient("u", "t", "http://127.0.0.1:1/")
	require.NoError(t, err)
	deployer := New(client, Config{}, zerolog.Nop())

	_, err = deployer.Deploy(context.Background(), "abc", "main")
	require.ErrorIs(t, err, ErrInvalidPullRequest)

	_, err = deployer.Deploy(context.Background(), " ", "pr-1")
	require.Error(t, err)
}
