package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	dockerexec "github.com/noah-isme/gema-autograder/pkg/docker"
)

// fakeRuntime mimics the DAW runtime: it reads the primed input and renders a song
// whose length depends on the requested name.
func fakeRuntime(t *testing.T, lengths map[string]int) dockerexec.ExecutorFunc {
	return func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
		data, err := os.ReadFile(filepath.Join(req.Workspace, InputFileName))
		require.NoError(t, err)

		var input []string
		require.NoError(t, json.Unmarshal(data, &input))
		require.Len(t, input, 1)

		length, ok := lengths[input[0]]
		if !ok {
			return dockerexec.ExecutionResult{Stdout: fmt.Sprintf("unknown song %q\n", input[0])}, nil
		}

		payload := fmt.Sprintf(`{"length": %d, "tracks": 2}`, length)
		require.NoError(t, os.WriteFile(filepath.Join(req.Workspace, ResultFileName), []byte(payload), 0o644))
		return dockerexec.ExecutionResult{Stdout: "rendered\n"}, nil
	}
}

func TestDockerSandboxReadsRenderedLength(t *testing.T) {
	box := New(fakeRuntime(t, map[string]int{"Alpha": 24}), Config{WorkspaceRoot: t.TempDir()}, zerolog.Nop())

	result, err := box.Run(context.Background(), autograder.Submission{Source: "print('hi')", Language: autograder.LanguagePython}, []string{"Alpha"})
	require.NoError(t, err)
	require.False(t, result.Error)
	require.Equal(t, 24, result.Length)
	require.Equal(t, "rendered", result.Console)
}

func TestDockerSandboxTreatsMissingResultAsEmptySong(t *testing.T) {
	box := New(fakeRuntime(t, nil), Config{WorkspaceRoot: t.TempDir()}, zerolog.Nop())

	result, err := box.Run(context.Background(), autograder.Submission{Source: "x", Language: autograder.LanguageJavaScript}, []string{autograder.BadInputProbe})
	require.NoError(t, err)
	require.False(t, result.Error)
	require.Zero(t, result.Length)
	require.Contains(t, result.Console, "unknown song")
}

func TestDockerSandboxWritesSourceForLanguage(t *testing.T) {
	var seen dockerexec.ExecutionRequest
	executor := dockerexec.ExecutorFunc(func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
		seen = req
		source, err := os.ReadFile(filepath.Join(req.Workspace, "main.js"))
		require.NoError(t, err)
		require.Equal(t, "makeBeat();", string(source))
		return dockerexec.ExecutionResult{}, nil
	})
	box := New(executor, Config{WorkspaceRoot: t.TempDir(), ExecutionTimeout: 3 * time.Second, MemoryLimitMB: 128}, zerolog.Nop())

	_, err := box.Run(context.Background(), autograder.Submission{Source: "makeBeat();", Language: autograder.LanguageJavaScript}, []string{"x"})
	require.NoError(t, err)
	require.True(t, seen.NetworkDisabled)
	require.Equal(t, 3*time.Second, seen.Timeout)
	require.Equal(t, int64(128), seen.MemoryLimitMB)
	require.Equal(t, []string{"earsketch-run", "main.js"}, seen.Cmd)
}

func TestDockerSandboxFlagsFailures(t *testing.T) {
	cases := map[string]dockerexec.ExecutorFunc{
		"non-zero exit": func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
			return dockerexec.ExecutionResult{ExitCode: 1, Stderr: "NameError: fitMedia"}, nil
		},
		"timeout": func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
			return dockerexec.ExecutionResult{TimedOut: true}, errors.New("execution timed out after 5s")
		},
		"timeout without error": func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
			return dockerexec.ExecutionResult{TimedOut: true}, nil
		},
		"corrupt result": func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
			require.NoError(t, os.WriteFile(filepath.Join(req.Workspace, ResultFileName), []byte("{"), 0o644))
			return dockerexec.ExecutionResult{}, nil
		},
	}

	for name, executor := range cases {
		t.Run(name, func(t *testing.T) {
			box := New(executor, Config{WorkspaceRoot: t.TempDir()}, zerolog.Nop())
			result, err := box.Run(context.Background(), autograder.Submission{Source: "x", Language: autograder.LanguagePython}, []string{"a"})
			require.NoError(t, err)
			require.True(t, result.Error)
			require.NotEmpty(t, result.Console)
		})
	}
}

func TestDockerSandboxReturnsInfrastructureErrors(t *testing.T) {
	executor := dockerexec.ExecutorFunc(func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
		return dockerexec.ExecutionResult{}, errors.New("container create: no such image")
	})
	box := New(executor, Config{WorkspaceRoot: t.TempDir()}, zerolog.Nop())

	_, err := box.Run(context.Background(), autograder.Submission{Source: "x", Language: autograder.LanguagePython}, []string{"a"})
	require.Error(t, err)

	_, err = box.Run(context.Background(), autograder.Submission{Source: "x", Language: "ruby"}, []string{"a"})
	require.ErrorIs(t, err, autograder.ErrUnsupportedLanguage)
}

func TestDockerSandboxCapsConsole(t *testing.T) {
	executor := dockerexec.ExecutorFunc(func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
		return dockerexec.ExecutionResult{Stdout: "0123456789"}, nil
	})
	box := New(executor, Config{WorkspaceRoot: t.TempDir(), MaxConsoleBytes: 4}, zerolog.Nop())

	result, err := box.Run(context.Background(), autograder.Submission{Source: "x", Language: autograder.LanguagePython}, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, "0123", result.Console)
}

func TestDockerSandboxCapsConsoleOnRuneBoundary(t *testing.T) {
	executor := dockerexec.ExecutorFunc(func(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
		return dockerexec.ExecutionResult{Stdout: "ab♪cd"}, nil
	})
	// "♪" is three bytes, so a 4 byte cap lands inside it
	box := New(executor, Config{WorkspaceRoot: t.TempDir(), MaxConsoleBytes: 4}, zerolog.Nop())

	result, err := box.Run(context.Background(), autograder.Submission{Source: "x", Language: autograder.LanguagePython}, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, "ab", result.Console)
	require.True(t, utf8.ValidString(result.Console))
}
