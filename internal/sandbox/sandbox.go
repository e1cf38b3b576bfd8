package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	dockerexec "github.com/noah-isme/gema-autograder/pkg/docker"
)

const (
	// InputFileName holds the JSON array consumed by the runtime's readInput() shim.
	InputFileName = "input.json"
	// ResultFileName is written by the runtime once the DAW has rendered the song.
	ResultFileName = "daw.json"

	defaultMaxConsoleBytes = 64 * 1024
)

// Runtime describes the container image that executes one language.
type Runtime struct {
	Image    string
	FileName string
	Command  []string
}

// Config describes execution configuration knobs.
type Config struct {
	ExecutionTimeout time.Duration
	MemoryLimitMB    int
	CPUShares        int
	WorkspaceRoot    string
	MaxConsoleBytes  int
	Runtimes         map[autograder.Language]Runtime
}

// DefaultRuntimes returns the runtime table for the supported languages.
func DefaultRuntimes(pythonImage, javascriptImage string) map[autograder.Language]Runtime {
	if pythonImage == "" {
		pythonImage = "earsketch/runtime-python:latest"
	}
	if javascriptImage == "" {
		javascriptImage = "earsketch/runtime-javascript:latest"
	}
	return map[autograder.Language]Runtime{
		autograder.LanguagePython: {
			Image:    pythonImage,
			FileName: "main.py",
			Command:  []string{"earsketch-run", "main.py"},
		},
		autograder.LanguageJavaScript: {
			Image:    javascriptImage,
			FileName: "main.js",
			Command:  []string{"earsketch-run", "main.js"},
		},
	}
}

// dawResult is the summary the runtime writes after rendering.
type dawResult struct {
	Length int `json:"length"`
	Tracks int `json:"tracks"`
}

// DockerSandbox runs submissions inside the language runtime containers.
type DockerSandbox struct {
	executor dockerexec.Executor
	config   Config
	logger   zerolog.Logger
}

// New constructs a sandbox on top of the executor.
func New(executor dockerexec.Executor, cfg Config, logger zerolog.Logger) *DockerSandbox {
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.MaxConsoleBytes <= 0 {
		cfg.MaxConsoleBytes = defaultMaxConsoleBytes
	}
	if len(cfg.Runtimes) == 0 {
		cfg.Runtimes = DefaultRuntimes("", "")
	}

	return &DockerSandbox{
		executor: executor,
		config:   cfg,
		logger:   logger.With().Str("component", "docker_sandbox").Logger(),
	}
}

// Run executes the submission once with input primed for readInput(). Failures of the
// student program come back as an error-flagged result; only infrastructure faults
// return an error.
func (s *DockerSandbox) Run(ctx context.Context, submission autograder.Submission, input []string) (autograder.CompileResult, error) {
	runtime, ok := s.config.Runtimes[submission.Language]
	if !ok {
		return autograder.CompileResult{}, autograder.ErrUnsupportedLanguage
	}

	workspace, err := os.MkdirTemp(s.config.WorkspaceRoot, "musicode-")
	if err != nil {
		return autograder.CompileResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := prepareWorkspace(workspace, runtime.FileName, submission.Source, input); err != nil {
		return autograder.CompileResult{}, err
	}

	result, execErr := s.executor.Run(ctx, dockerexec.ExecutionRequest{
		Image:           runtime.Image,
		Cmd:             runtime.Command,
		Timeout:         s.config.ExecutionTimeout,
		Workspace:       workspace,
		WorkingDir:      "/workspace",
		MemoryLimitMB:   int64(s.config.MemoryLimitMB),
		CPUShares:       int64(s.config.CPUShares),
		NetworkDisabled: true,
	})
	if execErr != nil && !result.TimedOut {
		return autograder.CompileResult{}, execErr
	}

	compiled := autograder.CompileResult{
		Console: s.console(result.Stdout, result.Stderr),
	}

	switch {
	case result.TimedOut:
		compiled.Error = true
		reason := "execution timed out"
		if execErr != nil {
			reason = execErr.Error()
		}
		compiled.Console = appendLine(compiled.Console, reason)
	case result.ExitCode != 0:
		compiled.Error = true
	default:
		daw, err := readResult(filepath.Join(workspace, ResultFileName))
		if err != nil {
			s.logger.Warn().Err(err).Msg("runtime produced an unreadable result")
			compiled.Error = true
			compiled.Console = appendLine(compiled.Console, err.Error())
			break
		}
		compiled.Length = daw.Length
	}

	s.logger.Debug().
		Str("language", string(submission.Language)).
		Int("exit_code", result.ExitCode).
		Bool("timed_out", result.TimedOut).
		Int("length", compiled.Length).
		Dur("duration", result.Duration).
		Msg("sandbox run finished")

	return compiled, nil
}

func prepareWorkspace(workspace, fileName, source string, input []string) error {
	if err := os.WriteFile(filepath.Join(workspace, fileName), []byte(source), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}

	if input == nil {
		input = []string{}
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, InputFileName), payload, 0o644); err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	return nil
}

// readResult loads daw.json. A script that exits cleanly without rendering has length 0.
func readResult(path string) (dawResult, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return dawResult{}, nil
	}
	if err != nil {
		return dawResult{}, fmt.Errorf("read %s: %w", ResultFileName, err)
	}

	var daw dawResult
	if err := json.Unmarshal(data, &daw); err != nil {
		return dawResult{}, fmt.Errorf("decode %s: %w", ResultFileName, err)
	}
	if daw.Length < 0 {
		daw.Length = 0
	}
	return daw, nil
}

func (s *DockerSandbox) console(stdout, stderr string) string {
	console := appendLine(strings.TrimSpace(stdout), strings.TrimSpace(stderr))
	if len(console) > s.config.MaxConsoleBytes {
		cut := s.config.MaxConsoleBytes
		for cut > 0 && !utf8.RuneStart(console[cut]) {
			cut--
		}
		console = console[:cut]
	}
	return console
}

func appendLine(text, line string) string {
	switch {
	case line == "":
		return text
	case text == "":
		return line
	default:
		return text + "\n" + line
	}
}
