package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/sandbox"
	dockerexec "github.com/noah-isme/gema-autograder/pkg/docker"
)

// sandboxFactory builds the sandbox used by grade and returns a cleanup func.
type sandboxFactory func(cfg config.Config, logger zerolog.Logger) (autograder.Sandbox, func() error, error)

type cli struct {
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	newSandbox sandboxFactory

	verbose bool
	dbPath  string
}

func main() {
	c := &cli{
		in:         os.Stdin,
		out:        os.Stdout,
		errOut:     os.Stderr,
		newSandbox: dockerSandbox,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autograder",
		Short: "Grade Musicode scripts against the EarSketch rubric",
		Long: `Grade Musicode scripts against the EarSketch rubric.

Available commands:
  grade      - run a script in the sandbox and print its rubric
  complexity - print the code complexity features of a script
  history    - list evaluations stored in a local database
  profiles   - list the complexity scoring profiles`,
		SilenceUsage: true,
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite file that keeps evaluation history")

	root.AddCommand(c.gradeCmd())
	root.AddCommand(c.complexityCmd())
	root.AddCommand(c.historyCmd())
	root.AddCommand(c.profilesCmd())
	return root
}

func (c *cli) logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: c.errOut, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func dockerSandbox(cfg config.Config, logger zerolog.Logger) (autograder.Sandbox, func() error, error) {
	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("docker unavailable: %w", err)
	}

	runner := sandbox.New(executor, sandbox.Config{
		ExecutionTimeout: cfg.ExecutionTimeout,
		MemoryLimitMB:    cfg.CodeRunMemoryMB,
		CPUShares:        cfg.CodeRunCPUShares,
		WorkspaceRoot:    cfg.WorkspaceRoot,
		Runtimes:         sandbox.DefaultRuntimes(cfg.PythonImage, cfg.JavaScriptImage),
	}, logger)
	return runner, executor.Close, nil
}
