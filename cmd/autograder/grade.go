package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/complexity"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/database"
	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/prompt"
	"github.com/noah-isme/gema-autograder/internal/report"
	"github.com/noah-isme/gema-autograder/internal/repository"
	"github.com/noah-isme/gema-autograder/internal/service"
)

func (c *cli) gradeCmd() *cobra.Command {
	var (
		language   string
		assignment string
		inputs     []string
		studentID  uint
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "grade <file>",
		Short: "Run a script in the sandbox and print its rubric",
		Long: `Run a Musicode script in the language sandbox and print its rubric.

When no song list can be read from the source, the grader is asked for three
song names and a random keyword on the terminal, unless --inputs supplies them.
The command exits non-zero when the script cannot be autograded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}

			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			if language == "" {
				language = languageFromPath(args[0])
			}

			logger := c.logger()

			db, err := c.openDB()
			if err != nil {
				return err
			}

			runner, cleanup, err := c.newSandbox(cfg, logger)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}

			grading := service.NewGradingService(repository.NewEvaluationRepository(db), service.GradingDependencies{
				Sandbox:  runner,
				Meter:    complexity.NewAnalyzer(logger, nil),
				Prompter: prompt.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()),
				Sinks:    []report.Sink{report.NewLogSink(logger)},
			}, validator.New(validator.WithRequiredStructEnabled()), logger)

			response, gradeErr := grading.Grade(cmd.Context(), studentID, dto.GradeRequest{
				Language:     language,
				Source:       string(source),
				Assignment:   assignment,
				GraderInputs: inputs,
			})
			if gradeErr != nil && !errors.Is(gradeErr, service.ErrSubmissionRejected) {
				return gradeErr
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(response); err != nil {
					return err
				}
			} else {
				printEvaluation(cmd.OutOrStdout(), filepath.Base(args[0]), response)
			}

			return gradeErr
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Script language (python or javascript); inferred from the extension when empty")
	cmd.Flags().StringVar(&assignment, "assignment", "musicode", "Assignment label stored with the evaluation")
	cmd.Flags().StringSliceVar(&inputs, "inputs", nil, "Three song names and a random keyword, skipping the terminal prompt")
	cmd.Flags().UintVar(&studentID, "student", 0, "Student id stored with the evaluation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the evaluation as JSON")
	return cmd
}

// openDB opens the history database, or a private in-memory one when --db is unset.
func (c *cli) openDB() (*gorm.DB, error) {
	path := c.dbPath
	if path == "" {
		path = "file::memory:"
	}

	db, err := database.ConnectSQLite(path)
	if err != nil {
		return nil, err
	}
	if c.dbPath == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}

func languageFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return string(autograder.LanguagePython)
	case ".js":
		return string(autograder.LanguageJavaScript)
	default:
		return ""
	}
}

func printEvaluation(out io.Writer, name string, evaluation dto.EvaluationResponse) {
	heading := color.New(color.FgCyan, color.Bold)
	pass := color.New(color.FgGreen)
	fail := color.New(color.FgRed)

	heading.Fprintf(out, "%s (%s): %s\n", name, evaluation.Language, evaluation.Status)
	if evaluation.Error != "" {
		fail.Fprintf(out, "  %s\n", evaluation.Error)
	}
	if evaluation.Status != "completed" {
		return
	}

	mark := func(value int) string {
		if value > 0 {
			return pass.Sprint(value)
		}
		return fail.Sprint(value)
	}

	rubric := evaluation.Rubric
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  has_song_list\t%s\n", mark(rubric.HasSongList))
	fmt.Fprintf(w, "  songs_valid\t%s\tlengths: %s\n", mark(rubric.SongsValid), rubric.SongLengths)
	fmt.Fprintf(w, "  random_works\t%s\n", mark(rubric.RandomWorks))
	fmt.Fprintf(w, "  handles_bad_input\t%s\n", mark(rubric.HandlesBadInput))
	fmt.Fprintf(w, "  complexity80\t%s\ttotal: %.1f\n", mark(rubric.Complexity80), evaluation.ComplexityTotal)
	_ = w.Flush()

	if evaluation.Retried {
		fmt.Fprintln(out, "  song list did not verify; graded with grader inputs")
	}
	heading.Fprintf(out, "Score: %d/7\n", evaluation.Score)
}
