package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/complexity"
	"github.com/noah-isme/gema-autograder/internal/repository"
)

func (c *cli) complexityCmd() *cobra.Command {
	var (
		language string
		profile  string
	)

	cmd := &cobra.Command{
		Use:   "complexity <file>",
		Short: "Print the code complexity features of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			if language == "" {
				language = languageFromPath(args[0])
			}
			lang, err := autograder.ParseLanguage(language)
			if err != nil {
				return err
			}

			analyzer := complexity.NewAnalyzer(c.logger(), nil)
			score, err := analyzer.Measure(cmd.Context(), autograder.Submission{Source: string(source), Language: lang}, profile)
			if err != nil {
				return err
			}

			features := make([]string, 0, len(score.Features))
			for feature := range score.Features {
				features = append(features, feature)
			}
			sort.Strings(features)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, feature := range features {
				fmt.Fprintf(w, "%s\t%d\n", feature, score.Features[feature])
			}
			fmt.Fprintf(w, "total (%s)\t%.1f\n", score.Profile, score.Total)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Script language; inferred from the extension when empty")
	cmd.Flags().StringVar(&profile, "profile", autograder.ComplexityProfile, "Scoring profile")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		studentID uint
		status    string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List evaluations stored in a local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.dbPath == "" {
				return errors.New("--db is required")
			}
			db, err := c.openDB()
			if err != nil {
				return err
			}

			evaluations, total, err := repository.NewEvaluationRepository(db).List(cmd.Context(), repository.EvaluationQuery{
				StudentID: studentID,
				Status:    status,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTUDENT\tLANGUAGE\tSTATUS\tSCORE\tCREATED")
			for _, evaluation := range evaluations {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d/7\t%s\n",
					evaluation.ID,
					evaluation.StudentID,
					evaluation.Language,
					evaluation.Status,
					evaluation.Score(),
					evaluation.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d evaluations\n", len(evaluations), total)
			return nil
		},
	}

	cmd.Flags().UintVar(&studentID, "student", 0, "Only show this student")
	cmd.Flags().StringVar(&status, "status", "", "Only show completed, rejected or failed evaluations")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}

func (c *cli) profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the complexity scoring profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer := complexity.NewAnalyzer(c.logger(), nil)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range analyzer.Profiles() {
				weights, _ := analyzer.Weights(name)
				features := make([]string, 0, len(weights))
				for feature := range weights {
					features = append(features, feature)
				}
				sort.Strings(features)

				fmt.Fprintf(w, "%s\tthreshold %d\n", name, autograder.ComplexityThreshold)
				for _, feature := range features {
					fmt.Fprintf(w, "  %s\t%g\n", feature, weights[feature])
				}
			}
			return w.Flush()
		},
	}
}
