package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-autograder/internal/deploy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg deploy.Config
	var apiURL string

	cmd := &cobra.Command{
		Use:   "deploy <git-user> <github-token> <commit-sha> <pr-N>",
		Short: "Create a GitHub review deployment for a pull request build",
		Long: `Create a GitHub deployment for the review-N environment of a pull request
and mark it successful with the URL the build is served from.`,
		Args:         cobra.ExactArgs(4),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()

			client, err := deploy.NewClient(args[0], args[1], apiURL)
			if err != nil {
				return err
			}

			result, err := deploy.New(client, cfg, logger).Deploy(cmd.Context(), args[2], args[3])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deployment %d: %s -> %s\n", result.DeploymentID, result.Environment, result.EnvironmentURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Owner, "owner", deploy.DefaultOwner, "Repository owner")
	cmd.Flags().StringVar(&cfg.Repo, "repo", deploy.DefaultRepo, "Repository name")
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", deploy.DefaultBaseURL, "Host serving review builds")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "GitHub API endpoint (defaults to api.github.com)")
	return cmd
}
