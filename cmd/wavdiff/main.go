package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-autograder/internal/wavdiff"
)

var errNotIdentical = errors.New("recordings are not identical")

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		if !errors.Is(err, errNotIdentical) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wavdiff <filename> <filename>",
		Short:         "Compares two wav files",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wavdiff.DecodeFile(args[0])
			if err != nil {
				return err
			}
			b, err := wavdiff.DecodeFile(args[1])
			if err != nil {
				return err
			}

			result := wavdiff.Compare(a, b)
			if result.Note != "" {
				color.New(color.FgYellow).Fprintln(out, result.Note)
			}

			if result.Verdict == wavdiff.Different {
				color.New(color.FgRed).Fprintln(out, result.Message)
				return errNotIdentical
			}
			color.New(color.FgGreen).Fprintln(out, result.Message)
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd
}
