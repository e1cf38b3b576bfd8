package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/noah-isme/gema-autograder/internal/autograder"
)

// TerminalPrompter shows the script to a grader on a terminal and reads one line per field.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer

	heading *color.Color
	label   *color.Color
}

// NewTerminalPrompter reads answers from in and writes the script and field labels to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:      bufio.NewReader(in),
		out:     out,
		heading: color.New(color.FgCyan, color.Bold),
		label:   color.New(color.FgYellow),
	}
}

// Prompt prints the submission then asks for each field in order.
func (p *TerminalPrompter) Prompt(ctx context.Context, fields []string, submission autograder.Submission) ([]string, error) {
	p.heading.Fprintf(p.out, "Song names could not be detected (%s)\n", submission.Language)
	fmt.Fprintln(p.out, strings.Repeat("-", 60))
	fmt.Fprintln(p.out, submission.Source)
	fmt.Fprintln(p.out, strings.Repeat("-", 60))

	answers := make([]string, 0, len(fields))
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.label.Fprintf(p.out, "%s: ", field)
		line, err := p.in.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return nil, fmt.Errorf("read %s: %w", field, err)
		}
		answers = append(answers, strings.TrimSpace(line))
	}
	return answers, nil
}
