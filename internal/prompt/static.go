// Package prompt implements the human fallback used when a script's song names
// cannot be read from its source.
package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/gema-autograder/internal/autograder"
)

var (
	// ErrNoAnswers indicates a static prompter was asked for more answers than it holds.
	ErrNoAnswers = errors.New("not enough prepared answers")
	// ErrPromptNotFound indicates the prompt does not exist or was already answered.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrAnswerMismatch indicates the answer count differs from the field count.
	ErrAnswerMismatch = errors.New("answer count does not match prompt fields")
	// ErrPromptTimeout indicates nobody answered before the deadline.
	ErrPromptTimeout = errors.New("prompt timed out")
)

// StaticPrompter answers from a fixed list supplied up front, such as grader
// inputs attached to an upload.
type StaticPrompter struct {
	answers []string
}

// NewStaticPrompter returns a prompter that always answers with the given values.
func NewStaticPrompter(answers ...string) *StaticPrompter {
	return &StaticPrompter{answers: append([]string(nil), answers...)}
}

// Prompt returns one prepared answer per field.
func (p *StaticPrompter) Prompt(ctx context.Context, fields []string, _ autograder.Submission) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.answers) < len(fields) {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNoAnswers, len(fields), len(p.answers))
	}
	return append([]string(nil), p.answers[:len(fields)]...), nil
}
