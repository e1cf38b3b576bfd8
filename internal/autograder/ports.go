package autograder

import "context"

// Sandbox compiles and runs a submission once with the given captured input.
type Sandbox interface {
	Run(ctx context.Context, submission Submission, input []string) (CompileResult, error)
}

// Prompter asks a human grader for one value per field, in order.
type Prompter interface {
	Prompt(ctx context.Context, fields []string, submission Submission) ([]string, error)
}

// ComplexityMeter scores a submission under a named profile.
type ComplexityMeter interface {
	Measure(ctx context.Context, submission Submission, profile string) (ComplexityScore, error)
}

// Reporter delivers one named payload to the grading sink.
type Reporter interface {
	Report(ctx context.Context, category string, payload any) error
}
