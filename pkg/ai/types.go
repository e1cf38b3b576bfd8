package ai

import "context"

// FeedbackInput carries what a reviewer needs to comment on a graded Musicode script.
type FeedbackInput struct {
	Language        string
	Source          string
	Rubric          map[string]interface{}
	Complexity      map[string]int
	ComplexityTotal float64
	BadInputConsole string
}

// Feedback is the narrative review attached to an evaluation.
type Feedback struct {
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
	Model       string   `json:"model,omitempty"`
}

// FeedbackWriter produces narrative feedback for a graded submission.
type FeedbackWriter interface {
	Write(ctx context.Context, input FeedbackInput) (Feedback, error)
}
