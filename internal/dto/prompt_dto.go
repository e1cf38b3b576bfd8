package dto

import (
	"time"

	"github.com/noah-isme/gema-autograder/internal/prompt"
)

// PromptResponse is a pending request for grader input.
type PromptResponse struct {
	ID        string    `json:"id"`
	Fields    []string  `json:"fields"`
	Language  string    `json:"language"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptAnswerRequest carries a grader's answers, one per field.
type PromptAnswerRequest struct {
	Answers []string `json:"answers" validate:"required,min=1,dive,max=256"`
}

// NewPromptResponse converts a queued prompt.
func NewPromptResponse(request prompt.Request) PromptResponse {
	return PromptResponse{
		ID:        request.ID,
		Fields:    request.Fields,
		Language:  request.Language,
		Source:    request.Source,
		CreatedAt: request.CreatedAt,
	}
}

// NewPromptResponseSlice converts a list of queued prompts.
func NewPromptResponseSlice(requests []prompt.Request) []PromptResponse {
	items := make([]PromptResponse, 0, len(requests))
	for _, request := range requests {
		items = append(items, NewPromptResponse(request))
	}
	return items
}
