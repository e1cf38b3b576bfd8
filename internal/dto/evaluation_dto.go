package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/models"
)

// MaxSourceBytes bounds the size of a submitted script.
const MaxSourceBytes = 256 * 1024

// GradeRequest is the payload for grading a Musicode script.
type GradeRequest struct {
	Language     string   `json:"language" validate:"required"`
	Source       string   `json:"source" validate:"required,max=262144"`
	Assignment   string   `json:"assignment" validate:"omitempty,max=128"`
	GraderInputs []string `json:"grader_inputs" validate:"omitempty,len=4,dive,max=256"`
}

// EvaluationListRequest defines filters for listing evaluations.
type EvaluationListRequest struct {
	StudentID  uint   `query:"student_id"`
	Status     string `query:"status" validate:"omitempty,oneof=completed rejected failed"`
	Assignment string `query:"assignment" validate:"omitempty,max=128"`
	Page       int    `query:"page" validate:"omitempty,min=1"`
	PageSize   int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ReportResponse is a report delivered during the evaluation.
type ReportResponse struct {
	Category string          `json:"category"`
	Payload  json.RawMessage `json:"payload"`
}

// EvaluationResponse describes an evaluation to API consumers.
type EvaluationResponse struct {
	ID              uint              `json:"id"`
	Reference       string            `json:"reference"`
	StudentID       uint              `json:"student_id"`
	Assignment      string            `json:"assignment,omitempty"`
	Language        string            `json:"language"`
	Status          string            `json:"status"`
	Rubric          autograder.Rubric `json:"rubric"`
	Score           int               `json:"score"`
	ComplexityTotal float64           `json:"complexity_total"`
	Retried         bool              `json:"retried"`
	BadInputConsole string            `json:"bad_input_console,omitempty"`
	Error           string            `json:"error,omitempty"`
	Source          string            `json:"source,omitempty"`
	Reports         []ReportResponse  `json:"reports,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// EvaluationListResponse wraps a page of evaluations.
type EvaluationListResponse struct {
	Items      []EvaluationResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewEvaluationResponse builds a response DTO from a model.
func NewEvaluationResponse(evaluation models.Evaluation, includeSource bool) EvaluationResponse {
	response := EvaluationResponse{
		ID:         evaluation.ID,
		Reference:  evaluation.Reference,
		StudentID:  evaluation.StudentID,
		Assignment: evaluation.Assignment,
		Language:   evaluation.Language,
		Status:     evaluation.Status,
		Rubric: autograder.Rubric{
			HasSongList:     evaluation.HasSongList,
			SongsValid:      evaluation.SongsValid,
			RandomWorks:     evaluation.RandomWorks,
			SongLengths:     evaluation.SongLengths,
			HandlesBadInput: evaluation.HandlesBadInput,
			Complexity80:    evaluation.Complexity80,
		},
		Score:           evaluation.Score(),
		ComplexityTotal: evaluation.ComplexityTotal,
		Retried:         evaluation.Retried,
		BadInputConsole: evaluation.BadInputConsole,
		Error:           evaluation.Error,
		CreatedAt:       evaluation.CreatedAt,
	}

	if includeSource {
		response.Source = evaluation.Source
	}

	if len(evaluation.Reports) > 0 {
		reports := make([]ReportResponse, 0, len(evaluation.Reports))
		for _, report := range evaluation.Reports {
			reports = append(reports, ReportResponse{
				Category: report.Category,
				Payload:  json.RawMessage(report.Payload),
			})
		}
		response.Reports = reports
	}

	return response
}

// NewEvaluationResponseSlice converts a list of models.
func NewEvaluationResponseSlice(evaluations []models.Evaluation) []EvaluationResponse {
	items := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		items = append(items, NewEvaluationResponse(evaluation, false))
	}
	return items
}
