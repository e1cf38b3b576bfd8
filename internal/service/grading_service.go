package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/internal/observability"
	"github.com/noah-isme/gema-autograder/internal/prompt"
	"github.com/noah-isme/gema-autograder/internal/report"
	"github.com/noah-isme/gema-autograder/internal/repository"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

// CategoryFeedback is the report category for narrative AI feedback.
const CategoryFeedback = "feedback"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	// ErrSubmissionRejected indicates the script cannot be autograded as written.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrEvaluationNotFound indicates the evaluation cannot be located.
	ErrEvaluationNotFound = errors.New("evaluation not found")
	// ErrEvaluationForbidden indicates the caller may not view the evaluation.
	ErrEvaluationForbidden = errors.New("forbidden")
)

// GradingService grades Musicode scripts and keeps their history.
type GradingService interface {
	Grade(ctx context.Context, studentID uint, payload dto.GradeRequest) (dto.EvaluationResponse, error)
	Get(ctx context.Context, id uint, viewerID uint, role string) (dto.EvaluationResponse, error)
	List(ctx context.Context, request dto.EvaluationListRequest) (dto.EvaluationListResponse, error)
}

// GradingDependencies groups the collaborators shared by every evaluation.
type GradingDependencies struct {
	Sandbox  autograder.Sandbox
	Meter    autograder.ComplexityMeter
	Prompter autograder.Prompter
	Sinks    []report.Sink
	Feedback ai.FeedbackWriter
}

type gradingService struct {
	evaluations repository.EvaluationRepository
	deps        GradingDependencies
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the grading service. A nil prompter means scripts whose
// song list cannot be read are graded without grader input.
func NewGradingService(repo repository.EvaluationRepository, deps GradingDependencies, validate *validator.Validate, logger zerolog.Logger) GradingService {
	if deps.Prompter == nil {
		deps.Prompter = prompt.NewStaticPrompter()
	}

	return &gradingService{
		evaluations: repo,
		deps:        deps,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-autograder/internal/service/grading"),
		now:         time.Now,
	}
}

func (s *gradingService) Grade(ctx context.Context, studentID uint, payload dto.GradeRequest) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EvaluationResponse{}, err
	}

	language, err := autograder.ParseLanguage(payload.Language)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	reference := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.String("evaluation.reference", reference),
		attribute.String("evaluation.language", string(language)),
	))
	defer span.End()

	logger := s.logger.With().
		Str("evaluation", reference).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Uint("student_id", studentID).
		Logger()

	recorder := report.NewRecorder()
	dispatcher := report.NewDispatcher(reference, append([]report.Sink{recorder}, s.deps.Sinks...)...)

	prompter := s.deps.Prompter
	if len(payload.GraderInputs) > 0 {
		prompter = prompt.NewStaticPrompter(payload.GraderInputs...)
	}

	evaluator, err := autograder.NewEvaluator(autograder.Dependencies{
		Sandbox:  s.deps.Sandbox,
		Prompter: prompter,
		Meter:    s.deps.Meter,
		Reporter: dispatcher,
	}, logger)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	submission := autograder.Submission{Source: payload.Source, Language: language}
	evaluation := models.Evaluation{
		Reference:  reference,
		StudentID:  studentID,
		Assignment: strings.TrimSpace(payload.Assignment),
		Language:   string(language),
		Source:     payload.Source,
	}

	start := s.now()
	result, evalErr := evaluator.Evaluate(ctx, submission)
	observability.EvaluationDuration().WithLabelValues(string(language)).Observe(s.now().Sub(start).Seconds())

	switch {
	case errors.Is(evalErr, autograder.ErrMalformedSubmission):
		evaluation.Status = models.EvaluationStatusRejected
		evaluation.Error = evalErr.Error()
	case evalErr != nil && !errors.Is(evalErr, autograder.ErrReportFailed):
		evaluation.Status = models.EvaluationStatusFailed
		evaluation.Error = evalErr.Error()
	default:
		evaluation.Status = models.EvaluationStatusCompleted
		if evalErr != nil {
			// the in-memory recorder always holds the reports, only an external sink failed
			logger.Warn().Err(evalErr).Msg("report delivery partially failed")
			evaluation.Error = evalErr.Error()
		}
		s.applyResult(&evaluation, result)
		s.attachFeedback(ctx, logger, dispatcher, submission, result)
	}

	evaluation.Reports = reportsFromEnvelopes(recorder.Envelopes())

	if err := s.evaluations.Create(ctx, &evaluation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.EvaluationResponse{}, fmt.Errorf("persist evaluation: %w", err)
	}

	observability.Evaluations().WithLabelValues(evaluation.Language, evaluation.Status).Inc()
	if evaluation.Retried {
		observability.EvaluationRetries().Inc()
	}

	response := dto.NewEvaluationResponse(evaluation, true)
	logger.Info().Str("status", evaluation.Status).Int("score", evaluation.Score()).Msg("evaluation finished")

	if evaluation.Status == models.EvaluationStatusRejected {
		span.SetStatus(codes.Error, "submission rejected")
		return response, fmt.Errorf("%w: %w", ErrSubmissionRejected, evalErr)
	}

	observability.RubricPoints().WithLabelValues(evaluation.Language).Observe(float64(evaluation.Score()))
	return response, nil
}

func (s *gradingService) applyResult(evaluation *models.Evaluation, result autograder.Result) {
	evaluation.HasSongList = result.Rubric.HasSongList
	evaluation.SongsValid = result.Rubric.SongsValid
	evaluation.RandomWorks = result.Rubric.RandomWorks
	evaluation.SongLengths = result.Rubric.SongLengths
	evaluation.HandlesBadInput = result.Rubric.HandlesBadInput
	evaluation.Complexity80 = result.Rubric.Complexity80
	evaluation.ComplexityTotal = result.Complexity.Total
	evaluation.Retried = result.Retried
	evaluation.BadInputConsole = strings.TrimSpace(s.sanitizer.Sanitize(result.BadInputConsole))
}

// attachFeedback asks the AI reviewer for comments. Failures never affect the grade.
func (s *gradingService) attachFeedback(ctx context.Context, logger zerolog.Logger, reporter autograder.Reporter, submission autograder.Submission, result autograder.Result) {
	if s.deps.Feedback == nil {
		return
	}

	rubric := map[string]interface{}{}
	if data, err := json.Marshal(result.Rubric); err == nil {
		_ = json.Unmarshal(data, &rubric)
	}

	feedback, err := s.deps.Feedback.Write(ctx, ai.FeedbackInput{
		Language:        string(submission.Language),
		Source:          submission.Source,
		Rubric:          rubric,
		Complexity:      result.Complexity.Features,
		ComplexityTotal: result.Complexity.Total,
		BadInputConsole: result.BadInputConsole,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("ai feedback unavailable")
		return
	}

	if err := reporter.Report(ctx, CategoryFeedback, feedback); err != nil {
		logger.Warn().Err(err).Msg("failed to report ai feedback")
	}
}

func reportsFromEnvelopes(envelopes []report.Envelope) []models.EvaluationReport {
	reports := make([]models.EvaluationReport, 0, len(envelopes))
	for _, envelope := range envelopes {
		reports = append(reports, models.EvaluationReport{
			Category: envelope.Category,
			Payload:  datatypes.JSON(envelope.Payload),
		})
	}
	return reports
}

func (s *gradingService) Get(ctx context.Context, id uint, viewerID uint, role string) (dto.EvaluationResponse, error) {
	evaluation, err := s.evaluations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrEvaluationNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	if !canView(viewerID, role, evaluation) {
		return dto.EvaluationResponse{}, ErrEvaluationForbidden
	}

	return dto.NewEvaluationResponse(evaluation, true), nil
}

func (s *gradingService) List(ctx context.Context, request dto.EvaluationListRequest) (dto.EvaluationListResponse, error) {
	if err := s.validator.Struct(request); err != nil {
		return dto.EvaluationListResponse{}, err
	}

	page := request.Page
	if page <= 0 {
		page = 1
	}
	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	evaluations, total, err := s.evaluations.List(ctx, repository.EvaluationQuery{
		StudentID:  request.StudentID,
		Status:     request.Status,
		Assignment: request.Assignment,
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		return dto.EvaluationListResponse{}, err
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return dto.EvaluationListResponse{
		Items: dto.NewEvaluationResponseSlice(evaluations),
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

func canView(viewerID uint, role string, evaluation models.Evaluation) bool {
	if viewerID != 0 && viewerID == evaluation.StudentID {
		return true
	}
	return middleware.IsStaff(role)
}
