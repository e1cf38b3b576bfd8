package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/observability"
	"github.com/noah-isme/gema-autograder/internal/prompt"
)

// ErrPromptsUnavailable indicates the service runs without a prompt queue.
var ErrPromptsUnavailable = errors.New("prompt queue unavailable")

// PromptQueue is the part of the Redis prompter exposed to graders.
type PromptQueue interface {
	Pending(ctx context.Context) ([]prompt.Request, error)
	Answer(ctx context.Context, id string, answers []string) error
	Subscribe(ctx context.Context) (<-chan prompt.Event, error)
}

// PromptService lets graders see and answer the prompts raised by running evaluations.
type PromptService interface {
	Pending(ctx context.Context) ([]dto.PromptResponse, error)
	Answer(ctx context.Context, id string, payload dto.PromptAnswerRequest) error
	Subscribe(ctx context.Context) (<-chan prompt.Event, error)
}

type promptService struct {
	queue     PromptQueue
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPromptService constructs the prompt service. queue may be nil when Redis is not configured.
func NewPromptService(queue PromptQueue, validate *validator.Validate, logger zerolog.Logger) PromptService {
	return &promptService{
		queue:     queue,
		validator: validate,
		logger:    logger.With().Str("component", "prompt_service").Logger(),
	}
}

func (s *promptService) Pending(ctx context.Context) ([]dto.PromptResponse, error) {
	if s.queue == nil {
		return nil, ErrPromptsUnavailable
	}

	requests, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewPromptResponseSlice(requests), nil
}

func (s *promptService) Answer(ctx context.Context, id string, payload dto.PromptAnswerRequest) error {
	if s.queue == nil {
		return ErrPromptsUnavailable
	}
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	if err := s.queue.Answer(ctx, id, payload.Answers); err != nil {
		return err
	}

	observability.PromptsAnswered().Inc()
	s.logger.Info().Str("prompt_id", id).Msg("prompt answered")
	return nil
}

func (s *promptService) Subscribe(ctx context.Context) (<-chan prompt.Event, error) {
	if s.queue == nil {
		return nil, ErrPromptsUnavailable
	}
	return s.queue.Subscribe(ctx)
}
