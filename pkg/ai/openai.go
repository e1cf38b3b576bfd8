package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	feedbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autograder",
		Subsystem: "ai",
		Name:      "feedback_duration_seconds",
		Help:      "Duration of AI feedback requests",
	}, []string{"model"})

	feedbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autograder",
		Subsystem: "ai",
		Name:      "feedback_failures_total",
		Help:      "Number of AI feedback failures",
	}, []string{"model"})
)

// maxSuggestions bounds what is stored with an evaluation.
const maxSuggestions = 5

// OpenAIConfig defines configuration options for the OpenAI feedback writer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIFeedbackWriter implements FeedbackWriter against the chat completion API.
type OpenAIFeedbackWriter struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIFeedbackWriter builds a writer using the provided configuration.
func NewOpenAIFeedbackWriter(cfg OpenAIConfig) (*OpenAIFeedbackWriter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 600
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIFeedbackWriter{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-autograder/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_feedback").Logger(),
	}, nil
}

// Write asks the model for a JSON review of the graded script.
func (w *OpenAIFeedbackWriter) Write(parent context.Context, input FeedbackInput) (Feedback, error) {
	ctx, span := w.tracer.Start(parent, "openai.feedback", trace.WithAttributes(
		attribute.String("model", w.cfg.Model),
		attribute.String("language", input.Language),
	))
	defer span.End()

	fail := func(err error) (Feedback, error) {
		feedbackFailures.WithLabelValues(w.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Feedback{}, err
	}

	start := time.Now()
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       w.cfg.Model,
		MaxTokens:   w.cfg.MaxTokens,
		Temperature: w.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: feedbackSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildFeedbackPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	feedbackDuration.WithLabelValues(w.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(fmt.Errorf("openai feedback: %w", err))
	}

	if len(resp.Choices) == 0 {
		return fail(fmt.Errorf("no choices returned from openai"))
	}

	feedback, err := parseFeedback(resp.Choices[0].Message.Content)
	if err != nil {
		return fail(err)
	}
	feedback.Model = w.cfg.Model

	w.logger.Debug().Int("suggestions", len(feedback.Suggestions)).Int("tokens", resp.Usage.TotalTokens).Msg("feedback written")
	return feedback, nil
}

const feedbackSystemPrompt = "You review EarSketch Musicode assignments written by beginner programmers. The student " +
	"script asks the user for three song names and a random choice, then builds a song. Respond with a JSON object " +
	"containing summary (two or three sentences) and suggestions (an array of short, concrete improvements). Be encouraging."

func buildFeedbackPrompt(input FeedbackInput) string {
	builder := strings.Builder{}
	builder.WriteString("## Language\n")
	builder.WriteString(input.Language)

	builder.WriteString("\n\n## Rubric\n")
	keys := make([]string, 0, len(input.Rubric))
	for key := range input.Rubric {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&builder, "- %s: %v\n", key, input.Rubric[key])
	}

	fmt.Fprintf(&builder, "\n## Complexity (total %.0f)\n", input.ComplexityTotal)
	features := make([]string, 0, len(input.Complexity))
	for feature := range input.Complexity {
		features = append(features, feature)
	}
	sort.Strings(features)
	for _, feature := range features {
		fmt.Fprintf(&builder, "- %s: %d\n", feature, input.Complexity[feature])
	}

	if input.BadInputConsole != "" {
		builder.WriteString("\n## Console output for an unknown song name\n")
		builder.WriteString(input.BadInputConsole)
	}

	builder.WriteString("\n\n## Script\n")
	builder.WriteString(input.Source)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseFeedback(content string) (Feedback, error) {
	var feedback Feedback
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &feedback); err != nil {
		return Feedback{}, fmt.Errorf("parse feedback json: %w", err)
	}

	feedback.Summary = strings.TrimSpace(feedback.Summary)
	if feedback.Summary == "" {
		return Feedback{}, fmt.Errorf("feedback summary is empty")
	}

	suggestions := feedback.Suggestions[:0]
	for _, suggestion := range feedback.Suggestions {
		if trimmed := strings.TrimSpace(suggestion); trimmed != "" {
			suggestions = append(suggestions, trimmed)
		}
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	feedback.Suggestions = suggestions

	return feedback, nil
}
