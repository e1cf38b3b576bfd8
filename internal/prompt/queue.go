package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/autograder"
)

const (
	EventCreated  = "prompt.created"
	EventAnswered = "prompt.answered"
	EventExpired  = "prompt.expired"

	defaultPromptTimeout = 10 * time.Minute
	defaultPrefix        = "gema"
)

// Request is a prompt waiting for a grader.
type Request struct {
	ID        string    `json:"id"`
	Fields    []string  `json:"fields"`
	Source    string    `json:"source"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is broadcast whenever a prompt changes state.
type Event struct {
	Type     string    `json:"type"`
	PromptID string    `json:"prompt_id"`
	Prompt   *Request  `json:"prompt,omitempty"`
	At       time.Time `json:"at"`
}

// QueueConfig tunes the Redis backed prompter.
type QueueConfig struct {
	Prefix  string
	Timeout time.Duration
}

// QueuePrompter parks prompts in Redis until a grader answers them over the API.
// All state lives in Redis so any API instance can answer any prompt.
type QueuePrompter struct {
	redis   *redis.Client
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewQueuePrompter constructs a Redis backed prompter.
func NewQueuePrompter(client *redis.Client, cfg QueueConfig, logger zerolog.Logger) *QueuePrompter {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPromptTimeout
	}
	return &QueuePrompter{
		redis:   client,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "queue_prompter").Logger(),
		now:     time.Now,
	}
}

func (q *QueuePrompter) promptKey(id string) string  { return fmt.Sprintf("%s:prompt:%s", q.prefix, id) }
func (q *QueuePrompter) answersKey(id string) string { return q.promptKey(id) + ":answers" }
func (q *QueuePrompter) pendingKey() string          { return q.prefix + ":prompts:pending" }

// EventsChannel is the pub/sub channel carrying prompt events.
func (q *QueuePrompter) EventsChannel() string { return q.prefix + ":prompts:events" }

// Prompt enqueues a request and blocks until it is answered, the timeout elapses or ctx ends.
func (q *QueuePrompter) Prompt(ctx context.Context, fields []string, submission autograder.Submission) ([]string, error) {
	request := Request{
		ID:        uuid.NewString(),
		Fields:    append([]string(nil), fields...),
		Source:    submission.Source,
		Language:  string(submission.Language),
		CreatedAt: q.now().UTC(),
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	// the record outlives the wait slightly so a late answer still gets a clean not-found
	ttl := q.timeout + time.Minute
	pipe := q.redis.TxPipeline()
	pipe.Set(ctx, q.promptKey(request.ID), payload, ttl)
	pipe.SAdd(ctx, q.pendingKey(), request.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue prompt: %w", err)
	}
	defer q.cleanup(request.ID)

	q.publish(ctx, Event{Type: EventCreated, PromptID: request.ID, Prompt: &request})
	q.logger.Info().Str("prompt_id", request.ID).Int("fields", len(fields)).Msg("waiting for grader input")

	result, err := q.redis.BLPop(ctx, q.timeout, q.answersKey(request.ID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		q.publish(context.Background(), Event{Type: EventExpired, PromptID: request.ID})
		return nil, fmt.Errorf("%w after %s", ErrPromptTimeout, q.timeout)
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("wait for answers: %w", err)
	}

	// BLPOP replies with [key, value]
	var answers []string
	if err := json.Unmarshal([]byte(result[1]), &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}

// Answer delivers a grader's answers to the waiting evaluation.
func (q *QueuePrompter) Answer(ctx context.Context, id string, answers []string) error {
	request, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	if len(answers) != len(request.Fields) {
		return fmt.Errorf("%w: expected %d, got %d", ErrAnswerMismatch, len(request.Fields), len(answers))
	}

	removed, err := q.redis.SRem(ctx, q.pendingKey(), id).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrPromptNotFound
	}

	payload, err := json.Marshal(answers)
	if err != nil {
		return err
	}

	pipe := q.redis.TxPipeline()
	pipe.RPush(ctx, q.answersKey(id), payload)
	pipe.Expire(ctx, q.answersKey(id), q.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deliver answers: %w", err)
	}

	q.publish(ctx, Event{Type: EventAnswered, PromptID: id})
	return nil
}

// Pending lists the prompts still waiting for an answer, oldest first.
func (q *QueuePrompter) Pending(ctx context.Context) ([]Request, error) {
	ids, err := q.redis.SMembers(ctx, q.pendingKey()).Result()
	if err != nil {
		return nil, err
	}

	requests := make([]Request, 0, len(ids))
	for _, id := range ids {
		request, err := q.load(ctx, id)
		if errors.Is(err, ErrPromptNotFound) {
			// expired record, drop the dangling id
			q.redis.SRem(ctx, q.pendingKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

// Subscribe streams prompt events until ctx ends. The returned channel is closed afterwards.
func (q *QueuePrompter) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := q.redis.Subscribe(ctx, q.EventsChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe prompt events: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer func() {
			_ = pubsub.Close()
		}()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					q.logger.Error().Err(err).Msg("prompt event subscription closed")
				}
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				q.logger.Warn().Err(err).Msg("invalid prompt event")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (q *QueuePrompter) load(ctx context.Context, id string) (Request, error) {
	data, err := q.redis.Get(ctx, q.promptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Request{}, ErrPromptNotFound
	}
	if err != nil {
		return Request{}, err
	}

	var request Request
	if err := json.Unmarshal(data, &request); err != nil {
		return Request{}, fmt.Errorf("decode prompt %s: %w", id, err)
	}
	return request, nil
}

func (q *QueuePrompter) publish(ctx context.Context, event Event) {
	event.At = q.now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		q.logger.Warn().Err(err).Msg("failed to marshal prompt event")
		return
	}
	if err := q.redis.Publish(ctx, q.EventsChannel(), payload).Err(); err != nil {
		q.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish prompt event")
	}
}

func (q *QueuePrompter) cleanup(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := q.redis.TxPipeline()
	pipe.Del(ctx, q.promptKey(id), q.answersKey(id))
	pipe.SRem(ctx, q.pendingKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn().Err(err).Str("prompt_id", id).Msg("failed to clean up prompt")
	}
}
