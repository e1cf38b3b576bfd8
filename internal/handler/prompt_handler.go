package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/observability"
	"github.com/noah-isme/gema-autograder/internal/prompt"
	"github.com/noah-isme/gema-autograder/internal/service"
	"github.com/noah-isme/gema-autograder/internal/utils"
)

// PromptHandler lets graders answer the song-name prompts of running evaluations.
type PromptHandler struct {
	service service.PromptService
	logger  zerolog.Logger
}

// NewPromptHandler constructs a prompt handler.
func NewPromptHandler(service service.PromptService, logger zerolog.Logger) *PromptHandler {
	return &PromptHandler{
		service: service,
		logger:  logger.With().Str("component", "prompt_handler").Logger(),
	}
}

// Register binds prompt routes including the websocket event stream.
func (h *PromptHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.stream))
	router.Get("", h.pending)
	router.Post("/:id/answers", h.answer)
}

func (h *PromptHandler) pending(c *fiber.Ctx) error {
	prompts, err := h.service.Pending(requestContext(c))
	if err != nil {
		return h.sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "pending prompts", prompts)
}

func (h *PromptHandler) answer(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid id")
	}

	var payload dto.PromptAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.service.Answer(requestContext(c), id, payload); err != nil {
		return h.sendServiceError(c, err)
	}

	requestLogger(h.logger, c).Info().Str("prompt_id", id).Uint("grader_id", userIDFromContext(c)).Msg("prompt answered")
	return utils.SendSuccess(c, "prompt answered", fiber.Map{"id": id})
}

func (h *PromptHandler) sendServiceError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid payload", validationDetails(err))
	case errors.Is(err, prompt.ErrAnswerMismatch):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, prompt.ErrPromptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPromptsUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("prompt request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "prompt request failed")
	}
}

// stream pushes prompt events to a grader until either side goes away.
func (h *PromptHandler) stream(conn *websocket.Conn) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	logger := h.logger.With().Str("correlation_id", middleware.CorrelationIDFromContext(baseCtx)).Logger()

	events, err := h.service.Subscribe(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("prompt stream unavailable")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}

	observability.PromptStreamClients().Inc()
	defer observability.PromptStreamClients().Dec()
	logger.Info().Msg("prompt stream connected")

	// graders never send anything; a read error means the socket closed
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("prompt stream disconnected")
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("prompt stream write failed")
				return
			}
		}
	}
}
