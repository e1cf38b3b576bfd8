package handler

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/service"
	"github.com/noah-isme/gema-autograder/internal/utils"
)

var (
	errScriptTooLarge = errors.New("script exceeds 256KiB")
	errScriptNotText  = errors.New("script must be a plain text file")
)

// EvaluationHandler exposes grading endpoints.
type EvaluationHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewEvaluationHandler constructs an evaluation handler.
func NewEvaluationHandler(service service.GradingService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register wires evaluation routes. gradeMiddleware runs in front of both grading endpoints.
func (h *EvaluationHandler) Register(router fiber.Router, gradeMiddleware ...fiber.Handler) {
	grade := append(append([]fiber.Handler{}, gradeMiddleware...), h.grade)
	upload := append(append([]fiber.Handler{}, gradeMiddleware...), h.upload)

	router.Post("", grade...)
	router.Post("/upload", upload...)
	router.Get("", middleware.RequireStaff(), h.list)
	router.Get("/:id", h.get)
}

func (h *EvaluationHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	return h.respondGrade(c, payload)
}

func (h *EvaluationHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}
	if file.Size > dto.MaxSourceBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, errScriptTooLarge.Error())
	}

	reader, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, dto.MaxSourceBytes+1))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	if len(data) > dto.MaxSourceBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, errScriptTooLarge.Error())
	}
	if !isPlainText(data) {
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, errScriptNotText.Error())
	}

	language := strings.TrimSpace(c.FormValue("language"))
	if language == "" {
		language = languageFromFilename(file.Filename)
	}

	payload := dto.GradeRequest{
		Language:   language,
		Source:     string(data),
		Assignment: c.FormValue("assignment"),
	}
	if form, err := c.MultipartForm(); err == nil {
		payload.GraderInputs = form.Value["grader_inputs"]
	}

	return h.respondGrade(c, payload)
}

func (h *EvaluationHandler) respondGrade(c *fiber.Ctx, payload dto.GradeRequest) error {
	logger := requestLogger(h.logger, c)

	response, err := h.service.Grade(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid payload", validationDetails(err))
		case errors.Is(err, autograder.ErrUnsupportedLanguage):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrSubmissionRejected):
			return utils.SendErrorWithDetails(c, fiber.StatusUnprocessableEntity, err.Error(), response)
		default:
			logger.Error().Err(err).Msg("failed to grade submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to grade submission")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation completed", response)
}

func (h *EvaluationHandler) list(c *fiber.Ctx) error {
	var request dto.EvaluationListRequest
	if err := c.QueryParser(&request); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	response, err := h.service.List(requestContext(c), request)
	if err != nil {
		if isValidationError(err) {
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid query parameters", validationDetails(err))
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list evaluations")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list evaluations")
	}

	return utils.SendSuccess(c, "evaluations retrieved", response)
}

func (h *EvaluationHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Get(requestContext(c), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEvaluationNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrEvaluationForbidden):
			return utils.SendError(c, fiber.StatusForbidden, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("evaluation_id", id).Msg("failed to load evaluation")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to load evaluation")
		}
	}

	return utils.SendSuccess(c, "evaluation retrieved", response)
}

func isPlainText(data []byte) bool {
	for mtype := mimetype.Detect(data); mtype != nil; mtype = mtype.Parent() {
		if mtype.Is("text/plain") {
			return true
		}
	}
	return false
}

func languageFromFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".py":
		return string(autograder.LanguagePython)
	case ".js":
		return string(autograder.LanguageJavaScript)
	default:
		return ""
	}
}
