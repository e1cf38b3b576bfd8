package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/service"
)

type mockGradingService struct {
	lastStudent uint
	lastPayload dto.GradeRequest
	lastRole    string
	lastList    dto.EvaluationListRequest
	response    dto.EvaluationResponse
	err         error
}

func (m *mockGradingService) Grade(_ context.Context, studentID uint, payload dto.GradeRequest) (dto.EvaluationResponse, error) {
	m.lastStudent = studentID
	m.lastPayload = payload
	return m.response, m.err
}

func (m *mockGradingService) Get(_ context.Context, id uint, viewerID uint, role string) (dto.EvaluationResponse, error) {
	m.lastStudent = viewerID
	m.lastRole = role
	if m.err != nil {
		return dto.EvaluationResponse{}, m.err
	}
	response := m.response
	response.ID = id
	return response, nil
}

func (m *mockGradingService) List(_ context.Context, request dto.EvaluationListRequest) (dto.EvaluationListResponse, error) {
	m.lastList = request
	if m.err != nil {
		return dto.EvaluationListResponse{}, m.err
	}
	return dto.EvaluationListResponse{Items: []dto.EvaluationResponse{m.response}, Pagination: dto.PaginationMeta{Page: 1, PageSize: 20, TotalItems: 1, TotalPages: 1}}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func newEvaluationApp(svc service.GradingService, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/evaluations", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(7))
		c.Locals("user_role", role)
		return c.Next()
	})
	handler.NewEvaluationHandler(svc, zerolog.New(io.Discard)).Register(group)
	return app
}

func completedResponse() dto.EvaluationResponse {
	return dto.EvaluationResponse{
		ID:        1,
		Reference: "2f0c3a4e-5d8b-4a7f-9c1e-6b2d8f0e1a3c",
		StudentID: 7,
		Language:  "python",
		Status:    "completed",
		Rubric: autograder.Rubric{
			HasSongList:     1,
			SongsValid:      3,
			RandomWorks:     1,
			SongLengths:     "20 18 22",
			HandlesBadInput: 1,
			Complexity80:    1,
		},
		Score:           7,
		ComplexityTotal: 95,
	}
}

func TestEvaluationHandler_GradeSuccess(t *testing.T) {
	svc := &mockGradingService{response: completedResponse()}
	app := newEvaluationApp(svc, "student")

	body := `{"language":"python","source":"readInput('song?')","grader_inputs":["a","b","c","random"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var payload envelope
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "evaluation completed", payload.Message)

	var data dto.EvaluationResponse
	require.NoError(t, json.Unmarshal(payload.Data, &data))
	require.Equal(t, 7, data.Score)
	require.Equal(t, "20 18 22", data.Rubric.SongLengths)

	require.Equal(t, uint(7), svc.lastStudent)
	require.Equal(t, []string{"a", "b", "c", "random"}, svc.lastPayload.GraderInputs)
}

func TestEvaluationHandler_GradeErrors(t *testing.T) {
	validationErr := validator.New().Struct(dto.GradeRequest{})
	require.Error(t, validationErr)

	cases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "validation", err: validationErr, statusCode: fiber.StatusBadRequest},
		{name: "language", err: autograder.ErrUnsupportedLanguage, statusCode: fiber.StatusBadRequest},
		{name: "rejected", err: fmt.Errorf("%w: %w", service.ErrSubmissionRejected, autograder.ErrTooManyInputCalls), statusCode: fiber.StatusUnprocessableEntity},
		{name: "generic", err: errors.New("boom"), statusCode: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockGradingService{err: tc.err, response: dto.EvaluationResponse{Status: "rejected"}}
			app := newEvaluationApp(svc, "student")

			req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", strings.NewReader(`{"language":"python","source":"x"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.statusCode, resp.StatusCode)

			var payload envelope
			decodeResponse(t, resp, &payload)
			require.False(t, payload.Success)
			if tc.name == "rejected" {
				require.Contains(t, payload.Message, "too many readInput() calls")
				require.Contains(t, string(payload.Details), `"status":"rejected"`)
			}
		})
	}
}

func TestEvaluationHandler_Upload(t *testing.T) {
	svc := &mockGradingService{response: completedResponse()}
	app := newEvaluationApp(svc, "student")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "song.py")
	require.NoError(t, err)
	_, err = part.Write([]byte("songs = ['a', 'b', 'c']\nname = readInput('song?')\n"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("assignment", "musicode"))
	for _, value := range []string{"a", "b", "c", "random"} {
		require.NoError(t, writer.WriteField("grader_inputs", value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Equal(t, "python", svc.lastPayload.Language)
	require.Equal(t, "musicode", svc.lastPayload.Assignment)
	require.Contains(t, svc.lastPayload.Source, "readInput")
	require.Equal(t, []string{"a", "b", "c", "random"}, svc.lastPayload.GraderInputs)
}

func TestEvaluationHandler_UploadRejectsBinary(t *testing.T) {
	svc := &mockGradingService{}
	app := newEvaluationApp(svc, "student")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "song.py")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
	require.Empty(t, svc.lastPayload.Source)
}

func TestEvaluationHandler_UploadMissingFile(t *testing.T) {
	app := newEvaluationApp(&mockGradingService{}, "student")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations/upload", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEvaluationHandler_Get(t *testing.T) {
	svc := &mockGradingService{response: completedResponse()}
	app := newEvaluationApp(svc, "teacher")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/12", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "teacher", svc.lastRole)

	var payload envelope
	decodeResponse(t, resp, &payload)
	var data dto.EvaluationResponse
	require.NoError(t, json.Unmarshal(payload.Data, &data))
	require.Equal(t, uint(12), data.ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEvaluationHandler_GetErrors(t *testing.T) {
	cases := map[error]int{
		service.ErrEvaluationNotFound:  fiber.StatusNotFound,
		service.ErrEvaluationForbidden: fiber.StatusForbidden,
		errors.New("db down"):          fiber.StatusInternalServerError,
	}

	for svcErr, status := range cases {
		app := newEvaluationApp(&mockGradingService{err: svcErr}, "student")
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/3", nil))
		require.NoError(t, err)
		require.Equal(t, status, resp.StatusCode, svcErr.Error())
	}
}

func TestEvaluationHandler_ListRequiresStaff(t *testing.T) {
	svc := &mockGradingService{response: completedResponse()}

	resp, err := newEvaluationApp(svc, "student").Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = newEvaluationApp(svc, "teacher").Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations?status=completed&student_id=7&page=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "completed", svc.lastList.Status)
	require.Equal(t, uint(7), svc.lastList.StudentID)
	require.Equal(t, 2, svc.lastList.Page)
}
