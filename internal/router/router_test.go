package router_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/database"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/repository"
	"github.com/noah-isme/gema-autograder/internal/router"
	"github.com/noah-isme/gema-autograder/internal/service"
)

const testSecret = "router-secret"

type echoSandbox struct{}

func (echoSandbox) Run(_ context.Context, _ autograder.Submission, input []string) (autograder.CompileResult, error) {
	if input[0] == autograder.BadInputProbe {
		return autograder.CompileResult{Console: "not a song"}, nil
	}
	return autograder.CompileResult{Length: 20}, nil
}

type zeroMeter struct{}

func (zeroMeter) Measure(_ context.Context, _ autograder.Submission, profile string) (autograder.ComplexityScore, error) {
	return autograder.ComplexityScore{Profile: profile, Features: map[string]int{}}, nil
}

func token(t *testing.T, subject uint, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  fmt.Sprint(subject),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	validate := validator.New(validator.WithRequiredStructEnabled())
	grading := service.NewGradingService(repository.NewEvaluationRepository(db), service.GradingDependencies{
		Sandbox: echoSandbox{},
		Meter:   zeroMeter{},
	}, validate, zerolog.Nop())
	prompts := service.NewPromptService(nil, validate, zerolog.Nop())

	cfg := config.Config{AppName: "GEMA Autograder", AppEnv: "test", JWTSecret: testSecret}

	app := fiber.New()
	logger := zerolog.Nop()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(grading, zerolog.Nop()),
		PromptHandler:     handler.NewPromptHandler(prompts, zerolog.Nop()),
		HealthProbes: map[string]handler.HealthProbe{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		JWTMiddleware:  middleware.JWTProtected(testSecret),
		GradeRateLimit: middleware.EvaluationRateLimit(1, time.Minute),
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, bearer, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRouterPublicEndpoints(t *testing.T) {
	app := newApp(t)

	resp := do(t, app, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Autograder", resp.Header.Get("X-Application"))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	resp = do(t, app, http.MethodGet, "/api/v1/metrics", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRouterEvaluationFlow(t *testing.T) {
	app := newApp(t)
	student := token(t, 7, "student")
	other := token(t, 8, "student")
	teacher := token(t, 1, "teacher")
	body := `{"language":"javascript","source":"var songs = ['a', 'b', 'c'];\nvar pick = readInput('song');"}`

	resp := do(t, app, http.MethodPost, "/api/v1/evaluations", "", body)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/v1/evaluations", student, body)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = do(t, app, http.MethodPost, "/api/v1/evaluations", student, body)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/v1/evaluations/1", student, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/v1/evaluations/1", other, "")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/v1/evaluations", student, "")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/v1/evaluations?student_id=7", teacher, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), `"total_items":1`)
	require.NotContains(t, string(data), "readInput")
}

func TestRouterPromptsRequireStaff(t *testing.T) {
	app := newApp(t)

	resp := do(t, app, http.MethodGet, "/api/v1/prompts", token(t, 7, "student"), "")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(t, app, http.MethodGet, "/api/v1/prompts", token(t, 1, "admin"), "")
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
