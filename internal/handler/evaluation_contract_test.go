package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/autograder"
	"github.com/noah-isme/gema-autograder/internal/database"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/repository"
	"github.com/noah-isme/gema-autograder/internal/service"
)

type lengthSandbox map[string]int

func (s lengthSandbox) Run(_ context.Context, _ autograder.Submission, input []string) (autograder.CompileResult, error) {
	length, ok := s[input[0]]
	if !ok {
		return autograder.CompileResult{Console: "Sorry, that song is not on the list"}, nil
	}
	return autograder.CompileResult{Length: length}, nil
}

type constantMeter float64

func (m constantMeter) Measure(_ context.Context, _ autograder.Submission, profile string) (autograder.ComplexityScore, error) {
	return autograder.ComplexityScore{Profile: profile, Features: map[string]int{"loops": 2, "lists": 1}, Total: float64(m)}, nil
}

func TestEvaluationContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "evaluation.schema.json"))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	svc := service.NewGradingService(
		repository.NewEvaluationRepository(db),
		service.GradingDependencies{
			Sandbox: lengthSandbox{"random": 24, "Intro": 20, "Verse": 32, "Outro": 12},
			Meter:   constantMeter(85),
		},
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
	)

	app := fiber.New()
	group := app.Group("/api/v1/evaluations", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(5))
		c.Locals("user_role", "student")
		return c.Next()
	})
	handler.NewEvaluationHandler(svc, zerolog.Nop()).Register(group)

	script := `songs = ["Intro", "Verse", "Outro"]
choice = readInput("Which song?")
`
	body, err := json.Marshal(map[string]string{"language": "python", "source": script})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	validateAgainst(t, schema, resp)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))

	var typed struct {
		Data struct {
			Rubric  autograder.Rubric `json:"rubric"`
			Reports []struct {
				Category string `json:"category"`
			} `json:"reports"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &typed))
	require.Equal(t, autograder.Rubric{
		HasSongList:     1,
		SongsValid:      2,
		RandomWorks:     1,
		SongLengths:     "20 32 12",
		HandlesBadInput: 1,
		Complexity80:    1,
	}, typed.Data.Rubric)
	require.Len(t, typed.Data.Reports, 2)
	require.Equal(t, autograder.CategoryRubric, typed.Data.Reports[0].Category)
	require.Equal(t, autograder.CategoryComplexity, typed.Data.Reports[1].Category)
}

func validateAgainst(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))
}
