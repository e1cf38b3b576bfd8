package autograder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InputPrimitive is the call whose occurrences decide whether a script can be autograded.
	InputPrimitive = "readInput("
	// MinSongLength is the shortest output, in measures, accepted for a valid song.
	MinSongLength = 16
	// BadInputProbe is fed to the script to check that it reports invalid requests.
	BadInputProbe = "r4nd0m-s0ng-name1234"
	// ComplexityProfile names the scoring profile used for the complexity threshold.
	ComplexityProfile = "earsketch"
	// ComplexityThreshold is the minimum total needed for complexity80.
	ComplexityThreshold = 80

	CategoryRubric     = "rubric"
	CategoryComplexity = "complexity"
)

var promptFields = []string{"Song 1", "Song 2", "Song 3", "Random"}

var defaultRandomProbes = []string{"random", "Random"}

// ErrMalformedSubmission is the parent of the fatal submission errors.
var ErrMalformedSubmission = errors.New("cannot be autograded")

// ErrTooManyInputCalls indicates more than one readInput() call in the source.
var ErrTooManyInputCalls = fmt.Errorf("too many readInput() calls found: %w", ErrMalformedSubmission)

// ErrNoInputCall indicates the source never calls readInput().
var ErrNoInputCall = fmt.Errorf("no readInput() call found: %w", ErrMalformedSubmission)

// ErrUnsupportedLanguage indicates the submission language cannot be graded.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrReportFailed indicates the grading sink rejected a payload.
var ErrReportFailed = errors.New("report delivery failed")

// ErrMissingDependency indicates the evaluator was built without a required collaborator.
var ErrMissingDependency = errors.New("evaluator dependency missing")

// PromptFields returns the field names shown to a grader, in order.
func PromptFields() []string {
	return append([]string(nil), promptFields...)
}

// Dependencies groups the collaborators an Evaluator drives.
type Dependencies struct {
	Sandbox   Sandbox
	Prompter  Prompter
	Meter     ComplexityMeter
	Reporter  Reporter
	Extractor SongNameExtractor
}

// Evaluator scores Musicode submissions against the rubric.
type Evaluator struct {
	sandbox   Sandbox
	prompter  Prompter
	meter     ComplexityMeter
	reporter  Reporter
	extractor SongNameExtractor
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewEvaluator constructs an evaluator. The extractor defaults to a PatternExtractor.
func NewEvaluator(deps Dependencies, logger zerolog.Logger) (*Evaluator, error) {
	switch {
	case deps.Sandbox == nil:
		return nil, fmt.Errorf("%w: sandbox", ErrMissingDependency)
	case deps.Prompter == nil:
		return nil, fmt.Errorf("%w: prompter", ErrMissingDependency)
	case deps.Meter == nil:
		return nil, fmt.Errorf("%w: complexity meter", ErrMissingDependency)
	case deps.Reporter == nil:
		return nil, fmt.Errorf("%w: reporter", ErrMissingDependency)
	}

	extractor := deps.Extractor
	if extractor == nil {
		extractor = NewPatternExtractor(nil)
	}

	return &Evaluator{
		sandbox:   deps.Sandbox,
		prompter:  deps.Prompter,
		meter:     deps.Meter,
		reporter:  deps.Reporter,
		extractor: extractor,
		logger:    logger.With().Str("component", "rubric_evaluator").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-autograder/internal/autograder"),
	}, nil
}

// Evaluate grades one submission and reports the rubric and complexity payloads once each.
// Only malformed submissions abort the run; every other failure lowers a rubric field.
func (e *Evaluator) Evaluate(parent context.Context, submission Submission) (Result, error) {
	ctx, span := e.tracer.Start(parent, "autograder.evaluate", trace.WithAttributes(
		attribute.String("submission.language", string(submission.Language)),
	))
	defer span.End()

	if err := CheckInputCalls(submission.Source); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	rubric := NewRubricBuilder()

	inputs, extracted := e.resolveInputs(ctx, submission)
	if extracted {
		rubric.MarkSongList()
	}

	first := e.runPass(ctx, submission, inputs)
	result := Result{FirstPass: first, FinalPass: first}

	if extracted && needsReverification(first) {
		e.logger.Info().
			Int("songs_valid", countValid(first.Songs)).
			Bool("random_works", first.RandomWorks).
			Msg("song list did not verify, asking grader for inputs")
		result.FinalPass = e.runPass(ctx, submission, e.promptInputs(ctx, submission))
		result.Retried = true
		span.SetAttributes(attribute.Bool("autograder.retried", true))
	}

	rubric.RecordSongs(result.FinalPass.Songs)
	rubric.RecordRandom(result.FinalPass.RandomWorks)

	handled, console := e.checkBadInput(ctx, submission)
	rubric.RecordBadInput(handled)
	result.BadInputConsole = console

	score, passed := e.checkComplexityThreshold(ctx, submission)
	rubric.RecordComplexity(passed)

	result.Rubric = rubric.Build()
	result.Complexity = score

	if err := e.report(ctx, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	return result, nil
}

// CheckInputCalls enforces that the source calls readInput() exactly once.
func CheckInputCalls(source string) error {
	switch count := strings.Count(source, InputPrimitive); {
	case count > 1:
		return ErrTooManyInputCalls
	case count == 0:
		return ErrNoInputCall
	default:
		return nil
	}
}

// ExtractSongNames returns at most three song names found in the source.
func (e *Evaluator) ExtractSongNames(source string) ([]string, bool) {
	names, ok := e.extractor.Extract(source)
	if !ok {
		return nil, false
	}
	if len(names) > MaxSongs {
		names = names[:MaxSongs]
	}
	return names, true
}

func (e *Evaluator) resolveInputs(ctx context.Context, submission Submission) (CandidateInputs, bool) {
	names, ok := e.extractor.Extract(submission.Source)
	if !ok {
		e.logger.Debug().Msg("no song list found, asking grader for inputs")
		return e.promptInputs(ctx, submission), false
	}

	songs := names
	if len(songs) > MaxSongs {
		songs = songs[:MaxSongs]
	}

	probes := append([]string(nil), defaultRandomProbes...)
	probes = append(probes, names[len(songs):]...)

	return CandidateInputs{
		Songs:        append([]string(nil), songs...),
		RandomProbes: probes,
	}, true
}

func (e *Evaluator) promptInputs(ctx context.Context, submission Submission) CandidateInputs {
	answers, err := e.prompter.Prompt(ctx, PromptFields(), submission)
	if err != nil {
		e.logger.Warn().Err(err).Msg("grader prompt failed")
		return CandidateInputs{}
	}
	return inputsFromAnswers(answers)
}

func inputsFromAnswers(answers []string) CandidateInputs {
	inputs := CandidateInputs{}
	if len(answers) <= MaxSongs {
		inputs.Songs = append([]string(nil), answers...)
		return inputs
	}
	inputs.Songs = append([]string(nil), answers[:MaxSongs]...)
	inputs.RandomProbes = []string{answers[MaxSongs]}
	return inputs
}

func (e *Evaluator) runPass(ctx context.Context, submission Submission, inputs CandidateInputs) Pass {
	pass := Pass{Inputs: inputs}
	pass.RandomWorks = e.CheckRandom(ctx, submission, inputs.RandomProbes)
	pass.Songs = make([]SongCheck, 0, len(inputs.Songs))
	for _, name := range inputs.Songs {
		pass.Songs = append(pass.Songs, e.CheckSong(ctx, submission, name))
	}
	return pass
}

func needsReverification(pass Pass) bool {
	valid := countValid(pass.Songs)
	return valid == 0 || (valid == MaxSongs && !pass.RandomWorks)
}

func countValid(checks []SongCheck) int {
	valid := 0
	for _, check := range checks {
		if check.Valid {
			valid++
		}
	}
	return valid
}

// CheckSong runs the submission with name as its input. Errored runs count as length 0.
func (e *Evaluator) CheckSong(ctx context.Context, submission Submission, name string) SongCheck {
	result := e.run(ctx, submission, name)
	check := SongCheck{Name: name}
	if result.Error {
		return check
	}
	check.Length = result.Length
	check.Valid = result.Length >= MinSongLength
	return check
}

// CheckRandom succeeds on the first probe that runs cleanly and produces output.
func (e *Evaluator) CheckRandom(ctx context.Context, submission Submission, probes []string) bool {
	for _, probe := range probes {
		result := e.run(ctx, submission, probe)
		if !result.Error && result.Length > 0 {
			return true
		}
	}
	return false
}

func (e *Evaluator) checkBadInput(ctx context.Context, submission Submission) (bool, string) {
	result := e.run(ctx, submission, BadInputProbe)
	return !result.Error && result.Length == 0 && len(result.Console) > 0, result.Console
}

func (e *Evaluator) checkComplexityThreshold(ctx context.Context, submission Submission) (ComplexityScore, bool) {
	score, err := e.meter.Measure(ctx, submission, ComplexityProfile)
	if err != nil {
		e.logger.Warn().Err(err).Str("profile", ComplexityProfile).Msg("complexity measurement failed")
		score = ComplexityScore{Profile: ComplexityProfile, Features: map[string]int{}}
	}
	return score, score.Total >= ComplexityThreshold
}

func (e *Evaluator) run(ctx context.Context, submission Submission, input string) CompileResult {
	result, err := e.sandbox.Run(ctx, submission, []string{input})
	if err != nil {
		e.logger.Warn().Err(err).Str("input", input).Msg("sandbox run failed")
		return CompileResult{Error: true, Console: err.Error()}
	}
	return result
}

func (e *Evaluator) report(ctx context.Context, result Result) error {
	var errs []error
	if err := e.reporter.Report(ctx, CategoryRubric, result.Rubric); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", CategoryRubric, err))
	}
	if err := e.reporter.Report(ctx, CategoryComplexity, result.Complexity); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", CategoryComplexity, err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrReportFailed, errors.Join(errs...))
}
