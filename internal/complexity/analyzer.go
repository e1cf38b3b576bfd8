// Package complexity measures how sophisticated a student script is by counting
// programming constructs in its syntax tree and weighting them under a named profile.
package complexity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/noah-isme/gema-autograder/internal/autograder"
)

// Feature names reported in ComplexityScore.Features.
const (
	FeatureUserFunc            = "userFunc"
	FeatureBooleanConditionals = "booleanConditionals"
	FeatureConditionals        = "conditionals"
	FeatureLoops               = "loops"
	FeatureLists               = "lists"
	FeatureListOps             = "listOps"
	FeatureStrOps              = "strOps"
)

// ErrUnknownProfile indicates the requested scoring profile does not exist.
var ErrUnknownProfile = errors.New("unknown complexity profile")

// Profile maps each feature to the points one occurrence is worth.
type Profile map[string]float64

// EarSketchProfile is the weighting used by the Musicode rubric.
var EarSketchProfile = Profile{
	FeatureUserFunc:            30,
	FeatureBooleanConditionals: 15,
	FeatureConditionals:        10,
	FeatureLoops:               10,
	FeatureLists:               15,
	FeatureListOps:             15,
	FeatureStrOps:              15,
}

// Analyzer implements autograder.ComplexityMeter with tree-sitter grammars.
type Analyzer struct {
	profiles map[string]Profile
	logger   zerolog.Logger
}

// NewAnalyzer constructs an analyzer that knows the "earsketch" profile plus any extras.
func NewAnalyzer(logger zerolog.Logger, extra map[string]Profile) *Analyzer {
	profiles := map[string]Profile{autograder.ComplexityProfile: EarSketchProfile}
	for name, profile := range extra {
		profiles[name] = profile
	}
	return &Analyzer{
		profiles: profiles,
		logger:   logger.With().Str("component", "complexity_analyzer").Logger(),
	}
}

// Profiles lists the known profile names.
func (a *Analyzer) Profiles() []string {
	names := make([]string, 0, len(a.profiles))
	for name := range a.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Weights returns a copy of the named profile.
func (a *Analyzer) Weights(name string) (Profile, bool) {
	profile, ok := a.profiles[name]
	if !ok {
		return nil, false
	}
	weights := make(Profile, len(profile))
	for feature, weight := range profile {
		weights[feature] = weight
	}
	return weights, true
}

// Measure parses the submission and scores it under profile.
func (a *Analyzer) Measure(ctx context.Context, submission autograder.Submission, profile string) (autograder.ComplexityScore, error) {
	weights, ok := a.profiles[profile]
	if !ok {
		return autograder.ComplexityScore{}, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}

	features, err := a.Analyze(ctx, submission)
	if err != nil {
		return autograder.ComplexityScore{}, err
	}

	return autograder.ComplexityScore{
		Profile:  profile,
		Features: features,
		Total:    Total(features, weights),
	}, nil
}

// Analyze counts the features present in the submission.
func (a *Analyzer) Analyze(ctx context.Context, submission autograder.Submission) (map[string]int, error) {
	var (
		language *sitter.Language
		visit    func(node *sitter.Node, source []byte, features map[string]int)
	)
	switch submission.Language {
	case autograder.LanguagePython:
		language, visit = python.GetLanguage(), visitPython
	case autograder.LanguageJavaScript:
		language, visit = javascript.GetLanguage(), visitJavaScript
	default:
		return nil, autograder.ErrUnsupportedLanguage
	}

	// parsers are not safe for concurrent use
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language)

	source := []byte(submission.Source)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", submission.Language, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		a.logger.Debug().Str("language", string(submission.Language)).Msg("source has syntax errors, scoring what parsed")
	}

	features := newFeatures()
	walk(root, func(node *sitter.Node) {
		visit(node, source, features)
	})
	return features, nil
}

// Total sums count times weight over every feature. Features missing from the profile score zero.
func Total(features map[string]int, weights Profile) float64 {
	total := 0.0
	for feature, count := range features {
		total += float64(count) * weights[feature]
	}
	return total
}

func newFeatures() map[string]int {
	return map[string]int{
		FeatureUserFunc:            0,
		FeatureBooleanConditionals: 0,
		FeatureConditionals:        0,
		FeatureLoops:               0,
		FeatureLists:               0,
		FeatureListOps:             0,
		FeatureStrOps:              0,
	}
}

func walk(node *sitter.Node, fn func(*sitter.Node)) {
	if node == nil {
		return
	}
	fn(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), fn)
	}
}
