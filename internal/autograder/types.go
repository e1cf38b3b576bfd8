package autograder

import (
	"strings"
)

// Language identifies the scripting language a submission is written in.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
)

// ParseLanguage normalises a declared language name.
func ParseLanguage(value string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(value))) {
	case LanguagePython:
		return LanguagePython, nil
	case LanguageJavaScript:
		return LanguageJavaScript, nil
	default:
		return "", ErrUnsupportedLanguage
	}
}

// Submission is the student program under evaluation. It is never mutated once built.
type Submission struct {
	Source   string
	Language Language
}

// CandidateInputs are the song names and random probes used for one evaluation pass.
type CandidateInputs struct {
	Songs        []string `json:"songs"`
	RandomProbes []string `json:"random_probes"`
}

// CompileResult is the outcome of one sandboxed run.
type CompileResult struct {
	Error   bool
	Length  int
	Console string
}

// ComplexityScore is a structured code complexity measurement under a named profile.
type ComplexityScore struct {
	Profile  string         `json:"profile"`
	Features map[string]int `json:"features"`
	Total    float64        `json:"total"`
}

// SongCheck records how one candidate song name fared in the sandbox.
type SongCheck struct {
	Name   string `json:"name"`
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
}

// Pass groups the signals gathered from one run over a set of candidate inputs.
type Pass struct {
	Inputs      CandidateInputs `json:"inputs"`
	Songs       []SongCheck     `json:"songs"`
	RandomWorks bool            `json:"random_works"`
}

// Result is everything an evaluation produced. Only Rubric and Complexity are reported.
type Result struct {
	Rubric          Rubric          `json:"rubric"`
	Complexity      ComplexityScore `json:"complexity"`
	FirstPass       Pass            `json:"first_pass"`
	FinalPass       Pass            `json:"final_pass"`
	Retried         bool            `json:"retried"`
	BadInputConsole string          `json:"bad_input_console"`
}
