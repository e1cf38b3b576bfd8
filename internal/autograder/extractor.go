package autograder

import "regexp"

// DefaultSongListPattern matches three quoted names separated by commas or "or".
var DefaultSongListPattern = regexp.MustCompile(`['"]([^'"]+)['"]?\s?,\s?['"]?([^'"]+)['"]?\s?(?:,|or)\s?['"]([^'"]+)['"]`)

// SongNameExtractor finds candidate song names in free-form student source.
type SongNameExtractor interface {
	Extract(source string) ([]string, bool)
}

// PatternExtractor extracts song names with a single regular expression scan.
type PatternExtractor struct {
	pattern *regexp.Regexp
}

// NewPatternExtractor builds an extractor; a nil pattern selects DefaultSongListPattern.
func NewPatternExtractor(pattern *regexp.Regexp) PatternExtractor {
	if pattern == nil {
		pattern = DefaultSongListPattern
	}
	return PatternExtractor{pattern: pattern}
}

// Extract returns the captured groups of the left-most match. Matches yielding fewer
// than three or more than four groups are treated as not found.
func (e PatternExtractor) Extract(source string) ([]string, bool) {
	pattern := e.pattern
	if pattern == nil {
		pattern = DefaultSongListPattern
	}

	match := pattern.FindStringSubmatch(source)
	if match == nil {
		return nil, false
	}

	groups := match[1:]
	if len(groups) < MaxSongs || len(groups) > MaxSongs+1 {
		return nil, false
	}

	names := append([]string(nil), groups...)
	// an optional fourth group that did not participate is dropped
	if len(names) == MaxSongs+1 && names[MaxSongs] == "" {
		names = names[:MaxSongs]
	}
	return names, true
}
