package autograder

import (
	"strconv"
	"strings"
)

// MaxSongs is the number of song names the Musicode assignment asks for.
const MaxSongs = 3

// Rubric is the scorecard delivered to the grading sink under the "rubric" category.
type Rubric struct {
	HasSongList     int    `json:"has_song_list"`
	SongsValid      int    `json:"songs_valid"`
	RandomWorks     int    `json:"random_works"`
	SongLengths     string `json:"song_lengths"`
	HandlesBadInput int    `json:"handles_bad_input"`
	Complexity80    int    `json:"complexity80"`
}

// Lengths parses SongLengths back into integers, skipping malformed tokens.
func (r Rubric) Lengths() []int {
	fields := strings.Fields(r.SongLengths)
	lengths := make([]int, 0, len(fields))
	for _, field := range fields {
		if value, err := strconv.Atoi(field); err == nil {
			lengths = append(lengths, value)
		}
	}
	return lengths
}

// RubricBuilder accumulates rubric fields for a single evaluation. Build may be called
// once; the builder rejects any use after that.
type RubricBuilder struct {
	rubric Rubric
	built  bool
}

// NewRubricBuilder returns an empty builder.
func NewRubricBuilder() *RubricBuilder {
	return &RubricBuilder{}
}

// MarkSongList records that a song list was found in the source.
func (b *RubricBuilder) MarkSongList() *RubricBuilder {
	b.mustBeOpen()
	b.rubric.HasSongList = 1
	return b
}

// RecordSongs sets songs_valid and song_lengths from the same checks so they never disagree.
func (b *RubricBuilder) RecordSongs(checks []SongCheck) *RubricBuilder {
	b.mustBeOpen()
	valid := 0
	lengths := make([]string, 0, len(checks))
	for _, check := range checks {
		if check.Valid {
			valid++
		}
		lengths = append(lengths, strconv.Itoa(check.Length))
	}
	if valid > MaxSongs {
		valid = MaxSongs
	}

	b.rubric.SongsValid = valid
	b.rubric.SongLengths = strings.Join(lengths, " ")
	return b
}

// RecordRandom sets random_works.
func (b *RubricBuilder) RecordRandom(works bool) *RubricBuilder {
	b.mustBeOpen()
	b.rubric.RandomWorks = flag(works)
	return b
}

// RecordBadInput sets handles_bad_input.
func (b *RubricBuilder) RecordBadInput(handled bool) *RubricBuilder {
	b.mustBeOpen()
	b.rubric.HandlesBadInput = flag(handled)
	return b
}

// RecordComplexity sets complexity80.
func (b *RubricBuilder) RecordComplexity(passed bool) *RubricBuilder {
	b.mustBeOpen()
	b.rubric.Complexity80 = flag(passed)
	return b
}

// Build returns the accumulated rubric. A second call panics.
func (b *RubricBuilder) Build() Rubric {
	b.mustBeOpen()
	b.built = true
	return b.rubric
}

func (b *RubricBuilder) mustBeOpen() {
	if b.built {
		panic("autograder: rubric already built")
	}
}

func flag(value bool) int {
	if value {
		return 1
	}
	return 0
}
