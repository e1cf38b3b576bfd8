// Package wavdiff compares two rendered songs sample by sample.
package wavdiff

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// Threshold is the largest absolute difference between normalised samples that
// still counts as nearly identical.
const Threshold = 0.0001

// ErrInvalidWAV indicates the input is not a PCM WAV file.
var ErrInvalidWAV = errors.New("not a valid wav file")

// Verdict summarises how two recordings relate.
type Verdict int

const (
	Identical Verdict = iota
	NearlyIdentical
	Different
)

func (v Verdict) String() string {
	switch v {
	case Identical:
		return "identical"
	case NearlyIdentical:
		return "nearly identical"
	default:
		return "different"
	}
}

// Audio is a decoded recording with interleaved samples.
type Audio struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []int
}

// Frames returns the number of samples per channel.
func (a Audio) Frames() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Result is the outcome of Compare.
type Result struct {
	Verdict         Verdict
	Message         string
	Note            string
	DifferingPoints int
	AverageDiff     float64
}

// Decode reads a PCM WAV stream.
func Decode(r io.ReadSeeker) (Audio, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Audio{}, ErrInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("decode pcm: %w", err)
	}

	return Audio{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		Samples:    buf.Data,
	}, nil
}

// DecodeFile opens and decodes path.
func DecodeFile(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, err
	}
	defer f.Close()

	audio, err := Decode(f)
	if err != nil {
		return Audio{}, fmt.Errorf("%s: %w", path, err)
	}
	return audio, nil
}

// Compare checks format first, then exact equality, then closeness of the
// normalised samples.
func Compare(a, b Audio) Result {
	if a.SampleRate != b.SampleRate {
		return different(fmt.Sprintf("Not identical: sample rates differ (%d vs. %d).", a.SampleRate, b.SampleRate))
	}
	if a.Frames() != b.Frames() {
		return different(fmt.Sprintf("Not identical: lengths differ (%d samples vs. %d samples).", a.Frames(), b.Frames()))
	}
	if a.Channels != b.Channels {
		return different(fmt.Sprintf("Not identical: number of channels differ (%d vs %d).", a.Channels, b.Channels))
	}

	result := Result{}
	if a.BitDepth != b.BitDepth {
		result.Note = fmt.Sprintf("Note: sample types differ (%d-bit vs. %d-bit).", a.BitDepth, b.BitDepth)
	}

	if a.BitDepth == b.BitDepth && equalSamples(a.Samples, b.Samples) {
		result.Verdict = Identical
		result.Message = "Completely identical."
		return result
	}

	scaleA, scaleB := fullScale(a.BitDepth), fullScale(b.BitDepth)
	var (
		closeDiff float64
		farDiff   float64
	)
	for i := range a.Samples {
		diff := math.Abs(float64(a.Samples[i])/scaleA - float64(b.Samples[i])/scaleB)
		if diff <= Threshold {
			closeDiff += diff
			continue
		}
		result.DifferingPoints++
		farDiff += diff
	}

	if result.DifferingPoints == 0 {
		result.Verdict = NearlyIdentical
		if len(a.Samples) > 0 {
			result.AverageDiff = closeDiff / float64(len(a.Samples))
		}
		result.Message = fmt.Sprintf("Nearly identical: samples differ by less than %g, average difference is %g.", Threshold, result.AverageDiff)
		return result
	}

	result.Verdict = Different
	result.AverageDiff = farDiff / float64(result.DifferingPoints)
	result.Message = fmt.Sprintf("Not identical: samples differ by more than %g at %d points (across all channels). Among those, average difference is %g.",
		Threshold, result.DifferingPoints, result.AverageDiff)
	return result
}

func different(message string) Result {
	return Result{Verdict: Different, Message: message}
}

func equalSamples(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fullScale is the largest sample value for the bit depth; 8-bit PCM is unsigned.
func fullScale(bitDepth int) float64 {
	switch {
	case bitDepth <= 0:
		return 1
	case bitDepth == 8:
		return math.MaxUint8
	default:
		return math.Pow(2, float64(bitDepth-1)) - 1
	}
}
