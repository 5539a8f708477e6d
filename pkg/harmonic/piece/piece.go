// Package piece holds the time-aligned input of the annotator (frames) and
// its output (labeled segments).
package piece

import (
	"errors"
	"fmt"
	"math"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// ErrInvalidPiece is returned for malformed frame sequences.
var ErrInvalidPiece = errors.New("invalid piece")

// Frame is the smallest indivisible time unit of a piece.
// Onset and Duration are in quarter notes. Features is an opaque payload
// handed to scoring models; the reference model reads a 12-bin pitch-class profile.
type Frame struct {
	Index    int
	Onset    float64
	Duration float64
	Features []float64
}

// Piece is an ordered, gapless frame sequence.
type Piece struct {
	ID     string
	Title  string
	Frames []Frame
}

// Len returns the number of frames.
func (p *Piece) Len() int {
	return len(p.Frames)
}

// Validate checks the frame sequence invariants.
func (p *Piece) Validate() error {
	if p == nil || len(p.Frames) == 0 {
		return fmt.Errorf("%w: no frames", ErrInvalidPiece)
	}
	for i, f := range p.Frames {
		if f.Index != i {
			return fmt.Errorf("%w: frame %d has index %d", ErrInvalidPiece, i, f.Index)
		}
		if math.IsNaN(f.Duration) || math.IsInf(f.Duration, 0) || f.Duration < 0 {
			return fmt.Errorf("%w: frame %d has duration %v", ErrInvalidPiece, i, f.Duration)
		}
		if math.IsNaN(f.Onset) || math.IsInf(f.Onset, 0) {
			return fmt.Errorf("%w: frame %d has onset %v", ErrInvalidPiece, i, f.Onset)
		}
		if i > 0 && f.Onset < p.Frames[i-1].Onset {
			return fmt.Errorf("%w: frame %d onset %v precedes frame %d onset %v",
				ErrInvalidPiece, i, f.Onset, i-1, p.Frames[i-1].Onset)
		}
	}
	return nil
}

// TotalDuration sums frame durations.
func (p *Piece) TotalDuration() float64 {
	total := 0.0
	for _, f := range p.Frames {
		total += f.Duration
	}
	return total
}

// Segment is a maximal run of frames [Start, End) sharing one key and one chord.
type Segment struct {
	Start int
	End   int
	Key   vocab.Key
	Chord vocab.Chord
}

// Len returns the number of frames covered.
func (s Segment) Len() int {
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("[%d,%d) %s %s", s.Start, s.End, s.Key, s.Chord)
}

// KeySpan is a maximal run of frames sharing one key.
type KeySpan struct {
	Start int
	End   int
	Key   vocab.Key
}

// KeySpans merges consecutive segments into key-level spans. A key change
// between adjacent segments always starts a new span.
func KeySpans(segments []Segment) []KeySpan {
	var spans []KeySpan
	for _, s := range segments {
		if n := len(spans); n > 0 && spans[n-1].Key == s.Key && spans[n-1].End == s.Start {
			spans[n-1].End = s.End
			continue
		}
		spans = append(spans, KeySpan{Start: s.Start, End: s.End, Key: s.Key})
	}
	return spans
}

// CheckPartition verifies that segments cover [0, n) contiguously and
// that every chord is valid inside its key.
func CheckPartition(segments []Segment, n int, v *vocab.Vocabulary) error {
	pos := 0
	for i, s := range segments {
		if s.Start != pos {
			return fmt.Errorf("segment %d starts at %d, expected %d", i, s.Start, pos)
		}
		if s.End <= s.Start {
			return fmt.Errorf("segment %d is empty: [%d,%d)", i, s.Start, s.End)
		}
		if v != nil && !v.Valid(s.Key, s.Chord) {
			return fmt.Errorf("segment %d: chord %s not valid in key %s", i, s.Chord, s.Key)
		}
		pos = s.End
	}
	if pos != n {
		return fmt.Errorf("segments cover %d frames, expected %d", pos, n)
	}
	return nil
}

// FrameLabels expands segments into one (key, chord) pair per frame.
func FrameLabels(segments []Segment, n int) ([]vocab.Key, []vocab.Chord) {
	keys := make([]vocab.Key, n)
	chords := make([]vocab.Chord, n)
	for _, s := range segments {
		for i := max(s.Start, 0); i < s.End && i < n; i++ {
			keys[i] = s.Key
			chords[i] = s.Chord
		}
	}
	return keys, chords
}
