// Package scoring connects the decoder to the probability-producing models:
// the six component queries, their request types, and a per-decode Adapter
// that validates and memoizes every answer.
package scoring

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// Component identifies one of the scoring models.
type Component int

const (
	InitialChord Component = iota
	ChordTransition
	ChordClassification
	ChordSequence
	KeyTransition
	KeySequence
	numComponents
)

func (c Component) String() string {
	switch c {
	case InitialChord:
		return "initial-chord"
	case ChordTransition:
		return "chord-transition"
	case ChordClassification:
		return "chord-classification"
	case ChordSequence:
		return "chord-sequence"
	case KeyTransition:
		return "key-transition"
	case KeySequence:
		return "key-sequence"
	default:
		return "unknown"
	}
}

// Components lists every component in a fixed order.
func Components() []Component {
	out := make([]Component, 0, numComponents)
	for c := Component(0); c < numComponents; c++ {
		out = append(out, c)
	}
	return out
}

// InitialChordQuery asks for the prior of a chord opening a piece.
type InitialChordQuery struct {
	Key      vocab.Key
	Chord    vocab.Chord
	Relative vocab.RelativeChord
}

// ChordBoundaryQuery asks for the probability that the chord segment
// [Start, End) ends at End. Frames is the whole piece.
type ChordBoundaryQuery struct {
	Frames   []piece.Frame
	Start    int
	End      int
	Key      vocab.Key
	Chord    vocab.Chord
	Relative vocab.RelativeChord
}

// ClassificationQuery asks how well Frames, the span [Start, End), realize Chord.
type ClassificationQuery struct {
	Frames []piece.Frame
	Start  int
	End    int
	Chord  vocab.Chord
}

// ChordSequenceQuery asks for the probability of Next following History
// inside Key. History holds only chords of the current key segment, oldest first.
type ChordSequenceQuery struct {
	Key             vocab.Key
	History         []vocab.Chord
	RelativeHistory []vocab.RelativeChord
	Next            vocab.Chord
	RelativeNext    vocab.RelativeChord
}

// KeyBoundaryQuery asks for the probability that the key segment
// [Start, End) ends at End. LastChord is the chord closing with it.
type KeyBoundaryQuery struct {
	Frames    []piece.Frame
	Start     int
	End       int
	Key       vocab.Key
	LastChord vocab.Chord
}

// KeySequenceQuery asks for the probability of Next following History.
// An empty History asks for the opening key of the piece.
type KeySequenceQuery struct {
	History []vocab.Key
	Next    vocab.Key
}

// Model is the boundary to the trained (or hand-built) scoring components.
// Every method returns a natural-log probability (<= 0) and must be
// deterministic for fixed weights and inputs.
type Model interface {
	InitialChord(q InitialChordQuery) (float64, error)
	ChordTransition(q ChordBoundaryQuery) (float64, error)
	ChordClassification(q ClassificationQuery) (float64, error)
	ChordSequence(q ChordSequenceQuery) (float64, error)
	KeyTransition(q KeyBoundaryQuery) (float64, error)
	KeySequence(q KeySequenceQuery) (float64, error)
}

// ChangeModel is implemented by models whose chord transitions factor into
// independent per-boundary change probabilities. ChangeProb returns the
// probability, in [0, 1], that a chord segment ends at boundary at.
type ChangeModel interface {
	ChangeProb(frames []piece.Frame, at int) (float64, error)
}

// HistoryLimiter is implemented by models trained on bounded contexts.
// A limit of 0 passes the full history.
type HistoryLimiter interface {
	ChordHistoryLimit() int
	KeyHistoryLimit() int
}

// Factory binds a model to one piece. It is called once per decode, so
// piece-specific state stays out of concurrent decodes of other pieces.
type Factory func(p *piece.Piece, v *vocab.Vocabulary) (Model, error)

var (
	// ErrNonFinite marks a NaN or infinite score.
	ErrNonFinite = errors.New("non-finite log-probability")
	// ErrPositive marks a log-probability above zero.
	ErrPositive = errors.New("log-probability above zero")
	// ErrProbability marks a change probability outside [0, 1].
	ErrProbability = errors.New("probability outside [0, 1]")
)

// ScoringError reports a failed model evaluation.
type ScoringError struct {
	Component Component
	Query     string
	Err       error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring %s (%s): %v", e.Component, e.Query, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}
