package harmonic

import (
	"errors"
	"time"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/decode"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/eval"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/storage"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

var (
	// ErrNotFound is returned for unknown analysis ids.
	ErrNotFound = storage.ErrNotFound
	// ErrNoStorage is returned by persistence calls on a service built without storage.
	ErrNoStorage = errors.New("no analysis storage configured")
)

// Analysis is the annotation of one piece.
type Analysis struct {
	ID         string // Storage ID (UUID), empty until stored
	PieceID    string
	Title      string
	FrameCount int
	LogProb    float64 // Joint log-probability of Segments under the model
	BeamWidth  int
	ModelName  string
	Segments   []piece.Segment
	CreatedAt  time.Time
	Stats      *decode.Stats // Search statistics, nil for loaded analyses
}

// KeySpans merges the segments into key regions.
func (a *Analysis) KeySpans() []piece.KeySpan {
	return piece.KeySpans(a.Segments)
}

// Figures returns the roman numeral of every segment's chord in its key.
func (a *Analysis) Figures() []string {
	out := make([]string, len(a.Segments))
	for i, s := range a.Segments {
		out[i] = vocab.Relative(s.Key, s.Chord).Figure()
	}
	return out
}

// AnalysisSummary is a stored analysis without its segments.
type AnalysisSummary struct {
	ID           string
	PieceID      string
	Title        string
	FrameCount   int
	SegmentCount int
	LogProb      float64
	ModelName    string
	CreatedAt    time.Time
}

// BatchItem is the outcome for one piece of AnnotateBatch.
type BatchItem struct {
	PieceID  string
	Analysis *Analysis
	Err      error
}

// Evaluation compares an annotation with a reference labeling.
type Evaluation struct {
	Analysis *Analysis
	Report   eval.Report
	// ReferenceLogProb is the model score of the reference labeling, or
	// -Inf when the reference is not expressible in the vocabulary.
	ReferenceLogProb float64
	// SearchError is set when the reference outscores the decoded labeling,
	// meaning pruning lost a better path.
	SearchError bool
}
