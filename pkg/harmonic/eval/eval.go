// Package eval scores a predicted labeling against a reference labeling of
// the same piece.
package eval

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// ErrMismatch is returned when the two labelings do not partition the same piece.
var ErrMismatch = errors.New("labelings do not cover the piece")

// Options relax label comparison.
type Options struct {
	// IgnoreInversion compares chords by root and quality only.
	IgnoreInversion bool
	// TonicOnly compares keys by tonic, ignoring mode.
	TonicOnly bool
	// Tolerance is how many frames a predicted boundary may sit away from a
	// reference boundary and still count as a hit.
	Tolerance int
	// Reduce maps both chord qualities before they are compared. Nil
	// compares qualities as labeled.
	Reduce func(vocab.Quality) vocab.Quality
}

// Triads reduces every seventh chord to the triad it is built on.
func Triads(q vocab.Quality) vocab.Quality {
	switch q {
	case vocab.MajorSeventh, vocab.DominantSeventh:
		return vocab.MajorTriad
	case vocab.MinorSeventh:
		return vocab.MinorTriad
	case vocab.HalfDiminishedSeventh, vocab.DiminishedSeventh:
		return vocab.DiminishedTriad
	}
	return q
}

// MajorMinor reduces every quality to major or minor by its third.
func MajorMinor(q vocab.Quality) vocab.Quality {
	switch Triads(q) {
	case vocab.MinorTriad, vocab.DiminishedTriad:
		return vocab.MinorTriad
	}
	return vocab.MajorTriad
}

// Reductions names the chord quality reductions for command line use.
var Reductions = map[string]func(vocab.Quality) vocab.Quality{
	"none":        nil,
	"triads":      Triads,
	"major-minor": MajorMinor,
}

// Boundaries holds precision and recall of segment starts.
type Boundaries struct {
	Precision float64
	Recall    float64
	F1        float64
	Predicted int
	Reference int
}

// Report is the result of comparing two labelings. Accuracies are
// duration-weighted fractions in [0, 1].
type Report struct {
	Frames        int
	Duration      float64
	ChordAccuracy float64
	KeyAccuracy   float64
	JointAccuracy float64
	Chord         Boundaries
	Key           Boundaries
}

func (r Report) String() string {
	return fmt.Sprintf("chord %.1f%% key %.1f%% joint %.1f%% | chord boundaries P %.2f R %.2f | key boundaries P %.2f R %.2f",
		100*r.ChordAccuracy, 100*r.KeyAccuracy, 100*r.JointAccuracy,
		r.Chord.Precision, r.Chord.Recall, r.Key.Precision, r.Key.Recall)
}

// Compare scores pred against ref. Both must partition p; segments with
// out-of-range spans are rejected. Frame weights are durations, or uniform
// when the piece has zero total duration.
func Compare(p *piece.Piece, ref, pred []piece.Segment, opts Options) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	n := p.Len()
	if err := piece.CheckPartition(ref, n, nil); err != nil {
		return Report{}, fmt.Errorf("%w: reference: %v", ErrMismatch, err)
	}
	if err := piece.CheckPartition(pred, n, nil); err != nil {
		return Report{}, fmt.Errorf("%w: prediction: %v", ErrMismatch, err)
	}
	if opts.Tolerance < 0 {
		return Report{}, fmt.Errorf("negative boundary tolerance %d", opts.Tolerance)
	}

	weights := make([]float64, n)
	for i, f := range p.Frames {
		weights[i] = f.Duration
	}
	total := floats.Sum(weights)
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(n)
	}

	refKeys, refChords := piece.FrameLabels(ref, n)
	predKeys, predChords := piece.FrameLabels(pred, n)

	chordHit := make([]float64, n)
	keyHit := make([]float64, n)
	jointHit := make([]float64, n)
	for i := 0; i < n; i++ {
		if sameChord(refChords[i], predChords[i], opts) {
			chordHit[i] = 1
		}
		if sameKey(refKeys[i], predKeys[i], opts.TonicOnly) {
			keyHit[i] = 1
		}
		jointHit[i] = chordHit[i] * keyHit[i]
	}

	return Report{
		Frames:        n,
		Duration:      p.TotalDuration(),
		ChordAccuracy: floats.Dot(weights, chordHit) / total,
		KeyAccuracy:   floats.Dot(weights, keyHit) / total,
		JointAccuracy: floats.Dot(weights, jointHit) / total,
		Chord:         boundaryScore(chordStarts(ref), chordStarts(pred), opts.Tolerance),
		Key:           boundaryScore(keyStarts(ref), keyStarts(pred), opts.Tolerance),
	}, nil
}

func sameChord(a, b vocab.Chord, opts Options) bool {
	if opts.Reduce != nil {
		a.Quality, b.Quality = opts.Reduce(a.Quality), opts.Reduce(b.Quality)
	}
	if opts.IgnoreInversion {
		a.Inversion, b.Inversion = 0, 0
	}
	return a == b
}

func sameKey(a, b vocab.Key, tonicOnly bool) bool {
	if tonicOnly {
		return a.Tonic == b.Tonic
	}
	return a == b
}

// chordStarts lists interior segment starts. Frame 0 is never a boundary.
func chordStarts(segs []piece.Segment) []int {
	var out []int
	for _, s := range segs {
		if s.Start > 0 {
			out = append(out, s.Start)
		}
	}
	return out
}

func keyStarts(segs []piece.Segment) []int {
	var out []int
	for _, ks := range piece.KeySpans(segs) {
		if ks.Start > 0 {
			out = append(out, ks.Start)
		}
	}
	return out
}

// boundaryScore greedily pairs each predicted boundary with the nearest
// unused reference boundary within tol. Both inputs are ascending.
func boundaryScore(ref, pred []int, tol int) Boundaries {
	b := Boundaries{Predicted: len(pred), Reference: len(ref)}
	used := make([]bool, len(ref))
	hits := 0
	for _, p := range pred {
		best, bestDist := -1, tol+1
		for j, r := range ref {
			if used[j] {
				continue
			}
			if d := abs(p - r); d < bestDist {
				best, bestDist = j, d
			}
		}
		if best >= 0 {
			used[best] = true
			hits++
		}
	}

	// No boundaries on either side is a perfect segmentation.
	b.Precision, b.Recall = 1, 1
	if len(pred) > 0 {
		b.Precision = float64(hits) / float64(len(pred))
	}
	if len(ref) > 0 {
		b.Recall = float64(hits) / float64(len(ref))
	}
	if s := b.Precision + b.Recall; s > 0 {
		b.F1 = 2 * b.Precision * b.Recall / s
	}
	return b
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
