package decode

import (
	"fmt"
	"slices"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/scoring"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// reconstruct walks the segment chain from last to first and returns the
// segments in frame order with their cumulative scores.
func reconstruct(last *segmentNode) ([]piece.Segment, []float64) {
	var (
		segments   []piece.Segment
		cumulative []float64
	)
	for n := last; n != nil; n = n.parent {
		segments = append(segments, n.seg)
		cumulative = append(cumulative, n.logProb)
	}
	slices.Reverse(segments)
	slices.Reverse(cumulative)
	return segments, cumulative
}

// Rescore returns the log-probability the decoder would assign to an
// existing labeling of p, such as a reference annotation. Adjacent segments
// with the same key belong to one key segment.
func Rescore(p *piece.Piece, v *vocab.Vocabulary, m scoring.Model, segments []piece.Segment) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := piece.CheckPartition(segments, p.Len(), v); err != nil {
		return 0, fmt.Errorf("%w: %v", piece.ErrInvalidPiece, err)
	}
	a, err := scoring.NewAdapter(m, v, p, 0)
	if err != nil {
		return 0, err
	}

	var (
		total    float64
		keys     []vocab.Key
		chords   []vocab.Chord
		keyStart int
	)
	add := func(score float64, err error) error {
		total += score
		return err
	}
	for i, s := range segments {
		switch {
		case i == 0:
			if err := add(a.KeySequence(nil, s.Key)); err != nil {
				return 0, err
			}
			if err := add(a.InitialChord(s.Key, s.Chord)); err != nil {
				return 0, err
			}
		case s.Key != segments[i-1].Key:
			prev := segments[i-1]
			if err := add(a.KeyTransition(keyStart, s.Start, prev.Key, prev.Chord)); err != nil {
				return 0, err
			}
			keys = append(keys, prev.Key)
			chords = nil
			keyStart = s.Start
			if err := add(a.KeySequence(keys, s.Key)); err != nil {
				return 0, err
			}
			if err := add(a.ChordSequence(s.Key, nil, s.Chord)); err != nil {
				return 0, err
			}
		default:
			chords = append(chords, segments[i-1].Chord)
			if err := add(a.ChordSequence(s.Key, chords, s.Chord)); err != nil {
				return 0, err
			}
		}
		if err := add(a.ChordClassification(s.Start, s.End, s.Chord)); err != nil {
			return 0, err
		}
		if err := add(a.ChordTransition(s.Start, s.End, s.Key, s.Chord)); err != nil {
			return 0, err
		}
	}
	last := segments[len(segments)-1]
	if err := add(a.KeyTransition(keyStart, p.Len(), last.Key, last.Chord)); err != nil {
		return 0, err
	}
	return total, nil
}
