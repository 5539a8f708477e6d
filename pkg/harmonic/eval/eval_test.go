package eval

import (
	"errors"
	"math"
	"testing"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

var (
	cMajor = vocab.Key{Tonic: 0, Mode: vocab.Major}
	cMinor = vocab.Key{Tonic: 0, Mode: vocab.Minor}
	gMajor = vocab.Key{Tonic: 7, Mode: vocab.Major}

	cChord   = vocab.Chord{Root: 0, Quality: vocab.MajorTriad}
	gChord   = vocab.Chord{Root: 7, Quality: vocab.MajorTriad}
	gChord6  = vocab.Chord{Root: 7, Quality: vocab.MajorTriad, Inversion: 1}
	cmChord  = vocab.Chord{Root: 0, Quality: vocab.MinorTriad}
	tolerant = 1e-12
)

func weighted(durations ...float64) *piece.Piece {
	frames := make([]piece.Frame, len(durations))
	onset := 0.0
	for i, d := range durations {
		frames[i] = piece.Frame{Index: i, Onset: onset, Duration: d}
		onset += d
	}
	return &piece.Piece{ID: "eval", Frames: frames}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < tolerant
}

func TestCompare(t *testing.T) {
	p := weighted(1, 1, 2, 4)
	ref := []piece.Segment{
		{Start: 0, End: 2, Key: cMajor, Chord: cChord},
		{Start: 2, End: 4, Key: gMajor, Chord: gChord},
	}
	pred := []piece.Segment{
		{Start: 0, End: 1, Key: cMajor, Chord: cChord},
		{Start: 1, End: 3, Key: cMajor, Chord: gChord6},
		{Start: 3, End: 4, Key: gMajor, Chord: gChord},
	}

	tests := []struct {
		name                string
		opts                Options
		chord, key, joint   float64
		chordP, chordR      float64
		keyP, keyR, chordF1 float64
	}{
		{"strict", Options{}, 0.625, 0.75, 0.625, 0, 0, 0, 0, 0},
		{"ignore inversion", Options{IgnoreInversion: true}, 0.875, 0.75, 0.625, 0, 0, 0, 0, 0},
		{"tolerance", Options{Tolerance: 1}, 0.625, 0.75, 0.625, 0.5, 1, 1, 1, 2.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compare(p, ref, pred, tt.opts)
			if err != nil {
				t.Fatalf("Compare failed: %v", err)
			}
			if r.Frames != 4 || r.Duration != 8 {
				t.Errorf("Expected 4 frames over 8 beats, got %d over %v", r.Frames, r.Duration)
			}
			if !near(r.ChordAccuracy, tt.chord) || !near(r.KeyAccuracy, tt.key) || !near(r.JointAccuracy, tt.joint) {
				t.Errorf("Expected accuracies %v/%v/%v, got %v/%v/%v",
					tt.chord, tt.key, tt.joint, r.ChordAccuracy, r.KeyAccuracy, r.JointAccuracy)
			}
			if !near(r.Chord.Precision, tt.chordP) || !near(r.Chord.Recall, tt.chordR) || !near(r.Chord.F1, tt.chordF1) {
				t.Errorf("Unexpected chord boundaries %+v", r.Chord)
			}
			if !near(r.Key.Precision, tt.keyP) || !near(r.Key.Recall, tt.keyR) {
				t.Errorf("Unexpected key boundaries %+v", r.Key)
			}
		})
	}
}

func TestCompareTonicOnly(t *testing.T) {
	p := weighted(1, 1)
	ref := []piece.Segment{{Start: 0, End: 2, Key: cMajor, Chord: cChord}}
	pred := []piece.Segment{{Start: 0, End: 2, Key: cMinor, Chord: cmChord}}

	r, _ := Compare(p, ref, pred, Options{})
	if r.KeyAccuracy != 0 {
		t.Errorf("Expected mode mismatch to miss, got %v", r.KeyAccuracy)
	}
	r, _ = Compare(p, ref, pred, Options{TonicOnly: true})
	if r.KeyAccuracy != 1 || r.JointAccuracy != 0 {
		t.Errorf("Expected tonic-only key hit and chord miss, got key %v joint %v", r.KeyAccuracy, r.JointAccuracy)
	}
	if r.Chord.Precision != 1 || r.Chord.Recall != 1 {
		t.Errorf("Expected single segments to agree on segmentation, got %+v", r.Chord)
	}
}

func TestCompareZeroDuration(t *testing.T) {
	p := weighted(0, 0, 0, 0)
	ref := []piece.Segment{{Start: 0, End: 4, Key: cMajor, Chord: cChord}}
	pred := []piece.Segment{
		{Start: 0, End: 1, Key: cMajor, Chord: cChord},
		{Start: 1, End: 4, Key: cMajor, Chord: gChord},
	}

	r, err := Compare(p, ref, pred, Options{})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if !near(r.ChordAccuracy, 0.25) {
		t.Errorf("Expected uniform weights to give 0.25, got %v", r.ChordAccuracy)
	}
	if r.Chord.Precision != 0 || r.Chord.Recall != 1 || r.Chord.F1 != 0 {
		t.Errorf("Expected a spurious boundary to cost precision only, got %+v", r.Chord)
	}
}

func TestCompareRejectsMismatch(t *testing.T) {
	p := weighted(1, 1, 1)
	full := []piece.Segment{{Start: 0, End: 3, Key: cMajor, Chord: cChord}}
	short := []piece.Segment{{Start: 0, End: 2, Key: cMajor, Chord: cChord}}

	if _, err := Compare(p, full, short, Options{}); !errors.Is(err, ErrMismatch) {
		t.Errorf("Expected ErrMismatch for short prediction, got %v", err)
	}
	if _, err := Compare(p, short, full, Options{}); !errors.Is(err, ErrMismatch) {
		t.Errorf("Expected ErrMismatch for short reference, got %v", err)
	}
	if _, err := Compare(&piece.Piece{}, full, full, Options{}); !errors.Is(err, piece.ErrInvalidPiece) {
		t.Errorf("Expected ErrInvalidPiece, got %v", err)
	}
	if _, err := Compare(p, full, full, Options{Tolerance: -1}); err == nil {
		t.Error("Expected negative tolerance to fail")
	}
}

func TestCompareReduce(t *testing.T) {
	p := weighted(1, 1, 1, 1)
	chord := func(root vocab.PitchClass, q vocab.Quality) vocab.Chord {
		return vocab.Chord{Root: root, Quality: q}
	}
	ref := []piece.Segment{
		{Start: 0, End: 1, Key: cMajor, Chord: chord(0, vocab.MajorTriad)},
		{Start: 1, End: 2, Key: cMajor, Chord: chord(7, vocab.DominantSeventh)},
		{Start: 2, End: 3, Key: cMajor, Chord: chord(9, vocab.MinorTriad)},
		{Start: 3, End: 4, Key: cMajor, Chord: chord(11, vocab.DiminishedTriad)},
	}
	pred := []piece.Segment{
		{Start: 0, End: 1, Key: cMajor, Chord: chord(0, vocab.MajorSeventh)},
		{Start: 1, End: 2, Key: cMajor, Chord: chord(7, vocab.MajorTriad)},
		{Start: 2, End: 3, Key: cMajor, Chord: chord(9, vocab.MinorSeventh)},
		{Start: 3, End: 4, Key: cMajor, Chord: chord(11, vocab.MinorTriad)},
	}

	tests := []struct {
		name   string
		reduce string
		want   float64
	}{
		{"as labeled", "none", 0},
		{"sevenths to triads", "triads", 0.75},
		{"thirds only", "major-minor", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reduce, ok := Reductions[tt.reduce]
			if !ok {
				t.Fatalf("Unknown reduction %q", tt.reduce)
			}
			r, err := Compare(p, ref, pred, Options{Reduce: reduce})
			if err != nil {
				t.Fatalf("Compare failed: %v", err)
			}
			if !near(r.ChordAccuracy, tt.want) {
				t.Errorf("Expected chord accuracy %v, got %v", tt.want, r.ChordAccuracy)
			}
			if r.KeyAccuracy != 1 {
				t.Errorf("Expected reductions to leave keys alone, got %v", r.KeyAccuracy)
			}
		})
	}
}

func TestReductions(t *testing.T) {
	tests := []struct {
		in, triad, majorMinor vocab.Quality
	}{
		{vocab.MajorTriad, vocab.MajorTriad, vocab.MajorTriad},
		{vocab.AugmentedTriad, vocab.AugmentedTriad, vocab.MajorTriad},
		{vocab.DominantSeventh, vocab.MajorTriad, vocab.MajorTriad},
		{vocab.MinorSeventh, vocab.MinorTriad, vocab.MinorTriad},
		{vocab.HalfDiminishedSeventh, vocab.DiminishedTriad, vocab.MinorTriad},
		{vocab.DiminishedSeventh, vocab.DiminishedTriad, vocab.MinorTriad},
	}
	for _, tt := range tests {
		if got := Triads(tt.in); got != tt.triad {
			t.Errorf("Triads(%s) = %s, want %s", tt.in, got, tt.triad)
		}
		if got := MajorMinor(tt.in); got != tt.majorMinor {
			t.Errorf("MajorMinor(%s) = %s, want %s", tt.in, got, tt.majorMinor)
		}
	}
}
