package scoring

import (
	"math"
	"testing"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

func chromaOf(pcs ...int) []float64 {
	out := make([]float64, 12)
	for _, pc := range pcs {
		out[pc] = 1
	}
	return out
}

// cadence is I I IV V I in C major.
func cadence() *piece.Piece {
	profiles := [][]float64{
		chromaOf(0, 4, 7),
		chromaOf(0, 4, 7),
		chromaOf(5, 9, 0),
		chromaOf(7, 11, 2),
		chromaOf(0, 4, 7),
	}
	frames := make([]piece.Frame, len(profiles))
	for i, p := range profiles {
		frames[i] = piece.Frame{Index: i, Onset: float64(i), Duration: 1, Features: p}
	}
	return &piece.Piece{ID: "cadence", Frames: frames}
}

func newTemplate(t *testing.T, p *piece.Piece, v *vocab.Vocabulary) *TemplateModel {
	t.Helper()
	m, err := NewTemplateModel(p, v, DefaultTemplateConfig())
	if err != nil {
		t.Fatalf("NewTemplateModel failed: %v", err)
	}
	return m
}

func sumExp(t *testing.T, scores []float64) float64 {
	t.Helper()
	total := 0.0
	for _, s := range scores {
		if s > 0 || math.IsNaN(s) {
			t.Fatalf("Score %v is not a log-probability", s)
		}
		total += math.Exp(s)
	}
	return total
}

func TestTemplateClassification(t *testing.T) {
	v := vocab.Standard(vocab.AllChords)
	p := cadence()
	m := newTemplate(t, p, v)

	classify := func(start, end int, c vocab.Chord) float64 {
		t.Helper()
		s, err := m.ChordClassification(ClassificationQuery{Frames: p.Frames[start:end], Start: start, End: end, Chord: c})
		if err != nil {
			t.Fatalf("ChordClassification failed: %v", err)
		}
		return s
	}

	var (
		scores []float64
		best   vocab.Chord
		bestV  = math.Inf(-1)
	)
	for _, c := range v.Chords() {
		s := classify(0, 1, c)
		scores = append(scores, s)
		if c.Inversion == 0 && s > bestV {
			best, bestV = c, s
		}
	}
	if got := sumExp(t, scores); math.Abs(got-1) > 1e-9 {
		t.Errorf("Expected a frame to normalize over chords, sum %v", got)
	}
	if best != cChord {
		t.Errorf("Expected %s to fit C-E-G best, got %s", cChord, best)
	}

	whole := classify(0, 4, cChord)
	if parts := classify(0, 2, cChord) + classify(2, 4, cChord); math.Abs(whole-parts) > 1e-9 {
		t.Errorf("Expected span scores to add up: %v vs %v", whole, parts)
	}
	// a C label over the F and G frames pays for each of them
	fChord := vocab.Chord{Root: 5, Quality: vocab.MajorTriad}
	if split := classify(0, 2, cChord) + classify(2, 3, fChord) + classify(3, 4, gChord); !(split > whole+5) {
		t.Errorf("Expected labeling each chord to beat one C span by a wide margin: %v vs %v", split, whole)
	}
}

func TestTemplateSilentSpanIsUniform(t *testing.T) {
	v := vocab.Standard(vocab.AllChords)
	p := testPiece(2)
	m := newTemplate(t, p, v)

	s, err := m.ChordClassification(ClassificationQuery{Frames: p.Frames, Start: 0, End: 2, Chord: gChord})
	if err != nil {
		t.Fatalf("ChordClassification failed: %v", err)
	}
	want := -2 * math.Log(float64(len(v.Chords())))
	if math.Abs(s-want) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, s)
	}
}

func TestTemplatePriorsNormalize(t *testing.T) {
	v := vocab.Standard(vocab.Diatonic)
	m := newTemplate(t, cadence(), v)

	for _, k := range v.Keys() {
		var initial, sequence []float64
		for _, c := range v.ChordsIn(k) {
			s, err := m.InitialChord(InitialChordQuery{Key: k, Chord: c})
			if err != nil {
				t.Fatalf("InitialChord failed: %v", err)
			}
			initial = append(initial, s)

			s, err = m.ChordSequence(ChordSequenceQuery{Key: k, History: []vocab.Chord{gChord}, Next: c})
			if err != nil {
				t.Fatalf("ChordSequence failed: %v", err)
			}
			sequence = append(sequence, s)
		}
		if got := sumExp(t, initial); math.Abs(got-1) > 1e-9 {
			t.Errorf("%s: initial chord prior sums to %v", k, got)
		}
		if got := sumExp(t, sequence); math.Abs(got-1) > 1e-9 {
			t.Errorf("%s: chord sequence prior sums to %v", k, got)
		}

		var next []float64
		for _, k2 := range v.Keys() {
			if k2 == k {
				continue
			}
			s, err := m.KeySequence(KeySequenceQuery{History: []vocab.Key{k}, Next: k2})
			if err != nil {
				t.Fatalf("KeySequence failed: %v", err)
			}
			next = append(next, s)
		}
		if got := sumExp(t, next); math.Abs(got-1) > 1e-9 {
			t.Errorf("%s: key sequence prior sums to %v", k, got)
		}
	}
}

func TestTemplateOpeningKey(t *testing.T) {
	v := vocab.Standard(vocab.AllChords)
	p := cadence()
	m := newTemplate(t, p, v)

	var (
		scores []float64
		best   vocab.Key
		bestV  = math.Inf(-1)
	)
	for _, k := range v.Keys() {
		s, err := m.KeySequence(KeySequenceQuery{Next: k})
		if err != nil {
			t.Fatalf("KeySequence failed: %v", err)
		}
		scores = append(scores, s)
		if s > bestV {
			best, bestV = k, s
		}
	}
	if got := sumExp(t, scores); math.Abs(got-1) > 1e-9 {
		t.Errorf("Opening key prior sums to %v", got)
	}
	if best != cMajor {
		t.Errorf("Expected C major opening, got %s", best)
	}
}

func TestTemplateTransitions(t *testing.T) {
	v := vocab.Standard(vocab.AllChords)
	p := cadence()
	m := newTemplate(t, p, v)

	change := make([]float64, p.Len()+1)
	for at := 1; at <= p.Len(); at++ {
		c, err := m.ChangeProb(p.Frames, at)
		if err != nil {
			t.Fatalf("ChangeProb(%d) failed: %v", at, err)
		}
		change[at] = c
	}
	if change[p.Len()] != 1 {
		t.Errorf("Expected a certain change at the piece end, got %v", change[p.Len()])
	}
	if !(change[2] > 0.5 && change[3] > 0.5 && change[4] > 0.5) {
		t.Errorf("Expected likely changes where the chord moves: %v", change)
	}
	if change[1] >= 0.5 {
		t.Errorf("Expected an unlikely change between repeated frames: %v", change[1])
	}

	tests := []struct {
		start, end int
		want       float64
	}{
		{0, 1, math.Log(change[1])},
		{0, 2, math.Log1p(-change[1]) + math.Log(change[2])},
		{1, 4, math.Log1p(-change[2]) + math.Log1p(-change[3]) + math.Log(change[4])},
		{4, 5, 0},
		{0, 5, math.Log1p(-change[1]) + math.Log1p(-change[2]) + math.Log1p(-change[3]) + math.Log1p(-change[4])},
	}
	for _, tt := range tests {
		got, err := m.ChordTransition(ChordBoundaryQuery{Frames: p.Frames, Start: tt.start, End: tt.end, Key: cMajor, Chord: cChord})
		if err != nil {
			t.Fatalf("ChordTransition [%d,%d) failed: %v", tt.start, tt.end, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ChordTransition [%d,%d) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}

	pk := 1 / DefaultTemplateConfig().MeanKeyFrames
	keyTests := []struct {
		start, end int
		want       float64
	}{
		{0, 1, math.Log(pk)},
		{0, 3, 2*math.Log1p(-pk) + math.Log(pk)},
		{2, 5, 2 * math.Log1p(-pk)},
	}
	for _, tt := range keyTests {
		got, err := m.KeyTransition(KeyBoundaryQuery{Frames: p.Frames, Start: tt.start, End: tt.end, Key: cMajor, LastChord: cChord})
		if err != nil {
			t.Fatalf("KeyTransition [%d,%d) failed: %v", tt.start, tt.end, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("KeyTransition [%d,%d) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}

	if _, err := m.ChordTransition(ChordBoundaryQuery{Frames: p.Frames, Start: 2, End: 9}); err == nil {
		t.Error("Expected an error for a span past the piece end")
	}
	if _, err := m.ChangeProb(p.Frames, 0); err == nil {
		t.Error("Expected an error for boundary 0")
	}
}

func TestTemplateConfigValidation(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.MeanChordFrames = 0
	if _, err := NewTemplateModel(cadence(), vocab.Standard(vocab.AllChords), cfg); err == nil {
		t.Error("Expected error for zero mean chord length")
	}
}

func TestFifthsDistance(t *testing.T) {
	tests := []struct {
		a, b vocab.PitchClass
		want int
	}{
		{0, 0, 0},
		{0, 7, 1},
		{0, 5, 1},
		{0, 2, 2},
		{0, 6, 6},
		{0, 1, 5},
	}
	for _, tt := range tests {
		if got := fifthsDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("fifthsDistance(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
