package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// Krumhansl-Kessler probe tone profiles, tonic first.
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// TemplateConfig tunes the untrained reference model.
type TemplateConfig struct {
	// Sharpness scales template similarity before the softmax over chords.
	Sharpness float64
	// MeanChordFrames and MeanKeyFrames set the geometric duration priors.
	MeanChordFrames float64
	MeanKeyFrames   float64
	// ChangeBonus is added to the chord change probability per unit of
	// cosine distance between the profiles either side of a boundary.
	ChangeBonus float64
	// KeySharpness scales profile correlation before the softmax over opening keys.
	KeySharpness float64
}

// DefaultTemplateConfig returns settings that work for block-chord textures.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		Sharpness:       12,
		MeanChordFrames: 4,
		MeanKeyFrames:   64,
		ChangeBonus:     1,
		KeySharpness:    6,
	}
}

// TemplateModel scores frames against binary chord templates and uses simple
// music-theoretic priors for everything else. It needs no training and reads
// the first 12 feature values of each frame as a pitch-class profile.
// A TemplateModel is bound to one piece.
//
// A span's classification is the sum of its frames' log-probabilities, and
// a segment's transition score is the product of a change at its end and no
// change at every boundary inside it.
type TemplateModel struct {
	vocab  *vocab.Vocabulary
	cfg    TemplateConfig
	frames int

	templates [][]float64 // by chord id
	frameCls  [][]float64 // [chord id][i] summed log-prob of frames [0, i)
	change    []float64   // [i] chord change probability at boundary i
	stay      []float64   // [i] summed log(1-change) over boundaries 1..i

	seqNorm  [][]float64 // [key id][previous root] log normalizer
	initNorm []float64   // [key id] log normalizer
	keyPrior []float64   // [key id] opening key log-prob
	keyNorm  []float64   // [previous key id] log normalizer
}

var (
	_ Model       = (*TemplateModel)(nil)
	_ ChangeModel = (*TemplateModel)(nil)
)

// NewTemplateModel binds a template model to p.
func NewTemplateModel(p *piece.Piece, v *vocab.Vocabulary, cfg TemplateConfig) (*TemplateModel, error) {
	if p == nil || v == nil {
		return nil, fmt.Errorf("template model: piece and vocabulary are required")
	}
	if cfg.Sharpness <= 0 || cfg.MeanChordFrames < 1 || cfg.MeanKeyFrames < 1 || cfg.KeySharpness <= 0 || cfg.ChangeBonus < 0 {
		return nil, fmt.Errorf("template model: invalid config %+v", cfg)
	}

	m := &TemplateModel{vocab: v, cfg: cfg, frames: p.Len()}

	m.templates = make([][]float64, len(v.Chords()))
	for i, c := range v.Chords() {
		m.templates[i] = chordTemplate(c)
	}
	m.classifyFrames(p.Frames)
	m.changePoints(p.Frames)

	keys := v.Keys()
	m.seqNorm = make([][]float64, len(keys))
	m.initNorm = make([]float64, len(keys))
	m.keyNorm = make([]float64, len(keys))
	for ki, k := range keys {
		m.seqNorm[ki] = make([]float64, vocab.NumPitchClasses)
		for prev := vocab.PitchClass(0); prev < vocab.NumPitchClasses; prev++ {
			w := make([]float64, 0, len(v.ChordsIn(k)))
			for _, c := range v.ChordsIn(k) {
				w = append(w, m.sequenceWeight(k, prev, c))
			}
			m.seqNorm[ki][prev] = logSum(w)
		}

		w := make([]float64, 0, len(v.ChordsIn(k)))
		for _, c := range v.ChordsIn(k) {
			w = append(w, m.initialWeight(k, c))
		}
		m.initNorm[ki] = logSum(w)

		kw := make([]float64, 0, len(keys))
		for _, next := range keys {
			if next != k {
				kw = append(kw, keyWeight(k, next))
			}
		}
		m.keyNorm[ki] = logSum(kw)
	}

	m.keyPrior = m.openingKeyPrior(p)
	return m, nil
}

// TemplateFactory returns a Factory building TemplateModels with cfg.
func TemplateFactory(cfg TemplateConfig) Factory {
	return func(p *piece.Piece, v *vocab.Vocabulary) (Model, error) {
		return NewTemplateModel(p, v, cfg)
	}
}

func (m *TemplateModel) InitialChord(q InitialChordQuery) (float64, error) {
	ki := m.vocab.KeyID(q.Key)
	if ki < 0 || !m.vocab.Valid(q.Key, q.Chord) {
		return math.Inf(-1), nil
	}
	return math.Log(m.initialWeight(q.Key, q.Chord)) - m.initNorm[ki], nil
}

// ChangeProb returns the probability that the chord changes at boundary at.
// The end of the piece is a certain change.
func (m *TemplateModel) ChangeProb(_ []piece.Frame, at int) (float64, error) {
	if at <= 0 || at > m.frames {
		return 0, fmt.Errorf("template model: boundary %d outside (0, %d]", at, m.frames)
	}
	return m.change[at], nil
}

func (m *TemplateModel) ChordTransition(q ChordBoundaryQuery) (float64, error) {
	if err := m.checkSpan(q.Start, q.End); err != nil {
		return 0, err
	}
	score := m.stay[q.End-1] - m.stay[q.Start]
	if q.End < m.frames {
		score += math.Log(m.change[q.End])
	}
	return score, nil
}

func (m *TemplateModel) ChordClassification(q ClassificationQuery) (float64, error) {
	ci := m.vocab.ChordID(q.Chord)
	if ci < 0 {
		return 0, fmt.Errorf("chord %s: %w", q.Chord, vocab.ErrUnknownLabel)
	}
	if err := m.checkSpan(q.Start, q.End); err != nil {
		return 0, err
	}
	return m.frameCls[ci][q.End] - m.frameCls[ci][q.Start], nil
}

func (m *TemplateModel) checkSpan(start, end int) error {
	if start < 0 || start >= end || end > m.frames {
		return fmt.Errorf("template model: span [%d, %d) outside a %d-frame piece", start, end, m.frames)
	}
	return nil
}

// classifyFrames fills frameCls with a softmax over chords per frame.
// Silent frames are uniform.
func (m *TemplateModel) classifyFrames(frames []piece.Frame) {
	n := len(m.templates)
	uniform := -math.Log(float64(n))
	m.frameCls = make([][]float64, n)
	for ci := range m.frameCls {
		m.frameCls[ci] = make([]float64, len(frames)+1)
	}

	logits := make([]float64, n)
	for i := range frames {
		profile := spanProfile(frames[i : i+1])
		silent := floats.Norm(profile, 2) == 0
		var norm float64
		if !silent {
			for ci, t := range m.templates {
				logits[ci] = m.cfg.Sharpness * cosine(profile, t)
			}
			norm = floats.LogSumExp(logits)
		}
		for ci := range m.frameCls {
			s := uniform
			if !silent {
				s = logits[ci] - norm
			}
			m.frameCls[ci][i+1] = m.frameCls[ci][i] + s
		}
	}
}

// changePoints fills change and stay from the geometric chord-length prior
// raised by the profile distance across each boundary.
func (m *TemplateModel) changePoints(frames []piece.Frame) {
	n := len(frames)
	m.change = make([]float64, n+1)
	m.stay = make([]float64, n+1)
	for i := 1; i < n; i++ {
		p := 1/m.cfg.MeanChordFrames + m.cfg.ChangeBonus*profileDistance(frames[i-1], frames[i])
		m.change[i] = clampProb(p)
		m.stay[i] = m.stay[i-1] + math.Log1p(-m.change[i])
	}
	if n > 0 {
		m.change[n] = 1
		m.stay[n] = m.stay[n-1]
	}
}

func (m *TemplateModel) ChordSequence(q ChordSequenceQuery) (float64, error) {
	ki := m.vocab.KeyID(q.Key)
	if ki < 0 || !m.vocab.Valid(q.Key, q.Next) {
		return math.Inf(-1), nil
	}
	prev := q.Key.Tonic
	if n := len(q.History); n > 0 {
		prev = q.History[n-1].Root
	}
	return math.Log(m.sequenceWeight(q.Key, prev, q.Next)) - m.seqNorm[ki][prev], nil
}

func (m *TemplateModel) KeyTransition(q KeyBoundaryQuery) (float64, error) {
	if err := m.checkSpan(q.Start, q.End); err != nil {
		return 0, err
	}
	p := clampProb(1 / m.cfg.MeanKeyFrames)
	score := float64(q.End-q.Start-1) * math.Log1p(-p)
	if q.End < m.frames {
		score += math.Log(p)
	}
	return score, nil
}

func (m *TemplateModel) KeySequence(q KeySequenceQuery) (float64, error) {
	next := m.vocab.KeyID(q.Next)
	if next < 0 {
		return 0, fmt.Errorf("key %s: %w", q.Next, vocab.ErrUnknownLabel)
	}
	if len(q.History) == 0 {
		return m.keyPrior[next], nil
	}
	prev := q.History[len(q.History)-1]
	pi := m.vocab.KeyID(prev)
	if pi < 0 || prev == q.Next {
		return math.Inf(-1), nil
	}
	return math.Log(keyWeight(prev, q.Next)) - m.keyNorm[pi], nil
}

// ChordHistoryLimit reports that only the previous chord is read.
func (m *TemplateModel) ChordHistoryLimit() int { return 1 }

// KeyHistoryLimit reports that only the previous key is read.
func (m *TemplateModel) KeyHistoryLimit() int { return 1 }

func (m *TemplateModel) sequenceWeight(k vocab.Key, prev vocab.PitchClass, c vocab.Chord) float64 {
	w := rootMotionWeight(int(c.Root) - int(prev))
	return w * m.labelWeight(k, c)
}

func (m *TemplateModel) initialWeight(k vocab.Key, c vocab.Chord) float64 {
	w := 1.0
	switch vocab.Relative(k, c).Interval {
	case 0:
		w = 4
	case 7:
		w = 2
	}
	return w * m.labelWeight(k, c)
}

// labelWeight prefers root position and chords built from the key's scale.
func (m *TemplateModel) labelWeight(k vocab.Key, c vocab.Chord) float64 {
	w := 1.0
	if c.Inversion > 0 {
		w *= 0.5
	}
	if vocab.Diatonic.Allows(k, c) {
		w *= 3
	}
	return w
}

func (m *TemplateModel) openingKeyPrior(p *piece.Piece) []float64 {
	keys := m.vocab.Keys()
	profile := spanProfile(p.Frames)
	logits := make([]float64, len(keys))
	if floats.Norm(profile, 2) > 0 {
		rotated := make([]float64, vocab.NumPitchClasses)
		for i, k := range keys {
			base := majorProfile
			if k.Mode == vocab.Minor {
				base = minorProfile
			}
			for j := range rotated {
				rotated[j] = base[vocab.PitchClass(j).Transpose(-int(k.Tonic))]
			}
			r := stat.Correlation(profile, rotated, nil)
			if math.IsNaN(r) {
				r = 0
			}
			logits[i] = m.cfg.KeySharpness * r
		}
	}
	norm := floats.LogSumExp(logits)
	for i := range logits {
		logits[i] -= norm
	}
	return logits
}

// chordTemplate marks chord tones, weighting the bass so inversions differ.
func chordTemplate(c vocab.Chord) []float64 {
	t := make([]float64, vocab.NumPitchClasses)
	for _, pc := range c.PitchClasses() {
		t[pc] = 1
	}
	t[c.Bass()] = 1.5
	return t
}

// spanProfile sums duration-weighted pitch-class profiles.
func spanProfile(frames []piece.Frame) []float64 {
	profile := make([]float64, vocab.NumPitchClasses)
	for _, f := range frames {
		n := min(len(f.Features), vocab.NumPitchClasses)
		weight := f.Duration
		if weight <= 0 {
			weight = 1
		}
		floats.AddScaled(profile[:n], weight, f.Features[:n])
	}
	return profile
}

func profileDistance(a, b piece.Frame) float64 {
	pa := spanProfile([]piece.Frame{a})
	pb := spanProfile([]piece.Frame{b})
	if floats.Norm(pa, 2) == 0 || floats.Norm(pb, 2) == 0 {
		return 0
	}
	return 1 - cosine(pa, pb)
}

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// rootMotionWeight favors falling fifths, then rising fifths and steps.
func rootMotionWeight(interval int) float64 {
	switch ((interval % 12) + 12) % 12 {
	case 5:
		return 3
	case 7, 2, 10:
		return 1.5
	case 0:
		return 0.5
	default:
		return 1
	}
}

// keyWeight decays with the circle-of-fifths distance between the keys'
// relative major tonics.
func keyWeight(from, to vocab.Key) float64 {
	d := fifthsDistance(relativeMajor(from), relativeMajor(to))
	w := math.Exp(-float64(d))
	if from.Tonic == to.Tonic {
		// parallel major and minor
		w += math.Exp(-1)
	}
	return w
}

func relativeMajor(k vocab.Key) vocab.PitchClass {
	if k.Mode == vocab.Minor {
		return k.Tonic.Transpose(3)
	}
	return k.Tonic
}

func fifthsDistance(a, b vocab.PitchClass) int {
	// 7 is its own inverse mod 12, so it maps semitones to fifths
	steps := (int(b) - int(a) + 12) % 12 * 7 % 12
	return min(steps, 12-steps)
}

func logSum(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	logs := make([]float64, len(w))
	for i, v := range w {
		logs[i] = math.Log(v)
	}
	return floats.LogSumExp(logs)
}

func clampProb(p float64) float64 {
	return math.Min(math.Max(p, 1e-6), 1-1e-6)
}
