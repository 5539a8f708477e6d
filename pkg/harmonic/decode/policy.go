package decode

import "github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"

// Boundary describes a hypothesis standing at frame boundary At with an open
// key segment starting at KeyStart and an open chord segment starting at ChordStart.
type Boundary struct {
	Frames     []piece.Frame
	KeyStart   int
	ChordStart int
	At         int
}

// Policy decides which expansions the decoder may offer at a boundary.
// The end of the piece is always a legal boundary and is not consulted.
type Policy interface {
	// AllowContinue reports whether the open chord may extend over frame At.
	AllowContinue(b Boundary) bool
	// AllowChordBoundary reports whether the chord segment [ChordStart, At) may close.
	AllowChordBoundary(b Boundary) bool
	// AllowKeyBoundary reports whether the key segment [KeyStart, At) may close.
	AllowKeyBoundary(b Boundary) bool
}

// LengthPolicy enforces minimum segment lengths and a maximum chord duration.
type LengthPolicy struct {
	MinChordFrames   int
	MinKeyFrames     int
	MaxChordDuration float64
}

func (p LengthPolicy) AllowContinue(b Boundary) bool {
	if p.MaxChordDuration <= 0 {
		return true
	}
	total := 0.0
	for i := b.ChordStart; i <= b.At && i < len(b.Frames); i++ {
		total += b.Frames[i].Duration
	}
	return total <= p.MaxChordDuration
}

func (p LengthPolicy) AllowChordBoundary(b Boundary) bool {
	return b.At-b.ChordStart >= p.MinChordFrames
}

func (p LengthPolicy) AllowKeyBoundary(b Boundary) bool {
	return b.At-b.KeyStart >= p.MinKeyFrames
}

// OnsetPolicy forbids boundaries in front of a frame that starts together
// with its predecessor, so simultaneous notes always share a label.
type OnsetPolicy struct{}

func (OnsetPolicy) AllowContinue(Boundary) bool { return true }

func (OnsetPolicy) AllowChordBoundary(b Boundary) bool {
	return !sharesOnset(b)
}

func (OnsetPolicy) AllowKeyBoundary(b Boundary) bool {
	return !sharesOnset(b)
}

func sharesOnset(b Boundary) bool {
	if b.At <= 0 || b.At >= len(b.Frames) {
		return false
	}
	return b.Frames[b.At].Onset == b.Frames[b.At-1].Onset
}

// Policies allows an expansion only when every member allows it.
type Policies []Policy

func (ps Policies) AllowContinue(b Boundary) bool {
	for _, p := range ps {
		if !p.AllowContinue(b) {
			return false
		}
	}
	return true
}

func (ps Policies) AllowChordBoundary(b Boundary) bool {
	for _, p := range ps {
		if !p.AllowChordBoundary(b) {
			return false
		}
	}
	return true
}

func (ps Policies) AllowKeyBoundary(b Boundary) bool {
	for _, p := range ps {
		if !p.AllowKeyBoundary(b) {
			return false
		}
	}
	return true
}
