package decode

import (
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// segmentNode is one closed segment in a hypothesis's ancestry. Nodes are
// shared between every hypothesis descending from the same prefix.
type segmentNode struct {
	seg     piece.Segment
	logProb float64 // cumulative score once this segment closed
	parent  *segmentNode
}

type chordNode struct {
	chord  vocab.Chord
	parent *chordNode
	depth  int
}

type keyNode struct {
	key    vocab.Key
	parent *keyNode
	depth  int
}

// Hypothesis is one partial labeling of frames [0, End()). It always holds
// exactly one open chord segment inside exactly one open key segment.
// Hypotheses are never modified after construction.
type Hypothesis struct {
	key        vocab.Key
	chord      vocab.Chord
	keyStart   int
	chordStart int
	end        int

	// closed chords of the open key segment, and closed keys
	chords *chordNode
	keys   *keyNode

	segments    *segmentNode
	numSegments int
	numKeys     int

	// committed holds every score except the open span's classification,
	// which is replaced each time the chord extends.
	committed float64
	openCls   float64

	order int
}

// Key is the key of the open key segment.
func (h *Hypothesis) Key() vocab.Key { return h.key }

// Chord is the chord of the open chord segment.
func (h *Hypothesis) Chord() vocab.Chord { return h.chord }

// KeyStart is the first frame of the open key segment.
func (h *Hypothesis) KeyStart() int { return h.keyStart }

// ChordStart is the first frame of the open chord segment.
func (h *Hypothesis) ChordStart() int { return h.chordStart }

// End is the exclusive end of the frames covered so far.
func (h *Hypothesis) End() int { return h.end }

// LogProb is the cumulative log-probability.
func (h *Hypothesis) LogProb() float64 { return h.committed + h.openCls }

// Segments counts closed chord segments.
func (h *Hypothesis) Segments() int { return h.numSegments }

// chordHistory returns up to limit trailing closed chords of the open key
// segment, oldest first; limit 0 returns all.
func (h *Hypothesis) chordHistory(limit int) []vocab.Chord {
	n := 0
	if h.chords != nil {
		n = h.chords.depth
	}
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]vocab.Chord, n)
	node := h.chords
	for i := n - 1; i >= 0; i-- {
		out[i] = node.chord
		node = node.parent
	}
	return out
}

// keyHistory returns up to limit trailing closed keys, oldest first.
func (h *Hypothesis) keyHistory(limit int) []vocab.Key {
	n := 0
	if h.keys != nil {
		n = h.keys.depth
	}
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]vocab.Key, n)
	node := h.keys
	for i := n - 1; i >= 0; i-- {
		out[i] = node.key
		node = node.parent
	}
	return out
}

func pushChord(parent *chordNode, c vocab.Chord) *chordNode {
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return &chordNode{chord: c, parent: parent, depth: depth}
}

func pushKey(parent *keyNode, k vocab.Key) *keyNode {
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return &keyNode{key: k, parent: parent, depth: depth}
}

// closeOpen records the open chord segment as ending at end with the
// cumulative score logProb.
func (h *Hypothesis) closeOpen(end int, logProb float64) *segmentNode {
	return &segmentNode{
		seg:     piece.Segment{Start: h.chordStart, End: end, Key: h.key, Chord: h.chord},
		logProb: logProb,
		parent:  h.segments,
	}
}

// expansion kinds, in generation order
type expansionKind uint8

const (
	expandOpen expansionKind = iota // first frame, no parent
	expandContinue
	expandChord
	expandKey
)

// Candidate is a scored child of a beam hypothesis that has not been
// materialized yet. Most candidates are pruned, so hypotheses are only
// allocated for survivors.
type Candidate struct {
	parent    *Hypothesis
	kind      expansionKind
	at        int
	key       vocab.Key
	chord     vocab.Chord
	committed float64 // includes the closing scores and new openings
	closed    float64 // cumulative score once the parent's open segment closed
	openCls   float64
	order     int
}

// Key is the candidate's open key.
func (c *Candidate) Key() vocab.Key { return c.key }

// Chord is the candidate's open chord.
func (c *Candidate) Chord() vocab.Chord { return c.chord }

// LogProb is the cumulative log-probability.
func (c *Candidate) LogProb() float64 { return c.committed + c.openCls }

// Order is the generation order within the round: parent rank, then
// continuation before chord changes before key changes, then vocabulary order.
func (c *Candidate) Order() int { return c.order }

// ChordStart is the first frame of the candidate's open chord segment.
func (c *Candidate) ChordStart() int {
	if c.kind == expandOpen {
		return 0
	}
	if c.kind == expandContinue {
		return c.parent.chordStart
	}
	return c.at
}

// KeyStart is the first frame of the candidate's open key segment.
func (c *Candidate) KeyStart() int {
	switch c.kind {
	case expandOpen:
		return 0
	case expandKey:
		return c.at
	}
	return c.parent.keyStart
}

// Segments counts the candidate's closed chord segments.
func (c *Candidate) Segments() int {
	if c.kind == expandOpen {
		return 0
	}
	if c.kind == expandContinue {
		return c.parent.numSegments
	}
	return c.parent.numSegments + 1
}

// KeyChanges counts the candidate's closed key segments.
func (c *Candidate) KeyChanges() int {
	if c.kind == expandOpen {
		return 0
	}
	if c.kind == expandKey {
		return c.parent.numKeys + 1
	}
	return c.parent.numKeys
}

// State identifies candidates whose futures score identically under a
// model that reads no more than the last chord and key.
type State struct {
	Key        vocab.Key
	Chord      vocab.Chord
	ChordStart int
	KeyStart   int
}

// State returns the merge identity of c.
func (c *Candidate) State() State {
	return State{Key: c.key, Chord: c.chord, ChordStart: c.ChordStart(), KeyStart: c.KeyStart()}
}

// materialize builds the child hypothesis covering [0, at+1).
func (c *Candidate) materialize() *Hypothesis {
	p := c.parent
	h := &Hypothesis{
		key:         c.key,
		chord:       c.chord,
		keyStart:    c.KeyStart(),
		chordStart:  c.ChordStart(),
		end:         c.at + 1,
		committed:   c.committed,
		openCls:     c.openCls,
		numSegments: c.Segments(),
		numKeys:     c.KeyChanges(),
		order:       c.order,
	}
	switch c.kind {
	case expandOpen:
	case expandContinue:
		h.chords, h.keys, h.segments = p.chords, p.keys, p.segments
	case expandChord:
		h.chords = pushChord(p.chords, p.chord)
		h.keys = p.keys
		h.segments = p.closeOpen(c.at, c.closed)
	case expandKey:
		h.keys = pushKey(p.keys, p.key)
		h.segments = p.closeOpen(c.at, c.closed)
	}
	return h
}
