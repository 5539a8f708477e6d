package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// DefaultCacheSize bounds the per-decode memo table.
const DefaultCacheSize = 1 << 18

// scores this close above zero are rounding noise from normalization
const positiveTolerance = 1e-9

// Adapter is the decoder's single entry point to a Model for one piece.
// Every answer is validated and memoized by its full argument tuple.
// An Adapter belongs to exactly one decode and is safe for concurrent use
// by that decode's expansion workers.
type Adapter struct {
	model  Model
	vocab  *vocab.Vocabulary
	frames []piece.Frame

	cache *lru.Cache[string, float64]

	chordLimit int
	keyLimit   int

	hits   [numComponents]atomic.Int64
	misses [numComponents]atomic.Int64
}

// NewAdapter wraps m for decoding p. cacheSize <= 0 selects DefaultCacheSize.
func NewAdapter(m Model, v *vocab.Vocabulary, p *piece.Piece, cacheSize int) (*Adapter, error) {
	if m == nil {
		return nil, fmt.Errorf("scoring adapter: nil model")
	}
	if v == nil || p == nil {
		return nil, fmt.Errorf("scoring adapter: vocabulary and piece are required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating score cache: %w", err)
	}

	a := &Adapter{model: m, vocab: v, frames: p.Frames, cache: cache}
	if hl, ok := m.(HistoryLimiter); ok {
		a.chordLimit = max(hl.ChordHistoryLimit(), 0)
		a.keyLimit = max(hl.KeyHistoryLimit(), 0)
	}
	return a, nil
}

// ChordHistoryLimit is the number of trailing chords the model reads; 0 means all.
func (a *Adapter) ChordHistoryLimit() int { return a.chordLimit }

// KeyHistoryLimit is the number of trailing keys the model reads; 0 means all.
func (a *Adapter) KeyHistoryLimit() int { return a.keyLimit }

// Vocabulary returns the vocabulary used for relative spelling.
func (a *Adapter) Vocabulary() *vocab.Vocabulary { return a.vocab }

// InitialChord scores c opening the piece in key k.
func (a *Adapter) InitialChord(k vocab.Key, c vocab.Chord) (float64, error) {
	ck := a.newKey(InitialChord).key(k).chord(c)
	return a.lookup(InitialChord, ck.String(), func() (float64, error) {
		return a.model.InitialChord(InitialChordQuery{Key: k, Chord: c, Relative: vocab.Relative(k, c)})
	})
}

// ChordTransition scores the chord segment [start, end) ending at end.
func (a *Adapter) ChordTransition(start, end int, k vocab.Key, c vocab.Chord) (float64, error) {
	ck := a.newKey(ChordTransition).num(start).num(end).key(k).chord(c)
	return a.lookup(ChordTransition, ck.String(), func() (float64, error) {
		return a.model.ChordTransition(ChordBoundaryQuery{
			Frames:   a.frames,
			Start:    start,
			End:      end,
			Key:      k,
			Chord:    c,
			Relative: vocab.Relative(k, c),
		})
	})
}

// ChordClassification scores frames [start, end) realizing c.
func (a *Adapter) ChordClassification(start, end int, c vocab.Chord) (float64, error) {
	if start < 0 || end > len(a.frames) || start >= end {
		return 0, &ScoringError{
			Component: ChordClassification,
			Query:     fmt.Sprintf("[%d,%d)", start, end),
			Err:       fmt.Errorf("span outside piece of %d frames", len(a.frames)),
		}
	}
	ck := a.newKey(ChordClassification).num(start).num(end).chord(c)
	return a.lookup(ChordClassification, ck.String(), func() (float64, error) {
		return a.model.ChordClassification(ClassificationQuery{
			Frames: a.frames[start:end],
			Start:  start,
			End:    end,
			Chord:  c,
		})
	})
}

// ChordSequence scores next following history inside k. history is
// truncated to the model's window before querying.
func (a *Adapter) ChordSequence(k vocab.Key, history []vocab.Chord, next vocab.Chord) (float64, error) {
	if a.chordLimit > 0 && len(history) > a.chordLimit {
		history = history[len(history)-a.chordLimit:]
	}
	ck := a.newKey(ChordSequence).key(k).chord(next)
	for _, c := range history {
		ck.chord(c)
	}
	return a.lookup(ChordSequence, ck.String(), func() (float64, error) {
		rel := make([]vocab.RelativeChord, len(history))
		for i, c := range history {
			rel[i] = vocab.Relative(k, c)
		}
		return a.model.ChordSequence(ChordSequenceQuery{
			Key:             k,
			History:         history,
			RelativeHistory: rel,
			Next:            next,
			RelativeNext:    vocab.Relative(k, next),
		})
	})
}

// KeyTransition scores the key segment [start, end) ending at end.
func (a *Adapter) KeyTransition(start, end int, k vocab.Key, last vocab.Chord) (float64, error) {
	ck := a.newKey(KeyTransition).num(start).num(end).key(k).chord(last)
	return a.lookup(KeyTransition, ck.String(), func() (float64, error) {
		return a.model.KeyTransition(KeyBoundaryQuery{
			Frames:    a.frames,
			Start:     start,
			End:       end,
			Key:       k,
			LastChord: last,
		})
	})
}

// KeySequence scores next following history.
func (a *Adapter) KeySequence(history []vocab.Key, next vocab.Key) (float64, error) {
	if a.keyLimit > 0 && len(history) > a.keyLimit {
		history = history[len(history)-a.keyLimit:]
	}
	ck := a.newKey(KeySequence).key(next)
	for _, k := range history {
		ck.key(k)
	}
	return a.lookup(KeySequence, ck.String(), func() (float64, error) {
		return a.model.KeySequence(KeySequenceQuery{History: history, Next: next})
	})
}

// ChangeProb is the probability that the chord segment [start, at) in key k
// ends at at. It comes from the model's ChangeModel when implemented and
// from the segment's ChordTransition score otherwise.
func (a *Adapter) ChangeProb(start, at int, k vocab.Key, c vocab.Chord) (float64, error) {
	cm, ok := a.model.(ChangeModel)
	if !ok {
		v, err := a.ChordTransition(start, at, k, c)
		if err != nil {
			return 0, err
		}
		return math.Exp(v), nil
	}
	p, err := cm.ChangeProb(a.frames, at)
	if err == nil && (math.IsNaN(p) || p < 0 || p > 1) {
		err = fmt.Errorf("%w: %g", ErrProbability, p)
	}
	if err != nil {
		return 0, &ScoringError{Component: ChordTransition, Query: "change|" + strconv.Itoa(at), Err: err}
	}
	return p, nil
}

func (a *Adapter) lookup(comp Component, key string, eval func() (float64, error)) (float64, error) {
	if v, ok := a.cache.Get(key); ok {
		a.hits[comp].Add(1)
		return v, nil
	}
	a.misses[comp].Add(1)

	v, err := eval()
	if err != nil {
		return 0, &ScoringError{Component: comp, Query: key, Err: err}
	}
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, &ScoringError{Component: comp, Query: key, Err: ErrNonFinite}
	case v > positiveTolerance:
		return 0, &ScoringError{Component: comp, Query: key, Err: fmt.Errorf("%w: %g", ErrPositive, v)}
	case v > 0:
		v = 0
	}

	a.cache.Add(key, v)
	return v, nil
}

// Purge drops every memoized score.
func (a *Adapter) Purge() {
	a.cache.Purge()
}

// ComponentStats counts cache traffic of one component.
type ComponentStats struct {
	Hits   int64
	Misses int64
}

// Stats maps each component to its cache traffic.
type Stats map[Component]ComponentStats

// Total sums all components.
func (s Stats) Total() ComponentStats {
	var out ComponentStats
	for _, c := range s {
		out.Hits += c.Hits
		out.Misses += c.Misses
	}
	return out
}

// Stats snapshots the cache counters.
func (a *Adapter) Stats() Stats {
	out := make(Stats, numComponents)
	for _, c := range Components() {
		out[c] = ComponentStats{Hits: a.hits[c].Load(), Misses: a.misses[c].Load()}
	}
	return out
}

// cacheKey builds memo keys from vocabulary ids.
type cacheKey struct {
	a *Adapter
	b strings.Builder
}

func (a *Adapter) newKey(c Component) *cacheKey {
	ck := &cacheKey{a: a}
	ck.b.WriteString(strconv.Itoa(int(c)))
	return ck
}

func (ck *cacheKey) num(v int) *cacheKey {
	ck.b.WriteByte('|')
	ck.b.WriteString(strconv.Itoa(v))
	return ck
}

func (ck *cacheKey) key(k vocab.Key) *cacheKey {
	ck.b.WriteString("|k")
	if id := ck.a.vocab.KeyID(k); id >= 0 {
		ck.b.WriteString(strconv.Itoa(id))
	} else {
		ck.b.WriteString(k.String())
	}
	return ck
}

func (ck *cacheKey) chord(c vocab.Chord) *cacheKey {
	ck.b.WriteString("|c")
	if id := ck.a.vocab.ChordID(c); id >= 0 {
		ck.b.WriteString(strconv.Itoa(id))
	} else {
		ck.b.WriteString(c.String())
	}
	return ck
}

func (ck *cacheKey) String() string {
	return ck.b.String()
}
