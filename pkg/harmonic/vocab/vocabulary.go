package vocab

import (
	"errors"
	"fmt"
)

// Rule decides whether a chord may be spelled inside a key.
type Rule interface {
	Allows(k Key, c Chord) bool
	Name() string
}

type ruleFunc struct {
	name string
	fn   func(Key, Chord) bool
}

func (r ruleFunc) Allows(k Key, c Chord) bool { return r.fn(k, c) }
func (r ruleFunc) Name() string               { return r.name }

// NewRule wraps fn as a named Rule.
func NewRule(name string, fn func(Key, Chord) bool) Rule {
	return ruleFunc{name: name, fn: fn}
}

var (
	majorCollection = []int{0, 2, 4, 5, 7, 9, 11}
	// natural, harmonic and melodic minor together
	minorCollection = []int{0, 2, 3, 5, 7, 8, 9, 10, 11}
)

// AllChords accepts every chord in every key.
var AllChords Rule = NewRule("all", func(Key, Chord) bool { return true })

// Diatonic accepts a chord when all of its tones belong to the key's pitch collection.
var Diatonic Rule = NewRule("diatonic", func(k Key, c Chord) bool {
	var inKey [NumPitchClasses]bool
	collection := majorCollection
	if k.Mode == Minor {
		collection = minorCollection
	}
	for _, iv := range collection {
		inKey[k.Tonic.Transpose(iv)] = true
	}
	for _, pc := range c.PitchClasses() {
		if !inKey[pc] {
			return false
		}
	}
	return true
})

// RuleByName resolves "all" or "diatonic".
func RuleByName(name string) (Rule, error) {
	switch name {
	case "", AllChords.Name():
		return AllChords, nil
	case Diatonic.Name():
		return Diatonic, nil
	}
	return nil, fmt.Errorf("unknown chord rule %q", name)
}

// Vocabulary is an immutable, ordered set of keys and chords together with
// the validity relation between them. Iteration order is the construction
// order and is relied on for deterministic decoding.
type Vocabulary struct {
	keys     []Key
	chords   []Chord
	keyIDs   map[Key]int
	chordIDs map[Chord]int
	chordsIn [][]Chord
	rule     Rule
}

// NewVocabulary builds a vocabulary. Labels must be well formed and unique.
func NewVocabulary(keys []Key, chords []Chord, rule Rule) (*Vocabulary, error) {
	if len(keys) == 0 || len(chords) == 0 {
		return nil, errors.New("vocabulary needs at least one key and one chord")
	}
	if rule == nil {
		rule = AllChords
	}

	v := &Vocabulary{
		keys:     append([]Key(nil), keys...),
		chords:   append([]Chord(nil), chords...),
		keyIDs:   make(map[Key]int, len(keys)),
		chordIDs: make(map[Chord]int, len(chords)),
		rule:     rule,
	}
	for i, k := range v.keys {
		if !k.WellFormed() {
			return nil, fmt.Errorf("%w: key %+v", ErrUnknownLabel, k)
		}
		if _, dup := v.keyIDs[k]; dup {
			return nil, fmt.Errorf("duplicate key %s", k)
		}
		v.keyIDs[k] = i
	}
	for i, c := range v.chords {
		if !c.WellFormed() {
			return nil, fmt.Errorf("%w: chord %+v", ErrUnknownLabel, c)
		}
		if _, dup := v.chordIDs[c]; dup {
			return nil, fmt.Errorf("duplicate chord %s", c)
		}
		v.chordIDs[c] = i
	}

	v.chordsIn = make([][]Chord, len(v.keys))
	for i, k := range v.keys {
		for _, c := range v.chords {
			if rule.Allows(k, c) {
				v.chordsIn[i] = append(v.chordsIn[i], c)
			}
		}
	}
	return v, nil
}

// Standard builds the full vocabulary: 24 keys, and every root, quality and
// inversion.
func Standard(rule Rule) *Vocabulary {
	keys := make([]Key, 0, 2*NumPitchClasses)
	for _, mode := range []Mode{Major, Minor} {
		for pc := PitchClass(0); pc < NumPitchClasses; pc++ {
			keys = append(keys, Key{Tonic: pc, Mode: mode})
		}
	}
	var chords []Chord
	for pc := PitchClass(0); pc < NumPitchClasses; pc++ {
		for _, q := range Qualities() {
			for inv := 0; inv < q.Size(); inv++ {
				chords = append(chords, Chord{Root: pc, Quality: q, Inversion: uint8(inv)})
			}
		}
	}
	v, err := NewVocabulary(keys, chords, rule)
	if err != nil {
		// the standard label set is well formed by construction
		panic(err)
	}
	return v
}

// Keys returns the keys in vocabulary order. The slice must not be modified.
func (v *Vocabulary) Keys() []Key { return v.keys }

// Chords returns the chords in vocabulary order. The slice must not be modified.
func (v *Vocabulary) Chords() []Chord { return v.chords }

// Rule returns the validity rule.
func (v *Vocabulary) Rule() Rule { return v.rule }

// KeyID returns the position of k, or -1.
func (v *Vocabulary) KeyID(k Key) int {
	if id, ok := v.keyIDs[k]; ok {
		return id
	}
	return -1
}

// ChordID returns the position of c, or -1.
func (v *Vocabulary) ChordID(c Chord) int {
	if id, ok := v.chordIDs[c]; ok {
		return id
	}
	return -1
}

// CheckKey returns ErrUnknownLabel when k is not in the vocabulary.
func (v *Vocabulary) CheckKey(k Key) error {
	if _, ok := v.keyIDs[k]; !ok {
		return fmt.Errorf("%w: key %s", ErrUnknownLabel, k)
	}
	return nil
}

// CheckChord returns ErrUnknownLabel when c is not in the vocabulary.
func (v *Vocabulary) CheckChord(c Chord) error {
	if _, ok := v.chordIDs[c]; !ok {
		return fmt.Errorf("%w: chord %s", ErrUnknownLabel, c)
	}
	return nil
}

// Valid reports whether c may appear inside k. Labels outside the vocabulary are never valid.
func (v *Vocabulary) Valid(k Key, c Chord) bool {
	if _, ok := v.chordIDs[c]; !ok {
		return false
	}
	if _, ok := v.keyIDs[k]; !ok {
		return false
	}
	return v.rule.Allows(k, c)
}

// ChordsIn returns the chords valid inside k in vocabulary order.
// The slice must not be modified.
func (v *Vocabulary) ChordsIn(k Key) []Chord {
	id, ok := v.keyIDs[k]
	if !ok {
		return nil
	}
	return v.chordsIn[id]
}
