// Package vocab defines the key and chord labels the annotator works with,
// the relation deciding which chords may appear inside which keys, and the
// key-relative spelling of chords handed to scoring models.
package vocab

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownLabel is returned when a label is malformed or missing from a vocabulary.
var ErrUnknownLabel = errors.New("unknown label")

// NumPitchClasses is the size of the pitch-class space labels are spelled in.
const NumPitchClasses = 12

// PitchClass is a pitch class in 12-tone equal temperament, 0=C .. 11=B.
type PitchClass int

var pitchNames = [NumPitchClasses]string{"C", "C#", "D", "Eb", "E", "F", "F#", "G", "Ab", "A", "Bb", "B"}

var letterPitch = map[byte]PitchClass{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

func (p PitchClass) String() string {
	return pitchNames[p.Normalize()]
}

// Normalize folds p into [0, 12).
func (p PitchClass) Normalize() PitchClass {
	return PitchClass(mod12(int(p)))
}

// Transpose returns p moved by the given number of semitones.
func (p PitchClass) Transpose(semitones int) PitchClass {
	return PitchClass(mod12(int(p) + semitones))
}

// ParsePitchClass parses a note name such as "C", "f#", "Bb" or "E-".
func ParsePitchClass(s string) (PitchClass, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty pitch name", ErrUnknownLabel)
	}
	base, ok := letterPitch[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("%w: pitch name %q", ErrUnknownLabel, s)
	}
	offset := 0
	for _, r := range s[1:] {
		switch r {
		case '#':
			offset++
		case 'b', '-':
			offset--
		default:
			return 0, fmt.Errorf("%w: pitch name %q", ErrUnknownLabel, s)
		}
	}
	return base.Transpose(offset), nil
}

func mod12(v int) int {
	v %= NumPitchClasses
	if v < 0 {
		v += NumPitchClasses
	}
	return v
}

// Mode is the mode of a key.
type Mode uint8

const (
	Major Mode = iota
	Minor
)

func (m Mode) String() string {
	switch m {
	case Major:
		return "major"
	case Minor:
		return "minor"
	default:
		return "unknown"
	}
}

// Quality is the interval structure of a chord above its root.
type Quality uint8

const (
	MajorTriad Quality = iota
	MinorTriad
	DiminishedTriad
	AugmentedTriad
	MajorSeventh
	DominantSeventh
	MinorSeventh
	HalfDiminishedSeventh
	DiminishedSeventh
	numQualities
)

// Qualities lists every chord quality in vocabulary order.
func Qualities() []Quality {
	out := make([]Quality, 0, numQualities)
	for q := Quality(0); q < numQualities; q++ {
		out = append(out, q)
	}
	return out
}

var qualitySymbols = [numQualities]string{"M", "m", "o", "+", "MM7", "Mm7", "mm7", "%7", "o7"}

var qualityIntervals = [numQualities][]int{
	{0, 4, 7},
	{0, 3, 7},
	{0, 3, 6},
	{0, 4, 8},
	{0, 4, 7, 11},
	{0, 4, 7, 10},
	{0, 3, 7, 10},
	{0, 3, 6, 10},
	{0, 3, 6, 9},
}

func (q Quality) String() string {
	if q >= numQualities {
		return "?"
	}
	return qualitySymbols[q]
}

// Size is the number of chord tones.
func (q Quality) Size() int {
	if q >= numQualities {
		return 0
	}
	return len(qualityIntervals[q])
}

// Intervals returns the chord tones as semitones above the root.
func (q Quality) Intervals() []int {
	if q >= numQualities {
		return nil
	}
	return append([]int(nil), qualityIntervals[q]...)
}

// hasMinorThird reports whether the quality is spelled with a lower-case numeral.
func (q Quality) hasMinorThird() bool {
	switch q {
	case MinorTriad, DiminishedTriad, MinorSeventh, HalfDiminishedSeventh, DiminishedSeventh:
		return true
	}
	return false
}

// ParseQuality parses a quality symbol such as "Mm7" or "%7".
func ParseQuality(s string) (Quality, error) {
	for q, sym := range qualitySymbols {
		if sym == s {
			return Quality(q), nil
		}
	}
	return 0, fmt.Errorf("%w: chord quality %q", ErrUnknownLabel, s)
}

// Key is a tonic with a mode.
type Key struct {
	Tonic PitchClass
	Mode  Mode
}

// String spells major keys upper case and minor keys lower case, e.g. "Eb", "c#".
func (k Key) String() string {
	name := k.Tonic.String()
	if k.Mode == Minor {
		return strings.ToLower(name[:1]) + name[1:]
	}
	return name
}

// WellFormed reports whether every field of k is in range.
func (k Key) WellFormed() bool {
	return k.Tonic >= 0 && k.Tonic < NumPitchClasses && (k.Mode == Major || k.Mode == Minor)
}

// ParseKey parses "Eb" (major) or "c#" (minor).
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	tonic, err := ParsePitchClass(s)
	if err != nil {
		return Key{}, err
	}
	mode := Major
	if s[0] >= 'a' && s[0] <= 'z' {
		mode = Minor
	}
	return Key{Tonic: tonic, Mode: mode}, nil
}

// Chord is an absolute chord label: root, quality and inversion.
type Chord struct {
	Root      PitchClass
	Quality   Quality
	Inversion uint8
}

// String formats the chord as "root:quality" with a "/inversion" suffix
// for inverted chords, e.g. "G:Mm7/1".
func (c Chord) String() string {
	s := c.Root.String() + ":" + c.Quality.String()
	if c.Inversion > 0 {
		s += "/" + strconv.Itoa(int(c.Inversion))
	}
	return s
}

// WellFormed reports whether every field of c is in range.
func (c Chord) WellFormed() bool {
	return c.Root >= 0 && c.Root < NumPitchClasses && c.Quality < numQualities &&
		int(c.Inversion) < c.Quality.Size()
}

// PitchClasses returns the chord tones in root position order.
func (c Chord) PitchClasses() []PitchClass {
	intervals := qualityIntervals[c.Quality]
	out := make([]PitchClass, len(intervals))
	for i, iv := range intervals {
		out[i] = c.Root.Transpose(iv)
	}
	return out
}

// Bass returns the lowest sounding pitch class given the inversion.
func (c Chord) Bass() PitchClass {
	return c.Root.Transpose(qualityIntervals[c.Quality][c.Inversion])
}

// ParseChord parses "F#:Mm7/1"; the inversion suffix is optional.
func ParseChord(s string) (Chord, error) {
	s = strings.TrimSpace(s)
	rootPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Chord{}, fmt.Errorf("%w: chord %q", ErrUnknownLabel, s)
	}
	root, err := ParsePitchClass(rootPart)
	if err != nil {
		return Chord{}, err
	}
	qualityPart, invPart, hasInv := strings.Cut(rest, "/")
	quality, err := ParseQuality(qualityPart)
	if err != nil {
		return Chord{}, err
	}
	c := Chord{Root: root, Quality: quality}
	if hasInv {
		inv, err := strconv.Atoi(invPart)
		if err != nil || inv < 0 {
			return Chord{}, fmt.Errorf("%w: chord inversion %q", ErrUnknownLabel, s)
		}
		c.Inversion = uint8(inv)
	}
	if !c.WellFormed() {
		return Chord{}, fmt.Errorf("%w: chord %q", ErrUnknownLabel, s)
	}
	return c, nil
}
