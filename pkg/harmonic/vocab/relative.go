package vocab

import "fmt"

// RelativeChord is a chord spelled against a key: the root as an interval
// above the tonic, plus the key's mode. Scoring models consume this form so
// they are transposition invariant.
type RelativeChord struct {
	Interval  int
	Quality   Quality
	Inversion uint8
	Mode      Mode
}

// Relative spells c relative to k.
func Relative(k Key, c Chord) RelativeChord {
	return RelativeChord{
		Interval:  mod12(int(c.Root) - int(k.Tonic)),
		Quality:   c.Quality,
		Inversion: c.Inversion,
		Mode:      k.Mode,
	}
}

// Absolute is the inverse of Relative.
func Absolute(k Key, rc RelativeChord) Chord {
	return Chord{
		Root:      k.Tonic.Transpose(rc.Interval),
		Quality:   rc.Quality,
		Inversion: rc.Inversion,
	}
}

// KeyInterval is the tonic motion in semitones from one key to the next.
func KeyInterval(from, to Key) int {
	return mod12(int(to.Tonic) - int(from.Tonic))
}

// IsKeyChange reports whether moving from prev to next changes the key.
func IsKeyChange(prev, next Key) bool {
	return prev != next
}

var (
	majorDegrees = [NumPitchClasses]string{"I", "bII", "II", "bIII", "III", "IV", "#IV", "V", "bVI", "VI", "bVII", "VII"}
	minorDegrees = [NumPitchClasses]string{"I", "bII", "II", "III", "#III", "IV", "#IV", "V", "VI", "#VI", "VII", "#VII"}

	triadFigures   = []string{"", "6", "64"}
	seventhFigures = []string{"7", "65", "43", "42"}
)

// Figure renders the chord as a roman numeral, e.g. "V65", "viio7", "bVI".
func (rc RelativeChord) Figure() string {
	degrees := majorDegrees
	if rc.Mode == Minor {
		degrees = minorDegrees
	}
	numeral := degrees[mod12(rc.Interval)]
	if rc.Quality.hasMinorThird() {
		numeral = lowerNumeral(numeral)
	}

	var mark string
	switch rc.Quality {
	case DiminishedTriad, DiminishedSeventh:
		mark = "o"
	case AugmentedTriad:
		mark = "+"
	case HalfDiminishedSeventh:
		mark = "ø"
	case MajorSeventh:
		mark = "M"
	}

	figures := triadFigures
	if rc.Quality.Size() == 4 {
		figures = seventhFigures
	}
	fig := ""
	if int(rc.Inversion) < len(figures) {
		fig = figures[rc.Inversion]
	}
	return numeral + mark + fig
}

func (rc RelativeChord) String() string {
	return fmt.Sprintf("%s(%s)", rc.Figure(), rc.Mode)
}

func lowerNumeral(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b == 'I' || b == 'V' {
			out[i] = b + ('a' - 'A')
		}
	}
	return string(out)
}
