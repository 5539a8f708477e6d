package vocab

import (
	"errors"
	"testing"
)

func TestStandardVocabularySize(t *testing.T) {
	v := Standard(AllChords)

	if got := len(v.Keys()); got != 24 {
		t.Errorf("Expected 24 keys, got %d", got)
	}
	// 12 roots * (4 triads * 3 inversions + 5 sevenths * 4 inversions)
	if got := len(v.Chords()); got != 384 {
		t.Errorf("Expected 384 chords, got %d", got)
	}
	for _, k := range v.Keys() {
		if got := len(v.ChordsIn(k)); got != 384 {
			t.Errorf("Expected every chord valid in %s, got %d", k, got)
		}
	}
}

func TestDiatonicRule(t *testing.T) {
	v := Standard(Diatonic)
	cMajor := Key{Tonic: 0, Mode: Major}
	aMinor := Key{Tonic: 9, Mode: Minor}

	tests := []struct {
		key   Key
		chord string
		want  bool
	}{
		{cMajor, "C:M", true},
		{cMajor, "G:Mm7/1", true},
		{cMajor, "B:%7", true},
		{cMajor, "E:M", false},
		{cMajor, "Bb:M", false},
		{aMinor, "E:M", true},
		{aMinor, "G#:o7", true},
		{aMinor, "C:+", true},
		{aMinor, "Eb:M", false},
	}

	for _, tt := range tests {
		c, err := ParseChord(tt.chord)
		if err != nil {
			t.Fatalf("ParseChord(%q): %v", tt.chord, err)
		}
		if got := v.Valid(tt.key, c); got != tt.want {
			t.Errorf("Valid(%s, %s) = %v, expected %v", tt.key, tt.chord, got, tt.want)
		}
	}

	for _, k := range v.Keys() {
		if len(v.ChordsIn(k)) == 0 {
			t.Errorf("Key %s has no diatonic chords", k)
		}
		for _, c := range v.ChordsIn(k) {
			if !v.Valid(k, c) {
				t.Errorf("ChordsIn(%s) returned invalid chord %s", k, c)
			}
		}
	}
}

func TestNewVocabularyRejectsBadInput(t *testing.T) {
	c := Chord{Root: 0, Quality: MajorTriad}
	k := Key{Tonic: 0, Mode: Major}

	if _, err := NewVocabulary(nil, []Chord{c}, nil); err == nil {
		t.Error("Expected error for empty key set")
	}
	if _, err := NewVocabulary([]Key{k, k}, []Chord{c}, nil); err == nil {
		t.Error("Expected error for duplicate key")
	}
	_, err := NewVocabulary([]Key{k}, []Chord{{Root: 0, Quality: MajorTriad, Inversion: 3}}, nil)
	if !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Expected ErrUnknownLabel for bad inversion, got %v", err)
	}
}

func TestValidRejectsUnknownLabels(t *testing.T) {
	k := Key{Tonic: 0, Mode: Major}
	c := Chord{Root: 0, Quality: MajorTriad}
	v, err := NewVocabulary([]Key{k}, []Chord{c}, AllChords)
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}

	other := Chord{Root: 2, Quality: MinorTriad}
	if v.Valid(k, other) {
		t.Error("Expected chord outside the vocabulary to be invalid")
	}
	if err := v.CheckChord(other); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Expected ErrUnknownLabel, got %v", err)
	}
	if err := v.CheckKey(Key{Tonic: 1, Mode: Minor}); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Expected ErrUnknownLabel, got %v", err)
	}
	if v.KeyID(k) != 0 || v.ChordID(c) != 0 || v.ChordID(other) != -1 {
		t.Error("Unexpected label ids")
	}
}

func TestRuleByName(t *testing.T) {
	for _, name := range []string{"", "all", "diatonic"} {
		if _, err := RuleByName(name); err != nil {
			t.Errorf("RuleByName(%q): %v", name, err)
		}
	}
	if _, err := RuleByName("chromatic"); err == nil {
		t.Error("Expected error for unknown rule")
	}
}
