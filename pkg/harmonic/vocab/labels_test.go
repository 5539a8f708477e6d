package vocab

import (
	"errors"
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want Key
	}{
		{"C", Key{Tonic: 0, Mode: Major}},
		{"Eb", Key{Tonic: 3, Mode: Major}},
		{"E-", Key{Tonic: 3, Mode: Major}},
		{"c#", Key{Tonic: 1, Mode: Minor}},
		{"bb", Key{Tonic: 10, Mode: Minor}},
		{"Cb", Key{Tonic: 11, Mode: Major}},
	}

	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		if err != nil {
			t.Errorf("ParseKey(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKey(%q) = %+v, expected %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "H", "C$"} {
		if _, err := ParseKey(bad); !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("ParseKey(%q) expected ErrUnknownLabel, got %v", bad, err)
		}
	}
}

func TestKeyString(t *testing.T) {
	if got := (Key{Tonic: 3, Mode: Major}).String(); got != "Eb" {
		t.Errorf("Expected Eb, got %s", got)
	}
	if got := (Key{Tonic: 1, Mode: Minor}).String(); got != "c#" {
		t.Errorf("Expected c#, got %s", got)
	}
}

func TestChordRoundTrip(t *testing.T) {
	for _, s := range []string{"C:M", "F#:Mm7/1", "Bb:o7/3", "E:%7/2", "Ab:+/2"} {
		c, err := ParseChord(s)
		if err != nil {
			t.Fatalf("ParseChord(%q): %v", s, err)
		}
		if got := c.String(); got != s {
			t.Errorf("ParseChord(%q).String() = %q", s, got)
		}
	}

	for _, bad := range []string{"C", "C:X", "C:M/3", "C:Mm7/x", "Q:M"} {
		if _, err := ParseChord(bad); !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("ParseChord(%q) expected ErrUnknownLabel, got %v", bad, err)
		}
	}
}

func TestChordTones(t *testing.T) {
	c := Chord{Root: 7, Quality: DominantSeventh, Inversion: 1}

	want := []PitchClass{7, 11, 2, 5}
	got := c.PitchClasses()
	if len(got) != len(want) {
		t.Fatalf("Expected %d tones, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tone %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if c.Bass() != 11 {
		t.Errorf("Expected bass B, got %s", c.Bass())
	}
}

func TestRelativeSpelling(t *testing.T) {
	key := Key{Tonic: 2, Mode: Major}
	chord := Chord{Root: 9, Quality: DominantSeventh, Inversion: 1}

	rc := Relative(key, chord)
	if rc.Interval != 7 || rc.Mode != Major {
		t.Errorf("Unexpected relative chord %+v", rc)
	}
	if back := Absolute(key, rc); back != chord {
		t.Errorf("Absolute(Relative(c)) = %s, expected %s", back, chord)
	}

	// the same functional chord in another key has the same relative spelling
	other := Relative(Key{Tonic: 5, Mode: Major}, Chord{Root: 0, Quality: DominantSeventh, Inversion: 1})
	if other != rc {
		t.Errorf("Expected transposition invariance, got %+v vs %+v", other, rc)
	}
}

func TestFigure(t *testing.T) {
	cMajor := Key{Tonic: 0, Mode: Major}
	aMinor := Key{Tonic: 9, Mode: Minor}

	tests := []struct {
		key   Key
		chord string
		want  string
	}{
		{cMajor, "C:M", "I"},
		{cMajor, "G:Mm7/1", "V65"},
		{cMajor, "D:m/1", "ii6"},
		{cMajor, "B:%7", "viiø7"},
		{cMajor, "Ab:M", "bVI"},
		{cMajor, "F:MM7/3", "IVM42"},
		{aMinor, "G#:o7", "#viio7"},
		{aMinor, "C:+/2", "III+64"},
	}

	for _, tt := range tests {
		c, err := ParseChord(tt.chord)
		if err != nil {
			t.Fatalf("ParseChord(%q): %v", tt.chord, err)
		}
		if got := Relative(tt.key, c).Figure(); got != tt.want {
			t.Errorf("Figure(%s in %s) = %q, expected %q", tt.chord, tt.key, got, tt.want)
		}
	}
}

func TestKeyChange(t *testing.T) {
	c := Key{Tonic: 0, Mode: Major}
	a := Key{Tonic: 9, Mode: Minor}
	if IsKeyChange(c, c) {
		t.Error("Same key must not be a key change")
	}
	if !IsKeyChange(c, a) {
		t.Error("Different keys must be a key change")
	}
	if KeyInterval(c, a) != 9 || KeyInterval(a, c) != 3 {
		t.Error("Unexpected key intervals")
	}
}
