package piece

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

type frameJSON struct {
	Onset    float64   `json:"onset"`
	Duration float64   `json:"duration"`
	PCP      []float64 `json:"pcp"`
}

type labelJSON struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Key   string `json:"key"`
	Chord string `json:"chord"`
}

type documentJSON struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Frames []frameJSON `json:"frames"`
	Labels []labelJSON `json:"labels,omitempty"`
}

// Document is a decoded piece file: the frames and, optionally, ground-truth labels.
type Document struct {
	Piece  *Piece
	Labels []Segment
}

// Decode reads a JSON document. Frame indices are assigned in file order.
func Decode(r io.Reader) (*Document, error) {
	var raw documentJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding piece json: %w", err)
	}

	p := &Piece{ID: raw.ID, Title: raw.Title, Frames: make([]Frame, len(raw.Frames))}
	for i, f := range raw.Frames {
		p.Frames[i] = Frame{Index: i, Onset: f.Onset, Duration: f.Duration, Features: f.PCP}
	}

	labels := make([]Segment, 0, len(raw.Labels))
	for i, l := range raw.Labels {
		key, err := vocab.ParseKey(l.Key)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		chord, err := vocab.ParseChord(l.Chord)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		labels = append(labels, Segment{Start: l.Start, End: l.End, Key: key, Chord: chord})
	}

	return &Document{Piece: p, Labels: labels}, nil
}

// ReadFile loads and validates a piece file. A missing id defaults to the file name.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening piece file: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, err
	}
	if doc.Piece.ID == "" {
		doc.Piece.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := doc.Piece.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Encode writes p and optional labels in the format Decode reads.
func Encode(w io.Writer, p *Piece, labels []Segment) error {
	raw := documentJSON{ID: p.ID, Title: p.Title, Frames: make([]frameJSON, len(p.Frames))}
	for i, f := range p.Frames {
		raw.Frames[i] = frameJSON{Onset: f.Onset, Duration: f.Duration, PCP: f.Features}
	}
	for _, s := range labels {
		raw.Labels = append(raw.Labels, labelJSON{Start: s.Start, End: s.End, Key: s.Key.String(), Chord: s.Chord.String()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}
