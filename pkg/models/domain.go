package models

import "time"

// Analysis represents a stored annotation of one piece.
type Analysis struct {
	ID           string    // Database ID (UUID)
	PieceID      string    // Caller supplied piece identifier
	Title        string    // Piece title
	FrameCount   int       // Number of frames in the annotated piece
	LogProb      float64   // Joint log-probability of the winning path
	BeamWidth    int       // Beam width used for the decode
	ModelName    string    // Scoring model that produced the analysis
	SegmentCount int       // Number of segments, filled by list queries
	Segments     []Segment // Ordered segments, empty for list queries
	CreatedAt    time.Time
}

// Segment is one labeled span of an analysis with its labels in text form.
type Segment struct {
	Start  int    // First frame (inclusive)
	End    int    // Last frame (exclusive)
	Key    string // Key label, e.g. "Eb" or "c#"
	Chord  string // Chord label, e.g. "G:Mm7/1"
	Figure string // Roman numeral of Chord in Key, e.g. "V65"
}
