// Package export renders analyses for people and for other tools.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

type Format string

const (
	FormatTable     Format = "table"
	FormatJSON      Format = "json"
	FormatRomanText Format = "rntxt"
)

// Formats lists the supported output formats.
func Formats() []Format {
	return []Format{FormatTable, FormatJSON, FormatRomanText}
}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats() {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or rntxt)", s)
}

// Document is an analysis together with the frame timing needed to place
// segments in musical time.
type Document struct {
	Analysis *harmonic.Analysis
	// Frames, when set, supplies onsets in quarter notes. Without frames
	// every frame counts as one beat.
	Frames []piece.Frame
	// BeatsPerMeasure groups beats into measures for rntxt; 0 means 4.
	BeatsPerMeasure int
}

// Write renders d in format f.
func Write(w io.Writer, f Format, d Document) error {
	if d.Analysis == nil {
		return fmt.Errorf("export: nil analysis")
	}
	switch f {
	case FormatTable:
		return writeTable(w, d)
	case FormatJSON:
		return writeJSON(w, d)
	case FormatRomanText:
		return writeRomanText(w, d)
	}
	return fmt.Errorf("unknown output format %q", f)
}

func (d Document) onset(frame int) float64 {
	if frame >= 0 && frame < len(d.Frames) {
		return d.Frames[frame].Onset
	}
	if n := len(d.Frames); n > 0 && frame == n {
		last := d.Frames[n-1]
		return last.Onset + last.Duration
	}
	return float64(frame)
}

func writeTable(w io.Writer, d Document) error {
	a := d.Analysis
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFRAMES\tONSET\tKEY\tCHORD\tFIGURE")
	for i, s := range a.Segments {
		fmt.Fprintf(tw, "%d\t%d-%d\t%s\t%s\t%s\t%s\n",
			i+1, s.Start, s.End, formatBeat(d.onset(s.Start)), s.Key, s.Chord,
			vocab.Relative(s.Key, s.Chord).Figure())
	}
	return tw.Flush()
}

type segmentJSON struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Onset  float64 `json:"onset"`
	Key    string  `json:"key"`
	Chord  string  `json:"chord"`
	Figure string  `json:"figure"`
}

type keySpanJSON struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Key   string `json:"key"`
}

type analysisJSON struct {
	ID         string        `json:"id,omitempty"`
	PieceID    string        `json:"piece_id"`
	Title      string        `json:"title,omitempty"`
	FrameCount int           `json:"frame_count"`
	LogProb    float64       `json:"log_prob"`
	BeamWidth  int           `json:"beam_width"`
	Model      string        `json:"model"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	Segments   []segmentJSON `json:"segments"`
	KeySpans   []keySpanJSON `json:"key_spans"`
}

// JSON builds the wire form shared by the CLI and the HTTP server.
func JSON(d Document) any {
	a := d.Analysis
	out := analysisJSON{
		ID:         a.ID,
		PieceID:    a.PieceID,
		Title:      a.Title,
		FrameCount: a.FrameCount,
		LogProb:    a.LogProb,
		BeamWidth:  a.BeamWidth,
		Model:      a.ModelName,
		Segments:   make([]segmentJSON, len(a.Segments)),
		KeySpans:   []keySpanJSON{},
	}
	if !a.CreatedAt.IsZero() {
		created := a.CreatedAt
		out.CreatedAt = &created
	}
	figures := a.Figures()
	for i, s := range a.Segments {
		out.Segments[i] = segmentJSON{
			Start:  s.Start,
			End:    s.End,
			Onset:  d.onset(s.Start),
			Key:    s.Key.String(),
			Chord:  s.Chord.String(),
			Figure: figures[i],
		}
	}
	for _, ks := range a.KeySpans() {
		out.KeySpans = append(out.KeySpans, keySpanJSON{Start: ks.Start, End: ks.End, Key: ks.Key.String()})
	}
	return out
}

func writeJSON(w io.Writer, d Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(JSON(d))
}

// writeRomanText emits one line per measure that contains a segment start.
// The key is written before the first chord and after every key change.
func writeRomanText(w io.Writer, d Document) error {
	a := d.Analysis
	bpm := d.BeatsPerMeasure
	if bpm <= 0 {
		bpm = 4
	}

	var b strings.Builder
	title := a.Title
	if title == "" {
		title = a.PieceID
	}
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Analyst: HarmonicDNA (%s)\n", a.ModelName)
	fmt.Fprintf(&b, "Time Signature: %d/4\n\n", bpm)

	measure := 0
	var prevKey vocab.Key
	for i, s := range a.Segments {
		onset := d.onset(s.Start)
		m := int(math.Floor(onset/float64(bpm))) + 1
		beat := onset - float64((m-1)*bpm) + 1

		if m != measure {
			if measure != 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "m%d", m)
			measure = m
		}
		if beat != 1 {
			fmt.Fprintf(&b, " b%s", formatBeat(beat))
		}
		if i == 0 || s.Key != prevKey {
			fmt.Fprintf(&b, " %s:", s.Key)
		}
		fmt.Fprintf(&b, " %s", vocab.Relative(s.Key, s.Chord).Figure())
		prevKey = s.Key
	}
	if measure != 0 {
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatBeat(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
